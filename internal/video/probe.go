package video

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// Info is the subset of ffprobe stream metadata the sampler needs.
type Info struct {
	Width    int
	Height   int
	FPS      float64 // 0 when the container does not say
	Rate     string  // raw "num/den" string the FPS came from
	Duration time.Duration
}

type probeResult struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
	Streams []struct {
		CodecType    string `json:"codec_type"`
		Width        int    `json:"width"`
		Height       int    `json:"height"`
		AvgFrameRate string `json:"avg_frame_rate"`
		RFrameRate   string `json:"r_frame_rate"`
	} `json:"streams"`
}

// Probe reads the first video stream's metadata.
func Probe(ctx context.Context, ffprobe, path string) (*Info, error) {
	args := []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		"-select_streams", "v:0",
		path,
	}

	output, err := exec.CommandContext(ctx, ffprobe, args...).Output()
	if err != nil {
		return nil, fmt.Errorf("ffprobe failed: %w", err)
	}
	return parseProbe(output)
}

func parseProbe(output []byte) (*Info, error) {
	var probe probeResult
	if err := json.Unmarshal(output, &probe); err != nil {
		return nil, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}

	for _, stream := range probe.Streams {
		if stream.CodecType != "video" {
			continue
		}
		info := &Info{Width: stream.Width, Height: stream.Height}

		// avg_frame_rate is what players report; r_frame_rate is the fallback
		for _, rate := range []string{stream.AvgFrameRate, stream.RFrameRate} {
			if fps := ParseFrameRate(rate); fps > 0 {
				info.FPS, info.Rate = fps, rate
				break
			}
		}
		if dur, err := strconv.ParseFloat(probe.Format.Duration, 64); err == nil {
			info.Duration = time.Duration(dur * float64(time.Second))
		}
		return info, nil
	}
	return nil, fmt.Errorf("no video stream found")
}

// ParseFrameRate parses "30000/1001" or "25" into frames per second, 0 on failure.
func ParseFrameRate(s string) float64 {
	parts := strings.Split(s, "/")
	switch len(parts) {
	case 1:
		fps, err := strconv.ParseFloat(parts[0], 64)
		if err != nil || fps < 0 {
			return 0
		}
		return fps
	case 2:
		num, err1 := strconv.ParseFloat(parts[0], 64)
		den, err2 := strconv.ParseFloat(parts[1], 64)
		if err1 != nil || err2 != nil || den == 0 || num < 0 {
			return 0
		}
		return num / den
	default:
		return 0
	}
}
