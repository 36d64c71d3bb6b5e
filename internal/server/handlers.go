package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ankitprakashsharma/AI-Video-Creator/internal/scanner"
	"github.com/ankitprakashsharma/AI-Video-Creator/internal/store"
	"github.com/ankitprakashsharma/AI-Video-Creator/internal/types"
	"github.com/google/uuid"
)

type referenceJSON struct {
	Index     int    `json:"index"`
	Filename  string `json:"filename,omitempty"`
	LibraryID int64  `json:"library_id,omitempty"`
	Name      string `json:"name,omitempty"`
}

type libraryFaceJSON struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	SourcePath string    `json:"source_path"`
	Dim        int       `json:"dim"`
	CreatedAt  time.Time `json:"created_at,omitzero"`
}

func toLibraryFaceJSON(f store.LibraryFace) libraryFaceJSON {
	return libraryFaceJSON{ID: f.ID, Name: f.Name, SourcePath: f.SourcePath, Dim: f.Dim(), CreatedAt: f.CreatedAt}
}

type skippedJSON struct {
	Filename string `json:"filename"`
	Reason   string `json:"reason"`
}

type timestampsResponse struct {
	ScanID     uuid.UUID          `json:"scan_id"`
	FPS        float64            `json:"fps"`
	Stride     int                `json:"stride"`
	References []referenceJSON    `json:"references"`
	Skipped    []skippedJSON      `json:"skipped_references,omitempty"`
	Timestamps types.TimestampMap `json:"timestamps"`
	Stats      scanner.Stats      `json:"stats"`
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// timestamps accepts a multipart upload with one "video" file, any number of
// "references" files, "reference_ids" of library faces (repeatable or comma
// separated) and an optional "period", and returns the presence intervals.
func (s *Server) timestamps(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Server.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Server.MaxUploadBytes)
	}
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	videos := r.MultipartForm.File["video"]
	if len(videos) != 1 {
		respondError(w, http.StatusBadRequest, "exactly one video file is required")
		return
	}

	opts := scanner.OptionsFromConfig(s.cfg)
	if p := r.FormValue("period"); p != "" {
		period, err := strconv.ParseFloat(p, 64)
		if err != nil || period <= 0 {
			respondError(w, http.StatusBadRequest, "period must be a positive number of seconds")
			return
		}
		opts.Period = period
	}

	ids, err := parseReferenceIDs(r.MultipartForm.Value["reference_ids"])
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	known, ok := s.libraryReferences(w, r, ids)
	if !ok {
		return
	}

	dir, err := s.uploadDir()
	if err != nil {
		s.log.Error().Err(err).Msg("create upload dir")
		respondError(w, http.StatusInternalServerError, "failed to store upload")
		return
	}
	defer os.RemoveAll(dir)

	videoPath, err := saveUpload(videos[0], dir)
	if err != nil {
		s.log.Error().Err(err).Msg("save video upload")
		respondError(w, http.StatusInternalServerError, "failed to store upload")
		return
	}

	refHeaders := r.MultipartForm.File["references"]
	refPaths := make([]string, 0, len(refHeaders))
	originals := make(map[string]string, len(refHeaders))
	for _, fh := range refHeaders {
		path, err := saveUpload(fh, dir)
		if err != nil {
			s.log.Error().Err(err).Msg("save reference upload")
			respondError(w, http.StatusInternalServerError, "failed to store upload")
			return
		}
		refPaths = append(refPaths, path)
		originals[path] = filepath.Base(fh.Filename)
	}

	ctx := r.Context()
	if s.cfg.Server.ScanTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Server.ScanTimeout)
		defer cancel()
	}

	res, err := s.newRunner(opts).Run(ctx, scanner.Request{VideoPath: videoPath, ReferencePaths: refPaths, Known: known})
	if err != nil {
		switch {
		case errors.Is(err, types.ErrVideoOpen):
			respondError(w, http.StatusUnprocessableEntity, "video could not be opened")
		case errors.Is(err, context.DeadlineExceeded):
			respondError(w, http.StatusGatewayTimeout, "scan timed out")
		default:
			s.log.Error().Err(err).Msg("scan failed")
			respondError(w, http.StatusInternalServerError, "scan failed")
		}
		return
	}

	resp := timestampsResponse{
		ScanID:     res.ScanID,
		FPS:        res.FPS,
		Stride:     res.Stride,
		References: make([]referenceJSON, 0, len(res.References)),
		Timestamps: res.Timestamps,
		Stats:      res.Stats,
	}
	for _, ref := range res.References {
		if ref.LibraryID != 0 {
			resp.References = append(resp.References, referenceJSON{Index: ref.Index, LibraryID: ref.LibraryID, Name: ref.Path})
			continue
		}
		resp.References = append(resp.References, referenceJSON{Index: ref.Index, Filename: originals[ref.Path]})
	}
	for _, sk := range res.SkippedReferences {
		name, ok := originals[sk.Path]
		if !ok {
			name = sk.Path
		}
		resp.Skipped = append(resp.Skipped, skippedJSON{Filename: name, Reason: sk.Reason})
	}
	respondJSON(w, http.StatusOK, resp)
}

// parseReferenceIDs reads positive library ids from repeated or comma separated values.
func parseReferenceIDs(values []string) ([]int64, error) {
	var ids []int64
	for _, v := range values {
		for _, field := range strings.Split(v, ",") {
			field = strings.TrimSpace(field)
			if field == "" {
				continue
			}
			id, err := strconv.ParseInt(field, 10, 64)
			if err != nil || id <= 0 {
				return nil, fmt.Errorf("invalid reference id %q", field)
			}
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// libraryReferences resolves ids against the library, writing the error
// response itself when it returns false.
func (s *Server) libraryReferences(w http.ResponseWriter, r *http.Request, ids []int64) ([]types.ReferenceIdentity, bool) {
	if len(ids) == 0 {
		return nil, true
	}
	if s.library == nil {
		respondError(w, http.StatusServiceUnavailable, "reference library is not configured")
		return nil, false
	}

	faces, err := s.library.GetLibraryFaces(r.Context(), ids)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondError(w, http.StatusNotFound, err.Error())
			return nil, false
		}
		s.log.Error().Err(err).Msg("load library faces")
		respondError(w, http.StatusInternalServerError, "failed to load reference library")
		return nil, false
	}

	known := make([]types.ReferenceIdentity, 0, len(faces))
	for _, f := range faces {
		known = append(known, f.Reference())
	}
	return known, true
}

// addReference embeds the single face of a "file" upload and stores it in the
// reference library under "name" (default: the file name without extension).
func (s *Server) addReference(w http.ResponseWriter, r *http.Request) {
	if s.library == nil || s.embed == nil {
		respondError(w, http.StatusServiceUnavailable, "reference library is not configured")
		return
	}
	if s.cfg.Server.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Server.MaxUploadBytes)
	}
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	files := r.MultipartForm.File["file"]
	if len(files) != 1 {
		respondError(w, http.StatusBadRequest, "exactly one image file is required")
		return
	}
	filename := filepath.Base(files[0].Filename)
	name := strings.TrimSpace(r.FormValue("name"))
	if name == "" {
		name = strings.TrimSuffix(filename, filepath.Ext(filename))
	}

	dir, err := s.uploadDir()
	if err != nil {
		s.log.Error().Err(err).Msg("create upload dir")
		respondError(w, http.StatusInternalServerError, "failed to store upload")
		return
	}
	defer os.RemoveAll(dir)

	path, err := saveUpload(files[0], dir)
	if err != nil {
		s.log.Error().Err(err).Msg("save reference upload")
		respondError(w, http.StatusInternalServerError, "failed to store upload")
		return
	}

	embedding, err := s.embed(r.Context(), path)
	if err != nil {
		if errors.Is(err, types.ErrReferenceLoad) {
			s.log.Warn().Err(err).Str("file", filename).Msg("reference rejected")
			respondError(w, http.StatusUnprocessableEntity, "no usable face detected in the image")
			return
		}
		s.log.Error().Err(err).Msg("embed reference")
		respondError(w, http.StatusInternalServerError, "failed to embed reference")
		return
	}

	id, err := s.library.AddLibraryFace(r.Context(), name, filename, embedding)
	if err != nil {
		s.log.Error().Err(err).Msg("store library face")
		respondError(w, http.StatusInternalServerError, "failed to store reference")
		return
	}

	s.log.Info().Int64("id", id).Str("name", name).Int("dim", len(embedding)).Msg("reference added to library")
	respondJSON(w, http.StatusCreated, libraryFaceJSON{ID: id, Name: name, SourcePath: filename, Dim: len(embedding)})
}

func (s *Server) listReferences(w http.ResponseWriter, r *http.Request) {
	if s.library == nil {
		respondError(w, http.StatusServiceUnavailable, "reference library is not configured")
		return
	}
	faces, err := s.library.ListLibraryFaces(r.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("list library faces")
		respondError(w, http.StatusInternalServerError, "failed to list references")
		return
	}
	out := make([]libraryFaceJSON, 0, len(faces))
	for _, f := range faces {
		out = append(out, toLibraryFaceJSON(f))
	}
	respondJSON(w, http.StatusOK, out)
}

// uploadDir creates a fresh per-request directory under the upload root.
func (s *Server) uploadDir() (string, error) {
	dir := filepath.Join(s.cfg.UploadDir, uuid.NewString())
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	return dir, nil
}

// saveUpload copies one part into dir under a random name, keeping the extension.
func saveUpload(fh *multipart.FileHeader, dir string) (string, error) {
	src, err := fh.Open()
	if err != nil {
		return "", fmt.Errorf("open %s: %w", fh.Filename, err)
	}
	defer src.Close()

	ext := strings.ToLower(filepath.Ext(filepath.Base(fh.Filename)))
	path := filepath.Join(dir, uuid.NewString()+ext)
	out, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		return "", err
	}
	return path, out.Close()
}
