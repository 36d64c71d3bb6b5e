package cmd

import (
	"context"
	"time"

	"github.com/ankitprakashsharma/AI-Video-Creator/internal/extract"
	"github.com/ankitprakashsharma/AI-Video-Creator/internal/logging"
	"github.com/ankitprakashsharma/AI-Video-Creator/internal/scanner"
	"github.com/ankitprakashsharma/AI-Video-Creator/internal/server"
	"github.com/ankitprakashsharma/AI-Video-Creator/internal/utils"
	"github.com/ankitprakashsharma/AI-Video-Creator/internal/video"
	"github.com/spf13/cobra"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the timestamps API over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		if cmd.Flags().Changed("addr") {
			cfg.Server.Addr = serveAddr
		}

		factory, err := extract.NewFactory(cfg.Extractor)
		if err != nil {
			utils.ShowError("Invalid extractor configuration", err, nil)
			return err
		}

		log := logging.WithComponent("server")

		var serverOpts []server.Option
		if db, err := openStore(cmd.Context()); err != nil {
			log.Warn().Err(err).Msg("database unavailable, serving without the reference library")
		} else {
			serverOpts = append(serverOpts, server.WithLibrary(db, func(ctx context.Context, path string) ([]float64, error) {
				return embedReference(ctx, factory, path)
			}))
		}

		opener := video.NewOpener(cfg.Video)
		srv := server.New(cfg, func(opts scanner.Options) server.Runner {
			return scanner.New(opts, opener, factory, scanner.WithLogger(logging.WithComponent("scanner")))
		}, log, serverOpts...)

		errCh := make(chan error, 1)
		go func() { errCh <- srv.Start() }()

		select {
		case err := <-errCh:
			return err
		case <-cmd.Context().Done():
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "Listen address")
	rootCmd.AddCommand(serveCmd)
}
