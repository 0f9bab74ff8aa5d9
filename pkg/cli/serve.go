package cli

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/m-mizutani/goerr/v2"
	httpctrl "github.com/secmon-lab/recall/pkg/controller/http"
	"github.com/secmon-lab/recall/pkg/domain/model"
	"github.com/secmon-lab/recall/pkg/service/clipboard"
	"github.com/secmon-lab/recall/pkg/service/worker"
	"github.com/secmon-lab/recall/pkg/usecase"
	"github.com/secmon-lab/recall/pkg/utils/logging"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func cmdServe(cfg *appConfig) *cli.Command {
	var addr string
	var clipboardInterval time.Duration
	var noClipboard bool
	var rejectBusy bool
	var promptTokenLimit int

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "addr",
			Usage:       "HTTP server address",
			Value:       httpctrl.DefaultAddr,
			Sources:     cli.EnvVars("RECALL_ADDR"),
			Destination: &addr,
		},
		&cli.DurationFlag{
			Name:        "clipboard-interval",
			Usage:       "Clipboard polling interval",
			Value:       worker.DefaultClipboardInterval,
			Category:    "Clipboard",
			Sources:     cli.EnvVars("RECALL_CLIPBOARD_INTERVAL"),
			Destination: &clipboardInterval,
		},
		&cli.BoolFlag{
			Name:        "no-clipboard",
			Usage:       "Do not start the clipboard worker",
			Category:    "Clipboard",
			Sources:     cli.EnvVars("RECALL_NO_CLIPBOARD"),
			Destination: &noClipboard,
		},
		&cli.BoolFlag{
			Name:        "reject-busy",
			Usage:       "Reject a query while another one streams for the same capture instead of replacing it",
			Sources:     cli.EnvVars("RECALL_REJECT_BUSY"),
			Destination: &rejectBusy,
		},
		&cli.IntFlag{
			Name:        "prompt-token-limit",
			Usage:       "Token budget for capture text placed in prompts (0 disables truncation)",
			Value:       usecase.DefaultPromptTokenLimit,
			Sources:     cli.EnvVars("RECALL_PROMPT_TOKEN_LIMIT"),
			Destination: &promptTokenLimit,
		},
	}

	return &cli.Command{
		Name:    "serve",
		Aliases: []string{"s"},
		Usage:   "Start the local HTTP API and the clipboard worker",
		Flags:   flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			opts := []usecase.Option{usecase.WithPromptTokenLimit(promptTokenLimit)}
			if rejectBusy {
				opts = append(opts, usecase.WithRejectBusy())
			}

			x, err := cfg.build(ctx, true, opts...)
			if err != nil {
				return err
			}
			defer x.Close()

			logging.Default().Info("Starting recall server",
				"addr", addr,
				slog.GroupAttrs("repository", cfg.repo.LogAttrs()...),
				slog.GroupAttrs("backend", cfg.backend.LogAttrs()...),
				slog.GroupAttrs("settings", cfg.settings.LogAttrs()...),
			)

			// the backend must answer before anything is served
			models, err := x.backend.ListModels(ctx)
			if err != nil {
				return goerr.Wrap(err, "llm backend is not reachable")
			}
			if name := cfg.backend.EmbeddingModel(); name != "" && !model.ContainsModel(models, name) {
				logging.Default().Warn("embedding model is not installed, search will fail until it is pulled",
					model.ModelKey, name)
			}

			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			server := &http.Server{
				Addr:              addr,
				Handler:           httpctrl.New(x.uc),
				ReadHeaderTimeout: 30 * time.Second,
			}

			eg, ctx := errgroup.WithContext(ctx)

			eg.Go(func() error {
				logging.Default().Info("Starting HTTP server", "addr", addr)
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return goerr.Wrap(err, "failed to start server", goerr.V("addr", addr))
				}
				return nil
			})

			eg.Go(func() error {
				<-ctx.Done()
				logging.Default().Info("Shutting down HTTP server")

				shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
				defer cancel()
				if err := server.Shutdown(shutdownCtx); err != nil {
					return goerr.Wrap(err, "failed to shutdown server gracefully")
				}
				return nil
			})

			eg.Go(func() error {
				return x.settings.Watch(ctx)
			})

			source := clipboard.New()
			switch {
			case noClipboard:
				logging.Default().Info("Clipboard worker disabled")
			case !source.Available():
				logging.Default().Warn("Clipboard is not supported on this host, clipboard worker disabled")
			default:
				w := worker.NewClipboardIngestWorker(source, x.settings, x.uc.Capture, x.uc.Query, clipboardInterval)
				if err := w.Start(ctx); err != nil {
					return goerr.Wrap(err, "failed to start clipboard worker")
				}
				eg.Go(func() error {
					<-ctx.Done()
					w.Stop()
					return nil
				})
			}

			if err := eg.Wait(); err != nil {
				return err
			}
			logging.Default().Info("Server shutdown completed")
			return nil
		},
	}
}
