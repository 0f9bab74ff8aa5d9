package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/recall/pkg/domain/model"
	"github.com/urfave/cli/v3"
)

func cmdHistory(cfg *appConfig) *cli.Command {
	list := func(ctx context.Context, c *cli.Command) error {
		x, err := cfg.build(ctx, false)
		if err != nil {
			return err
		}
		defer x.Close()

		captures, err := x.uc.History.List(ctx)
		if err != nil {
			return err
		}

		w := c.Root().Writer
		for _, capture := range captures {
			labelColor.Fprint(w, capture.ID)
			fmt.Fprintf(w, "  %s  answers=%d  %s\n",
				capture.CreatedAt().Format(time.DateTime),
				len(capture.Responses),
				summary(capture.OCRText, 60),
			)
		}
		return nil
	}

	return &cli.Command{
		Name:   "history",
		Usage:  "List or delete stored captures",
		Action: list,
		Commands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "List captures, newest first",
				Action: list,
			},
			{
				Name:      "delete",
				Usage:     "Delete a capture",
				ArgsUsage: "<id>",
				Action: func(ctx context.Context, c *cli.Command) error {
					id := c.Args().First()
					if id == "" {
						return goerr.New("capture id is required")
					}

					x, err := cfg.build(ctx, false)
					if err != nil {
						return err
					}
					defer x.Close()

					return x.uc.History.Delete(ctx, model.CaptureID(id))
				},
			},
		},
	}
}

func cmdModels(cfg *appConfig) *cli.Command {
	return &cli.Command{
		Name:  "models",
		Usage: "List models installed on the llm backend",
		Action: func(ctx context.Context, c *cli.Command) error {
			x, err := cfg.build(ctx, true)
			if err != nil {
				return err
			}
			defer x.Close()

			models, err := x.uc.Query.ListModels(ctx)
			if err != nil {
				return err
			}
			for _, name := range models {
				fmt.Fprintln(c.Root().Writer, name)
			}
			return nil
		},
	}
}

func cmdShortcuts() *cli.Command {
	return &cli.Command{
		Name:  "shortcuts",
		Usage: "List prompt shortcuts",
		Action: func(ctx context.Context, c *cli.Command) error {
			w := c.Root().Writer
			for _, s := range model.Shortcuts() {
				labelColor.Fprintf(w, "%-12s", s.Name)
				fmt.Fprintf(w, " %s\n", summary(s.Prompt, 80))
			}
			return nil
		},
	}
}
