package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/recall/pkg/domain/model"
	"github.com/secmon-lab/recall/pkg/service/screen"
	"github.com/secmon-lab/recall/pkg/usecase"
	"github.com/urfave/cli/v3"
)

func cmdCapture(cfg *appConfig) *cli.Command {
	var imagePath string
	var rectText string

	return &cli.Command{
		Name:  "capture",
		Usage: "Extract text from a screenshot and store it as a capture",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "image",
				Aliases:     []string{"i"},
				Usage:       "Screenshot image file",
				Required:    true,
				Destination: &imagePath,
			},
			&cli.StringFlag{
				Name:        "rect",
				Usage:       "Region to crop as x,y,w,h",
				Destination: &rectText,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			var rect screen.Rect
			if rectText != "" {
				r, err := screen.ParseRect(rectText)
				if err != nil {
					return err
				}
				rect = r
			}

			x, err := cfg.build(ctx, true)
			if err != nil {
				return err
			}
			defer x.Close()

			session, err := x.uc.Capture.CaptureRegion(ctx, screen.NewFileSource(imagePath), rect)
			if err != nil {
				return err
			}

			w := c.Root().Writer
			labelColor.Fprintln(w, session.ID)
			fmt.Fprintln(w, session.OCRText)
			return nil
		},
	}
}

func cmdQuery(cfg *appConfig) *cli.Command {
	var id string
	var modelName string
	var think bool

	return &cli.Command{
		Name:      "query",
		Aliases:   []string{"q"},
		Usage:     "Stream an answer about a capture",
		ArgsUsage: "<prompt or shortcut name>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "id",
				Usage:       "Capture ID",
				Required:    true,
				Destination: &id,
			},
			&cli.StringFlag{
				Name:        "model",
				Aliases:     []string{"m"},
				Usage:       "Answer model (default: answer_model setting)",
				Destination: &modelName,
			},
			&cli.BoolFlag{
				Name:        "think",
				Usage:       "Show model reasoning (default: think setting)",
				Destination: &think,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			x, err := cfg.build(ctx, true)
			if err != nil {
				return err
			}
			defer x.Close()

			input := usecase.QueryInput{
				Prompt: strings.Join(c.Args().Slice(), " "),
				Model:  modelName,
			}
			if c.IsSet("think") {
				input.Think = &think
			}

			// interrupting ends the stream early; the partial answer is still saved
			ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
			defer stop()

			events, err := x.uc.Query.Stream(ctx, &model.Session{ID: model.CaptureID(id)}, input)
			if err != nil {
				return err
			}
			_, err = renderStream(c.Root().Writer, c.Root().ErrWriter, events)
			return err
		},
	}
}

func cmdAsk(cfg *appConfig) *cli.Command {
	var id string

	return &cli.Command{
		Name:      "ask",
		Usage:     "Ask a one-off question about a capture",
		ArgsUsage: "<question>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "id",
				Usage:       "Capture ID",
				Required:    true,
				Destination: &id,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			x, err := cfg.build(ctx, true)
			if err != nil {
				return err
			}
			defer x.Close()

			answer, err := x.uc.Query.Ask(ctx, model.CaptureID(id), strings.Join(c.Args().Slice(), " "))
			if err != nil {
				return err
			}
			fmt.Fprintln(c.Root().Writer, answer)
			return nil
		},
	}
}

func cmdSearch(cfg *appConfig) *cli.Command {
	var k int

	return &cli.Command{
		Name:      "search",
		Usage:     "Answer a question from the most similar captures",
		ArgsUsage: "<question>",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:        "k",
				Usage:       "Number of captures to use",
				Value:       usecase.DefaultSearchLimit,
				Destination: &k,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			question := strings.Join(c.Args().Slice(), " ")
			if strings.TrimSpace(question) == "" {
				return goerr.New("question is required")
			}

			x, err := cfg.build(ctx, true)
			if err != nil {
				return err
			}
			defer x.Close()

			events, err := x.uc.Query.Search(ctx, question, k)
			if err != nil {
				return err
			}

			done, err := renderStream(c.Root().Writer, c.Root().ErrWriter, events)
			if done != nil {
				renderMatches(c.Root().Writer, done.Matches)
			}
			return err
		},
	}
}
