package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/pelletier/go-toml/v2"
	"github.com/secmon-lab/recall/pkg/cli/config"
	"github.com/secmon-lab/recall/pkg/domain/model"
	"github.com/urfave/cli/v3"
)

func cmdSettings(cfg *appConfig) *cli.Command {
	return &cli.Command{
		Name:  "settings",
		Usage: "Show or change user settings",
		Commands: []*cli.Command{
			{
				Name:  "get",
				Usage: "Print the current settings as TOML",
				Action: func(ctx context.Context, c *cli.Command) error {
					store, err := cfg.settings.Configure()
					if err != nil {
						return err
					}

					data, err := toml.Marshal(store.Snapshot())
					if err != nil {
						return goerr.Wrap(err, "failed to encode settings")
					}
					labelColor.Fprintf(c.Root().Writer, "# %s\n", store.Path())
					fmt.Fprint(c.Root().Writer, string(data))
					return nil
				},
			},
			{
				Name:      "set",
				Usage:     "Change one setting (" + strings.Join(config.SettingKeys, ", ") + ")",
				ArgsUsage: "<key> <value>",
				Action: func(ctx context.Context, c *cli.Command) error {
					if c.Args().Len() != 2 {
						return goerr.New("usage: settings set <key> <value>")
					}
					key, value := c.Args().Get(0), c.Args().Get(1)

					// a smaller history limit prunes immediately, so the repository is needed
					x, err := cfg.build(ctx, false)
					if err != nil {
						return err
					}
					defer x.Close()

					if _, err := x.uc.Settings.Update(ctx, func(s *model.Settings) error {
						return config.ApplySetting(s, key, value)
					}); err != nil {
						return err
					}
					return nil
				},
			},
		},
	}
}
