package cli

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/recall/pkg/cli/config"
	"github.com/secmon-lab/recall/pkg/domain/interfaces"
	"github.com/secmon-lab/recall/pkg/service/embedding"
	"github.com/secmon-lab/recall/pkg/service/extractor"
	"github.com/secmon-lab/recall/pkg/service/ocr"
	"github.com/secmon-lab/recall/pkg/usecase"
	"github.com/secmon-lab/recall/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

// appConfig groups the flags every command that touches captures shares
type appConfig struct {
	repo     config.Repository
	backend  config.Backend
	settings config.Settings
}

func (a *appConfig) Flags() []cli.Flag {
	var flags []cli.Flag
	flags = append(flags, a.repo.Flags()...)
	flags = append(flags, a.backend.Flags()...)
	flags = append(flags, a.settings.Flags()...)
	return flags
}

// app is the wired set of components a command runs against
type app struct {
	uc       *usecase.UseCases
	repo     interfaces.CaptureRepository
	settings *config.SettingsStore
	// nil when the command was built without a backend
	backend interfaces.Backend
}

// build wires repository, settings and, if withBackend is set, the
// generation backend with extraction and search on top of it.
func (a *appConfig) build(ctx context.Context, withBackend bool, opts ...usecase.Option) (*app, error) {
	settings, err := a.settings.Configure()
	if err != nil {
		return nil, goerr.Wrap(err, "failed to load settings")
	}

	repo, err := a.repo.Configure(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to initialize repository")
	}

	x := &app{
		repo:     repo,
		settings: settings,
	}

	if withBackend {
		backend, err := a.backend.Configure(ctx)
		if err != nil {
			x.Close()
			return nil, goerr.Wrap(err, "failed to configure llm backend")
		}
		x.backend = backend

		index := embedding.New(repo, backend, embedding.WithTimeout(a.backend.EmbeddingTimeout()))
		opts = append([]usecase.Option{
			usecase.WithExtractor(extractor.New(backend, backend, ocr.New())),
			usecase.WithGenerator(backend),
			usecase.WithModelCatalog(backend),
			usecase.WithIndex(index),
			usecase.WithGenerationTimeout(a.backend.GenerationTimeout()),
		}, opts...)
	}

	x.uc = usecase.New(repo, settings, opts...)
	return x, nil
}

func (x *app) Close() {
	if err := x.repo.Close(); err != nil {
		logging.Default().Error("failed to close repository", "error", err.Error())
	}
}
