package config

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/recall/pkg/domain/interfaces"
	"github.com/secmon-lab/recall/pkg/repository/memory"
	"github.com/secmon-lab/recall/pkg/repository/sqlite"
	"github.com/secmon-lab/recall/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

// Repository holds CLI flags for repository backend configuration
type Repository struct {
	backend    string
	sqlitePath string
}

// Flags returns CLI flags for repository configuration
func (r *Repository) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "repository-backend",
			Usage:       "Repository backend type (sqlite or memory)",
			Value:       "sqlite",
			Sources:     cli.EnvVars("RECALL_REPOSITORY_BACKEND"),
			Destination: &r.backend,
		},
		&cli.StringFlag{
			Name:        "sqlite-path",
			Usage:       "SQLite database file (default: <user config dir>/recall/recall.db)",
			Sources:     cli.EnvVars("RECALL_SQLITE_PATH"),
			Destination: &r.sqlitePath,
		},
	}
}

// LogAttrs returns log attributes for the repository configuration
func (r *Repository) LogAttrs() []slog.Attr {
	return []slog.Attr{
		slog.String("backend", r.backend),
		slog.String("sqlite_path", r.sqlitePath),
	}
}

// Backend returns the configured backend type
func (r *Repository) Backend() string {
	return r.backend
}

// Configure initializes and returns a repository based on the configured backend.
// The caller is responsible for calling Close() on the returned repository.
func (r *Repository) Configure(ctx context.Context) (interfaces.CaptureRepository, error) {
	switch r.backend {
	case "sqlite":
		path := r.sqlitePath
		if path == "" {
			p, err := defaultDataPath("recall.db")
			if err != nil {
				return nil, err
			}
			path = p
		}

		repo, err := sqlite.New(ctx, path)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to initialize sqlite repository")
		}
		logging.Default().Info("Using SQLite repository", "path", path)
		return repo, nil

	case "memory":
		logging.Default().Info("Using in-memory repository (captures are lost on exit)")
		return memory.New(), nil

	default:
		return nil, goerr.New("invalid repository backend", goerr.V("backend", r.backend))
	}
}

// defaultDataPath returns name inside the per-user recall directory, creating the directory
func defaultDataPath(name string) (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", goerr.Wrap(err, "failed to resolve user config directory")
	}
	dir := filepath.Join(base, "recall")
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", goerr.Wrap(err, "failed to create data directory", goerr.V("dir", dir))
	}
	return filepath.Join(dir, name), nil
}
