package clipboard

import (
	"context"

	"github.com/atotto/clipboard"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/recall/pkg/domain/interfaces"
)

// System reads the OS clipboard
type System struct{}

var _ interfaces.TextSource = System{}

func New() System {
	return System{}
}

// Available reports whether a clipboard utility exists on this host
func (System) Available() bool {
	return !clipboard.Unsupported
}

func (System) ReadText(ctx context.Context) (string, error) {
	if clipboard.Unsupported {
		return "", goerr.New("clipboard is not supported on this host")
	}
	text, err := clipboard.ReadAll()
	if err != nil {
		return "", goerr.Wrap(err, "failed to read clipboard")
	}
	return text, nil
}
