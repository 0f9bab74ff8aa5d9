package worker

import (
	"context"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/recall/pkg/domain/interfaces"
	"github.com/secmon-lab/recall/pkg/domain/model"
	"github.com/secmon-lab/recall/pkg/utils/errutil"
	"github.com/secmon-lab/recall/pkg/utils/logging"
)

// DefaultClipboardInterval is the polling interval of ClipboardIngestWorker
const DefaultClipboardInterval = time.Second

// TextIngestor stores text as a new capture
type TextIngestor interface {
	IngestText(ctx context.Context, text string) (*model.Capture, error)
}

// AnswerSaver appends an answer to a capture and refreshes its embedding
type AnswerSaver interface {
	SaveAnswer(ctx context.Context, id model.CaptureID, answer string) error
}

// ClipboardIngestWorker polls a text source and stores every new value as a
// capture while clipboard monitoring is enabled in the settings.
//
// Only one poll runs at a time, so "last seen" needs no lock.
type ClipboardIngestWorker struct {
	source   interfaces.TextSource
	settings interfaces.SettingsProvider
	ingestor TextIngestor
	saver    AnswerSaver
	interval time.Duration
	stopCh   chan struct{}
	doneCh   chan struct{}

	lastSeen string
}

// NewClipboardIngestWorker creates a new worker. interval <= 0 uses DefaultClipboardInterval.
func NewClipboardIngestWorker(source interfaces.TextSource, settings interfaces.SettingsProvider, ingestor TextIngestor, saver AnswerSaver, interval time.Duration) *ClipboardIngestWorker {
	if interval <= 0 {
		interval = DefaultClipboardInterval
	}
	return &ClipboardIngestWorker{
		source:   source,
		settings: settings,
		ingestor: ingestor,
		saver:    saver,
		interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start begins the polling loop in a background goroutine. Whatever the
// source holds at start is treated as already seen.
func (w *ClipboardIngestWorker) Start(ctx context.Context) error {
	logging.Default().Info("Clipboard ingest worker starting",
		"interval", w.interval.String())

	w.seed(ctx)
	go w.run(ctx)

	return nil
}

// Stop signals the worker to stop and waits for completion
func (w *ClipboardIngestWorker) Stop() {
	logging.Default().Info("Clipboard ingest worker stopping")
	close(w.stopCh)
	<-w.doneCh
	logging.Default().Info("Clipboard ingest worker stopped")
}

// Done is closed when the polling loop has exited
func (w *ClipboardIngestWorker) Done() <-chan struct{} {
	return w.doneCh
}

func (w *ClipboardIngestWorker) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := w.poll(ctx); err != nil {
				_ = errutil.Handle(ctx, err, "Clipboard ingest failed (will retry next interval)")
			}

		case <-w.stopCh:
			return

		case <-ctx.Done():
			logging.Default().Info("Clipboard ingest worker context cancelled")
			return
		}
	}
}

func (w *ClipboardIngestWorker) seed(ctx context.Context) {
	text, err := w.source.ReadText(ctx)
	if err != nil {
		logging.From(ctx).Debug("failed to read initial clipboard value", "error", err)
		return
	}
	w.lastSeen = text
}

// poll runs one cycle: read, compare with last seen, and ingest when enabled
func (w *ClipboardIngestWorker) poll(ctx context.Context) error {
	text, err := w.source.ReadText(ctx)
	if err != nil {
		// an empty or non-text clipboard is not worth an error log every second
		logging.From(ctx).Debug("failed to read clipboard", "error", err)
		return nil
	}

	if text == w.lastSeen || strings.TrimSpace(text) == "" {
		return nil
	}
	w.lastSeen = text

	settings := w.settings.Snapshot()
	if !settings.ClipboardMonitoring {
		return nil
	}

	capture, err := w.ingestor.IngestText(ctx, text)
	if err != nil {
		return goerr.Wrap(err, "failed to store clipboard text")
	}

	// an empty answer makes the capture searchable right away
	if err := w.saver.SaveAnswer(ctx, capture.ID, ""); err != nil {
		return goerr.Wrap(err, "failed to embed clipboard capture", goerr.V(model.CaptureIDKey, capture.ID))
	}

	logging.From(ctx).Info("clipboard text captured",
		model.CaptureIDKey, capture.ID,
		"text_length", len(text),
	)
	return nil
}
