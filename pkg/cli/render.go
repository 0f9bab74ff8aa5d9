package cli

import (
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/fatih/color"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/recall/pkg/domain/model"
	"github.com/secmon-lab/recall/pkg/domain/types"
)

var (
	thinkingColor = color.New(color.Faint)
	errorColor    = color.New(color.FgRed)
	labelColor    = color.New(color.FgCyan)
)

// renderStream prints events until the stream is closed and returns the
// done event. Reasoning is dimmed so the answer stands out.
func renderStream(w, errW io.Writer, events <-chan model.StreamEvent) (*model.StreamEvent, error) {
	var done *model.StreamEvent
	var streamErr string
	thinking := false

	for ev := range events {
		switch ev.Kind {
		case types.EventThinking:
			thinking = true
			thinkingColor.Fprint(w, ev.Text)
		case types.EventMessage:
			if thinking {
				fmt.Fprint(w, "\n\n")
				thinking = false
			}
			fmt.Fprint(w, ev.Text)
		case types.EventError:
			streamErr = ev.Error
			errorColor.Fprintf(errW, "\nerror: %s\n", ev.Error)
		case types.EventDone:
			fmt.Fprintln(w)
			done = &ev
		}
	}

	if streamErr != "" {
		return done, goerr.New("answer stream failed", goerr.V("error", streamErr))
	}
	return done, nil
}

func renderMatches(w io.Writer, matches []*model.Match) {
	if len(matches) == 0 {
		return
	}
	labelColor.Fprintln(w, "\nSources:")
	for _, m := range matches {
		fmt.Fprintf(w, "  %.3f  %s  %s\n", m.Score, m.Capture.ID, summary(m.Capture.OCRText, 60))
	}
}

// summary returns the first line of text cut to n runes
func summary(text string, n int) string {
	line, _, _ := strings.Cut(strings.TrimSpace(text), "\n")
	if utf8.RuneCountInString(line) <= n {
		return line
	}
	return string([]rune(line)[:n]) + "..."
}
