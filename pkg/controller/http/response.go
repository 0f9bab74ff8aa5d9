package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/recall/pkg/domain/model"
	"github.com/secmon-lab/recall/pkg/usecase"
	"github.com/secmon-lab/recall/pkg/utils/errutil"
)

var errBadRequest = errors.New("bad request")

// statusOf maps an error to the HTTP status reported to the client
func statusOf(err error) int {
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, model.ErrInvalidSettings),
		errors.Is(err, usecase.ErrPromptRequired),
		errors.Is(err, usecase.ErrNoImage):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrCaptureNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrCaptureAlreadyExists),
		errors.Is(err, model.ErrSessionBusy):
		return http.StatusConflict
	case errors.Is(err, model.ErrModelNotFound):
		return http.StatusUnprocessableEntity
	case errors.Is(err, model.ErrOCRFailed),
		errors.Is(err, model.ErrStreamFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func handleError(w http.ResponseWriter, r *http.Request, err error) {
	errutil.HandleHTTP(r.Context(), w, err, statusOf(err))
}

func badRequest(err error, msg string) error {
	return goerr.Wrap(errors.Join(errBadRequest, err), msg)
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		errutil.HandleHTTP(r.Context(), w, goerr.Wrap(err, "failed to marshal response"), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data) //nolint:errcheck // header already committed
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return badRequest(err, "invalid JSON body")
	}
	return nil
}

// decodeJSONBytes decodes data over v, so fields absent from data keep the
// values v already had
func decodeJSONBytes(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return badRequest(err, "invalid JSON body")
	}
	return nil
}

// streamEvents writes events as server-sent events until the channel is
// closed. The event name is the event kind and the data is the JSON event.
func streamEvents(w http.ResponseWriter, r *http.Request, events <-chan model.StreamEvent) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		// drain so the producer can finish and save the answer
		for range events {
		}
		errutil.HandleHTTP(r.Context(), w, goerr.New("streaming is not supported by the response writer"), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for ev := range events {
		data, err := json.Marshal(ev)
		if err != nil {
			continue
		}
		if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Kind, data); err != nil {
			// client is gone; keep draining until the producer closes
			continue
		}
		flusher.Flush()
	}
}
