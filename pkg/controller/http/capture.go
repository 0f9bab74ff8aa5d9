package http

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/secmon-lab/recall/pkg/domain/model"
	"github.com/secmon-lab/recall/pkg/service/screen"
	"github.com/secmon-lab/recall/pkg/usecase"
)

func captureID(r *http.Request) model.CaptureID {
	return model.CaptureID(chi.URLParam(r, "id"))
}

// createCapture takes the raw image as the request body. The optional rect
// query parameter ("x,y,w,h") crops it first.
func (s *Server) createCapture(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxImageSize))
	if err != nil {
		handleError(w, r, badRequest(err, "failed to read image body"))
		return
	}

	var rect screen.Rect
	if v := r.URL.Query().Get("rect"); v != "" {
		parsed, err := screen.ParseRect(v)
		if err != nil {
			handleError(w, r, badRequest(err, "invalid rect"))
			return
		}
		rect = parsed
	}

	session, err := s.uc.Capture.Capture(r.Context(), usecase.CaptureInput{Image: data, Rect: rect})
	if err != nil {
		handleError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusCreated, session)
}

func (s *Server) listCaptures(w http.ResponseWriter, r *http.Request) {
	captures, err := s.uc.History.List(r.Context())
	if err != nil {
		handleError(w, r, err)
		return
	}
	if captures == nil {
		captures = []*model.Capture{}
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"captures": captures})
}

func (s *Server) getCapture(w http.ResponseWriter, r *http.Request) {
	capture, err := s.uc.History.Get(r.Context(), captureID(r))
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, capture)
}

func (s *Server) deleteCapture(w http.ResponseWriter, r *http.Request) {
	if err := s.uc.History.Delete(r.Context(), captureID(r)); err != nil {
		handleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type queryRequest struct {
	Prompt string `json:"prompt"`
	Model  string `json:"model,omitempty"`
	Think  *bool  `json:"think,omitempty"`
}

// queryCapture streams the answer for the capture as server-sent events
func (s *Server) queryCapture(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := decodeJSON(r, &req); err != nil {
		handleError(w, r, err)
		return
	}

	session := &model.Session{ID: captureID(r)}
	events, err := s.uc.Query.Stream(r.Context(), session, usecase.QueryInput{
		Prompt: req.Prompt,
		Model:  req.Model,
		Think:  req.Think,
	})
	if err != nil {
		handleError(w, r, err)
		return
	}

	streamEvents(w, r, events)
}

type askRequest struct {
	Question string `json:"question"`
}

type askResponse struct {
	Answer string `json:"answer"`
}

func (s *Server) askCapture(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := decodeJSON(r, &req); err != nil {
		handleError(w, r, err)
		return
	}

	answer, err := s.uc.Query.Ask(r.Context(), captureID(r), req.Question)
	if err != nil {
		handleError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, askResponse{Answer: answer})
}
