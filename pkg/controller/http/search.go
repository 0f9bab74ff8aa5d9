package http

import (
	"io"
	"net/http"

	"github.com/secmon-lab/recall/pkg/domain/model"
)

type searchRequest struct {
	Question string `json:"question"`
	// K is the number of captures used as context. 0 uses the default.
	K int `json:"k,omitempty"`
}

func (s *Server) search(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := decodeJSON(r, &req); err != nil {
		handleError(w, r, err)
		return
	}

	events, err := s.uc.Query.Search(r.Context(), req.Question, req.K)
	if err != nil {
		handleError(w, r, err)
		return
	}

	streamEvents(w, r, events)
}

func (s *Server) listModels(w http.ResponseWriter, r *http.Request) {
	models, err := s.uc.Query.ListModels(r.Context())
	if err != nil {
		handleError(w, r, err)
		return
	}
	if models == nil {
		models = []string{}
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"models": models})
}

func (s *Server) listShortcuts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]any{"shortcuts": model.Shortcuts()})
}

func (s *Server) getSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, s.uc.Settings.Get())
}

// putSettings applies the fields present in the body over the current settings
func (s *Server) putSettings(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		handleError(w, r, badRequest(err, "failed to read request body"))
		return
	}

	saved, err := s.uc.Settings.Update(r.Context(), func(next *model.Settings) error {
		return decodeJSONBytes(body, next)
	})
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, saved)
}
