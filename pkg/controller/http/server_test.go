package http_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/recall/pkg/cli/config"
	httpctrl "github.com/secmon-lab/recall/pkg/controller/http"
	"github.com/secmon-lab/recall/pkg/domain/interfaces"
	"github.com/secmon-lab/recall/pkg/domain/model"
	"github.com/secmon-lab/recall/pkg/domain/types"
	"github.com/secmon-lab/recall/pkg/repository/memory"
	"github.com/secmon-lab/recall/pkg/service/embedding"
	"github.com/secmon-lab/recall/pkg/service/extractor"
	"github.com/secmon-lab/recall/pkg/usecase"
)

type stubExtractor struct{}

func (stubExtractor) Extract(ctx context.Context, input extractor.Input) (string, error) {
	return "fatal: not a git repository", nil
}

// stubBackend answers every request with a fixed token sequence
type stubBackend struct{}

func (stubBackend) Stream(ctx context.Context, req interfaces.GenerateRequest) (<-chan model.Chunk, error) {
	ch := make(chan model.Chunk)
	go func() {
		defer close(ch)
		for _, c := range []model.Chunk{{Thinking: "checking"}, {Message: "Run "}, {Message: "git init."}} {
			select {
			case ch <- c:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

func (stubBackend) Generate(ctx context.Context, req interfaces.GenerateRequest) (string, error) {
	return "Run git init.", nil
}

func (stubBackend) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{1, 0}, nil
}

func (stubBackend) ListModels(ctx context.Context) ([]string, error) {
	return []string{"llama3.2:latest"}, nil
}

func (stubBackend) SupportsThinking(ctx context.Context, name string) (bool, error) {
	return true, nil
}

func (stubBackend) ReadImage(ctx context.Context, name, prompt string, image []byte) (string, error) {
	return "", nil
}

var _ interfaces.Backend = stubBackend{}

func newTestServer(t *testing.T) (*httptest.Server, *memory.CaptureRepository) {
	t.Helper()

	repo := memory.New()
	settings, err := config.NewSettingsStore(filepath.Join(t.TempDir(), "settings.toml"))
	gt.NoError(t, err).Required()

	backend := stubBackend{}
	uc := usecase.New(repo, settings,
		usecase.WithExtractor(stubExtractor{}),
		usecase.WithGenerator(backend),
		usecase.WithModelCatalog(backend),
		usecase.WithIndex(embedding.New(repo, backend)),
	)

	srv := httptest.NewServer(httpctrl.New(uc))
	t.Cleanup(srv.Close)
	return srv, repo
}

func pngBody(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	gt.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, 40, 30)))).Required()
	return &buf
}

func postCapture(t *testing.T, srv *httptest.Server) *model.Session {
	t.Helper()
	resp, err := http.Post(srv.URL+"/api/captures", "image/png", pngBody(t))
	gt.NoError(t, err).Required()
	defer resp.Body.Close()
	gt.Value(t, resp.StatusCode).Equal(http.StatusCreated)

	var session model.Session
	gt.NoError(t, json.NewDecoder(resp.Body).Decode(&session)).Required()
	return &session
}

type sseEvent struct {
	name string
	data model.StreamEvent
}

func readSSE(t *testing.T, resp *http.Response) []sseEvent {
	t.Helper()
	var events []sseEvent
	var current sseEvent

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			current.name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			gt.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &current.data)).Required()
		case line == "":
			events = append(events, current)
			current = sseEvent{}
		}
	}
	return events
}

func TestCaptureAndQuery(t *testing.T) {
	srv, repo := newTestServer(t)
	session := postCapture(t, srv)
	gt.Value(t, session.OCRText).Equal("fatal: not a git repository")

	resp, err := http.Post(srv.URL+"/api/captures/"+session.ID.String()+"/query", "application/json",
		strings.NewReader(`{"prompt":"how do I fix this?","think":true}`))
	gt.NoError(t, err).Required()
	defer resp.Body.Close()
	gt.Value(t, resp.StatusCode).Equal(http.StatusOK)
	gt.Value(t, resp.Header.Get("Content-Type")).Equal("text/event-stream")

	events := readSSE(t, resp)
	gt.Array(t, events).Length(4).Required()
	gt.Value(t, events[0].name).Equal("thinking")
	gt.Value(t, events[1].name).Equal("message")
	gt.Value(t, events[2].data.Text).Equal("git init.")
	gt.Value(t, events[3].name).Equal("done")
	gt.Value(t, events[3].data.Kind).Equal(types.EventDone)

	stored, err := repo.Get(context.Background(), session.ID)
	gt.NoError(t, err).Required()
	gt.Value(t, stored.Responses).Equal([]string{"Run git init."})
}

func TestCaptureRectValidation(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Post(srv.URL+"/api/captures?rect=1,2,3", "image/png", pngBody(t))
	gt.NoError(t, err).Required()
	resp.Body.Close()
	gt.Value(t, resp.StatusCode).Equal(http.StatusBadRequest)

	resp, err = http.Post(srv.URL+"/api/captures?rect=0,0,10,10", "image/png", pngBody(t))
	gt.NoError(t, err).Required()
	resp.Body.Close()
	gt.Value(t, resp.StatusCode).Equal(http.StatusCreated)

	resp, err = http.Post(srv.URL+"/api/captures", "image/png", strings.NewReader(""))
	gt.NoError(t, err).Required()
	resp.Body.Close()
	gt.Value(t, resp.StatusCode).Equal(http.StatusBadRequest)
}

func TestQueryErrors(t *testing.T) {
	srv, _ := newTestServer(t)
	session := postCapture(t, srv)

	tests := []struct {
		name   string
		path   string
		body   string
		status int
	}{
		{name: "unknown capture", path: "/api/captures/missing/query", body: `{"prompt":"q"}`, status: http.StatusNotFound},
		{name: "model not installed", path: "/api/captures/" + session.ID.String() + "/query", body: `{"prompt":"q","model":"mistral"}`, status: http.StatusUnprocessableEntity},
		{name: "empty prompt", path: "/api/captures/" + session.ID.String() + "/query", body: `{"prompt":""}`, status: http.StatusBadRequest},
		{name: "broken body", path: "/api/captures/" + session.ID.String() + "/query", body: `{`, status: http.StatusBadRequest},
		{name: "ask unknown capture", path: "/api/captures/missing/ask", body: `{"question":"q"}`, status: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Post(srv.URL+tt.path, "application/json", strings.NewReader(tt.body))
			gt.NoError(t, err).Required()
			resp.Body.Close()
			gt.Value(t, resp.StatusCode).Equal(tt.status)
		})
	}
}

func TestAskAndHistory(t *testing.T) {
	srv, _ := newTestServer(t)
	session := postCapture(t, srv)

	resp, err := http.Post(srv.URL+"/api/captures/"+session.ID.String()+"/ask", "application/json",
		strings.NewReader(`{"question":"Explain"}`))
	gt.NoError(t, err).Required()
	var ask struct {
		Answer string `json:"answer"`
	}
	gt.NoError(t, json.NewDecoder(resp.Body).Decode(&ask)).Required()
	resp.Body.Close()
	gt.Value(t, ask.Answer).Equal("Run git init.")

	resp, err = http.Get(srv.URL + "/api/captures/" + session.ID.String())
	gt.NoError(t, err).Required()
	var capture model.Capture
	gt.NoError(t, json.NewDecoder(resp.Body).Decode(&capture)).Required()
	resp.Body.Close()
	gt.Value(t, capture.Responses).Equal([]string{"Run git init."})

	resp, err = http.Get(srv.URL + "/api/captures")
	gt.NoError(t, err).Required()
	var list struct {
		Captures []*model.Capture `json:"captures"`
	}
	gt.NoError(t, json.NewDecoder(resp.Body).Decode(&list)).Required()
	resp.Body.Close()
	gt.Array(t, list.Captures).Length(1)

	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/api/captures/"+session.ID.String(), nil)
	gt.NoError(t, err).Required()
	resp, err = http.DefaultClient.Do(req)
	gt.NoError(t, err).Required()
	resp.Body.Close()
	gt.Value(t, resp.StatusCode).Equal(http.StatusNoContent)

	resp, err = http.Get(srv.URL + "/api/captures/" + session.ID.String())
	gt.NoError(t, err).Required()
	resp.Body.Close()
	gt.Value(t, resp.StatusCode).Equal(http.StatusNotFound)
}

func TestSearch(t *testing.T) {
	srv, _ := newTestServer(t)
	session := postCapture(t, srv)

	resp, err := http.Post(srv.URL+"/api/captures/"+session.ID.String()+"/ask", "application/json",
		strings.NewReader(`{"question":"what is this?"}`))
	gt.NoError(t, err).Required()
	resp.Body.Close()

	resp, err = http.Post(srv.URL+"/api/search", "application/json", strings.NewReader(`{"question":"git error","k":3}`))
	gt.NoError(t, err).Required()
	defer resp.Body.Close()

	events := readSSE(t, resp)
	gt.Array(t, events).Length(3).Required()
	done := events[2].data
	gt.Value(t, done.Kind).Equal(types.EventDone)
	gt.Value(t, done.Answer).Equal("Run git init.")
	gt.Array(t, done.Matches).Length(1).Required()
	gt.Value(t, done.Matches[0].Capture.ID).Equal(session.ID)
}

func TestSettingsAPI(t *testing.T) {
	srv, _ := newTestServer(t)

	put := func(body string) *http.Response {
		req, err := http.NewRequest(http.MethodPut, srv.URL+"/api/settings", strings.NewReader(body))
		gt.NoError(t, err).Required()
		resp, err := http.DefaultClient.Do(req)
		gt.NoError(t, err).Required()
		return resp
	}

	resp := put(`{"history_limit":10,"think":true}`)
	var saved model.Settings
	gt.NoError(t, json.NewDecoder(resp.Body).Decode(&saved)).Required()
	resp.Body.Close()
	gt.Value(t, resp.StatusCode).Equal(http.StatusOK)
	gt.Value(t, saved.HistoryLimit).Equal(10)
	gt.Value(t, saved.AnswerModel).Equal(model.DefaultAnswerModel)

	resp = put(`{"history_limit":-1}`)
	resp.Body.Close()
	gt.Value(t, resp.StatusCode).Equal(http.StatusBadRequest)

	resp = put(`{"language":"jpn"}`)
	resp.Body.Close()
	gt.Value(t, resp.StatusCode).Equal(http.StatusOK)

	resp = put(`{"history_limit":`)
	resp.Body.Close()
	gt.Value(t, resp.StatusCode).Equal(http.StatusBadRequest)

	resp, err := http.Get(srv.URL + "/api/settings")
	gt.NoError(t, err).Required()
	var got model.Settings
	gt.NoError(t, json.NewDecoder(resp.Body).Decode(&got)).Required()
	resp.Body.Close()
	gt.Value(t, got.HistoryLimit).Equal(10)
	gt.Bool(t, got.Think).True()
	gt.Value(t, got.Language).Equal("jpn")
}

func TestModelsAndShortcuts(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/models")
	gt.NoError(t, err).Required()
	var models struct {
		Models []string `json:"models"`
	}
	gt.NoError(t, json.NewDecoder(resp.Body).Decode(&models)).Required()
	resp.Body.Close()
	gt.Value(t, models.Models).Equal([]string{"llama3.2:latest"})

	resp, err = http.Get(srv.URL + "/api/shortcuts")
	gt.NoError(t, err).Required()
	var shortcuts struct {
		Shortcuts []model.Shortcut `json:"shortcuts"`
	}
	gt.NoError(t, json.NewDecoder(resp.Body).Decode(&shortcuts)).Required()
	resp.Body.Close()
	gt.Array(t, shortcuts.Shortcuts).Length(8)
}

func TestQueryStreamTerminates(t *testing.T) {
	srv, _ := newTestServer(t)
	session := postCapture(t, srv)

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Post(srv.URL+"/api/captures/"+session.ID.String()+"/query", "application/json",
		strings.NewReader(`{"prompt":"Summarize"}`))
	gt.NoError(t, err).Required()
	defer resp.Body.Close()
	events := readSSE(t, resp)
	gt.Value(t, events[len(events)-1].name).Equal("done")
}
