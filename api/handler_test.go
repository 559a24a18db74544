package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"ollamachat/api"
	"ollamachat/chat"
	"ollamachat/config"
	"ollamachat/domain"
	"ollamachat/policy"
	"ollamachat/tests/helpers"
)

// fakeProvider scripts provider behavior for handler tests.
type fakeProvider struct {
	chunks  []string
	models  []domain.ModelInfo
	pulls   []string
	deleted []string
}

func (p *fakeProvider) ChatStream(ctx context.Context, model string, messages []domain.Message, options map[string]any) (<-chan domain.StreamResponse, error) {
	ch := make(chan domain.StreamResponse)
	go func() {
		defer close(ch)
		for _, content := range p.chunks {
			select {
			case ch <- domain.StreamResponse{Content: content}:
			case <-ctx.Done():
				return
			}
		}
		select {
		case ch <- domain.StreamResponse{Done: true}:
		case <-ctx.Done():
		}
	}()
	return ch, nil
}

func (p *fakeProvider) ListModels(ctx context.Context) ([]domain.ModelInfo, error) {
	return p.models, nil
}

func (p *fakeProvider) PullModel(ctx context.Context, name string) (<-chan domain.PullProgress, error) {
	ch := make(chan domain.PullProgress)
	go func() {
		defer close(ch)
		for _, record := range p.pulls {
			ch <- domain.PullProgress(record)
		}
	}()
	return ch, nil
}

func (p *fakeProvider) DeleteModel(ctx context.Context, name string) error {
	p.deleted = append(p.deleted, name)
	return nil
}

func newTestHandler(t *testing.T, provider *fakeProvider) (*api.Handler, *chat.Service) {
	t.Helper()
	st := helpers.NewTestSQLiteStore(t)

	policyEngine, err := policy.NewEngine(context.Background(), policy.DefaultPolicy)
	require.NoError(t, err)

	cfg := &config.Config{DefaultModel: "llama2"}
	svc := chat.New(st, provider, cfg.DefaultModel, zap.NewNop())
	return api.NewHandler(svc, policyEngine, cfg, zap.NewNop()), svc
}

func TestSessionLifecycle(t *testing.T) {
	e := echo.New()
	h, _ := newTestHandler(t, &fakeProvider{})

	// Create
	req := httptest.NewRequest(http.MethodPost, "/api/sessions", strings.NewReader(`{"model_name":"mistral"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	require.NoError(t, h.CreateSession(e.NewContext(req, rec)))
	require.Equal(t, http.StatusCreated, rec.Code)

	var created domain.ChatSession
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "New Chat", created.Title)
	assert.Equal(t, "mistral", created.ModelName)

	// List
	req = httptest.NewRequest(http.MethodGet, "/api/sessions", nil)
	rec = httptest.NewRecorder()
	require.NoError(t, h.ListSessions(e.NewContext(req, rec)))
	require.Equal(t, http.StatusOK, rec.Code)

	var listResp struct {
		Sessions []domain.ChatSession `json:"sessions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listResp))
	require.Len(t, listResp.Sessions, 1)
	assert.Empty(t, listResp.Sessions[0].Messages)

	// Rename
	req = httptest.NewRequest(http.MethodPatch, "/api/sessions/"+created.ID, strings.NewReader(`{"title":"Renamed"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec = httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(created.ID)
	require.NoError(t, h.RenameSession(c))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	// Get
	req = httptest.NewRequest(http.MethodGet, "/api/sessions/"+created.ID, nil)
	rec = httptest.NewRecorder()
	c = e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(created.ID)
	require.NoError(t, h.GetSession(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var fetched domain.ChatSession
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &fetched))
	assert.Equal(t, "Renamed", fetched.Title)

	// Delete
	req = httptest.NewRequest(http.MethodDelete, "/api/sessions/"+created.ID, nil)
	rec = httptest.NewRecorder()
	c = e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(created.ID)
	require.NoError(t, h.DeleteSession(c))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	// Gone
	req = httptest.NewRequest(http.MethodGet, "/api/sessions/"+created.ID, nil)
	rec = httptest.NewRecorder()
	c = e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(created.ID)
	require.NoError(t, h.GetSession(c))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetSessionNotFound(t *testing.T) {
	e := echo.New()
	h, _ := newTestHandler(t, &fakeProvider{})

	req := httptest.NewRequest(http.MethodGet, "/api/sessions/nope", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues("nope")

	require.NoError(t, h.GetSession(c))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStreamChatEndpoint(t *testing.T) {
	e := echo.New()
	provider := &fakeProvider{chunks: []string{"Hi", " there", "!"}}
	h, svc := newTestHandler(t, provider)

	session, err := svc.NewSession(context.Background(), "")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/sessions/"+session.ID+"/chat", strings.NewReader(`{"content":"Hello"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(session.ID)

	require.NoError(t, h.StreamChat(c))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	body := rec.Body.String()
	assert.Contains(t, body, `data: {"content":"Hi"}`)
	assert.Contains(t, body, `data: {"content":" there"}`)
	assert.Contains(t, body, `data: {"content":"!"}`)
	assert.Contains(t, body, "data: [DONE]")

	got, err := svc.GetSession(context.Background(), session.ID)
	require.NoError(t, err)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "Hi there!", got.Messages[1].Content)
	assert.Equal(t, "Hello", got.Title)
}

func TestStreamChatRequiresContent(t *testing.T) {
	e := echo.New()
	h, _ := newTestHandler(t, &fakeProvider{})

	req := httptest.NewRequest(http.MethodPost, "/api/sessions/s1/chat", strings.NewReader(`{}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues("s1")

	require.NoError(t, h.StreamChat(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListModelsEndpoint(t *testing.T) {
	e := echo.New()
	provider := &fakeProvider{models: []domain.ModelInfo{{Name: "llama2", Size: 42}}}
	h, _ := newTestHandler(t, provider)

	req := httptest.NewRequest(http.MethodGet, "/api/models", nil)
	rec := httptest.NewRecorder()
	require.NoError(t, h.ListModels(e.NewContext(req, rec)))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Models []domain.ModelInfo `json:"models"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Models, 1)
	assert.Equal(t, "llama2", resp.Models[0].Name)
}

func TestPullModelEndpoint(t *testing.T) {
	e := echo.New()
	provider := &fakeProvider{pulls: []string{`{"status":"pulling"}`, `{"status":"success"}`}}
	h, _ := newTestHandler(t, provider)

	req := httptest.NewRequest(http.MethodPost, "/api/models/pull", strings.NewReader(`{"name":"mistral"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	require.NoError(t, h.PullModel(e.NewContext(req, rec)))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Equal(t, "{\"status\":\"pulling\"}\n{\"status\":\"success\"}\n", body)
}

func TestDeleteModelPolicy(t *testing.T) {
	e := echo.New()
	provider := &fakeProvider{}
	h, _ := newTestHandler(t, provider)

	// Deleting the configured default model is blocked.
	req := httptest.NewRequest(http.MethodDelete, "/api/models/llama2", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("name")
	c.SetParamValues("llama2")
	require.NoError(t, h.DeleteModel(c))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Empty(t, provider.deleted)

	// Any other model goes through.
	req = httptest.NewRequest(http.MethodDelete, "/api/models/mistral", nil)
	rec = httptest.NewRecorder()
	c = e.NewContext(req, rec)
	c.SetParamNames("name")
	c.SetParamValues("mistral")
	require.NoError(t, h.DeleteModel(c))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []string{"mistral"}, provider.deleted)
}

func TestHealth(t *testing.T) {
	e := echo.New()
	h, _ := newTestHandler(t, &fakeProvider{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	require.NoError(t, h.Health(e.NewContext(req, rec)))
	assert.Equal(t, http.StatusOK, rec.Code)
}
