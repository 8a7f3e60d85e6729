package api_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/carloslauriano/draftmail/api"
	"github.com/carloslauriano/draftmail/config"
	"github.com/carloslauriano/draftmail/draft"
	"github.com/carloslauriano/draftmail/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setup(t *testing.T, gen draft.Generator) *httptest.Server {
	t.Helper()

	store, err := storage.NewSQLiteStorage(&config.DatabaseConfig{Path: ":memory:"})
	require.NoError(t, err)
	require.NoError(t, store.Open(context.Background()))
	t.Cleanup(func() { store.Close() })

	return setupWithStore(t, store, gen)
}

func setupWithStore(t *testing.T, store storage.Storage, gen draft.Generator) *httptest.Server {
	t.Helper()

	h := api.NewHandler(store, gen, zap.NewNop())
	srv := httptest.NewServer(api.NewRouter(h, []string{"*"}))
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, srv *httptest.Server, method, path string, body any) (*http.Response, []byte) {
	t.Helper()

	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}

	req, err := http.NewRequest(method, srv.URL+path, r)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(data, &v), "body: %s", data)
	return v
}

func TestEmailLifecycle(t *testing.T) {
	srv := setup(t, draft.TemplateGenerator{})

	resp, body := do(t, srv, http.MethodPost, "/emails", map[string]string{
		"to": "a@b.com", "subject": "Hi", "body": "Hello",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	created := decode[map[string]any](t, body)
	require.NotNil(t, created["id"])
	assert.NotEmpty(t, created["createdAt"])
	id := int64(created["id"].(float64))

	resp, body = do(t, srv, http.MethodGet, fmt.Sprintf("/emails/%d", id), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[storage.Email](t, body)
	assert.Equal(t, "a@b.com", got.To)
	assert.Equal(t, "Hi", got.Subject)
	assert.Equal(t, "Hello", got.Body)

	resp, body = do(t, srv, http.MethodDelete, fmt.Sprintf("/emails/%d", id), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"deleted":true}`, string(body))

	resp, _ = do(t, srv, http.MethodGet, fmt.Sprintf("/emails/%d", id), nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = do(t, srv, http.MethodDelete, fmt.Sprintf("/emails/%d", id), nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCreateEmailMissingField(t *testing.T) {
	srv := setup(t, draft.TemplateGenerator{})

	resp, body := do(t, srv, http.MethodPost, "/emails", map[string]string{"subject": "Hi", "body": "Hello"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, string(body), "to is required")

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/emails", strings.NewReader("{not json"))
	require.NoError(t, err)
	raw, err := srv.Client().Do(req)
	require.NoError(t, err)
	raw.Body.Close()
	assert.Equal(t, http.StatusBadRequest, raw.StatusCode)
}

func TestUpdateEmailPartial(t *testing.T) {
	srv := setup(t, draft.TemplateGenerator{})

	_, body := do(t, srv, http.MethodPost, "/emails", map[string]string{
		"to": "a@x.com", "subject": "S", "body": "B",
	})
	created := decode[storage.Email](t, body)

	resp, body := do(t, srv, http.MethodPut, fmt.Sprintf("/emails/%d", created.ID), map[string]string{"subject": "S2"})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	updated := decode[storage.Email](t, body)
	assert.Equal(t, "a@x.com", updated.To)
	assert.Equal(t, "S2", updated.Subject)
	assert.Equal(t, "B", updated.Body)
	assert.NotNil(t, updated.UpdatedAt)

	resp, _ = do(t, srv, http.MethodPut, "/emails/9999", map[string]string{"subject": "x"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestListEmailsNewestFirst(t *testing.T) {
	srv := setup(t, draft.TemplateGenerator{})

	for _, s := range []string{"first", "second", "third"} {
		resp, _ := do(t, srv, http.MethodPost, "/emails", map[string]string{"to": "a@x.com", "subject": s, "body": "B"})
		require.Equal(t, http.StatusCreated, resp.StatusCode)
	}

	resp, body := do(t, srv, http.MethodGet, "/emails", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	emails := decode[[]storage.Email](t, body)
	require.Len(t, emails, 3)
	assert.Equal(t, "third", emails[0].Subject)
	assert.Equal(t, "first", emails[2].Subject)
}

func TestListEmailsEmptyIsArray(t *testing.T) {
	srv := setup(t, draft.TemplateGenerator{})

	_, body := do(t, srv, http.MethodGet, "/emails", nil)
	assert.JSONEq(t, `[]`, string(body))
}

func TestInvalidEmailID(t *testing.T) {
	srv := setup(t, draft.TemplateGenerator{})

	resp, _ := do(t, srv, http.MethodGet, "/emails/abc", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

// brokenStore falha em todas as operações
type brokenStore struct {
	storage.Storage
}

func (brokenStore) ListEmails(context.Context) ([]*storage.Email, error) {
	return nil, errors.New("disk on fire")
}

func TestListEmailsStoreFailure(t *testing.T) {
	srv := setupWithStore(t, brokenStore{}, draft.TemplateGenerator{})

	resp, body := do(t, srv, http.MethodGet, "/emails", nil)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.NotContains(t, string(body), "disk on fire")
}

func TestDraft(t *testing.T) {
	srv := setup(t, draft.TemplateGenerator{})

	resp, body := do(t, srv, http.MethodPost, "/ai/draft", map[string]any{
		"prompt":  "checking in on the proposal",
		"context": map[string]string{"recipient": "Ana", "unknown": "ignored"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	d := decode[draft.Draft](t, body)
	assert.Equal(t, draft.IntentFollowUp, d.Type)
	assert.Equal(t, "Following up: checking in on the proposal", d.Subject)

	resp, body = do(t, srv, http.MethodPost, "/ai/generate-email", map[string]any{"prompt": "selling our new widget"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, draft.IntentSales, decode[draft.Draft](t, body).Type)
}

func TestDraftEmptyPrompt(t *testing.T) {
	srv := setup(t, draft.TemplateGenerator{})

	resp, body := do(t, srv, http.MethodPost, "/ai/draft", map[string]string{"prompt": "   "})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, string(body), "prompt is required")
}

type failingGenerator struct{}

func (failingGenerator) Generate(context.Context, string, draft.Context) (draft.Draft, error) {
	return draft.Draft{}, &draft.GenerationError{Reason: "completion request failed", Err: errors.New("timeout")}
}

func TestDraftGenerationFailure(t *testing.T) {
	srv := setup(t, failingGenerator{})

	resp, body := do(t, srv, http.MethodPost, "/ai/draft", map[string]string{"prompt": "sell widgets"})
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.JSONEq(t, `{"error":"completion request failed"}`, string(body))
	assert.NotContains(t, string(body), "timeout")
}

func readEvents(t *testing.T, r io.Reader) [][2]string {
	t.Helper()

	var events [][2]string
	var name string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			events = append(events, [2]string{name, strings.TrimPrefix(line, "data: ")})
		}
	}
	require.NoError(t, scanner.Err())
	return events
}

func TestDraftStream(t *testing.T) {
	srv := setup(t, draft.TemplateGenerator{})

	q := url.Values{"prompt": {"follow up about the demo"}}
	resp, err := srv.Client().Get(srv.URL + "/ai/draft/stream?" + q.Encode())
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	events := readEvents(t, resp.Body)
	require.NotEmpty(t, events)

	assert.Equal(t, [2]string{"type", `{"type":"followup"}`}, events[0])
	assert.Equal(t, [2]string{"subject", "Following up: follow up about the demo"}, events[1])
	assert.Equal(t, [2]string{"body", "Hi there, just checking in on follow up about the demo."}, events[2])
	assert.Equal(t, [2]string{"done", "true"}, events[len(events)-1])

	var body []string
	for _, ev := range events {
		if ev[0] == "body" {
			body = append(body, ev[1])
		}
	}
	assert.Equal(t, []string{
		"Hi there, just checking in on follow up about the demo.",
		"Do you have a minute this week?",
		"Happy to share details or adjust timing.",
		"Thanks!",
	}, body)
}

func TestDraftStreamMissingPrompt(t *testing.T) {
	srv := setup(t, draft.TemplateGenerator{})

	resp, _ := do(t, srv, http.MethodGet, "/ai/draft/stream", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestPingAndCORS(t *testing.T) {
	srv := setup(t, draft.TemplateGenerator{})

	resp, body := do(t, srv, http.MethodGet, "/ping", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "pong\n", string(body))
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))

	resp, _ = do(t, srv, http.MethodOptions, "/emails", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Access-Control-Allow-Methods"), "PUT")
}
