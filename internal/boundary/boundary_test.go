package boundary

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"consultd/internal/config"
	"consultd/internal/logging"
	"consultd/internal/orchestrator"
)

// testHarness bundles every fake so a test can mutate one and still pass
// the rest through unchanged.
type testHarness struct {
	cfg      *fakeConfig
	convs    *fakeConversations
	orch     *fakeOrchestrator
	provider *fakeCompleter
	ingester *fakeIngester
	retriever *fakeRetriever
	docs     *fakeDocuments
	watcher  *fakeWatcher
	embed    *fakeEmbed
	idle     *fakeIdleTimer
	hub      *fakeHub

	router http.Handler
}

func newHarness() *testHarness {
	h := &testHarness{
		cfg:       &fakeConfig{cfg: config.Defaults()},
		convs:     &fakeConversations{},
		orch: &fakeOrchestrator{result: &orchestrator.ConsultResult{
			ConversationID: "conv-1",
			Answer:         "the answer",
			Model:          "deepseek-chat",
			CanContinue:    true,
			MessageCount:   2,
		}},
		provider:  &fakeCompleter{},
		ingester:  &fakeIngester{},
		retriever: &fakeRetriever{},
		docs:      &fakeDocuments{},
		watcher:   &fakeWatcher{},
		embed:     &fakeEmbed{},
		idle:      &fakeIdleTimer{remaining: 1_800_000},
		hub:       &fakeHub{},
	}
	h.router = NewRouter(Deps{
		Config:        h.cfg,
		Conversations: h.convs,
		Orchestrator:  h.orch,
		Provider:      h.provider,
		Ingester:      h.ingester,
		Retriever:     h.retriever,
		Documents:     h.docs,
		Watcher:       h.watcher,
		Embed:         h.embed,
		EmbedURL:      "http://localhost:9000",
		Idle:          h.idle,
		Hub:           h.hub,
		Logger:        logging.NewLogger("boundary-test", logging.ERROR, io.Discard),
		Token:         testToken,
		StartedAt:     time.Now().Add(-time.Minute),
	})
	return h
}

func (h *testHarness) do(method, path string, body any) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			panic(err)
		}
		reader = strings.NewReader(string(data))
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("X-Daemon-Token", testToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	return rec
}

func (h *testHarness) doRaw(method, path string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, body)
	req.Header.Set("X-Daemon-Token", testToken)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	return rec
}

func (h *testHarness) doUnauthenticated(method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decoding response body %q: %v", rec.Body.String(), err)
	}
}
