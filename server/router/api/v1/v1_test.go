package v1

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/stretchr/testify/require"

	"github.com/dealcoach/dealcoach/plugin/cache"
	"github.com/dealcoach/dealcoach/plugin/eventbus"
	"github.com/dealcoach/dealcoach/plugin/upstream"
	"github.com/dealcoach/dealcoach/server/auth"
	"github.com/dealcoach/dealcoach/server/profile"
	"github.com/dealcoach/dealcoach/server/scoring"
	"github.com/dealcoach/dealcoach/server/session"
	"github.com/dealcoach/dealcoach/store"
	"github.com/dealcoach/dealcoach/store/db/sqlite"
)

type testAPI struct {
	srv     *httptest.Server
	store   *store.Store
	bus     *eventbus.Bus
	profile *profile.Profile
}

// newTestAPI mounts the full v1 route set over a temp sqlite store and a
// fake provider whose scoring endpoint replies with scoringReply.
func newTestAPI(t *testing.T, scoringReply string, opts store.Options) *testAPI {
	t.Helper()

	providerMux := http.NewServeMux()
	providerMux.HandleFunc("/realtime", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("v=0 answer"))
	})
	providerMux.HandleFunc("/chat/completions", func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": scoringReply}},
			},
			"usage": map[string]any{"prompt_tokens": 10, "completion_tokens": 5},
		})
	})
	provider := httptest.NewServer(providerMux)
	t.Cleanup(provider.Close)

	driver, err := sqlite.NewDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	st := store.New(driver, opts)
	t.Cleanup(func() { st.Close() })

	p := &profile.Profile{
		Mode:     "dev",
		Secret:   "test-secret",
		CacheTTL: time.Minute,
	}
	client := upstream.NewClient(upstream.Config{Timeout: 5 * time.Second, MaxRetries: 1})
	bus := eventbus.New(0)
	tiered := cache.New(cache.NoopShared{}, time.Minute)
	orchestrator := session.NewOrchestrator(
		st,
		bus,
		upstream.NewRealtimeClient(client, provider.URL),
		scoring.NewEvaluator(upstream.NewCompletionClient(client, provider.URL), st),
		tiered,
		nil,
		session.Config{Credential: "sk-test", RealtimeModel: "rt-model", ScoringModel: "score-model"},
	)

	e := echo.New()
	NewAPIV1Service(p, st, bus, orchestrator, tiered, nil).Register(e)
	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)

	return &testAPI{srv: srv, store: st, bus: bus, profile: p}
}

func (a *testAPI) token(t *testing.T, userID int32, organizationID string) string {
	t.Helper()
	token, err := auth.NewAuthenticator(a.profile.Secret).SignToken(userID, organizationID, time.Hour)
	require.NoError(t, err)
	return token
}

func (a *testAPI) do(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		require.NoError(t, err)
	}
	req, err := http.NewRequest(method, a.srv.URL+path, bytes.NewReader(payload))
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (a *testAPI) startConversation(t *testing.T, token string) string {
	t.Helper()
	resp := a.do(t, http.MethodPost, "/api/v1/conversations", token, map[string]string{"sdp": "v=0 offer"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var decoded startSessionResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return decoded.UID
}

func TestRoutesRequireAuth(t *testing.T) {
	api := newTestAPI(t, "", store.Options{})

	resp := api.do(t, http.MethodGet, "/api/v1/conversations", "", nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = api.do(t, http.MethodGet, "/api/v1/analytics/summary", "garbage", nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestGetConversationOwnershipReadsAsNotFound(t *testing.T) {
	api := newTestAPI(t, "", store.Options{})
	uid := api.startConversation(t, api.token(t, 1, ""))

	// The owner sees it; another user and an unknown uid both read as 404.
	resp := api.do(t, http.MethodGet, "/api/v1/conversations/"+uid, api.token(t, 1, ""), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = api.do(t, http.MethodGet, "/api/v1/conversations/"+uid, api.token(t, 2, ""), nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = api.do(t, http.MethodGet, "/api/v1/conversations/nosuchid", api.token(t, 1, ""), nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestFinalizeWithoutTranscriptIsBadRequest(t *testing.T) {
	api := newTestAPI(t, "", store.Options{})
	token := api.token(t, 1, "")
	uid := api.startConversation(t, token)

	resp := api.do(t, http.MethodPost, "/api/v1/conversations/"+uid+"/finalize", token, map[string]string{})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestStartBlockedByQuotaIsTooManyRequests(t *testing.T) {
	api := newTestAPI(t, "", store.Options{DefaultQuotaLimit: 1, QuotaWindow: time.Hour})
	_, err := api.store.IncrementQuota(context.Background(), "acme", 1)
	require.NoError(t, err)

	resp := api.do(t, http.MethodPost, "/api/v1/conversations", api.token(t, 1, "acme"), map[string]string{"sdp": "v=0 offer"})
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}

func TestUnparseableScoringReplyIsBadGateway(t *testing.T) {
	api := newTestAPI(t, "no json here", store.Options{})
	token := api.token(t, 1, "")
	uid := api.startConversation(t, token)

	resp := api.do(t, http.MethodPost, "/api/v1/conversations/"+uid+"/finalize", token,
		map[string]string{"transcript": "Hello there."})
	require.Equal(t, http.StatusBadGateway, resp.StatusCode)
}

func TestFinalizeHappyPathOverHTTP(t *testing.T) {
	api := newTestAPI(t, `{"score": 91, "feedback": "Strong close."}`, store.Options{})
	token := api.token(t, 1, "")
	uid := api.startConversation(t, token)

	resp := api.do(t, http.MethodPost, "/api/v1/conversations/"+uid+"/finalize", token,
		map[string]string{"transcript": "Hello there."})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var decoded conversationResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	require.NotNil(t, decoded.Score)
	require.EqualValues(t, 91, *decoded.Score)
	require.Equal(t, "Strong close.", *decoded.Feedback)
}

func TestStreamEventsClientDisconnect(t *testing.T) {
	api := newTestAPI(t, "", store.Options{})
	token := api.token(t, 1, "")
	uid := api.startConversation(t, token)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, api.srv.URL+"/api/v1/conversations/"+uid+"/events", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	// The replayed history from the session start arrives first.
	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(line, "data: "))
	require.Contains(t, line, "session.started")

	// Drop the client mid-stream. The handler must return and detach its
	// listener; later emits keep flowing without anyone to deliver to.
	cancel()
	_, err = reader.ReadString('\n')
	for err == nil {
		_, err = reader.ReadString('\n')
	}
	require.Error(t, err)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 4*eventbus.DefaultHistoryLimit; i++ {
			api.bus.Emit(uid, eventbus.Status{Code: "post-disconnect"})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("emit blocked after subscriber disconnect")
	}
}
