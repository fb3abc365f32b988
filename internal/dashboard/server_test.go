package dashboard

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keshon/server-muse/internal/ai"
	"github.com/keshon/server-muse/internal/memory"
	"github.com/keshon/server-muse/internal/mind"
	"github.com/keshon/server-muse/internal/settings"
)

type echoProvider struct{}

func (echoProvider) Name() string                        { return "echo" }
func (echoProvider) SupportsChat() bool                  { return true }
func (echoProvider) Generate(ai.Request) (string, error) { return "ok", nil }

func newTestServer(t *testing.T) (*Server, *mind.Runner) {
	t.Helper()
	dir := t.TempDir()
	st, err := settings.New(filepath.Join(dir, "settings.json"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	cfg := mind.DefaultConfig("muse")
	char := &mind.Character{Role: "muse", Name: "Muse", Identity: "test persona"}
	runner := mind.NewRunner(&cfg, char, memory.NewFileStore(dir), st,
		ai.NewMultiFromProviders(echoProvider{}, nil, false), zerolog.Nop())

	srv := NewServer(":0", runner, zerolog.Nop())
	runner.SetEmitter(srv)
	return srv, runner
}

func dialWS(t *testing.T, srv *Server) (*websocket.Conn, func()) {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", srv.handleWS)
	ts := httptest.NewServer(mux)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	return conn, func() {
		conn.Close()
		ts.Close()
	}
}

func TestEventsReachConnectedClients(t *testing.T) {
	srv, _ := newTestServer(t)
	conn, done := dialWS(t, srv)
	defer done()

	// The register happens inside handleWS; give the server a beat.
	require.Eventually(t, func() bool {
		srv.mu.Lock()
		defer srv.mu.Unlock()
		return len(srv.clients) == 1
	}, time.Second, 10*time.Millisecond)

	srv.Activity("muse:u1", "c1", "hello")

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev Event
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, "activity", ev.Type)

	data, ok := ev.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "muse:u1", data["identity"])
	assert.Equal(t, "hello", data["content"])
}

func TestResponseEventCarriesTrace(t *testing.T) {
	srv, _ := newTestServer(t)
	conn, done := dialWS(t, srv)
	defer done()

	require.Eventually(t, func() bool {
		srv.mu.Lock()
		defer srv.mu.Unlock()
		return len(srv.clients) == 1
	}, time.Second, 10*time.Millisecond)

	srv.ResponseReceived("muse:u1", ai.Trace{
		RequestID:   "req-1",
		Engine:      "pollinations",
		WasFallback: true,
		Errors:      []string{"primary timed out"},
	}, "late but here")

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev Event
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, "response", ev.Type)
	data := ev.Data.(map[string]any)
	assert.Equal(t, "pollinations", data["engine"])
	assert.Equal(t, true, data["was_fallback"])
}

func TestClientCommandsReachRunner(t *testing.T) {
	srv, runner := newTestServer(t)
	conn, done := dialWS(t, srv)
	defer done()

	require.NoError(t, conn.WriteJSON(Command{Action: "set_away", Value: "tired"}))
	require.Eventually(t, func() bool {
		return runner.Snapshot().Away
	}, 2*time.Second, 20*time.Millisecond)

	require.NoError(t, conn.WriteJSON(Command{Action: "clear_away"}))
	require.Eventually(t, func() bool {
		return !runner.Snapshot().Away
	}, 2*time.Second, 20*time.Millisecond)
}

func TestStateEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	srv.handleState(rec, httptest.NewRequest(http.MethodGet, "/state", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var snap mind.Snapshot
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&snap))
	assert.Equal(t, "muse", snap.Role)
	assert.Equal(t, "echo", snap.PrimaryEngine)
}
