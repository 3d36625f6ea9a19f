package watch

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func dialReload(t *testing.T, rs *ReloadServer) *websocket.Conn {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/reload", rs.HandleWebSocket)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/reload"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.Eventually(t, func() bool {
		return rs.ConnectionCount() == 1
	}, time.Second, 10*time.Millisecond)
	return conn
}

func TestReloadServerBroadcast(t *testing.T) {
	rs := NewReloadServer(zap.NewNop())
	defer rs.Close()

	conn := dialReload(t, rs)

	rs.NotifyGenerated([]string{"gen/rpc/all.rpc.gen.go"}, 42*time.Millisecond)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg ReloadMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, "generated", msg.Type)
	assert.Equal(t, []string{"gen/rpc/all.rpc.gen.go"}, msg.Artifacts)
	assert.Equal(t, float64(42), msg.Duration)
}

func TestReloadServerErrorMessage(t *testing.T) {
	rs := NewReloadServer(nil)
	defer rs.Close()

	conn := dialReload(t, rs)

	rs.NotifyError(&ErrorInfo{
		Message: "package root missing",
		Code:    "RPC003",
		Phase:   "load",
	})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg ReloadMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, "error", msg.Type)
	require.NotNil(t, msg.Error)
	assert.Equal(t, "RPC003", msg.Error.Code)
}

func TestReloadServerBuildingMessage(t *testing.T) {
	rs := NewReloadServer(nil)
	defer rs.Close()

	conn := dialReload(t, rs)

	rs.NotifyBuilding([]string{"svc/service.go"})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg ReloadMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, "building", msg.Type)
	assert.Equal(t, []string{"svc/service.go"}, msg.Files)
}
