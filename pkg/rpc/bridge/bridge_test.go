package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mm-zacharydavison/rpckit/pkg/rpc"
)

type greeting struct {
	Message string `json:"message"`
}

func newTestBridge(t *testing.T) (*httptest.Server, *rpc.Dispatcher) {
	t.Helper()
	dispatcher := rpc.NewDispatcher()
	dispatcher.Register("greet.Hello", func(ctx context.Context, payload []byte) ([]byte, error) {
		var name string
		if err := json.Unmarshal(payload, &name); err != nil {
			return nil, err
		}
		return json.Marshal(greeting{Message: "hello " + name})
	})
	dispatcher.Register("greet.Fail", func(ctx context.Context, payload []byte) ([]byte, error) {
		return nil, errors.New("boom")
	})
	dispatcher.Register("greet.Fire", func(ctx context.Context, payload []byte) ([]byte, error) {
		return nil, nil
	})

	server := NewServer("127.0.0.1:0", dispatcher, zap.NewNop())
	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)
	return ts, dispatcher
}

func TestServerServesCall(t *testing.T) {
	ts, _ := newTestBridge(t)

	resp, err := http.Post(ts.URL+"/rpc/greet.Hello", "application/json", strings.NewReader(`"ada"`))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Call-Id"))

	var got greeting
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, "hello ada", got.Message)
}

func TestServerUnregisteredPattern(t *testing.T) {
	ts, _ := newTestBridge(t)

	resp, err := http.Post(ts.URL+"/rpc/greet.Nope", "application/json", strings.NewReader(`{}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	var eb errorBody
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&eb))
	assert.Equal(t, "greet.Nope", eb.Pattern)
	assert.Contains(t, eb.Error, "no handler registered")
}

func TestServerHandlerError(t *testing.T) {
	ts, _ := newTestBridge(t)

	resp, err := http.Post(ts.URL+"/rpc/greet.Fail", "application/json", strings.NewReader(`{}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestServerEmptyResponse(t *testing.T) {
	ts, _ := newTestBridge(t)

	resp, err := http.Post(ts.URL+"/rpc/greet.Fire", "application/json", strings.NewReader(`{}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestClientRoundTrip(t *testing.T) {
	ts, _ := newTestBridge(t)
	client := NewClient(ts.URL, nil)

	var got greeting
	require.NoError(t, client.Call(context.Background(), "greet.Hello", "grace", &got))
	assert.Equal(t, "hello grace", got.Message)
}

func TestClientNoHandler(t *testing.T) {
	ts, _ := newTestBridge(t)
	client := NewClient(ts.URL, nil)

	err := client.Call(context.Background(), "greet.Nope", nil, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, rpc.ErrNoHandler)
	assert.Contains(t, err.Error(), "greet.Nope")
}

func TestClientRemoteFailure(t *testing.T) {
	ts, _ := newTestBridge(t)
	client := NewClient(ts.URL, nil)

	err := client.Call(context.Background(), "greet.Fail", nil, nil)
	require.Error(t, err)
	assert.NotErrorIs(t, err, rpc.ErrNoHandler)
	assert.Contains(t, err.Error(), "boom")
}

func TestClientNilResult(t *testing.T) {
	ts, _ := newTestBridge(t)
	client := NewClient(ts.URL, nil)

	assert.NoError(t, client.Call(context.Background(), "greet.Hello", "ada", nil))
}
