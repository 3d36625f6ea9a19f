package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/mm-zacharydavison/rpckit/pkg/rpc"
)

// Client calls a bridge server over HTTP. It implements rpc.Caller, so a
// generated client built for the in-process dispatcher points at a deployed
// service by swapping the caller.
type Client struct {
	base string
	http *http.Client
}

// NewClient creates a caller for the bridge at baseURL. httpClient may be
// nil; http.DefaultClient is used then.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		base: strings.TrimRight(baseURL, "/"),
		http: httpClient,
	}
}

// Call implements rpc.Caller over POST {base}/rpc/{pattern}. A 404 response
// surfaces as an rpc.ErrNoHandler-wrapped error, matching the in-process
// dispatcher's behavior.
func (c *Client) Call(ctx context.Context, pattern string, payload any, result any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload for %s: %w", pattern, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.base+"/rpc/"+pattern, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("call %s: %w", pattern, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response of %s: %w", pattern, err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", rpc.ErrNoHandler, pattern)
	case resp.StatusCode >= 400:
		return fmt.Errorf("call %s: %s", pattern, remoteMessage(body, resp.StatusCode))
	}

	if result == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, result); err != nil {
		return fmt.Errorf("unmarshal response of %s: %w", pattern, err)
	}
	return nil
}

// remoteMessage extracts the error envelope's message, falling back to the
// bare status code.
func remoteMessage(body []byte, status int) string {
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err == nil && eb.Error != "" {
		return eb.Error
	}
	return fmt.Sprintf("status %d", status)
}
