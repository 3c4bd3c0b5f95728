package httpapi

import (
	stdcontext "context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Paintersrp/workit/internal/api"
)

// Client talks to a running control API.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

// NewClient returns a client for the server listening on addr.
func NewClient(addr string) *Client {
	base := loopbackAddr(addr)
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}
	return &Client{BaseURL: strings.TrimRight(base, "/"), HTTP: &http.Client{Timeout: 5 * time.Second}}
}

// Status fetches the status report.
func (c *Client) Status(ctx stdcontext.Context) (*api.StatusReport, error) {
	var report api.StatusReport
	if err := c.do(ctx, http.MethodGet, "/api/v1/status", http.StatusOK, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

// RequestShutdown asks the running instance to shut down.
func (c *Client) RequestShutdown(ctx stdcontext.Context) (*api.ShutdownResult, error) {
	var payload struct {
		Shutdown *api.ShutdownResult `json:"shutdown"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/v1/shutdown", http.StatusAccepted, &payload); err != nil {
		return nil, err
	}
	return payload.Shutdown, nil
}

func (c *Client) do(ctx stdcontext.Context, method, path string, want int, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("contact workit at %s: %w", c.BaseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != want {
		var body errorBody
		if err := json.NewDecoder(resp.Body).Decode(&body); err == nil && body.Message != "" {
			return fmt.Errorf("%s %s: %s (%s)", method, path, body.Message, body.Code)
		}
		return fmt.Errorf("%s %s: unexpected status %s", method, path, resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
