package agentsync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/MimeLyc/content-orchestrator/pkg/log"
)

// placeholderHost marks the default endpoint, which is not a live service.
const placeholderHost = "https://api.agentworkspace.io"

type Client struct {
	apiURL     string
	token      string
	httpClient *http.Client
}

func NewClient(apiURL, token string) *Client {
	return &Client{
		apiURL:     apiURL,
		token:      token,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Enabled reports whether Push sends anything.
func (c *Client) Enabled() bool {
	return c.apiURL != "" && !strings.Contains(c.apiURL, placeholderHost)
}

// Push posts p to the workspace. Against the placeholder endpoint it only logs.
func (c *Client) Push(ctx context.Context, p Payload) error {
	if !c.Enabled() {
		log.Info("[AgentSync] endpoint %q is a placeholder, skipping push of %s %s", c.apiURL, p.Type, p.ID)
		return nil
	}

	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal sync payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create sync request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sync request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("sync failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}
