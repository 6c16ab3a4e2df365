package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Client talks to the CRM's internal API. It implements both Creator and
// Directory so the service can run as a sidecar to the CRM backend.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
	log     zerolog.Logger
}

func NewClient(baseURL, token string, timeout time.Duration, log zerolog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: timeout},
		log:     log,
	}
}

func (c *Client) CreateDeal(ctx context.Context, cmd DealCommand) (string, error) {
	if c.baseURL == "" {
		return "", fmt.Errorf("crm api not configured")
	}

	body, err := json.Marshal(cmd)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/internal/deals", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("deal creation request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.log.Error().Int("status", resp.StatusCode).Str("body", string(snippet)).Msg("crm rejected deal creation")
		return "", fmt.Errorf("crm returned status %d", resp.StatusCode)
	}

	var out struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("invalid crm response: %w", err)
	}
	return out.ID, nil
}

func (c *Client) StageExists(ctx context.Context, orgID, boardID, stageID string) (bool, error) {
	if c.baseURL == "" {
		return false, fmt.Errorf("crm api not configured")
	}

	url := fmt.Sprintf("%s/internal/orgs/%s/boards/%s/stages/%s", c.baseURL, orgID, boardID, stageID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 512))

	switch {
	case resp.StatusCode == http.StatusOK:
		return true, nil
	case resp.StatusCode == http.StatusNotFound:
		return false, nil
	default:
		return false, fmt.Errorf("crm returned status %d", resp.StatusCode)
	}
}
