package syncclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"parkpass/internal/models"
	"parkpass/internal/services"
)

// Client talks to the central parking backend. It implements both the sync
// exchange and the connectivity probe.
type Client struct {
	BaseURL string
	APIKey  string
	HTTP    *http.Client
}

func New(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL: baseURL,
		APIKey:  apiKey,
		HTTP:    &http.Client{Timeout: 15 * time.Second},
	}
}

type pushRequest struct {
	Type   models.EventType    `json:"type"`
	Event  models.SyncEvent    `json:"event"`
	Device models.DeviceConfig `json:"device"`
}

type conflictResponse struct {
	Server *models.Ticket `json:"server"`
	Reason string         `json:"reason,omitempty"`
}

// Push submits one outbox event. A 409 means the server holds a newer version
// of the ticket and returns its copy for local reconciliation. The device
// secret never leaves the terminal; DeviceConfig marshals without it.
func (c *Client) Push(ctx context.Context, eventType models.EventType, ev models.SyncEvent, dev models.DeviceConfig) (services.ExchangeResult, error) {
	body, err := json.Marshal(pushRequest{Type: eventType, Event: ev, Device: dev})
	if err != nil {
		return services.ExchangeResult{}, err
	}

	status, respBody, err := c.post(ctx, "/v1/sync/events", body)
	if err != nil {
		return services.ExchangeResult{}, err
	}

	switch {
	case status == http.StatusOK || status == http.StatusAccepted:
		return services.ExchangeResult{Outcome: services.OutcomeAcked}, nil
	case status == http.StatusConflict:
		var cr conflictResponse
		if err := json.Unmarshal(respBody, &cr); err != nil || cr.Server == nil {
			return services.ExchangeResult{Outcome: services.OutcomeRejected}, nil
		}
		return services.ExchangeResult{Outcome: services.OutcomeConflict, Server: cr.Server}, nil
	case status >= 500:
		return services.ExchangeResult{}, fmt.Errorf("sync backend returned %d", status)
	default:
		return services.ExchangeResult{Outcome: services.OutcomeRejected}, nil
	}
}

// Ping is the connectivity probe. Any HTTP response counts as reachable.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/healthz", nil)
	if err != nil {
		return err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return nil
}

func (c *Client) post(ctx context.Context, path string, body []byte) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, b, nil
}
