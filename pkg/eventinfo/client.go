package eventinfo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/vogiaan1904/ticketbottle-admission/internal/models"
	"github.com/vogiaan1904/ticketbottle-admission/pkg/logger"
)

// Client fetches display metadata from the event service. Callers treat every
// failure as "no display info", nothing here gates admission.
type Client struct {
	baseURL string
	http    *http.Client
	l       logger.Logger
}

func NewClient(baseURL string, l logger.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		http: &http.Client{
			Timeout: 2 * time.Second,
		},
		l: l,
	}
}

func (c *Client) FindEvent(ctx context.Context, eventID string) (*models.EventInfo, error) {
	url := fmt.Sprintf("%s/api/v1/events/%s", c.baseURL, eventID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build event request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch event: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("event %s not found", eventID)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("event service returned status %d", resp.StatusCode)
	}

	var info models.EventInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("failed to decode event response: %w", err)
	}

	return &info, nil
}
