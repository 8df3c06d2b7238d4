// Package amplitude polls the Amplitude Dashboard API for event activity
// and turns it into observations.
package amplitude

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"vigil/internal/decision"
	"vigil/internal/logging"

	"github.com/google/uuid"
)

// Config configures the Amplitude client.
type Config struct {
	APIKey    string
	SecretKey string
	BaseURL   string // default https://amplitude.com/api/2
	EventType string
	Timeout   time.Duration
}

// Client talks to the Amplitude Dashboard REST API using basic auth.
type Client struct {
	apiKey     string
	secretKey  string
	baseURL    string
	eventType  string
	httpClient *http.Client
}

// segmentationResponse is the shape of /events/segmentation.
type segmentationResponse struct {
	Data struct {
		Series  [][]float64 `json:"series"`
		XValues []string    `json:"xValues"`
	} `json:"data"`
}

// New creates an Amplitude client.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("amplitude api_key and secret_key are required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://amplitude.com/api/2"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		apiKey:    cfg.APIKey,
		secretKey: cfg.SecretKey,
		baseURL:   strings.TrimSuffix(cfg.BaseURL, "/"),
		eventType: cfg.EventType,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}, nil
}

// Poll fetches event counts for yesterday and today (the segmentation
// endpoint buckets by calendar day) and reports them as one observation.
// A quiet window produces no observation.
func (c *Client) Poll(ctx context.Context) ([]decision.Observation, error) {
	timer := logging.StartTimer(logging.CategoryPoll, "amplitude poll")
	defer timer.Stop()

	now := time.Now()
	counts, err := c.EventCounts(ctx, now.AddDate(0, 0, -1), now)
	if err != nil {
		return nil, err
	}

	var total float64
	for _, day := range counts {
		total += day
	}
	if total == 0 {
		logging.PollDebug("amplitude: no events in window")
		return nil, nil
	}

	label := c.eventType
	if label == "" {
		label = "any event"
	}
	obs := decision.Observation{
		ID:       uuid.NewString(),
		Time:     now,
		Source:   "amplitude",
		Category: decision.CategoryOther,
		Summary:  fmt.Sprintf("amplitude: %.0f occurrences of %s since yesterday", total, label),
	}
	logging.Poll("amplitude poll: %.0f events", total)
	return []decision.Observation{obs}, nil
}

// EventCounts returns daily counts for the configured event type between
// start and end.
func (c *Client) EventCounts(ctx context.Context, start, end time.Time) ([]float64, error) {
	eventType := c.eventType
	if eventType == "" {
		eventType = "_active"
	}
	eventDef, err := json.Marshal(map[string]string{"event_type": eventType})
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("e", string(eventDef))
	params.Set("start", start.Format("20060102"))
	params.Set("end", end.Format("20060102"))

	req, err := http.NewRequestWithContext(ctx, "GET",
		c.baseURL+"/events/segmentation?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.SetBasicAuth(c.apiKey, c.secretKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var parsed segmentationResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if len(parsed.Data.Series) == 0 {
		return nil, nil
	}
	return parsed.Data.Series[0], nil
}
