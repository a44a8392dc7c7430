// Package observer watches a running segsim server over its HTTP API
// and classifies how far the run has progressed toward equilibrium.
package observer

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Observation holds the data collected during one poll.
type Observation struct {
	Status Status    `json:"status"`
	Recent []float64 `json:"recent"`
}

// Status mirrors GET /api/v1/status.
type Status struct {
	Tick     uint64    `json:"tick"`
	Running  bool      `json:"running"`
	Agents   int       `json:"agents"`
	Width    int       `json:"width"`
	Height   int       `json:"height"`
	Contract bool      `json:"contract"`
	Seed     int64     `json:"seed"`
	Rate     float64   `json:"rate"`
	Speed    float64   `json:"speed"`
	RunID    string    `json:"run_id,omitempty"`
	Clients  int       `json:"clients"`
	Stats    TickStats `json:"stats"`
}

// TickStats mirrors the scheduler counters of the last tick.
type TickStats struct {
	Activated int `json:"activated"`
	Gated     int `json:"gated"`
	Isolated  int `json:"isolated"`
	Attempted int `json:"attempted"`
	Moved     int `json:"moved"`
}

type metricsResponse struct {
	From   int       `json:"from"`
	Series []float64 `json:"series"`
}

// Observer fetches run state from the API.
type Observer struct {
	BaseURL    string
	HTTPClient *http.Client
	// Window is how many trailing metric samples each observation keeps.
	Window int
}

// New creates an Observer targeting the given API base URL.
func New(baseURL string) *Observer {
	return &Observer{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		Window: 20,
	}
}

// Observe fetches status and the trailing metric window.
func (o *Observer) Observe() (*Observation, error) {
	obs := &Observation{}
	if err := o.fetchJSON("/api/v1/status", &obs.Status); err != nil {
		return nil, fmt.Errorf("fetch status: %w", err)
	}

	from := 0
	if w := o.window(); int(obs.Status.Tick) > w {
		from = int(obs.Status.Tick) - w
	}
	var m metricsResponse
	if err := o.fetchJSON(fmt.Sprintf("/api/v1/metrics?from=%d", from), &m); err != nil {
		return nil, fmt.Errorf("fetch metrics: %w", err)
	}
	obs.Recent = m.Series
	if w := o.window(); len(obs.Recent) > w {
		obs.Recent = obs.Recent[len(obs.Recent)-w:]
	}
	return obs, nil
}

func (o *Observer) window() int {
	if o.Window <= 0 {
		return 20
	}
	return o.Window
}

// fetchJSON GETs a path and decodes the JSON response into target.
func (o *Observer) fetchJSON(path string, target any) error {
	resp, err := o.HTTPClient.Get(o.BaseURL + path)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("GET %s returned %d: %s", path, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
