package plots

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ServiceConfig holds configuration for the sidecar plotting service
type ServiceConfig struct {
	BaseURL       string        // Base URL of the plotting service
	Timeout       time.Duration // HTTP request timeout
	RetryAttempts int           // Number of retry attempts for failed requests
	RetryDelay    time.Duration // Delay between retry attempts
}

// DefaultServiceConfig returns default configuration for the plotting service
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		BaseURL:       "http://localhost:8080",
		Timeout:       30 * time.Second,
		RetryAttempts: 3,
		RetryDelay:    1 * time.Second,
	}
}

// Service handles communication with the sidecar plotting service
type Service struct {
	config     ServiceConfig
	httpClient *http.Client
	enabled    bool
}

// NewService creates a new plotting service client
func NewService(config ServiceConfig) *Service {
	return &Service{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		enabled: false, // Disabled by default
	}
}

// Enable enables the plotting service integration
func (s *Service) Enable() {
	s.enabled = true
}

// Disable disables the plotting service integration
func (s *Service) Disable() {
	s.enabled = false
}

// IsEnabled returns whether the plotting service is enabled
func (s *Service) IsEnabled() bool {
	return s.enabled
}

// Response represents the response from the plotting service
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	PlotID  string `json:"plot_id,omitempty"`
	URL     string `json:"url,omitempty"`
}

// Send sends plot data to the plotting service
func (s *Service) Send(pd PlotData) (*Response, error) {
	if !s.enabled {
		return &Response{
			Success: false,
			Message: "Plotting service is disabled",
		}, nil
	}

	jsonData, err := pd.ToJSON()
	if err != nil {
		return nil, fmt.Errorf("failed to serialize plot data: %w", err)
	}

	url := fmt.Sprintf("%s/api/plot", s.config.BaseURL)
	req, err := http.NewRequest("POST", url, bytes.NewBufferString(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "latentreach")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send plot data: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("plotting service returned status %d: %s", resp.StatusCode, string(body))
	}

	var serviceResp Response
	if err := json.Unmarshal(body, &serviceResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &serviceResp, nil
}

// SendWithRetry sends plot data with retry logic
func (s *Service) SendWithRetry(pd PlotData) (*Response, error) {
	var lastErr error
	for attempt := 0; attempt <= s.config.RetryAttempts; attempt++ {
		if attempt > 0 {
			time.Sleep(s.config.RetryDelay)
		}
		resp, err := s.Send(pd)
		if err == nil {
			return resp, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("failed to send plot data after %d attempts: %w",
		s.config.RetryAttempts+1, lastErr)
}

// SendAll pushes every diagnostic the collector currently has data for.
// Failures are folded into the per-plot responses rather than aborting the
// remaining sends.
func (s *Service) SendAll(c *Collector) map[string]*Response {
	plotSet := []struct {
		pd   PlotData
		name string
	}{
		{c.LossCurves(false), "loss"},
		{c.LossCurves(true), "loss_log"},
		{c.ScatterPlot(TrainSplit), "scatter_train"},
		{c.ScatterPlot(ValidationSplit), "scatter_val"},
		{c.ScatterPlot(FullSplit), "scatter_full"},
		{c.LatentHistograms(), "latents"},
	}

	results := make(map[string]*Response)
	for _, p := range plotSet {
		if len(p.pd.Series) == 0 {
			continue
		}
		resp, err := s.SendWithRetry(p.pd)
		if err != nil {
			results[p.name] = &Response{Success: false, Message: err.Error()}
			continue
		}
		results[p.name] = resp
	}
	return results
}

// CheckHealth checks if the plotting service is available
func (s *Service) CheckHealth() error {
	if !s.enabled {
		return fmt.Errorf("plotting service is disabled")
	}

	url := fmt.Sprintf("%s/health", s.config.BaseURL)
	resp, err := s.httpClient.Get(url)
	if err != nil {
		return fmt.Errorf("plotting service health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("plotting service unhealthy: status %d", resp.StatusCode)
	}
	return nil
}
