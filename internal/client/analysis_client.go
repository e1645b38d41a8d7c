package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/kentin0-fiz0l/FluxStudio-sub015/internal/config"
	"github.com/kentin0-fiz0l/FluxStudio-sub015/internal/model"
)

// MusicAnalyzer defines the interface for music-structure analysis.
type MusicAnalyzer interface {
	Analyze(ctx context.Context, songID string) (*model.MusicAnalysis, error)
	HealthCheck(ctx context.Context) error
}

// AnalysisClient implements MusicAnalyzer against the analysis microservice.
type AnalysisClient struct {
	httpClient *http.Client
	baseURL    string
}

type analyzeRequest struct {
	SongID string `json:"song_id"`
}

// NewAnalysisClient creates a new music analysis client
func NewAnalysisClient(cfg *config.AnalysisConfig) *AnalysisClient {
	return &AnalysisClient{
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.Timeout) * time.Second,
		},
		baseURL: cfg.ServiceURL,
	}
}

// Analyze returns the structural sections of a song. An unconfigured
// client reports hasSong=false and lets the caller synthesize sections.
func (c *AnalysisClient) Analyze(ctx context.Context, songID string) (*model.MusicAnalysis, error) {
	if !c.IsConfigured() || songID == "" {
		return &model.MusicAnalysis{HasSong: false}, nil
	}

	var result model.MusicAnalysis
	if err := c.post(ctx, "/analyze", &analyzeRequest{SongID: songID}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// HealthCheck checks if the analysis service is available
func (c *AnalysisClient) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("analysis service unhealthy: status %d", resp.StatusCode)
	}

	return nil
}

// post sends a POST request with JSON body and parses the response
func (c *AnalysisClient) post(ctx context.Context, endpoint string, body interface{}, result interface{}) error {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("analysis service error (status %d): %s", resp.StatusCode, string(respBody))
	}

	if err := json.Unmarshal(respBody, result); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}

	return nil
}

// IsConfigured returns true if the client has valid configuration
func (c *AnalysisClient) IsConfigured() bool {
	return c.baseURL != ""
}
