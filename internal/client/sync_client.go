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

// SyncClient talks to the collaborative document service that other
// FluxStudio clients observe in real time. Generated keyframes are
// mirrored into the document as they are produced so collaborators see
// live progress instead of a single bulk write at the end.
//
// Without configuration every operation degrades to an in-process no-op
// connection, keeping the pipeline runnable in development.
type SyncClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// SyncConnection is one connection-scoped handle into a document.
// A connection opened for a generation run must be disconnected on
// every exit path.
type SyncConnection struct {
	client       *SyncClient
	connectionID string
	resourceID   string
	mock         bool
}

type connectRequest struct {
	ResourceID string `json:"resource_id"`
	ParentID   string `json:"parent_id,omitempty"`
}

type connectResponse struct {
	ConnectionID string `json:"connection_id"`
}

type presenceRequest struct {
	State string `json:"state"`
	Label string `json:"label,omitempty"`
}

type keyframeWriteRequest struct {
	KeyframeID  string                             `json:"keyframe_id"`
	TimestampMs int                                `json:"timestamp_ms"`
	DurationMs  int                                `json:"duration_ms"`
	Transition  string                             `json:"transition"`
	Positions   map[string]model.PerformerPosition `json:"positions"`
	Partial     bool                               `json:"partial"`
}

type adjustmentRequest struct {
	KeyframeID  string  `json:"keyframe_id"`
	PerformerID string  `json:"performer_id"`
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
}

type snapshotResponse struct {
	Keyframes []model.Keyframe `json:"keyframes"`
}

// NewSyncClient creates a new collaborative sync client
func NewSyncClient(cfg *config.SyncConfig) *SyncClient {
	return &SyncClient{
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.Timeout) * time.Second,
		},
		baseURL: cfg.ServiceURL,
		apiKey:  cfg.APIKey,
	}
}

// Connect opens a connection into the document for resourceID, nested
// under parentID (the owning formation/project node).
func (c *SyncClient) Connect(ctx context.Context, resourceID, parentID string) (*SyncConnection, error) {
	if !c.IsConfigured() {
		return &SyncConnection{client: c, resourceID: resourceID, mock: true}, nil
	}

	var resp connectResponse
	err := c.do(ctx, http.MethodPost, "/connections", &connectRequest{
		ResourceID: resourceID,
		ParentID:   parentID,
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("sync connect failed: %w", err)
	}

	return &SyncConnection{
		client:       c,
		connectionID: resp.ConnectionID,
		resourceID:   resourceID,
	}, nil
}

// Snapshot reads the current keyframe set of a document. Used by the
// export path; the pipeline itself only writes.
func (c *SyncClient) Snapshot(ctx context.Context, resourceID string) ([]model.Keyframe, error) {
	if !c.IsConfigured() {
		return nil, nil
	}

	var resp snapshotResponse
	path := fmt.Sprintf("/documents/%s/snapshot", resourceID)
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, fmt.Errorf("sync snapshot failed: %w", err)
	}
	return resp.Keyframes, nil
}

// IsConfigured returns true if the client has valid configuration
func (c *SyncClient) IsConfigured() bool {
	return c.baseURL != "" && c.apiKey != ""
}

// SetPresence publishes this connection's presence state (e.g.
// "generating", "done") with a human-readable label.
func (conn *SyncConnection) SetPresence(ctx context.Context, state, label string) error {
	if conn.mock {
		return nil
	}

	path := fmt.Sprintf("/connections/%s/presence", conn.connectionID)
	if err := conn.client.do(ctx, http.MethodPut, path, &presenceRequest{State: state, Label: label}, nil); err != nil {
		return fmt.Errorf("sync presence failed: %w", err)
	}
	return nil
}

// WriteKeyframe mirrors one keyframe into the document. Positions are
// written in chunks of chunkSize performers so large casts stream in as
// a series of bounded writes instead of one oversized payload; the
// document's own merge semantics make the chunked writes converge.
func (conn *SyncConnection) WriteKeyframe(ctx context.Context, kf model.Keyframe, chunkSize int) error {
	if conn.mock {
		return nil
	}
	if chunkSize <= 0 {
		chunkSize = len(kf.Positions)
	}

	path := fmt.Sprintf("/documents/%s/keyframes", conn.resourceID)

	ids := make([]string, 0, len(kf.Positions))
	for id := range kf.Positions {
		ids = append(ids, id)
	}

	for start := 0; start < len(ids); start += chunkSize {
		end := start + chunkSize
		if end > len(ids) {
			end = len(ids)
		}

		chunk := make(map[string]model.PerformerPosition, end-start)
		for _, id := range ids[start:end] {
			chunk[id] = kf.Positions[id]
		}

		req := &keyframeWriteRequest{
			KeyframeID:  kf.ID,
			TimestampMs: kf.TimestampMs,
			DurationMs:  kf.DurationMs,
			Transition:  string(kf.Transition),
			Positions:   chunk,
			Partial:     end < len(ids) || start > 0,
		}
		if err := conn.client.do(ctx, http.MethodPost, path, req, nil); err != nil {
			return fmt.Errorf("sync keyframe write failed: %w", err)
		}
	}

	return nil
}

// ApplyAdjustment moves a single performer within an existing keyframe.
func (conn *SyncConnection) ApplyAdjustment(ctx context.Context, keyframeID, performerID string, x, y float64) error {
	if conn.mock {
		return nil
	}

	path := fmt.Sprintf("/documents/%s/adjustments", conn.resourceID)
	req := &adjustmentRequest{
		KeyframeID:  keyframeID,
		PerformerID: performerID,
		X:           x,
		Y:           y,
	}
	if err := conn.client.do(ctx, http.MethodPost, path, req, nil); err != nil {
		return fmt.Errorf("sync adjustment failed: %w", err)
	}
	return nil
}

// Disconnect closes the connection. Safe to call once per connection on
// any exit path.
func (conn *SyncConnection) Disconnect(ctx context.Context) error {
	if conn.mock {
		return nil
	}

	path := fmt.Sprintf("/connections/%s", conn.connectionID)
	if err := conn.client.do(ctx, http.MethodDelete, path, nil, nil); err != nil {
		return fmt.Errorf("sync disconnect failed: %w", err)
	}
	return nil
}

// do sends a JSON request and optionally parses the response body.
func (c *SyncClient) do(ctx context.Context, method, endpoint string, body interface{}, result interface{}) error {
	var reader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

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
		return fmt.Errorf("sync service error (status %d): %s", resp.StatusCode, string(respBody))
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("failed to unmarshal response: %w", err)
		}
	}

	return nil
}
