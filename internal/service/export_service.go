package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/kentin0-fiz0l/FluxStudio-sub015/internal/client"
	"github.com/kentin0-fiz0l/FluxStudio-sub015/internal/model"
	"github.com/kentin0-fiz0l/FluxStudio-sub015/internal/store"
)

// Snapshotter reads the current keyframe set of a document.
type Snapshotter interface {
	Snapshot(ctx context.Context, resourceID string) ([]model.Keyframe, error)
}

// ExportService snapshots a generated show (plan plus the document's
// keyframes) into object storage and hands back a download URL.
type ExportService struct {
	store   store.SessionStore
	sync    Snapshotter
	storage client.StorageClient // nil when R2 is not configured
}

func NewExportService(sessionStore store.SessionStore, sync Snapshotter, storage client.StorageClient) *ExportService {
	return &ExportService{
		store:   sessionStore,
		sync:    sync,
		storage: storage,
	}
}

// exportDocument is the JSON export layout.
type exportDocument struct {
	SessionID   string           `json:"sessionId"`
	FormationID string           `json:"formationId"`
	Description string           `json:"description"`
	Plan        *model.ShowPlan  `json:"plan"`
	Keyframes   []model.Keyframe `json:"keyframes"`
	ExportedAt  time.Time        `json:"exportedAt"`
}

// Export produces a snapshot of the session in the requested format.
// Only sessions that produced keyframes can be exported.
func (s *ExportService) Export(ctx context.Context, req *model.ExportRequest) (*model.ExportResponse, error) {
	session, err := s.store.Get(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	if session.Status != model.StatusDone && session.Status != model.StatusPaused {
		return nil, fmt.Errorf("%w: export requires a done or paused session, got %s", ErrInvalidState, session.Status)
	}
	if session.Plan == nil {
		return nil, fmt.Errorf("%w: session has no plan to export", ErrInvalidState)
	}

	keyframes, err := s.sync.Snapshot(ctx, session.FormationID)
	if err != nil {
		return nil, fmt.Errorf("failed to read document snapshot: %w", err)
	}

	format := req.Format
	if format == "" {
		format = "json"
	}

	var (
		body        []byte
		contentType string
	)
	switch format {
	case "json":
		body, err = json.MarshalIndent(&exportDocument{
			SessionID:   session.ID,
			FormationID: session.FormationID,
			Description: session.Description,
			Plan:        session.Plan,
			Keyframes:   keyframes,
			ExportedAt:  time.Now(),
		}, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("failed to marshal export: %w", err)
		}
		contentType = "application/json"
	case "csv":
		body, err = keyframesCSV(keyframes)
		if err != nil {
			return nil, fmt.Errorf("failed to build csv export: %w", err)
		}
		contentType = "text/csv"
	default:
		return nil, fmt.Errorf("%w: unsupported export format %q", ErrInvalidState, format)
	}

	key := fmt.Sprintf("exports/%s/%s.%s", session.FormationID, session.ID, format)

	url, err := s.upload(ctx, key, body, contentType)
	if err != nil {
		return nil, err
	}

	return &model.ExportResponse{
		SessionID: session.ID,
		URL:       url,
		Format:    format,
	}, nil
}

func (s *ExportService) upload(ctx context.Context, key string, body []byte, contentType string) (string, error) {
	if s.storage == nil {
		// local development without object storage
		return "https://exports.fluxstudio.local/" + key, nil
	}

	url, err := s.storage.Upload(ctx, key, bytes.NewReader(body), contentType)
	if err != nil {
		return "", fmt.Errorf("failed to upload export: %w", err)
	}
	return url, nil
}

// keyframesCSV flattens keyframes to one row per performer position,
// ordered by timestamp then performer id.
func keyframesCSV(keyframes []model.Keyframe) ([]byte, error) {
	sorted := make([]model.Keyframe, len(keyframes))
	copy(sorted, keyframes)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].TimestampMs < sorted[j].TimestampMs
	})

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write([]string{"keyframe_id", "timestamp_ms", "duration_ms", "transition", "performer_id", "x", "y", "rotation"}); err != nil {
		return nil, err
	}

	for _, kf := range sorted {
		ids := make([]string, 0, len(kf.Positions))
		for id := range kf.Positions {
			ids = append(ids, id)
		}
		sort.Strings(ids)

		for _, id := range ids {
			pos := kf.Positions[id]
			row := []string{
				kf.ID,
				strconv.Itoa(kf.TimestampMs),
				strconv.Itoa(kf.DurationMs),
				string(kf.Transition),
				id,
				strconv.FormatFloat(pos.X, 'f', -1, 64),
				strconv.FormatFloat(pos.Y, 'f', -1, 64),
				strconv.FormatFloat(pos.Rotation, 'f', -1, 64),
			}
			if err := w.Write(row); err != nil {
				return nil, err
			}
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
