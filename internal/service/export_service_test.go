package service_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kentin0-fiz0l/FluxStudio-sub015/internal/model"
	"github.com/kentin0-fiz0l/FluxStudio-sub015/internal/service"
	"github.com/kentin0-fiz0l/FluxStudio-sub015/internal/store"
)

type fakeSnapshotter struct {
	keyframes []model.Keyframe
	err       error
}

func (s *fakeSnapshotter) Snapshot(context.Context, string) ([]model.Keyframe, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.keyframes, nil
}

func seedExportSession(t *testing.T, st *store.MemoryStore, status model.SessionStatus) *model.Session {
	t.Helper()
	session := &model.Session{
		ID:          "55555555-5555-4555-8555-555555555555",
		FormationID: "66666666-6666-4666-8666-666666666666",
		Description: "two movement show",
		Status:      status,
		Plan: &model.ShowPlan{
			Sections:       []model.PlanSection{{SectionName: "One", KeyframeCount: 2}},
			TotalKeyframes: 2,
		},
		CreatedAt: time.Now(),
	}
	require.NoError(t, st.Create(context.Background(), session))
	return session
}

func TestExport_JSON(t *testing.T) {
	st := store.NewMemoryStore()
	session := seedExportSession(t, st, model.StatusDone)
	snap := &fakeSnapshotter{keyframes: []model.Keyframe{
		{ID: "kf1", TimestampMs: 0, Positions: map[string]model.PerformerPosition{"p1": {X: 1, Y: 2}}},
	}}

	svc := service.NewExportService(st, snap, nil)
	resp, err := svc.Export(context.Background(), &model.ExportRequest{SessionID: session.ID})
	require.NoError(t, err)

	assert.Equal(t, session.ID, resp.SessionID)
	assert.Equal(t, "json", resp.Format, "json is the default format")
	assert.True(t, strings.HasSuffix(resp.URL, session.ID+".json"), resp.URL)
}

func TestExport_CSV(t *testing.T) {
	st := store.NewMemoryStore()
	session := seedExportSession(t, st, model.StatusDone)
	snap := &fakeSnapshotter{keyframes: []model.Keyframe{
		{ID: "kf2", TimestampMs: 1000, Positions: map[string]model.PerformerPosition{"p1": {X: 3}}},
		{ID: "kf1", TimestampMs: 0, Positions: map[string]model.PerformerPosition{"p1": {X: 1}}},
	}}

	svc := service.NewExportService(st, snap, nil)
	resp, err := svc.Export(context.Background(), &model.ExportRequest{SessionID: session.ID, Format: "csv"})
	require.NoError(t, err)
	assert.Equal(t, "csv", resp.Format)
}

func TestExport_WrongState(t *testing.T) {
	st := store.NewMemoryStore()
	session := seedExportSession(t, st, model.StatusGenerating)

	svc := service.NewExportService(st, &fakeSnapshotter{}, nil)
	_, err := svc.Export(context.Background(), &model.ExportRequest{SessionID: session.ID})
	assert.ErrorIs(t, err, service.ErrInvalidState)
}

func TestExport_SessionNotFound(t *testing.T) {
	st := store.NewMemoryStore()

	svc := service.NewExportService(st, &fakeSnapshotter{}, nil)
	_, err := svc.Export(context.Background(), &model.ExportRequest{SessionID: "missing"})
	assert.ErrorIs(t, err, service.ErrSessionNotFound)
}
