package model_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kentin0-fiz0l/FluxStudio-sub015/internal/model"
)

func TestIsTerminal(t *testing.T) {
	terminal := []model.SessionStatus{model.StatusDone, model.StatusCancelled, model.StatusError}
	for _, s := range terminal {
		assert.True(t, s.IsTerminal(), string(s))
	}

	active := []model.SessionStatus{
		model.StatusCreated, model.StatusAnalyzing, model.StatusPlanning,
		model.StatusAwaitingApproval, model.StatusGenerating,
		model.StatusSmoothing, model.StatusPaused,
	}
	for _, s := range active {
		assert.False(t, s.IsTerminal(), string(s))
	}
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name string
		from model.SessionStatus
		to   model.SessionStatus
		want bool
	}{
		{"forward through the stages", model.StatusCreated, model.StatusAnalyzing, true},
		{"analyzing to planning", model.StatusAnalyzing, model.StatusPlanning, true},
		{"planning to approval gate", model.StatusPlanning, model.StatusAwaitingApproval, true},
		{"approval to generating", model.StatusAwaitingApproval, model.StatusGenerating, true},
		{"generating to smoothing", model.StatusGenerating, model.StatusSmoothing, true},
		{"smoothing to done", model.StatusSmoothing, model.StatusDone, true},

		{"no stage skipping", model.StatusCreated, model.StatusGenerating, false},
		{"no going backwards", model.StatusGenerating, model.StatusPlanning, false},
		{"self transition rejected", model.StatusGenerating, model.StatusGenerating, false},

		{"cancel from early stage", model.StatusAnalyzing, model.StatusCancelled, true},
		{"cancel from approval gate", model.StatusAwaitingApproval, model.StatusCancelled, true},
		{"error from any active stage", model.StatusSmoothing, model.StatusError, true},
		{"pause mid generation", model.StatusGenerating, model.StatusPaused, true},

		{"paused resumes generation", model.StatusPaused, model.StatusGenerating, true},
		{"paused can be cancelled", model.StatusPaused, model.StatusCancelled, true},

		{"refine re-runs a completed session", model.StatusDone, model.StatusGenerating, true},
		{"done otherwise stays done", model.StatusDone, model.StatusAnalyzing, false},
		{"cancelled is final", model.StatusCancelled, model.StatusGenerating, false},
		{"error is final", model.StatusError, model.StatusAnalyzing, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, model.CanTransition(tt.from, tt.to))
		})
	}
}
