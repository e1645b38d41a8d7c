// Package store persists generation sessions. The Redis implementation
// is the production store; the memory implementation backs tests and
// local development without Redis.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/kentin0-fiz0l/FluxStudio-sub015/internal/model"
)

// ErrNotFound is returned when no session exists for the given id.
var ErrNotFound = errors.New("session not found")

// SessionUpdate is a partial update. Nil fields are left untouched.
type SessionUpdate struct {
	Status              *model.SessionStatus
	Plan                *model.ShowPlan
	PlanApproved        *bool
	CurrentSectionIndex *int
	TotalSections       *int
	TokensUsed          *int
	ErrorMessage        *string
	CompletedAt         *time.Time
}

// SessionStore is the durable record of generation sessions. It is the
// single source of truth whenever the in-memory interrupt registry and
// the store disagree (e.g. after a process restart).
type SessionStore interface {
	Create(ctx context.Context, session *model.Session) error
	Get(ctx context.Context, sessionID string) (*model.Session, error)
	Update(ctx context.Context, sessionID string, update SessionUpdate) error
}

// apply copies the non-nil fields of an update onto a session.
func apply(session *model.Session, update SessionUpdate) {
	if update.Status != nil {
		session.Status = *update.Status
	}
	if update.Plan != nil {
		session.Plan = update.Plan
	}
	if update.PlanApproved != nil {
		session.PlanApproved = *update.PlanApproved
	}
	if update.CurrentSectionIndex != nil {
		session.CurrentSectionIndex = *update.CurrentSectionIndex
	}
	if update.TotalSections != nil {
		session.TotalSections = *update.TotalSections
	}
	if update.TokensUsed != nil {
		session.TokensUsed = *update.TokensUsed
	}
	if update.ErrorMessage != nil {
		session.ErrorMessage = update.ErrorMessage
	}
	if update.CompletedAt != nil {
		session.CompletedAt = update.CompletedAt
	}
}
