package model

import "time"

// GenerateStartRequest starts a new generation session for a formation.
type GenerateStartRequest struct {
	FormationID    string                `json:"formationId" validate:"required,uuid4"`
	SongID         string                `json:"songId,omitempty"`
	Description    string                `json:"description" validate:"required,min=4,max=2000"`
	PerformerIDs   []string              `json:"performerIds,omitempty"`
	PerformerCount int                   `json:"performerCount,omitempty" validate:"omitempty,min=1,max=500"`
	Constraints    GenerationConstraints `json:"constraints,omitempty"`
}

// GenerateStartResponse acknowledges an accepted generation request.
type GenerateStartResponse struct {
	SessionID string        `json:"sessionId"`
	Status    SessionStatus `json:"status"`
	CreatedAt time.Time     `json:"createdAt"`
}

// SessionResponse is the read-only projection of a session.
type SessionResponse struct {
	SessionID           string        `json:"sessionId"`
	FormationID         string        `json:"formationId"`
	SongID              string        `json:"songId,omitempty"`
	Status              SessionStatus `json:"status"`
	Plan                *ShowPlan     `json:"plan,omitempty"`
	PlanApproved        bool          `json:"planApproved"`
	CurrentSectionIndex int           `json:"currentSectionIndex"`
	TotalSections       int           `json:"totalSections"`
	TokensUsed          int           `json:"tokensUsed"`
	Error               *string       `json:"error,omitempty"`
	CreatedAt           time.Time     `json:"createdAt"`
	CompletedAt         *time.Time    `json:"completedAt,omitempty"`
}

// ApproveResponse confirms the plan approval flag was set.
type ApproveResponse struct {
	SessionID    string        `json:"sessionId"`
	Status       SessionStatus `json:"status"`
	PlanApproved bool          `json:"planApproved"`
}

// Interrupt actions
const (
	InterruptActionPause  = "pause"
	InterruptActionCancel = "cancel"
)

// InterruptRequest pauses or cancels a running pipeline.
type InterruptRequest struct {
	Action string `json:"action" validate:"required,oneof=pause cancel"`
}

// InterruptResponse reports the signal that was recorded.
type InterruptResponse struct {
	SessionID string        `json:"sessionId"`
	Action    string        `json:"action"`
	Status    SessionStatus `json:"status"`
}

// RefineRequest applies a free-text adjustment to a finished session.
type RefineRequest struct {
	Instruction string `json:"instruction" validate:"required,min=4,max=1000"`
}

// RefineResponse reports the applied refinement.
type RefineResponse struct {
	SessionID        string        `json:"sessionId"`
	Status           SessionStatus `json:"status"`
	UpdatedPositions int           `json:"updatedPositions"`
	Summary          string        `json:"summary,omitempty"`
}

// ExportRequest snapshots a session's plan and keyframes to object storage.
type ExportRequest struct {
	SessionID string `json:"sessionId" validate:"required,uuid4"`
	Format    string `json:"format,omitempty" validate:"omitempty,oneof=json csv"`
}

// ExportResponse carries the download location of the snapshot.
type ExportResponse struct {
	SessionID string `json:"sessionId"`
	URL       string `json:"url"`
	Format    string `json:"format"`
}
