package model

import "time"

// SessionStatus is the lifecycle state of a generation session.
type SessionStatus string

const (
	StatusCreated          SessionStatus = "created"
	StatusAnalyzing        SessionStatus = "analyzing"
	StatusPlanning         SessionStatus = "planning"
	StatusAwaitingApproval SessionStatus = "awaiting_approval"
	StatusGenerating       SessionStatus = "generating"
	StatusSmoothing        SessionStatus = "smoothing"
	StatusPaused           SessionStatus = "paused"
	StatusDone             SessionStatus = "done"
	StatusCancelled        SessionStatus = "cancelled"
	StatusError            SessionStatus = "error"
)

// validTransitions is the allowed edge set of the session state machine.
// paused and cancelled/error are reachable from every non-terminal state;
// those edges are handled in CanTransition rather than listed per state.
var validTransitions = map[SessionStatus][]SessionStatus{
	StatusCreated:          {StatusAnalyzing},
	StatusAnalyzing:        {StatusPlanning},
	StatusPlanning:         {StatusAwaitingApproval},
	StatusAwaitingApproval: {StatusGenerating},
	StatusGenerating:       {StatusSmoothing, StatusDone, StatusPaused},
	StatusSmoothing:        {StatusDone},
	StatusPaused:           {StatusGenerating, StatusDone},
}

// IsTerminal reports whether no further transitions are possible.
// A paused session is not terminal: a later approve/refine request
// can resume it even though the original pipeline instance exited.
func (s SessionStatus) IsTerminal() bool {
	return s == StatusDone || s == StatusCancelled || s == StatusError
}

// CanTransition reports whether from → to is a legal state change.
func CanTransition(from, to SessionStatus) bool {
	if from == to {
		return false
	}
	if from.IsTerminal() {
		// refine re-runs generation on a completed session
		return from == StatusDone && to == StatusGenerating
	}
	if to == StatusCancelled || to == StatusError || to == StatusPaused {
		return true
	}
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// GenerationConstraints are the structured options a client can pin
// before generation starts.
type GenerationConstraints struct {
	Style      string  `json:"style,omitempty"`
	MinSpacing float64 `json:"minSpacing,omitempty"` // meters between performers
	MaxSpeed   float64 `json:"maxSpeed,omitempty"`   // meters per second
	Mirror     bool    `json:"mirror,omitempty"`
}

// Session is the durable record of one generation request's lifecycle.
type Session struct {
	ID                  string                `json:"id"`
	UserID              string                `json:"userId"`
	FormationID         string                `json:"formationId"`
	SongID              string                `json:"songId,omitempty"`
	Description         string                `json:"description"`
	PerformerIDs        []string              `json:"performerIds"`
	Constraints         GenerationConstraints `json:"constraints"`
	Status              SessionStatus         `json:"status"`
	Plan                *ShowPlan             `json:"plan,omitempty"`
	PlanApproved        bool                  `json:"planApproved"`
	CurrentSectionIndex int                   `json:"currentSectionIndex"`
	TotalSections       int                   `json:"totalSections"`
	TokensUsed          int                   `json:"tokensUsed"`
	ErrorMessage        *string               `json:"errorMessage,omitempty"`
	CreatedAt           time.Time             `json:"createdAt"`
	CompletedAt         *time.Time            `json:"completedAt,omitempty"`
}
