package model

// Progress event types pushed to the requesting client. Events are
// advisory telemetry only; pipeline logic never depends on delivery.
type ProgressEventType string

const (
	EventSession          ProgressEventType = "session"
	EventStatus           ProgressEventType = "status"
	EventMusicAnalysis    ProgressEventType = "music_analysis"
	EventPlan             ProgressEventType = "plan"
	EventAwaitingApproval ProgressEventType = "awaiting_approval"
	EventGenerating       ProgressEventType = "generating"
	EventKeyframe         ProgressEventType = "keyframe"
	EventPaused           ProgressEventType = "paused"
	EventSmoothing        ProgressEventType = "smoothing"
	EventDone             ProgressEventType = "done"
	EventCancelled        ProgressEventType = "cancelled"
	EventError            ProgressEventType = "error"
)

// KeyframeProgress is the payload of a keyframe event.
type KeyframeProgress struct {
	GlobalKeyframeIndex int      `json:"globalKeyframeIndex"`
	SectionIndex        int      `json:"sectionIndex"`
	TotalKeyframes      int      `json:"totalKeyframes"`
	Keyframe            Keyframe `json:"keyframe"`
}

// PausedProgress is the payload of a paused event.
type PausedProgress struct {
	CompletedSections int           `json:"completedSections"`
	Signal            string        `json:"signal"` // "paused" or "cancelled"
	Status            SessionStatus `json:"status"`
}

// ErrorProgress is the payload of an error event.
type ErrorProgress struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

// ProgressEvent is one entry in a session's ordered progress stream.
// Exactly one payload field is set, matching Type.
type ProgressEvent struct {
	Type      ProgressEventType `json:"type"`
	SessionID string            `json:"sessionId"`
	Status    SessionStatus     `json:"status,omitempty"`
	Analysis  *MusicAnalysis    `json:"analysis,omitempty"`
	Plan      *ShowPlan         `json:"plan,omitempty"`
	Keyframe  *KeyframeProgress `json:"keyframe,omitempty"`
	Paused    *PausedProgress   `json:"paused,omitempty"`
	Summary   string            `json:"summary,omitempty"`
	Error     *ErrorProgress    `json:"error,omitempty"`
}
