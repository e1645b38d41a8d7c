package model

// TransitionType describes how performers travel into a keyframe.
type TransitionType string

const (
	TransitionLinear TransitionType = "linear"
	TransitionCurved TransitionType = "curved"
	TransitionSnap   TransitionType = "snap"
)

// PerformerPosition is a single performer's placement on the field.
type PerformerPosition struct {
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Rotation float64 `json:"rotation"`
}

// Keyframe is a timestamped snapshot of every performer's position.
type Keyframe struct {
	ID          string                       `json:"id"`
	TimestampMs int                          `json:"timestampMs"`
	DurationMs  int                          `json:"durationMs"`
	Transition  TransitionType               `json:"transition"`
	Positions   map[string]PerformerPosition `json:"positions"` // performer id → position
}

// PositionAdjustment is a single smoothing correction for one performer
// in one keyframe.
type PositionAdjustment struct {
	KeyframeID  string  `json:"keyframeId"`
	PerformerID string  `json:"performerId"`
	NewX        float64 `json:"newX"`
	NewY        float64 `json:"newY"`
}
