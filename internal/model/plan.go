package model

// PlanSection is one named movement of the show plan.
type PlanSection struct {
	SectionName      string `json:"sectionName"`
	SectionIndex     int    `json:"sectionIndex"` // index into the music analysis sections
	FormationConcept string `json:"formationConcept"`
	Energy           string `json:"energy"`
	KeyframeCount    int    `json:"keyframeCount"`
}

// ShowPlan is the ordered list of sections produced before keyframe
// generation begins. Immutable once persisted; refinement produces
// derived keyframe updates, never a plan mutation.
type ShowPlan struct {
	Sections       []PlanSection `json:"sections"`
	TotalKeyframes int           `json:"totalKeyframes"`
}

// MusicSection is one structural segment reported by the analysis service.
type MusicSection struct {
	StartMs    int     `json:"startMs"`
	DurationMs int     `json:"durationMs"`
	Label      string  `json:"label,omitempty"`
	Energy     float64 `json:"energy,omitempty"`
}

// MusicAnalysis is the structure of the source song.
type MusicAnalysis struct {
	Sections        []MusicSection `json:"sections"`
	TotalDurationMs int            `json:"totalDurationMs"`
	HasSong         bool           `json:"hasSong"`
}
