package pipeline

import "fmt"

// Error codes surfaced in error progress events.
const (
	CodeGenerationFailed    = "GENERATION_FAILED"
	CodeMissingPrerequisite = "MISSING_PREREQUISITE"
)

// UpstreamError wraps a failure of an external collaborator (analysis,
// plan, keyframe, smoothing, sync). Always retryable from the client's
// point of view: a new generation request may succeed.
type UpstreamError struct {
	Stage string
	Err   error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s stage failed: %v", e.Stage, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// PrerequisiteError means required input is missing (no performers, no
// session). Not retryable: the same request will fail the same way.
type PrerequisiteError struct {
	Reason string
}

func (e *PrerequisiteError) Error() string {
	return e.Reason
}

// errorCode maps a pipeline failure to its progress-event code.
func errorCode(err error) string {
	if _, ok := err.(*PrerequisiteError); ok {
		return CodeMissingPrerequisite
	}
	return CodeGenerationFailed
}

// retryable reports whether the client may retry with a fresh request.
func retryable(err error) bool {
	_, prereq := err.(*PrerequisiteError)
	return !prereq
}
