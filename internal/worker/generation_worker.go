package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/hibiken/asynq"

	"github.com/kentin0-fiz0l/FluxStudio-sub015/internal/pipeline"
)

// GenerationWorker runs queued generation tasks through the pipeline.
type GenerationWorker struct {
	pipeline *pipeline.Pipeline
}

// NewGenerationWorker creates a new generation worker
func NewGenerationWorker(p *pipeline.Pipeline) *GenerationWorker {
	return &GenerationWorker{pipeline: p}
}

// ProcessTask handles one generation task. Pipeline failures are
// reported to the client through progress events and the session
// record; the returned error only marks the task failed in the queue.
func (w *GenerationWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload struct {
		SessionID string `json:"sessionId"`
	}
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal task payload: %w", err)
	}

	log.Printf("Starting generation session: %s", payload.SessionID)

	if err := w.pipeline.Run(ctx, payload.SessionID); err != nil {
		return fmt.Errorf("generation session %s failed: %w", payload.SessionID, err)
	}

	return nil
}
