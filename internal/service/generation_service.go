package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/kentin0-fiz0l/FluxStudio-sub015/internal/client"
	"github.com/kentin0-fiz0l/FluxStudio-sub015/internal/interrupt"
	"github.com/kentin0-fiz0l/FluxStudio-sub015/internal/model"
	"github.com/kentin0-fiz0l/FluxStudio-sub015/internal/pipeline"
	"github.com/kentin0-fiz0l/FluxStudio-sub015/internal/store"
)

const (
	TaskTypeGeneration = "generation:run"

	// a run that outlives this is stuck, not slow
	generationTaskTimeout = 30 * time.Minute
	taskRetention         = 24 * time.Hour
)

var (
	// ErrSessionNotFound means the session id resolves to nothing.
	ErrSessionNotFound = store.ErrNotFound
	// ErrInvalidState means the session's current status does not allow
	// the requested operation.
	ErrInvalidState = errors.New("operation not allowed in current session state")
	// ErrActiveRun means a pipeline instance is currently executing for
	// the session.
	ErrActiveRun = errors.New("a generation run is already active for this session")
)

// Enqueuer is the task-queue surface the service needs.
type Enqueuer interface {
	Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Refiner applies free-text adjustments to an already-generated show.
type Refiner interface {
	Refine(ctx context.Context, req *client.RefineRequest) (*client.RefineResult, error)
}

// GenerationService owns the session lifecycle around the pipeline:
// starting runs, the approval gate, interrupts and refinement.
type GenerationService struct {
	store       store.SessionStore
	registry    *interrupt.Registry
	asynqClient Enqueuer
	refiner     Refiner
	sync        pipeline.SyncConnector
}

func NewGenerationService(
	sessionStore store.SessionStore,
	registry *interrupt.Registry,
	asynqClient Enqueuer,
	refiner Refiner,
	sync pipeline.SyncConnector,
) *GenerationService {
	return &GenerationService{
		store:       sessionStore,
		registry:    registry,
		asynqClient: asynqClient,
		refiner:     refiner,
		sync:        sync,
	}
}

// generationTaskPayload is the asynq task body.
type generationTaskPayload struct {
	SessionID string `json:"sessionId"`
}

// StartGeneration creates a session and queues its pipeline run. The
// interrupt registry entry is claimed here, before the task is visible
// to a worker, so an interrupt arriving immediately after the response
// always finds the slot.
func (s *GenerationService) StartGeneration(ctx context.Context, userID string, req *model.GenerateStartRequest) (*model.GenerateStartResponse, error) {
	performers := req.PerformerIDs
	if len(performers) == 0 && req.PerformerCount > 0 {
		performers = make([]string, req.PerformerCount)
		for i := range performers {
			performers[i] = fmt.Sprintf("performer-%d", i+1)
		}
	}

	sessionID := uuid.New().String()
	now := time.Now()

	session := &model.Session{
		ID:           sessionID,
		UserID:       userID,
		FormationID:  req.FormationID,
		SongID:       req.SongID,
		Description:  req.Description,
		PerformerIDs: performers,
		Constraints:  req.Constraints,
		Status:       model.StatusCreated,
		CreatedAt:    now,
	}

	if err := s.store.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	s.registry.Set(sessionID, interrupt.SignalRunning)

	payload, err := json.Marshal(&generationTaskPayload{SessionID: sessionID})
	if err != nil {
		s.registry.Clear(sessionID)
		return nil, fmt.Errorf("failed to marshal task payload: %w", err)
	}

	// MaxRetry(0): a second delivery would re-run stages whose effects
	// (document writes, token spend) are already visible.
	_, err = s.asynqClient.Enqueue(asynq.NewTask(TaskTypeGeneration, payload),
		asynq.Queue("generation"),
		asynq.MaxRetry(0),
		asynq.Timeout(generationTaskTimeout),
		asynq.Retention(taskRetention),
	)
	if err != nil {
		s.registry.Clear(sessionID)
		s.markFailed(ctx, sessionID, "failed to queue generation task")
		return nil, fmt.Errorf("failed to enqueue task: %w", err)
	}

	return &model.GenerateStartResponse{
		SessionID: sessionID,
		Status:    model.StatusCreated,
		CreatedAt: now,
	}, nil
}

// GetSession returns the read-only projection of a session.
func (s *GenerationService) GetSession(ctx context.Context, sessionID string) (*model.SessionResponse, error) {
	session, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	return &model.SessionResponse{
		SessionID:           session.ID,
		FormationID:         session.FormationID,
		SongID:              session.SongID,
		Status:              session.Status,
		Plan:                session.Plan,
		PlanApproved:        session.PlanApproved,
		CurrentSectionIndex: session.CurrentSectionIndex,
		TotalSections:       session.TotalSections,
		TokensUsed:          session.TokensUsed,
		Error:               session.ErrorMessage,
		CreatedAt:           session.CreatedAt,
		CompletedAt:         session.CompletedAt,
	}, nil
}

// Approve sets the plan-approved flag the pipeline's rendezvous is
// polling for. Only a session still parked at the gate can be approved;
// a second approval while it waits is a no-op success, so concurrent
// approvals race harmlessly.
func (s *GenerationService) Approve(ctx context.Context, sessionID string) (*model.ApproveResponse, error) {
	session, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if session.Status != model.StatusAwaitingApproval {
		return nil, fmt.Errorf("%w: session is %s, not awaiting approval", ErrInvalidState, session.Status)
	}

	if session.PlanApproved {
		return &model.ApproveResponse{
			SessionID:    sessionID,
			Status:       session.Status,
			PlanApproved: true,
		}, nil
	}

	approved := true
	if err := s.store.Update(ctx, sessionID, store.SessionUpdate{PlanApproved: &approved}); err != nil {
		return nil, fmt.Errorf("failed to record approval: %w", err)
	}

	return &model.ApproveResponse{
		SessionID:    sessionID,
		Status:       model.StatusAwaitingApproval,
		PlanApproved: true,
	}, nil
}

// Interrupt records a pause or cancel signal for the session's run.
// The pipeline picks the signal up at its next checkpoint; cancel is
// additionally persisted so a session parked at the approval gate
// observes it through the store.
func (s *GenerationService) Interrupt(ctx context.Context, sessionID, action string) (*model.InterruptResponse, error) {
	session, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	_, active := s.registry.Get(sessionID)

	switch action {
	case model.InterruptActionPause:
		if !model.CanTransition(session.Status, model.StatusPaused) {
			return nil, fmt.Errorf("%w: cannot pause a %s session", ErrInvalidState, session.Status)
		}
		if !active {
			return nil, fmt.Errorf("%w: no active run to pause", ErrInvalidState)
		}
		s.registry.Set(sessionID, interrupt.SignalPaused)
		return &model.InterruptResponse{
			SessionID: sessionID,
			Action:    action,
			Status:    session.Status,
		}, nil

	case model.InterruptActionCancel:
		if !model.CanTransition(session.Status, model.StatusCancelled) {
			return nil, fmt.Errorf("%w: cannot cancel a %s session", ErrInvalidState, session.Status)
		}
		if active {
			s.registry.Set(sessionID, interrupt.SignalCancelled)
		}
		status := model.StatusCancelled
		now := time.Now()
		if err := s.store.Update(ctx, sessionID, store.SessionUpdate{
			Status:      &status,
			CompletedAt: &now,
		}); err != nil {
			return nil, fmt.Errorf("failed to persist cancellation: %w", err)
		}
		return &model.InterruptResponse{
			SessionID: sessionID,
			Action:    action,
			Status:    status,
		}, nil

	default:
		return nil, fmt.Errorf("%w: unknown interrupt action %q", ErrInvalidState, action)
	}
}

// Refine applies a free-text instruction to a finished or paused
// session: the AI proposes position adjustments and they are written
// straight into the collaborative document. Rejected while a pipeline
// run is active, which would race the document writes.
func (s *GenerationService) Refine(ctx context.Context, sessionID string, req *model.RefineRequest) (*model.RefineResponse, error) {
	session, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if _, active := s.registry.Get(sessionID); active {
		return nil, ErrActiveRun
	}
	// refine resumes along the done/paused → generating edges; the
	// awaiting_approval → generating edge belongs to the approval gate
	if session.Status == model.StatusAwaitingApproval || !model.CanTransition(session.Status, model.StatusGenerating) {
		return nil, fmt.Errorf("%w: refine requires a done or paused session, got %s", ErrInvalidState, session.Status)
	}
	if session.Plan == nil {
		return nil, fmt.Errorf("%w: session has no plan to refine", ErrInvalidState)
	}

	result, err := s.refiner.Refine(ctx, &client.RefineRequest{
		SessionID:    sessionID,
		Instruction:  req.Instruction,
		Plan:         *session.Plan,
		PerformerIDs: session.PerformerIDs,
	})
	if err != nil {
		return nil, fmt.Errorf("refinement failed: %w", err)
	}

	conn, err := s.sync.Connect(ctx, session.FormationID, session.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to open document connection: %w", err)
	}
	defer func() {
		if err := conn.Disconnect(ctx); err != nil {
			log.Printf("Failed to disconnect refine session %s: %v", sessionID, err)
		}
	}()

	for _, adj := range result.Adjustments {
		if err := conn.ApplyAdjustment(ctx, adj.KeyframeID, adj.PerformerID, adj.NewX, adj.NewY); err != nil {
			return nil, fmt.Errorf("failed to apply adjustment: %w", err)
		}
	}

	status := model.StatusDone
	tokens := session.TokensUsed + result.TokensUsed
	if err := s.store.Update(ctx, sessionID, store.SessionUpdate{
		Status:     &status,
		TokensUsed: &tokens,
	}); err != nil {
		log.Printf("Failed to persist refinement for session %s: %v", sessionID, err)
	}

	return &model.RefineResponse{
		SessionID:        sessionID,
		Status:           status,
		UpdatedPositions: len(result.Adjustments),
		Summary:          result.Summary,
	}, nil
}

func (s *GenerationService) markFailed(ctx context.Context, sessionID, msg string) {
	status := model.StatusError
	now := time.Now()
	if err := s.store.Update(ctx, sessionID, store.SessionUpdate{
		Status:       &status,
		ErrorMessage: &msg,
		CompletedAt:  &now,
	}); err != nil {
		log.Printf("Failed to mark session %s as failed: %v", sessionID, err)
	}
}
