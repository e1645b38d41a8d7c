// Package pipeline contains the generation orchestrator: the multi-stage
// run that turns a show description into keyframes, gated by a human
// approval rendezvous and interruptible from concurrent requests.
package pipeline

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/kentin0-fiz0l/FluxStudio-sub015/internal/approval"
	"github.com/kentin0-fiz0l/FluxStudio-sub015/internal/client"
	"github.com/kentin0-fiz0l/FluxStudio-sub015/internal/interrupt"
	"github.com/kentin0-fiz0l/FluxStudio-sub015/internal/model"
	"github.com/kentin0-fiz0l/FluxStudio-sub015/internal/store"
)

// Generator is the AI collaborator producing plans, keyframes and
// smoothing adjustments.
type Generator interface {
	GeneratePlan(ctx context.Context, req *client.PlanRequest) (*client.PlanResult, error)
	GenerateKeyframe(ctx context.Context, req *client.KeyframeRequest) (*client.KeyframeResult, error)
	Smooth(ctx context.Context, req *client.SmoothRequest) (*client.SmoothResult, error)
}

// Analyzer is the music-structure collaborator.
type Analyzer interface {
	Analyze(ctx context.Context, songID string) (*model.MusicAnalysis, error)
}

// SyncSession is one open connection into the collaborative document.
type SyncSession interface {
	SetPresence(ctx context.Context, state, label string) error
	WriteKeyframe(ctx context.Context, kf model.Keyframe, chunkSize int) error
	ApplyAdjustment(ctx context.Context, keyframeID, performerID string, x, y float64) error
	Disconnect(ctx context.Context) error
}

// SyncConnector opens document connections.
type SyncConnector interface {
	Connect(ctx context.Context, resourceID, parentID string) (SyncSession, error)
}

// Publisher pushes progress events toward the requesting client.
// Implementations must never fail; a vanished subscriber drops events.
type Publisher interface {
	Publish(sessionID string, event model.ProgressEvent)
}

// Options tune the orchestration run. All values are injected from
// config; zero values fall back to production defaults.
type Options struct {
	ApprovalPollInterval  time.Duration
	ApprovalTimeout       time.Duration
	SyncGrace             time.Duration // negative disables the hold
	SyncChunkSize         int
	DefaultSongDurationMs int
	FallbackSectionMs     int
}

func (o *Options) withDefaults() Options {
	opts := *o
	if opts.ApprovalPollInterval <= 0 {
		opts.ApprovalPollInterval = 2 * time.Second
	}
	if opts.ApprovalTimeout <= 0 {
		opts.ApprovalTimeout = 5 * time.Minute
	}
	if opts.SyncGrace == 0 {
		opts.SyncGrace = time.Second
	}
	if opts.SyncChunkSize <= 0 {
		opts.SyncChunkSize = 8
	}
	if opts.DefaultSongDurationMs <= 0 {
		opts.DefaultSongDurationMs = 180000
	}
	if opts.FallbackSectionMs <= 0 {
		opts.FallbackSectionMs = 15000
	}
	return opts
}

// Pipeline orchestrates one generation run per invocation. Instances
// are stateless and safe for concurrent Run calls on distinct sessions.
type Pipeline struct {
	store      store.SessionStore
	registry   *interrupt.Registry
	analyzer   Analyzer
	generator  Generator
	sync       SyncConnector
	publisher  Publisher
	rendezvous *approval.Rendezvous
	opts       Options
}

func New(
	sessionStore store.SessionStore,
	registry *interrupt.Registry,
	analyzer Analyzer,
	generator Generator,
	sync SyncConnector,
	publisher Publisher,
	opts Options,
) *Pipeline {
	opts = opts.withDefaults()
	return &Pipeline{
		store:      sessionStore,
		registry:   registry,
		analyzer:   analyzer,
		generator:  generator,
		sync:       sync,
		publisher:  publisher,
		rendezvous: approval.NewRendezvous(sessionStore, opts.ApprovalPollInterval, opts.ApprovalTimeout),
		opts:       opts,
	}
}

// Run executes the full generation for a session. The interrupt registry
// entry for the session is cleared on every exit path, and a sync
// connection opened here is always disconnected, error or not.
func (p *Pipeline) Run(ctx context.Context, sessionID string) error {
	defer p.registry.Clear(sessionID)

	session, err := p.store.Get(ctx, sessionID)
	if err != nil {
		prereq := &PrerequisiteError{Reason: "session not found"}
		p.fail(ctx, sessionID, prereq)
		return prereq
	}

	p.publisher.Publish(sessionID, model.ProgressEvent{
		Type:      model.EventSession,
		SessionID: sessionID,
		Status:    session.Status,
	})

	if len(session.PerformerIDs) == 0 {
		prereq := &PrerequisiteError{Reason: "no performers found for formation"}
		p.fail(ctx, sessionID, prereq)
		return prereq
	}

	conn, err := p.sync.Connect(ctx, session.FormationID, session.ID)
	if err != nil {
		upstream := &UpstreamError{Stage: "sync_connect", Err: err}
		p.fail(ctx, sessionID, upstream)
		return upstream
	}

	terminal, runErr := p.execute(ctx, session, conn)

	// Cleanup runs identically for success, pause, cancel and failure.
	// The presence hold lets collaborators observe the final state
	// before the connection drops.
	if runErr != nil {
		terminal = model.StatusError
	}
	if err := conn.SetPresence(ctx, string(terminal), presenceLabel(terminal)); err != nil {
		log.Printf("Failed to set terminal presence for session %s: %v", sessionID, err)
	}
	if p.opts.SyncGrace > 0 {
		time.Sleep(p.opts.SyncGrace)
	}
	if err := conn.Disconnect(ctx); err != nil {
		log.Printf("Failed to disconnect sync session %s: %v", sessionID, err)
	}

	if runErr != nil {
		p.fail(ctx, sessionID, runErr)
		return runErr
	}

	log.Printf("Generation session %s finished with status %s", sessionID, terminal)
	return nil
}

// execute walks the stage sequence and returns the terminal status.
// Pause, cancel and approval timeout are normal outcomes (nil error);
// only collaborator failures return a non-nil error.
func (p *Pipeline) execute(ctx context.Context, session *model.Session, conn SyncSession) (model.SessionStatus, error) {
	sessionID := session.ID

	// Stage 1: music analysis, with synthesized sections as fallback so
	// missing audio metadata never blocks generation.
	p.setStatus(ctx, sessionID, model.StatusAnalyzing)
	analysis := p.analyze(ctx, session.SongID)
	p.publisher.Publish(sessionID, model.ProgressEvent{
		Type:      model.EventMusicAnalysis,
		SessionID: sessionID,
		Analysis:  analysis,
	})

	// Stage 2: show plan, then the approval gate.
	p.setStatus(ctx, sessionID, model.StatusPlanning)
	planRes, err := p.generator.GeneratePlan(ctx, &client.PlanRequest{
		SessionID:      sessionID,
		Description:    session.Description,
		Analysis:       *analysis,
		PerformerCount: len(session.PerformerIDs),
		Constraints:    session.Constraints,
	})
	if err != nil {
		return model.StatusError, &UpstreamError{Stage: "plan", Err: err}
	}

	tokensUsed := session.TokensUsed + planRes.TokensUsed
	totalSections := len(planRes.Plan.Sections)
	p.update(ctx, sessionID, store.SessionUpdate{
		Plan:          &planRes.Plan,
		TotalSections: &totalSections,
		TokensUsed:    &tokensUsed,
	})

	p.publisher.Publish(sessionID, model.ProgressEvent{
		Type:      model.EventPlan,
		SessionID: sessionID,
		Plan:      &planRes.Plan,
	})

	p.setStatusQuiet(ctx, sessionID, model.StatusAwaitingApproval)
	p.publisher.Publish(sessionID, model.ProgressEvent{
		Type:      model.EventAwaitingApproval,
		SessionID: sessionID,
		Status:    model.StatusAwaitingApproval,
	})

	if result := p.rendezvous.Wait(ctx, sessionID); result != approval.Approved {
		log.Printf("Session %s approval wait ended: %s", sessionID, result)
		p.publisher.Publish(sessionID, model.ProgressEvent{
			Type:      model.EventCancelled,
			SessionID: sessionID,
			Status:    model.StatusCancelled,
			Summary:   result.String(),
		})
		p.finishWith(ctx, sessionID, model.StatusCancelled, tokensUsed)
		return model.StatusCancelled, nil
	}

	// Stage 3: keyframes, strictly in section-then-index order — each
	// call is seeded with the previous keyframe's positions, so the
	// chain cannot be parallelized.
	p.setStatusQuiet(ctx, sessionID, model.StatusGenerating)
	p.publisher.Publish(sessionID, model.ProgressEvent{
		Type:      model.EventGenerating,
		SessionID: sessionID,
		Status:    model.StatusGenerating,
	})

	var (
		keyframes  []model.Keyframe
		prev       map[string]model.PerformerPosition
		continuity = planRes.ContinuityToken
		globalIdx  = 0
	)

	for si, section := range planRes.Plan.Sections {
		if status, interrupted := p.checkInterrupt(ctx, sessionID, si, tokensUsed); interrupted {
			return status, nil
		}

		for ki := 0; ki < section.KeyframeCount; ki++ {
			// finer-grained than the section check: a cancel must land
			// within one in-flight call, not after a whole section
			if status, interrupted := p.checkInterrupt(ctx, sessionID, si, tokensUsed); interrupted {
				return status, nil
			}

			ts, dur := keyframeTiming(analysis, &planRes.Plan, section, ki, globalIdx, p.opts.DefaultSongDurationMs)

			kfRes, err := p.generator.GenerateKeyframe(ctx, &client.KeyframeRequest{
				SessionID:         sessionID,
				Section:           section,
				KeyframeIndex:     ki,
				PerformerIDs:      session.PerformerIDs,
				PreviousPositions: prev,
				ContinuityToken:   continuity,
			})
			if err != nil {
				return model.StatusError, &UpstreamError{Stage: "keyframe", Err: err}
			}

			kf := model.Keyframe{
				ID:          uuid.New().String(),
				TimestampMs: ts,
				DurationMs:  dur,
				Transition:  model.TransitionLinear,
				Positions:   kfRes.Positions,
			}
			keyframes = append(keyframes, kf)
			prev = kfRes.Positions
			continuity = kfRes.ContinuityToken
			tokensUsed += kfRes.TokensUsed

			// progressive write so collaborators see the show grow
			if err := conn.WriteKeyframe(ctx, kf, p.opts.SyncChunkSize); err != nil {
				return model.StatusError, &UpstreamError{Stage: "sync_write", Err: err}
			}

			// crash/resume checkpoint
			sectionIdx := si
			p.update(ctx, sessionID, store.SessionUpdate{
				CurrentSectionIndex: &sectionIdx,
				TokensUsed:          &tokensUsed,
			})

			p.publisher.Publish(sessionID, model.ProgressEvent{
				Type:      model.EventKeyframe,
				SessionID: sessionID,
				Keyframe: &model.KeyframeProgress{
					GlobalKeyframeIndex: globalIdx,
					SectionIndex:        si,
					TotalKeyframes:      planRes.Plan.TotalKeyframes,
					Keyframe:            kf,
				},
			})
			globalIdx++
		}
	}

	// Stage 4: smoothing pass over the full set, skipped for a single
	// keyframe (nothing to smooth between).
	if len(keyframes) > 1 {
		p.setStatus(ctx, sessionID, model.StatusSmoothing)

		smoothRes, err := p.generator.Smooth(ctx, &client.SmoothRequest{
			SessionID:    sessionID,
			Keyframes:    keyframes,
			PerformerIDs: session.PerformerIDs,
		})
		if err != nil {
			return model.StatusError, &UpstreamError{Stage: "smoothing", Err: err}
		}
		tokensUsed += smoothRes.TokensUsed

		for _, adj := range smoothRes.Adjustments {
			if err := conn.ApplyAdjustment(ctx, adj.KeyframeID, adj.PerformerID, adj.NewX, adj.NewY); err != nil {
				return model.StatusError, &UpstreamError{Stage: "smoothing", Err: err}
			}
		}

		p.publisher.Publish(sessionID, model.ProgressEvent{
			Type:      model.EventSmoothing,
			SessionID: sessionID,
			Summary:   smoothRes.Summary,
		})
	}

	// Stage 5: finalize.
	p.finishWith(ctx, sessionID, model.StatusDone, tokensUsed)
	p.publisher.Publish(sessionID, model.ProgressEvent{
		Type:      model.EventDone,
		SessionID: sessionID,
		Status:    model.StatusDone,
	})

	return model.StatusDone, nil
}

// checkInterrupt reads the registry signal. Anything other than running
// (including a missing entry, which means the run lost its slot) stops
// the loop: paused keeps the session resumable, cancelled is terminal.
func (p *Pipeline) checkInterrupt(ctx context.Context, sessionID string, completedSections, tokensUsed int) (model.SessionStatus, bool) {
	sig, ok := p.registry.Get(sessionID)
	if ok && sig == interrupt.SignalRunning {
		return "", false
	}
	if !ok {
		sig = interrupt.SignalCancelled
	}

	status := model.StatusPaused
	if sig == interrupt.SignalCancelled {
		status = model.StatusCancelled
	}

	p.publisher.Publish(sessionID, model.ProgressEvent{
		Type:      model.EventPaused,
		SessionID: sessionID,
		Status:    status,
		Paused: &model.PausedProgress{
			CompletedSections: completedSections,
			Signal:            string(sig),
			Status:            status,
		},
	})

	if status == model.StatusCancelled {
		p.finishWith(ctx, sessionID, status, tokensUsed)
	} else {
		p.update(ctx, sessionID, store.SessionUpdate{
			Status:     &status,
			TokensUsed: &tokensUsed,
		})
	}

	log.Printf("Session %s interrupted (%s) after %d completed sections", sessionID, sig, completedSections)
	return status, true
}

// analyze fetches music structure, synthesizing evenly spaced sections
// when the song is missing or the analysis comes back empty.
func (p *Pipeline) analyze(ctx context.Context, songID string) *model.MusicAnalysis {
	analysis, err := p.analyzer.Analyze(ctx, songID)
	if err != nil {
		log.Printf("Music analysis unavailable (%v), using fallback sections", err)
		return p.fallbackAnalysis()
	}
	if !analysis.HasSong || len(analysis.Sections) == 0 {
		return p.fallbackAnalysis()
	}
	return analysis
}

func (p *Pipeline) fallbackAnalysis() *model.MusicAnalysis {
	total := p.opts.DefaultSongDurationMs
	slice := p.opts.FallbackSectionMs

	analysis := &model.MusicAnalysis{
		TotalDurationMs: total,
		HasSong:         false,
	}
	for start := 0; start < total; start += slice {
		dur := slice
		if start+dur > total {
			dur = total - start
		}
		analysis.Sections = append(analysis.Sections, model.MusicSection{
			StartMs:    start,
			DurationMs: dur,
		})
	}
	return analysis
}

// keyframeTiming places a keyframe on the timeline. With a matching
// music section the timestamp is the section start plus a proportional
// offset; otherwise it is a proportional offset across the whole song,
// which keeps timestamps monotonic even with partial analysis data.
func keyframeTiming(analysis *model.MusicAnalysis, plan *model.ShowPlan, section model.PlanSection, ki, globalIdx, defaultTotalMs int) (int, int) {
	if section.SectionIndex >= 0 && section.SectionIndex < len(analysis.Sections) && section.KeyframeCount > 0 {
		ms := analysis.Sections[section.SectionIndex]
		dur := ms.DurationMs / section.KeyframeCount
		return ms.StartMs + ki*dur, dur
	}

	total := analysis.TotalDurationMs
	if total <= 0 {
		total = defaultTotalMs
	}
	count := plan.TotalKeyframes
	if count <= 0 {
		count = 1
	}
	dur := total / count
	return globalIdx * dur, dur
}

// setStatus persists a status change and emits a status event. Store
// failures are logged and skipped; progress persistence must not take
// the pipeline down.
func (p *Pipeline) setStatus(ctx context.Context, sessionID string, status model.SessionStatus) {
	p.setStatusQuiet(ctx, sessionID, status)
	p.publisher.Publish(sessionID, model.ProgressEvent{
		Type:      model.EventStatus,
		SessionID: sessionID,
		Status:    status,
	})
}

func (p *Pipeline) setStatusQuiet(ctx context.Context, sessionID string, status model.SessionStatus) {
	p.update(ctx, sessionID, store.SessionUpdate{Status: &status})
}

func (p *Pipeline) update(ctx context.Context, sessionID string, update store.SessionUpdate) {
	if err := p.store.Update(ctx, sessionID, update); err != nil {
		log.Printf("Failed to update session %s: %v", sessionID, err)
	}
}

func (p *Pipeline) finishWith(ctx context.Context, sessionID string, status model.SessionStatus, tokensUsed int) {
	now := time.Now()
	p.update(ctx, sessionID, store.SessionUpdate{
		Status:      &status,
		TokensUsed:  &tokensUsed,
		CompletedAt: &now,
	})
}

// fail reports a pipeline failure: one error event, then a best-effort
// store update that must never mask the original failure.
func (p *Pipeline) fail(ctx context.Context, sessionID string, cause error) {
	p.publisher.Publish(sessionID, model.ProgressEvent{
		Type:      model.EventError,
		SessionID: sessionID,
		Status:    model.StatusError,
		Error: &model.ErrorProgress{
			Code:      errorCode(cause),
			Message:   cause.Error(),
			Retryable: retryable(cause),
		},
	})

	status := model.StatusError
	msg := cause.Error()
	now := time.Now()
	if err := p.store.Update(ctx, sessionID, store.SessionUpdate{
		Status:       &status,
		ErrorMessage: &msg,
		CompletedAt:  &now,
	}); err != nil {
		log.Printf("Failed to persist error state for session %s: %v", sessionID, err)
	}
}

func presenceLabel(status model.SessionStatus) string {
	switch status {
	case model.StatusDone:
		return "Generation complete"
	case model.StatusPaused:
		return "Generation paused"
	case model.StatusCancelled:
		return "Generation cancelled"
	default:
		return "Generation failed"
	}
}
