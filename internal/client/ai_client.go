package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/kentin0-fiz0l/FluxStudio-sub015/internal/config"
	"github.com/kentin0-fiz0l/FluxStudio-sub015/internal/model"
)

// AIClient talks to an OpenAI-compatible chat-completions endpoint to
// produce show plans, keyframes, smoothing passes and refinements.
// When no API key is configured it falls back to deterministic mock
// output so the pipeline stays exercisable in development.
type AIClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
}

// PlanRequest seeds show-plan generation.
type PlanRequest struct {
	SessionID      string                      `json:"sessionId"`
	Description    string                      `json:"description"`
	Analysis       model.MusicAnalysis         `json:"analysis"`
	PerformerCount int                         `json:"performerCount"`
	Constraints    model.GenerationConstraints `json:"constraints"`
}

// PlanResult is the generated plan plus the continuity token that
// threads context into the keyframe calls that follow.
type PlanResult struct {
	Plan            model.ShowPlan `json:"plan"`
	ContinuityToken string         `json:"continuityToken"`
	TokensUsed      int            `json:"tokensUsed"`
}

// KeyframeRequest seeds a single keyframe generation call.
type KeyframeRequest struct {
	SessionID         string                             `json:"sessionId"`
	Section           model.PlanSection                  `json:"section"`
	KeyframeIndex     int                                `json:"keyframeIndex"` // within the section
	PerformerIDs      []string                           `json:"performerIds"`
	PreviousPositions map[string]model.PerformerPosition `json:"previousPositions,omitempty"`
	ContinuityToken   string                             `json:"continuityToken,omitempty"`
}

// KeyframeResult carries the generated positions and the next token.
type KeyframeResult struct {
	Positions       map[string]model.PerformerPosition `json:"positions"`
	ContinuityToken string                             `json:"continuityToken"`
	TokensUsed      int                                `json:"tokensUsed"`
}

// SmoothRequest asks for an adjustment pass over the full keyframe set.
type SmoothRequest struct {
	SessionID    string           `json:"sessionId"`
	Keyframes    []model.Keyframe `json:"keyframes"`
	PerformerIDs []string         `json:"performerIds"`
}

// SmoothResult lists per-performer corrections.
type SmoothResult struct {
	Adjustments []model.PositionAdjustment `json:"adjustments"`
	Summary     string                     `json:"summary"`
	TokensUsed  int                        `json:"tokensUsed"`
}

// RefineRequest applies a free-text instruction to a finished session.
type RefineRequest struct {
	SessionID    string         `json:"sessionId"`
	Instruction  string         `json:"instruction"`
	Plan         model.ShowPlan `json:"plan"`
	PerformerIDs []string       `json:"performerIds"`
}

// RefineResult lists the position updates to apply to the document.
type RefineResult struct {
	Adjustments []model.PositionAdjustment `json:"adjustments"`
	Summary     string                     `json:"summary"`
	TokensUsed  int                        `json:"tokensUsed"`
}

// chat wire types (OpenAI-compatible)

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// NewAIClient creates a new generation client
func NewAIClient(cfg *config.AIConfig) *AIClient {
	return &AIClient{
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
	}
}

// GeneratePlan produces the section-by-section show plan.
func (c *AIClient) GeneratePlan(ctx context.Context, req *PlanRequest) (*PlanResult, error) {
	if !c.IsConfigured() {
		return c.mockPlan(req), nil
	}

	system := "You are a drill formation designer. Respond with a JSON object " +
		"{\"sections\":[{\"sectionName\",\"sectionIndex\",\"formationConcept\",\"energy\",\"keyframeCount\"}],\"totalKeyframes\",\"continuityToken\"}."

	var parsed struct {
		Sections        []model.PlanSection `json:"sections"`
		TotalKeyframes  int                 `json:"totalKeyframes"`
		ContinuityToken string              `json:"continuityToken"`
	}
	tokens, err := c.completeJSON(ctx, system, req, &parsed)
	if err != nil {
		return nil, fmt.Errorf("plan generation failed: %w", err)
	}

	if parsed.TotalKeyframes == 0 {
		for _, s := range parsed.Sections {
			parsed.TotalKeyframes += s.KeyframeCount
		}
	}

	return &PlanResult{
		Plan: model.ShowPlan{
			Sections:       parsed.Sections,
			TotalKeyframes: parsed.TotalKeyframes,
		},
		ContinuityToken: parsed.ContinuityToken,
		TokensUsed:      tokens,
	}, nil
}

// GenerateKeyframe produces performer positions for one keyframe, seeded
// with the previous keyframe's positions for continuity.
func (c *AIClient) GenerateKeyframe(ctx context.Context, req *KeyframeRequest) (*KeyframeResult, error) {
	if !c.IsConfigured() {
		return c.mockKeyframe(req), nil
	}

	system := "You are a drill formation designer placing performers on a field. " +
		"Respond with a JSON object {\"positions\":{performerId:{\"x\",\"y\",\"rotation\"}},\"continuityToken\"}."

	var parsed struct {
		Positions       map[string]model.PerformerPosition `json:"positions"`
		ContinuityToken string                             `json:"continuityToken"`
	}
	tokens, err := c.completeJSON(ctx, system, req, &parsed)
	if err != nil {
		return nil, fmt.Errorf("keyframe generation failed: %w", err)
	}
	if len(parsed.Positions) == 0 {
		return nil, fmt.Errorf("keyframe generation returned no positions")
	}

	return &KeyframeResult{
		Positions:       parsed.Positions,
		ContinuityToken: parsed.ContinuityToken,
		TokensUsed:      tokens,
	}, nil
}

// Smooth requests an adjustment pass over the generated keyframe set.
func (c *AIClient) Smooth(ctx context.Context, req *SmoothRequest) (*SmoothResult, error) {
	if !c.IsConfigured() {
		return &SmoothResult{Summary: "no adjustments (mock)", TokensUsed: 96}, nil
	}

	system := "You review drill keyframes for collisions and spacing. Respond with a JSON " +
		"object {\"adjustments\":[{\"keyframeId\",\"performerId\",\"newX\",\"newY\"}],\"summary\"}."

	var parsed struct {
		Adjustments []model.PositionAdjustment `json:"adjustments"`
		Summary     string                     `json:"summary"`
	}
	tokens, err := c.completeJSON(ctx, system, req, &parsed)
	if err != nil {
		return nil, fmt.Errorf("smoothing failed: %w", err)
	}

	return &SmoothResult{
		Adjustments: parsed.Adjustments,
		Summary:     parsed.Summary,
		TokensUsed:  tokens,
	}, nil
}

// Refine applies a free-text instruction to an already-generated show.
func (c *AIClient) Refine(ctx context.Context, req *RefineRequest) (*RefineResult, error) {
	if !c.IsConfigured() {
		return &RefineResult{Summary: "no changes (mock)", TokensUsed: 64}, nil
	}

	system := "You adjust existing drill keyframes per the user's instruction. Respond with a JSON " +
		"object {\"adjustments\":[{\"keyframeId\",\"performerId\",\"newX\",\"newY\"}],\"summary\"}."

	var parsed struct {
		Adjustments []model.PositionAdjustment `json:"adjustments"`
		Summary     string                     `json:"summary"`
	}
	tokens, err := c.completeJSON(ctx, system, req, &parsed)
	if err != nil {
		return nil, fmt.Errorf("refinement failed: %w", err)
	}

	return &RefineResult{
		Adjustments: parsed.Adjustments,
		Summary:     parsed.Summary,
		TokensUsed:  tokens,
	}, nil
}

// IsConfigured returns true if the client has valid configuration
func (c *AIClient) IsConfigured() bool {
	return c.apiKey != ""
}

// completeJSON sends one chat completion whose user message is the
// marshalled payload and parses the assistant reply into out.
// Returns the total token usage of the call.
func (c *AIClient) completeJSON(ctx context.Context, system string, payload interface{}, out interface{}) (int, error) {
	userBytes, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal payload: %w", err)
	}

	reqBody := chatCompletionRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: string(userBytes)},
		},
		Temperature: 0.7,
		MaxTokens:   4096,
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(bodyBytes))
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("generation API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var chatResp chatCompletionResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return 0, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if len(chatResp.Choices) == 0 {
		return 0, fmt.Errorf("no choices in response")
	}

	if err := json.Unmarshal([]byte(chatResp.Choices[0].Message.Content), out); err != nil {
		return chatResp.Usage.TotalTokens, fmt.Errorf("failed to parse model output: %w", err)
	}

	return chatResp.Usage.TotalTokens, nil
}

// Mock fallbacks for development without an API key.

func (c *AIClient) mockPlan(req *PlanRequest) *PlanResult {
	sectionCount := len(req.Analysis.Sections)
	if sectionCount == 0 {
		sectionCount = 2
	}
	concepts := []string{"block wedge", "rotating circle", "split columns", "diagonal sweep"}
	energies := []string{"build", "peak", "sustain", "release"}

	plan := model.ShowPlan{}
	for i := 0; i < sectionCount; i++ {
		plan.Sections = append(plan.Sections, model.PlanSection{
			SectionName:      fmt.Sprintf("Movement %d", i+1),
			SectionIndex:     i,
			FormationConcept: concepts[i%len(concepts)],
			Energy:           energies[i%len(energies)],
			KeyframeCount:    3,
		})
		plan.TotalKeyframes += 3
	}

	return &PlanResult{
		Plan:            plan,
		ContinuityToken: "mock-plan-" + req.SessionID,
		TokensUsed:      512,
	}
}

func (c *AIClient) mockKeyframe(req *KeyframeRequest) *KeyframeResult {
	// performers on a circle whose phase advances with each keyframe
	n := len(req.PerformerIDs)
	positions := make(map[string]model.PerformerPosition, n)
	phase := float64(req.Section.SectionIndex*3+req.KeyframeIndex) * 0.35
	radius := 8.0 + float64(req.KeyframeIndex)*1.5

	for i, id := range req.PerformerIDs {
		angle := phase + 2*math.Pi*float64(i)/float64(n)
		positions[id] = model.PerformerPosition{
			X:        math.Round(radius*math.Cos(angle)*100) / 100,
			Y:        math.Round(radius*math.Sin(angle)*100) / 100,
			Rotation: math.Round(angle * 180 / math.Pi),
		}
	}

	return &KeyframeResult{
		Positions:       positions,
		ContinuityToken: fmt.Sprintf("mock-kf-%s-%d-%d", req.SessionID, req.Section.SectionIndex, req.KeyframeIndex),
		TokensUsed:      256,
	}
}
