package e2e

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/kentin0-fiz0l/FluxStudio-sub015/internal/auth"
	"github.com/kentin0-fiz0l/FluxStudio-sub015/internal/client"
	"github.com/kentin0-fiz0l/FluxStudio-sub015/internal/config"
	"github.com/kentin0-fiz0l/FluxStudio-sub015/internal/handler"
	"github.com/kentin0-fiz0l/FluxStudio-sub015/internal/interrupt"
	"github.com/kentin0-fiz0l/FluxStudio-sub015/internal/middleware"
	"github.com/kentin0-fiz0l/FluxStudio-sub015/internal/model"
	"github.com/kentin0-fiz0l/FluxStudio-sub015/internal/pipeline"
	"github.com/kentin0-fiz0l/FluxStudio-sub015/internal/service"
	"github.com/kentin0-fiz0l/FluxStudio-sub015/internal/store"
)

const testJWTSecret = "test-secret-for-e2e"

// recordEnqueuer records tasks instead of dispatching them, so sessions
// stay in their initial state until a test advances them.
type recordEnqueuer struct {
	tasks []*asynq.Task
}

func (e *recordEnqueuer) Enqueue(task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	e.tasks = append(e.tasks, task)
	return &asynq.TaskInfo{}, nil
}

// testApp holds all components needed for testing
type testApp struct {
	app      *fiber.App
	store    *store.MemoryStore
	registry *interrupt.Registry
	enqueuer *recordEnqueuer
}

// setupApp creates a Fiber app identical to main.go but with unconfigured
// external clients (triggering mock fallbacks) and an in-memory store.
func setupApp(t *testing.T) *testApp {
	t.Helper()

	sessionStore := store.NewMemoryStore()
	registry := interrupt.NewRegistry()
	enqueuer := &recordEnqueuer{}

	validate := validator.New()

	// External clients — all unconfigured so mock fallbacks engage
	aiClient := client.NewAIClient(&config.AIConfig{})
	syncClient := client.NewSyncClient(&config.SyncConfig{})
	syncConnector := pipeline.NewSyncConnector(syncClient)

	generationService := service.NewGenerationService(sessionStore, registry, enqueuer, aiClient, syncConnector)
	exportService := service.NewExportService(sessionStore, syncClient, nil) // nil storage → mock URL

	generationHandler := handler.NewGenerationHandler(generationService, validate)
	exportHandler := handler.NewExportHandler(exportService, validate)

	// Auth handler (for /auth/verify)
	authHandler := handler.NewAuthHandler(nil, testJWTSecret)

	// Auth middleware — legacy HMAC only
	authMiddleware := middleware.NewLegacyAuthMiddleware(testJWTSecret)

	// Rate limiter backed by a client that is not reachable in tests;
	// Redis failures make the limiter allow requests through.
	rateLimiter := middleware.NewRateLimiter(redis.NewClient(&redis.Options{
		Addr: "localhost:1", // intentionally unreachable
	}))

	app := fiber.New(fiber.Config{
		BodyLimit: 5 * 1024 * 1024,
	})

	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"timestamp": time.Now().Unix()})
	})
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
			"services": fiber.Map{
				"ai":       false,
				"analysis": false,
				"sync":     false,
				"r2":       false,
				"auth":     true,
			},
		})
	})
	app.Get("/auth/verify", authHandler.Verify)

	// API routes (authenticated)
	api := app.Group("/api", authMiddleware.Authenticate())

	generation := api.Group("/generation")
	generation.Post("/start", rateLimiter.GenerateLimit(10000), generationHandler.Start)
	generation.Get("/:sessionId", generationHandler.Get)
	generation.Post("/:sessionId/approve", generationHandler.Approve)
	generation.Post("/:sessionId/interrupt", generationHandler.Interrupt)
	generation.Post("/:sessionId/refine", rateLimiter.RefineLimit(10000), generationHandler.Refine)

	export := api.Group("/export", rateLimiter.ExportLimit(10000))
	export.Post("/formation", exportHandler.Formation)

	return &testApp{
		app:      app,
		store:    sessionStore,
		registry: registry,
		enqueuer: enqueuer,
	}
}

// seedSession inserts a session directly into the store.
func (ta *testApp) seedSession(t *testing.T, id string, status model.SessionStatus) *model.Session {
	t.Helper()
	session := &model.Session{
		ID:           id,
		UserID:       "test-user-123",
		FormationID:  "99999999-9999-4999-8999-999999999999",
		Description:  "seeded show",
		PerformerIDs: []string{"p1", "p2"},
		Status:       status,
		Plan: &model.ShowPlan{
			Sections:       []model.PlanSection{{SectionName: "One", KeyframeCount: 2}},
			TotalKeyframes: 2,
		},
		CreatedAt: time.Now(),
	}
	if err := ta.store.Create(context.Background(), session); err != nil {
		t.Fatalf("failed to seed session: %v", err)
	}
	return session
}

// generateToken creates a legacy HMAC JWT token for test requests.
func generateToken(t *testing.T) string {
	t.Helper()
	claims := auth.LegacyClaims{
		UserID: "test-user-123",
		Email:  "test@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer: "fluxstudio-api",
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(testJWTSecret))
	if err != nil {
		t.Fatalf("failed to generate test token: %v", err)
	}
	return signed
}

// doRequest is a helper to perform HTTP requests against the test app.
func doRequest(app *fiber.App, method, path string, body string, headers map[string]string) (*http.Response, error) {
	var bodyReader io.Reader
	if body != "" {
		bodyReader = strings.NewReader(body)
	}

	req, err := http.NewRequest(method, path, bodyReader)
	if err != nil {
		return nil, err
	}

	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return app.Test(req, -1)
}

// doAuthRequest performs an authenticated request.
func doAuthRequest(t *testing.T, app *fiber.App, method, path, body string) (*http.Response, error) {
	t.Helper()
	token := generateToken(t)
	return doRequest(app, method, path, body, map[string]string{
		"Authorization": "Bearer " + token,
	})
}

// readBody reads and returns the response body as a string.
func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	return string(b)
}

// parseJSON parses response body into a map.
func parseJSON(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	body := readBody(t, resp)
	var result map[string]interface{}
	if err := json.Unmarshal([]byte(body), &result); err != nil {
		t.Fatalf("failed to parse JSON: %v\nbody: %s", err, body)
	}
	return result
}

// assertStatus checks the HTTP status code.
func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("expected status %d, got %d", expected, resp.StatusCode)
	}
}
