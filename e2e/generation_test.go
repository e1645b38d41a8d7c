package e2e

import (
	"fmt"
	"net/http"
	"testing"
)

const startBody = `{
	"formationId": "77777777-7777-4777-8777-777777777777",
	"description": "open in a block, rotate into a circle for the finale",
	"performerIds": ["p1", "p2", "p3", "p4"]
}`

func TestGenerationStart(t *testing.T) {
	ta := setupApp(t)

	resp, err := doAuthRequest(t, ta.app, http.MethodPost, "/api/generation/start", startBody)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusAccepted)

	body := parseJSON(t, resp)
	sessionID, _ := body["sessionId"].(string)
	if sessionID == "" {
		t.Fatal("expected 'sessionId' in response")
	}
	if body["status"] != "created" {
		t.Errorf("expected status 'created', got %v", body["status"])
	}

	// the run slot is claimed and the task queued
	if _, ok := ta.registry.Get(sessionID); !ok {
		t.Error("expected interrupt registry entry for new session")
	}
	if len(ta.enqueuer.tasks) != 1 {
		t.Errorf("expected 1 queued task, got %d", len(ta.enqueuer.tasks))
	}

	// session is immediately readable
	resp, err = doAuthRequest(t, ta.app, http.MethodGet, "/api/generation/"+sessionID, "")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusOK)

	body = parseJSON(t, resp)
	if body["status"] != "created" {
		t.Errorf("expected status 'created', got %v", body["status"])
	}
}

func TestGenerationStart_ValidationError(t *testing.T) {
	ta := setupApp(t)

	resp, err := doAuthRequest(t, ta.app, http.MethodPost, "/api/generation/start",
		`{"formationId": "not-a-uuid", "description": "x"}`)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusBadRequest)
}

func TestGenerationStart_Unauthorized(t *testing.T) {
	ta := setupApp(t)

	resp, err := doRequest(ta.app, http.MethodPost, "/api/generation/start", startBody, nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusUnauthorized)
}

func TestGetSession_NotFound(t *testing.T) {
	ta := setupApp(t)

	resp, err := doAuthRequest(t, ta.app, http.MethodGet, "/api/generation/does-not-exist", "")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusNotFound)
}

func TestApprove_AwaitingApproval(t *testing.T) {
	ta := setupApp(t)
	session := ta.seedSession(t, "11111111-aaaa-4aaa-8aaa-111111111111", "awaiting_approval")

	resp, err := doAuthRequest(t, ta.app, http.MethodPost, "/api/generation/"+session.ID+"/approve", "")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusOK)

	body := parseJSON(t, resp)
	if body["planApproved"] != true {
		t.Errorf("expected planApproved true, got %v", body["planApproved"])
	}
}

func TestApprove_WrongStateConflict(t *testing.T) {
	ta := setupApp(t)
	session := ta.seedSession(t, "22222222-bbbb-4bbb-8bbb-222222222222", "planning")

	resp, err := doAuthRequest(t, ta.app, http.MethodPost, "/api/generation/"+session.ID+"/approve", "")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusConflict)
}

func TestInterrupt_Cancel(t *testing.T) {
	ta := setupApp(t)

	resp, err := doAuthRequest(t, ta.app, http.MethodPost, "/api/generation/start", startBody)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	sessionID, _ := parseJSON(t, resp)["sessionId"].(string)

	resp, err = doAuthRequest(t, ta.app, http.MethodPost,
		fmt.Sprintf("/api/generation/%s/interrupt", sessionID), `{"action": "cancel"}`)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusOK)
	body := parseJSON(t, resp)
	if body["status"] != "cancelled" {
		t.Errorf("expected status 'cancelled', got %v", body["status"])
	}

	// the cancel is durable
	resp, err = doAuthRequest(t, ta.app, http.MethodGet, "/api/generation/"+sessionID, "")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	body = parseJSON(t, resp)
	if body["status"] != "cancelled" {
		t.Errorf("expected persisted status 'cancelled', got %v", body["status"])
	}
}

func TestInterrupt_InvalidAction(t *testing.T) {
	ta := setupApp(t)
	session := ta.seedSession(t, "33333333-cccc-4ccc-8ccc-333333333333", "generating")

	resp, err := doAuthRequest(t, ta.app, http.MethodPost,
		"/api/generation/"+session.ID+"/interrupt", `{"action": "stop"}`)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusBadRequest)
}

func TestRefine_Done(t *testing.T) {
	ta := setupApp(t)
	session := ta.seedSession(t, "44444444-dddd-4ddd-8ddd-444444444444", "done")

	resp, err := doAuthRequest(t, ta.app, http.MethodPost,
		"/api/generation/"+session.ID+"/refine", `{"instruction": "give the front row more space"}`)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusOK)

	body := parseJSON(t, resp)
	if body["status"] != "done" {
		t.Errorf("expected status 'done', got %v", body["status"])
	}
	if _, ok := body["updatedPositions"]; !ok {
		t.Error("expected 'updatedPositions' in response")
	}
}

func TestRefine_ActiveRunConflict(t *testing.T) {
	ta := setupApp(t)

	resp, err := doAuthRequest(t, ta.app, http.MethodPost, "/api/generation/start", startBody)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	sessionID, _ := parseJSON(t, resp)["sessionId"].(string)

	resp, err = doAuthRequest(t, ta.app, http.MethodPost,
		fmt.Sprintf("/api/generation/%s/refine", sessionID), `{"instruction": "tighter spacing"}`)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusConflict)
}
