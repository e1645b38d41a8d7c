package e2e

import (
	"fmt"
	"net/http"
	"strings"
	"testing"
)

func TestExportFormation_JSON(t *testing.T) {
	ta := setupApp(t)
	session := ta.seedSession(t, "55555555-eeee-4eee-8eee-555555555555", "done")

	resp, err := doAuthRequest(t, ta.app, http.MethodPost, "/api/export/formation",
		fmt.Sprintf(`{"sessionId": "%s"}`, session.ID))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusOK)

	body := parseJSON(t, resp)
	if body["format"] != "json" {
		t.Errorf("expected default format 'json', got %v", body["format"])
	}
	url, _ := body["url"].(string)
	if !strings.HasSuffix(url, session.ID+".json") {
		t.Errorf("unexpected export url: %s", url)
	}
}

func TestExportFormation_CSV(t *testing.T) {
	ta := setupApp(t)
	session := ta.seedSession(t, "66666666-ffff-4fff-8fff-666666666666", "done")

	resp, err := doAuthRequest(t, ta.app, http.MethodPost, "/api/export/formation",
		fmt.Sprintf(`{"sessionId": "%s", "format": "csv"}`, session.ID))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusOK)

	body := parseJSON(t, resp)
	if body["format"] != "csv" {
		t.Errorf("expected format 'csv', got %v", body["format"])
	}
}

func TestExportFormation_WrongStateConflict(t *testing.T) {
	ta := setupApp(t)
	session := ta.seedSession(t, "77777777-aaaa-4aaa-8aaa-777777777777", "generating")

	resp, err := doAuthRequest(t, ta.app, http.MethodPost, "/api/export/formation",
		fmt.Sprintf(`{"sessionId": "%s"}`, session.ID))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusConflict)
}

func TestExportFormation_ValidationError(t *testing.T) {
	ta := setupApp(t)

	resp, err := doAuthRequest(t, ta.app, http.MethodPost, "/api/export/formation",
		`{"sessionId": "not-a-uuid", "format": "xml"}`)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusBadRequest)
}
