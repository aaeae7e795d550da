package api_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rise-habits/rise/internal/api"
	"github.com/rise-habits/rise/internal/app/challenge"
	"github.com/rise-habits/rise/internal/app/ledger"
	"github.com/rise-habits/rise/internal/app/streak"
	"github.com/rise-habits/rise/internal/infra/bus"
	"github.com/rise-habits/rise/internal/infra/sqlite"
)

func testServer(t *testing.T) http.Handler {
	t.Helper()
	db, err := sqlite.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	b := bus.New()
	led, err := ledger.NewService(db, b, ledger.DefaultConfig())
	if err != nil {
		t.Fatalf("new ledger: %v", err)
	}
	t.Cleanup(led.Close)

	str := streak.NewService(db, b, streak.DefaultConfig())
	tracker, err := challenge.NewTracker(db, b, led, challenge.DefaultTrackerConfig())
	if err != nil {
		t.Fatalf("new tracker: %v", err)
	}
	t.Cleanup(tracker.Close)

	return api.NewServer(led, str, tracker, api.Options{}).Handler()
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	h := testServer(t)
	rec := doJSON(t, h, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestAddXPAndProgression(t *testing.T) {
	h := testServer(t)

	rec := doJSON(t, h, http.MethodPost, "/api/xp", map[string]any{
		"amount":      15,
		"source":      "habit_completion",
		"source_id":   "habit-1",
		"description": "Morning run",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}
	var res struct {
		Success  bool  `json:"success"`
		XPGained int   `json:"xp_gained"`
		TotalXP  int64 `json:"total_xp"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !res.Success || res.XPGained != 15 || res.TotalXP != 15 {
		t.Errorf("unexpected result: %+v", res)
	}

	rec = doJSON(t, h, http.MethodGet, "/api/progression", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var prog struct {
		Level struct {
			Level   int   `json:"level"`
			TotalXP int64 `json:"total_xp"`
		} `json:"level"`
		TodayXP int `json:"today_xp"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &prog); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if prog.Level.TotalXP != 15 || prog.TodayXP != 15 {
		t.Errorf("unexpected progression: %+v", prog)
	}
}

func TestAddXPValidation(t *testing.T) {
	h := testServer(t)

	rec := doJSON(t, h, http.MethodPost, "/api/xp", map[string]any{"amount": 10})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing source should 400, got %d", rec.Code)
	}

	rec = doJSON(t, h, http.MethodPost, "/api/xp", map[string]any{
		"amount": 0, "source": "habit_completion",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("zero amount should 400, got %d", rec.Code)
	}
}

func TestXPHistory(t *testing.T) {
	h := testServer(t)

	doJSON(t, h, http.MethodPost, "/api/xp", map[string]any{
		"amount": 15, "source": "habit_completion",
	})

	rec := doJSON(t, h, http.MethodGet, "/api/xp/history?limit=10", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body struct {
		Transactions []json.RawMessage `json:"transactions"`
		TotalXP      int64             `json:"total_xp"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Transactions) != 1 || body.TotalXP != 15 {
		t.Errorf("unexpected history: %+v", body)
	}

	rec = doJSON(t, h, http.MethodGet, "/api/xp/history?limit=bogus", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad limit should 400, got %d", rec.Code)
	}
}

func TestReverseNotFound(t *testing.T) {
	h := testServer(t)
	rec := doJSON(t, h, http.MethodPost, "/api/xp/nope/reverse", map[string]any{"reason": "test"})
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestStreakEndpoints(t *testing.T) {
	h := testServer(t)

	rec := doJSON(t, h, http.MethodPost, "/api/streak/entry", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}

	rec = doJSON(t, h, http.MethodGet, "/api/streak", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body struct {
		State struct {
			CurrentStreak int `json:"current_streak"`
		} `json:"state"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.State.CurrentStreak != 1 || body.Status != "ACTIVE" {
		t.Errorf("unexpected streak: %+v", body)
	}

	// No debt to repay yet.
	rec = doJSON(t, h, http.MethodPost, "/api/streak/warmup", nil)
	if rec.Code != http.StatusConflict {
		t.Errorf("expected 409, got %d", rec.Code)
	}
}

func TestChallengeEndpoints(t *testing.T) {
	h := testServer(t)

	rec := doJSON(t, h, http.MethodGet, "/api/challenge", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}
	var body struct {
		Challenge struct {
			ID        string `json:"id"`
			StarLevel int    `json:"star_level"`
		} `json:"challenge"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Challenge.ID == "" || body.Challenge.StarLevel != 1 {
		t.Errorf("unexpected challenge: %+v", body)
	}

	rec = doJSON(t, h, http.MethodGet, "/api/challenge/reward", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}
