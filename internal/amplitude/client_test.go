package amplitude

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestEventCounts(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "api-key" || pass != "secret-key" {
			t.Errorf("basic auth = %q/%q/%v", user, pass, ok)
		}
		if r.URL.Path != "/events/segmentation" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var eventDef map[string]string
		if err := json.Unmarshal([]byte(r.URL.Query().Get("e")), &eventDef); err != nil {
			t.Errorf("event definition not JSON: %v", err)
		}
		if eventDef["event_type"] != "sign_up" {
			t.Errorf("event_type = %q", eventDef["event_type"])
		}
		json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{
				"series":  [][]float64{{3, 7}},
				"xValues": []string{"2026-08-29", "2026-08-30"},
			},
		})
	}))
	defer server.Close()

	c, err := New(Config{APIKey: "api-key", SecretKey: "secret-key", BaseURL: server.URL, EventType: "sign_up"})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	counts, err := c.EventCounts(context.Background(), time.Now().AddDate(0, 0, -1), time.Now())
	if err != nil {
		t.Fatalf("EventCounts failed: %v", err)
	}
	if len(counts) != 2 || counts[0] != 3 || counts[1] != 7 {
		t.Errorf("counts = %v", counts)
	}
}

func TestPollProducesObservation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{"series": [][]float64{{5}}, "xValues": []string{"2026-08-30"}},
		})
	}))
	defer server.Close()

	c, _ := New(Config{APIKey: "k", SecretKey: "s", BaseURL: server.URL, EventType: "sign_up"})
	obs, err := c.Poll(context.Background())
	if err != nil {
		t.Fatalf("Poll failed: %v", err)
	}
	if len(obs) != 1 {
		t.Fatalf("expected 1 observation, got %d", len(obs))
	}
	if obs[0].Source != "amplitude" || obs[0].Summary == "" {
		t.Errorf("observation = %+v", obs[0])
	}
	// The query spans yesterday and today, and the summary says so.
	if !strings.Contains(obs[0].Summary, "since yesterday") {
		t.Errorf("summary should name the two-day window: %q", obs[0].Summary)
	}
}

func TestPollZeroEventsIsQuiet(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{"series": [][]float64{{0, 0}}, "xValues": []string{"a", "b"}},
		})
	}))
	defer server.Close()

	c, _ := New(Config{APIKey: "k", SecretKey: "s", BaseURL: server.URL})
	obs, err := c.Poll(context.Background())
	if err != nil {
		t.Fatalf("Poll failed: %v", err)
	}
	if len(obs) != 0 {
		t.Errorf("expected no observations, got %+v", obs)
	}
}

func TestEventCountsServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad credentials", http.StatusUnauthorized)
	}))
	defer server.Close()

	c, _ := New(Config{APIKey: "k", SecretKey: "s", BaseURL: server.URL})
	if _, err := c.EventCounts(context.Background(), time.Now(), time.Now()); err == nil {
		t.Fatal("expected error on 401")
	}
}

func TestNewRequiresKeys(t *testing.T) {
	if _, err := New(Config{APIKey: "k"}); err == nil {
		t.Fatal("expected error without secret key")
	}
}
