package cloud

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/wuyan1003/driftbottle/internal/bottle"
)

func TestAddBottle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/bottles" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var req addRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Content != "hello sea" || req.Picked {
			t.Errorf("request = %+v", req)
		}
		if len(req.Images) != 1 || req.Images[0].Data != "QUJD" {
			t.Errorf("images not normalized: %+v", req.Images)
		}
		_ = json.NewEncoder(w).Encode(addResponse{ID: 77})
	}))
	defer srv.Close()

	c := NewClient(nil, srv.URL, time.Second)
	id, err := c.AddBottle(context.Background(), bottle.Bottle{
		Content:  "hello sea",
		Images:   []bottle.Image{{Type: bottle.ImageTypeBase64, Data: "base64://QUJD"}},
		Sender:   "amy",
		SenderID: "u1",
	})
	if err != nil {
		t.Fatalf("AddBottle: %v", err)
	}
	if id != 77 {
		t.Fatalf("id = %d, want 77", id)
	}
}

func TestPickRandomFresh(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(bottle.Bottle{ID: 5, Content: "found"})
	}))
	defer srv.Close()

	c := NewClient(nil, srv.URL, time.Second)
	b, reset, err := c.PickRandom(context.Background())
	if err != nil {
		t.Fatalf("PickRandom: %v", err)
	}
	if reset {
		t.Fatal("fresh pick should not report reset")
	}
	if b.ID != 5 || b.Content != "found" {
		t.Fatalf("bottle = %+v", b)
	}
}

func TestPickRandomResetsExhaustedPool(t *testing.T) {
	var picks, resets atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/api/bottles/random":
			if picks.Add(1) == 1 {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			_ = json.NewEncoder(w).Encode(bottle.Bottle{ID: 9, Content: "recycled"})
		case r.Method == http.MethodPost && r.URL.Path == "/api/bottles/reset":
			resets.Add(1)
			_ = json.NewEncoder(w).Encode(map[string]int{"restored": 3})
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	}))
	defer srv.Close()

	c := NewClient(nil, srv.URL, time.Second)
	b, reset, err := c.PickRandom(context.Background())
	if err != nil {
		t.Fatalf("PickRandom: %v", err)
	}
	if !reset {
		t.Fatal("expected reset to be reported")
	}
	if b.ID != 9 {
		t.Fatalf("bottle = %+v", b)
	}
	if resets.Load() != 1 {
		t.Fatalf("resets = %d, want 1", resets.Load())
	}
}

func TestPickRandomEmptyAfterReset(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/bottles/reset" {
			_ = json.NewEncoder(w).Encode(map[string]int{"restored": 0})
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(nil, srv.URL, time.Second)
	_, _, err := c.PickRandom(context.Background())
	if !errors.Is(err, bottle.ErrNoBottles) {
		t.Fatalf("err = %v, want ErrNoBottles", err)
	}
}

func TestCounts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/bottles/count" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(countsResponse{Active: 4, Picked: 2})
	}))
	defer srv.Close()

	c := NewClient(nil, srv.URL, time.Second)
	active, picked, err := c.Counts(context.Background())
	if err != nil {
		t.Fatalf("Counts: %v", err)
	}
	if active != 4 || picked != 2 {
		t.Fatalf("counts = %d/%d", active, picked)
	}
}

func TestDoRetriesRateLimit(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_ = json.NewEncoder(w).Encode(countsResponse{Active: 1})
	}))
	defer srv.Close()

	c := NewClient(nil, srv.URL, time.Second)
	start := time.Now()
	active, _, err := c.Counts(context.Background())
	if err != nil {
		t.Fatalf("Counts: %v", err)
	}
	if active != 1 {
		t.Fatalf("active = %d", active)
	}
	if elapsed := time.Since(start); elapsed < time.Second {
		t.Fatalf("retry did not honor Retry-After (elapsed %v)", elapsed)
	}
	if calls.Load() != 2 {
		t.Fatalf("calls = %d, want 2", calls.Load())
	}
}

func TestDoSurfacesServerErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(nil, srv.URL, time.Second)
	_, _, err := c.Counts(context.Background())
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("err = %v, want StatusError", err)
	}
	if statusErr.Status != http.StatusInternalServerError || statusErr.Body != "boom" {
		t.Fatalf("status error = %+v", statusErr)
	}
}
