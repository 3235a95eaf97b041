package analysis

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeClip(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "1719000000000.mp4")
	if err := os.WriteFile(path, []byte("not really mp4"), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestAnalyzeSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		if got := r.FormValue("sport"); got != "tennis" {
			t.Errorf("sport field = %q, want tennis", got)
		}
		if _, _, err := r.FormFile("video"); err != nil {
			t.Errorf("video file missing: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"status": "success",
			"sport": "tennis",
			"analysis": {"shots": [
				{"timestamp": "0:05.6", "shot_type": "forehand", "result": "winner", "feedback": "More shoulder turn"},
				{"timestamp": "0:12.3", "shot_type": "backhand", "result": "error", "feedback": "Step into the ball"}
			]},
			"analysis_file": "outputs/sports.json",
			"annotated_video": "outputs/tennis_annotated.mp4"
		}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, nil)
	res := c.Analyze(context.Background(), "tennis", writeClip(t))
	if res.Outcome != OutcomeSuccess {
		t.Fatalf("outcome = %v (err %v), want success", res.Outcome, res.Err)
	}
	if len(res.Events) != 2 {
		t.Fatalf("got %d events, want 2", len(res.Events))
	}
	if res.Events[0].OffsetSeconds != 5.6 {
		t.Errorf("event 0 offset = %v, want 5.6", res.Events[0].OffsetSeconds)
	}
	if res.Events[1].OffsetSeconds != 12.3 {
		t.Errorf("event 1 offset = %v, want 12.3", res.Events[1].OffsetSeconds)
	}
	if res.AnnotatedVideo != "outputs/tennis_annotated.mp4" {
		t.Errorf("annotated video = %q", res.AnnotatedVideo)
	}
}

func TestAnalyzeStatusMapping(t *testing.T) {
	cases := []struct {
		code int
		want Outcome
	}{
		{http.StatusBadRequest, OutcomeInvalidInput},
		{http.StatusRequestEntityTooLarge, OutcomePayloadTooLarge},
		{http.StatusInternalServerError, OutcomeServerError},
		{http.StatusServiceUnavailable, OutcomeServiceUnavailable},
		{http.StatusTeapot, OutcomeUnknownError},
	}
	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.code)
		}))
		c := NewClient(srv.URL, time.Second, nil)
		res := c.Analyze(context.Background(), "soccer", writeClip(t))
		srv.Close()
		if res.Outcome != tc.want {
			t.Errorf("status %d: outcome = %v, want %v", tc.code, res.Outcome, tc.want)
		}
		if res.Err == nil {
			t.Errorf("status %d: expected non-nil Err", tc.code)
		}
	}
}

// TestAnalyzeTimeout: a server that outlives the deadline yields
// OutcomeTimeout; the request is cancelled rather than left in flight.
func TestAnalyzeTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c := NewClient(srv.URL, 50*time.Millisecond, nil)
	res := c.Analyze(context.Background(), "tennis", writeClip(t))
	if res.Outcome != OutcomeTimeout {
		t.Fatalf("outcome = %v, want timeout", res.Outcome)
	}
}

// TestAnalyzeMalformedSuccess: a 2xx body missing required fields is an
// invalid response, never treated as success.
func TestAnalyzeMalformedSuccess(t *testing.T) {
	bodies := []string{
		`{"status": "error"}`,
		`{"status": "success"}`,
		`{"status": "success", "analysis": {"no_events_here": 1}}`,
		`{"status": "success", "analysis": {"shots": [{"shot_type": "forehand"}]}}`,
		`not json at all`,
	}
	for _, body := range bodies {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(body))
		}))
		c := NewClient(srv.URL, time.Second, nil)
		res := c.Analyze(context.Background(), "tennis", writeClip(t))
		srv.Close()
		if res.Outcome != OutcomeInvalidResponse {
			t.Errorf("body %q: outcome = %v, want invalid_response_format", body, res.Outcome)
		}
	}
}

func TestSportsFallback(t *testing.T) {
	// Unreachable backend falls back to the hardcoded defaults.
	c := NewClient("http://127.0.0.1:1", 100*time.Millisecond, nil)
	got := c.Sports(context.Background())
	want := []string{"basketball", "soccer", "tennis"}
	if len(got) != len(want) {
		t.Fatalf("sports = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("sports = %v, want %v", got, want)
		}
	}
}

func TestSportsFromBackend(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/sports" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"sports": ["tennis", "padel"]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, nil)
	got := c.Sports(context.Background())
	if len(got) != 2 || got[1] != "padel" {
		t.Fatalf("sports = %v, want backend list", got)
	}
}

func TestParseClock(t *testing.T) {
	cases := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"0:05.6", 5.6, true},
		{"1:02.5", 62.5, true},
		{"12.0", 12.0, true},
		{"7", 7, true},
		{"1:75.0", 0, false},
		{"-3", 0, false},
		{"a:b", 0, false},
		{"", 0, false},
	}
	for _, tc := range cases {
		got, err := ParseClock(tc.in)
		if tc.ok && (err != nil || got != tc.want) {
			t.Errorf("ParseClock(%q) = %v, %v; want %v", tc.in, got, err, tc.want)
		}
		if !tc.ok && err == nil {
			t.Errorf("ParseClock(%q) succeeded, want error", tc.in)
		}
	}
}
