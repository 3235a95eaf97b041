package voice

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
)

func TestSynthesize(t *testing.T) {
	audio := []byte("ID3-mp3-frames")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/text-to-speech/"+DefaultVoiceID {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("xi-api-key"); got != "test-key" {
			t.Errorf("xi-api-key = %q", got)
		}
		var req ttsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if req.ModelID != modelID {
			t.Errorf("model_id = %q", req.ModelID)
		}
		if req.Text != "Bend your knees" {
			t.Errorf("text = %q", req.Text)
		}
		if req.VoiceSettings.Stability != 0.5 || req.VoiceSettings.SimilarityBoost != 0.5 {
			t.Errorf("voice settings = %+v", req.VoiceSettings)
		}
		w.Header().Set("Content-Type", "audio/mpeg")
		w.Write(audio)
	}))
	defer srv.Close()

	c := NewClient("test-key", "", zap.NewNop())
	c.baseURL = srv.URL

	got, err := c.Synthesize(context.Background(), "Bend your knees")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if !bytes.Equal(got, audio) {
		t.Errorf("audio mismatch: got %d bytes", len(got))
	}
}

func TestSynthesizeErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"quota exceeded"}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClient("test-key", "custom-voice", zap.NewNop())
	c.baseURL = srv.URL

	if _, err := c.Synthesize(context.Background(), "hello"); err == nil {
		t.Fatal("expected error on 429")
	}
}

func TestSynthesizeDisabled(t *testing.T) {
	c := NewClient("", "", nil)
	if c.Enabled() {
		t.Error("client without key reports enabled")
	}
	if _, err := c.Synthesize(context.Background(), "hello"); err == nil {
		t.Fatal("expected error when disabled")
	}
}
