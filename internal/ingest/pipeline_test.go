package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/coachlens/backend/internal/analysis"
	"github.com/coachlens/backend/internal/models"
	"github.com/coachlens/backend/pkg/queue"
)

type fakeStore struct {
	createErr  error
	session    *models.Session
	tips       []models.Tip
	mediaURL   string
	clip       *models.Clip
	attachErr  error
	clipRowErr error
}

func (s *fakeStore) Create(_ context.Context, userID uuid.UUID, sport, skill string) (*models.Session, error) {
	if s.createErr != nil {
		return nil, s.createErr
	}
	s.session = &models.Session{ID: uuid.New(), UserID: userID, Sport: sport, Skill: skill}
	return s.session, nil
}

func (s *fakeStore) AttachTips(_ context.Context, sessionID uuid.UUID, tips []models.Tip) ([]models.Tip, error) {
	if s.attachErr != nil {
		return nil, s.attachErr
	}
	out := make([]models.Tip, len(tips))
	for i, t := range tips {
		t.ID = uuid.New()
		t.SessionID = sessionID
		t.Position = i
		out[i] = t
	}
	s.tips = out
	return out, nil
}

func (s *fakeStore) UpdateMediaURL(_ context.Context, _ uuid.UUID, mediaURL string) error {
	s.mediaURL = mediaURL
	return nil
}

func (s *fakeStore) CreateClip(_ context.Context, clip *models.Clip) error {
	if s.clipRowErr != nil {
		return s.clipRowErr
	}
	clip.ID = uuid.New()
	s.clip = clip
	return nil
}

type fakeAnalyzer struct {
	result *analysis.Result
}

func (a *fakeAnalyzer) Analyze(_ context.Context, sport, _ string) *analysis.Result {
	r := *a.result
	r.Sport = sport
	return &r
}

func (a *fakeAnalyzer) AnnotatedVideoURL(sport string) string {
	return "http://analysis.local/download/video/" + sport
}

type fakeJobs struct {
	uploads   []queue.ClipUploadPayload
	voices    []queue.TipVoicePayload
	uploadErr error
}

func (j *fakeJobs) EnqueueClipUpload(_ context.Context, p queue.ClipUploadPayload) error {
	if j.uploadErr != nil {
		return j.uploadErr
	}
	j.uploads = append(j.uploads, p)
	return nil
}

func (j *fakeJobs) EnqueueTipVoice(_ context.Context, p queue.TipVoicePayload) error {
	j.voices = append(j.voices, p)
	return nil
}

type fakeNotifier struct {
	sessionIDs []uuid.UUID
	events     []string
	payloads   []interface{}
}

func (n *fakeNotifier) PublishToSessionOnly(sessionID uuid.UUID, event string, payload interface{}) {
	n.sessionIDs = append(n.sessionIDs, sessionID)
	n.events = append(n.events, event)
	n.payloads = append(n.payloads, payload)
}

func writeArtifact(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "1719000000000.mp4")
	if err := os.WriteFile(path, []byte("clip-bytes"), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func successResult() *analysis.Result {
	return &analysis.Result{
		Outcome: analysis.OutcomeSuccess,
		Events: []analysis.Event{
			{OffsetSeconds: 2.5, Feedback: "Bend your knees"},
			{OffsetSeconds: 5.8, Feedback: "Follow through"},
		},
		AnnotatedVideo: "outputs/tennis_annotated.mp4",
	}
}

func TestSubmitSuccess(t *testing.T) {
	store := &fakeStore{}
	jobs := &fakeJobs{}
	p := NewPipeline(store, &fakeAnalyzer{result: successResult()}, jobs, nil, t.TempDir(), nil)

	res, err := p.Submit(context.Background(), uuid.New(), writeArtifact(t), "tennis", "serve")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if res.Outcome != analysis.OutcomeSuccess {
		t.Errorf("outcome = %v", res.Outcome)
	}
	if len(res.Session.Tips) != 2 {
		t.Fatalf("attached %d tips, want 2", len(res.Session.Tips))
	}
	if want := "http://analysis.local/download/video/tennis"; store.mediaURL != want {
		t.Errorf("media url = %q, want %q", store.mediaURL, want)
	}
	if len(jobs.uploads) != 1 {
		t.Fatalf("enqueued %d clip uploads, want 1", len(jobs.uploads))
	}
	if len(jobs.voices) != 2 {
		t.Errorf("enqueued %d voice jobs, want 2", len(jobs.voices))
	}
	// Persisted copy lives under media/ with a timestamp name.
	if _, err := os.Stat(jobs.uploads[0].LocalPath); err != nil {
		t.Errorf("persisted clip missing: %v", err)
	}
}

// TestSubmitPublishesAnalysisReady: viewers already watching the session hear
// that tips arrived, through the publish-only fanout.
func TestSubmitPublishesAnalysisReady(t *testing.T) {
	store := &fakeStore{}
	notify := &fakeNotifier{}
	p := NewPipeline(store, &fakeAnalyzer{result: successResult()}, &fakeJobs{}, notify, t.TempDir(), nil)

	res, err := p.Submit(context.Background(), uuid.New(), writeArtifact(t), "tennis", "")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if len(notify.events) != 1 {
		t.Fatalf("published %d events, want 1", len(notify.events))
	}
	if notify.events[0] != "analysis_ready" {
		t.Errorf("event = %q, want analysis_ready", notify.events[0])
	}
	if notify.sessionIDs[0] != res.Session.ID {
		t.Error("event published to the wrong session")
	}
	body, ok := notify.payloads[0].(map[string]interface{})
	if !ok {
		t.Fatalf("payload type %T, want map", notify.payloads[0])
	}
	if body["tip_count"] != 2 {
		t.Errorf("tip_count = %v, want 2", body["tip_count"])
	}
}

// TestSubmitAnalysisFailureKeepsSession: analysis is best-effort; a 413
// still returns the created session id with empty tips and the raw clip as media.
func TestSubmitAnalysisFailureKeepsSession(t *testing.T) {
	store := &fakeStore{}
	notify := &fakeNotifier{}
	p := NewPipeline(store, &fakeAnalyzer{result: &analysis.Result{
		Outcome: analysis.OutcomePayloadTooLarge,
		Err:     errors.New("analysis status 413"),
	}}, &fakeJobs{}, notify, t.TempDir(), nil)

	res, err := p.Submit(context.Background(), uuid.New(), writeArtifact(t), "soccer", "")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if res.Outcome != analysis.OutcomePayloadTooLarge {
		t.Errorf("outcome = %v, want payload_too_large", res.Outcome)
	}
	if res.Session == nil || res.Session.ID != store.session.ID {
		t.Fatal("session id not preserved across analysis failure")
	}
	if len(res.Session.Tips) != 0 {
		t.Errorf("tips = %d, want 0 on failure", len(res.Session.Tips))
	}
	if !strings.Contains(store.mediaURL, "media") {
		t.Errorf("media url %q should reference the local clip", store.mediaURL)
	}
	if len(notify.events) != 0 {
		t.Errorf("published %v on analysis failure, want none", notify.events)
	}
}

func TestSubmitTimeoutKeepsSessionID(t *testing.T) {
	store := &fakeStore{}
	p := NewPipeline(store, &fakeAnalyzer{result: &analysis.Result{
		Outcome: analysis.OutcomeTimeout,
		Err:     context.DeadlineExceeded,
	}}, &fakeJobs{}, nil, t.TempDir(), nil)

	res, err := p.Submit(context.Background(), uuid.New(), writeArtifact(t), "tennis", "")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if res.Outcome != analysis.OutcomeTimeout {
		t.Errorf("outcome = %v, want analysis_timeout", res.Outcome)
	}
	if res.Session.ID != store.session.ID {
		t.Error("session id changed across timeout")
	}
}

// TestSubmitStorageErrorFatal: local persistence failure aborts the attempt
// before any session exists.
func TestSubmitStorageErrorFatal(t *testing.T) {
	store := &fakeStore{}
	p := NewPipeline(store, &fakeAnalyzer{result: successResult()}, &fakeJobs{}, nil, t.TempDir(), nil)

	_, err := p.Submit(context.Background(), uuid.New(), filepath.Join(t.TempDir(), "missing.mp4"), "tennis", "")
	if !errors.Is(err, ErrStorage) {
		t.Fatalf("err = %v, want ErrStorage", err)
	}
	if store.session != nil {
		t.Error("session created despite storage failure")
	}
}

// TestSubmitUploadEnqueueFailureSilent: a dead queue degrades silently; the
// submission still completes with tips.
func TestSubmitUploadEnqueueFailureSilent(t *testing.T) {
	store := &fakeStore{}
	jobs := &fakeJobs{uploadErr: errors.New("redis down")}
	p := NewPipeline(store, &fakeAnalyzer{result: successResult()}, jobs, nil, t.TempDir(), nil)

	res, err := p.Submit(context.Background(), uuid.New(), writeArtifact(t), "tennis", "")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if res.Outcome != analysis.OutcomeSuccess {
		t.Errorf("outcome = %v, want success", res.Outcome)
	}
}

// TestAnnotatedVideoMissingFallsBack: a success envelope without an annotated
// video keeps the raw recorded artifact as the session media.
func TestAnnotatedVideoMissingFallsBack(t *testing.T) {
	store := &fakeStore{}
	result := successResult()
	result.AnnotatedVideo = ""
	p := NewPipeline(store, &fakeAnalyzer{result: result}, &fakeJobs{}, nil, t.TempDir(), nil)

	res, err := p.Submit(context.Background(), uuid.New(), writeArtifact(t), "tennis", "")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if strings.Contains(store.mediaURL, "analysis.local") {
		t.Errorf("media url %q should be the raw clip, not the annotated video", store.mediaURL)
	}
	if len(res.Session.Tips) != 2 {
		t.Errorf("tips still attach on fallback; got %d", len(res.Session.Tips))
	}
}
