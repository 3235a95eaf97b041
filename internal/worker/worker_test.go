package worker

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/coachlens/backend/internal/models"
	"github.com/coachlens/backend/pkg/queue"
)

type fakeWorkerStore struct {
	clip        *models.Clip
	getErr      error
	statuses    []string
	uploadedURL string
	uploadedKey string
	voiceURLs   map[uuid.UUID]string
}

func (s *fakeWorkerStore) GetClipByID(_ context.Context, _ uuid.UUID) (*models.Clip, error) {
	return s.clip, s.getErr
}

func (s *fakeWorkerStore) UpdateClipStatus(_ context.Context, _ uuid.UUID, status string) error {
	s.statuses = append(s.statuses, status)
	return nil
}

func (s *fakeWorkerStore) UpdateClipUploaded(_ context.Context, _ uuid.UUID, s3URL, s3Key string, _ int64) error {
	s.uploadedURL = s3URL
	s.uploadedKey = s3Key
	return nil
}

func (s *fakeWorkerStore) UpdateTipVoiceURL(_ context.Context, tipID uuid.UUID, voiceURL string) error {
	if s.voiceURLs == nil {
		s.voiceURLs = make(map[uuid.UUID]string)
	}
	s.voiceURLs[tipID] = voiceURL
	return nil
}

type uploadedObject struct {
	bucket      string
	key         string
	contentType string
	size        int64
}

type fakeUploader struct {
	objects []uploadedObject
}

func (u *fakeUploader) Upload(_ context.Context, bucket, key, contentType string, _ io.Reader, size int64) (string, error) {
	u.objects = append(u.objects, uploadedObject{bucket: bucket, key: key, contentType: contentType, size: size})
	return "https://clips.example.com/" + key, nil
}

func (u *fakeUploader) ClipsBucket() string { return "clips" }
func (u *fakeUploader) AudioBucket() string { return "audio" }

type fakeSynth struct {
	enabled bool
	audio   []byte
	err     error
	texts   []string
}

func (f *fakeSynth) Enabled() bool { return f.enabled }

func (f *fakeSynth) Synthesize(_ context.Context, text string) ([]byte, error) {
	f.texts = append(f.texts, text)
	return f.audio, f.err
}

func clipUploadJob(t *testing.T, payload queue.ClipUploadPayload) *queue.Job {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatal(err)
	}
	return &queue.Job{ID: uuid.New().String(), Type: queue.JobTypeClipUpload, Payload: raw}
}

func tipVoiceJob(t *testing.T, payload queue.TipVoicePayload) *queue.Job {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatal(err)
	}
	return &queue.Job{ID: uuid.New().String(), Type: queue.JobTypeTipVoice, Payload: raw}
}

func TestUploadClipSuccess(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.mp4")
	if err := os.WriteFile(path, []byte("clip-bytes"), 0600); err != nil {
		t.Fatal(err)
	}

	clipID, sessionID := uuid.New(), uuid.New()
	store := &fakeWorkerStore{clip: &models.Clip{ID: clipID, SessionID: sessionID, Status: models.ClipStatusCaptured}}
	s3 := &fakeUploader{}
	p := NewProcessor(store, s3, &fakeSynth{}, nil, nil)

	job := clipUploadJob(t, queue.ClipUploadPayload{ClipID: clipID, SessionID: sessionID, LocalPath: path})
	if err := p.Process(context.Background(), job); err != nil {
		t.Fatalf("Process: %v", err)
	}

	if len(s3.objects) != 1 {
		t.Fatalf("uploads = %d, want 1", len(s3.objects))
	}
	obj := s3.objects[0]
	if obj.bucket != "clips" || obj.contentType != "video/mp4" {
		t.Errorf("uploaded to bucket %q as %q", obj.bucket, obj.contentType)
	}
	if obj.size != int64(len("clip-bytes")) {
		t.Errorf("size = %d, want %d", obj.size, len("clip-bytes"))
	}
	if store.uploadedKey != obj.key || store.uploadedURL == "" {
		t.Errorf("db not updated with S3 result: key=%q url=%q", store.uploadedKey, store.uploadedURL)
	}
}

func TestUploadClipAlreadyUploadedSkips(t *testing.T) {
	clipID := uuid.New()
	store := &fakeWorkerStore{clip: &models.Clip{ID: clipID, Status: models.ClipStatusUploaded}}
	s3 := &fakeUploader{}
	p := NewProcessor(store, s3, &fakeSynth{}, nil, nil)

	job := clipUploadJob(t, queue.ClipUploadPayload{ClipID: clipID, LocalPath: "/nope.mp4"})
	if err := p.Process(context.Background(), job); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(s3.objects) != 0 {
		t.Error("re-uploaded an already uploaded clip")
	}
}

// A database failure loading the clip must surface as the database error, not
// be reported as a missing clip.
func TestUploadClipStoreErrorNotMasked(t *testing.T) {
	dbErr := errors.New("connection reset")
	store := &fakeWorkerStore{getErr: dbErr}
	p := NewProcessor(store, &fakeUploader{}, &fakeSynth{}, nil, nil)

	job := clipUploadJob(t, queue.ClipUploadPayload{ClipID: uuid.New()})
	err := p.Process(context.Background(), job)
	if !errors.Is(err, dbErr) {
		t.Fatalf("err = %v, want wrapped %v", err, dbErr)
	}
	if strings.Contains(err.Error(), "not found") {
		t.Errorf("db error reported as missing clip: %v", err)
	}
}

func TestUploadClipMissingRow(t *testing.T) {
	store := &fakeWorkerStore{}
	p := NewProcessor(store, &fakeUploader{}, &fakeSynth{}, nil, nil)

	job := clipUploadJob(t, queue.ClipUploadPayload{ClipID: uuid.New()})
	err := p.Process(context.Background(), job)
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("err = %v, want clip not found", err)
	}
}

func TestUploadClipOpenFailureMarksFailed(t *testing.T) {
	clipID := uuid.New()
	store := &fakeWorkerStore{clip: &models.Clip{ID: clipID, Status: models.ClipStatusCaptured}}
	p := NewProcessor(store, &fakeUploader{}, &fakeSynth{}, nil, nil)

	job := clipUploadJob(t, queue.ClipUploadPayload{ClipID: clipID, LocalPath: filepath.Join(t.TempDir(), "gone.mp4")})
	if err := p.Process(context.Background(), job); err == nil {
		t.Fatal("expected error for missing local file")
	}
	last := store.statuses[len(store.statuses)-1]
	if last != models.ClipStatusFailed {
		t.Errorf("final status = %q, want failed", last)
	}
}

func TestSynthesizeTip(t *testing.T) {
	tipID, sessionID := uuid.New(), uuid.New()
	store := &fakeWorkerStore{}
	s3 := &fakeUploader{}
	synth := &fakeSynth{enabled: true, audio: []byte("mp3-bytes")}
	p := NewProcessor(store, s3, synth, nil, nil)

	job := tipVoiceJob(t, queue.TipVoicePayload{TipID: tipID, SessionID: sessionID, Text: "Bend your knees"})
	if err := p.Process(context.Background(), job); err != nil {
		t.Fatalf("Process: %v", err)
	}

	if len(synth.texts) != 1 || synth.texts[0] != "Bend your knees" {
		t.Fatalf("synthesized texts = %v", synth.texts)
	}
	if len(s3.objects) != 1 {
		t.Fatalf("uploads = %d, want 1", len(s3.objects))
	}
	if s3.objects[0].bucket != "audio" || s3.objects[0].contentType != "audio/mpeg" {
		t.Errorf("uploaded to bucket %q as %q", s3.objects[0].bucket, s3.objects[0].contentType)
	}
	if store.voiceURLs[tipID] == "" {
		t.Error("tip voice url not persisted")
	}
}

func TestSynthesizeTipDisabledSkips(t *testing.T) {
	s3 := &fakeUploader{}
	p := NewProcessor(&fakeWorkerStore{}, s3, &fakeSynth{enabled: false}, nil, nil)

	job := tipVoiceJob(t, queue.TipVoicePayload{TipID: uuid.New(), Text: "x"})
	if err := p.Process(context.Background(), job); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(s3.objects) != 0 {
		t.Error("uploaded audio while synthesis disabled")
	}
}

func TestProcessUnknownJobType(t *testing.T) {
	p := NewProcessor(&fakeWorkerStore{}, &fakeUploader{}, &fakeSynth{}, nil, nil)
	err := p.Process(context.Background(), &queue.Job{ID: "j1", Type: "mystery"})
	if err == nil {
		t.Fatal("expected error for unknown job type")
	}
}
