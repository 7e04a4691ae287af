package services

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"io"
	"log"
	"strings"
	"testing"
	"time"

	"invitely/pkg/errors"
	"invitely/pkg/models"
	"invitely/pkg/storage"
)

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

type fakeRemote struct {
	authenticated bool
	projects      map[string]models.Project
	err           error
	creates       int
	updates       int
	gets          int
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{authenticated: true, projects: make(map[string]models.Project)}
}

func (f *fakeRemote) Authenticated() bool { return f.authenticated }

func (f *fakeRemote) GetProject(_ context.Context, id string) (models.Project, error) {
	f.gets++
	if f.err != nil {
		return models.Project{}, f.err
	}
	p, ok := f.projects[id]
	if !ok {
		return models.Project{}, errors.ErrProjectNotFound
	}
	return p, nil
}

func (f *fakeRemote) CreateProject(_ context.Context, p models.Project) (string, error) {
	f.creates++
	if f.err != nil {
		return "", f.err
	}
	f.projects["p1"] = p
	return "p1", nil
}

func (f *fakeRemote) UpdateProject(_ context.Context, id string, p models.Project) error {
	f.updates++
	if f.err != nil {
		return f.err
	}
	f.projects[id] = p
	return nil
}

type binding struct{ id string }

func (b *binding) RemoteID() string      { return b.id }
func (b *binding) SetRemoteID(id string) { b.id = id }

func projectWithImage() models.Project {
	p := models.NewProject()
	p.Slides[0].Image = &models.Image{
		Src:   "data:image/png;base64," + strings.Repeat("A", 4000),
		Thumb: "data:image/jpeg;base64,thumb",
		Scale: 1,
	}
	return p
}

func TestSaveLocalFallsBackWithoutImages(t *testing.T) {
	p := projectWithImage()
	stripped, _ := json.Marshal(withoutImageSources(p))
	kv := storage.NewMemoryKV(int64(len(storage.ProjectKey) + len(stripped) + 16))

	s := NewPersistence(kv, nil, nil, quietLogger())
	if err := s.SaveLocal(p); err != nil {
		t.Fatalf("SaveLocal: %v", err)
	}

	got, ok := s.LoadLocal()
	if !ok {
		t.Fatal("nothing loaded")
	}
	img := got.Slides[0].Image
	if img.Src != "" {
		t.Error("image source kept despite quota")
	}
	if img.Thumb != "data:image/jpeg;base64,thumb" {
		t.Errorf("thumb = %q", img.Thumb)
	}
	if p.Slides[0].Image.Src == "" {
		t.Error("fallback modified the caller's project")
	}
}

func TestSaveLocalReportsQuotaWhenEvenStrippedTooLarge(t *testing.T) {
	s := NewPersistence(storage.NewMemoryKV(10), nil, nil, quietLogger())
	err := s.SaveLocal(projectWithImage())
	if !stderrors.Is(err, errors.ErrQuotaExceeded) {
		t.Errorf("err = %v", err)
	}
}

func TestLoadLocalRejectsCorruptData(t *testing.T) {
	kv := storage.NewMemoryKV(0)
	s := NewPersistence(kv, nil, nil, quietLogger())

	if _, ok := s.LoadLocal(); ok {
		t.Error("empty store loaded a project")
	}

	kv.Set(context.Background(), storage.ProjectKey, []byte("{not json"))
	if _, ok := s.LoadLocal(); ok {
		t.Error("corrupt data loaded")
	}

	kv.Set(context.Background(), storage.ProjectKey, []byte(`{"slides":[{"layers":[{"text":"x","fontSize":-3}]}]}`))
	if _, ok := s.LoadLocal(); ok {
		t.Error("invalid project loaded")
	}

	kv.Set(context.Background(), storage.ProjectKey, []byte(`{"rsvp":"maybe"}`))
	p, ok := s.LoadLocal()
	if !ok || len(p.Slides) != 1 || p.RSVP != models.RSVPMaybe {
		t.Errorf("normalized load: ok=%v project=%+v", ok, p)
	}
}

func TestCustomKey(t *testing.T) {
	kv := storage.NewMemoryKV(0)
	s := NewPersistence(kv, nil, nil, quietLogger())
	s.SetKey("custom")
	s.SetKey("")
	if s.Key() != "custom" {
		t.Fatalf("Key = %q", s.Key())
	}
	s.SaveLocal(models.NewProject())
	if v, _ := kv.Get(context.Background(), "custom"); v == nil {
		t.Error("project not stored under the custom key")
	}
}

func TestSaveRemoteSignedOutSavesLocally(t *testing.T) {
	kv := storage.NewMemoryKV(0)
	remote := newFakeRemote()
	remote.authenticated = false
	s := NewPersistence(kv, remote, &binding{}, quietLogger())

	if err := s.SaveRemote(context.Background(), models.NewProject()); err != nil {
		t.Fatal(err)
	}
	if remote.creates+remote.updates != 0 {
		t.Error("remote called while signed out")
	}
	if _, ok := s.LoadLocal(); !ok {
		t.Error("no local copy written")
	}
}

func TestSaveRemoteCreatesThenUpdates(t *testing.T) {
	remote := newFakeRemote()
	b := &binding{}
	s := NewPersistence(storage.NewMemoryKV(0), remote, b, quietLogger())
	ctx := context.Background()

	if err := s.SaveRemote(ctx, models.NewProject()); err != nil {
		t.Fatal(err)
	}
	if b.id != "p1" || remote.creates != 1 {
		t.Fatalf("after create: id=%q creates=%d", b.id, remote.creates)
	}

	if err := s.SaveRemote(ctx, models.NewProject()); err != nil {
		t.Fatal(err)
	}
	if remote.updates != 1 || remote.creates != 1 {
		t.Errorf("after update: creates=%d updates=%d", remote.creates, remote.updates)
	}
}

func TestSaveRemoteCreateIsNotRetried(t *testing.T) {
	for _, remoteErr := range []error{errors.ErrServer, errors.ErrNetwork, errors.ErrRateLimited} {
		kv := storage.NewMemoryKV(0)
		remote := newFakeRemote()
		remote.err = remoteErr
		b := &binding{}
		s := NewPersistence(kv, remote, b, quietLogger())
		s.retry.OnRetry = nil

		err := s.SaveRemote(context.Background(), models.NewProject())
		if !stderrors.Is(err, remoteErr) {
			t.Fatalf("err = %v, want %v", err, remoteErr)
		}
		if remote.creates != 1 {
			t.Errorf("%v: creates = %d, want 1", remoteErr, remote.creates)
		}
		if b.id != "" {
			t.Error("remote id bound after failure")
		}
		if _, ok := s.LoadLocal(); !ok {
			t.Error("no local fallback")
		}
	}
}

func TestSaveRemoteRetriesUpdates(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{errors.ErrNetwork, 3},
		{errors.ErrServer, 3},
		{errors.ErrRateLimited, 1},
		{errors.ErrAuthRequired, 1},
	}
	for _, tt := range tests {
		remote := newFakeRemote()
		remote.err = tt.err
		s := NewPersistence(storage.NewMemoryKV(0), remote, &binding{id: "p1"}, quietLogger())
		s.retry.OnRetry = nil
		s.retry.Backoff = 0

		if err := s.SaveRemote(context.Background(), models.NewProject()); !stderrors.Is(err, tt.err) {
			t.Errorf("err = %v, want %v", err, tt.err)
		}
		if remote.updates != tt.want || remote.creates != 0 {
			t.Errorf("%v: updates = %d creates = %d, want %d updates", tt.err, remote.updates, remote.creates, tt.want)
		}
	}
}

func TestSaveRemoteStopsRetryingWhenCancelled(t *testing.T) {
	remote := newFakeRemote()
	remote.err = errors.ErrNetwork
	s := NewPersistence(storage.NewMemoryKV(0), remote, &binding{id: "p1"}, quietLogger())
	s.retry.OnRetry = nil
	s.retry.Backoff = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.SaveRemote(ctx, models.NewProject()); !stderrors.Is(err, errors.ErrNetwork) {
		t.Fatalf("err = %v", err)
	}
	if remote.updates != 1 {
		t.Errorf("updates = %d, want 1", remote.updates)
	}
}

func TestLoadRemote(t *testing.T) {
	remote := newFakeRemote()
	stored := models.NewProject()
	stored.MapQuery = "remote venue"
	remote.projects["abc"] = stored
	b := &binding{}
	s := NewPersistence(storage.NewMemoryKV(0), remote, b, quietLogger())

	p, ok, err := s.LoadRemote(context.Background(), "abc")
	if err != nil || !ok || p.MapQuery != "remote venue" {
		t.Fatalf("LoadRemote = %+v, %v, %v", p, ok, err)
	}
	if b.id != "abc" {
		t.Errorf("bound id = %q", b.id)
	}
}

func TestLoadRemoteFallsBackToLocal(t *testing.T) {
	remote := newFakeRemote()
	s := NewPersistence(storage.NewMemoryKV(0), remote, &binding{}, quietLogger())
	local := models.NewProject()
	local.MapQuery = "local venue"
	s.SaveLocal(local)

	p, ok, err := s.LoadRemote(context.Background(), "missing")
	if !stderrors.Is(err, errors.ErrProjectNotFound) {
		t.Errorf("err = %v", err)
	}
	if !ok || p.MapQuery != "local venue" {
		t.Errorf("fallback = %+v, %v", p, ok)
	}
	if remote.gets != 1 {
		t.Errorf("non-retryable error retried: %d gets", remote.gets)
	}
}

func TestLoadRemoteWithoutService(t *testing.T) {
	s := NewPersistence(storage.NewMemoryKV(0), nil, nil, quietLogger())
	_, ok, err := s.LoadRemote(context.Background(), "x")
	if ok || !stderrors.Is(err, errors.ErrAuthRequired) {
		t.Errorf("ok=%v err=%v", ok, err)
	}
}

func TestBackup(t *testing.T) {
	s := NewPersistence(storage.NewMemoryKV(0), nil, nil, quietLogger())
	if _, err := s.Backup(context.Background(), t.TempDir()); err == nil {
		t.Error("backup of an empty store succeeded")
	}
	s.SaveLocal(models.NewProject())
	path, err := s.Backup(context.Background(), t.TempDir())
	if err != nil || !strings.HasSuffix(path, ".zip") {
		t.Errorf("Backup = %q, %v", path, err)
	}
}
