package services

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"log"
	"time"

	"invitely/pkg/errors"
	"invitely/pkg/models"
	"invitely/pkg/storage"
)

// RemoteProjects is the part of the remote service persistence uses
type RemoteProjects interface {
	Authenticated() bool
	GetProject(ctx context.Context, id string) (models.Project, error)
	CreateProject(ctx context.Context, p models.Project) (string, error)
	UpdateProject(ctx context.Context, id string, p models.Project) error
}

// RemoteBinding tracks which remote project the live one is stored as
type RemoteBinding interface {
	RemoteID() string
	SetRemoteID(id string)
}

// RemoteBackoff is the wait before retrying an idempotent remote call
const RemoteBackoff = 250 * time.Millisecond

// Persistence saves and loads the project, locally first and remotely
// when signed in. Local failures are logged, and returned once the
// image-stripped fallback is used up.
type Persistence struct {
	kv      storage.KV
	key     string
	remote  RemoteProjects
	binding RemoteBinding
	retry   *errors.RetryHandler
	log     *log.Logger
}

// NewPersistence creates the adapter. remote and binding may be nil for a
// local-only setup.
func NewPersistence(kv storage.KV, remote RemoteProjects, binding RemoteBinding, logger *log.Logger) *Persistence {
	if logger == nil {
		logger = log.Default()
	}
	// Only idempotent calls (update, get) go through retry. Rate limits are
	// surfaced as they are.
	retry := errors.NewRetryHandler(3)
	retry.Backoff = RemoteBackoff
	retry.ShouldRetry = func(err error) bool {
		var appErr *errors.AppError
		if stderrors.Is(err, errors.ErrRateLimited) || !stderrors.As(err, &appErr) {
			return false
		}
		return appErr.IsRetryable()
	}
	retry.OnRetry = func(attempt int, err error) {
		logger.Printf("remote attempt %d failed: %v", attempt, err)
	}
	return &Persistence{
		kv:      kv,
		key:     storage.ProjectKey,
		remote:  remote,
		binding: binding,
		retry:   retry,
		log:     logger,
	}
}

// SetKey changes the key the project is stored under
func (s *Persistence) SetKey(key string) {
	if key != "" {
		s.key = key
	}
}

// Key returns the key the project is stored under
func (s *Persistence) Key() string {
	return s.key
}

// SetBinding sets where remote ids are recorded
func (s *Persistence) SetBinding(binding RemoteBinding) {
	s.binding = binding
}

// SaveLocal writes the project under the project key. When the store is
// full it retries without image sources, keeping thumbnails.
func (s *Persistence) SaveLocal(p models.Project) error {
	ctx := context.Background()
	data, err := json.Marshal(p)
	if err != nil {
		appErr := errors.ErrStorageFailed.WithCause(err)
		appErr.LogTo(s.log)
		return appErr
	}

	err = s.kv.Set(ctx, s.key, data)
	if err == nil {
		return nil
	}
	if !stderrors.Is(err, errors.ErrQuotaExceeded) {
		s.log.Printf("local save failed: %v", err)
		return err
	}

	s.log.Printf("local quota exceeded (%d bytes), retrying without images", len(data))
	stripped, err := json.Marshal(withoutImageSources(p))
	if err != nil {
		return errors.ErrStorageFailed.WithCause(err)
	}
	if err := s.kv.Set(ctx, s.key, stripped); err != nil {
		s.log.Printf("local save without images failed: %v", err)
		return err
	}
	return nil
}

// LoadLocal reads the stored project. ok is false when nothing usable is
// stored.
func (s *Persistence) LoadLocal() (p models.Project, ok bool) {
	data, err := s.kv.Get(context.Background(), s.key)
	if err != nil {
		s.log.Printf("local load failed: %v", err)
		return models.Project{}, false
	}
	if data == nil {
		return models.Project{}, false
	}
	return s.parse(data)
}

func (s *Persistence) parse(data []byte) (models.Project, bool) {
	var p models.Project
	if err := json.Unmarshal(data, &p); err != nil {
		s.log.Printf("stored project is not valid JSON: %v", err)
		return models.Project{}, false
	}
	p.Normalize()
	if result := errors.NewValidator().ValidateProject(&p); !result.IsValid {
		result.GetFirstError().WithContext("source", "local").LogTo(s.log)
		return models.Project{}, false
	}
	return p, true
}

// SaveRemote stores the project on the remote service, creating it when no
// remote id is bound yet. Signed-out callers get a local save instead.
// A failed remote save still saves locally and returns the remote error.
func (s *Persistence) SaveRemote(ctx context.Context, p models.Project) error {
	if s.remote == nil || !s.remote.Authenticated() {
		return s.SaveLocal(p)
	}

	id := ""
	if s.binding != nil {
		id = s.binding.RemoteID()
	}

	var err error
	if id != "" {
		err = s.retry.ExecuteContext(ctx, func() error {
			return s.remote.UpdateProject(ctx, id, p)
		})
	} else {
		// A create is not idempotent: a retried POST may store the project twice.
		id, err = s.remote.CreateProject(ctx, p)
	}
	if err != nil {
		s.log.Printf("remote save failed, saving locally: %v", err)
		if localErr := s.SaveLocal(p); localErr != nil {
			s.log.Printf("local fallback failed: %v", localErr)
		}
		return err
	}

	if s.binding != nil {
		s.binding.SetRemoteID(id)
	}
	return nil
}

// LoadRemote fetches the project stored under id, falling back to the
// local copy on any failure. err reports the remote failure, if any.
func (s *Persistence) LoadRemote(ctx context.Context, id string) (p models.Project, ok bool, err error) {
	if s.remote == nil {
		p, ok = s.LoadLocal()
		return p, ok, errors.ErrAuthRequired
	}

	err = s.retry.ExecuteContext(ctx, func() error {
		var getErr error
		p, getErr = s.remote.GetProject(ctx, id)
		return getErr
	})
	if err == nil {
		p.Normalize()
		if result := errors.NewValidator().ValidateProject(&p); !result.IsValid {
			err = result.GetFirstError().WithContext("source", "remote")
		}
	}
	if err != nil {
		s.log.Printf("remote load of %s failed, using local copy: %v", id, err)
		p, ok = s.LoadLocal()
		return p, ok, err
	}

	if s.binding != nil {
		s.binding.SetRemoteID(id)
	}
	return p, true, nil
}

// Clear removes the locally stored project
func (s *Persistence) Clear() error {
	return s.kv.Delete(context.Background(), s.key)
}

// Backup archives the stored project into dir and returns the archive path
func (s *Persistence) Backup(ctx context.Context, dir string) (string, error) {
	path, err := storage.Backup(ctx, s.kv, dir, s.key)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrTypeStorage, "BACKUP_FAILED", "failed to create backup").
			WithUserMessage("Unable to create a backup").
			WithContext("dir", dir)
	}
	s.log.Printf("backup written to %s", path)
	return path, nil
}

func withoutImageSources(p models.Project) models.Project {
	out := p.Clone()
	for i := range out.Slides {
		if img := out.Slides[i].Image; img != nil {
			img.Src = ""
		}
	}
	return out
}
