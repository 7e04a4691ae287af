package state

import (
	"log"
	"math"
	"sync"
	"time"

	apperrors "invitely/pkg/errors"
	"invitely/pkg/models"
	"invitely/pkg/performance"
	"invitely/pkg/utils"
)

const (
	// HistoryDelay is how long edits settle before a history snapshot is taken
	HistoryDelay = 350 * time.Millisecond
	// SaveDelay is how long edits settle before the local save runs
	SaveDelay = 400 * time.Millisecond

	historyKey = "history"
	saveKey    = "save"

	scaleEpsilon = 1e-3
)

// Recorder receives history intents from the store
type Recorder interface {
	Push(description string) bool
	Locked() bool
}

// Saver persists the latest committed project
type Saver interface {
	SaveLocal(p models.Project) error
}

// Listener is notified after every committed mutation. partial is the
// update passed to Set, nil for typed updates and whole-project applies.
type Listener func(next, prev models.Project, partial map[string]interface{})

// SetOptions control how Set applies a partial update
type SetOptions struct {
	Validate bool
	Notify   bool
	Merge    bool
}

// DefaultSetOptions validates, notifies and deep-merges
func DefaultSetOptions() SetOptions {
	return SetOptions{Validate: true, Notify: true, Merge: true}
}

type change struct {
	next    models.Project
	prev    models.Project
	partial map[string]interface{}
}

// Store is the single owner of the live project. Readers get copies; every
// accepted mutation schedules a history snapshot and a local save and
// notifies listeners in commit order.
type Store struct {
	mutex    sync.Mutex
	project  models.Project
	remoteID string

	history   Recorder
	saver     Saver
	debouncer *performance.Debouncer
	validator *apperrors.Validator
	log       *log.Logger

	historyDelay time.Duration
	saveDelay    time.Duration

	listenerKeys []string
	listeners    map[string]Listener
	queue        []change
	dispatching  bool
}

// NewStore creates a store holding initial (normalized)
func NewStore(initial models.Project, logger *log.Logger) *Store {
	if logger == nil {
		logger = log.Default()
	}
	p := initial.Clone()
	p.Normalize()
	return &Store{
		project:      p,
		debouncer:    performance.NewDebouncer(SaveDelay),
		validator:    apperrors.NewValidator(),
		log:          logger,
		historyDelay: HistoryDelay,
		saveDelay:    SaveDelay,
		listeners:    make(map[string]Listener),
	}
}

// Attach wires the history recorder and the local saver. Either may be nil.
func (s *Store) Attach(history Recorder, saver Saver) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.history = history
	s.saver = saver
}

// SetDelays overrides the debounce delays (tests use short ones)
func (s *Store) SetDelays(history, save time.Duration) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.historyDelay = history
	s.saveDelay = save
}

// Project returns a deep copy of the live project
func (s *Store) Project() models.Project {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.project.Clone()
}

// Snapshot is Project under the name the history store expects
func (s *Store) Snapshot() models.Project {
	return s.Project()
}

// Get returns a copy of the value at a dot path, or of the whole project
// (as a JSON tree) when path is empty.
func (s *Store) Get(path string) (interface{}, bool) {
	p := s.Project()
	tree, err := toTree(p)
	if err != nil {
		s.log.Printf("get %q: %v", path, err)
		return nil, false
	}
	return lookup(tree, path)
}

// RemoteID returns the id of the project on the remote service, if bound
func (s *Store) RemoteID() string {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.remoteID
}

// SetRemoteID binds the remote identity. It is not part of undoable state.
func (s *Store) SetRemoteID(id string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.remoteID = id
}

// Set applies a partial update. It returns false, leaving the project
// untouched, when the update is rejected.
func (s *Store) Set(partial map[string]interface{}, opts SetOptions) bool {
	if partial == nil {
		apperrors.ErrValidation.WithContext("reason", "partial is not an object").LogTo(s.log)
		return false
	}
	if opts.Validate {
		if result := s.validator.ValidatePartial(partial); !result.IsValid {
			result.GetFirstError().LogTo(s.log)
			return false
		}
	}

	s.mutex.Lock()
	base, err := toTree(s.project)
	if err != nil {
		s.mutex.Unlock()
		s.log.Printf("set: %v", err)
		return false
	}
	var merged map[string]interface{}
	if opts.Merge {
		merged = DeepMerge(base, partial)
	} else {
		merged = assign(base, partial)
	}
	next, err := fromTree(merged)
	if err != nil {
		s.mutex.Unlock()
		apperrors.ErrValidation.WithCause(err).LogTo(s.log)
		return false
	}
	if opts.Validate {
		if result := s.validator.ValidateProject(&next); !result.IsValid {
			s.mutex.Unlock()
			result.GetFirstError().LogTo(s.log)
			return false
		}
	}
	s.commitLocked(next, partial, opts.Notify)
	s.mutex.Unlock()

	s.afterCommit("set", opts.Notify, true)
	return true
}

// Update applies a typed mutation to a copy of the project and commits it
// when the result is valid.
func (s *Store) Update(description string, fn func(p *models.Project)) bool {
	return s.Modify(description, func(p *models.Project) bool {
		fn(p)
		return true
	})
}

// Modify is Update for mutations that may decline: when fn returns false
// nothing is committed.
func (s *Store) Modify(description string, fn func(p *models.Project) bool) bool {
	return s.modify(description, true, fn)
}

// modify commits fn's result. record false skips the history intent for
// this commit only.
func (s *Store) modify(description string, record bool, fn func(p *models.Project) bool) bool {
	s.mutex.Lock()
	next := s.project.Clone()
	if !fn(&next) {
		s.mutex.Unlock()
		return false
	}
	if result := s.validator.ValidateProject(&next); !result.IsValid {
		s.mutex.Unlock()
		result.GetFirstError().WithContext("op", description).LogTo(s.log)
		return false
	}
	s.commitLocked(next, nil, true)
	s.mutex.Unlock()

	s.afterCommit(description, true, record)
	return true
}

// Apply replaces the whole project. Used by load, undo/redo and imports.
func (s *Store) Apply(p models.Project) bool {
	next := p.Clone()
	next.Normalize()
	if result := s.validator.ValidateProject(&next); !result.IsValid {
		result.GetFirstError().WithContext("op", "apply").LogTo(s.log)
		return false
	}

	s.mutex.Lock()
	s.commitLocked(next, nil, true)
	s.mutex.Unlock()

	s.afterCommit("apply", true, true)
	return true
}

// Reset restores a default project
func (s *Store) Reset() {
	s.Apply(models.NewProject())
}

// ScaleContent multiplies every spatial field by factor without recording
// a history entry. Non-finite and near-identity factors are rejected.
func (s *Store) ScaleContent(factor float64) bool {
	if !utils.IsFinite(factor) || factor <= 0 || math.Abs(factor-1) <= scaleEpsilon {
		return false
	}

	return s.modify("scale", false, func(p *models.Project) bool {
		p.Scale(factor)
		return true
	})
}

// Subscribe registers fn under key. Re-subscribing an existing key replaces
// the callback but keeps its position.
func (s *Store) Subscribe(key string, fn Listener) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if _, exists := s.listeners[key]; !exists {
		s.listenerKeys = append(s.listenerKeys, key)
	}
	s.listeners[key] = fn
}

// Unsubscribe removes the listener registered under key
func (s *Store) Unsubscribe(key string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if _, exists := s.listeners[key]; !exists {
		return
	}
	delete(s.listeners, key)
	for i, k := range s.listenerKeys {
		if k == key {
			s.listenerKeys = append(s.listenerKeys[:i:i], s.listenerKeys[i+1:]...)
			break
		}
	}
}

// FlushHistory records a pending history intent immediately
func (s *Store) FlushHistory() bool {
	return s.debouncer.Flush(historyKey)
}

// FlushSave runs a pending local save immediately
func (s *Store) FlushSave() bool {
	return s.debouncer.Flush(saveKey)
}

// Close flushes the pending save and drops other scheduled work
func (s *Store) Close() {
	s.FlushSave()
	s.debouncer.Clear()
}

// commitLocked must be called with the mutex held
func (s *Store) commitLocked(next models.Project, partial map[string]interface{}, notify bool) {
	prev := s.project
	s.project = next
	if notify && len(s.listenerKeys) > 0 {
		s.queue = append(s.queue, change{next: next.Clone(), prev: prev, partial: partial})
	}
}

func (s *Store) afterCommit(description string, notify, record bool) {
	s.mutex.Lock()
	h, saver := s.history, s.saver
	historyDelay, saveDelay := s.historyDelay, s.saveDelay
	s.mutex.Unlock()

	if record && h != nil && !h.Locked() {
		s.debouncer.DebounceAfter(historyKey, historyDelay, func() {
			h.Push(description)
		})
	}
	if saver != nil {
		s.debouncer.DebounceAfter(saveKey, saveDelay, func() {
			if err := saver.SaveLocal(s.Project()); err != nil {
				s.log.Printf("local save failed: %v", err)
			}
		})
	}
	if notify {
		s.dispatch()
	}
}

// dispatch delivers queued changes in commit order. Commits made by a
// listener are queued and delivered after the current round.
func (s *Store) dispatch() {
	s.mutex.Lock()
	if s.dispatching {
		s.mutex.Unlock()
		return
	}
	s.dispatching = true
	for len(s.queue) > 0 {
		c := s.queue[0]
		s.queue = s.queue[1:]
		keys := append([]string(nil), s.listenerKeys...)
		fns := make([]Listener, len(keys))
		for i, k := range keys {
			fns[i] = s.listeners[k]
		}
		s.mutex.Unlock()

		for i, fn := range fns {
			s.invoke(keys[i], fn, c)
		}

		s.mutex.Lock()
	}
	s.dispatching = false
	s.mutex.Unlock()
}

func (s *Store) invoke(key string, fn Listener, c change) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Printf("listener %q failed: %v", key, r)
		}
	}()
	fn(c.next.Clone(), c.prev.Clone(), c.partial)
}
