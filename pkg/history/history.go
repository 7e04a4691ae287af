package history

import (
	"bytes"
	"encoding/json"
	"log"
	"sync"
	"time"

	"invitely/pkg/models"
)

// MaxHistory bounds the number of snapshots kept
const MaxHistory = 50

// Target is the project owner snapshots are taken from and applied to
type Target interface {
	Snapshot() models.Project
	Apply(p models.Project) bool
}

// Entry is one snapshot on the stack
type Entry struct {
	Description string
	Project     models.Project
	CreatedAt   time.Time

	data []byte
}

// Store is a bounded undo/redo stack of deep-cloned project snapshots.
//
// index points at the snapshot matching the live project; -1 means empty.
// While locked (see Lock) pushes are ignored. gen changes whenever the cursor
// jumps, so a push whose snapshot predates an undo or redo is dropped.
type Store struct {
	mutex  sync.Mutex
	target Target
	stack  []Entry
	index  int
	locks  int
	gen    uint64
	max    int
	log    *log.Logger
}

// NewStore creates an empty history bound to target
func NewStore(target Target, logger *log.Logger) *Store {
	if logger == nil {
		logger = log.Default()
	}
	return &Store{
		target: target,
		index:  -1,
		max:    MaxHistory,
		log:    logger,
	}
}

// Push records the target's current project. It returns false when the
// history is locked or the snapshot equals the one at index.
func (h *Store) Push(description string) bool {
	h.mutex.Lock()
	if h.locks > 0 {
		h.mutex.Unlock()
		return false
	}
	gen := h.gen
	h.mutex.Unlock()

	// Taken outside the mutex: the target may call back into Locked.
	snap := h.target.Snapshot()
	data, err := json.Marshal(snap)
	if err != nil {
		h.log.Printf("push %q: %v", description, err)
		return false
	}

	h.mutex.Lock()
	defer h.mutex.Unlock()

	if h.locks > 0 || h.gen != gen {
		return false
	}
	if h.index >= 0 && bytes.Equal(h.stack[h.index].data, data) {
		return false
	}

	h.stack = h.stack[:h.index+1]
	h.stack = append(h.stack, Entry{
		Description: description,
		Project:     snap,
		CreatedAt:   time.Now(),
		data:        data,
	})

	if len(h.stack) > h.max {
		h.stack = h.stack[1:]
	} else {
		h.index++
	}
	return true
}

// Undo steps back one snapshot and applies it with history locked
func (h *Store) Undo() bool {
	h.mutex.Lock()
	if h.index <= 0 {
		h.mutex.Unlock()
		return false
	}
	h.index--
	snap := h.beginApplyLocked()
	h.mutex.Unlock()

	h.finishApply(snap)
	return true
}

// Redo steps forward one snapshot and applies it with history locked
func (h *Store) Redo() bool {
	h.mutex.Lock()
	if h.index >= len(h.stack)-1 {
		h.mutex.Unlock()
		return false
	}
	h.index++
	snap := h.beginApplyLocked()
	h.mutex.Unlock()

	h.finishApply(snap)
	return true
}

// beginApplyLocked takes the history lock in the same critical section as
// the cursor move. Must be called with the mutex held.
func (h *Store) beginApplyLocked() models.Project {
	h.locks++
	h.gen++
	return h.stack[h.index].Project.Clone()
}

func (h *Store) finishApply(p models.Project) {
	defer h.Lock(false)
	if !h.target.Apply(p) {
		h.log.Printf("snapshot rejected by target")
	}
}

// Lock suppresses (true) or re-allows (false) pushes. Locks nest: every
// Lock(true) must be paired with a Lock(false).
func (h *Store) Lock(locked bool) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if locked {
		h.locks++
	} else if h.locks > 0 {
		h.locks--
	}
}

// Locked reports whether pushes are currently suppressed
func (h *Store) Locked() bool {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return h.locks > 0
}

// CanUndo reports whether Undo would step back
func (h *Store) CanUndo() bool {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return h.index > 0
}

// CanRedo reports whether Redo would step forward
func (h *Store) CanRedo() bool {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return h.index < len(h.stack)-1
}

// Len returns the number of snapshots held
func (h *Store) Len() int {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return len(h.stack)
}

// Index returns the cursor position
func (h *Store) Index() int {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return h.index
}

// Entries returns copies of the held snapshots, oldest first
func (h *Store) Entries() []Entry {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	out := make([]Entry, len(h.stack))
	for i, e := range h.stack {
		out[i] = Entry{Description: e.Description, Project: e.Project.Clone(), CreatedAt: e.CreatedAt}
	}
	return out
}

// Clear drops every snapshot
func (h *Store) Clear() {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.stack = nil
	h.index = -1
	h.gen++
}
