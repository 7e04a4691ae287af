package history

import (
	"fmt"
	"io"
	"log"
	"sync"
	"testing"

	"invitely/pkg/models"
)

type fakeTarget struct {
	project models.Project
	applied int
}

func (f *fakeTarget) Snapshot() models.Project { return f.project.Clone() }

func (f *fakeTarget) Apply(p models.Project) bool {
	f.project = p.Clone()
	f.applied++
	return true
}

func newTestHistory() (*Store, *fakeTarget) {
	target := &fakeTarget{project: models.NewProject()}
	return NewStore(target, log.New(io.Discard, "", 0)), target
}

func TestUndoRedo(t *testing.T) {
	h, target := newTestHistory()

	h.Push("open")
	target.project.MapQuery = "a"
	h.Push("edit")

	if !h.Undo() {
		t.Fatal("undo failed")
	}
	if target.project.MapQuery != "" {
		t.Errorf("after undo mapQuery = %q", target.project.MapQuery)
	}
	if h.Undo() {
		t.Error("undo past the first snapshot")
	}
	if !h.Redo() || target.project.MapQuery != "a" {
		t.Errorf("redo: mapQuery = %q", target.project.MapQuery)
	}
	if h.Redo() {
		t.Error("redo past the last snapshot")
	}
	if h.Locked() {
		t.Error("history left locked after apply")
	}
}

func TestPushTruncatesRedoBranch(t *testing.T) {
	h, target := newTestHistory()
	h.Push("open")
	target.project.MapQuery = "a"
	h.Push("a")
	h.Undo()

	target.project.MapQuery = "b"
	h.Push("b")

	if h.CanRedo() {
		t.Error("redo branch survived a new push")
	}
	if h.Len() != 2 {
		t.Errorf("Len = %d", h.Len())
	}
}

func TestPushDeduplicates(t *testing.T) {
	h, _ := newTestHistory()
	if !h.Push("open") {
		t.Fatal("first push rejected")
	}
	if h.Push("again") {
		t.Error("identical snapshot pushed")
	}
	if h.Len() != 1 || h.Index() != 0 {
		t.Errorf("Len/Index = %d/%d", h.Len(), h.Index())
	}
}

func TestHistoryIsBounded(t *testing.T) {
	h, target := newTestHistory()
	for i := 0; i < MaxHistory+1; i++ {
		target.project.MapQuery = fmt.Sprintf("v%d", i)
		h.Push("edit")
	}

	if h.Len() != MaxHistory {
		t.Fatalf("Len = %d", h.Len())
	}
	for i := 0; i < MaxHistory-1; i++ {
		if !h.Undo() {
			t.Fatalf("undo %d failed", i+1)
		}
	}
	if h.Undo() {
		t.Error("undo beyond the bound")
	}
	if target.project.MapQuery != "v1" {
		t.Errorf("oldest kept snapshot = %q, want v1", target.project.MapQuery)
	}
}

func TestLocksNest(t *testing.T) {
	h, target := newTestHistory()
	h.Lock(true)
	h.Lock(true)
	h.Lock(false)

	target.project.MapQuery = "x"
	if h.Push("locked") {
		t.Error("push accepted while locked")
	}
	h.Lock(false)
	if !h.Push("unlocked") {
		t.Error("push rejected after unlocking")
	}
}

func TestEntriesAreCopies(t *testing.T) {
	h, _ := newTestHistory()
	h.Push("open")
	entries := h.Entries()
	entries[0].Project.Slides[0].Layers = append(entries[0].Project.Slides[0].Layers, models.Layer{Text: "x"})

	if n := len(h.Entries()[0].Project.Slides[0].Layers); n != 0 {
		t.Errorf("entry mutation reached the stack: %d layers", n)
	}
}

// gatedTarget pauses inside Snapshot until released, so a push can be
// caught between taking its snapshot and recording it.
type gatedTarget struct {
	mutex   sync.Mutex
	project models.Project
	gate    bool
	taken   chan struct{}
	release chan struct{}

	lockedDuringApply bool
	history           *Store
}

func (g *gatedTarget) Snapshot() models.Project {
	g.mutex.Lock()
	snap := g.project.Clone()
	gate := g.gate
	g.gate = false
	g.mutex.Unlock()
	if gate {
		close(g.taken)
		<-g.release
	}
	return snap
}

func (g *gatedTarget) Apply(p models.Project) bool {
	g.mutex.Lock()
	g.project = p.Clone()
	g.mutex.Unlock()
	if g.history != nil {
		g.lockedDuringApply = g.history.Locked()
	}
	return true
}

func (g *gatedTarget) setQuery(q string) {
	g.mutex.Lock()
	g.project.MapQuery = q
	g.mutex.Unlock()
}

func TestPushTakenBeforeUndoIsDropped(t *testing.T) {
	target := &gatedTarget{
		project: models.NewProject(),
		taken:   make(chan struct{}),
		release: make(chan struct{}),
	}
	h := NewStore(target, log.New(io.Discard, "", 0))
	target.history = h

	target.setQuery("v1")
	h.Push("v1")
	target.setQuery("v2")
	h.Push("v2")
	target.setQuery("v3")

	target.mutex.Lock()
	target.gate = true
	target.mutex.Unlock()

	pushed := make(chan bool)
	go func() { pushed <- h.Push("v3") }()
	<-target.taken

	if !h.Undo() {
		t.Fatal("undo failed")
	}
	if !target.lockedDuringApply {
		t.Error("history not locked while the undo applied")
	}
	close(target.release)

	if <-pushed {
		t.Error("stale snapshot recorded after undo")
	}
	if h.Len() != 2 || h.Index() != 0 || !h.CanRedo() {
		t.Errorf("len=%d index=%d canRedo=%v", h.Len(), h.Index(), h.CanRedo())
	}
	if !h.Redo() || target.Snapshot().MapQuery != "v2" {
		t.Errorf("redo lost: mapQuery = %q", target.Snapshot().MapQuery)
	}
}

func TestPushDuringUndoApplyIsIgnored(t *testing.T) {
	h, target := newTestHistory()
	h.Push("open")
	target.project.MapQuery = "a"
	h.Push("edit")

	reentrant := &pushingTarget{fakeTarget: target, history: h}
	h.target = reentrant

	if !h.Undo() {
		t.Fatal("undo failed")
	}
	if reentrant.pushed {
		t.Error("push from inside an undo was recorded")
	}
	if h.Len() != 2 || h.Index() != 0 {
		t.Errorf("len=%d index=%d", h.Len(), h.Index())
	}
}

type pushingTarget struct {
	*fakeTarget
	history *Store
	pushed  bool
}

func (p *pushingTarget) Apply(project models.Project) bool {
	p.fakeTarget.Apply(project)
	p.pushed = p.history.Push("during undo")
	return true
}
