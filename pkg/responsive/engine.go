// Package responsive keeps document coordinates in step with the width of
// the editing surface.
package responsive

import (
	"log"
	"math"
	"sync"
	"time"

	"invitely/pkg/performance"
	"invitely/pkg/utils"
)

const (
	// Epsilon is the smallest relative width change that triggers a rescale
	Epsilon = 1e-3
	// SaveDelay is how long resizes settle before the scaled project is saved
	SaveDelay = 400 * time.Millisecond

	saveKey = "resize-save"
)

// Surface is the editing area whose width drives scaling
type Surface interface {
	Width() float64
	Height() float64
	// Observe calls fn whenever the surface size changes until release is called
	Observe(fn func()) (release func())
}

// Scalable multiplies every spatial field of the content by factor
type Scalable interface {
	ScaleContent(factor float64) bool
}

// Engine applies a uniform scale to the content whenever the observed
// surface width changes.
type Engine struct {
	// resizing serializes OnResize so the factor is always computed against
	// the width the content was last scaled to.
	resizing sync.Mutex

	mutex       sync.Mutex
	surface     Surface
	content     Scalable
	save        func()
	debouncer   *performance.Debouncer
	log         *log.Logger
	lastWidth   float64
	release     func()
	initialized bool
}

// NewEngine creates an engine. save runs after resizes settle and may be nil.
func NewEngine(surface Surface, content Scalable, save func(), logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.Default()
	}
	return &Engine{
		surface:   surface,
		content:   content,
		save:      save,
		debouncer: performance.NewDebouncer(SaveDelay),
		log:       logger,
	}
}

// Initialize records the current width and starts observing the surface
func (e *Engine) Initialize() {
	e.mutex.Lock()
	if e.initialized {
		e.mutex.Unlock()
		e.log.Println("responsive engine already initialized")
		return
	}
	e.initialized = true
	e.lastWidth = e.surface.Width()
	e.mutex.Unlock()

	release := e.surface.Observe(e.OnResize)

	e.mutex.Lock()
	e.release = release
	e.mutex.Unlock()
}

// LastWidth is the width current coordinates are valid for
func (e *Engine) LastWidth() float64 {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	return e.lastWidth
}

// OnResize rescales the content to the surface's current width
func (e *Engine) OnResize() {
	e.resizing.Lock()
	defer e.resizing.Unlock()

	w := e.surface.Width()
	if !utils.IsFinite(w) || w <= 0 {
		return
	}

	e.mutex.Lock()
	last := e.lastWidth
	if last <= 0 {
		e.lastWidth = w
	}
	e.mutex.Unlock()
	if last <= 0 {
		return
	}

	factor := w / last
	if math.Abs(factor-1) <= Epsilon {
		return
	}
	if !e.ScaleAll(factor) {
		return
	}

	e.mutex.Lock()
	e.lastWidth = w
	e.mutex.Unlock()

	if e.save != nil {
		e.debouncer.Debounce(saveKey, e.save)
	}
}

// ScaleAll scales the content by factor. Non-finite and near-identity
// factors are rejected.
func (e *Engine) ScaleAll(factor float64) bool {
	if !utils.IsFinite(factor) || factor <= 0 || math.Abs(factor-1) <= Epsilon {
		return false
	}
	return e.content.ScaleContent(factor)
}

// Cleanup stops observing, cancels the pending save and forgets the width
func (e *Engine) Cleanup() {
	e.mutex.Lock()
	release := e.release
	e.release = nil
	e.lastWidth = 0
	e.initialized = false
	e.mutex.Unlock()

	e.debouncer.Clear()
	if release != nil {
		release()
	}
}
