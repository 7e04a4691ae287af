package responsive

import "sync"

// Breakpoint names the layout class for a surface width
type Breakpoint string

const (
	Mobile  Breakpoint = "mobile"
	Tablet  Breakpoint = "tablet"
	Desktop Breakpoint = "desktop"
)

// Orientation of the viewport
type Orientation string

const (
	Portrait  Orientation = "portrait"
	Landscape Orientation = "landscape"
)

const (
	mobileMax = 640
	tabletMax = 1024
)

// LayoutInfo is presentation state derived from the viewport size. It never
// changes the document.
type LayoutInfo struct {
	Breakpoint  Breakpoint  `json:"breakpoint"`
	Orientation Orientation `json:"orientation"`
	// RotateOverlay asks small portrait screens to turn to landscape
	RotateOverlay bool `json:"rotateOverlay"`
}

// Layout classifies a viewport of w by h
func Layout(w, h float64) LayoutInfo {
	info := LayoutInfo{Breakpoint: Desktop, Orientation: Landscape}
	switch {
	case w < mobileMax:
		info.Breakpoint = Mobile
	case w < tabletMax:
		info.Breakpoint = Tablet
	}
	if h > w {
		info.Orientation = Portrait
	}
	info.RotateOverlay = info.Orientation == Portrait && w < mobileMax
	return info
}

// ReportedSurface is a Surface whose size is pushed in from outside, e.g.
// by a browser reporting its work area.
type ReportedSurface struct {
	mutex     sync.Mutex
	width     float64
	height    float64
	nextID    int
	observers map[int]func()
}

// NewReportedSurface creates a surface with an initial size
func NewReportedSurface(width, height float64) *ReportedSurface {
	return &ReportedSurface{width: width, height: height, observers: make(map[int]func())}
}

// Width returns the last reported width
func (s *ReportedSurface) Width() float64 {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.width
}

// Height returns the last reported height
func (s *ReportedSurface) Height() float64 {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.height
}

// Observe registers fn for size changes
func (s *ReportedSurface) Observe(fn func()) func() {
	s.mutex.Lock()
	id := s.nextID
	s.nextID++
	s.observers[id] = fn
	s.mutex.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mutex.Lock()
			delete(s.observers, id)
			s.mutex.Unlock()
		})
	}
}

// Report records a new size and notifies observers when it changed
func (s *ReportedSurface) Report(width, height float64) {
	s.mutex.Lock()
	if width == s.width && height == s.height {
		s.mutex.Unlock()
		return
	}
	s.width, s.height = width, height
	fns := make([]func(), 0, len(s.observers))
	for _, fn := range s.observers {
		fns = append(fns, fn)
	}
	s.mutex.Unlock()

	for _, fn := range fns {
		fn()
	}
}

// Info returns the layout for the last reported size
func (s *ReportedSurface) Info() LayoutInfo {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return Layout(s.width, s.height)
}
