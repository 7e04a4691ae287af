package models

import (
	"encoding/json"
	"math"
	"net/url"
	"strings"

	"invitely/pkg/utils"
)

// CurrentVersion is the schema version written by this build
const CurrentVersion = 2

// Default values elided by the share codec
const (
	DefaultFontWeight     = "normal"
	DefaultFontStyle      = "normal"
	DefaultTextDecoration = "none"
	DefaultPadding        = "4px 6px"
	DefaultDurationMs     = 5000
	DefaultWorkWidth      = 800
	DefaultWorkHeight     = 600
	MinImageScale         = 0.05
)

// RSVP is the reply option shown to guests
type RSVP string

const (
	RSVPNone  RSVP = "none"
	RSVPYes   RSVP = "yes"
	RSVPMaybe RSVP = "maybe"
	RSVPNo    RSVP = "no"
)

// Valid reports whether r is one of the known options
func (r RSVP) Valid() bool {
	switch r {
	case RSVPNone, RSVPYes, RSVPMaybe, RSVPNo:
		return true
	}
	return false
}

// Project is the top-level editable invitation document
type Project struct {
	Version     int      `json:"version"`
	Slides      []Slide  `json:"slides"`
	ActiveIndex int      `json:"activeIndex"`
	Defaults    Defaults `json:"defaults"`
	RSVP        RSVP     `json:"rsvp"`
	MapQuery    string   `json:"mapQuery"`
}

// Defaults are applied to newly created layers
type Defaults struct {
	FontFamily string  `json:"fontFamily"`
	FontSize   float64 `json:"fontSize"`
	Color      string  `json:"color"`
}

// Size is a width/height pair in canvas pixels
type Size struct {
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Slide is one frame of the invitation
type Slide struct {
	ID         string  `json:"id,omitempty"`
	Image      *Image  `json:"image,omitempty"`
	Layers     []Layer `json:"layers"`
	WorkSize   Size    `json:"workSize"`
	DurationMs int     `json:"durationMs"`
}

// Image is the background image of a slide and its transform
type Image struct {
	Src       string  `json:"src,omitempty"`
	Thumb     string  `json:"thumb,omitempty"`
	CX        float64 `json:"cx"`
	CY        float64 `json:"cy"`
	Scale     float64 `json:"scale"`
	Angle     float64 `json:"angle"`
	Flip      bool    `json:"flip"`
	FadeInMs  int     `json:"fadeInMs"`
	FadeOutMs int     `json:"fadeOutMs"`
	ZoomInMs  int     `json:"zoomInMs"`
	ZoomOutMs int     `json:"zoomOutMs"`
}

// Layer is a freely positioned text element
type Layer struct {
	ID             string   `json:"id,omitempty"`
	Text           string   `json:"text"`
	Left           float64  `json:"left"`
	Top            float64  `json:"top"`
	Width          *float64 `json:"width,omitempty"`
	FontSize       float64  `json:"fontSize"`
	FontFamily     string   `json:"fontFamily"`
	Color          string   `json:"color"`
	FontWeight     string   `json:"fontWeight"`
	FontStyle      string   `json:"fontStyle"`
	TextDecoration string   `json:"textDecoration"`
	Padding        string   `json:"padding"`
	FadeInMs       int      `json:"fadeInMs"`
	FadeOutMs      int      `json:"fadeOutMs"`
	ZoomInMs       int      `json:"zoomInMs"`
	ZoomOutMs      int      `json:"zoomOutMs"`
}

// DefaultDefaults returns the editor defaults of a fresh project
func DefaultDefaults() Defaults {
	return Defaults{
		FontFamily: "Georgia, serif",
		FontSize:   32,
		Color:      "#ffffff",
	}
}

// NewProject creates a project holding one empty slide
func NewProject() Project {
	return Project{
		Version:     CurrentVersion,
		Slides:      []Slide{NewSlide(Size{W: DefaultWorkWidth, H: DefaultWorkHeight})},
		ActiveIndex: 0,
		Defaults:    DefaultDefaults(),
		RSVP:        RSVPNone,
	}
}

// NewSlide creates an empty slide authored on a canvas of the given size
func NewSlide(work Size) Slide {
	return Slide{
		ID:         utils.GenerateShortUUID(),
		Layers:     []Layer{},
		WorkSize:   work,
		DurationMs: DefaultDurationMs,
	}
}

// NewLayer creates a text layer styled with the project defaults
func NewLayer(text string, left, top float64, d Defaults) Layer {
	l := defaultLayer()
	l.ID = utils.GenerateShortUUID()
	l.Text = text
	l.Left = left
	l.Top = top
	if d.FontSize > 0 {
		l.FontSize = d.FontSize
	}
	if d.FontFamily != "" {
		l.FontFamily = d.FontFamily
	}
	if d.Color != "" {
		l.Color = d.Color
	}
	return l
}

func defaultLayer() Layer {
	d := DefaultDefaults()
	return Layer{
		FontSize:       d.FontSize,
		FontFamily:     d.FontFamily,
		Color:          d.Color,
		FontWeight:     DefaultFontWeight,
		FontStyle:      DefaultFontStyle,
		TextDecoration: DefaultTextDecoration,
		Padding:        DefaultPadding,
	}
}

// UnmarshalJSON decodes a layer on top of the default styling so that
// fields elided by the share codec come back as their defaults.
func (l *Layer) UnmarshalJSON(data []byte) error {
	type plain Layer
	p := plain(defaultLayer())
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*l = Layer(p)
	return nil
}

// UnmarshalJSON decodes a project on top of its defaults.
func (p *Project) UnmarshalJSON(data []byte) error {
	type plain Project
	v := plain{RSVP: RSVPNone, Defaults: DefaultDefaults()}
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*p = Project(v)
	return nil
}

// ActiveSlide returns the slide at ActiveIndex, or nil when out of range
func (p *Project) ActiveSlide() *Slide {
	if p.ActiveIndex < 0 || p.ActiveIndex >= len(p.Slides) {
		return nil
	}
	return &p.Slides[p.ActiveIndex]
}

// Normalize repairs a freshly loaded project so that its invariants hold:
// at least one slide, ActiveIndex in range, positive durations and image
// scales, known RSVP value and the current schema version.
func (p *Project) Normalize() {
	if len(p.Slides) == 0 {
		p.Slides = []Slide{NewSlide(Size{W: DefaultWorkWidth, H: DefaultWorkHeight})}
	}
	if p.ActiveIndex < 0 || p.ActiveIndex >= len(p.Slides) {
		p.ActiveIndex = 0
	}
	if p.Version < CurrentVersion {
		p.Version = CurrentVersion
	}
	if !p.RSVP.Valid() {
		p.RSVP = RSVPNone
	}
	if p.Defaults.FontSize <= 0 {
		p.Defaults.FontSize = DefaultDefaults().FontSize
	}
	for i := range p.Slides {
		s := &p.Slides[i]
		if s.Layers == nil {
			s.Layers = []Layer{}
		}
		if s.DurationMs <= 0 {
			s.DurationMs = DefaultDurationMs
		}
		if s.WorkSize.W <= 0 || s.WorkSize.H <= 0 {
			s.WorkSize = Size{W: DefaultWorkWidth, H: DefaultWorkHeight}
		}
		if s.Image != nil && s.Image.Scale <= 0 {
			s.Image.Scale = 1
		}
	}
}

// Scale multiplies every spatial field of the document by factor: work
// sizes, layer geometry and font sizes, and the image transform (cx, cy,
// scale) of every slide, not only the active one. Image scales are floored
// at MinImageScale.
func (p *Project) Scale(factor float64) {
	for i := range p.Slides {
		s := &p.Slides[i]
		s.WorkSize.W *= factor
		s.WorkSize.H *= factor
		for j := range s.Layers {
			l := &s.Layers[j]
			l.Left *= factor
			l.Top *= factor
			if l.Width != nil {
				w := *l.Width * factor
				l.Width = &w
			}
			l.FontSize *= factor
		}
		if s.Image != nil {
			s.Image.CX *= factor
			s.Image.CY *= factor
			s.Image.Scale = math.Max(s.Image.Scale*factor, MinImageScale)
		}
	}
}

// MapURL builds an external map search link for the venue query
func (p *Project) MapURL() string {
	q := strings.TrimSpace(p.MapQuery)
	if q == "" {
		return ""
	}
	return "https://www.google.com/maps/search/?api=1&query=" + url.QueryEscape(q)
}

// Clone returns a deep copy that shares no memory with p
func (p Project) Clone() Project {
	out := p
	if p.Slides != nil {
		out.Slides = make([]Slide, len(p.Slides))
		for i, s := range p.Slides {
			out.Slides[i] = s.Clone()
		}
	}
	return out
}

// Clone returns a deep copy of the slide
func (s Slide) Clone() Slide {
	out := s
	if s.Image != nil {
		img := *s.Image
		out.Image = &img
	}
	if s.Layers != nil {
		out.Layers = make([]Layer, len(s.Layers))
		for i, l := range s.Layers {
			out.Layers[i] = l.Clone()
		}
	}
	return out
}

// Clone returns a deep copy of the layer
func (l Layer) Clone() Layer {
	out := l
	if l.Width != nil {
		w := *l.Width
		out.Width = &w
	}
	return out
}

// FindLayer returns the index of the layer with the given id, or -1
func (s *Slide) FindLayer(id string) int {
	for i := range s.Layers {
		if s.Layers[i].ID == id {
			return i
		}
	}
	return -1
}

// Float returns a pointer to v, for optional layer widths
func Float(v float64) *float64 {
	return &v
}
