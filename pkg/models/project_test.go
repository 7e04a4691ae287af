package models

import (
	"encoding/json"
	"testing"
)

func TestCloneSharesNoMemory(t *testing.T) {
	p := NewProject()
	p.Slides[0].Image = &Image{Src: "a.png", Scale: 1}
	p.Slides[0].Layers = append(p.Slides[0].Layers, NewLayer("hi", 10, 20, p.Defaults))
	p.Slides[0].Layers[0].Width = Float(100)

	c := p.Clone()
	c.Slides[0].Image.Src = "b.png"
	c.Slides[0].Layers[0].Text = "changed"
	*c.Slides[0].Layers[0].Width = 5
	c.Slides = append(c.Slides, NewSlide(Size{W: 1, H: 1}))

	if p.Slides[0].Image.Src != "a.png" {
		t.Errorf("image src leaked into original: %q", p.Slides[0].Image.Src)
	}
	if p.Slides[0].Layers[0].Text != "hi" {
		t.Errorf("layer text leaked into original: %q", p.Slides[0].Layers[0].Text)
	}
	if *p.Slides[0].Layers[0].Width != 100 {
		t.Errorf("layer width leaked into original: %v", *p.Slides[0].Layers[0].Width)
	}
	if len(p.Slides) != 1 {
		t.Errorf("expected 1 slide in original, got %d", len(p.Slides))
	}
}

func TestScaleDoublesSpatialFields(t *testing.T) {
	p := NewProject()
	s := &p.Slides[0]
	s.WorkSize = Size{W: 400, H: 300}
	s.Image = &Image{CX: 200, CY: 150, Scale: 0.5}
	s.Layers = []Layer{NewLayer("x", 50, 60, p.Defaults)}
	s.Layers[0].FontSize = 16
	s.Layers[0].Width = Float(120)

	p.Scale(2)

	if s.WorkSize != (Size{W: 800, H: 600}) {
		t.Errorf("workSize = %+v", s.WorkSize)
	}
	if s.Image.CX != 400 || s.Image.CY != 300 || s.Image.Scale != 1 {
		t.Errorf("image = %+v", *s.Image)
	}
	l := s.Layers[0]
	if l.Left != 100 || l.Top != 120 || l.FontSize != 32 || *l.Width != 240 {
		t.Errorf("layer = left %v top %v size %v width %v", l.Left, l.Top, l.FontSize, *l.Width)
	}
}

func TestScaleCoversInactiveSlides(t *testing.T) {
	p := NewProject()
	second := NewSlide(Size{W: 400, H: 300})
	second.Image = &Image{CX: 10, CY: 20, Scale: 1}
	p.Slides = append(p.Slides, second)
	p.ActiveIndex = 0

	p.Scale(1.5)

	img := p.Slides[1].Image
	if img.CX != 15 || img.CY != 30 || img.Scale != 1.5 {
		t.Errorf("inactive slide image = %+v", *img)
	}
	if p.Slides[1].WorkSize != (Size{W: 600, H: 450}) {
		t.Errorf("inactive slide workSize = %+v", p.Slides[1].WorkSize)
	}
}

func TestScaleFloorsImageScale(t *testing.T) {
	p := NewProject()
	p.Slides[0].Image = &Image{Scale: 0.1}
	p.Scale(0.01)
	if got := p.Slides[0].Image.Scale; got != MinImageScale {
		t.Errorf("scale = %v, want %v", got, MinImageScale)
	}
}

func TestNormalizeRepairsProject(t *testing.T) {
	p := Project{ActiveIndex: 7, RSVP: "later"}
	p.Normalize()

	if len(p.Slides) != 1 {
		t.Fatalf("expected one slide, got %d", len(p.Slides))
	}
	if p.ActiveIndex != 0 {
		t.Errorf("activeIndex = %d", p.ActiveIndex)
	}
	if p.RSVP != RSVPNone {
		t.Errorf("rsvp = %q", p.RSVP)
	}
	if p.Version != CurrentVersion {
		t.Errorf("version = %d", p.Version)
	}
	if p.Slides[0].Layers == nil {
		t.Error("layers should be an empty slice, not nil")
	}
}

func TestLayerUnmarshalRestoresDefaults(t *testing.T) {
	var l Layer
	if err := json.Unmarshal([]byte(`{"text":"hello","left":3,"top":4,"fontSize":12}`), &l); err != nil {
		t.Fatal(err)
	}
	if l.FontWeight != DefaultFontWeight || l.FontStyle != DefaultFontStyle ||
		l.TextDecoration != DefaultTextDecoration || l.Padding != DefaultPadding {
		t.Errorf("elided fields not restored: %+v", l)
	}
	if l.FontSize != 12 {
		t.Errorf("fontSize = %v", l.FontSize)
	}
}

func TestMapURL(t *testing.T) {
	p := NewProject()
	if p.MapURL() != "" {
		t.Error("empty query should give no link")
	}
	p.MapQuery = "Town Hall, Springfield"
	want := "https://www.google.com/maps/search/?api=1&query=Town+Hall%2C+Springfield"
	if got := p.MapURL(); got != want {
		t.Errorf("MapURL() = %q, want %q", got, want)
	}
}
