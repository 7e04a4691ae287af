package codec

import (
	"encoding/json"
	stderrors "errors"
	"reflect"
	"regexp"
	"strings"
	"testing"

	apperrors "invitely/pkg/errors"
	"invitely/pkg/models"
)

func sampleProject() models.Project {
	p := models.NewProject()
	s := &p.Slides[0]
	s.Image = &models.Image{
		Src:       "data:image/png;base64,AAAA",
		Thumb:     "data:image/jpeg;base64,BBBB",
		CX:        400,
		CY:        300,
		Scale:     1.25,
		ZoomInMs:  800,
		ZoomOutMs: 600,
	}
	s.Layers = []models.Layer{models.NewLayer("こんにちは世界🌍", 120, 80, p.Defaults)}
	p.RSVP = models.RSVPYes
	p.MapQuery = "Central Park"
	return p
}

func TestEncodeDecodeUnicode(t *testing.T) {
	p := sampleProject()

	payload, err := Encode(p)
	if err != nil {
		t.Fatal(err)
	}
	got, err := Decode(payload)
	if err != nil {
		t.Fatal(err)
	}

	if text := got.Slides[0].Layers[0].Text; text != "こんにちは世界🌍" {
		t.Errorf("text = %q", text)
	}
	img := got.Slides[0].Image
	if img == nil {
		t.Fatal("image dropped")
	}
	if img.ZoomInMs != 800 || img.ZoomOutMs != 600 {
		t.Errorf("zoom durations = %d/%d", img.ZoomInMs, img.ZoomOutMs)
	}
	if img.Src != "" {
		t.Errorf("inline src should be stripped, got %q", img.Src)
	}
	if img.Thumb != "data:image/jpeg;base64,BBBB" {
		t.Errorf("thumb = %q", img.Thumb)
	}
	if got.RSVP != models.RSVPYes || got.MapQuery != "Central Park" {
		t.Errorf("rsvp/map = %q/%q", got.RSVP, got.MapQuery)
	}
}

func TestRoundTripKeepsEveryField(t *testing.T) {
	defaults := models.DefaultDefaults()

	styled := models.NewLayer("Save the date", 120, 80, defaults)
	styled.Width = models.Float(240)
	styled.FontSize = 28
	styled.FontFamily = "Courier New, monospace"
	styled.Color = "#ff0066"
	styled.FontWeight = "bold"
	styled.FontStyle = "italic"
	styled.TextDecoration = "underline"
	styled.Padding = "2px"
	styled.FadeInMs = 10
	styled.FadeOutMs = 20
	styled.ZoomInMs = 30
	styled.ZoomOutMs = 40

	plain := models.NewLayer("with defaults", 15, 25, defaults)

	image := &models.Image{
		Src:       "https://cdn.example.com/bg.jpg",
		Thumb:     "data:image/jpeg;base64,BBBB",
		CX:        400.25,
		CY:        300.5,
		Scale:     1.125,
		Angle:     12.5,
		Flip:      true,
		FadeInMs:  100,
		FadeOutMs: 200,
		ZoomInMs:  300,
		ZoomOutMs: 400,
	}

	tests := []struct {
		name  string
		layer models.Layer
	}{
		{"styled layer", styled},
		{"layer with elided defaults", plain},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := models.NewProject()
			s := &p.Slides[0]
			s.DurationMs = 7000
			s.Image = image
			s.Layers = []models.Layer{tt.layer}

			payload, err := Encode(p)
			if err != nil {
				t.Fatal(err)
			}
			decoded, err := Decode(payload)
			if err != nil {
				t.Fatal(err)
			}

			compressed, err := Compress(p)
			if err != nil {
				t.Fatal(err)
			}
			var expanded models.Project
			if err := json.Unmarshal(compressed, &expanded); err != nil {
				t.Fatal(err)
			}

			for name, got := range map[string]models.Project{"encode": *decoded, "compress": expanded} {
				gs := got.Slides[0]
				if !reflect.DeepEqual(gs.Layers[0], tt.layer) {
					t.Errorf("%s: layer\n got %+v\nwant %+v", name, gs.Layers[0], tt.layer)
				}
				if gs.Image == nil || !reflect.DeepEqual(*gs.Image, *image) {
					t.Errorf("%s: image = %+v", name, gs.Image)
				}
				if gs.DurationMs != 7000 {
					t.Errorf("%s: durationMs = %d", name, gs.DurationMs)
				}
			}
		})
	}
}

func TestEncodeUsesStandardAlphabet(t *testing.T) {
	payload, err := Encode(sampleProject())
	if err != nil {
		t.Fatal(err)
	}
	if !regexp.MustCompile(`^[A-Za-z0-9+/]+=*$`).MatchString(payload) {
		t.Errorf("payload is not standard base64: %q", payload)
	}
}

func TestEncodeDoesNotModifyInput(t *testing.T) {
	p := sampleProject()
	if _, err := Encode(p); err != nil {
		t.Fatal(err)
	}
	if p.Slides[0].Image.Src != "data:image/png;base64,AAAA" {
		t.Errorf("input image src modified: %q", p.Slides[0].Image.Src)
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	for _, payload := range []string{"", "not_base64!", "aGVsbG8=", "W10="} {
		p, err := Decode(payload)
		if p != nil {
			t.Errorf("%q: expected no project", payload)
		}
		if !stderrors.Is(err, apperrors.ErrInvalidShareLink) {
			t.Errorf("%q: err = %v", payload, err)
		}
	}
}

func TestDecodeAcceptsUnpaddedPayload(t *testing.T) {
	payload, err := Encode(sampleProject())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Decode(strings.TrimRight(payload, "=")); err != nil {
		t.Errorf("unpadded payload rejected: %v", err)
	}
}

func TestStripHeavy(t *testing.T) {
	p := models.NewProject()
	p.Slides = append(p.Slides, models.NewSlide(p.Slides[0].WorkSize), models.NewSlide(p.Slides[0].WorkSize))
	p.Slides[0].Image = &models.Image{Src: "data:image/png;base64,AAAA", Thumb: "t", Scale: 1}
	p.Slides[1].Image = &models.Image{Src: "https://cdn.example.com/a.jpg", Scale: 1}
	p.Slides[2].Image = &models.Image{Src: "https://cdn.example.com/" + strings.Repeat("x", MaxRemoteSrcLength), Scale: 1}

	out := StripHeavy(p)

	if out.Slides[0].Image.Src != "" || out.Slides[0].Image.Thumb != "t" {
		t.Errorf("slide 0 image = %+v", *out.Slides[0].Image)
	}
	if out.Slides[1].Image.Src != "https://cdn.example.com/a.jpg" {
		t.Errorf("short remote src dropped: %q", out.Slides[1].Image.Src)
	}
	if out.Slides[2].Image.Src != "" {
		t.Error("long remote src kept")
	}
	if p.Slides[0].Image.Src == "" {
		t.Error("StripHeavy modified its input")
	}
}

func TestCompressRoundsAndElides(t *testing.T) {
	p := models.NewProject()
	p.Slides[0].Image = &models.Image{CX: 1.23456, CY: 2.5, Angle: 10.019, Scale: 0.123456}
	p.Slides[0].Layers = []models.Layer{models.NewLayer("a", 10.4, 20.6, p.Defaults)}

	data, err := Compress(p)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "fontWeight") || strings.Contains(string(data), "padding") {
		t.Errorf("default fields not elided: %s", data)
	}

	var back models.Project
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatal(err)
	}
	img := back.Slides[0].Image
	if img.CX != 1.23 || img.Angle != 10.02 || img.Scale != 0.123 {
		t.Errorf("image rounding = %+v", *img)
	}
	l := back.Slides[0].Layers[0]
	if l.Left != 10 || l.Top != 21 {
		t.Errorf("layer rounding = %v,%v", l.Left, l.Top)
	}
	if l.FontWeight != models.DefaultFontWeight || l.Padding != models.DefaultPadding {
		t.Errorf("defaults not restored: %+v", l)
	}
	if back.RSVP != models.RSVPNone {
		t.Errorf("rsvp = %q", back.RSVP)
	}
}

func TestViewerURLRoundTrip(t *testing.T) {
	p := sampleProject()
	link, err := ViewerURL("https://invite.example.com/app?lang=en#old", p)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(link, "#old") || !strings.Contains(link, "view=1") {
		t.Errorf("link = %q", link)
	}

	viewOnly, payload, err := ParseURL(link)
	if err != nil {
		t.Fatal(err)
	}
	if !viewOnly {
		t.Error("expected view flag")
	}
	got, err := Decode(payload)
	if err != nil {
		t.Fatal(err)
	}
	if got.Slides[0].Layers[0].Text != p.Slides[0].Layers[0].Text {
		t.Errorf("text = %q", got.Slides[0].Layers[0].Text)
	}
}

func TestParseURLWithoutPayload(t *testing.T) {
	viewOnly, payload, err := ParseURL("https://invite.example.com/")
	if err != nil || viewOnly || payload != "" {
		t.Errorf("got %v %q %v", viewOnly, payload, err)
	}
}
