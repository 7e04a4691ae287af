package handlers

import (
	"embed"
	"html/template"
	"log"
	"net/http"
	"strings"

	"invitely/pkg/editor"
	"invitely/pkg/models"
	"invitely/pkg/responsive"
)

//go:embed templates/index.html
var templateFS embed.FS

var indexTemplate = template.Must(template.New("index.html").Funcs(template.FuncMap{
	"imageSrc": imageSrc,
}).ParseFS(templateFS, "templates/index.html"))

// WebHandlers serves the editor and viewer page
type WebHandlers struct {
	editor *editor.Editor
}

// NewWebHandlers creates a new web handlers instance
func NewWebHandlers(ed *editor.Editor) *WebHandlers {
	return &WebHandlers{editor: ed}
}

type pageData struct {
	Title      string
	Project    models.Project
	Slide      *models.Slide
	Active     int
	ViewerMode bool
	Layout     responsive.LayoutInfo
	MapURL     string
}

// IndexHandler renders the active slide. ?view=1 switches to viewer mode.
func (h *WebHandlers) IndexHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("view") == "1" {
		h.editor.SetViewerMode(true)
	}

	p := h.editor.Project()
	data := pageData{
		Title:      "Invitation",
		Project:    p,
		Slide:      p.ActiveSlide(),
		Active:     p.ActiveIndex + 1,
		ViewerMode: h.editor.ViewerMode(),
		Layout:     h.editor.Layout(),
		MapURL:     p.MapURL(),
	}
	if data.Slide != nil && len(data.Slide.Layers) > 0 {
		data.Title = firstLine(data.Slide.Layers[0].Text)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := indexTemplate.Execute(w, data); err != nil {
		http.Error(w, "Template execution error", http.StatusInternalServerError)
		log.Printf("Template execution error: %v", err)
	}
}

// imageSrc returns a URL the page may embed, preferring the full image
// over the thumbnail.
func imageSrc(img *models.Image) template.URL {
	for _, src := range []string{img.Src, img.Thumb} {
		lower := strings.ToLower(src)
		if strings.HasPrefix(lower, "data:image/") ||
			strings.HasPrefix(lower, "https://") || strings.HasPrefix(lower, "http://") {
			return template.URL(src)
		}
	}
	return ""
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(s), "\n")
	if line == "" {
		return "Invitation"
	}
	return line
}
