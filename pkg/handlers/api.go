package handlers

import (
	"encoding/json"
	stderrors "errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"invitely/pkg/editor"
	"invitely/pkg/errors"
	"invitely/pkg/models"
	"invitely/pkg/responsive"
	"invitely/pkg/state"
)

// APIHandlers exposes the editor over HTTP
type APIHandlers struct {
	editor    *editor.Editor
	surface   *responsive.ReportedSurface
	backupDir string
}

// NewAPIHandlers creates a new API handlers instance. surface may be nil
// when the editor runs without responsive scaling.
func NewAPIHandlers(ed *editor.Editor, surface *responsive.ReportedSurface, backupDir string) *APIHandlers {
	return &APIHandlers{
		editor:    ed,
		surface:   surface,
		backupDir: backupDir,
	}
}

// Routes mounts every API endpoint on r
func (h *APIHandlers) Routes(r chi.Router) {
	r.Get("/project", h.GetProjectHandler)
	r.Put("/project", h.ReplaceProjectHandler)
	r.Patch("/project", h.PatchProjectHandler)
	r.Get("/project/value", h.GetValueHandler)

	r.Post("/undo", h.UndoHandler)
	r.Post("/redo", h.RedoHandler)
	r.Get("/history", h.HistoryHandler)

	r.Post("/slides", h.AddSlideHandler)
	r.Delete("/slides/{index}", h.RemoveSlideHandler)
	r.Post("/slides/{index}/activate", h.ActivateSlideHandler)

	r.Post("/layers", h.AddLayerHandler)
	r.Patch("/layers/{id}", h.UpdateLayerHandler)
	r.Delete("/layers/{id}", h.RemoveLayerHandler)

	r.Put("/image", h.SetImageHandler)
	r.Post("/images", h.UploadImageHandler)
	r.Post("/images/offload", h.OffloadImagesHandler)

	r.Put("/rsvp", h.SetRSVPHandler)
	r.Put("/map", h.SetMapQueryHandler)

	r.Post("/surface", h.SurfaceHandler)
	r.Get("/layout", h.LayoutHandler)

	r.Post("/share", h.ShareHandler)
	r.Get("/share/url", h.ShareURLHandler)
	r.Post("/import", h.ImportHandler)
	r.Get("/viewer", h.GetViewerHandler)
	r.Put("/viewer", h.SetViewerHandler)

	r.Post("/remote/save", h.SaveRemoteHandler)
	r.Post("/backup", h.BackupHandler)
}

// GetProjectHandler returns the live project
func (h *APIHandlers) GetProjectHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.editor.Project())
}

// ReplaceProjectHandler replaces the whole project
func (h *APIHandlers) ReplaceProjectHandler(w http.ResponseWriter, r *http.Request) {
	var p models.Project
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if !h.editor.Replace(p) {
		writeError(w, errors.ErrValidation)
		return
	}
	writeJSON(w, http.StatusOK, h.editor.Project())
}

// PatchProjectHandler applies a partial update. ?merge=false replaces
// top-level keys instead of deep-merging them.
func (h *APIHandlers) PatchProjectHandler(w http.ResponseWriter, r *http.Request) {
	var partial map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&partial); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	opts := state.DefaultSetOptions()
	if r.URL.Query().Get("merge") == "false" {
		opts.Merge = false
	}
	if !h.editor.Set(partial, opts) {
		writeError(w, errors.ErrValidation)
		return
	}
	writeJSON(w, http.StatusOK, h.editor.Project())
}

// GetValueHandler returns the value at ?path= (dot separated)
func (h *APIHandlers) GetValueHandler(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	v, ok := h.editor.Get(path)
	if !ok {
		http.Error(w, "Path not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

type historyStatus struct {
	OK      bool `json:"ok"`
	CanUndo bool `json:"canUndo"`
	CanRedo bool `json:"canRedo"`
	Index   int  `json:"index"`
	Len     int  `json:"len"`
}

func (h *APIHandlers) historyStatus(ok bool) historyStatus {
	hist := h.editor.History()
	return historyStatus{
		OK:      ok,
		CanUndo: hist.CanUndo(),
		CanRedo: hist.CanRedo(),
		Index:   hist.Index(),
		Len:     hist.Len(),
	}
}

// UndoHandler steps back one snapshot
func (h *APIHandlers) UndoHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.historyStatus(h.editor.Undo()))
}

// RedoHandler steps forward one snapshot
func (h *APIHandlers) RedoHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.historyStatus(h.editor.Redo()))
}

// HistoryHandler reports the undo stack position
func (h *APIHandlers) HistoryHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.historyStatus(true))
}

// AddSlideHandler appends a slide after the active one
func (h *APIHandlers) AddSlideHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.editor.AddSlide()
	if !ok {
		writeError(w, errors.ErrValidation)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

// RemoveSlideHandler deletes the slide at {index}
func (h *APIHandlers) RemoveSlideHandler(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		http.Error(w, "Invalid slide index", http.StatusBadRequest)
		return
	}
	if !h.editor.RemoveSlide(index) {
		writeError(w, errors.ErrValidation.WithContext("index", index))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ActivateSlideHandler selects the slide at {index}
func (h *APIHandlers) ActivateSlideHandler(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		http.Error(w, "Invalid slide index", http.StatusBadRequest)
		return
	}
	if !h.editor.SetActive(index) && h.editor.Project().ActiveIndex != index {
		writeError(w, errors.ErrValidation.WithContext("index", index))
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"activeIndex": index})
}

// AddLayerHandler adds a text layer to the active slide
func (h *APIHandlers) AddLayerHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	id, ok := h.editor.AddLayer(req.Text)
	if !ok {
		writeError(w, errors.ErrValidation)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

// UpdateLayerHandler merges the request body into layer {id}
func (h *APIHandlers) UpdateLayerHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var patch map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if !h.editor.UpdateLayer(id, patch) {
		writeError(w, errors.ErrValidation.WithContext("layer", id))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RemoveLayerHandler deletes layer {id}
func (h *APIHandlers) RemoveLayerHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !h.editor.RemoveLayer(id) {
		http.Error(w, "Layer not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SetImageHandler sets (or with a null body clears) the active image
func (h *APIHandlers) SetImageHandler(w http.ResponseWriter, r *http.Request) {
	var img *models.Image
	if err := json.NewDecoder(r.Body).Decode(&img); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if !h.editor.SetImage(img) {
		writeError(w, errors.ErrValidation)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UploadImageHandler accepts a multipart "image" field
func (h *APIHandlers) UploadImageHandler(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, errors.MaxUploadBytes+1<<20)
	file, header, err := r.FormFile("image")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if stderrors.As(err, &tooLarge) {
			writeError(w, errors.ErrFileTooLarge)
			return
		}
		http.Error(w, "Missing image field", http.StatusBadRequest)
		return
	}
	defer file.Close()

	src, err := h.editor.UploadImage(r.Context(), header.Filename, header.Header.Get("Content-Type"), file)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"src": src})
}

// OffloadImagesHandler moves inline images to remote storage
func (h *APIHandlers) OffloadImagesHandler(w http.ResponseWriter, r *http.Request) {
	n, err := h.editor.OffloadImages(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"moved": n})
}

// SetRSVPHandler sets the RSVP mode
func (h *APIHandlers) SetRSVPHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RSVP models.RSVP `json:"rsvp"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if !h.editor.SetRSVP(req.RSVP) {
		writeError(w, errors.ErrValidation.WithContext("rsvp", string(req.RSVP)))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SetMapQueryHandler sets the venue query and returns the map link
func (h *APIHandlers) SetMapQueryHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query string `json:"query"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	h.editor.SetMapQuery(req.Query)
	p := h.editor.Project()
	writeJSON(w, http.StatusOK, map[string]string{"mapQuery": p.MapQuery, "mapUrl": p.MapURL()})
}

// SurfaceHandler receives the size of the browser's work area
func (h *APIHandlers) SurfaceHandler(w http.ResponseWriter, r *http.Request) {
	if h.surface == nil {
		http.Error(w, "Responsive scaling is disabled", http.StatusNotFound)
		return
	}
	var req struct {
		Width  float64 `json:"width"`
		Height float64 `json:"height"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if req.Width < 0 || req.Height < 0 {
		http.Error(w, "Invalid surface size", http.StatusBadRequest)
		return
	}
	h.surface.Report(req.Width, req.Height)
	writeJSON(w, http.StatusOK, h.surface.Info())
}

// LayoutHandler reports breakpoint and orientation
func (h *APIHandlers) LayoutHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.editor.Layout())
}

// ShareHandler publishes a viewer link
func (h *APIHandlers) ShareHandler(w http.ResponseWriter, r *http.Request) {
	res, err := h.editor.Share(r.Context())
	if err != nil && res.URL == "" {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ShareURLHandler returns the viewer link without publishing it
func (h *APIHandlers) ShareURLHandler(w http.ResponseWriter, r *http.Request) {
	url, err := h.editor.ViewerURL()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"url": url, "length": len(url)})
}

// ImportHandler loads a project from a share link
func (h *APIHandlers) ImportHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	imp, err := h.editor.Import(req.URL)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, imp)
}

// GetViewerHandler reports whether viewer mode is on
func (h *APIHandlers) GetViewerHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"viewerMode": h.editor.ViewerMode()})
}

// SetViewerHandler switches viewer mode
func (h *APIHandlers) SetViewerHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ViewerMode bool `json:"viewerMode"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	h.editor.SetViewerMode(req.ViewerMode)
	writeJSON(w, http.StatusOK, map[string]bool{"viewerMode": h.editor.ViewerMode()})
}

// SaveRemoteHandler stores the project on the remote service
func (h *APIHandlers) SaveRemoteHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.editor.SaveRemote(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": h.editor.RemoteID()})
}

// LoadRemoteHandler replaces the project with remote project {id}
func (h *APIHandlers) LoadRemoteHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.editor.LoadRemote(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.editor.Project())
}

// BackupHandler writes a zip backup of the stored project
func (h *APIHandlers) BackupHandler(w http.ResponseWriter, r *http.Request) {
	path, err := h.editor.Backup(r.Context(), h.backupDir)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"path": path})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError renders err as a frontend error with a matching status
func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), errors.ToFrontendError(err))
}

func statusFor(err error) int {
	var appErr *errors.AppError
	if !stderrors.As(err, &appErr) {
		return http.StatusInternalServerError
	}
	switch {
	case stderrors.Is(err, errors.ErrViewerMode):
		return http.StatusForbidden
	case stderrors.Is(err, errors.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge
	case stderrors.Is(err, errors.ErrUnsupportedFileType):
		return http.StatusUnsupportedMediaType
	case stderrors.Is(err, errors.ErrProjectNotFound):
		return http.StatusNotFound
	case stderrors.Is(err, errors.ErrRateLimited):
		return http.StatusTooManyRequests
	}
	switch appErr.Type {
	case errors.ErrTypeValidation, errors.ErrTypeShare:
		return http.StatusUnprocessableEntity
	case errors.ErrTypeAuth:
		return http.StatusUnauthorized
	case errors.ErrTypeNetwork:
		return http.StatusBadGateway
	case errors.ErrTypeUpload:
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
