// Package editor is the application context: it owns the project store and
// wires history, persistence, responsive scaling and sharing around it.
package editor

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"sync"

	apperrors "invitely/pkg/errors"
	"invitely/pkg/history"
	"invitely/pkg/media"
	"invitely/pkg/models"
	"invitely/pkg/performance"
	"invitely/pkg/responsive"
	"invitely/pkg/services"
	"invitely/pkg/share"
	"invitely/pkg/state"
	"invitely/pkg/storage"
)

// Remote is the remote project service as the editor uses it
type Remote interface {
	services.RemoteProjects
	UploadImage(ctx context.Context, filename, contentType string, data []byte) (string, error)
}

// Options configure a new Editor. Only KV is required.
type Options struct {
	KV         storage.KV
	StorageKey string
	Remote     Remote
	// Images receives uploaded and offloaded image bytes. When nil, images
	// go to the remote service if signed in and stay inline otherwise.
	Images        media.Uploader
	Surface       responsive.Surface
	ViewerBaseURL string
	Providers     []share.Provider
	// StartURL is the link the editor was opened with. A share payload in
	// it takes precedence over the locally stored project.
	StartURL string
	Logger   *log.Logger
}

// Editor is one editing session of one project
type Editor struct {
	store       *state.Store
	history     *history.Store
	persistence *services.Persistence
	engine      *responsive.Engine
	share       *share.Pipeline
	surface     responsive.Surface
	remote      Remote
	images      media.Uploader
	uploads     *performance.LRU[string, string]
	log         *log.Logger

	mutex  sync.Mutex
	viewer bool
	closed bool
}

// New builds an editor and loads the initial project: the share payload
// of opts.StartURL, else the local copy, else defaults.
func New(opts Options) (*Editor, error) {
	if opts.KV == nil {
		return nil, fmt.Errorf("editor: a key-value store is required")
	}
	base := opts.Logger
	if base == nil {
		base = log.Default()
	}
	sub := func(name string) *log.Logger {
		return log.New(base.Writer(), base.Prefix()+"["+name+"] ", base.Flags())
	}

	e := &Editor{
		surface: opts.Surface,
		remote:  opts.Remote,
		images:  opts.Images,
		uploads: performance.NewLRU[string, string](64),
		log:     base,
	}

	e.store = state.NewStore(models.NewProject(), sub("store"))
	e.history = history.NewStore(e.store, sub("history"))

	var remote services.RemoteProjects
	if e.remote != nil {
		remote = e.remote
	}
	e.persistence = services.NewPersistence(opts.KV, remote, e.store, sub("persistence"))
	e.persistence.SetKey(opts.StorageKey)
	e.share = share.NewPipeline(e.store, e.history, opts.ViewerBaseURL, opts.Providers, sub("share"))

	e.load(opts.StartURL)
	e.store.Attach(e.history, e.persistence)
	e.history.Push("open")

	if opts.Surface != nil {
		e.engine = responsive.NewEngine(opts.Surface, e.store, func() {
			e.store.FlushSave()
		}, sub("responsive"))
		e.engine.Initialize()
	}

	if watched, ok := opts.KV.(interface{ OnExternalChange(func(key string)) }); ok {
		watched.OnExternalChange(func(key string) {
			if key == e.persistence.Key() {
				e.reloadLocal()
			}
		})
	}
	return e, nil
}

func (e *Editor) load(startURL string) {
	if startURL != "" {
		imp, err := e.share.ImportFromURL(startURL)
		if err != nil {
			e.log.Printf("ignoring share link: %v", err)
		}
		e.setViewer(imp.ViewOnly)
		if imp.Loaded {
			e.log.Println("project loaded from share link")
			return
		}
	}
	if p, ok := e.persistence.LoadLocal(); ok {
		e.store.Apply(p)
		e.log.Println("project loaded from local storage")
		return
	}
	e.log.Println("starting with a new project")
}

// reloadLocal picks up a project written by another process
func (e *Editor) reloadLocal() {
	p, ok := e.persistence.LoadLocal()
	if !ok {
		return
	}
	current, _ := json.Marshal(e.store.Project())
	next, _ := json.Marshal(p)
	if string(current) == string(next) {
		return
	}
	e.log.Println("project changed on disk, reloading")
	e.history.Lock(true)
	defer e.history.Lock(false)
	e.store.Apply(p)
}

// Project returns a copy of the live project
func (e *Editor) Project() models.Project {
	return e.store.Project()
}

// Get returns the value at a dot path of the project
func (e *Editor) Get(path string) (interface{}, bool) {
	return e.store.Get(path)
}

// Subscribe registers a listener for committed changes
func (e *Editor) Subscribe(key string, fn state.Listener) {
	e.store.Subscribe(key, fn)
}

// Unsubscribe removes a listener
func (e *Editor) Unsubscribe(key string) {
	e.store.Unsubscribe(key)
}

// History exposes the undo stack
func (e *Editor) History() *history.Store {
	return e.history
}

// ViewerMode reports whether the project is presented read-only
func (e *Editor) ViewerMode() bool {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	return e.viewer
}

// SetViewerMode switches read-only presentation on or off
func (e *Editor) SetViewerMode(on bool) {
	e.setViewer(on)
}

func (e *Editor) setViewer(on bool) {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	e.viewer = on
}

func (e *Editor) update(description string, fn func(p *models.Project) bool) bool {
	if e.ViewerMode() {
		apperrors.ErrViewerMode.WithContext("op", description).LogTo(e.log)
		return false
	}
	return e.store.Modify(description, fn)
}

// Set applies a partial update to the project
func (e *Editor) Set(partial map[string]interface{}, opts state.SetOptions) bool {
	if e.ViewerMode() {
		apperrors.ErrViewerMode.WithContext("op", "set").LogTo(e.log)
		return false
	}
	return e.store.Set(partial, opts)
}

// Replace swaps in a whole project as one undoable edit
func (e *Editor) Replace(p models.Project) bool {
	if e.ViewerMode() {
		return false
	}
	return e.store.Apply(p)
}

// AddSlide inserts a slide after the active one and activates it
func (e *Editor) AddSlide() (string, bool) {
	var id string
	ok := e.update("add slide", func(p *models.Project) bool {
		work := models.Size{W: models.DefaultWorkWidth, H: models.DefaultWorkHeight}
		if active := p.ActiveSlide(); active != nil {
			work = active.WorkSize
		}
		slide := models.NewSlide(work)
		id = slide.ID

		at := p.ActiveIndex + 1
		p.Slides = append(p.Slides, models.Slide{})
		copy(p.Slides[at+1:], p.Slides[at:])
		p.Slides[at] = slide
		p.ActiveIndex = at
		return true
	})
	return id, ok
}

// RemoveSlide deletes the slide at index. The last slide cannot be removed.
func (e *Editor) RemoveSlide(index int) bool {
	return e.update("remove slide", func(p *models.Project) bool {
		if len(p.Slides) <= 1 || index < 0 || index >= len(p.Slides) {
			return false
		}
		p.Slides = append(p.Slides[:index], p.Slides[index+1:]...)
		if p.ActiveIndex > index || p.ActiveIndex >= len(p.Slides) {
			p.ActiveIndex--
		}
		return true
	})
}

// SetActive selects the slide being edited
func (e *Editor) SetActive(index int) bool {
	return e.update("select slide", func(p *models.Project) bool {
		if index < 0 || index >= len(p.Slides) || index == p.ActiveIndex {
			return false
		}
		p.ActiveIndex = index
		return true
	})
}

// AddLayer adds a text layer to the active slide using the project defaults
func (e *Editor) AddLayer(text string) (string, bool) {
	var id string
	ok := e.update("add text", func(p *models.Project) bool {
		s := p.ActiveSlide()
		if s == nil {
			return false
		}
		l := models.NewLayer(text, s.WorkSize.W*0.1, s.WorkSize.H*0.1, p.Defaults)
		id = l.ID
		s.Layers = append(s.Layers, l)
		return true
	})
	return id, ok
}

// UpdateLayer deep-merges patch into the layer with the given id on the
// active slide. The id itself cannot be changed.
func (e *Editor) UpdateLayer(id string, patch map[string]interface{}) bool {
	return e.update("edit text", func(p *models.Project) bool {
		s := p.ActiveSlide()
		if s == nil {
			return false
		}
		i := s.FindLayer(id)
		if i < 0 {
			return false
		}
		merged, err := patchLayer(s.Layers[i], patch)
		if err != nil {
			apperrors.ErrValidation.WithCause(err).WithContext("layer", id).LogTo(e.log)
			return false
		}
		s.Layers[i] = merged
		return true
	})
}

func patchLayer(l models.Layer, patch map[string]interface{}) (models.Layer, error) {
	data, err := json.Marshal(l)
	if err != nil {
		return l, err
	}
	var tree map[string]interface{}
	if err := json.Unmarshal(data, &tree); err != nil {
		return l, err
	}
	tree = state.DeepMerge(tree, patch)
	tree["id"] = l.ID

	data, err = json.Marshal(tree)
	if err != nil {
		return l, err
	}
	var out models.Layer
	if err := json.Unmarshal(data, &out); err != nil {
		return l, err
	}
	return out, nil
}

// RemoveLayer deletes the layer with the given id from the active slide
func (e *Editor) RemoveLayer(id string) bool {
	return e.update("remove text", func(p *models.Project) bool {
		s := p.ActiveSlide()
		if s == nil {
			return false
		}
		i := s.FindLayer(id)
		if i < 0 {
			return false
		}
		s.Layers = append(s.Layers[:i], s.Layers[i+1:]...)
		return true
	})
}

// SetImage replaces the active slide's image; nil removes it
func (e *Editor) SetImage(img *models.Image) bool {
	return e.update("set image", func(p *models.Project) bool {
		s := p.ActiveSlide()
		if s == nil {
			return false
		}
		if img == nil {
			s.Image = nil
			return true
		}
		cp := *img
		s.Image = &cp
		return true
	})
}

// SetRSVP sets the RSVP mode
func (e *Editor) SetRSVP(r models.RSVP) bool {
	if !r.Valid() {
		apperrors.ErrValidation.WithContext("rsvp", string(r)).LogTo(e.log)
		return false
	}
	return e.update("rsvp", func(p *models.Project) bool {
		p.RSVP = r
		return true
	})
}

// SetMapQuery sets the venue search text
func (e *Editor) SetMapQuery(q string) bool {
	return e.update("map", func(p *models.Project) bool {
		p.MapQuery = q
		return true
	})
}

// Undo steps back one snapshot. A pending edit is recorded first so it
// can be undone too.
func (e *Editor) Undo() bool {
	if e.ViewerMode() {
		return false
	}
	e.store.FlushHistory()
	return e.history.Undo()
}

// Redo steps forward one snapshot
func (e *Editor) Redo() bool {
	if e.ViewerMode() {
		return false
	}
	e.store.FlushHistory()
	return e.history.Redo()
}

// Reset starts over with a new project
func (e *Editor) Reset() {
	e.store.Reset()
	e.store.SetRemoteID("")
}

// ScaleAll rescales the content, as after a surface resize
func (e *Editor) ScaleAll(factor float64) bool {
	if e.engine != nil {
		return e.engine.ScaleAll(factor)
	}
	return e.store.ScaleContent(factor)
}

// Layout reports the presentation layout for the surface
func (e *Editor) Layout() responsive.LayoutInfo {
	if e.surface == nil {
		return responsive.Layout(0, 0)
	}
	return responsive.Layout(e.surface.Width(), e.surface.Height())
}

// Share publishes the current project as a viewer link
func (e *Editor) Share(ctx context.Context) (share.Result, error) {
	return e.share.ShareCurrent(ctx)
}

// ViewerURL returns the viewer link without publishing it
func (e *Editor) ViewerURL() (string, error) {
	return e.share.ViewerURL()
}

// Import loads the project from a share link and switches to viewer mode
// when the link asks for it.
func (e *Editor) Import(raw string) (share.Import, error) {
	imp, err := e.share.ImportFromURL(raw)
	if err != nil {
		return imp, err
	}
	e.setViewer(imp.ViewOnly)
	return imp, nil
}

// SaveLocal writes the project to the local store now
func (e *Editor) SaveLocal() error {
	return e.persistence.SaveLocal(e.store.Project())
}

// SaveRemote stores the project on the remote service
func (e *Editor) SaveRemote(ctx context.Context) error {
	return e.persistence.SaveRemote(ctx, e.store.Project())
}

// LoadRemote replaces the project with the remote one stored under id and
// starts a fresh history.
func (e *Editor) LoadRemote(ctx context.Context, id string) error {
	p, ok, err := e.persistence.LoadRemote(ctx, id)
	if !ok {
		if err == nil {
			err = apperrors.ErrProjectNotFound.WithContext("id", id)
		}
		return err
	}

	e.history.Lock(true)
	e.store.Apply(p)
	e.history.Lock(false)
	e.history.Clear()
	e.history.Push("load")
	return err
}

// RemoteID returns the remote id the project is bound to
func (e *Editor) RemoteID() string {
	return e.store.RemoteID()
}

// Backup archives the stored project into dir
func (e *Editor) Backup(ctx context.Context, dir string) (string, error) {
	if err := e.SaveLocal(); err != nil {
		return "", err
	}
	return e.persistence.Backup(ctx, dir)
}

// UploadImage validates an image, stores it and makes it the active
// slide's background, keeping the current transform when there is one.
func (e *Editor) UploadImage(ctx context.Context, filename, contentType string, r io.Reader) (string, error) {
	if e.ViewerMode() {
		return "", apperrors.ErrViewerMode
	}
	data, err := io.ReadAll(io.LimitReader(r, apperrors.MaxUploadBytes+1))
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.ErrTypeUpload, "UPLOAD_READ_FAILED", "failed to read upload")
	}
	if result := apperrors.NewValidator().ValidateImageUpload(contentType, int64(len(data))); !result.IsValid {
		return "", result.GetFirstError()
	}

	thumb, err := media.MakeThumb(data, media.DefaultThumbSide)
	if err != nil {
		e.log.Printf("thumbnail for %s: %v", filename, err)
	}

	src, err := e.storeImage(ctx, filename, contentType, data)
	if err != nil {
		return "", err
	}

	ok := e.update("upload image", func(p *models.Project) bool {
		s := p.ActiveSlide()
		if s == nil {
			return false
		}
		if s.Image == nil {
			s.Image = &models.Image{CX: s.WorkSize.W / 2, CY: s.WorkSize.H / 2, Scale: 1}
		}
		s.Image.Src = src
		s.Image.Thumb = thumb
		return true
	})
	if !ok {
		return "", apperrors.ErrValidation.WithContext("op", "upload image")
	}
	return src, nil
}

// storeImage returns the src for image bytes: an object store URL, a
// remote upload URL, or an inline data URI. Uploads are remembered by
// content so the same bytes are sent once.
func (e *Editor) storeImage(ctx context.Context, filename, contentType string, data []byte) (string, error) {
	if e.images == nil && (e.remote == nil || !e.remote.Authenticated()) {
		return media.DataURI(contentType, data), nil
	}
	return e.upload(ctx, filename, contentType, data)
}

func (e *Editor) upload(ctx context.Context, filename, contentType string, data []byte) (string, error) {
	key := media.ObjectKey(data, contentType)
	if url, ok := e.uploads.Get(key); ok {
		return url, nil
	}

	var (
		url string
		err error
	)
	if e.images != nil {
		url, err = e.images.Put(ctx, data, contentType)
	} else {
		url, err = e.remote.UploadImage(ctx, filename, contentType, data)
	}
	if err != nil {
		return "", err
	}
	e.uploads.Put(key, url)
	return url, nil
}

// OffloadImages moves inline image payloads to the configured uploader so
// share links can keep the image. It returns how many images moved.
func (e *Editor) OffloadImages(ctx context.Context) (int, error) {
	if e.images == nil && (e.remote == nil || !e.remote.Authenticated()) {
		return 0, apperrors.New(apperrors.ErrTypeUpload, "NO_IMAGE_STORE", "no image store configured").
			WithUserMessage("Sign in or configure image storage to keep images in shared links")
	}

	if e.ViewerMode() {
		return 0, apperrors.ErrViewerMode
	}

	p := e.store.Project()
	moved := make(map[int]string)
	var uploadErr error
	for i, s := range p.Slides {
		if s.Image == nil || !media.IsInline(s.Image.Src) {
			continue
		}
		contentType, data, err := media.ParseDataURI(s.Image.Src)
		if err != nil {
			e.log.Printf("slide %d: %v", i, err)
			continue
		}
		url, err := e.upload(ctx, fmt.Sprintf("slide-%d", i+1), contentType, data)
		if err != nil {
			uploadErr = err
			break
		}
		moved[i] = url
	}
	if len(moved) == 0 {
		return 0, uploadErr
	}

	// Slides whose source changed since the snapshot keep their new source.
	n := 0
	e.store.Update("offload images", func(cur *models.Project) {
		for i, url := range moved {
			if i < len(cur.Slides) && cur.Slides[i].Image != nil && cur.Slides[i].Image.Src == p.Slides[i].Image.Src {
				cur.Slides[i].Image.Src = url
				n++
			}
		}
	})
	return n, uploadErr
}

// Close stops observing the surface and flushes the pending save
func (e *Editor) Close() {
	e.mutex.Lock()
	if e.closed {
		e.mutex.Unlock()
		return
	}
	e.closed = true
	e.mutex.Unlock()

	if e.engine != nil {
		e.engine.Cleanup()
	}
	e.store.Close()
}
