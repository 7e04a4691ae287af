// Package share publishes the project as a viewer link and imports
// projects from such links.
package share

import (
	"context"
	"log"

	"invitely/pkg/codec"
	apperrors "invitely/pkg/errors"
	"invitely/pkg/models"
)

// Source is the project owner shared from and imported into
type Source interface {
	Project() models.Project
	Apply(p models.Project) bool
}

// Locker suspends history recording
type Locker interface {
	Lock(locked bool)
}

// Result describes what happened to a share request
type Result struct {
	URL    string `json:"url,omitempty"`
	Method string `json:"method,omitempty"`
	Length int    `json:"length"`
	// TooLong is set when the link exceeds codec.MaxURLLength; nothing
	// was published and Message says why.
	TooLong bool   `json:"tooLong"`
	Message string `json:"message,omitempty"`
}

// Import describes the outcome of ImportFromURL
type Import struct {
	ViewOnly bool `json:"viewOnly"`
	Loaded   bool `json:"loaded"`
}

// Pipeline shares the live project through the first working provider
type Pipeline struct {
	source    Source
	history   Locker
	baseURL   string
	title     string
	providers []Provider
	log       *log.Logger
}

// NewPipeline creates a pipeline. Providers are tried in the given order;
// a ManualProvider is appended when none is present.
func NewPipeline(source Source, history Locker, baseURL string, providers []Provider, logger *log.Logger) *Pipeline {
	if logger == nil {
		logger = log.Default()
	}
	hasManual := false
	for _, p := range providers {
		if _, ok := p.(*ManualProvider); ok {
			hasManual = true
		}
	}
	providers = append([]Provider(nil), providers...)
	if !hasManual {
		providers = append(providers, &ManualProvider{})
	}
	return &Pipeline{
		source:    source,
		history:   history,
		baseURL:   baseURL,
		title:     "You're invited",
		providers: providers,
		log:       logger,
	}
}

// SetTitle sets the title passed to share providers
func (sp *Pipeline) SetTitle(title string) {
	sp.title = title
}

// ViewerURL builds the viewer link for the current project
func (sp *Pipeline) ViewerURL() (string, error) {
	return codec.ViewerURL(sp.baseURL, sp.source.Project())
}

// ShareCurrent publishes the current project. An over-long link is
// reported in the result rather than as an error.
func (sp *Pipeline) ShareCurrent(ctx context.Context) (Result, error) {
	url, err := sp.ViewerURL()
	if err != nil {
		return Result{}, err
	}

	res := Result{Length: len(url)}
	if len(url) > codec.MaxURLLength {
		tooLong := apperrors.ErrShareURLTooLong.WithContext("length", len(url))
		tooLong.LogTo(sp.log)
		res.TooLong = true
		res.Message = tooLong.GetUserMessage()
		return res, nil
	}
	res.URL = url

	var lastErr error
	for _, p := range sp.providers {
		if !p.Available() {
			continue
		}
		if err := p.Share(ctx, sp.title, url); err != nil {
			sp.log.Printf("share via %s failed: %v", p.Name(), err)
			lastErr = err
			continue
		}
		res.Method = p.Name()
		return res, nil
	}

	if lastErr == nil {
		lastErr = apperrors.New(apperrors.ErrTypeShare, "NO_SHARE_PROVIDER", "no share provider available")
	}
	return res, lastErr
}

// ImportFromURL applies the project carried by a share link. view=1 asks
// for read-only presentation. The import records no history entry.
func (sp *Pipeline) ImportFromURL(raw string) (Import, error) {
	viewOnly, payload, err := codec.ParseURL(raw)
	if err != nil {
		return Import{}, err
	}
	res := Import{ViewOnly: viewOnly}
	if payload == "" {
		return res, nil
	}

	p, err := codec.Decode(payload)
	if err != nil {
		return res, err
	}

	if sp.history != nil {
		sp.history.Lock(true)
		defer sp.history.Lock(false)
	}
	if !sp.source.Apply(*p) {
		return res, apperrors.ErrInvalidShareLink.WithContext("reason", "project rejected")
	}
	res.Loaded = true
	return res, nil
}
