package share

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"
	"testing"
	"time"

	"invitely/pkg/codec"
	apperrors "invitely/pkg/errors"
	"invitely/pkg/history"
	"invitely/pkg/models"
	"invitely/pkg/state"
)

type fakeProvider struct {
	name      string
	available bool
	err       error
	shared    []string
}

func (f *fakeProvider) Name() string    { return f.name }
func (f *fakeProvider) Available() bool { return f.available }

func (f *fakeProvider) Share(_ context.Context, _, url string) error {
	if f.err != nil {
		return f.err
	}
	f.shared = append(f.shared, url)
	return nil
}

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func newEditorState(t *testing.T) (*state.Store, *history.Store) {
	t.Helper()
	st := state.NewStore(models.NewProject(), quietLogger())
	st.SetDelays(time.Hour, time.Hour)
	h := history.NewStore(st, quietLogger())
	st.Attach(h, nil)
	h.Push("open")
	return st, h
}

func TestShareFallsBackThroughProviders(t *testing.T) {
	st, h := newEditorState(t)
	broken := &fakeProvider{name: "platform", available: true, err: fmt.Errorf("cancelled")}
	missing := &fakeProvider{name: "missing"}
	clip := &fakeProvider{name: "clipboard", available: true}

	sp := NewPipeline(st, h, "https://invite.example.com/", []Provider{missing, broken, clip}, quietLogger())
	res, err := sp.ShareCurrent(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Method != "clipboard" || res.TooLong {
		t.Errorf("result = %+v", res)
	}
	if len(clip.shared) != 1 || clip.shared[0] != res.URL {
		t.Errorf("clipboard got %v", clip.shared)
	}
	if !strings.Contains(res.URL, "view=1") || !strings.Contains(res.URL, "#d=") {
		t.Errorf("url = %q", res.URL)
	}
}

func TestShareFallsBackToManual(t *testing.T) {
	st, h := newEditorState(t)
	sp := NewPipeline(st, h, "https://invite.example.com/", nil, quietLogger())

	res, err := sp.ShareCurrent(context.Background())
	if err != nil || res.Method != "manual" {
		t.Fatalf("result = %+v, %v", res, err)
	}
	manual := sp.providers[len(sp.providers)-1].(*ManualProvider)
	if manual.Last() != res.URL {
		t.Errorf("manual provider holds %q", manual.Last())
	}
}

func TestShareRefusesLongLinks(t *testing.T) {
	st, h := newEditorState(t)
	st.Update("long", func(p *models.Project) {
		for i := 0; i < 20; i++ {
			p.Slides[0].Layers = append(p.Slides[0].Layers,
				models.NewLayer(fmt.Sprintf("line %d %s", i, strings.Repeat("ü", 40)), 10, float64(i*10), p.Defaults))
		}
	})
	clip := &fakeProvider{name: "clipboard", available: true}
	sp := NewPipeline(st, h, "https://invite.example.com/", []Provider{clip}, quietLogger())

	res, err := sp.ShareCurrent(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !res.TooLong || res.URL != "" || res.Length <= codec.MaxURLLength {
		t.Errorf("result = %+v", res)
	}
	if res.Message != apperrors.ErrShareURLTooLong.GetUserMessage() {
		t.Errorf("message = %q", res.Message)
	}
	if len(clip.shared) != 0 {
		t.Error("over-long link was shared")
	}
}

func TestImportFromURLRecordsNoHistory(t *testing.T) {
	st, h := newEditorState(t)

	incoming := models.NewProject()
	incoming.MapQuery = "Lakeside Pavilion"
	link, err := codec.ViewerURL("https://invite.example.com/", incoming)
	if err != nil {
		t.Fatal(err)
	}

	sp := NewPipeline(st, h, "https://invite.example.com/", nil, quietLogger())
	imp, err := sp.ImportFromURL(link)
	if err != nil {
		t.Fatal(err)
	}
	if !imp.Loaded || !imp.ViewOnly {
		t.Errorf("import = %+v", imp)
	}
	if st.Project().MapQuery != "Lakeside Pavilion" {
		t.Errorf("mapQuery = %q", st.Project().MapQuery)
	}
	if st.FlushHistory() {
		t.Error("import scheduled a history entry")
	}
	if h.Len() != 1 || h.Locked() {
		t.Errorf("history len=%d locked=%v", h.Len(), h.Locked())
	}
}

func TestImportFromURLRejectsDamagedLinks(t *testing.T) {
	st, h := newEditorState(t)
	before := st.Project()
	sp := NewPipeline(st, h, "https://invite.example.com/", nil, quietLogger())

	_, err := sp.ImportFromURL("https://invite.example.com/?view=1#d=not_base64!")
	if err == nil {
		t.Fatal("damaged link accepted")
	}
	if st.Project().Slides[0].ID != before.Slides[0].ID {
		t.Error("project replaced by a damaged link")
	}

	imp, err := sp.ImportFromURL("https://invite.example.com/?view=1")
	if err != nil || imp.Loaded || !imp.ViewOnly {
		t.Errorf("link without payload: %+v, %v", imp, err)
	}
}

func TestCommandProviderAvailability(t *testing.T) {
	if (&CommandProvider{}).Available() {
		t.Error("empty command available")
	}
	if (&CommandProvider{Command: "invitely-no-such-share-tool"}).Available() {
		t.Error("missing command available")
	}
}
