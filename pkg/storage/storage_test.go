package storage

import (
	"archive/zip"
	"bytes"
	"context"
	stderrors "errors"
	"io"
	"log"
	"os"
	"path/filepath"
	"testing"
	"time"

	apperrors "invitely/pkg/errors"
)

const testQuota = 20

type backend struct {
	name string
	open func(t *testing.T, quota int64) KV
}

func backends() []backend {
	return []backend{
		{"memory", func(t *testing.T, quota int64) KV {
			return NewMemoryKV(quota)
		}},
		{"file", func(t *testing.T, quota int64) KV {
			kv, err := NewFileKV(t.TempDir(), quota, log.New(io.Discard, "", 0))
			if err != nil {
				t.Fatal(err)
			}
			return kv
		}},
		{"sqlite", func(t *testing.T, quota int64) KV {
			kv, err := NewSQLiteKV(filepath.Join(t.TempDir(), "kv.db"), quota)
			if err != nil {
				t.Fatal(err)
			}
			return kv
		}},
	}
}

func TestKVContract(t *testing.T) {
	ctx := context.Background()
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			kv := b.open(t, 0)
			defer kv.Close()

			v, err := kv.Get(ctx, "missing")
			if err != nil || v != nil {
				t.Fatalf("missing key: %q, %v", v, err)
			}

			if err := kv.Set(ctx, ProjectKey, []byte(`{"version":2}`)); err != nil {
				t.Fatal(err)
			}
			if err := kv.Set(ctx, ProjectKey, []byte(`{"version":3}`)); err != nil {
				t.Fatal(err)
			}
			v, err = kv.Get(ctx, ProjectKey)
			if err != nil || string(v) != `{"version":3}` {
				t.Errorf("get: %q, %v", v, err)
			}

			if err := kv.Delete(ctx, ProjectKey); err != nil {
				t.Fatal(err)
			}
			if v, _ := kv.Get(ctx, ProjectKey); v != nil {
				t.Errorf("deleted key still present: %q", v)
			}
			if err := kv.Delete(ctx, ProjectKey); err != nil {
				t.Errorf("deleting a missing key: %v", err)
			}
		})
	}
}

func TestKVQuota(t *testing.T) {
	ctx := context.Background()
	value := bytes.Repeat([]byte("x"), 12)
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			kv := b.open(t, testQuota)
			defer kv.Close()

			if err := kv.Set(ctx, "a", value); err != nil {
				t.Fatalf("first value: %v", err)
			}
			if err := kv.Set(ctx, "a", value); err != nil {
				t.Errorf("overwrite counted its own size: %v", err)
			}
			err := kv.Set(ctx, "b", value)
			if !stderrors.Is(err, apperrors.ErrQuotaExceeded) {
				t.Errorf("second value: err = %v", err)
			}
			if v, _ := kv.Get(ctx, "b"); v != nil {
				t.Error("value stored despite quota")
			}
		})
	}
}

func TestMemoryKVReturnsCopies(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV(0)
	in := []byte("abc")
	kv.Set(ctx, "k", in)
	in[0] = 'z'

	out, _ := kv.Get(ctx, "k")
	if string(out) != "abc" {
		t.Errorf("stored value aliased input: %q", out)
	}
	out[0] = 'y'
	again, _ := kv.Get(ctx, "k")
	if string(again) != "abc" {
		t.Errorf("returned value aliased storage: %q", again)
	}
}

func TestFileKVReportsExternalWrites(t *testing.T) {
	dir := t.TempDir()
	ours, err := NewFileKV(dir, 0, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatal(err)
	}
	defer ours.Close()
	if ours.watcher == nil {
		t.Skip("file watching unavailable")
	}

	changed := make(chan string, 16)
	ours.OnExternalChange(func(key string) { changed <- key })

	ctx := context.Background()
	if err := ours.Set(ctx, ProjectKey, []byte("own")); err != nil {
		t.Fatal(err)
	}

	// Another process sharing the directory
	if err := os.WriteFile(filepath.Join(dir, "696e766974656c79.kv"), []byte("theirs"), 0644); err != nil {
		t.Fatal(err)
	}

	timeout := time.After(2 * time.Second)
	for {
		select {
		case key := <-changed:
			if key == "invitely" {
				return
			}
		case <-timeout:
			t.Fatal("external write not reported")
		}
	}
}

func TestBackup(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV(0)
	kv.Set(ctx, ProjectKey, []byte(`{"version":2}`))

	path, err := Backup(ctx, kv, t.TempDir(), ProjectKey, "missing")
	if err != nil {
		t.Fatal(err)
	}

	zr, err := zip.OpenReader(path)
	if err != nil {
		t.Fatal(err)
	}
	defer zr.Close()
	if len(zr.File) != 1 || zr.File[0].Name != ProjectKey+".json" {
		t.Fatalf("archive entries = %v", zr.File)
	}

	if _, err := Backup(ctx, NewMemoryKV(0), t.TempDir(), ProjectKey); err == nil {
		t.Error("empty backup should fail")
	}
}
