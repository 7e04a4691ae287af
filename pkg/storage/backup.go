package storage

import (
	"archive/zip"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Backup writes a zip archive holding the stored value of every key in
// keys (missing keys are skipped) and returns its path.
func Backup(ctx context.Context, kv KV, dir string, keys ...string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	timestamp := time.Now().Format("20060102-150405")
	zipPath := filepath.Join(dir, "backup-"+timestamp+".zip")

	zipFile, err := os.Create(zipPath)
	if err != nil {
		return "", err
	}
	defer zipFile.Close()

	zipWriter := zip.NewWriter(zipFile)

	written := 0
	for _, key := range keys {
		value, err := kv.Get(ctx, key)
		if err != nil {
			zipWriter.Close()
			return "", fmt.Errorf("read %q: %w", key, err)
		}
		if value == nil {
			continue
		}
		w, err := zipWriter.Create(key + ".json")
		if err != nil {
			zipWriter.Close()
			return "", err
		}
		if _, err := w.Write(value); err != nil {
			zipWriter.Close()
			return "", err
		}
		written++
	}

	if err := zipWriter.Close(); err != nil {
		return "", err
	}
	if written == 0 {
		os.Remove(zipPath)
		return "", fmt.Errorf("nothing to back up")
	}
	return zipPath, nil
}
