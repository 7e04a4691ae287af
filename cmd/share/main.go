package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"

	"invitely/pkg/config"
	"invitely/pkg/editor"
	"invitely/pkg/errors"
	"invitely/pkg/share"
	"invitely/pkg/storage"
)

var (
	okStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	warnStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("11"))
	errStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
	urlStyle  = lipgloss.NewStyle().Underline(true)
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, errStyle.Render("Failed to load config: "+err.Error()))
		os.Exit(1)
	}

	kv, err := storage.NewFileKV(cfg.DataPath, cfg.StorageQuotaBytes, log.New(os.Stderr, "", 0))
	if err != nil {
		log.Fatalf("Failed to open storage: %v", err)
	}
	defer kv.Close()

	providers := []share.Provider{share.ClipboardProvider{}}
	if cfg.ShareCommand != "" {
		providers = append([]share.Provider{&share.CommandProvider{Command: cfg.ShareCommand}}, providers...)
	}

	ed, err := editor.New(editor.Options{
		KV:            kv,
		StorageKey:    cfg.StorageKey,
		ViewerBaseURL: cfg.ViewerBaseURL,
		Providers:     providers,
		Logger:        log.New(os.Stderr, "", 0),
	})
	if err != nil {
		log.Fatalf("Failed to open project: %v", err)
	}
	defer ed.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	res, err := ed.Share(ctx)
	switch {
	case res.TooLong:
		fmt.Println(warnStyle.Render(res.Message))
		os.Exit(2)
	case err != nil && res.URL == "":
		fmt.Println(errStyle.Render(errors.StatusLine(err)))
		os.Exit(1)
	case res.Method == "manual":
		fmt.Println(warnStyle.Render("Copy this link:"))
	default:
		fmt.Println(okStyle.Render("Link shared via " + res.Method))
	}
	fmt.Println(urlStyle.Render(res.URL))
}
