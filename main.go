package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	openURL := flag.String("open", "", "share link to open, e.g. http://host/?view=1#d=...")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := NewApp(ctx, *openURL)
	if err != nil {
		log.Fatalf("failed to start: %v", err)
	}

	if err := app.Run(ctx); err != nil {
		log.Fatalf("server error: %v", err)
	}
	log.Println("Shut down gracefully")
}
