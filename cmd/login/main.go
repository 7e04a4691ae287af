package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"syscall"
	"time"

	"golang.org/x/term"

	"invitely/pkg/api"
	"invitely/pkg/config"
	"invitely/pkg/errors"
	"invitely/pkg/storage"
)

func main() {
	register := flag.Bool("register", false, "create a new account")
	logout := flag.Bool("logout", false, "forget the stored token")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if cfg.APIBaseURL == "" {
		fmt.Fprintln(os.Stderr, "No remote service configured (set INVITELY_API_BASE_URL)")
		os.Exit(1)
	}

	kv, err := storage.NewFileKV(cfg.DataPath, cfg.StorageQuotaBytes, log.Default())
	if err != nil {
		log.Fatalf("Failed to open storage: %v", err)
	}
	defer kv.Close()

	client := api.NewClient(cfg.APIBaseURL, api.NewKVTokens(kv, log.Default()), nil, log.Default())
	if *logout {
		client.Logout()
		fmt.Println("Logged out")
		return
	}

	reader := bufio.NewReader(os.Stdin)
	fmt.Print("Email: ")
	email, _ := reader.ReadString('\n')
	email = strings.TrimSpace(email)

	fmt.Print("Password: ")
	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		log.Fatalf("Failed to read password: %v", err)
	}
	fmt.Println()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var user *api.User
	if *register {
		fmt.Print("Name: ")
		name, _ := reader.ReadString('\n')
		user, err = client.Register(ctx, email, string(passwordBytes), strings.TrimSpace(name))
	} else {
		user, err = client.Login(ctx, email, string(passwordBytes))
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, errors.StatusLine(err))
		os.Exit(1)
	}
	fmt.Printf("Signed in as %s\n", user.Email)
}
