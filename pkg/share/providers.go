package share

import (
	"context"
	"fmt"
	"os/exec"
	"sync"

	"github.com/atotto/clipboard"
)

// Provider hands a viewer URL to the user
type Provider interface {
	Name() string
	// Available probes whether the provider can work in this environment
	Available() bool
	Share(ctx context.Context, title, url string) error
}

// CommandProvider runs a platform share command with the title and URL
// as its final arguments.
type CommandProvider struct {
	Command string
	Args    []string
}

// Name implements Provider
func (p *CommandProvider) Name() string { return "platform" }

// Available reports whether the command is configured and on PATH
func (p *CommandProvider) Available() bool {
	if p == nil || p.Command == "" {
		return false
	}
	_, err := exec.LookPath(p.Command)
	return err == nil
}

// Share runs the command
func (p *CommandProvider) Share(ctx context.Context, title, url string) error {
	args := append(append([]string(nil), p.Args...), title, url)
	out, err := exec.CommandContext(ctx, p.Command, args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %w: %s", p.Command, err, out)
	}
	return nil
}

// ClipboardProvider copies the URL to the system clipboard
type ClipboardProvider struct{}

// Name implements Provider
func (ClipboardProvider) Name() string { return "clipboard" }

// Available reports whether a clipboard utility was found
func (ClipboardProvider) Available() bool { return !clipboard.Unsupported }

// Share writes url to the clipboard
func (ClipboardProvider) Share(_ context.Context, _, url string) error {
	return clipboard.WriteAll(url)
}

// ManualProvider keeps the URL so the caller can present it for copying.
// It is always available.
type ManualProvider struct {
	mutex sync.Mutex
	last  string
}

// Name implements Provider
func (m *ManualProvider) Name() string { return "manual" }

// Available implements Provider
func (m *ManualProvider) Available() bool { return true }

// Share records url
func (m *ManualProvider) Share(_ context.Context, _, url string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.last = url
	return nil
}

// Last returns the most recently shared URL
func (m *ManualProvider) Last() string {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.last
}
