// Package display renders moodboard images inline in capable terminals.
package display

import (
	"context"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"golang.org/x/term"

	"github.com/manash/moodboard/pkg/models"
)

// Fetcher loads image bytes for a reference.
type Fetcher interface {
	Fetch(ctx context.Context, ref models.ImageRef) ([]byte, error)
}

type Displayer struct {
	out     io.Writer
	fetcher Fetcher
	columns int
}

func New(out io.Writer, fetcher Fetcher, columns int) *Displayer {
	return &Displayer{out: out, fetcher: fetcher, columns: columns}
}

// Display draws the image followed by an optional caption line.
func (d *Displayer) Display(ctx context.Context, ref models.ImageRef, caption string) error {
	if ref.IsZero() {
		return fmt.Errorf("image has no URL or path")
	}
	data, err := d.fetcher.Fetch(ctx, ref)
	if err != nil {
		return err
	}

	if err := NewKittyEncoder(d.out, d.columns).Encode(data); err != nil {
		return fmt.Errorf("failed to encode image: %w", err)
	}
	fmt.Fprintln(d.out)
	if caption != "" {
		fmt.Fprintln(d.out, caption)
	}
	return nil
}

// Clear removes previously drawn images, used between autoplay frames.
func (d *Displayer) Clear() error {
	return NewKittyEncoder(d.out, 0).Clear()
}

var graphicsPrograms = []string{"kitty", "ghostty", "iterm.app", "wezterm"}

// Supported reports whether out is a terminal that understands the kitty
// graphics protocol.
func Supported(out io.Writer) bool {
	f, ok := out.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return false
	}
	return supportedEnv(os.Getenv)
}

func supportedEnv(getenv func(string) string) bool {
	if slices.Contains(graphicsPrograms, strings.ToLower(getenv("TERM_PROGRAM"))) {
		return true
	}
	if getenv("KITTY_WINDOW_ID") != "" || getenv("ITERM_SESSION_ID") != "" {
		return true
	}
	t := strings.ToLower(getenv("TERM"))
	return strings.Contains(t, "kitty") || strings.Contains(t, "ghostty")
}
