// Package repl is the interactive terminal front end for a moodboard.
package repl

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/manash/moodboard/internal/display"
	"github.com/manash/moodboard/internal/image"
	"github.com/manash/moodboard/internal/moodboard"
	"github.com/manash/moodboard/internal/region"
)

type REPL struct {
	in        io.Reader
	out       io.Writer
	err       io.Writer
	board     *moodboard.Board
	displayer *display.Displayer
	saver     *image.Saver
	selector  *region.Selector
	log       *logrus.Logger
	commands  map[string]Command
	running   bool
}

type Config struct {
	In    io.Reader
	Out   io.Writer
	Err   io.Writer
	Board *moodboard.Board
	// Displayer is nil when the terminal cannot draw images.
	Displayer *display.Displayer
	Saver     *image.Saver
	// Viewport maps "region drag" coordinates to image pixels. The zero value
	// treats them as image pixels.
	Viewport region.Viewport
	Logger   *logrus.Logger
}

func New(cfg *Config) *REPL {
	log := cfg.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	r := &REPL{
		in:        cfg.In,
		out:       cfg.Out,
		err:       cfg.Err,
		board:     cfg.Board,
		displayer: cfg.Displayer,
		saver:     cfg.Saver,
		selector:  region.New(cfg.Viewport, nil),
		log:       log,
		commands:  make(map[string]Command),
	}
	r.registerCommands()
	return r
}

func (r *REPL) Run(ctx context.Context) error {
	r.running = true
	r.printWelcome()

	scanner := bufio.NewScanner(r.in)
	for r.running {
		r.printPrompt()
		if !scanner.Scan() {
			break
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if err := r.execute(ctx, line); err != nil {
			fmt.Fprintf(r.err, "Error: %v\n", err)
		}
		if ctx.Err() != nil {
			break
		}
	}

	return scanner.Err()
}

// execute runs a command, or stores any other line as pending input. Text is
// only sent to the backend by an explicit submit. A line starting with a quote
// is always input, so prompts may begin with a command word.
func (r *REPL) execute(ctx context.Context, line string) error {
	parts := parseCommand(line)
	if len(parts) == 0 {
		return nil
	}

	quoted := strings.HasPrefix(line, `"`) || strings.HasPrefix(line, "'")
	cmd, ok := r.commands[strings.ToLower(parts[0])]
	if !ok || quoted {
		text := line
		if quoted {
			text = strings.Join(parts, " ")
		}
		if err := r.board.SetInput(text); err != nil {
			return err
		}
		fmt.Fprintf(r.out, "Pending: %q (type 'submit' to send)\n", truncate(text, 60))
		return nil
	}

	r.log.WithField("command", cmd.Name()).Debug("executing command")
	return cmd.Execute(ctx, r, parts[1:])
}

func (r *REPL) Stop() {
	r.running = false
}

func (r *REPL) printWelcome() {
	fmt.Fprintln(r.out, "moodboard interactive mode")
	fmt.Fprintln(r.out, "Type a description, then 'submit' to send it. 'help' lists commands, 'quit' exits.")
	fmt.Fprintln(r.out)
}

func (r *REPL) printPrompt() {
	v := r.board.Snapshot()
	switch {
	case v.ViewMode:
		fmt.Fprintf(r.out, "moodboard [%s] (view)> ", v.Model)
	case v.Mode == moodboard.ModeEdit:
		fmt.Fprintf(r.out, "moodboard [%s] (edit)> ", v.Model)
	default:
		fmt.Fprintf(r.out, "moodboard [%s]> ", v.Model)
	}
}

func parseCommand(line string) []string {
	var parts []string
	var current strings.Builder
	quote := rune(0)

	flush := func() {
		if current.Len() > 0 {
			parts = append(parts, current.String())
			current.Reset()
		}
	}

	for _, ch := range line {
		switch {
		case quote != 0 && ch == quote:
			quote = 0
		case quote == 0 && (ch == '"' || ch == '\''):
			quote = ch
		case quote == 0 && (ch == ' ' || ch == '\t'):
			flush()
		default:
			current.WriteRune(ch)
		}
	}
	flush()

	return parts
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
