package repl

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/manash/moodboard/internal/history"
	"github.com/manash/moodboard/internal/image"
	"github.com/manash/moodboard/internal/moodboard"
	"github.com/manash/moodboard/internal/reasoning"
	"github.com/manash/moodboard/internal/region"
	"github.com/manash/moodboard/pkg/models"
)

type Command interface {
	Name() string
	Aliases() []string
	Description() string
	Usage() string
	Execute(ctx context.Context, r *REPL, args []string) error
}

func allCommands() []Command {
	return []Command{
		&SubmitCommand{},
		&GenerateCommand{},
		&RegionCommand{},
		&HistoryCommand{},
		&SelectCommand{},
		&PlayCommand{},
		&ReasoningCommand{},
		&ShowCommand{},
		&SaveCommand{},
		&ModelCommand{},
		&StatusCommand{},
		&HelpCommand{},
		&QuitCommand{},
	}
}

func (r *REPL) registerCommands() {
	for _, cmd := range allCommands() {
		r.commands[cmd.Name()] = cmd
		for _, alias := range cmd.Aliases() {
			r.commands[alias] = cmd
		}
	}
}

// SubmitCommand sends the pending input, or the given text, to the backend
type SubmitCommand struct{}

func (c *SubmitCommand) Name() string      { return "submit" }
func (c *SubmitCommand) Aliases() []string { return []string{"s"} }
func (c *SubmitCommand) Description() string {
	return "Submit pending input (generate first, then edit the active image)"
}
func (c *SubmitCommand) Usage() string { return "submit [text]" }

func (c *SubmitCommand) Execute(ctx context.Context, r *REPL, args []string) error {
	if len(args) > 0 {
		return r.submit(ctx, strings.Join(args, " "))
	}
	return r.submit(ctx, r.board.Input())
}

// GenerateCommand submits a prompt given inline
type GenerateCommand struct{}

func (c *GenerateCommand) Name() string      { return "generate" }
func (c *GenerateCommand) Aliases() []string { return []string{"gen", "g"} }
func (c *GenerateCommand) Description() string {
	return "Submit a prompt directly (edits once an image exists)"
}
func (c *GenerateCommand) Usage() string { return "generate <prompt>" }

func (c *GenerateCommand) Execute(ctx context.Context, r *REPL, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: %s", c.Usage())
	}
	return r.submit(ctx, strings.Join(args, " "))
}

func (r *REPL) submit(ctx context.Context, text string) error {
	before := r.board.Snapshot()
	if before.Mode == moodboard.ModeEdit && !before.ViewMode {
		target := "entire image"
		if before.Region != nil {
			target = "region " + before.Region.String()
		}
		fmt.Fprintf(r.out, "Editing %s with %s...\n", target, before.Model)
	} else if !before.ViewMode {
		fmt.Fprintf(r.out, "Generating with %s...\n", before.Model)
	}

	entry, err := r.board.Submit(ctx, text)
	if err != nil {
		return err
	}

	v := r.board.Snapshot()
	fmt.Fprintf(r.out, "%s: %s\n", entry.Kind.Label(), describeImage(entry.Image))
	if len(v.Sections) > 0 {
		fmt.Fprintf(r.out, "Reasoning: %s\n", reasoning.Summary(v.Sections))
	}
	fmt.Fprintf(r.out, "%d versions in history\n", v.HistoryCount)
	r.showImage(ctx, entry.Image, "")
	return nil
}

// RegionCommand sets or clears the edit region
type RegionCommand struct{}

func (c *RegionCommand) Name() string      { return "region" }
func (c *RegionCommand) Aliases() []string { return []string{"r"} }
func (c *RegionCommand) Description() string {
	return "Show, set, drag or clear the region the next edit targets"
}
func (c *RegionCommand) Usage() string {
	return "region [x1 y1 x2 y2 | clear | drag x1 y1 x2 y2 | fit imgW imgH canvasW canvasH]"
}

func (c *RegionCommand) Execute(_ context.Context, r *REPL, args []string) error {
	if len(args) == 0 {
		v := r.board.Snapshot()
		switch {
		case v.Region != nil:
			fmt.Fprintf(r.out, "Selected region: %s (%gx%g)\n", v.Region, v.Region.Width(), v.Region.Height())
		case v.RegionText != "":
			fmt.Fprintln(r.out, v.RegionText)
		default:
			fmt.Fprintln(r.out, "No region selected")
		}
		return nil
	}

	switch strings.ToLower(args[0]) {
	case "clear", "none":
		if err := r.board.SetRegion(nil); err != nil {
			return err
		}
		r.selector.SetRegion(nil)
		fmt.Fprintln(r.out, "Region cleared: the next edit targets the entire image")
		return nil
	case "drag":
		return c.drag(r, args[1:])
	case "fit":
		return c.fit(r, args[1:])
	}

	reg, err := models.ParseRegion(strings.Join(args, ","))
	if err != nil {
		return err
	}
	if err := r.board.SetRegion(reg); err != nil {
		return err
	}
	r.selector.SetRegion(reg)
	fmt.Fprintf(r.out, "Selected region: %s\n", reg)
	return nil
}

// drag replays a press-move-release gesture in canvas coordinates.
func (c *RegionCommand) drag(r *REPL, args []string) error {
	v, err := floats(args, 4)
	if err != nil {
		return fmt.Errorf("usage: region drag x1 y1 x2 y2: %w", err)
	}

	view := r.board.Snapshot()
	r.selector.SetDisabled(!view.InputEnabled() || view.Image == nil)
	if r.selector.Disabled() {
		return models.NewValidationError("region", disabledReason(view))
	}

	reg, ok := r.selector.Drag(models.Point{X: v[0], Y: v[1]}, models.Point{X: v[2], Y: v[3]})
	if !ok {
		return nil
	}
	if err := r.board.SetRegion(reg); err != nil {
		return err
	}
	if reg == nil {
		fmt.Fprintln(r.out, "Drag too small: region cleared")
		return nil
	}
	fmt.Fprintf(r.out, "Selected region: %s\n", reg)
	return nil
}

func (c *RegionCommand) fit(r *REPL, args []string) error {
	v, err := floats(args, 4)
	if err != nil {
		return fmt.Errorf("usage: region fit imgW imgH canvasW canvasH: %w", err)
	}
	vp := region.Fit(v[0], v[1], v[2], v[3])
	r.selector.SetViewport(vp)
	fmt.Fprintf(r.out, "Canvas %gx%g shows the %gx%g image\n", vp.CanvasWidth, vp.CanvasHeight, vp.NaturalWidth, vp.NaturalHeight)
	return nil
}

func disabledReason(v moodboard.View) error {
	switch {
	case v.ViewMode:
		return models.ErrViewMode
	case v.Loading:
		return models.ErrBusy
	default:
		return models.ErrNoImage
	}
}

// HistoryCommand lists versions or toggles the history panel
type HistoryCommand struct{}

func (c *HistoryCommand) Name() string        { return "history" }
func (c *HistoryCommand) Aliases() []string   { return []string{"h", "hist"} }
func (c *HistoryCommand) Description() string { return "Show version history" }
func (c *HistoryCommand) Usage() string       { return "history [open|close]" }

func (c *HistoryCommand) Execute(_ context.Context, r *REPL, args []string) error {
	if len(args) > 0 {
		switch strings.ToLower(args[0]) {
		case "open":
			r.board.SetHistoryOpen(true)
		case "close":
			r.board.SetHistoryOpen(false)
		default:
			return fmt.Errorf("usage: %s", c.Usage())
		}
		return nil
	}

	v := r.board.Snapshot()
	if len(v.History) == 0 {
		fmt.Fprintln(r.out, "No history yet")
		return nil
	}

	for i, it := range v.History {
		fmt.Fprintln(r.out, formatItem(i+1, it))
	}
	fmt.Fprintf(r.out, "%d versions in history\n", v.HistoryCount)
	return nil
}

func formatItem(n int, it history.Item) string {
	marker := "  "
	if it.Selected {
		marker = "> "
	}
	line := fmt.Sprintf("%s[%d] %-7s %s %-9s %q",
		marker, n, it.Label, it.Timestamp.Format("15:04:05"), it.Kind.Label(), truncate(it.Prompt, 50))
	if it.Region != nil {
		line += " @ " + it.Region.String()
	}
	return line
}

// SelectCommand shows a past version or returns to the active one
type SelectCommand struct{}

func (c *SelectCommand) Name() string      { return "select" }
func (c *SelectCommand) Aliases() []string { return []string{"v"} }
func (c *SelectCommand) Description() string {
	return "Select a version by list number, id prefix, or 'active'"
}
func (c *SelectCommand) Usage() string { return "select <n|id-prefix|active>" }

func (c *SelectCommand) Execute(ctx context.Context, r *REPL, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: %s", c.Usage())
	}

	var (
		e   history.Entry
		err error
	)
	if strings.EqualFold(args[0], "active") {
		e, err = r.board.SelectActive()
	} else {
		var id string
		id, err = resolveVersion(r.board.Snapshot().History, args[0])
		if err != nil {
			return err
		}
		e, err = r.board.SelectVersion(id)
	}
	if err != nil {
		return err
	}

	v := r.board.Snapshot()
	fmt.Fprintf(r.out, "Showing %s: %s\n", r.board.History().Label(e.ID), describeImage(e.Image))
	if v.Hint != "" {
		fmt.Fprintln(r.out, v.Hint)
	}
	r.showImage(ctx, e.Image, "")
	return nil
}

func resolveVersion(items []history.Item, arg string) (string, error) {
	if n, err := strconv.Atoi(arg); err == nil {
		if n < 1 || n > len(items) {
			return "", fmt.Errorf("version %d out of range (1-%d)", n, len(items))
		}
		return items[n-1].ID, nil
	}

	var match string
	for _, it := range items {
		if strings.HasPrefix(it.ID, arg) || strings.EqualFold(it.Label, arg) {
			if match != "" {
				return "", fmt.Errorf("ambiguous version: %s", arg)
			}
			match = it.ID
		}
	}
	if match == "" {
		return "", fmt.Errorf("%w: %s", history.ErrEntryNotFound, arg)
	}
	return match, nil
}

// PlayCommand steps through versions oldest to newest
type PlayCommand struct{}

func (c *PlayCommand) Name() string        { return "play" }
func (c *PlayCommand) Aliases() []string   { return []string{"p"} }
func (c *PlayCommand) Description() string { return "Auto-play through all versions" }
func (c *PlayCommand) Usage() string       { return "play" }

func (c *PlayCommand) Execute(ctx context.Context, r *REPL, _ []string) error {
	frames := make(chan moodboard.View, 64)
	unsubscribe := r.board.Subscribe(func(v moodboard.View) {
		select {
		case frames <- v:
		default:
		}
	})
	defer unsubscribe()

	if !r.board.ToggleAutoPlay() {
		if r.board.History().Len() == 0 {
			return errors.New("no versions to play")
		}
		fmt.Fprintln(r.out, "Auto-play stopped")
		return nil
	}
	done := r.board.AutoPlayDone()

	last := ""
	show := func(v moodboard.View) {
		if !v.AutoPlay.Playing || v.SelectedID == last || v.Image == nil {
			return
		}
		last = v.SelectedID
		caption := fmt.Sprintf("[%d/%d] %s", v.AutoPlay.Current, v.AutoPlay.Total, describeImage(*v.Image))
		fmt.Fprintln(r.out, caption)
		r.showImage(ctx, *v.Image, "")
	}

	for {
		select {
		case v := <-frames:
			show(v)
		case <-done:
			for {
				select {
				case v := <-frames:
					show(v)
				default:
					fmt.Fprintln(r.out, "Auto-play finished")
					return nil
				}
			}
		case <-ctx.Done():
			if r.board.AutoPlaying() {
				r.board.ToggleAutoPlay()
			}
			return ctx.Err()
		}
	}
}

// ReasoningCommand prints the reasoning trace or toggles requesting it
type ReasoningCommand struct{}

func (c *ReasoningCommand) Name() string        { return "reasoning" }
func (c *ReasoningCommand) Aliases() []string   { return []string{"why"} }
func (c *ReasoningCommand) Description() string { return "Show the model's reasoning, or turn it on/off" }
func (c *ReasoningCommand) Usage() string       { return "reasoning [on|off]" }

func (c *ReasoningCommand) Execute(_ context.Context, r *REPL, args []string) error {
	if len(args) > 0 {
		switch strings.ToLower(args[0]) {
		case "on":
			r.board.SetIncludeReasoning(true)
		case "off":
			r.board.SetIncludeReasoning(false)
		default:
			return fmt.Errorf("usage: %s", c.Usage())
		}
		fmt.Fprintf(r.out, "Reasoning %s\n", strings.ToLower(args[0]))
		return nil
	}

	v := r.board.Snapshot()
	switch {
	case len(v.Sections) > 0:
		for _, s := range v.Sections {
			fmt.Fprintf(r.out, "## %s\n", s.Title)
			if s.Content != "" {
				fmt.Fprintln(r.out, s.Content)
			}
			fmt.Fprintln(r.out)
		}
	case v.Reasoning != "":
		fmt.Fprintln(r.out, v.Reasoning)
	default:
		fmt.Fprintln(r.out, "No reasoning for the current image")
	}
	return nil
}

// ShowCommand displays the current image
type ShowCommand struct{}

func (c *ShowCommand) Name() string        { return "show" }
func (c *ShowCommand) Aliases() []string   { return []string{"display"} }
func (c *ShowCommand) Description() string { return "Display the current image" }
func (c *ShowCommand) Usage() string       { return "show" }

func (c *ShowCommand) Execute(ctx context.Context, r *REPL, _ []string) error {
	v := r.board.Snapshot()
	if v.Image == nil {
		return errors.New("no current image to display")
	}
	if r.displayer == nil {
		fmt.Fprintf(r.out, "Image: %s (inline display not supported by this terminal)\n", describeImage(*v.Image))
		return nil
	}
	return r.displayer.Display(ctx, *v.Image, "")
}

// SaveCommand downloads the current image to a file
type SaveCommand struct{}

func (c *SaveCommand) Name() string        { return "save" }
func (c *SaveCommand) Aliases() []string   { return []string{"w"} }
func (c *SaveCommand) Description() string { return "Save the current image to a file" }
func (c *SaveCommand) Usage() string       { return "save [filename]" }

func (c *SaveCommand) Execute(ctx context.Context, r *REPL, args []string) error {
	v := r.board.Snapshot()
	if v.Image == nil {
		return errors.New("no current image to save")
	}
	if r.saver == nil {
		return errors.New("saving is not configured")
	}

	dest := image.DefaultPath(*v.Image, time.Now())
	if len(args) > 0 {
		dest = args[0]
	}
	if err := r.saver.Save(ctx, *v.Image, dest); err != nil {
		return err
	}

	fmt.Fprintf(r.out, "Saved: %s\n", dest)
	return nil
}

// ModelCommand gets or sets the model
type ModelCommand struct{}

func (c *ModelCommand) Name() string        { return "model" }
func (c *ModelCommand) Aliases() []string   { return []string{"m"} }
func (c *ModelCommand) Description() string { return "Get or set the current model" }
func (c *ModelCommand) Usage() string       { return "model [name]" }

func (c *ModelCommand) Execute(_ context.Context, r *REPL, args []string) error {
	registry := r.board.Registry()
	if len(args) == 0 {
		current := r.board.Model()
		fmt.Fprintf(r.out, "Current model: %s\n", current)
		fmt.Fprintln(r.out, "\nAvailable models:")
		for _, name := range registry.List() {
			cap, _ := registry.Get(name)
			marker := "  "
			if name == current {
				marker = "* "
			}
			var tags []string
			if cap.SupportsEdit {
				tags = append(tags, "edit")
			}
			if cap.SupportsThought {
				tags = append(tags, "reasoning")
			}
			fmt.Fprintf(r.out, "%s%s (%s) [%s]\n", marker, name, cap.DisplayName, strings.Join(tags, ", "))
		}
		return nil
	}

	if err := r.board.SetModel(args[0]); err != nil {
		return err
	}
	fmt.Fprintf(r.out, "Model set to: %s\n", args[0])
	return nil
}

// StatusCommand summarizes the board
type StatusCommand struct{}

func (c *StatusCommand) Name() string        { return "status" }
func (c *StatusCommand) Aliases() []string   { return []string{"st"} }
func (c *StatusCommand) Description() string { return "Show mode, image, region and pending input" }
func (c *StatusCommand) Usage() string       { return "status" }

func (c *StatusCommand) Execute(_ context.Context, r *REPL, _ []string) error {
	v := r.board.Snapshot()
	fmt.Fprintln(r.out, v.Summary())
	if v.Hint != "" {
		fmt.Fprintln(r.out, v.Hint)
	}
	if v.RegionText != "" {
		fmt.Fprintln(r.out, v.RegionText)
	}
	if v.Input != "" {
		fmt.Fprintf(r.out, "Pending: %q\n", truncate(v.Input, 60))
	}
	if v.Error != "" {
		fmt.Fprintf(r.out, "Last error: %s\n", v.Error)
	}
	return nil
}

// HelpCommand shows available commands
type HelpCommand struct{}

func (c *HelpCommand) Name() string        { return "help" }
func (c *HelpCommand) Aliases() []string   { return []string{"?"} }
func (c *HelpCommand) Description() string { return "Show available commands" }
func (c *HelpCommand) Usage() string       { return "help" }

func (c *HelpCommand) Execute(_ context.Context, r *REPL, _ []string) error {
	fmt.Fprintln(r.out, "Available commands:")
	fmt.Fprintln(r.out)

	for _, cmd := range allCommands() {
		aliases := ""
		if len(cmd.Aliases()) > 0 {
			aliases = fmt.Sprintf(" (%s)", strings.Join(cmd.Aliases(), ", "))
		}
		fmt.Fprintf(r.out, "  %-20s%s\n", cmd.Name()+aliases, cmd.Description())
		fmt.Fprintf(r.out, "                       Usage: %s\n", cmd.Usage())
	}

	fmt.Fprintln(r.out)
	fmt.Fprintln(r.out, "Any other line becomes pending input. Start a line with a quote to")
	fmt.Fprintln(r.out, "enter text that begins with a command word.")
	return nil
}

// QuitCommand exits the REPL
type QuitCommand struct{}

func (c *QuitCommand) Name() string        { return "quit" }
func (c *QuitCommand) Aliases() []string   { return []string{"exit", "q"} }
func (c *QuitCommand) Description() string { return "Exit interactive mode" }
func (c *QuitCommand) Usage() string       { return "quit" }

func (c *QuitCommand) Execute(_ context.Context, r *REPL, _ []string) error {
	fmt.Fprintln(r.out, "Goodbye!")
	r.Stop()
	return nil
}

func (r *REPL) showImage(ctx context.Context, ref models.ImageRef, caption string) {
	if r.displayer == nil {
		return
	}
	if err := r.displayer.Display(ctx, ref, caption); err != nil {
		fmt.Fprintf(r.err, "Warning: failed to display: %v\n", err)
	}
}

func describeImage(ref models.ImageRef) string {
	if ref.URL != "" {
		return ref.URL
	}
	return ref.Path
}

func floats(args []string, n int) ([]float64, error) {
	if len(args) != n {
		return nil, fmt.Errorf("expected %d numbers, got %d", n, len(args))
	}
	out := make([]float64, n)
	for i, a := range args {
		f, err := strconv.ParseFloat(strings.TrimSuffix(a, ","), 64)
		if err != nil {
			return nil, fmt.Errorf("%q is not a number", a)
		}
		out[i] = f
	}
	return out, nil
}
