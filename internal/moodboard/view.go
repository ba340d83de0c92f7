package moodboard

import (
	"fmt"

	"github.com/manash/moodboard/internal/history"
	"github.com/manash/moodboard/internal/reasoning"
	"github.com/manash/moodboard/pkg/models"
)

const (
	hintViewMode     = "View Mode: Select 'Active' entry to continue editing"
	hintRegion       = "Edit Mode: Region selected"
	hintNoRegion     = "Edit Mode: Click and drag to select region (optional)"
	hintGenerating   = "Generating Moodboard..."
	hintEditing      = "Editing Image..."
	placeholderView  = "View mode: Select 'Active' entry to continue editing"
	placeholderEdit  = "Describe what you want to change (optional: select a region on the image)"
	placeholderStart = "e.g., sustainable luxury dress collection"
	wholeImageNote   = "Optional: select a region on the image, or leave empty to edit the entire image"
)

type AutoPlayView struct {
	Playing bool `json:"playing"`
	Current int  `json:"current"`
	Total   int  `json:"total"`
}

// View is an immutable snapshot of the board for rendering.
type View struct {
	Image            *models.ImageRef    `json:"image"`
	Mode             Mode                `json:"mode"`
	ViewMode         bool                `json:"view_mode"`
	Region           *models.Region      `json:"region"`
	RegionText       string              `json:"region_text,omitempty"`
	Reasoning        string              `json:"reasoning,omitempty"`
	Sections         []reasoning.Section `json:"sections,omitempty"`
	Input            string              `json:"input"`
	Error            string              `json:"error,omitempty"`
	Loading          bool                `json:"loading"`
	Model            string              `json:"model"`
	IncludeReasoning bool                `json:"include_reasoning"`
	History          []history.Item      `json:"history"`
	HistoryOpen      bool                `json:"history_open"`
	HistoryCount     int                 `json:"history_count"`
	SelectedID       string              `json:"selected_id,omitempty"`
	AutoPlay         AutoPlayView        `json:"autoplay"`
	Hint             string              `json:"hint,omitempty"`
	Placeholder      string              `json:"placeholder"`
	Shortcut         string              `json:"shortcut"`
}

// InputEnabled reports whether text entry and region drawing are allowed.
func (v View) InputEnabled() bool {
	return !v.Loading && !v.ViewMode
}

func (b *Board) Snapshot() View {
	b.mu.Lock()
	defer b.mu.Unlock()

	v := View{
		Mode:             b.modeLocked(),
		ViewMode:         b.viewMode,
		Region:           b.region.Clone(),
		Reasoning:        b.reasoning,
		Sections:         reasoning.Sections(b.reasoning),
		Input:            b.input,
		Error:            b.lastErr,
		Loading:          b.loading,
		Model:            b.model,
		IncludeReasoning: b.includeReasoning,
		History:          b.history.Items(),
		HistoryOpen:      b.historyOpen,
		Shortcut:         shortcutLabel(b.macShortcuts),
	}
	if b.current != nil {
		img := *b.current
		v.Image = &img
	}
	v.HistoryCount = len(v.History)
	if sel, ok := b.history.Selected(); ok {
		v.SelectedID = sel.ID
	}
	if b.autoplay.Playing() {
		cur, total := b.autoplay.Progress()
		v.AutoPlay = AutoPlayView{Playing: true, Current: cur, Total: total}
	}
	switch {
	case v.Region != nil:
		v.RegionText = "Selected region: " + v.Region.String()
	case v.Mode == ModeEdit && !v.ViewMode:
		v.RegionText = wholeImageNote
	}
	v.Hint, v.Placeholder = hints(v)
	return v
}

func hints(v View) (hint, placeholder string) {
	switch {
	case v.Loading && v.Mode == ModeEdit:
		return hintEditing, placeholderEdit
	case v.Loading:
		return hintGenerating, placeholderStart
	case v.ViewMode:
		return hintViewMode, placeholderView
	case v.Mode == ModeEdit && v.Region != nil:
		return hintRegion, placeholderEdit
	case v.Mode == ModeEdit:
		return hintNoRegion, placeholderEdit
	default:
		return "", placeholderStart
	}
}

func shortcutLabel(mac bool) string {
	key := "Ctrl"
	if mac {
		key = "⌘"
	}
	return fmt.Sprintf("%s+Enter to submit", key)
}

// Summary is a one-line status for terminals.
func (v View) Summary() string {
	image := "none"
	if v.Image != nil {
		image = v.Image.Basename()
	}
	s := fmt.Sprintf("mode=%s image=%s model=%s versions=%d", v.Mode, image, v.Model, v.HistoryCount)
	if v.ViewMode {
		s += " (view only)"
	}
	if v.AutoPlay.Playing {
		s += fmt.Sprintf(" autoplay %d/%d", v.AutoPlay.Current, v.AutoPlay.Total)
	}
	return s
}
