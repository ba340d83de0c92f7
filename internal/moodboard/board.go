// Package moodboard coordinates prompt submission, the region selection, and
// the version history for a single user.
package moodboard

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/manash/moodboard/internal/history"
	"github.com/manash/moodboard/internal/metrics"
	"github.com/manash/moodboard/internal/provider"
	"github.com/manash/moodboard/pkg/models"
)

type Mode string

const (
	ModeGenerate Mode = "generate"
	ModeEdit     Mode = "edit"
)

const (
	msgEmptySubject = "Please enter a subject description"
	msgEmptyEdit    = "Please enter an edit request"
	msgNoImage      = "Please generate an image first"
)

type Options struct {
	Registry         *models.ModelRegistry
	Model            string
	IncludeReasoning bool
	AutoPlayInterval time.Duration
	MacShortcuts     bool
	Logger           *logrus.Logger
}

// Board is safe for concurrent use. At most one backend request is in flight;
// a second Submit while loading fails with models.ErrBusy.
type Board struct {
	provider     provider.Provider
	registry     *models.ModelRegistry
	history      *history.Store
	autoplay     *history.AutoPlay
	macShortcuts bool
	log          *logrus.Entry

	ctx    context.Context
	cancel context.CancelFunc

	mu               sync.Mutex
	current          *models.ImageRef
	viewMode         bool
	region           *models.Region
	reasoning        string
	input            string
	lastErr          string
	loading          bool
	model            string
	includeReasoning bool
	historyOpen      bool

	obsMu     sync.Mutex
	observers map[int]func(View)
	nextObs   int
}

func New(p provider.Provider, opts Options) (*Board, error) {
	registry := opts.Registry
	if registry == nil {
		registry = models.DefaultRegistry()
	}
	model := opts.Model
	if model == "" {
		model = registry.Default()
	}
	if err := registry.Validate(model); err != nil {
		return nil, err
	}
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}

	ctx, cancel := context.WithCancel(context.Background())
	b := &Board{
		provider:         p,
		registry:         registry,
		history:          history.NewStore(),
		macShortcuts:     opts.MacShortcuts,
		log:              log.WithField("component", "moodboard"),
		ctx:              ctx,
		cancel:           cancel,
		model:            model,
		includeReasoning: opts.IncludeReasoning,
		observers:        make(map[int]func(View)),
	}
	b.autoplay = history.NewAutoPlay(opts.AutoPlayInterval, b.autoSelect)
	b.autoplay.OnFinish(b.notify)
	return b, nil
}

func (b *Board) History() *history.Store {
	return b.history
}

func (b *Board) Registry() *models.ModelRegistry {
	return b.registry
}

func (b *Board) modeLocked() Mode {
	if b.current != nil {
		return ModeEdit
	}
	return ModeGenerate
}

// Submit sends text as a generate or edit request depending on the mode.
// On success the new image becomes the Active entry and is returned.
func (b *Board) Submit(ctx context.Context, text string) (*history.Entry, error) {
	b.mu.Lock()
	if err := b.checkSubmitLocked(text); err != nil {
		if !errors.Is(err, models.ErrBusy) {
			b.lastErr = err.Error()
		}
		mode := b.modeLocked()
		b.mu.Unlock()
		metrics.Submissions.WithLabelValues(string(mode), "rejected").Inc()
		b.notify()
		return nil, err
	}

	mode := b.modeLocked()
	b.input = text
	var target models.ImageRef
	if b.current != nil {
		target = *b.current
	}
	region := b.region.Clone()
	model := b.model
	includeReasoning := b.includeReasoning

	b.viewMode = false
	b.loading = true
	b.lastErr = ""
	b.reasoning = ""
	b.mu.Unlock()
	b.notify()

	log := b.log.WithFields(logrus.Fields{"mode": mode, "model": model})
	log.Info("submitting")

	var (
		res *models.Result
		err error
	)
	if mode == ModeEdit {
		req := models.NewEditRequest(target.Basename(), text, model)
		req.Region = region
		req.IncludeReasoning = includeReasoning
		res, err = b.provider.Edit(ctx, req)
	} else {
		req := models.NewGenerateRequest(text, model)
		req.IncludeReasoning = includeReasoning
		region = nil
		res, err = b.provider.Generate(ctx, req)
	}

	if err != nil {
		b.mu.Lock()
		b.loading = false
		b.lastErr = err.Error()
		b.mu.Unlock()
		metrics.Submissions.WithLabelValues(string(mode), "error").Inc()
		log.WithError(err).Warn("submit failed")
		b.notify()
		return nil, err
	}

	entry, err := b.record(mode, text, region, res)
	if err != nil {
		metrics.Submissions.WithLabelValues(string(mode), "error").Inc()
		b.notify()
		return nil, err
	}

	metrics.Submissions.WithLabelValues(string(mode), "ok").Inc()
	metrics.HistoryEntries.Set(float64(b.history.Len()))
	log.WithField("image", res.Image.Basename()).Info("submit succeeded")
	b.notify()
	return &entry, nil
}

// SubmitInput submits the pending input text.
func (b *Board) SubmitInput(ctx context.Context) (*history.Entry, error) {
	return b.Submit(ctx, b.Input())
}

func (b *Board) checkSubmitLocked(text string) error {
	if b.loading {
		return models.ErrBusy
	}
	if b.viewMode {
		return models.NewValidationError("", models.ErrViewMode)
	}
	if strings.TrimSpace(text) == "" {
		msg := msgEmptySubject
		if b.modeLocked() == ModeEdit {
			msg = msgEmptyEdit
		}
		return &models.ValidationError{Err: &userError{msg: msg, err: models.ErrEmptyPrompt}}
	}
	if b.modeLocked() == ModeEdit && b.current.Basename() == "" {
		return &models.ValidationError{Err: &userError{msg: msgNoImage, err: models.ErrNoImage}}
	}
	return nil
}

// record appends the result, promotes it to Active and selects it.
func (b *Board) record(mode Mode, prompt string, region *models.Region, res *models.Result) (history.Entry, error) {
	kind := models.KindGenerate
	if mode == ModeEdit {
		kind = models.KindEdit
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.loading = false

	if _, err := b.history.Append(res.Image, kind, prompt, res.Reasoning, region); err != nil {
		b.lastErr = err.Error()
		return history.Entry{}, err
	}
	active, err := b.history.PromoteActive(res.Image, res.Reasoning)
	if err != nil {
		b.lastErr = err.Error()
		return history.Entry{}, err
	}
	if _, err := b.history.Select(active.ID); err != nil {
		return history.Entry{}, err
	}
	b.applySelectionLocked(active)
	b.input = ""
	return active, nil
}

// SelectVersion shows a history entry. The Active entry re-enables editing;
// any other entry switches to read-only view mode. Manual selection always
// interrupts auto-play.
func (b *Board) SelectVersion(id string) (history.Entry, error) {
	b.mu.Lock()
	b.autoplay.Stop()
	e, err := b.history.Select(id)
	if err != nil {
		b.mu.Unlock()
		return history.Entry{}, err
	}
	b.applySelectionLocked(e)
	b.mu.Unlock()

	b.notify()
	return e, nil
}

// SelectActive re-selects the Active entry, leaving view mode.
func (b *Board) SelectActive() (history.Entry, error) {
	active, ok := b.history.Active()
	if !ok {
		return history.Entry{}, history.ErrEntryNotFound
	}
	return b.SelectVersion(active.ID)
}

func (b *Board) applySelectionLocked(e history.Entry) {
	img := e.Image
	b.current = &img
	b.reasoning = e.Reasoning
	if e.IsActive {
		b.viewMode = false
		b.region = nil
		return
	}
	b.viewMode = true
	b.region = e.Region.Clone()
}

func (b *Board) autoSelect(e history.Entry) {
	b.mu.Lock()
	if !b.autoplay.IsCurrent(e.ID) {
		b.mu.Unlock()
		return
	}
	if _, err := b.history.Select(e.ID); err != nil {
		b.mu.Unlock()
		return
	}
	b.applySelectionLocked(e)
	b.mu.Unlock()

	metrics.AutoPlaySelections.Inc()
	b.notify()
}

// SetRegion commits the region for the next edit; nil means the whole image.
func (b *Board) SetRegion(r *models.Region) error {
	b.mu.Lock()
	switch {
	case b.viewMode:
		b.mu.Unlock()
		return models.NewValidationError("region", models.ErrViewMode)
	case b.loading:
		b.mu.Unlock()
		return models.ErrBusy
	case b.current == nil:
		b.mu.Unlock()
		return models.NewValidationError("region", models.ErrNoImage)
	case r != nil && !r.Valid():
		b.mu.Unlock()
		return models.NewValidationError("region", models.ErrInvalidRegion)
	}
	b.region = r.Clone()
	b.mu.Unlock()

	b.notify()
	return nil
}

func (b *Board) Region() *models.Region {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.region.Clone()
}

// SetInput stores pending text without submitting it.
func (b *Board) SetInput(text string) error {
	b.mu.Lock()
	if b.viewMode {
		b.mu.Unlock()
		return models.NewValidationError("input", models.ErrViewMode)
	}
	if b.loading {
		b.mu.Unlock()
		return models.ErrBusy
	}
	b.input = text
	b.mu.Unlock()

	b.notify()
	return nil
}

func (b *Board) Input() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.input
}

func (b *Board) SetModel(name string) error {
	if err := b.registry.Validate(name); err != nil {
		return err
	}
	b.mu.Lock()
	b.model = name
	b.mu.Unlock()

	b.notify()
	return nil
}

func (b *Board) Model() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.model
}

func (b *Board) SetIncludeReasoning(on bool) {
	b.mu.Lock()
	b.includeReasoning = on
	b.mu.Unlock()

	b.notify()
}

// SetHistoryOpen shows or hides the history panel. Closing it stops auto-play;
// opening an already open panel changes nothing.
func (b *Board) SetHistoryOpen(open bool) {
	b.mu.Lock()
	if b.historyOpen == open {
		b.mu.Unlock()
		return
	}
	b.historyOpen = open
	if !open {
		b.autoplay.Stop()
	}
	b.mu.Unlock()

	b.notify()
}

func (b *Board) ToggleHistory() bool {
	b.mu.Lock()
	open := !b.historyOpen
	b.mu.Unlock()

	b.SetHistoryOpen(open)
	return open
}

// ToggleAutoPlay starts auto-play from the oldest version, or stops a running one.
// Starting opens the history panel. It reports whether auto-play is now running.
func (b *Board) ToggleAutoPlay() bool {
	b.mu.Lock()
	if b.autoplay.Playing() {
		b.autoplay.Stop()
		b.mu.Unlock()
		b.notify()
		return false
	}

	first, ok := b.autoplay.Start(b.history.Versions())
	if !ok {
		b.mu.Unlock()
		return false
	}
	b.historyOpen = true
	if _, err := b.history.Select(first.ID); err == nil {
		b.applySelectionLocked(first)
	}
	b.autoplay.Schedule(b.ctx)
	b.mu.Unlock()

	metrics.AutoPlaySelections.Inc()
	b.log.WithField("versions", b.history.Len()).Debug("auto-play started")
	b.notify()
	return true
}

func (b *Board) AutoPlaying() bool {
	return b.autoplay.Playing()
}

// AutoPlayDone is closed when the current auto-play goroutine exits.
func (b *Board) AutoPlayDone() <-chan struct{} {
	return b.autoplay.Done()
}

// Close stops auto-play; no state changes are made by it afterwards.
func (b *Board) Close() {
	b.autoplay.Stop()
	b.cancel()
}

// Subscribe registers fn to receive a View after every state change.
func (b *Board) Subscribe(fn func(View)) (unsubscribe func()) {
	b.obsMu.Lock()
	id := b.nextObs
	b.nextObs++
	b.observers[id] = fn
	b.obsMu.Unlock()

	return func() {
		b.obsMu.Lock()
		delete(b.observers, id)
		b.obsMu.Unlock()
	}
}

func (b *Board) notify() {
	b.obsMu.Lock()
	if len(b.observers) == 0 {
		b.obsMu.Unlock()
		return
	}
	fns := make([]func(View), 0, len(b.observers))
	for _, fn := range b.observers {
		fns = append(fns, fn)
	}
	b.obsMu.Unlock()

	v := b.Snapshot()
	for _, fn := range fns {
		fn(v)
	}
}

// userError shows msg to the user while matching the sentinel err.
type userError struct {
	msg string
	err error
}

func (e *userError) Error() string { return e.msg }
func (e *userError) Unwrap() error { return e.err }
