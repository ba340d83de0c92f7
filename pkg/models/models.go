package models

import (
	"errors"
	"fmt"
	"math"
	"path"
	"slices"
	"strings"
)

var (
	ErrEmptyPrompt    = errors.New("prompt cannot be empty")
	ErrNoImage        = errors.New("no current image to edit")
	ErrInvalidRegion  = errors.New("region must satisfy x1 < x2 and y1 < y2")
	ErrViewMode       = errors.New("viewing a past version: select the Active entry to continue editing")
	ErrBusy           = errors.New("a request is already in progress")
	ErrUnknownModel   = errors.New("unknown model")
	ErrEditNotAllowed = errors.New("image editing not supported by model")
)

// ValidationError blocks a submission locally; it never reaches the network.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("invalid %s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func NewValidationError(field string, err error) *ValidationError {
	return &ValidationError{Field: field, Err: err}
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// ImageRef is the canonical reference to a generated or edited image.
type ImageRef struct {
	URL  string `json:"url,omitempty"`
	Path string `json:"path,omitempty"`
}

func (r ImageRef) IsZero() bool {
	return r.URL == "" && r.Path == ""
}

// Basename returns the file name the backend serves the image under.
func (r ImageRef) Basename() string {
	if r.Path != "" {
		return Basename(r.Path)
	}
	if r.URL == "" {
		return ""
	}
	name := r.URL[strings.LastIndex(r.URL, "/")+1:]
	return name[strings.LastIndex(name, "=")+1:]
}

// Basename strips both slash and backslash directory components.
func Basename(p string) string {
	p = p[strings.LastIndex(p, "/")+1:]
	return p[strings.LastIndex(p, `\`)+1:]
}

// Ext returns the lower-cased extension of the image file name, without the dot.
func (r ImageRef) Ext() string {
	return strings.TrimPrefix(strings.ToLower(path.Ext(r.Basename())), ".")
}

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Region is a rectangle in original-image pixel coordinates.
type Region struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

// NewRegion returns the rectangle spanned by p and q regardless of drag direction.
func NewRegion(p, q Point) Region {
	return Region{
		X1: math.Min(p.X, q.X),
		Y1: math.Min(p.Y, q.Y),
		X2: math.Max(p.X, q.X),
		Y2: math.Max(p.Y, q.Y),
	}
}

func (r Region) Valid() bool {
	return r.X1 < r.X2 && r.Y1 < r.Y2
}

func (r Region) Width() float64 {
	return r.X2 - r.X1
}

func (r Region) Height() float64 {
	return r.Y2 - r.Y1
}

func (r Region) String() string {
	return fmt.Sprintf("(%d, %d) to (%d, %d)",
		int(math.Round(r.X1)), int(math.Round(r.Y1)),
		int(math.Round(r.X2)), int(math.Round(r.Y2)))
}

// Clone returns a detached copy so stored snapshots never alias caller state.
func (r *Region) Clone() *Region {
	if r == nil {
		return nil
	}
	c := *r
	return &c
}

// ParseRegion parses "x1,y1,x2,y2" into a normalized region.
func ParseRegion(s string) (*Region, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return nil, fmt.Errorf("%w: expected x1,y1,x2,y2", ErrInvalidRegion)
	}
	var v [4]float64
	for i, p := range parts {
		if _, err := fmt.Sscanf(strings.TrimSpace(p), "%g", &v[i]); err != nil {
			return nil, fmt.Errorf("%w: %q is not a number", ErrInvalidRegion, p)
		}
	}
	r := NewRegion(Point{X: v[0], Y: v[1]}, Point{X: v[2], Y: v[3]})
	if !r.Valid() {
		return nil, ErrInvalidRegion
	}
	return &r, nil
}

type Kind string

const (
	KindGenerate Kind = "generate"
	KindEdit     Kind = "edit"
	KindActive   Kind = "active"
)

func (k Kind) Label() string {
	switch k {
	case KindGenerate:
		return "Generated"
	case KindEdit:
		return "Edited"
	case KindActive:
		return "Active"
	default:
		return string(k)
	}
}

type GenerateRequest struct {
	Prompt           string
	Model            string
	Template         string
	IncludeReasoning bool
}

func NewGenerateRequest(prompt, model string) *GenerateRequest {
	return &GenerateRequest{
		Prompt:           prompt,
		Model:            model,
		IncludeReasoning: true,
	}
}

func (r *GenerateRequest) Validate() error {
	if strings.TrimSpace(r.Prompt) == "" {
		return NewValidationError("prompt", ErrEmptyPrompt)
	}
	return nil
}

type EditRequest struct {
	ImagePath        string
	Region           *Region
	Prompt           string
	Model            string
	Template         string
	IncludeReasoning bool
}

func NewEditRequest(imagePath, prompt, model string) *EditRequest {
	return &EditRequest{
		ImagePath:        imagePath,
		Prompt:           prompt,
		Model:            model,
		IncludeReasoning: true,
	}
}

func (r *EditRequest) Validate() error {
	if r.ImagePath == "" {
		return NewValidationError("image", ErrNoImage)
	}
	if strings.TrimSpace(r.Prompt) == "" {
		return NewValidationError("prompt", ErrEmptyPrompt)
	}
	if r.Region != nil && !r.Region.Valid() {
		return NewValidationError("region", ErrInvalidRegion)
	}
	return nil
}

// Result is a normalized backend response.
type Result struct {
	Image     ImageRef
	Reasoning string
}

type ModelCapabilities struct {
	Name            string
	DisplayName     string
	SupportsEdit    bool
	SupportsThought bool
}

type ModelRegistry struct {
	models       map[string]*ModelCapabilities
	defaultModel string
}

func NewModelRegistry() *ModelRegistry {
	return &ModelRegistry{
		models: make(map[string]*ModelCapabilities),
	}
}

func (r *ModelRegistry) Register(cap *ModelCapabilities) {
	if len(r.models) == 0 {
		r.defaultModel = cap.Name
	}
	r.models[cap.Name] = cap
}

func (r *ModelRegistry) Get(name string) (*ModelCapabilities, bool) {
	cap, ok := r.models[name]
	return cap, ok
}

// Default is the first registered model.
func (r *ModelRegistry) Default() string {
	return r.defaultModel
}

func (r *ModelRegistry) List() []string {
	names := make([]string, 0, len(r.models))
	for name := range r.models {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func (r *ModelRegistry) Validate(name string) error {
	if _, ok := r.models[name]; !ok {
		return fmt.Errorf("%w %q: available models: %v", ErrUnknownModel, name, r.List())
	}
	return nil
}

const (
	ModelGemini3Pro    = "gemini-3-pro-image-preview"
	ModelGemini25Flash = "gemini-2.5-flash-image"
)

func DefaultRegistry() *ModelRegistry {
	r := NewModelRegistry()

	r.Register(&ModelCapabilities{
		Name:            ModelGemini3Pro,
		DisplayName:     "Gemini 3 Pro",
		SupportsEdit:    true,
		SupportsThought: true,
	})

	r.Register(&ModelCapabilities{
		Name:         ModelGemini25Flash,
		DisplayName:  "Gemini 2.5 Flash",
		SupportsEdit: true,
	})

	return r
}
