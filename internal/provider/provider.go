package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/manash/moodboard/pkg/models"
)

var (
	ErrBaseURLRequired = errors.New("backend base URL is required")
	ErrGenerateFailed  = errors.New("image generation failed")
	ErrEditFailed      = errors.New("image edit failed")
)

// Provider is the remote image service. Calls are single-shot: no retries,
// no streaming.
type Provider interface {
	Name() string
	Generate(ctx context.Context, req *models.GenerateRequest) (*models.Result, error)
	Edit(ctx context.Context, req *models.EditRequest) (*models.Result, error)
	// FileURL builds a fetchable URL for a file path returned by the backend.
	FileURL(path string) string
}

type Config struct {
	BaseURL          string
	APIKey           string
	Timeout          time.Duration
	GenerateTemplate string
	EditTemplate     string
	Verbose          bool
	Logger           *logrus.Logger
}

// NetworkError means no response was received at all.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: network error: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// RemoteError carries a non-success status and the server-provided message.
type RemoteError struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("API Error: %d - %s", e.StatusCode, e.Message)
}

func (e *RemoteError) Unwrap() error {
	if e.Op == "edit" {
		return ErrEditFailed
	}
	return ErrGenerateFailed
}

// MalformedResponseError is a success status whose body matches no known shape.
type MalformedResponseError struct {
	Op     string
	Reason string
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("%s: malformed response: %s", e.Op, e.Reason)
}

func IsNetwork(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne)
}

func IsRemote(err error) bool {
	var re *RemoteError
	return errors.As(err, &re)
}

func IsMalformed(err error) bool {
	var me *MalformedResponseError
	return errors.As(err, &me)
}
