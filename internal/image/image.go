// Package image downloads and stores moodboard images served by the backend.
package image

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/manash/moodboard/internal/security"
	"github.com/manash/moodboard/pkg/models"
)

const maxImageBytes = 32 << 20

var (
	ErrNoImage  = errors.New("no image data available")
	ErrTooLarge = fmt.Errorf("image exceeds %d bytes", maxImageBytes)
	ErrNotImage = errors.New("downloaded content is not an image")
)

// Saver fetches images by reference. URLs are checked against the backend
// origin before any request is made.
type Saver struct {
	httpClient *http.Client
	baseURL    string
	log        *logrus.Logger
}

func NewSaver(baseURL string, log *logrus.Logger) *Saver {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Saver{
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		baseURL: strings.TrimRight(baseURL, "/"),
		log:     log,
	}
}

// Fetch returns the image bytes, downloading by URL or reading a local path.
func (s *Saver) Fetch(ctx context.Context, ref models.ImageRef) ([]byte, error) {
	switch {
	case ref.URL != "":
		if err := security.ValidateImageURL(ref.URL, s.baseURL); err != nil {
			return nil, fmt.Errorf("refusing to download %s: %w", ref.URL, err)
		}
		data, err := s.download(ctx, ref.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to download image: %w", err)
		}
		return data, nil
	case ref.Path != "":
		data, err := os.ReadFile(ref.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to read image: %w", err)
		}
		return data, nil
	default:
		return nil, ErrNoImage
	}
}

// Save writes the image to path, creating parent directories.
func (s *Saver) Save(ctx context.Context, ref models.ImageRef, path string) error {
	if err := security.ValidateSavePath(path); err != nil {
		return fmt.Errorf("invalid save path: %w", err)
	}

	data, err := s.Fetch(ctx, ref)
	if err != nil {
		return err
	}

	if err := s.ensureDir(path); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}

	s.log.WithFields(logrus.Fields{"path": path, "bytes": len(data)}).Debug("image saved")
	return nil
}

func (s *Saver) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download failed with status: %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return nil, err
	}
	if len(data) > maxImageBytes {
		return nil, ErrTooLarge
	}
	if !strings.HasPrefix(http.DetectContentType(data), "image/") {
		return nil, ErrNotImage
	}
	return data, nil
}

func (s *Saver) ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

// DefaultPath names a saved copy after its backend file, prefixed with a
// timestamp so repeated saves of successive versions do not collide.
func DefaultPath(ref models.ImageRef, t time.Time) string {
	return fmt.Sprintf("moodboard-%s-%s", t.Format("20060102-150405"), security.SaveName(ref.Basename()))
}
