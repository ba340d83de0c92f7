package gradio

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"

	"github.com/manash/moodboard/pkg/models"
)

type imageKind int

const (
	imagePath imageKind = iota + 1
	imageURL
	imageObject
)

// imageValue is the first element of a response's data array. The backend
// returns a bare file path, a URL, or a file object depending on version.
type imageValue struct {
	kind imageKind
	url  string
	path string
}

func (v *imageValue) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		return errors.New("image is null")
	}

	switch b[0] {
	case '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		if s == "" {
			return errors.New("image is an empty string")
		}
		if strings.HasPrefix(s, "http") {
			v.kind, v.url = imageURL, s
		} else {
			v.kind, v.path = imagePath, s
		}
		return nil
	case '{':
		var obj struct {
			URL  *string `json:"url"`
			Path *string `json:"path"`
		}
		if err := json.Unmarshal(b, &obj); err != nil {
			return err
		}
		v.kind = imageObject
		if obj.URL != nil {
			v.url = *obj.URL
		}
		if obj.Path != nil {
			v.path = *obj.Path
		}
		return nil
	default:
		return errors.New("image is neither a string nor an object")
	}
}

func (v imageValue) resolve(fileURL func(string) string) models.ImageRef {
	switch v.kind {
	case imagePath:
		return models.ImageRef{URL: fileURL(v.path), Path: models.Basename(v.path)}
	case imageURL:
		return models.ImageRef{URL: v.url, Path: nameFromURL(v.url)}
	case imageObject:
		ref := models.ImageRef{URL: v.url}
		if v.path != "" {
			ref.Path = models.Basename(v.path)
			if ref.URL == "" {
				ref.URL = fileURL(v.path)
			}
		} else if v.url != "" {
			ref.Path = nameFromURL(v.url)
		}
		return ref
	}
	return models.ImageRef{}
}

func nameFromURL(u string) string {
	return models.ImageRef{URL: u}.Basename()
}
