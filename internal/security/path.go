package security

import (
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
)

var (
	ErrPathTraversal = errors.New("path traversal detected")
	ErrReservedName  = errors.New("reserved filename not allowed")
	ErrNotImageFile  = errors.New("file extension is not an image type")

	ImageExtensions = []string{".png", ".jpg", ".jpeg", ".webp", ".gif"}

	reservedNames = map[string]bool{
		"con": true, "prn": true, "aux": true, "nul": true,
		"com1": true, "com2": true, "com3": true, "com4": true,
		"com5": true, "com6": true, "com7": true, "com8": true, "com9": true,
		"lpt1": true, "lpt2": true, "lpt3": true, "lpt4": true,
		"lpt5": true, "lpt6": true, "lpt7": true, "lpt8": true, "lpt9": true,
	}
)

// ValidateSavePath checks where a downloaded moodboard may be written.
// Absolute paths are accepted; ".." segments are not.
func ValidateSavePath(path string) error {
	if path == "" {
		return fmt.Errorf("save path is empty")
	}
	for _, seg := range strings.FieldsFunc(path, isSeparator) {
		if seg == ".." {
			return ErrPathTraversal
		}
	}

	base := filepath.Base(path)
	if strings.HasPrefix(base, "-") {
		return fmt.Errorf("filename cannot start with hyphen")
	}
	ext := strings.ToLower(filepath.Ext(base))
	if reservedNames[strings.TrimSuffix(strings.ToLower(base), ext)] {
		return ErrReservedName
	}
	if !slices.Contains(ImageExtensions, ext) {
		return fmt.Errorf("%w: %q", ErrNotImageFile, base)
	}
	return nil
}

// SaveName derives a safe local file name from the name the backend served
// an image under. Names without an image extension get ".png".
func SaveName(served string) string {
	name := SanitizeFilename(filepath.Base(served))
	if !slices.Contains(ImageExtensions, strings.ToLower(filepath.Ext(name))) {
		name += ".png"
	}
	return name
}

func SanitizeFilename(name string) string {
	replacer := strings.NewReplacer(
		"/", "-", "\\", "-", ":", "-",
		"*", "", "?", "", "\"", "",
		"<", "", ">", "", "|", "", "\x00", "",
	)
	sanitized := replacer.Replace(name)
	sanitized = strings.TrimLeft(sanitized, ".-")
	sanitized = strings.TrimRight(sanitized, ". ")

	ext := filepath.Ext(sanitized)
	if stem := strings.TrimSuffix(sanitized, ext); reservedNames[strings.ToLower(stem)] {
		sanitized = stem + "_" + ext
	}
	if sanitized == "" {
		sanitized = "moodboard"
	}
	return sanitized
}

func isSeparator(r rune) bool {
	return r == '/' || r == '\\'
}
