package display

import (
	"encoding/base64"
	"fmt"
	"io"
	"strings"
)

const (
	escapeStart = "\x1b_G"
	escapeEnd   = "\x1b\\"
	chunkSize   = 4096
)

// KittyEncoder writes PNG data using the kitty graphics protocol.
type KittyEncoder struct {
	out     io.Writer
	columns int
}

// NewKittyEncoder returns an encoder; columns > 0 scales the image to that many
// terminal cells wide.
func NewKittyEncoder(out io.Writer, columns int) *KittyEncoder {
	return &KittyEncoder{out: out, columns: columns}
}

func (e *KittyEncoder) Encode(data []byte) error {
	if len(data) == 0 {
		return nil
	}

	encoded := base64.StdEncoding.EncodeToString(data)
	chunks := splitIntoChunks(encoded, chunkSize)

	for i, chunk := range chunks {
		params := e.controlData(i == 0, i < len(chunks)-1)
		if _, err := fmt.Fprintf(e.out, "%s%s;%s%s", escapeStart, params, chunk, escapeEnd); err != nil {
			return err
		}
	}
	return nil
}

// Clear removes every image placed on screen.
func (e *KittyEncoder) Clear() error {
	_, err := fmt.Fprintf(e.out, "%sa=d,q=2%s", escapeStart, escapeEnd)
	return err
}

func (e *KittyEncoder) controlData(first, more bool) string {
	var keys []string
	if first {
		keys = append(keys, "a=T", "f=100", "q=2")
		if e.columns > 0 {
			keys = append(keys, fmt.Sprintf("c=%d", e.columns))
		}
	}
	switch {
	case more:
		keys = append(keys, "m=1")
	case !first:
		keys = append(keys, "m=0")
	}
	return strings.Join(keys, ",")
}

func splitIntoChunks(s string, size int) []string {
	chunks := make([]string, 0, len(s)/size+1)
	for len(s) > size {
		chunks = append(chunks, s[:size])
		s = s[size:]
	}
	if len(s) > 0 {
		chunks = append(chunks, s)
	}
	return chunks
}
