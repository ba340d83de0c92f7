// Package reasoning splits a model's free-text reasoning trace into titled sections.
package reasoning

import (
	"regexp"
	"strings"
	"unicode"
)

type Section struct {
	Title   string `json:"title"`
	Content string `json:"content,omitempty"`
}

var titleRe = regexp.MustCompile(`\*\*([^*\n][^*]*?)\*\*`)

const sectionBreak = "\n\n**"

// Sections extracts "**Title**" headed blocks. A title opens a section when
// a blank line follows it; the content runs to the next blank line followed by
// a bold title, or to the end. When no title is followed by a blank line,
// every bold span is returned as a title without content.
func Sections(text string) []Section {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	var sections []Section
	pos := 0
	for pos < len(text) {
		loc := titleRe.FindStringSubmatchIndex(text[pos:])
		if loc == nil {
			break
		}
		title := strings.TrimSpace(text[pos+loc[2] : pos+loc[3]])
		after := pos + loc[1]

		ws := leadingSpace(text[after:])
		if !strings.Contains(ws, "\n\n") || title == "" {
			pos = after
			continue
		}

		start := after + len(ws)
		end := len(text)
		if i := strings.Index(text[start:], sectionBreak); i >= 0 {
			end = start + i
		}
		sections = append(sections, Section{
			Title:   title,
			Content: strings.TrimSpace(text[start:end]),
		})
		pos = end
	}

	if len(sections) > 0 {
		return sections
	}

	for _, m := range titleRe.FindAllStringSubmatch(text, -1) {
		if title := strings.TrimSpace(m[1]); title != "" {
			sections = append(sections, Section{Title: title})
		}
	}
	return sections
}

// Summary renders the section titles as a single line.
func Summary(sections []Section) string {
	titles := make([]string, len(sections))
	for i, s := range sections {
		titles[i] = s.Title
	}
	return strings.Join(titles, " → ")
}

func leadingSpace(s string) string {
	i := strings.IndexFunc(s, func(r rune) bool { return !unicode.IsSpace(r) })
	if i < 0 {
		return s
	}
	return s[:i]
}
