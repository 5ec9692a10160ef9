// Package chunker splits documents into overlapping, size-bounded pieces for
// embedding.
//
// Splitting is recursive over a separator hierarchy: paragraphs first, then
// lines, sentences, clauses, words and finally single characters. Sizes are
// measured in characters (runes), not bytes.
package chunker

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/richinex/scribe/model"
)

// Defaults used by the ingestion pipeline.
const (
	DefaultSize    = 1000
	DefaultOverlap = 200
)

// DefaultSeparators is the split hierarchy, coarsest first.
var DefaultSeparators = []string{"\n\n", "\n", ". ", "! ", "? ", "; ", ", ", " ", ""}

// Piece is one chunk of a document. Offset is the character position of the
// piece within the cleaned document text.
type Piece struct {
	Index  int    `json:"index"`
	Text   string `json:"text"`
	Offset int    `json:"char_offset"`
}

// Chunker splits text with a recursive separator strategy.
type Chunker struct {
	size       int
	overlap    int
	separators []string
}

// New creates a chunker. Overlap must be smaller than size.
func New(size, overlap int) (*Chunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d: %w", size, model.ErrConfiguration)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("chunk overlap %d must be in [0, %d): %w", overlap, size, model.ErrConfiguration)
	}
	return &Chunker{size: size, overlap: overlap, separators: DefaultSeparators}, nil
}

// WithSeparators overrides the separator hierarchy.
func (c *Chunker) WithSeparators(seps []string) *Chunker {
	c.separators = seps
	return c
}

var (
	spaceRuns = regexp.MustCompile(` +`)
	blankRuns = regexp.MustCompile(`\n\s*\n`)
)

// Clean collapses repeated spaces, squeezes blank-line runs to one blank
// line and trims the ends.
func Clean(text string) string {
	text = spaceRuns.ReplaceAllString(text, " ")
	text = blankRuns.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// Split cleans text and returns its pieces in document order.
func (c *Chunker) Split(text string) []Piece {
	cleaned := Clean(text)
	if cleaned == "" {
		return nil
	}

	texts := c.split(cleaned, c.separators)
	pieces := make([]Piece, 0, len(texts))
	searchFrom := 0
	for _, t := range texts {
		pos := strings.Index(cleaned[searchFrom:], t)
		if pos < 0 {
			// Not reachable for substrings produced by split; keep the text anyway.
			pos = 0
		} else {
			pos += searchFrom
			searchFrom = pos + 1
		}
		pieces = append(pieces, Piece{
			Index:  len(pieces),
			Text:   t,
			Offset: utf8.RuneCountInString(cleaned[:pos]),
		})
	}
	return pieces
}

func (c *Chunker) split(text string, seps []string) []string {
	sep := ""
	var rest []string
	for i, s := range seps {
		if s == "" {
			break
		}
		if strings.Contains(text, s) {
			sep = s
			rest = seps[i+1:]
			break
		}
	}

	var out, fitting []string
	for _, part := range splitKeep(text, sep) {
		if runeLen(part) <= c.size {
			fitting = append(fitting, part)
			continue
		}
		if len(fitting) > 0 {
			out = append(out, c.merge(fitting)...)
			fitting = nil
		}
		if len(rest) == 0 {
			out = append(out, part)
		} else {
			out = append(out, c.split(part, rest)...)
		}
	}
	if len(fitting) > 0 {
		out = append(out, c.merge(fitting)...)
	}
	return out
}

// merge packs consecutive parts into chunks of at most size characters,
// carrying up to overlap characters of trailing parts into the next chunk.
func (c *Chunker) merge(parts []string) []string {
	var out, window []string
	total := 0

	emit := func() {
		if chunk := strings.TrimSpace(strings.Join(window, "")); chunk != "" {
			out = append(out, chunk)
		}
	}

	for _, p := range parts {
		n := runeLen(p)
		if total+n > c.size && len(window) > 0 {
			emit()
			for total > c.overlap || (total+n > c.size && total > 0) {
				total -= runeLen(window[0])
				window = window[1:]
			}
		}
		window = append(window, p)
		total += n
	}
	if len(window) > 0 {
		emit()
	}
	return out
}

// splitKeep splits after each separator so that joining the parts restores
// the input. An empty separator splits into single characters.
func splitKeep(text, sep string) []string {
	if sep == "" {
		parts := make([]string, 0, len(text))
		for _, r := range text {
			parts = append(parts, string(r))
		}
		return parts
	}
	parts := strings.SplitAfter(text, sep)
	if len(parts) > 0 && parts[len(parts)-1] == "" {
		parts = parts[:len(parts)-1]
	}
	return parts
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}

// Stats summarises chunk sizes.
type Stats struct {
	Chunks     int     `json:"total_chunks"`
	Characters int     `json:"total_characters"`
	Average    float64 `json:"avg_chunk_size"`
	Min        int     `json:"min_chunk_size"`
	Max        int     `json:"max_chunk_size"`
}

// ComputeStats returns size statistics for pieces.
func ComputeStats(pieces []Piece) Stats {
	if len(pieces) == 0 {
		return Stats{}
	}
	s := Stats{Chunks: len(pieces), Min: runeLen(pieces[0].Text)}
	for _, p := range pieces {
		n := runeLen(p.Text)
		s.Characters += n
		if n < s.Min {
			s.Min = n
		}
		if n > s.Max {
			s.Max = n
		}
	}
	s.Average = float64(s.Characters) / float64(s.Chunks)
	return s
}
