// Package segment splits page text into overlapping sentence windows sized
// for the embedding model's context.
package segment

import (
	"fmt"
	"strings"

	"github.com/neurosnap/sentences"
	"github.com/neurosnap/sentences/data"
)

// Defaults used by the vectorizer.
const (
	DefaultMaxWords = 150
	DefaultOverlap  = 2
)

// Segmenter owns a Punkt sentence tokenizer trained for French. One instance
// per process; Tokenize is safe for concurrent use.
type Segmenter struct {
	tok *sentences.DefaultSentenceTokenizer
}

// NewFrench loads the embedded French training data.
func NewFrench() (*Segmenter, error) {
	b, err := data.Asset("data/french.json")
	if err != nil {
		return nil, fmt.Errorf("loading french training data: %w", err)
	}

	training, err := sentences.LoadTraining(b)
	if err != nil {
		return nil, fmt.Errorf("parsing french training data: %w", err)
	}

	return &Segmenter{tok: sentences.NewSentenceTokenizer(training)}, nil
}

// Segment splits text into sentences and windows them with Build. Empty text
// yields no segments.
func (s *Segmenter) Segment(text string, maxWords, overlap int) []string {
	var sents []string
	for _, sent := range s.tok.Tokenize(text) {
		t := strings.TrimSpace(sent.Text)
		if t != "" {
			sents = append(sents, t)
		}
	}
	return Build(sents, maxWords, overlap)
}

// Build slides a word-bounded window over the sentences. When adding a
// sentence would push the accumulator past maxWords, the accumulator is
// emitted and the last overlap sentences carry over into the next window.
// Every sentence lands in at least one segment; consecutive segments share
// exactly overlap sentences unless the source fits in a single segment.
func Build(sents []string, maxWords, overlap int) []string {
	if overlap < 0 {
		overlap = 0
	}

	var segments []string
	var current []string
	words := 0

	for _, sent := range sents {
		w := len(strings.Fields(sent))

		if words+w > maxWords && len(current) > 0 {
			segments = append(segments, strings.Join(current, " "))

			keep := overlap
			if keep > len(current) {
				keep = len(current)
			}
			tail := current[len(current)-keep:]

			current = append([]string(nil), tail...)
			words = 0
			for _, s := range current {
				words += len(strings.Fields(s))
			}
		}

		current = append(current, sent)
		words += w
	}

	if len(current) > 0 {
		segments = append(segments, strings.Join(current, " "))
	}

	return segments
}
