// Package chunker splits extracted manual text into overlapping segments.
package chunker

import (
	"fmt"
	"strings"

	"ludolens/internal/models"

	"github.com/tmc/langchaingo/textsplitter"
)

const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

type Chunker struct {
	chunkSize int
	overlap   int
	splitter  textsplitter.TextSplitter
}

type Option func(*Chunker)

func WithChunkSize(size int) Option {
	return func(c *Chunker) {
		if size > 0 {
			c.chunkSize = size
		}
	}
}

func WithOverlap(overlap int) Option {
	return func(c *Chunker) {
		if overlap >= 0 {
			c.overlap = overlap
		}
	}
}

// New builds a chunker that prefers paragraph, then line, then word boundaries
// and measures size in runes.
func New(opts ...Option) *Chunker {
	c := &Chunker{chunkSize: DefaultChunkSize, overlap: DefaultChunkOverlap}
	for _, opt := range opts {
		opt(c)
	}
	if c.overlap >= c.chunkSize {
		c.overlap = c.chunkSize / 4
	}
	c.splitter = textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(c.chunkSize),
		textsplitter.WithChunkOverlap(c.overlap),
		textsplitter.WithSeparators([]string{"\n\n", "\n", " ", ""}),
	)
	return c
}

func (c *Chunker) ChunkSize() int { return c.chunkSize }
func (c *Chunker) Overlap() int   { return c.overlap }

// Split returns the chunks of text for manualID, indexed 0..n-1 in text order.
func (c *Chunker) Split(manualID, text string) ([]models.DocumentChunk, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	parts, err := c.splitter.SplitText(text)
	if err != nil {
		return nil, fmt.Errorf("split manual text: %w", err)
	}
	chunks := make([]models.DocumentChunk, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		idx := len(chunks)
		chunks = append(chunks, models.DocumentChunk{
			ID:      ChunkID(manualID, idx),
			Content: part,
			Metadata: models.ChunkMetadata{
				ManualID:   manualID,
				ChunkIndex: idx,
			},
		})
	}
	return chunks, nil
}

func ChunkID(manualID string, index int) string {
	return fmt.Sprintf("%s-chunk-%d", manualID, index)
}
