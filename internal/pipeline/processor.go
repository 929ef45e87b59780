// Package pipeline turns an uploaded manual into searchable embeddings:
// extract text, chunk it, index the chunks, then mark the manual processed.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"ludolens/internal/blob"
	"ludolens/internal/models"
	"ludolens/internal/pdftext"
	"ludolens/internal/util"
)

const maxFailReasonRunes = 500

// Step names reported through Progress.
const (
	StepExtract       = "extract_text"
	StepChunk         = "chunk_text"
	StepIndex         = "index_chunks"
	StepMarkProcessed = "mark_processed"
	StepDeleteBlob    = "delete_blob"
)

type ManualStore interface {
	MarkProcessed(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id, reason string) error
}

type BlobStore interface {
	Read(id string) ([]byte, error)
	Delete(id string) error
}

type Splitter interface {
	Split(manualID, text string) ([]models.DocumentChunk, error)
}

type ChunkIndexer interface {
	Index(ctx context.Context, manualID string, chunks []models.DocumentChunk) error
	RemoveByManual(ctx context.Context, manualID string) (bool, error)
}

type Result struct {
	Pages        int
	SkippedPages []int
	Chunks       int
}

// Processor runs the processing steps for one manual. Each step is exported
// so the durable workflow can run them as separate activities.
type Processor struct {
	manuals ManualStore
	blobs   BlobStore
	split   Splitter
	index   ChunkIndexer
	log     *slog.Logger
}

func NewProcessor(manuals ManualStore, blobs BlobStore, split Splitter, index ChunkIndexer, log *slog.Logger) *Processor {
	if log == nil {
		log = slog.Default()
	}
	return &Processor{
		manuals: manuals,
		blobs:   blobs,
		split:   split,
		index:   index,
		log:     log.With("component", "pipeline"),
	}
}

func (p *Processor) ExtractText(_ context.Context, manualID string) (pdftext.Result, error) {
	data, err := p.blobs.Read(manualID)
	if err != nil {
		return pdftext.Result{}, fmt.Errorf("read manual file: %w", err)
	}
	res, err := pdftext.Extract(data)
	if err != nil {
		return pdftext.Result{}, err
	}
	if len(res.SkippedPages) > 0 {
		p.log.Warn("skipped unreadable pages", "manual_id", manualID, "skipped", res.SkippedPages, "pages", res.Pages)
	}
	return res, nil
}

func (p *Processor) ChunkText(_ context.Context, manualID, text string) ([]models.DocumentChunk, error) {
	chunks, err := p.split.Split(manualID, text)
	if err != nil {
		return nil, fmt.Errorf("chunk text: %w", err)
	}
	if len(chunks) == 0 {
		return nil, util.ErrNoExtractableText
	}
	return chunks, nil
}

func (p *Processor) IndexChunks(ctx context.Context, manualID string, chunks []models.DocumentChunk) error {
	return p.index.Index(ctx, manualID, chunks)
}

// MarkProcessed flips the manual to processed. If the manual was deleted
// while it was being indexed, the embeddings written for it are removed and
// ErrManualNotFound is returned.
func (p *Processor) MarkProcessed(ctx context.Context, manualID string) error {
	err := p.manuals.MarkProcessed(ctx, manualID)
	if errors.Is(err, models.ErrManualNotFound) {
		p.log.Warn("manual deleted during processing, removing orphans", "manual_id", manualID)
		if _, rmErr := p.index.RemoveByManual(ctx, manualID); rmErr != nil {
			p.log.Error("remove orphan embeddings", "manual_id", manualID, "error", rmErr)
		}
		p.DeleteBlob(ctx, manualID)
	}
	return err
}

// DeleteBlob is best effort; a missing file is not an error.
func (p *Processor) DeleteBlob(_ context.Context, manualID string) {
	if err := p.blobs.Delete(manualID); err != nil && !errors.Is(err, blob.ErrNotFound) {
		p.log.Warn("delete manual file", "manual_id", manualID, "error", err)
	}
}

func (p *Processor) MarkFailed(ctx context.Context, manualID string, cause error) error {
	reason := FailReason(cause)
	if err := p.manuals.MarkFailed(ctx, manualID, reason); err != nil {
		return err
	}
	p.log.Error("manual processing failed", "manual_id", manualID, "reason", reason)
	return nil
}

// Run executes every step in order. onStep, when set, is called before each
// step starts. On failure the manual is marked failed and the cause returned.
func (p *Processor) Run(ctx context.Context, manualID string, onStep func(step string)) (Result, error) {
	if onStep == nil {
		onStep = func(string) {}
	}
	started := time.Now()
	var res Result

	fail := func(err error) (Result, error) {
		if !errors.Is(err, models.ErrManualNotFound) {
			if markErr := p.MarkFailed(ctx, manualID, err); markErr != nil {
				p.log.Error("mark manual failed", "manual_id", manualID, "error", markErr)
			}
		}
		return res, err
	}

	onStep(StepExtract)
	extracted, err := p.ExtractText(ctx, manualID)
	if err != nil {
		return fail(err)
	}
	res.Pages, res.SkippedPages = extracted.Pages, extracted.SkippedPages

	onStep(StepChunk)
	chunks, err := p.ChunkText(ctx, manualID, extracted.Text)
	if err != nil {
		return fail(err)
	}
	res.Chunks = len(chunks)

	onStep(StepIndex)
	if err := p.IndexChunks(ctx, manualID, chunks); err != nil {
		return fail(err)
	}

	onStep(StepMarkProcessed)
	if err := p.MarkProcessed(ctx, manualID); err != nil {
		return fail(err)
	}

	onStep(StepDeleteBlob)
	p.DeleteBlob(ctx, manualID)

	p.log.Info("manual processed",
		"manual_id", manualID,
		"pages", res.Pages,
		"chunks", res.Chunks,
		"duration_ms", time.Since(started).Milliseconds(),
	)
	return res, nil
}

// FailReason is the text stored with a failed manual.
func FailReason(err error) string {
	if err == nil {
		return ""
	}
	switch {
	case errors.Is(err, util.ErrNoExtractableText):
		return util.ErrNoExtractableText.Error()
	case errors.Is(err, util.ErrInvalidPDF):
		return util.ErrInvalidPDF.Error()
	}
	reason := []rune(util.SanitizeText(err.Error()))
	if len(reason) > maxFailReasonRunes {
		reason = reason[:maxFailReasonRunes]
	}
	return string(reason)
}
