package vector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/pgvector/pgvector-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"ludolens/internal/models"
	"ludolens/internal/providers"
	"ludolens/internal/storage"
)

var ErrIndexingFailed = errors.New("indexing failed")

const defaultBatchSize = 50

var tracer = otel.Tracer("ludolens/vector")

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

type Options struct {
	Dimension int
	BatchSize int
}

// Index stores chunk embeddings in game_manuals_vectors and answers
// similarity queries scoped to one manual.
type Index struct {
	q     storage.Querier
	embed providers.EmbeddingProvider
	opts  Options
}

func NewIndex(q storage.Querier, embed providers.EmbeddingProvider, opts Options) *Index {
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	return &Index{q: q, embed: embed, opts: opts}
}

// Index embeds every chunk and writes all records in one transaction. Chunk
// ids are stable, so indexing the same manual twice overwrites.
func (ix *Index) Index(ctx context.Context, manualID string, chunks []models.DocumentChunk) (err error) {
	if len(chunks) == 0 {
		return nil
	}
	ctx, span := tracer.Start(ctx, "vector.Index",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("manual.id", manualID),
			attribute.Int("index.chunks", len(chunks)),
		))
	defer func() { endSpan(span, err) }()

	vectors := make([][]float32, 0, len(chunks))
	for start := 0; start < len(chunks); start += ix.opts.BatchSize {
		end := min(start+ix.opts.BatchSize, len(chunks))
		inputs := make([]string, 0, end-start)
		for _, c := range chunks[start:end] {
			inputs = append(inputs, c.Content)
		}
		vecs, info, err := ix.embed.Embed(ctx, providers.EmbedRequest{
			Operation: "index_manual",
			Purpose:   providers.EmbedDocument,
			Inputs:    inputs,
			Dimension: ix.opts.Dimension,
		})
		if err != nil {
			return fmt.Errorf("%w: embed chunks %d-%d with %s: %v", ErrIndexingFailed, start, end-1, info.Name, err)
		}
		if len(vecs) != len(inputs) {
			return fmt.Errorf("%w: provider returned %d vectors for %d chunks", ErrIndexingFailed, len(vecs), len(inputs))
		}
		vectors = append(vectors, vecs...)
	}

	tx, err := ix.q.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx index manual: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	for i, c := range chunks {
		meta := c.Metadata
		if meta.ManualID == "" {
			meta.ManualID = manualID
		}
		rawMeta, err := json.Marshal(meta)
		if err != nil {
			return fmt.Errorf("encode chunk metadata %s: %w", c.ID, err)
		}
		_, err = tx.Exec(ctx, `
INSERT INTO game_manuals_vectors (id, content, embedding, metadata)
VALUES ($1, $2, $3::vector, $4::jsonb)
ON CONFLICT (id)
DO UPDATE SET content = EXCLUDED.content, embedding = EXCLUDED.embedding, metadata = EXCLUDED.metadata`,
			c.ID, c.Content, pgvector.NewVector(vectors[i]), string(rawMeta),
		)
		if err != nil {
			return fmt.Errorf("insert chunk %s: %w", c.ID, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit index tx: %w", err)
	}
	return nil
}

// Search returns the topK chunks of manualID closest to query by cosine
// distance.
func (ix *Index) Search(ctx context.Context, manualID, query string, topK int) (_ []models.SearchResult, err error) {
	if topK <= 0 {
		return []models.SearchResult{}, nil
	}
	ctx, span := tracer.Start(ctx, "vector.Search", trace.WithAttributes(
		attribute.String("manual.id", manualID),
		attribute.Int("search.top_k", topK),
	))
	defer func() { endSpan(span, err) }()

	vecs, _, err := ix.embed.Embed(ctx, providers.EmbedRequest{
		Operation: "search_manual",
		Purpose:   providers.EmbedQuery,
		Inputs:    []string{query},
		Dimension: ix.opts.Dimension,
	})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("embed query: expected 1 vector, got %d", len(vecs))
	}

	rows, err := ix.q.Query(ctx, `
SELECT id,
       content,
       metadata->>'manualId',
       COALESCE((metadata->>'chunkIndex')::int, 0),
       embedding <=> $2::vector AS distance
FROM game_manuals_vectors
WHERE metadata->>'manualId' = $1
ORDER BY embedding <=> $2::vector
LIMIT $3`, manualID, pgvector.NewVector(vecs[0]), topK)
	if err != nil {
		return nil, fmt.Errorf("query vector search: %w", err)
	}
	defer rows.Close()

	results := make([]models.SearchResult, 0, topK)
	for rows.Next() {
		var r models.SearchResult
		if err := rows.Scan(&r.ID, &r.Content, &r.Metadata.ManualID, &r.Metadata.ChunkIndex, &r.Distance); err != nil {
			return nil, fmt.Errorf("scan search result: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate search rows: %w", err)
	}
	return results, nil
}

// RemoveByManual deletes every record of manualID and reports whether any
// existed.
func (ix *Index) RemoveByManual(ctx context.Context, manualID string) (bool, error) {
	tag, err := ix.q.Exec(ctx, `DELETE FROM game_manuals_vectors WHERE metadata->>'manualId' = $1`, manualID)
	if err != nil {
		return false, fmt.Errorf("remove manual vectors: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (ix *Index) IsIndexed(ctx context.Context, manualID string) (bool, error) {
	var exists bool
	err := ix.q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM game_manuals_vectors WHERE metadata->>'manualId' = $1)`, manualID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check manual indexed: %w", err)
	}
	return exists, nil
}
