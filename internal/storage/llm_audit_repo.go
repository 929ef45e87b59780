package storage

import (
	"context"
	"fmt"
)

type LLMCallRecord struct {
	Operation    string
	ManualID     string
	ProviderName string
	Model        string
	RequestID    string
	Status       string
	ErrorType    string
	LatencyMS    int64
	SourceCount  int
}

// LLMAuditRepo keeps one row per generation call made while answering queries.
type LLMAuditRepo struct {
	q Querier
}

func NewLLMAuditRepo(q Querier) *LLMAuditRepo {
	return &LLMAuditRepo{q: q}
}

func (r *LLMAuditRepo) Insert(ctx context.Context, rec LLMCallRecord) error {
	_, err := r.q.Exec(ctx, `
INSERT INTO llm_calls(operation, manual_id, provider_name, model, request_id, status, error_type, latency_ms, source_count)
VALUES ($1, NULLIF($2,'')::uuid, $3, $4, NULLIF($5,''), $6, NULLIF($7,''), $8, $9)`,
		rec.Operation, rec.ManualID, rec.ProviderName, rec.Model, rec.RequestID, rec.Status, rec.ErrorType, rec.LatencyMS, rec.SourceCount)
	if err != nil {
		return fmt.Errorf("insert llm call: %w", err)
	}
	return nil
}
