package models

import (
	"errors"
	"time"
)

var ErrManualNotFound = errors.New("manual not found")

type ManualStatus string

const (
	StatusPending   ManualStatus = "pending"
	StatusProcessed ManualStatus = "processed"
	StatusFailed    ManualStatus = "failed"
)

type Manual struct {
	ID          string       `json:"id"`
	GameName    string       `json:"gameName"`
	FileName    string       `json:"fileName"`
	FilePath    string       `json:"filePath"`
	UploadedAt  time.Time    `json:"uploadedAt"`
	ProcessedAt *time.Time   `json:"processedAt,omitempty"`
	Status      ManualStatus `json:"status"`
	FailReason  string       `json:"failReason,omitempty"`
}

// Processed reports whether the manual is searchable.
func (m Manual) Processed() bool {
	return m.Status == StatusProcessed
}

const (
	MetaManualID   = "manualId"
	MetaChunkIndex = "chunkIndex"
)

type ChunkMetadata struct {
	ManualID   string `json:"manualId"`
	ChunkIndex int    `json:"chunkIndex"`
}

type DocumentChunk struct {
	ID       string        `json:"id"`
	Content  string        `json:"content"`
	Metadata ChunkMetadata `json:"metadata"`
}

type SearchResult struct {
	ID       string        `json:"id"`
	Content  string        `json:"content"`
	Metadata ChunkMetadata `json:"metadata"`
	Distance float64       `json:"distance"`
}
