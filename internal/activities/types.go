package activities

import "ludolens/internal/models"

type ManualInput struct {
	ManualID string `json:"manual_id"`
}

type ExtractTextOutput struct {
	Text         string `json:"text"`
	Pages        int    `json:"pages"`
	SkippedPages []int  `json:"skipped_pages,omitempty"`
}

type ChunkTextInput struct {
	ManualID string `json:"manual_id"`
	Text     string `json:"text"`
}

type ChunkTextOutput struct {
	Chunks []models.DocumentChunk `json:"chunks"`
}

type IndexChunksInput struct {
	ManualID string                 `json:"manual_id"`
	Chunks   []models.DocumentChunk `json:"chunks"`
}

type MarkFailedInput struct {
	ManualID string `json:"manual_id"`
	Reason   string `json:"reason"`
}
