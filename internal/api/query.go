package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"ludolens/internal/models"
	"ludolens/internal/providers"
	"ludolens/internal/util"
)

const (
	sourceSnippetRunes = 200
	imageAnalysisNote  = "Visual analysis included in the answer."
)

type sourceDTO struct {
	Content  string `json:"content"`
	GameName string `json:"gameName"`
}

type textQueryRequest struct {
	ManualID string `json:"manualId"`
	Question string `json:"question"`
}

type queryResponse struct {
	Answer        string      `json:"answer"`
	Sources       []sourceDTO `json:"sources"`
	ImageAnalysis string      `json:"imageAnalysis,omitempty"`
}

func toSources(results []models.SearchResult, gameName string) []sourceDTO {
	out := make([]sourceDTO, 0, len(results))
	for _, r := range results {
		out = append(out, sourceDTO{Content: util.Snippet(r.Content, sourceSnippetRunes), GameName: gameName})
	}
	return out
}

// queryableManual loads a manual and checks that it can answer questions.
func (s *Server) queryableManual(ctx context.Context, id string) (models.Manual, error) {
	m, err := s.manuals.Get(ctx, id)
	if err != nil {
		return models.Manual{}, err
	}
	switch m.Status {
	case models.StatusPending:
		return models.Manual{}, errStillProcessing
	case models.StatusFailed:
		return models.Manual{}, errProcessingFailed
	}
	indexed, err := s.index.IsIndexed(ctx, id)
	if err != nil {
		return models.Manual{}, fmt.Errorf("check manual index: %w", err)
	}
	if !indexed {
		return models.Manual{}, errNotIndexed
	}
	return m, nil
}

func (s *Server) handleQueryImage(c *gin.Context) {
	manualID := strings.TrimSpace(c.PostForm("manualId"))
	fh, err := c.FormFile("image")
	if err != nil {
		fail(c, formError(err, errImageRequired))
		return
	}
	if manualID == "" {
		fail(c, errManualIDRequired)
		return
	}
	if fh.Size > s.opts.MaxUploadBytes {
		fail(c, errTooLarge)
		return
	}
	data, err := readFormFile(fh, s.opts.MaxUploadBytes)
	if err != nil {
		fail(c, err)
		return
	}
	mimeType := imageType(fh.Header.Get("Content-Type"), data)
	if mimeType == "" {
		fail(c, errImageType)
		return
	}

	ctx := c.Request.Context()
	m, err := s.queryableManual(ctx, manualID)
	if err != nil {
		fail(c, err)
		return
	}
	ans, err := s.assistant.AnswerWithImage(ctx, manualID, providers.Image{MIMEType: mimeType, Data: data}, c.PostForm("question"))
	if err != nil {
		s.log.Error("image query", "manual_id", manualID, "error", err)
		fail(c, err)
		return
	}
	writeData(c, http.StatusOK, queryResponse{
		Answer:        ans.Text,
		Sources:       toSources(ans.Sources, m.GameName),
		ImageAnalysis: imageAnalysisNote,
	})
}

// bindTextQuery validates a JSON text query and resolves its manual. It
// writes the error response itself and reports whether to continue.
func (s *Server) bindTextQuery(c *gin.Context) (textQueryRequest, models.Manual, bool) {
	var req textQueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, errMalformedJSON)
		return req, models.Manual{}, false
	}
	req.ManualID = strings.TrimSpace(req.ManualID)
	req.Question = strings.TrimSpace(req.Question)
	switch {
	case req.ManualID == "":
		fail(c, errManualIDRequired)
		return req, models.Manual{}, false
	case req.Question == "":
		fail(c, errQuestionRequired)
		return req, models.Manual{}, false
	}
	m, err := s.queryableManual(c.Request.Context(), req.ManualID)
	if err != nil {
		fail(c, err)
		return req, models.Manual{}, false
	}
	return req, m, true
}

func (s *Server) handleQueryText(c *gin.Context) {
	req, m, ok := s.bindTextQuery(c)
	if !ok {
		return
	}
	ans, err := s.assistant.AnswerWithText(c.Request.Context(), req.ManualID, req.Question)
	if err != nil {
		s.log.Error("text query", "manual_id", req.ManualID, "error", err)
		fail(c, err)
		return
	}
	writeData(c, http.StatusOK, queryResponse{
		Answer:  ans.Text,
		Sources: toSources(ans.Sources, m.GameName),
	})
}

// handleQueryTextStream answers over server-sent events: every source first,
// then one token event per fragment, then done or error.
func (s *Server) handleQueryTextStream(c *gin.Context) {
	req, m, ok := s.bindTextQuery(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	stream, err := s.assistant.StreamText(ctx, req.ManualID, req.Question)
	if err != nil {
		s.log.Error("text stream query", "manual_id", req.ManualID, "error", err)
		fail(c, err)
		return
	}

	// gin replaces this with its own charset-qualified value on the first event.
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	for _, src := range toSources(stream.Sources, m.GameName) {
		c.SSEvent("source", src)
	}
	c.Writer.Flush()

	tokens := 0
	for frag, err := range stream.Fragments {
		if err != nil {
			s.log.Error("text stream interrupted", "manual_id", req.ManualID, "tokens", tokens, "error", err)
			apiErr := toAPIError(http.StatusInternalServerError, err)
			c.SSEvent("error", gin.H{"error": apiErr.Message, "code": apiErr.Code})
			c.Writer.Flush()
			return
		}
		if ctx.Err() != nil {
			s.log.Info("text stream client gone", "manual_id", req.ManualID, "tokens", tokens)
			return
		}
		c.SSEvent("token", gin.H{"text": frag})
		c.Writer.Flush()
		tokens++
	}
	c.SSEvent("done", gin.H{"provider": stream.Provider.Name, "model": stream.Provider.Model})
	c.Writer.Flush()
}

// imageType returns the image media type of an upload, or "" when it is not
// an image.
func imageType(contentType string, data []byte) string {
	mt := mediaType(contentType)
	if mt == "" || mt == "application/octet-stream" {
		mt = mediaType(http.DetectContentType(data))
	}
	if !strings.HasPrefix(mt, "image/") {
		return ""
	}
	return mt
}
