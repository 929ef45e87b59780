package api

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"ludolens/internal/models"
)

const isoMillis = "2006-01-02T15:04:05.000Z"

type manualDTO struct {
	ID         string              `json:"id"`
	GameName   string              `json:"gameName"`
	FileName   string              `json:"fileName"`
	UploadDate string              `json:"uploadDate"`
	Indexed    bool                `json:"indexed"`
	Status     models.ManualStatus `json:"status"`
	FailReason string              `json:"failReason,omitempty"`
}

func toManualDTO(m models.Manual) manualDTO {
	return manualDTO{
		ID:         m.ID,
		GameName:   m.GameName,
		FileName:   m.FileName,
		UploadDate: m.UploadedAt.UTC().Format(isoMillis),
		Indexed:    m.Processed(),
		Status:     m.Status,
		FailReason: m.FailReason,
	}
}

type uploadResponse struct {
	ManualID string `json:"manualId"`
	GameName string `json:"gameName"`
	FileName string `json:"fileName"`
	Message  string `json:"message"`
}

func (s *Server) handleUpload(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		fail(c, formError(err, errFileRequired))
		return
	}
	gameName := strings.TrimSpace(c.PostForm("gameName"))
	if gameName == "" {
		fail(c, errGameNameRequired)
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
	if !looksLikePDF(fh.Header.Get("Content-Type"), data) {
		fail(c, errPDFOnly)
		return
	}

	m, err := s.manuals.Upload(c.Request.Context(), gameName, data, filepath.Base(fh.Filename))
	if err != nil {
		s.log.Error("upload manual", "game", gameName, "error", err)
		fail(c, err)
		return
	}
	msg := "Manual uploaded successfully. Processing has started."
	if m.Status == models.StatusFailed {
		msg = "Manual uploaded but processing could not be started."
	}
	writeData(c, http.StatusCreated, uploadResponse{
		ManualID: m.ID,
		GameName: m.GameName,
		FileName: m.FileName,
		Message:  msg,
	})
}

func (s *Server) handleListManuals(c *gin.Context) {
	list, err := s.manuals.List(c.Request.Context())
	if err != nil {
		s.log.Error("list manuals", "error", err)
		fail(c, err)
		return
	}
	out := make([]manualDTO, 0, len(list))
	for _, m := range list {
		out = append(out, toManualDTO(m))
	}
	writeData(c, http.StatusOK, out)
}

func (s *Server) handleGetManual(c *gin.Context) {
	m, err := s.manuals.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	writeData(c, http.StatusOK, toManualDTO(m))
}

func (s *Server) handleDeleteManual(c *gin.Context) {
	deleted, err := s.manuals.Delete(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.log.Error("delete manual", "manual_id", c.Param("id"), "error", err)
		fail(c, err)
		return
	}
	if !deleted {
		fail(c, models.ErrManualNotFound)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Manual deleted successfully."})
}

func (s *Server) handleJobProgress(c *gin.Context) {
	p, err := s.manuals.JobProgress(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	writeData(c, http.StatusOK, p)
}

// formError tells an oversized body apart from a missing form field.
func formError(err, missing error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
		return errTooLarge
	}
	if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
		return missing
	}
	return badRequest("Malformed multipart form.")
}

func readFormFile(fh *multipart.FileHeader, max int64) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open uploaded file: %w", err)
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, max+1))
	if err != nil {
		return nil, fmt.Errorf("read uploaded file: %w", err)
	}
	if int64(len(data)) > max {
		return nil, errTooLarge
	}
	return data, nil
}

func looksLikePDF(contentType string, data []byte) bool {
	if mediaType(contentType) == "application/pdf" {
		return true
	}
	return bytes.HasPrefix(data, []byte("%PDF-"))
}

func mediaType(contentType string) string {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(contentType))
	}
	return mt
}
