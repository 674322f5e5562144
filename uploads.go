package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/iemipdd12/reports_backend/config"
	"github.com/iemipdd12/reports_backend/models"
	"github.com/iemipdd12/reports_backend/utils"
	"github.com/sirupsen/logrus"
)

const (
	thumbnailWidth        = 200
	multipartOverheadSize = 1 << 20
)

var imageMimeTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
}

var attachmentMimeTypes = map[string]bool{
	"application/pdf":          true,
	"application/msword":       true,
	"application/vnd.ms-excel": true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": true,
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":       true,
	"text/plain": true,
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
}

type attachmentResponse struct {
	models.ReportAttachment
	URL          string `json:"url"`
	ThumbnailURL string `json:"thumbnail_url,omitempty"`
}

func (s *server) attachmentView(a models.ReportAttachment) attachmentResponse {
	view := attachmentResponse{
		ReportAttachment: a,
		URL:              s.store.AccessURL(a.FileKey),
	}
	if imageMimeTypes[a.ContentType] {
		view.ThumbnailURL = s.store.AccessURL(utils.ThumbnailObjectKey(a.FileKey))
	}
	return view
}

func (s *server) uploadAttachmentHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		logger := config.GetLogger()
		ctx := c.Request.Context()
		reportId, ok := idParam(c, "id")
		if !ok {
			return
		}
		if err := utils.ValidateResourceId[models.Report](ctx, config.GetDB(), reportId); err != nil {
			respondError(c, err)
			return
		}

		maxBytes := s.settings.Storage.MaxUploadBytes
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes+multipartOverheadSize)
		fileHeader, err := c.FormFile("file")
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				respondError(c, utils.ErrorFileTooLarge)
				return
			}
			c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
			return
		}
		if fileHeader.Size > maxBytes {
			respondError(c, utils.ErrorFileTooLarge)
			return
		}

		file, err := fileHeader.Open()
		if err != nil {
			respondError(c, err)
			return
		}
		defer file.Close()
		data, err := io.ReadAll(io.LimitReader(file, maxBytes+1))
		if err != nil {
			respondError(c, err)
			return
		}
		if int64(len(data)) > maxBytes {
			respondError(c, utils.ErrorFileTooLarge)
			return
		}

		contentType := normalizeContentType(fileHeader.Header.Get("Content-Type"))
		if contentType == "" || contentType == "application/octet-stream" {
			contentType = normalizeContentType(mimetype.Detect(data).String())
		}
		if !attachmentMimeTypes[contentType] {
			respondError(c, fmt.Errorf("%w: %s", utils.ErrorUnsupportedFile, contentType))
			return
		}

		fileName := filepath.Base(fileHeader.Filename)
		ext := strings.ToLower(filepath.Ext(fileName))
		if ext == "" {
			ext = extensionFromMimeType(contentType)
		}
		objectKey := path.Join("reports", strconv.Itoa(reportId), uuid.NewString()+ext)

		if err := s.store.Put(ctx, objectKey, data, contentType, map[string]string{"original_filename": fileName}); err != nil {
			logUploadError(logger, err, objectKey, c)
			c.JSON(http.StatusBadGateway, gin.H{"error": "failed to store file"})
			return
		}

		if imageMimeTypes[contentType] {
			if _, err := s.createThumbnail(ctx, objectKey, data); err != nil {
				// the original is kept; thumbnail requests will 404
				logUploadError(logger, err, objectKey, c)
			}
		}

		attachment := models.ReportAttachment{
			ReportID:    reportId,
			FileName:    fileName,
			FileKey:     objectKey,
			FileSize:    len(data),
			ContentType: contentType,
		}
		if err := models.CreateAttachment(ctx, &attachment); err != nil {
			s.removeAttachmentObjects(ctx, []models.ReportAttachment{attachment})
			respondError(c, err)
			return
		}

		logger.WithFields(logrus.Fields{
			"report_id":  reportId,
			"object_key": objectKey,
			"size":       len(data),
			"mime_type":  contentType,
		}).Info("[upload.complete]")
		c.JSON(http.StatusCreated, s.attachmentView(attachment))
	}
}

func (s *server) listAttachmentsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		reportId, ok := idParam(c, "id")
		if !ok {
			return
		}
		attachments, err := models.GetAttachments(c.Request.Context(), reportId)
		if err != nil {
			respondError(c, err)
			return
		}
		views := make([]attachmentResponse, 0, len(attachments))
		for _, a := range attachments {
			views = append(views, s.attachmentView(a))
		}
		c.JSON(http.StatusOK, views)
	}
}

func (s *server) attachmentFromPath(c *gin.Context) (*models.ReportAttachment, bool) {
	reportId, ok := idParam(c, "id")
	if !ok {
		return nil, false
	}
	attachmentId, ok := idParam(c, "attachmentId")
	if !ok {
		return nil, false
	}
	attachment, err := models.GetAttachment(c.Request.Context(), reportId, attachmentId)
	if err != nil {
		respondError(c, err)
		return nil, false
	}
	return attachment, true
}

func (s *server) downloadAttachmentHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		attachment, ok := s.attachmentFromPath(c)
		if !ok {
			return
		}
		url, err := s.store.SignedGetURL(c.Request.Context(), attachment.FileKey, s.settings.Storage.DownloadURLTTL)
		if err != nil {
			logUploadError(config.GetLogger(), err, attachment.FileKey, c)
			c.JSON(http.StatusBadGateway, gin.H{"error": "failed to sign download url"})
			return
		}
		c.Redirect(http.StatusTemporaryRedirect, url)
	}
}

func (s *server) attachmentContentHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		attachment, ok := s.attachmentFromPath(c)
		if !ok {
			return
		}
		s.streamObject(c, attachment.FileKey, attachment.FileName)
	}
}

func (s *server) attachmentThumbnailHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		attachment, ok := s.attachmentFromPath(c)
		if !ok {
			return
		}
		if !imageMimeTypes[attachment.ContentType] {
			c.JSON(http.StatusNotFound, gin.H{"error": "attachment has no thumbnail"})
			return
		}
		s.streamObject(c, utils.ThumbnailObjectKey(attachment.FileKey), "")
	}
}

func (s *server) deleteAttachmentHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		reportId, ok := idParam(c, "id")
		if !ok {
			return
		}
		attachmentId, ok := idParam(c, "attachmentId")
		if !ok {
			return
		}
		attachment, err := models.DeleteAttachment(c.Request.Context(), reportId, attachmentId)
		if err != nil {
			respondError(c, err)
			return
		}
		s.removeAttachmentObjects(c.Request.Context(), []models.ReportAttachment{*attachment})
		c.JSON(http.StatusOK, attachment)
	}
}

func (s *server) streamObject(c *gin.Context, key, downloadName string) {
	reader, info, err := s.store.Open(c.Request.Context(), key)
	if err != nil {
		if errors.Is(err, utils.ErrorRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "object not found"})
			return
		}
		logUploadError(config.GetLogger(), err, key, c)
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to read object"})
		return
	}
	defer reader.Close()

	if info != nil && info.ContentType != "" {
		c.Writer.Header().Set("Content-Type", info.ContentType)
	}
	if info != nil && info.Size > 0 {
		c.Writer.Header().Set("Content-Length", strconv.FormatInt(info.Size, 10))
	}
	if downloadName != "" {
		c.Writer.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", downloadName))
	}
	c.Status(http.StatusOK)
	_, _ = io.Copy(c.Writer, reader)
}

func (s *server) createThumbnail(ctx context.Context, objectKey string, data []byte) (string, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return "", err
	}
	thumbnail := imaging.Resize(img, thumbnailWidth, 0, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumbnail, imaging.JPEG); err != nil {
		return "", err
	}

	thumbnailKey := utils.ThumbnailObjectKey(objectKey)
	if err := s.store.Put(ctx, thumbnailKey, buf.Bytes(), "image/jpeg", nil); err != nil {
		return "", err
	}
	return thumbnailKey, nil
}

// removeAttachmentObjects deletes stored files after their rows are gone. Failures are logged only.
func (s *server) removeAttachmentObjects(ctx context.Context, attachments []models.ReportAttachment) {
	logger := config.GetLogger()
	for _, a := range attachments {
		keys := []string{a.FileKey}
		if imageMimeTypes[a.ContentType] {
			keys = append(keys, utils.ThumbnailObjectKey(a.FileKey))
		}
		for _, key := range keys {
			if err := s.store.Delete(ctx, key); err != nil {
				logger.WithFields(logrus.Fields{
					"error":         err.Error(),
					"object_key":    key,
					"attachment_id": a.ID,
				}).Warn("[upload.delete]")
			}
		}
	}
}

func normalizeContentType(contentType string) string {
	contentType = strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.Index(contentType, ";"); i >= 0 {
		contentType = strings.TrimSpace(contentType[:i])
	}
	return contentType
}

func extensionFromMimeType(mimeType string) string {
	switch mimeType {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "application/pdf":
		return ".pdf"
	case "application/msword":
		return ".doc"
	case "application/vnd.openxmlformats-officedocument.wordprocessingml.document":
		return ".docx"
	case "application/vnd.ms-excel":
		return ".xls"
	case "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":
		return ".xlsx"
	case "text/plain":
		return ".txt"
	default:
		return ""
	}
}

func logUploadError(logger *logrus.Logger, err error, objectKey string, c *gin.Context) {
	cid, _ := utils.GetCorrelationIdFromContext(c.Request.Context())
	logger.WithFields(logrus.Fields{
		"error":          err.Error(),
		"object_key":     objectKey,
		"correlation_id": cid,
	}).Error("[upload.error]")
}
