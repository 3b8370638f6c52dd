package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gulubao/GOT-OCR2.0/internal/config"
	"github.com/gulubao/GOT-OCR2.0/internal/domain"
	"github.com/gulubao/GOT-OCR2.0/internal/repository"
	"github.com/gulubao/GOT-OCR2.0/internal/runner"
	"github.com/gulubao/GOT-OCR2.0/internal/service"
	"github.com/gulubao/GOT-OCR2.0/pkg/utils"
)

const RequestIDKey = "request_id"

var (
	errSourceDisabled    = errors.New("object storage is not configured")
	errSourceUnavailable = errors.New("object storage unavailable")
	errFileTooLarge      = errors.New("file too large")
	errFileFormat        = errors.New("invalid file format")
)

type Handler struct {
	service service.OCRService
	source  repository.ImageSource
	images  *utils.ImageProcessor
	cfg     *config.AppConfig
	log     *zap.Logger
}

// source may be nil when object storage is disabled.
func NewHandler(svc service.OCRService, source repository.ImageSource, cfg *config.AppConfig, log *zap.Logger) *Handler {
	return &Handler{
		service: svc,
		source:  source,
		images:  utils.NewImageProcessor(cfg.MaxImagePixels, log),
		cfg:     cfg,
		log:     log,
	}
}

func (h *Handler) OCR(c *gin.Context) {
	ocrType, err := domain.ParseOCRType(c.PostForm("ocr_type"))
	if err != nil {
		h.badRequest(c, err)
		return
	}
	color, err := domain.ParseColor(c.PostForm("color"))
	if err != nil {
		h.badRequest(c, err)
		return
	}
	render, err := parseFormBool(c.PostForm("render"))
	if err != nil {
		h.badRequest(c, err)
		return
	}

	image, err := h.singleImage(c)
	if err != nil {
		h.reject(c, err)
		return
	}

	resp, err := h.service.Recognize(c.Request.Context(), domain.OCRRequest{
		ID:     requestID(c),
		Image:  image,
		Type:   ocrType,
		Box:    c.PostForm("box"),
		Color:  color,
		Render: render,
	})

	c.JSON(statusFor(err), resp)
}

// BatchOCR sends all images to the recognizer in one multi-page run.
func (h *Handler) BatchOCR(c *gin.Context) {
	ocrType, err := domain.ParseOCRType(c.PostForm("ocr_type"))
	if err != nil {
		h.badRequest(c, err)
		return
	}

	images, err := h.batchImages(c)
	if err != nil {
		h.reject(c, err)
		return
	}

	resp, err := h.service.RecognizeBatch(c.Request.Context(), domain.BatchRequest{
		ID:     requestID(c),
		Images: images,
		Type:   ocrType,
	})

	c.JSON(statusFor(err), resp)
}

func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "OK"})
}

// LimitBody caps request bodies at MaxRequestSize before any form parsing.
func (h *Handler) LimitBody() gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.cfg.MaxRequestSize > 0 && c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.cfg.MaxRequestSize)
		}
		c.Next()
	}
}

func (h *Handler) singleImage(c *gin.Context) (domain.Image, error) {
	if key := c.PostForm("object_key"); key != "" {
		if h.source == nil {
			return domain.Image{}, errSourceDisabled
		}
		image, err := h.source.FetchImage(c.Request.Context(), key)
		if err != nil {
			return domain.Image{}, sourceError(err)
		}
		return image, nil
	}

	file, err := c.FormFile("file")
	if err != nil {
		return domain.Image{}, uploadError(err, "file")
	}
	return h.readUpload(file)
}

func (h *Handler) batchImages(c *gin.Context) ([]domain.Image, error) {
	if prefix := c.PostForm("prefix"); prefix != "" {
		if h.source == nil {
			return nil, errSourceDisabled
		}
		images, err := h.source.FetchPrefix(c.Request.Context(), prefix)
		if err != nil {
			return nil, sourceError(err)
		}
		if len(images) == 0 {
			return nil, fmt.Errorf("%w: no objects under prefix %q", domain.ErrNoImage, prefix)
		}
		return images, nil
	}

	form, err := c.MultipartForm()
	if err != nil {
		return nil, uploadError(err, "files")
	}
	if len(form.File["files"]) == 0 {
		return nil, fmt.Errorf("%w: field \"files\" is required", domain.ErrNoImage)
	}

	images := make([]domain.Image, 0, len(form.File["files"]))
	for _, file := range form.File["files"] {
		img, err := h.readUpload(file)
		if err != nil {
			return nil, err
		}
		images = append(images, img)
	}
	return images, nil
}

func (h *Handler) readUpload(file *multipart.FileHeader) (domain.Image, error) {
	if h.cfg.MaxUploadSize > 0 && file.Size > h.cfg.MaxUploadSize {
		return domain.Image{}, fmt.Errorf("%w: %s exceeds %d bytes", errFileTooLarge, file.Filename, h.cfg.MaxUploadSize)
	}
	if !utils.AllowedExtension(file.Filename, h.cfg.AllowedFormats) {
		return domain.Image{}, fmt.Errorf("%w: %s, allowed: %s", errFileFormat, file.Filename, strings.Join(h.cfg.AllowedFormats, ", "))
	}

	f, err := file.Open()
	if err != nil {
		return domain.Image{}, fmt.Errorf("failed to open upload: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return domain.Image{}, fmt.Errorf("failed to read upload: %w", err)
	}
	if len(data) == 0 {
		return domain.Image{}, fmt.Errorf("%w: %s is empty", domain.ErrNoImage, file.Filename)
	}

	return domain.Image{Name: file.Filename, Data: data}, nil
}

func (h *Handler) badRequest(c *gin.Context, err error) {
	h.log.Info("Rejected request",
		zap.String("request_id", requestID(c)),
		zap.String("path", c.FullPath()),
		zap.Error(err))
	c.JSON(http.StatusBadRequest, domain.Failure(err.Error()))
}

// Only a failing object store is the server's fault.
func (h *Handler) reject(c *gin.Context, err error) {
	if !errors.Is(err, errSourceUnavailable) {
		h.badRequest(c, err)
		return
	}
	h.log.Error("Image source failed",
		zap.String("request_id", requestID(c)),
		zap.String("path", c.FullPath()),
		zap.Error(err))
	c.JSON(http.StatusBadGateway, domain.Failure(err.Error()))
}

func sourceError(err error) error {
	switch {
	case errors.Is(err, repository.ErrObjectNotFound),
		errors.Is(err, repository.ErrObjectTooLarge),
		errors.Is(err, context.Canceled):
		return err
	}
	return fmt.Errorf("%w: %v", errSourceUnavailable, err)
}

func uploadError(err error, field string) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return fmt.Errorf("%w: request body exceeds %d bytes", errFileTooLarge, tooLarge.Limit)
	}
	return fmt.Errorf("%w: field %q is required", domain.ErrNoImage, field)
}

// Requests that reached the recognizer report failures in the body with 200.
func statusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, domain.ErrNoImage):
		return http.StatusBadRequest
	case errors.Is(err, runner.ErrBusy):
		return http.StatusServiceUnavailable
	case errors.Is(err, runner.ErrTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusOK
	}
}

func parseFormBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "0", "f", "false", "n", "no", "off":
		return false, nil
	case "1", "t", "true", "y", "yes", "on":
		return true, nil
	}
	return false, fmt.Errorf("render must be a boolean, got %q", s)
}

func requestID(c *gin.Context) string {
	if id := c.GetString(RequestIDKey); id != "" {
		return id
	}
	id := uuid.New().String()
	c.Set(RequestIDKey, id)
	return id
}
