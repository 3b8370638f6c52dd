package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gulubao/GOT-OCR2.0/internal/domain"
	"github.com/gulubao/GOT-OCR2.0/internal/invocation"
	"github.com/gulubao/GOT-OCR2.0/internal/runner"
	"github.com/gulubao/GOT-OCR2.0/internal/workspace"
)

var ErrRecognitionFailed = errors.New("ocr process exited with an error")

// The response is always complete; a non-nil error repeats its cause.
type OCRService interface {
	Recognize(ctx context.Context, req domain.OCRRequest) (domain.OCRResponse, error)
	RecognizeBatch(ctx context.Context, req domain.BatchRequest) (domain.OCRResponse, error)
}

type ocrService struct {
	store   *workspace.Store
	builder *invocation.Builder
	runner  runner.Runner
	log     *zap.Logger
}

func NewOCRService(store *workspace.Store, builder *invocation.Builder, r runner.Runner, log *zap.Logger) OCRService {
	return &ocrService{
		store:   store,
		builder: builder,
		runner:  r,
		log:     log,
	}
}

func (s *ocrService) Recognize(ctx context.Context, req domain.OCRRequest) (domain.OCRResponse, error) {
	if req.ID == "" {
		req.ID = uuid.New().String()
	}
	log := s.log.With(zap.String("request_id", req.ID))

	if len(req.Image.Data) == 0 {
		return domain.Failure(domain.ErrNoImage.Error()), domain.ErrNoImage
	}

	ws, err := s.store.Acquire(req.ID)
	if err != nil {
		log.Error("Failed to prepare workspace", zap.Error(err))
		return domain.Failure(err.Error()), err
	}
	defer ws.Remove()

	imagePath, err := ws.Store(req.Image.Name, req.Image.Data)
	if err != nil {
		log.Error("Failed to store upload", zap.Error(err))
		return domain.Failure(err.Error()), err
	}

	argv := s.builder.Build(imagePath, invocation.Options{
		Type:   req.Type,
		Box:    req.Box,
		Color:  req.Color,
		Render: req.Render,
	})

	log.Info("Recognizing image",
		zap.String("filename", req.Image.Name),
		zap.Int("size", len(req.Image.Data)),
		zap.String("ocr_type", string(req.Type)))

	return s.invoke(ctx, log, ws, argv)
}

func (s *ocrService) RecognizeBatch(ctx context.Context, req domain.BatchRequest) (domain.OCRResponse, error) {
	if req.ID == "" {
		req.ID = uuid.New().String()
	}
	log := s.log.With(zap.String("request_id", req.ID))

	if len(req.Images) == 0 {
		return domain.Failure(domain.ErrNoImage.Error()), domain.ErrNoImage
	}

	ws, err := s.store.Acquire(req.ID)
	if err != nil {
		log.Error("Failed to prepare workspace", zap.Error(err))
		return domain.Failure(err.Error()), err
	}
	defer ws.Remove()

	dir, err := ws.StoreMany(req.Images)
	if err != nil {
		log.Error("Failed to store batch", zap.Error(err))
		return domain.Failure(err.Error()), err
	}

	argv := s.builder.Build(dir, invocation.Options{
		Type:      req.Type,
		MultiPage: true,
	})

	log.Info("Recognizing batch",
		zap.Int("files", len(req.Images)),
		zap.String("ocr_type", string(req.Type)))

	return s.invoke(ctx, log, ws, argv)
}

func (s *ocrService) invoke(ctx context.Context, log *zap.Logger, ws *workspace.Workspace, argv []string) (domain.OCRResponse, error) {
	res, err := s.runner.Run(ctx, argv)
	ws.Remove()

	resp := domain.FormatResult(res, err)

	switch {
	case err != nil:
		log.Warn("Recognition did not complete", zap.Error(err))
		return resp, err
	case res == nil:
		return resp, fmt.Errorf("%w: no result", ErrRecognitionFailed)
	case res.ExitCode != 0:
		log.Warn("Recognition failed",
			zap.Int("exit_code", res.ExitCode),
			zap.String("stderr", res.Stderr))
		return resp, fmt.Errorf("%w: exit status %d", ErrRecognitionFailed, res.ExitCode)
	}

	log.Info("Recognition succeeded",
		zap.Duration("duration", res.Duration),
		zap.Int("result_length", len(res.Stdout)))

	return resp, nil
}
