package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/gulubao/GOT-OCR2.0/internal/config"
	"github.com/gulubao/GOT-OCR2.0/internal/handler"
	"github.com/gulubao/GOT-OCR2.0/internal/invocation"
	"github.com/gulubao/GOT-OCR2.0/internal/repository"
	"github.com/gulubao/GOT-OCR2.0/internal/runner"
	"github.com/gulubao/GOT-OCR2.0/internal/service"
	"github.com/gulubao/GOT-OCR2.0/internal/workspace"
	"github.com/gulubao/GOT-OCR2.0/web"
)

type Surface string

const (
	SurfaceAPI Surface = "api"
	SurfaceUI  Surface = "webui"
)

// drainTimeout bounds how long Shutdown waits for cancelled requests to
// kill their recognizer and remove their workspace.
const drainTimeout = 15 * time.Second

type Server struct {
	httpServer *http.Server
	sweeper    *workspace.Sweeper
	cfg        *config.Config
	log        *zap.Logger
	surface    Surface

	// cancel ends the base context every request context derives from.
	cancel   context.CancelFunc
	inflight sync.WaitGroup
}

type Pipeline struct {
	Service service.OCRService
	Store   *workspace.Store
}

func NewPipeline(cfg *config.Config, log *zap.Logger) (*Pipeline, error) {
	store, err := workspace.NewStore(cfg.App.UploadDir, log)
	if err != nil {
		return nil, err
	}

	builder := invocation.NewBuilder(cfg.OCR.Program, cfg.OCR.ProgramArgs, cfg.OCR.ModelPath)
	procRunner := runner.NewProcessRunner(cfg.OCR.MaxConcurrent, cfg.OCR.Timeout, cfg.OCR.QueueTimeout, log)

	return &Pipeline{
		Service: service.NewOCRService(store, builder, procRunner, log),
		Store:   store,
	}, nil
}

func New(cfg *config.Config, log *zap.Logger, surface Surface) (*Server, error) {
	gin.SetMode(gin.ReleaseMode)

	pipeline, err := NewPipeline(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create ocr pipeline: %w", err)
	}

	var source repository.ImageSource
	if cfg.S3.Enabled {
		source, err = repository.NewS3Repository(&cfg.S3, cfg.App.MaxUploadSize, log)
		if err != nil {
			return nil, fmt.Errorf("failed to create S3 repository: %w", err)
		}
	}

	sweeper, err := workspace.NewSweeper(pipeline.Store, cfg.App.SweepSchedule, cfg.App.WorkspaceTTL, log)
	if err != nil {
		return nil, err
	}

	h := handler.NewHandler(pipeline.Service, source, &cfg.App, log)

	router, err := NewRouter(h, log, surface)
	if err != nil {
		return nil, err
	}

	addr := cfg.APIAddr()
	if surface == SurfaceUI {
		addr = cfg.UIAddr()
	}

	baseCtx, cancel := context.WithCancel(context.Background())
	server := &Server{
		sweeper: sweeper,
		cfg:     cfg,
		log:     log,
		surface: surface,
		cancel:  cancel,
	}
	server.httpServer = &http.Server{
		Addr:           addr,
		Handler:        server.track(router),
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		MaxHeaderBytes: 1 << 20, // 1 MB
		BaseContext:    func(net.Listener) context.Context { return baseCtx },
	}

	log.Info("Server created successfully",
		zap.String("surface", string(surface)),
		zap.String("address", addr),
		zap.String("upload_dir", cfg.App.UploadDir),
		zap.Int64("max_concurrent", cfg.OCR.MaxConcurrent),
		zap.Bool("s3_source", cfg.S3.Enabled))

	return server, nil
}

func NewRouter(h *handler.Handler, log *zap.Logger, surface Surface) (*gin.Engine, error) {
	router := gin.New()
	router.Use(gin.Recovery(), requestID(), requestLogger(log), h.LimitBody())
	router.MaxMultipartMemory = 32 << 20

	router.GET("/health", h.HealthCheck)

	switch surface {
	case SurfaceAPI:
		router.POST("/ocr", h.OCR)
		router.POST("/batch-ocr", h.BatchOCR)
	case SurfaceUI:
		tmpl, err := web.Templates()
		if err != nil {
			return nil, fmt.Errorf("failed to parse ui templates: %w", err)
		}
		router.SetHTMLTemplate(tmpl)
		router.GET("/", h.GetUI)
		router.POST("/", h.SubmitUI)
	default:
		return nil, fmt.Errorf("unknown surface %q", surface)
	}

	return router, nil
}

func (s *Server) Run() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	return s.serve(ln)
}

func (s *Server) serve(ln net.Listener) error {
	s.sweeper.Start()

	s.log.Info("Server is running",
		zap.String("surface", string(s.surface)),
		zap.String("address", ln.Addr().String()))

	return s.httpServer.Serve(ln)
}

// Shutdown cancels requests still running when ctx expires, which kills their
// recognizer, then waits for them to release their workspaces.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("Shutting down server", zap.String("surface", string(s.surface)))
	s.sweeper.Stop()

	err := s.httpServer.Shutdown(ctx)
	if err != nil {
		s.log.Warn("Grace period expired, cancelling running requests", zap.Error(err))
	}
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(drainTimeout):
		s.log.Error("Requests still running after cancellation", zap.Duration("waited", drainTimeout))
	}

	return err
}

func (s *Server) track(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.inflight.Add(1)
		defer s.inflight.Done()
		next.ServeHTTP(w, r)
	})
}
