package push

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

const (
	maxPayloadBytes     = 64 << 10
	shutdownTimeout     = 5 * time.Second
	listenRetryInterval = 100 * time.Millisecond
)

// StatusFunc reports worker status for GET /v1/status.
type StatusFunc func() any

// Server is the HTTP ingress for push events.
type Server struct {
	addr       string
	dispatcher *Dispatcher
	status     StatusFunc
	log        log.FieldLogger
	engine     *gin.Engine
}

// NewServer builds the ingress. status may be nil.
func NewServer(addr string, d *Dispatcher, status StatusFunc, logger log.FieldLogger) *Server {
	if logger == nil {
		logger = log.StandardLogger()
	}
	s := &Server{
		addr:       addr,
		dispatcher: d,
		status:     status,
		log:        logger.WithField("ingress", "http"),
	}

	engine := gin.New()
	engine.Use(gin.Recovery(), s.requestLogger())
	engine.GET("/healthz", s.healthz)
	v1 := engine.Group("/v1")
	v1.POST("/push", s.push)
	v1.GET("/status", s.statusHandler)
	s.engine = engine

	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves until ctx ends, then shuts down gracefully. When the address
// is taken, Run keeps trying for up to wait; a worker being replaced
// releases it once it notices the takeover.
func (s *Server) Run(ctx context.Context, wait time.Duration) error {
	ln, err := Listen(ctx, s.addr, wait, s.log)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	return s.Serve(ctx, ln)
}

// Listen binds addr, retrying every listenRetryInterval until it succeeds,
// wait has passed or ctx ends.
func Listen(ctx context.Context, addr string, wait time.Duration, logger log.FieldLogger) (net.Listener, error) {
	var lc net.ListenConfig
	deadline := time.Now().Add(wait)
	for attempt := 0; ; attempt++ {
		ln, err := lc.Listen(ctx, "tcp", addr)
		if err == nil {
			if attempt > 0 && logger != nil {
				logger.WithField("attempts", attempt+1).Info("address released")
			}
			return ln, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !time.Now().Before(deadline) {
			return nil, fmt.Errorf("listen %s: %w", addr, err)
		}
		if attempt == 0 && logger != nil {
			logger.WithError(err).Infof("waiting up to %s for %s", wait, addr)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(listenRetryInterval):
		}
	}
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Infof("listening on %s", ln.Addr())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http ingress: %w", err)
		}
		return nil
	}
}

func (s *Server) healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "accepting": s.dispatcher.Accepting()})
}

func (s *Server) statusHandler(c *gin.Context) {
	if s.status == nil {
		c.JSON(http.StatusOK, gin.H{"dispatcher": s.dispatcher.Stats()})
		return
	}
	c.JSON(http.StatusOK, s.status())
}

func (s *Server) push(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxPayloadBytes)
	body, errRead := c.GetRawData()
	if errRead != nil {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "payload too large"})
		return
	}

	n, errDecode := DecodePayload(body)
	if errDecode != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	ev := NewEvent(n)
	// The decision must finish even if the sender hangs up.
	err := s.dispatcher.Dispatch(context.WithoutCancel(c.Request.Context()), ev)
	switch {
	case errors.Is(err, ErrNotActive):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"id": ev.ID, "error": err.Error()})
	default:
		c.JSON(http.StatusAccepted, gin.H{"id": ev.ID})
	}
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.WithFields(log.Fields{
			"method":  c.Request.Method,
			"path":    c.FullPath(),
			"status":  c.Writer.Status(),
			"latency": time.Since(start).String(),
		}).Debug("request")
	}
}
