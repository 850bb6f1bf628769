package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/rs/cors"
	"github.com/sourcegraph/conc"

	"kanban/internal/manager"
	"kanban/internal/snapshot"
)

// Backuper is a snapshot sink whose versions can be listed.
type Backuper interface {
	snapshot.Sink
	Versions(ctx context.Context) ([]string, error)
}

// Options configures optional collaborators of the server.
type Options struct {
	// Persist receives a snapshot after every request that changed state,
	// including lookups that changed the view history.
	Persist snapshot.Sink
	// Backup, when set, receives a snapshot after every mutation and serves
	// /api/backup.
	Backup      Backuper
	CORSOrigins []string
}

// Server provides HTTP handlers for the task manager.
type Server struct {
	engine  *gin.Engine
	manager *manager.Manager
	logger  *slog.Logger
	opts    Options

	persistMu sync.Mutex
}

// New constructs the HTTP server with routes and middleware configured.
func New(mgr *manager.Manager, logger *slog.Logger, opts Options) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(gin.LoggerWithWriter(gin.DefaultWriter, "/api/healthz"))

	srv := &Server{
		engine:  router,
		manager: mgr,
		logger:  logger,
		opts:    opts,
	}

	srv.registerRoutes()
	return srv
}

// Engine exposes the underlying Gin engine.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Handler wraps the engine with CORS handling.
func (s *Server) Handler() http.Handler {
	origins := s.opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowedHeaders: []string{"Content-Type"},
	}).Handler(s.engine)
}

// registerRoutes wires all API handlers together.
func (s *Server) registerRoutes() {
	api := s.engine.Group("/api")
	{
		api.GET("/healthz", s.handleHealth)

		tasks := api.Group("/tasks")
		{
			tasks.GET("", s.handleListTasks)
			tasks.POST("", s.handleCreateTask)
			tasks.DELETE("", s.handleDeleteAllTasks)
			tasks.GET(":id", s.handleGetTask)
			tasks.PUT(":id", s.handleUpdateTask)
			tasks.DELETE(":id", s.handleDeleteTask)
		}

		epics := api.Group("/epics")
		{
			epics.GET("", s.handleListEpics)
			epics.POST("", s.handleCreateEpic)
			epics.DELETE("", s.handleDeleteAllEpics)
			epics.GET(":id", s.handleGetEpic)
			epics.PUT(":id", s.handleUpdateEpic)
			epics.DELETE(":id", s.handleDeleteEpic)
			epics.GET(":id/subtasks", s.handleListEpicSubtasks)
		}

		subtasks := api.Group("/subtasks")
		{
			subtasks.GET("", s.handleListSubtasks)
			subtasks.POST("", s.handleCreateSubtask)
			subtasks.DELETE("", s.handleDeleteAllSubtasks)
			subtasks.GET(":id", s.handleGetSubtask)
			subtasks.PUT(":id", s.handleUpdateSubtask)
			subtasks.DELETE(":id", s.handleDeleteSubtask)
		}

		api.GET("/prioritized", s.handlePrioritized)
		api.GET("/history", s.handleHistory)
		api.GET("/backup", s.handleListBackups)
		api.POST("/backup", s.handleBackup)
	}

	s.engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "endpoint not found"})
	})
}

// handleHealth provides a basic readiness endpoint.
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// parseID converts a path parameter to int64 with error handling.
func parseID(c *gin.Context, name string) (int64, bool) {
	raw := c.Param(name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid identifier"})
		return 0, false
	}
	return id, true
}

// statusFor maps manager errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, manager.ErrNullInput), errors.Is(err, manager.ErrParentChanged),
		errors.Is(err, manager.ErrInvalidDuration):
		return http.StatusBadRequest
	case errors.Is(err, manager.ErrMissingParent):
		return http.StatusNotFound
	case errors.Is(err, manager.ErrTimeConflict):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// respondError logs the error and returns a JSON payload.
func (s *Server) respondError(c *gin.Context, status int, err error) {
	if err == nil {
		err = errors.New(http.StatusText(status))
	}
	level := slog.LevelWarn
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	s.logger.Log(c.Request.Context(), level, "request failed", slog.String("path", c.FullPath()), slog.String("error", err.Error()))

	body := gin.H{"error": err.Error()}
	if id, ok := manager.ConflictID(err); ok {
		body["conflictId"] = id
	}
	c.JSON(status, body)
}

// respondManagerError maps err through statusFor.
func (s *Server) respondManagerError(c *gin.Context, err error) {
	s.respondError(c, statusFor(err), err)
}

// respondSuccess wraps a payload in a JSON envelope for consistency.
func respondSuccess(c *gin.Context, status int, payload any) {
	if payload == nil {
		c.Status(status)
		return
	}
	c.JSON(status, payload)
}

// persist saves the state after a mutation to every configured sink.
func (s *Server) persist(c *gin.Context) {
	s.save(c, true)
}

// persistView saves the state after a lookup. Lookups only reorder the
// history, so they do not create a backup version.
func (s *Server) persistView(c *gin.Context) {
	s.save(c, false)
}

// save hands the current state to the sinks concurrently. Failures are
// logged; the in-memory change has already been applied. The save outlives
// a client that disconnects mid-request.
func (s *Server) save(c *gin.Context, withBackup bool) {
	backup := s.opts.Backup
	if !withBackup {
		backup = nil
	}
	if s.opts.Persist == nil && backup == nil {
		return
	}
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	ctx := context.WithoutCancel(c.Request.Context())
	path := c.FullPath()
	snap := snapshot.Capture(s.manager)

	wg := conc.NewWaitGroup()
	if s.opts.Persist != nil {
		wg.Go(func() {
			if err := s.opts.Persist.Save(ctx, snap); err != nil {
				s.logger.Error("persist snapshot failed", slog.String("path", path), slog.String("error", err.Error()))
			}
		})
	}
	if backup != nil {
		wg.Go(func() {
			if err := backup.Save(ctx, snap); err != nil {
				s.logger.Error("backup snapshot failed", slog.String("path", path), slog.String("error", err.Error()))
			}
		})
	}
	wg.Wait()
}
