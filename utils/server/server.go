// Package server exposes the command builder, validator, runner and assistant
// over HTTP, including an OpenAI-compatible chat endpoint.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kris-hansen/redbiomctl/utils/assistant"
	"github.com/kris-hansen/redbiomctl/utils/command"
	"github.com/kris-hansen/redbiomctl/utils/config"
	"github.com/kris-hansen/redbiomctl/utils/history"
	"github.com/kris-hansen/redbiomctl/utils/logging"
	"github.com/kris-hansen/redbiomctl/utils/models"
	"github.com/kris-hansen/redbiomctl/utils/runner"
)

// AssistantModel is the model id the OpenAI-compatible endpoint answers to
const AssistantModel = "redbiom-assistant"

// Asker answers questions; *assistant.Assistant is one
type Asker interface {
	Ask(ctx context.Context, question string) (assistant.Answer, error)
	Restore(messages []models.Message)
	Model() string
}

// AssistantFactory creates a fresh Asker per request so conversations from
// different clients never mix
type AssistantFactory func() (Asker, error)

// CommandRunner executes built commands; *runner.Runner is one
type CommandRunner interface {
	Run(ctx context.Context, cmd command.BuiltCommand, opts runner.RunOptions) (runner.Result, error)
}

// Options wires the server's collaborators. Any of them may be nil, which
// disables the endpoints that need it.
type Options struct {
	Assistant AssistantFactory
	Runner    CommandRunner
	History   history.Store
	Version   string
}

// Server is the HTTP front end
type Server struct {
	config    *config.ServerConfig
	envConfig *config.EnvConfig
	opts      Options
	engine    *gin.Engine
}

// New builds the router for envConfig's server settings
func New(envConfig *config.EnvConfig, opts Options) *Server {
	if envConfig == nil {
		envConfig = config.DefaultEnvConfig()
	}
	s := &Server{config: envConfig.GetServer(), envConfig: envConfig, opts: opts}
	s.engine = s.routes()
	return s
}

// Handler returns the HTTP handler, for tests and embedding
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) routes() *gin.Engine {
	if !config.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger())
	if s.config.CORS.Enabled {
		engine.Use(s.cors())
	}

	engine.GET("/health", s.handleHealth)

	api := engine.Group("/v1", s.auth())
	api.GET("/grammar", s.handleGrammar)
	api.POST("/build", s.handleBuild)
	api.POST("/validate", s.handleValidate)
	api.POST("/ask", s.handleAsk)
	if s.config.RunEnabled {
		api.POST("/run", s.handleRun)
	}

	if s.config.OpenAICompat.Enabled {
		prefix := s.config.OpenAICompat.Prefix
		if prefix == "" {
			prefix = "/v1"
		}
		compat := engine.Group(prefix, s.auth())
		compat.GET("/models", s.handleListModels)
		compat.POST("/chat/completions", s.handleChatCompletions)
	}
	return engine
}

// auth requires "Authorization: Bearer <token>" when a token is configured
func (s *Server) auth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := s.config.BearerToken
		if token == "" {
			c.Next()
			return
		}
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") || strings.TrimPrefix(header, "Bearer ") != token {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or missing bearer token"})
			return
		}
		c.Next()
	}
}

func (s *Server) cors() gin.HandlerFunc {
	cfg := s.config.CORS
	methods := strings.Join(cfg.AllowedMethods, ", ")
	headers := strings.Join(cfg.AllowedHeaders, ", ")
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if allowed := allowedOrigin(cfg.AllowedOrigins, origin); allowed != "" {
			c.Header("Access-Control-Allow-Origin", allowed)
			c.Header("Access-Control-Allow-Methods", methods)
			c.Header("Access-Control-Allow-Headers", headers)
			if cfg.MaxAge > 0 {
				c.Header("Access-Control-Max-Age", fmt.Sprint(cfg.MaxAge))
			}
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func allowedOrigin(allowed []string, origin string) string {
	for _, o := range allowed {
		if o == "*" {
			return "*"
		}
		if origin != "" && o == origin {
			return origin
		}
	}
	return ""
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logging.Debug("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}

// Run serves on the configured port until ctx is cancelled, then shuts down
// gracefully
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.Port),
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Info("server listening", "addr", srv.Addr, "run_enabled", s.config.RunEnabled)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logging.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	return <-errCh
}

func (s *Server) record(ctx context.Context, e *history.Entry) {
	if s.opts.History == nil {
		return
	}
	if err := s.opts.History.Append(ctx, e); err != nil {
		logging.Warn("could not record request in history", "err", err)
	}
}
