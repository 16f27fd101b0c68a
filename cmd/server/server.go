package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"github.com/Ramsey-B/willow/config"
	"github.com/Ramsey-B/willow/pkg/middleware"
	accountroutes "github.com/Ramsey-B/willow/pkg/routes/accounts"
	"github.com/Ramsey-B/willow/pkg/routes/duplicates"
	"github.com/Ramsey-B/willow/pkg/routes/health"
	"github.com/Ramsey-B/willow/pkg/routes/jobs"
	"github.com/Ramsey-B/willow/pkg/routes/sources"
)

// server wraps echo as a startup dependency
type server struct {
	echo   *echo.Echo
	port   int
	logger ectologger.Logger
}

func newServer(cfg *config.Config, logger ectologger.Logger) *server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Server.ReadTimeout = time.Duration(cfg.HttpServerReadTimeoutSeconds) * time.Second
	e.Server.WriteTimeout = time.Duration(cfg.HttpServerWriteTimeoutSeconds) * time.Second
	e.Server.IdleTimeout = time.Duration(cfg.HttpServerIdleTimeoutSeconds) * time.Second
	e.Server.MaxHeaderBytes = cfg.MaxHeaderBytes

	e.HTTPErrorHandler = middleware.Error(logger)
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORSWithConfig(echomiddleware.CORSConfig{
		AllowOrigins: cfg.AllowOrigins,
		AllowMethods: cfg.AllowMethods,
	}))
	e.Use(otelecho.Middleware(cfg.AppName))
	e.Use(middleware.Context())
	e.Use(middleware.Logger(logger))

	health.Register(e)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	sources.Register(e.Group("/sources"))
	accountroutes.Register(e.Group("/accounts"))
	jobs.Register(e.Group("/jobs"))
	jobs.RegisterItems(e.Group("/items"))
	duplicates.Register(e.Group("/duplicates"))

	return &server{
		echo:   e,
		port:   cfg.Port,
		logger: logger,
	}
}

func (s *server) GetName() string {
	return "http-server"
}

func (s *server) DependsOn() []string {
	return []string{"database", "redis"}
}

func (s *server) Start(ctx context.Context) error {
	go func() {
		if err := s.echo.Start(fmt.Sprintf(":%d", s.port)); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.WithError(err).Errorf("HTTP server stopped unexpectedly")
		}
	}()
	s.logger.WithField("port", s.port).Infof("HTTP server listening on port %d", s.port)
	return nil
}

func (s *server) Stop(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
