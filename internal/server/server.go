// Package server exposes the feed pipeline over HTTP.
package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"sitefeed/internal/filter"
	"sitefeed/internal/model"
	"sitefeed/internal/pipeline"
	"sitefeed/internal/render"
)

// Runner produces a feed of at most limit items.
type Runner interface {
	Run(ctx context.Context, limit int) (*model.Feed, error)
}

// filterParams maps query parameters to filter rules.
var filterParams = []struct {
	name  string
	kind  filter.Kind
	scope filter.Scope
}{
	{"filter", filter.IncludeRe, filter.ScopeAll},
	{"filter_title", filter.IncludeRe, filter.ScopeTitle},
	{"filter_description", filter.IncludeRe, filter.ScopeContent},
	{"filterout", filter.ExcludeRe, filter.ScopeAll},
	{"filterout_title", filter.ExcludeRe, filter.ScopeTitle},
	{"filterout_description", filter.ExcludeRe, filter.ScopeContent},
}

// Server serves feeds, health and metrics.
type Server struct {
	echo   *echo.Echo
	runner Runner
	log    *slog.Logger
}

// New builds the HTTP routes. A nil gatherer disables /metrics.
func New(runner Runner, gatherer prometheus.Gatherer, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	s := &Server{echo: echo.New(), runner: runner, log: log}

	e := s.echo
	e.HideBanner = true
	e.HidePort = true
	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		Skipper: func(c echo.Context) bool {
			p := c.Request().URL.Path
			return p == "/healthz" || p == "/metrics"
		},
		LogStatus:   true,
		LogURI:      true,
		LogError:    true,
		LogMethod:   true,
		LogLatency:  true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			if v.Error == nil {
				log.Info("request completed", "method", v.Method, "uri", v.URI, "status", v.Status, "latency_ms", v.Latency.Milliseconds())
			} else {
				log.Error("request failed", "method", v.Method, "uri", v.URI, "status", v.Status, "latency_ms", v.Latency.Milliseconds(), "error", v.Error)
			}
			return nil
		},
	}))
	e.Use(middleware.Recover())

	e.GET("/sitemap", s.handleFeed)
	e.GET("/sitemap/:limit", s.handleFeed)
	e.GET("/healthz", handleHealth)
	if gatherer != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}
	return s
}

// Handler returns the server's http.Handler.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.log.Info("listening", "addr", addr)
		if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		s.log.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.echo.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleFeed(c echo.Context) error {
	limit := 0
	if raw := c.Param("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return c.String(http.StatusBadRequest, fmt.Sprintf("invalid limit %q", raw))
		}
		limit = n
	}

	format, err := render.ParseFormat(c.QueryParam("format"))
	if err != nil {
		return c.String(http.StatusBadRequest, err.Error())
	}

	engine, err := filterFromQuery(c)
	if err != nil {
		return c.String(http.StatusBadRequest, err.Error())
	}

	feed, err := s.runner.Run(c.Request().Context(), limit)
	if err != nil {
		if errors.Is(err, pipeline.ErrListingFetch) {
			return c.String(http.StatusBadGateway, err.Error())
		}
		return fmt.Errorf("run pipeline: %w", err)
	}
	feed.Items = engine.Apply(feed.Items)

	var buf bytes.Buffer
	if err := render.Write(&buf, feed, format); err != nil {
		return fmt.Errorf("render feed: %w", err)
	}
	return c.Blob(http.StatusOK, format.ContentType(), buf.Bytes())
}

func filterFromQuery(c echo.Context) (*filter.Engine, error) {
	var rules []filter.Rule
	for _, p := range filterParams {
		if v := c.QueryParam(p.name); v != "" {
			rules = append(rules, filter.Rule{Kind: p.kind, Scope: p.scope, Value: v})
		}
	}
	return filter.New(rules)
}
