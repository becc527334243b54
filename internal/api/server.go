package api

// #region imports
import (
	"context"
	"errors"
	"log"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/danielpatrickdp/brain-cascade/go-controller/internal/cache"
	"github.com/danielpatrickdp/brain-cascade/go-controller/internal/config"
	"github.com/danielpatrickdp/brain-cascade/go-controller/internal/pipeline"
	"github.com/danielpatrickdp/brain-cascade/go-controller/internal/policy"
)

// #endregion

// #region server

// Server exposes the pipeline over HTTP.
type Server struct {
	app   *fiber.App
	pipe  *pipeline.Pipeline
	cache *cache.Cache
}

// New builds the fiber app. reg collects both the HTTP middleware metrics
// and anything already registered by the caller; it is served at /metrics.
func New(pipe *pipeline.Pipeline, c *cache.Cache, reg *prometheus.Registry) *Server {
	app := fiber.New(fiber.Config{
		AppName:      "brain-cascade",
		ErrorHandler: errorHandler,
	})
	app.Use(recover.New())
	app.Use(logger.New())

	prom := fiberprometheus.NewWithRegistry(reg, "brain-cascade", "brain", "http", nil)
	app.Use(prom.Middleware)

	s := &Server{app: app, pipe: pipe, cache: c}
	app.Get("/healthz", s.health)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	v1 := app.Group("/v1")
	v1.Post("/query", s.query)
	v1.Post("/plan", s.plan)
	v1.Get("/policies", s.policies)
	v1.Get("/policies/:workload/recommendation", s.recommendation)
	return s
}

// App returns the underlying fiber app.
func (s *Server) App() *fiber.App { return s.app }

// Listen serves until Shutdown.
func (s *Server) Listen(addr string) error {
	log.Printf("[API] listening on %s", addr)
	return s.app.Listen(addr)
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

// #endregion server

// #region handlers

func (s *Server) health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status": "ok",
		"cache":  s.cache.Stats(),
	})
}

func (s *Server) query(c *fiber.Ctx) error {
	q, err := parseQuery(c)
	if err != nil {
		return err
	}
	rec, err := s.pipe.RunQuery(c.UserContext(), q)
	if err != nil {
		return c.Status(statusFor(err)).JSON(rec)
	}
	return c.JSON(rec)
}

func (s *Server) plan(c *fiber.Ctx) error {
	q, err := parseQuery(c)
	if err != nil {
		return err
	}
	d, err := s.pipe.Plan(c.UserContext(), q)
	if err != nil {
		return fiber.NewError(statusFor(err), err.Error())
	}
	return c.JSON(d)
}

func (s *Server) policies(c *fiber.Ctx) error {
	m := s.pipe.Policies()
	snap := m.Snapshot()
	out := make([]policyView, len(snap))
	for i, r := range snap {
		out[i] = policyView{Record: r, Cost: m.Cost(r)}
	}
	return c.JSON(fiber.Map{"records": out})
}

func (s *Server) recommendation(c *fiber.Ctx) error {
	workload := c.Params("workload")
	m := s.pipe.Policies()
	rec, ok := m.Recommend(workload)
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"workload_key": workload,
			"cold_start":   true,
		})
	}
	return c.JSON(fiber.Map{
		"workload_key":   workload,
		"cold_start":     false,
		"recommendation": policyView{Record: rec, Cost: m.Cost(rec)},
	})
}

// #endregion handlers

// #region helpers

type policyView struct {
	policy.Record
	Cost float64 `json:"cost"`
}

func parseQuery(c *fiber.Ctx) (pipeline.Query, error) {
	var q pipeline.Query
	if err := c.BodyParser(&q); err != nil {
		return q, fiber.NewError(fiber.StatusBadRequest, "invalid JSON body: "+err.Error())
	}
	if q.ID == "" {
		q.ID = uuid.New().String()
	}
	return q, nil
}

// statusFor maps rejections to 400 and everything else to 422.
func statusFor(err error) int {
	if errors.Is(err, config.ErrConfig) {
		return fiber.StatusBadRequest
	}
	return fiber.StatusUnprocessableEntity
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	if code >= fiber.StatusInternalServerError {
		log.Printf("[API] %s %s: %v", c.Method(), c.Path(), err)
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}

// #endregion helpers
