// Package api implements the read-only query endpoints (C7 of the spec)
// backing the dashboard: live events, analytics, map points, ML insights,
// alerts, per-source investigation, aggregate stats, and health.
package api

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"honeytrack-collector/internal/collector"
	"honeytrack-collector/internal/errorkind"
	"honeytrack-collector/internal/store"
)

// Handler serves the query API against a shared Collector handle.
type Handler struct {
	Collector *collector.Collector
}

func NewHandler(c *collector.Collector) *Handler {
	return &Handler{Collector: c}
}

// Register mounts every query route onto app, matching the paths in §6.
func (h *Handler) Register(app fiber.Router) {
	app.Get("/events", h.Events)
	app.Get("/stats", h.Stats)
	app.Get("/analytics", h.Analytics)
	app.Get("/map", h.Map)
	app.Get("/ml-insights", h.MLInsights)
	app.Get("/alerts", h.Alerts)
	app.Get("/investigate/:source", h.Investigate)
	app.Get("/health", h.Health)
}

func respondStoreError(c *fiber.Ctx, err error) error {
	ke, ok := errorkind.As(err)
	if !ok {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal", "detail": err.Error()})
	}
	// Read paths degrade to empty results rather than 5xx wherever the
	// caller can, but store faults on a read still need to surface.
	return c.Status(ke.Kind.HTTPStatus()).JSON(fiber.Map{"error": string(ke.Kind), "detail": ke.Message})
}

// Events serves GET /events: live_events(limit, source_filter?, min_score?).
func (h *Handler) Events(c *fiber.Ctx) error {
	filter, err := parseLiveEventsFilter(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": string(errorkind.QueryParamError), "detail": err.Error()})
	}

	events, err := h.Collector.Store.LiveEvents(filter)
	if err != nil {
		return respondStoreError(c, err)
	}
	return c.JSON(fiber.Map{"events": events})
}

func parseLiveEventsFilter(c *fiber.Ctx) (store.LiveEventsFilter, error) {
	limit := 100
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return store.LiveEventsFilter{}, errBadParam("limit")
		}
		limit = n
	}

	filter := store.LiveEventsFilter{Limit: limit, Source: c.Query("source")}

	if v := c.Query("min_score"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return store.LiveEventsFilter{}, errBadParam("min_score")
		}
		filter.MinScore = &f
	}
	return filter, nil
}

// Stats serves GET /stats.
func (h *Handler) Stats(c *fiber.Ctx) error {
	stats, err := h.Collector.Store.Stats(time.Now().UTC())
	if err != nil {
		return respondStoreError(c, err)
	}
	return c.JSON(stats)
}

// Analytics serves GET /analytics.
func (h *Handler) Analytics(c *fiber.Ctx) error {
	analytics, err := h.Collector.Store.Analytics(time.Now().UTC())
	if err != nil {
		return respondStoreError(c, err)
	}
	return c.JSON(analytics)
}

// Map serves GET /map.
func (h *Handler) Map(c *fiber.Ctx) error {
	points, err := h.Collector.Store.MapPoints()
	if err != nil {
		return respondStoreError(c, err)
	}
	return c.JSON(fiber.Map{"points": points})
}

// MLInsights serves GET /ml-insights.
func (h *Handler) MLInsights(c *fiber.Ctx) error {
	insights, err := h.Collector.Store.MLInsights(time.Now().UTC())
	if err != nil {
		return respondStoreError(c, err)
	}
	return c.JSON(insights)
}

// Alerts serves GET /alerts: threshold default 0.5 (§6).
func (h *Handler) Alerts(c *fiber.Ctx) error {
	threshold := 0.5
	if v := c.Query("threshold"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": string(errorkind.QueryParamError), "detail": "threshold must be numeric"})
		}
		threshold = f
	}

	limit := 100
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": string(errorkind.QueryParamError), "detail": "limit must be an integer"})
		}
		limit = n
	}

	events, err := h.Collector.Store.Alerts(threshold, limit)
	if err != nil {
		return respondStoreError(c, err)
	}
	return c.JSON(fiber.Map{"alerts": events})
}

// Investigate serves GET /investigate/{source}.
func (h *Handler) Investigate(c *fiber.Ctx) error {
	source := c.Params("source")
	if source == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": string(errorkind.QueryParamError), "detail": "source is required"})
	}

	result, err := h.Collector.Store.Investigate(source, time.Now().UTC())
	if err != nil {
		return respondStoreError(c, err)
	}
	return c.JSON(result)
}

// Health serves GET /health: store reachability, model load status, and
// enrichment cache size (§4.8).
func (h *Handler) Health(c *fiber.Ctx) error {
	storeOK := h.Collector.Store.Ping() == nil

	return c.JSON(fiber.Map{
		"store_reachable": storeOK,
		"models_loaded":   h.Collector.Ensemble.LoadStatus(),
		"geo_cache_size":  h.Collector.Enricher.CacheSize(),
		"metrics":         h.Collector.Metrics.Snapshot(),
	})
}

func errBadParam(name string) error {
	return fiber.NewError(fiber.StatusBadRequest, "invalid query parameter: "+name)
}
