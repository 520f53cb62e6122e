// Package ingest implements the /ingest (and historical /log alias) HTTP
// endpoint (C6 of the spec): canonicalize, enrich, score, persist, ack.
package ingest

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"honeytrack-collector/internal/collector"
	"honeytrack-collector/internal/errorkind"
	"honeytrack-collector/internal/event"
	"honeytrack-collector/internal/logging"
)

// Handler serves the ingest endpoint against a shared Collector handle.
type Handler struct {
	Collector *collector.Collector
}

func NewHandler(c *collector.Collector) *Handler {
	return &Handler{Collector: c}
}

// Handle implements POST /ingest and POST /log.
func (h *Handler) Handle(c *fiber.Ctx) error {
	requestID := uuid.New().String()
	c.Set("X-Request-Id", requestID)

	var raw event.RawEvent
	if err := c.BodyParser(&raw); err != nil {
		return respondError(c, errorkind.New(errorkind.SchemaError, "request body must be valid JSON"))
	}

	canonical, err := event.Canonicalize(raw)
	if err != nil {
		h.Collector.Metrics.CountError(kindOf(err))
		logging.Warn("ingest rejected", logging.F("request_id", requestID), logging.F("error", err.Error()))
		return respondError(c, err)
	}

	if !h.Collector.TryAcquireWriteSlot() {
		c.Set("Retry-After", "1")
		return c.Status(fiber.StatusServiceUnavailable).
			JSON(fiber.Map{"error": string(errorkind.StoreTransient), "detail": "write queue at capacity"})
	}
	defer h.Collector.ReleaseWriteSlot()

	deadline := time.Duration(h.Collector.Config.Request.DeadlineMS) * time.Millisecond
	ctx, cancel := context.WithTimeout(c.Context(), deadline)
	defer cancel()

	result, err := h.Collector.Ingest(ctx, canonical)
	if err != nil {
		h.Collector.Metrics.CountError(kindOf(err))
		logging.Error("ingest write failed", logging.F("request_id", requestID), logging.F("error", err.Error()))
		return respondError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"accepted":  true,
		"inserted":  result.Inserted,
		"duplicate": result.Duplicate,
		"score": fiber.Map{
			"value":           result.Score.Value,
			"band":            result.Score.Band,
			"is_anomaly":      result.Score.IsAnomaly,
			"predicted_class": result.Score.PredictedClass,
			"traffic_class":   result.Score.TrafficClass,
		},
	})
}

func kindOf(err error) errorkind.Kind {
	if ke, ok := errorkind.As(err); ok {
		return ke.Kind
	}
	return errorkind.StoreFatal
}

func respondError(c *fiber.Ctx, err error) error {
	ke, ok := errorkind.As(err)
	if !ok {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal", "detail": err.Error()})
	}
	return c.Status(ke.Kind.HTTPStatus()).JSON(fiber.Map{"error": string(ke.Kind), "detail": ke.Message})
}
