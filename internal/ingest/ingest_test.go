package ingest_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"honeytrack-collector/internal/collector"
	"honeytrack-collector/internal/config"
	"honeytrack-collector/internal/geo"
	"honeytrack-collector/internal/ingest"
	"honeytrack-collector/internal/metrics"
	"honeytrack-collector/internal/scoring"
	"honeytrack-collector/internal/store"
)

func newTestApp(t *testing.T) (*fiber.App, *collector.Collector) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := store.Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	cfg := config.Default()
	reg := metrics.NewRegistry()
	enricher := geo.NewEnricher(nil, geo.DefaultConfig())

	supervised, err := scoring.LoadSupervised("../../testdata/models/supervised.json")
	require.NoError(t, err)
	unsupervised, err := scoring.LoadUnsupervised("../../testdata/models/unsupervised.json")
	require.NoError(t, err)
	secondary, err := scoring.LoadSecondary("../../testdata/models/secondary.json")
	require.NoError(t, err)
	ensemble := scoring.NewEnsemble(supervised, unsupervised, secondary, cfg, reg)

	col := collector.New(cfg, st, enricher, ensemble, reg)

	app := fiber.New()
	h := ingest.NewHandler(col)
	app.Post("/ingest", h.Handle)
	app.Post("/log", h.Handle)

	return app, col
}

func doIngest(t *testing.T, app *fiber.App, body map[string]interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest("POST", "/ingest", bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var parsed map[string]interface{}
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &parsed))
	}

	rec := httptest.NewRecorder()
	rec.Code = resp.StatusCode
	return rec, parsed
}

func validBody() map[string]interface{} {
	return map[string]interface{}{
		"observed_at":    "2024-06-01T10:15:00Z",
		"source_address": "203.0.113.42",
		"target_service": "git",
		"action":         "file_access",
		"target_path":    "secrets.yml",
		"session_id":     "s1",
	}
}

func TestIngest_CredentialFileAccessTriggersFloor(t *testing.T) {
	app, _ := newTestApp(t)

	rec, parsed := doIngest(t, app, validBody())

	assert.Equal(t, 200, rec.Code)
	assert.Equal(t, true, parsed["accepted"])
	assert.Equal(t, true, parsed["inserted"])
	score := parsed["score"].(map[string]interface{})
	assert.GreaterOrEqual(t, score["value"].(float64), 0.65)
}

func TestIngest_DedupOnRetry(t *testing.T) {
	app, _ := newTestApp(t)
	body := validBody()

	_, first := doIngest(t, app, body)
	assert.Equal(t, true, first["inserted"])
	assert.Equal(t, false, first["duplicate"])

	_, second := doIngest(t, app, body)
	assert.Equal(t, false, second["inserted"])
	assert.Equal(t, true, second["duplicate"])
}

func TestIngest_MissingFieldReturns400(t *testing.T) {
	app, _ := newTestApp(t)
	body := validBody()
	delete(body, "source_address")

	rec, parsed := doIngest(t, app, body)
	assert.Equal(t, 400, rec.Code)
	assert.Equal(t, "SCHEMA_ERROR", parsed["error"])
}

func TestIngest_PrivateAddressSkipsEnrichment(t *testing.T) {
	app, col := newTestApp(t)
	body := validBody()
	body["source_address"] = "10.1.2.3"
	body["target_path"] = ""
	body["action"] = "scan_attempt"

	rec, _ := doIngest(t, app, body)
	assert.Equal(t, 200, rec.Code)

	events, err := col.Store.LiveEvents(store.LiveEventsFilter{Limit: 1, Source: "10.1.2.3"})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.True(t, events[0].Geo.IsPrivate)
	assert.Equal(t, "", events[0].Geo.Country)
}
