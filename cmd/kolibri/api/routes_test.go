package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/SanteonNL/kolibri/cmd/kolibri/emitter"
	"github.com/SanteonNL/kolibri/cmd/kolibri/extract"
	"github.com/SanteonNL/kolibri/cmd/kolibri/fhir/choice"
	"github.com/SanteonNL/kolibri/cmd/kolibri/fhir/client"
	"github.com/SanteonNL/kolibri/cmd/kolibri/mapping"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter() http.Handler {
	log := zerolog.Nop()
	extractor := extract.NewService(
		client.NewService(client.Config{BaseURL: "http://localhost"}, nil, log),
		mapping.NewRegistry(log),
		mapping.NewEngine(choice.NewService(log), log),
		emitter.NewEmitter(5.0, log),
		nil,
		log,
	)
	return NewOpsRouter(extractor, log).SetupRoutes()
}

func TestHealthz(t *testing.T) {
	router := newTestRouter()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestStatusReturnsCounters(t *testing.T) {
	router := newTestRouter()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var snapshot map[string]extract.TypeStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snapshot))
	assert.Empty(t, snapshot)
}

func TestStatusRejectsPost(t *testing.T) {
	router := newTestRouter()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/status", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
