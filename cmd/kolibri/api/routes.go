// Package api serves the ops surface of the extractor: liveness and run
// progress. The reporting/dashboard layer proper lives outside this
// service.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/SanteonNL/kolibri/cmd/kolibri/extract"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

type OpsRouter struct {
	extractor *extract.Service
	log       zerolog.Logger
}

func NewOpsRouter(extractor *extract.Service, log zerolog.Logger) *OpsRouter {
	return &OpsRouter{
		extractor: extractor,
		log:       log.With().Str("component", "ops_api").Logger(),
	}
}

func (o *OpsRouter) SetupRoutes() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", o.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/status", o.handleStatus).Methods(http.MethodGet)
	return r
}

func (o *OpsRouter) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (o *OpsRouter) handleStatus(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(o.extractor.Stats().Snapshot()); err != nil {
		o.log.Error().Err(err).Msg("Failed to encode status response")
	}
}
