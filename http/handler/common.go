package handler

import (
	"net/http"

	"github.com/daniellavrushin/lure/config"
	"github.com/daniellavrushin/lure/metrics"
)

func NewAPIHandler(cfg *config.Config, collector *metrics.Collector, sink SinkStats) *API {
	return &API{
		cfg:     cfg,
		metrics: collector,
		sink:    sink,
	}
}

func (api *API) RegisterEndpoints(mux *http.ServeMux) {
	api.mux = mux

	api.RegisterConfigApi()
	api.RegisterMetricsApi()
	api.RegisterSystemApi()
}

func setJsonHeader(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
}
