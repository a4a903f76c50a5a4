package handler

import (
	"encoding/json"
	"net/http"
)

func (api *API) RegisterMetricsApi() {
	api.mux.HandleFunc("/api/metrics", api.handleMetrics)
}

func (api *API) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	response := MetricsResponse{Collector: api.metrics.GetSnapshot()}
	response.Sink.Path = api.cfg.Sink.Path
	if api.sink != nil {
		response.Sink.Written = api.sink.Written()
		response.Sink.Dropped = api.sink.Dropped()
		response.Sink.Pending = api.sink.Pending()
	}

	setJsonHeader(w)
	_ = json.NewEncoder(w).Encode(response)
}
