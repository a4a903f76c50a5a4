package handler

import (
	"encoding/json"
	"net/http"
)

// The running configuration is read-only over HTTP; listeners are bound at
// start and changing ports needs a restart.
func (api *API) RegisterConfigApi() {
	api.mux.HandleFunc("/api/config", api.handleConfig)
}

func (api *API) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	setJsonHeader(w)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(ConfigResponse{
		Config:  api.cfg,
		Success: true,
		Message: "Configuration retrieved successfully",
	})
}
