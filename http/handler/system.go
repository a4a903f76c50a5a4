package handler

import (
	"encoding/json"
	"net/http"
	"os"
	"runtime"
)

// Set by main from build flags.
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

func (api *API) RegisterSystemApi() {
	api.mux.HandleFunc("/api/version", api.handleVersion)
	api.mux.HandleFunc("/api/system/info", api.handleSystemInfo)
}

func (api *API) handleVersion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	versionInfo := VersionInfo{
		Version:   Version,
		Commit:    Commit,
		BuildDate: Date,
	}
	setJsonHeader(w)
	enc := json.NewEncoder(w)
	_ = enc.Encode(versionInfo)
}

func (api *API) handleSystemInfo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	info := SystemInfo{
		OS:         runtime.GOOS,
		Arch:       runtime.GOARCH,
		GoVersion:  runtime.Version(),
		PID:        os.Getpid(),
		IsDocker:   isDocker(),
		ConfigPath: api.cfg.ConfigPath,
	}

	setJsonHeader(w)
	json.NewEncoder(w).Encode(info)
}

func isDocker() bool {
	if _, err := os.Stat("/.dockerenv"); err == nil {
		return true
	}
	return false
}
