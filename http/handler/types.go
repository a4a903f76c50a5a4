package handler

import (
	"net/http"

	"github.com/daniellavrushin/lure/config"
	"github.com/daniellavrushin/lure/metrics"
)

// SinkStats is the part of the sink writer the API reports on.
type SinkStats interface {
	Written() uint64
	Dropped() uint64
	Pending() int
}

type API struct {
	cfg     *config.Config
	mux     *http.ServeMux
	metrics *metrics.Collector
	sink    SinkStats
}

type VersionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
}

type SystemInfo struct {
	OS         string `json:"os"`
	Arch       string `json:"arch"`
	GoVersion  string `json:"go_version"`
	PID        int    `json:"pid"`
	IsDocker   bool   `json:"is_docker"`
	ConfigPath string `json:"config_path,omitempty"`
}

type SinkStatus struct {
	Path    string `json:"path"`
	Written uint64 `json:"written"`
	Dropped uint64 `json:"dropped"`
	Pending int    `json:"pending"`
}

// MetricsResponse is the collector snapshot plus the sink's own counters.
type MetricsResponse struct {
	*metrics.Collector
	Sink SinkStatus `json:"sink"`
}

type ConfigResponse struct {
	*config.Config
	Success bool   `json:"success"`
	Message string `json:"message"`
}
