package http

import (
	"fmt"
	"io"
	"net"
	stdhttp "net/http"
	"strconv"
	"time"

	"github.com/daniellavrushin/lure/config"
	"github.com/daniellavrushin/lure/http/handler"
	"github.com/daniellavrushin/lure/http/ws"
	"github.com/daniellavrushin/lure/interaction"
	"github.com/daniellavrushin/lure/log"
	"github.com/daniellavrushin/lure/metrics"
)

// StartServer binds the operator API and serves it in the background. It
// returns nil, nil when the web server is disabled.
func StartServer(cfg *config.Config, collector *metrics.Collector, sink handler.SinkStats) (*stdhttp.Server, error) {
	web := cfg.System.WebServer
	if !web.IsEnabled {
		log.Infof("Web server disabled (port 0)")
		return nil, nil
	}

	mux := stdhttp.NewServeMux()
	registerWebSocketEndpoints(mux)
	registerAPIEndpoints(mux, cfg, collector, sink)

	addr := net.JoinHostPort(web.BindAddress, strconv.Itoa(web.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, log.Errorf("web server on %s: %w", addr, err)
	}
	log.Infof("Starting web server on %s", ln.Addr())
	collector.RecordEvent("info", fmt.Sprintf("Web server started on %s", ln.Addr()))

	srv := &stdhttp.Server{
		Addr:              ln.Addr().String(),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.Serve(ln); err != nil && err != stdhttp.ErrServerClosed {
			log.Errorf("Web server error: %v", err)
			collector.RecordEvent("error", fmt.Sprintf("Web server error: %v", err))
		}
	}()

	return srv, nil
}

func registerWebSocketEndpoints(mux *stdhttp.ServeMux) {
	mux.HandleFunc("/api/ws/logs", ws.HandleLogsWebSocket)
	mux.HandleFunc("/api/ws/interactions", ws.HandleInteractionsWebSocket)

	log.Tracef("WebSocket endpoints registered: /api/ws/logs, /api/ws/interactions")
}

func registerAPIEndpoints(mux *stdhttp.ServeMux, cfg *config.Config, collector *metrics.Collector, sink handler.SinkStats) {
	handler.NewAPIHandler(cfg, collector, sink).RegisterEndpoints(mux)

	log.Tracef("REST API endpoints registered")
}

func LogWriter() io.Writer {
	return ws.LogWriter()
}

// InteractionObserver forwards every persisted sink line to websocket clients.
func InteractionObserver() func(rec interaction.Record, line []byte) {
	return ws.PublishInteraction
}

func Shutdown() {
	ws.Shutdown()
}
