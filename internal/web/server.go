// Package web serves the read/control HTTP API on 127.0.0.1. Reads go
// through the query layer against the pooled connections; every mutation is
// funneled into the storage writer.
package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/InfraSecConsult/netwatch-go/internal/capture"
	"github.com/InfraSecConsult/netwatch-go/internal/dnscache"
	"github.com/InfraSecConsult/netwatch-go/internal/scanner"
	"github.com/InfraSecConsult/netwatch-go/internal/storage"
)

// routeTimeout is the per-request deadline.
const routeTimeout = 10 * time.Second

// Server binds the API handlers to their collaborators.
type Server struct {
	queries  *storage.Queries
	writer   *storage.Writer
	settings *storage.Settings
	scans    *scanner.Manager
	source   *capture.Source
	prober   *dnscache.Prober

	httpServer *http.Server
}

// NewServer wires the API.
func NewServer(port int, queries *storage.Queries, writer *storage.Writer,
	settings *storage.Settings, scans *scanner.Manager, source *capture.Source,
	prober *dnscache.Prober) *Server {

	s := &Server{
		queries:  queries,
		writer:   writer,
		settings: settings,
		scans:    scans,
		source:   source,
		prober:   prober,
	}

	router := mux.NewRouter()
	api := router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/endpoints/table", s.handleEndpointTable).Methods("GET")
	api.HandleFunc("/endpoint/{id}/details", s.handleEndpointDetails).Methods("GET")
	api.HandleFunc("/endpoint/{id}/communications", s.handleEndpointCommunications).Methods("GET")
	api.HandleFunc("/endpoint/classify", s.handleEndpointClassify).Methods("POST")
	api.HandleFunc("/endpoint/rename", s.handleEndpointRename).Methods("POST")
	api.HandleFunc("/endpoint/vendor", s.handleEndpointVendor).Methods("POST")
	api.HandleFunc("/endpoint/model", s.handleEndpointModel).Methods("POST")
	api.HandleFunc("/endpoint/merge", s.handleEndpointMerge).Methods("POST")
	api.HandleFunc("/endpoint/delete", s.handleEndpointDelete).Methods("POST")
	api.HandleFunc("/endpoint/probe", s.handleEndpointProbe).Methods("POST")

	api.HandleFunc("/dns-entries", s.handleDNSEntries).Methods("GET")
	api.HandleFunc("/internet", s.handleInternet).Methods("GET")
	api.HandleFunc("/protocols", s.handleProtocols).Methods("GET")
	api.HandleFunc("/protocol/{protocol}/endpoints", s.handleProtocolEndpoints).Methods("GET")

	api.HandleFunc("/scan/start", s.handleScanStart).Methods("POST")
	api.HandleFunc("/scan/stop", s.handleScanStop).Methods("POST")
	api.HandleFunc("/scan/status", s.handleScanStatus).Methods("GET")
	api.HandleFunc("/scan/capabilities", s.handleScanCapabilities).Methods("GET")
	api.HandleFunc("/scan/config", s.handleScanConfigGet).Methods("GET")
	api.HandleFunc("/scan/config", s.handleScanConfigSet).Methods("POST")

	api.HandleFunc("/settings", s.handleSettingsGet).Methods("GET")
	api.HandleFunc("/settings", s.handleSettingsSet).Methods("POST")

	api.HandleFunc("/capture/status", s.handleCaptureStatus).Methods("GET")
	api.HandleFunc("/capture/pause", s.handleCapturePause).Methods("POST")

	api.HandleFunc("/ping", s.handlePing).Methods("POST")
	api.HandleFunc("/probe-hostname", s.handleProbeHostname).Methods("POST")
	api.HandleFunc("/probe-netbios", s.handleProbeNetBIOS).Methods("POST")
	api.HandleFunc("/port-scan", s.handlePortScan).Methods("POST")

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf("127.0.0.1:%d", port),
		Handler:           http.TimeoutHandler(router, routeTimeout, `{"success":false,"message":"request timed out"}`),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Router exposes the handler for tests.
func (s *Server) Router() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe blocks serving the API.
func (s *Server) ListenAndServe() error {
	log.Info().Str("addr", s.httpServer.Addr).Msg("web interface listening")
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// envelope is the uniform failure shape; successes return their payload
// directly.
type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Debug().Err(err).Msg("response encoding failed")
	}
}

func writeError(w http.ResponseWriter, status int, format string, args ...any) {
	writeJSON(w, status, envelope{Success: false, Message: fmt.Sprintf(format, args...)})
}

func writeOK(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, envelope{Success: true})
}
