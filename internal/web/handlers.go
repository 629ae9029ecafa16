package web

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/InfraSecConsult/netwatch-go/internal/scanner"
	"github.com/InfraSecConsult/netwatch-go/internal/storage"
	"github.com/InfraSecConsult/netwatch-go/lib/model"
)

func (s *Server) handleEndpointTable(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := storage.TableFilter{
		Window:     time.Duration(intParam(q.Get("scan_interval"), 3600)) * time.Second,
		DeviceType: q.Get("device_type"),
		Protocol:   q.Get("protocol"),
		Port:       intParam(q.Get("port"), 0),
		Vendor:     q.Get("vendor"),
		Search:     q.Get("search"),
		Limit:      intParam(q.Get("limit"), 100),
		Offset:     intParam(q.Get("offset"), 0),
	}

	rows, err := s.queries.EndpointTable(filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "listing endpoints: %v", err)
		return
	}
	if rows == nil {
		rows = []storage.TableRow{}
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleEndpointDetails(w http.ResponseWriter, r *http.Request) {
	id, ok := s.endpointID(w, mux.Vars(r)["id"])
	if !ok {
		return
	}
	window := time.Duration(intParam(r.URL.Query().Get("scan_interval"), 3600)) * time.Second

	detail, err := s.queries.EndpointDetails(id, window)
	if errors.Is(err, sql.ErrNoRows) {
		writeError(w, http.StatusNotFound, "endpoint %d not found", id)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "loading endpoint: %v", err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (s *Server) handleEndpointCommunications(w http.ResponseWriter, r *http.Request) {
	id, ok := s.endpointID(w, mux.Vars(r)["id"])
	if !ok {
		return
	}
	q := r.URL.Query()
	window := time.Duration(intParam(q.Get("scan_interval"), 3600)) * time.Second

	comms, err := s.queries.CommunicationsFor(id, window, intParam(q.Get("limit"), 100), intParam(q.Get("offset"), 0))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "listing communications: %v", err)
		return
	}
	if comms == nil {
		comms = []model.Communication{}
	}
	writeJSON(w, http.StatusOK, comms)
}

type identityRequest struct {
	Endpoint string `json:"endpoint"`
	Value    string `json:"value"`
}

// endpointMutation decodes the shared request shape and resolves the
// endpoint identifier.
func (s *Server) endpointMutation(w http.ResponseWriter, r *http.Request) (int64, string, bool) {
	var req identityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return 0, "", false
	}
	id, ok := s.endpointID(w, req.Endpoint)
	return id, req.Value, ok
}

func (s *Server) handleEndpointClassify(w http.ResponseWriter, r *http.Request) {
	id, value, ok := s.endpointMutation(w, r)
	if !ok {
		return
	}
	if value == "auto" {
		value = ""
	}
	s.finishMutation(w, s.writer.SetManualDeviceType(id, value))
}

func (s *Server) handleEndpointRename(w http.ResponseWriter, r *http.Request) {
	id, value, ok := s.endpointMutation(w, r)
	if !ok {
		return
	}
	s.finishMutation(w, s.writer.SetCustomName(id, value))
}

func (s *Server) handleEndpointVendor(w http.ResponseWriter, r *http.Request) {
	id, value, ok := s.endpointMutation(w, r)
	if !ok {
		return
	}
	s.finishMutation(w, s.writer.SetCustomVendor(id, value))
}

func (s *Server) handleEndpointModel(w http.ResponseWriter, r *http.Request) {
	id, value, ok := s.endpointMutation(w, r)
	if !ok {
		return
	}
	s.finishMutation(w, s.writer.SetCustomModel(id, value))
}

func (s *Server) handleEndpointMerge(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Survivor string `json:"survivor"`
		Loser    string `json:"loser"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	survivor, ok := s.endpointID(w, req.Survivor)
	if !ok {
		return
	}
	loser, ok := s.endpointID(w, req.Loser)
	if !ok {
		return
	}
	s.finishMutation(w, s.writer.MergeEndpointPair(survivor, loser))
}

func (s *Server) handleEndpointDelete(w http.ResponseWriter, r *http.Request) {
	var req identityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	id, ok := s.endpointID(w, req.Endpoint)
	if !ok {
		return
	}
	s.finishMutation(w, s.writer.DeleteEndpoint(id))
}

func (s *Server) handleEndpointProbe(w http.ResponseWriter, r *http.Request) {
	var req identityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	id, ok := s.endpointID(w, req.Endpoint)
	if !ok {
		return
	}
	detail, err := s.queries.EndpointDetails(id, 0)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "loading endpoint: %v", err)
		return
	}

	for _, ip := range detail.IPs {
		hostname := s.prober.Resolve(r.Context(), ip)
		if hostname == "" {
			continue
		}
		s.writer.EnqueueBinding(model.NameBinding{
			Hostname: hostname, IP: ip,
			Source: model.BindingSourceReverse, Timestamp: time.Now(),
		})
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "hostname": hostname})
		return
	}
	// A probe miss is an empty result, not an error.
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "hostname": ""})
}

func (s *Server) handleDNSEntries(w http.ResponseWriter, r *http.Request) {
	entries := s.writer.MDNSEntries()
	if entries == nil {
		entries = []model.MDNSEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleInternet(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	dests, err := s.queries.InternetDestinations(intParam(q.Get("limit"), 100), intParam(q.Get("offset"), 0))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "listing internet destinations: %v", err)
		return
	}
	if dests == nil {
		dests = []model.InternetDestination{}
	}
	writeJSON(w, http.StatusOK, dests)
}

func (s *Server) handleProtocols(w http.ResponseWriter, r *http.Request) {
	window := time.Duration(intParam(r.URL.Query().Get("scan_interval"), 3600)) * time.Second
	protocols, err := s.queries.Protocols(window)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "listing protocols: %v", err)
		return
	}
	if protocols == nil {
		protocols = []storage.ProtocolCount{}
	}
	writeJSON(w, http.StatusOK, protocols)
}

func (s *Server) handleProtocolEndpoints(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	window := time.Duration(intParam(q.Get("scan_interval"), 3600)) * time.Second
	rows, err := s.queries.ProtocolEndpoints(mux.Vars(r)["protocol"], window,
		intParam(q.Get("limit"), 100), intParam(q.Get("offset"), 0))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "listing endpoints: %v", err)
		return
	}
	if rows == nil {
		rows = []storage.TableRow{}
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleScanStart(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ScanTypes []string `json:"scan_types"`
	}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	if err := s.scans.Start(req.ScanTypes); err != nil {
		writeError(w, http.StatusConflict, "%v", err)
		return
	}
	writeOK(w)
}

func (s *Server) handleScanStop(w http.ResponseWriter, r *http.Request) {
	s.scans.Stop()
	writeOK(w)
}

func (s *Server) handleScanStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.scans.Status())
}

func (s *Server) handleScanCapabilities(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scanner.CheckCapabilities())
}

func (s *Server) handleScanConfigGet(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.scans.Config())
}

func (s *Server) handleScanConfigSet(w http.ResponseWriter, r *http.Request) {
	var cfg scanner.Config
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.scans.SetConfig(cfg)
	writeOK(w)
}

func (s *Server) handleSettingsGet(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"settings": s.settings.All()})
}

func (s *Server) handleSettingsSet(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Settings map[string]string `json:"settings"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	for key, value := range req.Settings {
		if err := s.writer.ApplySetting(key, value); err != nil {
			writeError(w, http.StatusInternalServerError, "applying %s: %v", key, err)
			return
		}
	}
	writeOK(w)
}

func (s *Server) handleCaptureStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"paused":   s.source.Paused(),
		"captured": s.source.CapturedCount(),
		"dropped":  s.source.DroppedCount(),
	})
}

func (s *Server) handleCapturePause(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Paused *bool `json:"paused"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Paused == nil {
		// No explicit value toggles.
		s.source.SetPaused(!s.source.Paused())
	} else {
		s.source.SetPaused(*req.Paused)
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "paused": s.source.Paused()})
}

type targetRequest struct {
	Target string `json:"target"`
}

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	target, ok := decodeTarget(w, r)
	if !ok {
		return
	}
	rtt, alive := scanner.Ping(r.Context(), target)
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true, "alive": alive, "rtt_ms": rtt.Milliseconds(),
	})
}

func (s *Server) handleProbeHostname(w http.ResponseWriter, r *http.Request) {
	target, ok := decodeTarget(w, r)
	if !ok {
		return
	}
	hostname := s.prober.Resolve(r.Context(), target)
	if hostname != "" {
		s.writer.EnqueueBinding(model.NameBinding{
			Hostname: hostname, IP: target,
			Source: model.BindingSourceReverse, Timestamp: time.Now(),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "hostname": hostname})
}

func (s *Server) handleProbeNetBIOS(w http.ResponseWriter, r *http.Request) {
	target, ok := decodeTarget(w, r)
	if !ok {
		return
	}
	rec, found := scanner.ProbeNetBIOS(r.Context(), target)
	if found {
		rec.CreatedAt = time.Now()
		s.writer.RecordScanRecord(rec)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true, "found": found, "hostname": rec.Hostname, "mac": rec.MAC,
	})
}

func (s *Server) handlePortScan(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Target string `json:"target"`
		Ports  []int  `json:"ports"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || net.ParseIP(req.Target) == nil {
		writeError(w, http.StatusBadRequest, "invalid target")
		return
	}
	ports := req.Ports
	if len(ports) == 0 {
		ports = scanner.DefaultPorts
	}

	var open []int
	dialer := &net.Dialer{Timeout: 2 * time.Second}
	for _, port := range ports {
		if r.Context().Err() != nil {
			break
		}
		conn, err := dialer.DialContext(r.Context(), "tcp", net.JoinHostPort(req.Target, strconv.Itoa(port)))
		if err != nil {
			continue
		}
		conn.Close()
		open = append(open, port)
	}
	if open == nil {
		open = []int{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "open_ports": open})
}

// endpointID resolves a numeric id or a human identifier (name, hostname,
// IP, MAC) to one endpoint id.
func (s *Server) endpointID(w http.ResponseWriter, identifier string) (int64, bool) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		writeError(w, http.StatusBadRequest, "missing endpoint identifier")
		return 0, false
	}
	if id, err := strconv.ParseInt(identifier, 10, 64); err == nil {
		return id, true
	}
	ids, err := s.queries.ResolveIdentifier(identifier)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "resolving %q: %v", identifier, err)
		return 0, false
	}
	if len(ids) == 0 {
		writeError(w, http.StatusNotFound, "no endpoint matches %q", identifier)
		return 0, false
	}
	return ids[0], true
}

func (s *Server) finishMutation(w http.ResponseWriter, err error) {
	if errors.Is(err, sql.ErrNoRows) {
		writeError(w, http.StatusNotFound, "endpoint not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "%v", err)
		return
	}
	writeOK(w)
}

func decodeTarget(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req targetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || net.ParseIP(req.Target) == nil {
		writeError(w, http.StatusBadRequest, "invalid target")
		return "", false
	}
	return req.Target, true
}

func intParam(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	if n, err := strconv.Atoi(raw); err == nil && n >= 0 {
		return n
	}
	return fallback
}
