package web

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/InfraSecConsult/netwatch-go/internal/capture"
	"github.com/InfraSecConsult/netwatch-go/internal/dnscache"
	"github.com/InfraSecConsult/netwatch-go/internal/identity"
	"github.com/InfraSecConsult/netwatch-go/internal/scanner"
	"github.com/InfraSecConsult/netwatch-go/internal/storage"
	"github.com/InfraSecConsult/netwatch-go/lib/model"
)

type testEnv struct {
	server *Server
	writer *storage.Writer
}

func newTestServer(t *testing.T) *testEnv {
	t.Helper()
	store, err := storage.Open(":memory:")
	require.NoError(t, err)

	settings, err := storage.LoadSettings(store.ReadDB())
	require.NoError(t, err)

	cache := dnscache.New()
	writer := storage.NewWriter(store, identity.NewResolver(), cache, settings)
	writer.Run()
	t.Cleanup(func() {
		writer.Stop()
		store.Close()
	})

	server := NewServer(0,
		storage.NewQueries(store, settings),
		writer,
		settings,
		scanner.NewManager(writer),
		capture.NewSource(16),
		dnscache.NewProber(cache),
	)
	return &testEnv{server: server, writer: writer}
}

func (e *testEnv) request(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	e.server.Router().ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) seedEndpoint(t *testing.T, mac, ip, hostname string) {
	t.Helper()
	e.writer.EnqueueIdentity(model.Observation{MAC: mac, IP: ip, Hostname: hostname, Timestamp: time.Now()})
	// Flush the async queue.
	require.NoError(t, e.writer.ApplySetting(storage.SettingRetentionDays, "7"))
}

func TestEndpointTableEmpty(t *testing.T) {
	env := newTestServer(t)
	rec := env.request(t, "GET", "/api/endpoints/table", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestEndpointTableAndDetails(t *testing.T) {
	env := newTestServer(t)
	env.seedEndpoint(t, "00:11:22:33:44:55", "192.168.1.10", "mikespc.local")

	rec := env.request(t, "GET", "/api/endpoints/table?scan_interval=3600", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var rows []storage.TableRow
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, "mikespc", rows[0].Name)

	rec = env.request(t, "GET", fmt.Sprintf("/api/endpoint/%d/details", rows[0].ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var detail storage.EndpointDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &detail))
	assert.Contains(t, detail.IPs, "192.168.1.10")
	assert.Contains(t, detail.MACs, "00:11:22:33:44:55")
}

func TestEndpointDetailsByIdentifier(t *testing.T) {
	env := newTestServer(t)
	env.seedEndpoint(t, "00:11:22:33:44:56", "192.168.1.11", "den-pc.local")

	rec := env.request(t, "GET", "/api/endpoint/den-pc/details", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.request(t, "GET", "/api/endpoint/192.168.1.11/details", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.request(t, "GET", "/api/endpoint/unknown-box/details", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), `"success":false`)
}

func TestEndpointRenameAndClassify(t *testing.T) {
	env := newTestServer(t)
	env.seedEndpoint(t, "00:11:22:33:44:57", "192.168.1.12", "target.local")

	rec := env.request(t, "POST", "/api/endpoint/rename",
		map[string]string{"endpoint": "target", "value": "Front Desk"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.request(t, "POST", "/api/endpoint/classify",
		map[string]string{"endpoint": "Front Desk", "value": "gaming"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.request(t, "GET", "/api/endpoint/Front%20Desk/details", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var detail storage.EndpointDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &detail))
	assert.Equal(t, "Front Desk", detail.Endpoint.DisplayName())
	assert.Equal(t, "gaming", detail.Endpoint.DeviceType())

	// Back to automatic classification.
	rec = env.request(t, "POST", "/api/endpoint/classify",
		map[string]string{"endpoint": "Front Desk", "value": "auto"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.request(t, "GET", "/api/endpoint/Front%20Desk/details", nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &detail))
	assert.NotEqual(t, "gaming", detail.Endpoint.DeviceType())
}

func TestEndpointDelete(t *testing.T) {
	env := newTestServer(t)
	env.seedEndpoint(t, "00:11:22:33:44:58", "192.168.1.13", "gone.local")

	rec := env.request(t, "POST", "/api/endpoint/delete", map[string]string{"endpoint": "gone"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.request(t, "GET", "/api/endpoint/gone/details", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSettingsEndpoint(t *testing.T) {
	env := newTestServer(t)

	rec := env.request(t, "GET", "/api/settings", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got struct {
		Settings map[string]string `json:"settings"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "30", got.Settings[storage.SettingCleanupInterval])

	rec = env.request(t, "POST", "/api/settings",
		map[string]any{"settings": map[string]string{storage.SettingCleanupInterval: "60"}})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.request(t, "GET", "/api/settings", nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "60", got.Settings[storage.SettingCleanupInterval])
}

func TestScanStatusAndCapabilities(t *testing.T) {
	env := newTestServer(t)

	rec := env.request(t, "GET", "/api/scan/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var status scanner.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.False(t, status.Running)

	rec = env.request(t, "GET", "/api/scan/capabilities", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var caps scanner.Capabilities
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &caps))
	assert.True(t, caps.Port)
}

func TestScanConfigRoundTrip(t *testing.T) {
	env := newTestServer(t)

	rec := env.request(t, "POST", "/api/scan/config",
		map[string]any{"ports": []int{8080}, "timeout_ms": 700})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.request(t, "GET", "/api/scan/config", nil)
	var cfg scanner.Config
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cfg))
	assert.Equal(t, []int{8080}, cfg.Ports)
	assert.Equal(t, 700, cfg.TimeoutMS)
}

func TestCapturePauseToggle(t *testing.T) {
	env := newTestServer(t)

	rec := env.request(t, "GET", "/api/capture/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"paused":false`)

	rec = env.request(t, "POST", "/api/capture/pause", map[string]bool{"paused": true})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"paused":true`)

	// Toggle without an explicit value.
	rec = env.request(t, "POST", "/api/capture/pause", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"paused":false`)
}

func TestDNSEntriesEndpoint(t *testing.T) {
	env := newTestServer(t)

	rec := env.request(t, "GET", "/api/dns-entries", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())

	env.writer.EnqueueMDNS(model.MDNSEntry{
		Timestamp: time.Now(), IP: "192.168.1.30",
		Hostname: "my-printer", Services: []string{"_ipp._tcp"},
	})

	rec = env.request(t, "GET", "/api/dns-entries", nil)
	var entries []model.MDNSEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "my-printer", entries[0].Hostname)
}

func TestInvalidTargetRejected(t *testing.T) {
	env := newTestServer(t)
	rec := env.request(t, "POST", "/api/ping", map[string]string{"target": "not-an-ip"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), `"success":false`)
}
