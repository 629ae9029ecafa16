// Package identity maps raw observations to stable endpoint ids. All
// functions here run inside the storage writer's transactions; the package
// never opens its own connections.
package identity

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/InfraSecConsult/netwatch-go/internal/classify"
	"github.com/InfraSecConsult/netwatch-go/lib/helper"
	"github.com/InfraSecConsult/netwatch-go/lib/model"
)

// ErrNotEndpoint marks an observation that must not create or match an
// endpoint: multicast/broadcast addresses, IPv6 privacy addresses, or empty
// observations.
var ErrNotEndpoint = errors.New("observation does not identify an endpoint")

// ErrInternetDestination marks an observation of a non-local address; the
// caller records it in the internet_destinations table instead.
var ErrInternetDestination = errors.New("observation is an internet destination")

// DefaultActiveThreshold guards DHCP address reuse: an IP is considered
// still bound to its previous MAC for this long after the last sighting.
const DefaultActiveThreshold = 120 * time.Second

// Resolver resolves observations against the endpoint tables. It keeps the
// mDNS service announcements per address in memory for the classifier.
type Resolver struct {
	// ActiveThreshold returns the current DHCP-reuse guard window.
	ActiveThreshold func() time.Duration

	mu       sync.Mutex
	services map[string][]string // ip -> advertised mDNS service types
}

// NewResolver creates a resolver with the default guard window.
func NewResolver() *Resolver {
	return &Resolver{
		ActiveThreshold: func() time.Duration { return DefaultActiveThreshold },
		services:        make(map[string][]string),
	}
}

// RecordService remembers a service announcement for classification.
func (r *Resolver) RecordService(ip, serviceType string) {
	if ip == "" || serviceType == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.services[ip] {
		if s == serviceType {
			return
		}
	}
	r.services[ip] = append(r.services[ip], serviceType)
}

// ServicesFor returns the known service types for a set of addresses.
func (r *Resolver) ServicesFor(ips []string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	set := model.NewSet()
	for _, ip := range ips {
		for _, s := range r.services[ip] {
			set.Add(s)
		}
	}
	return set.List()
}

// Resolve maps one observation to an endpoint id, creating the endpoint when
// nothing matches. The bool result reports whether a new endpoint was
// created. Runs inside the writer transaction.
func (r *Resolver) Resolve(tx *sql.Tx, obs model.Observation) (int64, bool, error) {
	mac := strings.ToLower(obs.MAC)
	if model.IsZeroMAC(mac) {
		mac = ""
	}

	// IPv6 privacy addresses churn; without an EUI-64-derived MAC they can
	// never be matched back to a device.
	if obs.IP != "" && model.IsIPv6LinkLocal(obs.IP) && model.MACFromEUI64(obs.IP) == "" {
		return 0, false, ErrNotEndpoint
	}

	if mac == "" && obs.IP != "" {
		mac = model.MACFromEUI64(obs.IP)
	}

	if mac != "" && model.IsBroadcastOrMulticastMAC(mac) {
		return 0, false, ErrNotEndpoint
	}
	if obs.IP != "" && model.IsMulticastOrBroadcastIP(obs.IP) {
		return 0, false, ErrNotEndpoint
	}

	// Randomized MACs are stored for the record but never used for matching.
	lookupMAC := mac
	if mac != "" && model.IsLocallyAdministeredMAC(mac) {
		lookupMAC = ""
	}

	if lookupMAC == "" && obs.IP == "" && obs.Hostname == "" {
		return 0, false, ErrNotEndpoint
	}

	if obs.IP != "" && !helper.IsPrivateIP(obs.IP) {
		return 0, false, ErrInternetDestination
	}

	hostname := normalizeHostname(obs.Hostname)
	now := obs.Timestamp
	if now.IsZero() {
		now = time.Now()
	}

	endpointID, found, err := r.findExisting(tx, lookupMAC, hostname, obs.IP, mac, now)
	if err != nil {
		return 0, false, err
	}

	created := false
	if !found {
		endpointID, err = r.createEndpoint(tx, mac, obs.IP, hostname, now)
		if err != nil {
			return 0, false, err
		}
		created = true
	} else {
		if err := r.touchEndpoint(tx, endpointID, now); err != nil {
			return 0, false, err
		}
		if err := r.insertAttribute(tx, endpointID, mac, obs.IP, hostname, now); err != nil {
			return 0, false, err
		}
	}

	// MAC equality is authoritative: any other endpoint sharing this MAC is
	// the same device and gets merged.
	if lookupMAC != "" {
		if merged, err := r.mergeByMAC(tx, lookupMAC); err == nil && merged != 0 {
			endpointID = merged
		}
	}

	if hostname != "" {
		if err := r.UpgradeName(tx, endpointID, hostname); err != nil {
			return 0, false, err
		}
	} else if mac != "" {
		r.trySetNameFromModel(tx, endpointID, mac)
	}

	return endpointID, created, nil
}

// findExisting applies the resolution order: MAC, then hostname, then IP
// behind the DHCP-reuse guard.
func (r *Resolver) findExisting(tx *sql.Tx, lookupMAC, hostname, ip, obsMAC string, now time.Time) (int64, bool, error) {
	if lookupMAC != "" {
		id, found, err := r.matchIDs(tx,
			`SELECT DISTINCT endpoint_id FROM endpoint_attributes WHERE mac = ? ORDER BY endpoint_id`, lookupMAC)
		if err != nil || found {
			return id, found, err
		}
	}

	if hostname != "" {
		id, found, err := r.matchIDs(tx,
			`SELECT DISTINCT ea.endpoint_id FROM endpoint_attributes ea
			 WHERE LOWER(ea.hostname) = LOWER(?) AND ea.hostname != ''
			 UNION
			 SELECT e.id FROM endpoints e WHERE LOWER(e.name) = LOWER(?)
			 ORDER BY 1`, hostname, hostname)
		if err != nil || found {
			return id, found, err
		}
	}

	if ip != "" {
		// DHCP-reuse guard: an IP recently bound to a different MAC is not
		// this device. An IP-only match must never merge across MACs.
		if obsMAC != "" {
			threshold := now.Add(-r.ActiveThreshold()).Unix()
			var conflicts int64
			err := tx.QueryRow(
				`SELECT COUNT(*) FROM endpoint_attributes ea
				 JOIN endpoints e ON e.id = ea.endpoint_id
				 WHERE ea.ip = ? AND ea.mac != '' AND ea.mac != ? AND e.last_seen_at >= ?`,
				ip, obsMAC, threshold).Scan(&conflicts)
			if err != nil {
				return 0, false, err
			}
			if conflicts > 0 {
				return 0, false, nil
			}
		}
		return r.matchIDs(tx,
			`SELECT DISTINCT endpoint_id FROM endpoint_attributes WHERE ip = ? ORDER BY endpoint_id`, ip)
	}

	return 0, false, nil
}

// matchIDs runs a candidate query and picks the lowest id; a tie across
// endpoints is resolved deterministically and logged.
func (r *Resolver) matchIDs(tx *sql.Tx, query string, args ...any) (int64, bool, error) {
	rows, err := tx.Query(query, args...)
	if err != nil {
		return 0, false, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return 0, false, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return 0, false, err
	}
	if len(ids) == 0 {
		return 0, false, nil
	}
	if len(ids) > 1 {
		log.Debug().Int64("chosen", ids[0]).Int("candidates", len(ids)).
			Msg("ambiguous identity match, picking lowest id")
	}
	return ids[0], true, nil
}

func (r *Resolver) createEndpoint(tx *sql.Tx, mac, ip, hostname string, now time.Time) (int64, error) {
	name := bestName(hostname, ip, mac)
	res, err := tx.Exec(
		`INSERT INTO endpoints (created_at, name, first_seen_at, last_seen_at) VALUES (?, ?, ?, ?)`,
		now.Unix(), name, now.Unix(), now.Unix())
	if err != nil {
		return 0, fmt.Errorf("inserting endpoint: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	if err := r.insertAttribute(tx, id, mac, ip, hostname, now); err != nil {
		return 0, err
	}
	return id, nil
}

func (r *Resolver) touchEndpoint(tx *sql.Tx, id int64, now time.Time) error {
	_, err := tx.Exec(`UPDATE endpoints SET last_seen_at = ? WHERE id = ? AND last_seen_at < ?`,
		now.Unix(), id, now.Unix())
	return err
}

// insertAttribute records the observation row; the UNIQUE constraint on
// (endpoint_id, ip, hostname) makes replays idempotent.
func (r *Resolver) insertAttribute(tx *sql.Tx, endpointID int64, mac, ip, hostname string, now time.Time) error {
	if mac == "" && ip == "" && hostname == "" {
		return nil
	}
	// Nothing useful beyond what an existing row already says.
	if mac == "" && hostname == "" {
		var n int64
		if err := tx.QueryRow(
			`SELECT COUNT(*) FROM endpoint_attributes WHERE endpoint_id = ? AND ip = ?`,
			endpointID, ip).Scan(&n); err != nil {
			return err
		}
		if n > 0 {
			return nil
		}
	}
	_, err := tx.Exec(
		`INSERT OR IGNORE INTO endpoint_attributes (created_at, endpoint_id, mac, ip, hostname)
		 VALUES (?, ?, ?, ?, ?)`,
		now.Unix(), endpointID, mac, ip, hostname)
	return err
}

// bestName picks the display identifier for a fresh endpoint:
// hostname > IPv4 > IPv6 > MAC.
func bestName(hostname, ip, mac string) string {
	if hostname != "" {
		return hostname
	}
	if ip != "" {
		return ip
	}
	return mac
}

func normalizeHostname(hostname string) string {
	if hostname == "" {
		return ""
	}
	return strings.ToLower(model.StripLocalSuffix(hostname))
}

// ApplyBinding attaches a freshly learned hostname to every endpoint
// carrying the bound address and upgrades their display names. Bindings for
// public addresses carry no endpoint identity and are ignored here.
func (r *Resolver) ApplyBinding(tx *sql.Tx, binding model.NameBinding) error {
	if !helper.IsPrivateIP(binding.IP) {
		return nil
	}
	hostname := normalizeHostname(binding.Hostname)
	if hostname == "" {
		return nil
	}

	rows, err := tx.Query(
		`SELECT DISTINCT endpoint_id FROM endpoint_attributes WHERE ip = ?`, binding.IP)
	if err != nil {
		return err
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	ts := binding.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	for _, id := range ids {
		if err := r.insertAttribute(tx, id, "", binding.IP, hostname, ts); err != nil {
			return err
		}
		if err := r.UpgradeName(tx, id, hostname); err != nil {
			return err
		}
	}
	return nil
}

// Reclassify recomputes auto_device_type for an endpoint from everything
// known about it. Runs after every identity-affecting update because the
// classifier's inputs arrive late.
func (r *Resolver) Reclassify(tx *sql.Tx, endpointID int64) error {
	var name, manualType, ssdpModel sql.NullString
	err := tx.QueryRow(
		`SELECT name, manual_device_type, ssdp_model FROM endpoints WHERE id = ?`,
		endpointID).Scan(&name, &manualType, &ssdpModel)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return err
	}

	macs, ips, hostnames, err := r.attributeSets(tx, endpointID)
	if err != nil {
		return err
	}

	hostname := name.String
	for _, h := range hostnames {
		if model.IsValidDisplayName(h) {
			hostname = h
			break
		}
	}

	ports, err := r.openPorts(tx, endpointID)
	if err != nil {
		return err
	}

	deviceType := classify.Classify(classify.Input{
		Hostname: hostname,
		Services: r.ServicesFor(ips),
		Model:    ssdpModel.String,
		MACs:     macs,
		IPs:      ips,
		Ports:    ports,
	})

	vendor := ""
	for _, mac := range macs {
		if vendor = classify.VendorForMAC(mac); vendor != "" {
			break
		}
	}

	_, err = tx.Exec(
		`UPDATE endpoints SET auto_device_type = ?, device_vendor = ? WHERE id = ?`,
		deviceType, vendor, endpointID)
	return err
}

func (r *Resolver) attributeSets(tx *sql.Tx, endpointID int64) (macs, ips, hostnames []string, err error) {
	rows, err := tx.Query(
		`SELECT mac, ip, hostname FROM endpoint_attributes WHERE endpoint_id = ?`, endpointID)
	if err != nil {
		return nil, nil, nil, err
	}
	defer rows.Close()

	macSet, ipSet, hostSet := model.NewSet(), model.NewSet(), model.NewSet()
	for rows.Next() {
		var mac, ip, hostname string
		if err := rows.Scan(&mac, &ip, &hostname); err != nil {
			return nil, nil, nil, err
		}
		macSet.Add(mac)
		ipSet.Add(ip)
		hostSet.Add(hostname)
	}
	return macSet.List(), ipSet.List(), hostSet.List(), rows.Err()
}

func (r *Resolver) openPorts(tx *sql.Tx, endpointID int64) ([]int, error) {
	rows, err := tx.Query(
		`SELECT DISTINCT open_port FROM scan_results WHERE endpoint_id = ? AND open_port > 0`, endpointID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ports []int
	for rows.Next() {
		var port int
		if err := rows.Scan(&port); err != nil {
			return nil, err
		}
		ports = append(ports, port)
	}
	return ports, rows.Err()
}
