package storage

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/InfraSecConsult/netwatch-go/lib/model"
)

// Queries is the read-only access layer for the HTTP API. It only ever runs
// SELECTs against the pooled read connections.
type Queries struct {
	db       *sql.DB
	settings *Settings
}

// NewQueries wraps the store's read pool.
func NewQueries(store *Store, settings *Settings) *Queries {
	return &Queries{db: store.ReadDB(), settings: settings}
}

// TableFilter narrows the endpoint table.
type TableFilter struct {
	Window     time.Duration
	DeviceType string
	Protocol   string
	Port       int
	Vendor     string
	Search     string
	Limit      int
	Offset     int
}

// TableRow is one endpoint list entry with aggregated traffic.
type TableRow struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	DeviceType  string    `json:"device_type"`
	Vendor      string    `json:"vendor"`
	Model       string    `json:"model"`
	PacketCount int64     `json:"packet_count"`
	Bytes       int64     `json:"bytes"`
	FirstSeenAt time.Time `json:"first_seen_at"`
	LastSeenAt  time.Time `json:"last_seen_at"`
	Online      bool      `json:"online"`
}

// EndpointTable lists endpoints seen inside the window with aggregated
// bytes and packet counts. Pagination is mandatory.
func (q *Queries) EndpointTable(f TableFilter) ([]TableRow, error) {
	if f.Limit <= 0 || f.Limit > 1000 {
		f.Limit = 100
	}
	since := time.Now().Add(-f.Window).Unix()
	if f.Window <= 0 {
		since = 0
	}

	var conditions []string
	var args []any

	query := `
		SELECT e.id,
		       COALESCE(NULLIF(e.custom_name, ''), COALESCE(e.name, '')) AS display_name,
		       COALESCE(NULLIF(e.manual_device_type, ''), COALESCE(NULLIF(e.auto_device_type, ''), 'other')) AS device_type,
		       COALESCE(NULLIF(e.custom_vendor, ''), COALESCE(e.device_vendor, '')) AS vendor,
		       COALESCE(NULLIF(e.custom_model, ''), COALESCE(e.ssdp_model, '')) AS model,
		       COALESCE(SUM(c.packet_count), 0),
		       COALESCE(SUM(c.bytes), 0),
		       e.first_seen_at, e.last_seen_at
		FROM endpoints e
		LEFT JOIN communications c
		       ON (c.src_endpoint_id = e.id OR c.dst_endpoint_id = e.id)
		      AND c.last_seen_at >= ?`
	args = append(args, since)

	if f.Protocol != "" {
		conditions = append(conditions, `EXISTS (
			SELECT 1 FROM communications cp
			WHERE (cp.src_endpoint_id = e.id OR cp.dst_endpoint_id = e.id)
			  AND cp.protocol = ? AND cp.last_seen_at >= ?)`)
		args = append(args, f.Protocol, since)
	}
	if f.Port > 0 {
		conditions = append(conditions, `EXISTS (
			SELECT 1 FROM communications cp
			WHERE (cp.src_endpoint_id = e.id OR cp.dst_endpoint_id = e.id)
			  AND (cp.src_port = ? OR cp.dst_port = ?) AND cp.last_seen_at >= ?)`)
		args = append(args, f.Port, f.Port, since)
	}
	if f.DeviceType != "" {
		conditions = append(conditions,
			`COALESCE(NULLIF(e.manual_device_type, ''), COALESCE(NULLIF(e.auto_device_type, ''), 'other')) = ?`)
		args = append(args, f.DeviceType)
	}
	if f.Vendor != "" {
		conditions = append(conditions,
			`LOWER(COALESCE(NULLIF(e.custom_vendor, ''), COALESCE(e.device_vendor, ''))) = LOWER(?)`)
		args = append(args, f.Vendor)
	}
	if f.Search != "" {
		needle := "%" + strings.ToLower(f.Search) + "%"
		conditions = append(conditions, `(
			LOWER(COALESCE(e.name, '')) LIKE ?1
			OR LOWER(COALESCE(e.custom_name, '')) LIKE ?1
			OR LOWER(COALESCE(e.device_vendor, '')) LIKE ?1
			OR LOWER(COALESCE(e.ssdp_model, '')) LIKE ?1
			OR EXISTS (SELECT 1 FROM endpoint_attributes sa
			           WHERE sa.endpoint_id = e.id
			             AND (sa.ip LIKE ?1 OR LOWER(sa.mac) LIKE ?1 OR LOWER(sa.hostname) LIKE ?1))
		)`)
		// Positional ?1-style placeholders cannot mix with ?, rebuild below.
		args = append(args, needle)
	}

	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += ` GROUP BY e.id ORDER BY e.last_seen_at DESC LIMIT ? OFFSET ?`
	args = append(args, f.Limit, f.Offset)

	query, args = expandSearchPlaceholders(query, args)

	rows, err := q.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	threshold := time.Now().
		Add(-time.Duration(q.settings.GetInt(SettingActiveThreshold)) * time.Second).Unix()

	var out []TableRow
	for rows.Next() {
		var row TableRow
		var firstSeen, lastSeen int64
		if err := rows.Scan(&row.ID, &row.Name, &row.DeviceType, &row.Vendor, &row.Model,
			&row.PacketCount, &row.Bytes, &firstSeen, &lastSeen); err != nil {
			return nil, err
		}
		row.FirstSeenAt = time.Unix(firstSeen, 0)
		row.LastSeenAt = time.Unix(lastSeen, 0)
		row.Online = lastSeen >= threshold
		out = append(out, row)
	}
	return out, rows.Err()
}

// expandSearchPlaceholders rewrites ?1 back-references into plain
// placeholders with duplicated arguments, keeping the SQL portable across
// the mixed placeholder styles used above.
func expandSearchPlaceholders(query string, args []any) (string, []any) {
	if !strings.Contains(query, "?1") {
		return query, args
	}
	// The ?1 placeholder always refers to the search needle, which is the
	// third argument from the end (before limit and offset).
	needle := args[len(args)-3]
	count := strings.Count(query, "?1")
	query = strings.Replace(query, "?1", "?", -1)

	expanded := make([]any, 0, len(args)+count-1)
	expanded = append(expanded, args[:len(args)-3]...)
	for i := 0; i < count; i++ {
		expanded = append(expanded, needle)
	}
	expanded = append(expanded, args[len(args)-2:]...)
	return query, expanded
}

// EndpointDetail is the full identity picture of one endpoint.
type EndpointDetail struct {
	Endpoint   model.Endpoint            `json:"endpoint"`
	Attributes []model.EndpointAttribute `json:"attributes"`
	MACs       []string                  `json:"macs"`
	IPs        []string                  `json:"ips"`
	Hostnames  []string                  `json:"hostnames"`
	Protocols  []string                  `json:"protocols"`
	Ports      []int                     `json:"ports"`
	BytesIn    int64                     `json:"bytes_in"`
	BytesOut   int64                     `json:"bytes_out"`
	Online     bool                      `json:"online"`
}

// EndpointByID loads one endpoint row.
func (q *Queries) EndpointByID(id int64) (*model.Endpoint, error) {
	row := q.db.QueryRow(
		`SELECT id, created_at, COALESCE(name, ''), COALESCE(custom_name, ''),
		        COALESCE(auto_device_type, ''), COALESCE(manual_device_type, ''),
		        COALESCE(device_vendor, ''), COALESCE(custom_vendor, ''),
		        COALESCE(ssdp_model, ''), COALESCE(ssdp_friendly_name, ''),
		        COALESCE(custom_model, ''), COALESCE(netbios_name, ''),
		        first_seen_at, last_seen_at
		 FROM endpoints WHERE id = ?`, id)

	var e model.Endpoint
	var createdAt, firstSeen, lastSeen int64
	err := row.Scan(&e.ID, &createdAt, &e.Name, &e.CustomName,
		&e.AutoDeviceType, &e.ManualDeviceType,
		&e.Vendor, &e.CustomVendor,
		&e.SSDPModel, &e.SSDPFriendlyName,
		&e.CustomModel, &e.NetBIOSName,
		&firstSeen, &lastSeen)
	if err != nil {
		return nil, err
	}
	e.CreatedAt = time.Unix(createdAt, 0)
	e.FirstSeenAt = time.Unix(firstSeen, 0)
	e.LastSeenAt = time.Unix(lastSeen, 0)
	return &e, nil
}

// EndpointDetails aggregates attributes, protocols, ports, and traffic for
// one endpoint inside the window.
func (q *Queries) EndpointDetails(id int64, window time.Duration) (*EndpointDetail, error) {
	endpoint, err := q.EndpointByID(id)
	if err != nil {
		return nil, err
	}

	detail := &EndpointDetail{Endpoint: *endpoint}
	threshold := time.Now().
		Add(-time.Duration(q.settings.GetInt(SettingActiveThreshold)) * time.Second)
	detail.Online = endpoint.LastSeenAt.After(threshold)

	rows, err := q.db.Query(
		`SELECT id, created_at, endpoint_id, mac, ip, hostname
		 FROM endpoint_attributes WHERE endpoint_id = ? ORDER BY created_at`, id)
	if err != nil {
		return nil, err
	}
	macs, ips, hostnames := model.NewSet(), model.NewSet(), model.NewSet()
	for rows.Next() {
		var a model.EndpointAttribute
		var createdAt int64
		if err := rows.Scan(&a.ID, &createdAt, &a.EndpointID, &a.MAC, &a.IP, &a.Hostname); err != nil {
			rows.Close()
			return nil, err
		}
		a.CreatedAt = time.Unix(createdAt, 0)
		detail.Attributes = append(detail.Attributes, a)
		macs.Add(a.MAC)
		ips.Add(a.IP)
		hostnames.Add(a.Hostname)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	detail.MACs = macs.List()
	detail.IPs = ips.List()
	detail.Hostnames = hostnames.List()

	since := time.Now().Add(-window).Unix()
	if window <= 0 {
		since = 0
	}

	commRows, err := q.db.Query(
		`SELECT protocol, src_port, dst_port, bytes,
		        src_endpoint_id IS NOT NULL AND src_endpoint_id = ?1 AS outbound
		 FROM communications
		 WHERE (src_endpoint_id = ?1 OR dst_endpoint_id = ?1) AND last_seen_at >= ?2`,
		id, since)
	if err != nil {
		return nil, err
	}
	defer commRows.Close()

	protocols := model.NewSet()
	portSet := make(map[int]struct{})
	for commRows.Next() {
		var protocol string
		var srcPort, dstPort int
		var bytes int64
		var outbound bool
		if err := commRows.Scan(&protocol, &srcPort, &dstPort, &bytes, &outbound); err != nil {
			return nil, err
		}
		protocols.Add(protocol)
		if dstPort > 0 {
			portSet[dstPort] = struct{}{}
		}
		if outbound {
			detail.BytesOut += bytes
		} else {
			detail.BytesIn += bytes
		}
	}
	if err := commRows.Err(); err != nil {
		return nil, err
	}
	detail.Protocols = protocols.List()
	for port := range portSet {
		detail.Ports = append(detail.Ports, port)
	}

	scanPorts, err := q.openPortsFor(id)
	if err != nil {
		return nil, err
	}
	for _, port := range scanPorts {
		if _, ok := portSet[port]; !ok {
			detail.Ports = append(detail.Ports, port)
		}
	}

	return detail, nil
}

func (q *Queries) openPortsFor(id int64) ([]int, error) {
	rows, err := q.db.Query(
		`SELECT DISTINCT open_port FROM scan_results WHERE endpoint_id = ? AND open_port > 0`, id)
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

// CommunicationsFor lists an endpoint's conversations inside the window.
func (q *Queries) CommunicationsFor(id int64, window time.Duration, limit, offset int) ([]model.Communication, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	since := time.Now().Add(-window).Unix()
	if window <= 0 {
		since = 0
	}

	rows, err := q.db.Query(
		`SELECT id, src_endpoint_id, dst_endpoint_id, protocol, src_port, dst_port,
		        packet_count, bytes, first_seen_at, last_seen_at
		 FROM communications
		 WHERE (src_endpoint_id = ?1 OR dst_endpoint_id = ?1) AND last_seen_at >= ?2
		 ORDER BY last_seen_at DESC LIMIT ?3 OFFSET ?4`,
		id, since, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanCommunications(rows)
}

func scanCommunications(rows *sql.Rows) ([]model.Communication, error) {
	var out []model.Communication
	for rows.Next() {
		var c model.Communication
		var src, dst sql.NullInt64
		var firstSeen, lastSeen int64
		if err := rows.Scan(&c.ID, &src, &dst, &c.Protocol, &c.SrcPort, &c.DstPort,
			&c.PacketCount, &c.Bytes, &firstSeen, &lastSeen); err != nil {
			return nil, err
		}
		if src.Valid {
			c.SrcEndpointID = &src.Int64
		}
		if dst.Valid {
			c.DstEndpointID = &dst.Int64
		}
		c.FirstSeenAt = time.Unix(firstSeen, 0)
		c.LastSeenAt = time.Unix(lastSeen, 0)
		out = append(out, c)
	}
	return out, rows.Err()
}

// ProtocolCount is one protocol with its conversation count in the window.
type ProtocolCount struct {
	Protocol string `json:"protocol"`
	Count    int64  `json:"count"`
}

// Protocols lists the protocols observed inside the window.
func (q *Queries) Protocols(window time.Duration) ([]ProtocolCount, error) {
	since := time.Now().Add(-window).Unix()
	if window <= 0 {
		since = 0
	}
	rows, err := q.db.Query(
		`SELECT protocol, COUNT(*) FROM communications
		 WHERE last_seen_at >= ? GROUP BY protocol ORDER BY COUNT(*) DESC`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ProtocolCount
	for rows.Next() {
		var pc ProtocolCount
		if err := rows.Scan(&pc.Protocol, &pc.Count); err != nil {
			return nil, err
		}
		out = append(out, pc)
	}
	return out, rows.Err()
}

// ProtocolEndpoints lists the endpoints that spoke a protocol in the window.
func (q *Queries) ProtocolEndpoints(protocol string, window time.Duration, limit, offset int) ([]TableRow, error) {
	return q.EndpointTable(TableFilter{
		Window: window, Protocol: protocol, Limit: limit, Offset: offset,
	})
}

// InternetDestinations lists external hosts, newest first, filtered to rows
// whose hostname looks like a real DNS name rather than an address literal.
func (q *Queries) InternetDestinations(limit, offset int) ([]model.InternetDestination, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	rows, err := q.db.Query(
		`SELECT id, hostname, first_seen_at, last_seen_at, packet_count, bytes_in, bytes_out
		 FROM internet_destinations
		 WHERE hostname NOT GLOB '[0-9]*.[0-9]*.[0-9]*.[0-9]*'
		   AND hostname NOT LIKE '%:%'
		   AND hostname NOT LIKE '%.local'
		   AND hostname LIKE '%.%'
		 ORDER BY last_seen_at DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.InternetDestination
	for rows.Next() {
		var d model.InternetDestination
		var firstSeen, lastSeen int64
		if err := rows.Scan(&d.ID, &d.Hostname, &firstSeen, &lastSeen,
			&d.PacketCount, &d.BytesIn, &d.BytesOut); err != nil {
			return nil, err
		}
		d.FirstSeenAt = time.Unix(firstSeen, 0)
		d.LastSeenAt = time.Unix(lastSeen, 0)
		out = append(out, d)
	}
	return out, rows.Err()
}

// ResolveIdentifier maps a human identifier (name, hostname, IP, or MAC) to
// endpoint ids. Exact display name wins, then MAC, then the most recently
// seen endpoint for the IP, then hostname. The recency preference keeps
// stale DHCP rebindings from misattributing queries.
func (q *Queries) ResolveIdentifier(identifier string) ([]int64, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return nil, fmt.Errorf("empty identifier")
	}

	queries := []string{
		`SELECT id FROM endpoints
		 WHERE LOWER(COALESCE(custom_name, '')) = LOWER(?1) OR LOWER(COALESCE(name, '')) = LOWER(?1)
		 ORDER BY last_seen_at DESC`,
		`SELECT DISTINCT endpoint_id FROM endpoint_attributes WHERE LOWER(mac) = LOWER(?1) AND mac != ''`,
		`SELECT ea.endpoint_id FROM endpoint_attributes ea
		 JOIN endpoints e ON e.id = ea.endpoint_id
		 WHERE ea.ip = ?1 AND ea.ip != ''
		 GROUP BY ea.endpoint_id ORDER BY MAX(e.last_seen_at) DESC`,
		`SELECT DISTINCT endpoint_id FROM endpoint_attributes
		 WHERE LOWER(hostname) = LOWER(?1) AND hostname != ''`,
	}

	for _, query := range queries {
		ids, err := q.idList(query, identifier)
		if err != nil {
			return nil, err
		}
		if len(ids) > 0 {
			return ids, nil
		}
	}
	return nil, nil
}

func (q *Queries) idList(query string, args ...any) ([]int64, error) {
	rows, err := q.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
