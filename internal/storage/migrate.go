package storage

import (
	"database/sql"
)

// Migrate applies the schema. Migrations are forward-only and idempotent:
// tables are created if absent, later columns are added when missing.
func Migrate(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS endpoints (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			created_at INTEGER NOT NULL,
			name TEXT,
			custom_name TEXT,
			auto_device_type TEXT,
			manual_device_type TEXT,
			device_vendor TEXT,
			custom_vendor TEXT,
			ssdp_model TEXT,
			ssdp_friendly_name TEXT,
			custom_model TEXT,
			netbios_name TEXT,
			first_seen_at INTEGER NOT NULL,
			last_seen_at INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_endpoints_name ON endpoints (name);`,
		`CREATE INDEX IF NOT EXISTS idx_endpoints_name_lower ON endpoints (LOWER(name));`,
		`CREATE INDEX IF NOT EXISTS idx_endpoints_last_seen ON endpoints (last_seen_at);`,

		`CREATE TABLE IF NOT EXISTS endpoint_attributes (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			created_at INTEGER NOT NULL,
			endpoint_id INTEGER NOT NULL,
			mac TEXT NOT NULL DEFAULT '',
			ip TEXT NOT NULL DEFAULT '',
			hostname TEXT NOT NULL DEFAULT '',
			UNIQUE (endpoint_id, ip, hostname),
			FOREIGN KEY (endpoint_id) REFERENCES endpoints (id) ON DELETE CASCADE
		);`,
		`CREATE INDEX IF NOT EXISTS idx_endpoint_attributes_mac ON endpoint_attributes (mac);`,
		`CREATE INDEX IF NOT EXISTS idx_endpoint_attributes_ip ON endpoint_attributes (ip);`,
		`CREATE INDEX IF NOT EXISTS idx_endpoint_attributes_endpoint_id ON endpoint_attributes (endpoint_id);`,
		`CREATE INDEX IF NOT EXISTS idx_endpoint_attributes_hostname ON endpoint_attributes (hostname);`,

		`CREATE TABLE IF NOT EXISTS communications (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			src_endpoint_id INTEGER,
			dst_endpoint_id INTEGER,
			protocol TEXT NOT NULL,
			src_port INTEGER NOT NULL DEFAULT 0,
			dst_port INTEGER NOT NULL DEFAULT 0,
			packet_count INTEGER NOT NULL DEFAULT 0,
			bytes INTEGER NOT NULL DEFAULT 0,
			first_seen_at INTEGER NOT NULL,
			last_seen_at INTEGER NOT NULL,
			UNIQUE (src_endpoint_id, dst_endpoint_id, protocol, src_port, dst_port),
			FOREIGN KEY (src_endpoint_id) REFERENCES endpoints (id) ON DELETE SET NULL,
			FOREIGN KEY (dst_endpoint_id) REFERENCES endpoints (id) ON DELETE SET NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_communications_last_seen_src ON communications (last_seen_at, src_endpoint_id);`,
		`CREATE INDEX IF NOT EXISTS idx_communications_last_seen_dst ON communications (last_seen_at, dst_endpoint_id);`,

		`CREATE TABLE IF NOT EXISTS mdns_entries (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp INTEGER NOT NULL,
			ip TEXT NOT NULL,
			hostname TEXT,
			services TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_mdns_entries_timestamp ON mdns_entries (timestamp);`,

		`CREATE TABLE IF NOT EXISTS internet_destinations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			hostname TEXT NOT NULL UNIQUE,
			first_seen_at INTEGER NOT NULL,
			last_seen_at INTEGER NOT NULL,
			packet_count INTEGER NOT NULL DEFAULT 1,
			bytes_in INTEGER NOT NULL DEFAULT 0,
			bytes_out INTEGER NOT NULL DEFAULT 0
		);`,
		`CREATE INDEX IF NOT EXISTS idx_internet_destinations_last_seen ON internet_destinations (last_seen_at);`,

		`CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,

		`CREATE TABLE IF NOT EXISTS scan_results (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			endpoint_id INTEGER,
			scan_type TEXT NOT NULL,
			ip TEXT NOT NULL,
			mac TEXT NOT NULL DEFAULT '',
			hostname TEXT NOT NULL DEFAULT '',
			open_port INTEGER NOT NULL DEFAULT 0,
			rtt_ms INTEGER NOT NULL DEFAULT 0,
			model TEXT NOT NULL DEFAULT '',
			friendly_name TEXT NOT NULL DEFAULT '',
			sys_descr TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL,
			FOREIGN KEY (endpoint_id) REFERENCES endpoints (id) ON DELETE SET NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_scan_results_endpoint_id ON scan_results (endpoint_id);`,
	}

	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			return err
		}
	}

	return addMissingColumns(db)
}

// addMissingColumns upgrades databases created by earlier versions. Each
// entry is checked against pragma_table_info so reruns are no-ops.
func addMissingColumns(db *sql.DB) error {
	columns := []struct {
		table, column, ddl string
	}{
		{"endpoints", "netbios_name", `ALTER TABLE endpoints ADD COLUMN netbios_name TEXT`},
		{"endpoints", "ssdp_friendly_name", `ALTER TABLE endpoints ADD COLUMN ssdp_friendly_name TEXT`},
		{"scan_results", "sys_descr", `ALTER TABLE scan_results ADD COLUMN sys_descr TEXT NOT NULL DEFAULT ''`},
	}
	for _, c := range columns {
		var present bool
		err := db.QueryRow(
			`SELECT COUNT(*) > 0 FROM pragma_table_info(?) WHERE name = ?`,
			c.table, c.column).Scan(&present)
		if err != nil {
			return err
		}
		if !present {
			if _, err := db.Exec(c.ddl); err != nil {
				return err
			}
		}
	}
	return nil
}
