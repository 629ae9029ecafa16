package storage

import (
	"database/sql"
	"strconv"
	"sync"
)

// Setting keys. Values are read at task-scheduling boundaries; changes take
// effect on the next interval.
const (
	SettingCleanupInterval  = "cleanup_interval_seconds"
	SettingRetentionDays    = "data_retention_days"
	SettingActiveThreshold  = "active_threshold_seconds"
	SettingAutoScanInterval = "auto_scan_interval_minutes"
)

var settingDefaults = map[string]string{
	SettingCleanupInterval:  "30",
	SettingRetentionDays:    "7",
	SettingActiveThreshold:  "120",
	SettingAutoScanInterval: "0",
}

// Settings is an in-memory snapshot of the settings table, kept in sync by
// the writer.
type Settings struct {
	mu     sync.RWMutex
	values map[string]string
}

// LoadSettings seeds missing defaults into the table and loads the snapshot.
func LoadSettings(db *sql.DB) (*Settings, error) {
	for key, value := range settingDefaults {
		if _, err := db.Exec(
			`INSERT OR IGNORE INTO settings (key, value) VALUES (?, ?)`, key, value); err != nil {
			return nil, err
		}
	}

	rows, err := db.Query(`SELECT key, value FROM settings`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	s := &Settings{values: make(map[string]string)}
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, err
		}
		s.values[key] = value
	}
	return s, rows.Err()
}

// Get returns the current value, falling back to the default.
func (s *Settings) Get(key string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if v, ok := s.values[key]; ok {
		return v
	}
	return settingDefaults[key]
}

// GetInt parses the value as an integer, falling back to the default.
func (s *Settings) GetInt(key string) int {
	if n, err := strconv.Atoi(s.Get(key)); err == nil {
		return n
	}
	n, _ := strconv.Atoi(settingDefaults[key])
	return n
}

// All returns a copy of every setting.
func (s *Settings) All() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

func (s *Settings) set(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
}
