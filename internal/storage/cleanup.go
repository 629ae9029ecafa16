package storage

import (
	"context"
	"database/sql"
	"time"

	"github.com/rs/zerolog/log"
)

// Cleanup is the periodic maintenance task: retention pruning, the merge
// sweeps, and bounding the mdns_entries mirror. Its interval and retention
// window are re-read from settings every cycle.
type Cleanup struct {
	writer   *Writer
	settings *Settings
}

// NewCleanup wires the task; call Run to start it.
func NewCleanup(writer *Writer, settings *Settings) *Cleanup {
	return &Cleanup{writer: writer, settings: settings}
}

// Run loops until the context is cancelled.
func (c *Cleanup) Run(ctx context.Context) {
	for {
		interval := time.Duration(c.settings.GetInt(SettingCleanupInterval)) * time.Second
		if interval <= 0 {
			interval = 30 * time.Second
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
			if err := c.RunOnce(); err != nil {
				log.Warn().Err(err).Msg("cleanup pass failed")
			}
		}
	}
}

// RunOnce executes one full maintenance pass inside the writer.
func (c *Cleanup) RunOnce() error {
	retentionDays := c.settings.GetInt(SettingRetentionDays)
	cutoff := time.Now().AddDate(0, 0, -retentionDays).Unix()

	return c.writer.Do(func(tx *sql.Tx) error {
		res, err := tx.Exec(`DELETE FROM communications WHERE last_seen_at < ?`, cutoff)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n > 0 {
			log.Debug().Int64("rows", n).Msg("pruned expired communications")
		}

		if _, err := tx.Exec(`DELETE FROM internet_destinations WHERE last_seen_at < ?`, cutoff); err != nil {
			return err
		}
		if _, err := tx.Exec(`DELETE FROM scan_results WHERE created_at < ?`, cutoff); err != nil {
			return err
		}

		if err := c.writer.resolver.MergeIPv6PrefixSweep(tx); err != nil {
			return err
		}
		if err := c.writer.resolver.MergeDuplicateMACSweep(tx); err != nil {
			return err
		}

		// Keep the table mirror within the ring bound.
		_, err = tx.Exec(
			`DELETE FROM mdns_entries WHERE id NOT IN (
			     SELECT id FROM mdns_entries ORDER BY timestamp DESC, id DESC LIMIT ?)`,
			MDNSRingSize)
		return err
	})
}
