package identity

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/InfraSecConsult/netwatch-go/lib/model"
)

// MergeEndpoints folds loser into survivor: every attribute row and
// communication reference is reparented, user fields are preserved, and the
// loser row is deleted. Applying the same merge twice is a no-op. Runs
// inside one transaction.
func (r *Resolver) MergeEndpoints(tx *sql.Tx, survivor, loser int64) error {
	if survivor == loser {
		return nil
	}

	// User-set fields on the loser survive unless the survivor has its own.
	_, err := tx.Exec(
		`UPDATE endpoints SET
		     custom_name = COALESCE(NULLIF(custom_name, ''), (SELECT custom_name FROM endpoints WHERE id = ?2)),
		     custom_vendor = COALESCE(NULLIF(custom_vendor, ''), (SELECT custom_vendor FROM endpoints WHERE id = ?2)),
		     custom_model = COALESCE(NULLIF(custom_model, ''), (SELECT custom_model FROM endpoints WHERE id = ?2)),
		     manual_device_type = COALESCE(NULLIF(manual_device_type, ''), (SELECT manual_device_type FROM endpoints WHERE id = ?2)),
		     ssdp_model = COALESCE(NULLIF(ssdp_model, ''), (SELECT ssdp_model FROM endpoints WHERE id = ?2)),
		     ssdp_friendly_name = COALESCE(NULLIF(ssdp_friendly_name, ''), (SELECT ssdp_friendly_name FROM endpoints WHERE id = ?2)),
		     netbios_name = COALESCE(NULLIF(netbios_name, ''), (SELECT netbios_name FROM endpoints WHERE id = ?2)),
		     first_seen_at = MIN(first_seen_at, COALESCE((SELECT first_seen_at FROM endpoints WHERE id = ?2), first_seen_at)),
		     last_seen_at = MAX(last_seen_at, COALESCE((SELECT last_seen_at FROM endpoints WHERE id = ?2), last_seen_at))
		 WHERE id = ?1`,
		survivor, loser)
	if err != nil {
		return fmt.Errorf("merging endpoint fields: %w", err)
	}

	// Reparent attributes; duplicates collide with the unique constraint and
	// are dropped with the loser.
	if _, err := tx.Exec(
		`UPDATE OR IGNORE endpoint_attributes SET endpoint_id = ?1 WHERE endpoint_id = ?2`,
		survivor, loser); err != nil {
		return err
	}
	if _, err := tx.Exec(
		`DELETE FROM endpoint_attributes WHERE endpoint_id = ?`, loser); err != nil {
		return err
	}

	// Reparent communications. Rows that collapse onto an existing
	// (src, dst, proto, ports) key have their counters folded in first.
	if err := r.mergeCommunications(tx, survivor, loser); err != nil {
		return err
	}

	if _, err := tx.Exec(
		`UPDATE scan_results SET endpoint_id = ?1 WHERE endpoint_id = ?2`, survivor, loser); err != nil {
		return err
	}

	if _, err := tx.Exec(`DELETE FROM endpoints WHERE id = ?`, loser); err != nil {
		return err
	}

	log.Info().Int64("survivor", survivor).Int64("loser", loser).Msg("merged endpoints")
	return r.Reclassify(tx, survivor)
}

// mergeCommunications reparents the loser's conversation rows. When the
// rewritten key already exists the packet and byte counters are folded into
// the surviving row so no traffic is lost.
func (r *Resolver) mergeCommunications(tx *sql.Tx, survivor, loser int64) error {
	type commRow struct {
		id          int64
		src, dst    sql.NullInt64
		protocol    string
		srcPort     int
		dstPort     int
		packetCount int64
		bytes       int64
		firstSeen   int64
		lastSeen    int64
	}

	rows, err := tx.Query(
		`SELECT id, src_endpoint_id, dst_endpoint_id, protocol, src_port, dst_port,
		        packet_count, bytes, first_seen_at, last_seen_at
		 FROM communications WHERE src_endpoint_id = ?1 OR dst_endpoint_id = ?1`, loser)
	if err != nil {
		return err
	}
	var loserRows []commRow
	for rows.Next() {
		var c commRow
		if err := rows.Scan(&c.id, &c.src, &c.dst, &c.protocol, &c.srcPort, &c.dstPort,
			&c.packetCount, &c.bytes, &c.firstSeen, &c.lastSeen); err != nil {
			rows.Close()
			return err
		}
		loserRows = append(loserRows, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, c := range loserRows {
		newSrc, newDst := c.src, c.dst
		if newSrc.Valid && newSrc.Int64 == loser {
			newSrc.Int64 = survivor
		}
		if newDst.Valid && newDst.Int64 == loser {
			newDst.Int64 = survivor
		}

		res, err := tx.Exec(
			`UPDATE communications SET
			     packet_count = packet_count + ?,
			     bytes = bytes + ?,
			     first_seen_at = MIN(first_seen_at, ?),
			     last_seen_at = MAX(last_seen_at, ?)
			 WHERE id != ?
			   AND COALESCE(src_endpoint_id, -1) = COALESCE(?, -1)
			   AND COALESCE(dst_endpoint_id, -1) = COALESCE(?, -1)
			   AND protocol = ? AND src_port = ? AND dst_port = ?`,
			c.packetCount, c.bytes, c.firstSeen, c.lastSeen,
			c.id, newSrc, newDst, c.protocol, c.srcPort, c.dstPort)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected > 0 {
			if _, err := tx.Exec(`DELETE FROM communications WHERE id = ?`, c.id); err != nil {
				return err
			}
			continue
		}
		if _, err := tx.Exec(
			`UPDATE communications SET src_endpoint_id = ?, dst_endpoint_id = ? WHERE id = ?`,
			newSrc, newDst, c.id); err != nil {
			return err
		}
	}
	return nil
}

// mergeByMAC merges every other endpoint carrying the same MAC into one
// survivor. The survivor is the endpoint with a displayable name, ties going
// to the lower id. Returns the surviving id (0 when nothing merged).
func (r *Resolver) mergeByMAC(tx *sql.Tx, mac string) (int64, error) {
	rows, err := tx.Query(
		`SELECT DISTINCT ea.endpoint_id, COALESCE(e.name, '')
		 FROM endpoint_attributes ea JOIN endpoints e ON e.id = ea.endpoint_id
		 WHERE ea.mac = ? ORDER BY ea.endpoint_id`, mac)
	if err != nil {
		return 0, err
	}
	type candidate struct {
		id   int64
		name string
	}
	var candidates []candidate
	for rows.Next() {
		var c candidate
		if err := rows.Scan(&c.id, &c.name); err != nil {
			rows.Close()
			return 0, err
		}
		candidates = append(candidates, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	if len(candidates) < 2 {
		return 0, nil
	}

	survivor := candidates[0]
	for _, c := range candidates[1:] {
		if model.IsValidDisplayName(c.name) && !model.IsValidDisplayName(survivor.name) {
			survivor = c
		}
	}

	for _, c := range candidates {
		if c.id == survivor.id {
			continue
		}
		if err := r.MergeEndpoints(tx, survivor.id, c.id); err != nil {
			return 0, err
		}
	}
	return survivor.id, nil
}

// mergeIPv6Siblings folds endpoints that only exist as IPv6 literals on the
// same /64 prefix into the endpoint that just received a hostname.
func (r *Resolver) mergeIPv6Siblings(tx *sql.Tx, endpointID int64) error {
	rows, err := tx.Query(
		`SELECT ip FROM endpoint_attributes WHERE endpoint_id = ? AND ip LIKE '%:%'`, endpointID)
	if err != nil {
		return err
	}
	prefixes := model.NewSet()
	for rows.Next() {
		var ip string
		if err := rows.Scan(&ip); err != nil {
			rows.Close()
			return err
		}
		prefixes.Add(model.IPv6Prefix64(ip))
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, prefix := range prefixes.List() {
		siblings, err := r.ipv6SiblingIDs(tx, endpointID, prefix)
		if err != nil {
			return err
		}
		for _, sibling := range siblings {
			if err := r.MergeEndpoints(tx, endpointID, sibling); err != nil {
				return err
			}
			log.Debug().Int64("sibling", sibling).Str("prefix", prefix).Msg("merged ipv6 sibling")
		}
	}
	return nil
}

func (r *Resolver) ipv6SiblingIDs(tx *sql.Tx, endpointID int64, prefix string) ([]int64, error) {
	// Sibling endpoints are named after an IPv6 literal (contain colons) and
	// have at least one address on the same /64.
	rows, err := tx.Query(
		`SELECT DISTINCT e.id, ea.ip FROM endpoints e
		 JOIN endpoint_attributes ea ON e.id = ea.endpoint_id
		 WHERE ea.ip LIKE '%:%' AND e.id != ? AND e.name LIKE '%:%'`, endpointID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var siblings []int64
	seen := make(map[int64]struct{})
	for rows.Next() {
		var id int64
		var ip string
		if err := rows.Scan(&id, &ip); err != nil {
			return nil, err
		}
		if model.IPv6Prefix64(ip) != prefix {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		siblings = append(siblings, id)
	}
	return siblings, rows.Err()
}

// MergeDuplicateMACSweep merges every endpoint pair sharing a MAC. The live
// path already does this per observation; the sweep catches rows written
// before both halves of the identity were known.
func (r *Resolver) MergeDuplicateMACSweep(tx *sql.Tx) error {
	rows, err := tx.Query(
		`SELECT mac FROM endpoint_attributes
		 WHERE mac != ''
		 GROUP BY mac HAVING COUNT(DISTINCT endpoint_id) > 1`)
	if err != nil {
		return err
	}
	var macs []string
	for rows.Next() {
		var mac string
		if err := rows.Scan(&mac); err != nil {
			rows.Close()
			return err
		}
		macs = append(macs, mac)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, mac := range macs {
		if model.IsLocallyAdministeredMAC(mac) {
			continue
		}
		if _, err := r.mergeByMAC(tx, mac); err != nil {
			return err
		}
	}
	return nil
}

// MergeIPv6PrefixSweep folds IPv6-literal endpoints into their named /64
// siblings across the whole table.
func (r *Resolver) MergeIPv6PrefixSweep(tx *sql.Tx) error {
	rows, err := tx.Query(
		`SELECT DISTINCT e.id FROM endpoints e
		 JOIN endpoint_attributes ea ON e.id = ea.endpoint_id
		 WHERE ea.ip LIKE '%:%' AND COALESCE(e.name, '') NOT LIKE '%:%' AND COALESCE(e.name, '') != ''`)
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

	for _, id := range ids {
		// A sweep target may already have been merged away this pass.
		var exists bool
		if err := tx.QueryRow(`SELECT EXISTS(SELECT 1 FROM endpoints WHERE id = ?)`, id).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			continue
		}
		if err := r.mergeIPv6Siblings(tx, id); err != nil {
			return err
		}
	}
	return nil
}

// mergeByHostname folds this endpoint into an existing endpoint with the
// same name, but only when this endpoint carries no real MAC: two
// well-identified devices must never collapse over a shared hostname.
func (r *Resolver) mergeByHostname(tx *sql.Tx, endpointID int64, hostname string) error {
	var hasRealMAC bool
	err := tx.QueryRow(
		`SELECT EXISTS(
		     SELECT 1 FROM endpoint_attributes
		     WHERE endpoint_id = ? AND mac != ''
		       AND UPPER(SUBSTR(mac, 2, 1)) NOT IN ('2', '6', 'A', 'E'))`,
		endpointID).Scan(&hasRealMAC)
	if err != nil || hasRealMAC {
		return err
	}

	var targetID int64
	err = tx.QueryRow(
		`SELECT id FROM endpoints
		 WHERE id != ? AND (LOWER(name) = LOWER(?2) OR LOWER(custom_name) = LOWER(?2))
		 ORDER BY id LIMIT 1`,
		endpointID, strings.ToLower(hostname)).Scan(&targetID)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return err
	}

	return r.MergeEndpoints(tx, targetID, endpointID)
}
