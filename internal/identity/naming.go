package identity

import (
	"database/sql"
	"fmt"

	"github.com/InfraSecConsult/netwatch-go/internal/classify"
	"github.com/InfraSecConsult/netwatch-go/lib/model"
)

// UpgradeName promotes an endpoint's display name to a freshly learned
// hostname when the current name is not displayable (an IP literal, a UUID,
// or empty) and no custom name overrides it. A successful upgrade triggers
// the IPv6 sibling merge and the merge-by-hostname pass.
func (r *Resolver) UpgradeName(tx *sql.Tx, endpointID int64, hostname string) error {
	hostname = normalizeHostname(hostname)
	if !model.IsValidDisplayName(hostname) {
		return nil
	}

	var currentName, customName sql.NullString
	err := tx.QueryRow(
		`SELECT name, custom_name FROM endpoints WHERE id = ?`, endpointID).
		Scan(&currentName, &customName)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return err
	}

	if model.IsValidDisplayName(currentName.String) {
		return nil
	}
	if customName.String != "" {
		// The user named this device; record nothing, attributes already
		// carry the hostname.
		return nil
	}

	if _, err := tx.Exec(`UPDATE endpoints SET name = ? WHERE id = ?`, hostname, endpointID); err != nil {
		return err
	}

	if err := r.mergeIPv6Siblings(tx, endpointID); err != nil {
		return err
	}
	if err := r.mergeByHostname(tx, endpointID, hostname); err != nil {
		return err
	}
	return r.Reclassify(tx, endpointID)
}

// trySetNameFromModel names an endpoint after its MAC-derived consumer model
// ("Nintendo Switch") when no hostname is available. Model names are not
// unique identifiers, so this never triggers merging.
func (r *Resolver) trySetNameFromModel(tx *sql.Tx, endpointID int64, mac string) {
	var currentName sql.NullString
	if err := tx.QueryRow(`SELECT name FROM endpoints WHERE id = ?`, endpointID).Scan(&currentName); err != nil {
		return
	}
	if model.IsValidDisplayName(currentName.String) {
		return
	}

	modelName := classify.ModelFromMAC(mac)
	if modelName == "" {
		return
	}
	unique := r.uniqueEndpointName(tx, modelName, endpointID)
	_, _ = tx.Exec(`UPDATE endpoints SET name = ? WHERE id = ?`, unique, endpointID)
}

// uniqueEndpointName appends " (2)", " (3)", ... when the base name is taken
// by another endpoint. Two Nintendo Switches should not collapse visually.
func (r *Resolver) uniqueEndpointName(tx *sql.Tx, baseName string, endpointID int64) string {
	if !r.nameTaken(tx, baseName, endpointID) {
		return baseName
	}
	for n := 2; n <= 99; n++ {
		candidate := fmt.Sprintf("%s (%d)", baseName, n)
		if !r.nameTaken(tx, candidate, endpointID) {
			return candidate
		}
	}
	return fmt.Sprintf("%s (%d)", baseName, endpointID)
}

func (r *Resolver) nameTaken(tx *sql.Tx, name string, endpointID int64) bool {
	var taken bool
	err := tx.QueryRow(
		`SELECT EXISTS(SELECT 1 FROM endpoints WHERE LOWER(name) = LOWER(?) AND id != ?)`,
		name, endpointID).Scan(&taken)
	return err == nil && taken
}
