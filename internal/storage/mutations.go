package storage

import (
	"database/sql"
	"fmt"
)

// Identity mutations exposed to the HTTP API. Each runs synchronously
// through the writer so callers observe the committed state.

// SetManualDeviceType sets or clears (empty value) the device type override.
func (w *Writer) SetManualDeviceType(endpointID int64, deviceType string) error {
	return w.Do(func(tx *sql.Tx) error {
		if err := execOne(tx,
			`UPDATE endpoints SET manual_device_type = ? WHERE id = ?`,
			nullable(deviceType), endpointID); err != nil {
			return err
		}
		if deviceType == "" {
			// Back to automatic: recompute immediately so the UI does not
			// show a stale category.
			return w.resolver.Reclassify(tx, endpointID)
		}
		return nil
	})
}

// SetCustomName sets or clears the display-name override.
func (w *Writer) SetCustomName(endpointID int64, name string) error {
	return w.Do(func(tx *sql.Tx) error {
		return execOne(tx,
			`UPDATE endpoints SET custom_name = ? WHERE id = ?`,
			nullable(name), endpointID)
	})
}

// SetCustomVendor sets or clears the vendor override.
func (w *Writer) SetCustomVendor(endpointID int64, vendor string) error {
	return w.Do(func(tx *sql.Tx) error {
		return execOne(tx,
			`UPDATE endpoints SET custom_vendor = ? WHERE id = ?`,
			nullable(vendor), endpointID)
	})
}

// SetCustomModel sets or clears the model override.
func (w *Writer) SetCustomModel(endpointID int64, modelName string) error {
	return w.Do(func(tx *sql.Tx) error {
		if err := execOne(tx,
			`UPDATE endpoints SET custom_model = ? WHERE id = ?`,
			nullable(modelName), endpointID); err != nil {
			return err
		}
		return w.resolver.Reclassify(tx, endpointID)
	})
}

// MergeEndpointPair merges loser into survivor on user request.
func (w *Writer) MergeEndpointPair(survivor, loser int64) error {
	return w.Do(func(tx *sql.Tx) error {
		return w.resolver.MergeEndpoints(tx, survivor, loser)
	})
}

// DeleteEndpoint removes an endpoint. Communications referencing it keep
// their rows with the reference set to NULL, preserving the counterparty's
// history; attribute rows cascade away.
func (w *Writer) DeleteEndpoint(endpointID int64) error {
	return w.Do(func(tx *sql.Tx) error {
		for _, side := range []string{"src_endpoint_id", "dst_endpoint_id"} {
			if _, err := tx.Exec(
				fmt.Sprintf(`UPDATE communications SET %[1]s = NULL WHERE %[1]s = ?`, side),
				endpointID); err != nil {
				return err
			}
		}
		if _, err := tx.Exec(
			`UPDATE scan_results SET endpoint_id = NULL WHERE endpoint_id = ?`, endpointID); err != nil {
			return err
		}
		if _, err := tx.Exec(
			`DELETE FROM endpoint_attributes WHERE endpoint_id = ?`, endpointID); err != nil {
			return err
		}
		return execOne(tx, `DELETE FROM endpoints WHERE id = ?`, endpointID)
	})
}

func execOne(tx *sql.Tx, query string, args ...any) error {
	res, err := tx.Exec(query, args...)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
