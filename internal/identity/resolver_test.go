package identity_test

import (
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/InfraSecConsult/netwatch-go/internal/identity"
	"github.com/InfraSecConsult/netwatch-go/internal/storage"
	"github.com/InfraSecConsult/netwatch-go/lib/model"
)

func newResolverDB(t *testing.T) (*identity.Resolver, *sql.DB) {
	t.Helper()
	store, err := storage.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return identity.NewResolver(), store.ReadDB()
}

func resolve(t *testing.T, r *identity.Resolver, db *sql.DB, obs model.Observation) (int64, bool, error) {
	t.Helper()
	tx, err := db.Begin()
	require.NoError(t, err)
	id, created, resolveErr := r.Resolve(tx, obs)
	if resolveErr != nil {
		require.NoError(t, tx.Rollback())
		return id, created, resolveErr
	}
	require.NoError(t, tx.Commit())
	return id, created, nil
}

func TestResolveCreatesAndMatches(t *testing.T) {
	r, db := newResolverDB(t)
	obs := model.Observation{MAC: "00:11:22:33:44:55", IP: "192.168.1.2", Timestamp: time.Now()}

	id1, created, err := resolve(t, r, db, obs)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Greater(t, id1, int64(0))

	id2, created, err := resolve(t, r, db, obs)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, id1, id2)
}

func TestResolveRejectsPrivacyAddress(t *testing.T) {
	r, db := newResolverDB(t)

	// A link-local IPv6 without the ff:fe marker is a privacy address.
	_, _, err := resolve(t, r, db, model.Observation{IP: "fe80::1234:5678:9abc:def0", Timestamp: time.Now()})
	assert.ErrorIs(t, err, identity.ErrNotEndpoint)

	// An EUI-64-derived one creates an endpoint via the recovered MAC.
	id, created, err := resolve(t, r, db, model.Observation{IP: "fe80::0211:22ff:fe33:4455", Timestamp: time.Now()})
	require.NoError(t, err)
	assert.True(t, created)

	// The same device seen by its real MAC matches the same endpoint.
	id2, created, err := resolve(t, r, db, model.Observation{MAC: "00:11:22:33:44:55", IP: "192.168.1.3", Timestamp: time.Now()})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, id, id2)
}

func TestResolveRejectsGroupAddresses(t *testing.T) {
	r, db := newResolverDB(t)

	_, _, err := resolve(t, r, db, model.Observation{MAC: "ff:ff:ff:ff:ff:ff", IP: "192.168.1.255", Timestamp: time.Now()})
	assert.ErrorIs(t, err, identity.ErrNotEndpoint)

	_, _, err = resolve(t, r, db, model.Observation{MAC: "01:00:5e:00:00:fb", IP: "224.0.0.251", Timestamp: time.Now()})
	assert.ErrorIs(t, err, identity.ErrNotEndpoint)

	_, _, err = resolve(t, r, db, model.Observation{Timestamp: time.Now()})
	assert.ErrorIs(t, err, identity.ErrNotEndpoint)
}

func TestResolvePublicAddressIsInternet(t *testing.T) {
	r, db := newResolverDB(t)
	_, _, err := resolve(t, r, db, model.Observation{MAC: "00:11:22:33:44:55", IP: "93.184.216.34", Timestamp: time.Now()})
	assert.ErrorIs(t, err, identity.ErrInternetDestination)
}

func TestRandomizedMACNeverMatches(t *testing.T) {
	r, db := newResolverDB(t)
	now := time.Now()

	// Two different IPs sharing a randomized MAC stay separate endpoints.
	id1, _, err := resolve(t, r, db, model.Observation{MAC: "d6:00:00:00:00:01", IP: "192.168.1.4", Timestamp: now})
	require.NoError(t, err)
	id2, _, err := resolve(t, r, db, model.Observation{MAC: "d6:00:00:00:00:01", IP: "192.168.1.5", Timestamp: now})
	require.NoError(t, err)
	assert.NotEqual(t, id1, id2)
}

func TestAutoMergeByMAC(t *testing.T) {
	r, db := newResolverDB(t)
	now := time.Now()

	// One endpoint known by hostname, one by a bare ARP sighting of the
	// same hardware on another address.
	named, _, err := resolve(t, r, db, model.Observation{
		MAC: "00:aa:bb:cc:dd:01", IP: "192.168.1.6", Hostname: "mikespc", Timestamp: now,
	})
	require.NoError(t, err)

	tx, err := db.Begin()
	require.NoError(t, err)
	_, err = tx.Exec(
		`INSERT INTO endpoints (created_at, name, first_seen_at, last_seen_at) VALUES (?, '192.168.1.7', ?, ?)`,
		now.Unix(), now.Unix(), now.Unix())
	require.NoError(t, err)
	var strayID int64
	require.NoError(t, tx.QueryRow(`SELECT MAX(id) FROM endpoints`).Scan(&strayID))
	_, err = tx.Exec(
		`INSERT INTO endpoint_attributes (created_at, endpoint_id, mac, ip, hostname) VALUES (?, ?, '00:aa:bb:cc:dd:01', '192.168.1.7', '')`,
		now.Unix(), strayID)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	// The next observation of that MAC folds the stray endpoint in; the
	// endpoint with the displayable name survives.
	resolved, _, err := resolve(t, r, db, model.Observation{
		MAC: "00:aa:bb:cc:dd:01", IP: "192.168.1.6", Timestamp: now,
	})
	require.NoError(t, err)
	assert.Equal(t, named, resolved)

	var endpoints int64
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM endpoints`).Scan(&endpoints))
	assert.Equal(t, int64(1), endpoints)

	var macEndpoints int64
	require.NoError(t, db.QueryRow(
		`SELECT COUNT(DISTINCT endpoint_id) FROM endpoint_attributes WHERE mac = '00:aa:bb:cc:dd:01'`).
		Scan(&macEndpoints))
	assert.Equal(t, int64(1), macEndpoints)
}

func TestIPv6SiblingMergeOnNameUpgrade(t *testing.T) {
	r, db := newResolverDB(t)
	now := time.Now()

	// Endpoint known only by a ULA IPv6 literal on the same /64.
	sibling, _, err := resolve(t, r, db, model.Observation{IP: "fd00:1:2:3:1111:2222:3333:4444", Timestamp: now})
	require.NoError(t, err)

	target, _, err := resolve(t, r, db, model.Observation{
		MAC: "00:aa:bb:cc:dd:02", IP: "fd00:1:2:3:aaaa:bbbb:cccc:dddd", Timestamp: now,
	})
	require.NoError(t, err)
	require.NotEqual(t, sibling, target)

	// Learning a hostname for the MAC-backed endpoint pulls the literal
	// sibling in.
	tx, err := db.Begin()
	require.NoError(t, err)
	require.NoError(t, r.UpgradeName(tx, target, "den-laptop"))
	require.NoError(t, tx.Commit())

	var endpoints int64
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM endpoints`).Scan(&endpoints))
	assert.Equal(t, int64(1), endpoints)

	var name string
	require.NoError(t, db.QueryRow(`SELECT name FROM endpoints`).Scan(&name))
	assert.Equal(t, "den-laptop", name)
}

func TestUpgradeNameKeepsCustomAndValidNames(t *testing.T) {
	r, db := newResolverDB(t)
	now := time.Now()

	id, _, err := resolve(t, r, db, model.Observation{
		MAC: "00:aa:bb:cc:dd:03", IP: "192.168.1.8", Hostname: "first-name", Timestamp: now,
	})
	require.NoError(t, err)

	tx, err := db.Begin()
	require.NoError(t, err)
	require.NoError(t, r.UpgradeName(tx, id, "second-name"))
	require.NoError(t, tx.Commit())

	var name string
	require.NoError(t, db.QueryRow(`SELECT name FROM endpoints WHERE id = ?`, id).Scan(&name))
	assert.Equal(t, "first-name", name, "a displayable name is not overwritten")

	// UUID-like and IP-literal hostnames never become names.
	tx, err = db.Begin()
	require.NoError(t, err)
	require.NoError(t, r.UpgradeName(tx, id, "192.168.1.8"))
	require.NoError(t, r.UpgradeName(tx, id, "34887b21-9413-022c-352a-67966809b46c"))
	require.NoError(t, tx.Commit())

	require.NoError(t, db.QueryRow(`SELECT name FROM endpoints WHERE id = ?`, id).Scan(&name))
	assert.Equal(t, "first-name", name)
}
