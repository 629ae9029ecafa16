package storage

import (
	"database/sql"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/InfraSecConsult/netwatch-go/internal/aggregate"
	"github.com/InfraSecConsult/netwatch-go/internal/dnscache"
	"github.com/InfraSecConsult/netwatch-go/internal/identity"
	"github.com/InfraSecConsult/netwatch-go/lib/helper"
	"github.com/InfraSecConsult/netwatch-go/lib/model"
)

const (
	writerQueueSize = 65536
	// batchLimit bounds one transaction; batches stay short so readers are
	// never starved.
	batchLimit = 256
)

// MDNSRingSize bounds the in-memory mDNS announcement buffer.
const MDNSRingSize = 10_000

type request struct {
	fn    func(tx *sql.Tx) error
	reply chan error
}

// Writer is the single mutation path into the store. Every component
// enqueues requests; one goroutine drains them in short batched
// transactions. Merges and creations are therefore naturally serialized.
type Writer struct {
	store    *Store
	resolver *identity.Resolver
	cache    *dnscache.Cache
	settings *Settings
	mdnsRing *helper.RingBuffer[model.MDNSEntry]

	requests chan request
	done     chan struct{}
}

// NewWriter wires the writer to its collaborators. Call Run to start it.
func NewWriter(store *Store, resolver *identity.Resolver, cache *dnscache.Cache, settings *Settings) *Writer {
	w := &Writer{
		store:    store,
		resolver: resolver,
		cache:    cache,
		settings: settings,
		mdnsRing: helper.NewRingBuffer[model.MDNSEntry](MDNSRingSize),
		requests: make(chan request, writerQueueSize),
		done:     make(chan struct{}),
	}
	resolver.ActiveThreshold = func() time.Duration {
		return time.Duration(settings.GetInt(SettingActiveThreshold)) * time.Second
	}
	return w
}

// Run drains the request queue until Stop is called.
func (w *Writer) Run() {
	go func() {
		defer close(w.done)
		for req := range w.requests {
			batch := []request{req}
		fill:
			for len(batch) < batchLimit {
				select {
				case next, more := <-w.requests:
					if !more {
						break fill
					}
					batch = append(batch, next)
				default:
					break fill
				}
			}
			w.execute(batch)
		}
	}()
}

// Stop flushes the queue and stops the writer goroutine.
func (w *Writer) Stop() {
	close(w.requests)
	<-w.done
}

// MDNSEntries returns the buffered announcements, newest first.
func (w *Writer) MDNSEntries() []model.MDNSEntry {
	return w.mdnsRing.Snapshot()
}

// execute runs one batch in a single transaction. A busy conflict retries
// the whole batch; individual request failures are logged and skipped so one
// malformed observation cannot poison the batch.
func (w *Writer) execute(batch []request) {
	errs := make([]error, len(batch))
	err := w.store.withRetry(func(tx *sql.Tx) error {
		for i, req := range batch {
			if reqErr := req.fn(tx); reqErr != nil {
				if isBusy(reqErr) {
					return reqErr
				}
				errs[i] = reqErr
				log.Debug().Err(reqErr).Msg("write request failed, skipping")
			}
		}
		return nil
	})

	for i, req := range batch {
		if req.reply == nil {
			continue
		}
		if err != nil {
			req.reply <- err
		} else {
			req.reply <- errs[i]
		}
	}
	if err != nil {
		log.Error().Err(err).Int("batch", len(batch)).Msg("write batch failed")
	}
}

func (w *Writer) enqueue(fn func(tx *sql.Tx) error) {
	select {
	case w.requests <- request{fn: fn}:
	default:
		// Queue full: drop the oldest pending request to keep capture
		// flowing; counters may undercount under sustained overload.
		select {
		case old := <-w.requests:
			if old.reply != nil {
				old.reply <- ErrDbBusy
			}
		default:
		}
		select {
		case w.requests <- request{fn: fn}:
		default:
		}
	}
}

// Do runs a mutation synchronously through the writer, for the HTTP API.
func (w *Writer) Do(fn func(tx *sql.Tx) error) error {
	reply := make(chan error, 1)
	w.requests <- request{fn: fn, reply: reply}
	return <-reply
}

// EnqueueIdentity resolves one identity observation.
func (w *Writer) EnqueueIdentity(obs model.Observation) {
	w.enqueue(func(tx *sql.Tx) error {
		id, created, err := w.resolver.Resolve(tx, obs)
		if errors.Is(err, identity.ErrNotEndpoint) {
			return nil
		}
		if errors.Is(err, identity.ErrInternetDestination) {
			return nil
		}
		if err != nil {
			return err
		}
		if created {
			return w.resolver.Reclassify(tx, id)
		}
		return nil
	})
}

// EnqueueBinding applies a hostname<->address binding: the DNS cache learns
// it immediately, endpoints carrying the address get the hostname attribute
// and a possible name upgrade.
func (w *Writer) EnqueueBinding(binding model.NameBinding) {
	w.cache.Put(binding.Hostname, binding.IP)
	if !helper.IsPrivateIP(binding.IP) {
		return
	}
	w.enqueue(func(tx *sql.Tx) error {
		return w.resolver.ApplyBinding(tx, binding)
	})
}

// EnqueueMDNS buffers the announcement and mirrors it to the table.
func (w *Writer) EnqueueMDNS(entry model.MDNSEntry) {
	w.mdnsRing.Add(entry)
	w.enqueue(func(tx *sql.Tx) error {
		_, err := tx.Exec(
			`INSERT INTO mdns_entries (timestamp, ip, hostname, services) VALUES (?, ?, ?, ?)`,
			entry.Timestamp.Unix(), entry.IP, entry.Hostname, model.NewSet(entry.Services...).String())
		return err
	})
}

// EnqueueService records a service announcement and reclassifies the
// endpoints behind the address, because classification depends on data that
// arrives after endpoint creation.
func (w *Writer) EnqueueService(service model.ServiceAnnouncement) {
	w.resolver.RecordService(service.IP, service.ServiceType)
	w.enqueue(func(tx *sql.Tx) error {
		ids, err := endpointIDsForIP(tx, service.IP)
		if err != nil {
			return err
		}
		for _, id := range ids {
			if err := w.resolver.Reclassify(tx, id); err != nil {
				return err
			}
		}
		return nil
	})
}

// EnqueueFlows applies a batch of coalesced conversation totals.
func (w *Writer) EnqueueFlows(flows []aggregate.FlowTotals) {
	w.enqueue(func(tx *sql.Tx) error {
		for _, f := range flows {
			if err := w.applyFlow(tx, f); err != nil {
				log.Debug().Err(err).Str("src", f.SrcIP).Str("dst", f.DstIP).Msg("dropping flow")
			}
		}
		return nil
	})
}

type sideState int

const (
	sideSkip sideState = iota
	sideEndpoint
	sideInternet
)

func (w *Writer) applyFlow(tx *sql.Tx, f aggregate.FlowTotals) error {
	srcID, srcState, err := w.resolveSide(tx, f.SrcMAC, f.SrcIP, f.Interface, f.LastSeen)
	if err != nil {
		return err
	}
	dstID, dstState, err := w.resolveSide(tx, f.DstMAC, f.DstIP, f.Interface, f.LastSeen)
	if err != nil {
		return err
	}

	// Internet endpoints never join the endpoint table; their traffic is
	// totaled per hostname instead.
	if srcState == sideInternet {
		w.upsertInternetDestination(tx, f.SrcIP, f.PacketCount, f.Bytes, false, f.LastSeen)
	}
	if dstState == sideInternet {
		w.upsertInternetDestination(tx, f.DstIP, f.PacketCount, f.Bytes, true, f.LastSeen)
	}

	var src, dst sql.NullInt64
	switch {
	case srcState == sideEndpoint && dstState == sideEndpoint:
		src = sql.NullInt64{Int64: srcID, Valid: true}
		dst = sql.NullInt64{Int64: dstID, Valid: true}
	case srcState == sideEndpoint && dstState == sideInternet:
		src = sql.NullInt64{Int64: srcID, Valid: true}
	case srcState == sideInternet && dstState == sideEndpoint:
		dst = sql.NullInt64{Int64: dstID, Valid: true}
	default:
		return nil
	}

	return upsertCommunication(tx, src, dst, f.Protocol, f.SrcPort, f.DstPort,
		f.PacketCount, f.Bytes, f.FirstSeen.Unix(), f.LastSeen.Unix())
}

func (w *Writer) resolveSide(tx *sql.Tx, mac, ip, iface string, ts time.Time) (int64, sideState, error) {
	id, _, err := w.resolver.Resolve(tx, model.Observation{
		MAC: mac, IP: ip, Interface: iface, Timestamp: ts,
	})
	if errors.Is(err, identity.ErrInternetDestination) {
		return 0, sideInternet, nil
	}
	if errors.Is(err, identity.ErrNotEndpoint) {
		return 0, sideSkip, nil
	}
	if err != nil {
		return 0, sideSkip, err
	}
	return id, sideEndpoint, nil
}

// upsertCommunication increments the one row for this conversation key,
// inserting it on first sight. COALESCE comparison is needed because NULL
// endpoint references never compare equal under the unique constraint.
func upsertCommunication(tx *sql.Tx, src, dst sql.NullInt64, protocol string,
	srcPort, dstPort int, packets, bytes, firstSeen, lastSeen int64) error {
	res, err := tx.Exec(
		`UPDATE communications SET
		     packet_count = packet_count + ?,
		     bytes = bytes + ?,
		     first_seen_at = MIN(first_seen_at, ?),
		     last_seen_at = MAX(last_seen_at, ?)
		 WHERE COALESCE(src_endpoint_id, -1) = COALESCE(?, -1)
		   AND COALESCE(dst_endpoint_id, -1) = COALESCE(?, -1)
		   AND protocol = ? AND src_port = ? AND dst_port = ?`,
		packets, bytes, firstSeen, lastSeen,
		src, dst, protocol, srcPort, dstPort)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected > 0 {
		return nil
	}

	_, err = tx.Exec(
		`INSERT INTO communications
		     (src_endpoint_id, dst_endpoint_id, protocol, src_port, dst_port,
		      packet_count, bytes, first_seen_at, last_seen_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		src, dst, protocol, srcPort, dstPort, packets, bytes, firstSeen, lastSeen)
	return err
}

// upsertInternetDestination totals traffic per external hostname. The name
// comes from the DNS cache (SNI, Host headers, DNS answers feed it); the IP
// literal is the fallback.
func (w *Writer) upsertInternetDestination(tx *sql.Tx, ip string, packets, bytes int64, outbound bool, ts time.Time) {
	name := ip
	if hostname, ok := w.cache.HostnameForIP(ip); ok {
		name = hostname
	}

	bytesIn, bytesOut := bytes, int64(0)
	if outbound {
		bytesIn, bytesOut = 0, bytes
	}

	res, err := tx.Exec(
		`UPDATE internet_destinations SET
		     last_seen_at = MAX(last_seen_at, ?),
		     packet_count = packet_count + ?,
		     bytes_in = bytes_in + ?,
		     bytes_out = bytes_out + ?
		 WHERE hostname = ?`,
		ts.Unix(), packets, bytesIn, bytesOut, name)
	if err != nil {
		log.Debug().Err(err).Msg("internet destination update failed")
		return
	}
	if affected, _ := res.RowsAffected(); affected > 0 {
		return
	}
	_, err = tx.Exec(
		`INSERT OR IGNORE INTO internet_destinations
		     (hostname, first_seen_at, last_seen_at, packet_count, bytes_in, bytes_out)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		name, ts.Unix(), ts.Unix(), packets, bytesIn, bytesOut)
	if err != nil {
		log.Debug().Err(err).Msg("internet destination insert failed")
	}
}

// RecordScanRecord persists a scanner result and folds its identity facts
// into the endpoint table.
func (w *Writer) RecordScanRecord(rec model.ScanRecord) {
	w.enqueue(func(tx *sql.Tx) error {
		obs := model.Observation{MAC: rec.MAC, IP: rec.IP, Hostname: rec.Hostname, Timestamp: rec.CreatedAt}
		id, _, err := w.resolver.Resolve(tx, obs)
		var endpointID sql.NullInt64
		if err == nil {
			endpointID = sql.NullInt64{Int64: id, Valid: true}
		} else if !errors.Is(err, identity.ErrNotEndpoint) && !errors.Is(err, identity.ErrInternetDestination) {
			return err
		}

		if _, err := tx.Exec(
			`INSERT INTO scan_results
			     (endpoint_id, scan_type, ip, mac, hostname, open_port, rtt_ms,
			      model, friendly_name, sys_descr, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			endpointID, rec.ScanType, rec.IP, rec.MAC, rec.Hostname, rec.OpenPort,
			rec.RTTMillis, rec.Model, rec.FriendlyName, rec.SysDescr, rec.CreatedAt.Unix()); err != nil {
			return err
		}

		if !endpointID.Valid {
			return nil
		}

		if rec.Model != "" || rec.FriendlyName != "" {
			if _, err := tx.Exec(
				`UPDATE endpoints SET
				     ssdp_model = CASE WHEN ?1 != '' THEN ?1 ELSE COALESCE(ssdp_model, '') END,
				     ssdp_friendly_name = CASE WHEN ?2 != '' THEN ?2 ELSE COALESCE(ssdp_friendly_name, '') END
				 WHERE id = ?3`,
				rec.Model, rec.FriendlyName, endpointID.Int64); err != nil {
				return err
			}
		}
		if rec.ScanType == "netbios" && rec.Hostname != "" {
			if _, err := tx.Exec(
				`UPDATE endpoints SET netbios_name = ? WHERE id = ?`,
				rec.Hostname, endpointID.Int64); err != nil {
				return err
			}
		}

		return w.resolver.Reclassify(tx, endpointID.Int64)
	})
}

// ApplySetting persists one tunable and refreshes the snapshot.
func (w *Writer) ApplySetting(key, value string) error {
	err := w.Do(func(tx *sql.Tx) error {
		_, err := tx.Exec(
			`INSERT INTO settings (key, value) VALUES (?, ?)
			 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
		return err
	})
	if err == nil {
		w.settings.set(key, value)
	}
	return err
}

func endpointIDsForIP(tx *sql.Tx, ip string) ([]int64, error) {
	rows, err := tx.Query(
		`SELECT DISTINCT endpoint_id FROM endpoint_attributes WHERE ip = ?`, ip)
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
