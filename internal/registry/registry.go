package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ferux/trafficsentinel/internal/model"
)

// Registry is the durable device table keyed by MAC address. All
// operations are atomic per record; records are independent of each other.
type Registry struct {
	db *sql.DB
}

// New creates a new Registry on top of an initialized database.
func New(db *sql.DB) *Registry {
	return &Registry{db: db}
}

// UpsertSeen records a sighting of mac. An unknown address is created in
// quarantine with first_seen = last_seen = now; a known one only gets its
// last_seen touched. Reports whether the record was newly created.
func (r *Registry) UpsertSeen(ctx context.Context, mac string, now time.Time) (bool, error) {
	const touch = `
		UPDATE devices
		SET last_seen = ?
		WHERE mac_address = ?
	`
	res, err := r.db.ExecContext(ctx, touch, now, mac)
	if err != nil {
		return false, fmt.Errorf("touch device: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("touch device: %w", err)
	}
	if affected > 0 {
		return false, nil
	}

	const create = `
		INSERT INTO devices (mac_address, status, first_seen, last_seen, comment)
		VALUES (?, ?, ?, ?, '')
	`
	if _, err := r.db.ExecContext(ctx, create, mac, model.StatusQuarantine, now, now); err != nil {
		return false, fmt.Errorf("create device: %w", err)
	}

	return true, nil
}

// SetStatus changes the intended status of a known device. A nil comment
// leaves the stored annotation untouched.
func (r *Registry) SetStatus(ctx context.Context, mac string, status model.Status, comment *string) error {
	if !status.Valid() {
		return model.ErrInvalidStatus
	}

	var (
		res sql.Result
		err error
	)

	if comment != nil {
		const q = `UPDATE devices SET status = ?, comment = ? WHERE mac_address = ?`
		res, err = r.db.ExecContext(ctx, q, status, *comment, mac)
	} else {
		const q = `UPDATE devices SET status = ? WHERE mac_address = ?`
		res, err = r.db.ExecContext(ctx, q, status, mac)
	}
	if err != nil {
		return fmt.Errorf("set status: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set status: %w", err)
	}
	if affected == 0 {
		return model.ErrNotFound
	}

	return nil
}

// SetComment replaces the annotation of a known device.
func (r *Registry) SetComment(ctx context.Context, mac, comment string) error {
	const q = `UPDATE devices SET comment = ? WHERE mac_address = ?`

	res, err := r.db.ExecContext(ctx, q, comment, mac)
	if err != nil {
		return fmt.Errorf("set comment: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set comment: %w", err)
	}
	if affected == 0 {
		return model.ErrNotFound
	}

	return nil
}

// Put is the explicit admin add path: it creates the device with a chosen
// status or, when the address already exists, updates status and last_seen
// while preserving first_seen. An empty comment keeps the stored one.
func (r *Registry) Put(ctx context.Context, d model.Device) error {
	if !d.Status.Valid() {
		return model.ErrInvalidStatus
	}

	const q = `
		INSERT INTO devices (mac_address, status, first_seen, last_seen, comment)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(mac_address) DO UPDATE SET
			status = excluded.status,
			last_seen = excluded.last_seen,
			comment = CASE WHEN excluded.comment != '' THEN excluded.comment ELSE devices.comment END
	`
	if _, err := r.db.ExecContext(ctx, q, d.MAC, d.Status, d.FirstSeen, d.LastSeen, d.Comment); err != nil {
		return fmt.Errorf("put device: %w", err)
	}

	return nil
}

// Get returns one device record.
func (r *Registry) Get(ctx context.Context, mac string) (model.Device, error) {
	const q = `
		SELECT mac_address, status, first_seen, last_seen, comment
		FROM devices
		WHERE mac_address = ?
		LIMIT 1
	`

	var d model.Device
	err := r.db.QueryRowContext(ctx, q, mac).Scan(&d.MAC, &d.Status, &d.FirstSeen, &d.LastSeen, &d.Comment)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Device{}, model.ErrNotFound
		}
		return model.Device{}, fmt.Errorf("get device: %w", err)
	}

	return d, nil
}

// List returns every device record ordered by first sighting.
func (r *Registry) List(ctx context.Context) ([]model.Device, error) {
	const q = `
		SELECT mac_address, status, first_seen, last_seen, comment
		FROM devices
		ORDER BY first_seen, mac_address
	`

	return r.queryDevices(ctx, q)
}

// ListByIntent returns the devices whose status maps to the given router
// state: blocked covers banned and quarantine, unblocked covers authorized.
func (r *Registry) ListByIntent(ctx context.Context, blocked bool) ([]model.Device, error) {
	const blockedQ = `
		SELECT mac_address, status, first_seen, last_seen, comment
		FROM devices
		WHERE status IN ('banned', 'quarantine')
		ORDER BY mac_address
	`
	const unblockedQ = `
		SELECT mac_address, status, first_seen, last_seen, comment
		FROM devices
		WHERE status = 'authorized'
		ORDER BY mac_address
	`

	if blocked {
		return r.queryDevices(ctx, blockedQ)
	}

	return r.queryDevices(ctx, unblockedQ)
}

// Delete removes a device record. The sentinel never calls this; it exists
// for the admin surface only.
func (r *Registry) Delete(ctx context.Context, mac string) error {
	const q = `DELETE FROM devices WHERE mac_address = ?`

	res, err := r.db.ExecContext(ctx, q, mac)
	if err != nil {
		return fmt.Errorf("delete device: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete device: %w", err)
	}
	if affected == 0 {
		return model.ErrNotFound
	}

	return nil
}

func (r *Registry) queryDevices(ctx context.Context, query string) ([]model.Device, error) {
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query devices: %w", err)
	}
	defer rows.Close()

	var devices []model.Device
	for rows.Next() {
		var d model.Device
		if err := rows.Scan(&d.MAC, &d.Status, &d.FirstSeen, &d.LastSeen, &d.Comment); err != nil {
			return nil, fmt.Errorf("scan device: %w", err)
		}

		devices = append(devices, d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return devices, nil
}
