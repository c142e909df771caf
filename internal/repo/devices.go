package repo

import (
	"context"
	"errors"
	"time"

	"parkpass/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type DevicesRepo struct{ db *pgxpool.Pool }

func NewDevicesRepo(db *pgxpool.Pool) *DevicesRepo { return &DevicesRepo{db: db} }

// Install replaces any existing device identity. One row per terminal.
func (r *DevicesRepo) Install(ctx context.Context, d models.DeviceConfig) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `delete from device_config`); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `
		insert into device_config (device_id, name, role, secret_key, last_sync, is_online)
		values ($1,$2,$3,$4,$5,$6)
	`, d.DeviceId, d.Name, d.Role, d.Key, d.LastSync, d.IsOnline); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *DevicesRepo) Get(ctx context.Context) (*models.DeviceConfig, error) {
	row := r.db.QueryRow(ctx, `
		select device_id, name, role, secret_key, last_sync, is_online
		from device_config limit 1
	`)

	var d models.DeviceConfig
	if err := row.Scan(&d.DeviceId, &d.Name, &d.Role, &d.Key, &d.LastSync, &d.IsOnline); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &d, nil
}

func (r *DevicesRepo) UpdateLastSync(ctx context.Context, deviceId string, at time.Time) error {
	_, err := r.db.Exec(ctx, `update device_config set last_sync=$2 where device_id=$1`, deviceId, at)
	return err
}

func (r *DevicesRepo) SetOnline(ctx context.Context, deviceId string, online bool) error {
	_, err := r.db.Exec(ctx, `update device_config set is_online=$2 where device_id=$1`, deviceId, online)
	return err
}

// RotateKey installs a fresh signing secret. Unexpired tickets signed with
// the old key stop verifying; that is the documented operational consequence
// of rotation, not a defect.
func (r *DevicesRepo) RotateKey(ctx context.Context, deviceId, newKey string) error {
	tag, err := r.db.Exec(ctx, `update device_config set secret_key=$2 where device_id=$1`, deviceId, newKey)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
