package repo

import (
	"context"
	"errors"

	"parkpass/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type StaffRepo struct{ db *pgxpool.Pool }

func NewStaffRepo(db *pgxpool.Pool) *StaffRepo { return &StaffRepo{db: db} }

func (r *StaffRepo) Create(ctx context.Context, s models.Staff) error {
	_, err := r.db.Exec(ctx, `
		insert into staff (staff_id, name, phone, role, pin_hash, is_active, created_at)
		values ($1,$2,$3,$4,$5,$6,$7)
		on conflict (staff_id) do update set
		  name=excluded.name,
		  phone=excluded.phone,
		  role=excluded.role,
		  pin_hash=excluded.pin_hash,
		  is_active=excluded.is_active
	`, s.StaffId, s.Name, s.Phone, s.Role, s.PinHash, s.IsActive, s.CreatedAt)
	return err
}

func (r *StaffRepo) GetByPhone(ctx context.Context, phone string) (*models.Staff, error) {
	row := r.db.QueryRow(ctx, `
		select staff_id, name, phone, role, pin_hash, is_active, created_at
		from staff where phone=$1
	`, phone)

	var s models.Staff
	if err := row.Scan(&s.StaffId, &s.Name, &s.Phone, &s.Role, &s.PinHash, &s.IsActive, &s.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}
