package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dharsanguruparan/DataBridge/internal/model"
)

// PostgresDirectory reads actors from the users table.
type PostgresDirectory struct {
	pool *pgxpool.Pool
}

// NewPostgresDirectory constructs a directory over pool.
func NewPostgresDirectory(pool *pgxpool.Pool) *PostgresDirectory {
	return &PostgresDirectory{pool: pool}
}

// Lookup returns the active user with id.
func (d *PostgresDirectory) Lookup(ctx context.Context, id int64) (model.Actor, error) {
	var a model.Actor
	err := d.pool.QueryRow(ctx, `
		SELECT id, display_name, role FROM users WHERE id=$1 AND active
	`, id).Scan(&a.ID, &a.Name, &a.Role)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Actor{}, model.NotFoundf("user %d not found", id)
		}
		return model.Actor{}, fmt.Errorf("select user: %w", err)
	}
	return a, nil
}

// ListByRole returns the active users holding role.
func (d *PostgresDirectory) ListByRole(ctx context.Context, role model.Role) ([]model.Actor, error) {
	rows, err := d.pool.Query(ctx, `
		SELECT id, display_name, role FROM users WHERE role=$1 AND active ORDER BY id
	`, role)
	if err != nil {
		return nil, fmt.Errorf("select users by role: %w", err)
	}
	defer rows.Close()
	var out []model.Actor
	for rows.Next() {
		var a model.Actor
		if err := rows.Scan(&a.ID, &a.Name, &a.Role); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Upsert inserts or updates a user, used to seed the roster.
func (d *PostgresDirectory) Upsert(ctx context.Context, a model.Actor) error {
	if !a.Role.Valid() {
		return model.Validationf("unknown role %q", a.Role)
	}
	_, err := d.pool.Exec(ctx, `
		INSERT INTO users (id, display_name, role, active)
		VALUES ($1,$2,$3,TRUE)
		ON CONFLICT (id) DO UPDATE SET display_name=EXCLUDED.display_name, role=EXCLUDED.role, active=TRUE
	`, a.ID, a.Name, a.Role)
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}
