package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"legitify/internal/identity/models"
	"legitify/internal/topology"
)

// PostgresStore persists identities in the wallet_identities table.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed wallet.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Put stores a new identity. Existing labels are never overwritten.
func (s *PostgresStore) Put(ctx context.Context, identity models.Identity) error {
	if err := identity.Validate(); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalid, err)
	}
	identity = normalize(identity)
	if identity.CreatedAt.IsZero() {
		identity.CreatedAt = time.Now().UTC()
	}
	query := `
		INSERT INTO wallet_identities (org_name, label, msp_id, certificate, private_key, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := s.db.ExecContext(ctx, query,
		identity.Organization,
		identity.Label,
		identity.MSPID,
		identity.Certificate,
		identity.PrivateKey,
		identity.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("identity %q in %s: %w", identity.Label, identity.Organization, ErrConflict)
		}
		return fmt.Errorf("put identity: %w", err)
	}
	return nil
}

// Get returns the identity stored under label for the organization.
func (s *PostgresStore) Get(ctx context.Context, org, label string) (models.Identity, error) {
	query := `
		SELECT org_name, label, msp_id, certificate, private_key, created_at
		FROM wallet_identities
		WHERE org_name = $1 AND label = $2
	`
	var identity models.Identity
	err := s.db.QueryRowContext(ctx, query, topology.NormalizeOrganization(org), label).Scan(
		&identity.Organization,
		&identity.Label,
		&identity.MSPID,
		&identity.Certificate,
		&identity.PrivateKey,
		&identity.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Identity{}, fmt.Errorf("identity %q in %s: %w", label, org, ErrNotFound)
		}
		return models.Identity{}, fmt.Errorf("get identity: %w", err)
	}
	return identity, nil
}

// Delete removes an identity.
func (s *PostgresStore) Delete(ctx context.Context, org, label string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM wallet_identities WHERE org_name = $1 AND label = $2`,
		topology.NormalizeOrganization(org), label,
	)
	if err != nil {
		return fmt.Errorf("delete identity: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete identity: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("identity %q in %s: %w", label, org, ErrNotFound)
	}
	return nil
}

// List returns the identities of an organization ordered by label.
func (s *PostgresStore) List(ctx context.Context, org string) ([]models.Summary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT org_name, label, msp_id, created_at
		FROM wallet_identities
		WHERE org_name = $1
		ORDER BY label
	`, topology.NormalizeOrganization(org))
	if err != nil {
		return nil, fmt.Errorf("list identities: %w", err)
	}
	defer rows.Close()

	out := make([]models.Summary, 0)
	for rows.Next() {
		var sm models.Summary
		if err := rows.Scan(&sm.Organization, &sm.Label, &sm.MSPID, &sm.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan identity: %w", err)
		}
		out = append(out, sm)
	}
	return out, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
