package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"legitify/internal/documents/models"
)

// PostgresStore persists users and documents in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed metadata store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// SaveUser inserts or updates a user keyed by id.
func (s *PostgresStore) SaveUser(ctx context.Context, user models.User) error {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	query := `
		INSERT INTO users (id, email, role, org_name, identity_label, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			email = EXCLUDED.email,
			role = EXCLUDED.role,
			org_name = EXCLUDED.org_name,
			identity_label = EXCLUDED.identity_label
	`
	_, err := s.db.ExecContext(ctx, query,
		user.ID,
		models.NormalizeEmail(user.Email),
		string(user.Role),
		user.Organization,
		user.IdentityLabel,
		user.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("email %s: %w", user.Email, ErrConflict)
		}
		return fmt.Errorf("save user: %w", err)
	}
	return nil
}

const userColumns = `id, email, role, org_name, identity_label, created_at`

// FindUserByEmail looks a user up by email, case-insensitively.
func (s *PostgresStore) FindUserByEmail(ctx context.Context, email string) (models.User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1`,
		models.NormalizeEmail(email),
	)
	return scanUser(row)
}

// FindUserByID looks a user up by id.
func (s *PostgresStore) FindUserByID(ctx context.Context, id uuid.UUID) (models.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

func scanUser(row *sql.Row) (models.User, error) {
	var (
		u    models.User
		role string
	)
	if err := row.Scan(&u.ID, &u.Email, &role, &u.Organization, &u.IdentityLabel, &u.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.User{}, ErrNotFound
		}
		return models.User{}, fmt.Errorf("scan user: %w", err)
	}
	u.Role = models.Role(role)
	return u, nil
}

// CreateDocument inserts a new document row.
func (s *PostgresStore) CreateDocument(ctx context.Context, doc models.Document) error {
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now().UTC()
	}
	query := `
		INSERT INTO documents (id, owner_id, issuer_id, issuer_org, hash, metadata, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
	`
	_, err := s.db.ExecContext(ctx, query,
		doc.ID,
		doc.OwnerID,
		doc.IssuerID,
		doc.IssuerOrg,
		doc.Hash,
		[]byte(doc.Metadata),
		string(doc.Status),
		doc.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("document %s: %w", doc.ID, ErrConflict)
		}
		return fmt.Errorf("create document: %w", err)
	}
	return nil
}

const documentColumns = `id, owner_id, issuer_id, issuer_org, hash, metadata, status, created_at, updated_at`

// FindDocument returns a document by ledger id.
func (s *PostgresStore) FindDocument(ctx context.Context, id string) (models.Document, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = $1`, id)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Document{}, ErrNotFound
	}
	return doc, err
}

// TransitionStatus moves a document to next if its current status allows it.
// The guard runs in the UPDATE itself so concurrent transitions cannot both win.
func (s *PostgresStore) TransitionStatus(ctx context.Context, id string, next models.Status) (models.Document, error) {
	from := models.AllowedFrom(next)
	allowed := make([]string, len(from))
	for i, st := range from {
		allowed[i] = string(st)
	}
	row := s.db.QueryRowContext(ctx, `
		UPDATE documents SET status = $2, updated_at = $3
		WHERE id = $1 AND status = ANY($4)
		RETURNING `+documentColumns,
		id, string(next), time.Now().UTC(), allowed,
	)
	doc, err := scanDocument(row)
	if err == nil {
		return doc, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return models.Document{}, fmt.Errorf("transition document: %w", err)
	}
	current, findErr := s.FindDocument(ctx, id)
	if findErr != nil {
		return models.Document{}, findErr
	}
	return models.Document{}, fmt.Errorf("document %s is %s, cannot become %s: %w", id, current.Status, next, ErrInvalidState)
}

// ListAccepted returns the owner's accepted documents, oldest first.
func (s *PostgresStore) ListAccepted(ctx context.Context, ownerID uuid.UUID) ([]models.Candidate, error) {
	docs, err := s.listByOwner(ctx, ownerID, string(models.StatusAccepted))
	if err != nil {
		return nil, err
	}
	out := make([]models.Candidate, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.Candidate())
	}
	return out, nil
}

// ListByOwner returns every document of the owner, oldest first.
func (s *PostgresStore) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]models.Document, error) {
	return s.listByOwner(ctx, ownerID, "")
}

func (s *PostgresStore) listByOwner(ctx context.Context, ownerID uuid.UUID, status string) ([]models.Document, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+documentColumns+`
		FROM documents
		WHERE owner_id = $1 AND ($2 = '' OR status = $2)
		ORDER BY created_at, id
	`, ownerID, status)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	out := make([]models.Document, 0)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(row scanner) (models.Document, error) {
	var (
		doc      models.Document
		metadata []byte
		status   string
	)
	err := row.Scan(&doc.ID, &doc.OwnerID, &doc.IssuerID, &doc.IssuerOrg, &doc.Hash,
		&metadata, &status, &doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		return models.Document{}, err
	}
	doc.Metadata = metadata
	doc.Status = models.Status(status)
	return doc, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
