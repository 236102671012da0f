package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/rpggio/admission/internal/domain/member"
	"github.com/rpggio/admission/internal/repository"
)

// MemberRepository implements member.Repository for SQLite
type MemberRepository struct {
	db *DB
}

// NewMemberRepository creates a new MemberRepository
func NewMemberRepository(db *DB) *MemberRepository {
	return &MemberRepository{db: db}
}

const memberColumns = `id, external_id, display_name, reason, tier, active, created_at`

// Create inserts a new member. A taken external id yields repository.ErrConflict.
func (r *MemberRepository) Create(ctx context.Context, m *member.Member) error {
	query := `
		INSERT INTO members (id, external_id, display_name, reason, tier, active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query,
		m.ID,
		m.ExternalID,
		m.DisplayName,
		m.Reason,
		m.Tier,
		m.Active,
		m.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return repository.ErrConflict
		}
		return fmt.Errorf("failed to create member: %w", err)
	}

	return nil
}

// Get retrieves a member by ID
func (r *MemberRepository) Get(ctx context.Context, id string) (*member.Member, error) {
	query := `SELECT ` + memberColumns + ` FROM members WHERE id = ?`
	return r.getOne(ctx, query, id)
}

// GetByExternalID retrieves a member by external identity
func (r *MemberRepository) GetByExternalID(ctx context.Context, externalID string) (*member.Member, error) {
	query := `SELECT ` + memberColumns + ` FROM members WHERE external_id = ?`
	return r.getOne(ctx, query, externalID)
}

func (r *MemberRepository) getOne(ctx context.Context, query string, arg any) (*member.Member, error) {
	m, err := scanMember(r.db.QueryRowContext(ctx, query, arg))
	if err == sql.ErrNoRows {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get member: %w", err)
	}
	return m, nil
}

// GetMany retrieves the members with the given IDs keyed by ID
func (r *MemberRepository) GetMany(ctx context.Context, ids []string) (map[string]member.Member, error) {
	out := make(map[string]member.Member, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	query := `SELECT ` + memberColumns + ` FROM members WHERE id IN (` + placeholders(len(ids)) + `)`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get members: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		out[m.ID] = *m
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating member rows: %w", err)
	}

	return out, nil
}

// List returns members in registration order
func (r *MemberRepository) List(ctx context.Context, opts member.ListOptions) ([]member.Member, error) {
	query := `SELECT ` + memberColumns + ` FROM members`
	var args []any

	if opts.ActiveOnly {
		query += " WHERE active = 1"
	}
	query += " ORDER BY created_at ASC, id ASC"

	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
		if opts.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, opts.Offset)
		}
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()

	var members []member.Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		members = append(members, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating member rows: %w", err)
	}

	return members, nil
}

// SetActive updates the active flag
func (r *MemberRepository) SetActive(ctx context.Context, id string, active bool) error {
	result, err := r.db.ExecContext(ctx, `UPDATE members SET active = ? WHERE id = ?`, active, id)
	if err != nil {
		return fmt.Errorf("failed to set member active: %w", err)
	}
	return requireRow(result)
}

// UpdateReason replaces the reason and tier
func (r *MemberRepository) UpdateReason(ctx context.Context, id, reason string, tier int) error {
	result, err := r.db.ExecContext(ctx, `UPDATE members SET reason = ?, tier = ? WHERE id = ?`, reason, tier, id)
	if err != nil {
		return fmt.Errorf("failed to update member reason: %w", err)
	}
	return requireRow(result)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMember(row rowScanner) (*member.Member, error) {
	var m member.Member
	if err := row.Scan(
		&m.ID,
		&m.ExternalID,
		&m.DisplayName,
		&m.Reason,
		&m.Tier,
		&m.Active,
		&m.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &m, nil
}

func requireRow(result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
