package sqlite

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/rpggio/admission/internal/repository"
)

// OperatorKeyRepository maps API keys to operator identities
type OperatorKeyRepository struct {
	db *DB
}

// NewOperatorKeyRepository creates a new OperatorKeyRepository
func NewOperatorKeyRepository(db *DB) *OperatorKeyRepository {
	return &OperatorKeyRepository{db: db}
}

// Create stores the hash of token for operatorID
func (r *OperatorKeyRepository) Create(ctx context.Context, token, operatorID, description string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO api_keys (key_hash, operator_id, description, created_at)
		VALUES (?, ?, ?, ?)
	`, hashToken(token), operatorID, description, time.Now())
	if err != nil {
		if isUniqueViolation(err) {
			return repository.ErrConflict
		}
		return fmt.Errorf("failed to create api key: %w", err)
	}
	return nil
}

// ResolveOperator returns the operator owning token
func (r *OperatorKeyRepository) ResolveOperator(ctx context.Context, token string) (string, error) {
	hash := hashToken(token)
	var operatorID string
	err := r.db.QueryRowContext(ctx, `SELECT operator_id FROM api_keys WHERE key_hash = ?`, hash).Scan(&operatorID)
	if err == sql.ErrNoRows || (err == nil && operatorID == "") {
		return "", repository.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to resolve api key: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, `UPDATE api_keys SET last_used = ? WHERE key_hash = ?`, time.Now(), hash); err != nil {
		return "", fmt.Errorf("failed to touch api key: %w", err)
	}
	return operatorID, nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
