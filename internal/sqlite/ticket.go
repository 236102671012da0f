package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rpggio/admission/internal/domain/queue"
)

// TicketRepository implements queue.Repository for SQLite
type TicketRepository struct {
	db *DB
}

// NewTicketRepository creates a new TicketRepository
func NewTicketRepository(db *DB) *TicketRepository {
	return &TicketRepository{db: db}
}

const ticketColumns = `id, member_id, tier, position, status, created_at, updated_at`

// ListActive returns active tickets ordered by tier, position, id
func (r *TicketRepository) ListActive(ctx context.Context) ([]queue.Ticket, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+ticketColumns+`
		FROM tickets
		WHERE status = ?
		ORDER BY tier ASC, position ASC, id ASC
	`, queue.StatusActive)
	if err != nil {
		return nil, fmt.Errorf("failed to list active tickets: %w", err)
	}
	return collectTickets(rows)
}

// ListByMember returns every ticket held by a member, oldest first
func (r *TicketRepository) ListByMember(ctx context.Context, memberID string) ([]queue.Ticket, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+ticketColumns+`
		FROM tickets
		WHERE member_id = ?
		ORDER BY id ASC
	`, memberID)
	if err != nil {
		return nil, fmt.Errorf("failed to list member tickets: %w", err)
	}
	return collectTickets(rows)
}

// Snapshot reads active tickets and status counts in one transaction
func (r *TicketRepository) Snapshot(ctx context.Context) (queue.Snapshot, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return queue.Snapshot{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `
		SELECT `+ticketColumns+`
		FROM tickets
		WHERE status = ?
		ORDER BY tier ASC, position ASC, id ASC
	`, queue.StatusActive)
	if err != nil {
		return queue.Snapshot{}, fmt.Errorf("failed to list active tickets: %w", err)
	}
	active, err := collectTickets(rows)
	if err != nil {
		return queue.Snapshot{}, err
	}

	countRows, err := tx.QueryContext(ctx, `SELECT status, COUNT(*) FROM tickets GROUP BY status`)
	if err != nil {
		return queue.Snapshot{}, fmt.Errorf("failed to count tickets: %w", err)
	}
	defer countRows.Close()

	counts := make(map[queue.Status]int)
	for countRows.Next() {
		var status queue.Status
		var n int
		if err := countRows.Scan(&status, &n); err != nil {
			return queue.Snapshot{}, fmt.Errorf("failed to scan ticket count: %w", err)
		}
		counts[status] = n
	}
	if err := countRows.Err(); err != nil {
		return queue.Snapshot{}, fmt.Errorf("error iterating count rows: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return queue.Snapshot{}, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return queue.Snapshot{Active: active, Counts: counts}, nil
}

// Apply writes a change set atomically. Updates run before the insert.
func (r *TicketRepository) Apply(ctx context.Context, changes queue.ChangeSet) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, t := range changes.Updates {
		result, err := tx.ExecContext(ctx, `
			UPDATE tickets
			SET tier = ?, position = ?, status = ?, updated_at = ?
			WHERE id = ?
		`, t.Tier, t.Position, t.Status, t.UpdatedAt, t.ID)
		if err != nil {
			return fmt.Errorf("failed to update ticket %d: %w", t.ID, mapWriteError(err))
		}
		if err := requireRow(result); err != nil {
			return fmt.Errorf("ticket %d: %w", t.ID, err)
		}
	}

	if t := changes.Insert; t != nil {
		result, err := tx.ExecContext(ctx, `
			INSERT INTO tickets (member_id, tier, position, status, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, t.MemberID, t.Tier, t.Position, t.Status, t.CreatedAt, t.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert ticket: %w", mapWriteError(err))
		}
		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to read ticket id: %w", err)
		}
		t.ID = id
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func collectTickets(rows *sql.Rows) ([]queue.Ticket, error) {
	defer rows.Close()

	var tickets []queue.Ticket
	for rows.Next() {
		var t queue.Ticket
		if err := rows.Scan(
			&t.ID,
			&t.MemberID,
			&t.Tier,
			&t.Position,
			&t.Status,
			&t.CreatedAt,
			&t.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan ticket: %w", err)
		}
		tickets = append(tickets, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ticket rows: %w", err)
	}
	return tickets, nil
}
