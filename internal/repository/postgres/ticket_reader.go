package postgres

import (
	"context"
	"fmt"

	"github.com/shubhankar-shipowl/help-desk-sub004/internal/domain/ticket"
)

var _ ticket.Reader = (*TicketReader)(nil)

// TicketReader reads tables owned by the ticketing app. It never writes them.
type TicketReader struct{ db *DB }

func NewTicketReader(db *DB) *TicketReader { return &TicketReader{db: db} }

const (
	qTicketByID = `
SELECT id, ticket_number, subject, status, priority, created_by_id, assigned_to_id, updated_at
FROM tickets
WHERE id = $1;`

	qCommentByID = `
SELECT id, ticket_id, author_id, is_internal, created_at
FROM comments
WHERE id = $1;`

	qUserByID = `
SELECT id, name, email, role
FROM users
WHERE id = $1;`

	qUsersByRole = `
SELECT id, name, email, role
FROM users
WHERE role = $1
ORDER BY id;`
)

func (r *TicketReader) GetTicket(ctx context.Context, id int64) (*ticket.Ticket, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var t ticket.Ticket
	if err := r.db.Pool.QueryRow(ctx, qTicketByID, id).Scan(
		&t.ID, &t.Number, &t.Subject, &t.Status, &t.Priority, &t.CreatedByID, &t.AssignedToID, &t.UpdatedAt,
	); err != nil {
		return nil, mapPgErr("get ticket", err)
	}
	return &t, nil
}

func (r *TicketReader) GetComment(ctx context.Context, id int64) (*ticket.Comment, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var c ticket.Comment
	if err := r.db.Pool.QueryRow(ctx, qCommentByID, id).Scan(
		&c.ID, &c.TicketID, &c.AuthorID, &c.IsInternal, &c.CreatedAt,
	); err != nil {
		return nil, mapPgErr("get comment", err)
	}
	return &c, nil
}

func (r *TicketReader) GetUser(ctx context.Context, id int64) (*ticket.User, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var (
		u    ticket.User
		role string
	)
	if err := r.db.Pool.QueryRow(ctx, qUserByID, id).Scan(&u.ID, &u.Name, &u.Email, &role); err != nil {
		return nil, mapPgErr("get user", err)
	}
	u.Role = ticket.Role(role)
	return &u, nil
}

func (r *TicketReader) ListUsersByRole(ctx context.Context, role ticket.Role) ([]*ticket.User, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	rows, err := r.db.Pool.Query(ctx, qUsersByRole, string(role))
	if err != nil {
		return nil, fmt.Errorf("query users by role: %w", err)
	}
	defer rows.Close()

	var out []*ticket.User
	for rows.Next() {
		var (
			u  ticket.User
			rl string
		)
		if err := rows.Scan(&u.ID, &u.Name, &u.Email, &rl); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		u.Role = ticket.Role(rl)
		out = append(out, &u)
	}
	return out, rows.Err()
}
