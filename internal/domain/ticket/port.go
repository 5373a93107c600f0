package ticket

import "context"

// Reader loads ticket context from the shared relational store. It never writes.
type Reader interface {
	GetTicket(ctx context.Context, id int64) (*Ticket, error)
	GetComment(ctx context.Context, id int64) (*Comment, error)
	GetUser(ctx context.Context, id int64) (*User, error)
	ListUsersByRole(ctx context.Context, role Role) ([]*User, error)
}
