package ticket

import "time"

type Role string

const (
	RoleCustomer Role = "CUSTOMER"
	RoleAgent    Role = "AGENT"
	RoleAdmin    Role = "ADMIN"
)

// Ticket is the minimal read model of a ticket owned by the ticketing app.
type Ticket struct {
	ID           int64
	Number       string
	Subject      string
	Status       string
	Priority     string
	CreatedByID  int64
	AssignedToID *int64
	UpdatedAt    time.Time
}

type Comment struct {
	ID         int64
	TicketID   int64
	AuthorID   int64
	IsInternal bool
	CreatedAt  time.Time
}

type User struct {
	ID    int64
	Name  string
	Email string
	Role  Role
}
