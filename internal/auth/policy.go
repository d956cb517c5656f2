package auth

// Operation names a gateway operation for session policy decisions.
type Operation string

const (
	OpCreateSession Operation = "CreateSession"
	OpCreateTicket  Operation = "CreateTicket"
	OpUpdateTicket  Operation = "UpdateTicket"
	OpGetTicket     Operation = "GetTicket"
	OpSearchTickets Operation = "SearchTickets"
	OpAddContext    Operation = "AddContext"
)

// SessionPolicy decides which operations need a valid session before dispatch.
type SessionPolicy struct {
	CreateTicketRequiresSession bool
}

// RequiresSession reports whether op must present a valid session.
// AddContext is excluded because it also accepts a user/password pair.
func (p SessionPolicy) RequiresSession(op Operation) bool {
	switch op {
	case OpCreateSession, OpAddContext:
		return false
	case OpCreateTicket:
		return p.CreateTicketRequiresSession
	default:
		return true
	}
}
