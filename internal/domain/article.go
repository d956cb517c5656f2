package domain

import "time"

// DefaultMimeType is applied when an article is created without one.
const DefaultMimeType = "text/plain"

// Article is an immutable entry in a ticket's thread.
type Article struct {
	ArticleID    string
	TicketID     string
	TicketNumber string
	Subject      string
	Body         string
	MimeType     string
	CreatedAt    time.Time
}
