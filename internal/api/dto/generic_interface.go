// Package dto holds the request and response shapes of the generic ticket
// connector REST interface.
package dto

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/spec-kit/ticket-gateway/internal/domain"
	apperrors "github.com/spec-kit/ticket-gateway/pkg/util/errorutil"
)

// TimeLayout is the timestamp format used in Created/Changed fields.
const TimeLayout = "2006-01-02 15:04:05"

// Stage accepts either a JSON number or a numeric string.
type Stage int

// UnmarshalJSON implements json.Unmarshaler.
func (s *Stage) UnmarshalJSON(data []byte) error {
	raw := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if raw == "" || raw == "null" {
		*s = 0
		return nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return err
	}
	*s = Stage(n)
	return nil
}

// PlaybookFields are accepted on every mutating request body.
type PlaybookFields struct {
	Playbook string `json:"Playbook"`
	Stage    Stage  `json:"Stage"`
}

// SessionCreateRequest payload. UserLogin is accepted as an alias of User.
type SessionCreateRequest struct {
	User      string `json:"User"`
	UserLogin string `json:"UserLogin"`
	Password  string `json:"Password"`
	PlaybookFields
}

// Login returns User, falling back to UserLogin.
func (r SessionCreateRequest) Login() string {
	if r.User != "" {
		return r.User
	}
	return r.UserLogin
}

// SessionCreateResponse payload.
type SessionCreateResponse struct {
	SessionID   string `json:"SessionID"`
	SessionName string `json:"SessionName"`
	User        string `json:"User"`
}

// DynamicFieldEntry is the list form of a dynamic field.
type DynamicFieldEntry struct {
	Name  string `json:"Name"`
	Value any    `json:"Value"`
}

// TicketPayload carries ticket attributes. Pointers distinguish absent from empty.
type TicketPayload struct {
	Title         *string             `json:"Title"`
	Queue         *string             `json:"Queue"`
	Priority      *string             `json:"Priority"`
	Type          *string             `json:"Type"`
	State         *string             `json:"State"`
	CustomerUser  *string             `json:"CustomerUser"`
	DynamicFields map[string]any      `json:"DynamicFields"`
	DynamicField  []DynamicFieldEntry `json:"DynamicField"`
	Notes         []string            `json:"Notes"`
}

// Fields flattens DynamicFields and the DynamicField list into one map; list
// entries win on conflict since they are applied last.
func (p *TicketPayload) Fields() map[string]any {
	if p == nil || (len(p.DynamicFields) == 0 && len(p.DynamicField) == 0) {
		return nil
	}
	out := make(map[string]any, len(p.DynamicFields)+len(p.DynamicField))
	for k, v := range p.DynamicFields {
		out[k] = v
	}
	for _, entry := range p.DynamicField {
		if entry.Name != "" {
			out[entry.Name] = entry.Value
		}
	}
	return out
}

// ArticlePayload carries an article.
type ArticlePayload struct {
	Subject  string `json:"Subject"`
	Body     string `json:"Body"`
	MimeType string `json:"MimeType"`
}

// TicketCreateRequest payload.
type TicketCreateRequest struct {
	SessionID string          `json:"SessionID"`
	Ticket    *TicketPayload  `json:"Ticket"`
	Article   *ArticlePayload `json:"Article"`
	PlaybookFields
}

// TicketCreateResponse payload.
type TicketCreateResponse struct {
	TicketID     string `json:"TicketID"`
	TicketNumber string `json:"TicketNumber"`
	ArticleID    string `json:"ArticleID,omitempty"`
}

// TicketUpdateRequest payload.
type TicketUpdateRequest struct {
	SessionID    string          `json:"SessionID"`
	TicketNumber string          `json:"TicketNumber"`
	Ticket       *TicketPayload  `json:"Ticket"`
	Article      *ArticlePayload `json:"Article"`
	PlaybookFields
}

// TicketUpdateResponse payload.
type TicketUpdateResponse struct {
	TicketID     string           `json:"TicketID"`
	TicketNumber string           `json:"TicketNumber"`
	Article      *ArticleResponse `json:"Article,omitempty"`
}

// TicketGetRequest payload.
type TicketGetRequest struct {
	SessionID    string `json:"SessionID"`
	TicketNumber string `json:"TicketNumber"`
}

// TicketGetResponse payload. Error is set alongside an empty Ticket list when
// the ticket does not exist.
type TicketGetResponse struct {
	Ticket []TicketResponse `json:"Ticket"`
	Error  *ErrorBody       `json:"Error,omitempty"`
}

// TicketSearchRequest payload; the same names are read from the query string.
type TicketSearchRequest struct {
	SessionID    string  `json:"SessionID" query:"SessionID"`
	TicketNumber *string `json:"TicketNumber" query:"TicketNumber"`
	Queue        *string `json:"Queue" query:"Queue"`
	State        *string `json:"State" query:"State"`
	CustomerUser *string `json:"CustomerUser" query:"CustomerUser"`
	Title        *string `json:"Title" query:"Title"`
	Limit        int     `json:"Limit" query:"Limit"`
}

// TicketSearchResponse payload.
type TicketSearchResponse struct {
	TicketID []string `json:"TicketID"`
}

// AddContextRequest payload.
type AddContextRequest struct {
	SessionID string         `json:"SessionID"`
	User      string         `json:"User"`
	Password  string         `json:"Password"`
	Context   map[string]any `json:"Context"`
	PlaybookFields
}

// AddContextResponse payload.
type AddContextResponse struct {
	Ticket ContextTicket `json:"Ticket"`
}

// ContextTicket is the ticket view returned by AddDetectionContext.
type ContextTicket struct {
	TicketNumber  string         `json:"TicketNumber"`
	DynamicFields map[string]any `json:"DynamicFields"`
}

// TicketResponse is one entry of TicketGet's Ticket list.
type TicketResponse struct {
	TicketID      string            `json:"TicketID"`
	TicketNumber  string            `json:"TicketNumber"`
	Title         string            `json:"Title"`
	Queue         string            `json:"Queue"`
	Priority      string            `json:"Priority"`
	Type          string            `json:"Type"`
	State         string            `json:"State"`
	CustomerUser  string            `json:"CustomerUser"`
	DynamicFields map[string]any    `json:"DynamicFields"`
	Notes         []string          `json:"Notes"`
	Created       string            `json:"Created"`
	Changed       string            `json:"Changed"`
	Articles      []ArticleResponse `json:"Articles"`
}

// ArticleResponse represents an article.
type ArticleResponse struct {
	ArticleID string `json:"ArticleID"`
	Subject   string `json:"Subject"`
	Body      string `json:"Body"`
	MimeType  string `json:"MimeType"`
	Created   string `json:"Created"`
}

// ErrorBody is the error object of the envelope.
type ErrorBody struct {
	ErrorCode    string `json:"ErrorCode"`
	ErrorMessage string `json:"ErrorMessage"`
}

// ErrorResponse is the envelope returned for every failure.
type ErrorResponse struct {
	Error ErrorBody `json:"Error"`
}

// NewErrorBody renders a domain error.
func NewErrorBody(err *apperrors.DomainError) ErrorBody {
	return ErrorBody{ErrorCode: err.Code, ErrorMessage: err.Message}
}

// NewTicketResponse renders a ticket with its articles.
func NewTicketResponse(ticket *domain.Ticket, articles []domain.Article) TicketResponse {
	fields := ticket.DynamicFields
	if fields == nil {
		fields = map[string]any{}
	}
	notes := ticket.Notes
	if notes == nil {
		notes = []string{}
	}
	out := TicketResponse{
		TicketID:      ticket.TicketID,
		TicketNumber:  ticket.TicketNumber,
		Title:         ticket.Title,
		Queue:         ticket.Queue,
		Priority:      ticket.Priority,
		Type:          ticket.Type,
		State:         ticket.State,
		CustomerUser:  ticket.CustomerUser,
		DynamicFields: fields,
		Notes:         notes,
		Created:       formatTime(ticket.CreatedAt),
		Changed:       formatTime(ticket.UpdatedAt),
		Articles:      make([]ArticleResponse, 0, len(articles)),
	}
	for i := range articles {
		out.Articles = append(out.Articles, NewArticleResponse(&articles[i]))
	}
	return out
}

// NewArticleResponse renders an article.
func NewArticleResponse(article *domain.Article) ArticleResponse {
	return ArticleResponse{
		ArticleID: article.ArticleID,
		Subject:   article.Subject,
		Body:      article.Body,
		MimeType:  article.MimeType,
		Created:   formatTime(article.CreatedAt),
	}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// Decode unmarshals body into v. An empty body leaves v untouched.
func Decode(body []byte, v any) error {
	if len(strings.TrimSpace(string(body))) == 0 {
		return nil
	}
	return json.Unmarshal(body, v)
}
