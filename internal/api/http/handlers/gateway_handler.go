package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"

	"github.com/spec-kit/ticket-gateway/internal/api/dto"
	"github.com/spec-kit/ticket-gateway/internal/auth"
	"github.com/spec-kit/ticket-gateway/internal/domain"
	"github.com/spec-kit/ticket-gateway/internal/observability"
	"github.com/spec-kit/ticket-gateway/internal/repository"
	"github.com/spec-kit/ticket-gateway/internal/service"
	apperrors "github.com/spec-kit/ticket-gateway/pkg/util/errorutil"
)

const (
	headerPlaybook      = "X-Playbook"
	headerPlaybookStage = "X-Playbook-Stage"
)

// GatewayHandler serves the generic ticket connector operations.
type GatewayHandler struct {
	gateway     *service.Gateway
	sessionName string
	metrics     *observability.Metrics
}

// NewGatewayHandler constructs handler.
func NewGatewayHandler(gateway *service.Gateway, sessionName string, metrics *observability.Metrics) *GatewayHandler {
	return &GatewayHandler{gateway: gateway, sessionName: sessionName, metrics: metrics}
}

func decode(c *fiber.Ctx, v any) error {
	if err := dto.Decode(c.Body(), v); err != nil {
		return apperrors.NewInvalidRequest("request body is not valid JSON", nil)
	}
	return nil
}

// playbook prefers the X-Playbook headers over body fields.
func playbook(c *fiber.Ctx, body dto.PlaybookFields) domain.PlaybookContext {
	pb := domain.PlaybookContext{Playbook: body.Playbook, Stage: int(body.Stage)}
	if v := strings.TrimSpace(c.Get(headerPlaybook)); v != "" {
		pb.Playbook = utils.CopyString(v)
	}
	if v := strings.TrimSpace(c.Get(headerPlaybookStage)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			pb.Stage = n
		}
	}
	return pb
}

func credentials(c *fiber.Ctx) service.Credentials {
	return service.Credentials{SessionID: auth.SessionTokenFromContext(c)}
}

// ticketNumber prefers the path parameter, then the body, then the query.
func ticketNumber(c *fiber.Ctx, fromBody string) string {
	if v := strings.TrimSpace(c.Params("ticketNumber")); v != "" {
		return utils.CopyString(v)
	}
	if v := strings.TrimSpace(fromBody); v != "" {
		return v
	}
	return utils.CopyString(strings.TrimSpace(c.Query("TicketNumber")))
}

// CreateSession POST {base}/Session.
func (h *GatewayHandler) CreateSession(c *fiber.Ctx) error {
	var req dto.SessionCreateRequest
	if err := decode(c, &req); err != nil {
		return err
	}
	session, err := h.gateway.CreateSession(c.UserContext(), req.Login(), req.Password, playbook(c, req.PlaybookFields))
	if err != nil {
		return err
	}
	return c.JSON(dto.SessionCreateResponse{
		SessionID:   session.SessionID,
		SessionName: h.sessionName,
		User:        session.User,
	})
}

// CreateTicket POST {base}/TicketCreate.
func (h *GatewayHandler) CreateTicket(c *fiber.Ctx) error {
	var req dto.TicketCreateRequest
	if err := decode(c, &req); err != nil {
		return err
	}
	if req.Ticket == nil {
		return apperrors.NewInvalidTicketFields("missing Ticket object in payload", nil)
	}

	fields := service.TicketFields{
		Title:         deref(req.Ticket.Title),
		Queue:         deref(req.Ticket.Queue),
		Priority:      deref(req.Ticket.Priority),
		Type:          deref(req.Ticket.Type),
		State:         deref(req.Ticket.State),
		CustomerUser:  deref(req.Ticket.CustomerUser),
		DynamicFields: req.Ticket.Fields(),
	}
	ticket, article, err := h.gateway.CreateTicket(c.UserContext(), credentials(c), fields, articleInput(req.Article), playbook(c, req.PlaybookFields))
	if err != nil {
		return err
	}

	resp := dto.TicketCreateResponse{TicketID: ticket.TicketID, TicketNumber: ticket.TicketNumber}
	if article != nil {
		resp.ArticleID = article.ArticleID
	}
	return c.Status(http.StatusCreated).JSON(resp)
}

// UpdateTicket POST {base}/TicketUpdate[/:ticketNumber].
func (h *GatewayHandler) UpdateTicket(c *fiber.Ctx) error {
	var req dto.TicketUpdateRequest
	if err := decode(c, &req); err != nil {
		return err
	}

	var changes service.TicketChanges
	if req.Ticket != nil {
		changes = service.TicketChanges{
			Title:         req.Ticket.Title,
			Queue:         req.Ticket.Queue,
			Priority:      req.Ticket.Priority,
			Type:          req.Ticket.Type,
			State:         req.Ticket.State,
			CustomerUser:  req.Ticket.CustomerUser,
			DynamicFields: req.Ticket.Fields(),
			Notes:         req.Ticket.Notes,
		}
	}
	ticket, article, err := h.gateway.UpdateTicket(c.UserContext(), credentials(c), ticketNumber(c, req.TicketNumber),
		changes, articleInput(req.Article), playbook(c, req.PlaybookFields))
	if err != nil {
		return err
	}

	resp := dto.TicketUpdateResponse{TicketID: ticket.TicketID, TicketNumber: ticket.TicketNumber}
	if article != nil {
		rendered := dto.NewArticleResponse(article)
		resp.Article = &rendered
	}
	return c.JSON(resp)
}

// GetTicket POST|GET {base}/TicketGet[/:ticketNumber]. A missing ticket is a
// 404 that still carries an empty Ticket list.
func (h *GatewayHandler) GetTicket(c *fiber.Ctx) error {
	var req dto.TicketGetRequest
	if err := decode(c, &req); err != nil {
		return err
	}
	ticket, articles, err := h.gateway.GetTicket(c.UserContext(), credentials(c), ticketNumber(c, req.TicketNumber))
	if apperrors.IsCode(err, apperrors.CodeTicketNotFound) {
		domainErr := apperrors.ToDomainError(err)
		h.metrics.RecordError(c.Route().Path, c.Method(), domainErr.Code)
		body := dto.NewErrorBody(domainErr)
		return c.Status(domainErr.HTTPStatus).JSON(dto.TicketGetResponse{Ticket: []dto.TicketResponse{}, Error: &body})
	}
	if err != nil {
		return err
	}
	return c.JSON(dto.TicketGetResponse{Ticket: []dto.TicketResponse{dto.NewTicketResponse(ticket, articles)}})
}

// SearchTickets POST|GET {base}/TicketSearch.
func (h *GatewayHandler) SearchTickets(c *fiber.Ctx) error {
	var req dto.TicketSearchRequest
	if err := c.QueryParser(&req); err != nil {
		return apperrors.NewInvalidRequest("invalid query parameters", nil)
	}
	if err := decode(c, &req); err != nil {
		return err
	}
	filter := repository.TicketFilter{
		TicketNumber: nonEmpty(req.TicketNumber),
		Queue:        nonEmpty(req.Queue),
		State:        nonEmpty(req.State),
		CustomerUser: nonEmpty(req.CustomerUser),
		TitleLike:    nonEmpty(req.Title),
		Limit:        req.Limit,
	}
	ids, err := h.gateway.SearchTickets(c.UserContext(), credentials(c), filter)
	if err != nil {
		return err
	}
	return c.JSON(dto.TicketSearchResponse{TicketID: ids})
}

// AddContext POST {base}/AddDetectionContext/:ticketNumber.
func (h *GatewayHandler) AddContext(c *fiber.Ctx) error {
	var req dto.AddContextRequest
	if err := decode(c, &req); err != nil {
		return err
	}
	creds := credentials(c)
	creds.User = req.User
	creds.Password = req.Password

	ticket, err := h.gateway.AddContext(c.UserContext(), creds, ticketNumber(c, ""), req.Context, playbook(c, req.PlaybookFields))
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(dto.AddContextResponse{Ticket: dto.ContextTicket{
		TicketNumber:  ticket.TicketNumber,
		DynamicFields: ticket.DynamicFields,
	}})
}

func articleInput(p *dto.ArticlePayload) *service.ArticleInput {
	if p == nil {
		return nil
	}
	return &service.ArticleInput{Subject: p.Subject, Body: p.Body, MimeType: p.MimeType}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func nonEmpty(s *string) *string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	v := strings.TrimSpace(*s)
	return &v
}
