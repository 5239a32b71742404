// Package notification delivers patient-facing messages (appointment
// confirmations, token calls, results and pickup alerts) over email or SMS,
// with template rendering and an in-memory delivery log.
package notification

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// Channel is the delivery channel for a message.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

// Message is a single outbound notification.
type Message struct {
	ID         string            `json:"id"`
	Channel    Channel           `json:"channel"`
	Recipient  string            `json:"recipient"`
	Subject    string            `json:"subject,omitempty"`
	Body       string            `json:"body"`
	TemplateID string            `json:"template_id,omitempty"`
	Status     string            `json:"status"`
	CreatedAt  time.Time         `json:"created_at"`
	SentAt     *time.Time        `json:"sent_at,omitempty"`
	Error      string            `json:"error,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// EmailSender delivers email messages.
type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

// SMSSender delivers SMS messages.
type SMSSender interface {
	SendSMS(ctx context.Context, to, body string) error
}

// LogSender writes messages to the log instead of delivering them. Used in
// development when no gateway is configured.
type LogSender struct {
	Logger zerolog.Logger
}

func (s *LogSender) SendEmail(_ context.Context, to, subject, body string) error {
	s.Logger.Info().Str("to", to).Str("subject", subject).Str("body", body).Msg("email (log only)")
	return nil
}

func (s *LogSender) SendSMS(_ context.Context, to, body string) error {
	s.Logger.Info().Str("to", to).Str("body", body).Msg("sms (log only)")
	return nil
}

// Template is a reusable message template with {{key}} placeholders.
type Template struct {
	ID      string  `json:"id"`
	Name    string  `json:"name"`
	Subject string  `json:"subject"`
	Body    string  `json:"body"`
	Channel Channel `json:"channel"`
}

// TemplateEngine stores templates and renders them with data.
type TemplateEngine struct {
	mu        sync.RWMutex
	templates map[string]*Template
}

func NewTemplateEngine() *TemplateEngine {
	e := &TemplateEngine{templates: make(map[string]*Template)}
	e.registerBuiltIn()
	return e
}

func (e *TemplateEngine) registerBuiltIn() {
	builtIn := []Template{
		{
			ID:      "appointment-booked",
			Name:    "Appointment Booked",
			Body:    "Dear {{patient_name}}, your appointment with {{doctor_name}} is booked for {{date}} at {{time}}. Your queue token is {{token}}.",
			Channel: ChannelSMS,
		},
		{
			ID:      "appointment-status",
			Name:    "Appointment Status Changed",
			Body:    "Dear {{patient_name}}, your appointment on {{date}} is now {{status}}.",
			Channel: ChannelSMS,
		},
		{
			ID:      "token-called",
			Name:    "Token Called",
			Body:    "Token {{token}}: please proceed to room {{room}}.",
			Channel: ChannelSMS,
		},
		{
			ID:      "result-ready",
			Name:    "Test Result Ready",
			Subject: "Your {{test_name}} result is ready",
			Body:    "Dear {{patient_name}}, your {{test_name}} result is available. Please collect it at the diagnostics desk or ask your doctor.",
			Channel: ChannelEmail,
		},
		{
			ID:      "prescription-ready",
			Name:    "Prescription Ready",
			Body:    "Dear {{patient_name}}, your medicines are ready for pickup at the pharmacy counter.",
			Channel: ChannelSMS,
		},
		{
			ID:      "invoice-issued",
			Name:    "Invoice Issued",
			Subject: "Invoice {{invoice_no}}",
			Body:    "Dear {{patient_name}}, invoice {{invoice_no}} for {{amount}} has been issued. Please settle it at the billing counter.",
			Channel: ChannelEmail,
		},
	}
	for i := range builtIn {
		t := builtIn[i]
		e.templates[t.ID] = &t
	}
}

// RegisterTemplate adds or replaces a template.
func (e *TemplateEngine) RegisterTemplate(t Template) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates[t.ID] = &t
}

// Render substitutes {{key}} placeholders with values from data. Keys absent
// from data are left as-is.
func (e *TemplateEngine) Render(templateID string, data map[string]string) (*Template, string, string, error) {
	e.mu.RLock()
	t, ok := e.templates[templateID]
	e.mu.RUnlock()
	if !ok {
		return nil, "", "", fmt.Errorf("template %q not found", templateID)
	}

	subject := t.Subject
	body := t.Body
	for k, v := range data {
		placeholder := "{{" + k + "}}"
		subject = strings.ReplaceAll(subject, placeholder, v)
		body = strings.ReplaceAll(body, placeholder, v)
	}
	return t, subject, body, nil
}

// Service sends messages and keeps an in-memory delivery log.
type Service struct {
	emailSender EmailSender
	smsSender   SMSSender
	templates   *TemplateEngine
	logger      zerolog.Logger

	mu       sync.RWMutex
	messages map[string]*Message
}

func NewService(email EmailSender, sms SMSSender, tpl *TemplateEngine, logger zerolog.Logger) *Service {
	return &Service{
		emailSender: email,
		smsSender:   sms,
		templates:   tpl,
		logger:      logger,
		messages:    make(map[string]*Message),
	}
}

// Send dispatches a message through its channel and records the outcome.
func (s *Service) Send(ctx context.Context, m *Message) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	m.CreatedAt = time.Now().UTC()
	m.Status = "pending"

	sendErr := s.deliver(ctx, m)
	if sendErr != nil {
		m.Status = "failed"
		m.Error = sendErr.Error()
		s.logger.Warn().Err(sendErr).Str("recipient", m.Recipient).Str("channel", string(m.Channel)).Msg("notification delivery failed")
	} else {
		m.Status = "sent"
		sentAt := time.Now().UTC()
		m.SentAt = &sentAt
	}

	s.mu.Lock()
	s.messages[m.ID] = m
	s.mu.Unlock()

	return sendErr
}

func (s *Service) deliver(ctx context.Context, m *Message) error {
	switch m.Channel {
	case ChannelEmail:
		return s.emailSender.SendEmail(ctx, m.Recipient, m.Subject, m.Body)
	case ChannelSMS:
		return s.smsSender.SendSMS(ctx, m.Recipient, m.Body)
	default:
		return fmt.Errorf("unsupported channel: %s", m.Channel)
	}
}

// SendFromTemplate renders a template and sends the result on the template's
// channel.
func (s *Service) SendFromTemplate(ctx context.Context, templateID string, data map[string]string, recipient string) (*Message, error) {
	t, subject, body, err := s.templates.Render(templateID, data)
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	m := &Message{
		Channel:    t.Channel,
		Recipient:  recipient,
		Subject:    subject,
		Body:       body,
		TemplateID: templateID,
	}
	if err := s.Send(ctx, m); err != nil {
		return m, err
	}
	return m, nil
}

// Get retrieves a logged message by ID.
func (s *Service) Get(_ context.Context, id string) (*Message, error) {
	s.mu.RLock()
	m, ok := s.messages[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("message %q not found", id)
	}
	return m, nil
}

// ListByRecipient returns logged messages for a recipient, up to limit.
func (s *Service) ListByRecipient(_ context.Context, recipient string, limit int) ([]*Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*Message
	for _, m := range s.messages {
		if m.Recipient == recipient {
			result = append(result, m)
			if len(result) >= limit {
				break
			}
		}
	}
	return result, nil
}

// Retry re-sends a failed message.
func (s *Service) Retry(ctx context.Context, id string) error {
	s.mu.RLock()
	m, ok := s.messages[id]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("message %q not found", id)
	}
	if m.Status != "failed" {
		return fmt.Errorf("message %q is not in failed status (current: %s)", id, m.Status)
	}

	sendErr := s.deliver(ctx, m)

	s.mu.Lock()
	if sendErr != nil {
		m.Status = "failed"
		m.Error = sendErr.Error()
	} else {
		m.Status = "sent"
		sentAt := time.Now().UTC()
		m.SentAt = &sentAt
		m.Error = ""
	}
	s.mu.Unlock()

	return sendErr
}

// Stats returns message counts grouped by status.
func (s *Service) Stats(_ context.Context) map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := make(map[string]int)
	for _, m := range s.messages {
		stats[m.Status]++
	}
	return stats
}

// Handler exposes the delivery log and manual send operations over HTTP.
type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.POST("/notifications/send", h.HandleSend)
	g.POST("/notifications/send-template", h.HandleSendTemplate)
	g.GET("/notifications/stats", h.HandleStats)
	g.GET("/notifications/:id", h.HandleGet)
	g.GET("/notifications", h.HandleList)
	g.POST("/notifications/:id/retry", h.HandleRetry)
}

type sendRequest struct {
	Channel   Channel           `json:"channel"`
	Recipient string            `json:"recipient"`
	Subject   string            `json:"subject"`
	Body      string            `json:"body"`
	Metadata  map[string]string `json:"metadata"`
}

func (h *Handler) HandleSend(c echo.Context) error {
	var req sendRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	m := &Message{
		Channel:   req.Channel,
		Recipient: req.Recipient,
		Subject:   req.Subject,
		Body:      req.Body,
		Metadata:  req.Metadata,
	}

	// A delivery failure is still recorded; return the message so the caller
	// sees the ID and error.
	_ = h.svc.Send(c.Request().Context(), m)
	return c.JSON(http.StatusCreated, m)
}

type sendTemplateRequest struct {
	TemplateID string            `json:"template_id"`
	Recipient  string            `json:"recipient"`
	Data       map[string]string `json:"data"`
}

func (h *Handler) HandleSendTemplate(c echo.Context) error {
	var req sendTemplateRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	m, err := h.svc.SendFromTemplate(c.Request().Context(), req.TemplateID, req.Data, req.Recipient)
	if err != nil && m == nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusCreated, m)
}

func (h *Handler) HandleGet(c echo.Context) error {
	m, err := h.svc.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, m)
}

func (h *Handler) HandleList(c echo.Context) error {
	recipient := c.QueryParam("recipient")
	if recipient == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "recipient query parameter is required"})
	}

	list, err := h.svc.ListByRecipient(c.Request().Context(), recipient, 100)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, list)
}

func (h *Handler) HandleRetry(c echo.Context) error {
	id := c.Param("id")
	if err := h.svc.Retry(c.Request().Context(), id); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	m, _ := h.svc.Get(c.Request().Context(), id)
	return c.JSON(http.StatusOK, m)
}

func (h *Handler) HandleStats(c echo.Context) error {
	return c.JSON(http.StatusOK, h.svc.Stats(c.Request().Context()))
}
