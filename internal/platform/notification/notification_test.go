package notification

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

type emailCall struct {
	To      string
	Subject string
	Body    string
}

type mockEmailSender struct {
	mu    sync.Mutex
	calls []emailCall
	fail  bool
}

func (m *mockEmailSender) SendEmail(_ context.Context, to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, emailCall{To: to, Subject: subject, Body: body})
	if m.fail {
		return errors.New("smtp unavailable")
	}
	return nil
}

type smsCall struct {
	To   string
	Body string
}

type mockSMSSender struct {
	mu    sync.Mutex
	calls []smsCall
	fail  bool
}

func (m *mockSMSSender) SendSMS(_ context.Context, to, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, smsCall{To: to, Body: body})
	if m.fail {
		return errors.New("gateway unavailable")
	}
	return nil
}

func newTestService() (*Service, *mockEmailSender, *mockSMSSender) {
	email := &mockEmailSender{}
	sms := &mockSMSSender{}
	svc := NewService(email, sms, NewTemplateEngine(), zerolog.Nop())
	return svc, email, sms
}

func TestTemplateEngine_RegisterAndRender(t *testing.T) {
	eng := NewTemplateEngine()
	eng.RegisterTemplate(Template{
		ID:      "test-tpl",
		Name:    "Test Template",
		Subject: "Hello {{name}}",
		Body:    "Dear {{name}}, your code is {{code}}.",
		Channel: ChannelEmail,
	})

	tpl, subject, body, err := eng.Render("test-tpl", map[string]string{
		"name": "Alice",
		"code": "1234",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tpl.Channel != ChannelEmail {
		t.Errorf("channel = %q, want email", tpl.Channel)
	}
	if subject != "Hello Alice" {
		t.Errorf("subject = %q, want %q", subject, "Hello Alice")
	}
	if body != "Dear Alice, your code is 1234." {
		t.Errorf("body = %q, want %q", body, "Dear Alice, your code is 1234.")
	}
}

func TestTemplateEngine_RenderMissing(t *testing.T) {
	eng := NewTemplateEngine()
	_, _, _, err := eng.Render("nonexistent", nil)
	if err == nil {
		t.Fatal("expected error for missing template, got nil")
	}
}

func TestTemplateEngine_BuiltInTemplates(t *testing.T) {
	eng := NewTemplateEngine()
	builtIn := []string{
		"appointment-booked",
		"appointment-status",
		"token-called",
		"result-ready",
		"prescription-ready",
		"invoice-issued",
	}
	for _, id := range builtIn {
		_, _, _, err := eng.Render(id, map[string]string{
			"patient_name": "Test",
			"doctor_name":  "Dr. Rao",
			"date":         "2026-01-01",
			"time":         "10:00",
			"token":        "T-1-5",
			"room":         "1",
			"status":       "completed",
			"test_name":    "CBC",
			"invoice_no":   "INV-2026-101",
			"amount":       "500",
		})
		if err != nil {
			t.Errorf("built-in template %q not found: %v", id, err)
		}
	}
}

func TestTemplateEngine_UnknownKeysLeftAsIs(t *testing.T) {
	eng := NewTemplateEngine()
	_, _, body, err := eng.Render("token-called", map[string]string{"token": "T-1-1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(body, "{{room}}") {
		t.Errorf("body = %q, expected unresolved {{room}} placeholder", body)
	}
}

func TestService_SendEmail(t *testing.T) {
	svc, email, _ := newTestService()

	m := &Message{
		Channel:   ChannelEmail,
		Recipient: "pat@example.com",
		Subject:   "Hello",
		Body:      "Body",
	}
	if err := svc.Send(context.Background(), m); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Status != "sent" {
		t.Errorf("status = %q, want sent", m.Status)
	}
	if m.SentAt == nil {
		t.Error("expected SentAt to be set")
	}
	if len(email.calls) != 1 || email.calls[0].To != "pat@example.com" {
		t.Errorf("email calls = %+v", email.calls)
	}
}

func TestService_SendSMS(t *testing.T) {
	svc, _, sms := newTestService()

	m := &Message{Channel: ChannelSMS, Recipient: "+911234567890", Body: "Token T-1-2"}
	if err := svc.Send(context.Background(), m); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sms.calls) != 1 || sms.calls[0].Body != "Token T-1-2" {
		t.Errorf("sms calls = %+v", sms.calls)
	}
}

func TestService_SendFailureRecorded(t *testing.T) {
	svc, _, sms := newTestService()
	sms.fail = true

	m := &Message{Channel: ChannelSMS, Recipient: "+91999", Body: "x"}
	if err := svc.Send(context.Background(), m); err == nil {
		t.Fatal("expected error, got nil")
	}
	if m.Status != "failed" {
		t.Errorf("status = %q, want failed", m.Status)
	}
	if m.Error == "" {
		t.Error("expected error message recorded")
	}

	// Message stays retrievable in the delivery log.
	got, err := svc.Get(context.Background(), m.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != "failed" {
		t.Errorf("logged status = %q, want failed", got.Status)
	}
}

func TestService_SendUnsupportedChannel(t *testing.T) {
	svc, _, _ := newTestService()
	m := &Message{Channel: "carrier-pigeon", Recipient: "x", Body: "y"}
	if err := svc.Send(context.Background(), m); err == nil {
		t.Fatal("expected error for unsupported channel, got nil")
	}
}

func TestService_SendFromTemplate(t *testing.T) {
	svc, _, sms := newTestService()

	m, err := svc.SendFromTemplate(context.Background(), "token-called", map[string]string{
		"token": "T-3-7",
		"room":  "3",
	}, "+911234567890")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Channel != ChannelSMS {
		t.Errorf("channel = %q, want sms", m.Channel)
	}
	if len(sms.calls) != 1 {
		t.Fatalf("expected 1 sms call, got %d", len(sms.calls))
	}
	if !strings.Contains(sms.calls[0].Body, "T-3-7") || !strings.Contains(sms.calls[0].Body, "room 3") {
		t.Errorf("body = %q", sms.calls[0].Body)
	}
}

func TestService_Retry(t *testing.T) {
	svc, _, sms := newTestService()
	sms.fail = true

	m := &Message{Channel: ChannelSMS, Recipient: "+91999", Body: "x"}
	_ = svc.Send(context.Background(), m)

	sms.fail = false
	if err := svc.Retry(context.Background(), m.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, _ := svc.Get(context.Background(), m.ID)
	if got.Status != "sent" {
		t.Errorf("status = %q, want sent", got.Status)
	}
	if got.Error != "" {
		t.Errorf("error = %q, want empty", got.Error)
	}
}

func TestService_RetryNotFailed(t *testing.T) {
	svc, _, _ := newTestService()

	m := &Message{Channel: ChannelSMS, Recipient: "+91999", Body: "x"}
	if err := svc.Send(context.Background(), m); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := svc.Retry(context.Background(), m.ID); err == nil {
		t.Fatal("expected error retrying a sent message, got nil")
	}
}

func TestService_ListByRecipient(t *testing.T) {
	svc, _, _ := newTestService()

	for i := 0; i < 3; i++ {
		_ = svc.Send(context.Background(), &Message{Channel: ChannelSMS, Recipient: "+91111", Body: "a"})
	}
	_ = svc.Send(context.Background(), &Message{Channel: ChannelSMS, Recipient: "+92222", Body: "b"})

	list, err := svc.ListByRecipient(context.Background(), "+91111", 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(list) != 3 {
		t.Errorf("expected 3 messages, got %d", len(list))
	}
}

func TestService_Stats(t *testing.T) {
	svc, _, sms := newTestService()

	_ = svc.Send(context.Background(), &Message{Channel: ChannelSMS, Recipient: "a", Body: "x"})
	sms.fail = true
	_ = svc.Send(context.Background(), &Message{Channel: ChannelSMS, Recipient: "b", Body: "y"})

	stats := svc.Stats(context.Background())
	if stats["sent"] != 1 || stats["failed"] != 1 {
		t.Errorf("stats = %v", stats)
	}
}

func TestHandler_SendTemplate(t *testing.T) {
	svc, _, _ := newTestService()
	h := NewHandler(svc)

	e := echo.New()
	body := `{"template_id":"token-called","recipient":"+91123","data":{"token":"T-1-1","room":"1"}}`
	req := httptest.NewRequest(http.MethodPost, "/notifications/send-template", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.HandleSendTemplate(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", rec.Code)
	}

	var m Message
	if err := json.Unmarshal(rec.Body.Bytes(), &m); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if m.Status != "sent" {
		t.Errorf("status = %q, want sent", m.Status)
	}
}

func TestHandler_ListRequiresRecipient(t *testing.T) {
	svc, _, _ := newTestService()
	h := NewHandler(svc)

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/notifications", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.HandleList(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestHandler_GetMissing(t *testing.T) {
	svc, _, _ := newTestService()
	h := NewHandler(svc)

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/notifications/none", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues("none")

	if err := h.HandleGet(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}
