package notify

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestMessageValidateRejectsHeaderInjection(t *testing.T) {
	ok := Message{To: "a@example.com", Subject: "hi", Body: "x"}
	require.NoError(t, ok.Validate())

	bad := []Message{
		{To: "", Subject: "hi"},
		{To: "a@example.com", Subject: ""},
		{To: "a@example.com\r\nBcc: evil@example.com", Subject: "hi"},
		{To: "a@example.com", Subject: "hi\nX-Injected: 1"},
	}
	for _, m := range bad {
		assert.ErrorIs(t, m.Validate(), ErrInvalidMessage)
	}
}

func TestComposerLinks(t *testing.T) {
	c := Composer{Product: "Ledger", BaseURL: "https://app.example.com/"}

	v := c.Verification("a@example.com", "Alice", "tok-123_abc", 24*time.Hour)
	assert.Equal(t, "a@example.com", v.To)
	assert.Contains(t, v.Subject, "Ledger")
	assert.Contains(t, v.Body, "https://app.example.com/verify-email?token=tok-123_abc")
	assert.Contains(t, v.Body, "24 hours")
	assert.Contains(t, v.Body, "Hi Alice")

	r := c.PasswordReset("a@example.com", "", "tok", time.Hour)
	assert.Contains(t, r.Body, "https://app.example.com/reset-password?token=tok")
	assert.Contains(t, r.Body, "1 hour")
	assert.Contains(t, r.Body, "Hi there")

	p := c.PasswordChanged("a@example.com", "Alice", time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	assert.Contains(t, p.Body, "every device was signed out")
}

func TestRecorder(t *testing.T) {
	r := NewRecorder()
	ctx := context.Background()

	require.NoError(t, r.Send(ctx, Message{To: "a@example.com", Subject: "one"}))
	require.NoError(t, r.Send(ctx, Message{To: "b@example.com", Subject: "two"}))
	assert.Len(t, r.Messages(), 2)
	assert.Len(t, r.To("a@example.com"), 1)

	boom := errors.New("relay down")
	r.FailWith(boom)
	assert.ErrorIs(t, r.Send(ctx, Message{To: "a@example.com", Subject: "three"}), boom)
	assert.Len(t, r.Messages(), 2)
}

func TestLogMailer(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	m := NewLogMailer(zap.New(core))

	require.NoError(t, m.Send(context.Background(), Message{To: "a@example.com", Subject: "Verify", Body: "link"}))
	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "a@example.com", fields["to"])
	assert.Equal(t, "Verify", fields["subject"])
}

func TestBuildMessageHeaders(t *testing.T) {
	raw := string(buildMessage("noreply@example.com", Message{
		To:      "a@example.com",
		Subject: "Réinitialiser",
		Body:    "line1\nline2",
	}, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)))

	assert.True(t, strings.HasPrefix(raw, "From: noreply@example.com\r\nTo: a@example.com\r\n"))
	assert.Contains(t, raw, "Subject: =?utf-8?q?")
	assert.Contains(t, raw, "Content-Type: text/plain; charset=UTF-8\r\n")
	assert.Contains(t, raw, "\r\n\r\nline1\r\nline2\r\n")
}

func TestNewSMTPMailerValidation(t *testing.T) {
	_, err := NewSMTPMailer(SMTPConfig{Port: 587, From: "x@example.com"})
	assert.Error(t, err)
	_, err = NewSMTPMailer(SMTPConfig{Host: "smtp.example.com", Port: 0, From: "x@example.com"})
	assert.Error(t, err)
	m, err := NewSMTPMailer(SMTPConfig{Host: "smtp.example.com", Port: 587, From: "x@example.com"})
	require.NoError(t, err)
	assert.ErrorIs(t, m.Send(context.Background(), Message{To: "", Subject: "x"}), ErrInvalidMessage)
}
