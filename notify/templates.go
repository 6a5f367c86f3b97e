package notify

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Composer builds the account emails for one product and base URL.
type Composer struct {
	Product string
	BaseURL string
}

// Link joins BaseURL, path and the token query parameter.
func (c Composer) Link(path, token string) string {
	base := strings.TrimRight(c.BaseURL, "/")
	return base + path + "?token=" + url.QueryEscape(token)
}

// Verification is sent on signup and on resend.
func (c Composer) Verification(to, name, token string, ttl time.Duration) Message {
	return Message{
		To:      to,
		Subject: fmt.Sprintf("Verify your %s email", c.Product),
		Body: fmt.Sprintf(
			"Hi %s,\n\nConfirm your email address by opening this link:\n\n%s\n\nThe link expires in %s. If you did not create an account, ignore this email.\n",
			greeting(name), c.Link("/verify-email", token), humanDuration(ttl),
		),
	}
}

// PasswordReset carries the reset link.
func (c Composer) PasswordReset(to, name, token string, ttl time.Duration) Message {
	return Message{
		To:      to,
		Subject: fmt.Sprintf("Reset your %s password", c.Product),
		Body: fmt.Sprintf(
			"Hi %s,\n\nSomeone asked to reset the password for this account. Open this link to choose a new one:\n\n%s\n\nThe link expires in %s and works once. If this was not you, ignore this email.\n",
			greeting(name), c.Link("/reset-password", token), humanDuration(ttl),
		),
	}
}

// PasswordChanged tells the owner that every session was signed out.
func (c Composer) PasswordChanged(to, name string, at time.Time) Message {
	return Message{
		To:      to,
		Subject: fmt.Sprintf("Your %s password was changed", c.Product),
		Body: fmt.Sprintf(
			"Hi %s,\n\nThe password for this account was changed at %s and every device was signed out.\nIf this was not you, reset your password right away.\n",
			greeting(name), at.UTC().Format(time.RFC1123),
		),
	}
}

func greeting(name string) string {
	if strings.TrimSpace(name) == "" {
		return "there"
	}
	return name
}

func humanDuration(d time.Duration) string {
	switch {
	case d >= time.Hour && d%time.Hour == 0:
		h := int(d / time.Hour)
		if h == 1 {
			return "1 hour"
		}
		return fmt.Sprintf("%d hours", h)
	case d >= time.Minute:
		return fmt.Sprintf("%d minutes", int(d/time.Minute))
	default:
		return d.String()
	}
}
