package notification

import (
	"context"
	"errors"
	"net/smtp"
	"strings"
	"testing"

	"github.com/sakashimaa/ravolux/internal/domain"
	"github.com/sakashimaa/ravolux/pkg/config"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordedMail struct {
	addr string
	auth smtp.Auth
	from string
	to   []string
	msg  string
}

func TestSMTPSender_Send(t *testing.T) {
	var got recordedMail
	sender := newSMTPSender(config.SMTP{
		Host: "mail.local",
		Port: "2525",
		From: "no-reply@ravolux.com",
	}, func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		got = recordedMail{addr: addr, auth: a, from: from, to: to, msg: string(msg)}
		return nil
	}, zap.NewNop())

	err := sender.Send(context.Background(), &domain.Email{
		To:      "Ana <ana@example.com>",
		Subject: "Narudžba ORD-1",
		HTML:    "<p>hello</p>",
	})
	require.NoError(t, err)

	assert.Equal(t, "mail.local:2525", got.addr)
	assert.Nil(t, got.auth)
	assert.Equal(t, "no-reply@ravolux.com", got.from)
	assert.Equal(t, []string{"ana@example.com"}, got.to)
	assert.Contains(t, got.msg, "To: ana@example.com\r\n")
	assert.Contains(t, got.msg, "Subject: =?utf-8?q?")
	assert.Contains(t, got.msg, "Content-Type: text/html")
	assert.True(t, strings.HasSuffix(got.msg, "\r\n\r\n<p>hello</p>"))
}

func TestSMTPSender_InvalidRecipient(t *testing.T) {
	called := false
	sender := newSMTPSender(config.SMTP{Host: "mail.local", Port: "25"}, func(string, smtp.Auth, string, []string, []byte) error {
		called = true
		return nil
	}, zap.NewNop())

	err := sender.Send(context.Background(), &domain.Email{To: "not an address\r\nBcc: x@y.z"})
	require.Error(t, err)
	assert.False(t, called)
}

func TestSMTPSender_BreakerOpens(t *testing.T) {
	calls := 0
	sender := newSMTPSender(config.SMTP{Host: "mail.local", Port: "25", User: "u", Password: "p"},
		func(string, smtp.Auth, string, []string, []byte) error {
			calls++
			return errors.New("connection refused")
		}, zap.NewNop())

	email := &domain.Email{To: "ana@example.com", Subject: "s", HTML: "b"}
	for i := 0; i < 5; i++ {
		require.Error(t, sender.Send(context.Background(), email))
	}

	err := sender.Send(context.Background(), email)
	require.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, 5, calls)
}
