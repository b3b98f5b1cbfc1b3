package notification

import (
	"context"
	"fmt"
	"mime"
	"net/mail"
	"net/smtp"
	"strings"

	"github.com/sakashimaa/ravolux/internal/domain"
	"github.com/sakashimaa/ravolux/pkg/config"
	"github.com/sakashimaa/ravolux/pkg/mylogger"
	"github.com/sakashimaa/ravolux/pkg/utils"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type Sender interface {
	Send(ctx context.Context, email *domain.Email) error
}

type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

type smtpSender struct {
	cfg      config.SMTP
	breaker  *gobreaker.CircuitBreaker
	sendMail sendMailFunc
	logger   *zap.Logger
	tracer   trace.Tracer
}

func NewSMTPSender(cfg config.SMTP, logger *zap.Logger) Sender {
	return newSMTPSender(cfg, smtp.SendMail, logger)
}

func newSMTPSender(cfg config.SMTP, sendMail sendMailFunc, logger *zap.Logger) *smtpSender {
	return &smtpSender{
		cfg:      cfg,
		breaker:  utils.NewBreaker("smtp", logger, nil),
		sendMail: sendMail,
		logger:   logger,
		tracer:   otel.Tracer("notification/smtp"),
	}
}

func (s *smtpSender) Send(ctx context.Context, email *domain.Email) error {
	ctx, span := s.tracer.Start(ctx, "smtp.Send")
	defer span.End()

	span.SetAttributes(attribute.String("email.subject", email.Subject))

	to, err := mail.ParseAddress(email.To)
	if err != nil {
		return fmt.Errorf("invalid recipient %q: %w", email.To, err)
	}

	msg := buildMessage(s.cfg.From, to.Address, email.Subject, email.HTML)
	addr := s.cfg.Host + ":" + s.cfg.Port

	var auth smtp.Auth
	if s.cfg.User != "" {
		auth = smtp.PlainAuth("", s.cfg.User, s.cfg.Password, s.cfg.Host)
	}

	_, err = utils.ExecuteWithBreaker(s.breaker, func() (struct{}, error) {
		return struct{}{}, s.sendMail(addr, auth, s.cfg.From, []string{to.Address}, msg)
	})
	if err != nil {
		span.RecordError(err)
		mylogger.Error(
			ctx,
			s.logger,
			"Error sending email",
			zap.String("subject", email.Subject),
			zap.Error(err),
		)

		return fmt.Errorf("failed to send mail: %w", err)
	}

	mylogger.Info(ctx, s.logger, "Email sent", zap.String("subject", email.Subject))

	return nil
}

func buildMessage(from, to, subject, html string) []byte {
	var b strings.Builder

	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + to + "\r\n")
	b.WriteString("Subject: " + mime.QEncoding.Encode("utf-8", subject) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(html)

	return []byte(b.String())
}
