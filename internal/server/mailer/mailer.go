// Package mailer delivers transactional mail. Delivery runs off the request
// path through a Dispatcher, and its failures never reach the caller.
package mailer

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/storefront/internal/logging"
	"gopkg.in/gomail.v2"
)

type Message struct {
	To      string
	From    string
	Subject string
	HTML    string
}

type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPSender sends mail through an SMTP relay with gomail.
type SMTPSender struct {
	dialer *gomail.Dialer
	send   func(d *gomail.Dialer, m *gomail.Message) error
}

func NewSMTPSender(host string, port int, user, password string) *SMTPSender {
	return &SMTPSender{
		dialer: gomail.NewDialer(host, port, user, password),
		send: func(d *gomail.Dialer, m *gomail.Message) error {
			return d.DialAndSend(m)
		},
	}
}

// Send blocks until the relay accepts msg or ctx is done. On cancellation
// the SMTP exchange is abandoned and finishes in the background.
func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", msg.From)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/html", msg.HTML)

	done := make(chan error, 1)
	go func() {
		done <- s.send(s.dialer, m)
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("send email: %w", err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("send email: %w", ctx.Err())
	}
}

// LogSender stands in for SMTP when no relay is configured.
type LogSender struct {
	log logging.Logger
}

func NewLogSender(log logging.Logger) *LogSender {
	return &LogSender{log: log}
}

func (s *LogSender) Send(ctx context.Context, msg Message) error {
	s.log.Info(ctx, "smtp disabled, mail dropped", "to", msg.To, "subject", msg.Subject)
	return nil
}
