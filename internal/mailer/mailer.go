// Package mailer dispatches account emails. Delivery itself is out of
// process: the AMQP implementation publishes templated messages to a topic
// exchange for a downstream worker, the console implementation is the MVP
// fallback for local development.
package mailer

import (
	"context"
	"fmt"
	"log"
)

type Mailer interface {
	SendConfirmation(ctx context.Context, to, token string) error
	SendPasswordReset(ctx context.Context, to, code string) error
}

// ConsoleMailer logs outgoing mail instead of sending it.
type ConsoleMailer struct {
	BaseURL string
}

func NewConsole(baseURL string) *ConsoleMailer {
	return &ConsoleMailer{BaseURL: baseURL}
}

func (c *ConsoleMailer) SendConfirmation(_ context.Context, to, token string) error {
	log.Printf("[mail] to=%s confirm link: %s\n", to, ConfirmationLink(c.BaseURL, token))
	return nil
}

func (c *ConsoleMailer) SendPasswordReset(_ context.Context, to, code string) error {
	log.Printf("[mail] to=%s reset code: %s\n", to, code)
	return nil
}

// ConfirmationLink builds the link embedded in confirmation emails.
func ConfirmationLink(baseURL, token string) string {
	return fmt.Sprintf("%s/auth/confirm-email?token=%s", baseURL, token)
}
