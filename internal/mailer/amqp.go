package mailer

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	RKConfirmation  = "email.confirmation"
	RKPasswordReset = "email.password_reset"
)

type EmailMessage struct {
	To       string            `json:"to"`
	From     string            `json:"from"`
	Subject  string            `json:"subject"`
	Template string            `json:"template"`
	Params   map[string]string `json:"params"`
}

// AMQPMailer publishes email jobs to a topic exchange.
type AMQPMailer struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
	from     string
	baseURL  string
}

func NewAMQP(url, exchange, from, baseURL string) (*AMQPMailer, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	return &AMQPMailer{conn: conn, ch: ch, exchange: exchange, from: from, baseURL: baseURL}, nil
}

func (m *AMQPMailer) SendConfirmation(ctx context.Context, to, token string) error {
	return m.publish(ctx, RKConfirmation, EmailMessage{
		To:       to,
		From:     m.from,
		Subject:  "Confirm your email address",
		Template: "confirm-email",
		Params: map[string]string{
			"link": ConfirmationLink(m.baseURL, token),
		},
	})
}

func (m *AMQPMailer) SendPasswordReset(ctx context.Context, to, code string) error {
	return m.publish(ctx, RKPasswordReset, EmailMessage{
		To:       to,
		From:     m.from,
		Subject:  "Your password reset code",
		Template: "password-reset",
		Params: map[string]string{
			"code": code,
		},
	})
}

func (m *AMQPMailer) publish(ctx context.Context, key string, msg EmailMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return m.ch.PublishWithContext(ctx, m.exchange, key, false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        body,
	})
}

func (m *AMQPMailer) Close() error {
	if m.ch != nil {
		_ = m.ch.Close()
	}
	if m.conn != nil {
		return m.conn.Close()
	}
	return nil
}
