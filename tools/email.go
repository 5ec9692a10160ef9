package tools

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/richinex/scribe/model"
)

// Sender delivers an email and returns its delivery id.
type Sender interface {
	Send(ctx context.Context, msg model.Message) (string, error)
}

// EmailPattern matches the addresses send_email accepts.
var EmailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// Delivery is the structured result of send_email.
type Delivery struct {
	Message    string `json:"message"`
	Recipient  string `json:"recipient"`
	Subject    string `json:"subject"`
	DeliveryID string `json:"message_id"`
}

// SendEmail hands messages to a Sender.
type SendEmail struct {
	sender Sender
}

// NewSendEmail creates the send_email action.
func NewSendEmail(sender Sender) *SendEmail {
	return &SendEmail{sender: sender}
}

// Spec describes send_email. It is side-effecting and never retried.
func (a *SendEmail) Spec() ActionSpec {
	return ActionSpec{
		Name:        "send_email",
		Description: "Send an email. Requires the recipient address, a subject line and the message body.",
		Tags:        []string{"email", "send", "notify"},
		InputSchema: Object([]string{"recipient", "subject", "body"}, map[string]any{
			"recipient": Prop("string", "Recipient email address", "minLength", 3),
			"subject":   Prop("string", "Email subject line", "minLength", 1),
			"body":      Prop("string", "Email body content", "minLength", 1),
			"is_html":   Prop("boolean", "Whether the body is HTML", "default", false),
		}),
		SideEffecting: true,
		Timeout:       time.Minute,
	}
}

// Handle validates the recipient and sends the message.
func (a *SendEmail) Handle(ctx context.Context, inputs map[string]any) (Output, error) {
	var msg model.Message
	if err := Decode(inputs, &msg); err != nil {
		return Output{}, err
	}
	if !EmailPattern.MatchString(msg.Recipient) {
		return Output{}, fmt.Errorf("invalid recipient email address %q: %w", msg.Recipient, model.ErrValidation)
	}

	id, err := a.sender.Send(ctx, msg)
	if err != nil {
		return Output{}, fmt.Errorf("send email: %w", err)
	}

	d := Delivery{
		Message:    "Email sent successfully to " + msg.Recipient,
		Recipient:  msg.Recipient,
		Subject:    msg.Subject,
		DeliveryID: id,
	}
	return Output{
		Text:        d.Message,
		Data:        d,
		SideEffects: []model.SideEffect{{Kind: "email", Target: msg.Recipient, Ref: id}},
	}, nil
}
