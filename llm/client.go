// Client - the narrow completion interface the agent and tools depend on.

package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/richinex/scribe/internal/json"
)

// Prompt is one single-turn request: an optional system prompt plus the user
// message.
type Prompt struct {
	System string
	User   string
}

// Messages converts the prompt to chat messages.
func (p Prompt) Messages() []ChatMessage {
	var msgs []ChatMessage
	if p.System != "" {
		msgs = append(msgs, SystemMessage(p.System))
	}
	return append(msgs, UserMessage(p.User))
}

// Completer is the text-completion collaborator. A nil format requests free
// text.
type Completer interface {
	Complete(ctx context.Context, prompt Prompt, format *ResponseFormat) (string, error)
}

// DefaultTimeout bounds a single completion call.
const DefaultTimeout = 60 * time.Second

// Client wraps a Provider with a per-call timeout and logging.
type Client struct {
	provider Provider
	timeout  time.Duration
	logger   zerolog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithTimeout sets the per-call timeout. Zero disables it.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.timeout = d }
}

// WithLogger sets the client logger.
func WithLogger(l zerolog.Logger) ClientOption {
	return func(c *Client) { c.logger = l }
}

// NewClient creates a new LLM client from a provider.
func NewClient(provider Provider, opts ...ClientOption) *Client {
	c := &Client{provider: provider, timeout: DefaultTimeout, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Complete sends the prompt and returns the reply text.
func (c *Client) Complete(ctx context.Context, prompt Prompt, format *ResponseFormat) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := c.provider.ChatWithFormat(ctx, prompt.Messages(), format)
	if err != nil {
		return "", fmt.Errorf("%s: %w", c.provider.Name(), err)
	}

	ev := c.logger.Debug().
		Str("provider", c.provider.Name()).
		Str("model", c.provider.Model()).
		Dur("duration", time.Since(start))
	if resp.Usage != nil {
		ev = ev.Uint32("total_tokens", resp.Usage.TotalTokens)
	}
	ev.Msg("completion")

	return resp.Content, nil
}

// Provider returns the underlying provider.
func (c *Client) Provider() Provider {
	return c.provider
}

// CompleteJSON requests a JSON reply and decodes it into T.
func CompleteJSON[T any](ctx context.Context, c Completer, prompt Prompt) (T, error) {
	var zero T
	text, err := c.Complete(ctx, prompt, NewJSONObjectFormat())
	if err != nil {
		return zero, err
	}
	return json.ExtractJSONFromResponse[T](text)
}

// Verify Client implements Completer
var _ Completer = (*Client)(nil)
