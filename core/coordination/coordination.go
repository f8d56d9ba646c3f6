// Package coordination connects a conversation to the external multi-agent
// coordination service over a server-sent events stream. The stream is
// opaque to the runtime: events are surfaced but never interpreted.
package coordination

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	coreerrors "github.com/adalundhe/duet/core/errors"
)

// DefaultAgentDescription is how this service introduces itself.
const DefaultAgentDescription = "You are a helpful voice assistant. You analyze user emotions. " +
	"If the user is in emotional distress, you transfer the user to the emotional support agent. " +
	"For other requests, you assist the user as a voice assistant."

// DefaultTimeout bounds the connection handshake.
const DefaultTimeout = 10 * time.Second

// ErrDisabled is returned by Connect when no service URL is configured.
var ErrDisabled = errors.New("coordination channel is disabled")

// Config configures the coordination channel.
type Config struct {
	SSEURL           string        `yaml:"sse_url"`
	AgentID          string        `yaml:"agent_id"`
	AgentDescription string        `yaml:"agent_description"`
	Timeout          time.Duration `yaml:"timeout"`
	Retries          int           `yaml:"retries"`
	RetryDelay       time.Duration `yaml:"retry_delay"`
}

// DefaultConfig returns the defaults. The URL is empty, so the channel is
// disabled until configured.
func DefaultConfig() Config {
	return Config{
		AgentDescription: DefaultAgentDescription,
		Timeout:          DefaultTimeout,
		Retries:          2,
		RetryDelay:       500 * time.Millisecond,
	}
}

// Enabled reports whether a service URL is configured.
func (c Config) Enabled() bool {
	return strings.TrimSpace(c.SSEURL) != ""
}

// URL builds <sse_url>?agentId=<id>&agentDescription=<desc>, keeping any
// query parameters already on the base URL.
func (c Config) URL() (string, error) {
	u, err := url.Parse(strings.TrimSpace(c.SSEURL))
	if err != nil {
		return "", &coreerrors.ConfigurationError{Subject: "coordination.sse_url", Reason: err.Error()}
	}
	if u.Scheme == "" || u.Host == "" {
		return "", &coreerrors.ConfigurationError{Subject: "coordination.sse_url", Reason: "must be an absolute URL"}
	}

	desc := c.AgentDescription
	if desc == "" {
		desc = DefaultAgentDescription
	}

	q := u.Query()
	q.Set("agentId", c.AgentID)
	q.Set("agentDescription", desc)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c Config) retryPolicies() map[coreerrors.ErrorTier]*coreerrors.RetryPolicy {
	policy := func() *coreerrors.RetryPolicy {
		return &coreerrors.RetryPolicy{
			MaxAttempts:   c.Retries,
			InitialDelay:  c.RetryDelay,
			MaxDelay:      10 * c.RetryDelay,
			Multiplier:    2.0,
			JitterPercent: 0.1,
		}
	}
	policies := coreerrors.DefaultRetryPolicies()
	policies[coreerrors.TierTransient] = policy()
	policies[coreerrors.TierExternalDegrading] = policy()
	return policies
}

// Event is one server-sent event.
type Event struct {
	Name string
	Data string
}

// Channel is an open coordination stream.
type Channel struct {
	url    string
	resp   *http.Response
	cancel context.CancelFunc
	logger *slog.Logger

	events chan Event
	done   chan struct{}

	closeOnce sync.Once
}

// Connect opens the stream, retrying per tier policy. Failures are wrapped
// in a ConnectionError. The handshake is bounded by cfg.Timeout; the stream
// then lives until Close or ctx ends.
func Connect(ctx context.Context, cfg Config, client *http.Client, logger *slog.Logger) (*Channel, error) {
	if !cfg.Enabled() {
		return nil, ErrDisabled
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}

	target, err := cfg.URL()
	if err != nil {
		return nil, err
	}

	var ch *Channel
	attempt := 0
	err = coreerrors.NewRetryExecutor(cfg.retryPolicies()).Do(ctx, func(ctx context.Context) error {
		attempt++
		var dialErr error
		ch, dialErr = dial(ctx, client, target, cfg.Timeout, logger)
		if dialErr != nil {
			logger.Warn("coordination connect failed",
				slog.Int("attempt", attempt),
				slog.String("error", dialErr.Error()))
		}
		return dialErr
	})
	if err != nil {
		return nil, &coreerrors.ConnectionError{Service: "coordination", Err: err}
	}

	logger.Info("coordination channel connected", slog.Int("attempts", attempt))
	return ch, nil
}

func dial(ctx context.Context, client *http.Client, target string, timeout time.Duration, logger *slog.Logger) (*Channel, error) {
	streamCtx, cancel := context.WithCancel(ctx)
	timer := time.AfterFunc(timeout, cancel)

	req, err := http.NewRequestWithContext(streamCtx, http.MethodGet, target, nil)
	if err != nil {
		timer.Stop()
		cancel()
		return nil, coreerrors.WrapWithTier(coreerrors.TierPermanent, "build request", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := client.Do(req)
	if !timer.Stop() {
		if resp != nil {
			resp.Body.Close()
		}
		cancel()
		return nil, coreerrors.ErrTimeout
	}
	if err != nil {
		cancel()
		return nil, coreerrors.WrapWithTier(coreerrors.TierTransient, "open stream", err)
	}
	if resp.StatusCode >= 300 {
		resp.Body.Close()
		cancel()
		tier := coreerrors.TierForStatus(resp.StatusCode)
		return nil, coreerrors.NewTieredError(tier, fmt.Sprintf("unexpected status %d", resp.StatusCode), nil).
			WithStatusCode(resp.StatusCode)
	}

	ch := &Channel{
		url:    target,
		resp:   resp,
		cancel: cancel,
		logger: logger,
		events: make(chan Event, 16),
		done:   make(chan struct{}),
	}
	go ch.readLoop()
	return ch, nil
}

// URL returns the connected URL.
func (c *Channel) URL() string { return c.url }

// Events delivers received events. Events are dropped when nobody reads.
func (c *Channel) Events() <-chan Event { return c.events }

// Done is closed when the stream ends.
func (c *Channel) Done() <-chan struct{} { return c.done }

func (c *Channel) readLoop() {
	defer close(c.done)
	defer close(c.events)

	scanner := bufio.NewScanner(c.resp.Body)
	var (
		name string
		data []string
	)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if name != "" || len(data) > 0 {
				c.dispatch(Event{Name: name, Data: strings.Join(data, "\n")})
			}
			name, data = "", nil
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "event:"):
			name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	if err := scanner.Err(); err != nil {
		c.logger.Debug("coordination stream ended", slog.String("error", err.Error()))
	}
}

func (c *Channel) dispatch(ev Event) {
	if ev.Name == "" {
		ev.Name = "message"
	}
	c.logger.Debug("coordination event", slog.String("event", ev.Name))
	select {
	case c.events <- ev:
	default:
	}
}

// Close ends the stream. It is safe to call more than once.
func (c *Channel) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		err = c.resp.Body.Close()
	})
	return err
}
