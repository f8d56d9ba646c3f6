package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adalundhe/duet/agents/support"
	"github.com/adalundhe/duet/agents/voice"
	"github.com/adalundhe/duet/core/config"
	coreerrors "github.com/adalundhe/duet/core/errors"
	"github.com/adalundhe/duet/core/journal"
	"github.com/adalundhe/duet/core/providers"
	"github.com/adalundhe/duet/core/room"
)

// =============================================================================
// Fakes
// =============================================================================

type fakeRoom struct {
	inputs chan room.Input
	done   chan struct{}

	mu     sync.Mutex
	spoken []room.Utterance
}

func newFakeRoom() *fakeRoom {
	return &fakeRoom{inputs: make(chan room.Input, 4), done: make(chan struct{})}
}

func (r *fakeRoom) ID() string                { return "lobby" }
func (r *fakeRoom) Inputs() <-chan room.Input { return r.inputs }
func (r *fakeRoom) Done() <-chan struct{}     { return r.done }
func (r *fakeRoom) Close() error              { return nil }

func (r *fakeRoom) Speak(_ context.Context, u room.Utterance) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.spoken = append(r.spoken, u)
	return nil
}

func (r *fakeRoom) SetAttributes(context.Context, map[string]string) error { return nil }

func (r *fakeRoom) waitSpoken(t *testing.T, n int) []room.Utterance {
	t.Helper()
	var out []room.Utterance
	require.Eventually(t, func() bool {
		r.mu.Lock()
		defer r.mu.Unlock()
		out = append([]room.Utterance(nil), r.spoken...)
		return len(out) >= n
	}, 2*time.Second, 5*time.Millisecond)
	return out
}

// personaGenerator answers based on which transfer tool the request offers,
// which identifies the persona speaking.
type personaGenerator struct{}

func (personaGenerator) Name() string { return "fake" }

func (personaGenerator) Generate(_ context.Context, req *providers.Request) (*providers.Response, error) {
	for _, tool := range req.Tools {
		switch tool.Name {
		case voice.TransferTool:
			last := req.Messages[len(req.Messages)-1]
			if last.Role == providers.RoleUser && last.Content == "I feel awful" {
				return &providers.Response{
					StopReason: providers.StopReasonToolUse,
					ToolCalls:  []providers.ToolCall{{ID: "call_1", Name: voice.TransferTool, Arguments: "{}"}},
				}, nil
			}
			return &providers.Response{Content: "Hello, how can I help?"}, nil
		case support.TransferTool:
			return &providers.Response{Content: "I'm here for you."}, nil
		}
	}
	return nil, errors.New("request without a transfer tool")
}

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Journal.Path = ":memory:"
	return cfg
}

// =============================================================================
// Tests
// =============================================================================

func TestNew_Validation(t *testing.T) {
	_, err := New(context.Background(), nil, Options{})
	require.Error(t, err)

	cfg := testConfig()
	cfg.LLM.Provider = "mystery"
	_, err = New(context.Background(), cfg, Options{Generator: personaGenerator{}})
	require.Error(t, err)

	cfg = testConfig()
	cfg.Journal.Path = ""
	_, err = New(context.Background(), cfg, Options{Generator: personaGenerator{}})
	require.Error(t, err, "journal without a path or data directory")
}

func TestApp_ConversationHandoff(t *testing.T) {
	app, err := New(context.Background(), testConfig(), Options{Generator: personaGenerator{}})
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close() })

	rm := newFakeRoom()
	conv, err := app.NewConversation(rm)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- conv.Run(ctx) }()

	spoken := rm.waitSpoken(t, 1)
	assert.Equal(t, room.Utterance{Persona: voice.Name, Text: "Hello, how can I help?"}, spoken[0])

	rm.inputs <- room.Input{Kind: room.InputText, Text: "I feel awful"}
	spoken = rm.waitSpoken(t, 3)
	assert.Equal(t, voice.Name, spoken[1].Persona)
	assert.Contains(t, spoken[1].Text, "Emotional Support agent")
	assert.Equal(t, room.Utterance{Persona: support.Name, Text: "I'm here for you."}, spoken[2])

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)

	status := conv.Status()
	assert.Equal(t, support.Name, status.Active)
	assert.Equal(t, voice.Name, status.Previous)
	assert.Equal(t, 1, status.Handoffs)

	entries, err := app.Journal().List(context.Background(), journal.Query{ConversationID: conv.ID()})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, support.Name, entries[0].To)
	assert.Equal(t, voice.Name, entries[0].From)
	assert.Equal(t, voice.Name, entries[1].To)

	m := app.Metrics()
	require.NotNil(t, m)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HandoffsTotal.WithLabelValues(voice.Name, support.Name, "activated")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HandoffsTotal.WithLabelValues("none", voice.Name, "activated")))
}

func TestApp_ConversationsAreIsolated(t *testing.T) {
	cfg := testConfig()
	cfg.Journal.Enabled = false
	cfg.Metrics.Enabled = false
	app, err := New(context.Background(), cfg, Options{Generator: personaGenerator{}})
	require.NoError(t, err)

	a, err := app.NewConversation(newFakeRoom())
	require.NoError(t, err)
	b, err := app.NewConversation(newFakeRoom())
	require.NoError(t, err)

	assert.NotEqual(t, a.ID(), b.ID())
	assert.Nil(t, app.Journal())
	assert.Nil(t, app.Metrics())
}

func TestApp_Reconfigure(t *testing.T) {
	cfg := testConfig()
	cfg.Journal.Enabled = false
	app, err := New(context.Background(), cfg, Options{Generator: personaGenerator{}})
	require.NoError(t, err)

	next := testConfig()
	next.Session.InitialPersona = support.Name
	require.NoError(t, app.Reconfigure(next))
	assert.Equal(t, support.Name, app.Config().Session.InitialPersona)

	bad := testConfig()
	bad.Personas.Voice.Prompt = "/does/not/exist.yaml"
	require.Error(t, app.Reconfigure(bad))
	assert.Same(t, next, app.Config())

	unknown := testConfig()
	unknown.Session.InitialPersona = "nobody"
	var cfgErr *coreerrors.ConfigurationError
	require.ErrorAs(t, app.Reconfigure(unknown), &cfgErr)
	assert.Equal(t, "nobody", cfgErr.Subject)
	assert.Same(t, next, app.Config())
}

func TestApp_Server(t *testing.T) {
	app, err := New(context.Background(), testConfig(), Options{Generator: personaGenerator{}})
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close() })

	srv, err := app.Server()
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestApp_Coordination(t *testing.T) {
	var query string
	var mu sync.Mutex
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		query = r.URL.Query().Get("agentId")
		mu.Unlock()
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprint(w, "event: hello\ndata: {}\n\n")
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	t.Cleanup(ts.Close)

	cfg := testConfig()
	cfg.Journal.Enabled = false
	cfg.Coordination.SSEURL = ts.URL + "/sse"
	cfg.Coordination.AgentID = "duet-test"

	app, err := New(context.Background(), cfg, Options{Generator: personaGenerator{}, HTTPClient: ts.Client()})
	require.NoError(t, err)
	require.NoError(t, app.Close())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "duet-test", query)
}

func TestApp_CoordinationFailureIsFatal(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(ts.Close)

	cfg := testConfig()
	cfg.Coordination.SSEURL = ts.URL + "/sse"

	_, err := New(context.Background(), cfg, Options{Generator: personaGenerator{}, HTTPClient: ts.Client()})
	var connErr *coreerrors.ConnectionError
	require.ErrorAs(t, err, &connErr)
	assert.Equal(t, "coordination", connErr.Service)
}
