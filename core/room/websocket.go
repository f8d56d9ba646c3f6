package room

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	coreerrors "github.com/adalundhe/duet/core/errors"
)

// WebSocketConfig bounds a websocket room.
type WebSocketConfig struct {
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	MaxMessageBytes int64         `yaml:"max_message_bytes"`
	InputBuffer     int           `yaml:"input_buffer"`
}

// DefaultWebSocketConfig returns the defaults.
func DefaultWebSocketConfig() WebSocketConfig {
	return WebSocketConfig{
		WriteTimeout:    5 * time.Second,
		IdleTimeout:     5 * time.Minute,
		MaxMessageBytes: 1 << 20,
		InputBuffer:     16,
	}
}

// WebSocketRoom is a Room over one websocket connection.
type WebSocketRoom struct {
	id     string
	conn   *websocket.Conn
	cfg    WebSocketConfig
	logger *slog.Logger

	inputs chan Input
	done   chan struct{}

	writeMu   sync.Mutex
	closeOnce sync.Once
}

// NewWebSocketRoom wraps conn and starts reading from it.
func NewWebSocketRoom(id string, conn *websocket.Conn, cfg WebSocketConfig, logger *slog.Logger) *WebSocketRoom {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.InputBuffer <= 0 {
		cfg.InputBuffer = DefaultWebSocketConfig().InputBuffer
	}
	if cfg.MaxMessageBytes > 0 {
		conn.SetReadLimit(cfg.MaxMessageBytes)
	}

	r := &WebSocketRoom{
		id:     id,
		conn:   conn,
		cfg:    cfg,
		logger: logger.With(slog.String("room", id)),
		inputs: make(chan Input, cfg.InputBuffer),
		done:   make(chan struct{}),
	}
	go r.readLoop()
	return r
}

func (r *WebSocketRoom) ID() string            { return r.id }
func (r *WebSocketRoom) Inputs() <-chan Input  { return r.inputs }
func (r *WebSocketRoom) Done() <-chan struct{} { return r.done }

func (r *WebSocketRoom) readLoop() {
	defer close(r.inputs)
	defer r.Close()

	for {
		if r.cfg.IdleTimeout > 0 {
			_ = r.conn.SetReadDeadline(time.Now().Add(r.cfg.IdleTimeout))
		}

		messageType, data, err := r.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				r.logger.Debug("room read ended", slog.String("error", err.Error()))
			}
			return
		}

		input, ok := r.decode(messageType, data)
		if !ok {
			continue
		}

		select {
		case r.inputs <- input:
		case <-r.done:
			return
		}
	}
}

func (r *WebSocketRoom) decode(messageType int, data []byte) (Input, bool) {
	if messageType == websocket.BinaryMessage {
		return Input{Kind: InputAudio, Audio: data}, len(data) > 0
	}

	var frame ClientFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		_ = r.writeFrame(ServerFrame{Type: FrameError, Message: "invalid frame"})
		return Input{}, false
	}

	switch frame.Type {
	case FrameUserText:
		text := strings.TrimSpace(frame.Text)
		return Input{Kind: InputText, Text: text}, text != ""
	case FrameInterrupt:
		return Input{Kind: InputInterrupt}, true
	default:
		_ = r.writeFrame(ServerFrame{Type: FrameError, Message: fmt.Sprintf("unknown frame type %q", frame.Type)})
		return Input{}, false
	}
}

// Speak sends the utterance text and, when present, its audio.
func (r *WebSocketRoom) Speak(_ context.Context, u Utterance) error {
	frame := ServerFrame{Type: FrameAgentText, Persona: u.Persona, Text: u.Text, HasAudio: len(u.Audio) > 0}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	if err := r.writeLocked(websocket.TextMessage, frame); err != nil {
		return &coreerrors.TransientChannelError{Op: "speak", Err: err}
	}
	if len(u.Audio) > 0 {
		if err := r.writeLocked(websocket.BinaryMessage, u.Audio); err != nil {
			return &coreerrors.TransientChannelError{Op: "speak", Err: err}
		}
	}
	return nil
}

// SetAttributes publishes participant attributes to the client.
func (r *WebSocketRoom) SetAttributes(_ context.Context, attrs map[string]string) error {
	if err := r.writeFrame(ServerFrame{Type: FrameAttributes, Attributes: attrs}); err != nil {
		return &coreerrors.TransientChannelError{Op: "set_attributes", Err: err}
	}
	return nil
}

// Close closes the connection. It is safe to call more than once.
func (r *WebSocketRoom) Close() error {
	var err error
	r.closeOnce.Do(func() {
		close(r.done)
		r.writeMu.Lock()
		_ = r.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		r.writeMu.Unlock()
		err = r.conn.Close()
	})
	return err
}

func (r *WebSocketRoom) writeFrame(frame ServerFrame) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	return r.writeLocked(websocket.TextMessage, frame)
}

func (r *WebSocketRoom) writeLocked(messageType int, payload any) error {
	select {
	case <-r.done:
		return ErrClosed
	default:
	}

	if r.cfg.WriteTimeout > 0 {
		_ = r.conn.SetWriteDeadline(time.Now().Add(r.cfg.WriteTimeout))
	}
	if messageType == websocket.BinaryMessage {
		return r.conn.WriteMessage(websocket.BinaryMessage, payload.([]byte))
	}
	return r.conn.WriteJSON(payload)
}
