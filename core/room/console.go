package room

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	"golang.org/x/term"
)

const consolePrompt = "you> "

// ConsoleRoom is a Room over a terminal or any line-oriented stream. On a
// TTY it switches the terminal to raw mode and edits lines with
// term.Terminal; otherwise it reads plain lines.
type ConsoleRoom struct {
	id  string
	in  io.Reader
	out io.Writer

	terminal *term.Terminal
	restore  func()

	inputs chan Input
	done   chan struct{}

	mu        sync.Mutex
	closeOnce sync.Once
}

// NewConsoleRoom starts reading lines from in. Typing /quit or sending EOF
// ends the room.
func NewConsoleRoom(id string, in io.Reader, out io.Writer) (*ConsoleRoom, error) {
	r := &ConsoleRoom{
		id:      id,
		in:      in,
		out:     out,
		restore: func() {},
		inputs:  make(chan Input),
		done:    make(chan struct{}),
	}

	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		state, err := term.MakeRaw(int(f.Fd()))
		if err != nil {
			return nil, fmt.Errorf("console raw mode: %w", err)
		}
		r.restore = func() { _ = term.Restore(int(f.Fd()), state) }
		r.terminal = term.NewTerminal(struct {
			io.Reader
			io.Writer
		}{in, out}, consolePrompt)
		r.out = r.terminal
	}

	go r.readLoop()
	return r, nil
}

func (r *ConsoleRoom) ID() string            { return r.id }
func (r *ConsoleRoom) Inputs() <-chan Input  { return r.inputs }
func (r *ConsoleRoom) Done() <-chan struct{} { return r.done }

func (r *ConsoleRoom) readLoop() {
	defer close(r.inputs)
	defer r.Close()

	next := r.lineReader()
	for {
		line, err := next()
		if err != nil {
			return
		}
		line = strings.TrimSpace(line)

		var input Input
		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return
		case "/interrupt":
			input = Input{Kind: InputInterrupt}
		default:
			input = Input{Kind: InputText, Text: line}
		}

		select {
		case r.inputs <- input:
		case <-r.done:
			return
		}
	}
}

func (r *ConsoleRoom) lineReader() func() (string, error) {
	if r.terminal != nil {
		return r.terminal.ReadLine
	}
	scanner := bufio.NewScanner(r.in)
	return func() (string, error) {
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return "", err
			}
			return "", io.EOF
		}
		return scanner.Text(), nil
	}
}

// Speak prints the utterance prefixed with the persona name.
func (r *ConsoleRoom) Speak(_ context.Context, u Utterance) error {
	return r.printf("%s> %s\n", u.Persona, u.Text)
}

// SetAttributes prints the attributes as a status line.
func (r *ConsoleRoom) SetAttributes(_ context.Context, attrs map[string]string) error {
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+attrs[k])
	}
	return r.printf("[%s]\n", strings.Join(parts, " "))
}

func (r *ConsoleRoom) printf(format string, args ...any) error {
	select {
	case <-r.done:
		return ErrClosed
	default:
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	_, err := fmt.Fprintf(r.out, format, args...)
	return err
}

// Close restores the terminal. It is safe to call more than once.
func (r *ConsoleRoom) Close() error {
	r.closeOnce.Do(func() {
		close(r.done)
		r.restore()
	})
	return nil
}
