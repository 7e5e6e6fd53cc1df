package transport

import (
	"bufio"
	"context"
	"io"
	"os"
	"sync"
)

// StdioTransport carries newline-delimited JSON over a reader and a writer,
// normally stdin and stdout.
type StdioTransport struct {
	id     string
	reader *bufio.Reader
	writer io.Writer

	done   chan struct{}
	mu     sync.Mutex
	closed bool
}

// NewStdioTransport creates a transport over os.Stdin and os.Stdout.
func NewStdioTransport() *StdioTransport {
	return NewStdioTransportWithIO(os.Stdin, os.Stdout)
}

// NewStdioTransportWithIO creates a transport over r and w.
func NewStdioTransportWithIO(r io.Reader, w io.Writer) *StdioTransport {
	return &StdioTransport{
		id:     "stdio",
		reader: bufio.NewReader(r),
		writer: w,
		done:   make(chan struct{}),
	}
}

// ID returns "stdio".
func (t *StdioTransport) ID() string {
	return t.id
}

// Read returns the next non-empty line without its line terminator.
func (t *StdioTransport) Read(ctx context.Context) ([]byte, error) {
	for {
		select {
		case <-t.done:
			return nil, ErrTransportClosed
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		line, err := t.reader.ReadBytes('\n')
		line = trimCRLF(line)
		if len(line) > 0 {
			return line, nil
		}
		if err != nil {
			return nil, err
		}
	}
}

// Write writes data followed by a newline.
func (t *StdioTransport) Write(ctx context.Context, data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrTransportClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	buf := make([]byte, 0, len(data)+1)
	buf = append(buf, data...)
	buf = append(buf, '\n')
	_, err := t.writer.Write(buf)
	return err
}

// Close marks the transport closed. The underlying streams stay open.
func (t *StdioTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true
	close(t.done)
	return nil
}

// Done returns a channel that's closed when the transport is closed.
func (t *StdioTransport) Done() <-chan struct{} {
	return t.done
}

// Info returns metadata about the stdio transport.
func (t *StdioTransport) Info() Info {
	return Info{Type: "stdio"}
}

func trimCRLF(data []byte) []byte {
	if n := len(data); n > 0 && data[n-1] == '\n' {
		data = data[:n-1]
	}
	if n := len(data); n > 0 && data[n-1] == '\r' {
		data = data[:n-1]
	}
	return data
}
