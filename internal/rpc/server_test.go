package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brianly1003/cquest/internal/domain/events"
	"github.com/brianly1003/cquest/internal/hub"
	"github.com/brianly1003/cquest/internal/rpc/handler"
	"github.com/brianly1003/cquest/internal/rpc/message"
	"github.com/brianly1003/cquest/internal/rpc/transport"
	"github.com/brianly1003/cquest/internal/testutil"
)

// pipeTransport feeds queued input to the server and records its output.
type pipeTransport struct {
	id      string
	in      chan []byte
	readErr error

	mu     sync.Mutex
	out    [][]byte
	closed bool
	done   chan struct{}
}

func newPipeTransport(id string) *pipeTransport {
	return &pipeTransport{id: id, in: make(chan []byte, 16), readErr: io.EOF, done: make(chan struct{})}
}

func (p *pipeTransport) ID() string { return p.id }

func (p *pipeTransport) Read(ctx context.Context) ([]byte, error) {
	select {
	case data, ok := <-p.in:
		if !ok {
			return nil, p.readErr
		}
		return data, nil
	case <-p.done:
		return nil, transport.ErrTransportClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *pipeTransport) Write(_ context.Context, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return transport.ErrTransportClosed
	}
	p.out = append(p.out, append([]byte(nil), data...))
	return nil
}

func (p *pipeTransport) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.closed = true
		close(p.done)
	}
	return nil
}

func (p *pipeTransport) Done() <-chan struct{} { return p.done }

func (p *pipeTransport) written() [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([][]byte(nil), p.out...)
}

type notification struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

func (p *pipeTransport) notifications() []notification {
	var result []notification
	for _, data := range p.written() {
		var n notification
		if json.Unmarshal(data, &n) == nil && n.Method != "" {
			result = append(result, n)
		}
	}
	return result
}

func newTestServer(t *testing.T, h *hub.Hub) (*Server, *handler.Registry) {
	t.Helper()
	r := handler.NewRegistry()
	r.Register("ping", func(ctx context.Context, params json.RawMessage) (interface{}, *message.Error) {
		return map[string]string{"pong": "ok"}, nil
	})
	r.Register("whoami", func(ctx context.Context, params json.RawMessage) (interface{}, *message.Error) {
		id, _ := handler.ClientID(ctx)
		return map[string]string{"client_id": id}, nil
	})
	if h == nil {
		return NewServer(handler.NewDispatcher(r), nil), r
	}
	return NewServer(handler.NewDispatcher(r), h), r
}

func TestServeTransport_AnswersRequestsBeforeEOF(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	tp := newPipeTransport("client-1")

	tp.in <- []byte(`{"jsonrpc":"2.0","id":1,"method":"ping"}`)
	tp.in <- []byte(`{"jsonrpc":"2.0","id":2,"method":"whoami"}`)
	tp.in <- []byte(`{"jsonrpc":"2.0","id":3,"method":"missing"}`)
	close(tp.in)

	require.NoError(t, srv.ServeTransport(context.Background(), tp))
	assert.Equal(t, 0, srv.ClientCount())

	byID := make(map[string]message.Response)
	for _, data := range tp.written() {
		var resp message.Response
		require.NoError(t, json.Unmarshal(data, &resp))
		require.NotNil(t, resp.ID)
		byID[resp.ID.String()] = resp
	}
	require.Len(t, byID, 3)
	assert.JSONEq(t, `{"pong":"ok"}`, string(byID["1"].Result))
	assert.JSONEq(t, `{"client_id":"client-1"}`, string(byID["2"].Result))
	require.NotNil(t, byID["3"].Error)
	assert.Equal(t, message.MethodNotFound, byID["3"].Error.Code)
}

func TestServeTransport_ReadErrorCancelsInflight(t *testing.T) {
	srv, r := newTestServer(t, nil)
	started := make(chan struct{})
	cancelled := make(chan struct{})
	r.Register("block", func(ctx context.Context, params json.RawMessage) (interface{}, *message.Error) {
		close(started)
		<-ctx.Done()
		close(cancelled)
		return nil, message.FromError(ctx.Err())
	})

	boom := errors.New("connection reset")
	tp := newPipeTransport("client-2")
	tp.readErr = boom
	tp.in <- []byte(`{"jsonrpc":"2.0","id":1,"method":"block"}`)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ServeTransport(context.Background(), tp) }()

	<-started
	close(tp.in)

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, boom)
	case <-time.After(5 * time.Second):
		t.Fatal("ServeTransport did not return")
	}
	select {
	case <-cancelled:
	default:
		t.Fatal("in-flight request was not cancelled")
	}
}

func TestServeTransport_ForwardsEventsWithTopicFilter(t *testing.T) {
	h := hub.New()
	require.NoError(t, h.Start())
	defer h.Stop()

	srv, _ := newTestServer(t, h)
	tp := newPipeTransport("client-3")

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ServeTransport(context.Background(), tp) }()

	testutil.Eventually(t, 2*time.Second, func() bool { return h.SubscriberCount() == 1 }, "client subscribed")
	assert.Equal(t, 1, srv.ClientCount())

	h.Publish(events.NewServiceLineEvent("web", "listening", false))
	testutil.Eventually(t, 2*time.Second, func() bool { return len(tp.notifications()) == 1 }, "first notification")

	filtered := srv.GetFilteredSubscriber("client-3")
	require.NotNil(t, filtered)
	filtered.SubscribeTopic(events.ServiceTopic("api"))

	h.Publish(events.NewServiceLineEvent("web", "ignored", false))
	h.Publish(events.NewServiceLineEvent("api", "ready", true))
	h.Publish(events.NewHeartbeatEvent(1, 1))
	testutil.Eventually(t, 2*time.Second, func() bool { return len(tp.notifications()) == 3 }, "filtered notifications")

	got := tp.notifications()
	assert.Equal(t, "event/service_output", got[0].Method)
	assert.JSONEq(t, `{"service_id":"web","output":"listening","is_stderr":false,"is_complete":false}`, string(got[0].Params))
	assert.JSONEq(t, `{"service_id":"api","output":"ready","is_stderr":true,"is_complete":false}`, string(got[1].Params))
	assert.Equal(t, "event/heartbeat", got[2].Method)

	close(tp.in)
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("ServeTransport did not return")
	}
	assert.Nil(t, srv.GetFilteredSubscriber("client-3"))
	testutil.Eventually(t, 2*time.Second, func() bool { return h.SubscriberCount() == 0 }, "client unsubscribed")
}

func TestServer_StopDisconnectsClients(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	tp := newPipeTransport("client-4")

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ServeTransport(context.Background(), tp) }()
	testutil.Eventually(t, 2*time.Second, func() bool { return srv.ClientCount() == 1 }, "client connected")

	srv.Stop()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("ServeTransport did not return after Stop")
	}
	assert.Equal(t, 0, srv.ClientCount())
}

func TestNotificationMethod(t *testing.T) {
	assert.Equal(t, "event/assistant_response", NotificationMethod(events.NewAssistantTextEvent("c", "hi")))
	assert.Equal(t, "event/data_saved", NotificationMethod(events.NewDataSavedEvent("/tmp/x", 1)))
}
