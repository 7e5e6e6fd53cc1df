// Package rpc serves JSON-RPC 2.0 clients over any transport and forwards
// hub events to them as notifications.
package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/brianly1003/cquest/internal/domain"
	"github.com/brianly1003/cquest/internal/domain/events"
	"github.com/brianly1003/cquest/internal/domain/ports"
	"github.com/brianly1003/cquest/internal/hub"
	"github.com/brianly1003/cquest/internal/rpc/handler"
	"github.com/brianly1003/cquest/internal/rpc/message"
	"github.com/brianly1003/cquest/internal/rpc/transport"
)

const (
	clientSendBuffer = 1024

	// eventSendTimeout bounds how long a slow client may hold up event
	// delivery before it is disconnected.
	eventSendTimeout = 5 * time.Second
)

// Server handles JSON-RPC communication over transports.
type Server struct {
	dispatcher *handler.Dispatcher
	hub        ports.EventHub

	clients   map[string]*Client
	clientsMu sync.RWMutex
}

// NewServer creates a new RPC server. hub may be nil.
func NewServer(dispatcher *handler.Dispatcher, hub ports.EventHub) *Server {
	return &Server{
		dispatcher: dispatcher,
		hub:        hub,
		clients:    make(map[string]*Client),
	}
}

// ServeTransport serves one connection until it closes or ctx is done.
// Requests still in flight when the client goes away are cancelled.
func (s *Server) ServeTransport(ctx context.Context, t transport.Transport) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	client := newClient(t, s.dispatcher)
	client.filter = hub.NewFilteredSubscriber(&eventSink{client: client})

	s.clientsMu.Lock()
	s.clients[client.ID()] = client
	s.clientsMu.Unlock()

	if s.hub != nil {
		s.hub.Subscribe(client.filter)
	}

	log.Debug().Str("client_id", client.ID()).Msg("RPC client connected")

	err := client.serve(ctx)

	s.clientsMu.Lock()
	delete(s.clients, client.ID())
	s.clientsMu.Unlock()

	if s.hub != nil {
		s.hub.Unsubscribe(client.ID())
	}
	_ = client.Close()

	if errors.Is(err, io.EOF) || errors.Is(err, transport.ErrTransportClosed) || errors.Is(err, context.Canceled) {
		err = nil
	}
	log.Debug().Str("client_id", client.ID()).Err(err).Msg("RPC client disconnected")
	return err
}

// GetFilteredSubscriber returns the event filter of a connected client.
func (s *Server) GetFilteredSubscriber(clientID string) *hub.FilteredSubscriber {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	if c, ok := s.clients[clientID]; ok {
		return c.filter
	}
	return nil
}

// ClientCount returns the number of connected clients.
func (s *Server) ClientCount() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}

// Stop disconnects every client.
func (s *Server) Stop() {
	s.clientsMu.Lock()
	clients := make([]*Client, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, c)
	}
	s.clientsMu.Unlock()

	for _, c := range clients {
		_ = c.Close()
	}
}

// Client is one connected RPC peer.
type Client struct {
	transport  transport.Transport
	dispatcher *handler.Dispatcher
	filter     *hub.FilteredSubscriber

	send chan []byte

	done      chan struct{}
	closeOnce sync.Once
	inflight  sync.WaitGroup
}

func newClient(t transport.Transport, dispatcher *handler.Dispatcher) *Client {
	return &Client{
		transport:  t,
		dispatcher: dispatcher,
		send:       make(chan []byte, clientSendBuffer),
		done:       make(chan struct{}),
	}
}

// ID returns the client's unique identifier.
func (c *Client) ID() string {
	return c.transport.ID()
}

func (c *Client) serve(ctx context.Context) error {
	stopWriting := make(chan struct{})
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		c.writeLoop(ctx, stopWriting)
	}()

	reqCtx, cancel := context.WithCancel(handler.WithClientID(ctx, c.ID()))
	defer cancel()

	err := c.readLoop(ctx, reqCtx)

	// After a clean end of input pending requests still run and answer.
	if !errors.Is(err, io.EOF) {
		cancel()
	}
	c.inflight.Wait()
	close(stopWriting)
	<-writerDone
	_ = c.Close()
	return err
}

func (c *Client) readLoop(ctx, reqCtx context.Context) error {
	for {
		data, err := c.transport.Read(ctx)
		if err != nil {
			return err
		}

		c.inflight.Add(1)
		go func() {
			defer c.inflight.Done()
			c.handleRequest(reqCtx, data)
		}()
	}
}

func (c *Client) handleRequest(ctx context.Context, data []byte) {
	response, err := c.dispatcher.HandleMessage(ctx, data)
	if err != nil {
		log.Warn().Str("client_id", c.ID()).Err(err).Msg("failed to handle message")
		return
	}
	if len(response) == 0 {
		return
	}
	if err := c.enqueue(response, 0); err != nil {
		log.Debug().Str("client_id", c.ID()).Err(err).Msg("dropped response")
	}
}

// writeLoop writes queued messages until the client closes. Once stop is
// closed it writes whatever is still queued and returns.
func (c *Client) writeLoop(ctx context.Context, stop <-chan struct{}) {
	for {
		select {
		case <-c.done:
			return
		case data := <-c.send:
			if !c.write(ctx, data) {
				return
			}
		case <-stop:
			for {
				select {
				case data := <-c.send:
					if !c.write(ctx, data) {
						return
					}
				default:
					return
				}
			}
		}
	}
}

func (c *Client) write(ctx context.Context, data []byte) bool {
	if err := c.transport.Write(ctx, data); err != nil {
		log.Debug().Str("client_id", c.ID()).Err(err).Msg("write error")
		_ = c.Close()
		return false
	}
	return true
}

// enqueue queues data for the writer. A zero timeout waits until the data
// is queued or the client closes.
func (c *Client) enqueue(data []byte, timeout time.Duration) error {
	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case <-c.done:
		return domain.ErrSubscriberClosed
	default:
	}

	select {
	case c.send <- data:
		return nil
	case <-c.done:
		return domain.ErrSubscriberClosed
	case <-expired:
		return errors.New("client send buffer full")
	}
}

// SendNotification queues a JSON-RPC notification.
func (c *Client) SendNotification(method string, params interface{}) error {
	notification, err := message.NewNotification(method, params)
	if err != nil {
		return err
	}
	data, err := json.Marshal(notification)
	if err != nil {
		return err
	}
	return c.enqueue(data, eventSendTimeout)
}

// Close closes the client and its transport.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.transport.Close()
	})
	return err
}

// Done returns a channel that's closed when the client is done.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// NotificationMethod is the JSON-RPC method an event is delivered under.
func NotificationMethod(event events.Event) string {
	return "event/" + string(event.Type())
}

// eventSink adapts a Client to ports.Subscriber. Each event becomes an
// "event/<type>" notification whose params are the event payload.
type eventSink struct {
	client *Client
}

func (s *eventSink) ID() string {
	return s.client.ID()
}

func (s *eventSink) Send(event events.Event) error {
	var params interface{}
	if be, ok := event.(*events.BaseEvent); ok {
		params = be.Payload
	} else {
		data, err := event.ToJSON()
		if err != nil {
			return err
		}
		var envelope struct {
			Payload json.RawMessage `json:"payload"`
		}
		if err := json.Unmarshal(data, &envelope); err != nil {
			return err
		}
		params = envelope.Payload
	}
	return s.client.SendNotification(NotificationMethod(event), params)
}

func (s *eventSink) Close() error {
	return s.client.Close()
}

func (s *eventSink) Done() <-chan struct{} {
	return s.client.Done()
}

var _ ports.Subscriber = (*eventSink)(nil)
