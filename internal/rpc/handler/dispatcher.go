package handler

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/brianly1003/cquest/internal/rpc/message"
)

// Dispatcher routes JSON-RPC requests to registered handlers.
type Dispatcher struct {
	registry *Registry
}

// NewDispatcher creates a new dispatcher with the given registry.
func NewDispatcher(registry *Registry) *Dispatcher {
	return &Dispatcher{registry: registry}
}

// Registry returns the underlying registry.
func (d *Dispatcher) Registry() *Registry {
	return d.registry
}

// Dispatch handles a JSON-RPC request. It returns nil for notifications.
func (d *Dispatcher) Dispatch(ctx context.Context, req *message.Request) *message.Response {
	log.Debug().
		Str("method", req.Method).
		Str("id", req.ID.String()).
		Bool("notification", req.IsNotification()).
		Msg("dispatching request")

	handler := d.registry.Get(req.Method)
	if handler == nil {
		log.Warn().Str("method", req.Method).Msg("method not found")
		if req.IsNotification() {
			return nil
		}
		return message.NewErrorResponse(req.ID, message.ErrMethodNotFound(req.Method))
	}

	result, rpcErr := handler(ctx, req.Params)

	if req.IsNotification() {
		if rpcErr != nil {
			log.Warn().
				Str("method", req.Method).
				Int("code", rpcErr.Code).
				Str("error", rpcErr.Message).
				Msg("notification handler error (not sent to client)")
		}
		return nil
	}

	if rpcErr != nil {
		log.Debug().
			Str("method", req.Method).
			Int("code", rpcErr.Code).
			Str("error", rpcErr.Message).
			Msg("request failed")
		return message.NewErrorResponse(req.ID, rpcErr)
	}

	resp, err := message.NewSuccessResponse(req.ID, result)
	if err != nil {
		log.Error().Str("method", req.Method).Err(err).Msg("failed to marshal response")
		return message.NewErrorResponse(req.ID, message.ErrInternalError("failed to marshal response"))
	}
	return resp
}

// HandleMessage handles a single request or a batch and returns the encoded
// response, or nil when nothing needs to be sent back.
func (d *Dispatcher) HandleMessage(ctx context.Context, data []byte) ([]byte, error) {
	if message.IsBatch(data) {
		return d.handleBatch(ctx, data)
	}

	resp := d.dispatchRaw(ctx, data)
	if resp == nil {
		return nil, nil
	}
	return json.Marshal(resp)
}

func (d *Dispatcher) dispatchRaw(ctx context.Context, data []byte) *message.Response {
	req, rpcErr := message.ParseRequest(data)
	if rpcErr != nil {
		log.Debug().Str("error", rpcErr.Message).Msg("failed to parse request")
		var id *message.ID
		if req != nil {
			id = req.ID
		}
		return message.NewErrorResponse(id, rpcErr)
	}
	return d.Dispatch(ctx, req)
}

func (d *Dispatcher) handleBatch(ctx context.Context, data []byte) ([]byte, error) {
	var rawRequests []json.RawMessage
	if err := json.Unmarshal(data, &rawRequests); err != nil {
		return json.Marshal(message.NewErrorResponse(nil, message.ErrParseError("Invalid batch request")))
	}
	if len(rawRequests) == 0 {
		return json.Marshal(message.NewErrorResponse(nil, message.ErrInvalidRequest("Empty batch")))
	}

	responses := make([]*message.Response, 0, len(rawRequests))
	for _, raw := range rawRequests {
		if resp := d.dispatchRaw(ctx, raw); resp != nil {
			responses = append(responses, resp)
		}
	}

	if len(responses) == 0 {
		return nil, nil
	}
	return json.Marshal(responses)
}
