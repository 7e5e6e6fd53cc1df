package methods

import (
	"context"
	"encoding/json"

	"github.com/brianly1003/cquest/internal/rpc/handler"
	"github.com/brianly1003/cquest/internal/rpc/message"
)

// DataStore persists the application's data blob.
type DataStore interface {
	Load() (*string, error)
	Save(data string) error
}

// DataService exposes application data over JSON-RPC.
type DataService struct {
	store DataStore
}

// NewDataService creates a new data service.
func NewDataService(store DataStore) *DataService {
	return &DataService{store: store}
}

// RegisterMethods registers all data methods.
func (s *DataService) RegisterMethods(r *handler.Registry) {
	r.RegisterWithMeta("data/load", s.Load, handler.MethodMeta{
		Summary:     "Load application data",
		Description: "Returns the saved string, or no data field when nothing was saved yet.",
		Result: &handler.OpenRPCResult{Name: "result", Schema: map[string]interface{}{
			"type": "object", "properties": map[string]interface{}{"data": handler.StringSchema},
		}},
	})

	r.RegisterWithMeta("data/save", s.Save, handler.MethodMeta{
		Summary: "Save application data",
		Params: []handler.OpenRPCParam{
			{Name: "data", Required: true, Schema: handler.StringSchema},
		},
		Result: &handler.OpenRPCResult{Name: "result", Schema: handler.ObjectSchema},
	})
}

type loadResult struct {
	Data *string `json:"data,omitempty"`
}

// Load loads the data blob.
func (s *DataService) Load(ctx context.Context, params json.RawMessage) (interface{}, *message.Error) {
	data, err := s.store.Load()
	if err != nil {
		return nil, message.FromError(err)
	}
	return loadResult{Data: data}, nil
}

// Save replaces the data blob.
func (s *DataService) Save(ctx context.Context, params json.RawMessage) (interface{}, *message.Error) {
	var p struct {
		Data *string `json:"data"`
	}
	if rpcErr := handler.DecodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	if p.Data == nil {
		return nil, message.ErrInvalidParams("data is required")
	}

	if err := s.store.Save(*p.Data); err != nil {
		return nil, message.FromError(err)
	}
	return map[string]bool{"success": true}, nil
}
