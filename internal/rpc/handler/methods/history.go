package methods

import (
	"context"
	"encoding/json"

	"github.com/brianly1003/cquest/internal/domain/ports"
	"github.com/brianly1003/cquest/internal/rpc/handler"
	"github.com/brianly1003/cquest/internal/rpc/message"
)

// HistoryService exposes the process history log.
type HistoryService struct {
	reader ports.HistoryReader
}

// NewHistoryService creates a new history service. reader may be nil when
// history is disabled; List then returns no records.
func NewHistoryService(reader ports.HistoryReader) *HistoryService {
	return &HistoryService{reader: reader}
}

// RegisterMethods registers all history methods.
func (s *HistoryService) RegisterMethods(r *handler.Registry) {
	r.RegisterWithMeta("history/list", s.List, handler.MethodMeta{
		Summary: "List recent shell jobs and services",
		Params: []handler.OpenRPCParam{
			{Name: "kind", Schema: map[string]interface{}{"type": "string", "enum": []string{"shell", "service"}}},
			{Name: "entity_id", Description: "Process or service id", Schema: handler.StringSchema},
			{Name: "limit", Schema: handler.IntegerSchema},
		},
		Result: &handler.OpenRPCResult{Name: "result", Schema: map[string]interface{}{
			"type": "object", "properties": map[string]interface{}{
				"records": map[string]interface{}{"type": "array", "items": handler.RefSchema("RunRecord")},
			},
		}},
	})
}

// List returns history records, newest first.
func (s *HistoryService) List(ctx context.Context, params json.RawMessage) (interface{}, *message.Error) {
	var p struct {
		Kind     string `json:"kind"`
		EntityID string `json:"entity_id"`
		Limit    int    `json:"limit"`
	}
	if rpcErr := handler.DecodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	switch ports.RunKind(p.Kind) {
	case "", ports.RunKindShell, ports.RunKindService:
	default:
		return nil, message.ErrInvalidParams("kind must be shell or service")
	}
	if p.Limit < 0 {
		return nil, message.ErrInvalidParams("limit cannot be negative")
	}

	records := []ports.RunRecord{}
	if s.reader != nil {
		found, err := s.reader.List(ctx, ports.HistoryFilter{
			Kind:     ports.RunKind(p.Kind),
			EntityID: p.EntityID,
			Limit:    p.Limit,
		})
		if err != nil {
			return nil, message.FromError(err)
		}
		if found != nil {
			records = found
		}
	}
	return map[string]interface{}{"records": records}, nil
}
