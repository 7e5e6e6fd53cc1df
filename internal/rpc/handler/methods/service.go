package methods

import (
	"context"
	"encoding/json"

	"github.com/brianly1003/cquest/internal/rpc/handler"
	"github.com/brianly1003/cquest/internal/rpc/message"
)

// ServiceManager starts and stops long-running services.
type ServiceManager interface {
	Start(ctx context.Context, serviceID, command, workDir string) error
	Stop(serviceID string) (bool, error)
	List() []string
}

// ServiceService exposes background services over JSON-RPC.
type ServiceService struct {
	manager ServiceManager
}

// NewServiceService creates a new service service.
func NewServiceService(manager ServiceManager) *ServiceService {
	return &ServiceService{manager: manager}
}

// RegisterMethods registers all service methods.
func (s *ServiceService) RegisterMethods(r *handler.Registry) {
	r.RegisterWithMeta("service/start", s.Start, handler.MethodMeta{
		Summary: "Start a background service",
		Description: "Starts the command and returns immediately. Output arrives as event/service_output " +
			"notifications, ending with one whose is_complete is true.",
		Params: []handler.OpenRPCParam{
			{Name: "service_id", Required: true, Schema: handler.StringSchema},
			{Name: "command", Required: true, Schema: handler.StringSchema},
			{Name: "working_directory", Schema: handler.StringSchema},
		},
		Result: &handler.OpenRPCResult{Name: "result", Schema: handler.ObjectSchema},
		Errors: []string{"ServiceAlreadyRunning", "SpawnFailure"},
	})

	r.RegisterWithMeta("service/stop", s.Stop, handler.MethodMeta{
		Summary: "Stop a background service",
		Params: []handler.OpenRPCParam{
			{Name: "service_id", Required: true, Schema: handler.StringSchema},
		},
		Result: &handler.OpenRPCResult{Name: "result", Schema: map[string]interface{}{
			"type": "object", "properties": map[string]interface{}{"stopped": handler.BoolSchema},
		}},
	})

	r.RegisterWithMeta("service/list", s.List, handler.MethodMeta{
		Summary: "List running services",
		Result: &handler.OpenRPCResult{Name: "result", Schema: map[string]interface{}{
			"type": "object", "properties": map[string]interface{}{
				"services": map[string]interface{}{"type": "array", "items": handler.StringSchema},
			},
		}},
	})
}

type startParams struct {
	ServiceID        string `json:"service_id"`
	Command          string `json:"command"`
	WorkingDirectory string `json:"working_directory"`
}

// Start starts a service.
func (s *ServiceService) Start(ctx context.Context, params json.RawMessage) (interface{}, *message.Error) {
	var p startParams
	if rpcErr := handler.DecodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	if err := s.manager.Start(ctx, p.ServiceID, p.Command, p.WorkingDirectory); err != nil {
		return nil, message.FromError(err)
	}
	return map[string]string{"service_id": p.ServiceID}, nil
}

// Stop stops a service.
func (s *ServiceService) Stop(ctx context.Context, params json.RawMessage) (interface{}, *message.Error) {
	var p struct {
		ServiceID string `json:"service_id"`
	}
	if rpcErr := handler.DecodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	if rpcErr := handler.Require("service_id", p.ServiceID); rpcErr != nil {
		return nil, rpcErr
	}

	stopped, err := s.manager.Stop(p.ServiceID)
	if err != nil {
		return nil, message.FromError(err)
	}
	return map[string]bool{"stopped": stopped}, nil
}

// List lists running services.
func (s *ServiceService) List(ctx context.Context, params json.RawMessage) (interface{}, *message.Error) {
	services := s.manager.List()
	if services == nil {
		services = []string{}
	}
	return map[string][]string{"services": services}, nil
}
