package methods

import (
	"context"
	"encoding/json"
	"time"

	"github.com/brianly1003/cquest/internal/rpc/handler"
	"github.com/brianly1003/cquest/internal/rpc/message"
)

// StatusProvider provides status information.
type StatusProvider interface {
	Version() string
	ConnectedClients() int
	RunningJobs() []string
	RunningServices() []string
	AssistantInstalled() bool
}

// StatusResult is the status/get response.
type StatusResult struct {
	Version            string   `json:"version"`
	UptimeSeconds      int64    `json:"uptime_seconds"`
	ConnectedClients   int      `json:"connected_clients"`
	RunningJobs        []string `json:"running_jobs"`
	RunningServices    []string `json:"running_services"`
	AssistantInstalled bool     `json:"assistant_installed"`
}

// StatusService provides status-related RPC methods.
type StatusService struct {
	provider  StatusProvider
	startTime time.Time
	spec      func() interface{}
}

// NewStatusService creates a new status service. spec, when set, produces
// the document returned by rpc.discover.
func NewStatusService(provider StatusProvider, spec func() interface{}) *StatusService {
	return &StatusService{
		provider:  provider,
		startTime: time.Now(),
		spec:      spec,
	}
}

// RegisterMethods registers all status methods.
func (s *StatusService) RegisterMethods(r *handler.Registry) {
	r.RegisterWithMeta("status/get", s.GetStatus, handler.MethodMeta{
		Summary: "Get server status",
		Result:  &handler.OpenRPCResult{Name: "StatusResult", Schema: handler.RefSchema("StatusResult")},
	})

	if s.spec != nil {
		r.RegisterWithMeta("rpc.discover", s.Discover, handler.MethodMeta{
			Summary: "Return the OpenRPC document for this server",
			Result:  &handler.OpenRPCResult{Name: "OpenRPC", Schema: handler.ObjectSchema},
		})
	}
}

// GetStatus returns the current status.
func (s *StatusService) GetStatus(ctx context.Context, params json.RawMessage) (interface{}, *message.Error) {
	result := StatusResult{
		Version:            s.provider.Version(),
		UptimeSeconds:      int64(time.Since(s.startTime).Seconds()),
		ConnectedClients:   s.provider.ConnectedClients(),
		RunningJobs:        nonNil(s.provider.RunningJobs()),
		RunningServices:    nonNil(s.provider.RunningServices()),
		AssistantInstalled: s.provider.AssistantInstalled(),
	}
	return result, nil
}

// Discover returns the OpenRPC document.
func (s *StatusService) Discover(ctx context.Context, params json.RawMessage) (interface{}, *message.Error) {
	return s.spec(), nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
