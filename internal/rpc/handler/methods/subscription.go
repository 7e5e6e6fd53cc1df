package methods

import (
	"context"
	"encoding/json"

	"github.com/brianly1003/cquest/internal/domain/events"
	"github.com/brianly1003/cquest/internal/hub"
	"github.com/brianly1003/cquest/internal/rpc/handler"
	"github.com/brianly1003/cquest/internal/rpc/message"
)

// FilteredSubscriberProvider provides access to filtered subscribers by client ID.
type FilteredSubscriberProvider interface {
	GetFilteredSubscriber(clientID string) *hub.FilteredSubscriber
}

// SubscriptionService lets each client narrow the events it receives.
type SubscriptionService struct {
	provider FilteredSubscriberProvider
}

// NewSubscriptionService creates a new subscription service.
func NewSubscriptionService() *SubscriptionService {
	return &SubscriptionService{}
}

// SetProvider sets the filtered subscriber provider. The RPC server is the
// provider, and it is created after the method registry.
func (s *SubscriptionService) SetProvider(provider FilteredSubscriberProvider) {
	s.provider = provider
}

var topicParams = []handler.OpenRPCParam{
	{Name: "kind", Required: true, Schema: map[string]interface{}{"type": "string", "enum": []string{"assistant", "service", "appdata"}}},
	{Name: "id", Description: "Conversation or service id; empty matches every id of the kind", Schema: handler.StringSchema},
}

var topicsResult = &handler.OpenRPCResult{Name: "result", Schema: map[string]interface{}{
	"type": "object", "properties": map[string]interface{}{
		"topics":       map[string]interface{}{"type": "array", "items": handler.ObjectSchema},
		"is_filtering": handler.BoolSchema,
	},
}}

// RegisterMethods registers all subscription methods.
func (s *SubscriptionService) RegisterMethods(r *handler.Registry) {
	r.RegisterWithMeta("events/subscribe", s.Subscribe, handler.MethodMeta{
		Summary: "Subscribe to a topic",
		Description: "Clients receive every event until they subscribe to a topic. From then on only " +
			"events of subscribed topics (and system events) are forwarded.",
		Params: topicParams,
		Result: topicsResult,
	})
	r.RegisterWithMeta("events/unsubscribe", s.Unsubscribe, handler.MethodMeta{
		Summary: "Unsubscribe from a topic",
		Params:  topicParams,
		Result:  topicsResult,
	})
	r.RegisterWithMeta("events/subscriptions", s.Subscriptions, handler.MethodMeta{
		Summary: "List subscribed topics",
		Result:  topicsResult,
	})
	r.RegisterWithMeta("events/subscribeAll", s.SubscribeAll, handler.MethodMeta{
		Summary: "Receive all events again",
		Result:  topicsResult,
	})
}

func (s *SubscriptionService) filter(ctx context.Context) (*hub.FilteredSubscriber, *message.Error) {
	if s.provider == nil {
		return nil, message.ErrInternalError("subscription provider not configured")
	}
	clientID, ok := handler.ClientID(ctx)
	if !ok {
		return nil, message.ErrInternalError("client ID not found in context")
	}
	filtered := s.provider.GetFilteredSubscriber(clientID)
	if filtered == nil {
		return nil, message.ErrInternalError("client not found")
	}
	return filtered, nil
}

func parseTopic(params json.RawMessage) (events.Topic, *message.Error) {
	var p struct {
		Kind string `json:"kind"`
		ID   string `json:"id"`
	}
	if rpcErr := handler.DecodeParams(params, &p); rpcErr != nil {
		return events.Topic{}, rpcErr
	}
	switch events.Kind(p.Kind) {
	case events.KindAssistant, events.KindService, events.KindAppData:
	case "":
		return events.Topic{}, message.ErrInvalidParams("kind is required")
	default:
		return events.Topic{}, message.ErrInvalidParams("unknown kind: " + p.Kind)
	}
	return events.Topic{Kind: events.Kind(p.Kind), ID: p.ID}, nil
}

func topicsResponse(f *hub.FilteredSubscriber) map[string]interface{} {
	return map[string]interface{}{
		"topics":       f.Topics(),
		"is_filtering": f.IsFiltering(),
	}
}

// Subscribe adds a topic to the client's filter.
func (s *SubscriptionService) Subscribe(ctx context.Context, params json.RawMessage) (interface{}, *message.Error) {
	filtered, rpcErr := s.filter(ctx)
	if rpcErr != nil {
		return nil, rpcErr
	}
	topic, rpcErr := parseTopic(params)
	if rpcErr != nil {
		return nil, rpcErr
	}
	filtered.SubscribeTopic(topic)
	return topicsResponse(filtered), nil
}

// Unsubscribe removes a topic from the client's filter.
func (s *SubscriptionService) Unsubscribe(ctx context.Context, params json.RawMessage) (interface{}, *message.Error) {
	filtered, rpcErr := s.filter(ctx)
	if rpcErr != nil {
		return nil, rpcErr
	}
	topic, rpcErr := parseTopic(params)
	if rpcErr != nil {
		return nil, rpcErr
	}
	filtered.UnsubscribeTopic(topic)
	return topicsResponse(filtered), nil
}

// Subscriptions returns the client's topics.
func (s *SubscriptionService) Subscriptions(ctx context.Context, params json.RawMessage) (interface{}, *message.Error) {
	filtered, rpcErr := s.filter(ctx)
	if rpcErr != nil {
		return nil, rpcErr
	}
	return topicsResponse(filtered), nil
}

// SubscribeAll clears the client's filter.
func (s *SubscriptionService) SubscribeAll(ctx context.Context, params json.RawMessage) (interface{}, *message.Error) {
	filtered, rpcErr := s.filter(ctx)
	if rpcErr != nil {
		return nil, rpcErr
	}
	filtered.SubscribeAll()
	return topicsResponse(filtered), nil
}
