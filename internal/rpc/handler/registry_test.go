package handler

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brianly1003/cquest/internal/rpc/message"
)

func constHandler(v string) HandlerFunc {
	return func(context.Context, json.RawMessage) (interface{}, *message.Error) {
		return v, nil
	}
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	r := NewRegistry()
	assert.Nil(t, r.Get("missing"))
	assert.False(t, r.Has("a/b"))

	r.Register("a/b", constHandler("first"))
	r.Register("a/b", constHandler("second"))
	require.True(t, r.Has("a/b"))

	got, rpcErr := r.Get("a/b")(context.Background(), nil)
	assert.Nil(t, rpcErr)
	assert.Equal(t, "second", got, "later registration replaces earlier")
}

func TestRegistry_Meta(t *testing.T) {
	r := NewRegistry()
	r.RegisterWithMeta("shell/run", constHandler(""), MethodMeta{Summary: "Run a shell command"})
	r.Register("bare", constHandler(""))

	assert.Equal(t, "Run a shell command", r.GetMeta("shell/run").Summary)
	assert.Equal(t, "bare", r.GetMeta("bare").Summary)
}

func TestRegistry_MethodsSorted(t *testing.T) {
	r := NewRegistry()
	for _, m := range []string{"service/stop", "assistant/send", "fs/list"} {
		r.Register(m, constHandler(m))
	}
	assert.Equal(t, []string{"assistant/send", "fs/list", "service/stop"}, r.Methods())
}

func TestRegistry_MiddlewareOrder(t *testing.T) {
	r := NewRegistry()
	var mu sync.Mutex
	var calls []string
	record := func(name string) MiddlewareFunc {
		return func(method string, next HandlerFunc) HandlerFunc {
			return func(ctx context.Context, params json.RawMessage) (interface{}, *message.Error) {
				mu.Lock()
				calls = append(calls, name+":"+method)
				mu.Unlock()
				return next(ctx, params)
			}
		}
	}
	r.Use(record("outer"))
	r.Use(record("inner"))
	r.Register("x/y", constHandler("ok"))

	got, _ := r.Get("x/y")(context.Background(), nil)
	assert.Equal(t, "ok", got)
	assert.Equal(t, []string{"outer:x/y", "inner:x/y"}, calls)
}

type fakeService struct{}

func (fakeService) RegisterMethods(r *Registry) {
	r.Register("fake/one", constHandler("1"))
	r.Register("fake/two", constHandler("2"))
}

func TestRegistry_RegisterService(t *testing.T) {
	r := NewRegistry()
	r.RegisterService(fakeService{})
	assert.Equal(t, []string{"fake/one", "fake/two"}, r.Methods())
}

func TestClientIDContext(t *testing.T) {
	_, ok := ClientID(context.Background())
	assert.False(t, ok)

	_, ok = ClientID(WithClientID(context.Background(), ""))
	assert.False(t, ok)

	id, ok := ClientID(WithClientID(context.Background(), "client-7"))
	assert.True(t, ok)
	assert.Equal(t, "client-7", id)
}

func TestDecodeParams(t *testing.T) {
	var p struct {
		Name string `json:"name"`
	}
	assert.Nil(t, DecodeParams(nil, &p))
	assert.Nil(t, DecodeParams(json.RawMessage("null"), &p))
	assert.Nil(t, DecodeParams(json.RawMessage(`{"name":"x"}`), &p))
	assert.Equal(t, "x", p.Name)

	rpcErr := DecodeParams(json.RawMessage(`{"name":3}`), &p)
	require.NotNil(t, rpcErr)
	assert.Equal(t, message.InvalidParams, rpcErr.Code)

	assert.Nil(t, Require("name", "x"))
	assert.Equal(t, "name is required", Require("name", "").Message)
}

func TestGenerateOpenRPC(t *testing.T) {
	r := NewRegistry()
	r.RegisterWithMeta("service/start", constHandler(""), MethodMeta{
		Summary: "Start a service",
		Params:  []OpenRPCParam{{Name: "service_id", Required: true, Schema: StringSchema}},
		Errors:  []string{"ServiceAlreadyRunning"},
	})
	r.Register("status/get", constHandler(""))

	spec := r.GenerateOpenRPC(OpenRPCInfo{Title: "cquest", Version: "test"}, "ws://localhost/ws")
	require.Len(t, spec.Methods, 2)
	assert.Equal(t, "service/start", spec.Methods[0].Name)
	assert.Equal(t, "#/components/errors/ServiceAlreadyRunning", spec.Methods[0].Errors[0].Ref)
	assert.NotNil(t, spec.Methods[1].Params)
	assert.Contains(t, spec.Components.Schemas, "TurnResult")

	data, err := spec.ToJSON()
	require.NoError(t, err)
	assert.Contains(t, string(data), `"openrpc": "1.2.6"`)
}
