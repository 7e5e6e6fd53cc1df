package methods

import (
	"context"
	"encoding/json"
	"errors"
	"os"

	"github.com/brianly1003/cquest/internal/rpc/handler"
	"github.com/brianly1003/cquest/internal/rpc/message"
	"github.com/brianly1003/cquest/internal/workspace"
)

// FSService exposes directory browsing.
type FSService struct{}

// NewFSService creates a new file system service.
func NewFSService() *FSService {
	return &FSService{}
}

// RegisterMethods registers all fs methods.
func (s *FSService) RegisterMethods(r *handler.Registry) {
	r.RegisterWithMeta("fs/list", s.List, handler.MethodMeta{
		Summary:     "List a directory",
		Description: "Lists non-hidden entries, directories first, each group sorted case-insensitively.",
		Params: []handler.OpenRPCParam{
			{Name: "path", Required: true, Schema: handler.StringSchema},
		},
		Result: &handler.OpenRPCResult{Name: "result", Schema: map[string]interface{}{
			"type": "object", "properties": map[string]interface{}{
				"entries": map[string]interface{}{"type": "array", "items": handler.RefSchema("DirEntry")},
			},
		}},
	})

	r.RegisterWithMeta("fs/home", s.Home, handler.MethodMeta{
		Summary: "Get the user's home directory",
		Result: &handler.OpenRPCResult{Name: "result", Schema: map[string]interface{}{
			"type": "object", "properties": map[string]interface{}{"path": handler.StringSchema},
		}},
		Errors: []string{"HomeNotFound"},
	})
}

// List lists a directory.
func (s *FSService) List(ctx context.Context, params json.RawMessage) (interface{}, *message.Error) {
	var p struct {
		Path string `json:"path"`
	}
	if rpcErr := handler.DecodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	if rpcErr := handler.Require("path", p.Path); rpcErr != nil {
		return nil, rpcErr
	}

	entries, err := workspace.ListDirectory(p.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, message.NewErrorWithData(message.DirectoryNotFound, err.Error(), map[string]string{"path": p.Path})
		}
		return nil, message.FromError(err)
	}
	if entries == nil {
		entries = []workspace.Entry{}
	}
	return map[string]interface{}{"entries": entries}, nil
}

// Home returns the home directory.
func (s *FSService) Home(ctx context.Context, params json.RawMessage) (interface{}, *message.Error) {
	home, err := workspace.HomeDir()
	if err != nil {
		return nil, message.FromError(err)
	}
	return map[string]string{"path": home}, nil
}
