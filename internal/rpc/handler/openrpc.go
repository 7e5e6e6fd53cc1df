package handler

import (
	"encoding/json"
)

// OpenRPCSpec is an OpenRPC document describing the registered methods.
type OpenRPCSpec struct {
	OpenRPC    string            `json:"openrpc"`
	Info       OpenRPCInfo       `json:"info"`
	Servers    []OpenRPCServer   `json:"servers"`
	Methods    []OpenRPCMethod   `json:"methods"`
	Components OpenRPCComponents `json:"components"`
}

// OpenRPCInfo contains API metadata.
type OpenRPCInfo struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Version     string `json:"version"`
}

// OpenRPCServer represents a server endpoint.
type OpenRPCServer struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// OpenRPCMethod represents a JSON-RPC method.
type OpenRPCMethod struct {
	Name        string            `json:"name"`
	Summary     string            `json:"summary"`
	Description string            `json:"description,omitempty"`
	Params      []OpenRPCParam    `json:"params"`
	Result      *OpenRPCResult    `json:"result,omitempty"`
	Errors      []OpenRPCErrorRef `json:"errors,omitempty"`
}

// OpenRPCParam represents a method parameter.
type OpenRPCParam struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	Required    bool                   `json:"required"`
	Schema      map[string]interface{} `json:"schema"`
}

// OpenRPCResult represents a method result.
type OpenRPCResult struct {
	Name   string                 `json:"name"`
	Schema map[string]interface{} `json:"schema"`
}

// OpenRPCErrorRef references an error definition.
type OpenRPCErrorRef struct {
	Ref string `json:"$ref,omitempty"`
}

// OpenRPCComponents contains reusable components.
type OpenRPCComponents struct {
	Schemas map[string]interface{} `json:"schemas,omitempty"`
	Errors  map[string]interface{} `json:"errors,omitempty"`
}

// MethodMeta contains metadata for a registered method.
type MethodMeta struct {
	Summary     string
	Description string
	Params      []OpenRPCParam
	Result      *OpenRPCResult
	Errors      []string // names under components.errors
}

// Schema helpers keep method metadata short.
var (
	StringSchema  = map[string]interface{}{"type": "string"}
	BoolSchema    = map[string]interface{}{"type": "boolean"}
	IntegerSchema = map[string]interface{}{"type": "integer"}
	ObjectSchema  = map[string]interface{}{"type": "object"}
)

// RefSchema points at a schema under components.schemas.
func RefSchema(name string) map[string]interface{} {
	return map[string]interface{}{"$ref": "#/components/schemas/" + name}
}

// GenerateOpenRPC generates an OpenRPC document from the registry.
func (r *Registry) GenerateOpenRPC(info OpenRPCInfo, serverURL string) *OpenRPCSpec {
	spec := &OpenRPCSpec{
		OpenRPC: "1.2.6",
		Info:    info,
		Servers: []OpenRPCServer{
			{Name: "Default", URL: serverURL},
		},
		Methods: make([]OpenRPCMethod, 0),
		Components: OpenRPCComponents{
			Schemas: defaultSchemas(),
			Errors:  defaultErrors(),
		},
	}

	for _, name := range r.Methods() {
		meta := r.GetMeta(name)
		method := OpenRPCMethod{
			Name:        name,
			Summary:     meta.Summary,
			Description: meta.Description,
			Params:      meta.Params,
			Result:      meta.Result,
		}
		if method.Params == nil {
			method.Params = []OpenRPCParam{}
		}
		for _, errName := range meta.Errors {
			method.Errors = append(method.Errors, OpenRPCErrorRef{
				Ref: "#/components/errors/" + errName,
			})
		}
		spec.Methods = append(spec.Methods, method)
	}

	return spec
}

// ToJSON returns the OpenRPC document as indented JSON.
func (spec *OpenRPCSpec) ToJSON() ([]byte, error) {
	return json.MarshalIndent(spec, "", "  ")
}

func props(fields map[string]interface{}) map[string]interface{} {
	return map[string]interface{}{"type": "object", "properties": fields}
}

func defaultSchemas() map[string]interface{} {
	return map[string]interface{}{
		"TurnResult": props(map[string]interface{}{
			"response":    StringSchema,
			"session_id":  StringSchema,
			"tokens_used": IntegerSchema,
		}),
		"ShellResult": props(map[string]interface{}{
			"stdout":    StringSchema,
			"stderr":    StringSchema,
			"exit_code": IntegerSchema,
		}),
		"DirEntry": props(map[string]interface{}{
			"name":   StringSchema,
			"path":   StringSchema,
			"is_dir": BoolSchema,
		}),
		"RunRecord": props(map[string]interface{}{
			"id":         StringSchema,
			"kind":       StringSchema,
			"entity_id":  StringSchema,
			"command":    StringSchema,
			"work_dir":   StringSchema,
			"started_at": StringSchema,
			"ended_at":   StringSchema,
			"exit_code":  IntegerSchema,
			"outcome":    StringSchema,
		}),
		"Integration": props(map[string]interface{}{
			"id":             StringSchema,
			"name":           StringSchema,
			"type":           map[string]interface{}{"type": "string", "enum": []string{"mcp", "api-key"}},
			"server_command": StringSchema,
			"server_args":    map[string]interface{}{"type": "array", "items": StringSchema},
			"env_variable":   StringSchema,
			"api_key":        StringSchema,
		}),
		"StatusResult": props(map[string]interface{}{
			"version":             StringSchema,
			"uptime_seconds":      IntegerSchema,
			"connected_clients":   IntegerSchema,
			"running_jobs":        map[string]interface{}{"type": "array", "items": StringSchema},
			"running_services":    map[string]interface{}{"type": "array", "items": StringSchema},
			"assistant_installed": BoolSchema,
		}),
	}
}

func defaultErrors() map[string]interface{} {
	return map[string]interface{}{
		"ServiceAlreadyRunning": map[string]interface{}{
			"code":    -32001,
			"message": "service is already running",
		},
		"UpstreamFailure": map[string]interface{}{
			"code":    -32003,
			"message": "The child process reported an error",
		},
		"SpawnFailure": map[string]interface{}{
			"code":    -32004,
			"message": "The child process could not be started",
		},
		"HomeNotFound": map[string]interface{}{
			"code":    -32020,
			"message": "could not find home directory",
		},
	}
}
