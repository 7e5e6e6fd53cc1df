// Package message defines JSON-RPC 2.0 message types.
package message

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/tidwall/gjson"
)

// Version is the JSON-RPC protocol version.
const Version = "2.0"

// Request is a JSON-RPC 2.0 request. A nil ID marks a notification.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *ID             `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// IsNotification returns true if this request is a notification (no ID).
func (r *Request) IsNotification() bool {
	return r.ID == nil
}

// Response is a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *ID             `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// IsError returns true if this response contains an error.
func (r *Response) IsError() bool {
	return r.Error != nil
}

// Notification is a server-to-client message that expects no response.
type Notification struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// ID is a JSON-RPC id: a string or an integer.
type ID struct {
	str   string
	num   int64
	isNum bool
}

// StringID creates an ID from a string.
func StringID(s string) *ID {
	return &ID{str: s}
}

// NumberID creates an ID from an integer.
func NumberID(n int64) *ID {
	return &ID{num: n, isNum: true}
}

// IsNumber returns true if the ID is a number.
func (id *ID) IsNumber() bool {
	return id != nil && id.isNum
}

// String returns the ID for logging.
func (id *ID) String() string {
	if id == nil {
		return "<nil>"
	}
	if id.isNum {
		return strconv.FormatInt(id.num, 10)
	}
	return id.str
}

// MarshalJSON implements json.Marshaler.
func (id *ID) MarshalJSON() ([]byte, error) {
	if id == nil {
		return []byte("null"), nil
	}
	if id.isNum {
		return []byte(strconv.FormatInt(id.num, 10)), nil
	}
	return json.Marshal(id.str)
}

// UnmarshalJSON implements json.Unmarshaler.
func (id *ID) UnmarshalJSON(data []byte) error {
	v := gjson.ParseBytes(data)
	switch v.Type {
	case gjson.String:
		*id = ID{str: v.String()}
	case gjson.Number:
		*id = ID{num: v.Int(), isNum: true}
	case gjson.Null:
		*id = ID{}
	default:
		return fmt.Errorf("invalid ID type: %s", string(data))
	}
	return nil
}

// NewNotification creates a new JSON-RPC notification.
func NewNotification(method string, params interface{}) (*Notification, error) {
	n := &Notification{JSONRPC: Version, Method: method}
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal params: %w", err)
		}
		n.Params = data
	}
	return n, nil
}

// NewSuccessResponse creates a successful JSON-RPC response.
func NewSuccessResponse(id *ID, result interface{}) (*Response, error) {
	resp := &Response{JSONRPC: Version, ID: id}
	if result == nil {
		result = struct{}{}
	}
	data, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}
	resp.Result = data
	return resp, nil
}

// NewErrorResponse creates an error JSON-RPC response.
func NewErrorResponse(id *ID, err *Error) *Response {
	return &Response{JSONRPC: Version, ID: id, Error: err}
}

// ParseRequest parses and validates a single JSON-RPC request.
func ParseRequest(data []byte) (*Request, *Error) {
	if !gjson.ValidBytes(data) {
		return nil, ErrParseError("")
	}
	if !gjson.ParseBytes(data).IsObject() {
		return nil, ErrInvalidRequest("request must be an object")
	}

	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, ErrInvalidRequest(err.Error())
	}
	if req.JSONRPC != Version {
		return &req, ErrInvalidRequest("invalid jsonrpc version: " + req.JSONRPC)
	}
	if req.Method == "" {
		return &req, ErrInvalidRequest("missing method")
	}
	return &req, nil
}

// IsBatch reports whether data is a JSON array of requests.
func IsBatch(data []byte) bool {
	return gjson.ParseBytes(data).IsArray()
}
