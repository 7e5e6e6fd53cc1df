package handler

import (
	"encoding/json"

	"github.com/brianly1003/cquest/internal/rpc/message"
)

// DecodeParams unmarshals params into v. Missing params decode as an empty
// object so that methods whose fields are all optional accept no params.
func DecodeParams(params json.RawMessage, v interface{}) *message.Error {
	if len(params) == 0 || string(params) == "null" {
		params = json.RawMessage("{}")
	}
	if err := json.Unmarshal(params, v); err != nil {
		return message.ErrInvalidParams("failed to parse params: " + err.Error())
	}
	return nil
}

// Require returns an invalid-params error when value is empty.
func Require(field, value string) *message.Error {
	if value == "" {
		return message.ErrInvalidParams(field + " is required")
	}
	return nil
}
