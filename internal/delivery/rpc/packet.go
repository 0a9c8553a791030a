// Package rpc routes request/reply messages received on the bus to the use cases
// and encodes their results as reply packets.
package rpc

import (
	"encoding/json"

	domainerrors "identity/internal/domain/errors"
)

// Message patterns served by the auth service.
const (
	PatternRegisterUser = "auth.register.user"
	PatternLoginUser    = "auth.login.user"
	PatternVerifyUser   = "auth.verify.user"
)

// Request is the packet published by microservice clients. Data holds the payload.
type Request struct {
	ID      string          `json:"id,omitempty"`
	Pattern string          `json:"pattern,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Reply carries either Response or Err back to the caller.
type Reply struct {
	ID         string                 `json:"id,omitempty"`
	Response   any                    `json:"response,omitempty"`
	Err        *domainerrors.Envelope `json:"err,omitempty"`
	IsDisposed bool                   `json:"isDisposed"`
}

// decodeRequest accepts both a full packet and a bare payload.
func decodeRequest(body []byte) *Request {
	var req Request
	if err := json.Unmarshal(body, &req); err != nil || len(req.Data) == 0 {
		return &Request{Data: body}
	}

	return &req
}
