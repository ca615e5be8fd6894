package daemon

import (
	"encoding/json"

	"github.com/dshills/codescope/pkg/types"
)

// Response statuses
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Commands the daemon answers itself; everything else goes to the Handler
const (
	CommandStatus = "status"
	CommandIndex  = "index"
)

// maxLine bounds one request or response line
const maxLine = 16 << 20

// Request is one line sent by a client
type Request struct {
	ID      string          `json:"id"`
	Command string          `json:"command"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response answers the Request with the same ID
type Response struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *ErrorBody      `json:"error,omitempty"`
}

// ErrorBody carries a failed request's taxonomy kind and message
type ErrorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// IndexParams are the parameters of the index command. No paths means a
// full rescan of the root.
type IndexParams struct {
	Paths []string `json:"paths,omitempty"`
}

func errorResponse(id string, err error) Response {
	return Response{ID: id, Status: StatusError, Error: &ErrorBody{Kind: types.ErrorKind(err), Message: err.Error()}}
}

// RemoteError is an error returned by the daemon. It unwraps to the
// sentinel of its kind, so errors.Is works across the wire.
type RemoteError struct {
	Kind    string
	Message string
}

func (e *RemoteError) Error() string { return e.Message }

// Unwrap returns the sentinel error for Kind, if any
func (e *RemoteError) Unwrap() error { return types.KindError(e.Kind) }
