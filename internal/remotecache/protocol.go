// Package remotecache serves the remote tier of the view computation cache
// over socket.io and provides the matching client.
//
// Requests and responses travel as events on the default namespace. Each
// request carries an id that the response echoes, so a client may have many
// requests in flight on one connection.
package remotecache

import (
	"encoding/base64"
	"errors"
	"fmt"
)

// Socket.io event names.
const (
	EventRequest  = "cache:request"
	EventResponse = "cache:response"
)

// Op is a request operation.
type Op string

const (
	OpGet   Op = "GET"
	OpPut   Op = "PUT"
	OpPurge Op = "PURGE"
)

// Status is a response status.
type Status string

const (
	StatusFound    Status = "FOUND"
	StatusNotFound Status = "NOT_FOUND"
	StatusAck      Status = "ACK"
	StatusError    Status = "ERROR"
)

var (
	// ErrTimeout is returned when no response arrives in time.
	ErrTimeout = errors.New("remote cache request timed out")
	// ErrClosed is returned by a closed client.
	ErrClosed = errors.New("remote cache client closed")
)

// Request is one cache operation. Data is base64 encoded.
type Request struct {
	ID    string `json:"id"`
	Op    Op     `json:"op"`
	Cycle string `json:"cycle"`
	Key   string `json:"key,omitempty"`
	Data  string `json:"data,omitempty"`
}

// Response answers the request with the same id.
type Response struct {
	ID     string `json:"id"`
	Status Status `json:"status"`
	Data   string `json:"data,omitempty"`
	Error  string `json:"error,omitempty"`
}

// ServerError is a failure reported by the server.
type ServerError struct {
	Message string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("remote cache server error: %s", e.Message)
}

func encode(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

func decode(data string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(data)
}
