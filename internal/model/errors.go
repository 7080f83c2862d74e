package model

import "encoding/json"

type ServiceError struct {
	Message   string `json:"message,omitempty"`
	RequestID string `json:"request_id,omitempty"`

	Code int `json:"-"`
}

func (err ServiceError) Error() string {
	data, _ := json.Marshal(&err)

	return string(data)
}

type Error string

func (err Error) Error() string {
	return string(err)
}

const (
	ErrNotFound      Error = "not found"
	ErrInvalidMAC    Error = "invalid mac address"
	ErrInvalidStatus Error = "invalid status"

	// ErrUnreachable means the router did not answer. Transient: the next
	// cycle retries.
	ErrUnreachable Error = "gateway unreachable"
	// ErrAuthExpired means the router rejected the session token. Callers
	// refresh the session and retry once within the same cycle.
	ErrAuthExpired Error = "gateway session expired"
)
