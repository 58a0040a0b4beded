package protocol

import (
	"encoding/json"
	"net/http"
)

// Envelope is the uniform response body of every bridge endpoint.
type Envelope struct {
	OK        bool   `json:"ok"`
	Data      any    `json:"data,omitempty"`
	Error     Code   `json:"error,omitempty"`
	Message   string `json:"message,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

func Success(data any) Envelope {
	return Envelope{OK: true, Data: data}
}

func Failure(err error) Envelope {
	code := CodeOf(err)
	return Envelope{
		OK:        false,
		Error:     code,
		Message:   MessageOf(err),
		Retryable: Retryable(code),
	}
}

// WriteEnvelope writes env as JSON with the given status.
func WriteEnvelope(w http.ResponseWriter, status int, env Envelope) error {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(env)
}

// WriteError writes the failure envelope with the status its code maps to.
func WriteError(w http.ResponseWriter, err error) error {
	env := Failure(err)
	return WriteEnvelope(w, HTTPStatus(env.Error), env)
}
