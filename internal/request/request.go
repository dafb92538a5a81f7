// Package request carries address-protocol requests from the engine to the
// socket: the Request value, its validity window and the timed sender that
// drains the request queue.
package request

import (
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrExpired is returned by Check for a request past its NotAfter.
	ErrExpired = errors.New("request expired")
	// ErrNotYetValid is returned by Check for a request before its NotBefore.
	ErrNotYetValid = errors.New("request not yet valid")
)

// Request is an immutable address/payload message bound for the address
// protocol. A zero NotBefore or NotAfter leaves that side of the validity
// window open.
type Request struct {
	ID        string
	Address   string
	Payload   map[string]any
	NotBefore time.Time
	NotAfter  time.Time
	Created   time.Time
}

// Option configures a Request built by New.
type Option func(*Request)

// WithValidity bounds the window in which the request may be sent.
func WithValidity(notBefore, notAfter time.Time) Option {
	return func(r *Request) {
		r.NotBefore = notBefore
		r.NotAfter = notAfter
	}
}

// WithTTL expires the request d after its creation.
func WithTTL(d time.Duration) Option {
	return func(r *Request) { r.NotAfter = r.Created.Add(d) }
}

// WithCreated overrides the creation time, which otherwise is time.Now.
// Apply it before WithTTL.
func WithCreated(t time.Time) Option {
	return func(r *Request) { r.Created = t }
}

// New builds a request for address. The payload map is copied.
func New(address string, payload map[string]any, opts ...Option) Request {
	r := Request{
		ID:      uuid.NewString(),
		Address: address,
		Payload: maps.Clone(payload),
		Created: time.Now(),
	}
	for _, opt := range opts {
		opt(&r)
	}
	return r
}

// Check reports whether now lies inside the validity window.
func (r Request) Check(now time.Time) error {
	if !r.NotBefore.IsZero() && now.Before(r.NotBefore) {
		return fmt.Errorf("request %s: %w (not before %s)", r.ID, ErrNotYetValid, r.NotBefore.Format(time.RFC3339Nano))
	}
	if !r.NotAfter.IsZero() && now.After(r.NotAfter) {
		return fmt.Errorf("request %s: %w (not after %s)", r.ID, ErrExpired, r.NotAfter.Format(time.RFC3339Nano))
	}
	return nil
}
