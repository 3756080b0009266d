/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package events

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/suparena/dirsync/errors"
	"github.com/suparena/dirsync/identity"
)

// Emitter publishes change notifications. Delivery is at-least-once and
// ordered within an ordering group.
type Emitter interface {
	Publish(ctx context.Context, orderingGroup string, eventType identity.EventType, detail any) error
}

// Envelope is the wire form of a published event.
type Envelope struct {
	EventGroupID string             `json:"event_group_id"`
	EventType    identity.EventType `json:"event_type"`
	Detail       any                `json:"detail"`
}

// Validate checks the fields every emitter requires.
func Validate(orderingGroup string, eventType identity.EventType, detail any) error {
	switch {
	case orderingGroup == "":
		return errors.NewValidationError("event_group_id", "is required")
	case eventType == "":
		return errors.NewValidationError("event_type", "is required")
	case detail == nil:
		return errors.NewValidationError("detail", "is required")
	}
	return nil
}

// Discard is an Emitter that validates and drops every event. It stands in
// when no event queue is configured.
type Discard struct {
	logger *zap.Logger
}

// NewDiscard returns a Discard that logs each dropped event at debug level.
func NewDiscard(logger *zap.Logger) *Discard {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Discard{logger: logger}
}

func (d *Discard) Publish(_ context.Context, orderingGroup string, eventType identity.EventType, detail any) error {
	if err := Validate(orderingGroup, eventType, detail); err != nil {
		return err
	}
	d.logger.Debug("dropping change event, no queue configured",
		zap.String("event_group_id", orderingGroup),
		zap.String("event_type", string(eventType)))
	return nil
}

// Recorder is an in-memory Emitter that keeps every published envelope.
type Recorder struct {
	mu       sync.Mutex
	events   []Envelope
	failFunc func(Envelope) error
}

// NewRecorder returns an empty Recorder
func NewRecorder() *Recorder {
	return &Recorder{}
}

// WithFailFunc makes Publish fail whenever f returns an error
func (r *Recorder) WithFailFunc(f func(Envelope) error) *Recorder {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failFunc = f
	return r
}

func (r *Recorder) Publish(_ context.Context, orderingGroup string, eventType identity.EventType, detail any) error {
	if err := Validate(orderingGroup, eventType, detail); err != nil {
		return err
	}
	env := Envelope{EventGroupID: orderingGroup, EventType: eventType, Detail: detail}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failFunc != nil {
		if err := r.failFunc(env); err != nil {
			return err
		}
	}
	r.events = append(r.events, env)
	return nil
}

// Events returns a copy of the published envelopes in publish order
func (r *Recorder) Events() []Envelope {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Envelope(nil), r.events...)
}

// ChangeEvents returns the published details that are change events
func (r *Recorder) ChangeEvents() []identity.ChangeEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []identity.ChangeEvent
	for _, e := range r.events {
		if ce, ok := e.Detail.(identity.ChangeEvent); ok {
			out = append(out, ce)
		}
	}
	return out
}

// Reset drops every recorded envelope
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
