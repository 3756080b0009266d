/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package identity

import (
	"fmt"
	"time"
)

// EventType is the kind of mutation a ChangeEvent describes.
type EventType string

const (
	EventCreated EventType = "CREATED"
	EventUpdated EventType = "UPDATED"
	EventDeleted EventType = "DELETED"
)

// EntityKey identifies a stored entity by its type and natural key.
type EntityKey struct {
	Type string `json:"type"`
	Key  string `json:"key"`
}

// HashKey is the partition key of the entity record.
func (k EntityKey) HashKey() string {
	return k.Type + "#" + k.Key
}

// RangeKey is the sort key of the entity record. Entities are stored as
// single-item partitions so both keys coincide.
func (k EntityKey) RangeKey() string {
	return k.Type + "#" + k.Key
}

// OrderingGroup ties together all events of one (hash key, range key) pair.
func (k EntityKey) OrderingGroup() string {
	return fmt.Sprintf("%s-%s", k.HashKey(), k.RangeKey())
}

func (k EntityKey) String() string {
	return k.HashKey()
}

// ChangeEvent is published once per successfully applied mutation.
type ChangeEvent struct {
	Entity        EntityKey `json:"entity"`
	EventType     EventType `json:"eventType"`
	OrderingGroup string    `json:"orderingGroup"`
	Sequence      int64     `json:"sequence"`
	RunToken      string    `json:"runToken"`
	OccurredAt    time.Time `json:"occurredAt"`
	Payload       any       `json:"payload,omitempty"`
}
