/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// UnmarshalFunc defines a function that takes a raw DynamoDB item and returns the unmarshaled object.
type UnmarshalFunc func(item map[string]types.AttributeValue) (interface{}, error)

var (
	typeRegistry = make(map[string]UnmarshalFunc)
	typeMu       sync.RWMutex
)

// RegisterType registers an unmarshal function for an EntityType value ("USER", "GROUP", ...).
// If a type is already registered, it panics to prevent accidental overrides.
func RegisterType(entityType string, fn UnmarshalFunc) {
	typeMu.Lock()
	defer typeMu.Unlock()
	if _, exists := typeRegistry[entityType]; exists {
		panic(fmt.Sprintf("type registry: entity type %q already registered", entityType))
	}
	typeRegistry[entityType] = fn
}

// GetUnmarshalFunc returns the registered unmarshal function for the given entity type.
func GetUnmarshalFunc(entityType string) (UnmarshalFunc, error) {
	typeMu.RLock()
	defer typeMu.RUnlock()
	fn, ok := typeRegistry[entityType]
	if !ok {
		return nil, fmt.Errorf("type registry: no type registered for %q", entityType)
	}
	return fn, nil
}

// RegisteredTypes lists the registered entity types in sorted order.
func RegisteredTypes() []string {
	typeMu.RLock()
	defer typeMu.RUnlock()
	out := make([]string, 0, len(typeRegistry))
	for k := range typeRegistry {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
