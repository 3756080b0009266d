/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package registry

import (
	"fmt"
	"reflect"
	"sync"
)

// Index map attribute names understood by the DynamoDB store.
const (
	AttrPK     = "PK"
	AttrSK     = "SK"
	AttrGSI1PK = "GSI1PK"
	AttrGSI1SK = "GSI1SK"
)

var (
	indexMapRegistry = make(map[reflect.Type]map[string]string)
	mu               sync.RWMutex
)

// RegisterIndexMap associates a Go type T with its key templates (PK, SK, GSI1PK, GSI1SK).
// Re-registering a type replaces its templates.
func RegisterIndexMap[T any](idxMap map[string]string) {
	t := reflect.TypeOf((*T)(nil)).Elem()

	copied := make(map[string]string, len(idxMap))
	for k, v := range idxMap {
		copied[k] = v
	}

	mu.Lock()
	defer mu.Unlock()
	indexMapRegistry[t] = copied
}

// GetIndexMap retrieves the indexMap for type T, if any.
func GetIndexMap[T any]() (map[string]string, bool) {
	t := reflect.TypeOf((*T)(nil)).Elem()

	mu.RLock()
	defer mu.RUnlock()
	m, ok := indexMapRegistry[t]
	return m, ok
}

// RequireIndexMap is GetIndexMap for types that must carry a PK and SK template.
func RequireIndexMap[T any]() (map[string]string, error) {
	m, ok := GetIndexMap[T]()
	if !ok {
		return nil, fmt.Errorf("no index map registered for %s", reflect.TypeOf((*T)(nil)).Elem())
	}
	if m[AttrPK] == "" || m[AttrSK] == "" {
		return nil, fmt.Errorf("index map for %s lacks %s or %s", reflect.TypeOf((*T)(nil)).Elem(), AttrPK, AttrSK)
	}
	return m, nil
}
