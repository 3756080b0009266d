/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package storagemodels

import (
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// StreamResult is a single listed record with metadata
type StreamResult[T any] struct {
	Item  T                               // The unmarshaled record
	Raw   map[string]types.AttributeValue // Raw DynamoDB attributes
	Error error                           // Item-specific error, if any
	Meta  StreamMeta                      // Metadata about this item
}

// StreamMeta contains metadata about a listed record
type StreamMeta struct {
	Index      int64     // Item index in stream (0-based)
	PageNumber int       // DynamoDB page number (1-based)
	Timestamp  time.Time // When item was retrieved
}

// ListOptions configures how a store lists records
type ListOptions struct {
	BufferSize      int                // Channel buffer size (default: 100)
	MaxRetries      int                // Retry attempts for transient errors (default: 3)
	RetryBackoff    time.Duration      // Backoff between retries (default: 1s)
	PageSize        int32              // Items per DynamoDB page (default: 100)
	Limit           int                // Stop after this many records (0: no limit)
	Descending      bool               // Reverse sort-key order
	ProgressHandler func(ListProgress) // Optional progress callback
}

// ListProgress tracks listing progress
type ListProgress struct {
	ItemsProcessed int64     // Total items processed
	PagesProcessed int       // Total pages processed
	StartTime      time.Time // When listing started
	CurrentRate    float64   // Items per second
}

// ListOption is a functional option for configuring listing
type ListOption func(*ListOptions)

// DefaultListOptions returns default listing options
func DefaultListOptions() ListOptions {
	return ListOptions{
		BufferSize:   100,
		MaxRetries:   3,
		RetryBackoff: time.Second,
		PageSize:     100,
	}
}

// ApplyListOptions folds opts over the defaults.
func ApplyListOptions(opts ...ListOption) ListOptions {
	options := DefaultListOptions()
	for _, opt := range opts {
		opt(&options)
	}
	return options
}

// WithBufferSize sets the channel buffer size
func WithBufferSize(size int) ListOption {
	return func(opts *ListOptions) {
		opts.BufferSize = size
	}
}

// WithMaxRetries sets the maximum retry attempts
func WithMaxRetries(retries int) ListOption {
	return func(opts *ListOptions) {
		opts.MaxRetries = retries
	}
}

// WithRetryBackoff sets the retry backoff duration
func WithRetryBackoff(backoff time.Duration) ListOption {
	return func(opts *ListOptions) {
		opts.RetryBackoff = backoff
	}
}

// WithPageSize sets the DynamoDB page size
func WithPageSize(size int32) ListOption {
	return func(opts *ListOptions) {
		opts.PageSize = size
	}
}

// WithLimit stops listing after n records
func WithLimit(n int) ListOption {
	return func(opts *ListOptions) {
		opts.Limit = n
	}
}

// WithDescending lists in reverse sort-key order
func WithDescending() ListOption {
	return func(opts *ListOptions) {
		opts.Descending = true
	}
}

// WithProgressHandler sets a progress callback
func WithProgressHandler(handler func(ListProgress)) ListOption {
	return func(opts *ListOptions) {
		opts.ProgressHandler = handler
	}
}
