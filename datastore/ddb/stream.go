/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package ddb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	sdk "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/suparena/dirsync/registry"
	"github.com/suparena/dirsync/storagemodels"
)

// stream pages through a query in the background and delivers typed records
func (d *DataStore[T]) stream(ctx context.Context, params *storagemodels.QueryParams, options storagemodels.ListOptions) <-chan storagemodels.StreamResult[T] {
	resultCh := make(chan storagemodels.StreamResult[T], options.BufferSize)
	go d.streamWorker(ctx, params, options, resultCh)
	return resultCh
}

// streamWorker handles the actual paging
func (d *DataStore[T]) streamWorker(
	ctx context.Context,
	params *storagemodels.QueryParams,
	options storagemodels.ListOptions,
	resultCh chan<- storagemodels.StreamResult[T],
) {
	defer close(resultCh)

	var itemIndex int64
	var pageNumber int
	startTime := time.Now()

	reportProgress := func() {
		if options.ProgressHandler == nil {
			return
		}
		progress := storagemodels.ListProgress{
			ItemsProcessed: itemIndex,
			PagesProcessed: pageNumber,
			StartTime:      startTime,
		}
		if elapsed := time.Since(startTime).Seconds(); elapsed > 0 {
			progress.CurrentRate = float64(itemIndex) / elapsed
		}
		options.ProgressHandler(progress)
	}

	// The datastore's table always wins over params.TableName.
	input := &sdk.QueryInput{
		TableName:                 &d.tableName,
		KeyConditionExpression:    &params.KeyConditionExpression,
		ExpressionAttributeNames:  params.ExpressionAttributeNames,
		ExpressionAttributeValues: params.ExpressionAttributeValues,
		FilterExpression:          params.FilterExpression,
		IndexName:                 params.IndexName,
		Limit:                     aws.Int32(options.PageSize),
		ScanIndexForward:          params.ScanIndexForward,
		ConsistentRead:            params.ConsistentRead,
		ExclusiveStartKey:         params.ExclusiveStartKey,
	}

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		out, err := d.queryWithRetry(ctx, input, options)
		if err != nil {
			select {
			case <-ctx.Done():
			case resultCh <- storagemodels.StreamResult[T]{
				Error: fmt.Errorf("query failed: %w", err),
				Meta: storagemodels.StreamMeta{
					Index:      itemIndex,
					PageNumber: pageNumber,
					Timestamp:  time.Now(),
				},
			}:
			}
			return
		}

		pageNumber++

		for _, item := range out.Items {
			result := d.processItem(item, itemIndex, pageNumber)
			itemIndex++

			select {
			case <-ctx.Done():
				return
			case resultCh <- result:
			}
			if result.Error != nil {
				return
			}
		}

		reportProgress()

		if len(out.LastEvaluatedKey) == 0 {
			return
		}
		input.ExclusiveStartKey = out.LastEvaluatedKey
	}
}

// queryWithRetry executes a query with linear backoff on retryable errors
func (d *DataStore[T]) queryWithRetry(
	ctx context.Context,
	input *sdk.QueryInput,
	options storagemodels.ListOptions,
) (*sdk.QueryOutput, error) {
	var lastErr error

	for attempt := 0; attempt <= options.MaxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		out, err := d.client.Query(ctx, input)
		if err == nil {
			return out, nil
		}
		lastErr = err

		if !isRetryableError(err) {
			return nil, err
		}

		// Don't sleep after last attempt
		if attempt < options.MaxRetries {
			backoff := time.Duration(attempt+1) * options.RetryBackoff
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}
	}

	return nil, fmt.Errorf("query failed after %d retries: %w", options.MaxRetries, lastErr)
}

// processItem converts a DynamoDB item to a typed result via the type registry
func (d *DataStore[T]) processItem(item map[string]types.AttributeValue, index int64, pageNumber int) storagemodels.StreamResult[T] {
	meta := storagemodels.StreamMeta{
		Index:      index,
		PageNumber: pageNumber,
		Timestamp:  time.Now(),
	}

	var zero T
	var entityType string
	if attr, ok := item[AttrEntityType]; ok {
		if err := attributevalue.Unmarshal(attr, &entityType); err != nil {
			return storagemodels.StreamResult[T]{Error: fmt.Errorf("failed to unmarshal %s: %w", AttrEntityType, err), Raw: item, Meta: meta}
		}
	}
	if entityType != zero.EntityType() {
		return storagemodels.StreamResult[T]{
			Error: fmt.Errorf("item has %s %q, want %q", AttrEntityType, entityType, zero.EntityType()),
			Raw:   item,
			Meta:  meta,
		}
	}

	unmarshalFn, err := registry.GetUnmarshalFunc(entityType)
	if err != nil {
		return storagemodels.StreamResult[T]{Error: err, Raw: item, Meta: meta}
	}
	obj, err := unmarshalFn(item)
	if err != nil {
		return storagemodels.StreamResult[T]{Error: fmt.Errorf("failed to unmarshal item for %s %q: %w", AttrEntityType, entityType, err), Raw: item, Meta: meta}
	}
	typed, ok := obj.(T)
	if !ok {
		return storagemodels.StreamResult[T]{Error: fmt.Errorf("registered unmarshaler for %q returned %T", entityType, obj), Raw: item, Meta: meta}
	}
	return storagemodels.StreamResult[T]{Item: typed, Raw: item, Meta: meta}
}

// isRetryableError determines if a DynamoDB error is retryable
func isRetryableError(err error) bool {
	var throughput *types.ProvisionedThroughputExceededException
	var limit *types.RequestLimitExceeded
	var internal *types.InternalServerError
	if errors.As(err, &throughput) || errors.As(err, &limit) || errors.As(err, &internal) {
		return true
	}

	var retryable interface{ RetryableError() bool }
	if errors.As(err, &retryable) {
		return retryable.RetryableError()
	}
	return false
}
