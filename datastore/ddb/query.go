/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package ddb

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/suparena/dirsync/registry"
	"github.com/suparena/dirsync/storagemodels"
)

// IndexName is the global secondary index that groups records by entity type.
const IndexName = "GSI1"

// listParams builds the GSI1 query selecting every record of type T.
func listParams[T any](tableName string, options storagemodels.ListOptions) (*storagemodels.QueryParams, error) {
	indexMap, err := registry.RequireIndexMap[T]()
	if err != nil {
		return nil, err
	}
	pk, ok := indexMap[registry.AttrGSI1PK]
	if !ok || pk == "" {
		return nil, fmt.Errorf("%s not found in index map", registry.AttrGSI1PK)
	}
	if macroPattern.MatchString(pk) {
		return nil, fmt.Errorf("%s template %q must be a constant to list by type", registry.AttrGSI1PK, pk)
	}

	params := &storagemodels.QueryParams{
		TableName:              tableName,
		IndexName:              aws.String(IndexName),
		KeyConditionExpression: "#gsipk = :pk",
		ExpressionAttributeNames: map[string]string{
			"#gsipk": registry.AttrGSI1PK,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: pk},
		},
		ScanIndexForward: aws.Bool(!options.Descending),
	}
	if options.Limit > 0 {
		params.Limit = aws.Int32(int32(options.Limit))
	}
	return params, nil
}

// List returns every record of type T ordered by the GSI1 sort key.
func (d *DataStore[T]) List(ctx context.Context, opts ...storagemodels.ListOption) ([]T, error) {
	options := storagemodels.ApplyListOptions(opts...)
	params, err := listParams[T](d.tableName, options)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var out []T
	for res := range d.stream(ctx, params, options) {
		if res.Error != nil {
			return nil, res.Error
		}
		out = append(out, res.Item)
		if options.Limit > 0 && len(out) >= options.Limit {
			break
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
