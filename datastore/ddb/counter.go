/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package ddb

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	sdk "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/suparena/dirsync/registry"
)

// Counter hands out numeric ids (uid, gid) from atomic counters in the table.
// The first id of a kind is its base plus one.
type Counter struct {
	client    API
	tableName string
	bases     map[string]int64
}

// NewCounter returns a Counter. bases maps a kind to its starting value.
func NewCounter(client API, tableName string, bases map[string]int64) *Counter {
	copied := make(map[string]int64, len(bases))
	for k, v := range bases {
		copied[k] = v
	}
	return &Counter{client: client, tableName: tableName, bases: copied}
}

// NextID atomically increments the counter for kind and returns the new value.
func (c *Counter) NextID(ctx context.Context, kind string) (int64, error) {
	id := "COUNTER#" + kind
	out, err := c.client.UpdateItem(ctx, &sdk.UpdateItemInput{
		TableName: &c.tableName,
		Key: map[string]types.AttributeValue{
			registry.AttrPK: &types.AttributeValueMemberS{Value: id},
			registry.AttrSK: &types.AttributeValueMemberS{Value: id},
		},
		UpdateExpression:         aws.String("SET #value = if_not_exists(#value, :base) + :one"),
		ExpressionAttributeNames: map[string]string{"#value": "value"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":base": &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", c.bases[kind])},
			":one":  &types.AttributeValueMemberN{Value: "1"},
		},
		ReturnValues: types.ReturnValueUpdatedNew,
	})
	if err != nil {
		return 0, fmt.Errorf("UpdateItem failed for counter %s: %w", kind, err)
	}

	attr, ok := out.Attributes["value"]
	if !ok {
		return 0, fmt.Errorf("counter %s: no value returned", kind)
	}
	var next int64
	if err := attributevalue.Unmarshal(attr, &next); err != nil {
		return 0, fmt.Errorf("counter %s: %w", kind, err)
	}
	return next, nil
}
