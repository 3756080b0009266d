/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package ddb

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	sdk "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/suparena/dirsync/registry"
	"github.com/suparena/dirsync/runlock"
)

// RunStateTable implements runlock.Backend with conditional PutItem calls.
type RunStateTable struct {
	client    API
	tableName string
}

// NewRunStateTable returns a run-state backend on tableName.
func NewRunStateTable(client API, tableName string) *RunStateTable {
	return &RunStateTable{client: client, tableName: tableName}
}

func runStateKey(key string) map[string]types.AttributeValue {
	id := "LOCK#" + key
	return map[string]types.AttributeValue{
		registry.AttrPK: &types.AttributeValueMemberS{Value: id},
		registry.AttrSK: &types.AttributeValueMemberS{Value: id},
	}
}

// Load reads the run state with a strongly consistent read.
func (r *RunStateTable) Load(ctx context.Context, key string) (runlock.State, bool, error) {
	out, err := r.client.GetItem(ctx, &sdk.GetItemInput{
		TableName:      &r.tableName,
		Key:            runStateKey(key),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return runlock.State{}, false, fmt.Errorf("GetItem error: %w", err)
	}
	if out.Item == nil {
		return runlock.State{}, false, nil
	}

	var s runlock.State
	if err := attributevalue.UnmarshalMap(out.Item, &s); err != nil {
		return runlock.State{}, false, fmt.Errorf("failed to unmarshal run state: %w", err)
	}
	return s, true, nil
}

// casCondition renders the condition that the stored state still matches prev.
func casCondition(prev *runlock.State) (string, map[string]string, map[string]types.AttributeValue) {
	if prev == nil {
		return "attribute_not_exists(PK)", nil, nil
	}

	names := map[string]string{"#status": "status", "#token": "run_token"}
	values := map[string]types.AttributeValue{
		":status": &types.AttributeValueMemberS{Value: string(prev.Status)},
	}
	clauses := []string{"#status = :status"}
	if prev.RunToken == "" {
		clauses = append(clauses, "attribute_not_exists(#token)")
	} else {
		clauses = append(clauses, "#token = :token")
		values[":token"] = &types.AttributeValueMemberS{Value: prev.RunToken}
	}
	return strings.Join(clauses, " AND "), names, values
}

// CompareAndSwap writes next in a single conditional PutItem.
func (r *RunStateTable) CompareAndSwap(ctx context.Context, key string, prev *runlock.State, next runlock.State) (bool, error) {
	next.LockKey = key
	item, err := attributevalue.MarshalMap(next)
	if err != nil {
		return false, fmt.Errorf("failed to marshal run state: %w", err)
	}
	for k, v := range runStateKey(key) {
		item[k] = v
	}

	cond, names, values := casCondition(prev)
	_, err = r.client.PutItem(ctx, &sdk.PutItemInput{
		TableName:                 &r.tableName,
		Item:                      item,
		ConditionExpression:       aws.String(cond),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
	})
	if err != nil {
		if isConditionFailed(err) {
			return false, nil
		}
		return false, fmt.Errorf("PutItem failed: %w", err)
	}
	return true, nil
}
