/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package ddb

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	sdk "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/suparena/dirsync/datastore"
	dserrors "github.com/suparena/dirsync/errors"
	"github.com/suparena/dirsync/registry"
)

// AttrEntityType is injected into every item so listings can pick the right unmarshaler.
const AttrEntityType = "EntityType"

// API is the subset of the DynamoDB client used by this package.
type API interface {
	GetItem(ctx context.Context, params *sdk.GetItemInput, optFns ...func(*sdk.Options)) (*sdk.GetItemOutput, error)
	PutItem(ctx context.Context, params *sdk.PutItemInput, optFns ...func(*sdk.Options)) (*sdk.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *sdk.DeleteItemInput, optFns ...func(*sdk.Options)) (*sdk.DeleteItemOutput, error)
	UpdateItem(ctx context.Context, params *sdk.UpdateItemInput, optFns ...func(*sdk.Options)) (*sdk.UpdateItemOutput, error)
	Query(ctx context.Context, params *sdk.QueryInput, optFns ...func(*sdk.Options)) (*sdk.QueryOutput, error)
}

// ClientOptions configures NewClient. Empty credentials fall back to the default chain.
type ClientOptions struct {
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
}

// LoadAWSConfig resolves an aws.Config from opts.
func LoadAWSConfig(ctx context.Context, opts ClientOptions) (aws.Config, error) {
	loaders := []func(*config.LoadOptions) error{}
	if opts.Region != "" {
		loaders = append(loaders, config.WithRegion(opts.Region))
	}
	if opts.AccessKey != "" && opts.SecretKey != "" {
		loaders = append(loaders, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, ""),
		))
	}

	cfg, err := config.LoadDefaultConfig(ctx, loaders...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load AWS configuration: %w", err)
	}
	return cfg, nil
}

// NewClient initializes a DynamoDB client. A non-empty Endpoint targets DynamoDB Local.
func NewClient(ctx context.Context, opts ClientOptions) (*sdk.Client, error) {
	cfg, err := LoadAWSConfig(ctx, opts)
	if err != nil {
		return nil, err
	}
	return sdk.NewFromConfig(cfg, func(o *sdk.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
	}), nil
}

// DataStore implements datastore.DataStore[T] on a DynamoDB single table.
// Keys come from the index map registered for T.
type DataStore[T datastore.Entity[T]] struct {
	client    API
	tableName string
}

// New constructs a DataStore for type T. T must have an index map registered.
func New[T datastore.Entity[T]](client API, tableName string) (*DataStore[T], error) {
	if _, err := registry.RequireIndexMap[T](); err != nil {
		return nil, err
	}
	if tableName == "" {
		return nil, dserrors.NewValidationError("table", "table name is required")
	}
	return &DataStore[T]{client: client, tableName: tableName}, nil
}

var macroPattern = regexp.MustCompile(`{([^}]+)}`)

// expandMacros fills every template of indexMap from the marshaled attributes of entity.
func expandMacros(indexMap map[string]string, av map[string]types.AttributeValue) map[string]string {
	res := make(map[string]string, len(indexMap))
	for fieldName, template := range indexMap {
		res[fieldName] = macroPattern.ReplaceAllStringFunc(template, func(macro string) string {
			val, ok := av[strings.Trim(macro, "{}")]
			if !ok {
				return ""
			}
			switch tv := val.(type) {
			case *types.AttributeValueMemberS:
				return tv.Value
			case *types.AttributeValueMemberN:
				return tv.Value
			case *types.AttributeValueMemberBOOL:
				return fmt.Sprintf("%v", tv.Value)
			default:
				return ""
			}
		})
	}
	return res
}

// expandStringKey replaces every macro of the index map with key.
func expandStringKey(indexMap map[string]string, key string) map[string]string {
	expanded := make(map[string]string, len(indexMap))
	for field, template := range indexMap {
		expanded[field] = macroPattern.ReplaceAllString(template, key)
	}
	return expanded
}

// buildKeyFromExpanded builds the primary key from an expanded index map.
func buildKeyFromExpanded(expanded map[string]string) (map[string]types.AttributeValue, error) {
	pk, sk := expanded[registry.AttrPK], expanded[registry.AttrSK]
	if pk == "" || sk == "" {
		return nil, fmt.Errorf("expanded index map missing valid %s or %s", registry.AttrPK, registry.AttrSK)
	}
	return map[string]types.AttributeValue{
		registry.AttrPK: &types.AttributeValueMemberS{Value: pk},
		registry.AttrSK: &types.AttributeValueMemberS{Value: sk},
	}, nil
}

func (d *DataStore[T]) keyFor(key string) (map[string]types.AttributeValue, error) {
	if key == "" {
		return nil, dserrors.NewValidationError("key", "key is required")
	}
	indexMap, err := registry.RequireIndexMap[T]()
	if err != nil {
		return nil, err
	}
	return buildKeyFromExpanded(expandStringKey(indexMap, key))
}

// marshalEntity renders entity as an item carrying its keys and EntityType.
func marshalEntity[T datastore.Entity[T]](entity T) (map[string]types.AttributeValue, error) {
	indexMap, err := registry.RequireIndexMap[T]()
	if err != nil {
		return nil, err
	}

	av, err := attributevalue.MarshalMap(entity)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal entity: %w", err)
	}

	expanded := expandMacros(indexMap, av)
	if _, err := buildKeyFromExpanded(expanded); err != nil {
		return nil, err
	}
	for k, v := range expanded {
		if v != "" {
			av[k] = &types.AttributeValueMemberS{Value: v}
		}
	}
	av[AttrEntityType] = &types.AttributeValueMemberS{Value: entity.EntityType()}
	return av, nil
}

func unmarshalEntity[T datastore.Entity[T]](item map[string]types.AttributeValue) (*T, error) {
	result := new(T)
	if err := attributevalue.UnmarshalMap(item, result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal item: %w", err)
	}
	return result, nil
}

func isConditionFailed(err error) bool {
	var cfe *types.ConditionalCheckFailedException
	return errors.As(err, &cfe)
}

// GetOne retrieves a single record with a strongly consistent read.
func (d *DataStore[T]) GetOne(ctx context.Context, key string) (*T, error) {
	keyMap, err := d.keyFor(key)
	if err != nil {
		return nil, err
	}

	out, err := d.client.GetItem(ctx, &sdk.GetItemInput{
		TableName:      &d.tableName,
		Key:            keyMap,
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("GetItem error: %w", err)
	}
	if out.Item == nil {
		var zero T
		return nil, dserrors.NewNotFoundError(zero.EntityType(), key)
	}
	return unmarshalEntity[T](out.Item)
}

// Create writes entity at version 1 if no record with its key exists.
func (d *DataStore[T]) Create(ctx context.Context, entity T) (*T, error) {
	entity = entity.WithVersion(1)
	item, err := marshalEntity(entity)
	if err != nil {
		return nil, err
	}

	_, err = d.client.PutItem(ctx, &sdk.PutItemInput{
		TableName:           &d.tableName,
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(PK)"),
	})
	if err != nil {
		if isConditionFailed(err) {
			return nil, dserrors.NewAlreadyExistsError(entity.EntityType(), entity.StoreKey())
		}
		return nil, fmt.Errorf("PutItem failed: %w", err)
	}
	return &entity, nil
}

// Update replaces the record at key only if its stored version equals expectedVersion.
// The written record carries expectedVersion+1.
func (d *DataStore[T]) Update(ctx context.Context, key string, entity T, expectedVersion int64) (*T, error) {
	if entity.StoreKey() != key {
		return nil, dserrors.NewValidationError("key", fmt.Sprintf("entity key %q does not match %q", entity.StoreKey(), key))
	}
	entity = entity.WithVersion(expectedVersion + 1)
	item, err := marshalEntity(entity)
	if err != nil {
		return nil, err
	}

	expected, err := attributevalue.Marshal(expectedVersion)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal version: %w", err)
	}

	_, err = d.client.PutItem(ctx, &sdk.PutItemInput{
		TableName:                 &d.tableName,
		Item:                      item,
		ConditionExpression:       aws.String("attribute_exists(PK) AND #version = :expected"),
		ExpressionAttributeNames:  map[string]string{"#version": "version"},
		ExpressionAttributeValues: map[string]types.AttributeValue{":expected": expected},
	})
	if err != nil {
		if isConditionFailed(err) {
			return nil, dserrors.NewVersionConflictError(entity.EntityType(), key, expectedVersion)
		}
		return nil, fmt.Errorf("PutItem failed: %w", err)
	}
	return &entity, nil
}

// Delete removes the record at key. A missing record yields a not found error.
func (d *DataStore[T]) Delete(ctx context.Context, key string) error {
	keyMap, err := d.keyFor(key)
	if err != nil {
		return err
	}

	_, err = d.client.DeleteItem(ctx, &sdk.DeleteItemInput{
		TableName:           &d.tableName,
		Key:                 keyMap,
		ConditionExpression: aws.String("attribute_exists(PK)"),
	})
	if err != nil {
		if isConditionFailed(err) {
			var zero T
			return dserrors.NewNotFoundError(zero.EntityType(), key)
		}
		return fmt.Errorf("failed to delete item in DynamoDB: %w", err)
	}
	return nil
}
