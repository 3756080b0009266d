/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package ddb

import (
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/suparena/dirsync/identity"
	"github.com/suparena/dirsync/registry"
)

// Key layout of the identity table. Users and groups are listed through GSI1 by
// entity type; runs sort by start time so the newest come first in a descending query.
var (
	UserIndexMap = map[string]string{
		registry.AttrPK:     "USER#{username}",
		registry.AttrSK:     "USER#{username}",
		registry.AttrGSI1PK: identity.EntityUser,
		registry.AttrGSI1SK: "{username}",
	}
	GroupIndexMap = map[string]string{
		registry.AttrPK:     "GROUP#{group_name}",
		registry.AttrSK:     "GROUP#{group_name}",
		registry.AttrGSI1PK: identity.EntityGroup,
		registry.AttrGSI1SK: "{group_name}",
	}
	RunIndexMap = map[string]string{
		registry.AttrPK:     "RUN#{run_token}",
		registry.AttrSK:     "RUN#{run_token}",
		registry.AttrGSI1PK: identity.EntityRun,
		registry.AttrGSI1SK: "{started_at}",
	}
)

func init() {
	registry.RegisterIndexMap[identity.StoreUser](UserIndexMap)
	registry.RegisterIndexMap[identity.StoreGroup](GroupIndexMap)
	registry.RegisterIndexMap[identity.RunRecord](RunIndexMap)

	registry.RegisterType(identity.EntityUser, unmarshalAs[identity.StoreUser])
	registry.RegisterType(identity.EntityGroup, unmarshalAs[identity.StoreGroup])
	registry.RegisterType(identity.EntityRun, unmarshalAs[identity.RunRecord])
}

func unmarshalAs[T any](item map[string]types.AttributeValue) (interface{}, error) {
	var v T
	if err := attributevalue.UnmarshalMap(item, &v); err != nil {
		return nil, err
	}
	return v, nil
}
