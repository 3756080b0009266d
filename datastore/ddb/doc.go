/*
Package ddb provides the DynamoDB implementation of the identity store.

Everything lives in one table keyed by PK/SK:

	USER#<username>     user records        (GSI1PK "USER",  GSI1SK username)
	GROUP#<group_name>  group records       (GSI1PK "GROUP", GSI1SK group name)
	RUN#<run_token>     run history         (GSI1PK "RUN",   GSI1SK started_at)
	LOCK#<lock key>     run state           (RunStateTable)
	COUNTER#<kind>      uid/gid allocators  (Counter)

Key templates are registered per Go type in package registry and expanded
with macros:

	registry.RegisterIndexMap[identity.StoreUser](map[string]string{
	    "PK": "USER#{username}",
	    "SK": "USER#{username}",
	    "GSI1PK": "USER",
	    "GSI1SK": "{username}",
	})

Writes are single conditional operations:

	Create  PutItem  attribute_not_exists(PK)
	Update  PutItem  attribute_exists(PK) AND #version = :expected
	Delete  DeleteItem attribute_exists(PK)

List queries GSI1 by entity type and pages through the results with retry
on throttling:

	users, err := store.List(ctx,
	    storagemodels.WithPageSize(100),
	    storagemodels.WithMaxRetries(3),
	)
*/
package ddb
