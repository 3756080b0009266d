/*
Package registry manages key templates and entity-type decoding for the
DynamoDB identity store.

Index Map Registry:
Associates Go types with their single-table key templates. Macros in braces
are replaced with the marshaled attribute of the same name:

	registry.RegisterIndexMap[identity.StoreUser](map[string]string{
	    "PK":     "USER#{username}",
	    "SK":     "USER#{username}",
	    "GSI1PK": "USER",
	    "GSI1SK": "{username}",
	})

Type Registry:
Maps the EntityType attribute written with every item to a decoder, so that
heterogeneous query results decode to their concrete types:

	registry.RegisterType("USER", func(item map[string]types.AttributeValue) (interface{}, error) {
	    var u identity.StoreUser
	    err := attributevalue.UnmarshalMap(item, &u)
	    return u, err
	})

Both registries are safe for concurrent use and are populated from init()
functions in the store packages.
*/
package registry
