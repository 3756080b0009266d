/*
Package storagemodels defines the query and listing types shared by the
identity store implementations.

QueryParams:
Parameters for a DynamoDB query:

	params := &QueryParams{
	    TableName:              "dirsync",
	    KeyConditionExpression: "GSI1PK = :pk",
	    ExpressionAttributeValues: map[string]types.AttributeValue{
	        ":pk": &types.AttributeValueMemberS{Value: "USER"},
	    },
	    IndexName: aws.String("GSI1"),
	}

ListOptions:
Listing is paginated and retried on throttling:

	users, err := store.List(ctx,
	    storagemodels.WithPageSize(25),
	    storagemodels.WithMaxRetries(5),
	    storagemodels.WithProgressHandler(func(p storagemodels.ListProgress) {
	        logger.Debug("listed", zap.Int64("items", p.ItemsProcessed))
	    }),
	)

The in-memory store honours Limit and Descending and ignores the paging knobs.
*/
package storagemodels
