package dynamodb

import (
	"context"
	"errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/dogmatiq/ledger/persistence/driver/aws/internal/awsx"
	"github.com/dogmatiq/ledger/persistence/kv"
)

// KeyValueStore is an implementation of [kv.Store] that persists keyspaces in a
// DynamoDB table.
type KeyValueStore struct {
	// Client is the DynamoDB client to use.
	Client *dynamodb.Client

	// Table is the table name used for storage of key/value pairs.
	Table string

	// DecorateGetItem is an optional function that is called before each
	// DynamoDB "GetItem" request.
	//
	// It may modify the API input in-place. It returns options that will be
	// applied to the request.
	DecorateGetItem func(*dynamodb.GetItemInput) []func(*dynamodb.Options)

	// DecorateQuery is an optional function that is called before each DynamoDB
	// "Query" request.
	//
	// It may modify the API input in-place. It returns options that will be
	// applied to the request.
	DecorateQuery func(*dynamodb.QueryInput) []func(*dynamodb.Options)

	// DecoratePutItem is an optional function that is called before each
	// DynamoDB "PutItem" request.
	//
	// It may modify the API input in-place. It returns options that will be
	// applied to the request.
	DecoratePutItem func(*dynamodb.PutItemInput) []func(*dynamodb.Options)

	// DecorateDeleteItem is an optional function that is called before each
	// DynamoDB "DeleteItem" request.
	//
	// It may modify the API input in-place. It returns options that will be
	// applied to the request.
	DecorateDeleteItem func(*dynamodb.DeleteItemInput) []func(*dynamodb.Options)

	// DecorateBatchWriteItem is an optional function that is called before
	// each DynamoDB "BatchWriteItem" request.
	//
	// It may modify the API input in-place. It returns options that will be
	// applied to the request.
	DecorateBatchWriteItem func(*dynamodb.BatchWriteItemInput) []func(*dynamodb.Options)
}

const (
	kvKeyspaceAttr = "Keyspace"
	kvKeyAttr      = "Key"
	kvValueAttr    = "Value"
)

// Open returns the keyspace with the given name.
func (s *KeyValueStore) Open(ctx context.Context, name string) (kv.Keyspace, error) {
	return &keyspace{
		store: s,
		name:  name,
	}, ctx.Err()
}

// keyspace builds a new request for each call, so a single keyspace may be
// used by multiple goroutines.
type keyspace struct {
	store *KeyValueStore
	name  string
}

func (ks *keyspace) itemKey(k []byte) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		kvKeyspaceAttr: &types.AttributeValueMemberS{Value: ks.name},
		kvKeyAttr:      &types.AttributeValueMemberB{Value: k},
	}
}

func (ks *keyspace) Get(ctx context.Context, k []byte) ([]byte, error) {
	out, err := awsx.Do(
		ctx,
		ks.store.Client.GetItem,
		ks.store.DecorateGetItem,
		&dynamodb.GetItemInput{
			TableName:            aws.String(ks.store.Table),
			Key:                  ks.itemKey(k),
			ProjectionExpression: aws.String(`#V`),
			ExpressionAttributeNames: map[string]string{
				"#V": kvValueAttr,
			},
		},
	)
	if err != nil || out.Item == nil {
		return nil, err
	}

	return binaryAttr(out.Item, kvValueAttr)
}

func (ks *keyspace) Has(ctx context.Context, k []byte) (bool, error) {
	out, err := awsx.Do(
		ctx,
		ks.store.Client.GetItem,
		ks.store.DecorateGetItem,
		&dynamodb.GetItemInput{
			TableName: aws.String(ks.store.Table),
			Key:       ks.itemKey(k),
			// Request only the key attribute to avoid fetching the value.
			ProjectionExpression: aws.String(`#K`),
			ExpressionAttributeNames: map[string]string{
				"#K": kvKeyAttr,
			},
		},
	)
	if err != nil {
		return false, err
	}

	return out.Item != nil, nil
}

func (ks *keyspace) Set(ctx context.Context, k, v []byte) error {
	if len(v) == 0 {
		_, err := awsx.Do(
			ctx,
			ks.store.Client.DeleteItem,
			ks.store.DecorateDeleteItem,
			&dynamodb.DeleteItemInput{
				TableName: aws.String(ks.store.Table),
				Key:       ks.itemKey(k),
			},
		)
		return err
	}

	item := ks.itemKey(k)
	item[kvValueAttr] = &types.AttributeValueMemberB{Value: v}

	_, err := awsx.Do(
		ctx,
		ks.store.Client.PutItem,
		ks.store.DecoratePutItem,
		&dynamodb.PutItemInput{
			TableName: aws.String(ks.store.Table),
			Item:      item,
		},
	)

	return err
}

func (ks *keyspace) Range(
	ctx context.Context,
	fn kv.RangeFunc,
) error {
	in := &dynamodb.QueryInput{
		TableName:              aws.String(ks.store.Table),
		KeyConditionExpression: aws.String(`#S = :S`),
		ProjectionExpression:   aws.String("#K, #V"),
		ExpressionAttributeNames: map[string]string{
			"#S": kvKeyspaceAttr,
			"#K": kvKeyAttr,
			"#V": kvValueAttr,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":S": &types.AttributeValueMemberS{Value: ks.name},
		},
	}

	for {
		out, err := awsx.Do(
			ctx,
			ks.store.Client.Query,
			ks.store.DecorateQuery,
			in,
		)
		if err != nil {
			return err
		}

		for _, item := range out.Items {
			k, err := binaryAttr(item, kvKeyAttr)
			if err != nil {
				return err
			}

			v, err := binaryAttr(item, kvValueAttr)
			if err != nil {
				return err
			}

			ok, err := fn(ctx, k, v)
			if !ok || err != nil {
				return err
			}
		}

		if out.LastEvaluatedKey == nil {
			return nil
		}

		in.ExclusiveStartKey = out.LastEvaluatedKey
	}
}

// maxBatchWriteItems is the maximum number of requests DynamoDB accepts in a
// single "BatchWriteItem" request.
const maxBatchWriteItems = 25

// Truncate deletes every key in the keyspace, using batch requests to delete
// up to 25 keys at a time.
func (ks *keyspace) Truncate(ctx context.Context) error {
	var keys [][]byte

	if err := ks.Range(
		ctx,
		func(_ context.Context, k, _ []byte) (bool, error) {
			keys = append(keys, k)
			return true, nil
		},
	); err != nil {
		return err
	}

	for len(keys) > 0 {
		n := min(len(keys), maxBatchWriteItems)

		requests := make([]types.WriteRequest, n)
		for i, k := range keys[:n] {
			requests[i] = types.WriteRequest{
				DeleteRequest: &types.DeleteRequest{
					Key: ks.itemKey(k),
				},
			}
		}

		keys = keys[n:]

		for len(requests) > 0 {
			out, err := awsx.Do(
				ctx,
				ks.store.Client.BatchWriteItem,
				ks.store.DecorateBatchWriteItem,
				&dynamodb.BatchWriteItemInput{
					RequestItems: map[string][]types.WriteRequest{
						ks.store.Table: requests,
					},
				},
			)
			if err != nil {
				return err
			}

			requests = out.UnprocessedItems[ks.store.Table]
		}
	}

	return nil
}

func (ks *keyspace) Close() error {
	return nil
}

// CreateKeyValueStoreTable creates a DynamoDB table for use with
// [KeyValueStore]. It is not an error if the table already exists.
func CreateKeyValueStoreTable(
	ctx context.Context,
	client *dynamodb.Client,
	table string,
	decorators ...func(*dynamodb.CreateTableInput) []func(*dynamodb.Options),
) error {
	_, err := awsx.Do(
		ctx,
		client.CreateTable,
		func(in *dynamodb.CreateTableInput) []func(*dynamodb.Options) {
			var options []func(*dynamodb.Options)
			for _, dec := range decorators {
				options = append(options, dec(in)...)
			}

			return options
		},
		&dynamodb.CreateTableInput{
			TableName: aws.String(table),
			AttributeDefinitions: []types.AttributeDefinition{
				{
					AttributeName: aws.String(kvKeyspaceAttr),
					AttributeType: types.ScalarAttributeTypeS,
				},
				{
					AttributeName: aws.String(kvKeyAttr),
					AttributeType: types.ScalarAttributeTypeB,
				},
			},
			KeySchema: []types.KeySchemaElement{
				{
					AttributeName: aws.String(kvKeyspaceAttr),
					KeyType:       types.KeyTypeHash,
				},
				{
					AttributeName: aws.String(kvKeyAttr),
					KeyType:       types.KeyTypeRange,
				},
			},
			BillingMode: types.BillingModePayPerRequest,
		},
	)

	if errors.As(err, new(*types.ResourceInUseException)) {
		return nil
	}

	return err
}
