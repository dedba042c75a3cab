package dynamodb_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	. "github.com/dogmatiq/ledger/persistence/driver/aws/dynamodb"
)

func newClient(t *testing.T) *dynamodb.Client {
	endpoint := os.Getenv("LEDGER_TEST_DYNAMODB_ENDPOINT")
	if endpoint == "" {
		t.Skip("LEDGER_TEST_DYNAMODB_ENDPOINT is not set")
	}

	client, err := NewClient(
		context.Background(),
		ClientOptions{
			Region:          "us-east-1",
			Endpoint:        endpoint,
			AccessKeyID:     "id",
			SecretAccessKey: "secret",
		},
	)
	if err != nil {
		t.Fatal(err)
	}

	return client
}

func deleteTable(
	ctx context.Context,
	client *dynamodb.Client,
	table string,
) error {
	if _, err := client.DeleteTable(
		ctx,
		&dynamodb.DeleteTableInput{
			TableName: aws.String(table),
		},
	); err != nil {
		if !errors.As(err, new(*types.ResourceNotFoundException)) {
			return err
		}
	}

	return nil
}
