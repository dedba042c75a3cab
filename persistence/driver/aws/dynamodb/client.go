package dynamodb

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
)

// ClientOptions describes how to connect to DynamoDB.
type ClientOptions struct {
	// Region is the AWS region. If it is empty the region is taken from the
	// default AWS configuration sources.
	Region string

	// Endpoint overrides the DynamoDB endpoint URL, typically to connect to
	// a local DynamoDB instance.
	Endpoint string

	// AccessKeyID and SecretAccessKey are static credentials. If they are
	// empty, credentials are taken from the default AWS configuration sources.
	AccessKeyID     string
	SecretAccessKey string
}

// NewClient returns a new DynamoDB client.
func NewClient(ctx context.Context, opts ClientOptions) (*dynamodb.Client, error) {
	var loadOptions []func(*config.LoadOptions) error

	if opts.Region != "" {
		loadOptions = append(loadOptions, config.WithRegion(opts.Region))
	}

	if opts.Endpoint != "" {
		loadOptions = append(
			loadOptions,
			config.WithEndpointResolverWithOptions(
				aws.EndpointResolverWithOptionsFunc(
					func(service, region string, options ...any) (aws.Endpoint, error) {
						return aws.Endpoint{URL: opts.Endpoint}, nil
					},
				),
			),
		)
	}

	if opts.AccessKeyID != "" {
		loadOptions = append(
			loadOptions,
			config.WithCredentialsProvider(
				credentials.NewStaticCredentialsProvider(
					opts.AccessKeyID,
					opts.SecretAccessKey,
					"",
				),
			),
		)
	}

	cfg, err := config.LoadDefaultConfig(ctx, loadOptions...)
	if err != nil {
		return nil, err
	}

	return dynamodb.NewFromConfig(cfg), nil
}
