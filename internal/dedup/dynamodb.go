package dedup

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
)

// dynamoAPI is the subset of *dynamodb.Client used here.
type dynamoAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// DynamoConfig locates the dedup table.
type DynamoConfig struct {
	Table     string
	Region    string
	Endpoint  string // optional, e.g. http://localhost:8000 for DynamoDB Local
	AccessKey string // optional; default credential chain otherwise
	SecretKey string
}

// DynamoClient stores one item per identity: {event_id: S, ttl: N}. The ttl
// attribute drives the table's native expiry.
type DynamoClient struct {
	api   dynamoAPI
	table string
}

// NewDynamoClient builds a DynamoDB-backed client from cfg.
func NewDynamoClient(ctx context.Context, cfg DynamoConfig) (*DynamoClient, error) {
	if cfg.Table == "" {
		return nil, fmt.Errorf("dynamodb: table name is required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if cfg.AccessKey != "" {
		creds := credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")
		opts = append(opts, awsconfig.WithCredentialsProvider(aws.NewCredentialsCache(creds)))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("dynamodb: load aws config: %w", err)
	}
	client := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return newDynamoClient(client, cfg.Table), nil
}

func newDynamoClient(api dynamoAPI, table string) *DynamoClient {
	return &DynamoClient{api: api, table: table}
}

// Exists checks the ttl attribute as well as presence: DynamoDB deletes
// expired items lazily, sometimes hours after expiry.
func (c *DynamoClient) Exists(ctx context.Context, id string, now time.Time) (bool, error) {
	out, err := c.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(c.table),
		Key:            map[string]types.AttributeValue{"event_id": &types.AttributeValueMemberS{Value: id}},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return false, wrapAPIError("get item", err)
	}
	if len(out.Item) == 0 {
		return false, nil
	}
	ttl, ok := out.Item["ttl"].(*types.AttributeValueMemberN)
	if !ok {
		// no expiry recorded; the item counts as live
		return true, nil
	}
	exp, err := strconv.ParseInt(ttl.Value, 10, 64)
	if err != nil {
		return false, fmt.Errorf("dynamodb: bad ttl %q for %s: %w", ttl.Value, id, err)
	}
	return exp > now.Unix(), nil
}

// Claim writes the item unless a live one exists.
func (c *DynamoClient) Claim(ctx context.Context, id string, expiresAt, now time.Time) error {
	_, err := c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(c.table),
		Item: map[string]types.AttributeValue{
			"event_id": &types.AttributeValueMemberS{Value: id},
			"ttl":      &types.AttributeValueMemberN{Value: strconv.FormatInt(expiresAt.Unix(), 10)},
		},
		ConditionExpression:      aws.String("attribute_not_exists(event_id) OR #ttl <= :now"),
		ExpressionAttributeNames: map[string]string{"#ttl": "ttl"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":now": &types.AttributeValueMemberN{Value: strconv.FormatInt(now.Unix(), 10)},
		},
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return ErrAlreadyClaimed
		}
		return wrapAPIError("put item", err)
	}
	return nil
}

// wrapAPIError prefixes service errors with their code so throttling and
// connectivity failures are recognisable in logs.
func wrapAPIError(op string, err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("dynamodb %s: %s: %w", op, apiErr.ErrorCode(), err)
	}
	return fmt.Errorf("dynamodb %s: %w", op, err)
}

func (c *DynamoClient) Close() error { return nil }
