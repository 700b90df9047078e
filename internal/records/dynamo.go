package records

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Clem69B/deglingos-app-sub000/internal/observability/metrics"
	"github.com/Clem69B/deglingos-app-sub000/pkg/logging"
)

var tracer = otel.Tracer("deglingos.internal.records")

// DynamoAPI is the subset of the DynamoDB client used by DynamoBackend.
type DynamoAPI interface {
	GetItem(context.Context, *dynamodb.GetItemInput, ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(context.Context, *dynamodb.PutItemInput, ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(context.Context, *dynamodb.UpdateItemInput, ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(context.Context, *dynamodb.DeleteItemInput, ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Scan(context.Context, *dynamodb.ScanInput, ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// DynamoBackend stores records in DynamoDB tables keyed by "id".
type DynamoBackend struct {
	client      DynamoAPI
	tablePrefix string
	metrics     *metrics.StoreMetrics
	logger      *logging.Logger
}

var _ Backend = (*DynamoBackend)(nil)

// NewDynamoBackend builds a backend over client. tablePrefix is prepended to
// every table name (e.g. "prod-").
func NewDynamoBackend(client DynamoAPI, tablePrefix string, m *metrics.StoreMetrics, logger *logging.Logger) *DynamoBackend {
	if client == nil {
		panic("records: dynamodb client cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &DynamoBackend{client: client, tablePrefix: tablePrefix, metrics: m, logger: logger}
}

func (d *DynamoBackend) table(name string) *string {
	return aws.String(d.tablePrefix + name)
}

func key(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{KeyAttribute: &types.AttributeValueMemberS{Value: id}}
}

func (d *DynamoBackend) Get(ctx context.Context, table, id string) (item Item, err error) {
	ctx, done := d.observe(ctx, table, "get", id)
	defer func() { done(err) }()

	out, err := d.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      d.table(table),
		Key:            key(id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("records: get %s/%s: %w", table, id, err)
	}
	if len(out.Item) == 0 {
		return nil, ErrNotFound
	}
	return out.Item, nil
}

func (d *DynamoBackend) List(ctx context.Context, table string, opts ListOptions) (page Page, err error) {
	ctx, done := d.observe(ctx, table, "list", "")
	defer func() { done(err) }()

	input := &dynamodb.ScanInput{TableName: d.table(table)}
	if opts.Limit > 0 {
		input.Limit = aws.Int32(opts.Limit)
	}
	start, err := decodePageToken(opts.PageToken)
	if err != nil {
		return Page{}, err
	}
	if start != "" {
		input.ExclusiveStartKey = key(start)
	}
	if !isEmpty(opts.Filter) {
		b := newExprBuilder()
		expr, err := opts.Filter.compile(b)
		if err != nil {
			return Page{}, err
		}
		input.FilterExpression = aws.String(expr)
		input.ExpressionAttributeNames = b.attributeNames()
		input.ExpressionAttributeValues = b.attributeValues()
	}

	out, err := d.client.Scan(ctx, input)
	if err != nil {
		return Page{}, fmt.Errorf("records: scan %s: %w", table, err)
	}
	page.Items = out.Items
	if last, ok := itemID(out.LastEvaluatedKey); ok {
		page.NextPageToken = encodePageToken(last)
	}
	return page, nil
}

func (d *DynamoBackend) Create(ctx context.Context, table string, item Item) (err error) {
	id, ok := itemID(item)
	if !ok {
		return fmt.Errorf("records: create %s: item has no %q attribute", table, KeyAttribute)
	}
	ctx, done := d.observe(ctx, table, "create", id)
	defer func() { done(err) }()

	_, err = d.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                d.table(table),
		Item:                     item,
		ConditionExpression:      aws.String("attribute_not_exists(#id)"),
		ExpressionAttributeNames: map[string]string{"#id": KeyAttribute},
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("records: create %s/%s: %w", table, id, err)
	}
	return nil
}

func (d *DynamoBackend) Update(ctx context.Context, table, id string, fields Fields, cond Filter) (item Item, err error) {
	if len(fields) == 0 {
		return nil, fmt.Errorf("records: update %s/%s: no fields", table, id)
	}
	ctx, done := d.observe(ctx, table, "update", id)
	defer func() { done(err) }()

	b := newExprBuilder()
	set, err := b.setExpression(fields)
	if err != nil {
		return nil, err
	}
	guard := And(Exists(KeyAttribute), cond)
	condition, err := guard.compile(b)
	if err != nil {
		return nil, err
	}

	out, err := d.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                           d.table(table),
		Key:                                 key(id),
		UpdateExpression:                    aws.String(set),
		ConditionExpression:                 aws.String(condition),
		ExpressionAttributeNames:            b.attributeNames(),
		ExpressionAttributeValues:           b.attributeValues(),
		ReturnValues:                        types.ReturnValueAllNew,
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			if len(ccf.Item) == 0 {
				return nil, ErrNotFound
			}
			return nil, ErrConditionFailed
		}
		return nil, fmt.Errorf("records: update %s/%s: %w", table, id, err)
	}
	return out.Attributes, nil
}

func (d *DynamoBackend) Delete(ctx context.Context, table, id string) (item Item, err error) {
	ctx, done := d.observe(ctx, table, "delete", id)
	defer func() { done(err) }()

	out, err := d.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:    d.table(table),
		Key:          key(id),
		ReturnValues: types.ReturnValueAllOld,
	})
	if err != nil {
		return nil, fmt.Errorf("records: delete %s/%s: %w", table, id, err)
	}
	if len(out.Attributes) == 0 {
		return nil, nil
	}
	return out.Attributes, nil
}

func (d *DynamoBackend) Increment(ctx context.Context, table, id, field string, by int64) (n int64, err error) {
	ctx, done := d.observe(ctx, table, "increment", id)
	defer func() { done(err) }()

	out, err := d.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                d.table(table),
		Key:                      key(id),
		UpdateExpression:         aws.String("ADD #n :by"),
		ExpressionAttributeNames: map[string]string{"#n": field},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":by": &types.AttributeValueMemberN{Value: strconv.FormatInt(by, 10)},
		},
		ReturnValues: types.ReturnValueUpdatedNew,
	})
	if err != nil {
		return 0, fmt.Errorf("records: increment %s/%s.%s: %w", table, id, field, err)
	}
	v, ok := out.Attributes[field].(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("records: increment %s/%s.%s: counter missing from response", table, id, field)
	}
	return strconv.ParseInt(v.Value, 10, 64)
}

// observe opens a span and returns a func that closes it and records latency.
func (d *DynamoBackend) observe(ctx context.Context, table, op, id string) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "records."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", "dynamodb"),
			attribute.String("db.collection", table),
			attribute.String("record.id", id),
		),
	)
	return ctx, func(err error) {
		outcome := "ok"
		switch {
		case err == nil:
		case errors.Is(err, ErrNotFound), errors.Is(err, ErrConditionFailed), errors.Is(err, ErrAlreadyExists):
			outcome = "rejected"
		default:
			outcome = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			d.logger.Warn("record store request failed", "table", table, "op", op, "id", id, "error", err)
		}
		span.End()
		d.metrics.ObserveRequest(table, op, outcome, time.Since(start).Seconds())
	}
}
