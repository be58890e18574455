package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ofelix-plnu/acct-deprov/internal/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// InsertError wraps a failure to insert a record; surfaced to the caller of
// the insert interface.
type InsertError struct {
	Username string
	Err      error
}

func (e *InsertError) Error() string {
	return fmt.Sprintf("insert record for %s: %v", e.Username, e.Err)
}

func (e *InsertError) Unwrap() error { return e.Err }

// dynamoAPI is the slice of the DynamoDB client the store uses; tests
// substitute a fake.
type dynamoAPI interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Scan(ctx context.Context, in *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
}

// EventStore is the EventState DynamoDB table: one record per username, a
// (next_step, next_step_date) GSI for due queries and a has_failed_lambdas
// GSI for the retry sweep.
type EventStore struct {
	db             dynamoAPI
	tableName      string
	stepDateIndex  string
	hasFailedIndex string
}

type Options struct {
	Region        string
	Table         string
	Endpoint      string // local override, empty in real deployments
	StepDateIndex string
	FailedIndex   string
}

func NewEventStore(ctx context.Context, opts Options) (*EventStore, error) {
	if opts.Table == "" {
		return nil, fmt.Errorf("event table name is required")
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(opts.Region))
	if err != nil {
		return nil, err
	}

	client := dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
	})

	return &EventStore{
		db:             client,
		tableName:      opts.Table,
		stepDateIndex:  opts.StepDateIndex,
		hasFailedIndex: opts.FailedIndex,
	}, nil
}

// Insert writes a record. Insert is an upsert: a fresh arrival for a username
// overwrites any stale leftover from a previous run through the chain.
func (s *EventStore) Insert(ctx context.Context, rec models.EventRecord) error {
	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return &InsertError{Username: rec.Username, Err: err}
	}

	_, err = s.db.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      item,
	})
	if err != nil {
		return &InsertError{Username: rec.Username, Err: err}
	}
	return nil
}

// Get returns the record for username, or nil if absent.
func (s *EventStore) Get(ctx context.Context, username string) (*models.EventRecord, error) {
	out, err := s.db.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"username": &types.AttributeValueMemberS{Value: username},
		},
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, nil
	}

	var rec models.EventRecord
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// Delete removes the record for username. Absence is not an error.
func (s *EventStore) Delete(ctx context.Context, username string) error {
	_, err := s.db.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"username": &types.AttributeValueMemberS{Value: username},
		},
	})
	return err
}

// List scans up to limit records, for the ops listing endpoint.
func (s *EventStore) List(ctx context.Context, limit int32) ([]models.EventRecord, error) {
	out, err := s.db.Scan(ctx, &dynamodb.ScanInput{
		TableName: aws.String(s.tableName),
		Limit:     aws.Int32(limit),
	})
	if err != nil {
		return nil, err
	}

	var recs []models.EventRecord
	if err := attributevalue.UnmarshalListOfMaps(out.Items, &recs); err != nil {
		return nil, err
	}
	return recs, nil
}

// QueryDue returns records sitting at step whose next_step_date has passed.
// The due cutoff is part of the key condition, a range scan on the GSI sort
// key, not a post-filter.
func (s *EventStore) QueryDue(ctx context.Context, step string, now time.Time) ([]models.EventRecord, error) {
	input := &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		IndexName:              aws.String(s.stepDateIndex),
		KeyConditionExpression: aws.String("next_step = :step AND next_step_date <= :now"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":step": &types.AttributeValueMemberS{Value: step},
			":now":  &types.AttributeValueMemberS{Value: models.FormatStepDate(now)},
		},
	}
	return s.queryAll(ctx, input)
}

// QueryFailed returns every record with at least one flagged effector.
func (s *EventStore) QueryFailed(ctx context.Context) ([]models.EventRecord, error) {
	input := &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		IndexName:              aws.String(s.hasFailedIndex),
		KeyConditionExpression: aws.String("has_failed_lambdas = :t"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":t": &types.AttributeValueMemberS{Value: "true"},
		},
	}
	return s.queryAll(ctx, input)
}

func (s *EventStore) queryAll(ctx context.Context, input *dynamodb.QueryInput) ([]models.EventRecord, error) {
	var recs []models.EventRecord
	paginator := dynamodb.NewQueryPaginator(s.db, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		var batch []models.EventRecord
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &batch); err != nil {
			return nil, err
		}
		recs = append(recs, batch...)
	}
	return recs, nil
}

// Advance moves username from previousStep to nextStep, due at nextStepDate.
// The update is conditional on next_step still being previousStep, so a
// duplicate ack (two effectors co-subscribed to one step) is a no-op; it
// returns false when the condition fails or the record is gone.
func (s *EventStore) Advance(ctx context.Context, username, previousStep, nextStep, nextStepDate string) (bool, error) {
	_, err := s.db.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"username": &types.AttributeValueMemberS{Value: username},
		},
		ConditionExpression: aws.String("attribute_exists(username) AND next_step = :prev"),
		UpdateExpression:    aws.String("SET previous_step = :prev, next_step = :nxt, next_step_date = :nd"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":prev": &types.AttributeValueMemberS{Value: previousStep},
			":nxt":  &types.AttributeValueMemberS{Value: nextStep},
			":nd":   &types.AttributeValueMemberS{Value: nextStepDate},
		},
	})
	if err != nil {
		var cfe *types.ConditionalCheckFailedException
		if errors.As(err, &cfe) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// FlagFailure increments failed_lambdas[effectorName] (0->1, 1->2, ...) and
// sets the failed-index flag, returning the updated record. Each increment is
// a single UpdateItem expression, never a read-modify-write. Flagging a
// deleted user is a no-op returning nil.
func (s *EventStore) FlagFailure(ctx context.Context, username, effectorName string) (*models.EventRecord, error) {
	// The nested increment needs the map to exist and creating the map needs
	// it absent; two conditional attempts cover both, and the loop covers the
	// race between them.
	for attempt := 0; attempt < 2; attempt++ {
		out, err := s.db.UpdateItem(ctx, &dynamodb.UpdateItemInput{
			TableName: aws.String(s.tableName),
			Key: map[string]types.AttributeValue{
				"username": &types.AttributeValueMemberS{Value: username},
			},
			ConditionExpression: aws.String("attribute_exists(username) AND attribute_exists(failed_lambdas)"),
			UpdateExpression:    aws.String("SET failed_lambdas.#name = if_not_exists(failed_lambdas.#name, :zero) + :one, has_failed_lambdas = :t"),
			ExpressionAttributeNames: map[string]string{
				"#name": effectorName,
			},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":zero": &types.AttributeValueMemberN{Value: "0"},
				":one":  &types.AttributeValueMemberN{Value: "1"},
				":t":    &types.AttributeValueMemberS{Value: "true"},
			},
			ReturnValues: types.ReturnValueAllNew,
		})
		if err == nil {
			return unmarshalRecord(out.Attributes)
		}
		var cfe *types.ConditionalCheckFailedException
		if !errors.As(err, &cfe) {
			return nil, err
		}

		// Map absent, or record gone. Try creating it with the first count.
		out, err = s.db.UpdateItem(ctx, &dynamodb.UpdateItemInput{
			TableName: aws.String(s.tableName),
			Key: map[string]types.AttributeValue{
				"username": &types.AttributeValueMemberS{Value: username},
			},
			ConditionExpression: aws.String("attribute_exists(username) AND attribute_not_exists(failed_lambdas)"),
			UpdateExpression:    aws.String("SET failed_lambdas = :init, has_failed_lambdas = :t"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":init": &types.AttributeValueMemberM{Value: map[string]types.AttributeValue{
					effectorName: &types.AttributeValueMemberN{Value: "1"},
				}},
				":t": &types.AttributeValueMemberS{Value: "true"},
			},
			ReturnValues: types.ReturnValueAllNew,
		})
		if err == nil {
			return unmarshalRecord(out.Attributes)
		}
		if !errors.As(err, &cfe) {
			return nil, err
		}
		// Another flagger created the map between the two updates, or the
		// record itself is gone; the next pass settles which.
	}
	return nil, nil
}

// ClearFailure removes effectorName from failed_lambdas; a no-op if the entry
// or the record is absent. When the last entry goes, the failed-index flag
// goes with it.
func (s *EventStore) ClearFailure(ctx context.Context, username, effectorName string) error {
	out, err := s.db.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"username": &types.AttributeValueMemberS{Value: username},
		},
		// The guard must cover the entry itself: an unguarded nested REMOVE
		// whose parent map is absent is a validation error, not a failed
		// condition.
		ConditionExpression: aws.String("attribute_exists(username) AND attribute_exists(failed_lambdas.#name)"),
		UpdateExpression:    aws.String("REMOVE failed_lambdas.#name"),
		ExpressionAttributeNames: map[string]string{
			"#name": effectorName,
		},
		ReturnValues: types.ReturnValueAllNew,
	})
	if err != nil {
		var cfe *types.ConditionalCheckFailedException
		if errors.As(err, &cfe) {
			return nil
		}
		return err
	}

	rec, err := unmarshalRecord(out.Attributes)
	if err != nil || rec == nil || len(rec.FailedLambdas) > 0 {
		return err
	}

	// Last entry cleared; drop the flag unless a new failure raced in.
	_, err = s.db.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"username": &types.AttributeValueMemberS{Value: username},
		},
		ConditionExpression: aws.String("attribute_exists(username) AND size(failed_lambdas) = :zero"),
		UpdateExpression:    aws.String("REMOVE failed_lambdas, has_failed_lambdas"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":zero": &types.AttributeValueMemberN{Value: "0"},
		},
	})
	if err != nil {
		var cfe *types.ConditionalCheckFailedException
		if errors.As(err, &cfe) {
			return nil
		}
	}
	return err
}

func unmarshalRecord(item map[string]types.AttributeValue) (*models.EventRecord, error) {
	if item == nil {
		return nil, nil
	}
	var rec models.EventRecord
	if err := attributevalue.UnmarshalMap(item, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}
