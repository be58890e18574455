package store

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ofelix-plnu/acct-deprov/internal/models"
)

// fakeDynamo is an in-memory stand-in for the DynamoDB behaviors the store
// exercises: conditional updates, nested-map paths, and the validation error
// real DynamoDB raises for a nested REMOVE whose parent map is absent.
type fakeDynamo struct {
	items map[string]map[string]types.AttributeValue
}

func newFakeDynamo() *fakeDynamo {
	return &fakeDynamo{items: map[string]map[string]types.AttributeValue{}}
}

func keyUsername(key map[string]types.AttributeValue) string {
	return key["username"].(*types.AttributeValueMemberS).Value
}

func (f *fakeDynamo) PutItem(ctx context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.items[keyUsername(in.Item)] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamo) GetItem(ctx context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	item, ok := f.items[keyUsername(in.Key)]
	if !ok {
		return &dynamodb.GetItemOutput{}, nil
	}
	return &dynamodb.GetItemOutput{Item: item}, nil
}

func (f *fakeDynamo) DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	delete(f.items, keyUsername(in.Key))
	return &dynamodb.DeleteItemOutput{}, nil
}

func (f *fakeDynamo) Scan(ctx context.Context, in *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	out := &dynamodb.ScanOutput{}
	for _, item := range f.items {
		out.Items = append(out.Items, item)
	}
	return out, nil
}

func (f *fakeDynamo) Query(ctx context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	return &dynamodb.QueryOutput{}, nil
}

func (f *fakeDynamo) UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	user := keyUsername(in.Key)
	cond := aws.ToString(in.ConditionExpression)
	upd := aws.ToString(in.UpdateExpression)

	item, exists := f.items[user]
	if strings.Contains(cond, "attribute_exists(username)") && !exists {
		return nil, &types.ConditionalCheckFailedException{}
	}

	switch {
	case strings.Contains(upd, "SET previous_step"):
		prev := in.ExpressionAttributeValues[":prev"].(*types.AttributeValueMemberS).Value
		cur, ok := item["next_step"].(*types.AttributeValueMemberS)
		if !ok || cur.Value != prev {
			return nil, &types.ConditionalCheckFailedException{}
		}
		item["previous_step"] = &types.AttributeValueMemberS{Value: prev}
		item["next_step"] = in.ExpressionAttributeValues[":nxt"]
		item["next_step_date"] = in.ExpressionAttributeValues[":nd"]

	case strings.Contains(cond, "attribute_not_exists(failed_lambdas)"):
		if _, ok := item["failed_lambdas"]; ok {
			return nil, &types.ConditionalCheckFailedException{}
		}
		item["failed_lambdas"] = in.ExpressionAttributeValues[":init"]
		item["has_failed_lambdas"] = in.ExpressionAttributeValues[":t"]

	case strings.Contains(upd, "SET failed_lambdas.#name"):
		m, ok := item["failed_lambdas"].(*types.AttributeValueMemberM)
		if !ok {
			return nil, &types.ConditionalCheckFailedException{}
		}
		name := in.ExpressionAttributeNames["#name"]
		n := 0
		if cur, ok := m.Value[name].(*types.AttributeValueMemberN); ok {
			n, _ = strconv.Atoi(cur.Value)
		}
		m.Value[name] = &types.AttributeValueMemberN{Value: strconv.Itoa(n + 1)}
		item["has_failed_lambdas"] = in.ExpressionAttributeValues[":t"]

	case strings.Contains(upd, "REMOVE failed_lambdas.#name"):
		name := in.ExpressionAttributeNames["#name"]
		m, hasMap := item["failed_lambdas"].(*types.AttributeValueMemberM)
		if strings.Contains(cond, "attribute_exists(failed_lambdas.#name)") {
			if !hasMap {
				return nil, &types.ConditionalCheckFailedException{}
			}
			if _, present := m.Value[name]; !present {
				return nil, &types.ConditionalCheckFailedException{}
			}
		} else if !hasMap {
			return nil, errors.New("ValidationException: the document path provided in the update expression is invalid for update")
		}
		if hasMap {
			delete(m.Value, name)
		}

	case strings.Contains(upd, "REMOVE failed_lambdas, has_failed_lambdas"):
		m, ok := item["failed_lambdas"].(*types.AttributeValueMemberM)
		if !ok || len(m.Value) != 0 {
			return nil, &types.ConditionalCheckFailedException{}
		}
		delete(item, "failed_lambdas")
		delete(item, "has_failed_lambdas")

	default:
		return nil, errors.New("unexpected update expression: " + upd)
	}

	out := &dynamodb.UpdateItemOutput{}
	if in.ReturnValues == types.ReturnValueAllNew {
		out.Attributes = item
	}
	return out, nil
}

func newTestStore(db *fakeDynamo) *EventStore {
	return &EventStore{
		db:             db,
		tableName:      "EventState",
		stepDateIndex:  "step-date-index",
		hasFailedIndex: "failed-index",
	}
}

func seeded(t *testing.T, st *EventStore, rec models.EventRecord) {
	t.Helper()
	require.NoError(t, st.Insert(context.Background(), rec))
}

func TestInsertGetDelete_RoundTrip(t *testing.T) {
	st := newTestStore(newFakeDynamo())
	ctx := context.Background()

	rec := models.EventRecord{
		Username:     "aapple",
		AccountType:  models.AccountTypeEmployee,
		NextStep:     "emp-1",
		NextStepDate: "2026-01-05T08-00",
	}
	seeded(t, st, rec)

	got, err := st.Get(ctx, "aapple")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "emp-1", got.NextStep)

	require.NoError(t, st.Delete(ctx, "aapple"))
	got, err = st.Get(ctx, "aapple")
	require.NoError(t, err)
	assert.Nil(t, got)

	assert.NoError(t, st.Delete(ctx, "aapple"), "deleting an absent record succeeds")
}

func TestAdvance(t *testing.T) {
	st := newTestStore(newFakeDynamo())
	ctx := context.Background()
	seeded(t, st, models.EventRecord{Username: "aapple", NextStep: "emp-1", NextStepDate: "2026-01-05T08-00"})

	advanced, err := st.Advance(ctx, "aapple", "emp-1", "emp-30", "2026-02-03T08-00")
	require.NoError(t, err)
	assert.True(t, advanced)

	got, err := st.Get(ctx, "aapple")
	require.NoError(t, err)
	assert.Equal(t, "emp-1", got.PreviousStep)
	assert.Equal(t, "emp-30", got.NextStep)
	assert.Equal(t, "2026-02-03T08-00", got.NextStepDate)

	advanced, err = st.Advance(ctx, "aapple", "emp-1", "emp-30", "2026-02-03T08-00")
	require.NoError(t, err)
	assert.False(t, advanced, "a duplicate ack finds the record already moved")
}

func TestAdvance_MissingRecord(t *testing.T) {
	st := newTestStore(newFakeDynamo())

	advanced, err := st.Advance(context.Background(), "nobody", "emp-1", "emp-30", "2026-02-03T08-00")
	require.NoError(t, err)
	assert.False(t, advanced)
}

func TestFlagFailure_CountsAcrossCalls(t *testing.T) {
	st := newTestStore(newFakeDynamo())
	ctx := context.Background()
	seeded(t, st, models.EventRecord{Username: "aapple", NextStep: "emp-1"})

	rec, err := st.FlagFailure(ctx, "aapple", "disable_in_gal")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, 1, rec.FailedLambdas["disable_in_gal"])
	assert.Equal(t, "true", rec.HasFailedLambdas)

	rec, err = st.FlagFailure(ctx, "aapple", "disable_in_gal")
	require.NoError(t, err)
	assert.Equal(t, 2, rec.FailedLambdas["disable_in_gal"])
}

func TestFlagFailure_MissingRecordIsNoOp(t *testing.T) {
	st := newTestStore(newFakeDynamo())

	rec, err := st.FlagFailure(context.Background(), "nobody", "disable_in_gal")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestClearFailure_RemovesEntryThenFlag(t *testing.T) {
	st := newTestStore(newFakeDynamo())
	ctx := context.Background()
	seeded(t, st, models.EventRecord{Username: "aapple", NextStep: "emp-1"})

	_, err := st.FlagFailure(ctx, "aapple", "disable_in_gal")
	require.NoError(t, err)
	_, err = st.FlagFailure(ctx, "aapple", "remove_delegates")
	require.NoError(t, err)

	require.NoError(t, st.ClearFailure(ctx, "aapple", "disable_in_gal"))
	got, err := st.Get(ctx, "aapple")
	require.NoError(t, err)
	assert.NotContains(t, got.FailedLambdas, "disable_in_gal")
	assert.Equal(t, "true", got.HasFailedLambdas, "the flag stays while another entry remains")

	require.NoError(t, st.ClearFailure(ctx, "aapple", "remove_delegates"))
	got, err = st.Get(ctx, "aapple")
	require.NoError(t, err)
	assert.Empty(t, got.FailedLambdas)
	assert.Empty(t, got.HasFailedLambdas, "the last clear drops the index flag")
}

func TestClearFailure_AbsentEntryIsNoOp(t *testing.T) {
	st := newTestStore(newFakeDynamo())
	ctx := context.Background()
	seeded(t, st, models.EventRecord{Username: "aapple", NextStep: "emp-1"})

	// No failed_lambdas attribute at all: the condition must refuse before
	// the nested REMOVE runs, or DynamoDB raises a validation error.
	assert.NoError(t, st.ClearFailure(ctx, "aapple", "disable_in_gal"))

	// Map present but this effector isn't in it, as after a duplicate
	// success signal.
	_, err := st.FlagFailure(ctx, "aapple", "remove_delegates")
	require.NoError(t, err)
	assert.NoError(t, st.ClearFailure(ctx, "aapple", "disable_in_gal"))

	got, err := st.Get(ctx, "aapple")
	require.NoError(t, err)
	assert.Equal(t, 1, got.FailedLambdas["remove_delegates"], "unrelated entries are untouched")
}

func TestClearFailure_MissingRecordIsNoOp(t *testing.T) {
	st := newTestStore(newFakeDynamo())
	assert.NoError(t, st.ClearFailure(context.Background(), "nobody", "disable_in_gal"))
}
