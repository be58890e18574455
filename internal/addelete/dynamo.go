package addelete

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// resumePoint is one parked workflow: the task to run next and when it
// becomes due. Keyed by username; re-starting a workflow for the same user
// just re-parks it.
type resumePoint struct {
	Username string `dynamodbav:"username"`
	Task     Task   `dynamodbav:"task"`
	ResumeAt int64  `dynamodbav:"resume_at"` // epoch seconds
}

// WorkflowStore persists resume points in DynamoDB so the wait survives
// process restarts.
type WorkflowStore struct {
	db        *dynamodb.Client
	tableName string
}

func NewWorkflowStore(ctx context.Context, region, table, endpoint string) (*WorkflowStore, error) {
	if table == "" {
		return nil, fmt.Errorf("workflow table name is required")
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, err
	}

	client := dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})

	return &WorkflowStore{db: client, tableName: table}, nil
}

func (s *WorkflowStore) Park(ctx context.Context, task Task, resumeAt int64) error {
	item, err := attributevalue.MarshalMap(resumePoint{
		Username: task.Record.Username,
		Task:     task,
		ResumeAt: resumeAt,
	})
	if err != nil {
		return err
	}

	_, err = s.db.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      item,
	})
	return err
}

// Due returns every parked task whose resume time has passed.
func (s *WorkflowStore) Due(ctx context.Context, now int64) ([]Task, error) {
	out, err := s.db.Scan(ctx, &dynamodb.ScanInput{
		TableName:        aws.String(s.tableName),
		FilterExpression: aws.String("resume_at <= :now"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":now": &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", now)},
		},
	})
	if err != nil {
		return nil, err
	}

	var points []resumePoint
	if err := attributevalue.UnmarshalListOfMaps(out.Items, &points); err != nil {
		return nil, err
	}

	tasks := make([]Task, 0, len(points))
	for _, p := range points {
		tasks = append(tasks, p.Task)
	}
	return tasks, nil
}

func (s *WorkflowStore) Remove(ctx context.Context, username string) error {
	_, err := s.db.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"username": &types.AttributeValueMemberS{Value: username},
		},
	})
	return err
}
