package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// ServiceStatus is the lifecycle state of a hosting service
type ServiceStatus string

const (
	StatusPending   ServiceStatus = "pending"
	StatusActive    ServiceStatus = "active"
	StatusSuspended ServiceStatus = "suspended"
	StatusCanceled  ServiceStatus = "canceled"
	// StatusMissing marks an active service whose account no longer exists on the panel
	StatusMissing ServiceStatus = "missing"
)

// ServiceRecord is the DynamoDB schema for a hosting service.
// Password holds the sealed value, never plaintext.
type ServiceRecord struct {
	ServiceID   string        `dynamodbav:"service_id" json:"service_id"`
	ServerID    string        `dynamodbav:"server_id" json:"server_id"`
	Status      ServiceStatus `dynamodbav:"status" json:"status"`
	Domain      string        `dynamodbav:"domain" json:"domain"`
	Username    string        `dynamodbav:"username" json:"username"`
	Password    string        `dynamodbav:"password,omitempty" json:"password,omitempty"`
	Package     string        `dynamodbav:"package" json:"package"`
	ShellAccess bool          `dynamodbav:"shell_access" json:"shell_access"`
	Email       string        `dynamodbav:"email,omitempty" json:"email,omitempty"`
	// Detached services were recorded with use_module=false and have no panel account.
	Detached    bool          `dynamodbav:"detached,omitempty" json:"detached,omitempty"`
	CreatedAt   time.Time     `dynamodbav:"created_at" json:"created_at"`
	UpdatedAt   time.Time     `dynamodbav:"updated_at" json:"updated_at"`
}

// Client is the interface for service registry operations
type Client interface {
	GetService(ctx context.Context, serviceID string) (*ServiceRecord, error)
	CreateService(ctx context.Context, record *ServiceRecord) error
	PutService(ctx context.Context, record *ServiceRecord) error
	UpdateStatus(ctx context.Context, serviceID string, status ServiceStatus) error
	TransitionStatus(ctx context.Context, serviceID string, from, to ServiceStatus) error
	UpdatePackage(ctx context.Context, serviceID, pkg string) error
	ListAll(ctx context.Context) ([]*ServiceRecord, error)
	ListByStatus(ctx context.Context, status ServiceStatus) ([]*ServiceRecord, error)
	DeleteService(ctx context.Context, serviceID string) error
}

// ErrNotFound is returned by updates addressed to a missing service
var ErrNotFound = errors.New("service not found")

// ErrStatusChanged is returned by TransitionStatus when the stored status
// is no longer the expected one, or the record is gone.
var ErrStatusChanged = errors.New("service status changed")

// DynamoClient implements Client using AWS DynamoDB
type DynamoClient struct {
	db        *dynamodb.Client
	tableName string
}

// New creates a new DynamoDB-backed registry client
func New(db *dynamodb.Client, tableName string) *DynamoClient {
	return &DynamoClient{db: db, tableName: tableName}
}

func key(serviceID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"service_id": &types.AttributeValueMemberS{Value: serviceID},
	}
}

// GetService fetches a service record by ID; nil when absent
func (c *DynamoClient) GetService(ctx context.Context, serviceID string) (*ServiceRecord, error) {
	out, err := c.db.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(c.tableName),
		Key:            key(serviceID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("dynamodb GetItem: %w", err)
	}
	if out.Item == nil {
		return nil, nil
	}
	var rec ServiceRecord
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal service: %w", err)
	}
	return &rec, nil
}

// CreateService stores a new record (fails if it already exists)
func (c *DynamoClient) CreateService(ctx context.Context, record *ServiceRecord) error {
	item, err := attributevalue.MarshalMap(record)
	if err != nil {
		return fmt.Errorf("marshal service: %w", err)
	}
	_, err = c.db.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(c.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(service_id)"),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return &ConditionalCheckFailed{ServiceID: record.ServiceID}
		}
		return fmt.Errorf("dynamodb PutItem: %w", err)
	}
	return nil
}

// PutService overwrites an existing record and bumps updated_at
func (c *DynamoClient) PutService(ctx context.Context, record *ServiceRecord) error {
	record.UpdatedAt = time.Now().UTC()
	item, err := attributevalue.MarshalMap(record)
	if err != nil {
		return fmt.Errorf("marshal service: %w", err)
	}
	_, err = c.db.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(c.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_exists(service_id)"),
	})
	return c.updateErr(err, "PutItem")
}

// UpdateStatus sets the status and updated_at atomically
func (c *DynamoClient) UpdateStatus(ctx context.Context, serviceID string, status ServiceStatus) error {
	_, err := c.db.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:        aws.String(c.tableName),
		Key:              key(serviceID),
		UpdateExpression: aws.String("SET #s = :s, updated_at = :u"),
		ExpressionAttributeNames: map[string]string{
			"#s": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":s": &types.AttributeValueMemberS{Value: string(status)},
			":u": &types.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339Nano)},
		},
		ConditionExpression: aws.String("attribute_exists(service_id)"),
	})
	return c.updateErr(err, "UpdateItem")
}

// TransitionStatus moves a service from one status to another, failing with
// ErrStatusChanged if another writer got there first
func (c *DynamoClient) TransitionStatus(ctx context.Context, serviceID string, from, to ServiceStatus) error {
	_, err := c.db.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:        aws.String(c.tableName),
		Key:              key(serviceID),
		UpdateExpression: aws.String("SET #s = :to, updated_at = :u"),
		ExpressionAttributeNames: map[string]string{
			"#s": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":from": &types.AttributeValueMemberS{Value: string(from)},
			":to":   &types.AttributeValueMemberS{Value: string(to)},
			":u":    &types.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339Nano)},
		},
		ConditionExpression: aws.String("#s = :from"),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return ErrStatusChanged
		}
		return fmt.Errorf("dynamodb UpdateItem: %w", err)
	}
	return nil
}

// UpdatePackage records a plan change
func (c *DynamoClient) UpdatePackage(ctx context.Context, serviceID, pkg string) error {
	_, err := c.db.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:        aws.String(c.tableName),
		Key:              key(serviceID),
		UpdateExpression: aws.String("SET #p = :p, updated_at = :u"),
		ExpressionAttributeNames: map[string]string{
			"#p": "package",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":p": &types.AttributeValueMemberS{Value: pkg},
			":u": &types.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339Nano)},
		},
		ConditionExpression: aws.String("attribute_exists(service_id)"),
	})
	return c.updateErr(err, "UpdateItem")
}

func (c *DynamoClient) updateErr(err error, op string) error {
	if err == nil {
		return nil
	}
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return ErrNotFound
	}
	return fmt.Errorf("dynamodb %s: %w", op, err)
}

// ListAll returns every service record
func (c *DynamoClient) ListAll(ctx context.Context) ([]*ServiceRecord, error) {
	return c.scan(ctx, &dynamodb.ScanInput{
		TableName: aws.String(c.tableName),
	})
}

// ListByStatus returns all services with the given status
func (c *DynamoClient) ListByStatus(ctx context.Context, status ServiceStatus) ([]*ServiceRecord, error) {
	return c.scan(ctx, &dynamodb.ScanInput{
		TableName:        aws.String(c.tableName),
		FilterExpression: aws.String("#s = :status"),
		ExpressionAttributeNames: map[string]string{
			"#s": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":status": &types.AttributeValueMemberS{Value: string(status)},
		},
	})
}

// scan follows pagination until the table is exhausted
func (c *DynamoClient) scan(ctx context.Context, in *dynamodb.ScanInput) ([]*ServiceRecord, error) {
	var records []*ServiceRecord
	p := dynamodb.NewScanPaginator(c.db, in)
	for p.HasMorePages() {
		out, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("dynamodb Scan: %w", err)
		}
		for _, item := range out.Items {
			var rec ServiceRecord
			if err := attributevalue.UnmarshalMap(item, &rec); err != nil {
				continue
			}
			records = append(records, &rec)
		}
	}
	return records, nil
}

// DeleteService removes a service record
func (c *DynamoClient) DeleteService(ctx context.Context, serviceID string) error {
	_, err := c.db.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(c.tableName),
		Key:       key(serviceID),
	})
	if err != nil {
		return fmt.Errorf("dynamodb DeleteItem: %w", err)
	}
	return nil
}
