package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/wolfman30/rams-care-platform/pkg/logging"
)

const (
	dynamoPartitionKey = "pk"
	dynamoSortKey      = "sk"
	dynamoOwnerAttr    = "ownerId"
)

type dynamoAPI interface {
	PutItem(context.Context, *dynamodb.PutItemInput, ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(context.Context, *dynamodb.GetItemInput, ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	UpdateItem(context.Context, *dynamodb.UpdateItemInput, ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	Query(context.Context, *dynamodb.QueryInput, ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	TransactWriteItems(context.Context, *dynamodb.TransactWriteItemsInput, ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// DynamoStore keeps every collection in one DynamoDB table: the partition key
// holds the collection name and the sort key the record id. Document fields
// are stored as top-level attributes so they can be filtered and updated.
type DynamoStore struct {
	client    dynamoAPI
	tableName string
	logger    *logging.Logger
}

var _ Store = (*DynamoStore)(nil)

// NewDynamoStore builds a store backed by the provided DynamoDB client.
func NewDynamoStore(client dynamoAPI, tableName string, logger *logging.Logger) *DynamoStore {
	if client == nil {
		panic("docstore: dynamodb client cannot be nil")
	}
	if tableName == "" {
		panic("docstore: table name cannot be empty")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &DynamoStore{client: client, tableName: tableName, logger: logger}
}

func (s *DynamoStore) key(collection, id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		dynamoPartitionKey: &types.AttributeValueMemberS{Value: collection},
		dynamoSortKey:      &types.AttributeValueMemberS{Value: id},
	}
}

func (s *DynamoStore) Get(ctx context.Context, collection, id string) ([]byte, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tableName),
		Key:            s.key(collection, id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("docstore: get %s/%s: %w", collection, id, err)
	}
	if out.Item == nil {
		return nil, ErrNotFound
	}
	return itemToJSON(out.Item)
}

func (s *DynamoStore) Insert(ctx context.Context, collection, id string, body []byte, opts ...InsertOption) error {
	item, err := jsonToItem(body)
	if err != nil {
		return fmt.Errorf("docstore: encode %s/%s: %w", collection, id, err)
	}
	for k, v := range s.key(collection, id) {
		item[k] = v
	}

	o := applyInsertOptions(opts)
	if len(o.unique) == 0 {
		_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
			TableName:           aws.String(s.tableName),
			Item:                item,
			ConditionExpression: aws.String("attribute_not_exists(" + dynamoSortKey + ")"),
		})
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return ErrConflict
		}
		if err != nil {
			return fmt.Errorf("docstore: put %s/%s: %w", collection, id, err)
		}
		return nil
	}

	// The document and its unique claims commit or fail together.
	writes := []types.TransactWriteItem{{
		Put: &types.Put{
			TableName:           aws.String(s.tableName),
			Item:                item,
			ConditionExpression: aws.String("attribute_not_exists(" + dynamoSortKey + ")"),
		},
	}}
	for _, claim := range o.unique {
		writes = append(writes, types.TransactWriteItem{
			Put: &types.Put{
				TableName: aws.String(s.tableName),
				Item: map[string]types.AttributeValue{
					dynamoPartitionKey: &types.AttributeValueMemberS{Value: claimPartition(collection, claim.Field)},
					dynamoSortKey:      &types.AttributeValueMemberS{Value: fmt.Sprint(claim.Value)},
					dynamoOwnerAttr:    &types.AttributeValueMemberS{Value: id},
				},
				ConditionExpression: aws.String("attribute_not_exists(" + dynamoSortKey + ")"),
			},
		})
	}
	_, err = s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: writes})
	var canceled *types.TransactionCanceledException
	if errors.As(err, &canceled) {
		if conditionalCancel(canceled) {
			return ErrConflict
		}
		s.logger.Warn("dynamodb transaction canceled", "collection", collection, "id", id, "error", err)
		return fmt.Errorf("docstore: transact %s/%s: %w", collection, id, err)
	}
	if err != nil {
		return fmt.Errorf("docstore: transact %s/%s: %w", collection, id, err)
	}
	return nil
}

func (s *DynamoStore) Update(ctx context.Context, collection, id string, patch Patch) error {
	if len(patch.Set) == 0 {
		return errors.New("docstore: update requires at least one field")
	}
	names := map[string]string{}
	values := map[string]types.AttributeValue{}

	fields := make([]string, 0, len(patch.Set))
	for field := range patch.Set {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	sets := make([]string, 0, len(fields))
	for i, field := range fields {
		av, err := attributevalue.Marshal(patch.Set[field])
		if err != nil {
			return fmt.Errorf("docstore: encode %s: %w", field, err)
		}
		name, value := fmt.Sprintf("#s%d", i), fmt.Sprintf(":s%d", i)
		names[name] = field
		values[value] = av
		sets = append(sets, name+" = "+value)
	}

	conditions := []string{"attribute_exists(" + dynamoSortKey + ")"}
	for i, cond := range patch.Expect {
		av, err := attributevalue.Marshal(cond.Value)
		if err != nil {
			return fmt.Errorf("docstore: encode %s: %w", cond.Field, err)
		}
		name, value := fmt.Sprintf("#e%d", i), fmt.Sprintf(":e%d", i)
		names[name] = cond.Field
		values[value] = av
		conditions = append(conditions, name+" = "+value)
	}

	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(s.tableName),
		Key:                       s.key(collection, id),
		UpdateExpression:          aws.String("SET " + strings.Join(sets, ", ")),
		ConditionExpression:       aws.String(strings.Join(conditions, " AND ")),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
	})
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		if _, getErr := s.Get(ctx, collection, id); errors.Is(getErr, ErrNotFound) {
			return ErrNotFound
		}
		return ErrConditionFailed
	}
	if err != nil {
		return fmt.Errorf("docstore: update %s/%s: %w", collection, id, err)
	}
	return nil
}

func (s *DynamoStore) Find(ctx context.Context, collection string, q Query) ([][]byte, error) {
	names := map[string]string{"#pk": dynamoPartitionKey}
	values := map[string]types.AttributeValue{
		":pk": &types.AttributeValueMemberS{Value: collection},
	}
	input := &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		KeyConditionExpression: aws.String("#pk = :pk"),
		ConsistentRead:         aws.Bool(true),
	}
	if len(q.Where) > 0 {
		filters := make([]string, 0, len(q.Where))
		for i, cond := range q.Where {
			av, err := attributevalue.Marshal(cond.Value)
			if err != nil {
				return nil, fmt.Errorf("docstore: encode %s: %w", cond.Field, err)
			}
			name, value := fmt.Sprintf("#f%d", i), fmt.Sprintf(":f%d", i)
			names[name] = cond.Field
			values[value] = av
			filters = append(filters, name+" = "+value)
		}
		input.FilterExpression = aws.String(strings.Join(filters, " AND "))
	}
	input.ExpressionAttributeNames = names
	input.ExpressionAttributeValues = values

	var out [][]byte
	for {
		page, err := s.client.Query(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("docstore: query %s: %w", collection, err)
		}
		for _, item := range page.Items {
			body, err := itemToJSON(item)
			if err != nil {
				return nil, err
			}
			out = append(out, body)
			// DynamoDB applies Limit before the filter, so limit client side.
			if q.Limit > 0 && len(out) >= q.Limit {
				return out, nil
			}
		}
		if len(page.LastEvaluatedKey) == 0 {
			return out, nil
		}
		input.ExclusiveStartKey = page.LastEvaluatedKey
	}
}

func claimPartition(collection, field string) string {
	return "unique#" + collection + "#" + field
}

func conditionalCancel(err *types.TransactionCanceledException) bool {
	for _, reason := range err.CancellationReasons {
		if aws.ToString(reason.Code) == "ConditionalCheckFailed" {
			return true
		}
	}
	return false
}

func jsonToItem(body []byte) (map[string]types.AttributeValue, error) {
	var doc map[string]any
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, err
	}
	return attributevalue.MarshalMap(doc)
}

func itemToJSON(item map[string]types.AttributeValue) ([]byte, error) {
	var doc map[string]any
	if err := attributevalue.UnmarshalMap(item, &doc); err != nil {
		return nil, fmt.Errorf("docstore: decode item: %w", err)
	}
	delete(doc, dynamoPartitionKey)
	delete(doc, dynamoSortKey)
	return json.Marshal(doc)
}
