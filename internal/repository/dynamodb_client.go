package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"collector-agent/internal/domain"
)

const (
	pkProfile    = "PROFILE"
	skCurrent    = "CURRENT"
	skPrefixTurn = "TURN#"
	ttlDuration  = 30 * 24 * time.Hour // 30-day TTL
)

// dynamodbAPI is the minimal DynamoDB interface required by Client.
// Defined here for testability.
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// Client keeps the current debtor profile and the turn archive in a single
// DynamoDB table.
type Client struct {
	api       dynamodbAPI
	tableName string
}

// New creates a new repository Client.
func New(api dynamodbAPI, tableName string) (*Client, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	return &Client{api: api, tableName: tableName}, nil
}

func callPK(callSID string) string {
	return "CALL#" + callSID
}

func debtorPK(debtorID string) string {
	return "DEBTOR#" + debtorID
}

func turnSK(ts time.Time) string {
	return skPrefixTurn + ts.UTC().Format(time.RFC3339Nano)
}

func ttlValue() int64 {
	return time.Now().Add(ttlDuration).Unix()
}

// SaveProfile replaces the current profile and keeps a copy under the
// debtor's own key, in one transaction.
func (c *Client) SaveProfile(ctx context.Context, p domain.DebtorProfile) error {
	if p.ID == "" {
		return errors.New("repository: SaveProfile: profile id is required")
	}

	current := profileItem(p)
	current["PK"] = &types.AttributeValueMemberS{Value: pkProfile}
	current["SK"] = &types.AttributeValueMemberS{Value: skCurrent}

	byDebtor := profileItem(p)
	byDebtor["PK"] = &types.AttributeValueMemberS{Value: debtorPK(p.ID)}
	byDebtor["SK"] = &types.AttributeValueMemberS{Value: skCurrent}

	_, err := c.api.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{Put: &types.Put{TableName: aws.String(c.tableName), Item: current}},
			{Put: &types.Put{TableName: aws.String(c.tableName), Item: byDebtor}},
		},
	})
	if err != nil {
		return fmt.Errorf("repository: SaveProfile: %w", err)
	}
	return nil
}

// LoadProfile returns the current profile or ErrProfileNotFound.
func (c *Client) LoadProfile(ctx context.Context) (domain.DebtorProfile, error) {
	out, err := c.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(c.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: pkProfile},
			"SK": &types.AttributeValueMemberS{Value: skCurrent},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return domain.DebtorProfile{}, fmt.Errorf("repository: LoadProfile get item: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return domain.DebtorProfile{}, ErrProfileNotFound
	}
	p, err := itemToProfile(out.Item)
	if err != nil {
		return domain.DebtorProfile{}, fmt.Errorf("repository: LoadProfile decode: %w", err)
	}
	return p, nil
}

// SaveTurn archives one exchange of a call.
func (c *Client) SaveTurn(ctx context.Context, turn domain.Turn) error {
	if turn.PK == "" || turn.SK == "" {
		return errors.New("repository: SaveTurn: PK and SK are required")
	}

	_, err := c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(c.tableName),
		Item:                turnItem(turn),
		ConditionExpression: aws.String("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
	})
	if err != nil {
		return fmt.Errorf("repository: SaveTurn: %w", err)
	}
	return nil
}

// ListTurns returns up to limit archived turns of a call, oldest first.
func (c *Client) ListTurns(ctx context.Context, callSID string, limit int) ([]domain.Turn, error) {
	in := &dynamodb.QueryInput{
		TableName:              aws.String(c.tableName),
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":     &types.AttributeValueMemberS{Value: callPK(callSID)},
			":prefix": &types.AttributeValueMemberS{Value: skPrefixTurn},
		},
		ScanIndexForward: aws.Bool(true),
	}
	if limit > 0 {
		in.Limit = aws.Int32(int32(limit))
	}

	out, err := c.api.Query(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("repository: ListTurns query: %w", err)
	}

	turns := make([]domain.Turn, 0, len(out.Items))
	for _, item := range out.Items {
		turn, err := itemToTurn(item)
		if err != nil {
			return nil, fmt.Errorf("repository: ListTurns unmarshal: %w", err)
		}
		turns = append(turns, turn)
	}
	return turns, nil
}

// NewTurn constructs a Turn with PK/SK/TTL set from callSID and current time.
func NewTurn(callSID, recordingSID, transcript, reply, status string) domain.Turn {
	now := time.Now().UTC()
	return domain.Turn{
		PK:         callPK(callSID),
		SK:         turnSK(now),
		CallSID:    callSID,
		Recording:  recordingSID,
		Transcript: transcript,
		Reply:      reply,
		Status:     status,
		CreatedAt:  now.Format(time.RFC3339),
		TTL:        ttlValue(),
	}
}

func profileItem(p domain.DebtorProfile) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"id":           &types.AttributeValueMemberS{Value: p.ID},
		"firstName":    &types.AttributeValueMemberS{Value: p.FirstName},
		"lastName":     &types.AttributeValueMemberS{Value: p.LastName},
		"phone":        &types.AttributeValueMemberS{Value: p.Phone},
		"amount":       &types.AttributeValueMemberN{Value: strconv.FormatFloat(p.Amount, 'f', -1, 64)},
		"creditExpire": &types.AttributeValueMemberS{Value: p.CreditExpire},
		"familyStatus": &types.AttributeValueMemberS{Value: p.FamilyStatus},
		"income":       &types.AttributeValueMemberN{Value: strconv.FormatFloat(p.Income, 'f', -1, 64)},
		"egn":          &types.AttributeValueMemberS{Value: p.EGN},
		"address":      &types.AttributeValueMemberS{Value: p.Address},
		"age":          &types.AttributeValueMemberN{Value: strconv.Itoa(p.Age)},
		"job":          &types.AttributeValueMemberS{Value: p.Job},
		"createdAt":    &types.AttributeValueMemberS{Value: p.CreatedAt.UTC().Format(time.RFC3339)},
	}
}

func itemToProfile(item map[string]types.AttributeValue) (domain.DebtorProfile, error) {
	id, err := strAttr(item, "id")
	if err != nil {
		return domain.DebtorProfile{}, err
	}
	firstName, err := strAttr(item, "firstName")
	if err != nil {
		return domain.DebtorProfile{}, err
	}
	amount, err := floatAttr(item, "amount")
	if err != nil {
		return domain.DebtorProfile{}, err
	}

	// Optional fields decode to their zero value.
	p := domain.DebtorProfile{ID: id, FirstName: firstName, Amount: amount}
	p.LastName, _ = strAttr(item, "lastName")
	p.Phone, _ = strAttr(item, "phone")
	p.CreditExpire, _ = strAttr(item, "creditExpire")
	p.FamilyStatus, _ = strAttr(item, "familyStatus")
	p.Income, _ = floatAttr(item, "income")
	p.EGN, _ = strAttr(item, "egn")
	p.Address, _ = strAttr(item, "address")
	p.Age, _ = intAttr(item, "age")
	p.Job, _ = strAttr(item, "job")
	if created, err := strAttr(item, "createdAt"); err == nil {
		p.CreatedAt, _ = time.Parse(time.RFC3339, created)
	}
	return p, nil
}

func turnItem(t domain.Turn) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK":         &types.AttributeValueMemberS{Value: t.PK},
		"SK":         &types.AttributeValueMemberS{Value: t.SK},
		"callSid":    &types.AttributeValueMemberS{Value: t.CallSID},
		"recording":  &types.AttributeValueMemberS{Value: t.Recording},
		"transcript": &types.AttributeValueMemberS{Value: t.Transcript},
		"reply":      &types.AttributeValueMemberS{Value: t.Reply},
		"status":     &types.AttributeValueMemberS{Value: t.Status},
		"createdAt":  &types.AttributeValueMemberS{Value: t.CreatedAt},
		"ttl":        &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", t.TTL)},
	}
}

func itemToTurn(item map[string]types.AttributeValue) (domain.Turn, error) {
	pk, err := strAttr(item, "PK")
	if err != nil {
		return domain.Turn{}, err
	}
	sk, err := strAttr(item, "SK")
	if err != nil {
		return domain.Turn{}, err
	}
	transcript, err := strAttr(item, "transcript")
	if err != nil {
		return domain.Turn{}, err
	}
	callSID, _ := strAttr(item, "callSid")
	recording, _ := strAttr(item, "recording")
	reply, _ := strAttr(item, "reply")   // empty when the turn failed
	status, _ := strAttr(item, "status") // allow empty
	createdAt, _ := strAttr(item, "createdAt")

	return domain.Turn{
		PK:         pk,
		SK:         sk,
		CallSID:    callSID,
		Recording:  recording,
		Transcript: transcript,
		Reply:      reply,
		Status:     status,
		CreatedAt:  createdAt,
	}, nil
}

func strAttr(item map[string]types.AttributeValue, key string) (string, error) {
	v, ok := item[key]
	if !ok {
		return "", fmt.Errorf("repository: missing attribute %q", key)
	}
	s, ok := v.(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("repository: attribute %q is not a string", key)
	}
	return s.Value, nil
}

func numAttr(item map[string]types.AttributeValue, key string) (string, error) {
	v, ok := item[key]
	if !ok {
		return "", fmt.Errorf("repository: missing attribute %q", key)
	}
	n, ok := v.(*types.AttributeValueMemberN)
	if !ok {
		return "", fmt.Errorf("repository: attribute %q is not a number", key)
	}
	return n.Value, nil
}

func intAttr(item map[string]types.AttributeValue, key string) (int, error) {
	raw, err := numAttr(item, key)
	if err != nil {
		return 0, err
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("repository: parse attribute %q: %w", key, err)
	}
	return parsed, nil
}

func floatAttr(item map[string]types.AttributeValue, key string) (float64, error) {
	raw, err := numAttr(item, key)
	if err != nil {
		return 0, err
	}
	parsed, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("repository: parse attribute %q: %w", key, err)
	}
	return parsed, nil
}
