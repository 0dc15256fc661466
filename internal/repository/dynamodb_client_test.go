package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/require"

	"collector-agent/internal/domain"
)

type fakeDynamo struct {
	getOut       *dynamodb.GetItemOutput
	getErr       error
	putErr       error
	queryOut     *dynamodb.QueryOutput
	queryErr     error
	txErr        error
	lastGetInput *dynamodb.GetItemInput
	lastPutInput *dynamodb.PutItemInput
	lastQueryIn  *dynamodb.QueryInput
	lastTxInput  *dynamodb.TransactWriteItemsInput
}

func (f *fakeDynamo) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.lastGetInput = in
	return f.getOut, f.getErr
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.lastPutInput = in
	return &dynamodb.PutItemOutput{}, f.putErr
}

func (f *fakeDynamo) Query(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.lastQueryIn = in
	return f.queryOut, f.queryErr
}

func (f *fakeDynamo) TransactWriteItems(_ context.Context, in *dynamodb.TransactWriteItemsInput, _ ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	f.lastTxInput = in
	return &dynamodb.TransactWriteItemsOutput{}, f.txErr
}

func mustNewClient(t *testing.T, db *fakeDynamo) *Client {
	t.Helper()
	c, err := New(db, "collector-state")
	require.NoError(t, err)
	return c
}

func sampleProfile() domain.DebtorProfile {
	return domain.DebtorProfile{
		ID:           "d-1",
		FirstName:    "Иван",
		LastName:     "Петров",
		Phone:        "+359888123456",
		Amount:       500,
		CreditExpire: "2026-12-01",
		FamilyStatus: "женен",
		Income:       1450.5,
		EGN:          "8001011234",
		Address:      "София, ул. Витоша 1",
		Age:          45,
		Job:          "шофьор",
		CreatedAt:    time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC),
	}
}

func makeTurnItem(sk, transcript, reply string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK":         &types.AttributeValueMemberS{Value: "CALL#CA1"},
		"SK":         &types.AttributeValueMemberS{Value: sk},
		"callSid":    &types.AttributeValueMemberS{Value: "CA1"},
		"transcript": &types.AttributeValueMemberS{Value: transcript},
		"reply":      &types.AttributeValueMemberS{Value: reply},
		"status":     &types.AttributeValueMemberS{Value: "complete"},
	}
}

// ---- profile ----

func TestSaveProfile_WritesCurrentAndDebtorCopy(t *testing.T) {
	db := &fakeDynamo{}
	c := mustNewClient(t, db)

	require.NoError(t, c.SaveProfile(context.Background(), sampleProfile()))
	require.NotNil(t, db.lastTxInput)
	require.Len(t, db.lastTxInput.TransactItems, 2)

	current := db.lastTxInput.TransactItems[0].Put.Item
	require.Equal(t, "PROFILE", current["PK"].(*types.AttributeValueMemberS).Value)
	require.Equal(t, "CURRENT", current["SK"].(*types.AttributeValueMemberS).Value)
	require.Equal(t, "500", current["amount"].(*types.AttributeValueMemberN).Value)
	require.Equal(t, "1450.5", current["income"].(*types.AttributeValueMemberN).Value)

	byDebtor := db.lastTxInput.TransactItems[1].Put.Item
	require.Equal(t, "DEBTOR#d-1", byDebtor["PK"].(*types.AttributeValueMemberS).Value)
}

func TestSaveProfile_Errors(t *testing.T) {
	c := mustNewClient(t, &fakeDynamo{})
	err := c.SaveProfile(context.Background(), domain.DebtorProfile{FirstName: "Ivan"})
	require.ErrorContains(t, err, "id is required")

	c = mustNewClient(t, &fakeDynamo{txErr: errors.New("transaction canceled")})
	err = c.SaveProfile(context.Background(), sampleProfile())
	require.ErrorContains(t, err, "SaveProfile")
}

func TestLoadProfile_RoundTripsSavedItem(t *testing.T) {
	db := &fakeDynamo{}
	c := mustNewClient(t, db)
	require.NoError(t, c.SaveProfile(context.Background(), sampleProfile()))

	db.getOut = &dynamodb.GetItemOutput{Item: db.lastTxInput.TransactItems[0].Put.Item}
	got, err := c.LoadProfile(context.Background())
	require.NoError(t, err)
	require.Equal(t, sampleProfile(), got)
	require.True(t, *db.lastGetInput.ConsistentRead)
}

func TestLoadProfile_NotFound(t *testing.T) {
	c := mustNewClient(t, &fakeDynamo{getOut: &dynamodb.GetItemOutput{}})
	_, err := c.LoadProfile(context.Background())
	require.ErrorIs(t, err, ErrProfileNotFound)
}

func TestLoadProfile_GetItemError(t *testing.T) {
	c := mustNewClient(t, &fakeDynamo{getErr: errors.New("boom")})
	_, err := c.LoadProfile(context.Background())
	require.ErrorContains(t, err, "LoadProfile")
}

func TestLoadProfile_MalformedAmount(t *testing.T) {
	db := &fakeDynamo{getOut: &dynamodb.GetItemOutput{Item: map[string]types.AttributeValue{
		"id":        &types.AttributeValueMemberS{Value: "d-1"},
		"firstName": &types.AttributeValueMemberS{Value: "Ivan"},
		"amount":    &types.AttributeValueMemberS{Value: "500"},
	}}}
	c := mustNewClient(t, db)
	_, err := c.LoadProfile(context.Background())
	require.ErrorContains(t, err, "amount")
}

// ---- turns ----

func TestSaveTurn_HappyPath(t *testing.T) {
	db := &fakeDynamo{}
	c := mustNewClient(t, db)

	turn := NewTurn("CA1", "RE1", "Нямам пари.", "Разбирам.", "complete")
	require.NoError(t, c.SaveTurn(context.Background(), turn))
	require.Equal(t, "Разбирам.", db.lastPutInput.Item["reply"].(*types.AttributeValueMemberS).Value)
	require.Equal(t, "attribute_not_exists(PK) AND attribute_not_exists(SK)", *db.lastPutInput.ConditionExpression)
}

func TestSaveTurn_Errors(t *testing.T) {
	c := mustNewClient(t, &fakeDynamo{})
	require.ErrorContains(t, c.SaveTurn(context.Background(), domain.Turn{SK: "TURN#x"}), "required")

	c = mustNewClient(t, &fakeDynamo{putErr: errors.New("ProvisionedThroughputExceededException")})
	err := c.SaveTurn(context.Background(), NewTurn("CA1", "RE1", "a", "b", "complete"))
	require.ErrorContains(t, err, "SaveTurn")
}

func TestListTurns_HappyPath(t *testing.T) {
	db := &fakeDynamo{queryOut: &dynamodb.QueryOutput{Items: []map[string]types.AttributeValue{
		makeTurnItem("TURN#2026-10-18T10:00:00Z", "Кой се обажда?", "Обаждам се от кредитора."),
		makeTurnItem("TURN#2026-10-18T10:00:20Z", "Ще платя.", "Благодаря."),
	}}}
	c := mustNewClient(t, db)

	turns, err := c.ListTurns(context.Background(), "CA1", 50)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	require.Equal(t, "Кой се обажда?", turns[0].Transcript)
	require.Equal(t, "CA1", turns[1].CallSID)

	require.Equal(t, "PK = :pk AND begins_with(SK, :prefix)", *db.lastQueryIn.KeyConditionExpression)
	require.Equal(t, "CALL#CA1", db.lastQueryIn.ExpressionAttributeValues[":pk"].(*types.AttributeValueMemberS).Value)
	require.True(t, *db.lastQueryIn.ScanIndexForward)
	require.Equal(t, int32(50), *db.lastQueryIn.Limit)
}

func TestListTurns_NoLimit(t *testing.T) {
	db := &fakeDynamo{queryOut: &dynamodb.QueryOutput{}}
	c := mustNewClient(t, db)
	turns, err := c.ListTurns(context.Background(), "CA1", 0)
	require.NoError(t, err)
	require.Empty(t, turns)
	require.Nil(t, db.lastQueryIn.Limit)
}

func TestListTurns_Errors(t *testing.T) {
	c := mustNewClient(t, &fakeDynamo{queryErr: errors.New("ResourceNotFoundException")})
	_, err := c.ListTurns(context.Background(), "CA1", 10)
	require.ErrorContains(t, err, "ListTurns")

	bad := map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: "CALL#CA1"},
		"SK": &types.AttributeValueMemberS{Value: "TURN#ts"},
	}
	c = mustNewClient(t, &fakeDynamo{queryOut: &dynamodb.QueryOutput{Items: []map[string]types.AttributeValue{bad}}})
	_, err = c.ListTurns(context.Background(), "CA1", 10)
	require.ErrorContains(t, err, "transcript")
}

func TestNewTurn_Fields(t *testing.T) {
	turn := NewTurn("CA9", "RE9", "hello", "hi", "failed")
	require.Equal(t, "CALL#CA9", turn.PK)
	require.Contains(t, turn.SK, "TURN#")
	require.Equal(t, "RE9", turn.Recording)
	require.Equal(t, "failed", turn.Status)
	require.NotEmpty(t, turn.CreatedAt)
	require.Greater(t, turn.TTL, time.Now().Add(29*24*time.Hour).Unix())
}

func TestTurnSK(t *testing.T) {
	ts := time.Date(2026, 10, 18, 10, 0, 0, 0, time.UTC)
	require.Equal(t, "TURN#2026-10-18T10:00:00Z", turnSK(ts))
}

func TestNew_NilAPI(t *testing.T) {
	_, err := New(nil, "collector-state")
	require.ErrorContains(t, err, "must not be nil")
}

func TestNew_EmptyTableName(t *testing.T) {
	_, err := New(&fakeDynamo{}, " ")
	require.ErrorContains(t, err, "must not be empty")
}
