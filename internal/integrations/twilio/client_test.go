package twilio

import (
	"context"
	"errors"
	"testing"

	api "github.com/twilio/twilio-go/rest/api/v2010"
	"github.com/stretchr/testify/require"
)

type fakeREST struct {
	call      *api.ApiV2010Call
	callErr   error
	rec       *api.ApiV2010Recording
	recErr    error
	msg       *api.ApiV2010Message
	msgErr    error
	lastCall  *api.CreateCallParams
	lastRecID string
	lastMsg   *api.CreateMessageParams
}

func (f *fakeREST) CreateCall(params *api.CreateCallParams) (*api.ApiV2010Call, error) {
	f.lastCall = params
	return f.call, f.callErr
}

func (f *fakeREST) FetchRecording(sid string, _ *api.FetchRecordingParams) (*api.ApiV2010Recording, error) {
	f.lastRecID = sid
	return f.rec, f.recErr
}

func (f *fakeREST) CreateMessage(params *api.CreateMessageParams) (*api.ApiV2010Message, error) {
	f.lastMsg = params
	return f.msg, f.msgErr
}

func strPtr(s string) *string { return &s }

func mustNewClient(t *testing.T, rest *fakeREST) *Client {
	t.Helper()
	c, err := newClient(rest, "AC123", "secret")
	require.NoError(t, err)
	return c
}

func TestNewClient_Validates(t *testing.T) {
	_, err := NewClient("", "token")
	require.Error(t, err)
	_, err = NewClient("AC1", " ")
	require.Error(t, err)
	_, err = newClient(nil, "AC1", "token")
	require.Error(t, err)
}

func TestNewClient_Real(t *testing.T) {
	c, err := NewClient("AC1", "token")
	require.NoError(t, err)
	user, pass := c.Credentials()
	require.Equal(t, "AC1", user)
	require.Equal(t, "token", pass)
}

func TestCreateCall_HappyPath(t *testing.T) {
	rest := &fakeREST{call: &api.ApiV2010Call{Sid: strPtr("CA42")}}
	c := mustNewClient(t, rest)

	sid, err := c.CreateCall(context.Background(), CallRequest{
		To:             "+359888123456",
		From:           "+15005550006",
		URL:            "https://bot.example.com/initial",
		StatusCallback: "https://bot.example.com/call-status",
	})
	require.NoError(t, err)
	require.Equal(t, "CA42", sid)
	require.Equal(t, "+359888123456", *rest.lastCall.To)
	require.Equal(t, "+15005550006", *rest.lastCall.From)
	require.Equal(t, "https://bot.example.com/initial", *rest.lastCall.Url)
	require.Equal(t, "https://bot.example.com/call-status", *rest.lastCall.StatusCallback)
}

func TestCreateCall_Errors(t *testing.T) {
	c := mustNewClient(t, &fakeREST{callErr: errors.New("21211 invalid to")})
	_, err := c.CreateCall(context.Background(), CallRequest{To: "+1", From: "+2", URL: "https://x/initial"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "21211")

	c = mustNewClient(t, &fakeREST{call: &api.ApiV2010Call{}})
	_, err = c.CreateCall(context.Background(), CallRequest{To: "+1", From: "+2", URL: "https://x/initial"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "no sid")

	_, err = c.CreateCall(context.Background(), CallRequest{To: "+1"})
	require.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.CreateCall(ctx, CallRequest{To: "+1", From: "+2", URL: "https://x/initial"})
	require.ErrorIs(t, err, context.Canceled)
}

func TestRecordingMediaURL(t *testing.T) {
	rest := &fakeREST{rec: &api.ApiV2010Recording{Uri: strPtr("/2010-04-01/Accounts/AC123/Recordings/RE9.json")}}
	c := mustNewClient(t, rest)

	u, err := c.RecordingMediaURL(context.Background(), "RE9")
	require.NoError(t, err)
	require.Equal(t, "https://api.twilio.com/2010-04-01/Accounts/AC123/Recordings/RE9.mp3", u)
	require.Equal(t, "RE9", rest.lastRecID)
}

func TestRecordingMediaURL_Errors(t *testing.T) {
	c := mustNewClient(t, &fakeREST{recErr: errors.New("20404 not found")})
	_, err := c.RecordingMediaURL(context.Background(), "RE9")
	require.Error(t, err)
	require.Contains(t, err.Error(), "20404")

	c = mustNewClient(t, &fakeREST{rec: &api.ApiV2010Recording{}})
	_, err = c.RecordingMediaURL(context.Background(), "RE9")
	require.Error(t, err)
	require.Contains(t, err.Error(), "no uri")

	_, err = c.RecordingMediaURL(context.Background(), " ")
	require.Error(t, err)
}

func TestMediaURL(t *testing.T) {
	cases := []struct {
		base string
		uri  string
		want string
	}{
		{"https://api.twilio.com", "/2010-04-01/Accounts/AC1/Recordings/RE1.json", "https://api.twilio.com/2010-04-01/Accounts/AC1/Recordings/RE1.mp3"},
		{"https://api.twilio.com/", "2010-04-01/Accounts/AC1/Recordings/RE1.json", "https://api.twilio.com/2010-04-01/Accounts/AC1/Recordings/RE1.mp3"},
		{"http://localhost:9000", "/Recordings/RE2", "http://localhost:9000/Recordings/RE2.mp3"},
	}
	for _, tc := range cases {
		got, err := mediaURL(tc.base, tc.uri)
		require.NoError(t, err)
		require.Equal(t, tc.want, got, "uri=%q", tc.uri)
	}

	_, err := mediaURL("https://api.twilio.com", "")
	require.Error(t, err)
}

func TestSendSMS(t *testing.T) {
	rest := &fakeREST{msg: &api.ApiV2010Message{Sid: strPtr("SM1")}}
	c := mustNewClient(t, rest)

	sid, err := c.SendSMS(context.Background(), "+359888123456", "+15005550006", "Очаквайте обаждане.")
	require.NoError(t, err)
	require.Equal(t, "SM1", sid)
	require.Equal(t, "Очаквайте обаждане.", *rest.lastMsg.Body)

	_, err = c.SendSMS(context.Background(), "+1", "+2", " ")
	require.Error(t, err)

	c = mustNewClient(t, &fakeREST{msgErr: errors.New("21610 unsubscribed")})
	_, err = c.SendSMS(context.Background(), "+1", "+2", "hi")
	require.Error(t, err)
	require.Contains(t, err.Error(), "21610")
}
