package twilio

import (
	"context"
	"errors"
	"fmt"
	"strings"

	twiliosdk "github.com/twilio/twilio-go"
	api "github.com/twilio/twilio-go/rest/api/v2010"
)

const defaultMediaBaseURL = "https://api.twilio.com"

// restAPI is the minimal Twilio REST surface required by Client.
// *api.ApiService from twilio-go satisfies this interface.
type restAPI interface {
	CreateCall(params *api.CreateCallParams) (*api.ApiV2010Call, error)
	FetchRecording(sid string, params *api.FetchRecordingParams) (*api.ApiV2010Recording, error)
	CreateMessage(params *api.CreateMessageParams) (*api.ApiV2010Message, error)
}

// CallRequest describes an outbound call.
type CallRequest struct {
	To             string
	From           string
	URL            string
	StatusCallback string
}

// Client wraps the Twilio voice and messaging APIs.
type Client struct {
	api          restAPI
	accountSID   string
	authToken    string
	mediaBaseURL string
}

// NewClient creates a Client authenticated with the account SID and token.
func NewClient(accountSID, authToken string) (*Client, error) {
	accountSID = strings.TrimSpace(accountSID)
	authToken = strings.TrimSpace(authToken)
	if accountSID == "" || authToken == "" {
		return nil, errors.New("twilio: account sid and auth token are required")
	}
	rest := twiliosdk.NewRestClientWithParams(twiliosdk.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	return newClient(rest.Api, accountSID, authToken)
}

func newClient(rest restAPI, accountSID, authToken string) (*Client, error) {
	if rest == nil {
		return nil, errors.New("twilio: api must not be nil")
	}
	return &Client{
		api:          rest,
		accountSID:   accountSID,
		authToken:    authToken,
		mediaBaseURL: defaultMediaBaseURL,
	}, nil
}

// Credentials returns the basic-auth pair used for recording media downloads.
func (c *Client) Credentials() (user, pass string) {
	return c.accountSID, c.authToken
}

// CreateCall dials req.To and returns the Call SID. Twilio fetches call-flow
// instructions from req.URL once the callee answers.
func (c *Client) CreateCall(ctx context.Context, req CallRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if req.To == "" || req.From == "" || req.URL == "" {
		return "", errors.New("twilio: to, from and url are required")
	}

	params := &api.CreateCallParams{}
	params.SetTo(req.To)
	params.SetFrom(req.From)
	params.SetUrl(req.URL)
	if req.StatusCallback != "" {
		params.SetStatusCallback(req.StatusCallback)
		params.SetStatusCallbackEvent([]string{"completed"})
	}

	call, err := c.api.CreateCall(params)
	if err != nil {
		return "", fmt.Errorf("twilio: create call: %w", err)
	}
	if call == nil || call.Sid == nil {
		return "", errors.New("twilio: create call returned no sid")
	}
	return *call.Sid, nil
}

// RecordingMediaURL resolves a Recording SID to the MP3 media URL.
func (c *Client) RecordingMediaURL(ctx context.Context, recordingSID string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	recordingSID = strings.TrimSpace(recordingSID)
	if recordingSID == "" {
		return "", errors.New("twilio: recording sid is required")
	}

	rec, err := c.api.FetchRecording(recordingSID, &api.FetchRecordingParams{})
	if err != nil {
		return "", fmt.Errorf("twilio: fetch recording %s: %w", recordingSID, err)
	}
	if rec == nil || rec.Uri == nil {
		return "", fmt.Errorf("twilio: recording %s has no uri", recordingSID)
	}
	return mediaURL(c.mediaBaseURL, *rec.Uri)
}

// SendSMS sends body to the given number and returns the Message SID.
func (c *Client) SendSMS(ctx context.Context, to, from, body string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if to == "" || from == "" || strings.TrimSpace(body) == "" {
		return "", errors.New("twilio: to, from and body are required")
	}

	params := &api.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(from)
	params.SetBody(body)

	msg, err := c.api.CreateMessage(params)
	if err != nil {
		return "", fmt.Errorf("twilio: create message: %w", err)
	}
	if msg == nil || msg.Sid == nil {
		return "", errors.New("twilio: create message returned no sid")
	}
	return *msg.Sid, nil
}

// mediaURL turns a resource URI such as
// /2010-04-01/Accounts/AC1/Recordings/RE1.json into the .mp3 media URL.
func mediaURL(base, uri string) (string, error) {
	uri = strings.TrimSpace(uri)
	if uri == "" {
		return "", errors.New("twilio: recording uri is empty")
	}
	if !strings.HasPrefix(uri, "/") {
		uri = "/" + uri
	}
	return strings.TrimRight(base, "/") + strings.TrimSuffix(uri, ".json") + ".mp3", nil
}
