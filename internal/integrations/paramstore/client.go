// Package paramstore resolves vendor credentials stored in AWS SSM Parameter
// Store under a common prefix.
package paramstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

// Parameter names relative to the configured prefix.
const (
	AzureOpenAIKey  = "azure-openai-key"
	ElevenLabsKey   = "elevenlabs-key"
	TwilioAuthToken = "twilio-auth-token"
	OperatorToken   = "operator-token"
)

// ssmAPI is the slice of *ssm.Client used here.
type ssmAPI interface {
	GetParameter(ctx context.Context, in *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// tokenPayload is the JSON shape every credential parameter is stored as.
type tokenPayload struct {
	Token string `json:"token"`
}

// Store reads parameters below prefix, decrypting SecureStrings.
type Store struct {
	api    ssmAPI
	prefix string
}

func New(api ssmAPI, prefix string) (*Store, error) {
	if api == nil {
		return nil, errors.New("paramstore: api must not be nil")
	}
	prefix = strings.TrimRight(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		return nil, errors.New("paramstore: prefix is required")
	}
	return &Store{api: api, prefix: prefix}, nil
}

// Name returns the full parameter name for key.
func (s *Store) Name(key string) string {
	return s.prefix + "/" + strings.TrimLeft(key, "/")
}

// Token fetches {prefix}/{key} and returns its "token" field.
func (s *Store) Token(ctx context.Context, key string) (string, error) {
	raw, err := s.get(ctx, s.Name(key))
	if err != nil {
		return "", err
	}
	var tp tokenPayload
	if err := json.Unmarshal([]byte(raw), &tp); err != nil {
		return "", fmt.Errorf("paramstore: %s is not a token payload: %w", key, err)
	}
	if strings.TrimSpace(tp.Token) == "" {
		return "", fmt.Errorf("paramstore: %s token is empty", key)
	}
	return tp.Token, nil
}

func (s *Store) get(ctx context.Context, name string) (string, error) {
	if s.api == nil {
		return "", errors.New("paramstore: store not initialized")
	}
	withDecryption := true
	out, err := s.api.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           &name,
		WithDecryption: &withDecryption,
	})
	if err != nil {
		return "", fmt.Errorf("paramstore: get parameter %q: %w", name, err)
	}
	if out == nil || out.Parameter == nil || out.Parameter.Value == nil {
		return "", fmt.Errorf("paramstore: parameter %q has no value", name)
	}
	return *out.Parameter.Value, nil
}
