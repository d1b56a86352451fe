package config

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	smtypes "github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"

	reelerrors "reelpipe/internal/errors"
)

// SecretsManagerAPI is the subset of the Secrets Manager client used by SecretStore.
type SecretsManagerAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// SecretStore reads keys from AWS Secrets Manager.
type SecretStore struct {
	client SecretsManagerAPI
	keys   KeyMapper
}

// NewSecretStore wraps a Secrets Manager client.
func NewSecretStore(client SecretsManagerAPI, keys KeyMapper) *SecretStore {
	return &SecretStore{client: client, keys: keys}
}

func (s *SecretStore) Source() Source {
	return SourceSecretStore
}

func (s *SecretStore) Lookup(ctx context.Context, key string) (Value, error) {
	id := s.keys.SecretID(key)
	out, err := s.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(id),
	})
	if err != nil {
		var notFound *smtypes.ResourceNotFoundException
		if errors.As(err, &notFound) {
			return Null(), reelerrors.ErrConfigNotFound
		}
		return Null(), fmt.Errorf("get secret %s: %w", id, err)
	}
	switch {
	case out.SecretString != nil:
		return Parse(aws.ToString(out.SecretString)), nil
	case len(out.SecretBinary) > 0:
		return Parse(string(out.SecretBinary)), nil
	default:
		return Null(), reelerrors.ErrConfigNotFound
	}
}
