package config

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"

	reelerrors "reelpipe/internal/errors"
)

// SSMAPI is the subset of the SSM client used by ParameterStore.
type SSMAPI interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
	GetParametersByPath(ctx context.Context, params *ssm.GetParametersByPathInput, optFns ...func(*ssm.Options)) (*ssm.GetParametersByPathOutput, error)
}

// ParameterStore reads keys from SSM Parameter Store under /{app}/{env}/.
type ParameterStore struct {
	client SSMAPI
	keys   KeyMapper
}

// NewParameterStore wraps an SSM client.
func NewParameterStore(client SSMAPI, keys KeyMapper) *ParameterStore {
	return &ParameterStore{client: client, keys: keys}
}

func (s *ParameterStore) Source() Source {
	return SourceParameterStore
}

func (s *ParameterStore) Lookup(ctx context.Context, key string) (Value, error) {
	out, err := s.client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(s.keys.ParameterPath(key)),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		var notFound *ssmtypes.ParameterNotFound
		if errors.As(err, &notFound) {
			return Null(), reelerrors.ErrConfigNotFound
		}
		return Null(), fmt.Errorf("get parameter %s: %w", s.keys.ParameterPath(key), err)
	}
	if out.Parameter == nil || out.Parameter.Value == nil {
		return Null(), reelerrors.ErrConfigNotFound
	}
	return Parse(aws.ToString(out.Parameter.Value)), nil
}

// LookupPrefix lists every parameter below prefix, keyed by the dotted
// suffix relative to prefix.
func (s *ParameterStore) LookupPrefix(ctx context.Context, prefix string) (map[string]Value, error) {
	root := s.keys.ParameterPrefix(prefix)
	paginator := ssm.NewGetParametersByPathPaginator(s.client, &ssm.GetParametersByPathInput{
		Path:           aws.String(root),
		Recursive:      aws.Bool(true),
		WithDecryption: aws.Bool(true),
	})

	values := make(map[string]Value)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list parameters under %s: %w", root, err)
		}
		for _, p := range page.Parameters {
			name := aws.ToString(p.Name)
			suffix := strings.TrimPrefix(strings.TrimPrefix(name, root), "/")
			if suffix == "" {
				continue
			}
			values[strings.ReplaceAll(suffix, "/", ".")] = Parse(aws.ToString(p.Value))
		}
	}
	return values, nil
}
