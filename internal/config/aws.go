package config

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

// BuildStores assembles the source chain below runtime overrides. AWS-backed
// stores are skipped when DisableAWS is set.
func BuildStores(ctx context.Context, b Bootstrap) ([]ValueStore, error) {
	if b.DisableAWS {
		return LocalStores(b)
	}
	awsCfg, err := LoadAWSConfig(ctx, b.Region)
	if err != nil {
		return nil, err
	}
	return BuildStoresWithAWS(b, awsCfg)
}

// LocalStores returns the stores that need no network: environment and
// defaults.
func LocalStores(b Bootstrap) ([]ValueStore, error) {
	defaults, err := NewDefaultStore(b.DefaultsFile)
	if err != nil {
		return nil, err
	}
	return []ValueStore{NewEnvironmentStore(), defaults}, nil
}

// BuildStoresWithAWS adds the parameter and secret stores, plus the object
// store when ConfigBucket is set, to the local stores.
func BuildStoresWithAWS(b Bootstrap, awsCfg aws.Config) ([]ValueStore, error) {
	stores, err := LocalStores(b)
	if err != nil {
		return nil, err
	}
	keys := b.Keys()
	stores = append(stores,
		NewParameterStore(ssm.NewFromConfig(awsCfg), keys),
		NewSecretStore(secretsmanager.NewFromConfig(awsCfg), keys),
	)
	if b.ConfigBucket != "" {
		stores = append(stores, NewObjectStorageStore(s3.NewFromConfig(awsCfg), b.ConfigBucket, keys, b.DocumentTTL))
	}
	return stores, nil
}

// LoadAWSConfig resolves credentials through the default provider chain.
func LoadAWSConfig(ctx context.Context, region string) (aws.Config, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load aws config: %w", err)
	}
	return cfg, nil
}
