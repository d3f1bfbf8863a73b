package backup

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
)

// S3Provider represents different S3-compatible providers
type S3Provider string

const (
	ProviderAWS    S3Provider = "aws"
	ProviderMinIO  S3Provider = "minio"
	ProviderCustom S3Provider = "custom"
)

// S3Config configures offsite replication of verified backups
type S3Config struct {
	Enabled         bool       `mapstructure:"enabled"`
	Provider        S3Provider `mapstructure:"provider"`
	Bucket          string     `mapstructure:"bucket"`
	Prefix          string     `mapstructure:"prefix"`
	Region          string     `mapstructure:"region"`
	EndpointURL     string     `mapstructure:"endpoint_url"`
	AccessKeyID     string     `mapstructure:"access_key_id"`
	SecretAccessKey string     `mapstructure:"secret_access_key"`
	SessionToken    string     `mapstructure:"session_token"`
	ForcePathStyle  bool       `mapstructure:"force_path_style"`
}

// ApplyProviderDefaults fills region, endpoint and addressing style for
// known providers. Explicit values are kept.
func (c *S3Config) ApplyProviderDefaults() {
	if c.Region == "" {
		c.Region = "us-east-1"
	}

	switch c.Provider {
	case ProviderMinIO:
		// MinIO requires path-style access
		c.ForcePathStyle = true
		if c.EndpointURL == "" {
			c.EndpointURL = "http://localhost:9000"
		}
	case ProviderCustom:
		c.ForcePathStyle = true
	}
}

// LoadCredentials builds an AWS config from, in order of priority:
// 1. Explicit credentials in the config
// 2. Environment variables
// 3. The SDK default chain (credentials file, IAM role)
func LoadCredentials(ctx context.Context, cfg S3Config) (aws.Config, error) {
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		return loadFromExplicitCredentials(ctx, cfg)
	}

	if env, ok := loadFromEnvironment(cfg); ok {
		return loadFromExplicitCredentials(ctx, env)
	}

	return loadFromDefaultChain(ctx, cfg)
}

func loadFromExplicitCredentials(ctx context.Context, cfg S3Config) (aws.Config, error) {
	staticProvider := credentials.NewStaticCredentialsProvider(
		cfg.AccessKeyID,
		cfg.SecretAccessKey,
		cfg.SessionToken,
	)

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(regionOrDefault(cfg.Region)),
		awsconfig.WithCredentialsProvider(staticProvider),
	)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load credentials: %w", err)
	}
	return awsCfg, nil
}

func loadFromEnvironment(cfg S3Config) (S3Config, bool) {
	accessKey := os.Getenv("AWS_ACCESS_KEY_ID")
	secretKey := os.Getenv("AWS_SECRET_ACCESS_KEY")
	if accessKey == "" || secretKey == "" {
		return cfg, false
	}

	cfg.AccessKeyID = accessKey
	cfg.SecretAccessKey = secretKey
	cfg.SessionToken = os.Getenv("AWS_SESSION_TOKEN")
	if region := os.Getenv("AWS_REGION"); region != "" {
		cfg.Region = region
	}
	return cfg, true
}

func loadFromDefaultChain(ctx context.Context, cfg S3Config) (aws.Config, error) {
	region := regionOrDefault(cfg.Region)
	if envRegion := os.Getenv("AWS_REGION"); envRegion != "" {
		region = envRegion
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load default credentials: %w", err)
	}
	return awsCfg, nil
}

func regionOrDefault(region string) string {
	if region == "" {
		return "us-east-1"
	}
	return region
}
