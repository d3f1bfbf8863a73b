package backup

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.uber.org/zap"

	"cleanupd/pkg/models"
)

// ObjectClient is the subset of the S3 API the replicator needs
type ObjectClient interface {
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	CreateBucket(ctx context.Context, params *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Replicator copies verified backups to an S3-compatible bucket
type S3Replicator struct {
	client ObjectClient
	bucket string
	prefix string
	region string
	logger *zap.Logger
}

// NewS3Replicator builds an S3 client from cfg
func NewS3Replicator(ctx context.Context, cfg S3Config, logger *zap.Logger) (*S3Replicator, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	cfg.ApplyProviderDefaults()

	awsCfg, err := LoadCredentials(ctx, cfg)
	if err != nil {
		return nil, err
	}

	client := s3.NewFromConfig(awsCfg, func(options *s3.Options) {
		if cfg.EndpointURL != "" {
			options.BaseEndpoint = aws.String(cfg.EndpointURL)
		}
		options.UsePathStyle = cfg.ForcePathStyle
	})

	return NewS3ReplicatorWithClient(client, cfg, logger), nil
}

// NewS3ReplicatorWithClient wires a replicator to an existing client
func NewS3ReplicatorWithClient(client ObjectClient, cfg S3Config, logger *zap.Logger) *S3Replicator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &S3Replicator{
		client: client,
		bucket: strings.TrimSpace(cfg.Bucket),
		prefix: strings.Trim(cfg.Prefix, "/"),
		region: cfg.Region,
		logger: logger.Named("backup"),
	}
}

// EnsureBucket checks the bucket exists and creates it when missing
func (r *S3Replicator) EnsureBucket(ctx context.Context) error {
	_, err := r.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(r.bucket)})
	if err == nil {
		return nil
	}

	var notFound *types.NotFound
	var noSuchBucket *types.NoSuchBucket
	if !errors.As(err, &notFound) && !errors.As(err, &noSuchBucket) {
		return fmt.Errorf("failed to check bucket %s: %w", r.bucket, err)
	}

	input := &s3.CreateBucketInput{Bucket: aws.String(r.bucket)}
	// Regions other than us-east-1 need a LocationConstraint
	if r.region != "" && r.region != "us-east-1" {
		input.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(r.region),
		}
	}

	if _, err := r.client.CreateBucket(ctx, input); err != nil {
		return fmt.Errorf("failed to create bucket %s: %w", r.bucket, err)
	}

	r.logger.Info("created backup bucket", zap.String("bucket", r.bucket))
	return nil
}

// Replicate uploads a backup file and returns its object key
func (r *S3Replicator) Replicate(ctx context.Context, handle models.BackupHandle) (string, error) {
	f, err := os.Open(handle.Path)
	if err != nil {
		return "", fmt.Errorf("failed to open backup: %w", err)
	}
	defer f.Close()

	key := r.objectKey(handle)
	_, err = r.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(r.bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(handle.Size),
		ContentType:   aws.String(contentType(handle.Path)),
		Metadata: map[string]string{
			"backup-id": handle.ID,
			"sha256":    handle.Checksum,
			"rows":      fmt.Sprintf("%d", handle.Rows),
		},
	})
	if err != nil {
		return "", fmt.Errorf("put object failed: %w", err)
	}

	r.logger.Info("backup replicated",
		zap.String("backup_id", handle.ID),
		zap.String("bucket", r.bucket),
		zap.String("key", key),
	)
	return key, nil
}

func (r *S3Replicator) objectKey(handle models.BackupHandle) string {
	name := filepath.Base(handle.Path)
	if r.prefix == "" {
		return name
	}
	return path.Join(r.prefix, name)
}

func contentType(p string) string {
	if strings.HasSuffix(p, ".gz") {
		return "application/gzip"
	}
	return "application/x-ndjson"
}
