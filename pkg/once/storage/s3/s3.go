package s3

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/tendant/once/pkg/once"
)

// Config options for the S3 backend
type Config struct {
	Region          string // AWS region
	Bucket          string // S3 bucket name
	AccessKeyID     string // AWS access key ID
	SecretAccessKey string // AWS secret access key
	Endpoint        string // Optional custom endpoint for S3-compatible services
	UsePathStyle    bool   // Use path-style addressing

	// MinIO/S3-compatible service options
	CreateBucketIfNotExist bool
}

// API is the subset of the S3 client used by the backend
type API interface {
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	CreateBucket(ctx context.Context, params *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// Presigner is the subset of the S3 presign client used by the backend
type Presigner interface {
	PresignPostObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.PresignPostOptions)) (*s3.PresignedPostRequest, error)
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// Backend is an S3-compatible implementation of the once.BlobStore interface
type Backend struct {
	client    API
	presigner Presigner
	bucket    string
	region    string
}

// New creates a new S3-compatible storage backend
func New(ctx context.Context, config Config) (*Backend, error) {
	if config.Bucket == "" {
		return nil, errors.New("bucket name is required")
	}

	if config.Region == "" {
		config.Region = "us-east-1"
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(config.Region),
	}
	if config.AccessKeyID != "" && config.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(config.AccessKeyID, config.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var s3Options []func(*s3.Options)
	if config.Endpoint != "" {
		s3Options = append(s3Options, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(config.Endpoint)
			o.UsePathStyle = config.UsePathStyle
		})
	}

	client := s3.NewFromConfig(awsCfg, s3Options...)

	backend := NewWithClients(config.Bucket, config.Region, client, s3.NewPresignClient(client))

	if config.CreateBucketIfNotExist {
		if err := backend.EnsureBucket(ctx); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	return backend, nil
}

// NewWithClients creates a backend on top of existing clients
func NewWithClients(bucket, region string, client API, presigner Presigner) *Backend {
	return &Backend{
		client:    client,
		presigner: presigner,
		bucket:    bucket,
		region:    region,
	}
}

// EnsureBucket creates the bucket if it doesn't exist
func (b *Backend) EnsureBucket(ctx context.Context) error {
	_, err := b.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(b.bucket),
	})
	if err == nil {
		return nil
	}
	if !isErrorCode(err, "NotFound", "NoSuchBucket", "BadRequest") {
		return fmt.Errorf("failed to check bucket: %w", err)
	}

	createInput := &s3.CreateBucketInput{
		Bucket: aws.String(b.bucket),
	}
	if b.region != "" && b.region != "us-east-1" {
		createInput.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(b.region),
		}
	}

	_, err = b.client.CreateBucket(ctx, createInput)
	if err != nil && !isErrorCode(err, "BucketAlreadyExists", "BucketAlreadyOwnedByYou") {
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	return nil
}

// PresignUpload returns a presigned POST form that writes exactly objectName
func (b *Backend) PresignUpload(ctx context.Context, objectName string, expiresIn time.Duration) (*once.UploadCredential, error) {
	req, err := b.presigner.PresignPostObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(objectName),
	}, func(o *s3.PresignPostOptions) {
		o.Expires = expiresIn
	})
	if err != nil {
		return nil, fmt.Errorf("failed to presign upload: %w", err)
	}

	return &once.UploadCredential{
		URL:    req.URL,
		Fields: req.Values,
	}, nil
}

// PresignDownload returns a presigned GET URL for objectName
func (b *Backend) PresignDownload(ctx context.Context, objectName string, expiresIn time.Duration) (string, error) {
	req, err := b.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(objectName),
	}, s3.WithPresignExpires(expiresIn))
	if err != nil {
		return "", fmt.Errorf("failed to presign download: %w", err)
	}
	return req.URL, nil
}

// Delete removes objectName from the bucket. S3 reports success for
// keys that do not exist.
func (b *Backend) Delete(ctx context.Context, objectName string) error {
	_, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(objectName),
	})
	if err != nil {
		if isErrorCode(err, "NoSuchKey", "NotFound") {
			return once.ErrObjectNotFound
		}
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}

func isErrorCode(err error, codes ...string) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	for _, code := range codes {
		if apiErr.ErrorCode() == code {
			return true
		}
	}
	return false
}
