package config

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/tendant/once/pkg/once"
	"github.com/tendant/once/pkg/once/api"
	"github.com/tendant/once/pkg/once/metrics"
	"github.com/tendant/once/pkg/once/presigned"
	repodynamo "github.com/tendant/once/pkg/once/repo/dynamodb"
	"github.com/tendant/once/pkg/once/repo/memory"
	repopg "github.com/tendant/once/pkg/once/repo/postgres"
	reporedis "github.com/tendant/once/pkg/once/repo/redis"
	"github.com/tendant/once/pkg/once/signature"
	fsstorage "github.com/tendant/once/pkg/once/storage/fs"
	memorystorage "github.com/tendant/once/pkg/once/storage/memory"
	s3storage "github.com/tendant/once/pkg/once/storage/s3"
)

// Runtime holds the service and the resources built for it
type Runtime struct {
	Service    once.Service
	Repository once.Repository
	BlobStore  once.BlobStore
	Metrics    *metrics.Collector

	// BlobHandlers serves local file URLs, nil unless STORAGE_URL is file://
	BlobHandlers http.Handler

	closers []func()
}

// Close releases connections and background goroutines
func (r *Runtime) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
	r.closers = nil
}

// RouterConfig returns the HTTP wiring for this runtime
func (c *Config) RouterConfig(rt *Runtime, logger *slog.Logger) api.RouterConfig {
	cfg := api.RouterConfig{
		Service:         rt.Service,
		SignatureHeader: c.SignatureHeader,
		Logger:          logger,
		Metrics:         rt.Metrics,
		BlobHandlers:    rt.BlobHandlers,
	}
	if c.IssueRateLimit > 0 {
		cfg.IssueLimiter = rate.NewLimiter(rate.Limit(c.IssueRateLimit), c.IssueRateBurst)
	}
	return cfg
}

// BuildService creates the repository, blob store and service described
// by the configuration. Callers must Close the returned Runtime.
func (c *Config) BuildService(ctx context.Context, logger *slog.Logger) (*Runtime, error) {
	if logger == nil {
		logger = slog.Default()
	}
	secret, err := c.Secret()
	if err != nil {
		return nil, err
	}

	rt := &Runtime{Metrics: metrics.New()}

	repo, err := c.buildRepository(ctx, rt)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("failed to build repository: %w", err)
	}
	rt.Repository = repo

	store, err := c.buildStorage(ctx, rt, secret, logger)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("failed to build storage backend: %w", err)
	}
	rt.BlobStore = store

	signerOpts := []signature.Option{
		signature.WithSecretKey(secret),
		signature.WithHeader(c.SignatureHeader),
		signature.WithTolerance(c.SignatureTimeTolerance()),
	}
	if c.ReplayCacheEnabled {
		// a MAC stays replayable for as long as its timestamp is accepted
		cache := signature.NewReplayCache(2 * c.SignatureTimeTolerance())
		rt.closers = append(rt.closers, cache.Stop)
		signerOpts = append(signerOpts, signature.WithReplayCache(cache))
	}

	masker, err := c.clientMasker()
	if err != nil {
		rt.Close()
		return nil, err
	}

	svc, err := once.New(
		once.WithRepository(repo),
		once.WithBlobStore(store),
		once.WithSigner(signature.New(signerOpts...)),
		once.WithClientMasker(masker),
		once.WithBaseURL(c.BaseURL),
		once.WithUploadExpiry(c.UploadExpiry()),
		once.WithDownloadExpiry(c.DownloadExpiry()),
		once.WithEventSink(rt.Metrics),
		once.WithLogger(logger),
	)
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.Service = svc

	return rt, nil
}

func (c *Config) clientMasker() (*once.ClientMasker, error) {
	if len(c.MaskedUserAgents) == 0 {
		return once.NewClientMasker(once.DefaultMaskedUserAgents)
	}
	return once.NewClientMasker(c.MaskedUserAgents)
}

// buildRepository creates a Repository based on DATABASE_URL
func (c *Config) buildRepository(ctx context.Context, rt *Runtime) (once.Repository, error) {
	dbType, err := c.databaseType()
	if err != nil {
		return nil, err
	}

	switch dbType {
	case "memory":
		return memory.New(), nil

	case "postgres":
		pool, err := pgxpool.New(ctx, c.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to create pgx pool: %w", err)
		}
		rt.closers = append(rt.closers, pool.Close)
		if err := pool.Ping(ctx); err != nil {
			return nil, fmt.Errorf("database ping failed: %w", err)
		}
		if err := repopg.Migrate(ctx, pool); err != nil {
			return nil, err
		}
		return repopg.NewWithPool(pool), nil

	case "dynamodb":
		u, err := url.Parse(c.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse DATABASE_URL: %w", err)
		}
		table := u.Host
		if table == "" {
			table = repodynamo.DefaultTable
		}
		awsCfg, err := c.awsConfig(ctx, u.Query().Get("region"))
		if err != nil {
			return nil, err
		}
		endpoint := u.Query().Get("endpoint")
		client := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
			if endpoint != "" {
				o.BaseEndpoint = aws.String(endpoint)
			}
		})
		return repodynamo.New(client, table), nil

	case "redis":
		opts, err := redis.ParseURL(c.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse DATABASE_URL: %w", err)
		}
		client := redis.NewClient(opts)
		rt.closers = append(rt.closers, func() { _ = client.Close() })
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("redis ping failed: %w", err)
		}
		return reporedis.New(client, reporedis.DefaultPrefix), nil
	}

	return nil, fmt.Errorf("unsupported database type: %s", dbType)
}

// buildStorage creates a BlobStore based on STORAGE_URL
func (c *Config) buildStorage(ctx context.Context, rt *Runtime, secret []byte, logger *slog.Logger) (once.BlobStore, error) {
	storageType, err := c.storageType()
	if err != nil {
		return nil, err
	}

	switch storageType {
	case "memory":
		if c.Environment != "testing" {
			logger.Warn("memory storage issues credentials no client can use; set STORAGE_URL to file:// or s3:// outside tests",
				"environment", c.Environment)
		}
		return memorystorage.New(), nil

	case "fs":
		prefix := c.FSURLPrefix
		if prefix == "" {
			prefix = strings.TrimSuffix(c.BaseURL, "/") + api.BlobPath
		}
		signer := presigned.New(presigned.WithSecretKey(secret))
		store, err := fsstorage.New(fsstorage.Config{
			BaseDir:   strings.TrimPrefix(c.StorageURL, "file://"),
			URLPrefix: prefix,
			Signer:    signer,
		})
		if err != nil {
			return nil, err
		}
		rt.BlobHandlers = presigned.NewHandlers(store, signer, logger).Routes()
		return store, nil

	case "s3":
		u, err := url.Parse(c.StorageURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse STORAGE_URL: %w", err)
		}
		q := u.Query()
		s3cfg := s3storage.Config{
			Region:                 firstNonEmpty(q.Get("region"), c.S3.Region),
			Bucket:                 u.Host,
			AccessKeyID:            c.S3.AccessKeyID,
			SecretAccessKey:        c.S3.SecretAccessKey,
			Endpoint:               firstNonEmpty(q.Get("endpoint"), c.S3.Endpoint),
			UsePathStyle:           c.S3.UsePathStyle,
			CreateBucketIfNotExist: c.S3.CreateBucket,
		}
		if v := q.Get("path_style"); v != "" {
			if s3cfg.UsePathStyle, err = strconv.ParseBool(v); err != nil {
				return nil, fmt.Errorf("invalid path_style in STORAGE_URL: %w", err)
			}
		}
		return s3storage.New(ctx, s3cfg)
	}

	return nil, fmt.Errorf("unsupported storage type: %s", storageType)
}

func (c *Config) awsConfig(ctx context.Context, region string) (aws.Config, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(firstNonEmpty(region, c.S3.Region)),
	}
	if c.S3.AccessKeyID != "" && c.S3.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(c.S3.AccessKeyID, c.S3.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return awsCfg, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
