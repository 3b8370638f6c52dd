package repository

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.uber.org/zap"

	s3config "github.com/gulubao/GOT-OCR2.0/internal/config"
	"github.com/gulubao/GOT-OCR2.0/internal/domain"
)

var (
	ErrObjectNotFound = errors.New("object not found")
	ErrObjectTooLarge = errors.New("object exceeds the upload size limit")
)

type ImageSource interface {
	FetchImage(ctx context.Context, key string) (domain.Image, error)
	FetchPrefix(ctx context.Context, prefix string) ([]domain.Image, error)
}

type s3Repository struct {
	client  *s3.Client
	cfg     *s3config.S3Config
	maxSize int64
	log     *zap.Logger
}

func NewS3Repository(cfg *s3config.S3Config, maxSize int64, log *zap.Logger) (ImageSource, error) {
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)))
	}

	awsCfg, err := config.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		return nil, err
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(endpointURL(cfg.Endpoint, cfg.UseSSL))
			o.UsePathStyle = true
		}
	})

	repo := &s3Repository{
		client:  client,
		cfg:     cfg,
		maxSize: maxSize,
		log:     log,
	}

	if err := repo.checkBucket(context.Background()); err != nil {
		log.Warn("Image bucket is not reachable", zap.String("bucket", cfg.BucketName), zap.Error(err))
	}

	return repo, nil
}

func endpointURL(endpoint string, useSSL bool) string {
	if strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://") {
		return endpoint
	}
	if useSSL {
		return "https://" + endpoint
	}
	return "http://" + endpoint
}

func (r *s3Repository) checkBucket(ctx context.Context) error {
	_, err := r.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(r.cfg.BucketName),
	})
	if err != nil {
		return err
	}

	r.log.Info("Image bucket available", zap.String("bucket", r.cfg.BucketName))
	return nil
}

func (r *s3Repository) FetchImage(ctx context.Context, key string) (domain.Image, error) {
	output, err := r.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.cfg.BucketName),
		Key:    aws.String(key),
	})
	if err != nil {
		var missing *types.NoSuchKey
		if errors.As(err, &missing) {
			return domain.Image{}, fmt.Errorf("%w: %s", ErrObjectNotFound, key)
		}
		r.log.Error("Failed to download object from S3",
			zap.String("key", key),
			zap.Error(err))
		return domain.Image{}, fmt.Errorf("failed to download %s: %w", key, err)
	}
	defer output.Body.Close()

	body := io.Reader(output.Body)
	if r.maxSize > 0 {
		body = io.LimitReader(output.Body, r.maxSize+1)
	}

	data, err := io.ReadAll(body)
	if err != nil {
		return domain.Image{}, fmt.Errorf("failed to read %s: %w", key, err)
	}
	if r.maxSize > 0 && int64(len(data)) > r.maxSize {
		return domain.Image{}, fmt.Errorf("%w: %s", ErrObjectTooLarge, key)
	}

	r.log.Info("Object downloaded from S3",
		zap.String("key", key),
		zap.Int("size", len(data)))

	return domain.Image{Name: path.Base(key), Data: data}, nil
}

func (r *s3Repository) FetchPrefix(ctx context.Context, prefix string) ([]domain.Image, error) {
	keys, err := r.listKeys(ctx, prefix)
	if err != nil {
		return nil, err
	}

	images := make([]domain.Image, 0, len(keys))
	for _, key := range keys {
		img, err := r.FetchImage(ctx, key)
		if err != nil {
			return nil, err
		}
		images = append(images, img)
	}

	return images, nil
}

func (r *s3Repository) listKeys(ctx context.Context, prefix string) ([]string, error) {
	paginator := s3.NewListObjectsV2Paginator(r.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(r.cfg.BucketName),
		Prefix: aws.String(prefix),
	})

	var keys []string
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list %s: %w", prefix, err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if strings.HasSuffix(key, "/") {
				continue
			}
			keys = append(keys, key)
		}
	}

	return keys, nil
}
