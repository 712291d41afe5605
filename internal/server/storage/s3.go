// Package storage is the asset store: profile pictures are written to an
// S3-compatible bucket and addressed by a public URL.
package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dmitrijs2005/erpkeeper/internal/common"
	"github.com/dmitrijs2005/erpkeeper/internal/server/models"
	"github.com/google/uuid"
)

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}
)

// Store uploads an avatar and returns the URL it can be fetched from.
type Store interface {
	Upload(ctx context.Context, avatar models.Avatar) (string, error)
}

type putObjectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Options configures S3Store.
type Options struct {
	AccessKey    string
	SecretKey    string
	Region       string
	Bucket       string
	BaseEndpoint string
	// PublicBaseURL is prefixed to object keys in returned URLs. When empty
	// the path-style endpoint URL is used.
	PublicBaseURL string
}

// S3Store uploads avatars to an S3 bucket.
type S3Store struct {
	api       putObjectAPI
	bucket    string
	publicURL string
	now       func() time.Time
}

// NewS3Store builds a path-style S3 client with static credentials.
func NewS3Store(ctx context.Context, opts Options) (*S3Store, error) {
	cfg, err := loadDefaultAWSConfig(ctx,
		config.WithRegion(opts.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			opts.AccessKey,
			opts.SecretKey,
			"",
		)))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := newS3ClientFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(opts.BaseEndpoint)
		o.UsePathStyle = true
	})

	public := opts.PublicBaseURL
	if public == "" {
		public = strings.TrimSuffix(opts.BaseEndpoint, "/") + "/" + opts.Bucket
	}

	return &S3Store{
		api:       client,
		bucket:    opts.Bucket,
		publicURL: strings.TrimSuffix(public, "/"),
		now:       time.Now,
	}, nil
}

// objectKey spreads avatars over date prefixes.
func (s *S3Store) objectKey(filename string) string {
	d := s.now().UTC()
	ext := strings.ToLower(path.Ext(filename))
	return fmt.Sprintf("avatars/%d/%02d/%02d/%s%s", d.Year(), d.Month(), d.Day(), uuid.NewString(), ext)
}

// Upload writes the avatar body to the bucket. Any failure is reported as
// common.ErrUpload.
func (s *S3Store) Upload(ctx context.Context, avatar models.Avatar) (string, error) {
	if avatar.Body == nil {
		return "", fmt.Errorf("%w: empty body", common.ErrUpload)
	}

	key := s.objectKey(avatar.Filename)
	in := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   avatar.Body,
	}
	if avatar.ContentType != "" {
		in.ContentType = aws.String(avatar.ContentType)
	}
	if avatar.Size > 0 {
		in.ContentLength = aws.Int64(avatar.Size)
	}

	if _, err := s.api.PutObject(ctx, in); err != nil {
		if errors.Is(err, context.Canceled) {
			return "", err
		}
		return "", fmt.Errorf("%w: %v", common.ErrUpload, err)
	}

	return s.publicURL + "/" + key, nil
}
