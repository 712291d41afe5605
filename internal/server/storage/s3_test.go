package storage

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dmitrijs2005/erpkeeper/internal/common"
	"github.com/dmitrijs2005/erpkeeper/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	got *s3.PutObjectInput
	err error
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.got = in
	if f.err != nil {
		return nil, f.err
	}
	return &s3.PutObjectOutput{}, nil
}

func newTestStore(api putObjectAPI) *S3Store {
	return &S3Store{
		api:       api,
		bucket:    "avatars",
		publicURL: "https://cdn.example/avatars",
		now:       func() time.Time { return time.Date(2026, 4, 9, 0, 0, 0, 0, time.UTC) },
	}
}

func TestUpload_Success(t *testing.T) {
	api := &fakeS3{}
	s := newTestStore(api)

	url, err := s.Upload(context.Background(), models.Avatar{
		Filename: "Me.PNG", ContentType: "image/png", Size: 4, Body: strings.NewReader("\x89PNG"),
	})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(url, "https://cdn.example/avatars/avatars/2026/04/09/"), url)
	assert.True(t, strings.HasSuffix(url, ".png"), url)

	require.NotNil(t, api.got)
	assert.Equal(t, "avatars", aws.ToString(api.got.Bucket))
	assert.Equal(t, "image/png", aws.ToString(api.got.ContentType))
	assert.Equal(t, int64(4), aws.ToInt64(api.got.ContentLength))
	assert.True(t, strings.HasSuffix(url, aws.ToString(api.got.Key)))
}

func TestUpload_Failure(t *testing.T) {
	s := newTestStore(&fakeS3{err: errors.New("503 slow down")})

	_, err := s.Upload(context.Background(), models.Avatar{Filename: "a.jpg", Body: strings.NewReader("x")})
	assert.ErrorIs(t, err, common.ErrUpload)
	assert.ErrorContains(t, err, "slow down")
}

func TestUpload_NoBody(t *testing.T) {
	api := &fakeS3{}
	_, err := newTestStore(api).Upload(context.Background(), models.Avatar{Filename: "a.jpg"})
	assert.ErrorIs(t, err, common.ErrUpload)
	assert.Nil(t, api.got)
}

func TestNewS3Store_UsesSeams(t *testing.T) {
	origLoad, origNew := loadDefaultAWSConfig, newS3ClientFromConfig
	t.Cleanup(func() { loadDefaultAWSConfig, newS3ClientFromConfig = origLoad, origNew })

	loadDefaultAWSConfig = func(ctx context.Context, optFns ...func(*config.LoadOptions) error) (aws.Config, error) {
		return aws.Config{Region: "us-east-1"}, nil
	}
	var opts s3.Options
	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		for _, fn := range optFns {
			fn(&opts)
		}
		return s3.NewFromConfig(cfg, optFns...)
	}

	s, err := NewS3Store(context.Background(), Options{Bucket: "avatars", BaseEndpoint: "http://minio:9000/"})
	require.NoError(t, err)

	assert.Equal(t, "http://minio:9000/", aws.ToString(opts.BaseEndpoint))
	assert.True(t, opts.UsePathStyle)
	assert.Equal(t, "http://minio:9000/avatars", s.publicURL)
}

func TestNewS3Store_ConfigError(t *testing.T) {
	orig := loadDefaultAWSConfig
	t.Cleanup(func() { loadDefaultAWSConfig = orig })

	loadDefaultAWSConfig = func(ctx context.Context, optFns ...func(*config.LoadOptions) error) (aws.Config, error) {
		return aws.Config{}, errors.New("no creds")
	}

	_, err := NewS3Store(context.Background(), Options{})
	assert.ErrorContains(t, err, "load aws config: no creds")
}
