package blobstore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/dmitrijs2005/datakeeper/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	failAll error
}

func newFakeS3() *fakeS3 { return &fakeS3{objects: map[string][]byte{}} }

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.failAll != nil {
		return nil, f.failAll
	}
	b, _ := io.ReadAll(in.Body)
	f.mu.Lock()
	f.objects[*in.Bucket+"/"+*in.Key] = b
	f.mu.Unlock()
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if f.failAll != nil {
		return nil, f.failAll
	}
	f.mu.Lock()
	b, ok := f.objects[*in.Bucket+"/"+*in.Key]
	f.mu.Unlock()
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(b))}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	if f.failAll != nil {
		return nil, f.failAll
	}
	f.mu.Lock()
	delete(f.objects, *in.Bucket+"/"+*in.Key)
	f.mu.Unlock()
	return &s3.DeleteObjectOutput{}, nil
}

func withFakeClient(t *testing.T, fake *fakeS3) *s3.Options {
	t.Helper()
	origNew := newS3ClientFromConfig
	t.Cleanup(func() { newS3ClientFromConfig = origNew })

	opts := &s3.Options{}
	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) objectAPI {
		for _, fn := range optFns {
			fn(opts)
		}
		return fake
	}
	return opts
}

func TestNewS3Store_AppliesOptions(t *testing.T) {
	opts := withFakeClient(t, newFakeS3())

	_, err := NewS3Store(context.Background(), S3Config{
		Region: "us-east-1", AccessKey: "ak", SecretKey: "sk", Bucket: "vault", BaseEndpoint: "http://127.0.0.1:9000",
	})
	require.NoError(t, err)
	require.NotNil(t, opts.BaseEndpoint)
	assert.Equal(t, "http://127.0.0.1:9000", *opts.BaseEndpoint)
	assert.True(t, opts.UsePathStyle)
}

func TestNewS3Store_ConfigError(t *testing.T) {
	orig := loadDefaultAWSConfig
	t.Cleanup(func() { loadDefaultAWSConfig = orig })
	loadDefaultAWSConfig = func(ctx context.Context, optFns ...func(*config.LoadOptions) error) (aws.Config, error) {
		return aws.Config{}, errors.New("no config")
	}

	_, err := NewS3Store(context.Background(), S3Config{Region: "x"})
	require.Error(t, err)
}

func TestS3Store_RoundTrip(t *testing.T) {
	fake := newFakeS3()
	withFakeClient(t, fake)

	s, err := NewS3Store(context.Background(), S3Config{Region: "us-east-1", Bucket: "vault"})
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "passport/1", []byte("cipher")))
	got, err := s.Get(ctx, "passport/1")
	require.NoError(t, err)
	assert.Equal(t, []byte("cipher"), got)

	require.NoError(t, s.Delete(ctx, "passport/1"))
	_, err = s.Get(ctx, "passport/1")
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestS3Store_FailuresAreDownstream(t *testing.T) {
	fake := newFakeS3()
	fake.failAll = &smithy.GenericAPIError{Code: "InternalError", Message: "boom"}
	withFakeClient(t, fake)

	s, err := NewS3Store(context.Background(), S3Config{Region: "us-east-1", Bucket: "vault"})
	require.NoError(t, err)
	ctx := context.Background()

	assert.ErrorIs(t, s.Put(ctx, "k", []byte("x")), common.ErrDownstream)
	_, err = s.Get(ctx, "k")
	assert.ErrorIs(t, err, common.ErrDownstream)
	assert.ErrorIs(t, s.Delete(ctx, "k"), common.ErrDownstream)
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, isNotFound(&types.NoSuchKey{}))
	assert.True(t, isNotFound(&smithy.GenericAPIError{Code: "NotFound"}))
	assert.False(t, isNotFound(&smithy.GenericAPIError{Code: "AccessDenied"}))
	assert.False(t, isNotFound(errors.New("x")))
}
