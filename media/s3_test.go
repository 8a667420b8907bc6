package media

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePutter struct {
	input   *s3.PutObjectInput
	body    []byte
	deleted *s3.DeleteObjectInput
	err     error
}

func (f *fakePutter) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.input = in
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.body = body
	return &s3.PutObjectOutput{}, nil
}

func (f *fakePutter) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.deleted = in
	return &s3.DeleteObjectOutput{}, nil
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func newTestStore(t *testing.T, putter *fakePutter, maxBytes int64) *S3LogoStore {
	t.Helper()
	store, err := NewS3LogoStore(putter, S3Config{Bucket: "logos", MaxLogoBytes: maxBytes})
	require.NoError(t, err)
	store.now = func() time.Time { return time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC) }
	return store
}

func TestPutLogoUploadsPNG(t *testing.T) {
	putter := &fakePutter{}
	store := newTestStore(t, putter, 0)
	img := pngBytes(t)

	key, err := store.PutLogo(context.Background(), "user-1", bytes.NewReader(img))
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(key, "logos/2026/03/"))
	assert.True(t, strings.HasSuffix(key, ".png"))
	require.NotNil(t, putter.input)
	assert.Equal(t, "logos", *putter.input.Bucket)
	assert.Equal(t, key, *putter.input.Key)
	assert.Equal(t, "image/png", *putter.input.ContentType)
	assert.Equal(t, "user-1", putter.input.Metadata["owner"])
	assert.Equal(t, img, putter.body)
}

func TestPutLogoRejectsNonImage(t *testing.T) {
	putter := &fakePutter{}
	store := newTestStore(t, putter, 0)

	_, err := store.PutLogo(context.Background(), "user-1", strings.NewReader("#!/bin/sh\necho hi\n"))
	assert.ErrorIs(t, err, ErrUnsupportedImage)
	assert.Nil(t, putter.input)
}

func TestPutLogoEnforcesSizeCap(t *testing.T) {
	putter := &fakePutter{}
	img := pngBytes(t)
	store := newTestStore(t, putter, int64(len(img)-1))

	_, err := store.PutLogo(context.Background(), "user-1", bytes.NewReader(img))
	assert.ErrorIs(t, err, ErrTooLarge)
}

func TestPutLogoWrapsUploadError(t *testing.T) {
	boom := errors.New("s3: access denied")
	store := newTestStore(t, &fakePutter{err: boom}, 0)

	_, err := store.PutLogo(context.Background(), "user-1", bytes.NewReader(pngBytes(t)))
	assert.ErrorIs(t, err, boom)
}

func TestDeleteLogoRemovesObject(t *testing.T) {
	putter := &fakePutter{}
	store := newTestStore(t, putter, 0)

	require.NoError(t, store.DeleteLogo(context.Background(), "logos/2026/03/a.png"))
	require.NotNil(t, putter.deleted)
	assert.Equal(t, "logos", *putter.deleted.Bucket)
	assert.Equal(t, "logos/2026/03/a.png", *putter.deleted.Key)

	putter.deleted = nil
	require.NoError(t, store.DeleteLogo(context.Background(), ""))
	assert.Nil(t, putter.deleted)

	boom := errors.New("s3: access denied")
	store = newTestStore(t, &fakePutter{err: boom}, 0)
	assert.ErrorIs(t, store.DeleteLogo(context.Background(), "logos/x.png"), boom)
}

func TestNewS3LogoStoreValidates(t *testing.T) {
	_, err := NewS3LogoStore(nil, S3Config{Bucket: "b"})
	assert.Error(t, err)
	_, err = NewS3LogoStore(&fakePutter{}, S3Config{})
	assert.Error(t, err)
}

func TestNewS3ClientUsesEndpoint(t *testing.T) {
	client, err := NewS3Client(context.Background(), S3Config{
		Region:          "eu-west-2",
		Endpoint:        "http://localhost:9000",
		AccessKeyID:     "minio",
		SecretAccessKey: "minio123",
		UsePathStyle:    true,
	})
	require.NoError(t, err)
	opts := client.Options()
	require.NotNil(t, opts.BaseEndpoint)
	assert.Equal(t, "http://localhost:9000", *opts.BaseEndpoint)
	assert.True(t, opts.UsePathStyle)
	assert.Equal(t, "eu-west-2", opts.Region)
}
