package blobstore

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Clem69B/deglingos-app-sub000/pkg/logging"
)

type mockS3 struct {
	objects  map[string][]byte
	pages    []*s3.ListObjectsV2Output
	listCall int
	deleted  []string
}

func newMockS3() *mockS3 { return &mockS3{objects: map[string][]byte{}} }

func (m *mockS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	body, _ := io.ReadAll(in.Body)
	m.objects[*in.Key] = body
	return &s3.PutObjectOutput{}, nil
}

func (m *mockS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data, ok := m.objects[*in.Key]
	if !ok {
		return nil, &s3types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (m *mockS3) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	data, ok := m.objects[*in.Key]
	if !ok {
		return nil, &s3types.NotFound{}
	}
	return &s3.HeadObjectOutput{ContentLength: aws.Int64(int64(len(data)))}, nil
}

func (m *mockS3) ListObjectsV2(_ context.Context, _ *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	page := m.pages[m.listCall]
	m.listCall++
	return page, nil
}

func (m *mockS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	m.deleted = append(m.deleted, *in.Key)
	return &s3.DeleteObjectOutput{}, nil
}

type fakePresigner struct{ expires time.Duration }

func (f *fakePresigner) PresignGetObject(_ context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	opts := &s3.PresignOptions{}
	for _, fn := range optFns {
		fn(opts)
	}
	f.expires = opts.Expires
	return &v4.PresignedHTTPRequest{URL: "https://docs.s3.amazonaws.com/" + *in.Key + "?X-Amz-Signature=abc"}, nil
}

func TestS3Store_PutGetStat(t *testing.T) {
	mock := newMockS3()
	store := NewS3Store(mock, nil, "clinic-docs", logging.Discard())
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "invoices/inv-1/F2026-0001.pdf", []byte("%PDF-1.7"), "application/pdf"))
	data, err := store.Get(ctx, "invoices/inv-1/F2026-0001.pdf")
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.7", string(data))

	obj, err := store.Stat(ctx, "invoices/inv-1/F2026-0001.pdf")
	require.NoError(t, err)
	assert.Equal(t, int64(8), obj.Size)

	_, err = store.Get(ctx, "invoices/missing.pdf")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.Stat(ctx, "invoices/missing.pdf")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestS3Store_ListFollowsContinuation(t *testing.T) {
	mock := newMockS3()
	mock.pages = []*s3.ListObjectsV2Output{
		{Contents: []s3types.Object{{Key: aws.String("invoices/a.pdf"), Size: aws.Int64(10)}}, IsTruncated: aws.Bool(true), NextContinuationToken: aws.String("t1")},
		{Contents: []s3types.Object{{Key: aws.String("invoices/b.pdf"), Size: aws.Int64(20)}}, IsTruncated: aws.Bool(false)},
	}
	store := NewS3Store(mock, nil, "clinic-docs", logging.Discard())

	objs, err := store.List(context.Background(), "invoices/")
	require.NoError(t, err)
	require.Len(t, objs, 2)
	assert.Equal(t, "invoices/b.pdf", objs[1].Path)
	assert.Equal(t, 2, mock.listCall)
}

func TestS3Store_Presign(t *testing.T) {
	presigner := &fakePresigner{}
	store := NewS3Store(newMockS3(), presigner, "clinic-docs", logging.Discard())

	url, err := store.PresignGetURL(context.Background(), "invoices/inv-1/F2026-0001.pdf", 15*time.Minute)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, "https://docs.s3.amazonaws.com/invoices/inv-1/"))
	assert.Equal(t, 15*time.Minute, presigner.expires)

	_, err = NewS3Store(newMockS3(), nil, "b", nil).PresignGetURL(context.Background(), "x", time.Minute)
	assert.Error(t, err)
}

func TestMemory(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	require.NoError(t, m.Put(ctx, "invoices/inv-1/a.pdf", []byte("one"), "application/pdf"))
	require.NoError(t, m.Put(ctx, "invoices/inv-2/b.pdf", []byte("two"), "application/pdf"))

	objs, err := m.List(ctx, "invoices/inv-1/")
	require.NoError(t, err)
	require.Len(t, objs, 1)

	require.NoError(t, m.Delete(ctx, "invoices/inv-1/a.pdf"))
	_, err = m.Get(ctx, "invoices/inv-1/a.pdf")
	assert.ErrorIs(t, err, ErrNotFound)

	url, err := m.PresignGetURL(ctx, "invoices/inv-2/b.pdf", time.Minute)
	require.NoError(t, err)
	assert.Contains(t, url, "memory://blobs/")
}
