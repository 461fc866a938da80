package content

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

type mockS3Client struct {
	mu      sync.Mutex
	objects map[string][]byte
	gets    int
	getErr  error
}

func newMockS3Client() *mockS3Client {
	return &mockS3Client{objects: make(map[string][]byte)}
}

func (m *mockS3Client) PutObject(_ context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.objects[*params.Key] = data
	m.mu.Unlock()
	return &s3.PutObjectOutput{}, nil
}

func (m *mockS3Client) GetObject(_ context.Context, params *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gets++
	if m.getErr != nil {
		return nil, m.getErr
	}
	data, ok := m.objects[*params.Key]
	if !ok {
		msg := fmt.Sprintf("key %q not found", *params.Key)
		return nil, &types.NoSuchKey{Message: &msg}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (m *mockS3Client) DeleteObject(_ context.Context, params *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	m.mu.Lock()
	delete(m.objects, *params.Key)
	m.mu.Unlock()
	return &s3.DeleteObjectOutput{}, nil
}

func TestS3Store_PutGet(t *testing.T) {
	client := newMockS3Client()
	s := NewS3Store(client, "bucket", "tenant-a/")
	ctx := context.Background()

	if err := s.Put(ctx, 3, []byte("body")); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, ok := client.objects["tenant-a/campaigns/3.html"]; !ok {
		t.Errorf("expected prefixed key, have %v", client.objects)
	}

	got, err := s.Get(ctx, 3)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got) != "body" {
		t.Errorf("expected body, got %q", got)
	}
}

func TestS3Store_GetMissing(t *testing.T) {
	s := NewS3Store(newMockS3Client(), "bucket", "")
	if _, err := s.Get(context.Background(), 99); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestS3Store_GetError(t *testing.T) {
	client := newMockS3Client()
	client.getErr = errors.New("throttled")
	s := NewS3Store(client, "bucket", "")

	_, err := s.Get(context.Background(), 1)
	if err == nil || errors.Is(err, ErrNotFound) {
		t.Errorf("expected wrapped backend error, got %v", err)
	}
}

func TestS3Store_Delete(t *testing.T) {
	client := newMockS3Client()
	s := NewS3Store(client, "bucket", "")
	ctx := context.Background()

	_ = s.Put(ctx, 5, []byte("x"))
	if err := s.Delete(ctx, 5); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(client.objects) != 0 {
		t.Errorf("expected bucket empty, have %d objects", len(client.objects))
	}
}
