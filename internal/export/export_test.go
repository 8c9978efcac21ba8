package export

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/szaher/contextd/internal/namespace"
	"github.com/szaher/contextd/internal/store"
	"github.com/szaher/contextd/internal/testutil"
)

type putCall struct {
	bucket, key, body, contentType string
}

type fakePutter struct {
	mu    sync.Mutex
	calls []putCall
	fail  map[string]error
}

func (f *fakePutter) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	body, _ := io.ReadAll(in.Body)
	key := aws.ToString(in.Key)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, putCall{
		bucket:      aws.ToString(in.Bucket),
		key:         key,
		body:        string(body),
		contentType: aws.ToString(in.ContentType),
	})
	if err := f.fail[key]; err != nil {
		return nil, err
	}
	return &s3.PutObjectOutput{}, nil
}

func setup(t *testing.T) (*namespace.Resolver, *store.ArchiveStore) {
	t.Helper()
	r := namespace.NewResolver(t.TempDir())
	return r, store.NewArchiveStore(r)
}

func TestObjectKey(t *testing.T) {
	tests := []struct {
		prefix string
		want   string
	}{
		{"", "1/2/archive.txt"},
		{"contextd", "contextd/1/2/archive.txt"},
		{"a/b", "a/b/1/2/archive.txt"},
	}
	for _, tt := range tests {
		e := New(&fakePutter{}, nil, "bucket", tt.prefix, nil)
		if got := e.ObjectKey(namespace.Key{TenantID: 1, ConversationID: 2}); got != tt.want {
			t.Errorf("prefix %q: ObjectKey = %q, want %q", tt.prefix, got, tt.want)
		}
	}
}

func TestExport(t *testing.T) {
	_, archive := setup(t)
	key := namespace.Key{TenantID: 5, ConversationID: 6}
	if err := archive.Append(context.Background(), key, "[2024-01-01] topic: hello"); err != nil {
		t.Fatal(err)
	}
	putter := &fakePutter{}

	res := New(putter, archive, "archives", "prod", nil).Export(context.Background(), key)
	if res.Err != nil || res.Skipped {
		t.Fatalf("result = %+v", res)
	}
	if len(putter.calls) != 1 {
		t.Fatalf("expected 1 upload, got %d", len(putter.calls))
	}
	call := putter.calls[0]
	if call.bucket != "archives" || call.key != "prod/5/6/archive.txt" {
		t.Errorf("uploaded to %s/%s", call.bucket, call.key)
	}
	if call.body != "\n[2024-01-01] topic: hello\n" {
		t.Errorf("body = %q", call.body)
	}
	if call.contentType != "text/plain; charset=utf-8" {
		t.Errorf("content type = %q", call.contentType)
	}
	if res.Bytes != len(call.body) {
		t.Errorf("Bytes = %d", res.Bytes)
	}
}

func TestExportSkipsEmptyArchive(t *testing.T) {
	_, archive := setup(t)
	putter := &fakePutter{}
	res := New(putter, archive, "b", "", nil).Export(context.Background(), namespace.Key{TenantID: 1, ConversationID: 1})
	if !res.Skipped || res.Err != nil {
		t.Errorf("result = %+v", res)
	}
	if len(putter.calls) != 0 {
		t.Errorf("uploads = %d", len(putter.calls))
	}
}

func TestExportAll(t *testing.T) {
	r, archive := setup(t)
	ctx := context.Background()
	ok := namespace.Key{TenantID: 1, ConversationID: 1}
	bad := namespace.Key{TenantID: 1, ConversationID: 2}
	empty := namespace.Key{TenantID: 2, ConversationID: 1}
	for _, k := range []namespace.Key{ok, bad} {
		if err := archive.Append(ctx, k, "summary"); err != nil {
			t.Fatal(err)
		}
	}
	sys, err := r.Resolve(empty, namespace.ResourceSystem)
	if err != nil {
		t.Fatal(err)
	}
	testutil.WriteFile(t, sys, "prompt")

	putter := &fakePutter{fail: map[string]error{"1/2/archive.txt": errors.New("access denied")}}
	results, err := New(putter, archive, "b", "", nil).ExportAll(ctx, r)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 3 {
		t.Fatalf("results = %+v", results)
	}
	if results[0].Err != nil || results[0].Skipped {
		t.Errorf("ok result = %+v", results[0])
	}
	testutil.AssertErrorContains(t, results[1].Err, "access denied")
	if !results[2].Skipped {
		t.Errorf("empty result = %+v", results[2])
	}
}
