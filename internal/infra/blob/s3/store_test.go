package s3

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"pedigreecore/internal/blob/core"
)

type fakeObject struct {
	body        []byte
	contentType string
	metadata    map[string]string
}

// fakeAPI is an in-process bucket that pages listings one key at a time.
type fakeAPI struct {
	mu      sync.Mutex
	objects map[string]fakeObject
	failPut error
}

func newFakeAPI() *fakeAPI { return &fakeAPI{objects: make(map[string]fakeObject)} }

var stamp = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func (f *fakeAPI) HeadObject(_ context.Context, in *awss3.HeadObjectInput, _ ...func(*awss3.Options)) (*awss3.HeadObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	obj, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NotFound{}
	}
	return &awss3.HeadObjectOutput{
		ContentLength: aws.Int64(int64(len(obj.body))),
		ContentType:   aws.String(obj.contentType),
		ETag:          aws.String(`"etag"`),
		Metadata:      obj.metadata,
		LastModified:  aws.Time(stamp),
	}, nil
}

func (f *fakeAPI) PutObject(_ context.Context, in *awss3.PutObjectInput, _ ...func(*awss3.Options)) (*awss3.PutObjectOutput, error) {
	if f.failPut != nil {
		return nil, f.failPut
	}
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[aws.ToString(in.Key)] = fakeObject{body: body, contentType: aws.ToString(in.ContentType), metadata: in.Metadata}
	return &awss3.PutObjectOutput{}, nil
}

func (f *fakeAPI) GetObject(_ context.Context, in *awss3.GetObjectInput, _ ...func(*awss3.Options)) (*awss3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	obj, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &awss3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(obj.body)),
		ContentLength: aws.Int64(int64(len(obj.body))),
		ContentType:   aws.String(obj.contentType),
		Metadata:      obj.metadata,
	}, nil
}

func (f *fakeAPI) DeleteObject(_ context.Context, in *awss3.DeleteObjectInput, _ ...func(*awss3.Options)) (*awss3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, aws.ToString(in.Key))
	return &awss3.DeleteObjectOutput{}, nil
}

func (f *fakeAPI) ListObjectsV2(_ context.Context, in *awss3.ListObjectsV2Input, _ ...func(*awss3.Options)) (*awss3.ListObjectsV2Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, aws.ToString(in.Prefix)) && k > aws.ToString(in.ContinuationToken) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	if len(keys) == 0 {
		return &awss3.ListObjectsV2Output{IsTruncated: aws.Bool(false)}, nil
	}
	k := keys[0]
	out := &awss3.ListObjectsV2Output{
		Contents:    []types.Object{{Key: aws.String(k), Size: aws.Int64(int64(len(f.objects[k].body))), LastModified: aws.Time(stamp)}},
		IsTruncated: aws.Bool(len(keys) > 1),
	}
	if len(keys) > 1 {
		out.NextContinuationToken = aws.String(k)
	}
	return out, nil
}

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	api := newFakeAPI()
	store := NewWithClient(api, "reports")
	if store.Driver() != core.DriverS3 {
		t.Fatalf("unexpected driver")
	}

	info, err := store.Put(ctx, "recompute/2024-01-01/b.json", strings.NewReader("{}"), core.PutOptions{ContentType: "application/json", Metadata: map[string]string{"run_id": "b"}})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Size != 2 || info.ETag != "etag" || info.Metadata["run_id"] != "b" {
		t.Fatalf("unexpected info %+v", info)
	}
	if _, err := store.Put(ctx, "recompute/2024-01-01/b.json", strings.NewReader("{}"), core.PutOptions{}); !errors.Is(err, core.ErrExists) {
		t.Fatalf("expected exists, got %v", err)
	}
	for _, k := range []string{"recompute/2024-01-01/a.json", "recompute/2024-01-02/c.json", "elsewhere"} {
		if _, err := store.Put(ctx, k, strings.NewReader("x"), core.PutOptions{}); err != nil {
			t.Fatalf("put %s: %v", k, err)
		}
	}

	_, rc, err := store.Get(ctx, "recompute/2024-01-01/b.json")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(body) != "{}" {
		t.Fatalf("unexpected body %q", body)
	}

	list, err := store.List(ctx, "recompute/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 3 || list[0].Key != "recompute/2024-01-01/a.json" || list[2].Key != "recompute/2024-01-02/c.json" {
		t.Fatalf("unexpected paged listing %+v", list)
	}

	if ok, err := store.Delete(ctx, "elsewhere"); err != nil || !ok {
		t.Fatalf("expected delete true, got %v %v", ok, err)
	}
	if ok, err := store.Delete(ctx, "elsewhere"); err != nil || ok {
		t.Fatalf("expected delete false, got %v %v", ok, err)
	}
}

func TestStoreNotFoundAndErrors(t *testing.T) {
	ctx := context.Background()
	api := newFakeAPI()
	store := NewWithClient(api, "reports")
	if _, err := store.Head(ctx, "nope"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected not found head, got %v", err)
	}
	if _, _, err := store.Get(ctx, "nope"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected not found get, got %v", err)
	}
	boom := errors.New("throttled")
	api.failPut = boom
	if _, err := store.Put(ctx, "k", strings.NewReader("x"), core.PutOptions{}); !errors.Is(err, boom) {
		t.Fatalf("expected put error, got %v", err)
	}
}

func TestNewValidatesAndAcceptsStaticCredentials(t *testing.T) {
	if _, err := New(context.Background(), Config{}); err == nil {
		t.Fatalf("expected bucket error")
	}
	store, err := New(context.Background(), Config{
		Bucket:          "reports",
		Endpoint:        "http://localhost:9000",
		AccessKeyID:     "AKIA",
		SecretAccessKey: "SECRET",
		PathStyle:       true,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if store.bucket != "reports" {
		t.Fatalf("unexpected bucket %s", store.bucket)
	}
}
