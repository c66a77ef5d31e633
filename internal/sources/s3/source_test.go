package s3

import (
	"bytes"
	"context"
	stderrors "errors"
	"io"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	rconfig "github.com/routefs/routefs/internal/config"
	"github.com/routefs/routefs/internal/filesystem"
	"github.com/routefs/routefs/pkg/errors"
)

var modTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// fakeS3 keeps objects in memory and pages listings pageSize entries at a time
type fakeS3 struct {
	mu       sync.Mutex
	objects  map[string][]byte
	pageSize int
	calls    map[string]int
	failures map[string][]error
}

func newFakeS3() *fakeS3 {
	return &fakeS3{
		objects:  map[string][]byte{},
		pageSize: 1000,
		calls:    map[string]int{},
		failures: map[string][]error{},
	}
}

func (f *fakeS3) failNext(op string, errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[op] = append(f.failures[op], errs...)
}

func (f *fakeS3) begin(op string) error {
	f.calls[op]++
	if pending := f.failures[op]; len(pending) > 0 {
		f.failures[op] = pending[1:]
		return pending[0]
	}
	return nil
}

func (f *fakeS3) callCount(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("get"); err != nil {
		return nil, err
	}
	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &s3types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(data)),
		ContentLength: aws.Int64(int64(len(data))),
	}, nil
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("put"); err != nil {
		return nil, err
	}
	f.objects[aws.ToString(in.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) HeadObject(ctx context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("head"); err != nil {
		return nil, err
	}
	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &s3types.NotFound{}
	}
	return &s3.HeadObjectOutput{
		ContentLength: aws.Int64(int64(len(data))),
		LastModified:  aws.Time(modTime),
	}, nil
}

func (f *fakeS3) ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("list"); err != nil {
		return nil, err
	}

	prefix := aws.ToString(in.Prefix)
	delim := aws.ToString(in.Delimiter)

	type entry struct {
		name     string
		isPrefix bool
	}
	seen := map[string]bool{}
	var entries []entry
	for key := range f.objects {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		rest := key[len(prefix):]
		if i := strings.Index(rest, delim); delim != "" && i >= 0 {
			cp := prefix + rest[:i+1]
			if !seen[cp] {
				seen[cp] = true
				entries = append(entries, entry{cp, true})
			}
			continue
		}
		entries = append(entries, entry{key, false})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].name < entries[j].name })

	start := 0
	if tok := aws.ToString(in.ContinuationToken); tok != "" {
		start, _ = strconv.Atoi(tok)
	}
	limit := f.pageSize
	if in.MaxKeys != nil && int(*in.MaxKeys) < limit {
		limit = int(*in.MaxKeys)
	}
	end := start + limit
	if end > len(entries) {
		end = len(entries)
	}

	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(end < len(entries))}
	for _, e := range entries[start:end] {
		if e.isPrefix {
			out.CommonPrefixes = append(out.CommonPrefixes, s3types.CommonPrefix{Prefix: aws.String(e.name)})
		} else {
			out.Contents = append(out.Contents, s3types.Object{
				Key:  aws.String(e.name),
				Size: aws.Int64(int64(len(f.objects[e.name]))),
			})
		}
	}
	out.KeyCount = aws.Int32(int32(end - start))
	if end < len(entries) {
		out.NextContinuationToken = aws.String(strconv.Itoa(end))
	}
	return out, nil
}

func testConfig() rconfig.S3SourceConfig {
	cfg := rconfig.NewDefault().Sources.S3
	cfg.Retry.BaseDelay = time.Millisecond
	cfg.Retry.MaxDelay = time.Millisecond
	return cfg
}

func mountFake(t *testing.T, api *fakeS3, prefix string, cfg rconfig.S3SourceConfig) *filesystem.FileSystem {
	t.Helper()
	logger, _ := test.NewNullLogger()
	src, err := New(context.Background(), api, "bucket", prefix, cfg, logrus.NewEntry(logger))
	require.NoError(t, err)

	fs := filesystem.New()
	require.NoError(t, src.Register(fs))
	t.Cleanup(func() {
		_ = fs.Close()
		_ = src.Close()
	})
	return fs
}

func readAll(t *testing.T, fs *filesystem.FileSystem, path string) string {
	t.Helper()
	fh, err := fs.Open(path, os.O_RDONLY)
	require.NoError(t, err)
	defer func() { require.NoError(t, fs.Release(fh)) }()

	data, err := fs.Read(fh, 1<<20, 0)
	require.NoError(t, err)
	return string(data)
}

func TestNewRejectsEmptyBucket(t *testing.T) {
	_, err := New(context.Background(), newFakeS3(), "", "", testConfig(), nil)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeSourceInvalid))
}

func TestReadObject(t *testing.T) {
	api := newFakeS3()
	api.objects["data/docs/readme.txt"] = []byte("hello from s3")
	fs := mountFake(t, api, "/data/", testConfig())

	assert.Equal(t, "hello from s3", readAll(t, fs, "/docs/readme.txt"))
}

func TestReadMissingObject(t *testing.T) {
	fs := mountFake(t, newFakeS3(), "", testConfig())

	_, err := fs.Open("/nope", os.O_RDONLY)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeFileNotFound))
}

func TestReadObjectTooLarge(t *testing.T) {
	api := newFakeS3()
	api.objects["big"] = bytes.Repeat([]byte("x"), 2048)
	cfg := testConfig()
	cfg.MaxObjectSize = "1KiB"
	fs := mountFake(t, api, "", cfg)

	_, err := fs.Open("/big", os.O_RDONLY)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeNotSupported))
	assert.Equal(t, 1, api.callCount("get"))
}

func TestWriteUploadsOnRelease(t *testing.T) {
	api := newFakeS3()
	api.objects["notes.txt"] = []byte("old content that is long")
	fs := mountFake(t, api, "", testConfig())

	fh, err := fs.Open("/notes.txt", os.O_WRONLY)
	require.NoError(t, err)
	n, err := fs.Write(fh, []byte("new"), 0)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, 0, api.callCount("put"))

	require.NoError(t, fs.Release(fh))
	assert.Equal(t, "new", string(api.objects["notes.txt"]))
	assert.Equal(t, "new", readAll(t, fs, "/notes.txt"))
}

func TestUploadFailureSurfacesOnFlush(t *testing.T) {
	api := newFakeS3()
	fs := mountFake(t, api, "", testConfig())

	fh, err := fs.Open("/report.csv", os.O_WRONLY)
	require.NoError(t, err)
	_, err = fs.Write(fh, []byte("a,b"), 0)
	require.NoError(t, err)

	api.failNext("put", &smithy.GenericAPIError{Code: "AccessDenied"})
	err = fs.Flush(fh)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodePermissionDenied))
	assert.Equal(t, 1, api.callCount("put"))
	assert.NotContains(t, api.objects, "report.csv")

	// a second close(2) of a dup'd descriptor retries the upload
	require.NoError(t, fs.Flush(fh))
	assert.Equal(t, "a,b", string(api.objects["report.csv"]))

	// nothing changed since the last flush, so release does not upload again
	require.NoError(t, fs.Release(fh))
	assert.Equal(t, 2, api.callCount("put"))
}

func TestReadOnlyRejectsWrites(t *testing.T) {
	api := newFakeS3()
	api.objects["a"] = []byte("a")
	cfg := testConfig()
	cfg.ReadOnly = true
	fs := mountFake(t, api, "", cfg)

	_, err := fs.Open("/a", os.O_WRONLY)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeNotSupported))

	attr, err := fs.Getattr("/a", filesystem.Caller{})
	require.NoError(t, err)
	assert.Equal(t, uint32(0o444), attr.Mode&0o777)
}

func TestStat(t *testing.T) {
	api := newFakeS3()
	api.objects["dir/file.bin"] = []byte("12345")
	fs := mountFake(t, api, "", testConfig())

	attr, err := fs.Getattr("/dir/file.bin", filesystem.Caller{})
	require.NoError(t, err)
	assert.False(t, attr.IsDir())
	assert.Equal(t, int64(5), attr.Size)
	assert.Equal(t, modTime, attr.Mtime)

	attr, err = fs.Getattr("/dir", filesystem.Caller{})
	require.NoError(t, err)
	assert.True(t, attr.IsDir())

	_, err = fs.Getattr("/missing", filesystem.Caller{})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeFileNotFound))
}

func TestListPaginates(t *testing.T) {
	api := newFakeS3()
	api.pageSize = 2
	for _, key := range []string{"p/a", "p/b", "p/c", "p/sub/d", "p/sub/e", "other"} {
		api.objects[key] = []byte(key)
	}
	api.objects["p/sub/"] = nil
	fs := mountFake(t, api, "p", testConfig())

	names, err := fs.Readdir("/")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{".", "..", "a", "b", "c", "sub"}, names)

	names, err = fs.Readdir("/sub")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{".", "..", "d", "e"}, names)
	assert.GreaterOrEqual(t, api.callCount("list"), 3)
}

func TestRetriesTransientErrors(t *testing.T) {
	api := newFakeS3()
	api.objects["flaky"] = []byte("eventually")
	api.failNext("get",
		&smithy.GenericAPIError{Code: "SlowDown", Message: "reduce request rate"},
		&smithy.GenericAPIError{Code: "InternalError", Message: "try again"})
	fs := mountFake(t, api, "", testConfig())

	assert.Equal(t, "eventually", readAll(t, fs, "/flaky"))
	assert.Equal(t, 3, api.callCount("get"))
}

func TestRetryGivesUp(t *testing.T) {
	api := newFakeS3()
	api.objects["down"] = []byte("x")
	cfg := testConfig()
	cfg.Retry.MaxAttempts = 2
	api.failNext("get",
		&smithy.GenericAPIError{Code: "InternalError"},
		&smithy.GenericAPIError{Code: "InternalError"},
		&smithy.GenericAPIError{Code: "InternalError"})
	fs := mountFake(t, api, "", cfg)

	_, err := fs.Open("/down", os.O_RDONLY)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeHandlerFailure))
	assert.Equal(t, 2, api.callCount("get"))
}

func TestAccessDeniedNotRetried(t *testing.T) {
	api := newFakeS3()
	api.objects["secret"] = []byte("x")
	api.failNext("get", &smithy.GenericAPIError{Code: "AccessDenied"})
	fs := mountFake(t, api, "", testConfig())

	_, err := fs.Open("/secret", os.O_RDONLY)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodePermissionDenied))
	assert.Equal(t, 1, api.callCount("get"))
}

func TestPermanentErrorNotRetried(t *testing.T) {
	api := newFakeS3()
	api.objects["x"] = []byte("x")
	api.failNext("get", &smithy.GenericAPIError{Code: "InvalidBucketName", Fault: smithy.FaultClient})
	fs := mountFake(t, api, "", testConfig())

	_, err := fs.Open("/x", os.O_RDONLY)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeHandlerFailure))
	assert.Equal(t, 1, api.callCount("get"))
}

func httpError(status int) error {
	return &smithyhttp.ResponseError{
		Response: &smithyhttp.Response{Response: &http.Response{StatusCode: status}},
		Err:      stderrors.New(http.StatusText(status)),
	}
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"throttled", &smithy.GenericAPIError{Code: "SlowDown"}, true},
		{"request timeout", &smithy.GenericAPIError{Code: "RequestTimeout"}, true},
		{"server fault", &smithy.GenericAPIError{Code: "Weird", Fault: smithy.FaultServer}, true},
		{"client fault", &smithy.GenericAPIError{Code: "InvalidArgument", Fault: smithy.FaultClient}, false},
		{"unknown code", &smithy.GenericAPIError{Code: "InvalidBucketName"}, false},
		{"503", httpError(http.StatusServiceUnavailable), true},
		{"429", httpError(http.StatusTooManyRequests), true},
		{"400", httpError(http.StatusBadRequest), false},
		{"not found", &s3types.NoSuchKey{}, false},
		{"access denied", &smithy.GenericAPIError{Code: "AccessDenied"}, false},
		{"cancelled", context.Canceled, false},
		{"routefs", errors.NewError(errors.ErrCodeNotSupported, "too big"), false},
		{"transport", stderrors.New("connection reset by peer"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, retryable(tt.err))
		})
	}
}
