package s3

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/avast/retry-go/v4"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"
	"github.com/sirupsen/logrus"

	rconfig "github.com/routefs/routefs/internal/config"
	"github.com/routefs/routefs/internal/filesystem"
	"github.com/routefs/routefs/pkg/errors"
	"github.com/routefs/routefs/pkg/stream"
	"github.com/routefs/routefs/pkg/types"
)

// KeyParam is the capture name the source registers its file routes under
const KeyParam = "key"

const delimiter = "/"

// Source exposes the objects under a bucket prefix as files. Prefixes
// delimited by "/" appear as directories.
type Source struct {
	ctx      context.Context
	api      API
	bucket   string
	prefix   string
	readOnly bool
	maxSize  int64
	retry    []retry.Option
	logger   *logrus.Entry
}

// New creates a source for bucket/prefix. ctx bounds every request the
// source makes for the lifetime of the mount.
func New(ctx context.Context, api API, bucket, prefix string, cfg rconfig.S3SourceConfig, logger *logrus.Entry) (*Source, error) {
	if bucket == "" {
		return nil, errors.NewError(errors.ErrCodeSourceInvalid, "bucket name cannot be empty").
			WithComponent("s3")
	}
	maxSize, err := cfg.MaxObjectBytes()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}

	prefix = strings.Trim(prefix, delimiter)
	if prefix != "" {
		prefix += delimiter
	}

	attempts := cfg.Retry.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	return &Source{
		ctx:      ctx,
		api:      api,
		bucket:   bucket,
		prefix:   prefix,
		readOnly: cfg.ReadOnly,
		maxSize:  maxSize,
		retry: []retry.Option{
			retry.Context(ctx),
			retry.Attempts(uint(attempts)),
			retry.Delay(cfg.Retry.BaseDelay),
			retry.MaxDelay(cfg.Retry.MaxDelay),
			retry.DelayType(retry.BackOffDelay),
			retry.RetryIf(retryable),
			retry.LastErrorOnly(true),
		},
		logger: logger.WithFields(logrus.Fields{"bucket": bucket, "prefix": prefix}),
	}, nil
}

// Register installs the source's handlers on fs: every path below the root
// maps to the key of the same name.
func (s *Source) Register(fs *filesystem.FileSystem) error {
	filePattern := "*" + KeyParam

	if err := fs.OnRead(filePattern, s.read); err != nil {
		return err
	}
	if !s.readOnly {
		if err := fs.OnWrite(filePattern, s.write); err != nil {
			return err
		}
	}
	if err := fs.OnStat(filePattern, s.stat); err != nil {
		return err
	}
	if err := fs.OnList("/", s.list); err != nil {
		return err
	}
	return fs.OnList(filePattern, s.list)
}

// Close is a no-op; the SDK client holds no per-source state
func (s *Source) Close() error {
	return nil
}

func (s *Source) key(params types.Params) string {
	return s.prefix + params.Get(KeyParam)
}

func (s *Source) read(_ string, params types.Params) (types.Stream, error) {
	key := s.key(params)

	var data []byte
	err := s.do(func() error {
		out, err := s.api.GetObject(s.ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			return err
		}
		defer out.Body.Close()

		if s.maxSize > 0 && aws.ToInt64(out.ContentLength) > s.maxSize {
			return s.tooLarge(key, aws.ToInt64(out.ContentLength))
		}
		body := io.Reader(out.Body)
		if s.maxSize > 0 {
			body = io.LimitReader(out.Body, s.maxSize+1)
		}
		data, err = io.ReadAll(body)
		if err != nil {
			return err
		}
		if s.maxSize > 0 && int64(len(data)) > s.maxSize {
			return s.tooLarge(key, int64(len(data)))
		}
		return nil
	})
	if err != nil {
		return nil, s.translate(err, "get", key)
	}

	s.logger.WithField("key", key).WithField("size", len(data)).Debug("Fetched object")
	return stream.NewBuffer(data), nil
}

// write starts every session empty and uploads the final content on release
func (s *Source) write(_ string, params types.Params) (types.Stream, error) {
	key := s.key(params)
	return stream.NewBufferWithClose(nil, func(data []byte) error {
		return s.put(key, data)
	}), nil
}

func (s *Source) put(key string, data []byte) error {
	if s.maxSize > 0 && int64(len(data)) > s.maxSize {
		return s.tooLarge(key, int64(len(data)))
	}

	err := s.do(func() error {
		_, err := s.api.PutObject(s.ctx, &s3.PutObjectInput{
			Bucket:        aws.String(s.bucket),
			Key:           aws.String(key),
			Body:          bytes.NewReader(data),
			ContentLength: aws.Int64(int64(len(data))),
		})
		return err
	})
	if err != nil {
		return s.translate(err, "put", key)
	}

	s.logger.WithField("key", key).WithField("size", len(data)).Debug("Uploaded object")
	return nil
}

func (s *Source) stat(_ string, params types.Params) (*types.Attr, error) {
	key := s.key(params)

	var head *s3.HeadObjectOutput
	err := s.do(func() error {
		var err error
		head, err = s.api.HeadObject(s.ctx, &s3.HeadObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		})
		return err
	})
	if err == nil {
		mtime := aws.ToTime(head.LastModified)
		return &types.Attr{
			Mode:  types.ModeRegular | s.filePerm(),
			Nlink: 1,
			UID:   types.UnsetID,
			GID:   types.UnsetID,
			Size:  aws.ToInt64(head.ContentLength),
			Atime: mtime,
			Mtime: mtime,
			Ctime: mtime,
		}, nil
	}
	if !isNotFound(err) {
		return nil, s.translate(err, "head", key)
	}

	isDir, err := s.hasChildren(key + delimiter)
	if err != nil {
		return nil, s.translate(err, "list", key)
	}
	if !isDir {
		return nil, s.translate(&s3types.NotFound{}, "head", key)
	}
	return &types.Attr{
		Mode:  filesystem.DirMode,
		Nlink: 2,
		UID:   types.UnsetID,
		GID:   types.UnsetID,
	}, nil
}

func (s *Source) hasChildren(prefix string) (bool, error) {
	var found bool
	err := s.do(func() error {
		out, err := s.api.ListObjectsV2(s.ctx, &s3.ListObjectsV2Input{
			Bucket:  aws.String(s.bucket),
			Prefix:  aws.String(prefix),
			MaxKeys: aws.Int32(1),
		})
		if err != nil {
			return err
		}
		found = len(out.Contents) > 0 || len(out.CommonPrefixes) > 0
		return nil
	})
	return found, err
}

func (s *Source) list(_ string, params types.Params) ([]string, error) {
	prefix := s.prefix
	if rel := params.Get(KeyParam); rel != "" {
		prefix += rel + delimiter
	}

	var names []string
	paginator := s3.NewListObjectsV2Paginator(s.api, &s3.ListObjectsV2Input{
		Bucket:    aws.String(s.bucket),
		Prefix:    aws.String(prefix),
		Delimiter: aws.String(delimiter),
	})
	for paginator.HasMorePages() {
		var page *s3.ListObjectsV2Output
		err := s.do(func() error {
			var err error
			page, err = paginator.NextPage(s.ctx)
			return err
		})
		if err != nil {
			return nil, s.translate(err, "list", prefix)
		}

		for _, cp := range page.CommonPrefixes {
			name := strings.TrimSuffix(strings.TrimPrefix(aws.ToString(cp.Prefix), prefix), delimiter)
			if name != "" {
				names = append(names, name)
			}
		}
		for _, obj := range page.Contents {
			name := strings.TrimPrefix(aws.ToString(obj.Key), prefix)
			// directory markers created by consoles and other tools
			if name == "" || strings.Contains(name, delimiter) {
				continue
			}
			names = append(names, name)
		}
	}
	return names, nil
}

func (s *Source) filePerm() uint32 {
	if s.readOnly {
		return 0o444
	}
	return 0o644
}

func (s *Source) do(fn func() error) error {
	return retry.Do(fn, s.retry...)
}

func (s *Source) tooLarge(key string, size int64) error {
	return errors.Newf(errors.ErrCodeNotSupported,
		"object %s is %d bytes, larger than the %d byte limit", key, size, s.maxSize).
		WithComponent("s3")
}

// translate maps SDK errors to routefs error codes
func (s *Source) translate(err error, operation, key string) error {
	if _, ok := errors.AsRouteFSError(err); ok {
		return err
	}

	var code errors.ErrorCode
	switch {
	case isNotFound(err):
		code = errors.ErrCodeFileNotFound
	case isAccessDenied(err):
		code = errors.ErrCodePermissionDenied
	default:
		code = errors.ErrCodeHandlerFailure
		s.logger.WithError(err).WithField("key", key).Warnf("S3 %s failed", operation)
	}
	return errors.Wrap(err, code, fmt.Sprintf("%s %s", operation, key)).
		WithComponent("s3").
		WithOperation(operation).
		WithContext("bucket", s.bucket)
}

// retryableCodes are S3 error codes for throttling and server faults
var retryableCodes = map[string]bool{
	"SlowDown":                 true,
	"Throttling":               true,
	"ThrottlingException":      true,
	"RequestLimitExceeded":     true,
	"TooManyRequestsException": true,
	"RequestTimeout":           true,
	"InternalError":            true,
	"ServiceUnavailable":       true,
}

// retryable retries throttling, 5xx responses and failures that never got a
// response. Other API errors are permanent.
func retryable(err error) bool {
	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if _, ok := errors.AsRouteFSError(err); ok {
		return false
	}
	if isNotFound(err) || isAccessDenied(err) {
		return false
	}
	if retryableCodes[apiErrorCode(err)] {
		return true
	}

	var respErr *smithyhttp.ResponseError
	if stderrors.As(err, &respErr) {
		status := respErr.HTTPStatusCode()
		return status == http.StatusTooManyRequests || status >= http.StatusInternalServerError
	}

	var apiErr smithy.APIError
	if stderrors.As(err, &apiErr) {
		return apiErr.ErrorFault() == smithy.FaultServer
	}
	return true
}

func isNotFound(err error) bool {
	if isErrorType[*s3types.NoSuchKey](err) || isErrorType[*s3types.NotFound](err) {
		return true
	}
	switch apiErrorCode(err) {
	case "NotFound", "NoSuchKey":
		return true
	}
	return false
}

func isAccessDenied(err error) bool {
	switch apiErrorCode(err) {
	case "AccessDenied", "Forbidden":
		return true
	}
	return false
}

func apiErrorCode(err error) string {
	var apiErr smithy.APIError
	if stderrors.As(err, &apiErr) {
		return apiErr.ErrorCode()
	}
	return ""
}

func isErrorType[T error](err error) bool {
	var target T
	return stderrors.As(err, &target)
}

// compile-time check that the SDK client satisfies API
var _ API = (*s3.Client)(nil)
