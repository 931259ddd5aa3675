// Package s3store provides a read-only store backed by objects of an S3 bucket.
//
// Every range is fetched with a ranged GetObject call and sizes come from HeadObject. Store implements both
// store.ReadableStore and store.AsyncReadableStore so it can back either zipstore.Adapter or zipstore.AsyncAdapter.
package s3store

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/nguyengg/zipstore/store"
	"github.com/valyala/bytebufferpool"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// DefaultConcurrency is the default number of GetObject calls that GetPartialMany may have in flight.
const DefaultConcurrency = 4

// Client abstracts the APIs that are needed to implement Store.
type Client interface {
	GetObject(context.Context, *s3.GetObjectInput, ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(context.Context, *s3.HeadObjectInput, ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// Options customises New.
type Options struct {
	// KeyPrefix is prepended to every store key to form the S3 object key.
	KeyPrefix string

	// ExpectedBucketOwner is passed to every GetObject and HeadObject call if non-empty.
	ExpectedBucketOwner string

	// Concurrency limits the number of GetObject calls that GetPartialMany may have in flight.
	//
	// Default to DefaultConcurrency.
	Concurrency int

	// RequestsPerSecond limits the rate of GetObject and HeadObject calls.
	//
	// Default to 0 which means no limit.
	RequestsPerSecond float64

	// ModifyGetObjectInput can be used to modify the GetObject input parameters.
	//
	// Its return value will be used to make the GetObject call.
	ModifyGetObjectInput func(*s3.GetObjectInput) *s3.GetObjectInput

	// ModifyHeadObjectInput can be used to modify the HeadObject input parameters.
	//
	// Its return value will be used to make the HeadObject call.
	ModifyHeadObjectInput func(*s3.HeadObjectInput) *s3.HeadObjectInput
}

// Store reads objects of a single bucket.
//
// Store is safe for concurrent use.
type Store struct {
	client                Client
	bucket                string
	keyPrefix             string
	expectedBucketOwner   *string
	concurrency           int
	limiter               *rate.Limiter
	modifyGetObjectInput  func(*s3.GetObjectInput) *s3.GetObjectInput
	modifyHeadObjectInput func(*s3.HeadObjectInput) *s3.HeadObjectInput
}

var (
	_ store.ReadableStore      = (*Store)(nil)
	_ store.AsyncReadableStore = (*Store)(nil)
)

// New returns a Store for the given bucket.
func New(client Client, bucket string, optFns ...func(*Options)) (*Store, error) {
	opts := &Options{
		Concurrency: DefaultConcurrency,
		ModifyGetObjectInput: func(input *s3.GetObjectInput) *s3.GetObjectInput {
			return input
		},
		ModifyHeadObjectInput: func(input *s3.HeadObjectInput) *s3.HeadObjectInput {
			return input
		},
	}
	for _, fn := range optFns {
		fn(opts)
	}

	if bucket == "" {
		return nil, errors.New("bucket must not be empty")
	}
	if opts.Concurrency <= 0 {
		return nil, fmt.Errorf("concurrency (%d) must be a positive integer", opts.Concurrency)
	}

	var limiter *rate.Limiter
	if opts.RequestsPerSecond < 0 {
		return nil, fmt.Errorf("requestsPerSecond (%f) must be a non-negative number", opts.RequestsPerSecond)
	} else if opts.RequestsPerSecond == 0 {
		limiter = rate.NewLimiter(rate.Inf, 0)
	} else {
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), max(1, int(opts.RequestsPerSecond)))
	}

	s := &Store{
		client:                client,
		bucket:                bucket,
		keyPrefix:             opts.KeyPrefix,
		concurrency:           opts.Concurrency,
		limiter:               limiter,
		modifyGetObjectInput:  opts.ModifyGetObjectInput,
		modifyHeadObjectInput: opts.ModifyHeadObjectInput,
	}
	if opts.ExpectedBucketOwner != "" {
		s.expectedBucketOwner = aws.String(opts.ExpectedBucketOwner)
	}

	return s, nil
}

func (s *Store) objectKey(key store.Key) *string {
	return aws.String(s.keyPrefix + string(key))
}

func (s *Store) GetPartial(ctx context.Context, key store.Key, r store.ByteRange) ([]byte, bool, error) {
	return s.get(ctx, key, r)
}

// GetPartialMany fetches every range with its own GetObject call, in parallel.
//
// found is false if any call reports that the object does not exist.
func (s *Store) GetPartialMany(ctx context.Context, key store.Key, ranges []store.ByteRange) (iter.Seq2[[]byte, error], bool, error) {
	bufs := make([][]byte, len(ranges))
	notFound := make([]bool, len(ranges))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, r := range ranges {
		g.Go(func() error {
			data, ok, err := s.get(ctx, key, r)
			bufs[i], notFound[i] = data, !ok
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, true, err
	}

	for _, nf := range notFound {
		if nf {
			return nil, false, nil
		}
	}

	return store.Values(bufs), true, nil
}

func (s *Store) SizeOf(ctx context.Context, key store.Key) (uint64, bool, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return 0, false, err
	}

	headObjectOutput, err := s.client.HeadObject(ctx, s.modifyHeadObjectInput(&s3.HeadObjectInput{
		Bucket:              aws.String(s.bucket),
		Key:                 s.objectKey(key),
		ExpectedBucketOwner: s.expectedBucketOwner,
	}))
	if err != nil {
		if isNotFound(err) {
			return 0, false, nil
		}

		return 0, false, fmt.Errorf(`head "s3://%s/%s" error: %w`, s.bucket, aws.ToString(s.objectKey(key)), err)
	}

	return uint64(aws.ToInt64(headObjectOutput.ContentLength)), true, nil
}

func (s *Store) GetPartialAsync(ctx context.Context, key store.Key, r store.ByteRange) <-chan store.Result[[]byte] {
	return store.Go(ctx, func(ctx context.Context) ([]byte, bool, error) {
		return s.GetPartial(ctx, key, r)
	})
}

func (s *Store) GetPartialManyAsync(ctx context.Context, key store.Key, ranges []store.ByteRange) <-chan store.Result[iter.Seq2[[]byte, error]] {
	return store.Go(ctx, func(ctx context.Context) (iter.Seq2[[]byte, error], bool, error) {
		return s.GetPartialMany(ctx, key, ranges)
	})
}

func (s *Store) SizeOfAsync(ctx context.Context, key store.Key) <-chan store.Result[uint64] {
	return store.Go(ctx, func(ctx context.Context) (uint64, bool, error) {
		return s.SizeOf(ctx, key)
	})
}

// get makes a single ranged GetObject call.
//
// HTTP ranges cannot express an empty range so those are answered with HeadObject instead.
func (s *Store) get(ctx context.Context, key store.Key, r store.ByteRange) ([]byte, bool, error) {
	if r.HTTPRange() == "" {
		return s.empty(ctx, key, r)
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return nil, false, err
	}

	getObjectOutput, err := s.client.GetObject(ctx, s.modifyGetObjectInput(&s3.GetObjectInput{
		Bucket:              aws.String(s.bucket),
		Key:                 s.objectKey(key),
		Range:               aws.String(r.HTTPRange()),
		ExpectedBucketOwner: s.expectedBucketOwner,
	}))
	if err != nil {
		switch {
		case isNotFound(err):
			return nil, false, nil
		case isInvalidRange(err):
			// a range starting exactly at the end of the object is valid but S3 refuses it.
			return s.empty(ctx, key, r)
		}

		return nil, false, fmt.Errorf(`get "s3://%s/%s" range %s error: %w`, s.bucket, aws.ToString(s.objectKey(key)), r, err)
	}
	defer getObjectOutput.Body.Close()

	bb := bytebufferpool.Get()
	defer bytebufferpool.Put(bb)

	if _, err = bb.ReadFrom(getObjectOutput.Body); err != nil {
		return nil, true, fmt.Errorf(`read "s3://%s/%s" range %s error: %w`, s.bucket, aws.ToString(s.objectKey(key)), r, err)
	}

	// S3 clamps ranges that extend past the end of the object.
	if n, ok := r.ExplicitLength(); ok && uint64(bb.Len()) != n {
		size, err := parseContentRange(aws.ToString(getObjectOutput.ContentRange))
		if err != nil {
			return nil, true, err
		}

		return nil, true, &store.InvalidByteRangeError{Range: r, Size: size}
	}

	return append([]byte{}, bb.B...), true, nil
}

// empty answers a request that does not need any byte of the object.
func (s *Store) empty(ctx context.Context, key store.Key, r store.ByteRange) ([]byte, bool, error) {
	size, ok, err := s.SizeOf(ctx, key)
	if err != nil || !ok {
		return nil, ok, err
	}

	if err = r.Validate(size); err != nil {
		return nil, true, err
	}
	if r.Length(size) != 0 {
		return nil, true, fmt.Errorf(`get "s3://%s/%s" range %s error: range rejected for object of size %d`, s.bucket, aws.ToString(s.objectKey(key)), r, size)
	}

	return []byte{}, true, nil
}

func isNotFound(err error) bool {
	var (
		noSuchKey *types.NoSuchKey
		notFound  *types.NotFound
	)

	return errors.As(err, &noSuchKey) || errors.As(err, &notFound)
}

func isInvalidRange(err error) bool {
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode() == "InvalidRange"
}

// parseContentRange returns the total size from a Content-Range value of the form "bytes start-end/size".
func parseContentRange(value string) (uint64, error) {
	_, total, ok := strings.Cut(strings.TrimPrefix(value, "bytes "), "/")
	if !ok {
		return 0, fmt.Errorf("invalid Content-Range %q", value)
	}

	size, err := strconv.ParseUint(total, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid Content-Range %q: %w", value, err)
	}

	return size, nil
}
