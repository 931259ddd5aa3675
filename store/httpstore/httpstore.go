// Package httpstore provides a read-only store backed by HTTP range requests.
//
// A key is resolved against the base URL given to New, so "a/b.zip" with base "https://example.com/data/" is read
// from "https://example.com/data/a/b.zip". The server must support range requests.
package httpstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/nguyengg/zipstore/store"
	"github.com/valyala/bytebufferpool"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// DefaultConcurrency is the default number of requests that GetPartialMany may have in flight.
const DefaultConcurrency = 4

// ErrRangeNotSupported is returned when the server answers a range request with the entire content.
var ErrRangeNotSupported = errors.New("range requests not supported")

// Options customises New.
type Options struct {
	// Client is the HTTP client used for every request.
	//
	// Default to http.DefaultClient.
	Client *http.Client

	// Header is added to every request.
	Header http.Header

	// Concurrency limits the number of requests that GetPartialMany may have in flight.
	//
	// Default to DefaultConcurrency.
	Concurrency int

	// RequestsPerSecond limits the rate of requests.
	//
	// Default to 0 which means no limit.
	RequestsPerSecond float64
}

// WithHeader sets a single header on every request.
func WithHeader(key, value string) func(*Options) {
	return func(opts *Options) {
		if opts.Header == nil {
			opts.Header = make(http.Header)
		}
		opts.Header.Set(key, value)
	}
}

// Store reads the resources under a base URL.
//
// Store is safe for concurrent use.
type Store struct {
	base        *url.URL
	client      *http.Client
	header      http.Header
	concurrency int
	limiter     *rate.Limiter
}

var (
	_ store.ReadableStore      = (*Store)(nil)
	_ store.AsyncReadableStore = (*Store)(nil)
)

// New returns a Store that resolves keys against baseURL.
func New(baseURL string, optFns ...func(*Options)) (*Store, error) {
	opts := &Options{
		Client:      http.DefaultClient,
		Concurrency: DefaultConcurrency,
	}
	for _, fn := range optFns {
		fn(opts)
	}

	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base URL error: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme %q", base.Scheme)
	}
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}

	if opts.Client == nil {
		opts.Client = http.DefaultClient
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

	return &Store{
		base:        base,
		client:      opts.Client,
		header:      opts.Header.Clone(),
		concurrency: opts.Concurrency,
		limiter:     limiter,
	}, nil
}

// URL returns the URL of the given key.
func (s *Store) URL(key store.Key) string {
	return s.base.JoinPath(string(key)).String()
}

func (s *Store) newRequest(ctx context.Context, method string, key store.Key) (*http.Request, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, s.URL(key), http.NoBody)
	if err != nil {
		return nil, err
	}
	for k, values := range s.header {
		for _, v := range values {
			req.Header.Add(k, v)
		}
	}
	if req.Header.Get("Accept-Encoding") == "" {
		req.Header.Set("Accept-Encoding", "identity")
	}

	return req, nil
}

func (s *Store) GetPartial(ctx context.Context, key store.Key, r store.ByteRange) ([]byte, bool, error) {
	return s.get(ctx, key, r)
}

// GetPartialMany makes one range request per range, in parallel.
//
// found is false if any request reports that the resource does not exist.
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

// SizeOf makes a HEAD request; the server must report Content-Length.
func (s *Store) SizeOf(ctx context.Context, key store.Key) (uint64, bool, error) {
	req, err := s.newRequest(ctx, http.MethodHead, key)
	if err != nil {
		return 0, false, err
	}

	res, err := s.client.Do(req)
	if err != nil {
		return 0, false, fmt.Errorf(`head "%s" error: %w`, req.URL, err)
	}
	_ = res.Body.Close()

	switch {
	case res.StatusCode == http.StatusNotFound:
		return 0, false, nil
	case res.StatusCode != http.StatusOK:
		return 0, false, fmt.Errorf(`head "%s" error: %s`, req.URL, res.Status)
	case res.ContentLength < 0:
		return 0, false, nil
	}

	return uint64(res.ContentLength), true, nil
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

// get makes a single range request.
//
// HTTP ranges cannot express an empty range so those are answered with a HEAD request instead.
func (s *Store) get(ctx context.Context, key store.Key, r store.ByteRange) ([]byte, bool, error) {
	if r.HTTPRange() == "" {
		return s.empty(ctx, key, r)
	}

	req, err := s.newRequest(ctx, http.MethodGet, key)
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("Range", r.HTTPRange())

	res, err := s.client.Do(req)
	if err != nil {
		return nil, false, fmt.Errorf(`get "%s" range %s error: %w`, req.URL, r, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, res.Body)
		_ = res.Body.Close()
	}()

	switch res.StatusCode {
	case http.StatusPartialContent:
	case http.StatusNotFound:
		return nil, false, nil
	case http.StatusRequestedRangeNotSatisfiable:
		// a range starting exactly at the end of the resource is valid but servers refuse it.
		return s.empty(ctx, key, r)
	case http.StatusOK:
		return nil, true, fmt.Errorf(`get "%s" range %s error: %w`, req.URL, r, ErrRangeNotSupported)
	default:
		return nil, true, fmt.Errorf(`get "%s" range %s error: %s`, req.URL, r, res.Status)
	}

	bb := bytebufferpool.Get()
	defer bytebufferpool.Put(bb)

	if _, err = bb.ReadFrom(res.Body); err != nil {
		return nil, true, fmt.Errorf(`read "%s" range %s error: %w`, req.URL, r, err)
	}

	// servers clamp ranges that extend past the end of the resource.
	if n, ok := r.ExplicitLength(); ok && uint64(bb.Len()) != n {
		size, err := parseContentRange(res.Header.Get("Content-Range"))
		if err != nil {
			return nil, true, err
		}

		return nil, true, &store.InvalidByteRangeError{Range: r, Size: size}
	}

	return append([]byte{}, bb.B...), true, nil
}

// empty answers a request that does not need any byte of the resource.
func (s *Store) empty(ctx context.Context, key store.Key, r store.ByteRange) ([]byte, bool, error) {
	size, ok, err := s.SizeOf(ctx, key)
	if err != nil || !ok {
		return nil, ok, err
	}

	if err = r.Validate(size); err != nil {
		return nil, true, err
	}
	if r.Length(size) != 0 {
		return nil, true, fmt.Errorf(`get "%s" range %s error: range rejected for resource of size %d`, s.URL(key), r, size)
	}

	return []byte{}, true, nil
}

// parseContentRange returns the total size from a Content-Range value of the form "bytes start-end/size".
func parseContentRange(value string) (uint64, error) {
	_, total, ok := strings.Cut(strings.TrimPrefix(strings.TrimSpace(value), "bytes "), "/")
	if !ok || total == "*" {
		return 0, fmt.Errorf("invalid Content-Range %q", value)
	}

	size, err := strconv.ParseUint(total, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid Content-Range %q: %w", value, err)
	}

	return size, nil
}
