package config

import (
	"net/http"
	"strings"

	"github.com/dustin/go-humanize"
)

// BucketConfig contains configuration settings for a specific bucket.
type BucketConfig struct {
	Bucket              string
	AWSProfile          string
	ExpectedBucketOwner string
	Concurrency         int
	RequestsPerSecond   float64
}

// ForBucket returns configuration for a specific bucket from the section "[s3://bucket]".
func (l *Loader) ForBucket(bucket string) (c BucketConfig) {
	c.Bucket = bucket

	sec, err := l.cfg.GetSection("s3://" + bucket)
	if err != nil {
		return c
	}

	c.AWSProfile = sec.Key("aws-profile").String()
	c.ExpectedBucketOwner = sec.Key("expected-bucket-owner").String()
	c.Concurrency = sec.Key("concurrency").MustInt(0)
	c.RequestsPerSecond = sec.Key("requests-per-second").MustFloat64(0)

	return
}

// ForBucket calls Loader.ForBucket on the DefaultLoader instance.
func ForBucket(bucket string) (c BucketConfig) {
	return DefaultLoader.ForBucket(bucket)
}

// HTTPConfig contains configuration settings for HTTP sources.
type HTTPConfig struct {
	Header            http.Header
	Concurrency       int
	RequestsPerSecond float64
}

// ForURL returns configuration for the given HTTP(S) URL.
//
// The section whose name is the longest prefix of rawURL is used, so "[https://example.com/private/]" takes
// precedence over "[https://example.com]". Keys named "header.<Name>" become request headers.
func (l *Loader) ForURL(rawURL string) (c HTTPConfig) {
	c.Header = make(http.Header)

	var best string
	for _, name := range l.cfg.SectionStrings() {
		if (strings.HasPrefix(name, "http://") || strings.HasPrefix(name, "https://")) &&
			strings.HasPrefix(rawURL, name) && len(name) > len(best) {
			best = name
		}
	}
	if best == "" {
		return c
	}

	sec := l.cfg.Section(best)
	for _, k := range sec.Keys() {
		if name, ok := strings.CutPrefix(k.Name(), "header."); ok {
			c.Header.Add(name, k.String())
		}
	}
	c.Concurrency = sec.Key("concurrency").MustInt(0)
	c.RequestsPerSecond = sec.Key("requests-per-second").MustFloat64(0)

	return
}

// ForURL calls Loader.ForURL on the DefaultLoader instance.
func ForURL(rawURL string) (c HTTPConfig) {
	return DefaultLoader.ForURL(rawURL)
}

// CacheConfig contains the block cache settings for remote sources.
type CacheConfig struct {
	// Blocks is the number of cached blocks; 0 disables the cache.
	Blocks int
	// BlockSize is the size of each block.
	BlockSize uint64
}

// ForCache returns the block cache settings from the section "[cache]".
//
// block-size accepts human-friendly sizes such as "64KiB" or "1 MB".
func (l *Loader) ForCache() (c CacheConfig) {
	sec, err := l.cfg.GetSection("cache")
	if err != nil {
		return c
	}

	c.Blocks = sec.Key("blocks").MustInt(0)
	if v := sec.Key("block-size").String(); v != "" {
		c.BlockSize, _ = humanize.ParseBytes(v)
	}

	return
}

// ForCache calls Loader.ForCache on the DefaultLoader instance.
func ForCache() (c CacheConfig) {
	return DefaultLoader.ForCache()
}
