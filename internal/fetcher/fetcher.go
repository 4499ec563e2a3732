// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package fetcher resolves dataset descriptors against the Eurostat
// dissemination endpoint and downloads the inventory, SDMX-ML metadata
// and compressed TSV matrix, backed by an on-disk (optionally
// S3-mirrored) cache and an exponential-backoff retry policy.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"time"

	"github.com/gowthamrao/eurostat-elt/pkg/log"
	"github.com/gowthamrao/eurostat-elt/pkg/model"
	"github.com/jpillora/backoff"
)

// Config governs how a Fetcher talks to the dissemination endpoint.
type Config struct {
	BaseURL        string
	CacheRoot      string
	CacheEnabled   bool
	RequestTimeout time.Duration
	MaxRetries     int
}

// Mirror is the optional object-storage cache tier. nil disables it.
type Mirror interface {
	// Get copies the named object to w, returning (false, nil) on a cache
	// miss rather than an error.
	Get(ctx context.Context, key string, w io.Writer) (bool, error)
	// Put uploads the file at localPath under key, best-effort.
	Put(ctx context.Context, key string, localPath string)
}

// Fetcher acquires remote artifacts with caching and retry/backoff.
type Fetcher struct {
	cfg    Config
	client *http.Client
	cache  *Cache
	mirror Mirror
}

// New builds a Fetcher. mirror may be nil.
func New(cfg Config, mirror Mirror) *Fetcher {
	return &Fetcher{
		cfg: cfg,
		client: &http.Client{
			Timeout: cfg.RequestTimeout,
		},
		cache:  NewCache(cfg.CacheRoot),
		mirror: mirror,
	}
}

// GetInventory returns the local path to the (possibly cached) Table of
// Contents TSV.
func (f *Fetcher) GetInventory(ctx context.Context) (string, error) {
	u := f.endpoint("toc/inventory")
	return f.fetch(ctx, u, "toc.tsv")
}

// GetDSD returns the local path to a dataset's SDMX-ML structure document.
func (f *Fetcher) GetDSD(ctx context.Context, datasetID string) (string, error) {
	u := f.endpoint(path.Join("sdmx", "dsd", datasetID))
	return f.fetch(ctx, u, fmt.Sprintf("dsd-%s.xml", datasetID))
}

// GetCodelist returns the local path to a code list's SDMX-ML document.
func (f *Fetcher) GetCodelist(ctx context.Context, codelistID string) (string, error) {
	u := f.endpoint(path.Join("sdmx", "codelist", codelistID))
	return f.fetch(ctx, u, fmt.Sprintf("codelist-%s.xml", codelistID))
}

// GetTSV returns the local path to a dataset's compressed matrix file.
func (f *Fetcher) GetTSV(ctx context.Context, datasetID string) (string, error) {
	u := f.endpoint(path.Join("sdmx", "bulk", datasetID))
	return f.fetch(ctx, u, fmt.Sprintf("%s.tsv.gz", datasetID))
}

func (f *Fetcher) endpoint(p string) string {
	u, err := url.Parse(f.cfg.BaseURL)
	if err != nil {
		// BaseURL is operator-supplied configuration, validated at
		// startup; reaching here means config validation has a bug.
		log.Fatalf("fetcher: invalid base url %q: %v", f.cfg.BaseURL, err)
	}
	u.Path = path.Join(u.Path, p)
	return u.String()
}

// fetch resolves one artifact: cache hit short-circuits the network call;
// otherwise it downloads with retry, streams to a temp file, and installs
// it into the cache via rename so partial downloads are never observed.
func (f *Fetcher) fetch(ctx context.Context, sourceURL, cacheKey string) (string, error) {
	if f.cfg.CacheEnabled {
		if p, ok := f.cache.Path(cacheKey); ok {
			log.Debugf("fetcher: cache hit for %s", cacheKey)
			return p, nil
		}
		if f.mirror != nil {
			tmp, err := f.cache.OpenTemp(cacheKey)
			if err == nil {
				hit, mErr := f.mirror.Get(ctx, cacheKey, tmp)
				closeErr := tmp.Close()
				if mErr == nil && hit && closeErr == nil {
					finalPath, commitErr := f.cache.Commit(cacheKey, tmp.Name())
					if commitErr == nil {
						log.Debugf("fetcher: mirror hit for %s", cacheKey)
						return finalPath, nil
					}
				}
				_ = f.cache.Abort(tmp.Name())
			}
		}
	}

	path, err := f.download(ctx, sourceURL, cacheKey)
	if err != nil {
		return "", err
	}
	if f.mirror != nil {
		f.mirror.Put(ctx, cacheKey, path)
	}
	return path, nil
}

// download performs the retried HTTP GET and streams the body straight to
// a temp file; it never buffers the whole artifact in memory.
func (f *Fetcher) download(ctx context.Context, sourceURL, cacheKey string) (string, error) {
	b := &backoff.Backoff{
		Min:    200 * time.Millisecond,
		Max:    10 * time.Second,
		Factor: 2,
		Jitter: true,
	}

	var lastErr error
	for attempt := 0; attempt <= f.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			d := b.Duration()
			log.Warnf("fetcher: retrying %s (attempt %d/%d) after %s: %v", sourceURL, attempt, f.cfg.MaxRetries, d, lastErr)
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(d):
			}
		}

		p, err := f.attempt(ctx, sourceURL, cacheKey)
		if err == nil {
			return p, nil
		}
		if notFoundErr(err) {
			return "", err // terminal, not retried
		}
		lastErr = err
	}

	return "", fmt.Errorf("%w: %s: %v", model.ErrFetchTransient, sourceURL, lastErr)
}

func (f *Fetcher) attempt(ctx context.Context, sourceURL, cacheKey string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return "", fmt.Errorf("build request for %s: %w", sourceURL, err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", model.ErrFetchTransient, sourceURL, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return "", fmt.Errorf("%w: %s returned %d", model.ErrFetchNotFound, sourceURL, resp.StatusCode)
	case resp.StatusCode >= 500:
		return "", fmt.Errorf("%w: %s returned %d", model.ErrFetchTransient, sourceURL, resp.StatusCode)
	case resp.StatusCode >= 400:
		return "", fmt.Errorf("%w: %s returned %d", model.ErrFetchNotFound, sourceURL, resp.StatusCode)
	}

	tmp, err := f.cache.OpenTemp(cacheKey)
	if err != nil {
		return "", fmt.Errorf("%w: %v", model.ErrCacheIO, err)
	}
	if _, err := io.Copy(tmp, resp.Body); err != nil {
		_ = tmp.Close()
		_ = f.cache.Abort(tmp.Name())
		return "", fmt.Errorf("%w: %s: %v", model.ErrFetchTransient, sourceURL, err)
	}
	if err := tmp.Close(); err != nil {
		_ = f.cache.Abort(tmp.Name())
		return "", fmt.Errorf("%w: %v", model.ErrCacheIO, err)
	}

	finalPath, err := f.cache.Commit(cacheKey, tmp.Name())
	if err != nil {
		return "", fmt.Errorf("%w: %v", model.ErrCacheIO, err)
	}
	return finalPath, nil
}

func notFoundErr(err error) bool {
	return errors.Is(err, model.ErrFetchNotFound)
}
