// Package httpsource is a source provider that gets the news of each source
// from an HTTP server.
//
// The server serves the list of source names at GET <base>/sources as
//
//	{"sources": ["baidu", "zhihu"]}
//
// and the news of one source at GET <base>/<source>.
package httpsource

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	logging "github.com/ipfs/go-log/v2"
	"github.com/pa-hotnews/go-srcagg/apierror"
	"github.com/pa-hotnews/go-srcagg/source"
)

var log = logging.Logger("srcagg/httpsource")

const (
	sourcesPath = "sources"
	// bustParam is a query parameter whose value changes every minute, so
	// that a busted request misses server side response caches.
	bustParam  = "v"
	bustLayout = "200601021504"
)

// Failure reasons reported by Source.
const (
	ReasonNetwork = "network"
	ReasonParse   = "parse"
)

// Source fetches news from an HTTP server.
type Source struct {
	url    *url.URL
	client *http.Client
	header http.Header
}

var (
	_ source.Provider[*News] = (*Source)(nil)
	_ source.Lister          = (*Source)(nil)
)

// New creates a Source that gets news from the server at baseURL.
func New(baseURL string, options ...Option) (*Source, error) {
	opts, err := getOpts(options)
	if err != nil {
		return nil, err
	}

	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("url must have http or https scheme: %s", baseURL)
	}

	client := opts.client
	if client == nil {
		client = http.DefaultClient
	}
	if opts.retryMax != 0 {
		rclient := &retryablehttp.Client{
			HTTPClient:   client,
			RetryWaitMin: opts.retryWaitMin,
			RetryWaitMax: opts.retryWaitMax,
			RetryMax:     opts.retryMax,
			CheckRetry:   retryablehttp.DefaultRetryPolicy,
			Backoff:      retryablehttp.DefaultBackoff,
			// Return the last response so its status is reported.
			ErrorHandler: retryablehttp.PassthroughErrorHandler,
			Logger:       retryLogger{},
		}
		client = rclient.StandardClient()
	}

	return &Source{
		url:    u,
		client: client,
		header: opts.header,
	}, nil
}

// Fetch gets the news of one source. If source.IsBust(ctx), the request
// carries a query parameter that bypasses server response caching.
func (s *Source) Fetch(ctx context.Context, id source.ID) (*News, error) {
	u := s.url.JoinPath(string(id))
	if source.IsBust(ctx) {
		q := u.Query()
		q.Set(bustParam, time.Now().UTC().Format(bustLayout))
		u.RawQuery = q.Encode()
	}
	body, err := s.get(ctx, u)
	if err != nil {
		if apierror.IsStatus(err, http.StatusNotFound) {
			return nil, &source.NotFoundError{ID: id}
		}
		return nil, err
	}

	news, err := DecodeNews(body)
	if err != nil {
		return nil, source.NewProviderError(ReasonParse, err)
	}
	return news, nil
}

// Sources gets the names of all sources served.
func (s *Source) Sources(ctx context.Context) ([]string, error) {
	body, err := s.get(ctx, s.url.JoinPath(sourcesPath))
	if err != nil {
		return nil, err
	}
	var resp struct {
		Sources []string `json:"sources"`
	}
	if err = json.Unmarshal(body, &resp); err != nil {
		return nil, source.NewProviderError(ReasonParse, err)
	}
	return resp.Sources, nil
}

func (s *Source) String() string {
	return s.url.String()
}

func (s *Source) get(ctx context.Context, u *url.URL) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	for key, vals := range s.header {
		for _, val := range vals {
			req.Header.Add(key, val)
		}
	}
	req.Header.Add("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		// Leave context errors unwrapped so that the caller sees a timeout.
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, source.NewProviderError(ReasonNetwork, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, source.NewProviderError(ReasonNetwork, err)
	}

	if resp.StatusCode != http.StatusOK {
		apiErr := apierror.FromResponse(resp.StatusCode, body)
		if resp.StatusCode == http.StatusNotFound {
			return nil, apiErr
		}
		var statusErr *apierror.Error
		if errors.As(apiErr, &statusErr) {
			log.Debugw("Source server returned error", "url", u, "status", statusErr.Text())
		}
		return nil, source.NewProviderError(fmt.Sprintf("http_%d", resp.StatusCode), apiErr)
	}
	return body, nil
}

// retryLogger sends retryablehttp messages to the package logger.
type retryLogger struct{}

func (retryLogger) Error(msg string, kv ...interface{}) { log.Errorw(msg, kv...) }
func (retryLogger) Info(msg string, kv ...interface{})  { log.Debugw(msg, kv...) }
func (retryLogger) Debug(msg string, kv ...interface{}) { log.Debugw(msg, kv...) }
func (retryLogger) Warn(msg string, kv ...interface{})  { log.Warnw(msg, kv...) }

var _ retryablehttp.LeveledLogger = retryLogger{}
