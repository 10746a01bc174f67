// Package bigmarker speaks the BigMarker REST API: API-KEY header auth,
// page/per_page pagination and the envelope formats its endpoints return.
package bigmarker

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"tap-bigmarker/lib/restyutil"
	"tap-bigmarker/lib/telemetry"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

// ErrNotFound is returned on a 404. Child endpoints 404 routinely when a
// conference has no handouts or surveys, callers treat it as an empty set.
var ErrNotFound = fmt.Errorf("resource not found")

const (
	defaultPageSize   = 10
	defaultRps        = 4
	defaultRetryWait  = time.Second * 10
	defaultMaxRetries = 9999

	// after this many failed attempts of a single request, the
	// underlying connections are torn down and redialed
	sessionResetThreshold = 5
)

var instrumentOutput restyutil.InstrumentOutput

// SetRestyInstrumentOutput makes clients created afterwards dump every HTTP
// exchange to the given output.
func SetRestyInstrumentOutput(output restyutil.InstrumentOutput) {
	instrumentOutput = output
}

type Client struct {
	BaseUrl  *url.URL
	Http     *resty.Client
	PageSize int

	limiter *rate.Limiter
}

type ClientOptions struct {
	BaseUrl string
	ApiKey  string
	// overrides the randomized browser user agent
	UserAgent string
	// per_page request parameter, defaults to 10
	PageSize int
	// client-side rate limit, defaults to 4 req/s
	RequestsPerSecond float64
	// retry pacing, overridable so tests don't sleep for real
	RetryWait  time.Duration
	MaxRetries int
}

func NewClient(opts ClientOptions) (*Client, error) {
	if opts.BaseUrl == "" {
		return nil, fmt.Errorf("api_url is required")
	}
	if opts.ApiKey == "" {
		return nil, fmt.Errorf("api_key is required")
	}
	baseUrl, err := url.Parse(opts.BaseUrl)
	if err != nil {
		return nil, fmt.Errorf("parse api_url: %w", err)
	}

	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	rps := opts.RequestsPerSecond
	if rps <= 0 {
		rps = defaultRps
	}
	retryWait := opts.RetryWait
	if retryWait <= 0 {
		retryWait = defaultRetryWait
	}
	maxRetries := opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}

	limiter := rate.NewLimiter(rate.Limit(rps), 1)

	client := resty.New()
	client.SetBaseURL(opts.BaseUrl)
	client.SetHeader("API-KEY", opts.ApiKey)
	client.SetTimeout(time.Second * 30)
	client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)
	if opts.UserAgent != "" {
		client.SetHeader("user-agent", opts.UserAgent)
	}

	client.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		return limiter.Wait(req.Context())
	})

	// constant-interval retry, the API rate limits aggressively and
	// recovers on its own schedule
	client.SetRetryCount(maxRetries)
	client.SetRetryWaitTime(retryWait)
	client.SetRetryMaxWaitTime(retryWait)
	client.AddRetryCondition(func(res *resty.Response, err error) bool {
		if err != nil {
			return true
		}
		return retriableStatus(res.StatusCode())
	})
	client.AddRetryHook(func(res *resty.Response, err error) {
		if res != nil && res.Request.Attempt >= sessionResetThreshold {
			// mirrors the session reset the API sometimes needs to
			// start serving a stuck client again
			client.GetClient().CloseIdleConnections()
		}
	})

	telemetry.InstrumentResty(client, "bigmarker/http")
	restyutil.InstrumentClient(client, instrumentOutput)

	return &Client{
		BaseUrl:  baseUrl,
		Http:     client,
		PageSize: pageSize,
		limiter:  limiter,
	}, nil
}

func retriableStatus(status int) bool {
	return status == 408 || status == 429 || status >= 500
}

// FetchOptions describes one endpoint visit. RecordsKey names the top-level
// array holding records ("" means the response body itself is the array).
type FetchOptions struct {
	Method     string
	Path       string
	RecordsKey string
	// query parameter carrying the page number, defaults to "page"
	PageKey string
	// keep requesting pages until one comes back empty
	Paginate bool
	// extra query parameters, e.g. start_time on conference search
	Query url.Values
}

// Fetch walks an endpoint and calls fn for each record. Pagination follows
// the API's convention: the first request carries no page parameter, later
// ones count up from 2, and iteration stops at the first empty page.
func (c *Client) Fetch(ctx context.Context, opts FetchOptions, fn func(record map[string]any) error) error {
	pageKey := opts.PageKey
	if pageKey == "" {
		pageKey = "page"
	}

	page := 1
	for {
		query := url.Values{}
		for k, vs := range opts.Query {
			query[k] = vs
		}
		query.Set("per_page", strconv.Itoa(c.PageSize))
		if page > 1 {
			query.Set(pageKey, strconv.Itoa(page))
		}

		records, err := c.fetchPage(ctx, opts.Method, opts.Path, query, opts.RecordsKey)
		if err != nil {
			return err
		}
		for _, record := range records {
			if err := fn(record); err != nil {
				return err
			}
		}

		if !opts.Paginate || len(records) == 0 {
			return nil
		}
		page++
	}
}

func (c *Client) fetchPage(ctx context.Context, method, path string, query url.Values, recordsKey string) ([]map[string]any, error) {
	res, err := c.Http.R().
		SetContext(ctx).
		SetQueryParamsFromValues(query).
		Execute(method, path)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	if res.StatusCode() == 404 {
		return nil, ErrNotFound
	}
	if res.IsError() {
		return nil, fmt.Errorf("%s %s: status %d", method, path, res.StatusCode())
	}

	return parseRecords(res.Body(), recordsKey)
}

func parseRecords(body []byte, recordsKey string) ([]map[string]any, error) {
	var raw []any
	if recordsKey == "" {
		if err := json.Unmarshal(body, &raw); err != nil {
			return nil, fmt.Errorf("parse response array: %w", err)
		}
	} else {
		var envelope map[string]json.RawMessage
		if err := json.Unmarshal(body, &envelope); err != nil {
			return nil, fmt.Errorf("parse response envelope: %w", err)
		}
		inner, ok := envelope[recordsKey]
		if !ok {
			// endpoints omit the key entirely when there is nothing
			return nil, nil
		}
		if err := json.Unmarshal(inner, &raw); err != nil {
			return nil, fmt.Errorf("parse %q array: %w", recordsKey, err)
		}
	}

	records := make([]map[string]any, 0, len(raw))
	for _, item := range raw {
		record, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("record is a %T, not an object", item)
		}
		records = append(records, record)
	}
	return records, nil
}
