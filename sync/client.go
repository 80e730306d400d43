package sync

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/carlmjohnson/requests"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

const (
	// DefaultAPIEndpoint is the Analytics Data API base URL.
	DefaultAPIEndpoint = "https://analyticsdata.googleapis.com"

	// PageSize is the fixed row limit of a single report request. Queries
	// reporting more rows are paginated by offset.
	PageSize = 100000

	// MaxRequestTries caps the total attempts for one page request.
	// Hourly quota waits are not counted against it.
	MaxRequestTries = 5
)

// ReportPage is one report API response: its rows, the header names
// defining column order, the total row count for the query, and the hourly
// quota tokens the request consumed.
type ReportPage struct {
	Rows                []Row
	DimensionHeaders    []string
	MetricHeaders       []string
	RowCount            int64
	QuotaTokensConsumed int64
}

// RequestError is an error response from the Analytics Data API.
type RequestError struct {
	StatusCode int
	// Status is the API error status, e.g. "RESOURCE_EXHAUSTED".
	Status  string
	Message string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("analytics data api error %d %s: %s", e.StatusCode, e.Status, e.Message)
}

// QuotaExhausted reports whether the property's hourly quota token bucket
// is empty. This is rate, not failure: callers wait out the hour instead of
// consuming a retry attempt.
func (e *RequestError) QuotaExhausted() bool {
	return e.Status == "RESOURCE_EXHAUSTED"
}

// Retryable reports whether the request should be retried with backoff.
func (e *RequestError) Retryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// TokenProvider supplies a bearer token for the Analytics Data API.
// Acquiring and refreshing OAuth credentials is the credential
// collaborator's job, not this package's.
type TokenProvider interface {
	AccessToken(ctx context.Context) (string, error)
}

// StaticToken is a TokenProvider for an externally managed access token.
type StaticToken string

func (t StaticToken) AccessToken(context.Context) (string, error) {
	return string(t), nil
}

// ReportRunner executes one page request against the report API.
type ReportRunner interface {
	RunReport(ctx context.Context, report Report, rangeStart string, rangeEnd string, offset int64) (*ReportPage, error)
}

// Client runs reports against the Analytics Data API with retry, backoff
// and hourly quota handling.
type Client struct {
	Endpoint string
	Tokens   TokenProvider
	// Transport overrides the HTTP transport, used by tests to replay
	// canned responses.
	Transport http.RoundTripper
	// RecordRequests records API traffic under testdata/.requests for
	// building test fixtures.
	RecordRequests bool

	// now and sleep are indirected so quota waits are testable without
	// blocking for real.
	now   func() time.Time
	sleep func(time.Duration)
}

func NewClient(tokens TokenProvider) *Client {
	return &Client{
		Endpoint: DefaultAPIEndpoint,
		Tokens:   tokens,
		now:      time.Now,
		sleep:    time.Sleep,
	}
}

// apiBuilder returns a new requests.Builder configured for the Analytics
// Data API.
func (c *Client) apiBuilder(propertyID string) *requests.Builder {
	result := requests.
		URL(c.Endpoint).
		Client(&http.Client{Timeout: HTTPRequestTimeout})
	if c.Transport != nil {
		result = result.Transport(c.Transport)
	} else if c.RecordRequests {
		result = result.Transport(requests.Record(nil, fmt.Sprintf("testdata/.requests/%s", propertyID)))
	}
	return result
}

// runReportBody builds the runReport request JSON for one page.
func runReportBody(report Report, rangeStart string, rangeEnd string, offset int64) (string, error) {
	body := "{}"
	var err error
	for i, name := range report.Dimensions {
		body, err = sjson.Set(body, fmt.Sprintf("dimensions.%d.name", i), name)
		if err != nil {
			return "", err
		}
	}
	for i, name := range report.Metrics {
		body, err = sjson.Set(body, fmt.Sprintf("metrics.%d.name", i), name)
		if err != nil {
			return "", err
		}
	}
	body, err = sjson.Set(body, "dateRanges.0.startDate", rangeStart)
	if err != nil {
		return "", err
	}
	body, err = sjson.Set(body, "dateRanges.0.endDate", rangeEnd)
	if err != nil {
		return "", err
	}
	body, err = sjson.Set(body, "limit", strconv.Itoa(PageSize))
	if err != nil {
		return "", err
	}
	body, err = sjson.Set(body, "offset", strconv.FormatInt(offset, 10))
	if err != nil {
		return "", err
	}
	body, err = sjson.Set(body, "returnPropertyQuota", true)
	if err != nil {
		return "", err
	}
	// Numeric date ordering keeps pagination stable across pages
	body, err = sjson.Set(body, "orderBys.0.dimension.dimensionName", "date")
	if err != nil {
		return "", err
	}
	body, err = sjson.Set(body, "orderBys.0.dimension.orderType", "NUMERIC")
	if err != nil {
		return "", err
	}
	return body, nil
}

// runReportOnce performs a single runReport request with no retries.
func (c *Client) runReportOnce(ctx context.Context, report Report, rangeStart string, rangeEnd string, offset int64) (*ReportPage, error) {
	token, err := c.Tokens.AccessToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get access token %w", err)
	}

	body, err := runReportBody(report, rangeStart, rangeEnd, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to build runReport request %w", err)
	}

	statusCode := 0
	var raw string
	err = c.apiBuilder(report.PropertyID).
		Pathf("/v1beta/properties/%s:runReport", report.PropertyID).
		Bearer(token).
		BodyBytes([]byte(body)).
		ContentType("application/json").
		AddValidator(func(res *http.Response) error {
			statusCode = res.StatusCode
			return nil
		}).
		ToString(&raw).
		Fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("runReport request failed %w", err)
	}

	if !gjson.Valid(raw) {
		log.Printf("Invalid Analytics Data API response:\n%s", raw)
		return nil, errors.New("invalid json response")
	}
	parsed := gjson.Parse(raw)

	if statusCode != http.StatusOK {
		return nil, &RequestError{
			StatusCode: statusCode,
			Status:     parsed.Get("error.status").String(),
			Message:    parsed.Get("error.message").String(),
		}
	}

	page := &ReportPage{
		RowCount:            parsed.Get("rowCount").Int(),
		QuotaTokensConsumed: parsed.Get("propertyQuota.tokensPerHour.consumed").Int(),
	}
	for _, header := range parsed.Get("dimensionHeaders.#.name").Array() {
		page.DimensionHeaders = append(page.DimensionHeaders, header.String())
	}
	for _, header := range parsed.Get("metricHeaders.#.name").Array() {
		page.MetricHeaders = append(page.MetricHeaders, header.String())
	}
	for _, row := range parsed.Get("rows").Array() {
		var r Row
		for _, v := range row.Get("dimensionValues.#.value").Array() {
			r.DimensionValues = append(r.DimensionValues, v.String())
		}
		for _, v := range row.Get("metricValues.#.value").Array() {
			r.MetricValues = append(r.MetricValues, v.String())
		}
		page.Rows = append(page.Rows, r)
	}
	return page, nil
}

// SecondsToNextHour returns the seconds until 10 seconds past the top of
// the next UTC hour. The 10 second margin makes sure we don't make another
// request before GA4 resets quota.
func SecondsToNextHour(now time.Time) int {
	now = now.UTC()
	next := now.Add(time.Hour)
	next = time.Date(next.Year(), next.Month(), next.Day(), next.Hour(), 0, 10, 0, time.UTC)
	return int(next.Sub(now) / time.Second)
}

// RunReport executes one page request, retrying transient failures with
// exponential backoff and sleeping out hourly quota exhaustion. Quota
// waits never count against MaxRequestTries; every other error type
// propagates immediately.
func (c *Client) RunReport(ctx context.Context, report Report, rangeStart string, rangeEnd string, offset int64) (*ReportPage, error) {
	delay := time.Second
	tries := 0
	for {
		page, err := c.runReportOnce(ctx, report, rangeStart, rangeEnd, offset)
		if err == nil {
			log.Printf("Request for report: %s from %s -> %s consumed %d GA4 quota tokens",
				report.Name, rangeStart, rangeEnd, page.QuotaTokensConsumed)
			return page, nil
		}

		var reqErr *RequestError
		if !errors.As(err, &reqErr) {
			return nil, err
		}
		if reqErr.QuotaExhausted() {
			seconds := SecondsToNextHour(c.now())
			log.Printf("Reached hourly quota limit. Sleeping %d seconds.", seconds)
			c.sleep(time.Duration(seconds) * time.Second)
			continue
		}
		if !reqErr.Retryable() {
			return nil, err
		}
		tries++
		if tries >= MaxRequestTries {
			return nil, err
		}
		c.sleep(delay)
		delay *= 2
	}
}
