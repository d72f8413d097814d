package resilience

import (
	"context"
	"errors"
	"regexp"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

// Category is the stable identifier downstream decisions key off of. Never
// rename an existing value; add new ones instead.
type Category string

const (
	CategoryRateLimit          Category = "rate_limit"
	CategoryTimeout            Category = "timeout"
	CategoryNetwork            Category = "network"
	CategoryServiceUnavailable Category = "service_unavailable"
	CategoryAuthError          Category = "auth_error"
	CategoryInvalidRequest     Category = "invalid_request"
	CategoryNotFound           Category = "not_found"
	CategoryContextOverflow    Category = "context_overflow"
	CategoryToolError          Category = "tool_error"
	CategoryAgentCrash         Category = "agent_crash"
	CategoryValidationFailed  Category = "validation_failed"
	CategoryUnknown            Category = "unknown"
)

// categoryDefault is the retryability/delay/budget a category carries when
// the error itself doesn't override it (e.g. via Retry-After).
type categoryDefault struct {
	retryable      bool
	suggestDelayMS int
	maxRetries     int
}

var categoryDefaults = map[Category]categoryDefault{
	CategoryRateLimit:          {true, 5000, 5},
	CategoryTimeout:            {true, 1000, 3},
	CategoryNetwork:            {true, 2000, 3},
	CategoryServiceUnavailable: {true, 3000, 3},
	CategoryAuthError:          {false, 0, 0},
	CategoryInvalidRequest:     {false, 0, 0},
	CategoryNotFound:           {false, 0, 0},
	CategoryContextOverflow:    {false, 0, 0},
	CategoryToolError:          {true, 1000, 2},
	CategoryAgentCrash:         {true, 2000, 2},
	CategoryValidationFailed:  {false, 0, 0},
	CategoryUnknown:            {true, 1000, 1},
}

// ClassifiedError is the immutable result of classifying a failure. It is
// never mutated after construction.
type ClassifiedError struct {
	Category         Category
	IsRetryable      bool
	SuggestedDelayMS int
	MaxRetries       int
	Message          string
	Origin           error
	HTTPStatus       *int
	ProviderTag      string
}

func (c ClassifiedError) Error() string { return c.Message }

func (c ClassifiedError) Unwrap() error { return c.Origin }

// ClassifyContext carries optional hints the classifier uses to scope
// provider-specific patterns (e.g. the "overloaded" pattern is scoped to
// claude) and to tag the resulting ClassifiedError.
type ClassifyContext struct {
	Provider      string
	OperationName string
}

// HTTPStatusCoder is implemented by errors that carry a status code
// directly, e.g. an HTTP client error type. Part of the capability-probe
// protocol described in the package's design notes: behavior, not
// identity, decides classification.
type HTTPStatusCoder interface{ StatusCode() int }

// HTTPResponseCarrier is implemented by errors whose failure is nested
// under a response value (the "response.status" / "response.headers"
// shape), mirroring how many HTTP client libraries surface failures.
type HTTPResponseCarrier interface{ Response() *HTTPResponseInfo }

// HTTPResponseInfo is the minimal response shape the classifier inspects.
type HTTPResponseInfo struct {
	Status  int
	Headers map[string]string
}

// CauseCarrier is implemented by errors using the pre-Go-1.13 "Cause()"
// convention instead of (or alongside) Unwrap().
type CauseCarrier interface{ Cause() error }

// statusCategoryTable maps HTTP status codes to categories per §4.1 step 1.
var statusCategoryTable = map[int]Category{
	400: CategoryInvalidRequest,
	401: CategoryAuthError,
	403: CategoryAuthError,
	404: CategoryNotFound,
	408: CategoryTimeout,
	429: CategoryRateLimit,
	500: CategoryServiceUnavailable,
	502: CategoryServiceUnavailable,
	503: CategoryServiceUnavailable,
	504: CategoryTimeout,
}

// messagePattern is one entry in the ordered pattern table of §4.1 step 2.
type messagePattern struct {
	re       *regexp.Regexp
	category Category
	provider string // non-empty: only matches when ClassifyContext.Provider equals this
}

var messagePatterns = []messagePattern{
	{regexp.MustCompile(`(?i)rate.?limit`), CategoryRateLimit, ""},
	{regexp.MustCompile(`(?i)too many requests`), CategoryRateLimit, ""},
	{regexp.MustCompile(`(?i)quota exceeded`), CategoryRateLimit, ""},
	{regexp.MustCompile(`(?i)overloaded`), CategoryServiceUnavailable, "claude"},
	{regexp.MustCompile(`(?i)timed? out`), CategoryTimeout, ""},
	{regexp.MustCompile(`(?i)timeout`), CategoryTimeout, ""},
	{regexp.MustCompile(`(?i)deadline exceeded`), CategoryTimeout, ""},
	{regexp.MustCompile(`(?i)ETIMEDOUT`), CategoryTimeout, ""},
	{regexp.MustCompile(`(?i)network`), CategoryNetwork, ""},
	{regexp.MustCompile(`(?i)ECONN(RESET|REFUSED)`), CategoryNetwork, ""},
	{regexp.MustCompile(`(?i)ENOTFOUND`), CategoryNetwork, ""},
	{regexp.MustCompile(`(?i)socket hang up`), CategoryNetwork, ""},
	{regexp.MustCompile(`(?i)connection refused`), CategoryNetwork, ""},
	{regexp.MustCompile(`(?i)fetch failed`), CategoryNetwork, ""},
	{regexp.MustCompile(`(?i)unauthorized`), CategoryAuthError, ""},
	{regexp.MustCompile(`(?i)authentication`), CategoryAuthError, ""},
	{regexp.MustCompile(`(?i)invalid.*api.?key`), CategoryAuthError, ""},
	{regexp.MustCompile(`(?i)permission denied`), CategoryAuthError, ""},
	{regexp.MustCompile(`(?i)context.*(length|window|limit)`), CategoryContextOverflow, ""},
	{regexp.MustCompile(`(?i)max.?tokens`), CategoryContextOverflow, ""},
	{regexp.MustCompile(`(?i)token limit`), CategoryContextOverflow, ""},
	{regexp.MustCompile(`(?i)too long`), CategoryContextOverflow, ""},
	{regexp.MustCompile(`(?i)tool.*(failed|error)`), CategoryToolError, ""},
	{regexp.MustCompile(`(?i)execution failed`), CategoryToolError, ""},
	{regexp.MustCompile(`(?i)process.*(died|crashed|killed)`), CategoryAgentCrash, ""},
	{regexp.MustCompile(`(?i)SIGTERM|SIGKILL`), CategoryAgentCrash, ""},
	{regexp.MustCompile(`(?i)validation.*(failed|error)`), CategoryValidationFailed, ""},
	{regexp.MustCompile(`(?i)invalid.*(input|request|parameter)`), CategoryInvalidRequest, ""},
}

// Classifier maps arbitrary errors into the category taxonomy of §7. It is
// safe for concurrent use and pure with respect to classification outcome;
// the classifiedCount field exists purely for introspection and never
// affects Classify's return value.
type Classifier struct {
	classifiedCount atomic.Int64
}

// NewClassifier creates a Classifier.
func NewClassifier() *Classifier {
	return &Classifier{}
}

// Classify never panics and never returns an error: any input, including a
// nil error, is normalized into a ClassifiedError.
func (c *Classifier) Classify(err error, ctx ClassifyContext) ClassifiedError {
	c.classifiedCount.Add(1)

	if err == nil {
		return c.finish(CategoryUnknown, "", nil, nil, ctx)
	}

	if status, ok := extractHTTPStatus(err); ok {
		if category, ok := statusCategoryTable[status]; ok {
			s := status
			return c.finish(category, err.Error(), &s, err, ctx)
		}
	}

	msg := err.Error()
	for _, p := range messagePatterns {
		if p.provider != "" && !strings.EqualFold(p.provider, ctx.Provider) {
			continue
		}
		if p.re.MatchString(msg) {
			return c.finish(p.category, msg, nil, err, ctx)
		}
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return c.finish(CategoryTimeout, msg, nil, err, ctx)
	}
	if strings.Contains(strings.ToLower(msg), "fetch") {
		return c.finish(CategoryNetwork, msg, nil, err, ctx)
	}

	return c.finish(CategoryUnknown, msg, nil, err, ctx)
}

// IsRetryable is a convenience wrapper around Classify.
func (c *Classifier) IsRetryable(err error, ctx ClassifyContext) bool {
	return c.Classify(err, ctx).IsRetryable
}

func (c *Classifier) finish(category Category, message string, status *int, origin error, ctx ClassifyContext) ClassifiedError {
	def := categoryDefaults[category]

	delay := def.suggestDelayMS
	if category == CategoryRateLimit {
		if d, ok := extractRetryAfterMS(origin); ok {
			delay = d
		}
	}

	if message == "" && origin != nil {
		message = origin.Error()
	}

	ce := ClassifiedError{
		Category:         category,
		IsRetryable:      def.retryable,
		SuggestedDelayMS: delay,
		MaxRetries:       def.maxRetries,
		Message:          message,
		Origin:           origin,
		HTTPStatus:       status,
		ProviderTag:      ctx.Provider,
	}
	if !ce.IsRetryable {
		ce.MaxRetries = 0
		ce.SuggestedDelayMS = 0
	}
	return ce
}

// extractHTTPStatus walks direct fields, the nested response shape, and the
// Unwrap/Cause chains looking for a status code.
func extractHTTPStatus(err error) (int, bool) {
	for cur := err; cur != nil; {
		if sc, ok := cur.(HTTPStatusCoder); ok {
			return sc.StatusCode(), true
		}
		if rc, ok := cur.(HTTPResponseCarrier); ok {
			if resp := rc.Response(); resp != nil {
				return resp.Status, true
			}
		}
		switch next := cur.(type) {
		case interface{ Unwrap() error }:
			cur = next.Unwrap()
		case CauseCarrier:
			cur = next.Cause()
		default:
			return 0, false
		}
	}
	return 0, false
}

// extractRetryAfterMS walks the same chain looking for response headers
// carrying a Retry-After value, per §4.1: an integer number of seconds, an
// HTTP date, or a bare numeric field. The result is clamped at 0.
func extractRetryAfterMS(err error) (int, bool) {
	for cur := err; cur != nil; {
		if rc, ok := cur.(HTTPResponseCarrier); ok {
			if resp := rc.Response(); resp != nil && resp.Headers != nil {
				if v, ok := resp.Headers["Retry-After"]; ok {
					return parseRetryAfter(v)
				}
				if v, ok := resp.Headers["retry-after"]; ok {
					return parseRetryAfter(v)
				}
			}
		}
		switch next := cur.(type) {
		case interface{ Unwrap() error }:
			cur = next.Unwrap()
		case CauseCarrier:
			cur = next.Cause()
		default:
			return 0, false
		}
	}
	return 0, false
}

func parseRetryAfter(v string) (int, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, false
	}
	if seconds, err := strconv.Atoi(v); err == nil {
		return clampNonNegativeMS(seconds * 1000), true
	}
	if t, err := time.Parse(time.RFC1123, v); err == nil {
		return clampNonNegativeMS(int(time.Until(t).Milliseconds())), true
	}
	if t, err := time.Parse(http1123WithoutTZName, v); err == nil {
		return clampNonNegativeMS(int(time.Until(t).Milliseconds())), true
	}
	return 0, false
}

// http1123WithoutTZName is a tolerant fallback for Retry-After dates that
// omit a named timezone (Go's time.RFC1123 requires one).
const http1123WithoutTZName = "Mon, 02 Jan 2006 15:04:05 -0700"

func clampNonNegativeMS(ms int) int {
	if ms < 0 {
		return 0
	}
	return ms
}
