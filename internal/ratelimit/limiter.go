// Package ratelimit implements fixed-window admission control for gin routes.
//
// A fixed window admits up to Max requests per key between WindowStart and
// ResetAt. Bursts straddling a window boundary may therefore see up to 2×Max
// requests admitted within one Window span.
package ratelimit

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/wayfarer-erp/backend/internal/logger"
	"github.com/wayfarer-erp/backend/internal/metrics"
	"github.com/wayfarer-erp/backend/internal/util"
)

const (
	DefaultWindow     = 15 * time.Minute
	DefaultMax        = 100
	DefaultMessage    = "Too many requests from this client, please try again later."
	DefaultStatusCode = http.StatusTooManyRequests

	HeaderLimit     = "X-RateLimit-Limit"
	HeaderRemaining = "X-RateLimit-Remaining"
	HeaderReset     = "X-RateLimit-Reset"

	resetTimeFormat = "2006-01-02T15:04:05.000Z07:00"
)

// KeyGenerator derives the partition key for a request.
type KeyGenerator interface {
	Key(c *gin.Context) string
}

// KeyGeneratorFunc adapts a function to KeyGenerator.
type KeyGeneratorFunc func(c *gin.Context) string

// Key implements KeyGenerator.
func (f KeyGeneratorFunc) Key(c *gin.Context) string { return f(c) }

// RejectionHandler writes the response for a rejected request in place of the
// default 429 body.
type RejectionHandler interface {
	Reject(c *gin.Context, d Decision)
}

// RejectionHandlerFunc adapts a function to RejectionHandler.
type RejectionHandlerFunc func(c *gin.Context, d Decision)

// Reject implements RejectionHandler.
func (f RejectionHandlerFunc) Reject(c *gin.Context, d Decision) { f(c, d) }

// LimitCallback observes rejections. It runs in addition to the response.
type LimitCallback interface {
	OnLimitReached(c *gin.Context, d Decision)
}

// LimitCallbackFunc adapts a function to LimitCallback.
type LimitCallbackFunc func(c *gin.Context, d Decision)

// OnLimitReached implements LimitCallback.
func (f LimitCallbackFunc) OnLimitReached(c *gin.Context, d Decision) { f(c, d) }

// Config configures a Limiter. Start from DefaultConfig. A zero Window or
// Max selects DefaultWindow or DefaultMax; negative values are invalid.
type Config struct {
	Name            string           `yaml:"name"`
	Window          time.Duration    `yaml:"window" validate:"omitempty,gte=1s"`
	Max             int              `yaml:"max" validate:"omitempty,gte=1"`
	Message         string           `yaml:"message"`
	StatusCode      int              `yaml:"status_code" validate:"omitempty,gte=400,lte=599"`
	KeyGenerator    KeyGenerator     `yaml:"-"`
	Handler         RejectionHandler `yaml:"-"`
	OnLimitReached  LimitCallback    `yaml:"-"`
	StandardHeaders bool             `yaml:"standard_headers"`
	LegacyHeaders   bool             `yaml:"legacy_headers"`
}

// DefaultConfig returns the stock limiter settings: 100 requests per 15 minutes.
func DefaultConfig() Config {
	return Config{
		Name:            "default",
		Window:          DefaultWindow,
		Max:             DefaultMax,
		Message:         DefaultMessage,
		StatusCode:      DefaultStatusCode,
		StandardHeaders: true,
	}
}

// Decision is the full context of one admission decision, handed to
// rejection handlers and limit callbacks.
type Decision struct {
	Outcome
	Key        string
	Profile    string
	Now        time.Time
	Window     time.Duration
	Message    string
	StatusCode int
}

// RetryAfterSeconds is the client wait time reported on rejection.
func (d Decision) RetryAfterSeconds() int { return d.RetryAfter(d.Now) }

// RejectionBody is the default JSON payload for a rejected request.
type RejectionBody struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	Code       string `json:"code"`
	RetryAfter int    `json:"retryAfter"`
	Limit      int    `json:"limit"`
	WindowMs   int    `json:"windowMs"`
}

// Option customizes a Limiter.
type Option func(*Limiter)

// WithStore shares an existing store.
func WithStore(s *Store) Option { return func(l *Limiter) { l.store = s } }

// WithClock sets the decision clock.
func WithClock(c Clock) Option { return func(l *Limiter) { l.clock = c } }

// WithSink routes decision records to s.
func WithSink(s logger.Sink) Option { return func(l *Limiter) { l.sink = s } }

// Limiter enforces one Config against its Store.
type Limiter struct {
	cfg   Config
	store *Store
	clock Clock
	sink  logger.Sink
}

// New builds a limiter. Zero (or negative) numeric fields fall back to the
// defaults.
func New(cfg Config, opts ...Option) *Limiter {
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.Max <= 0 {
		cfg.Max = DefaultMax
	}
	if cfg.StatusCode == 0 {
		cfg.StatusCode = DefaultStatusCode
	}
	if cfg.Message == "" {
		cfg.Message = DefaultMessage
	}
	if cfg.Name == "" {
		cfg.Name = "default"
	}
	if cfg.KeyGenerator == nil {
		cfg.KeyGenerator = KeyGeneratorFunc(Identify)
	}

	l := &Limiter{cfg: cfg, clock: SystemClock, sink: logger.NopSink{}}
	for _, opt := range opts {
		opt(l)
	}
	if l.store == nil {
		l.store = NewStore(l.clock)
	}
	if l.sink == nil {
		l.sink = logger.NopSink{}
	}
	return l
}

// Name returns the configured profile name.
func (l *Limiter) Name() string { return l.cfg.Name }

// Config returns a copy of the effective configuration.
func (l *Limiter) Config() Config { return l.cfg }

// Store exposes the backing store for sweeping and inspection.
func (l *Limiter) Store() *Store { return l.store }

// Handler returns the gin middleware. Rejected requests are aborted; admitted
// requests fall through to the next handler.
func (l *Limiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		l.Allow(c)
	}
}

// Allow decides the request, writes the rate limit headers and, on
// rejection, the response. It reports whether the request was admitted.
// Internal failures admit the request unless a rejection was already written.
func (l *Limiter) Allow(c *gin.Context) (admitted bool) {
	defer func() {
		if r := recover(); r != nil {
			logger.Component("ratelimit").WithField("profile", l.cfg.Name).Errorf("limiter panic: %v", r)
			admitted = !c.IsAborted()
		}
	}()

	now := l.clock.Now()
	key := l.key(c)
	out := l.store.Hit(key, now, l.cfg.Window, l.cfg.Max)
	d := Decision{
		Outcome:    out,
		Key:        key,
		Profile:    l.cfg.Name,
		Now:        now,
		Window:     l.cfg.Window,
		Message:    l.cfg.Message,
		StatusCode: l.cfg.StatusCode,
	}

	l.writeHeaders(c, d)
	l.record(c, d)
	metrics.ObserveDecision(l.cfg.Name, out.Admitted)

	if out.Admitted {
		return true
	}
	l.reject(c, d)
	return false
}

func (l *Limiter) key(c *gin.Context) (key string) {
	defer func() {
		if r := recover(); r != nil {
			logger.Component("ratelimit").WithField("profile", l.cfg.Name).Warnf("key generator panic: %v", r)
			key = Identify(c)
		}
	}()
	if key = l.cfg.KeyGenerator.Key(c); key == "" {
		key = Identify(c)
	}
	return key
}

func (l *Limiter) writeHeaders(c *gin.Context, d Decision) {
	if !l.cfg.StandardHeaders && !l.cfg.LegacyHeaders {
		return
	}
	c.Header(HeaderLimit, strconv.Itoa(d.Limit))
	c.Header(HeaderRemaining, strconv.Itoa(d.Remaining()))
	if l.cfg.LegacyHeaders {
		c.Header(HeaderReset, strconv.FormatInt(d.ResetAt.Unix(), 10))
	} else {
		c.Header(HeaderReset, d.ResetAt.UTC().Format(resetTimeFormat))
	}
}

func (l *Limiter) reject(c *gin.Context, d Decision) {
	c.Header("Retry-After", strconv.Itoa(d.RetryAfterSeconds()))

	if l.cfg.Handler != nil {
		l.guard("rejection handler", func() { l.cfg.Handler.Reject(c, d) })
		c.Abort()
	} else {
		c.AbortWithStatusJSON(d.StatusCode, RejectionBody{
			Error:      "Too Many Requests",
			Message:    d.Message,
			Code:       "RATE_LIMIT_EXCEEDED",
			RetryAfter: d.RetryAfterSeconds(),
			Limit:      d.Limit,
			WindowMs:   ceilSeconds(d.Window),
		})
	}

	if l.cfg.OnLimitReached != nil {
		l.guard("limit callback", func() { l.cfg.OnLimitReached.OnLimitReached(c, d) })
	}
}

func (l *Limiter) record(c *gin.Context, d Decision) {
	fields := logrus.Fields{
		"event":     "rate_limit_decision",
		"profile":   d.Profile,
		"key":       util.SanitizeForLog(d.Key),
		"admitted":  d.Admitted,
		"count":     d.Count,
		"limit":     d.Limit,
		"remaining": d.Remaining(),
		"reset_at":  d.ResetAt.UTC().Format(resetTimeFormat),
	}
	if c.Request != nil {
		fields["method"] = c.Request.Method
		fields["path"] = util.SanitizePath(c.Request.URL.Path)
	}
	if err := l.sink.Emit("rate limit decision", fields); err != nil {
		metrics.IncSinkDropped("decisions")
		logger.Component("ratelimit").WithError(err).Warn("decision record dropped")
	}
}

func (l *Limiter) guard(what string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Component("ratelimit").WithField("profile", l.cfg.Name).Warnf("%s panic: %v", what, r)
		}
	}()
	fn()
}
