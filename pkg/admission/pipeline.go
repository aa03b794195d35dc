package admission

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cuemby/infractl/pkg/errs"
	"github.com/cuemby/infractl/pkg/log"
	"github.com/cuemby/infractl/pkg/telemetry"
	"github.com/cuemby/infractl/pkg/token"
	"github.com/cuemby/infractl/pkg/types"
)

// unauthenticatedPaths never require a bearer token. /metrics is exempt
// because Prometheus scrape configs don't carry a bearer token.
var unauthenticatedPaths = map[string]bool{
	"/":           true,
	"/health":     true,
	"/monitoring": true,
	"/metrics":    true,
}

// Store persists rejected requests. *storage.Engine satisfies this.
type Store interface {
	InsertSuspicious(ctx context.Context, s types.SuspiciousRequest) error
}

// Config controls the network-isolation and rate-limit layers. Tokens and
// Store are supplied separately to NewPipeline.
type Config struct {
	IsolationMode bool
	AllowedCIDRs  []string
	RateLimit     int
	RateWindow    time.Duration
}

// Pipeline builds the admission middleware chain.
type Pipeline struct {
	isolationMode bool
	cidrs         []*net.IPNet
	tokens        *token.Service
	store         Store
	limiter       *rateLimiter
}

// NewPipeline parses cfg.AllowedCIDRs (already validated by pkg/config, so
// a parse failure here means something is very wrong) and builds a
// Pipeline.
func NewPipeline(cfg Config, tokens *token.Service, store Store) (*Pipeline, error) {
	var cidrs []*net.IPNet
	for _, c := range cfg.AllowedCIDRs {
		_, ipnet, err := net.ParseCIDR(c)
		if err != nil {
			return nil, errs.Wrap(errs.Configuration, err, "admission: parse allowed CIDR")
		}
		cidrs = append(cidrs, ipnet)
	}
	return &Pipeline{
		isolationMode: cfg.IsolationMode,
		cidrs:         cidrs,
		tokens:        tokens,
		store:         store,
		limiter:       newRateLimiter(cfg.RateLimit, cfg.RateWindow),
	}, nil
}

// StartSweep runs the rate-limiter's idle-IP sweep every window duration
// until ctx is cancelled.
func (p *Pipeline) StartSweep(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(p.limiter.window)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.limiter.sweep(time.Now())
			}
		}
	}()
}

// Wrap builds the full chain around next: timing outermost (so it measures
// the whole request regardless of which layer rejects it), then network
// isolation, then auth, then rate limiting innermost.
func (p *Pipeline) Wrap(next http.Handler) http.Handler {
	h := p.rateLimit(next)
	h = p.authenticate(h)
	h = p.networkIsolate(h)
	h = p.timing(h)
	return h
}

func (p *Pipeline) clientIP(r *http.Request) string {
	return types.ClientIP(r.RemoteAddr, "")
}

// metricReason collapses a reason string to its fixed prefix before a
// colon, keeping the admission rejection label's cardinality bounded even
// though stored SuspiciousRequest records carry the full detail.
func metricReason(reason string) string {
	if idx := strings.IndexByte(reason, ':'); idx >= 0 {
		return reason[:idx]
	}
	return reason
}

func (p *Pipeline) reject(w http.ResponseWriter, r *http.Request, status int, reason string) {
	logger := log.WithComponent("admission")
	telemetry.AdmissionRejectionsTotal.WithLabelValues(metricReason(reason)).Inc()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(types.ErrorResponse{Error: http.StatusText(status), Code: status})

	rec := types.SuspiciousRequest{
		RecordedAt: time.Now().UTC(),
		SourceIP:   p.clientIP(r),
		Method:     r.Method,
		Path:       r.URL.Path,
		Reason:     reason,
		UserAgent:  r.UserAgent(),
	}
	if p.store != nil {
		if err := p.store.InsertSuspicious(r.Context(), rec); err != nil {
			logger.Error().Err(err).Msg("failed to record suspicious request")
		}
	}
}

// networkIsolate enforces the allow-list when IsolationMode is set.
func (p *Pipeline) networkIsolate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !p.isolationMode {
			next.ServeHTTP(w, r)
			return
		}
		ip := net.ParseIP(p.clientIP(r))
		if ip == nil || !p.ipAllowed(ip) {
			p.reject(w, r, http.StatusForbidden, types.ReasonNetworkViolation)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (p *Pipeline) ipAllowed(ip net.IP) bool {
	for _, cidr := range p.cidrs {
		if cidr.Contains(ip) {
			return true
		}
	}
	return false
}

// authenticate validates the bearer token on every path except the
// unauthenticated set.
func (p *Pipeline) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if unauthenticatedPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		header := r.Header.Get("Authorization")
		if header == "" {
			p.reject(w, r, http.StatusUnauthorized, types.ReasonMissingAuth)
			return
		}
		const prefix = "Bearer "
		if !strings.HasPrefix(header, prefix) {
			p.reject(w, r, http.StatusUnauthorized, types.ReasonMalformedAuth)
			return
		}
		raw := strings.TrimPrefix(header, prefix)

		claims, err := p.tokens.Validate(raw)
		if err != nil {
			p.reject(w, r, http.StatusUnauthorized, "invalid_jwt:"+err.Error())
			return
		}

		ctx := context.WithValue(r.Context(), subjectCtxKey{}, claims.Subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type subjectCtxKey struct{}

// SubjectFromContext returns the bearer token's subject, if authenticated.
func SubjectFromContext(ctx context.Context) (string, bool) {
	s, ok := ctx.Value(subjectCtxKey{}).(string)
	return s, ok
}

// rateLimit enforces the sliding window per source IP.
func (p *Pipeline) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := p.clientIP(r)
		if !p.limiter.allow(ip, time.Now()) {
			p.reject(w, r, http.StatusTooManyRequests, types.ReasonRateLimited)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// timing records a structured "request completed" event wrapping the
// entire chain.
func (p *Pipeline) timing(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		elapsed := time.Since(start)

		telemetry.RequestsTotal.WithLabelValues(r.Method, strconv.Itoa(rec.status)).Inc()
		telemetry.RequestDuration.WithLabelValues(r.Method).Observe(elapsed.Seconds())

		log.WithComponent("admission").Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Int64("duration_ms", elapsed.Milliseconds()).
			Msg("request completed")
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}
