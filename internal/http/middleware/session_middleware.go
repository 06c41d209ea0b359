package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/sandeepkv93/weapp-session-service/internal/domain"
	"github.com/sandeepkv93/weapp-session-service/internal/http/response"
	"github.com/sandeepkv93/weapp-session-service/internal/observability"
	"github.com/sandeepkv93/weapp-session-service/internal/security"
	"github.com/sandeepkv93/weapp-session-service/internal/service"
)

const (
	HeaderCode          = "X-WX-Code"
	HeaderRawData       = "X-WX-Raw-Data"
	HeaderSignature     = "X-WX-Signature"
	HeaderEncryptedData = "X-WX-Encrypted-Data"
	HeaderIV            = "X-WX-IV"
)

type contextKey string

const SessionContextKey contextKey = "weapp_session"

var ErrSessionMiddlewareAlreadyBuilt = errors.New("session middleware can only be built once per process")

var sessionMiddlewareBuilt atomic.Bool

type SessionResolver interface {
	Resolve(ctx context.Context, creds domain.Credentials, clientIP string) (*domain.SessionRecord, error)
}

// IgnoreFunc reports whether a request bypasses session resolution entirely.
type IgnoreFunc func(r *http.Request) bool

// IgnorePathPrefixes ignores requests whose path starts with any prefix.
func IgnorePathPrefixes(prefixes ...string) IgnoreFunc {
	var clean []string
	for _, p := range prefixes {
		if p = strings.TrimSpace(p); p != "" {
			clean = append(clean, p)
		}
	}
	return func(r *http.Request) bool {
		for _, p := range clean {
			if strings.HasPrefix(r.URL.Path, p) {
				return true
			}
		}
		return false
	}
}

type SessionMiddlewareOptions struct {
	Ignore IgnoreFunc
	Logger *slog.Logger
}

// NewSessionMiddleware builds the middleware that resolves the mini-program
// session for every request not matched by opts.Ignore. Only the first call
// in a process succeeds.
func NewSessionMiddleware(resolver SessionResolver, opts SessionMiddlewareOptions) (func(http.Handler) http.Handler, error) {
	if !sessionMiddlewareBuilt.CompareAndSwap(false, true) {
		return nil, ErrSessionMiddlewareAlreadyBuilt
	}
	ignore := opts.Ignore
	if ignore == nil {
		ignore = func(*http.Request) bool { return false }
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Never let a caller-supplied identity survive into the handler.
			ctx := context.WithValue(r.Context(), SessionContextKey, (*domain.SessionRecord)(nil))
			r = r.WithContext(ctx)
			if ignore(r) {
				next.ServeHTTP(w, r)
				return
			}

			creds := CredentialsFromRequest(r)
			rec, err := resolver.Resolve(ctx, creds, clientIP(r))
			if err != nil {
				logger.WarnContext(ctx, "session resolution failed",
					"code", redact(creds.Code),
					"verify", creds.RawData != "",
					"error", err.Error(),
				)
				observability.Audit(r, "session.resolve_failed", "reason", failureCode(err))
				writeSessionError(w, r, err)
				return
			}
			if creds.RawData != "" {
				observability.Audit(r, "session.established", "open_id", rec.OpenID)
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(ctx, SessionContextKey, rec)))
		})
	}, nil
}

// SessionFromContext returns the identity resolved for the request, if any.
func SessionFromContext(ctx context.Context) (*domain.SessionRecord, bool) {
	rec, ok := ctx.Value(SessionContextKey).(*domain.SessionRecord)
	return rec, ok && rec != nil
}

// CredentialsFromRequest reads the credential headers. Absent headers read as
// the empty string.
func CredentialsFromRequest(r *http.Request) domain.Credentials {
	return domain.Credentials{
		Code:          r.Header.Get(HeaderCode),
		RawData:       r.Header.Get(HeaderRawData),
		Signature:     r.Header.Get(HeaderSignature),
		EncryptedData: r.Header.Get(HeaderEncryptedData),
		IV:            r.Header.Get(HeaderIV),
	}
}

func writeSessionError(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message := classifySessionError(err)
	response.Error(w, r, status, code, message, nil)
}

func failureCode(err error) string {
	_, code, _ := classifySessionError(err)
	return code
}

func classifySessionError(err error) (int, string, string) {
	if reason, ok := service.ReasonOf(err); ok {
		return http.StatusUnauthorized, string(reason), reasonMessage(reason)
	}
	switch {
	case errors.Is(err, service.ErrCacheUnavailable):
		return http.StatusServiceUnavailable, "SESSION_STORE_UNAVAILABLE", "session store unavailable"
	case errors.Is(err, service.ErrInvalidRawData), errors.Is(err, security.ErrDecryption):
		return http.StatusBadRequest, "INVALID_SESSION_PAYLOAD", "invalid session payload"
	case errors.Is(err, service.ErrProfileEnrichment):
		return http.StatusBadGateway, "USERINFO_UNAVAILABLE", "user info service failed"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR", "internal error"
	}
}

func reasonMessage(reason service.Reason) string {
	switch reason {
	case service.ReasonSessionCodeNotExist:
		return "missing session code"
	case service.ReasonSessionExpired:
		return "session expired"
	case service.ReasonSessionKeyExchangeFailed:
		return "session key exchange failed"
	case service.ReasonUntrustedRawData:
		return "untrusted raw data"
	default:
		return "session rejected"
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// redact keeps a short prefix of a credential for correlation in logs.
func redact(v string) string {
	v = sanitizeLogValue(v)
	if len(v) <= 6 {
		return strings.Repeat("*", len(v))
	}
	return v[:6] + "***"
}

func sanitizeLogValue(v string) string {
	const maxLen = 128
	v = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, v)
	if len(v) > maxLen {
		v = v[:maxLen]
	}
	return v
}
