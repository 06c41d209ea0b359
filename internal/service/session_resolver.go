package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"net/url"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/sandeepkv93/weapp-session-service/internal/domain"
	"github.com/sandeepkv93/weapp-session-service/internal/observability"
	"github.com/sandeepkv93/weapp-session-service/internal/profile"
	"github.com/sandeepkv93/weapp-session-service/internal/security"
	"github.com/sandeepkv93/weapp-session-service/internal/wechat"
)

type CodeExchanger interface {
	Exchange(ctx context.Context, code string) (wechat.Session, error)
}

type ProfileEnricher interface {
	Enrich(ctx context.Context, req profile.Request) (*profile.Profile, error)
}

type PayloadVerifier interface {
	VerifySignature(raw []byte, sessionKey, expected string) bool
	Decrypt(appID, sessionKey, encryptedData, iv string) (map[string]json.RawMessage, error)
}

type ResolverOptions struct {
	AppID string
	// IgnoreSignature skips the code exchange and signature check and derives
	// a pseudo open id from the client avatar instead. Development only.
	IgnoreSignature bool
	Verifier        PayloadVerifier
	Logger          *slog.Logger
}

// SessionResolver turns request credentials into a cached session identity.
// It holds no mutable state; all sharing between requests happens through
// the session cache.
type SessionResolver struct {
	cache     *SessionCache
	exchanger CodeExchanger
	enricher  ProfileEnricher
	verifier  PayloadVerifier
	appID     string
	ignoreSig bool
	logger    *slog.Logger
}

func NewSessionResolver(cache *SessionCache, exchanger CodeExchanger, enricher ProfileEnricher, opts ResolverOptions) *SessionResolver {
	verifier := opts.Verifier
	if verifier == nil {
		verifier = security.Verifier{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionResolver{
		cache:     cache,
		exchanger: exchanger,
		enricher:  enricher,
		verifier:  verifier,
		appID:     opts.AppID,
		ignoreSig: opts.IgnoreSignature,
		logger:    logger,
	}
}

// Resolve runs one of three branches depending on which credentials are
// present: no code fails immediately, a code alone is looked up in the cache,
// and a code with raw profile data goes through full verification and
// replaces any session the same user held before.
func (r *SessionResolver) Resolve(ctx context.Context, creds domain.Credentials, clientIP string) (*domain.SessionRecord, error) {
	start := time.Now()
	branch := "verify"
	switch {
	case creds.Code == "":
		branch = "missing_code"
	case creds.RawData == "":
		branch = "returning"
	}

	ctx, span := observability.StartSpan(ctx, "session.resolve", attribute.String("session.branch", branch))
	defer span.End()

	var (
		rec *domain.SessionRecord
		err error
	)
	switch branch {
	case "missing_code":
		err = newSessionError(ReasonSessionCodeNotExist, errors.New("not found `code`"))
	case "returning":
		rec, err = r.lookup(ctx, creds.Code)
	default:
		rec, err = r.establish(ctx, creds, clientIP)
	}

	outcome := outcomeOf(err)
	observability.RecordSessionResolve(ctx, branch, outcome, time.Since(start).Seconds())
	if err != nil {
		span.SetStatus(codes.Error, outcome)
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.String("session.open_id", rec.OpenID))
	return rec, nil
}

func (r *SessionResolver) lookup(ctx context.Context, code string) (*domain.SessionRecord, error) {
	rec, ok, err := r.cache.GetRecord(ctx, code)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, newSessionError(ReasonSessionExpired, errors.New("session not found by code"))
	}
	return rec, nil
}

func (r *SessionResolver) establish(ctx context.Context, creds domain.Credentials, clientIP string) (*domain.SessionRecord, error) {
	fields, err := parseRawData(creds.RawData)
	if err != nil {
		return nil, err
	}

	var openID, sessionKey string
	if r.ignoreSig {
		openID = security.PseudoOpenID(stringField(fields, "avatarUrl"))
	} else {
		sess, err := r.exchanger.Exchange(ctx, creds.Code)
		if err != nil {
			observability.RecordUpstreamCall(ctx, "code_exchange", "error")
			return nil, newSessionError(ReasonSessionKeyExchangeFailed, err)
		}
		observability.RecordUpstreamCall(ctx, "code_exchange", "ok")
		// The client signs the header value exactly as sent.
		if !r.verifier.VerifySignature([]byte(creds.RawData), sess.SessionKey, creds.Signature) {
			return nil, newSessionError(ReasonUntrustedRawData, errors.New("untrusted raw data"))
		}
		openID, sessionKey = sess.OpenID, sess.SessionKey
	}

	fields["openId"] = mustMarshal(openID)
	// Without a session key there is nothing to decrypt with.
	if sessionKey != "" {
		decrypted, err := r.verifier.Decrypt(r.appID, sessionKey, creds.EncryptedData, creds.IV)
		if err != nil {
			return nil, fmt.Errorf("decrypt user data: %w", err)
		}
		maps.Copy(fields, decrypted)
	}

	rec, err := recordFromFields(fields)
	if err != nil {
		return nil, err
	}

	enriched, err := r.enricher.Enrich(ctx, enrichmentRequest(rec, clientIP))
	if err != nil {
		observability.RecordUpstreamCall(ctx, "userinfo", "error")
		return nil, fmt.Errorf("%w: %w", ErrProfileEnrichment, err)
	}
	observability.RecordUpstreamCall(ctx, "userinfo", "ok")
	applyProfile(rec, enriched)

	r.invalidatePrevious(ctx, rec.OpenID, creds.Code)

	// The delete above and the writes below are not atomic. Two concurrent
	// verifications for the same user can both miss each other's code, or
	// one can drop the code the other just wrote.
	var errs []error
	if err := r.cache.PutRecord(ctx, creds.Code, rec); err != nil {
		errs = append(errs, err)
	}
	if err := r.cache.PutCodeFor(ctx, rec.OpenID, creds.Code); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("persist session: %w", err)
	}
	return rec, nil
}

// invalidatePrevious drops the code the user held before, if any. Failures
// are logged and counted but never fail the request.
func (r *SessionResolver) invalidatePrevious(ctx context.Context, openID, code string) {
	prev, ok, err := r.cache.CodeFor(ctx, openID)
	if err != nil {
		observability.RecordSessionInvalidation(ctx, "lookup_error")
		r.logger.WarnContext(ctx, "previous session lookup failed", "open_id", openID, "error", err)
		return
	}
	if !ok || prev == code {
		return
	}
	if err := r.cache.DeleteCode(ctx, prev); err != nil {
		observability.RecordSessionInvalidation(ctx, "delete_error")
		r.logger.WarnContext(ctx, "previous session delete failed", "open_id", openID, "error", err)
		return
	}
	observability.RecordSessionInvalidation(ctx, "deleted")
	r.logger.DebugContext(ctx, "previous session invalidated", "open_id", openID)
}

func parseRawData(raw string) (map[string]json.RawMessage, error) {
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRawData, err)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(decoded), &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRawData, err)
	}
	if fields == nil {
		return nil, fmt.Errorf("%w: not a JSON object", ErrInvalidRawData)
	}
	return fields, nil
}

func recordFromFields(fields map[string]json.RawMessage) (*domain.SessionRecord, error) {
	payload, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRawData, err)
	}
	var rec domain.SessionRecord
	if err := json.Unmarshal(payload, &rec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRawData, err)
	}
	return &rec, nil
}

func enrichmentRequest(rec *domain.SessionRecord, clientIP string) profile.Request {
	return profile.Request{
		User: profile.User{
			UserID:     rec.UserID,
			Subscribe:  rec.Subscribe,
			MinaOpenID: rec.OpenID,
			NickName:   rec.NickName,
			Sex:        rec.Gender,
			Language:   rec.Language,
			HeadImgURL: rec.AvatarURL,
			UnionID:    rec.UnionID,
		},
		NeedPPTConfig: true,
		IP:            clientIP,
	}
}

// applyProfile merges canonical attributes over the provider profile. Name
// and avatar keep the client value when the service has none.
func applyProfile(rec *domain.SessionRecord, p *profile.Profile) {
	rec.UserID = p.UserID
	rec.ProfileEditStatus = p.ProfileEditStatus
	rec.NickName = firstNonEmpty(p.Name, p.Nickname, rec.NickName)
	rec.School = p.School
	rec.CanonicalGender = p.Gender
	rec.YearOfBirth = p.YearOfBirth
	rec.AvatarURL = firstNonEmpty(p.Avatar, rec.AvatarURL)
}

func outcomeOf(err error) string {
	if err == nil {
		return "ok"
	}
	if reason, ok := ReasonOf(err); ok {
		return string(reason)
	}
	var contractErr *profile.ContractError
	switch {
	case errors.Is(err, ErrCacheUnavailable):
		return "cache_error"
	case errors.Is(err, ErrInvalidRawData):
		return "invalid_raw_data"
	case errors.Is(err, security.ErrDecryption):
		return "decryption_error"
	case errors.As(err, &contractErr):
		return "userinfo_contract"
	case errors.Is(err, ErrProfileEnrichment):
		return "userinfo_error"
	default:
		return "error"
	}
}

func stringField(fields map[string]json.RawMessage, key string) string {
	var s string
	if raw, ok := fields[key]; ok {
		_ = json.Unmarshal(raw, &s)
	}
	return s
}

func mustMarshal(s string) json.RawMessage {
	b, _ := json.Marshal(s)
	return b
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
