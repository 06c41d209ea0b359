// Package wechat talks to the identity provider's code exchange endpoint.
package wechat

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const DefaultExchangeURL = "https://api.weixin.qq.com/sns/jscode2session"

// Session is the result of a successful code exchange.
type Session struct {
	SessionKey string
	OpenID     string
	UnionID    string
}

// ExchangeError describes a failed code exchange. Code and Message carry the
// provider's errcode/errmsg when it returned one.
type ExchangeError struct {
	StatusCode int
	Code       int
	Message    string
	Err        error
}

func (e *ExchangeError) Error() string {
	switch {
	case e.Code != 0:
		return fmt.Sprintf("code exchange rejected: errcode=%d errmsg=%s", e.Code, e.Message)
	case e.Err != nil:
		return "code exchange failed: " + e.Err.Error()
	default:
		return fmt.Sprintf("code exchange failed: status %d", e.StatusCode)
	}
}

func (e *ExchangeError) Unwrap() error { return e.Err }

type exchangeResponse struct {
	OpenID     string `json:"openid"`
	SessionKey string `json:"session_key"`
	UnionID    string `json:"unionid"`
	ErrCode    int    `json:"errcode"`
	ErrMsg     string `json:"errmsg"`
}

type Client struct {
	endpoint   string
	appID      string
	appSecret  string
	timeout    time.Duration
	httpClient *http.Client
}

func NewClient(endpoint, appID, appSecret string, timeout time.Duration) *Client {
	if endpoint == "" {
		endpoint = DefaultExchangeURL
	}
	return &Client{
		endpoint:   endpoint,
		appID:      appID,
		appSecret:  appSecret,
		timeout:    timeout,
		httpClient: &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
	}
}

// Exchange trades a single-use login code for a session key. It performs
// exactly one request; the provider rejects reused codes.
func (c *Client) Exchange(ctx context.Context, code string) (Session, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	q := url.Values{}
	q.Set("appid", c.appID)
	q.Set("secret", c.appSecret)
	q.Set("js_code", code)
	q.Set("grant_type", "authorization_code")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return Session{}, &ExchangeError{Err: err}
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Session{}, &ExchangeError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Session{}, &ExchangeError{StatusCode: resp.StatusCode, Err: fmt.Errorf("read body: %w", err)}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Session{}, &ExchangeError{StatusCode: resp.StatusCode, Message: string(body)}
	}

	var out exchangeResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return Session{}, &ExchangeError{StatusCode: resp.StatusCode, Err: fmt.Errorf("decode body: %w", err)}
	}
	if out.ErrCode != 0 {
		return Session{}, &ExchangeError{StatusCode: resp.StatusCode, Code: out.ErrCode, Message: out.ErrMsg}
	}
	if out.SessionKey == "" || out.OpenID == "" {
		return Session{}, &ExchangeError{StatusCode: resp.StatusCode, Message: "response missing session_key or openid"}
	}
	return Session{SessionKey: out.SessionKey, OpenID: out.OpenID, UnionID: out.UnionID}, nil
}
