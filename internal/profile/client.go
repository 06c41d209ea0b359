// Package profile calls the user-info service that owns canonical user
// attributes.
package profile

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/sandeepkv93/weapp-session-service/internal/security"
)

var ErrMissingUserID = errors.New("user-info response missing UserID")

// User is the provider profile forwarded for upsert.
type User struct {
	UserID     string `json:"userid,omitempty"`
	Subscribe  *int   `json:"subscribe,omitempty"`
	MinaOpenID string `json:"mina_openid"`
	NickName   string `json:"nickname,omitempty"`
	Sex        *int   `json:"sex,omitempty"`
	Language   string `json:"language,omitempty"`
	HeadImgURL string `json:"headimgurl,omitempty"`
	UnionID    string `json:"unionid,omitempty"`
}

type Request struct {
	User          User   `json:"user"`
	NeedPPTConfig bool   `json:"need_ppt_config"`
	IP            string `json:"ip,omitempty"`
}

// Profile holds the canonical attributes returned by the user-info service.
// Optional values are kept as raw JSON so their upstream shape survives.
type Profile struct {
	UserID            string
	Name              string
	Nickname          string
	Avatar            string
	School            string
	Gender            json.RawMessage
	YearOfBirth       json.RawMessage
	ProfileEditStatus json.RawMessage
}

// ContractError is returned when the service answers with a body that does
// not identify the user.
type ContractError struct {
	StatusCode int
	Body       []byte
	Err        error
}

func (e *ContractError) Error() string {
	return fmt.Sprintf("get userinfo failed: status=%d body=%s: %v", e.StatusCode, e.Body, e.Err)
}

func (e *ContractError) Unwrap() error { return e.Err }

type Client struct {
	endpoint   string
	timeout    time.Duration
	signer     *security.ServiceTokenSigner
	httpClient *http.Client
}

// NewClient builds a user-info client. signer may be nil, in which case
// requests are sent without a bearer token.
func NewClient(endpoint string, timeout time.Duration, signer *security.ServiceTokenSigner) *Client {
	return &Client{
		endpoint:   endpoint,
		timeout:    timeout,
		signer:     signer,
		httpClient: &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
	}
}

func (c *Client) Enrich(ctx context.Context, in Request) (*Profile, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	payload, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("encode user-info request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.signer != nil {
		token, err := c.signer.Sign(in.User.MinaOpenID, time.Minute)
		if err != nil {
			return nil, fmt.Errorf("sign user-info request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call user-info service: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read user-info response: %w", err)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, &ContractError{StatusCode: resp.StatusCode, Body: body, Err: err}
	}
	userID := scalarString(fields["UserID"])
	if userID == "" {
		return nil, &ContractError{StatusCode: resp.StatusCode, Body: body, Err: ErrMissingUserID}
	}
	return &Profile{
		UserID:            userID,
		Name:              scalarString(fields["Name"]),
		Nickname:          scalarString(fields["Nickname"]),
		Avatar:            scalarString(fields["Avatar"]),
		School:            scalarString(fields["School"]),
		Gender:            nonNull(fields["Gender"]),
		YearOfBirth:       nonNull(fields["YearOfBirth"]),
		ProfileEditStatus: nonNull(fields["profile_edit_status"]),
	}, nil
}

// scalarString renders a JSON string or number as text. Anything else,
// including null, false and 0, is treated as absent.
func scalarString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		if f, err := n.Float64(); err == nil && f == 0 {
			return ""
		}
		return n.String()
	}
	return ""
}

func nonNull(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return raw
}
