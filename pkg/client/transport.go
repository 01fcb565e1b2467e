package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mapster/mapster/backend/go-services/pkg/logger"
	"golang.org/x/sync/singleflight"
)

// Header names understood by the API.
const (
	HeaderAccessToken  = "x-access-token"
	HeaderRefreshToken = "x-refresh-token"
	HeaderUserID       = "_id"
)

// RefreshPath is the endpoint that exchanges a refresh session for an access token.
const RefreshPath = "/users/me/access-token"

// DefaultRefreshTimeout bounds a single refresh call.
const DefaultRefreshTimeout = 10 * time.Second

// ErrSessionExpired is returned when the refresh session was rejected or could not be renewed.
// The cached session has been cleared by then.
var ErrSessionExpired = errors.New("client: session expired, log in again")

// RefreshTransport stamps requests with the cached access token and, on a 401,
// renews it once through the refresh endpoint before retrying the request.
// Concurrent 401s share a single refresh call.
type RefreshTransport struct {
	Base           http.RoundTripper
	Cache          TokenCache
	BaseURL        string
	RefreshTimeout time.Duration
	// OnSessionExpired runs once per failed refresh, after the cache was cleared.
	OnSessionExpired func(error)

	flight singleflight.Group
}

func (t *RefreshTransport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

func (t *RefreshTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.URL.Path == RefreshPath {
		return t.base().RoundTrip(req)
	}
	getBody, err := rewindable(req)
	if err != nil {
		return nil, err
	}
	ctx := req.Context()

	sent, err := t.Cache.AccessToken(ctx)
	if err != nil {
		return nil, err
	}
	resp, err := t.send(req, getBody, sent)
	if err != nil || resp.StatusCode != http.StatusUnauthorized {
		return resp, err
	}

	// another request may have refreshed while this one was in flight
	current, err := t.Cache.AccessToken(ctx)
	if err != nil {
		return resp, nil
	}
	if current != "" && current != sent {
		drain(resp)
		return t.send(req, getBody, current)
	}

	sess, err := t.Cache.Session(ctx)
	if err != nil || sess.RefreshToken == "" || sess.UserID == "" {
		return resp, nil
	}
	drain(resp)

	fresh, err := t.refresh(ctx, sent)
	if err != nil {
		return nil, err
	}
	return t.send(req, getBody, fresh)
}

// send transmits a copy of req carrying token.
func (t *RefreshTransport) send(req *http.Request, getBody func() (io.ReadCloser, error), token string) (*http.Response, error) {
	out := req.Clone(req.Context())
	if getBody != nil {
		body, err := getBody()
		if err != nil {
			return nil, err
		}
		out.Body = body
		out.GetBody = getBody
	}
	if token != "" {
		out.Header.Set(HeaderAccessToken, token)
	} else {
		out.Header.Del(HeaderAccessToken)
	}
	return t.base().RoundTrip(out)
}

// refresh joins or starts the single in-flight refresh and waits for it or for ctx.
// rejected is the access token the server just refused.
func (t *RefreshTransport) refresh(ctx context.Context, rejected string) (string, error) {
	ch := t.flight.DoChan("refresh", func() (interface{}, error) {
		// waiters may give up; the flight itself only stops at its own timeout
		bg := context.WithoutCancel(ctx)
		// a flight that finished between our 401 and this call already renewed the token
		if current, err := t.Cache.AccessToken(bg); err == nil && current != "" && current != rejected {
			return current, nil
		}
		timeout := t.RefreshTimeout
		if timeout <= 0 {
			timeout = DefaultRefreshTimeout
		}
		rctx, cancel := context.WithTimeout(bg, timeout)
		defer cancel()

		token, err := t.exchange(rctx)
		if err != nil {
			logger.Warnf("token refresh failed, clearing session: %v", err)
			if rerr := t.Cache.RemoveSession(bg); rerr != nil {
				logger.Errorf("clear session: %v", rerr)
			}
			err = fmt.Errorf("%w: %v", ErrSessionExpired, err)
			if t.OnSessionExpired != nil {
				t.OnSessionExpired(err)
			}
			return "", err
		}
		if err := t.Cache.SetAccessToken(bg, token); err != nil {
			if errors.Is(err, ErrNotLoggedIn) {
				// logged out while the refresh was running
				return "", fmt.Errorf("%w: %v", ErrSessionExpired, err)
			}
			return "", err
		}
		return token, nil
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// exchange calls the refresh endpoint with the cached refresh token and user id.
func (t *RefreshTransport) exchange(ctx context.Context) (string, error) {
	sess, err := t.Cache.Session(ctx)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.BaseURL+RefreshPath, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set(HeaderRefreshToken, sess.RefreshToken)
	req.Header.Set(HeaderUserID, sess.UserID)

	resp, err := t.base().RoundTrip(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("refresh rejected with status %d", resp.StatusCode)
	}
	if tok := resp.Header.Get(HeaderAccessToken); tok != "" {
		return tok, nil
	}
	var body struct {
		AccessToken string `json:"accessToken"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.AccessToken == "" {
		return "", errors.New("refresh response carried no access token")
	}
	return body.AccessToken, nil
}

// rewindable returns a body factory so the request can be retransmitted.
// Bodies without GetBody are buffered in memory.
func rewindable(req *http.Request) (func() (io.ReadCloser, error), error) {
	if req.Body == nil || req.Body == http.NoBody {
		return nil, nil
	}
	if req.GetBody != nil {
		_ = req.Body.Close()
		return req.GetBody, nil
	}
	buf, err := io.ReadAll(req.Body)
	_ = req.Body.Close()
	if err != nil {
		return nil, err
	}
	return func() (io.ReadCloser, error) { return io.NopCloser(bytes.NewReader(buf)), nil }, nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
}
