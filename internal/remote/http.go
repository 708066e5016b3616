package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/mindjig/trace-core/internal/common"
	"github.com/mindjig/trace-core/internal/logging"
	"github.com/mindjig/trace-core/internal/models"
)

// tokenSkew is how close to its expiry an access token is treated as expired,
// so a token does not die mid-batch.
const tokenSkew = 30 * time.Second

// HTTPClient talks JSON over HTTP to the journal backend.
type HTTPClient struct {
	baseURL string
	http    *http.Client
	log     logging.Logger

	mu           sync.Mutex
	accessToken  string
	refreshToken string
}

// NewHTTPClient creates a client for the backend at baseURL. Tokens may be
// empty when the device has not authenticated yet.
func NewHTTPClient(baseURL, accessToken, refreshToken string, log logging.Logger) *HTTPClient {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &HTTPClient{
		baseURL:      strings.TrimRight(baseURL, "/"),
		http:         &http.Client{Timeout: 30 * time.Second},
		log:          log,
		accessToken:  accessToken,
		refreshToken: refreshToken,
	}
}

// Tokens returns the current token pair, so callers can persist refreshed
// tokens in the metadata store.
func (c *HTTPClient) Tokens() (access, refresh string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.accessToken, c.refreshToken
}

func (c *HTTPClient) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/ping", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: ping: %s", common.ErrUnavailable, resp.Status)
	}
	return nil
}

func (c *HTTPClient) PushEntry(ctx context.Context, e *models.Entry, attachments []*models.Attachment) error {
	return c.doJSON(ctx, http.MethodPut, "/api/entries/"+url.PathEscape(e.Id),
		toWireEntry(e, attachments), nil)
}

func (c *HTTPClient) PushDelete(ctx context.Context, entryID string, version int64) error {
	body := struct {
		Version int64 `json:"version"`
	}{Version: version}
	return c.doJSON(ctx, http.MethodDelete, "/api/entries/"+url.PathEscape(entryID), body, nil)
}

func (c *HTTPClient) PullSince(ctx context.Context, cursor string) (*PullResult, error) {
	var out struct {
		Entries []wireEntry `json:"entries"`
		Cursor  string      `json:"cursor"`
	}
	path := "/api/entries/changes"
	if cursor != "" {
		path += "?since=" + url.QueryEscape(cursor)
	}
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}

	res := &PullResult{Cursor: out.Cursor}
	for _, w := range out.Entries {
		res.Changes = append(res.Changes, fromWireEntry(w))
	}
	return res, nil
}

func (c *HTTPClient) GetUploadURL(ctx context.Context, filePath string) (string, error) {
	body := struct {
		FilePath string `json:"file_path"`
	}{FilePath: filePath}
	var out struct {
		URL string `json:"url"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/api/attachments/presign", body, &out); err != nil {
		return "", err
	}
	return out.URL, nil
}

// UploadAttachment PUTs the bytes straight to presigned storage; no bearer
// token, the URL itself carries the authorization.
func (c *HTTPClient) UploadAttachment(ctx context.Context, uploadURL string, data []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, uploadURL, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("upload failed: %s; body: %s", resp.Status, string(b))
	}
	return nil
}

// doJSON performs one authenticated API call, refreshing the token pair and
// retrying once on an expired-token rejection.
func (c *HTTPClient) doJSON(ctx context.Context, method, path string, in, out any) error {
	if err := c.ensureFreshToken(ctx); err != nil {
		return err
	}

	err := c.call(ctx, method, path, in, out)
	if err == nil {
		return nil
	}

	c.mu.Lock()
	canRefresh := c.refreshToken != ""
	c.mu.Unlock()
	if !errors.Is(err, common.ErrUnauthorized) || !canRefresh {
		return err
	}

	if rerr := c.refresh(ctx); rerr != nil {
		return rerr
	}
	return c.call(ctx, method, path, in, out)
}

func (c *HTTPClient) call(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.mu.Lock()
	if c.accessToken != "" {
		req.Header.Set(common.AuthorizationHeaderName, "Bearer "+c.accessToken)
	}
	c.mu.Unlock()

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return fmt.Errorf("%s %s: %w", method, path, common.ErrUnauthorized)
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: %s %s: %s", common.ErrUnavailable, method, path, resp.Status)
	case resp.StatusCode >= 400:
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s %s: %s: %s", method, path, resp.Status, string(b))
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// ensureFreshToken inspects the access token's expiry claim (signature is the
// server's business, not ours) and refreshes proactively when it is about to
// lapse, so a push batch does not fail halfway on an expired token.
func (c *HTTPClient) ensureFreshToken(ctx context.Context) error {
	c.mu.Lock()
	access, refresh := c.accessToken, c.refreshToken
	c.mu.Unlock()

	if access == "" || refresh == "" {
		return nil
	}
	if !tokenExpiringSoon(access) {
		return nil
	}
	return c.refresh(ctx)
}

func tokenExpiringSoon(token string) bool {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		// opaque token; let the server judge it
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return time.Until(exp.Time) < tokenSkew
}

func (c *HTTPClient) refresh(ctx context.Context) error {
	c.mu.Lock()
	refresh := c.refreshToken
	c.mu.Unlock()
	if refresh == "" {
		return common.ErrTokenExpired
	}

	in := struct {
		RefreshToken string `json:"refresh_token"`
	}{RefreshToken: refresh}
	b, err := json.Marshal(in)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/auth/refresh", bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("refresh: %w", common.ErrUnauthorized)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: refresh: %s", common.ErrUnavailable, resp.Status)
	}

	var out struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return err
	}

	c.mu.Lock()
	c.accessToken = out.AccessToken
	c.refreshToken = out.RefreshToken
	c.mu.Unlock()

	c.log.Debug(ctx, "access token refreshed")
	return nil
}
