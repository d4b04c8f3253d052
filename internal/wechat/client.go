package wechat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"rainbow-register/internal/config"
)

// Code2SessionURL is the mini-program login exchange endpoint
const Code2SessionURL = "https://api.weixin.qq.com/sns/jscode2session"

// DevOpenIDPrefix marks identifiers minted without WeChat credentials
const DevOpenIDPrefix = "dev_openid_"

var ErrLoginFailed = errors.New("wechat login exchange failed")

// Client exchanges mini-program login codes for openids
type Client struct {
	httpClient *http.Client
	baseURL    string
	appID      string
	appSecret  string
	logger     *zap.Logger
}

type sessionResponse struct {
	OpenID     string `json:"openid"`
	SessionKey string `json:"session_key"`
	UnionID    string `json:"unionid"`
	ErrCode    int    `json:"errcode"`
	ErrMsg     string `json:"errmsg"`
}

func NewClient(cfg config.WeChatConfig, logger *zap.Logger) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		baseURL:   Code2SessionURL,
		appID:     cfg.AppID,
		appSecret: cfg.AppSecret,
		logger:    logger,
	}
}

// DevMode reports whether credentials are missing, in which case openids
// are derived from the login code itself.
func (c *Client) DevMode() bool {
	return c.appID == "" || c.appSecret == ""
}

// OpenID exchanges a wx.login code for the holder's openid
func (c *Client) OpenID(ctx context.Context, code string) (string, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return "", fmt.Errorf("%w: empty code", ErrLoginFailed)
	}
	if c.DevMode() {
		return DevOpenIDPrefix + code, nil
	}

	params := url.Values{}
	params.Set("appid", c.appID)
	params.Set("secret", c.appSecret)
	params.Set("js_code", code)
	params.Set("grant_type", "authorization_code")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrLoginFailed, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return "", fmt.Errorf("%w: failed to read response: %v", ErrLoginFailed, err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: wechat API error: %d - %s", ErrLoginFailed, resp.StatusCode, string(body))
	}

	var session sessionResponse
	if err := json.Unmarshal(body, &session); err != nil {
		return "", fmt.Errorf("%w: failed to decode response: %v", ErrLoginFailed, err)
	}
	if session.OpenID == "" {
		c.logger.Warn("WeChat code2session returned no openid",
			zap.Int("errcode", session.ErrCode),
			zap.String("errmsg", session.ErrMsg),
		)
		return "", fmt.Errorf("%w: errcode %d: %s", ErrLoginFailed, session.ErrCode, session.ErrMsg)
	}
	return session.OpenID, nil
}
