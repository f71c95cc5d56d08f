// Package zju implements the university SSO login handshake and the transcript
// fetch against the academic affairs API.
package zju

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"regexp"
	"strings"
	"time"

	apperrors "github.com/gradewatch/gradewatch/internal/errors"
)

const (
	// SessionCookieName is the SSO session token cookie issued on login.
	SessionCookieName = "iPlanetDirectoryPro"

	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/108.0.0.0 Safari/537.36 Edg/108.0.1462.76"

	// loginPageMarker still being present in the POST response means the form
	// was re-rendered, i.e. the credentials were rejected.
	loginPageMarker = "统一身份认证"

	// maxRedirects bounds the manual redirect chain on the transcript page.
	// The profile page bounces through several cross-scheme redirects that the
	// default client policy does not cover; past this bound the chain is
	// treated as broken rather than followed further.
	maxRedirects = 10
)

var (
	executionPattern  = regexp.MustCompile(`name="execution" value="(.*?)"`)
	courseListPattern = regexp.MustCompile(`"list":(.*?)},"`)
)

// Config carries the endpoint URLs and the request timeout. Defaults point at
// production; tests substitute httptest servers.
type Config struct {
	AuthURL    string
	PubKeyURL  string
	PageURL    string
	APIURL     string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// DefaultConfig returns the production endpoints.
func DefaultConfig() Config {
	return Config{
		AuthURL:   "https://zjuam.zju.edu.cn/cas/login",
		PubKeyURL: "https://zjuam.zju.edu.cn/cas/v2/getPubKey",
		PageURL:   "https://appservice.zju.edu.cn/zdjw/cjcx/cjcxjg",
		APIURL:    "https://appservice.zju.edu.cn/zju-smartcampus/zdydjw/api/kkqk_cxXscjxx",
		Timeout:   30 * time.Second,
	}
}

// Client talks to the SSO and transcript endpoints. It performs no retries;
// retry policy belongs to the caller.
type Client struct {
	cfg Config
	log *slog.Logger
}

// NewClient builds a Client from cfg, filling in defaults for zero fields.
func NewClient(cfg Config, log *slog.Logger) *Client {
	defaults := DefaultConfig()
	if cfg.AuthURL == "" {
		cfg.AuthURL = defaults.AuthURL
	}
	if cfg.PubKeyURL == "" {
		cfg.PubKeyURL = defaults.PubKeyURL
	}
	if cfg.PageURL == "" {
		cfg.PageURL = defaults.PageURL
	}
	if cfg.APIURL == "" {
		cfg.APIURL = defaults.APIURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaults.Timeout
	}

	if log == nil {
		log = slog.Default()
	}

	return &Client{
		cfg: cfg,
		log: log,
	}
}

// Login performs the SSO handshake and returns the session cookie value.
func (c *Client) Login(ctx context.Context, username, password string) (string, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return "", fmt.Errorf("create cookie jar: %w", err)
	}

	httpClient := c.newHTTPClient(jar, nil)

	execution, err := c.fetchExecutionToken(ctx, httpClient)
	if err != nil {
		return "", err
	}

	encryptedPassword, err := c.fetchKeyAndEncrypt(ctx, httpClient, password)
	if err != nil {
		return "", err
	}

	if err := c.submitLoginForm(ctx, httpClient, username, encryptedPassword, execution); err != nil {
		return "", err
	}

	authURL, err := url.Parse(c.cfg.AuthURL)
	if err != nil {
		return "", fmt.Errorf("parse auth url: %w", err)
	}

	for _, cookie := range jar.Cookies(authURL) {
		if cookie.Name == SessionCookieName {
			return cookie.Value, nil
		}
	}

	return "", apperrors.NewAuthError("session cookie missing after login", "无法获取Cookie "+SessionCookieName)
}

// FetchTranscriptRaw visits the transcript page with the session cookie,
// following redirects manually, then extracts the course list from the API
// response.
func (c *Client) FetchTranscriptRaw(ctx context.Context, cookie string) (string, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return "", fmt.Errorf("create cookie jar: %w", err)
	}

	// Redirects are followed by hand, so the client must not chase them.
	httpClient := c.newHTTPClient(jar, func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	})

	sessionCookie := &http.Cookie{Name: SessionCookieName, Value: cookie}

	if err := c.visitTranscriptPage(ctx, httpClient, sessionCookie); err != nil {
		return "", err
	}

	return c.queryTranscriptAPI(ctx, httpClient, sessionCookie)
}

// FetchTranscriptWithLogin composes Login and FetchTranscriptRaw.
func (c *Client) FetchTranscriptWithLogin(ctx context.Context, username, password string) (string, error) {
	cookie, err := c.Login(ctx, username, password)
	if err != nil {
		return "", err
	}

	return c.FetchTranscriptRaw(ctx, cookie)
}

func (c *Client) fetchExecutionToken(ctx context.Context, httpClient *http.Client) (string, error) {
	body, err := c.get(ctx, httpClient, c.cfg.AuthURL, nil)
	if err != nil {
		return "", apperrors.NewNetworkError("fetch login page", "访问统一身份认证页面失败", err)
	}

	match := executionPattern.FindStringSubmatch(body)
	if match == nil || match[1] == "" {
		return "", apperrors.NewAuthError("execution token not found in login page", "解析统一身份认证页面失败")
	}

	return match[1], nil
}

func (c *Client) fetchKeyAndEncrypt(ctx context.Context, httpClient *http.Client, password string) (string, error) {
	body, err := c.get(ctx, httpClient, c.cfg.PubKeyURL, nil)
	if err != nil {
		return "", apperrors.NewAuthError("public key fetch failed", "获取密钥失败")
	}

	var key map[string]string
	if err := json.Unmarshal([]byte(body), &key); err != nil {
		return "", apperrors.NewAuthError("public key response malformed", "获取密钥失败")
	}

	exponent, modulus := key["exponent"], key["modulus"]
	if exponent == "" || modulus == "" {
		return "", apperrors.NewAuthError("public key response incomplete", "获取密钥失败")
	}

	encrypted, err := encryptPassword(password, exponent, modulus)
	if err != nil {
		return "", apperrors.NewAuthError("password encryption failed: "+err.Error(), "获取密钥失败")
	}

	return encrypted, nil
}

func (c *Client) submitLoginForm(ctx context.Context, httpClient *http.Client, username, encryptedPassword, execution string) error {
	form := url.Values{
		"username":  {username},
		"password":  {encryptedPassword},
		"execution": {execution},
		"_eventId":  {"submit"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.AuthURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build login request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := httpClient.Do(req)
	if err != nil {
		return apperrors.NewNetworkError("submit login form", "提交登录表单失败", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return apperrors.NewNetworkError("read login response", "提交登录表单失败", err)
	}

	if strings.Contains(string(body), loginPageMarker) {
		return apperrors.NewAuthError("credentials rejected", "账号或密码错误")
	}

	return nil
}

func (c *Client) visitTranscriptPage(ctx context.Context, httpClient *http.Client, sessionCookie *http.Cookie) error {
	target := c.cfg.PageURL

	for redirects := 0; ; redirects++ {
		if redirects > maxRedirects {
			return apperrors.NewNetworkError(
				fmt.Sprintf("transcript page redirect chain exceeded %d hops", maxRedirects),
				"访问成绩查询页面失败，可能是服务器故障", nil)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return apperrors.NewNetworkError("build transcript page request", "访问成绩查询页面失败，可能是服务器故障", err)
		}
		req.Header.Set("User-Agent", userAgent)
		req.AddCookie(sessionCookie)

		resp, err := httpClient.Do(req)
		if err != nil {
			return apperrors.NewNetworkError("transcript page unreachable", "访问成绩查询页面失败，可能是服务器故障", err)
		}

		if !isRedirect(resp.StatusCode) {
			resp.Body.Close()
			return nil
		}

		location, err := resp.Location()
		resp.Body.Close()
		if err != nil {
			return apperrors.NewNetworkError("redirect without location", "访问成绩查询页面失败，可能是服务器故障", err)
		}

		target = location.String()
	}
}

func (c *Client) queryTranscriptAPI(ctx context.Context, httpClient *http.Client, sessionCookie *http.Cookie) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.APIURL, nil)
	if err != nil {
		return "", apperrors.NewNetworkError("build transcript api request", "获取成绩单失败，可能是Cookie过期", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.AddCookie(sessionCookie)

	resp, err := httpClient.Do(req)
	if err != nil {
		return "", apperrors.NewNetworkError("transcript api unreachable", "获取成绩单失败，可能是Cookie过期", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", apperrors.NewNetworkError("read transcript api response", "获取成绩单失败，可能是Cookie过期", err)
	}

	match := courseListPattern.FindStringSubmatch(string(body))
	if match == nil || match[1] == "" {
		return "", apperrors.NewAuthError("course list missing from api response", "获取成绩单失败，可能是Cookie过期")
	}

	return match[1], nil
}

func (c *Client) get(ctx context.Context, httpClient *http.Client, target string, cookie *http.Cookie) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", userAgent)
	if cookie != nil {
		req.AddCookie(cookie)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	return string(body), nil
}

func (c *Client) newHTTPClient(jar http.CookieJar, checkRedirect func(*http.Request, []*http.Request) error) *http.Client {
	if c.cfg.HTTPClient != nil {
		clone := *c.cfg.HTTPClient
		clone.Jar = jar
		clone.CheckRedirect = checkRedirect
		return &clone
	}

	return &http.Client{
		Jar:           jar,
		Timeout:       c.cfg.Timeout,
		CheckRedirect: checkRedirect,
	}
}

func isRedirect(status int) bool {
	switch status {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		return true
	}
	return false
}

// encryptPassword applies the exact scheme the SSO verifier expects: the UTF-8
// password bytes as an unsigned big-endian integer, raised to the exponent
// modulo the modulus with no padding, rendered as unsigned big-endian hex.
// The verifier treats the hex case-insensitively.
func encryptPassword(password, exponentHex, modulusHex string) (string, error) {
	exponent, ok := new(big.Int).SetString(exponentHex, 16)
	if !ok {
		return "", fmt.Errorf("invalid exponent %q", exponentHex)
	}

	modulus, ok := new(big.Int).SetString(modulusHex, 16)
	if !ok {
		return "", fmt.Errorf("invalid modulus %q", modulusHex)
	}

	if modulus.Sign() <= 0 {
		return "", fmt.Errorf("non-positive modulus")
	}

	plain := new(big.Int).SetBytes([]byte(password))
	encrypted := new(big.Int).Exp(plain, exponent, modulus)

	return fmt.Sprintf("%X", encrypted), nil
}
