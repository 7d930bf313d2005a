package library

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/example/libseat/internal/reservation"
)

const (
	DefaultBaseURL = "http://libzwxt.ahnu.edu.cn"

	loginPath   = "/SeatWx/login.aspx"
	reservePath = "/SeatWx/ajaxpro/SeatManage.Seat,SeatManage.ashx"
	refererPath = "/SeatWx/Seat.aspx?fid=3&sid=1438"

	// AjaxPro dispatches on this header, not on the URL.
	ajaxMethodHeader = "X-AjaxPro-Method"
	addOrderMethod   = "AddOrder"

	defaultUA = "Mozilla/5.0 (Linux; Android 12; M2006J10C Build/SP1A.210812.016; wv) AppleWebKit/537.36 " +
		"(KHTML, like Gecko) Version/4.0 Chrome/107.0.5304.141 Mobile Safari/537.36 XWEB/5061 " +
		"MMWEBSDK/20230303 MMWEBID/534 MicroMessenger/8.0.34.2340(0x2800225D) WeChat/arm64 Weixin " +
		"NetType/4G Language/zh_CN ABI/arm64;"

	maxBody = 1 << 20
)

// Endpoint describes one deployment of the seat system.
type Endpoint struct {
	BaseURL   string
	UserAgent string

	// ASP.NET form state the login page validates verbatim.
	ViewState          string
	ViewStateGenerator string
	EventValidation    string
	SubmitLabel        string

	Timeout time.Duration
}

func DefaultEndpoint() Endpoint {
	return Endpoint{
		BaseURL:            DefaultBaseURL,
		UserAgent:          defaultUA,
		ViewState:          "/wEPDwULLTE0MTcxNzMyMjZkZAl5GTLNAO7jkaD1B+BbDzJTZe4WiME3RzNDU4obNxXE",
		ViewStateGenerator: "F2D227C8",
		EventValidation:    "/wEWBQK1odvtBQLyj/OQAgKXtYSMCgKM54rGBgKj48j5D4sJr7QMZnQ4zS9tzQuQ1arifvSWo1qu0EsBRnWwz6pw",
		SubmitLabel:        "登 录  ",
		Timeout:            15 * time.Second,
	}
}

// Client is the HTTP transport for one reservation run. Each Client owns its
// cookie jar, so runs never share a backend session.
type Client struct {
	hc   *http.Client
	ep   Endpoint
	base *url.URL
	log  *zap.Logger
}

var _ reservation.Transport = (*Client)(nil)

func New(ep Endpoint, log *zap.Logger) (*Client, error) {
	if ep.BaseURL == "" {
		ep.BaseURL = DefaultBaseURL
	}
	if ep.UserAgent == "" {
		ep.UserAgent = defaultUA
	}
	if ep.Timeout <= 0 {
		ep.Timeout = 15 * time.Second
	}
	base, err := url.Parse(strings.TrimRight(ep.BaseURL, "/"))
	if err != nil || base.Host == "" {
		return nil, fmt.Errorf("invalid library base url %q", ep.BaseURL)
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("cookie jar: %w", err)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		hc:   &http.Client{Timeout: ep.Timeout, Jar: jar},
		ep:   ep,
		base: base,
		log:  log.Named("library"),
	}, nil
}

func (c *Client) Login(ctx context.Context, creds reservation.Credentials) (string, error) {
	form := url.Values{}
	form.Set("__VIEWSTATE", c.ep.ViewState)
	form.Set("__VIEWSTATEGENERATOR", c.ep.ViewStateGenerator)
	form.Set("__EVENTVALIDATION", c.ep.EventValidation)
	form.Set("tbUserName", creds.Account)
	form.Set("tbPassWord", creds.Password)
	form.Set("Button1", c.ep.SubmitLabel)
	form.Set("hfurl", "")

	status, body, err := c.do(ctx, loginPath, "application/x-www-form-urlencoded", []byte(form.Encode()), nil)
	if err != nil {
		return "", fmt.Errorf("library login: %w", err)
	}
	c.log.Debug("login response", zap.String("account", creds.Account), zap.Int("status", status), zap.Int("bytes", len(body)))
	return body, nil
}

func (c *Client) Submit(ctx context.Context, req reservation.Request) (string, error) {
	jb, err := json.Marshal(req)
	if err != nil {
		return "", err
	}
	origin := c.base.Scheme + "://" + c.base.Host
	headers := map[string]string{
		"origin":         origin,
		"referer":        origin + refererPath,
		ajaxMethodHeader: addOrderMethod,
	}
	status, body, err := c.do(ctx, reservePath, "application/json", jb, headers)
	if err != nil {
		return "", fmt.Errorf("library submit: %w", err)
	}
	c.log.Debug("reservation response", zap.Int("slot_id", req.SlotID), zap.Int("status", status), zap.Int("bytes", len(body)))
	return body, nil
}

// do posts body to path. Non-2xx statuses are not errors: the backend
// answers in free text and the caller classifies whatever comes back.
func (c *Client) do(ctx context.Context, path, contentType string, body []byte, headers map[string]string) (int, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base.String()+path, bytes.NewReader(body))
	if err != nil {
		return 0, "", err
	}
	req.Host = c.base.Host
	req.Header.Set("user-agent", c.ep.UserAgent)
	req.Header.Set("content-type", contentType)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	res, err := c.hc.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer res.Body.Close()
	b, err := io.ReadAll(io.LimitReader(res.Body, maxBody))
	if err != nil {
		return res.StatusCode, "", err
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		c.log.Warn("unexpected status", zap.String("path", path), zap.Int("status", res.StatusCode))
	}
	return res.StatusCode, string(b), nil
}
