// Package httpclient wraps fasthttp for the outbound lookups of the tagger.
package httpclient

import (
	"context"
	"fmt"
	"time"

	"github.com/valyala/fasthttp"
)

const (
	DefaultTimeout      = 10 * time.Second
	DefaultMaxRedirects = 5
)

// Config はHTTPクライアントの設定
type Config struct {
	UserAgent    string
	Timeout      time.Duration
	MaxRedirects int
	// Dial は接続方法を差し替える（nil で TCP）
	Dial fasthttp.DialFunc
}

// Response はレスポンスのコピー
type Response struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// Client は User-Agent とタイムアウトを付けて GET を行う
type Client struct {
	client       *fasthttp.Client
	userAgent    string
	timeout      time.Duration
	maxRedirects int
}

// New はクライアントを作成する
func New(config Config) *Client {
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	if config.MaxRedirects <= 0 {
		config.MaxRedirects = DefaultMaxRedirects
	}
	return &Client{
		client: &fasthttp.Client{
			Name:                     config.UserAgent,
			Dial:                     config.Dial,
			ReadTimeout:              config.Timeout,
			WriteTimeout:             config.Timeout,
			NoDefaultUserAgentHeader: config.UserAgent == "",
		},
		userAgent:    config.UserAgent,
		timeout:      config.Timeout,
		maxRedirects: config.MaxRedirects,
	}
}

// Get は url を取得する。リダイレクトは MaxRedirects 回まで追う
// タイムアウトは Timeout と ctx の期限の短い方
func (c *Client) Get(ctx context.Context, url string) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	timeout := c.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if until := time.Until(deadline); until < timeout {
			timeout = until
		}
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.Header.SetMethod(fasthttp.MethodGet)
	req.SetRequestURI(url)
	if c.userAgent != "" {
		req.Header.SetUserAgent(c.userAgent)
	}
	req.SetTimeout(timeout)

	if err := c.client.DoRedirects(req, resp, c.maxRedirects); err != nil {
		return nil, fmt.Errorf("GET %s: %w", url, err)
	}

	body := make([]byte, len(resp.Body()))
	copy(body, resp.Body())

	return &Response{
		StatusCode:  resp.StatusCode(),
		ContentType: string(resp.Header.ContentType()),
		Body:        body,
	}, nil
}
