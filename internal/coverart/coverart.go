// Package coverart downloads front covers from the Cover Art Archive.
package coverart

import (
	"context"
	"fmt"
	"strings"

	"github.com/cigoria/Music-downloader/internal/httpclient"
)

const DefaultBaseURL = "http://coverartarchive.org"

// Getter は HTTP GET を行う
type Getter interface {
	Get(ctx context.Context, url string) (*httpclient.Response, error)
}

// Image はダウンロードしたカバー画像
type Image struct {
	Data     []byte
	MIMEType string
}

// Client はリリースのフロントカバーを取得する
type Client struct {
	http    Getter
	baseURL string
}

// New はクライアントを作成する（baseURL が空ならデフォルト）
func New(http Getter, baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		http:    http,
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// Front はリリースのフロントカバーを返す
// releaseID が空、カバーが存在しない、または画像以外が返った場合は nil, nil
func (c *Client) Front(ctx context.Context, releaseID string) (*Image, error) {
	if releaseID == "" {
		return nil, nil
	}

	resp, err := c.http.Get(ctx, c.baseURL+"/release/"+releaseID+"/front")
	if err != nil {
		return nil, fmt.Errorf("cover art %s: %w", releaseID, err)
	}

	switch resp.StatusCode {
	case 200:
		if !strings.HasPrefix(resp.ContentType, "image/") || len(resp.Body) == 0 {
			return nil, nil
		}
		return &Image{Data: resp.Body, MIMEType: resp.ContentType}, nil
	case 404:
		return nil, nil
	default:
		return nil, fmt.Errorf("cover art %s: unexpected status %d", releaseID, resp.StatusCode)
	}
}
