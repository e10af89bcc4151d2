// Package musicbrainz searches recordings through the MusicBrainz web service.
package musicbrainz

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/cigoria/Music-downloader/internal/httpclient"
)

const (
	DefaultBaseURL = "https://musicbrainz.org"
	DefaultLimit   = 10
	// DefaultRate は MusicBrainz の 1 秒 1 リクエストの制限
	DefaultRate = time.Second

	// NoAlbum はリリース情報がない録音のアルバム名
	NoAlbum = "No album information"
)

var yearPattern = regexp.MustCompile(`^(\d{4})`)

// Getter は HTTP GET を行う
type Getter interface {
	Get(ctx context.Context, url string) (*httpclient.Response, error)
}

// Config は検索クライアントの設定
type Config struct {
	BaseURL string
	Limit   int
	Rate    time.Duration // リクエストの最小間隔（0でデフォルト）
}

// Track は検索結果の 1 件
type Track struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Artist    string `json:"artist"`
	Album     string `json:"album"`
	Year      string `json:"year,omitempty"`
	ReleaseID string `json:"release_id,omitempty"`
}

// Client は録音をタイトルで検索する
type Client struct {
	http    Getter
	baseURL string
	limit   int
	limiter *rate.Limiter
}

// New はクライアントを作成する
func New(http Getter, config Config) *Client {
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	if config.Limit <= 0 {
		config.Limit = DefaultLimit
	}
	if config.Rate <= 0 {
		config.Rate = DefaultRate
	}
	return &Client{
		http:    http,
		baseURL: strings.TrimRight(config.BaseURL, "/"),
		limit:   config.Limit,
		limiter: rate.NewLimiter(rate.Every(config.Rate), 1),
	}
}

type searchResponse struct {
	Recordings []recording `json:"recordings"`
}

type recording struct {
	ID           string         `json:"id"`
	Title        string         `json:"title"`
	ArtistCredit []artistCredit `json:"artist-credit"`
	Releases     []release      `json:"releases"`
}

type artistCredit struct {
	Name       string `json:"name"`
	JoinPhrase string `json:"joinphrase"`
}

type release struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Date  string `json:"date"`
}

// Search は title に一致する録音を検索する
// 複数のワーカーから呼ばれても Rate の間隔は守られる
func (c *Client) Search(ctx context.Context, title string) ([]Track, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("query", title)
	query.Set("limit", strconv.Itoa(c.limit))
	query.Set("fmt", "json")

	resp, err := c.http.Get(ctx, c.baseURL+"/ws/2/recording/?"+query.Encode())
	if err != nil {
		return nil, fmt.Errorf("musicbrainz search: %w", err)
	}
	if resp.StatusCode != 200 {
		return nil, fmt.Errorf("musicbrainz search: unexpected status %d", resp.StatusCode)
	}

	var result searchResponse
	if err := json.Unmarshal(resp.Body, &result); err != nil {
		return nil, fmt.Errorf("musicbrainz search: failed to parse response: %w", err)
	}

	tracks := make([]Track, 0, len(result.Recordings))
	for _, r := range result.Recordings {
		tracks = append(tracks, r.track())
	}
	return tracks, nil
}

func (r recording) track() Track {
	var artist strings.Builder
	for _, credit := range r.ArtistCredit {
		artist.WriteString(credit.Name)
		artist.WriteString(credit.JoinPhrase)
	}

	t := Track{
		ID:     r.ID,
		Title:  r.Title,
		Artist: artist.String(),
		Album:  NoAlbum,
	}
	if len(r.Releases) > 0 {
		rel := r.Releases[0]
		if rel.Title != "" {
			t.Album = rel.Title
		}
		t.ReleaseID = rel.ID
		if m := yearPattern.FindStringSubmatch(rel.Date); m != nil {
			t.Year = m[1]
		}
	}
	return t
}
