package tagger

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/cigoria/Music-downloader/internal/musicbrainz"
)

// 選択表の列幅
const (
	artistWidth = 30
	titleWidth  = 40
	albumWidth  = 30
	yearWidth   = 4
)

// Selector は複数の検索結果から 1 件を選ぶ。nil はスキップを意味する
type Selector interface {
	Select(ctx context.Context, file string, tracks []musicbrainz.Track) (*musicbrainz.Track, error)
}

// AutoSelector は常に最初の結果を選ぶ
type AutoSelector struct{}

func (AutoSelector) Select(_ context.Context, _ string, tracks []musicbrainz.Track) (*musicbrainz.Track, error) {
	if len(tracks) == 0 {
		return nil, nil
	}
	return &tracks[0], nil
}

// PromptSelector は端末に表を表示して番号で選ばせる
// 複数のワーカーから呼ばれても問い合わせは 1 件ずつ行う
type PromptSelector struct {
	mu  sync.Mutex
	in  *bufio.Reader
	out io.Writer
}

// NewPromptSelector は in から回答を読み、out に表を書く PromptSelector を作成する
func NewPromptSelector(in io.Reader, out io.Writer) *PromptSelector {
	return &PromptSelector{
		in:  bufio.NewReader(in),
		out: out,
	}
}

func (s *PromptSelector) Select(ctx context.Context, file string, tracks []musicbrainz.Track) (*musicbrainz.Track, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	head := formatRow("ARTIST", "TITLE", "ALBUM", "YEAR")
	fmt.Fprintf(s.out, "\n--- Multiple matches for %s, choose one: ---\n", file)
	fmt.Fprintf(s.out, "     %s\n", head)
	fmt.Fprintf(s.out, "     %s\n", strings.Repeat("-", len(head)))
	for i, t := range tracks {
		fmt.Fprintf(s.out, "%3d) %s\n", i+1, trackRow(t))
	}
	fmt.Fprintf(s.out, "%3d) Skip (write nothing)\n", 0)

	for {
		fmt.Fprintf(s.out, "Selection [0-%d]: ", len(tracks))
		line, err := s.in.ReadString('\n')
		if err != nil && line == "" {
			if err == io.EOF {
				return nil, nil
			}
			return nil, err
		}

		n, convErr := strconv.Atoi(strings.TrimSpace(line))
		switch {
		case convErr != nil || n < 0 || n > len(tracks):
			fmt.Fprintln(s.out, "Invalid selection.")
			if err != nil {
				return nil, nil
			}
		case n == 0:
			return nil, nil
		default:
			return &tracks[n-1], nil
		}
	}
}

func trackRow(t musicbrainz.Track) string {
	return formatRow(
		orDefault(t.Artist, "Unknown"),
		orDefault(t.Title, "Unknown title"),
		orDefault(t.Album, "No album"),
		orDefault(t.Year, "----"),
	)
}

func formatRow(artist, title, album, year string) string {
	return fmt.Sprintf("| %s | %s | %s | %s |",
		pad(artist, artistWidth),
		pad(title, titleWidth),
		pad(album, albumWidth),
		pad(year, yearWidth),
	)
}

// pad は幅に収まらない文字列を "..." で切り詰め、右側を空白で埋める
func pad(s string, width int) string {
	r := []rune(s)
	if len(r) > width {
		r = append(r[:width-3], []rune("...")...)
	}
	if n := width - len(r); n > 0 {
		return string(r) + strings.Repeat(" ", n)
	}
	return string(r)
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
