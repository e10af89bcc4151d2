package tagger

import (
	"fmt"

	"github.com/bogem/id3v2/v2"

	"github.com/cigoria/Music-downloader/internal/coverart"
	"github.com/cigoria/Music-downloader/internal/musicbrainz"
)

const (
	unknownArtist = "Unknown"
	unknownAlbum  = "Unknown album"
)

// TagWriter は選ばれた曲情報をファイルに書き込む
type TagWriter interface {
	Write(path string, track musicbrainz.Track, cover *coverart.Image) error
}

// ID3Writer は ID3v2 タグ（TPE1/TIT2/TALB/TDRC/APIC）を書き込む
type ID3Writer struct{}

func (ID3Writer) Write(path string, track musicbrainz.Track, cover *coverart.Image) error {
	tag, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		return fmt.Errorf("failed to open tags of %s: %w", path, err)
	}
	defer tag.Close()

	tag.SetDefaultEncoding(id3v2.EncodingUTF8)
	tag.SetArtist(orDefault(track.Artist, unknownArtist))
	tag.SetTitle(track.Title)
	tag.SetAlbum(orDefault(track.Album, unknownAlbum))
	if track.Year != "" {
		tag.DeleteFrames("TDRC")
		tag.AddTextFrame("TDRC", id3v2.EncodingUTF8, track.Year)
	}

	if cover != nil {
		// 既存のカバーはすべて置き換える
		tag.DeleteFrames(tag.CommonID("Attached picture"))
		tag.AddAttachedPicture(id3v2.PictureFrame{
			Encoding:    id3v2.EncodingUTF8,
			MimeType:    cover.MIMEType,
			PictureType: id3v2.PTFrontCover,
			Description: "Cover",
			Picture:     cover.Data,
		})
	}

	if err := tag.Save(); err != nil {
		return fmt.Errorf("failed to save tags of %s: %w", path, err)
	}
	return nil
}
