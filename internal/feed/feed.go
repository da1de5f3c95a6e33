package feed

import (
	"regexp"
	"strings"

	"github.com/cehbz/torrentname"
)

// Item is one raw feed entry. At least one of the two catalog identifiers
// must be present for the item to be considered; otherwise it is invalid and
// dropped before resolution.
type Item struct {
	Title      string `json:"title"`
	AnidbAid   int    `json:"anidb_aid"`
	AnidbEid   int    `json:"anidb_eid"`
	TorrentURL string `json:"torrent_url"`
	TotalSize  int64  `json:"total_size"`
	Seeders    int    `json:"seeders"`
	Leechers   int    `json:"leechers"`
}

// VariantTag classifies the release variant hint in a feed title.
type VariantTag string

const (
	VariantNone VariantTag = ""
	VariantJA   VariantTag = "JA"
	VariantCA   VariantTag = "CA"
)

var variantPattern = regexp.MustCompile(`\((JA|CA)\)`)

// Valid reports whether the item carries enough identity to resolve.
func (i Item) Valid() bool {
	return strings.TrimSpace(i.TorrentURL) != "" && (i.AnidbAid > 0 || i.AnidbEid > 0)
}

// Variant extracts the release variant tag from the title, if any.
func (i Item) Variant() VariantTag {
	match := variantPattern.FindStringSubmatch(i.Title)
	if match == nil {
		return VariantNone
	}
	return VariantTag(match[1])
}

// EpisodeNumber parses the episode number out of the release title. Returns
// 0 when the title does not parse; callers treat that as an invalid item.
func (i Item) EpisodeNumber() int {
	parsed := torrentname.Parse(i.Title)
	if parsed == nil {
		return 0
	}
	return parsed.Episode
}
