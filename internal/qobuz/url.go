package qobuz

import "regexp"

// URLType is the kind of Qobuz resource a URL points at.
type URLType string

const (
	TypeAlbum    URLType = "album"
	TypeArtist   URLType = "artist"
	TypeTrack    URLType = "track"
	TypePlaylist URLType = "playlist"
	TypeLabel    URLType = "label"
)

// Matches store, open and play URLs, with or without a locale segment and slug:
//
//	https://www.qobuz.com/us-en/album/some-title/0060253780099
//	https://open.qobuz.com/track/59667831
//	https://play.qobuz.com/playlist/1234
var urlRegex = regexp.MustCompile(
	`(?:https://(?:www|open|play)\.qobuz\.com)?(?:/[a-z]{2}-[a-z]{2})?/(album|artist|track|playlist|label)(?:/[-\w]+)?/(\w+)`,
)

// Ref identifies a Qobuz resource.
type Ref struct {
	Type URLType
	ID   string
}

// ParseURL classifies rawURL. It returns an *InvalidURLError when it is not a
// Qobuz resource URL.
func ParseURL(rawURL string) (Ref, error) {
	m := urlRegex.FindStringSubmatch(rawURL)
	if m == nil {
		return Ref{}, &InvalidURLError{URL: rawURL}
	}

	return Ref{Type: URLType(m[1]), ID: m[2]}, nil
}

// collection reports whether the resource expands into several releases.
func (r Ref) collection() bool {
	switch r.Type {
	case TypeArtist, TypePlaylist, TypeLabel:
		return true
	}
	return false
}
