package qobuz

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// ID is a Qobuz identifier. Albums use string ids, tracks, artists and playlists
// use numbers; both decode into ID.
type ID string

func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*id = ID(n.String())
	return nil
}

func (id ID) String() string { return string(id) }

type Artist struct {
	ID   ID     `json:"id"`
	Name string `json:"name"`
}

type Image struct {
	Small     string `json:"small"`
	Thumbnail string `json:"thumbnail"`
	Large     string `json:"large"`
}

type Goody struct {
	URL         string `json:"url"`
	Description string `json:"description"`
}

type Album struct {
	ID                  ID      `json:"id"`
	Title               string  `json:"title"`
	Version             string  `json:"version"`
	Artist              Artist  `json:"artist"`
	Image               Image   `json:"image"`
	Goodies             []Goody `json:"goodies"`
	ReleaseDateOriginal string  `json:"release_date_original"`
	Streamable          bool    `json:"streamable"`
	MaximumBitDepth     int     `json:"maximum_bit_depth"`
	MaximumSamplingRate float64 `json:"maximum_sampling_rate"`
	TracksCount         int     `json:"tracks_count"`
	Tracks              struct {
		Items []Track `json:"items"`
	} `json:"tracks"`
}

// Year returns the first four characters of the original release date.
func (a *Album) Year() string {
	if len(a.ReleaseDateOriginal) < 4 {
		return a.ReleaseDateOriginal
	}
	return a.ReleaseDateOriginal[:4]
}

// FullTitle appends the version ("Remastered", "Deluxe") unless the title already carries it.
func (a *Album) FullTitle() string {
	return withVersion(a.Title, a.Version)
}

type Track struct {
	ID                  ID      `json:"id"`
	Title               string  `json:"title"`
	Version             string  `json:"version"`
	TrackNumber         int     `json:"track_number"`
	MediaNumber         int     `json:"media_number"`
	Performer           *Artist `json:"performer"`
	Streamable          bool    `json:"streamable"`
	MaximumBitDepth     int     `json:"maximum_bit_depth"`
	MaximumSamplingRate float64 `json:"maximum_sampling_rate"`

	// Album is only present on track/get responses.
	Album *Album `json:"album"`
}

func (t *Track) FullTitle() string {
	return withVersion(t.Title, t.Version)
}

type Restriction struct {
	Code string `json:"code"`
}

// FileURL is the answer of track/getFileUrl.
type FileURL struct {
	TrackID      ID            `json:"track_id"`
	URL          string        `json:"url"`
	FormatID     int           `json:"format_id"`
	MimeType     string        `json:"mime_type"`
	BitDepth     int           `json:"bit_depth"`
	SamplingRate float64       `json:"sampling_rate"`
	Sample       bool          `json:"sample"`
	Restrictions []Restriction `json:"restrictions"`
}

// Demo reports whether the API only serves a 30 second sample.
func (f *FileURL) Demo() bool {
	return f.Sample || f.SamplingRate == 0
}

func (f *FileURL) restricted(code string) bool {
	for _, r := range f.Restrictions {
		if r.Code == code {
			return true
		}
	}
	return false
}

type itemsPage struct {
	Total  int `json:"total"`
	Offset int `json:"offset"`
	Limit  int `json:"limit"`
	Items  []struct {
		ID ID `json:"id"`
	} `json:"items"`
}

// collectionPage covers playlist/get, artist/get and label/get.
type collectionPage struct {
	Name   string     `json:"name"`
	Tracks *itemsPage `json:"tracks"`
	Albums *itemsPage `json:"albums"`
}

func (p *collectionPage) items() *itemsPage {
	if p.Tracks != nil {
		return p.Tracks
	}
	if p.Albums != nil {
		return p.Albums
	}
	return &itemsPage{}
}

type loginResponse struct {
	UserAuthToken string `json:"user_auth_token"`
	User          struct {
		Email      string `json:"email"`
		Credential struct {
			Parameters *struct {
				ShortLabel string `json:"short_label"`
			} `json:"parameters"`
		} `json:"credential"`
	} `json:"user"`
}

type apiError struct {
	Status  string `json:"status"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func formatRate(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
