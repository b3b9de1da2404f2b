package qobuz

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

const (
	DefaultFolderFormat = "{artist} - {album} ({year}) [{bit_depth}B-{sampling_rate}kHz]"
	DefaultTrackFormat  = "{tracknumber}. {tracktitle}"

	formatMP3     = "MP3"
	formatFLAC    = "FLAC"
	formatUnknown = "Unknown"

	// File names are cut to this many bytes before the extension is added.
	maxNameLen = 250
)

// Fallback folder and track formats for releases whose bit depth and sampling
// rate are unknown.
var degradedFormats = map[string][2]string{
	formatMP3:     {"{artist} - {album} ({year}) [MP3]", DefaultTrackFormat},
	formatUnknown: {"{artist} - {album}", DefaultTrackFormat},
}

var placeholderRegex = regexp.MustCompile(`\{(\w+)\}`)

// Characters that are invalid in a file name on at least one common filesystem.
var invalidFilenameChars = strings.NewReplacer(
	"/", "", "\\", "", ":", "", "*", "", "?", "", `"`, "", "<", "", ">", "", "|", "",
)

type releaseFormat struct {
	Name         string
	QualityMet   bool
	BitDepth     int
	SamplingRate float64
}

func (f releaseFormat) String() string {
	if f.BitDepth == 0 {
		return f.Name
	}
	return fmt.Sprintf("%s (%d/%s)", f.Name, f.BitDepth, formatRate(f.SamplingRate))
}

func formatFromFileURL(fu *FileURL) releaseFormat {
	return releaseFormat{
		Name:         formatFLAC,
		QualityMet:   !fu.restricted(formatRestricted),
		BitDepth:     fu.BitDepth,
		SamplingRate: fu.SamplingRate,
	}
}

// renderTemplate substitutes {key} placeholders. Unknown keys are an error.
func renderTemplate(tmpl string, attrs map[string]string) (string, error) {
	var missing string
	out := placeholderRegex.ReplaceAllStringFunc(tmpl, func(m string) string {
		key := m[1 : len(m)-1]
		v, ok := attrs[key]
		if !ok {
			missing = key
			return m
		}
		return v
	})

	if missing != "" {
		return "", fmt.Errorf("unknown placeholder {%s} in format %q", missing, tmpl)
	}

	return out, nil
}

// cleanFormats drops audio extensions from the configured formats and swaps in
// the degraded defaults when a format needs values the release does not have.
// The second return value lists the replacements that were made.
func cleanFormats(folder, track, fileFormat string) (string, string, []string) {
	formats := [2]string{folder, track}
	var replaced []string

	for i, fs := range formats {
		fs = strings.TrimSuffix(fs, ".mp3")
		fs = strings.TrimSuffix(fs, ".flac")
		fs = strings.TrimSpace(fs)

		if def, ok := degradedFormats[fileFormat]; ok &&
			(strings.Contains(fs, "bit_depth") || strings.Contains(fs, "sampling_rate")) {
			fs = def[i]
			replaced = append(replaced, fs)
		}

		formats[i] = fs
	}

	return formats[0], formats[1], replaced
}

func sanitizeFilename(name string) string {
	name = invalidFilenameChars.Replace(name)
	name = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, name)

	return strings.TrimRight(strings.TrimSpace(name), ".")
}

// truncateName cuts name to at most n bytes without splitting a UTF-8 sequence.
func truncateName(name string, n int) string {
	if len(name) <= n {
		return name
	}
	for n > 0 && !utf8.RuneStart(name[n]) {
		n--
	}
	return strings.TrimSpace(name[:n])
}

// sanitizeFilepath keeps "/" as a separator so folder formats may nest directories.
func sanitizeFilepath(path string) string {
	parts := strings.Split(path, "/")
	clean := parts[:0]
	for _, p := range parts {
		if p = sanitizeFilename(p); p != "" {
			clean = append(clean, p)
		}
	}
	return filepath.Join(clean...)
}

func withVersion(title, version string) string {
	if version == "" || strings.Contains(strings.ToLower(title), strings.ToLower(version)) {
		return title
	}
	return fmt.Sprintf("%s (%s)", title, version)
}

func albumAttrs(a *Album, f releaseFormat) map[string]string {
	return map[string]string{
		"artist":        a.Artist.Name,
		"album":         a.FullTitle(),
		"year":          a.Year(),
		"format":        f.Name,
		"bit_depth":     intOrEmpty(f.BitDepth),
		"sampling_rate": rateOrEmpty(f.SamplingRate),
	}
}

// trackFolderAttrs names the folder of a single track download after its album.
func trackFolderAttrs(t *Track, f releaseFormat) map[string]string {
	attrs := albumAttrs(t.Album, f)
	attrs["album"] = t.Album.Title
	attrs["tracktitle"] = t.FullTitle()
	return attrs
}

func trackFileAttrs(t *Track, release *Album) map[string]string {
	artist := ""
	if t.Performer != nil {
		artist = t.Performer.Name
	}

	albumArtist := release.Artist.Name
	if t.Album != nil && t.Album.Artist.Name != "" {
		albumArtist = t.Album.Artist.Name
	}

	return map[string]string{
		"artist":        artist,
		"albumartist":   albumArtist,
		"bit_depth":     intOrEmpty(t.MaximumBitDepth),
		"sampling_rate": rateOrEmpty(t.MaximumSamplingRate),
		"tracktitle":    t.Title,
		"version":       t.Version,
		"tracknumber":   fmt.Sprintf("%02d", t.TrackNumber),
	}
}

func intOrEmpty(v int) string {
	if v == 0 {
		return ""
	}
	return strconv.Itoa(v)
}

func rateOrEmpty(v float64) string {
	if v == 0 {
		return ""
	}
	return formatRate(v)
}
