package qobuz

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/italolelis/musicarr/internal/logctx"
	"github.com/italolelis/musicarr/internal/progress"
	"golang.org/x/sync/errgroup"
)

const (
	dirPerm          = 0o755
	progressInterval = 4 << 20
	coverFile        = "cover.jpg"
	bookletFile      = "booklet.pdf"
)

// HandleURL downloads the album, track, playlist, artist discography or label
// catalogue rawURL points at.
func (c *Client) HandleURL(ctx context.Context, rawURL string) error {
	ref, err := ParseURL(rawURL)
	if err != nil {
		return err
	}

	if !c.Authenticated() {
		return ErrNotAuthenticated
	}

	if !ref.collection() {
		return c.downloadFromID(ctx, ref.ID, ref.Type == TypeAlbum, c.Directory)
	}

	return c.downloadCollection(ctx, ref)
}

func (c *Client) downloadCollection(ctx context.Context, ref Ref) error {
	logger := logctx.LoggerFromContext(ctx)

	name, ids, err := c.collection(ctx, ref)
	if err != nil {
		return fmt.Errorf("failed to get %s %s: %w", ref.Type, ref.ID, err)
	}

	logger.InfoContext(ctx, fmt.Sprintf("Downloading all the music from %s (%s)!", name, ref.Type))

	dir := filepath.Join(c.Directory, sanitizeFilename(name))
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return fmt.Errorf("failed to create collection directory: %w", err)
	}

	logger.InfoContext(ctx, fmt.Sprintf("%d downloads in queue", len(ids)))

	albums := ref.Type != TypePlaylist
	for _, id := range ids {
		if err := c.downloadFromID(ctx, id, albums, dir); err != nil {
			return err
		}
	}

	if ref.Type == TypePlaylist && !c.NoM3U {
		if err := writeM3U(dir); err != nil {
			return fmt.Errorf("failed to write playlist: %w", err)
		}
	}

	return nil
}

// downloadFromID downloads one release. Errors that only concern this release
// are logged and swallowed.
func (c *Client) downloadFromID(ctx context.Context, id string, album bool, dir string) error {
	var err error
	if album {
		err = c.downloadAlbum(ctx, id, dir)
	} else {
		err = c.downloadTrack(ctx, id, dir)
	}

	if err != nil && skippable(err) {
		logctx.LoggerFromContext(ctx).ErrorContext(ctx, fmt.Sprintf("Error getting release: %v. Skipping...", err))
		return nil
	}

	return err
}

func (c *Client) downloadAlbum(ctx context.Context, id, dir string) error {
	logger := logctx.LoggerFromContext(ctx)

	meta, err := c.album(ctx, id)
	if err != nil {
		return err
	}

	if !meta.Streamable {
		return &NotStreamableError{ID: id, Title: meta.Title}
	}

	tracks := meta.Tracks.Items
	if len(tracks) == 0 {
		return fmt.Errorf("album %s has no tracks", id)
	}

	title := meta.FullTitle()
	logger.InfoContext(ctx, "Downloading: "+title)

	f, err := c.releaseFormat(ctx, tracks[0].ID.String())
	if err != nil {
		return err
	}

	if !c.QualityFallback && !f.QualityMet {
		logger.InfoContext(ctx, fmt.Sprintf("Skipping %s as it doesn't meet quality requirement", title))
		return nil
	}

	logger.InfoContext(ctx, "Quality: "+f.String())

	folderFormat, trackFormat := c.formats(ctx, f.Name)
	folder, err := renderTemplate(folderFormat, albumAttrs(meta, f))
	if err != nil {
		return err
	}

	root := filepath.Join(dir, sanitizeFilepath(folder))
	if err := os.MkdirAll(root, dirPerm); err != nil {
		return fmt.Errorf("failed to create album directory: %w", err)
	}

	if err := c.downloadExtras(ctx, meta, root); err != nil {
		return err
	}

	multiDisc := discCount(tracks) > 1

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(c.MaxParallel, 1))

	for i := range tracks {
		tmpCount := i + 1
		track := &tracks[i]

		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = &PanicError{Value: r}
				}
			}()

			fu, err := c.fileURL(gctx, track.ID.String(), c.Quality, c.secret)
			if err != nil {
				return err
			}

			if fu.Demo() {
				logger.InfoContext(gctx, "Demo. Skipping")
				c.telemetry.RecordTrack(gctx, f.Name, "demo", 0)
				return nil
			}

			disc := 0
			if multiDisc {
				disc = track.MediaNumber
			}

			return c.downloadTrackFile(gctx, root, tmpCount, fu, track, meta, trackFormat, disc)
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	logger.InfoContext(ctx, "Completed")

	return nil
}

func (c *Client) downloadTrack(ctx context.Context, id, dir string) error {
	logger := logctx.LoggerFromContext(ctx)

	fu, err := c.fileURL(ctx, id, c.Quality, c.secret)
	if err != nil {
		return err
	}

	if fu.Demo() {
		logger.InfoContext(ctx, "Demo. Skipping")
		logger.InfoContext(ctx, "Completed")
		return nil
	}

	meta, err := c.track(ctx, id)
	if err != nil {
		return err
	}

	if meta.Album == nil {
		return fmt.Errorf("track %s has no album metadata", id)
	}

	title := meta.FullTitle()
	logger.InfoContext(ctx, "Downloading: "+title)

	f := releaseFormat{Name: formatMP3, QualityMet: true}
	if c.Quality != QualityMP3 {
		f = formatFromFileURL(fu)
	}

	if !c.QualityFallback && !f.QualityMet {
		logger.InfoContext(ctx, fmt.Sprintf("Skipping %s as it doesn't meet quality requirement", title))
		return nil
	}

	logger.InfoContext(ctx, "Quality: "+f.String())

	folderFormat, trackFormat := c.formats(ctx, f.Name)
	folder, err := renderTemplate(folderFormat, trackFolderAttrs(meta, f))
	if err != nil {
		return err
	}

	root := filepath.Join(dir, sanitizeFilepath(folder))
	if err := os.MkdirAll(root, dirPerm); err != nil {
		return fmt.Errorf("failed to create track directory: %w", err)
	}

	if err := c.downloadExtras(ctx, meta.Album, root); err != nil {
		return err
	}

	if err := c.downloadTrackFile(ctx, root, 1, fu, meta, meta.Album, trackFormat, 0); err != nil {
		return err
	}

	logger.InfoContext(ctx, "Completed")

	return nil
}

// releaseFormat asks for the file URL of one track to learn what the release
// is actually available in.
func (c *Client) releaseFormat(ctx context.Context, trackID string) (releaseFormat, error) {
	if c.Quality == QualityMP3 {
		return releaseFormat{Name: formatMP3, QualityMet: true}, nil
	}

	fu, err := c.fileURL(ctx, trackID, c.Quality, c.secret)
	if err != nil {
		var netErr *NetworkError
		if errors.As(err, &netErr) {
			return releaseFormat{Name: formatUnknown, QualityMet: true}, nil
		}
		return releaseFormat{}, err
	}

	return formatFromFileURL(fu), nil
}

func (c *Client) formats(ctx context.Context, fileFormat string) (string, string) {
	folder, track, replaced := cleanFormats(c.FolderFormat, c.TrackFormat, fileFormat)
	for _, def := range replaced {
		logctx.LoggerFromContext(ctx).ErrorContext(ctx,
			fmt.Sprintf("invalid format string for format %s. defaulting to %s", fileFormat, def))
	}
	return folder, track
}

func (c *Client) downloadExtras(ctx context.Context, a *Album, root string) error {
	logger := logctx.LoggerFromContext(ctx)

	if c.NoCover {
		logger.InfoContext(ctx, "Skipping cover")
	} else if cover := a.Image.Large; cover != "" {
		if c.OriginalCover {
			cover = strings.Replace(cover, "_600.", "_org.", 1)
		}
		if err := c.downloadExtra(ctx, cover, root, coverFile); err != nil {
			return err
		}
	}

	// A missing booklet never fails the release.
	if len(a.Goodies) > 0 && a.Goodies[0].URL != "" {
		if err := c.downloadExtra(ctx, a.Goodies[0].URL, root, bookletFile); err != nil {
			logger.DebugContext(ctx, "booklet download failed", "err", err)
		}
	}

	return nil
}

func (c *Client) downloadExtra(ctx context.Context, src, root, name string) error {
	dest := filepath.Join(root, name)
	if fileExists(dest) {
		logctx.LoggerFromContext(ctx).InfoContext(ctx, name+" was already downloaded")
		return nil
	}

	_, err := c.fetchFile(ctx, src, dest, name)
	return err
}

func (c *Client) downloadTrackFile(
	ctx context.Context,
	root string,
	tmpCount int,
	fu *FileURL,
	track *Track,
	release *Album,
	trackFormat string,
	disc int,
) error {
	logger := logctx.LoggerFromContext(ctx)
	format := formatFLAC
	if c.Quality == QualityMP3 {
		format = formatMP3
	}

	if fu.URL == "" {
		logger.InfoContext(ctx, "Track not available for download")
		c.telemetry.RecordTrack(ctx, format, "unavailable", 0)
		return nil
	}

	if disc > 0 {
		root = filepath.Join(root, fmt.Sprintf("Disc %d", disc))
		if err := os.MkdirAll(root, dirPerm); err != nil {
			return fmt.Errorf("failed to create disc directory: %w", err)
		}
	}

	name, err := renderTemplate(trackFormat, trackFileAttrs(track, release))
	if err != nil {
		return err
	}

	final := filepath.Join(root, truncateName(sanitizeFilename(name), maxNameLen)+c.Quality.extension())

	if fileExists(final) {
		logger.InfoContext(ctx, track.Title+" was already downloaded")
		c.telemetry.RecordTrack(ctx, format, "exists", 0)
		return nil
	}

	tmp := filepath.Join(root, fmt.Sprintf(".%02d.tmp", tmpCount))

	size, err := c.fetchFile(ctx, fu.URL, tmp, filepath.Base(final))
	if err != nil {
		c.telemetry.RecordTrack(ctx, format, "error", 0)
		return err
	}

	if err := os.Rename(tmp, final); err != nil {
		return fmt.Errorf("failed to move %s into place: %w", filepath.Base(final), err)
	}

	c.telemetry.RecordTrack(ctx, format, "success", size)
	logger.DebugContext(ctx, "track downloaded", "file", final, "size", humanize.Bytes(uint64(size)))

	return nil
}

// fetchFile streams src to dest and checks the size against Content-Length.
func (c *Client) fetchFile(ctx context.Context, src, dest, label string) (int64, error) {
	logger := logctx.LoggerFromContext(ctx)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, &NetworkError{Operation: "download", APIMessage: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, &NetworkError{Operation: "download", StatusCode: resp.StatusCode, APIMessage: resp.Status}
	}

	out, err := os.Create(dest)
	if err != nil {
		return 0, fmt.Errorf("failed to create %s: %w", dest, err)
	}

	start := time.Now()
	pr := progress.NewReader(resp.Body, resp.ContentLength, progressInterval, func(read, total int64) {
		logger.DebugContext(ctx, "download progress",
			"file", label,
			"read", humanize.Bytes(uint64(read)),
			"total", humanize.Bytes(uint64(max(total, 0))),
			"elapsed", time.Since(start).Round(time.Millisecond),
		)
	})

	_, copyErr := io.Copy(out, pr)
	closeErr := out.Close()
	n := pr.BytesRead()

	if copyErr == nil && resp.ContentLength >= 0 && n != resp.ContentLength {
		copyErr = &NetworkError{
			Operation:  "download",
			APIMessage: "File download was interrupted for " + label,
		}
	}

	if err := errors.Join(copyErr, closeErr); err != nil {
		_ = os.Remove(dest)

		var netErr *NetworkError
		if !errors.As(err, &netErr) && ctx.Err() == nil {
			err = &NetworkError{Operation: "download", APIMessage: err.Error(), Err: err}
		}
		return 0, err
	}

	return n, nil
}

func discCount(tracks []Track) int {
	discs := make(map[int]struct{})
	for _, t := range tracks {
		discs[t.MediaNumber] = struct{}{}
	}
	return len(discs)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// writeM3U writes <dir>/<dir name>.m3u listing every audio file below dir.
func writeM3U(dir string) error {
	var entries []string

	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		ext := filepath.Ext(path)
		if d.IsDir() || (ext != ".flac" && ext != ".mp3") {
			return nil
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}

		title := strings.TrimSuffix(filepath.Base(path), ext)
		entries = append(entries, fmt.Sprintf("#EXTINF:-1,%s\n%s", title, filepath.ToSlash(rel)))
		return nil
	})
	if err != nil {
		return err
	}

	if len(entries) == 0 {
		return nil
	}

	playlist := "#EXTM3U\n\n" + strings.Join(entries, "\n\n") + "\n"
	name := filepath.Join(dir, filepath.Base(filepath.Clean(dir))+".m3u")

	return os.WriteFile(name, []byte(playlist), 0o644)
}
