package qobuz

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/italolelis/musicarr/internal/logctx"
	"github.com/italolelis/musicarr/internal/telemetry"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

const (
	DefaultAPIURL  = "https://www.qobuz.com/api.json/0.2/"
	DefaultPlayURL = "https://play.qobuz.com"

	userAgent  = "Mozilla/5.0 (X11; Linux x86_64; rv:83.0) Gecko/20100101 Firefox/83.0"
	clientName = "qobuz"

	// Any streamable track works to check a secret.
	secretCheckTrackID = "5966783"

	formatRestricted = "FormatRestrictedByFormatAvailability"
	pageLimit        = 500
)

var md5HexRegex = regexp.MustCompile(`^[0-9a-f]{32}$`)

// Client talks to the Qobuz API and downloads releases to disk.
//
// Lines meant for the person who submitted a URL ("Downloading: ...",
// "Completed") are logged at INFO on the context logger as plain sentences.
// Everything else is logged at DEBUG with attributes.
type Client struct {
	Directory       string
	FolderFormat    string
	TrackFormat     string
	Quality         Quality
	QualityFallback bool
	NoCover         bool
	OriginalCover   bool
	NoM3U           bool
	MaxParallel     int
	Timeout         time.Duration

	AppID   string
	Secrets []string

	apiURL     string
	playURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	telemetry  *telemetry.Telemetry
	now        func() time.Time

	secret string
	tokens oauth2.TokenSource
}

type Option func(*Client)

// WithHTTPClient replaces the default otelhttp instrumented client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithBaseURLs points the client at another API and web player, typically a test server.
func WithBaseURLs(apiURL, playURL string) Option {
	return func(c *Client) {
		c.apiURL = strings.TrimRight(apiURL, "/") + "/"
		c.playURL = playURL
	}
}

// WithRateLimit caps API calls per second. Zero or less disables the limit.
func WithRateLimit(perSecond float64) Option {
	return func(c *Client) {
		if perSecond <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
	}
}

func WithTelemetry(t *telemetry.Telemetry) Option {
	return func(c *Client) { c.telemetry = t }
}

func NewClient(opts ...Option) *Client {
	c := &Client{
		Directory:       "Qobuz Downloads",
		FolderFormat:    DefaultFolderFormat,
		TrackFormat:     DefaultTrackFormat,
		Quality:         DefaultQuality,
		QualityFallback: true,
		MaxParallel:     2,
		Timeout:         30 * time.Second,
		apiURL:          DefaultAPIURL,
		playURL:         DefaultPlayURL,
		httpClient:      &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
		limiter:         rate.NewLimiter(5, 1),
		now:             time.Now,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// GetTokens scrapes the app id and secrets from the web player bundle.
func (c *Client) GetTokens(ctx context.Context) error {
	return c.telemetry.InstrumentClientOperation(ctx, clientName, "get_tokens", func(ctx context.Context) error {
		bundle, err := FetchBundle(ctx, c.httpClient, c.playURL)
		if err != nil {
			return fmt.Errorf("failed to fetch bundle: %w", err)
		}

		appID, err := bundle.AppID()
		if err != nil {
			return err
		}

		secrets, err := bundle.Secrets()
		if err != nil {
			return err
		}

		c.AppID, c.Secrets = appID, secrets
		logctx.LoggerFromContext(ctx).DebugContext(ctx, "bundle tokens found", "app_id", appID, "secrets", len(secrets))

		return nil
	})
}

// InitializeClient logs in and picks the first secret that signs requests.
func (c *Client) InitializeClient(ctx context.Context, email, password string) error {
	logger := logctx.LoggerFromContext(ctx)

	if !c.Quality.Valid() {
		return &InvalidQualityError{Quality: c.Quality}
	}

	if c.AppID == "" {
		return &InvalidAppIDError{Err: errors.New("app id is empty")}
	}

	tokens := oauth2.ReuseTokenSource(nil, &loginSource{
		ctx:      context.WithoutCancel(ctx),
		client:   c,
		email:    email,
		password: hashPassword(password),
	})

	if _, err := tokens.Token(); err != nil {
		return err
	}
	c.tokens = tokens

	if err := c.selectSecret(ctx); err != nil {
		c.tokens = nil
		return err
	}

	logger.InfoContext(ctx, "Set max quality: "+c.Quality.String())

	return nil
}

// Authenticated reports whether InitializeClient completed.
func (c *Client) Authenticated() bool {
	return c.tokens != nil && c.secret != ""
}

func (c *Client) selectSecret(ctx context.Context) error {
	var lastErr error

	for _, secret := range c.Secrets {
		if secret == "" {
			continue
		}

		_, err := c.fileURL(ctx, secretCheckTrackID, QualityMP3, secret)
		if err == nil {
			c.secret = secret
			return nil
		}

		var secretErr *InvalidAppSecretError
		if !errors.As(err, &secretErr) {
			return err
		}
		lastErr = err
	}

	return &InvalidAppSecretError{Err: lastErr}
}

// loginSource logs in to obtain the user auth token. The token does not
// expire, so behind oauth2.ReuseTokenSource the login happens once.
type loginSource struct {
	ctx      context.Context
	client   *Client
	email    string
	password string
}

func (s *loginSource) Token() (*oauth2.Token, error) {
	c := s.client
	params := url.Values{
		"email":    {s.email},
		"password": {s.password},
		"app_id":   {c.AppID},
	}

	var resp loginResponse
	if err := c.call(s.ctx, "user/login", params, &resp, false); err != nil {
		var netErr *NetworkError
		if errors.As(err, &netErr) {
			switch netErr.StatusCode {
			case http.StatusUnauthorized:
				return nil, &AuthenticationError{Operation: "user/login", Err: err}
			case http.StatusBadRequest:
				return nil, &InvalidAppIDError{AppID: c.AppID, Err: err}
			}
		}
		return nil, err
	}

	if resp.User.Credential.Parameters == nil {
		return nil, &IneligibleError{Email: s.email}
	}

	if resp.UserAuthToken == "" {
		return nil, &AuthenticationError{Operation: "user/login", Err: errors.New("empty user auth token")}
	}

	logctx.LoggerFromContext(s.ctx).InfoContext(s.ctx, "Membership: "+resp.User.Credential.Parameters.ShortLabel)

	return &oauth2.Token{AccessToken: resp.UserAuthToken, TokenType: "Qobuz"}, nil
}

// hashPassword returns the MD5 hex digest the login endpoint expects. Values
// that already look like a digest are passed through.
func hashPassword(password string) string {
	if md5HexRegex.MatchString(password) {
		return password
	}
	return md5Hex(password)
}

func md5Hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

func requestSignature(trackID string, q Quality, ts, secret string) string {
	return md5Hex(fmt.Sprintf("trackgetFileUrlformat_id%dintentstreamtrack_id%s%s%s", int(q), trackID, ts, secret))
}

func (c *Client) fileURL(ctx context.Context, trackID string, q Quality, secret string) (*FileURL, error) {
	ts := strconv.FormatInt(c.now().Unix(), 10)
	params := url.Values{
		"request_ts":  {ts},
		"request_sig": {requestSignature(trackID, q, ts, secret)},
		"track_id":    {trackID},
		"format_id":   {strconv.Itoa(int(q))},
		"intent":      {"stream"},
	}

	var fu FileURL
	if err := c.call(ctx, "track/getFileUrl", params, &fu, true); err != nil {
		var netErr *NetworkError
		if errors.As(err, &netErr) && netErr.StatusCode == http.StatusBadRequest {
			return nil, &InvalidAppSecretError{Err: err}
		}
		return nil, err
	}

	return &fu, nil
}

func (c *Client) album(ctx context.Context, id string) (*Album, error) {
	var a Album
	if err := c.call(ctx, "album/get", url.Values{"album_id": {id}}, &a, true); err != nil {
		return nil, err
	}
	return &a, nil
}

func (c *Client) track(ctx context.Context, id string) (*Track, error) {
	var t Track
	if err := c.call(ctx, "track/get", url.Values{"track_id": {id}}, &t, true); err != nil {
		return nil, err
	}
	return &t, nil
}

// collection pages through a playlist, artist or label and returns its name
// and the ids of its tracks (playlists) or albums.
func (c *Client) collection(ctx context.Context, ref Ref) (string, []string, error) {
	var endpoint, key, extra string
	switch ref.Type {
	case TypePlaylist:
		endpoint, key, extra = "playlist/get", "playlist_id", "tracks"
	case TypeArtist:
		endpoint, key, extra = "artist/get", "artist_id", "albums"
	case TypeLabel:
		endpoint, key, extra = "label/get", "label_id", "albums"
	default:
		return "", nil, fmt.Errorf("%s is not a collection", ref.Type)
	}

	var (
		name string
		ids  []string
	)

	for offset := 0; ; {
		params := url.Values{
			key:      {ref.ID},
			"extra":  {extra},
			"limit":  {strconv.Itoa(pageLimit)},
			"offset": {strconv.Itoa(offset)},
		}

		var page collectionPage
		if err := c.call(ctx, endpoint, params, &page, true); err != nil {
			return "", nil, err
		}

		if name == "" {
			name = page.Name
		}

		items := page.items()
		for _, it := range items.Items {
			ids = append(ids, it.ID.String())
		}

		offset += len(items.Items)
		if len(items.Items) == 0 || offset >= items.Total {
			break
		}
	}

	return name, ids, nil
}

func (c *Client) call(ctx context.Context, endpoint string, params url.Values, out any, authenticated bool) error {
	return c.telemetry.InstrumentClientOperation(ctx, clientName, endpoint, func(ctx context.Context) error {
		return c.do(ctx, endpoint, params, out, authenticated)
	})
}

func (c *Client) do(ctx context.Context, endpoint string, params url.Values, out any, authenticated bool) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL+endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("X-App-Id", c.AppID)

	if authenticated {
		if c.tokens == nil {
			return ErrNotAuthenticated
		}

		tok, err := c.tokens.Token()
		if err != nil {
			return fmt.Errorf("failed to get user auth token: %w", err)
		}
		req.Header.Set("X-User-Auth-Token", tok.AccessToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) && !errors.Is(ctxErr, context.DeadlineExceeded) {
			return ctxErr
		}
		return &NetworkError{Operation: endpoint, APIMessage: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &NetworkError{Operation: endpoint, APIMessage: err.Error(), Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		msg := resp.Status
		var apiErr apiError
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Message != "" {
			msg = apiErr.Message
		}
		return &NetworkError{Operation: endpoint, StatusCode: resp.StatusCode, APIMessage: msg}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", endpoint, err)
	}

	return nil
}
