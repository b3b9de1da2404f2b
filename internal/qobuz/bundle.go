package qobuz

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
)

var (
	bundleURLRegex = regexp.MustCompile(`<script src="(/resources/\d+\.\d+\.\d+-[a-z]\d{3}/bundle\.js)"></script>`)
	appIDRegex     = regexp.MustCompile(`production:\{api:\{appId:"(\d{9})",appSecret:"\w{32}"`)
	seedRegex      = regexp.MustCompile(`[a-z]\.initialSeed\("([\w=]+)",window\.utimezone\.([a-z]+)\)`)
)

// infoExtrasPattern is completed with the capitalized timezone names found next to the seeds.
const infoExtrasPattern = `name:"\w+/(%s)",info:"([\w=]+)",extras:"([\w=]+)"`

// The seed, info and extras concatenation ends with 44 characters that are not part of the secret.
const secretPaddingLen = 44

// Bundle is the javascript bundle of the Qobuz web player. It embeds the app id
// and the timezone-keyed fragments of the app secrets.
type Bundle struct {
	body string
}

// NewBundle wraps the raw bundle.js content.
func NewBundle(body string) *Bundle {
	return &Bundle{body: body}
}

// FetchBundle loads the web player login page, locates bundle.js and downloads it.
func FetchBundle(ctx context.Context, client *http.Client, playURL string) (*Bundle, error) {
	login, err := fetchText(ctx, client, strings.TrimRight(playURL, "/")+"/login")
	if err != nil {
		return nil, err
	}

	m := bundleURLRegex.FindStringSubmatch(login)
	if m == nil {
		return nil, &BundleError{Reason: "bundle.js script tag not found on login page"}
	}

	body, err := fetchText(ctx, client, strings.TrimRight(playURL, "/")+m[1])
	if err != nil {
		return nil, err
	}

	return NewBundle(body), nil
}

// AppID returns the production app id.
func (b *Bundle) AppID() (string, error) {
	m := appIDRegex.FindStringSubmatch(b.body)
	if m == nil {
		return "", &BundleError{Reason: "app id not found"}
	}
	return m[1], nil
}

// Secrets returns the decoded app secrets. The second timezone's secret comes
// first, it is the one that usually works.
func (b *Bundle) Secrets() ([]string, error) {
	var order []string
	parts := make(map[string][]string)

	for _, m := range seedRegex.FindAllStringSubmatch(b.body, -1) {
		seed, tz := m[1], m[2]
		if _, ok := parts[tz]; !ok {
			order = append(order, tz)
		}
		parts[tz] = []string{seed}
	}

	if len(order) == 0 {
		return nil, &BundleError{Reason: "no initial seeds found"}
	}

	if len(order) > 1 {
		order[0], order[1] = order[1], order[0]
	}

	names := make([]string, len(order))
	for i, tz := range order {
		names[i] = regexp.QuoteMeta(capitalize(tz))
	}

	infoRegex, err := regexp.Compile(fmt.Sprintf(infoExtrasPattern, strings.Join(names, "|")))
	if err != nil {
		return nil, &BundleError{Reason: "invalid timezone names", Err: err}
	}

	for _, m := range infoRegex.FindAllStringSubmatch(b.body, -1) {
		tz := strings.ToLower(m[1])
		parts[tz] = append(parts[tz], m[2], m[3])
	}

	secrets := make([]string, 0, len(order))
	for _, tz := range order {
		joined := strings.Join(parts[tz], "")
		if len(joined) <= secretPaddingLen {
			continue
		}

		decoded, err := base64.StdEncoding.DecodeString(joined[:len(joined)-secretPaddingLen])
		if err != nil {
			return nil, &BundleError{Reason: fmt.Sprintf("secret for timezone %s is not base64", tz), Err: err}
		}

		if len(decoded) > 0 {
			secrets = append(secrets, string(decoded))
		}
	}

	if len(secrets) == 0 {
		return nil, &BundleError{Reason: "no app secrets found"}
	}

	return secrets, nil
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
}

func fetchText(ctx context.Context, client *http.Client, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		return "", &NetworkError{Operation: "fetch_bundle", APIMessage: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &NetworkError{Operation: "fetch_bundle", StatusCode: resp.StatusCode, APIMessage: resp.Status}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &NetworkError{Operation: "fetch_bundle", APIMessage: err.Error(), Err: err}
	}

	return string(body), nil
}
