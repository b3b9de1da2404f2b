package qobuz

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testBundleScript = "/resources/7.1.3-b011/bundle.js"

// The secrets split into seed + info, followed by 44 characters of extras
// that are cut off:
//
//	london -> 0123456789abcdef0123456789abcdef
//	algier -> fedcba9876543210fedcba9876543210
func testBundleJS() string {
	extras := strings.Repeat("x", secretPaddingLen)

	return `var a={production:{api:{appId:"123456789",appSecret:"0123456789abcdef0123456789abcdef"}}};` +
		`a.initialSeed("MDEyMzQ1Njc4",window.utimezone.london),` +
		`b.initialSeed("ZmVkY2JhOTg3",window.utimezone.algier);` +
		`var t=[{offset:"GMT",name:"Europe/London",info:"OWFiY2RlZjAxMjM0NTY3ODlhYmNkZWY=",extras:"` + extras + `"},` +
		`{offset:"GMT+01:00",name:"Africa/Algier",info:"NjU0MzIxMGZlZGNiYTk4NzY1NDMyMTA=",extras:"` + extras + `"}];`
}

func TestBundle_AppIDAndSecrets(t *testing.T) {
	b := NewBundle(testBundleJS())

	appID, err := b.AppID()
	require.NoError(t, err)
	assert.Equal(t, "123456789", appID)

	secrets, err := b.Secrets()
	require.NoError(t, err)
	assert.Equal(t, []string{
		"fedcba9876543210fedcba9876543210",
		"0123456789abcdef0123456789abcdef",
	}, secrets)
}

func TestBundle_MissingTokens(t *testing.T) {
	b := NewBundle("console.log('nothing here')")

	_, err := b.AppID()
	var bundleErr *BundleError
	require.True(t, errors.As(err, &bundleErr))

	_, err = b.Secrets()
	require.True(t, errors.As(err, &bundleErr))
	assert.Contains(t, bundleErr.Error(), "no initial seeds found")
}

func TestBundle_SingleTimezone(t *testing.T) {
	extras := strings.Repeat("x", secretPaddingLen)
	b := NewBundle(`a.initialSeed("MDEyMzQ1Njc4",window.utimezone.london)` +
		`name:"Europe/London",info:"OWFiY2RlZjAxMjM0NTY3ODlhYmNkZWY=",extras:"` + extras + `"`)

	secrets, err := b.Secrets()
	require.NoError(t, err)
	assert.Equal(t, []string{"0123456789abcdef0123456789abcdef"}, secrets)
}

func TestClient_GetTokens(t *testing.T) {
	f := newFakeAPI(t)
	f.mux.HandleFunc("GET /login", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `<html><head><script src="`+testBundleScript+`"></script></head></html>`)
	})
	f.mux.HandleFunc("GET "+testBundleScript, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, testBundleJS())
	})

	c := f.newClient()
	c.AppID = ""

	require.NoError(t, c.GetTokens(context.Background()))
	assert.Equal(t, "123456789", c.AppID)
	assert.Equal(t, []string{testSecret, "0123456789abcdef0123456789abcdef"}, c.Secrets)
}

func TestClient_GetTokens_NoScriptTag(t *testing.T) {
	f := newFakeAPI(t)
	f.mux.HandleFunc("GET /login", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `<html></html>`)
	})

	err := f.newClient().GetTokens(context.Background())

	var bundleErr *BundleError
	require.True(t, errors.As(err, &bundleErr))
}

func TestClient_GetTokens_LoginPageDown(t *testing.T) {
	f := newFakeAPI(t)
	f.mux.HandleFunc("GET /login", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	err := f.newClient().GetTokens(context.Background())

	var netErr *NetworkError
	require.True(t, errors.As(err, &netErr))
	assert.Equal(t, http.StatusBadGateway, netErr.StatusCode)
}
