package drive

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/tonimelisma/drive-migrate/internal/tokenfile"
)

func TestTokenSourceFromPath_NotLoggedIn(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")

	_, err := TokenSourceFromPath(context.Background(), path, "id", "secret", slog.Default())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotLoggedIn)
}

func TestTokenSourceFromPath_LoadsSavedToken(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")

	tok := &oauth2.Token{
		AccessToken:  "saved-access",
		RefreshToken: "saved-refresh",
		Expiry:       time.Now().Add(time.Hour),
	}
	require.NoError(t, tokenfile.Save(path, tok))

	src, err := TokenSourceFromPath(context.Background(), path, "id", "secret", slog.Default())
	require.NoError(t, err)

	got, err := src.Token()
	require.NoError(t, err)
	assert.Equal(t, "saved-access", got)
}

// fakeTokenSource returns a fixed sequence of tokens.
type fakeTokenSource struct {
	tokens []*oauth2.Token
	calls  int
}

func (f *fakeTokenSource) Token() (*oauth2.Token, error) {
	tok := f.tokens[f.calls]
	if f.calls < len(f.tokens)-1 {
		f.calls++
	}

	return tok, nil
}

func TestPersistingSource_SavesRefreshedToken(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")

	first := &oauth2.Token{AccessToken: "old", RefreshToken: "r"}
	second := &oauth2.Token{AccessToken: "new", RefreshToken: "r", Expiry: time.Now().Add(time.Hour)}

	src := newPersistingSource(&fakeTokenSource{tokens: []*oauth2.Token{first, second}}, path, "old", slog.Default())

	// Same access token as last saved — nothing written.
	got, err := src.Token()
	require.NoError(t, err)
	assert.Equal(t, "old", got)

	saved, err := tokenfile.Load(path)
	require.NoError(t, err)
	assert.Nil(t, saved, "unchanged token must not be persisted")

	// Refreshed token — persisted.
	got, err = src.Token()
	require.NoError(t, err)
	assert.Equal(t, "new", got)

	saved, err = tokenfile.Load(path)
	require.NoError(t, err)
	require.NotNil(t, saved)
	assert.Equal(t, "new", saved.AccessToken)
}

func TestLogout(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "token.json")

	require.NoError(t, tokenfile.Save(path, &oauth2.Token{AccessToken: "a"}))
	require.NoError(t, Logout(path, slog.Default()))

	tok, err := tokenfile.Load(path)
	require.NoError(t, err)
	assert.Nil(t, tok)

	// Second logout is a no-op, not an error.
	require.NoError(t, Logout(path, slog.Default()))
}

func TestHandleOAuthCallback(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		wantStatus int
		wantCode   string
		wantErr    bool
	}{
		{"valid", "state=s1&code=auth-code", http.StatusOK, "auth-code", false},
		{"state mismatch", "state=evil&code=auth-code", http.StatusBadRequest, "", true},
		{"consent denied", "state=s1&error=access_denied&error_description=denied", http.StatusBadRequest, "", true},
		{"missing code", "state=s1", http.StatusBadRequest, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resultCh := make(chan callbackResult, 1)
			rec := httptest.NewRecorder()

			req := httptest.NewRequest(http.MethodGet, "/?"+tt.query, nil)
			handleOAuthCallback(rec, req, "s1", resultCh)

			assert.Equal(t, tt.wantStatus, rec.Code)

			result := <-resultCh
			if tt.wantErr {
				require.Error(t, result.err)
				return
			}

			require.NoError(t, result.err)
			assert.Equal(t, tt.wantCode, result.code)
		})
	}
}

func TestGenerateState(t *testing.T) {
	s1, err := generateState()
	require.NoError(t, err)

	s2, err := generateState()
	require.NoError(t, err)

	assert.Len(t, s1, stateTokenBytes*2) // hex-encoded
	assert.NotEqual(t, s1, s2)

	// Must be safe for a URL query parameter as-is.
	assert.Equal(t, s1, url.QueryEscape(s1))
}
