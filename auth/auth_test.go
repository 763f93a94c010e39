package auth

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"cinethos/config"
	"cinethos/core/subtitle"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestStaticCredential(t *testing.T) {
	tok, err := Static(" abc ").Credential()
	require.NoError(t, err)
	assert.Equal(t, "abc", tok)

	_, err = Static("").Credential()
	assert.ErrorIs(t, err, ErrNoCredential)
}

func TestFileCredentialReloads(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "token")
	require.NoError(t, os.WriteFile(path, []byte("first\n"), 0o600))

	f, err := NewFileCredential(path, zap.NewNop())
	require.NoError(t, err)
	defer f.Close()

	tok, err := f.Credential()
	require.NoError(t, err)
	assert.Equal(t, "first", tok)

	require.NoError(t, os.WriteFile(path, []byte("second"), 0o600))
	assert.Eventually(t, func() bool {
		tok, _ := f.Credential()
		return tok == "second"
	}, 3*time.Second, 10*time.Millisecond)

	assert.NoError(t, f.Close())
	assert.NoError(t, f.Close())
}

func TestFileCredentialMissingFile(t *testing.T) {
	_, err := NewFileCredential(filepath.Join(t.TempDir(), "absent"), zap.NewNop())
	assert.Error(t, err)
}

func TestNewProvider(t *testing.T) {
	p, closeFn, err := NewProvider(&config.Config{AuthToken: "tok"})
	require.NoError(t, err)
	defer closeFn()
	tok, err := p.Credential()
	require.NoError(t, err)
	assert.Equal(t, "tok", tok)

	path := filepath.Join(t.TempDir(), "token")
	require.NoError(t, os.WriteFile(path, []byte("from-file"), 0o600))
	p, closeFile, err := NewProvider(&config.Config{AuthToken: "tok", AuthTokenFile: path})
	require.NoError(t, err)
	defer closeFile()
	tok, err = p.Credential()
	require.NoError(t, err)
	assert.Equal(t, "from-file", tok)
}

func sign(t *testing.T, claims jwt.Claims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("not-our-key"))
	require.NoError(t, err)
	return tok
}

func TestInspect(t *testing.T) {
	exp := time.Now().Add(time.Hour)
	c, err := Inspect(sign(t, &Claims{
		UserID:           12,
		Username:         "ada",
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(exp)},
	}))
	require.NoError(t, err)
	assert.Equal(t, int64(12), c.User())
	assert.Equal(t, "ada", c.Username)
	assert.Empty(t, ExpiryProblem(c, time.Now()))

	c, err = Inspect(sign(t, jwt.MapClaims{"id": 34}))
	require.NoError(t, err)
	assert.Equal(t, int64(34), c.User())

	c, err = Inspect(sign(t, jwt.MapClaims{"sub": "56"}))
	require.NoError(t, err)
	assert.Equal(t, int64(56), c.User())

	_, err = Inspect("not-a-jwt")
	assert.Error(t, err)
}

func TestExpiryProblem(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	claims := func(exp time.Time) *Claims {
		return &Claims{RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(exp)}}
	}

	assert.Equal(t, "credential expired 1m0s ago", ExpiryProblem(claims(now.Add(-time.Minute)), now))
	assert.Equal(t, "credential expires in 2m0s", ExpiryProblem(claims(now.Add(2*time.Minute)), now))
	assert.Empty(t, ExpiryProblem(claims(now.Add(time.Hour)), now))
	assert.Empty(t, ExpiryProblem(&Claims{}, now))
	assert.Empty(t, ExpiryProblem(nil, now))
}

type fakeTier struct {
	langs map[int64]string
	err   error
	gets  int
	sets  map[int64]string
}

func newFakeTier(langs map[int64]string) *fakeTier {
	if langs == nil {
		langs = map[int64]string{}
	}
	return &fakeTier{langs: langs, sets: map[int64]string{}}
}

func (f *fakeTier) GetLanguage(_ context.Context, userID int64) (string, bool, error) {
	f.gets++
	if f.err != nil {
		return "", false, f.err
	}
	lang, ok := f.langs[userID]
	return lang, ok, nil
}

func (f *fakeTier) SetLanguage(_ context.Context, userID int64, lang string) error {
	f.sets[userID] = lang
	f.langs[userID] = lang
	return nil
}

func TestPreferenceResolverTiers(t *testing.T) {
	shared := newFakeTier(map[int64]string{1: "fr"})
	store := newFakeTier(map[int64]string{2: "de", 3: ""})
	r := NewPreferenceResolver(PreferenceOptions{Shared: shared, Store: store, Logger: zap.NewNop()})
	ctx := context.Background()

	assert.Equal(t, subtitle.Prefer("fr"), r.Resolve(ctx, 1))
	assert.Zero(t, store.gets)

	assert.Equal(t, subtitle.Prefer("de"), r.Resolve(ctx, 2))
	assert.Equal(t, "de", shared.sets[2])

	// stored but empty means no preference, and it is cached as such
	assert.Equal(t, subtitle.NoPreference, r.Resolve(ctx, 3))
	assert.Equal(t, subtitle.NoPreference, r.Resolve(ctx, 4))
	assert.Equal(t, "", shared.sets[4])

	gets := shared.gets + store.gets
	r.Resolve(ctx, 1)
	r.Resolve(ctx, 2)
	r.Resolve(ctx, 4)
	assert.Equal(t, gets, shared.gets+store.gets)

	r.Forget(2)
	r.Resolve(ctx, 2)
	assert.Equal(t, gets+1, shared.gets+store.gets)

	assert.Equal(t, subtitle.NoPreference, r.Resolve(ctx, 0))
}

func TestPreferenceResolverOverrideAndFailures(t *testing.T) {
	ctx := context.Background()

	r := NewPreferenceResolver(PreferenceOptions{Override: "ja", Logger: zap.NewNop()})
	assert.Equal(t, subtitle.Prefer("ja"), r.Resolve(ctx, 1))

	broken := newFakeTier(nil)
	broken.err = errors.New("down")
	store := newFakeTier(map[int64]string{1: "it"})
	r = NewPreferenceResolver(PreferenceOptions{Shared: broken, Store: store, Logger: zap.NewNop()})
	assert.Equal(t, subtitle.Prefer("it"), r.Resolve(ctx, 1))

	down := newFakeTier(nil)
	down.err = errors.New("down")
	r = NewPreferenceResolver(PreferenceOptions{Store: down, Logger: zap.NewNop()})
	assert.Equal(t, subtitle.NoPreference, r.Resolve(ctx, 1))
	// failures are not cached
	r.Resolve(ctx, 1)
	assert.Equal(t, 2, down.gets)
}
