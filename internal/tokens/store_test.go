package tokens

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "tokens.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestGetMissingRecord(t *testing.T) {
	s := testStore(t)
	rec, err := s.Get("1", "Box", "BoxService")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestPutGetDelete(t *testing.T) {
	s := testStore(t)

	rec := &Record{
		UserID:         "1",
		Platform:       "Box",
		Service:        "BoxService",
		EncryptedToken: "ciphertext",
		IsActive:       true,
	}
	require.NoError(t, s.Put(rec))
	assert.NotZero(t, rec.CreatedAt)

	got, err := s.Get("1", "Box", "BoxService")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "ciphertext", got.EncryptedToken)
	assert.True(t, got.IsActive)
	assert.False(t, got.IsRevoked)

	require.NoError(t, s.Delete("1", "Box", "BoxService"))
	got, err = s.Get("1", "Box", "BoxService")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestPutUpserts(t *testing.T) {
	s := testStore(t)

	first := &Record{UserID: "1", Platform: "Box", Service: "BoxService", EncryptedToken: "old", IsActive: true}
	require.NoError(t, s.Put(first))

	second := &Record{UserID: "1", Platform: "Box", Service: "BoxService", EncryptedToken: "new", IsActive: true}
	require.NoError(t, s.Put(second))

	got, err := s.Get("1", "Box", "BoxService")
	require.NoError(t, err)
	assert.Equal(t, "new", got.EncryptedToken)
}

func TestMarkRevokedAndCountActive(t *testing.T) {
	s := testStore(t)

	require.NoError(t, s.Put(&Record{UserID: "1", Platform: "Box", Service: "BoxService", EncryptedToken: "a", IsActive: true}))
	require.NoError(t, s.Put(&Record{UserID: "1", Platform: "Dropbox", Service: "DropboxService", EncryptedToken: "b", IsActive: true}))

	n, err := s.CountActive("1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, s.MarkRevoked("1", "Box", "BoxService"))

	got, err := s.Get("1", "Box", "BoxService")
	require.NoError(t, err)
	assert.True(t, got.IsRevoked)

	n, err = s.CountActive("1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSealAndOpen(t *testing.T) {
	key := testKey(t)

	data := Data{
		AccessToken:  "at",
		RefreshToken: "rt",
		ExpiresAt:    time.Now().Add(time.Hour).Unix(),
	}
	rec, err := Seal("1", "Google", "GmailService", data, key)
	require.NoError(t, err)
	assert.True(t, rec.IsActive)
	assert.NotContains(t, rec.EncryptedToken, "at")

	got, err := Open(rec, key)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	_, err = Open(rec, testKey(t))
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestDataExpired(t *testing.T) {
	now := time.Now()
	assert.False(t, Data{ExpiresAt: 0}.Expired(now))
	assert.False(t, Data{ExpiresAt: now.Add(time.Minute).Unix()}.Expired(now))
	assert.True(t, Data{ExpiresAt: now.Add(-time.Minute).Unix()}.Expired(now))
}
