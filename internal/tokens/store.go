package tokens

import (
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fernet/fernet-go"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schema string

// Record is one stored credential, keyed by (user, platform, service).
// The token material itself is a Fernet ciphertext over a Data blob.
type Record struct {
	UserID         string
	Platform       string
	Service        string
	EncryptedToken string
	IsActive       bool
	IsRevoked      bool
	CreatedAt      int64
}

// Data is the plaintext layout inside Record.EncryptedToken.
type Data struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresAt    int64  `json:"expires_at"`
}

// Expired reports whether the access token is past its expiry.
func (d Data) Expired(now time.Time) bool {
	return d.ExpiresAt != 0 && d.ExpiresAt <= now.Unix()
}

// Store is a SQLite-backed token store.
type Store struct {
	db *sql.DB
}

func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Get returns the record for the key, or nil when none exists.
func (s *Store) Get(userID, platform, service string) (*Record, error) {
	row := s.db.QueryRow(`
		SELECT user_id, platform, service, encrypted_token, is_active, is_revoked, created_at
		FROM user_tokens WHERE user_id = ? AND platform = ? AND service = ?`,
		userID, platform, service)

	var r Record
	err := row.Scan(&r.UserID, &r.Platform, &r.Service, &r.EncryptedToken, &r.IsActive, &r.IsRevoked, &r.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load token record: %w", err)
	}
	return &r, nil
}

// Put inserts or replaces the record for the key.
func (s *Store) Put(r *Record) error {
	if r.CreatedAt == 0 {
		r.CreatedAt = time.Now().Unix()
	}
	_, err := s.db.Exec(`
		INSERT INTO user_tokens (user_id, platform, service, encrypted_token, is_active, is_revoked, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, platform, service) DO UPDATE SET
			encrypted_token = excluded.encrypted_token,
			is_active = excluded.is_active,
			is_revoked = excluded.is_revoked,
			created_at = excluded.created_at`,
		r.UserID, r.Platform, r.Service, r.EncryptedToken, r.IsActive, r.IsRevoked, r.CreatedAt)
	if err != nil {
		return fmt.Errorf("store token record: %w", err)
	}
	return nil
}

func (s *Store) Delete(userID, platform, service string) error {
	_, err := s.db.Exec(`DELETE FROM user_tokens WHERE user_id = ? AND platform = ? AND service = ?`,
		userID, platform, service)
	if err != nil {
		return fmt.Errorf("delete token record: %w", err)
	}
	return nil
}

// MarkRevoked flips the revoked flag so the record is never used again
// until the user re-authorizes.
func (s *Store) MarkRevoked(userID, platform, service string) error {
	_, err := s.db.Exec(`UPDATE user_tokens SET is_revoked = 1 WHERE user_id = ? AND platform = ? AND service = ?`,
		userID, platform, service)
	if err != nil {
		return fmt.Errorf("revoke token record: %w", err)
	}
	return nil
}

// CountActive returns how many usable records a user has.
func (s *Store) CountActive(userID string) (int, error) {
	var n int
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM user_tokens
		WHERE user_id = ? AND is_active = 1 AND is_revoked = 0`, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count token records: %w", err)
	}
	return n, nil
}

// Seal encrypts a Data blob into a ready-to-store Record.
func Seal(userID, platform, service string, data Data, key *fernet.Key) (*Record, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal token data: %w", err)
	}
	enc, err := Encrypt(string(raw), key)
	if err != nil {
		return nil, err
	}
	return &Record{
		UserID:         userID,
		Platform:       platform,
		Service:        service,
		EncryptedToken: enc,
		IsActive:       true,
		CreatedAt:      time.Now().Unix(),
	}, nil
}

// Open decrypts a Record back into its Data blob.
func Open(r *Record, key *fernet.Key) (Data, error) {
	var data Data
	raw, err := Decrypt(r.EncryptedToken, key)
	if err != nil {
		return data, err
	}
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return data, fmt.Errorf("unmarshal token data: %w", err)
	}
	return data, nil
}
