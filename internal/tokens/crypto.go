package tokens

import (
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/fernet/fernet-go"
)

// ErrInvalidToken is returned when a ciphertext fails verification,
// typically because it was produced with a different key.
var ErrInvalidToken = errors.New("tokens: invalid or tampered token")

// Encrypt seals a plaintext string into a Fernet token.
func Encrypt(plaintext string, key *fernet.Key) (string, error) {
	tok, err := fernet.EncryptAndSign([]byte(plaintext), key)
	if err != nil {
		return "", fmt.Errorf("encrypt token: %w", err)
	}
	return string(tok), nil
}

// Decrypt opens a Fernet token produced by Encrypt. Tokens do not expire.
func Decrypt(ciphertext string, key *fernet.Key) (string, error) {
	msg := fernet.VerifyAndDecrypt([]byte(ciphertext), 0, []*fernet.Key{key})
	if msg == nil {
		return "", ErrInvalidToken
	}
	return string(msg), nil
}

// LoadOrGenerateKey decodes the configured encryption key, or mints a
// fresh one when none is configured. A generated key only lives for the
// current process, so the operator is told to persist it.
func LoadOrGenerateKey(encoded string, logger *log.Logger) (*fernet.Key, error) {
	if encoded != "" {
		key, err := fernet.DecodeKey(encoded)
		if err != nil {
			return nil, fmt.Errorf("decode encryption key: %w", err)
		}
		return key, nil
	}

	var key fernet.Key
	if err := key.Generate(); err != nil {
		return nil, fmt.Errorf("generate encryption key: %w", err)
	}
	logger.Warn("no encryption key configured, generated a new one; add it to .env to keep stored tokens readable",
		"ENCRYPTION_KEY", key.Encode())
	return &key, nil
}
