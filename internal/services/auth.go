package services

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fernet/fernet-go"
	"golang.org/x/oauth2"

	"github.com/dodohq/dodobot/internal/tokens"
)

// authKeeper owns the OAuth2 lifecycle that every provider shares:
// authorize-URL construction, code exchange, encrypted persistence,
// refresh, and revocation marking. Provider services embed it.
type authKeeper struct {
	oauth    *oauth2.Config
	store    *tokens.Store
	key      *fernet.Key
	log      *log.Logger
	platform string // storage key, e.g. "Box"
	service  string // storage key, e.g. "BoxService"
	display  string // user-facing name
	command  string // re-authorize chat command
}

// AuthorizationURL builds the provider consent URL. The state parameter
// is the encrypted user ID so the callback can be tied back to a chat
// user without a session.
func (k *authKeeper) AuthorizationURL(userID string, opts ...oauth2.AuthCodeOption) (string, error) {
	if k.oauth.ClientID == "" {
		return "", fmt.Errorf("%s client ID is not configured", k.display)
	}
	if k.oauth.RedirectURL == "" {
		return "", fmt.Errorf("%s redirect URI is not configured", k.display)
	}

	state, err := tokens.Encrypt(userID, k.key)
	if err != nil {
		return "", err
	}
	k.log.Info("generated authorization URL", "user", userID)
	return k.oauth.AuthCodeURL(state, opts...), nil
}

// HandleCallback exchanges the authorization code and stores the
// resulting token. It returns the user ID recovered from state.
func (k *authKeeper) HandleCallback(ctx context.Context, state, code string) (string, error) {
	userID, err := tokens.Decrypt(state, k.key)
	if err != nil {
		return "", fmt.Errorf("decrypt state: %w", err)
	}
	k.log.Info("processing authorization callback", "user", userID)

	tok, err := k.oauth.Exchange(ctx, code)
	if err != nil {
		return "", fmt.Errorf("exchange authorization code: %w", err)
	}

	if err := k.storeToken(userID, tok.AccessToken, tok.RefreshToken, tok.Expiry); err != nil {
		return "", err
	}
	k.log.Info("stored access token", "user", userID, "platform", k.platform)
	return userID, nil
}

// DisplayName is the provider name shown to users.
func (k *authKeeper) DisplayName() string { return k.display }

// Connected reports whether the user holds a live credential for this
// provider.
func (k *authKeeper) Connected(userID string) bool {
	rec, err := k.store.Get(userID, k.platform, k.service)
	return err == nil && rec != nil && rec.IsActive && !rec.IsRevoked
}

func (k *authKeeper) storeToken(userID, accessToken, refreshToken string, expiry time.Time) error {
	data := tokens.Data{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}
	if !expiry.IsZero() {
		data.ExpiresAt = expiry.Unix()
	}
	rec, err := tokens.Seal(userID, k.platform, k.service, data, k.key)
	if err != nil {
		return err
	}
	return k.store.Put(rec)
}

// accessToken loads a usable access token for the user, refreshing it
// when expired. It returns an AuthError when the user must re-authorize.
func (k *authKeeper) accessToken(ctx context.Context, userID string) (string, error) {
	rec, err := k.store.Get(userID, k.platform, k.service)
	if err != nil {
		return "", err
	}
	if rec == nil || !rec.IsActive || rec.IsRevoked {
		k.log.Info("no valid token in store", "user", userID, "platform", k.platform)
		return "", k.authError()
	}

	data, err := tokens.Open(rec, k.key)
	if err != nil {
		k.log.Error("failed to open stored token", "user", userID, "err", err)
		return "", k.authError()
	}

	if data.Expired(time.Now()) {
		k.log.Info("token expired, refreshing", "user", userID, "platform", k.platform)
		if data.RefreshToken == "" {
			return "", k.authError()
		}
		return k.refresh(ctx, userID, data.RefreshToken)
	}

	return data.AccessToken, nil
}

// refresh trades the refresh token for a new access token. On failure
// the record is marked revoked so the bot stops retrying.
func (k *authKeeper) refresh(ctx context.Context, userID, refreshToken string) (string, error) {
	src := k.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		k.log.Error("token refresh failed", "user", userID, "platform", k.platform, "err", err)
		k.markRevoked(userID)
		return "", k.authError()
	}

	// Some providers omit a new refresh token, keep the old one.
	newRefresh := tok.RefreshToken
	if newRefresh == "" {
		newRefresh = refreshToken
	}
	if err := k.storeToken(userID, tok.AccessToken, newRefresh, tok.Expiry); err != nil {
		return "", err
	}
	k.log.Info("refreshed token", "user", userID, "platform", k.platform)
	return tok.AccessToken, nil
}

// markRevoked best-effort flags the stored record as unusable.
func (k *authKeeper) markRevoked(userID string) {
	if err := k.store.MarkRevoked(userID, k.platform, k.service); err != nil {
		k.log.Error("failed to mark token revoked", "user", userID, "err", err)
	}
}

func (k *authKeeper) deleteToken(userID string) error {
	return k.store.Delete(userID, k.platform, k.service)
}

func (k *authKeeper) authError() *AuthError {
	return &AuthError{Service: k.display, Command: k.command}
}
