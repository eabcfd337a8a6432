package config

import (
	"fmt"
	"os"

	"github.com/spf13/viper"
)

// OAuthApp holds the client credentials for one OAuth2 application.
type OAuthApp struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
}

// Config is everything the bot process needs, resolved from the
// environment (optionally seeded from a .env file in the working dir).
type Config struct {
	TelegramToken string

	MistralAPIKey string
	MistralModel  string

	EncryptionKey string
	TokenDBPath   string
	ScratchDir    string

	OAuthListenAddr string

	Box     OAuthApp
	Dropbox OAuthApp

	GoogleID             string
	GoogleSecret         string
	GDriveRedirectURI    string
	GmailRedirectURI     string
	GCalendarRedirectURI string
}

// Load reads .env (if present) and the process environment.
func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("MISTRAL_MODEL", "mistral-large-latest")
	v.SetDefault("TOKEN_DB_PATH", "./dodobot.db")
	v.SetDefault("SCRATCH_DIR", "temp")
	v.SetDefault("OAUTH_LISTEN_ADDR", ":8000")

	// Missing .env is fine, everything can come from the environment.
	if _, err := os.Stat(".env"); err == nil {
		v.SetConfigFile(".env")
		v.SetConfigType("env")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read .env: %w", err)
		}
	}
	v.AutomaticEnv()

	cfg := &Config{
		TelegramToken: v.GetString("TELEGRAM_TOKEN"),

		MistralAPIKey: v.GetString("MISTRAL_API_KEY"),
		MistralModel:  v.GetString("MISTRAL_MODEL"),

		EncryptionKey: v.GetString("ENCRYPTION_KEY"),
		TokenDBPath:   v.GetString("TOKEN_DB_PATH"),
		ScratchDir:    v.GetString("SCRATCH_DIR"),

		OAuthListenAddr: v.GetString("OAUTH_LISTEN_ADDR"),

		Box: OAuthApp{
			ClientID:     v.GetString("BOX_CLIENT_ID"),
			ClientSecret: v.GetString("BOX_CLIENT_SECRET"),
			RedirectURI:  v.GetString("BOX_REDIRECT_URI"),
		},
		Dropbox: OAuthApp{
			ClientID:     v.GetString("DROPBOX_CLIENT_ID"),
			ClientSecret: v.GetString("DROPBOX_CLIENT_SECRET"),
			RedirectURI:  v.GetString("DROPBOX_REDIRECT_URI"),
		},
		GoogleID:             v.GetString("GOOGLE_CLIENT_ID"),
		GoogleSecret:         v.GetString("GOOGLE_CLIENT_SECRET"),
		GDriveRedirectURI:    v.GetString("GDRIVE_REDIRECT_URI"),
		GmailRedirectURI:     v.GetString("GMAIL_REDIRECT_URI"),
		GCalendarRedirectURI: v.GetString("GCALENDAR_REDIRECT_URI"),
	}

	return cfg, nil
}
