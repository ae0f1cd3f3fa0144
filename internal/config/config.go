package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

const (
	DefaultConfigPath     = "config.toml"
	DefaultHTTPAddr       = ":8080"
	DefaultJWTExpiresIn   = "24h"
	DefaultPGHost         = "127.0.0.1"
	DefaultPGPort         = 5432
	DefaultPGUser         = "postgres"
	DefaultPGDatabase     = "chatbridge"
	DefaultPGSSLMode      = "disable"
	DefaultOutboundSecs   = 15
	DefaultCRMAuthURL     = "https://marketplace.gohighlevel.com/oauth/chooselocation"
	DefaultCRMTokenURL    = "https://services.leadconnectorhq.com/oauth/token"
	DefaultCRMLocationURL = "https://services.leadconnectorhq.com/oauth/locationToken"
	DefaultCRMAPIBaseURL  = "https://services.leadconnectorhq.com"
	DefaultDocsAuthURL    = "https://accounts.google.com/o/oauth2/v2/auth"
	DefaultDocsTokenURL   = "https://oauth2.googleapis.com/token"
	DefaultDocsUserInfo   = "https://www.googleapis.com/oauth2/v2/userinfo"
	DefaultDriveAPIBase   = "https://www.googleapis.com/drive/v3"
	DefaultDocsAPIBase    = "https://docs.googleapis.com/v1"
)

type Config struct {
	Log      LogConfig      `toml:"log"`
	Server   ServerConfig   `toml:"server"`
	App      AppConfig      `toml:"app"`
	Admin    AdminConfig    `toml:"admin"`
	Auth     AuthConfig     `toml:"auth"`
	Postgres PostgresConfig `toml:"postgres"`
	HTTP     HTTPConfig     `toml:"http"`
	CRM      CRMConfig      `toml:"crm"`
	Docs     DocsConfig     `toml:"docs"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type ServerConfig struct {
	Addr string `toml:"addr"`
}

// AppConfig describes the public-facing base URL used for OAuth redirects.
type AppConfig struct {
	BaseURL       string `toml:"base_url"`
	SettingsPath  string `toml:"settings_path"`
	KnowledgePath string `toml:"knowledge_path"`
}

type AdminConfig struct {
	Username string `toml:"username"`
	Password string `toml:"password"`
	Email    string `toml:"email"`
}

type AuthConfig struct {
	JWTSecret    string `toml:"jwt_secret"`
	JWTExpiresIn string `toml:"jwt_expires_in"`
}

type PostgresConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	Database string `toml:"database"`
	SSLMode  string `toml:"sslmode"`
}

// HTTPConfig bounds every outbound provider call.
type HTTPConfig struct {
	OutboundTimeoutSeconds int `toml:"outbound_timeout_seconds"`
}

// CRMConfig holds the conversation provider's OAuth app and API endpoints.
type CRMConfig struct {
	ClientID               string   `toml:"client_id"`
	ClientSecret           string   `toml:"client_secret"`
	AuthURL                string   `toml:"auth_url"`
	TokenURL               string   `toml:"token_url"`
	LocationTokenURL       string   `toml:"location_token_url"`
	APIBaseURL             string   `toml:"api_base_url"`
	ConversationProviderID string   `toml:"conversation_provider_id"`
	RedirectPath           string   `toml:"redirect_path"`
	Scopes                 []string `toml:"scopes"`
}

// DocsConfig holds the document provider's OAuth app and API endpoints.
type DocsConfig struct {
	ClientID     string   `toml:"client_id"`
	ClientSecret string   `toml:"client_secret"`
	AuthURL      string   `toml:"auth_url"`
	TokenURL     string   `toml:"token_url"`
	UserInfoURL  string   `toml:"user_info_url"`
	DriveAPIBase string   `toml:"drive_api_base"`
	DocsAPIBase  string   `toml:"docs_api_base"`
	RedirectPath string   `toml:"redirect_path"`
	Scopes       []string `toml:"scopes"`
}

// Configured reports whether the OAuth app credentials are present.
func (c CRMConfig) Configured() bool {
	return strings.TrimSpace(c.ClientID) != "" && strings.TrimSpace(c.ClientSecret) != ""
}

func (c DocsConfig) Configured() bool {
	return strings.TrimSpace(c.ClientID) != "" && strings.TrimSpace(c.ClientSecret) != ""
}

// RedirectURL joins the app base URL with a provider redirect path.
func (a AppConfig) RedirectURL(path string) string {
	base := strings.TrimRight(a.BaseURL, "/")
	if base == "" {
		base = "http://localhost:8080"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return base + path
}

func Load(path string) (Config, error) {
	cfg := Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Addr: DefaultHTTPAddr,
		},
		App: AppConfig{
			BaseURL:       "http://localhost:8080",
			SettingsPath:  "/dashboard/settings",
			KnowledgePath: "/dashboard/knowledge",
		},
		Admin: AdminConfig{
			Username: "admin",
			Password: "change-your-password-here",
			Email:    "you@example.com",
		},
		Auth: AuthConfig{
			JWTExpiresIn: DefaultJWTExpiresIn,
		},
		Postgres: PostgresConfig{
			Host:     DefaultPGHost,
			Port:     DefaultPGPort,
			User:     DefaultPGUser,
			Database: DefaultPGDatabase,
			SSLMode:  DefaultPGSSLMode,
		},
		HTTP: HTTPConfig{
			OutboundTimeoutSeconds: DefaultOutboundSecs,
		},
		CRM: CRMConfig{
			AuthURL:          DefaultCRMAuthURL,
			TokenURL:         DefaultCRMTokenURL,
			LocationTokenURL: DefaultCRMLocationURL,
			APIBaseURL:       DefaultCRMAPIBaseURL,
			RedirectPath:     "/oauth/crm/callback",
			Scopes: []string{
				"conversations.readonly",
				"conversations.write",
				"conversations/message.readonly",
				"conversations/message.write",
				"contacts.readonly",
				"contacts.write",
			},
		},
		Docs: DocsConfig{
			AuthURL:      DefaultDocsAuthURL,
			TokenURL:     DefaultDocsTokenURL,
			UserInfoURL:  DefaultDocsUserInfo,
			DriveAPIBase: DefaultDriveAPIBase,
			DocsAPIBase:  DefaultDocsAPIBase,
			RedirectPath: "/oauth/docs/callback",
			Scopes: []string{
				"https://www.googleapis.com/auth/drive.readonly",
				"https://www.googleapis.com/auth/documents.readonly",
				"https://www.googleapis.com/auth/userinfo.email",
			},
		},
	}

	if path == "" {
		path = DefaultConfigPath
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}

	return cfg, nil
}
