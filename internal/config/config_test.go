package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.NoError(t, err)

	assert.Equal(t, DefaultHTTPAddr, cfg.Server.Addr)
	assert.Equal(t, DefaultCRMTokenURL, cfg.CRM.TokenURL)
	assert.Equal(t, DefaultDocsTokenURL, cfg.Docs.TokenURL)
	assert.Equal(t, DefaultOutboundSecs, cfg.HTTP.OutboundTimeoutSeconds)
	assert.False(t, cfg.CRM.Configured())
	assert.False(t, cfg.Docs.Configured())
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[server]
addr = ":9090"

[crm]
client_id = "abc"
client_secret = "def"
conversation_provider_id = "prov-1"

[http]
outbound_timeout_seconds = 5
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.True(t, cfg.CRM.Configured())
	assert.Equal(t, "prov-1", cfg.CRM.ConversationProviderID)
	assert.Equal(t, 5, cfg.HTTP.OutboundTimeoutSeconds)
	assert.Equal(t, DefaultCRMTokenURL, cfg.CRM.TokenURL, "unset keys keep defaults")
}

func TestRedirectURL(t *testing.T) {
	app := AppConfig{BaseURL: "https://bridge.example.com/"}
	assert.Equal(t, "https://bridge.example.com/oauth/crm/callback", app.RedirectURL("/oauth/crm/callback"))
	assert.Equal(t, "https://bridge.example.com/x", app.RedirectURL("x"))

	empty := AppConfig{}
	assert.Equal(t, "http://localhost:8080/x", empty.RedirectURL("/x"))
}
