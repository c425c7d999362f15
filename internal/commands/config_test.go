package commands

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pagewise/pagewise/internal/config"
)

func TestMaskToken(t *testing.T) {
	assert.Equal(t, "(none)", maskToken(""))
	assert.Equal(t, "****", maskToken("short"))
	assert.Equal(t, "****wxyz", maskToken("ghp_abcdefghijklmnopqrstuvwxyz"))
}

func TestConfigEntries(t *testing.T) {
	stats := true
	cfg := &config.Config{
		BaseURL:  "https://api.github.com",
		Token:    "ghp_secret_token_1234",
		PageSize: 50,
		Format:   "json",
		Timeout:  10 * time.Second,
		CacheDir: "/tmp/pagewise",
		Stats:    &stats,
		Sources: map[string]string{
			"page_size": string(config.SourceEnv),
			"token":     string(config.SourceKeyring),
		},
	}

	byKey := map[string]configEntry{}
	for _, e := range configEntries(cfg) {
		byKey[e.Key] = e
	}

	assert.Equal(t, "50", byKey["page_size"].Value)
	assert.Equal(t, "env", byKey["page_size"].Source)
	assert.Equal(t, "****1234", byKey["token"].Value)
	assert.Equal(t, "keyring", byKey["token"].Source)
	assert.Equal(t, "10s", byKey["timeout"].Value)
	assert.Equal(t, "true", byKey["stats"].Value)
	assert.Equal(t, "0", byKey["verbose"].Value)
	assert.Equal(t, "default", byKey["base_url"].Source)
}

func TestConfigShowCmd(t *testing.T) {
	app, buf := setupTestApp(t, &fakeGitHub{}, "json")
	app.Config.Token = "ghp_should_not_leak_9876"

	require.NoError(t, executeCommand(NewConfigCmd(), app, "show"))

	assert.NotContains(t, buf.String(), "should_not_leak")

	var resp struct {
		Data []configEntry `json:"data"`
	}
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &resp))
	require.NotEmpty(t, resp.Data)
	assert.Equal(t, "base_url", resp.Data[0].Key)
	assert.Equal(t, "flag", resp.Data[0].Source)
}
