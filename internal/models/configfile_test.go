package models

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookupConfig(t *testing.T) {
	path, info, ok := LookupConfig("server.properties")
	require.True(t, ok)
	assert.Equal(t, "server.properties", path)
	assert.Equal(t, FormatProperties, info.Format)

	// Leading directories are ignored.
	path, _, ok = LookupConfig("home/container/spigot.yml")
	require.True(t, ok)
	assert.Equal(t, "spigot.yml", path)

	// Aliases resolve to the canonical entry.
	path, info, ok = LookupConfig("paper-global.yml")
	require.True(t, ok)
	assert.Equal(t, "config/paper-global.yml", path)
	assert.Equal(t, TypePaper, info.Type)

	_, _, ok = LookupConfig("unknown.cfg")
	assert.False(t, ok)
}

func TestFormatProperties(t *testing.T) {
	content := "#Minecraft server properties\n" +
		"#Mon Jan 01 00:00:00 UTC 2024\n" +
		"motd=A Minecraft Server\n" +
		"\n" +
		"difficulty=easy\n" +
		"seed-alpha=12345\n"

	formatted, version := FormatConfig("server.properties", content)
	assert.Empty(t, version)
	assert.Equal(t, "difficulty=easy\nmotd=A Minecraft Server\nseed-alpha=xxx", formatted)
}

func TestFormatYAMLSortsAndRedacts(t *testing.T) {
	content := "# comment\n" +
		"stats_uuid: 7a0f-dead-beef\n" +
		"listeners:\n" +
		"  query_port: 25577\n" +
		"  motd: hello\n" +
		"version: 1.21\n"

	formatted, version := FormatConfig("config.yml", content)
	assert.Equal(t, "1.21", version)
	assert.Contains(t, formatted, "stats_uuid: xxx")

	// Mapping keys come out sorted at every level.
	idxListeners := strings.Index(formatted, "listeners:")
	idxStats := strings.Index(formatted, "stats_uuid:")
	idxVersion := strings.Index(formatted, "version:")
	assert.Less(t, idxListeners, idxStats)
	assert.Less(t, idxStats, idxVersion)
	assert.Less(t, strings.Index(formatted, "motd:"), strings.Index(formatted, "query_port:"))
}

func TestFormatYAMLLeavesServerID(t *testing.T) {
	formatted, _ := FormatConfig("leaves.yml", "server-id: abc123\nfixes:\n  fix-a: true\n")
	assert.Contains(t, formatted, "server-id: xxx")
}

func TestFormatTOML(t *testing.T) {
	content := "# Velocity config\n" +
		"config-version = \"2.7\"\n" +
		"\n" +
		"bind = \"0.0.0.0:25565\"\n" +
		"forwarding-secret = \"hunter2\"\n"

	formatted, version := FormatConfig("velocity.toml", content)
	assert.Equal(t, "2.7", version)
	assert.Contains(t, formatted, `forwarding-secret = "xxx"`)
	assert.NotContains(t, formatted, "hunter2")
	assert.NotContains(t, formatted, "#")
}

func TestFormatConfIdempotent(t *testing.T) {
	content := "# sponge settings\nsponge {\n  modules {\n    bungeecord = false\n  }\n}\n"
	once, _ := FormatConfig("sponge/global.conf", content)
	twice, _ := FormatConfig("sponge/global.conf", once)
	assert.Equal(t, once, twice)
}

func TestFormatConfigIdempotent(t *testing.T) {
	cases := map[string]string{
		"server.properties": "motd=hi\nseed-x=1\ndifficulty=hard\n",
		"spigot.yml":        "settings:\n  bungeecord: false\nmessages:\n  whitelist: nope\n",
		"velocity.toml":     "config-version = \"2.7\"\nforwarding-secret = \"s\"\n",
	}
	for file, content := range cases {
		once, v1 := FormatConfig(file, content)
		twice, v2 := FormatConfig(file, once)
		assert.Equal(t, once, twice, file)
		assert.Equal(t, v1, v2, file)
	}
}
