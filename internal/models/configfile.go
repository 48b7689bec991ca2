package models

import (
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// ConfigFormat is the syntax of a known config file.
type ConfigFormat string

// Config formats.
const (
	FormatProperties ConfigFormat = "PROPERTIES"
	FormatYAML       ConfigFormat = "YAML"
	FormatConf       ConfigFormat = "CONF"
	FormatTOML       ConfigFormat = "TOML"
)

// ConfigInfo describes one known config file.
type ConfigInfo struct {
	Type    ServerType   `json:"type"`
	Format  ConfigFormat `json:"format"`
	Aliases []string     `json:"aliases"`
}

// knownConfigs maps canonical config paths to their metadata. Aliases are
// alternate paths clients may submit; they resolve to the canonical entry.
var knownConfigs = map[string]ConfigInfo{
	"server.properties": {Type: TypeVanilla, Format: FormatProperties, Aliases: []string{}},
	"bukkit.yml":        {Type: TypeSpigot, Format: FormatYAML, Aliases: []string{}},
	"spigot.yml":        {Type: TypeSpigot, Format: FormatYAML, Aliases: []string{}},
	"config/paper-global.yml": {
		Type: TypePaper, Format: FormatYAML,
		Aliases: []string{"paper-global.yml"},
	},
	"config/paper-world-defaults.yml": {
		Type: TypePaper, Format: FormatYAML,
		Aliases: []string{"paper-world-defaults.yml"},
	},
	"paper.yml":      {Type: TypePaper, Format: FormatYAML, Aliases: []string{}},
	"purpur.yml":     {Type: TypePurpur, Format: FormatYAML, Aliases: []string{}},
	"pufferfish.yml": {Type: TypePufferfish, Format: FormatYAML, Aliases: []string{}},
	"leaves.yml":     {Type: TypeLeaves, Format: FormatYAML, Aliases: []string{}},
	"divinemc.yml":   {Type: TypeDivineMC, Format: FormatYAML, Aliases: []string{}},
	"canvas.yml":     {Type: TypeCanvas, Format: FormatYAML, Aliases: []string{}},
	"config.yml": {
		Type: TypeBungeecord, Format: FormatYAML,
		Aliases: []string{"waterfall.yml"},
	},
	"velocity.toml": {Type: TypeVelocity, Format: FormatTOML, Aliases: []string{}},
	"settings.yml":  {Type: TypeNanoLimbo, Format: FormatYAML, Aliases: []string{}},
	"limbo.properties": {
		Type: TypeLoohpLimbo, Format: FormatProperties, Aliases: []string{},
	},
	"sponge/global.conf": {
		Type: TypeSponge, Format: FormatConf,
		Aliases: []string{"global.conf"},
	},
	"arclight.conf": {Type: TypeArclight, Format: FormatConf, Aliases: []string{}},
	"mohist-config/mohist.yml": {
		Type: TypeMohist, Format: FormatYAML,
		Aliases: []string{"mohist.yml"},
	},
}

// KnownConfigs returns the canonical config table.
func KnownConfigs() map[string]ConfigInfo {
	out := make(map[string]ConfigInfo, len(knownConfigs))
	for path, info := range knownConfigs {
		out[path] = info
	}
	return out
}

// LookupConfig resolves a submitted file name to its canonical path and
// metadata, following aliases and ignoring leading directories.
func LookupConfig(file string) (string, ConfigInfo, bool) {
	file = strings.TrimPrefix(strings.TrimSpace(file), "./")
	if info, ok := knownConfigs[file]; ok {
		return file, info, true
	}

	base := file
	if i := strings.LastIndexByte(file, '/'); i >= 0 {
		base = file[i+1:]
	}
	if info, ok := knownConfigs[base]; ok {
		return base, info, true
	}
	for path, info := range knownConfigs {
		for _, alias := range info.Aliases {
			if alias == file || alias == base {
				return path, info, true
			}
		}
	}
	return "", ConfigInfo{}, false
}

// FormatConfig normalizes a config file's content for similarity search:
// comments and blank lines are stripped, keys are ordered deterministically
// and machine-generated or secret values are redacted. The second return is
// the version marker found in the content (config-version or version),
// used as an exact-match pre-filter; empty when none is present.
//
// FormatConfig is pure and idempotent: applying it to its own output
// returns the output unchanged.
func FormatConfig(file, content string) (string, string) {
	_, info, ok := LookupConfig(file)
	if !ok {
		return strings.TrimSpace(content), ""
	}

	switch info.Format {
	case FormatProperties:
		return formatProperties(content)
	case FormatYAML:
		return formatYAML(file, content)
	case FormatTOML:
		return formatTOML(file, content)
	default:
		return formatConf(content), ""
	}
}

// formatProperties strips comments and sorts the remaining lines.
func formatProperties(content string) (string, string) {
	var lines []string
	version := ""
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimRight(line, "\r")
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") || strings.HasPrefix(trimmed, "!") {
			continue
		}
		if key, value, ok := strings.Cut(trimmed, "="); ok {
			if strings.HasPrefix(strings.TrimSpace(key), "seed-") {
				trimmed = strings.TrimSpace(key) + "=xxx"
			} else if strings.TrimSpace(key) == "version" {
				version = strings.TrimSpace(value)
			}
		}
		lines = append(lines, trimmed)
	}
	sort.Strings(lines)
	return strings.Join(lines, "\n"), version
}

// formatYAML parses the document, redacts per-file secret keys, sorts every
// mapping recursively and re-renders it.
func formatYAML(file, content string) (string, string) {
	var doc map[string]any
	if err := yaml.Unmarshal([]byte(content), &doc); err != nil {
		// Unparseable input falls back to comment stripping only.
		return formatConf(content), ""
	}
	if doc == nil {
		return "", ""
	}

	base := file
	if i := strings.LastIndexByte(file, '/'); i >= 0 {
		base = file[i+1:]
	}
	redactYAML(doc, base)

	version := ""
	if v, ok := doc["config-version"]; ok {
		version = fmt.Sprintf("%v", v)
	} else if v, ok := doc["version"]; ok {
		version = fmt.Sprintf("%v", v)
	}

	out, err := yaml.Marshal(sortedYAML(doc))
	if err != nil {
		return formatConf(content), version
	}
	return strings.TrimRight(string(out), "\n"), version
}

// redactYAML blanks machine-specific values: stats identifiers in the
// BungeeCord config.yml, the server id in leaves.yml and every seed-*
// key anywhere.
func redactYAML(node map[string]any, base string) {
	for key := range node {
		switch {
		case strings.HasPrefix(key, "seed-"):
			node[key] = "xxx"
		case base == "config.yml" && (key == "stats_uuid" || key == "stats"):
			node[key] = "xxx"
		case base == "leaves.yml" && key == "server-id":
			node[key] = "xxx"
		}
		if child, ok := node[key].(map[string]any); ok {
			redactYAML(child, base)
		}
	}
}

// sortedYAML rebuilds the document as a yaml.Node tree with mapping keys
// in lexicographic order at every level.
func sortedYAML(value any) *yaml.Node {
	switch v := value.(type) {
	case map[string]any:
		node := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		keys := make([]string, 0, len(v))
		for key := range v {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			keyNode := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key}
			node.Content = append(node.Content, keyNode, sortedYAML(v[key]))
		}
		return node
	case []any:
		node := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		for _, item := range v {
			node.Content = append(node.Content, sortedYAML(item))
		}
		return node
	default:
		node := &yaml.Node{}
		if err := node.Encode(v); err != nil {
			node = &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: fmt.Sprintf("%v", v)}
		}
		return node
	}
}

// formatTOML strips comments and blank lines, redacts the Velocity
// forwarding secret and extracts the config-version marker. Key order is
// preserved; TOML sections are order-sensitive enough that sorting would
// change meaning.
func formatTOML(file string, content string) (string, string) {
	velocity := strings.HasSuffix(file, "velocity.toml")
	version := ""
	var lines []string
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimRight(line, "\r")
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		if key, value, ok := strings.Cut(trimmed, "="); ok {
			key = strings.TrimSpace(key)
			if velocity && key == "forwarding-secret" {
				trimmed = `forwarding-secret = "xxx"`
			}
			if key == "config-version" {
				version = strings.Trim(strings.TrimSpace(value), `"`)
			}
		}
		lines = append(lines, trimmed)
	}
	return strings.Join(lines, "\n"), version
}

// formatConf strips comment and blank lines, preserving order.
func formatConf(content string) string {
	var lines []string
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimRight(line, "\r")
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") || strings.HasPrefix(trimmed, "//") {
			continue
		}
		lines = append(lines, trimmed)
	}
	return strings.Join(lines, "\n")
}
