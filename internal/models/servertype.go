// Package models holds the domain read models: server families, builds,
// versions, organizations, users and the config-file normalizer. Everything
// here is either a plain row type or a pure function; persistence lives in
// internal/db.
package models

import "strings"

// ServerType identifies a server family.
type ServerType string

// The closed set of server families.
const (
	TypeVanilla      ServerType = "VANILLA"
	TypePaper        ServerType = "PAPER"
	TypePufferfish   ServerType = "PUFFERFISH"
	TypeSpigot       ServerType = "SPIGOT"
	TypeFolia        ServerType = "FOLIA"
	TypePurpur       ServerType = "PURPUR"
	TypeWaterfall    ServerType = "WATERFALL"
	TypeVelocity     ServerType = "VELOCITY"
	TypeFabric       ServerType = "FABRIC"
	TypeBungeecord   ServerType = "BUNGEECORD"
	TypeQuilt        ServerType = "QUILT"
	TypeForge        ServerType = "FORGE"
	TypeNeoforge     ServerType = "NEOFORGE"
	TypeMohist       ServerType = "MOHIST"
	TypeArclight     ServerType = "ARCLIGHT"
	TypeSponge       ServerType = "SPONGE"
	TypeLeaves       ServerType = "LEAVES"
	TypeCanvas       ServerType = "CANVAS"
	TypeASPaper      ServerType = "ASPAPER"
	TypeLegacyFabric ServerType = "LEGACY_FABRIC"
	TypeLoohpLimbo   ServerType = "LOOHP_LIMBO"
	TypeNanoLimbo    ServerType = "NANOLIMBO"
	TypeDivineMC     ServerType = "DIVINEMC"
)

// TypeInfo is the static metadata attached to a server family.
type TypeInfo struct {
	Name          string     `json:"name"`
	Identifier    ServerType `json:"-"`
	Icon          string     `json:"icon"`
	Color         string     `json:"color"`
	Homepage      string     `json:"homepage"`
	Deprecated    bool       `json:"deprecated"`
	Experimental  bool       `json:"experimental"`
	Description   string     `json:"description"`
	Categories    []string   `json:"categories"`
	Compatibility []string   `json:"compatibility"`
}

// TypeStats is the rollup served next to the static metadata.
type TypeStats struct {
	TypeInfo
	Builds   int64 `json:"builds"`
	Versions struct {
		Minecraft int64 `json:"minecraft"`
		Project   int64 `json:"project"`
	} `json:"versions"`
}

const iconBase = "https://s3.mcjars.app/icons"

// typeOrder fixes the enumeration order of /api/v1/types and friends.
var typeOrder = []ServerType{
	TypeVanilla, TypePaper, TypePufferfish, TypeSpigot, TypeFolia,
	TypePurpur, TypeWaterfall, TypeVelocity, TypeFabric, TypeBungeecord,
	TypeQuilt, TypeForge, TypeNeoforge, TypeMohist, TypeArclight,
	TypeSponge, TypeLeaves, TypeCanvas, TypeASPaper, TypeLegacyFabric,
	TypeLoohpLimbo, TypeNanoLimbo, TypeDivineMC,
}

var typeInfos = map[ServerType]TypeInfo{
	TypeVanilla: {
		Name: "Vanilla", Icon: iconBase + "/vanilla.png", Color: "#3B2A22",
		Homepage:    "https://minecraft.net/en-us/download/server",
		Description: "The official Minecraft server software.",
		Categories:  []string{"vanilla"}, Compatibility: []string{},
	},
	TypePaper: {
		Name: "Paper", Icon: iconBase + "/paper.png", Color: "#444444",
		Homepage:    "https://papermc.io/software/paper",
		Description: "A high performance fork of Spigot.",
		Categories:  []string{"plugins"}, Compatibility: []string{"spigot", "paper"},
	},
	TypePufferfish: {
		Name: "Pufferfish", Icon: iconBase + "/pufferfish.png", Color: "#FFA647",
		Homepage:    "https://pufferfish.host/downloads",
		Description: "A highly optimized Paper fork.",
		Categories:  []string{"plugins"}, Compatibility: []string{"spigot", "paper"},
	},
	TypeSpigot: {
		Name: "Spigot", Icon: iconBase + "/spigot.png", Color: "#F7CF0D",
		Homepage:    "https://www.spigotmc.org",
		Description: "The original Bukkit fork with plugin support.",
		Categories:  []string{"plugins"}, Compatibility: []string{"spigot"},
	},
	TypeFolia: {
		Name: "Folia", Icon: iconBase + "/folia.png", Color: "#3B83BD",
		Homepage:     "https://papermc.io/software/folia",
		Experimental: true,
		Description:  "A Paper fork with regionised multithreading.",
		Categories:   []string{"plugins"}, Compatibility: []string{"folia"},
	},
	TypePurpur: {
		Name: "Purpur", Icon: iconBase + "/purpur.png", Color: "#C92BFF",
		Homepage:    "https://purpurmc.org",
		Description: "A drop-in replacement for Paper with more configuration.",
		Categories:  []string{"plugins"}, Compatibility: []string{"spigot", "paper", "purpur"},
	},
	TypeWaterfall: {
		Name: "Waterfall", Icon: iconBase + "/waterfall.png", Color: "#193CB2",
		Homepage:    "https://papermc.io/software/waterfall",
		Deprecated:  true,
		Description: "A BungeeCord fork, discontinued in favor of Velocity.",
		Categories:  []string{"proxy"}, Compatibility: []string{"bungeecord"},
	},
	TypeVelocity: {
		Name: "Velocity", Icon: iconBase + "/velocity.png", Color: "#1BBAE0",
		Homepage:    "https://papermc.io/software/velocity",
		Description: "A modern, high performance proxy.",
		Categories:  []string{"proxy"}, Compatibility: []string{"velocity"},
	},
	TypeFabric: {
		Name: "Fabric", Icon: iconBase + "/fabric.png", Color: "#C6BBA5",
		Homepage:    "https://fabricmc.net",
		Description: "A lightweight, modular modding toolchain.",
		Categories:  []string{"mods"}, Compatibility: []string{"fabric"},
	},
	TypeBungeecord: {
		Name: "BungeeCord", Icon: iconBase + "/bungeecord.png", Color: "#D4B451",
		Homepage:    "https://www.spigotmc.org/wiki/bungeecord",
		Description: "The original Minecraft proxy.",
		Categories:  []string{"proxy"}, Compatibility: []string{"bungeecord"},
	},
	TypeQuilt: {
		Name: "Quilt", Icon: iconBase + "/quilt.png", Color: "#9722FF",
		Homepage:     "https://quiltmc.org",
		Experimental: true,
		Description:  "A Fabric fork focused on community governance.",
		Categories:   []string{"mods"}, Compatibility: []string{"fabric", "quilt"},
	},
	TypeForge: {
		Name: "Forge", Icon: iconBase + "/forge.png", Color: "#DFA86A",
		Homepage:    "https://files.minecraftforge.net",
		Description: "The oldest and most widely used modloader.",
		Categories:  []string{"mods"}, Compatibility: []string{"forge"},
	},
	TypeNeoforge: {
		Name: "NeoForge", Icon: iconBase + "/neoforge.png", Color: "#D7742F",
		Homepage:    "https://neoforged.net",
		Description: "A community fork of Forge.",
		Categories:  []string{"mods"}, Compatibility: []string{"neoforge"},
	},
	TypeMohist: {
		Name: "Mohist", Icon: iconBase + "/mohist.png", Color: "#2A3294",
		Homepage:    "https://mohistmc.com/software/mohist",
		Description: "A Forge hybrid supporting Bukkit plugins.",
		Categories:  []string{"mods", "plugins"}, Compatibility: []string{"forge", "spigot"},
	},
	TypeArclight: {
		Name: "Arclight", Icon: iconBase + "/arclight.png", Color: "#F4FDFE",
		Homepage:    "https://github.com/IzzelAliz/Arclight",
		Description: "A Bukkit server implemented on modloaders.",
		Categories:  []string{"mods", "plugins"}, Compatibility: []string{"forge", "fabric", "spigot"},
	},
	TypeSponge: {
		Name: "Sponge", Icon: iconBase + "/sponge.png", Color: "#F7CF0D",
		Homepage:    "https://spongepowered.org",
		Description: "A plugin platform targeting the official server.",
		Categories:  []string{"plugins"}, Compatibility: []string{"sponge"},
	},
	TypeLeaves: {
		Name: "Leaves", Icon: iconBase + "/leaves.png", Color: "#40794F",
		Homepage:    "https://leavesmc.org/software/leaves",
		Description: "A Paper fork aimed at vanilla parity.",
		Categories:  []string{"plugins"}, Compatibility: []string{"spigot", "paper"},
	},
	TypeCanvas: {
		Name: "Canvas", Icon: iconBase + "/canvas.png", Color: "#3D8EFF",
		Homepage:     "https://github.com/CraftCanvasMC/Canvas",
		Experimental: true,
		Description:  "A Folia fork with further multithreading work.",
		Categories:   []string{"plugins"}, Compatibility: []string{"folia"},
	},
	TypeASPaper: {
		Name: "AdvancedSlimePaper", Icon: iconBase + "/aspaper.png", Color: "#6F84BC",
		Homepage:    "https://infernalsuite.com",
		Description: "A Paper fork with the Slime world format built in.",
		Categories:  []string{"plugins"}, Compatibility: []string{"spigot", "paper"},
	},
	TypeLegacyFabric: {
		Name: "Legacy Fabric", Icon: iconBase + "/legacy_fabric.png", Color: "#C6BBA5",
		Homepage:    "https://legacyfabric.net",
		Description: "Fabric tooling for legacy Minecraft versions.",
		Categories:  []string{"mods"}, Compatibility: []string{"fabric"},
	},
	TypeLoohpLimbo: {
		Name: "LOOHP Limbo", Icon: iconBase + "/loohp_limbo.png", Color: "#93ACFF",
		Homepage:    "https://github.com/LOOHP/Limbo",
		Description: "A lightweight limbo server.",
		Categories:  []string{"limbo"}, Compatibility: []string{},
	},
	TypeNanoLimbo: {
		Name: "NanoLimbo", Icon: iconBase + "/nanolimbo.png", Color: "#AEAEAE",
		Homepage:    "https://github.com/Nan1t/NanoLimbo",
		Description: "A minimal limbo server with tiny resource usage.",
		Categories:  []string{"limbo"}, Compatibility: []string{},
	},
	TypeDivineMC: {
		Name: "DivineMC", Icon: iconBase + "/divinemc.png", Color: "#6A82FD",
		Homepage:     "https://github.com/BX-Team/DivineMC",
		Experimental: true,
		Description:  "A Purpur fork focused on performance.",
		Categories:   []string{"plugins"}, Compatibility: []string{"spigot", "paper", "purpur"},
	},
}

// projectIdentified marks families whose versions are identified by the
// project's own version string instead of a Minecraft version.
var projectIdentified = map[ServerType]bool{
	TypeVelocity:   true,
	TypeBungeecord: true,
	TypeWaterfall:  true,
	TypeNanoLimbo:  true,
}

// Types returns every server family in enumeration order.
func Types() []ServerType {
	out := make([]ServerType, len(typeOrder))
	copy(out, typeOrder)
	return out
}

// ParseType normalizes raw into a known ServerType. The second return is
// false for unknown families.
func ParseType(raw string) (ServerType, bool) {
	t := ServerType(strings.ToUpper(raw))
	_, ok := typeInfos[t]
	return t, ok
}

// Info returns the static metadata for t.
func (t ServerType) Info() TypeInfo {
	info := typeInfos[t]
	info.Identifier = t
	return info
}

// ProjectAsIdentifier reports whether versions of t are identified by the
// project version string rather than a Minecraft version.
func (t ServerType) ProjectAsIdentifier() bool {
	return projectIdentified[t]
}
