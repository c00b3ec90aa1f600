package model

import (
	"log/slog"
	"strings"
	"sync"
)

// GameEngine identifies the RCON wire protocol family a server speaks.
type GameEngine string

const (
	EngineGoldSrc    GameEngine = "GOLDSRC"
	EngineSource     GameEngine = "SOURCE"
	EngineSource2009 GameEngine = "SOURCE_2009"
)

// source2009Tags are game tags running the 2009 Source branch. Matched
// case-insensitively, prefix for the wildcard families.
var source2009Prefixes = []string{"l4d", "portal"}

var source2009Exact = map[string]struct{}{
	"ep2":   {},
	"dod:s": {},
}

// ClassifyEngine maps a game tag to its engine family.
// Tags starting with "cs_" or containing "cstrike" are GoldSource;
// the 2009 branch titles map to SOURCE_2009; everything else defaults
// to SOURCE with a warning for tags we have never seen.
func ClassifyEngine(gameTag string) GameEngine {
	tag := strings.ToLower(strings.TrimSpace(gameTag))

	if strings.HasPrefix(tag, "cs_") || strings.Contains(tag, "cstrike") {
		return EngineGoldSrc
	}

	if _, ok := source2009Exact[tag]; ok {
		return EngineSource2009
	}
	for _, p := range source2009Prefixes {
		if strings.HasPrefix(tag, p) {
			return EngineSource2009
		}
	}

	if !knownSourceTag(tag) {
		if _, dup := warnedTags.LoadOrStore(tag, struct{}{}); !dup {
			slog.Warn("unknown game tag, assuming Source engine", "game", gameTag)
		}
	}
	return EngineSource
}

// warnedTags keeps the unknown-tag warning to one line per tag.
var warnedTags sync.Map

// knownSourceTag reports whether the tag is a Source title we recognize,
// purely to keep the unknown-tag warning honest.
func knownSourceTag(tag string) bool {
	switch tag {
	case "css", "csgo", "cs2", "tf", "tf2", "hl2mp", "hl2dm", "garrysmod", "gmod", "fof", "ins", "insurgency":
		return true
	}
	return false
}
