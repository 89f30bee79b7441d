package gmatype

import "strings"

// AddonType is the category an addon is published under.
type AddonType uint8

const (
	TypeUnknown AddonType = iota
	TypeGamemode
	TypeMap
	TypeWeapon
	TypeVehicle
	TypeNPC
	TypeEntity
	TypeTool
	TypeEffects
	TypeModel
	TypeServerContent
)

var addonTypeNames = [...]string{
	TypeUnknown:       "unknown",
	TypeGamemode:      "gamemode",
	TypeMap:           "map",
	TypeWeapon:        "weapon",
	TypeVehicle:       "vehicle",
	TypeNPC:           "npc",
	TypeEntity:        "entity",
	TypeTool:          "tool",
	TypeEffects:       "effects",
	TypeModel:         "model",
	TypeServerContent: "servercontent",
}

// String returns the wire name of the type.
func (t AddonType) String() string {
	if int(t) < len(addonTypeNames) {
		return addonTypeNames[t]
	}
	return "unknown"
}

// ParseAddonType maps a wire name to an AddonType, ignoring case.
// Unrecognized names yield TypeUnknown.
func ParseAddonType(s string) AddonType {
	s = strings.ToLower(s)
	for i := TypeGamemode; int(i) < len(addonTypeNames); i++ {
		if addonTypeNames[i] == s {
			return i
		}
	}
	return TypeUnknown
}

// AddonTag is one of the workshop tags an addon can carry.
type AddonTag uint8

const (
	TagFun AddonTag = iota + 1
	TagRoleplay
	TagScenic
	TagMovie
	TagRealism
	TagCartoon
	TagWater
	TagComic
	TagBuild
)

var addonTagNames = [...]string{
	TagFun:      "fun",
	TagRoleplay: "roleplay",
	TagScenic:   "scenic",
	TagMovie:    "movie",
	TagRealism:  "realism",
	TagCartoon:  "cartoon",
	TagWater:    "water",
	TagComic:    "comic",
	TagBuild:    "build",
}

// String returns the wire name of the tag.
func (t AddonTag) String() string {
	if t != 0 && int(t) < len(addonTagNames) {
		return addonTagNames[t]
	}
	return "unknown"
}

// Valid reports whether t is a known tag.
func (t AddonTag) Valid() bool {
	return t != 0 && int(t) < len(addonTagNames)
}

// ParseAddonTag maps a wire name to an AddonTag, ignoring case.
func ParseAddonTag(s string) (AddonTag, bool) {
	s = strings.ToLower(s)
	for i := TagFun; int(i) < len(addonTagNames); i++ {
		if addonTagNames[i] == s {
			return i, true
		}
	}
	return 0, false
}
