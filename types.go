package gma

import "github.com/meigma/gma/internal/gmatype"

// Re-export types from internal/gmatype for the public API.
type (
	// Header holds the archive metadata stored ahead of the entry table.
	Header = gmatype.Header

	// Entry describes one file in the archive.
	Entry = gmatype.Entry

	// AddonType is the category an addon is published under.
	AddonType = gmatype.AddonType

	// AddonTag is one of the workshop tags an addon can carry.
	AddonTag = gmatype.AddonTag
)

// Addon types.
const (
	TypeUnknown       = gmatype.TypeUnknown
	TypeGamemode      = gmatype.TypeGamemode
	TypeMap           = gmatype.TypeMap
	TypeWeapon        = gmatype.TypeWeapon
	TypeVehicle       = gmatype.TypeVehicle
	TypeNPC           = gmatype.TypeNPC
	TypeEntity        = gmatype.TypeEntity
	TypeTool          = gmatype.TypeTool
	TypeEffects       = gmatype.TypeEffects
	TypeModel         = gmatype.TypeModel
	TypeServerContent = gmatype.TypeServerContent
)

// Addon tags.
const (
	TagFun      = gmatype.TagFun
	TagRoleplay = gmatype.TagRoleplay
	TagScenic   = gmatype.TagScenic
	TagMovie    = gmatype.TagMovie
	TagRealism  = gmatype.TagRealism
	TagCartoon  = gmatype.TagCartoon
	TagWater    = gmatype.TagWater
	TagComic    = gmatype.TagComic
	TagBuild    = gmatype.TagBuild
)

// Format versions.
const (
	VersionMin     = gmatype.VersionMin
	VersionMax     = gmatype.VersionMax
	VersionDefault = gmatype.VersionDefault
)

// ParseAddonType maps a type name to an AddonType, ignoring case.
// Unrecognized names yield TypeUnknown.
func ParseAddonType(s string) AddonType {
	return gmatype.ParseAddonType(s)
}

// ParseAddonTag maps a tag name to an AddonTag, ignoring case.
func ParseAddonTag(s string) (AddonTag, bool) {
	return gmatype.ParseAddonTag(s)
}
