// Package metadata encodes and parses the JSON document that addon tools
// embed in the archive description field.
//
// The document carries the addon title, the human description, the addon
// type and its tags:
//
//	{"title":"My Addon","description":"Does things","type":"tool","tags":["fun","build"]}
//
// Parsing is best effort. A description that is not such a document is kept
// verbatim with TypeUnknown and no tags.
package metadata

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/meigma/gma/internal/gmatype"
)

// document mirrors the embedded JSON object. Field order is the wire order.
type document struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Type        string   `json:"type"`
	Tags        []string `json:"tags"`
}

// parsed uses pointers so missing fields can be told apart from empty ones.
type parsed struct {
	Description *string   `json:"description"`
	Type        *string   `json:"type"`
	Tags        *[]string `json:"tags"`
}

// Info is the result of parsing a stored description.
type Info struct {
	Description string
	Type        gmatype.AddonType
	Tags        []gmatype.AddonTag

	// Structured is false when the description was not a metadata document.
	Structured bool
}

// Encode builds the metadata document for the given fields. Invalid tags
// are rejected with ErrValidation.
func Encode(title, description string, typ gmatype.AddonType, tags []gmatype.AddonTag) (string, error) {
	doc := document{
		Title:       title,
		Description: description,
		Type:        typ.String(),
		Tags:        make([]string, 0, len(tags)),
	}
	for _, tag := range tags {
		if !tag.Valid() {
			return "", fmt.Errorf("%w: invalid addon tag %d", gmatype.ErrValidation, uint8(tag))
		}
		doc.Tags = append(doc.Tags, tag.String())
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(doc); err != nil {
		return "", err
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

// Parse extracts the metadata document from a stored description.
//
// The document must be a JSON object with "description", "type" and "tags"
// members; "title" is optional and ignored. Unknown type names map to
// TypeUnknown and unknown tag names are skipped. Any other input yields an
// Info holding raw as its description.
func Parse(raw string) Info {
	fallback := Info{Description: raw, Type: gmatype.TypeUnknown}

	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, "{") {
		return fallback
	}

	var p parsed
	if err := json.Unmarshal([]byte(trimmed), &p); err != nil {
		return fallback
	}
	if p.Description == nil || p.Type == nil || p.Tags == nil {
		return fallback
	}

	info := Info{
		Description: *p.Description,
		Type:        gmatype.ParseAddonType(*p.Type),
		Structured:  true,
	}
	for _, name := range *p.Tags {
		if tag, ok := gmatype.ParseAddonTag(name); ok {
			info.Tags = append(info.Tags, tag)
		}
	}
	return info
}
