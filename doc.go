// Package gma reads and writes GMA addon archives.
//
// A GMA archive is a single file holding addon metadata followed by an
// ordered table of named entries and their concatenated contents:
//   - Header: magic "GMAD", format version, author id, timestamp, the
//     required-content list (version > 1), name, description and author
//   - Entry table: file number, filename, size and CRC-32 per entry
//   - Content: entry bytes in table order
//
// Everything after the header may be wrapped in a single LZMA stream. The
// header is never compressed, so a reader can always inspect it first.
//
// # Reading
//
// Load parses the header and entry table eagerly and reads entry content
// lazily through bounded section readers:
//
//	f, err := gma.Open("addon.gma")
//	if err != nil {
//	    return err
//	}
//	defer f.Close()
//	for entry := range f.Entries() {
//	    fmt.Println(entry.Name, entry.Size)
//	}
//	data, err := f.ReadFile("lua/autorun/init.lua")
//
// # Writing
//
// Builder assembles an archive from in-memory buffers, readers or files:
//
//	_, err := gma.NewBuilder().
//	    Name("My Addon").
//	    Author("me").
//	    Type(gma.TypeTool).
//	    Tags(gma.TagFun, gma.TagBuild).
//	    AddBytes("lua/autorun/init.lua", src).
//	    WriteTo(w)
//
// The description field carries a JSON metadata document with the addon type
// and tags. Descriptions that are not such a document are exposed verbatim
// with TypeUnknown and no tags.
package gma
