package gma

import (
	"bytes"
	"errors"
	"io"
	"io/fs"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/gma/internal/filter"
	"github.com/meigma/gma/internal/testutil"
)

// writeArchive writes b and returns the encoded bytes.
func writeArchive(tb testing.TB, b *Builder) []byte {
	tb.Helper()
	var buf bytes.Buffer
	n, err := b.WriteTo(&buf)
	require.NoError(tb, err)
	require.Equal(tb, int64(buf.Len()), n)
	return buf.Bytes()
}

// scenarioBuilder returns the reference addon used across tests.
func scenarioBuilder(compressed bool) *Builder {
	return NewBuilder().
		Version(3).
		AuthorID(123456).
		Timestamp(time.Unix(987654, 0)).
		Name("ADDON_NAME").
		Description("ADDON_DESC").
		Author("AUTHOR_NAME").
		Type(TypeModel).
		Tags(TagBuild, TagFun).
		Compressed(compressed).
		AddBytes("file1", []byte("hello"))
}

func TestScenarioRoundTrip(t *testing.T) {
	t.Parallel()

	for _, compressed := range []bool{false, true} {
		name := "uncompressed"
		if compressed {
			name = "compressed"
		}
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			a, err := LoadBytes(writeArchive(t, scenarioBuilder(compressed)))
			require.NoError(t, err)

			assert.Equal(t, uint8(3), a.Version())
			assert.Equal(t, uint64(123456), a.AuthorID())
			assert.Equal(t, uint64(987654), a.Timestamp())
			assert.Equal(t, "ADDON_NAME", a.Name())
			assert.Equal(t, "ADDON_DESC", a.Description())
			assert.Equal(t, "AUTHOR_NAME", a.Author())
			assert.Equal(t, TypeModel, a.Type())
			assert.Equal(t, []AddonTag{TagBuild, TagFun}, a.Tags())
			assert.True(t, a.HasTag(TagFun))
			assert.False(t, a.HasTag(TagComic))
			assert.Equal(t, compressed, a.Compressed())
			assert.Equal(t, uint32(1), a.Header().AddonVersion)
			assert.Empty(t, a.RequiredContent())

			require.Equal(t, 1, a.Len())
			entry, ok := a.Entry(0)
			require.True(t, ok)
			assert.Equal(t, Entry{Index: 1, Name: "file1", Size: 5, CRC: 907060870, Offset: 0}, entry)

			var got []byte
			err = a.ReadEntry(entry, func(r io.Reader) error {
				got, err = io.ReadAll(r)
				return err
			}, ReadWithVerify(true))
			require.NoError(t, err)
			assert.Equal(t, "hello", string(got))
		})
	}
}

func TestCompressedAndUncompressedDecodeAlike(t *testing.T) {
	t.Parallel()

	plain, err := LoadBytes(writeArchive(t, scenarioBuilder(false)))
	require.NoError(t, err)
	packed, err := LoadBytes(writeArchive(t, scenarioBuilder(true)))
	require.NoError(t, err)

	ph, ch := plain.Header(), packed.Header()
	ph.Compressed, ch.Compressed = false, false
	assert.Equal(t, ph, ch)
	assert.Equal(t, slices.Collect(plain.Entries()), slices.Collect(packed.Entries()))
}

func TestZeroEntries(t *testing.T) {
	t.Parallel()

	for _, compressed := range []bool{false, true} {
		a, err := LoadBytes(writeArchive(t, NewBuilder().Name("empty").Compressed(compressed)))
		require.NoError(t, err)
		assert.Equal(t, 0, a.Len())
		assert.Empty(t, slices.Collect(a.Entries()))
		require.NoError(t, a.Verify())
	}
}

func TestEntriesAndLookup(t *testing.T) {
	t.Parallel()

	a, err := LoadBytes(writeArchive(t, NewBuilder().
		AddBytes("a.lua", []byte("aaa")).
		AddBytes("b/empty.txt", nil).
		AddBytes("c.vmt", []byte("cccccc"))))
	require.NoError(t, err)

	entries := slices.Collect(a.Entries())
	require.Len(t, entries, 3)
	assert.Equal(t, []string{"a.lua", "b/empty.txt", "c.vmt"}, []string{entries[0].Name, entries[1].Name, entries[2].Name})
	assert.Equal(t, []uint64{0, 3, 3}, []uint64{entries[0].Offset, entries[1].Offset, entries[2].Offset})
	for i, e := range entries {
		assert.Equal(t, uint32(i+1), e.Index)
	}

	e, ok := a.Lookup("c.vmt")
	require.True(t, ok)
	assert.Equal(t, uint64(6), e.Size)
	_, ok = a.Lookup("missing")
	assert.False(t, ok)
	_, ok = a.Entry(3)
	assert.False(t, ok)
	_, ok = a.Entry(-1)
	assert.False(t, ok)

	data, err := a.ReadFile("b/empty.txt")
	require.NoError(t, err)
	assert.Empty(t, data)

	_, err = a.ReadFile("missing")
	assert.ErrorIs(t, err, fs.ErrNotExist)

	sr, err := a.EntryReader(e)
	require.NoError(t, err)
	assert.Equal(t, int64(6), sr.Size())
	got, err := io.ReadAll(sr)
	require.NoError(t, err)
	assert.Equal(t, "cccccc", string(got))

	_, err = a.EntryReader(Entry{Index: 9, Name: "c.vmt"})
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestEntryContentIsReadLazily(t *testing.T) {
	t.Parallel()

	big := bytes.Repeat([]byte("x"), 64<<10)
	data := writeArchive(t, NewBuilder().AddBytes("big.bin", big))
	src := testutil.NewTrackingReaderAt(data)

	a, err := Load(src, src.Size())
	require.NoError(t, err)
	assert.Less(t, src.MaxRead(), src.Size()-int64(len(big))+4096)

	got, err := a.ReadFile("big.bin")
	require.NoError(t, err)
	assert.Equal(t, big, got)
	assert.Equal(t, src.Size(), src.MaxRead())
}

func TestReadEntryPartialRead(t *testing.T) {
	t.Parallel()

	a, err := LoadBytes(writeArchive(t, NewBuilder().AddBytes("f", []byte("hello world"))))
	require.NoError(t, err)
	e, _ := a.Lookup("f")

	// Verification drains what the callback left unread.
	err = a.ReadEntry(e, func(r io.Reader) error {
		buf := make([]byte, 2)
		_, err := io.ReadFull(r, buf)
		return err
	}, ReadWithVerify(true))
	require.NoError(t, err)

	sentinel := errors.New("callback failed")
	err = a.ReadEntry(e, func(io.Reader) error { return sentinel }, ReadWithVerify(true))
	assert.ErrorIs(t, err, sentinel)
}

func TestChecksumMismatch(t *testing.T) {
	t.Parallel()

	raw := testutil.RawArchive{
		Version:      3,
		AddonVersion: 1,
		Entries: []testutil.RawEntry{
			{Name: "good.txt", Data: []byte("fine")},
			{Name: "bad.txt", Data: []byte("hello"), CRC: testutil.Ptr(uint32(1))},
		},
	}
	for _, compressed := range []bool{false, true} {
		raw.Compressed = compressed
		a, err := LoadBytes(raw.Bytes(t))
		require.NoError(t, err)
		bad, ok := a.Lookup("bad.txt")
		require.True(t, ok)

		// Without verification the content is returned as stored.
		var got []byte
		err = a.ReadEntry(bad, func(r io.Reader) error {
			got, err = io.ReadAll(r)
			return err
		})
		require.NoError(t, err)
		assert.Equal(t, "hello", string(got))

		err = a.ReadEntry(bad, func(r io.Reader) error {
			_, err := io.Copy(io.Discard, r)
			return err
		}, ReadWithVerify(true))
		assert.ErrorIs(t, err, ErrChecksumMismatch)

		_, err = a.ReadFile("bad.txt")
		assert.ErrorIs(t, err, ErrChecksumMismatch)

		_, err = a.ReadFile("good.txt")
		require.NoError(t, err)

		err = a.Verify()
		assert.ErrorIs(t, err, ErrChecksumMismatch)
		assert.Contains(t, err.Error(), "bad.txt")
	}
}

func TestWithVerifyDefault(t *testing.T) {
	t.Parallel()

	raw := testutil.RawArchive{
		Version: 3,
		Entries: []testutil.RawEntry{{Name: "bad.txt", Data: []byte("hello"), CRC: testutil.Ptr(uint32(7))}},
	}
	a, err := LoadBytes(raw.Bytes(t), WithVerify(true))
	require.NoError(t, err)
	e, _ := a.Lookup("bad.txt")

	err = a.ReadEntry(e, func(io.Reader) error { return nil })
	assert.ErrorIs(t, err, ErrChecksumMismatch)

	err = a.ReadEntry(e, func(io.Reader) error { return nil }, ReadWithVerify(false))
	assert.NoError(t, err)
}

func TestLoadRejects(t *testing.T) {
	t.Parallel()

	valid := writeArchive(t, NewBuilder().AddBytes("file1", []byte("hello")).AddBytes("file2", []byte("world")))
	compressed := writeArchive(t, NewBuilder().AddBytes("file1", bytes.Repeat([]byte("hello"), 100)).Compressed(true))
	headerLen := len(writeArchive(t, NewBuilder().Timestamp(time.Unix(0, 0))))
	// Same header fields as valid, so the table starts right after them.
	validHeaderLen := headerLen - 4

	tests := []struct {
		name string
		data []byte
		want []error
	}{
		{
			name: "empty",
			data: nil,
			want: []error{ErrInvalidFormat},
		},
		{
			name: "wrong magic",
			data: append([]byte("GMAX"), valid[4:]...),
			want: []error{ErrInvalidFormat},
		},
		{
			name: "lzma-looking garbage",
			data: []byte{0x5D, 0, 0, 0x80, 0, 1, 2, 3, 4, 5, 6},
			want: []error{ErrInvalidFormat},
		},
		{
			name: "truncated header",
			data: valid[:10],
			want: []error{ErrUnexpectedEOF},
		},
		{
			name: "truncated mid-table",
			data: valid[:validHeaderLen+10],
			want: []error{ErrUnexpectedEOF},
		},
		{
			name: "missing body",
			data: valid[:validHeaderLen],
			want: []error{ErrUnexpectedEOF},
		},
		{
			name: "truncated compressed body",
			data: compressed[:len(compressed)-10],
			want: []error{ErrCompression},
		},
		{
			name: "compressed body cut to a few bytes",
			data: compressed[:validHeaderLen+2],
			want: []error{ErrCompression},
		},
		{
			name: "unsupported version",
			data: testutil.RawArchive{Version: 4}.Bytes(t),
			want: []error{ErrInvalidFormat},
		},
		{
			name: "version zero",
			data: testutil.RawArchive{Version: 0}.Bytes(t),
			want: []error{ErrInvalidFormat},
		},
		{
			name: "duplicate entry",
			data: testutil.RawArchive{Version: 3, Entries: []testutil.RawEntry{
				{Name: "a", Data: []byte("1")},
				{Name: "a", Data: []byte("2")},
			}}.Bytes(t),
			want: []error{ErrInvalidFormat, ErrDuplicateEntry},
		},
		{
			name: "empty filename",
			data: testutil.RawArchive{Version: 3, Entries: []testutil.RawEntry{{Name: "", Data: []byte("1")}}}.Bytes(t),
			want: []error{ErrInvalidFormat},
		},
		{
			name: "out of order file number",
			data: testutil.RawArchive{Version: 3, Entries: []testutil.RawEntry{{Index: 2, Name: "a", Data: []byte("1")}}}.Bytes(t),
			want: []error{ErrInvalidFormat},
		},
		{
			name: "sizes exceed content",
			data: testutil.RawArchive{Version: 3, Entries: []testutil.RawEntry{
				{Name: "a", Data: []byte("12345"), Size: testutil.Ptr(uint64(6))},
			}}.Bytes(t),
			want: []error{ErrInvalidFormat},
		},
		{
			name: "size overflow",
			data: testutil.RawArchive{Version: 3, Entries: []testutil.RawEntry{
				{Name: "a", Size: testutil.Ptr(^uint64(0)), Omitted: true},
				{Name: "b", Size: testutil.Ptr(uint64(2)), Omitted: true},
			}}.Bytes(t),
			want: []error{ErrInvalidFormat},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := LoadBytes(tt.data)
			require.Error(t, err)
			for _, want := range tt.want {
				assert.ErrorIs(t, err, want)
			}
		})
	}
}

func TestUnterminatedString(t *testing.T) {
	t.Parallel()

	data := writeArchive(t, NewBuilder().Name("a long addon name"))
	// Cut inside the name, after the empty required-content list.
	cut := 4 + 1 + 8 + 8 + 1 + 5
	_, err := LoadBytes(data[:cut])
	assert.ErrorIs(t, err, ErrInvalidEncoding)
	assert.ErrorIs(t, err, ErrUnexpectedEOF)
}

func TestTrailingBytesAllowed(t *testing.T) {
	t.Parallel()

	raw := testutil.RawArchive{
		Version: 3,
		Entries: []testutil.RawEntry{{Name: "a", Data: []byte("abc")}},
		Trailer: []byte{0xDE, 0xAD},
	}
	a, err := LoadBytes(raw.Bytes(t))
	require.NoError(t, err)
	data, err := a.ReadFile("a")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(data))
}

func TestVersionOneHasNoRequiredContent(t *testing.T) {
	t.Parallel()

	raw := testutil.RawArchive{
		Version:      1,
		Name:         "old",
		Author:       "someone",
		AddonVersion: 1,
		Entries:      []testutil.RawEntry{{Name: "a", Data: []byte("x")}},
	}
	a, err := LoadBytes(raw.Bytes(t))
	require.NoError(t, err)
	assert.Equal(t, uint8(1), a.Version())
	assert.Equal(t, "old", a.Name())
	assert.Equal(t, "someone", a.Author())
	assert.Nil(t, a.RequiredContent())
}

func TestRequiredContentPreserved(t *testing.T) {
	t.Parallel()

	a, err := LoadBytes(writeArchive(t, NewBuilder().RequiredContent("cstrike", "hl2ep2")))
	require.NoError(t, err)
	assert.Equal(t, []string{"cstrike", "hl2ep2"}, a.RequiredContent())
}

func TestDescriptionFallback(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		raw      string
		wantDesc string
		wantType AddonType
		wantTags []AddonTag
	}{
		{
			name:     "plain text",
			raw:      "just words",
			wantDesc: "just words",
			wantType: TypeUnknown,
		},
		{
			name:     "missing tags",
			raw:      `{"description":"d","type":"map"}`,
			wantDesc: `{"description":"d","type":"map"}`,
			wantType: TypeUnknown,
		},
		{
			name:     "unknown type and tag",
			raw:      `{"title":"t","description":"d","type":"spaceship","tags":["fun","nope"]}`,
			wantDesc: "d",
			wantType: TypeUnknown,
			wantTags: []AddonTag{TagFun},
		},
		{
			name:     "structured",
			raw:      `{"description":"d","type":"weapon","tags":["realism","water"]}`,
			wantDesc: "d",
			wantType: TypeWeapon,
			wantTags: []AddonTag{TagRealism, TagWater},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			raw := testutil.RawArchive{Version: 3, Description: tt.raw}
			a, err := LoadBytes(raw.Bytes(t))
			require.NoError(t, err)
			assert.Equal(t, tt.raw, a.RawDescription())
			assert.Equal(t, tt.wantDesc, a.Description())
			assert.Equal(t, tt.wantType, a.Type())
			assert.Equal(t, tt.wantTags, a.Tags())
		})
	}
}

func TestWholeFileLZMA(t *testing.T) {
	t.Parallel()

	plain := writeArchive(t, scenarioBuilder(false))
	packed, err := filter.Compress(plain)
	require.NoError(t, err)

	a, err := LoadBytes(packed)
	require.NoError(t, err)
	assert.True(t, a.Compressed())
	assert.Equal(t, "ADDON_NAME", a.Name())
	data, err := a.ReadFile("file1")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	// Decompresses fine but is not an archive.
	notArchive, err := filter.Compress([]byte("definitely not an addon"))
	require.NoError(t, err)
	_, err = LoadBytes(notArchive)
	assert.ErrorIs(t, err, ErrInvalidFormat)
}

func TestMaxBodySize(t *testing.T) {
	t.Parallel()

	data := writeArchive(t, NewBuilder().AddBytes("big", bytes.Repeat([]byte("a"), 4096)).Compressed(true))

	_, err := LoadBytes(data, WithMaxBodySize(1024))
	assert.ErrorIs(t, err, ErrSizeOverflow)

	a, err := LoadBytes(data, WithMaxBodySize(0))
	require.NoError(t, err)
	assert.Equal(t, 1, a.Len())
}

func TestRead(t *testing.T) {
	t.Parallel()

	a, err := Read(bytes.NewReader(writeArchive(t, scenarioBuilder(true))))
	require.NoError(t, err)
	data, err := a.ReadFile("file1")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestDecodeStateString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "start", stateStart.String())
	assert.Equal(t, "ready", stateReady.String())
	assert.Equal(t, "failed", stateFailed.String())
	assert.Equal(t, "decodeState(9)", decodeState(9).String())
}
