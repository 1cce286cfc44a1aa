package arscparser_test

// Helpers assembling the binary chunks the parsers consume, the same
// little-endian layout the real files use.

import (
	"bytes"
	"encoding/binary"
	"testing"
	"unicode/utf16"

	"github.com/avast/arscparser"
	"github.com/stretchr/testify/require"
)

func putU16(w *bytes.Buffer, v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	w.Write(b[:])
}

func putU32(w *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.Write(b[:])
}

func chunkHeader(w *bytes.Buffer, typ, headerSize uint16, size uint32) {
	putU16(w, typ)
	putU16(w, headerSize)
	putU32(w, size)
}

func writeValue(w *bytes.Buffer, typ uint8, data uint32) {
	putU16(w, 8)
	w.WriteByte(0)
	w.WriteByte(typ)
	putU32(w, data)
}

type poolSpec struct {
	utf16  bool
	sorted bool
	strs   []string
	styles [][]uint32 // flat name/first/last triplets per styled string
}

func buildPool(sp poolSpec) []byte {
	var strData bytes.Buffer
	offsets := make([]uint32, len(sp.strs))
	for i, s := range sp.strs {
		offsets[i] = uint32(strData.Len())
		if sp.utf16 {
			units := utf16.Encode([]rune(s))
			putU16(&strData, uint16(len(units)))
			for _, u := range units {
				putU16(&strData, u)
			}
			putU16(&strData, 0)
		} else {
			strData.WriteByte(byte(len([]rune(s))))
			strData.WriteByte(byte(len(s)))
			strData.WriteString(s)
			strData.WriteByte(0)
		}
	}
	for strData.Len()%4 != 0 {
		strData.WriteByte(0)
	}

	var styleData bytes.Buffer
	styleOffsets := make([]uint32, len(sp.styles))
	for i, spans := range sp.styles {
		styleOffsets[i] = uint32(styleData.Len())
		for _, w := range spans {
			putU32(&styleData, w)
		}
		putU32(&styleData, 0xFFFFFFFF)
	}

	flags := uint32(0)
	if !sp.utf16 {
		flags |= 0x100
	}
	if sp.sorted {
		flags |= 0x1
	}

	stringsStart := 28 + 4*(len(sp.strs)+len(sp.styles))
	stylesStart := 0
	if len(sp.styles) > 0 {
		stylesStart = stringsStart + strData.Len()
	}
	size := stringsStart + strData.Len() + styleData.Len()

	var out bytes.Buffer
	chunkHeader(&out, 0x0001, 28, uint32(size))
	putU32(&out, uint32(len(sp.strs)))
	putU32(&out, uint32(len(sp.styles)))
	putU32(&out, flags)
	putU32(&out, uint32(stringsStart))
	putU32(&out, uint32(stylesStart))
	for _, o := range offsets {
		putU32(&out, o)
	}
	for _, o := range styleOffsets {
		putU32(&out, o)
	}
	out.Write(strData.Bytes())
	out.Write(styleData.Bytes())
	return out.Bytes()
}

type testMapItem struct {
	name uint32
	typ  uint8
	data uint32
}

type testEntry struct {
	key     int
	typ     uint8
	data    uint32
	complex bool
	parent  uint32
	items   []testMapItem // must be sorted ascending by name
	size    uint16        // nonzero overrides the declared entry size
}

type testConfig struct {
	cfg     []byte
	entries map[int]testEntry // entry index -> value, missing = NO_ENTRY
}

type testType struct {
	id        uint8
	count     int
	specFlags []uint32 // non-nil emits a type spec chunk
	configs   []testConfig
}

type testPackage struct {
	id        uint32
	name      string
	typeNames []string
	keyNames  []string
	types     []testType
}

func defaultConfig() []byte {
	b := make([]byte, 36)
	binary.LittleEndian.PutUint32(b, 36)
	return b
}

func localeConfig(lang string) []byte {
	b := defaultConfig()
	b[8], b[9] = lang[0], lang[1]
	return b
}

func mccConfig(mcc uint16) []byte {
	b := defaultConfig()
	binary.LittleEndian.PutUint16(b[4:], mcc)
	return b
}

func densityConfig(dpi uint16) []byte {
	b := defaultConfig()
	binary.LittleEndian.PutUint16(b[14:], dpi)
	return b
}

func buildTypeChunk(tt testType, tc testConfig) []byte {
	var entries bytes.Buffer
	offsets := make([]uint32, tt.count)
	for i := range offsets {
		offsets[i] = 0xFFFFFFFF
	}
	for i := 0; i < tt.count; i++ {
		e, ok := tc.entries[i]
		if !ok {
			continue
		}
		offsets[i] = uint32(entries.Len())
		if e.complex {
			declared := uint16(16)
			if e.size != 0 {
				declared = e.size
			}
			putU16(&entries, declared)
			putU16(&entries, 0x0001)
			putU32(&entries, uint32(e.key))
			putU32(&entries, e.parent)
			putU32(&entries, uint32(len(e.items)))
			for _, it := range e.items {
				putU32(&entries, it.name)
				writeValue(&entries, it.typ, it.data)
			}
		} else {
			putU16(&entries, 8)
			putU16(&entries, 0)
			putU32(&entries, uint32(e.key))
			writeValue(&entries, e.typ, e.data)
		}
	}

	headerSize := 20 + len(tc.cfg)
	entriesStart := headerSize + 4*tt.count
	size := entriesStart + entries.Len()

	var out bytes.Buffer
	chunkHeader(&out, 0x0201, uint16(headerSize), uint32(size))
	out.WriteByte(tt.id)
	out.Write([]byte{0, 0, 0})
	putU32(&out, uint32(tt.count))
	putU32(&out, uint32(entriesStart))
	out.Write(tc.cfg)
	for _, o := range offsets {
		putU32(&out, o)
	}
	out.Write(entries.Bytes())
	return out.Bytes()
}

func buildPackage(tp testPackage) []byte {
	typePool := buildPool(poolSpec{strs: tp.typeNames})
	keyPool := buildPool(poolSpec{strs: tp.keyNames})

	var body bytes.Buffer
	for _, tt := range tp.types {
		if tt.specFlags != nil {
			chunkHeader(&body, 0x0202, 16, uint32(16+4*len(tt.specFlags)))
			body.WriteByte(tt.id)
			body.Write([]byte{0, 0, 0})
			putU32(&body, uint32(len(tt.specFlags)))
			for _, f := range tt.specFlags {
				putU32(&body, f)
			}
		}
		for _, tc := range tt.configs {
			body.Write(buildTypeChunk(tt, tc))
		}
	}

	typeStringsOff := 284
	keyStringsOff := typeStringsOff + len(typePool)
	size := keyStringsOff + len(keyPool) + body.Len()

	var out bytes.Buffer
	chunkHeader(&out, 0x0200, 284, uint32(size))
	putU32(&out, tp.id)
	name := make([]byte, 256)
	for i, u := range utf16.Encode([]rune(tp.name)) {
		binary.LittleEndian.PutUint16(name[2*i:], u)
	}
	out.Write(name)
	putU32(&out, uint32(typeStringsOff))
	putU32(&out, uint32(len(tp.typeNames)))
	putU32(&out, uint32(keyStringsOff))
	putU32(&out, uint32(len(tp.keyNames)))
	out.Write(typePool)
	out.Write(keyPool)
	out.Write(body.Bytes())
	return out.Bytes()
}

func buildTable(values poolSpec, pkgs ...testPackage) []byte {
	pool := buildPool(values)
	var body bytes.Buffer
	for _, p := range pkgs {
		body.Write(buildPackage(p))
	}
	var out bytes.Buffer
	chunkHeader(&out, 0x0002, 12, uint32(12+len(pool)+body.Len()))
	putU32(&out, uint32(len(pkgs)))
	out.Write(pool)
	out.Write(body.Bytes())
	return out.Bytes()
}

// Resource identifiers of the fixture table below.
const (
	resMyattr   = 0x7f010000
	resMaxattr  = 0x7f010001
	resAppName  = 0x7f020000
	resGreeting = 0x7f020001
	resSize     = 0x7f030000
	resParent   = 0x7f040000
	resChild    = 0x7f040001
	resAlias    = 0x7f040002
	resLoop     = 0x7f040003
	resLeft     = 0x7f050000
	resRight    = 0x7f050001
)

// testTableData builds a package "com.example" with an enum attribute, a
// ranged integer attribute, localized strings, a density-dependent
// dimension, a style hierarchy and two id resources serving as enum names.
func testTableData() []byte {
	const (
		attrTypeID = 0x01000000
		attrMinID  = 0x01000001
		attrMaxID  = 0x01000002
	)

	pkg := testPackage{
		id:        0x7f,
		name:      "com.example",
		typeNames: []string{"attr", "string", "dimen", "style", "id"},
		keyNames: []string{"myattr", "maxattr", "app_name", "greeting",
			"size", "Parent", "Child", "Alias", "Loop", "left", "right"},
		types: []testType{
			{
				id: 1, count: 2,
				configs: []testConfig{{cfg: defaultConfig(), entries: map[int]testEntry{
					0: {key: 0, complex: true, items: []testMapItem{
						{attrTypeID, arscparser.TypeIntDec, arscparser.AttrTypeInteger | arscparser.AttrTypeEnum},
						{resLeft, arscparser.TypeIntDec, 0},
						{resRight, arscparser.TypeIntDec, 1},
					}},
					1: {key: 1, complex: true, items: []testMapItem{
						{attrTypeID, arscparser.TypeIntDec, arscparser.AttrTypeInteger},
						{attrMinID, arscparser.TypeIntDec, 0},
						{attrMaxID, arscparser.TypeIntDec, 10},
					}},
				}}},
			},
			{
				id: 2, count: 2,
				specFlags: []uint32{0x0002, 0x0002},
				configs: []testConfig{
					{cfg: defaultConfig(), entries: map[int]testEntry{
						0: {key: 2, typ: arscparser.TypeString, data: 0},
						1: {key: 3, typ: arscparser.TypeString, data: 1},
					}},
					{cfg: localeConfig("de"), entries: map[int]testEntry{
						1: {key: 3, typ: arscparser.TypeString, data: 2},
					}},
				},
			},
			{
				id: 3, count: 1,
				configs: []testConfig{
					{cfg: defaultConfig(), entries: map[int]testEntry{
						0: {key: 4, typ: arscparser.TypeDimension, data: 12<<8 | arscparser.ComplexUnitDip},
					}},
					{cfg: densityConfig(480), entries: map[int]testEntry{
						0: {key: 4, typ: arscparser.TypeDimension, data: 24<<8 | arscparser.ComplexUnitDip},
					}},
				},
			},
			{
				id: 4, count: 4,
				configs: []testConfig{{cfg: defaultConfig(), entries: map[int]testEntry{
					0: {key: 5, complex: true, items: []testMapItem{
						{resMyattr, arscparser.TypeIntDec, 1},
						{resMaxattr, arscparser.TypeIntDec, 2},
					}},
					1: {key: 6, complex: true, parent: resParent, items: []testMapItem{
						{resMaxattr, arscparser.TypeIntDec, 3},
					}},
					2: {key: 7, complex: true, items: []testMapItem{
						{resMyattr, arscparser.TypeAttribute, resMaxattr},
					}},
					3: {key: 8, complex: true, parent: resLoop, items: []testMapItem{
						{resMyattr, arscparser.TypeIntDec, 9},
					}},
				}}},
			},
			{
				id: 5, count: 2,
				configs: []testConfig{{cfg: defaultConfig(), entries: map[int]testEntry{
					0: {key: 9, typ: arscparser.TypeIntBoolean, data: 0},
					1: {key: 10, typ: arscparser.TypeIntBoolean, data: 0},
				}}},
			},
		},
	}

	return buildTable(poolSpec{strs: []string{"Example", "hello", "hallo"}}, pkg)
}

func testTable(t *testing.T) *arscparser.ResourceTable {
	t.Helper()
	tbl := arscparser.NewResourceTable(nil)
	require.NoError(t, tbl.Add(testTableData(), 42, true, nil))
	return tbl
}

// overlayTableData builds an overlay package shadowing "greeting". Overlay
// packages carry package id 0 on disk, the idmap supplies the real one.
func overlayTableData() []byte {
	pkg := testPackage{
		id:        0,
		name:      "com.overlay",
		typeNames: []string{"string"},
		keyNames:  []string{"greeting"},
		types: []testType{{
			id: 1, count: 1,
			configs: []testConfig{{cfg: defaultConfig(), entries: map[int]testEntry{
				0: {key: 0, typ: arscparser.TypeString, data: 0},
			}}},
		}},
	}
	return buildTable(poolSpec{strs: []string{"Guten Tag"}}, pkg)
}

type xmlAttrSpec struct {
	ns, name, raw uint32
	typ           uint8
	data          uint32
}

func xmlNode(typ uint16, line uint32, ext func(*bytes.Buffer)) []byte {
	var body bytes.Buffer
	ext(&body)
	var out bytes.Buffer
	chunkHeader(&out, typ, 16, uint32(16+body.Len()))
	putU32(&out, line)
	putU32(&out, 0xFFFFFFFF)
	out.Write(body.Bytes())
	return out.Bytes()
}

func xmlNamespace(start bool, line, prefix, uri uint32) []byte {
	typ := uint16(0x0100)
	if !start {
		typ = 0x0101
	}
	return xmlNode(typ, line, func(b *bytes.Buffer) {
		putU32(b, prefix)
		putU32(b, uri)
	})
}

func xmlStartTag(line, ns, name uint32, attrs ...xmlAttrSpec) []byte {
	return xmlNode(0x0102, line, func(b *bytes.Buffer) {
		putU32(b, ns)
		putU32(b, name)
		putU16(b, 20) // attrStart
		putU16(b, 20) // attrSize
		putU16(b, uint16(len(attrs)))
		putU16(b, 0)
		putU16(b, 0)
		putU16(b, 0)
		for _, a := range attrs {
			putU32(b, a.ns)
			putU32(b, a.name)
			putU32(b, a.raw)
			writeValue(b, a.typ, a.data)
		}
	})
}

func xmlEndTag(line, ns, name uint32) []byte {
	return xmlNode(0x0103, line, func(b *bytes.Buffer) {
		putU32(b, ns)
		putU32(b, name)
	})
}

func xmlText(line, name uint32) []byte {
	return xmlNode(0x0104, line, func(b *bytes.Buffer) {
		putU32(b, name)
		writeValue(b, arscparser.TypeString, name)
	})
}

func buildXmlDoc(pool poolSpec, resIDs []uint32, nodes ...[]byte) []byte {
	var body bytes.Buffer
	body.Write(buildPool(pool))
	if resIDs != nil {
		chunkHeader(&body, 0x0180, 8, uint32(8+4*len(resIDs)))
		for _, id := range resIDs {
			putU32(&body, id)
		}
	}
	for _, n := range nodes {
		body.Write(n)
	}
	var out bytes.Buffer
	chunkHeader(&out, 0x0003, 8, uint32(8+body.Len()))
	out.Write(body.Bytes())
	return out.Bytes()
}

// String pool indexes of the fixture manifest below.
const (
	manifestStrVersionCode = iota
	manifestStrLabel
	manifestStrAndroid
	manifestStrNsURI
	manifestStrManifest
	manifestStrPackage
	manifestStrComTest
	manifestStrApplication
	manifestStrText
)

const manifestNsURI = "http://schemas.android.com/apk/res/android"

const noEntry = 0xFFFFFFFF

// testManifestData builds a compiled manifest with an id-mapped integer
// attribute, the pool-addressed package attribute, a resource reference and
// a text node.
func testManifestData() []byte {
	pool := poolSpec{strs: []string{
		"versionCode", "label", "android", manifestNsURI,
		"manifest", "package", "com.test", "application", "some text",
	}}
	resIDs := []uint32{0x0101021b, 0x01010001}

	return buildXmlDoc(pool, resIDs,
		xmlNamespace(true, 1, manifestStrAndroid, manifestStrNsURI),
		xmlStartTag(2, noEntry, manifestStrManifest,
			xmlAttrSpec{manifestStrNsURI, manifestStrVersionCode, noEntry, arscparser.TypeIntDec, 7},
			xmlAttrSpec{noEntry, manifestStrPackage, manifestStrComTest, arscparser.TypeString, manifestStrComTest},
		),
		xmlStartTag(3, noEntry, manifestStrApplication,
			xmlAttrSpec{manifestStrNsURI, manifestStrLabel, noEntry, arscparser.TypeReference, resAppName},
		),
		xmlText(4, manifestStrText),
		xmlEndTag(5, noEntry, manifestStrApplication),
		xmlEndTag(6, noEntry, manifestStrManifest),
		xmlNamespace(false, 6, manifestStrAndroid, manifestStrNsURI),
	)
}
