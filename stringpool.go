package arscparser

import (
	"encoding/binary"
	"sort"
	"strings"
	"sync"
	"unicode/utf16"
	"unicode/utf8"

	"github.com/pkg/errors"
)

const (
	stringFlagSorted = 0x00000001
	stringFlagUtf8   = 0x00000100

	stringPoolHeaderSize = 28

	// Terminates the span list of a styled string.
	styleSpanEnd = 0xFFFFFFFF
)

// StyleSpan marks one styling run inside a string. Name indexes the span
// name (e.g. "b" or "i") in the same pool, FirstChar and LastChar are
// UTF-16 unit positions, inclusive.
type StyleSpan struct {
	Name      uint32
	FirstChar uint32
	LastChar  uint32
}

// StringPool decodes a string pool chunk in place. The zero value is empty,
// use SetTo to load one. Decoded strings are cached per index, so repeated
// StringAt calls for the same index are cheap and safe from multiple
// goroutines.
type StringPool struct {
	data   []byte
	isUtf8 bool
	sorted bool

	stringCount uint32
	styleCount  uint32

	offsets      []byte // stringCount offsets, little-endian u32 each
	styleOffsets []byte
	strData      []byte
	styleData    []byte

	mu    sync.Mutex
	cache map[uint32]string
}

// SetTo loads the pool from data, which must begin with the string pool
// chunk header. With copyData the relevant bytes are copied, otherwise the
// pool keeps referencing data.
func (p *StringPool) SetTo(data []byte, copyData bool) error {
	p.Clear()

	if err := validateChunk(data, 0, stringPoolHeaderSize); err != nil {
		return err
	}

	c := chunk{data: data}
	if c.typ() != chunkStringPool {
		return errors.Wrapf(ErrBadType, "invalid chunk type 0x%04x, expected string pool", c.typ())
	}

	size := c.size()
	if copyData {
		data = append([]byte(nil), data[:size]...)
		c = chunk{data: data}
	}

	stringCount := c.u32(8)
	styleCount := c.u32(12)
	flags := c.u32(16)
	stringsStart := c.u32(20)
	stylesStart := c.u32(24)

	p.isUtf8 = flags&stringFlagUtf8 != 0
	p.sorted = flags&stringFlagSorted != 0

	if flags&^uint32(stringFlagUtf8|stringFlagSorted) != 0 {
		return errors.Wrapf(ErrBadType, "unknown string pool flags 0x%08x", flags)
	}

	if stringCount > 0 {
		offEnd := uint64(c.headerSize()) + 4*uint64(stringCount)
		if offEnd > uint64(size) {
			return errors.Wrapf(ErrBadType, "string offsets (%d entries) run past chunk size 0x%x",
				stringCount, size)
		}

		if stringsStart >= uint32(size) {
			return errors.Wrapf(ErrBadType, "string data start 0x%x beyond chunk size 0x%x",
				stringsStart, size)
		}

		strEnd := uint32(size)
		if styleCount > 0 {
			if stylesStart <= stringsStart || stylesStart > uint32(size) {
				return errors.Wrapf(ErrBadType, "style data start 0x%x out of range", stylesStart)
			}
			strEnd = stylesStart
		}

		strData := data[stringsStart:strEnd]
		if len(strData) == 0 {
			return errors.Wrap(ErrBadType, "empty string data section")
		}

		// The section must end with a terminator so decode loops
		// cannot run off the end.
		if p.isUtf8 {
			if strData[len(strData)-1] != 0 {
				return errors.Wrap(ErrBadType, "string data does not end with a zero byte")
			}
		} else {
			if len(strData) < 2 || strData[len(strData)-1] != 0 || strData[len(strData)-2] != 0 {
				return errors.Wrap(ErrBadType, "string data does not end with a zero char16")
			}
		}

		p.offsets = data[c.headerSize():offEnd]
		p.strData = strData
	}

	if styleCount > 0 {
		offStart := uint64(c.headerSize()) + 4*uint64(stringCount)
		offEnd := offStart + 4*uint64(styleCount)
		if offEnd > uint64(size) {
			return errors.Wrapf(ErrBadType, "style offsets (%d entries) run past chunk size 0x%x",
				styleCount, size)
		}
		if uint64(stylesStart)+4 > uint64(size) {
			return errors.Wrapf(ErrBadType, "style data start 0x%x beyond chunk size 0x%x",
				stylesStart, size)
		}

		styleData := data[stylesStart:size]
		if binary.LittleEndian.Uint32(styleData[len(styleData)-4:]) != styleSpanEnd {
			return errors.Wrap(ErrBadType, "style data does not end with a span terminator")
		}

		p.styleOffsets = data[offStart:offEnd]
		p.styleData = styleData
	}

	p.data = data[:size]
	p.stringCount = stringCount
	p.styleCount = styleCount
	p.cache = make(map[uint32]string)
	return nil
}

// Clear resets the pool to empty.
func (p *StringPool) Clear() {
	*p = StringPool{}
}

func (p *StringPool) IsEmpty() bool {
	return p.data == nil
}

// Size returns the number of strings in the pool.
func (p *StringPool) Size() int {
	return int(p.stringCount)
}

func (p *StringPool) StyleCount() int {
	return int(p.styleCount)
}

func (p *StringPool) IsUTF8() bool {
	return p.isUtf8
}

func (p *StringPool) IsSorted() bool {
	return p.sorted
}

// ByteSize returns the size of the underlying chunk in bytes.
func (p *StringPool) ByteSize() int {
	return len(p.data)
}

// StringAt decodes the string at idx. The result is cached.
func (p *StringPool) StringAt(idx uint32) (string, error) {
	if idx >= p.stringCount {
		return "", errors.Wrapf(ErrBadIndex, "string index %d out of range (%d strings)", idx, p.stringCount)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if s, ok := p.cache[idx]; ok {
		return s, nil
	}

	off := binary.LittleEndian.Uint32(p.offsets[4*idx:])
	if off >= uint32(len(p.strData)) {
		return "", errors.Wrapf(ErrBadIndex, "string offset 0x%x for index %d is out of bounds (0x%x)",
			off, idx, len(p.strData))
	}

	var s string
	var err error
	if p.isUtf8 {
		s, err = decodeString8(p.strData[off:])
	} else {
		s, err = decodeString16(p.strData[off:])
	}
	if err != nil {
		return "", errors.Wrapf(err, "string at index %d", idx)
	}

	if !utf8.ValidString(s) || strings.ContainsRune(s, 0) {
		s = strings.Map(func(r rune) rune {
			switch r {
			case 0, utf8.RuneError:
				return '￾'
			default:
				return r
			}
		}, s)
	}

	p.cache[idx] = s
	return s, nil
}

// String8At returns the raw UTF-8 bytes of the string at idx without the
// UTF-16 round trip. It fails on UTF-16 pools.
func (p *StringPool) String8At(idx uint32) (string, error) {
	if !p.isUtf8 {
		return "", errors.Wrap(ErrBadType, "pool is not UTF-8")
	}
	if idx >= p.stringCount {
		return "", errors.Wrapf(ErrBadIndex, "string index %d out of range (%d strings)", idx, p.stringCount)
	}

	off := binary.LittleEndian.Uint32(p.offsets[4*idx:])
	if off >= uint32(len(p.strData)) {
		return "", errors.Wrapf(ErrBadIndex, "string offset 0x%x for index %d is out of bounds (0x%x)",
			off, idx, len(p.strData))
	}

	d := p.strData[off:]
	_, n, err := decodeLength8(d)
	if err != nil {
		return "", err
	}
	d = d[n:]
	len8, n, err := decodeLength8(d)
	if err != nil {
		return "", err
	}
	d = d[n:]

	if uint32(len(d)) <= len8 || d[len8] != 0 {
		return "", errors.Wrapf(ErrBadType, "string at index %d is missing the zero terminator", idx)
	}
	return string(d[:len8]), nil
}

// StyleAt returns the style spans attached to the string at idx. Strings
// without style information return nil.
func (p *StringPool) StyleAt(idx uint32) ([]StyleSpan, error) {
	if idx >= p.styleCount {
		return nil, nil
	}

	off := binary.LittleEndian.Uint32(p.styleOffsets[4*idx:])
	if off+4 > uint32(len(p.styleData)) {
		return nil, errors.Wrapf(ErrBadIndex, "style offset 0x%x for index %d is out of bounds", off, idx)
	}

	var spans []StyleSpan
	d := p.styleData[off:]
	for {
		if len(d) < 4 {
			return nil, errors.Wrapf(ErrBadType, "style spans for index %d are not terminated", idx)
		}
		name := binary.LittleEndian.Uint32(d)
		if name == styleSpanEnd {
			return spans, nil
		}
		if len(d) < 12 {
			return nil, errors.Wrapf(ErrBadType, "truncated style span for index %d", idx)
		}
		spans = append(spans, StyleSpan{
			Name:      name,
			FirstChar: binary.LittleEndian.Uint32(d[4:]),
			LastChar:  binary.LittleEndian.Uint32(d[8:]),
		})
		d = d[12:]
	}
}

// IndexOfString finds s in the pool. Sorted pools are binary searched,
// unsorted ones scanned backwards so that later duplicates win, matching
// how tools emit them.
func (p *StringPool) IndexOfString(s string) (int, error) {
	if p.stringCount == 0 {
		return -1, errors.Wrap(ErrNameNotFound, "empty pool")
	}

	if p.sorted {
		lo := sort.Search(int(p.stringCount), func(i int) bool {
			cur, err := p.StringAt(uint32(i))
			return err != nil || cur >= s
		})
		if lo < int(p.stringCount) {
			if cur, err := p.StringAt(uint32(lo)); err == nil && cur == s {
				return lo, nil
			}
		}
		return -1, errors.Wrapf(ErrNameNotFound, "string %q", s)
	}

	for i := int(p.stringCount) - 1; i >= 0; i-- {
		cur, err := p.StringAt(uint32(i))
		if err == nil && cur == s {
			return i, nil
		}
	}
	return -1, errors.Wrapf(ErrNameNotFound, "string %q", s)
}

// decodeLength8 reads a UTF-8 pool length prefix: one byte, or two when the
// high bit of the first is set.
func decodeLength8(d []byte) (uint32, int, error) {
	if len(d) < 1 {
		return 0, 0, errors.Wrap(ErrBadType, "truncated string length")
	}
	if d[0]&0x80 == 0 {
		return uint32(d[0]), 1, nil
	}
	if len(d) < 2 {
		return 0, 0, errors.Wrap(ErrBadType, "truncated string length")
	}
	return (uint32(d[0]&0x7F) << 8) | uint32(d[1]), 2, nil
}

// decodeLength16 reads a UTF-16 pool length prefix: one char16, or two when
// the high bit of the first is set.
func decodeLength16(d []byte) (uint32, int, error) {
	if len(d) < 2 {
		return 0, 0, errors.Wrap(ErrBadType, "truncated string length")
	}
	high := binary.LittleEndian.Uint16(d)
	if high&0x8000 == 0 {
		return uint32(high), 2, nil
	}
	if len(d) < 4 {
		return 0, 0, errors.Wrap(ErrBadType, "truncated string length")
	}
	low := binary.LittleEndian.Uint16(d[2:])
	return (uint32(high&0x7FFF) << 16) | uint32(low), 4, nil
}

func decodeString8(d []byte) (string, error) {
	// First length is the string's UTF-16 unit count, unused here.
	_, n, err := decodeLength8(d)
	if err != nil {
		return "", err
	}
	d = d[n:]

	len8, n, err := decodeLength8(d)
	if err != nil {
		return "", err
	}
	d = d[n:]

	if uint32(len(d)) <= len8 {
		return "", errors.Wrapf(ErrBadType, "string of %d bytes exceeds pool data", len8)
	}
	if d[len8] != 0 {
		return "", errors.Wrap(ErrBadType, "string is missing the zero terminator")
	}
	return string(d[:len8]), nil
}

func decodeString16(d []byte) (string, error) {
	len16, n, err := decodeLength16(d)
	if err != nil {
		return "", err
	}
	d = d[n:]

	if uint64(len(d)) < 2*uint64(len16)+2 {
		return "", errors.Wrapf(ErrBadType, "string of %d char16s exceeds pool data", len16)
	}
	if d[2*len16] != 0 || d[2*len16+1] != 0 {
		return "", errors.Wrap(ErrBadType, "string is missing the zero terminator")
	}

	buf := make([]uint16, len16)
	for i := range buf {
		buf[i] = binary.LittleEndian.Uint16(d[2*i:])
	}
	return string(utf16.Decode(buf)), nil
}
