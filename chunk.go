package arscparser

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

const (
	chunkNull        = 0x0000
	chunkStringPool  = 0x0001
	chunkTable       = 0x0002
	chunkXml         = 0x0003
	chunkResourceIds = 0x0180

	chunkXmlFirst = 0x0100
	chunkXmlLast  = 0x017f

	chunkXmlNsStart  = 0x0100
	chunkXmlNsEnd    = 0x0101
	chunkXmlTagStart = 0x0102
	chunkXmlTagEnd   = 0x0103
	chunkXmlText     = 0x0104

	chunkTablePackage  = 0x0200
	chunkTableType     = 0x0201
	chunkTableTypeSpec = 0x0202
	chunkTableLibrary  = 0x0203

	chunkHeaderSize = (2 + 2 + 4)
)

// chunk is a view of one chunk inside a larger buffer. All multi-byte
// fields in the format are little-endian.
type chunk struct {
	data []byte
	off  int
}

func (c chunk) typ() uint16 {
	return binary.LittleEndian.Uint16(c.data[c.off:])
}

func (c chunk) headerSize() int {
	return int(binary.LittleEndian.Uint16(c.data[c.off+2:]))
}

func (c chunk) size() int {
	return int(binary.LittleEndian.Uint32(c.data[c.off+4:]))
}

func (c chunk) u8(off int) uint8 {
	return c.data[c.off+off]
}

func (c chunk) u16(off int) uint16 {
	return binary.LittleEndian.Uint16(c.data[c.off+off:])
}

func (c chunk) u32(off int) uint32 {
	return binary.LittleEndian.Uint32(c.data[c.off+off:])
}

// payload returns the whole chunk contents, header included.
func (c chunk) payload() []byte {
	return c.data[c.off : c.off+c.size()]
}

// next moves past this chunk. ok is false once the buffer end is reached.
func (c chunk) next(end int) (chunk, bool) {
	n := chunk{data: c.data, off: c.off + c.size()}
	return n, n.off < end
}

// validateChunk performs the structural checks every typed reader relies on:
// the header and size fields must be 4-aligned, the header must fit within
// the chunk and the chunk within the buffer.
func validateChunk(data []byte, off, minHeaderSize int) error {
	if off < 0 || off+chunkHeaderSize > len(data) {
		return errors.Wrapf(ErrBadType, "chunk at 0x%08x: no room for header", off)
	}

	c := chunk{data: data, off: off}
	headerSize, size := c.headerSize(), c.size()

	if headerSize < minHeaderSize {
		return errors.Wrapf(ErrBadType, "chunk at 0x%08x: header size 0x%x is too small, need 0x%x",
			off, headerSize, minHeaderSize)
	}
	if headerSize > size {
		return errors.Wrapf(ErrBadType, "chunk at 0x%08x: header size 0x%x exceeds chunk size 0x%x",
			off, headerSize, size)
	}
	if (headerSize|size)&0x3 != 0 {
		return errors.Wrapf(ErrBadType, "chunk at 0x%08x: sizes 0x%x/0x%x not 4-aligned",
			off, headerSize, size)
	}
	if size < chunkHeaderSize || off+size > len(data) {
		return errors.Wrapf(ErrBadType, "chunk at 0x%08x: size 0x%x runs past the buffer end 0x%x",
			off, size, len(data))
	}
	return nil
}
