package arscparser

import (
	"encoding/binary"
	"log/slog"

	"github.com/pkg/errors"
)

// Parse events. Node events reuse their chunk type values, so everything
// from EventStartNamespace up is backed by a node in the tree.
type XmlEvent int32

const (
	EventBadDocument   XmlEvent = -1
	EventStartDocument XmlEvent = 0
	EventEndDocument   XmlEvent = 1

	eventFirstChunk XmlEvent = chunkXmlFirst

	EventStartNamespace XmlEvent = chunkXmlNsStart
	EventEndNamespace   XmlEvent = chunkXmlNsEnd
	EventStartTag       XmlEvent = chunkXmlTagStart
	EventEndTag         XmlEvent = chunkXmlTagEnd
	EventText           XmlEvent = chunkXmlText
)

const (
	xmlNodeHeaderSize = 16

	xmlAttrExtSize = 20
	xmlAttrSize    = 20
)

// XmlTree holds a compiled XML document: its string pool, the optional
// attribute resource map and the node list. Create parsers with Parser to
// walk it.
type XmlTree struct {
	log *slog.Logger

	data    []byte
	dataEnd int

	pool   StringPool
	resIDs []uint32

	rootOff  int
	rootCode XmlEvent
}

func NewXmlTree(logger *slog.Logger) *XmlTree {
	if logger == nil {
		logger = slog.Default()
	}
	return &XmlTree{log: logger, rootOff: -1}
}

// SetTo loads the document from data, which must begin with the XML chunk.
// With copyData the tree keeps its own copy of the bytes.
func (t *XmlTree) SetTo(data []byte, copyData bool) error {
	t.pool.Clear()
	t.resIDs = nil
	t.rootOff = -1
	t.rootCode = EventBadDocument
	t.data = nil

	if err := validateChunk(data, 0, chunkHeaderSize); err != nil {
		return err
	}

	outer := chunk{data: data}
	if outer.typ() != chunkXml {
		// Plenty of tools write other types here and the platform
		// does not check, so only complain.
		t.log.Warn("unexpected top chunk type in xml document",
			"type", outer.typ())
	}

	size := outer.size()
	if copyData {
		data = append([]byte(nil), data[:size]...)
	}
	t.data = data[:size]
	t.dataEnd = size

	c := chunk{data: t.data, off: outer.headerSize()}
	for c.off < size {
		if err := validateChunk(t.data, c.off, chunkHeaderSize); err != nil {
			return err
		}

		switch typ := c.typ(); {
		case typ == chunkStringPool:
			if t.pool.IsEmpty() {
				if err := t.pool.SetTo(c.payload(), false); err != nil {
					return errors.Wrap(err, "xml string pool")
				}
			} else {
				t.log.Warn("multiple string pools in xml document, ignoring extra",
					"offset", c.off)
			}
		case typ == chunkResourceIds:
			if err := t.setResourceMap(c); err != nil {
				return err
			}
		case typ >= chunkXmlFirst && typ <= chunkXmlLast:
			if err := t.validateNode(c.off); err != nil {
				return err
			}
			t.rootOff = c.off
			t.rootCode = XmlEvent(typ)
		default:
			t.log.Warn("unknown chunk in xml document, skipping",
				"type", typ, "offset", c.off)
		}

		if t.rootOff >= 0 {
			break
		}

		var ok bool
		if c, ok = c.next(size); !ok {
			break
		}
	}

	if t.rootOff < 0 {
		return errors.Wrap(ErrBadType, "no start tag found")
	}
	return nil
}

func (t *XmlTree) setResourceMap(c chunk) error {
	if c.headerSize() < chunkHeaderSize || (c.size()-c.headerSize())%4 != 0 {
		return errors.Wrapf(ErrBadType, "resource map at 0x%08x has invalid size", c.off)
	}
	n := (c.size() - c.headerSize()) / 4
	t.resIDs = make([]uint32, n)
	for i := 0; i < n; i++ {
		t.resIDs[i] = binary.LittleEndian.Uint32(t.data[c.off+c.headerSize()+4*i:])
	}
	return nil
}

// Strings returns the document's string pool.
func (t *XmlTree) Strings() *StringPool {
	return &t.pool
}

// ResourceMap returns the attribute index to resource identifier table, or
// nil when the document has none.
func (t *XmlTree) ResourceMap() []uint32 {
	return t.resIDs
}

// Parser returns a new cursor positioned before the document start.
func (t *XmlTree) Parser() *XmlParser {
	p := &XmlParser{tree: t}
	p.Restart()
	return p
}

// validateNode checks a node chunk is safe to expose through the cursor:
// the node header must carry line and comment, the extension must fit and,
// for start tags, the attribute table must lie within the chunk.
func (t *XmlTree) validateNode(off int) error {
	if err := validateChunk(t.data, off, xmlNodeHeaderSize); err != nil {
		return err
	}

	c := chunk{data: t.data, off: off}
	extSize := c.size() - c.headerSize()

	var minExt int
	switch c.typ() {
	case chunkXmlNsStart, chunkXmlNsEnd, chunkXmlTagEnd:
		minExt = 8
	case chunkXmlText:
		minExt = 4 + resValueSize
	case chunkXmlTagStart:
		minExt = xmlAttrExtSize
	default:
		return errors.Wrapf(ErrBadType, "unknown xml node type 0x%04x at 0x%08x", c.typ(), off)
	}
	if extSize < minExt {
		return errors.Wrapf(ErrBadType, "xml node at 0x%08x: extension too small (%d < %d)",
			off, extSize, minExt)
	}

	if c.typ() == chunkXmlTagStart {
		ext := c.headerSize()
		attrStart := int(c.u16(ext + 8))
		attrSize := int(c.u16(ext + 10))
		attrCount := int(c.u16(ext + 12))
		if attrSize < xmlAttrSize {
			return errors.Wrapf(ErrBadType, "xml node at 0x%08x: attribute size %d too small", off, attrSize)
		}
		if attrStart+attrSize*attrCount > extSize {
			return errors.Wrapf(ErrBadType, "xml node at 0x%08x: %d attributes run past the node end",
				off, attrCount)
		}
	}
	return nil
}
