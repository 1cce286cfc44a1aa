package arscparser

import (
	"github.com/pkg/errors"
)

// XmlParser is a forward cursor over an XmlTree. Accessors are gated on the
// current event, off-event calls return -1 index sentinels or errors.
// Multiple parsers can walk the same tree independently.
type XmlParser struct {
	tree *XmlTree

	eventCode XmlEvent
	curNode   int // node chunk offset, -1 outside the document
	curExt    int
}

// XmlPosition is an opaque snapshot of a parser's place in the document.
type XmlPosition struct {
	eventCode XmlEvent
	curNode   int
	curExt    int
}

// Restart rewinds the cursor before the first event.
func (p *XmlParser) Restart() {
	p.eventCode = EventStartDocument
	if p.tree.rootOff < 0 {
		p.eventCode = EventBadDocument
	}
	p.curNode = -1
	p.curExt = -1
}

// Event returns the event the cursor currently sits on.
func (p *XmlParser) Event() XmlEvent {
	return p.eventCode
}

// Next advances to the next event and returns it. Once EventEndDocument or
// EventBadDocument is returned the cursor stays there.
func (p *XmlParser) Next() XmlEvent {
	if p.eventCode == EventStartDocument {
		p.curNode = p.tree.rootOff
		p.curExt = p.tree.rootOff + chunk{data: p.tree.data, off: p.tree.rootOff}.headerSize()
		p.eventCode = p.tree.rootCode
		return p.eventCode
	}
	if p.eventCode >= eventFirstChunk {
		return p.nextNode()
	}
	return p.eventCode
}

func (p *XmlParser) nextNode() XmlEvent {
	if p.curNode < 0 {
		return p.eventCode
	}

	c := chunk{data: p.tree.data, off: p.curNode}
	next := p.curNode + c.size()
	if next >= p.tree.dataEnd {
		p.curNode = -1
		p.eventCode = EventEndDocument
		return p.eventCode
	}

	if err := p.tree.validateNode(next); err != nil {
		p.curNode = -1
		p.eventCode = EventBadDocument
		return p.eventCode
	}

	c = chunk{data: p.tree.data, off: next}
	p.curNode = next
	p.curExt = next + c.headerSize()
	p.eventCode = XmlEvent(c.typ())
	return p.eventCode
}

// Position snapshots the cursor so it can be rewound with SetPosition.
func (p *XmlParser) Position() XmlPosition {
	return XmlPosition{eventCode: p.eventCode, curNode: p.curNode, curExt: p.curExt}
}

// SetPosition moves the cursor back (or forward) to a snapshot taken from a
// parser over the same tree.
func (p *XmlParser) SetPosition(pos XmlPosition) {
	p.eventCode = pos.eventCode
	p.curNode = pos.curNode
	p.curExt = pos.curExt
}

// LineNumber returns the source line of the current node, -1 outside one.
func (p *XmlParser) LineNumber() int32 {
	if p.curNode < 0 {
		return -1
	}
	return int32(chunk{data: p.tree.data, off: p.curNode}.u32(8))
}

// CommentID returns the string pool index of the current node's comment,
// -1 when there is none.
func (p *XmlParser) CommentID() int32 {
	if p.curNode < 0 {
		return -1
	}
	return int32(chunk{data: p.tree.data, off: p.curNode}.u32(12))
}

func (p *XmlParser) Comment() (string, error) {
	return p.poolString(p.CommentID())
}

// NamespacePrefixID is valid on namespace events.
func (p *XmlParser) NamespacePrefixID() int32 {
	if p.eventCode != EventStartNamespace && p.eventCode != EventEndNamespace {
		return -1
	}
	return int32(chunk{data: p.tree.data, off: p.curExt}.u32(0))
}

func (p *XmlParser) NamespacePrefix() (string, error) {
	return p.poolString(p.NamespacePrefixID())
}

func (p *XmlParser) NamespaceUriID() int32 {
	if p.eventCode != EventStartNamespace && p.eventCode != EventEndNamespace {
		return -1
	}
	return int32(chunk{data: p.tree.data, off: p.curExt}.u32(4))
}

func (p *XmlParser) NamespaceUri() (string, error) {
	return p.poolString(p.NamespaceUriID())
}

// ElementNamespaceID is valid on start and end tags. Elements without a
// namespace return -1.
func (p *XmlParser) ElementNamespaceID() int32 {
	if p.eventCode != EventStartTag && p.eventCode != EventEndTag {
		return -1
	}
	return int32(chunk{data: p.tree.data, off: p.curExt}.u32(0))
}

func (p *XmlParser) ElementNamespace() (string, error) {
	id := p.ElementNamespaceID()
	if id < 0 {
		return "", nil
	}
	return p.tree.pool.StringAt(uint32(id))
}

func (p *XmlParser) ElementNameID() int32 {
	if p.eventCode != EventStartTag && p.eventCode != EventEndTag {
		return -1
	}
	return int32(chunk{data: p.tree.data, off: p.curExt}.u32(4))
}

func (p *XmlParser) ElementName() (string, error) {
	return p.poolString(p.ElementNameID())
}

// TextID is valid on text events.
func (p *XmlParser) TextID() int32 {
	if p.eventCode != EventText {
		return -1
	}
	return int32(chunk{data: p.tree.data, off: p.curExt}.u32(0))
}

func (p *XmlParser) Text() (string, error) {
	return p.poolString(p.TextID())
}

// TextValue returns the typed value attached to a text event.
func (p *XmlParser) TextValue() (ResValue, error) {
	if p.eventCode != EventText {
		return ResValue{}, errors.Wrap(ErrBadType, "not on a text event")
	}
	return decodeResValue(p.tree.data[p.curExt+4:])
}

// AttributeCount is valid on start tags, 0 elsewhere.
func (p *XmlParser) AttributeCount() int {
	if p.eventCode != EventStartTag {
		return 0
	}
	return int(chunk{data: p.tree.data, off: p.curExt}.u16(12))
}

// attrOffset returns the buffer offset of attribute idx, -1 out of range.
func (p *XmlParser) attrOffset(idx int) int {
	if p.eventCode != EventStartTag || idx < 0 {
		return -1
	}
	c := chunk{data: p.tree.data, off: p.curExt}
	if idx >= int(c.u16(12)) {
		return -1
	}
	return p.curExt + int(c.u16(8)) + int(c.u16(10))*idx
}

func (p *XmlParser) AttributeNamespaceID(idx int) int32 {
	off := p.attrOffset(idx)
	if off < 0 {
		return -1
	}
	return int32(chunk{data: p.tree.data, off: off}.u32(0))
}

func (p *XmlParser) AttributeNamespace(idx int) (string, error) {
	id := p.AttributeNamespaceID(idx)
	if id < 0 {
		return "", nil
	}
	return p.tree.pool.StringAt(uint32(id))
}

func (p *XmlParser) AttributeNameID(idx int) int32 {
	off := p.attrOffset(idx)
	if off < 0 {
		return -1
	}
	return int32(chunk{data: p.tree.data, off: off}.u32(4))
}

func (p *XmlParser) AttributeName(idx int) (string, error) {
	return p.poolString(p.AttributeNameID(idx))
}

// AttributeNameResID maps the attribute's name through the document's
// resource map, 0 when the map does not cover it.
func (p *XmlParser) AttributeNameResID(idx int) uint32 {
	id := p.AttributeNameID(idx)
	if id < 0 || int(id) >= len(p.tree.resIDs) {
		return 0
	}
	return p.tree.resIDs[id]
}

// AttributeRawValueID returns the pool index of the attribute's raw string
// form, -1 when the attribute only has a typed value.
func (p *XmlParser) AttributeRawValueID(idx int) int32 {
	off := p.attrOffset(idx)
	if off < 0 {
		return -1
	}
	return int32(chunk{data: p.tree.data, off: off}.u32(8))
}

func (p *XmlParser) AttributeRawValue(idx int) (string, error) {
	return p.poolString(p.AttributeRawValueID(idx))
}

// AttributeValue returns the attribute's typed value.
func (p *XmlParser) AttributeValue(idx int) (ResValue, error) {
	off := p.attrOffset(idx)
	if off < 0 {
		return ResValue{}, errors.Wrapf(ErrBadIndex, "attribute %d", idx)
	}
	return decodeResValue(p.tree.data[off+12:])
}

// IndexOfAttribute finds an attribute by namespace and name. An empty
// namespace matches attributes without one.
func (p *XmlParser) IndexOfAttribute(ns, name string) int {
	n := p.AttributeCount()
	for i := 0; i < n; i++ {
		curName, err := p.AttributeName(i)
		if err != nil || curName != name {
			continue
		}
		curNs, err := p.AttributeNamespace(i)
		if err == nil && curNs == ns {
			return i
		}
	}
	return -1
}

// IndexOfID returns the index of the "id" attribute the compiler recorded,
// -1 when absent.
func (p *XmlParser) IndexOfID() int {
	return p.specialAttrIndex(14)
}

func (p *XmlParser) IndexOfClass() int {
	return p.specialAttrIndex(16)
}

func (p *XmlParser) IndexOfStyle() int {
	return p.specialAttrIndex(18)
}

// specialAttrIndex decodes one of the 1-based id/class/style slots of the
// start tag extension, 0 meaning not present.
func (p *XmlParser) specialAttrIndex(fieldOff int) int {
	if p.eventCode != EventStartTag {
		return -1
	}
	idx := int(chunk{data: p.tree.data, off: p.curExt}.u16(fieldOff))
	if idx == 0 {
		return -1
	}
	return idx - 1
}

func (p *XmlParser) poolString(id int32) (string, error) {
	if id < 0 {
		return "", errors.Wrap(ErrBadIndex, "no string for this event")
	}
	return p.tree.pool.StringAt(uint32(id))
}
