package arscparser

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

const androidNamespace = "http://schemas.android.com/apk/res/android"

// Icons resolve against the highest density available so the best asset
// wins when an APK carries several.
const iconDensity = 0xFFFF

type xmlTokenWriter struct {
	parser *XmlParser
	enc    ManifestEncoder
	res    *ResourceTable
}

// Deprecated: just calls ParseXml
func ParseManifest(r io.Reader, enc ManifestEncoder, resources *ResourceTable) error {
	return ParseXml(r, enc, resources)
}

// ParseXml decodes a compiled XML document and feeds it to enc as
// encoding/xml tokens. The resources are optional and can be nil, without
// them references stay in their @0x12345678 form.
func ParseXml(r io.Reader, enc ManifestEncoder, resources *ResourceTable) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}

	if bytes.HasPrefix(data, []byte("<?xml ")) || bytes.HasPrefix(data, []byte("<manif")) {
		return ErrPlainTextManifest
	}

	tree := NewXmlTree(nil)
	if err := tree.SetTo(data, false); err != nil {
		return err
	}

	w := xmlTokenWriter{
		parser: tree.Parser(),
		enc:    enc,
		res:    resources,
	}
	defer w.enc.Flush()

	for {
		switch ev := w.parser.Next(); ev {
		case EventEndDocument:
			return w.enc.Flush()
		case EventBadDocument:
			return errors.Wrapf(ErrBadType, "document broken near line %d", w.parser.LineNumber())
		case EventStartTag:
			err = w.startTag()
		case EventEndTag:
			err = w.endTag()
		case EventText:
			err = w.text()
		case EventStartNamespace, EventEndNamespace:
			// the encoder rebuilds xmlns declarations itself
		}
		if err != nil {
			return err
		}
	}
}

func (w *xmlTokenWriter) startTag() error {
	name, err := w.parser.ElementName()
	if err != nil {
		return errors.Wrap(err, "decoding element name")
	}
	namespace := ""
	if w.parser.ElementNamespaceID() >= 0 {
		if namespace, err = w.parser.ElementNamespace(); err != nil {
			return errors.Wrap(err, "decoding element namespace")
		}
	}

	tok := xml.StartElement{
		Name: xml.Name{Local: name, Space: namespace},
	}

	for i := 0; i < w.parser.AttributeCount(); i++ {
		attr, err := w.attribute(i, name)
		if err != nil {
			return err
		}
		tok.Attr = append(tok.Attr, attr)
	}

	return w.enc.EncodeToken(tok)
}

func (w *xmlTokenWriter) attribute(idx int, elemName string) (xml.Attr, error) {
	// Android reads manifest attributes purely by their resource IDs (the
	// indexes come from the generated R class, e.g. the
	// AndroidManifestActivity array), but good guy android puts the names
	// into the string pool on the same indexes anyway, most of the time.
	// Obfuscators and minimizers strip them, so prefer the ID.
	// Sample: 98d2e837b8f3ac41e74b86b2d532972955e5352197a893206ecd9650f678ae31
	//
	// The exception is the "package" attribute on the root manifest tag.
	// That one MUST NOT use resource ids, it is found through the string
	// pool. Same for the 'platformBuildVersion*' meta attrs, except
	// Android never parses them so it's just for manual analysis.
	// Sample: a3ee88cf1492237a1be846df824f9de30a6f779973fe3c41c7d7ed0be644ba37
	var attrName string
	if rid := w.parser.AttributeNameResID(idx); rid != 0 {
		attrName = getAttributeName(rid)
	}

	var attrNameFromStrings string
	if attrName == "" || elemName == "manifest" {
		s, err := w.parser.AttributeName(idx)
		if err != nil {
			if attrName == "" {
				return xml.Attr{}, errors.Wrap(err, "decoding attribute name")
			}
		} else if attrName == "" || s == "package" || strings.HasPrefix(s, "platformBuildVersion") {
			attrNameFromStrings = s
		}
	}

	attrNameSpace := ""
	if w.parser.AttributeNamespaceID(idx) >= 0 {
		var err error
		if attrNameSpace, err = w.parser.AttributeNamespace(idx); err != nil {
			return xml.Attr{}, errors.Wrap(err, "decoding attribute namespace")
		}
	}

	if attrNameFromStrings != "" {
		attrName = attrNameFromStrings
	} else if attrNameSpace == "" {
		// a resource ID means the attribute was in the android: namespace
		attrNameSpace = androidNamespace
	}

	out := xml.Attr{Name: xml.Name{Local: attrName, Space: attrNameSpace}}

	value, err := w.parser.AttributeValue(idx)
	if err != nil {
		return xml.Attr{}, errors.Wrapf(err, "decoding value of %s", attrName)
	}

	switch value.DataType {
	case TypeString:
		if out.Value, err = w.parser.AttributeRawValue(idx); err != nil {
			return xml.Attr{}, errors.Wrapf(err, "decoding string value of %s", attrName)
		}
	case TypeIntBoolean:
		out.Value = strconv.FormatBool(value.Data != 0)
	case TypeIntHex:
		out.Value = fmt.Sprintf("0x%x", value.Data)
	case TypeFloat:
		out.Value = fmt.Sprintf("%g", value.Float())
	case TypeReference:
		density := uint16(0)
		if attrName == "icon" || attrName == "roundIcon" {
			density = iconDensity
		}
		if s, ok := w.resolveReference(value.Data, density); ok {
			out.Value = s
		} else {
			out.Value = fmt.Sprintf("@%x", value.Data)
		}
	default:
		out.Value = strconv.FormatInt(int64(int32(value.Data)), 10)
	}
	return out, nil
}

func (w *xmlTokenWriter) resolveReference(ref uint32, density uint16) (string, bool) {
	if w.res == nil || ref == 0 {
		return "", false
	}

	v, err := w.res.GetResource(ref, false, density)
	if err != nil {
		return "", false
	}
	if err := w.res.ResolveReference(v); err != nil {
		return "", false
	}

	pool, _ := w.res.TableStringBlock(v.BlockIndex)
	return v.Value.String(pool), true
}

func (w *xmlTokenWriter) endTag() error {
	name, err := w.parser.ElementName()
	if err != nil {
		return errors.Wrap(err, "decoding element name")
	}
	namespace := ""
	if w.parser.ElementNamespaceID() >= 0 {
		if namespace, err = w.parser.ElementNamespace(); err != nil {
			return errors.Wrap(err, "decoding element namespace")
		}
	}
	return w.enc.EncodeToken(xml.EndElement{Name: xml.Name{Local: name, Space: namespace}})
}

func (w *xmlTokenWriter) text() error {
	text, err := w.parser.Text()
	if err != nil {
		return errors.Wrap(err, "decoding text node")
	}
	return w.enc.EncodeToken(xml.CharData(text))
}
