package arscparser

import "encoding/xml"

// ManifestEncoder consumes the XML tokens produced by ParseXml. The
// Encoder from encoding/xml satisfies it.
type ManifestEncoder interface {
	EncodeToken(t xml.Token) error
	Flush() error
}
