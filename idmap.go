package arscparser

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// Overlay idmap files translate resource IDs of a base package to the IDs
// of an overlay package. The file is a sequence of little-endian uint32
// words: a three word header (magic and the CRCs of both packages), then a
// data segment starting with the type count, one type-offset word per type
// and per overlaid type an entry count, the first overlaid entry index and
// the overlay resource IDs themselves.
const (
	idmapMagic       = 0x504D4449 // "IDMP"
	idmapHeaderWords = 3
)

func idmapWord(data []byte, i int) uint32 {
	return binary.LittleEndian.Uint32(data[i*4:])
}

func validateIdmapHeader(data []byte) error {
	if len(data) < (idmapHeaderWords+1)*4 {
		return errors.Wrapf(ErrBadType, "idmap is only %d bytes", len(data))
	}
	if m := idmapWord(data, 0); m != idmapMagic {
		return errors.Wrapf(ErrBadType, "idmap magic is 0x%08x, expected 0x%08x", m, uint32(idmapMagic))
	}
	return nil
}

// idmapLookup translates resID through the map. A zero result with nil
// error means the resource is not overlaid.
func idmapLookup(data []byte, resID uint32) (uint32, error) {
	if err := validateIdmapHeader(data); err != nil {
		return 0, err
	}

	// word indexes below are relative to the data segment
	seg := idmapHeaderWords
	size := len(data)/4 - idmapHeaderWords

	typ := resType(resID) // stored one-based already, resType is typeIndex+1
	entry := resEntry(resID)
	typeCount := int(idmapWord(data, seg))

	if typ > typeCount {
		return 0, errors.Wrapf(ErrBadType, "idmap type %d exceeds type count %d", typ, typeCount)
	}
	if typeCount > size {
		return 0, errors.Wrapf(ErrBadType, "idmap type count %d exceeds map size %d", typeCount, size)
	}
	typeOffset := int(idmapWord(data, seg+typ))
	if typeOffset == 0 {
		return 0, nil
	}
	if typeOffset+1 > size {
		return 0, errors.Wrapf(ErrBadType, "idmap type offset %d exceeds map size %d", typeOffset, size)
	}
	entryCount := int(idmapWord(data, seg+typeOffset))
	entryOffset := int(idmapWord(data, seg+typeOffset+1))
	if entryCount == 0 || entry < entryOffset || entry-entryOffset > entryCount-1 {
		return 0, nil
	}
	index := typeOffset + 2 + entry - entryOffset
	if index >= size {
		return 0, nil
	}
	return idmapWord(data, seg+index), nil
}

// idmapPackageID extracts the target package ID from the first overlaid
// entry in the map.
func idmapPackageID(data []byte) (uint32, error) {
	if err := validateIdmapHeader(data); err != nil {
		return 0, err
	}
	words := len(data) / 4
	p := idmapHeaderWords + 1
	for p < words && idmapWord(data, p) == 0 {
		p++
	}
	if p >= words {
		return 0, errors.Wrap(ErrBadType, "idmap has no overlaid entries")
	}
	index := idmapHeaderWords + int(idmapWord(data, p)) + 2
	if index >= words {
		return 0, errors.Wrap(ErrBadType, "idmap entry table is truncated")
	}
	return (idmapWord(data, index) >> 24) & 0xff, nil
}

// IdmapInfo reports the package CRCs recorded in an idmap, used to detect
// stale maps after either package changes.
func IdmapInfo(data []byte) (originalCrc, overlayCrc uint32, err error) {
	if err := validateIdmapHeader(data); err != nil {
		return 0, 0, err
	}
	return idmapWord(data, 1), idmapWord(data, 2), nil
}

// CreateIdmap builds an idmap translating this table's first package to
// the resources of the same name in overlay.
func (t *ResourceTable) CreateIdmap(overlay *ResourceTable, originalCrc, overlayCrc uint32) ([]byte, error) {
	if len(t.packageGroups) == 0 || len(t.packageGroups[0].packages) == 0 {
		return nil, errors.Wrap(ErrUnknown, "no packages to map")
	}
	if len(overlay.packageGroups) == 0 || len(overlay.packageGroups[0].packages) == 0 {
		return nil, errors.Wrap(ErrUnknown, "overlay has no packages")
	}

	pkg := t.packageGroups[0].packages[0]
	overlayPackage := overlay.packageGroups[0].name
	pkgID := uint32(pkg.id) << 24

	var perType [][]uint32
	for typeIndex := range pkg.types {
		typ := pkg.types[typeIndex]
		var vector []uint32
		offset := -1
		if typ != nil {
			for entryIndex := 0; entryIndex < typ.entryCount; entryIndex++ {
				resID := resID(int(pkg.id)-1, typeIndex, entryIndex)
				name, err := t.GetResourceName(resID)
				if err != nil {
					t.log.Warn("resource has spec but lacks values, skipping",
						"res", resID)
					// hold the slot, the offset math and the
					// trimming below need aligned indexes
					vector = append(vector, 0)
					continue
				}

				overlayResID := overlay.IdentifierForName(name.Name, name.Type, overlayPackage)
				if overlayResID != 0 {
					// overlay packages carry package ID 0 on disk
					overlayResID |= pkgID
				}
				vector = append(vector, overlayResID)
				if overlayResID != 0 && offset == -1 {
					offset = entryIndex
				}
			}
		}

		if offset == -1 {
			vector = nil
		} else {
			// shave off leading and trailing entries which lack
			// overlay values, prepend the offset of the rest
			vector = append([]uint32{uint32(offset)}, vector[offset:]...)
			for vector[len(vector)-1] == 0 {
				vector = vector[:len(vector)-1]
			}
		}
		perType = append(perType, vector)
	}

	words := []uint32{idmapMagic, originalCrc, overlayCrc, uint32(len(perType))}
	offset := len(perType)
	for _, vector := range perType {
		if len(vector) == 0 {
			words = append(words, 0)
		} else {
			offset++
			words = append(words, uint32(offset))
			offset += len(vector)
		}
	}
	for _, vector := range perType {
		if len(vector) == 0 {
			continue
		}
		// the count excludes the offset word at the vector's head
		words = append(words, uint32(len(vector)-1))
		words = append(words, vector...)
	}

	out := make([]byte, len(words)*4)
	for i, w := range words {
		binary.LittleEndian.PutUint32(out[i*4:], w)
	}
	return out, nil
}
