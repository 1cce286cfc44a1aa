package arscparser

import (
	"github.com/pkg/errors"
)

// themeEntry holds one applied attribute. An unset slot keeps TypeNull and
// stringBlock -1.
type themeEntry struct {
	stringBlock int32
	specFlags   uint32
	value       ResValue
}

type themeType struct {
	entries []themeEntry
}

type themePackage struct {
	types []*themeType
}

// Theme accumulates style attributes applied on top of each other and
// answers attribute lookups against the result. A theme stays bound to the
// table it was created from.
type Theme struct {
	table    *ResourceTable
	packages [256]*themePackage
}

func NewTheme(table *ResourceTable) *Theme {
	return &Theme{table: table}
}

// Table returns the resource table this theme resolves against.
func (th *Theme) Table() *ResourceTable {
	return th.table
}

// Clear drops every applied attribute.
func (th *Theme) Clear() {
	th.packages = [256]*themePackage{}
}

func (th *Theme) entrySlot(attrID uint32, grow bool) *themeEntry {
	p := resPackage(attrID)
	typeIndex := resType(attrID) - 1
	entryIndex := resEntry(attrID)
	if p == 0 || typeIndex < 0 {
		return nil
	}

	pi := th.packages[p]
	if pi == nil {
		if !grow {
			return nil
		}
		pi = &themePackage{}
		th.packages[p] = pi
	}

	for len(pi.types) <= typeIndex {
		if !grow {
			return nil
		}
		pi.types = append(pi.types, nil)
	}
	ti := pi.types[typeIndex]
	if ti == nil {
		if !grow {
			return nil
		}
		ti = &themeType{}
		pi.types[typeIndex] = ti
	}

	if entryIndex >= len(ti.entries) {
		if !grow {
			return nil
		}
		for len(ti.entries) <= entryIndex {
			ti.entries = append(ti.entries, themeEntry{stringBlock: -1})
		}
	}
	return &ti.entries[entryIndex]
}

// ApplyStyle merges the style bag resID into the theme. Attributes already
// set are kept unless force is given.
func (th *Theme) ApplyStyle(resID uint32, force bool) error {
	bag, bagFlags, err := th.table.GetBag(resID)
	if err != nil {
		return err
	}

	for _, be := range bag {
		slot := th.entrySlot(be.Name, true)
		if slot == nil {
			th.table.log.Warn("style contains attribute with bad identifier",
				"style", resID, "attr", be.Name)
			continue
		}
		if force || slot.value.DataType == TypeNull {
			slot.stringBlock = int32(be.StringBlock)
			slot.specFlags |= bagFlags
			slot.value = be.Value
		}
	}
	return nil
}

// GetAttribute looks up attrID in the theme, following attribute-to-
// attribute redirects a bounded number of times. An explicit TypeNull slot
// reports not found, it means the style cleared the attribute.
func (th *Theme) GetAttribute(attrID uint32) (*ResourceValue, error) {
	for cnt := maxReferenceHops; ; cnt-- {
		slot := th.entrySlot(attrID, false)
		if slot == nil {
			return nil, errors.Wrapf(ErrBadIndex, "theme has no attribute 0x%08x", attrID)
		}

		if slot.value.DataType == TypeAttribute {
			if cnt <= 0 {
				return nil, errors.Wrapf(ErrBadIndex, "attribute 0x%08x redirects too deeply", attrID)
			}
			attrID = slot.value.Data
			continue
		}

		if slot.value.DataType == TypeNull {
			return nil, errors.Wrapf(ErrBadIndex, "theme attribute 0x%08x is empty", attrID)
		}
		return &ResourceValue{
			Value:      slot.value,
			SpecFlags:  slot.specFlags,
			BlockIndex: int(slot.stringBlock),
		}, nil
	}
}

// ResolveAttributeReference resolves v first through the theme when it is
// an attribute and then through the table's reference chain.
func (th *Theme) ResolveAttributeReference(v *ResourceValue) error {
	if v.Value.DataType == TypeAttribute {
		next, err := th.GetAttribute(v.Value.Data)
		if err != nil {
			return err
		}
		v.Value = next.Value
		v.SpecFlags |= next.SpecFlags
		v.BlockIndex = next.BlockIndex
	}
	return th.table.ResolveReference(v)
}

// SetTo replaces this theme's contents with other's. Copying across tables
// only carries over the first package slot, the others cannot be assumed
// to line up.
func (th *Theme) SetTo(other *Theme) {
	th.Clear()

	if th.table == other.table {
		for i, pi := range other.packages {
			th.packages[i] = copyThemePackage(pi)
		}
	} else {
		th.packages[0] = copyThemePackage(other.packages[0])
	}
}

func copyThemePackage(pi *themePackage) *themePackage {
	if pi == nil {
		return nil
	}
	out := &themePackage{types: make([]*themeType, len(pi.types))}
	for i, ti := range pi.types {
		if ti == nil {
			continue
		}
		entries := append([]themeEntry(nil), ti.entries...)
		out.types[i] = &themeType{entries: entries}
	}
	return out
}
