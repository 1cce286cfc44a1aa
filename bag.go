package arscparser

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// BagEntry is one attribute of a resolved bag: the name resource it maps,
// its value and the table block the value's strings live in.
type BagEntry struct {
	StringBlock int
	Name        uint32
	Value       ResValue
}

// bagState is a cache slot for one bag. A slot present but still building
// marks a cycle when it is requested again.
type bagState struct {
	inProgress bool
	entries    []BagEntry
	specFlags  uint32
}

func bagCacheKey(resID uint32) uint32 {
	return resID & 0x00FFFFFF
}

// GetBag resolves the complex entry resID into its flattened attribute
// list, parent bags merged in, sorted ascending by attribute name. Results
// are cached until SetParameters changes the configuration.
func (t *ResourceTable) GetBag(resID uint32) ([]BagEntry, uint32, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.getBagLocked(resID)
}

func (t *ResourceTable) getBagLocked(resID uint32) ([]BagEntry, uint32, error) {
	grp, err := t.groupFor(resID)
	if err != nil {
		return nil, 0, err
	}

	typeIndex := resType(resID) - 1
	entryIndex := resEntry(resID)
	if typeIndex < 0 {
		return nil, 0, errors.Wrapf(ErrBadIndex, "no type identifier when getting bag for 0x%08x", resID)
	}

	base := grp.basePackage
	if typeIndex >= len(base.types) || base.types[typeIndex] == nil {
		return nil, 0, errors.Wrapf(ErrBadIndex, "type 0x%x larger than type count 0x%x",
			typeIndex+1, len(base.types))
	}
	if entryIndex >= base.types[typeIndex].entryCount {
		return nil, 0, errors.Wrapf(ErrBadIndex, "entry 0x%x larger than entry count 0x%x",
			entryIndex, base.types[typeIndex].entryCount)
	}

	key := bagCacheKey(resID)
	if state, ok := grp.bags[key]; ok {
		if state.inProgress {
			t.log.Warn("attempt to retrieve bag which is invalid or in a cycle", "resid", resID)
			return nil, 0, errors.Wrapf(ErrBadIndex, "bag 0x%08x is invalid or in a cycle", resID)
		}
		return state.entries, state.specFlags, nil
	}

	// Mark that this one is being built. The marker stays behind on
	// decode errors, poisoning later requests for the same broken bag.
	grp.bags[key] = &bagState{inProgress: true}

	var set []BagEntry
	var setFlags uint32
	haveSet := false
	var bestConfig Config

	for ip := len(grp.packages) - 1; ip >= 0; ip-- {
		pkg := grp.packages[ip]

		curType := typeIndex
		curEntry := entryIndex
		if pkg.header.idmap != nil {
			overlayID, err := idmapLookup(pkg.header.idmap, resID)
			if err != nil || overlayID == 0 {
				continue
			}
			curType = resType(overlayID) - 1
			curEntry = resEntry(overlayID)
		}

		entry, err := t.getEntry(pkg, curType, curEntry, &t.params)
		if err != nil {
			if ip == 0 && !haveSet {
				return nil, 0, errors.Wrapf(err, "bag entry for 0x%08x", resID)
			}
			continue
		}
		if entry == nil {
			continue
		}

		if !entry.isComplex() {
			t.log.Warn("skipping entry because a bag was requested but it is not complex",
				"resid", resID, "package", ip)
			continue
		}

		if haveSet && !entry.config.IsBetterThan(&bestConfig, nil) {
			continue
		}
		bestConfig = entry.config
		set = nil
		setFlags = 0
		haveSet = true

		data := pkg.header.data
		var parent, count uint32
		if int(entry.size) >= mapEntrySize {
			parent = binary.LittleEndian.Uint32(data[entry.entryOff+8:])
			count = binary.LittleEndian.Uint32(data[entry.entryOff+12:])
		} else {
			t.log.Warn("complex entry too small for a map header, treating as empty",
				"resid", resID, "size", entry.size)
		}

		// Parents seed the set. A parent that fails to resolve, or
		// one inside a cycle, just contributes nothing.
		if parent != 0 {
			parentBag, parentFlags, err := t.getBagLocked(parent)
			if err == nil {
				set = append(set, parentBag...)
				setFlags = parentFlags
			}
		}

		specFlags := uint32(0xFFFFFFFF)
		if entry.typ.specFlags != nil {
			specFlags = entry.typ.specFlags[curEntry]
			specFlags |= setFlags
		}
		setFlags = specFlags

		// Merge this map's pairs into the sorted set, replacing on
		// name collisions. Pairs arrive sorted too, so the scan
		// pointer only moves forward.
		typeSize := (chunk{data: data, off: entry.typeOff}).size()
		mapOff := entry.entryOff + int(entry.size)
		cur := 0
		for pos := uint32(0); pos < count; pos++ {
			if mapOff-entry.typeOff > typeSize-mapSize {
				return nil, 0, errors.Wrapf(ErrBadType, "map at 0x%x beyond type chunk data 0x%x",
					mapOff-entry.typeOff, typeSize)
			}

			name := binary.LittleEndian.Uint32(data[mapOff:])
			value, err := decodeResValue(data[mapOff+4:])
			if err != nil {
				return nil, 0, errors.Wrapf(err, "map value in bag 0x%08x", resID)
			}

			for cur < len(set) && set[cur].Name < name {
				cur++
			}
			be := BagEntry{StringBlock: pkg.header.index, Name: name, Value: value}
			if cur < len(set) && set[cur].Name == name {
				set[cur] = be
			} else {
				set = append(set, BagEntry{})
				copy(set[cur+1:], set[cur:])
				set[cur] = be
			}
			cur++

			mapOff += 4 + int(value.Size)
		}
	}

	if !haveSet {
		// Leave the marker so the failed lookup is remembered.
		return nil, 0, errors.Wrapf(ErrBadIndex, "no bag found for 0x%08x", resID)
	}

	grp.bags[key] = &bagState{entries: set, specFlags: setFlags}
	return set, setFlags, nil
}
