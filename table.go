package arscparser

import (
	"encoding/binary"
	"log/slog"
	"sync"
	"unicode/utf16"

	"github.com/pkg/errors"
)

const (
	tableHeaderSize     = 12
	tablePackageMinSize = 284
	tableTypeSpecSize   = 16
	tableTypeMinSize    = 24

	entryNoEntry = 0xFFFFFFFF

	entrySize    = 8
	mapEntrySize = 16
	mapSize      = 4 + resValueSize

	entryFlagComplex = 0x0001
	entryFlagPublic  = 0x0002

	// Resolution chains (references, attributes, bag parents) give up
	// after this many hops.
	maxReferenceHops = 20
)

// ResourceTable indexes one or more compiled resource tables and answers
// value, bag and name lookups against them. Tables are added with Add and
// queried concurrently afterwards.
type ResourceTable struct {
	mu  sync.Mutex
	log *slog.Logger

	headers       []*tableHeader
	packageGroups []*packageGroup
	packageMap    [256]uint8 // package id -> group index + 1

	// Device configuration lookups resolve against.
	params Config
}

// tableHeader is one Add call: the raw chunk bytes, its value string pool
// and the optional overlay translation map.
type tableHeader struct {
	index  int
	cookie int32
	data   []byte
	values StringPool
	idmap  []byte
}

type tablePackage struct {
	header      *tableHeader
	off         int
	id          uint32
	typeStrings StringPool
	keyStrings  StringPool
	types       []*tableType // indexed by type id - 1, nil gaps
	libraries   []libraryRef
}

// tableType collects every configuration block of one type id, plus the
// spec flags when a type spec chunk was present.
type tableType struct {
	header     *tableHeader
	pkg        *tablePackage
	entryCount int
	specFlags  []uint32
	configs    []int // ResTable_type chunk offsets within header.data
}

type libraryRef struct {
	id   uint32
	name string
}

type packageGroup struct {
	name        string
	id          uint32
	packages    []*tablePackage
	basePackage *tablePackage

	// Resolved bag cache, keyed by type<<16|entry. Guarded by the
	// table mutex.
	bags map[uint32]*bagState
}

func NewResourceTable(logger *slog.Logger) *ResourceTable {
	if logger == nil {
		logger = slog.Default()
	}
	return &ResourceTable{log: logger}
}

// ResourceValue is the result of a value lookup: the typed value itself,
// the spec flags of its entry, the configuration it was defined for and
// the table block whose string pool TypeString data indexes.
type ResourceValue struct {
	Value      ResValue
	SpecFlags  uint32
	Config     Config
	BlockIndex int
}

// Add loads one compiled table. cookie is an opaque tag returned by
// TableCookie, idmap an optional overlay translation map created by
// CreateIdmap. With copyData the table keeps its own copy of data.
func (t *ResourceTable) Add(data []byte, cookie int32, copyData bool, idmap []byte) error {
	if len(data) == 0 {
		return nil
	}

	if copyData {
		data = append([]byte(nil), data...)
	}

	header := &tableHeader{
		index:  len(t.headers),
		cookie: cookie,
		data:   data,
	}
	if idmap != nil {
		header.idmap = append([]byte(nil), idmap...)
	}
	t.headers = append(t.headers, header)

	if err := validateChunk(data, 0, tableHeaderSize); err != nil {
		return err
	}
	c := chunk{data: data}
	if c.typ() != chunkTable {
		return errors.Wrapf(ErrBadType, "invalid chunk type 0x%04x, expected resource table", c.typ())
	}

	size := c.size()
	header.data = data[:size]
	packageCount := c.u32(8)

	curPackage := uint32(0)
	pos := chunk{data: header.data, off: c.headerSize()}
	for pos.off+chunkHeaderSize <= size {
		if err := validateChunk(header.data, pos.off, chunkHeaderSize); err != nil {
			return err
		}

		switch pos.typ() {
		case chunkStringPool:
			if header.values.IsEmpty() {
				if err := header.values.SetTo(header.data[pos.off:pos.off+pos.size()], false); err != nil {
					return errors.Wrap(err, "table value strings")
				}
			} else {
				t.log.Warn("multiple string chunks found in resource table", "offset", pos.off)
			}
		case chunkTablePackage:
			if curPackage >= packageCount {
				t.log.Warn("more package chunks than declared in the table header",
					"declared", packageCount)
				return errors.Wrap(ErrBadType, "excess package chunks")
			}
			var idmapID uint32
			if header.idmap != nil {
				id, err := idmapPackageID(header.idmap)
				if err != nil {
					return err
				}
				idmapID = id
			}
			if err := t.parsePackage(header, pos.off, idmapID); err != nil {
				return err
			}
			curPackage++
		default:
			t.log.Warn("unknown chunk type in resource table",
				"type", pos.typ(), "offset", pos.off)
		}

		var ok bool
		if pos, ok = pos.next(size); !ok {
			break
		}
	}

	if curPackage < packageCount {
		t.log.Warn("fewer package chunks than declared in the table header",
			"found", curPackage, "declared", packageCount)
		return errors.Wrap(ErrBadType, "missing package chunks")
	}
	if header.values.IsEmpty() {
		return errors.Wrap(ErrBadType, "no string values found in resource table")
	}
	return nil
}

func decodePackageName(d []byte) string {
	buf := make([]uint16, 0, 128)
	for i := 0; i+1 < len(d) && i < 256; i += 2 {
		c := binary.LittleEndian.Uint16(d[i:])
		if c == 0 {
			break
		}
		buf = append(buf, c)
	}
	return string(utf16.Decode(buf))
}

// parsePackage decodes one package chunk. idmapID, when non-zero, replaces
// the package's own id so overlay tables land in the group they shadow.
func (t *ResourceTable) parsePackage(header *tableHeader, off int, idmapID uint32) error {
	if err := validateChunk(header.data, off, tablePackageMinSize); err != nil {
		return err
	}
	c := chunk{data: header.data, off: off}
	pkgSize := c.size()

	typeStrings := c.u32(268)
	keyStrings := c.u32(276)
	if typeStrings >= uint32(pkgSize) || typeStrings&0x3 != 0 {
		return errors.Wrapf(ErrBadType, "package type strings at 0x%x invalid for chunk size 0x%x",
			typeStrings, pkgSize)
	}
	if keyStrings >= uint32(pkgSize) || keyStrings&0x3 != 0 {
		return errors.Wrapf(ErrBadType, "package key strings at 0x%x invalid for chunk size 0x%x",
			keyStrings, pkgSize)
	}

	id := c.u32(8)
	if idmapID != 0 {
		id = idmapID
	}
	// id may still be 0 here: an overlay package loaded without its
	// translation map, which happens while the map is being created.
	if id >= 256 {
		return errors.Wrapf(ErrBadType, "package id 0x%x out of range", id)
	}

	pkg := &tablePackage{header: header, off: off, id: id}

	var group *packageGroup
	if idx := t.packageMap[id]; idx == 0 {
		group = &packageGroup{
			name: decodePackageName(header.data[off+12:]),
			id:   id,
			bags: make(map[uint32]*bagState),
		}

		if err := pkg.typeStrings.SetTo(header.data[off+int(typeStrings):], false); err != nil {
			return errors.Wrap(err, "package type strings")
		}
		if err := pkg.keyStrings.SetTo(header.data[off+int(keyStrings):], false); err != nil {
			return errors.Wrap(err, "package key strings")
		}

		t.packageGroups = append(t.packageGroups, group)
		group.basePackage = pkg
		t.packageMap[id] = uint8(len(t.packageGroups))
	} else {
		group = t.packageGroups[idx-1]
	}
	group.packages = append(group.packages, pkg)

	end := off + pkgSize
	pos := chunk{data: header.data, off: off + c.headerSize()}
	for pos.off+chunkHeaderSize <= end {
		if err := validateChunk(header.data, pos.off, chunkHeaderSize); err != nil {
			return err
		}
		if pos.off+pos.size() > end {
			return errors.Wrapf(ErrBadType, "package chunk at 0x%08x runs past the package end", pos.off)
		}

		switch pos.typ() {
		case chunkTableTypeSpec:
			if err := t.parseTypeSpec(header, pkg, pos); err != nil {
				return err
			}
		case chunkTableType:
			if err := t.parseType(header, pkg, pos); err != nil {
				return err
			}
		case chunkTableLibrary:
			if err := t.parseLibrary(header, pkg, pos); err != nil {
				return err
			}
		default:
			t.log.Warn("unknown chunk type in package",
				"type", pos.typ(), "offset", pos.off)
		}

		var ok bool
		if pos, ok = pos.next(end); !ok {
			break
		}
	}
	return nil
}

// typeSlot returns the type record for a 1-based type id, growing the
// package's slot table as needed and enforcing a consistent entry count.
func (t *ResourceTable) typeSlot(header *tableHeader, pkg *tablePackage, id uint8, entryCount int) (*tableType, error) {
	if id == 0 {
		return nil, errors.Wrap(ErrBadType, "type chunk has an id of 0")
	}
	for len(pkg.types) < int(id) {
		pkg.types = append(pkg.types, nil)
	}
	slot := pkg.types[id-1]
	if slot == nil {
		slot = &tableType{header: header, pkg: pkg, entryCount: entryCount}
		pkg.types[id-1] = slot
	} else if slot.entryCount != entryCount {
		return nil, errors.Wrapf(ErrBadType, "type 0x%02x entry count inconsistent: given %d, previously %d",
			id, entryCount, slot.entryCount)
	}
	return slot, nil
}

func (t *ResourceTable) parseTypeSpec(header *tableHeader, pkg *tablePackage, c chunk) error {
	if err := validateChunk(header.data, c.off, tableTypeSpecSize); err != nil {
		return err
	}

	entryCount := c.u32(12)
	if entryCount > uint32(1<<30)/4 {
		return errors.Wrapf(ErrNoMemory, "type spec declares %d entries", entryCount)
	}
	if uint64(c.headerSize())+4*uint64(entryCount) > uint64(c.size()) {
		return errors.Wrapf(ErrBadType, "type spec flags for %d entries run past the chunk end", entryCount)
	}

	slot, err := t.typeSlot(header, pkg, c.u8(8), int(entryCount))
	if err != nil {
		return err
	}

	flags := make([]uint32, entryCount)
	for i := range flags {
		flags[i] = c.u32(c.headerSize() + 4*i)
	}
	slot.specFlags = flags
	return nil
}

func (t *ResourceTable) parseType(header *tableHeader, pkg *tablePackage, c chunk) error {
	if err := validateChunk(header.data, c.off, tableTypeMinSize); err != nil {
		return err
	}

	entryCount := c.u32(12)
	entriesStart := c.u32(16)
	if uint64(c.headerSize())+4*uint64(entryCount) > uint64(c.size()) {
		return errors.Wrapf(ErrBadType, "type entry index for %d entries runs past the chunk end", entryCount)
	}
	if entryCount != 0 && uint64(entriesStart) > uint64(c.size())-entrySize {
		return errors.Wrapf(ErrBadType, "type entries start 0x%x beyond chunk end 0x%x",
			entriesStart, c.size())
	}

	slot, err := t.typeSlot(header, pkg, c.u8(8), int(entryCount))
	if err != nil {
		return err
	}
	slot.configs = append(slot.configs, c.off)
	return nil
}

func (t *ResourceTable) parseLibrary(header *tableHeader, pkg *tablePackage, c chunk) error {
	if err := validateChunk(header.data, c.off, tableHeaderSize); err != nil {
		return err
	}
	count := int(c.u32(8))
	const libEntrySize = 4 + 256
	if c.headerSize()+count*libEntrySize > c.size() {
		return errors.Wrapf(ErrBadType, "library chunk declares %d entries beyond its size", count)
	}
	for i := 0; i < count; i++ {
		off := c.off + c.headerSize() + i*libEntrySize
		ref := libraryRef{
			id:   binary.LittleEndian.Uint32(header.data[off:]),
			name: decodePackageName(header.data[off+4:]),
		}
		pkg.libraries = append(pkg.libraries, ref)
		t.log.Debug("shared library reference", "id", ref.id, "package", ref.name)
	}
	return nil
}

// entryInstance points at one decoded table entry: its type block, the
// configuration the block carries and the entry record itself.
type entryInstance struct {
	typ      *tableType
	typeOff  int
	config   Config
	entryOff int
	size     uint16
	flags    uint16
	keyIndex uint32
}

func (e *entryInstance) isComplex() bool {
	return e.flags&entryFlagComplex != 0
}

// value decodes the Res_value record following a non-complex entry.
func (e *entryInstance) value() (ResValue, error) {
	if e.isComplex() {
		return ResValue{}, errors.Wrap(ErrBadType, "entry is complex")
	}
	data := e.typ.header.data
	typeChunk := chunk{data: data, off: e.typeOff}
	if e.entryOff+int(e.size)+resValueSize > e.typeOff+typeChunk.size() {
		return ResValue{}, errors.Wrap(ErrBadType, "entry value beyond type chunk data")
	}
	return decodeResValue(data[e.entryOff+int(e.size):])
}

// getEntry finds the best configuration block of typeIndex holding
// entryIndex. A nil config takes the first block that defines the entry,
// which is what enumeration wants. A (nil, nil) return means the package
// does not carry the type at all.
func (t *ResourceTable) getEntry(pkg *tablePackage, typeIndex, entryIndex int, config *Config) (*entryInstance, error) {
	if typeIndex < 0 || typeIndex >= len(pkg.types) || pkg.types[typeIndex] == nil {
		return nil, nil
	}
	allTypes := pkg.types[typeIndex]

	if entryIndex < 0 || entryIndex >= allTypes.entryCount {
		return nil, errors.Wrapf(ErrBadType, "entry index %d beyond type entry count %d",
			entryIndex, allTypes.entryCount)
	}

	data := pkg.header.data
	var best *entryInstance
	for _, typeOff := range allTypes.configs {
		c := chunk{data: data, off: typeOff}

		thisConfig, _, err := decodeConfig(data[typeOff+20 : typeOff+c.headerSize()])
		if err != nil {
			return nil, errors.Wrapf(err, "type config at 0x%08x", typeOff)
		}

		if config != nil && !thisConfig.Match(config) {
			continue
		}
		if entryIndex >= int(c.u32(12)) {
			continue
		}

		offset := c.u32(c.headerSize() + 4*entryIndex)
		if offset == entryNoEntry {
			continue
		}

		if best != nil && !thisConfig.IsBetterThan(&best.config, config) {
			continue
		}

		best = &entryInstance{
			typ:      allTypes,
			typeOff:  typeOff,
			config:   thisConfig,
			entryOff: typeOff + int(c.u32(16)) + int(offset),
		}
		if config == nil {
			break
		}
	}

	if best == nil {
		return nil, errors.Wrapf(ErrBadIndex, "no value for entry %d of type 0x%02x",
			entryIndex, typeIndex+1)
	}

	c := chunk{data: data, off: best.typeOff}
	relOff := best.entryOff - best.typeOff
	if relOff < 0 || relOff > c.size()-entrySize {
		return nil, errors.Wrapf(ErrBadType, "entry at 0x%x beyond type chunk data 0x%x",
			relOff, c.size())
	}
	if relOff&0x3 != 0 {
		return nil, errors.Wrapf(ErrBadType, "entry at 0x%x not on an integer boundary", relOff)
	}

	best.size = binary.LittleEndian.Uint16(data[best.entryOff:])
	best.flags = binary.LittleEndian.Uint16(data[best.entryOff+2:])
	best.keyIndex = binary.LittleEndian.Uint32(data[best.entryOff+4:])
	if int(best.size) < entrySize {
		return nil, errors.Wrapf(ErrBadType, "entry size 0x%x too small", best.size)
	}
	if relOff+int(best.size) > c.size() {
		return nil, errors.Wrapf(ErrBadType, "entry of size 0x%x runs past the type chunk", best.size)
	}
	return best, nil
}

func (t *ResourceTable) groupFor(resID uint32) (*packageGroup, error) {
	p := resPackage(resID)
	if p == 0 {
		return nil, errors.Wrapf(ErrBadIndex, "no package identifier in resource 0x%08x", resID)
	}
	idx := t.packageMap[p]
	if idx == 0 {
		return nil, errors.Wrapf(ErrBadIndex, "no known package for resource 0x%08x", resID)
	}
	return t.packageGroups[idx-1], nil
}

// GetResource looks up the value of resID under the current parameters.
// density, when non-zero, overrides the density axis for this lookup.
// Complex entries are skipped unless mayBeBag, use GetBag for those.
func (t *ResourceTable) GetResource(resID uint32, mayBeBag bool, density uint16) (*ResourceValue, error) {
	grp, err := t.groupFor(resID)
	if err != nil {
		return nil, err
	}
	if resType(resID) == 0 {
		return nil, errors.Wrapf(ErrBadIndex, "no type identifier in resource 0x%08x", resID)
	}

	desired := t.params
	if density > 0 {
		desired.Density = density
	}

	var best *ResourceValue
	var bestItem Config

	// Walk packages newest first so overlays shadow their targets.
	for ip := len(grp.packages) - 1; ip >= 0; ip-- {
		pkg := grp.packages[ip]

		typeIndex := resType(resID) - 1
		entryIndex := resEntry(resID)
		if pkg.header.idmap != nil {
			overlayID, err := idmapLookup(pkg.header.idmap, resID)
			if err != nil || overlayID == 0 {
				// not overlaid, try the next package
				continue
			}
			typeIndex = resType(overlayID) - 1
			entryIndex = resEntry(overlayID)
		}

		entry, err := t.getEntry(pkg, typeIndex, entryIndex, &desired)
		if err != nil {
			// Overlay packages may legitimately lack a default, and
			// an overlay hit earlier in the walk can cover for a
			// base package with nothing for this configuration.
			if ip == 0 && best == nil {
				return nil, errors.Wrapf(err, "getting entry for 0x%08x (t=%d e=%d)",
					resID, typeIndex, entryIndex)
			}
			continue
		}
		if entry == nil {
			continue
		}

		if entry.isComplex() {
			if !mayBeBag {
				t.log.Warn("requesting resource failed because it is complex",
					"resid", resID)
			}
			continue
		}

		item, err := entry.value()
		if err != nil {
			return nil, err
		}

		if best != nil && (bestItem.IsMoreSpecificThan(&entry.config) || bestItem.Diff(&entry.config) == 0) {
			// Identical configurations are discarded too, or the
			// overlay could never take effect.
			continue
		}

		specFlags := uint32(0xFFFFFFFF)
		if entry.typ.specFlags != nil {
			specFlags = entry.typ.specFlags[entryIndex]
		}

		bestItem = entry.config
		best = &ResourceValue{
			Value:      item,
			SpecFlags:  specFlags,
			Config:     entry.config,
			BlockIndex: pkg.header.index,
		}
	}

	if best == nil {
		return nil, errors.Wrapf(ErrNameNotFound, "resource 0x%08x has no value for the current configuration", resID)
	}
	return best, nil
}

// ResolveReference chases v through reference values until it lands on a
// concrete one, for at most maxReferenceHops steps. Lookup misses leave v
// at the last reference for the caller to deal with, structural errors are
// returned.
func (t *ResourceTable) ResolveReference(v *ResourceValue) error {
	for count := 0; v.Value.DataType == TypeReference && v.Value.Data != 0 && count < maxReferenceHops; count++ {
		next, err := t.GetResource(v.Value.Data, true, 0)
		if err != nil {
			if errors.Is(err, ErrBadIndex) {
				return err
			}
			return nil
		}
		v.Value = next.Value
		v.SpecFlags |= next.SpecFlags
		v.Config = next.Config
		v.BlockIndex = next.BlockIndex
	}
	return nil
}

// ResourceName is the symbolic identity of a resource.
type ResourceName struct {
	Package string
	Type    string
	Name    string
}

// GetResourceName recovers the package, type and entry name of resID from
// the table's name pools.
func (t *ResourceTable) GetResourceName(resID uint32) (ResourceName, error) {
	grp, err := t.groupFor(resID)
	if err != nil {
		return ResourceName{}, err
	}
	typeIndex := resType(resID) - 1
	if typeIndex < 0 {
		return ResourceName{}, errors.Wrapf(ErrBadIndex, "no type identifier in resource 0x%08x", resID)
	}

	typeName, err := grp.basePackage.typeStrings.StringAt(uint32(typeIndex))
	if err != nil {
		return ResourceName{}, err
	}

	for _, pkg := range grp.packages {
		entry, err := t.getEntry(pkg, typeIndex, resEntry(resID), nil)
		if err != nil || entry == nil {
			continue
		}
		name, err := grp.basePackage.keyStrings.StringAt(entry.keyIndex)
		if err != nil {
			return ResourceName{}, err
		}
		return ResourceName{Package: grp.name, Type: typeName, Name: name}, nil
	}
	return ResourceName{}, errors.Wrapf(ErrNameNotFound, "resource 0x%08x", resID)
}

// SetParameters installs the device configuration lookups resolve against
// and drops every cached bag, they may resolve differently now.
func (t *ResourceTable) SetParameters(params *Config) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.params = *params
	for _, grp := range t.packageGroups {
		grp.bags = make(map[uint32]*bagState)
	}
}

// Parameters returns the current device configuration.
func (t *ResourceTable) Parameters() Config {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.params
}

// TableCount returns how many tables have been added.
func (t *ResourceTable) TableCount() int {
	return len(t.headers)
}

// TableStringBlock returns the value string pool of table block i, the
// index GetResource reports in BlockIndex.
func (t *ResourceTable) TableStringBlock(i int) (*StringPool, error) {
	if i < 0 || i >= len(t.headers) {
		return nil, errors.Wrapf(ErrBadIndex, "string block %d of %d", i, len(t.headers))
	}
	return &t.headers[i].values, nil
}

// TableCookie returns the cookie table block i was added with.
func (t *ResourceTable) TableCookie(i int) int32 {
	if i < 0 || i >= len(t.headers) {
		return -1
	}
	return t.headers[i].cookie
}

// BasePackages lists the name and id of every package group, which is what
// table dumps want.
func (t *ResourceTable) BasePackages() []ResourceName {
	var out []ResourceName
	for _, grp := range t.packageGroups {
		out = append(out, ResourceName{Package: grp.name})
	}
	return out
}

// PackageID returns the id of package group i.
func (t *ResourceTable) PackageID(i int) uint32 {
	if i < 0 || i >= len(t.packageGroups) {
		return 0
	}
	return t.packageGroups[i].id
}

// PackageName returns the name of package group i.
func (t *ResourceTable) PackageName(i int) string {
	if i < 0 || i >= len(t.packageGroups) {
		return ""
	}
	return t.packageGroups[i].name
}

// PackageCount returns the number of package groups.
func (t *ResourceTable) PackageCount() int {
	return len(t.packageGroups)
}

// Configurations lists every distinct configuration any type block in the
// table was compiled for.
func (t *ResourceTable) Configurations() []Config {
	var out []Config
	seen := func(cfg *Config) bool {
		for i := range out {
			if out[i].Diff(cfg) == 0 {
				return true
			}
		}
		return false
	}
	for _, grp := range t.packageGroups {
		for _, pkg := range grp.packages {
			for _, typ := range pkg.types {
				if typ == nil {
					continue
				}
				for _, typeOff := range typ.configs {
					c := chunk{data: pkg.header.data, off: typeOff}
					cfg, _, err := decodeConfig(pkg.header.data[typeOff+20 : typeOff+c.headerSize()])
					if err != nil {
						continue
					}
					if !seen(&cfg) {
						out = append(out, cfg)
					}
				}
			}
		}
	}
	return out
}

// Locales lists every distinct locale the table carries resources for.
func (t *ResourceTable) Locales() []string {
	var out []string
	for _, cfg := range t.Configurations() {
		loc := cfg.Locale()
		if loc == "" {
			continue
		}
		dup := false
		for _, have := range out {
			if have == loc {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, loc)
		}
	}
	return out
}
