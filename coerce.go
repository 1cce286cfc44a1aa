package arscparser

import (
	"math"
	"strconv"
	"strings"
	"unicode"

	"github.com/pkg/errors"
)

// Attribute bag entries carrying metadata rather than values use internal
// identifiers. The type entry restricts what an attribute may hold.
const (
	attrType  = 0x01000000
	attrMin   = 0x01000001
	attrMax   = 0x01000002
	attrL10N  = 0x01000003
	attrOther = 0x01000004
	attrZero  = 0x01000005
	attrOne   = 0x01000006
	attrTwo   = 0x01000007
	attrFew   = 0x01000008
	attrMany  = 0x01000009
)

// Bit mask of the value types an attribute accepts, stored in its bag
// under attrType.
const (
	AttrTypeAny       = 0x0000FFFF
	AttrTypeReference = 1 << 0
	AttrTypeString    = 1 << 1
	AttrTypeInteger   = 1 << 2
	AttrTypeBoolean   = 1 << 3
	AttrTypeColor     = 1 << 4
	AttrTypeFloat     = 1 << 5
	AttrTypeDimension = 1 << 6
	AttrTypeFraction  = 1 << 7
	AttrTypeEnum      = 1 << 16
	AttrTypeFlags     = 1 << 17
)

const (
	l10nNotRequired = 0
	l10nSuggested   = 1
)

// Accessor supplies resource knowledge the table itself lacks while
// coercing strings, such as identifiers of resources still being compiled.
type Accessor interface {
	GetCustomResource(pkg, typ, name string) uint32
	GetCustomResourceWithCreation(pkg, typ, name string, createIfNotFound bool) uint32
	GetRemappedPackage(pkg int) int
	GetAttributeType(attrID uint32) (uint32, bool)
	GetAttributeMin(attrID uint32) (uint32, bool)
	GetAttributeMax(attrID uint32) (uint32, bool)
	GetAttributeEnum(attrID uint32, name string) (ResValue, bool)
	GetAttributeFlags(attrID uint32, name string) (ResValue, bool)
	GetAttributeL10N(attrID uint32) uint32
	GetLocalizationSetting() bool
	ReportError(cookie interface{}, msg string)
}

// CoerceOptions direct StringToValue. The zero value coerces against any
// attribute type with no accessor.
type CoerceOptions struct {
	PreserveSpaces bool
	CoerceType     bool
	AttrID         uint32
	DefType        string
	DefPackage     string
	Accessor       Accessor
	AccessorCookie interface{}
	AttrType       uint32
	EnforcePrivate bool
}

var pseudoNames = map[string]uint32{
	"^type":  attrType,
	"^l10n":  attrL10N,
	"^min":   attrMin,
	"^max":   attrMax,
	"^other": attrOther,
	"^zero":  attrZero,
	"^one":   attrOne,
	"^two":   attrTwo,
	"^few":   attrFew,
	"^many":  attrMany,
}

// IdentifierForName resolves a resource name to its numeric identifier.
// The name may embed the package and type as "package:type/name", which
// wins over the defaults. Returns 0 when nothing matches.
func (t *ResourceTable) IdentifierForName(name, defType, defPackage string) uint32 {
	id, _ := t.identifierForName(name, defType, defPackage)
	return id
}

func (t *ResourceTable) identifierForName(name, defType, defPackage string) (uint32, uint32) {
	// Pseudo identifiers resolve even on an empty table.
	if strings.HasPrefix(name, "^") {
		if id, ok := pseudoNames[name]; ok {
			return id, entryFlagPublic
		}
		if idx, ok := strings.CutPrefix(name, "^index_"); ok && idx != "" {
			n, err := strconv.Atoi(idx)
			if err != nil || n&^0xFFFF != 0 {
				t.log.Warn("array resource index out of range", "name", name)
				return 0, 0
			}
			return makeArrayResID(uint32(n)), entryFlagPublic
		}
		return 0, 0
	}

	fakePublic := false
	if rest, ok := strings.CutPrefix(name, "@"); ok {
		name = rest
		if rest, ok := strings.CutPrefix(name, "*"); ok {
			fakePublic = true
			name = rest
		}
	}
	if name == "" {
		return 0, 0
	}

	pkg := defPackage
	if i := strings.LastIndexByte(name, ':'); i >= 0 {
		pkg = name[:i]
		name = name[i+1:]
	}
	typ := defType
	if i := strings.LastIndexByte(name, '/'); i >= 0 {
		typ = name[:i]
		name = name[i+1:]
	}
	if pkg == "" || typ == "" || name == "" {
		return 0, 0
	}

	for _, grp := range t.packageGroups {
		if grp.name != pkg {
			continue
		}

		ti, err := grp.basePackage.typeStrings.IndexOfString(typ)
		if err != nil {
			continue
		}
		ei, err := grp.basePackage.keyStrings.IndexOfString(name)
		if err != nil {
			continue
		}

		if ti >= len(grp.packages[0].types) || grp.packages[0].types[ti] == nil {
			continue
		}
		typSlot := grp.packages[0].types[ti]

		for _, configOff := range typSlot.configs {
			data := typSlot.header.data
			c := chunk{data: data, off: configOff}
			entryCount := int(c.u32(12))
			entriesStart := int(c.u32(16))
			indexOff := configOff + int(c.headerSize())

			for i := 0; i < entryCount; i++ {
				offset := chunk{data: data, off: indexOff}.u32(i * 4)
				if offset == entryNoEntry {
					continue
				}

				entryOff := int(offset) + entriesStart
				if entryOff > int(c.size())-entrySize || entryOff&3 != 0 {
					t.log.Warn("entry offset out of bounds while searching by name",
						"offset", entryOff, "type", ti+1, "entry", i)
					return 0, 0
				}
				e := chunk{data: data, off: configOff + entryOff}
				if int(e.u16(0)) < entrySize {
					return 0, 0
				}
				if int(e.u32(4)) != ei {
					continue
				}

				flags := uint32(0xFFFFFFFF)
				if i < len(typSlot.specFlags) {
					flags = typSlot.specFlags[i]
				}
				if fakePublic {
					flags |= entryFlagPublic
				}
				return resID(int(grp.id)-1, ti, i), flags
			}
		}
	}
	return 0, 0
}

// ExpandResourceRef splits a "@[*]package:type/name" style reference into
// its parts, falling back to defType and defPackage where the reference
// leaves them out. publicOnly reports whether the '*' private-access marker
// was absent.
func ExpandResourceRef(ref, defType, defPackage string) (pkg, typ, name string, publicOnly bool, err error) {
	publicOnly = true
	ref = strings.TrimPrefix(ref, "@")
	if rest, ok := strings.CutPrefix(ref, "*"); ok {
		publicOnly = false
		ref = rest
	}

	pkg = defPackage
	head := ref
	if i := strings.IndexByte(ref, '/'); i >= 0 {
		head = ref[:i]
	}
	if i := strings.LastIndexByte(head, ':'); i >= 0 {
		pkg = ref[:i]
		ref = ref[i+1:]
	}
	typ = defType
	if i := strings.IndexByte(ref, '/'); i >= 0 {
		typ = ref[:i]
		ref = ref[i+1:]
	}
	name = ref

	switch {
	case pkg == "":
		err = errors.New("no resource package specified")
	case typ == "":
		err = errors.New("no resource type specified")
	case name == "":
		err = errors.New("resource id cannot be an empty string")
	}
	return
}

func hexDigit(c rune) (uint32, bool) {
	switch {
	case c >= '0' && c <= '9':
		return uint32(c - '0'), true
	case c >= 'a' && c <= 'f':
		return uint32(c-'a') + 0xa, true
	case c >= 'A' && c <= 'F':
		return uint32(c-'A') + 0xa, true
	}
	return 0, false
}

type unitEntry struct {
	name  string
	typ   uint8
	unit  uint32
	scale float64
}

var unitNames = []unitEntry{
	{"px", TypeDimension, ComplexUnitPx, 1},
	{"dip", TypeDimension, ComplexUnitDip, 1},
	{"dp", TypeDimension, ComplexUnitDip, 1},
	{"sp", TypeDimension, ComplexUnitSp, 1},
	{"pt", TypeDimension, ComplexUnitPt, 1},
	{"in", TypeDimension, ComplexUnitIn, 1},
	{"mm", TypeDimension, ComplexUnitMm, 1},
	{"%", TypeFraction, ComplexUnitFraction, 1.0 / 100},
	{"%p", TypeFraction, ComplexUnitFractionParent, 1.0 / 100},
}

// parseUnit recognizes a unit suffix optionally followed by whitespace.
func parseUnit(s string) (typ uint8, unitBits uint32, scale float64, ok bool) {
	unit := strings.TrimRightFunc(s, unicode.IsSpace)
	if strings.ContainsFunc(unit, unicode.IsSpace) {
		return 0, 0, 0, false
	}
	for _, u := range unitNames {
		if u.name == unit {
			return u.typ, u.unit << ComplexUnitShift, u.scale, true
		}
	}
	return 0, 0, 0, false
}

// stringToInt parses a decimal or 0x-prefixed hex integer, tolerating
// surrounding whitespace. Overflow wraps the way 32-bit arithmetic does.
func stringToInt(s string) (ResValue, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return ResValue{}, false
	}

	r := []rune(s)
	i := 0
	neg := false
	if r[0] == '-' {
		neg = true
		i++
	}
	if i >= len(r) || r[i] < '0' || r[i] > '9' {
		return ResValue{}, false
	}

	out := ResValue{Size: resValueSize}
	var val int32
	if i+1 < len(r) && r[i] == '0' && r[i+1] == 'x' {
		out.DataType = TypeIntHex
		i += 2
		if i >= len(r) {
			return ResValue{}, false
		}
		for ; i < len(r); i++ {
			d, ok := hexDigit(r[i])
			if !ok {
				return ResValue{}, false
			}
			val = val*16 + int32(d)
		}
	} else {
		out.DataType = TypeIntDec
		for ; i < len(r); i++ {
			if r[i] < '0' || r[i] > '9' {
				return ResValue{}, false
			}
			val = val*10 + int32(r[i]-'0')
		}
	}
	if neg {
		val = -val
	}
	out.Data = uint32(val)
	return out, true
}

// stringToFloat parses a float with an optional dimension or fraction unit
// suffix, packing unit values into the complex fixed point encoding.
func stringToFloat(s string) (ResValue, bool) {
	s = strings.TrimLeftFunc(s, unicode.IsSpace)
	if s == "" {
		return ResValue{}, false
	}

	// longest parsable prefix, the rest may be a unit
	split := 0
	var f float64
	for i := 1; i <= len(s); i++ {
		v, err := strconv.ParseFloat(s[:i], 32)
		if err == nil {
			split = i
			f = v
		}
	}
	if split == 0 {
		return ResValue{}, false
	}
	rest := s[split:]

	out := ResValue{Size: resValueSize}
	if strings.TrimLeftFunc(rest, unicode.IsSpace) == "" {
		out.DataType = TypeFloat
		out.Data = math.Float32bits(float32(f))
		return out, true
	}

	typ, unitBits, scale, ok := parseUnit(rest)
	if !ok {
		return ResValue{}, false
	}
	out.DataType = typ
	out.Data = unitBits

	f *= scale
	neg := f < 0
	if neg {
		f = -f
	}
	bits := uint64(f*(1<<23) + 0.5)
	var radix, shift uint32
	switch {
	case bits&0x7fffff == 0:
		// no fraction, use the readable whole number form
		radix = ComplexRadix23p0
		shift = 23
	case bits&^uint64(0x7fffff) == 0:
		radix = ComplexRadix0p23
		shift = 0
	case bits&^uint64(0x7fffffff) == 0:
		radix = ComplexRadix8p15
		shift = 8
	case bits&^uint64(0x7fffffffff) == 0:
		radix = ComplexRadix16p7
		shift = 16
	default:
		radix = ComplexRadix23p0
		shift = 23
	}
	mantissa := int32((bits >> shift) & ComplexMantissaMask)
	if neg {
		mantissa = (-mantissa) & ComplexMantissaMask
	}
	out.Data |= radix<<ComplexRadixShift | uint32(mantissa)<<ComplexMantissaShift
	return out, true
}

func parseColor(s string) (ResValue, bool) {
	r := []rune(s)
	out := ResValue{Size: resValueSize}
	var color uint32
	ok := true

	hex := func(i int) uint32 {
		d, valid := hexDigit(r[i])
		if !valid {
			ok = false
		}
		return d
	}

	switch len(r) {
	case 4:
		out.DataType = TypeIntColorRgb4
		color = 0xFF000000 |
			hex(1)<<20 | hex(1)<<16 |
			hex(2)<<12 | hex(2)<<8 |
			hex(3)<<4 | hex(3)
	case 5:
		out.DataType = TypeIntColorArgb4
		color = hex(1)<<28 | hex(1)<<24 |
			hex(2)<<20 | hex(2)<<16 |
			hex(3)<<12 | hex(3)<<8 |
			hex(4)<<4 | hex(4)
	case 7:
		out.DataType = TypeIntColorRgb8
		color = 0xFF000000 |
			hex(1)<<20 | hex(2)<<16 |
			hex(3)<<12 | hex(4)<<8 |
			hex(5)<<4 | hex(6)
	case 9:
		out.DataType = TypeIntColorArgb8
		color = hex(1)<<28 | hex(2)<<24 |
			hex(3)<<20 | hex(4)<<16 |
			hex(5)<<12 | hex(6)<<8 |
			hex(7)<<4 | hex(8)
	default:
		ok = false
	}
	out.Data = color
	return out, ok
}

// StringToValue coerces a raw string the way resource compilers do,
// producing a typed value or, for plain strings, the unescaped text. The
// attribute identified by opts.AttrID constrains which value types are
// accepted.
func (t *ResourceTable) StringToValue(s string, opts CoerceOptions) (ResValue, string, error) {
	fail := func(msg string) (ResValue, string, error) {
		if opts.Accessor != nil {
			opts.Accessor.ReportError(opts.AccessorCookie, msg)
		}
		return ResValue{}, "", errors.New(msg)
	}

	localization := opts.Accessor != nil && opts.Accessor.GetLocalizationSetting()

	// Trim before unescaping so escapes can force whitespace in.
	if !opts.PreserveSpaces {
		r := []rune(s)
		i, j := 0, len(r)
		for i < j && unicode.IsSpace(r[i]) {
			i++
		}
		for j > i && unicode.IsSpace(r[j-1]) {
			j--
		}
		// a trailing backslash keeps the space after it
		if j > i && r[j-1] == '\\' && j < len(r) {
			j++
		}
		s = string(r[i:j])
	}

	attrTypeMask := opts.AttrType
	if attrTypeMask == 0 {
		attrTypeMask = AttrTypeAny
	}
	l10nReq := uint32(l10nNotRequired)
	attrMinVal := int32(-0x80000000)
	attrMaxVal := int32(0x7fffffff)
	fromAccessor := false

	if opts.AttrID != 0 && !isInternalResID(opts.AttrID) {
		bag, _, err := t.GetBag(opts.AttrID)
		if err == nil {
			for _, be := range bag {
				switch be.Name {
				case attrType:
					attrTypeMask = be.Value.Data
				case attrMin:
					attrMinVal = int32(be.Value.Data)
				case attrMax:
					attrMaxVal = int32(be.Value.Data)
				case attrL10N:
					l10nReq = be.Value.Data
				}
			}
		} else if opts.Accessor != nil {
			if at, ok := opts.Accessor.GetAttributeType(opts.AttrID); ok {
				fromAccessor = true
				attrTypeMask = at
				if at == AttrTypeEnum || at == AttrTypeFlags || at == AttrTypeInteger {
					if v, ok := opts.Accessor.GetAttributeMin(opts.AttrID); ok {
						attrMinVal = int32(v)
					}
					if v, ok := opts.Accessor.GetAttributeMax(opts.AttrID); ok {
						attrMaxVal = int32(v)
					}
				}
				if localization {
					l10nReq = opts.Accessor.GetAttributeL10N(opts.AttrID)
				}
			}
		}
	}

	canStringCoerce := opts.CoerceType && attrTypeMask&AttrTypeString != 0

	if strings.HasPrefix(s, "@") {
		// References may point at any type, the client checks the target.
		out := ResValue{Size: resValueSize, DataType: TypeReference}
		if s == "@null" {
			out.Data = 0
			return out, "", nil
		}

		ref := s[1:]
		createIfNotFound := false
		enforcePrivate := opts.EnforcePrivate
		if rest, ok := strings.CutPrefix(ref, "+"); ok && rest != "" {
			createIfNotFound = true
			ref = rest
		} else if rest, ok := strings.CutPrefix(ref, "*"); ok && rest != "" {
			enforcePrivate = false
			ref = rest
		}

		pkg, typ, name, _, err := ExpandResourceRef(ref, opts.DefType, opts.DefPackage)
		if err != nil {
			return fail(err.Error())
		}

		rid, specFlags := t.identifierForName(pkg+":"+typ+"/"+name, "", "")
		if rid != 0 {
			if enforcePrivate && specFlags&entryFlagPublic == 0 {
				return fail("resource is not public")
			}
			if opts.Accessor != nil {
				rid = resID(opts.Accessor.GetRemappedPackage(resPackage(rid)-1),
					resType(rid)-1, resEntry(rid))
			}
			out.Data = rid
			return out, "", nil
		}

		if opts.Accessor != nil {
			if rid := opts.Accessor.GetCustomResourceWithCreation(pkg, typ, name, createIfNotFound); rid != 0 {
				out.Data = rid
				return out, "", nil
			}
		}
		return fail("no resource found that matches the given name")
	}

	if l10nReq == l10nSuggested && localization {
		if opts.Accessor != nil {
			opts.Accessor.ReportError(opts.AccessorCookie, "this attribute must be localized")
		}
	}

	if strings.HasPrefix(s, "#") {
		out, ok := parseColor(s)
		if ok {
			if attrTypeMask&AttrTypeColor != 0 {
				return out, "", nil
			}
			if !canStringCoerce {
				return fail("color types not allowed")
			}
		} else if attrTypeMask&AttrTypeColor != 0 {
			return fail("color value not valid, must be #rgb, #argb, #rrggbb, or #aarrggbb")
		}
	}

	if strings.HasPrefix(s, "?") {
		out := ResValue{Size: resValueSize, DataType: TypeAttribute}

		pkg, typ, name, _, err := ExpandResourceRef(s[1:], "attr", opts.DefPackage)
		if err != nil {
			return fail(err.Error())
		}

		rid, specFlags := t.identifierForName(pkg+":"+typ+"/"+name, "", "")
		if rid != 0 {
			if opts.EnforcePrivate && specFlags&entryFlagPublic == 0 {
				return fail("attribute is not public")
			}
			if opts.Accessor != nil {
				rid = resID(opts.Accessor.GetRemappedPackage(resPackage(rid)-1),
					resType(rid)-1, resEntry(rid))
			}
			out.Data = rid
			return out, "", nil
		}

		if opts.Accessor != nil {
			if rid := opts.Accessor.GetCustomResource(pkg, typ, name); rid != 0 {
				out.Data = rid
				return out, "", nil
			}
		}
		return fail("no resource found that matches the given name")
	}

	if out, ok := stringToInt(s); ok {
		if attrTypeMask&AttrTypeInteger == 0 {
			// Let integers fall through to the float path when floats
			// are allowed, those accept any integer value.
			if !canStringCoerce && attrTypeMask&AttrTypeFloat == 0 {
				return fail("integer types not allowed")
			}
		} else {
			if int32(out.Data) < attrMinVal || int32(out.Data) > attrMaxVal {
				return fail("integer value out of range")
			}
			return out, "", nil
		}
	}

	if out, ok := stringToFloat(s); ok {
		switch {
		case out.DataType == TypeDimension:
			if attrTypeMask&AttrTypeDimension != 0 {
				return out, "", nil
			}
			if !canStringCoerce {
				return fail("dimension types not allowed")
			}
		case out.DataType == TypeFraction:
			if attrTypeMask&AttrTypeFraction != 0 {
				return out, "", nil
			}
			if !canStringCoerce {
				return fail("fraction types not allowed")
			}
		case attrTypeMask&AttrTypeFloat != 0:
			return out, "", nil
		default:
			if !canStringCoerce {
				return fail("float types not allowed")
			}
		}
	}

	if strings.EqualFold(s, "true") {
		if attrTypeMask&AttrTypeBoolean != 0 {
			return ResValue{Size: resValueSize, DataType: TypeIntBoolean, Data: 0xFFFFFFFF}, "", nil
		}
		if !canStringCoerce {
			return fail("boolean types not allowed")
		}
	}
	if strings.EqualFold(s, "false") {
		if attrTypeMask&AttrTypeBoolean != 0 {
			return ResValue{Size: resValueSize, DataType: TypeIntBoolean, Data: 0}, "", nil
		}
		if !canStringCoerce {
			return fail("boolean types not allowed")
		}
	}

	if attrTypeMask&AttrTypeEnum != 0 {
		if bag, _, err := t.GetBag(opts.AttrID); err == nil {
			for _, be := range bag {
				if isInternalResID(be.Name) {
					continue
				}
				rname, err := t.GetResourceName(be.Name)
				if err == nil && rname.Name == s {
					return ResValue{
						Size:     resValueSize,
						DataType: be.Value.DataType,
						Data:     be.Value.Data,
					}, "", nil
				}
			}
		}
		if fromAccessor {
			if out, ok := opts.Accessor.GetAttributeEnum(opts.AttrID, s); ok {
				return out, "", nil
			}
		}
	}

	if attrTypeMask&AttrTypeFlags != 0 {
		if bag, _, err := t.GetBag(opts.AttrID); err == nil {
			out := ResValue{Size: resValueSize, DataType: TypeIntHex}
			failed := false
			for _, flag := range strings.Split(s, "|") {
				found := false
				for _, be := range bag {
					if isInternalResID(be.Name) {
						continue
					}
					rname, err := t.GetResourceName(be.Name)
					if err == nil && rname.Name == flag {
						out.Data |= be.Value.Data
						found = true
						break
					}
				}
				if !found {
					failed = true
					break
				}
			}
			if !failed {
				return out, "", nil
			}
		}
		if fromAccessor {
			if out, ok := opts.Accessor.GetAttributeFlags(opts.AttrID, s); ok {
				return out, "", nil
			}
		}
	}

	if attrTypeMask&AttrTypeString == 0 {
		return fail("string types not allowed")
	}

	collected, err := collectString(s, opts.PreserveSpaces)
	if err != nil {
		return fail(err.Error())
	}
	return ResValue{Size: resValueSize, DataType: TypeString}, collected, nil
}

// collectString unescapes a resource string. Outside quotes whitespace
// runs collapse to one space, double quotes delimit verbatim sections and
// backslash escapes produce control characters, literal sigils and \uXXXX
// code units.
func collectString(s string, preserveSpaces bool) (string, error) {
	r := []rune(s)
	var out []rune
	var quoted rune

	for p := 0; p < len(r); {
		c := r[p]
		switch {
		case c == '\\':
			p++
			if p >= len(r) {
				return string(out), nil
			}
			switch r[p] {
			case 't':
				out = append(out, '\t')
			case 'n':
				out = append(out, '\n')
			case '#', '@', '?', '"', '\'', '\\':
				out = append(out, r[p])
			case 'u':
				var chr rune
				i := 0
				for i < 4 && p+1 < len(r) {
					p++
					i++
					d, ok := hexDigit(r[p])
					if !ok {
						return "", errors.New(`bad character in \u unicode escape sequence`)
					}
					chr = chr<<4 | rune(d)
				}
				out = append(out, chr)
			default:
				// unknown escapes vanish
			}
			p++

		case !preserveSpaces && c == '"' && (quoted == 0 || quoted == '"'):
			if quoted == 0 {
				quoted = c
			} else {
				quoted = 0
			}
			p++

		case !preserveSpaces && c == '\'' && (quoted == 0 || quoted == '\''):
			// A bare apostrophe is nearly always a missing escape.
			return "", errors.New(`apostrophe not preceded by \`)

		case !preserveSpaces && quoted == 0 && unicode.IsSpace(c) &&
			(c != ' ' || (p+1 < len(r) && unicode.IsSpace(r[p+1]))):
			out = append(out, ' ')
			p++
			for p < len(r) && unicode.IsSpace(r[p]) {
				p++
			}

		default:
			out = append(out, c)
			p++
		}
	}
	return string(out), nil
}
