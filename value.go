package arscparser

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"

	"github.com/pkg/errors"
)

// Res_value data types.
const (
	TypeNull      = 0x00
	TypeReference = 0x01
	TypeAttribute = 0x02
	TypeString    = 0x03
	TypeFloat     = 0x04
	TypeDimension = 0x05
	TypeFraction  = 0x06

	TypeFirstInt = 0x10

	TypeIntDec     = 0x10
	TypeIntHex     = 0x11
	TypeIntBoolean = 0x12

	TypeFirstColorInt = 0x1c

	TypeIntColorArgb8 = 0x1c
	TypeIntColorRgb8  = 0x1d
	TypeIntColorArgb4 = 0x1e
	TypeIntColorRgb4  = 0x1f

	TypeLastColorInt = 0x1f
	TypeLastInt      = 0x1f
)

// Complex value encoding: unit in the low nibble, radix selecting where the
// point sits in the 23-bit mantissa.
const (
	ComplexUnitShift = 0
	ComplexUnitMask  = 0xf

	ComplexUnitPx  = 0
	ComplexUnitDip = 1
	ComplexUnitSp  = 2
	ComplexUnitPt  = 3
	ComplexUnitIn  = 4
	ComplexUnitMm  = 5

	ComplexUnitFraction       = 0
	ComplexUnitFractionParent = 1

	ComplexRadixShift = 4
	ComplexRadixMask  = 0x3

	ComplexRadix23p0 = 0
	ComplexRadix16p7 = 1
	ComplexRadix8p15 = 2
	ComplexRadix0p23 = 3

	ComplexMantissaShift = 8
	ComplexMantissaMask  = 0xffffff
)

const resValueSize = 8

// ResValue is the 8-byte typed value record used by tables and binary XML
// attributes alike.
type ResValue struct {
	Size     uint16
	Res0     uint8
	DataType uint8
	Data     uint32
}

func decodeResValue(d []byte) (ResValue, error) {
	if len(d) < resValueSize {
		return ResValue{}, errors.Wrap(ErrBadType, "truncated value record")
	}
	v := ResValue{
		Size:     binary.LittleEndian.Uint16(d),
		Res0:     d[2],
		DataType: d[3],
		Data:     binary.LittleEndian.Uint32(d[4:]),
	}
	if int(v.Size) < resValueSize {
		return ResValue{}, errors.Wrapf(ErrBadType, "value record size %d too small", v.Size)
	}
	return v, nil
}

// IsComplex reports whether Data holds a dimension or fraction encoding.
func (v ResValue) IsComplex() bool {
	return v.DataType == TypeDimension || v.DataType == TypeFraction
}

// Float returns Data reinterpreted as a 32-bit float.
func (v ResValue) Float() float32 {
	return math.Float32frombits(v.Data)
}

// Multipliers to decode the fixed-point mantissa, indexed by radix.
var radixMults = [4]float64{
	1.0,
	1.0 / (1 << 7),
	1.0 / (1 << 15),
	1.0 / (1 << 23),
}

// ComplexValue decodes the fixed-point magnitude of a complex Data word.
func ComplexValue(data uint32) float64 {
	mantissa := int32(data & (ComplexMantissaMask << ComplexMantissaShift))
	radix := (data >> ComplexRadixShift) & ComplexRadixMask
	return float64(mantissa) * radixMults[radix] / (1 << ComplexMantissaShift)
}

var dimensionUnits = [...]string{"px", "dp", "sp", "pt", "in", "mm"}
var fractionUnits = [...]string{"%", "%p"}

func complexUnitName(data uint32, fraction bool) string {
	unit := (data >> ComplexUnitShift) & ComplexUnitMask
	if fraction {
		if int(unit) < len(fractionUnits) {
			return fractionUnits[unit]
		}
	} else if int(unit) < len(dimensionUnits) {
		return dimensionUnits[unit]
	}
	return fmt.Sprintf(" (unknown unit 0x%x)", unit)
}

// String renders the value the way resource tooling prints it. String
// values need the pool they index; pass nil to get a placeholder.
func (v ResValue) String(pool *StringPool) string {
	switch v.DataType {
	case TypeNull:
		return "@null"
	case TypeReference:
		return fmt.Sprintf("@0x%08x", v.Data)
	case TypeAttribute:
		return fmt.Sprintf("?0x%08x", v.Data)
	case TypeString:
		if pool != nil {
			if s, err := pool.StringAt(v.Data); err == nil {
				return s
			}
		}
		return fmt.Sprintf("(string idx %d)", v.Data)
	case TypeFloat:
		return strconv.FormatFloat(float64(v.Float()), 'g', -1, 32)
	case TypeDimension:
		mag := ComplexValue(v.Data)
		return strconv.FormatFloat(mag, 'f', -1, 64) + complexUnitName(v.Data, false)
	case TypeFraction:
		mag := ComplexValue(v.Data) * 100
		return strconv.FormatFloat(mag, 'f', -1, 64) + complexUnitName(v.Data, true)
	case TypeIntHex:
		return fmt.Sprintf("0x%x", v.Data)
	case TypeIntBoolean:
		return strconv.FormatBool(v.Data != 0)
	case TypeIntColorArgb8, TypeIntColorRgb8, TypeIntColorArgb4, TypeIntColorRgb4:
		return fmt.Sprintf("#%08x", v.Data)
	default:
		if v.DataType >= TypeFirstInt && v.DataType <= TypeLastInt {
			return strconv.FormatInt(int64(int32(v.Data)), 10)
		}
		return fmt.Sprintf("(type 0x%02x)=0x%08x", v.DataType, v.Data)
	}
}

// Resource identifier helpers. An identifier packs package, type and entry
// as 0xPPTTEEEE.
func resID(pkg, typ, entry int) uint32 {
	return uint32(pkg+1)<<24 | uint32(typ+1)<<16 | uint32(entry)
}

func resPackage(id uint32) int { return int(id >> 24) }
func resType(id uint32) int    { return int((id >> 16) & 0xFF) }
func resEntry(id uint32) int   { return int(id & 0xFFFF) }

// Internal attribute identifiers ("^type", "^min", ...) live in the
// reserved package 0x01 with a zero type byte.
func isInternalResID(id uint32) bool {
	return id&0xFFFF0000 != 0 && id&0xFF0000 == 0
}

func makeInternalResID(entry uint32) uint32 {
	return 0x01000000 | entry&0xFFFF
}

func makeArrayResID(entry uint32) uint32 {
	return 0x02000000 | entry&0xFFFF
}
