package arscparser_test

import (
	"math"
	"testing"

	"github.com/avast/arscparser"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResValueString(t *testing.T) {
	pool := poolSpec{strs: []string{"hello"}}
	var sp arscparser.StringPool
	require.NoError(t, sp.SetTo(buildPool(pool), false))

	cases := []struct {
		name string
		v    arscparser.ResValue
		want string
	}{
		{"null", arscparser.ResValue{DataType: arscparser.TypeNull}, "@null"},
		{"reference", arscparser.ResValue{DataType: arscparser.TypeReference, Data: 0x7f020000}, "@0x7f020000"},
		{"attribute", arscparser.ResValue{DataType: arscparser.TypeAttribute, Data: 0x7f010000}, "?0x7f010000"},
		{"string", arscparser.ResValue{DataType: arscparser.TypeString, Data: 0}, "hello"},
		{"float", arscparser.ResValue{DataType: arscparser.TypeFloat, Data: math.Float32bits(1.5)}, "1.5"},
		{"dimension", arscparser.ResValue{DataType: arscparser.TypeDimension, Data: 12<<8 | arscparser.ComplexUnitDip}, "12dp"},
		{"fraction", arscparser.ResValue{DataType: arscparser.TypeFraction,
			Data: 0x400000<<8 | arscparser.ComplexRadix0p23<<4}, "50%"},
		{"hex", arscparser.ResValue{DataType: arscparser.TypeIntHex, Data: 0x10}, "0x10"},
		{"bool", arscparser.ResValue{DataType: arscparser.TypeIntBoolean, Data: 0xFFFFFFFF}, "true"},
		{"color", arscparser.ResValue{DataType: arscparser.TypeIntColorRgb8, Data: 0xFFFF0000}, "#ffff0000"},
		{"dec", arscparser.ResValue{DataType: arscparser.TypeIntDec, Data: 0xFFFFFFFE}, "-2"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, c.v.String(&sp))
		})
	}

	// string values degrade to a placeholder without a pool
	v := arscparser.ResValue{DataType: arscparser.TypeString, Data: 3}
	assert.Equal(t, "(string idx 3)", v.String(nil))
}

func TestComplexValue(t *testing.T) {
	// 12dp: whole-number mantissa
	assert.Equal(t, 12.0, arscparser.ComplexValue(12<<8|arscparser.ComplexUnitDip))
	// 0.5 in the 0.23 radix
	assert.Equal(t, 0.5, arscparser.ComplexValue(0x400000<<8|arscparser.ComplexRadix0p23<<4))
}

func TestResValueHelpers(t *testing.T) {
	dim := arscparser.ResValue{DataType: arscparser.TypeDimension}
	assert.True(t, dim.IsComplex())
	assert.False(t, arscparser.ResValue{DataType: arscparser.TypeIntDec}.IsComplex())

	f := arscparser.ResValue{DataType: arscparser.TypeFloat, Data: math.Float32bits(2.25)}
	assert.Equal(t, float32(2.25), f.Float())
}
