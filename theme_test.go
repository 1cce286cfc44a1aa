package arscparser_test

import (
	"testing"

	"github.com/avast/arscparser"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestThemeApplyStyle(t *testing.T) {
	tbl := testTable(t)
	th := arscparser.NewTheme(tbl)
	assert.Same(t, tbl, th.Table())

	require.NoError(t, th.ApplyStyle(resChild, false))

	v, err := th.GetAttribute(resMyattr)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), v.Value.Data)

	v, err = th.GetAttribute(resMaxattr)
	require.NoError(t, err)
	assert.Equal(t, uint32(3), v.Value.Data)

	// without force the earlier values win
	require.NoError(t, th.ApplyStyle(resParent, false))
	v, err = th.GetAttribute(resMaxattr)
	require.NoError(t, err)
	assert.Equal(t, uint32(3), v.Value.Data)

	// force overwrites
	require.NoError(t, th.ApplyStyle(resParent, true))
	v, err = th.GetAttribute(resMaxattr)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), v.Value.Data)
}

func TestThemeAttributeRedirect(t *testing.T) {
	tbl := testTable(t)
	th := arscparser.NewTheme(tbl)

	require.NoError(t, th.ApplyStyle(resParent, false))
	// Alias points myattr at maxattr
	require.NoError(t, th.ApplyStyle(resAlias, true))

	v, err := th.GetAttribute(resMyattr)
	require.NoError(t, err)
	assert.Equal(t, uint8(arscparser.TypeIntDec), v.Value.DataType)
	assert.Equal(t, uint32(2), v.Value.Data)
}

func TestThemeGetAttributeMisses(t *testing.T) {
	tbl := testTable(t)
	th := arscparser.NewTheme(tbl)

	_, err := th.GetAttribute(resMyattr)
	assert.ErrorIs(t, err, arscparser.ErrBadIndex)

	require.NoError(t, th.ApplyStyle(resParent, false))
	_, err = th.GetAttribute(0x7f010005)
	assert.ErrorIs(t, err, arscparser.ErrBadIndex)
}

func TestThemeResolveAttributeReference(t *testing.T) {
	tbl := testTable(t)
	th := arscparser.NewTheme(tbl)
	require.NoError(t, th.ApplyStyle(resParent, false))

	v := &arscparser.ResourceValue{
		Value: arscparser.ResValue{Size: 8, DataType: arscparser.TypeAttribute, Data: resMaxattr},
	}
	require.NoError(t, th.ResolveAttributeReference(v))
	assert.Equal(t, uint8(arscparser.TypeIntDec), v.Value.DataType)
	assert.Equal(t, uint32(2), v.Value.Data)
}

func TestThemeSetTo(t *testing.T) {
	tbl := testTable(t)
	src := arscparser.NewTheme(tbl)
	require.NoError(t, src.ApplyStyle(resChild, false))

	dst := arscparser.NewTheme(tbl)
	dst.SetTo(src)

	v, err := dst.GetAttribute(resMaxattr)
	require.NoError(t, err)
	assert.Equal(t, uint32(3), v.Value.Data)

	// copies are independent
	require.NoError(t, dst.ApplyStyle(resParent, true))
	v, err = src.GetAttribute(resMaxattr)
	require.NoError(t, err)
	assert.Equal(t, uint32(3), v.Value.Data)

	dst.Clear()
	_, err = dst.GetAttribute(resMaxattr)
	assert.ErrorIs(t, err, arscparser.ErrBadIndex)
}
