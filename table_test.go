package arscparser_test

import (
	"testing"

	"github.com/avast/arscparser"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTableAdd(t *testing.T) {
	tbl := testTable(t)

	assert.Equal(t, 1, tbl.TableCount())
	assert.Equal(t, int32(42), tbl.TableCookie(0))
	assert.Equal(t, 1, tbl.PackageCount())
	assert.Equal(t, uint32(0x7f), tbl.PackageID(0))
	assert.Equal(t, "com.example", tbl.PackageName(0))

	pool, err := tbl.TableStringBlock(0)
	require.NoError(t, err)
	s, err := pool.StringAt(0)
	require.NoError(t, err)
	assert.Equal(t, "Example", s)

	_, err = tbl.TableStringBlock(1)
	assert.ErrorIs(t, err, arscparser.ErrBadIndex)
}

func TestTableAddInvalid(t *testing.T) {
	t.Run("wrong chunk type", func(t *testing.T) {
		data := testTableData()
		data[0] = 0x03
		err := arscparser.NewResourceTable(nil).Add(data, 0, false, nil)
		assert.ErrorIs(t, err, arscparser.ErrBadType)
	})

	t.Run("missing packages", func(t *testing.T) {
		// declare one more package than the chunk carries
		data := testTableData()
		data[8]++
		err := arscparser.NewResourceTable(nil).Add(data, 0, false, nil)
		assert.ErrorIs(t, err, arscparser.ErrBadType)
	})

	t.Run("no value pool", func(t *testing.T) {
		var out []byte
		out = append(out, buildTable(poolSpec{})...)
		// truncate the empty pool away and fix up the size
		out = out[:12]
		out[4], out[5] = 12, 0
		out[8] = 0
		err := arscparser.NewResourceTable(nil).Add(out, 0, false, nil)
		assert.ErrorIs(t, err, arscparser.ErrBadType)
	})

	t.Run("empty data", func(t *testing.T) {
		assert.NoError(t, arscparser.NewResourceTable(nil).Add(nil, 0, false, nil))
	})
}

func TestGetResource(t *testing.T) {
	tbl := testTable(t)

	v, err := tbl.GetResource(resAppName, false, 0)
	require.NoError(t, err)
	assert.Equal(t, uint8(arscparser.TypeString), v.Value.DataType)
	assert.Equal(t, uint32(0), v.Value.Data)
	assert.Equal(t, uint32(0x0002), v.SpecFlags)
	assert.Equal(t, 0, v.BlockIndex)

	pool, err := tbl.TableStringBlock(v.BlockIndex)
	require.NoError(t, err)
	s, err := pool.StringAt(v.Value.Data)
	require.NoError(t, err)
	assert.Equal(t, "Example", s)

	// dimension without a spec chunk reports all-ones spec flags
	v, err = tbl.GetResource(resSize, false, 0)
	require.NoError(t, err)
	assert.Equal(t, uint32(0xFFFFFFFF), v.SpecFlags)

	t.Run("bad ids", func(t *testing.T) {
		_, err := tbl.GetResource(0x00020000, false, 0)
		assert.ErrorIs(t, err, arscparser.ErrBadIndex)

		_, err = tbl.GetResource(0x7f000000, false, 0)
		assert.ErrorIs(t, err, arscparser.ErrBadIndex)

		_, err = tbl.GetResource(0x7f020005, false, 0)
		assert.Error(t, err)
	})

	t.Run("complex entries are not values", func(t *testing.T) {
		_, err := tbl.GetResource(resParent, false, 0)
		assert.ErrorIs(t, err, arscparser.ErrNameNotFound)
	})
}

func TestGetResourceLocalized(t *testing.T) {
	tbl := testTable(t)

	v, err := tbl.GetResource(resGreeting, false, 0)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), v.Value.Data) // "hello"

	tbl.SetParameters(&arscparser.Config{Language: [2]uint8{'d', 'e'}})
	params := tbl.Parameters()
	assert.Equal(t, "de", params.Locale())

	v, err = tbl.GetResource(resGreeting, false, 0)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), v.Value.Data) // "hallo"
	assert.Equal(t, "de", v.Config.Locale())

	// app_name only exists in the default configuration
	v, err = tbl.GetResource(resAppName, false, 0)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), v.Value.Data)

	tbl.SetParameters(&arscparser.Config{})
	v, err = tbl.GetResource(resGreeting, false, 0)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), v.Value.Data)
}

func TestGetResourceDensity(t *testing.T) {
	tbl := testTable(t)

	v, err := tbl.GetResource(resSize, false, 0)
	require.NoError(t, err)
	assert.Equal(t, uint32(12<<8|arscparser.ComplexUnitDip), v.Value.Data)

	v, err = tbl.GetResource(resSize, false, 480)
	require.NoError(t, err)
	assert.Equal(t, uint32(24<<8|arscparser.ComplexUnitDip), v.Value.Data)
	assert.Equal(t, uint16(480), v.Config.Density)
}

func TestResolveReference(t *testing.T) {
	tbl := testTable(t)

	v := &arscparser.ResourceValue{
		Value: arscparser.ResValue{Size: 8, DataType: arscparser.TypeReference, Data: resAppName},
	}
	require.NoError(t, tbl.ResolveReference(v))
	assert.Equal(t, uint8(arscparser.TypeString), v.Value.DataType)
	assert.Equal(t, uint32(0), v.Value.Data)

	// lookup misses leave the reference in place for the caller
	v = &arscparser.ResourceValue{
		Value: arscparser.ResValue{Size: 8, DataType: arscparser.TypeReference, Data: 0x7f060000},
	}
	require.NoError(t, tbl.ResolveReference(v))
	assert.Equal(t, uint8(arscparser.TypeReference), v.Value.DataType)

	// references into unknown packages are a hard error
	v = &arscparser.ResourceValue{
		Value: arscparser.ResValue{Size: 8, DataType: arscparser.TypeReference, Data: 0x01040000},
	}
	assert.ErrorIs(t, tbl.ResolveReference(v), arscparser.ErrBadIndex)
}

func TestGetResourceName(t *testing.T) {
	tbl := testTable(t)

	name, err := tbl.GetResourceName(resGreeting)
	require.NoError(t, err)
	assert.Equal(t, arscparser.ResourceName{
		Package: "com.example", Type: "string", Name: "greeting",
	}, name)

	name, err = tbl.GetResourceName(resParent)
	require.NoError(t, err)
	assert.Equal(t, "Parent", name.Name)
	assert.Equal(t, "style", name.Type)

	_, err = tbl.GetResourceName(0x7f020005)
	assert.Error(t, err)
}

func TestConfigurationsAndLocales(t *testing.T) {
	tbl := testTable(t)

	configs := tbl.Configurations()
	assert.Len(t, configs, 3) // default, de, 480dpi

	assert.Equal(t, []string{"de"}, tbl.Locales())
}

func TestBasePackages(t *testing.T) {
	tbl := testTable(t)
	pkgs := tbl.BasePackages()
	require.Len(t, pkgs, 1)
	assert.Equal(t, "com.example", pkgs[0].Package)
}
