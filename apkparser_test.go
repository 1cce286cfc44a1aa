package arscparser_test

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"os"
	"testing"

	"github.com/avast/arscparser"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildApk(t *testing.T, files map[string][]byte) *arscparser.ZipReader {
	t.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, data := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())

	zr, err := arscparser.OpenZipReader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	t.Cleanup(func() { zr.Close() })
	return zr
}

func TestParseResourceTable(t *testing.T) {
	tbl, err := arscparser.ParseResourceTable(bytes.NewReader(testTableData()))
	require.NoError(t, err)

	v, err := tbl.GetResource(resAppName, false, 0)
	require.NoError(t, err)
	pool, err := tbl.TableStringBlock(v.BlockIndex)
	require.NoError(t, err)
	assert.Equal(t, "Example", v.Value.String(pool))
}

func TestParseApkWithZip(t *testing.T) {
	zr := buildApk(t, map[string][]byte{
		"resources.arsc":      testTableData(),
		"AndroidManifest.xml": testManifestData(),
	})

	var rec tokenRecorder
	resourcesErr, manifestErr := arscparser.ParseApkWithZip(zr, &rec)
	require.NoError(t, resourcesErr)
	require.NoError(t, manifestErr)

	require.Len(t, rec.tokens, 5)
	app, ok := rec.tokens[1].(xml.StartElement)
	require.True(t, ok)
	require.Len(t, app.Attr, 1)
	assert.Equal(t, "label", app.Attr[0].Name.Local)
	assert.Equal(t, "Example", app.Attr[0].Value)
}

func TestParseApkWithZipNoResources(t *testing.T) {
	zr := buildApk(t, map[string][]byte{
		"AndroidManifest.xml": testManifestData(),
	})

	var rec tokenRecorder
	resourcesErr, manifestErr := arscparser.ParseApkWithZip(zr, &rec)
	assert.ErrorIs(t, resourcesErr, os.ErrNotExist)
	require.NoError(t, manifestErr)

	// references stay unresolved without the table
	app, ok := rec.tokens[1].(xml.StartElement)
	require.True(t, ok)
	assert.Equal(t, "@7f020000", app.Attr[0].Value)
}

func TestParseApkWithZipNoManifest(t *testing.T) {
	zr := buildApk(t, map[string][]byte{
		"resources.arsc": testTableData(),
	})

	var rec tokenRecorder
	resourcesErr, manifestErr := arscparser.ParseApkWithZip(zr, &rec)
	assert.NoError(t, resourcesErr)
	assert.Error(t, manifestErr)
}

func TestParseApkPlainTextManifest(t *testing.T) {
	zr := buildApk(t, map[string][]byte{
		"resources.arsc":      testTableData(),
		"AndroidManifest.xml": []byte(`<?xml version="1.0"?><manifest/>`),
	})

	var rec tokenRecorder
	_, manifestErr := arscparser.ParseApkWithZip(zr, &rec)
	assert.ErrorIs(t, manifestErr, arscparser.ErrPlainTextManifest)
}
