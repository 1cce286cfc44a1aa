package arscparser_test

import (
	"testing"

	"github.com/avast/arscparser"
	"github.com/stretchr/testify/assert"
)

func cfgLocale(lang, country string) arscparser.Config {
	var c arscparser.Config
	c.Language = [2]uint8{lang[0], lang[1]}
	if country != "" {
		c.Country = [2]uint8{country[0], country[1]}
	}
	return c
}

func TestConfigMatch(t *testing.T) {
	var def arscparser.Config
	de := cfgLocale("de", "")
	en := cfgLocale("en", "")

	// an unset request axis matches any candidate
	assert.True(t, def.Match(&def))
	assert.True(t, de.Match(&de))
	assert.True(t, de.Match(&def))
	assert.False(t, de.Match(&en))

	// mcc/mnc are exact
	mcc := arscparser.Config{Mcc: 310, Mnc: 4}
	assert.True(t, mcc.Match(&arscparser.Config{Mcc: 310, Mnc: 4}))
	assert.False(t, mcc.Match(&arscparser.Config{Mcc: 310}))
	assert.False(t, mcc.Match(&def))

	// dp widths are lower bounds
	sw := arscparser.Config{SmallestScreenWidthDp: 600}
	assert.True(t, sw.Match(&arscparser.Config{SmallestScreenWidthDp: 720}))
	assert.False(t, sw.Match(&arscparser.Config{SmallestScreenWidthDp: 480}))

	// sdk version caps the candidate
	v21 := arscparser.Config{SDKVersion: 21}
	assert.True(t, v21.Match(&arscparser.Config{SDKVersion: 23}))
	assert.False(t, v21.Match(&arscparser.Config{SDKVersion: 19}))
	assert.True(t, v21.Match(&def))

	// density never filters, only influences the choice
	hdpi := arscparser.Config{Density: 240}
	assert.True(t, hdpi.Match(&def))
}

func TestConfigIsMoreSpecificThan(t *testing.T) {
	var def arscparser.Config
	de := cfgLocale("de", "")
	deDE := cfgLocale("de", "DE")

	assert.True(t, de.IsMoreSpecificThan(&def))
	assert.False(t, def.IsMoreSpecificThan(&de))
	assert.True(t, deDE.IsMoreSpecificThan(&de))
	assert.False(t, de.IsMoreSpecificThan(&de))

	// mcc outranks locale
	mcc := arscparser.Config{Mcc: 310}
	assert.True(t, mcc.IsMoreSpecificThan(&de))

	// density never makes a configuration more specific
	hdpi := arscparser.Config{Density: 240}
	assert.False(t, hdpi.IsMoreSpecificThan(&def))
	assert.False(t, def.IsMoreSpecificThan(&hdpi))
}

func TestConfigIsBetterThan(t *testing.T) {
	var def arscparser.Config
	de := cfgLocale("de", "")

	req := cfgLocale("de", "")
	assert.True(t, de.IsBetterThan(&def, &req))
	assert.False(t, def.IsBetterThan(&de, &req))

	// nil request degrades to specificity
	assert.True(t, de.IsBetterThan(&def, nil))

	t.Run("density", func(t *testing.T) {
		hdpi := arscparser.Config{Density: 240}
		xxhdpi := arscparser.Config{Density: 480}

		req := arscparser.Config{Density: 480}
		assert.True(t, xxhdpi.IsBetterThan(&hdpi, &req))
		assert.False(t, hdpi.IsBetterThan(&xxhdpi, &req))

		// scaling down beats scaling up
		req = arscparser.Config{Density: 400}
		assert.True(t, xxhdpi.IsBetterThan(&hdpi, &req))

		req = arscparser.Config{Density: 160}
		assert.False(t, xxhdpi.IsBetterThan(&hdpi, &req))
	})

	t.Run("sdk", func(t *testing.T) {
		v19 := arscparser.Config{SDKVersion: 19}
		v21 := arscparser.Config{SDKVersion: 21}
		req := arscparser.Config{SDKVersion: 23}
		assert.True(t, v21.IsBetterThan(&v19, &req))
		assert.False(t, v19.IsBetterThan(&v21, &req))
	})
}

func TestConfigDiff(t *testing.T) {
	var def arscparser.Config
	de := cfgLocale("de", "")
	hdpiDe := cfgLocale("de", "")
	hdpiDe.Density = 240

	assert.Equal(t, uint32(0), def.Diff(&def))
	assert.Equal(t, uint32(arscparser.ConfigLocale), de.Diff(&def))
	assert.Equal(t, uint32(arscparser.ConfigLocale|arscparser.ConfigDensity), hdpiDe.Diff(&def))
	assert.Equal(t, uint32(arscparser.ConfigDensity), hdpiDe.Diff(&de))
}

func TestConfigString(t *testing.T) {
	var def arscparser.Config
	assert.Equal(t, "default", def.String())
	assert.Equal(t, "", def.Locale())

	c := cfgLocale("de", "DE")
	assert.Equal(t, "de-DE", c.Locale())
	assert.Equal(t, "de-DE", c.String())

	c = cfgLocale("en", "")
	c.Mcc = 310
	c.Density = 480
	c.SDKVersion = 21
	assert.Equal(t, "mcc310-en-xxhdpi-v21", c.String())

	c = arscparser.Config{Density: 0xFFFF, ScreenWidth: 1080, ScreenHeight: 1920}
	assert.Equal(t, "anydpi-1080x1920", c.String())
}
