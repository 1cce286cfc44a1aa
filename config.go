package arscparser

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// Screen layout bit groups.
const (
	maskScreenSize   = 0x0f
	screenSizeNormal = 0x02
	maskScreenLong   = 0x30
	maskLayoutDir    = 0xC0

	maskUIModeType  = 0x0f
	maskUIModeNight = 0x30

	maskKeysHidden = 0x03
	keysHiddenNo   = 0x01
	keysHiddenSoft = 0x03
	maskNavHidden  = 0x0c

	densityDefault = 160
)

// Bits reported by Diff for each axis two configurations disagree on.
const (
	ConfigMcc          = 0x0001
	ConfigMnc          = 0x0002
	ConfigLocale       = 0x0004
	ConfigTouchscreen  = 0x0008
	ConfigKeyboard     = 0x0010
	ConfigKeyboardHid  = 0x0020
	ConfigNavigation   = 0x0040
	ConfigOrientation  = 0x0080
	ConfigDensity      = 0x0100
	ConfigScreenSize   = 0x0200
	ConfigVersion      = 0x0400
	ConfigScreenLayout = 0x0800
	ConfigUIMode       = 0x1000
	ConfigSmallestSize = 0x2000
	ConfigLayoutDir    = 0x4000
)

// configKnownSize is how much of the on-disk record this implementation
// understands. Larger records are accepted, the tail is ignored.
const configKnownSize = 36

// Config describes the device configuration a resource value applies to.
// The zero value is the default configuration that matches everything.
type Config struct {
	Size uint32

	Mcc uint16
	Mnc uint16

	Language [2]uint8
	Country  [2]uint8

	Orientation uint8
	Touchscreen uint8
	Density     uint16

	Keyboard   uint8
	Navigation uint8
	InputFlags uint8
	InputPad0  uint8

	ScreenWidth  uint16
	ScreenHeight uint16

	SDKVersion   uint16
	MinorVersion uint16

	ScreenLayout          uint8
	UIMode                uint8
	SmallestScreenWidthDp uint16

	ScreenWidthDp  uint16
	ScreenHeightDp uint16
}

// decodeConfig reads a configuration record of self-declared size. Fields
// past what the record carries stay zero, fields past configKnownSize are
// skipped.
func decodeConfig(d []byte) (Config, int, error) {
	if len(d) < 4 {
		return Config{}, 0, ErrBadType
	}
	declared := binary.LittleEndian.Uint32(d)
	if declared < 4 || uint64(declared) > uint64(len(d)) {
		return Config{}, 0, ErrBadType
	}

	var buf [configKnownSize]byte
	n := int(declared)
	if n > configKnownSize {
		copy(buf[:], d[:configKnownSize])
	} else {
		copy(buf[:], d[:n])
	}

	c := Config{
		Size:        declared,
		Mcc:         binary.LittleEndian.Uint16(buf[4:]),
		Mnc:         binary.LittleEndian.Uint16(buf[6:]),
		Language:    [2]uint8{buf[8], buf[9]},
		Country:     [2]uint8{buf[10], buf[11]},
		Orientation: buf[12],
		Touchscreen: buf[13],
		Density:     binary.LittleEndian.Uint16(buf[14:]),
		Keyboard:    buf[16],
		Navigation:  buf[17],
		InputFlags:  buf[18],
		InputPad0:   buf[19],

		ScreenWidth:  binary.LittleEndian.Uint16(buf[20:]),
		ScreenHeight: binary.LittleEndian.Uint16(buf[22:]),
		SDKVersion:   binary.LittleEndian.Uint16(buf[24:]),
		MinorVersion: binary.LittleEndian.Uint16(buf[26:]),

		ScreenLayout:          buf[28],
		UIMode:                buf[29],
		SmallestScreenWidthDp: binary.LittleEndian.Uint16(buf[30:]),
		ScreenWidthDp:         binary.LittleEndian.Uint16(buf[32:]),
		ScreenHeightDp:        binary.LittleEndian.Uint16(buf[34:]),
	}
	return c, n, nil
}

// Match reports whether a resource with this configuration is usable under
// settings. Unset axes on either side always match.
func (c *Config) Match(settings *Config) bool {
	// imsi
	if settings.Mcc == 0 {
		if c.Mcc != 0 {
			return false
		}
	} else if c.Mcc != 0 && c.Mcc != settings.Mcc {
		return false
	}
	if settings.Mnc == 0 {
		if c.Mnc != 0 {
			return false
		}
	} else if c.Mnc != 0 && c.Mnc != settings.Mnc {
		return false
	}

	// locale
	if settings.Language[0] != 0 && c.Language[0] != 0 &&
		!(settings.Language[0] == c.Language[0] && settings.Language[1] == c.Language[1]) {
		return false
	}
	if settings.Country[0] != 0 && c.Country[0] != 0 &&
		!(settings.Country[0] == c.Country[0] && settings.Country[1] == c.Country[1]) {
		return false
	}

	// screen layout
	if dir := c.ScreenLayout & maskLayoutDir; dir != 0 && dir != settings.ScreenLayout&maskLayoutDir {
		return false
	}
	if size := c.ScreenLayout & maskScreenSize; size != 0 && size > settings.ScreenLayout&maskScreenSize {
		return false
	}
	if long := c.ScreenLayout & maskScreenLong; long != 0 && long != settings.ScreenLayout&maskScreenLong {
		return false
	}

	// ui mode
	if typ := c.UIMode & maskUIModeType; typ != 0 && typ != settings.UIMode&maskUIModeType {
		return false
	}
	if night := c.UIMode & maskUIModeNight; night != 0 && night != settings.UIMode&maskUIModeNight {
		return false
	}

	// screen size dp
	if c.SmallestScreenWidthDp != 0 && c.SmallestScreenWidthDp > settings.SmallestScreenWidthDp {
		return false
	}
	if c.ScreenWidthDp != 0 && c.ScreenWidthDp > settings.ScreenWidthDp {
		return false
	}
	if c.ScreenHeightDp != 0 && c.ScreenHeightDp > settings.ScreenHeightDp {
		return false
	}

	// screen type
	if c.Orientation != 0 && c.Orientation != settings.Orientation {
		return false
	}
	if c.Touchscreen != 0 && c.Touchscreen != settings.Touchscreen {
		return false
	}

	// input
	if c.InputFlags != 0 {
		keysHidden := c.InputFlags & maskKeysHidden
		setKeysHidden := settings.InputFlags & maskKeysHidden
		if keysHidden != 0 && keysHidden != setKeysHidden {
			// A soft keyboard can be hidden, so "no keys hidden"
			// still serves it.
			if keysHidden != keysHiddenNo || setKeysHidden != keysHiddenSoft {
				return false
			}
		}
		navHidden := c.InputFlags & maskNavHidden
		if navHidden != 0 && navHidden != settings.InputFlags&maskNavHidden {
			return false
		}
	}
	if c.Keyboard != 0 && c.Keyboard != settings.Keyboard {
		return false
	}
	if c.Navigation != 0 && c.Navigation != settings.Navigation {
		return false
	}

	// screen size
	if c.ScreenWidth != 0 && c.ScreenWidth > settings.ScreenWidth {
		return false
	}
	if c.ScreenHeight != 0 && c.ScreenHeight > settings.ScreenHeight {
		return false
	}

	// version
	if settings.SDKVersion != 0 && c.SDKVersion != 0 && c.SDKVersion > settings.SDKVersion {
		return false
	}
	if settings.MinorVersion != 0 && c.MinorVersion != 0 && c.MinorVersion != settings.MinorVersion {
		return false
	}

	return true
}

// IsMoreSpecificThan reports whether this configuration constrains more
// axes than o. Axes are compared in priority order, the first one where
// exactly one side is set decides.
func (c *Config) IsMoreSpecificThan(o *Config) bool {
	type axis struct{ mine, other bool }
	axes := []axis{
		{c.Mcc != 0, o.Mcc != 0},
		{c.Mnc != 0, o.Mnc != 0},
		{c.Language[0] != 0, o.Language[0] != 0},
		{c.Country[0] != 0, o.Country[0] != 0},
		{c.ScreenLayout&maskLayoutDir != 0, o.ScreenLayout&maskLayoutDir != 0},
		{c.SmallestScreenWidthDp != 0, o.SmallestScreenWidthDp != 0},
		{c.ScreenWidthDp != 0, o.ScreenWidthDp != 0},
		{c.ScreenHeightDp != 0, o.ScreenHeightDp != 0},
		{c.ScreenLayout&maskScreenSize != 0, o.ScreenLayout&maskScreenSize != 0},
		{c.ScreenLayout&maskScreenLong != 0, o.ScreenLayout&maskScreenLong != 0},
		{c.Orientation != 0, o.Orientation != 0},
		{c.UIMode&maskUIModeType != 0, o.UIMode&maskUIModeType != 0},
		{c.UIMode&maskUIModeNight != 0, o.UIMode&maskUIModeNight != 0},
		// density is never more specific, it only ranks in IsBetterThan
		{c.Touchscreen != 0, o.Touchscreen != 0},
		{c.InputFlags&maskKeysHidden != 0, o.InputFlags&maskKeysHidden != 0},
		{c.InputFlags&maskNavHidden != 0, o.InputFlags&maskNavHidden != 0},
		{c.Keyboard != 0, o.Keyboard != 0},
		{c.Navigation != 0, o.Navigation != 0},
		{c.ScreenWidth != 0, o.ScreenWidth != 0},
		{c.ScreenHeight != 0, o.ScreenHeight != 0},
		{c.SDKVersion != 0, o.SDKVersion != 0},
		{c.MinorVersion != 0, o.MinorVersion != 0},
	}
	for _, a := range axes {
		if a.mine != a.other {
			return a.mine
		}
	}
	return false
}

// IsBetterThan reports whether this configuration serves the requested one
// better than o does. Both receivers are assumed to Match the request
// already. A nil request degrades to specificity comparison.
func (c *Config) IsBetterThan(o *Config, r *Config) bool {
	if r == nil {
		return c.IsMoreSpecificThan(o)
	}

	// imsi
	if c.Mcc != 0 || c.Mnc != 0 || o.Mcc != 0 || o.Mnc != 0 {
		if c.Mcc != o.Mcc && r.Mcc != 0 {
			return c.Mcc != 0
		}
		if c.Mnc != o.Mnc && r.Mnc != 0 {
			return c.Mnc != 0
		}
	}

	// locale
	if c.Language[0] != 0 || c.Country[0] != 0 || o.Language[0] != 0 || o.Country[0] != 0 {
		if c.Language[0] != o.Language[0] && r.Language[0] != 0 {
			return c.Language[0] != 0
		}
		if c.Country[0] != o.Country[0] && r.Country[0] != 0 {
			return c.Country[0] != 0
		}
	}

	// layout direction
	if c.ScreenLayout != 0 || o.ScreenLayout != 0 {
		myDir := c.ScreenLayout & maskLayoutDir
		oDir := o.ScreenLayout & maskLayoutDir
		if myDir != oDir && r.ScreenLayout&maskLayoutDir != 0 {
			return myDir > oDir
		}
	}

	// smallest screen width dp
	if c.SmallestScreenWidthDp != 0 || o.SmallestScreenWidthDp != 0 {
		if c.SmallestScreenWidthDp != o.SmallestScreenWidthDp {
			return c.SmallestScreenWidthDp > o.SmallestScreenWidthDp
		}
	}

	// screen size dp, closest fit wins
	if c.ScreenWidthDp != 0 || c.ScreenHeightDp != 0 || o.ScreenWidthDp != 0 || o.ScreenHeightDp != 0 {
		myDelta, otherDelta := 0, 0
		if r.ScreenWidthDp != 0 {
			myDelta += int(r.ScreenWidthDp) - int(c.ScreenWidthDp)
			otherDelta += int(r.ScreenWidthDp) - int(o.ScreenWidthDp)
		}
		if r.ScreenHeightDp != 0 {
			myDelta += int(r.ScreenHeightDp) - int(c.ScreenHeightDp)
			otherDelta += int(r.ScreenHeightDp) - int(o.ScreenHeightDp)
		}
		if myDelta != otherDelta {
			return myDelta < otherDelta
		}
	}

	// screen layout size and long
	if c.ScreenLayout != 0 || o.ScreenLayout != 0 {
		mySize := c.ScreenLayout & maskScreenSize
		oSize := o.ScreenLayout & maskScreenSize
		if mySize != oSize && r.ScreenLayout&maskScreenSize != 0 {
			// "normal" is the implied default when the request is
			// at least normal-sized.
			fixedMy, fixedO := mySize, oSize
			if r.ScreenLayout&maskScreenSize >= screenSizeNormal {
				if fixedMy == 0 {
					fixedMy = screenSizeNormal
				}
				if fixedO == 0 {
					fixedO = screenSizeNormal
				}
			}
			if fixedMy == fixedO {
				return mySize != 0
			}
			return fixedMy > fixedO
		}

		if (c.ScreenLayout^o.ScreenLayout)&maskScreenLong != 0 &&
			r.ScreenLayout&maskScreenLong != 0 {
			return c.ScreenLayout&maskScreenLong != 0
		}
	}

	// orientation
	if c.Orientation != o.Orientation && r.Orientation != 0 {
		return c.Orientation != 0
	}

	// ui mode
	if c.UIMode != 0 || o.UIMode != 0 {
		diff := c.UIMode ^ o.UIMode
		if diff&maskUIModeType != 0 && r.UIMode&maskUIModeType != 0 {
			return c.UIMode&maskUIModeType != 0
		}
		if diff&maskUIModeNight != 0 && r.UIMode&maskUIModeNight != 0 {
			return c.UIMode&maskUIModeNight != 0
		}
	}

	// density: prefer scaling down over scaling up, with a quadratic
	// cutoff between the two candidates
	if c.Density != o.Density {
		h := int(c.Density)
		if h == 0 {
			h = densityDefault
		}
		l := int(o.Density)
		if l == 0 {
			l = densityDefault
		}
		mineIsHigh := true
		if l > h {
			h, l = l, h
			mineIsHigh = false
		}

		reqValue := int(r.Density)
		if reqValue == 0 {
			reqValue = densityDefault
		}
		if reqValue >= h {
			return mineIsHigh
		}
		if l >= reqValue {
			return !mineIsHigh
		}
		if (2*l-reqValue)*h > reqValue*reqValue {
			return !mineIsHigh
		}
		return mineIsHigh
	}

	if c.Touchscreen != o.Touchscreen && r.Touchscreen != 0 {
		return c.Touchscreen != 0
	}

	// input
	if c.InputFlags != 0 || o.InputFlags != 0 {
		myKeysHidden := c.InputFlags & maskKeysHidden
		oKeysHidden := o.InputFlags & maskKeysHidden
		reqKeysHidden := r.InputFlags & maskKeysHidden
		if myKeysHidden != oKeysHidden && reqKeysHidden != 0 {
			switch {
			case myKeysHidden == 0:
				return false
			case oKeysHidden == 0:
				return true
			case reqKeysHidden == myKeysHidden:
				return true
			case reqKeysHidden == oKeysHidden:
				return false
			}
		}
		myNavHidden := c.InputFlags & maskNavHidden
		oNavHidden := o.InputFlags & maskNavHidden
		if myNavHidden != oNavHidden && r.InputFlags&maskNavHidden != 0 {
			switch {
			case myNavHidden == 0:
				return false
			case oNavHidden == 0:
				return true
			}
		}
	}
	if c.Keyboard != o.Keyboard && r.Keyboard != 0 {
		return c.Keyboard != 0
	}
	if c.Navigation != o.Navigation && r.Navigation != 0 {
		return c.Navigation != 0
	}

	// screen size, closest fit wins
	if c.ScreenWidth != 0 || c.ScreenHeight != 0 || o.ScreenWidth != 0 || o.ScreenHeight != 0 {
		myDelta, otherDelta := 0, 0
		if r.ScreenWidth != 0 {
			myDelta += int(r.ScreenWidth) - int(c.ScreenWidth)
			otherDelta += int(r.ScreenWidth) - int(o.ScreenWidth)
		}
		if r.ScreenHeight != 0 {
			myDelta += int(r.ScreenHeight) - int(c.ScreenHeight)
			otherDelta += int(r.ScreenHeight) - int(o.ScreenHeight)
		}
		if myDelta != otherDelta {
			return myDelta < otherDelta
		}
	}

	// version
	if c.SDKVersion != 0 || o.SDKVersion != 0 || c.MinorVersion != 0 || o.MinorVersion != 0 {
		if c.SDKVersion != o.SDKVersion && r.SDKVersion != 0 {
			return c.SDKVersion > o.SDKVersion
		}
		if c.MinorVersion != o.MinorVersion && r.MinorVersion != 0 {
			return c.MinorVersion != 0
		}
	}

	return false
}

// Diff returns a bit set naming every axis where the two configurations
// disagree.
func (c *Config) Diff(o *Config) uint32 {
	var diffs uint32
	if c.Mcc != o.Mcc {
		diffs |= ConfigMcc
	}
	if c.Mnc != o.Mnc {
		diffs |= ConfigMnc
	}
	if c.Language != o.Language || c.Country != o.Country {
		diffs |= ConfigLocale
	}
	if c.Orientation != o.Orientation {
		diffs |= ConfigOrientation
	}
	if c.Density != o.Density {
		diffs |= ConfigDensity
	}
	if c.Touchscreen != o.Touchscreen {
		diffs |= ConfigTouchscreen
	}
	if (c.InputFlags^o.InputFlags)&(maskKeysHidden|maskNavHidden) != 0 {
		diffs |= ConfigKeyboardHid
	}
	if c.Keyboard != o.Keyboard {
		diffs |= ConfigKeyboard
	}
	if c.Navigation != o.Navigation {
		diffs |= ConfigNavigation
	}
	if c.ScreenWidth != o.ScreenWidth || c.ScreenHeight != o.ScreenHeight {
		diffs |= ConfigScreenSize
	}
	if c.SDKVersion != o.SDKVersion || c.MinorVersion != o.MinorVersion {
		diffs |= ConfigVersion
	}
	if (c.ScreenLayout^o.ScreenLayout)&^maskLayoutDir != 0 {
		diffs |= ConfigScreenLayout
	}
	if (c.ScreenLayout^o.ScreenLayout)&maskLayoutDir != 0 {
		diffs |= ConfigLayoutDir
	}
	if c.UIMode != o.UIMode {
		diffs |= ConfigUIMode
	}
	if c.SmallestScreenWidthDp != o.SmallestScreenWidthDp {
		diffs |= ConfigSmallestSize
	}
	if c.ScreenWidthDp != o.ScreenWidthDp || c.ScreenHeightDp != o.ScreenHeightDp {
		diffs |= ConfigScreenSize
	}
	return diffs
}

// Locale renders the language and country as "xx" or "xx-YY". Empty when
// no language is set.
func (c *Config) Locale() string {
	if c.Language[0] == 0 {
		return ""
	}
	if c.Country[0] == 0 {
		return fmt.Sprintf("%c%c", c.Language[0], c.Language[1])
	}
	return fmt.Sprintf("%c%c-%c%c", c.Language[0], c.Language[1], c.Country[0], c.Country[1])
}

// String renders the configuration as a dash-joined qualifier list, the
// default configuration as "default".
func (c *Config) String() string {
	var parts []string
	if c.Mcc != 0 {
		parts = append(parts, fmt.Sprintf("mcc%d", c.Mcc))
	}
	if c.Mnc != 0 {
		parts = append(parts, fmt.Sprintf("mnc%d", c.Mnc))
	}
	if loc := c.Locale(); loc != "" {
		parts = append(parts, loc)
	}
	if c.SmallestScreenWidthDp != 0 {
		parts = append(parts, fmt.Sprintf("sw%ddp", c.SmallestScreenWidthDp))
	}
	if c.ScreenWidthDp != 0 {
		parts = append(parts, fmt.Sprintf("w%ddp", c.ScreenWidthDp))
	}
	if c.ScreenHeightDp != 0 {
		parts = append(parts, fmt.Sprintf("h%ddp", c.ScreenHeightDp))
	}
	switch c.Orientation {
	case 1:
		parts = append(parts, "port")
	case 2:
		parts = append(parts, "land")
	}
	if c.Density != 0 {
		switch c.Density {
		case 120:
			parts = append(parts, "ldpi")
		case 160:
			parts = append(parts, "mdpi")
		case 240:
			parts = append(parts, "hdpi")
		case 320:
			parts = append(parts, "xhdpi")
		case 480:
			parts = append(parts, "xxhdpi")
		case 640:
			parts = append(parts, "xxxhdpi")
		case 0xFFFF:
			parts = append(parts, "anydpi")
		default:
			parts = append(parts, fmt.Sprintf("%ddpi", c.Density))
		}
	}
	if c.ScreenWidth != 0 || c.ScreenHeight != 0 {
		parts = append(parts, fmt.Sprintf("%dx%d", c.ScreenWidth, c.ScreenHeight))
	}
	if c.SDKVersion != 0 {
		v := fmt.Sprintf("v%d", c.SDKVersion)
		if c.MinorVersion != 0 {
			v += fmt.Sprintf(".%d", c.MinorVersion)
		}
		parts = append(parts, v)
	}
	if len(parts) == 0 {
		return "default"
	}
	return strings.Join(parts, "-")
}
