package visitors

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf16"

	"github.com/pocketbase/pocketbase/tools/security"
)

const base36Alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// Environment exposes the browser/device signals a fingerprint is derived from.
type Environment interface {
	// CanvasDataURL returns the encoded image of the fixed fingerprint text
	// rendered on an offscreen 2D canvas.
	CanvasDataURL() (string, error)
	ScreenSize() (width, height int)
	TimezoneName() string
	LanguageTag() string
	PlatformName() string
	UserAgentString() string
}

// Signals is the environment snapshot posted by a page.
type Signals struct {
	Canvas       string `json:"canvas"`
	ScreenWidth  int    `json:"screen_width"`
	ScreenHeight int    `json:"screen_height"`
	Timezone     string `json:"timezone"`
	Language     string `json:"language"`
	Platform     string `json:"platform"`
	UserAgent    string `json:"user_agent"`
}

var _ Environment = Signals{}

func (s Signals) CanvasDataURL() (string, error) {
	if strings.TrimSpace(s.Canvas) == "" {
		return "", ErrCanvasUnavailable
	}
	return s.Canvas, nil
}

func (s Signals) ScreenSize() (int, int) { return s.ScreenWidth, s.ScreenHeight }
func (s Signals) TimezoneName() string { return s.Timezone }
func (s Signals) LanguageTag() string { return s.Language }
func (s Signals) PlatformName() string { return s.Platform }
func (s Signals) UserAgentString() string { return s.UserAgent }

// fingerprintFields is the serialized field order of the fingerprint source.
var fingerprintFields = [...]string{"canvas", "screen", "timezone", "language", "platform", "userAgent"}

// Fingerprint derives a heuristic visitor id from env.
//
// When a signal cannot be read the returned id is random and therefore never
// deduplicated; the cause is returned alongside it so callers can log it.
func Fingerprint(env Environment) (string, error) {
	id, err := stableFingerprint(env)
	if err != nil {
		return fallbackFingerprint(time.Now()), err
	}
	return id, nil
}

func stableFingerprint(env Environment) (id string, err error) {
	if env == nil {
		return "", ErrCanvasUnavailable
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("fingerprint environment panicked: %v", r)
		}
	}()

	canvas, err := env.CanvasDataURL()
	if err != nil {
		return "", err
	}

	width, height := env.ScreenSize()
	values := [len(fingerprintFields)][]uint16{
		utf16.Encode([]rune(canvas)),
		utf16.Encode([]rune(ScreenResolution(width, height))),
		utf16.Encode([]rune(env.TimezoneName())),
		utf16.Encode([]rune(env.LanguageTag())),
		utf16.Encode([]rune(env.PlatformName())),
		utf16Prefix(env.UserAgentString(), FingerprintUserAgentLength),
	}

	hash := int64(rollingHash(serializeFingerprint(values)))
	if hash < 0 {
		hash = -hash
	}
	return strconv.FormatInt(hash, 36), nil
}

// serializeFingerprint renders the source object as UTF-16 code units,
// escaped the way browsers' JSON.stringify escapes strings.
func serializeFingerprint(values [len(fingerprintFields)][]uint16) []uint16 {
	out := []uint16{'{'}
	for i, name := range fingerprintFields {
		if i > 0 {
			out = append(out, ',')
		}
		out = appendJSString(out, utf16.Encode([]rune(name)))
		out = append(out, ':')
		out = appendJSString(out, values[i])
	}
	return append(out, '}')
}

// appendJSString quotes units. Only quotes, backslashes, control characters
// and unpaired surrogates are escaped; U+2028 and U+2029 stay raw.
func appendJSString(out, units []uint16) []uint16 {
	out = append(out, '"')
	for i := 0; i < len(units); i++ {
		c := units[i]
		switch {
		case c == '"' || c == '\\':
			out = append(out, '\\', c)
		case c == '\b':
			out = append(out, '\\', 'b')
		case c == '\t':
			out = append(out, '\\', 't')
		case c == '\n':
			out = append(out, '\\', 'n')
		case c == '\f':
			out = append(out, '\\', 'f')
		case c == '\r':
			out = append(out, '\\', 'r')
		case c < 0x20:
			out = appendUnitEscape(out, c)
		case isHighSurrogate(c) && i+1 < len(units) && isLowSurrogate(units[i+1]):
			out = append(out, c, units[i+1])
			i++
		case isHighSurrogate(c) || isLowSurrogate(c):
			out = appendUnitEscape(out, c)
		default:
			out = append(out, c)
		}
	}
	return append(out, '"')
}

func appendUnitEscape(out []uint16, c uint16) []uint16 {
	const hex = "0123456789abcdef"
	return append(out, '\\', 'u',
		uint16(hex[c>>12]), uint16(hex[c>>8&0xf]), uint16(hex[c>>4&0xf]), uint16(hex[c&0xf]))
}

func isHighSurrogate(c uint16) bool { return c >= 0xd800 && c < 0xdc00 }
func isLowSurrogate(c uint16) bool { return c >= 0xdc00 && c < 0xe000 }

// rollingHash computes h = h*31 + c over units, wrapping at 32 bits.
func rollingHash(units []uint16) int32 {
	var h int32
	for _, c := range units {
		h = h*31 + int32(c)
	}
	return h
}

func fallbackFingerprint(now time.Time) string {
	return fmt.Sprintf("visitor_%d_%s", now.UnixMilli(), security.RandomStringWithAlphabet(9, base36Alphabet))
}
