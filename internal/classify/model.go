package classify

import (
	"strings"
)

// Soundbar and AV receiver model number prefixes reported via SSDP.
var soundbarModelPrefixes = []string{
	"hw-", "spk-", "wam", // Samsung audio
	"sl", "sn", "sp", "sc9", // LG soundbars
	"bar-",                 // JBL
	"avr-",                 // Denon
	"rx-v", "rx-a",         // Yamaha
	"tx-nr", "tx-rz",       // Onkyo
	"vsx-",                 // Pioneer
}

// samsungTVSeries maps series identifiers inside model numbers like
// QN65Q80CAFXZA to friendly names.
var samsungTVSeries = []struct{ pattern, name string }{
	{"ls03", "The Frame"},
	{"ls01", "The Serif"},
	{"ls05", "The Sero"},
	{"lst7", "The Terrace"},
	{"s95", "OLED S95"},
	{"s90", "OLED S90"},
	{"qn9", "Neo QLED QN9"},
	{"qn8", "Neo QLED QN8"},
	{"qn7", "Neo QLED QN7"},
	{"q8", "QLED Q8"},
	{"q7", "QLED Q7"},
	{"q6", "QLED Q6"},
	{"cu8", "Crystal UHD CU8"},
	{"cu7", "Crystal UHD CU7"},
	{"bu8", "Crystal UHD BU8"},
	{"au8", "Crystal UHD AU8"},
	{"tu8", "Crystal UHD TU8"},
	{"tu7", "Crystal UHD TU7"},
}

var lgTVSeries = []struct{ pattern, name string }{
	{"g3", "OLED G3"},
	{"g2", "OLED G2"},
	{"c3", "OLED C3"},
	{"c2", "OLED C2"},
	{"c1", "OLED C1"},
	{"b3", "OLED B3"},
	{"b2", "OLED B2"},
	{"oled", "OLED"},
	{"qned", "QNED"},
	{"nano", "NanoCell"},
	{"uq", "UHD"},
	{"up", "UHD"},
}

var sonyTVSeries = []struct{ pattern, name string }{
	{"a95", "Bravia XR A95"},
	{"a90", "Bravia XR A90"},
	{"a80", "Bravia XR A80"},
	{"x95", "Bravia XR X95"},
	{"x90", "Bravia XR X90"},
	{"x85", "Bravia X85"},
	{"x80", "Bravia X80"},
}

// Single-product vendors whose OUI alone names the device.
var vendorModels = map[string]string{
	"Nintendo": "Nintendo Switch",
	"Roku":     "Roku",
	"Sonos":    "Sonos Speaker",
	"WiZ":      "WiZ Light",
	"Ring":     "Ring Camera",
}

// NormalizeModelName maps a cryptic device model number to a friendly
// display name: "QN65Q80CAFXZA" -> "Samsung QLED Q8". Returns "" when the
// model is not recognized.
func NormalizeModelName(modelName, vendor string) string {
	upper := strings.ToUpper(modelName)
	lower := strings.ToLower(modelName)
	vendorLower := strings.ToLower(vendor)

	// Audio gear first: model prefixes are unambiguous.
	switch {
	case strings.HasPrefix(lower, "hw-"):
		return "Samsung Soundbar " + upper[3:]
	case strings.HasPrefix(lower, "spk-"):
		return "Samsung Soundbar " + upper[4:]
	case strings.HasPrefix(lower, "wam"):
		return "Samsung Wireless Speaker " + upper[3:]
	case strings.HasPrefix(lower, "bar-") || strings.HasPrefix(lower, "bar "):
		return "JBL " + upper
	case strings.HasPrefix(lower, "avr-"):
		return "Denon AVR " + upper[4:]
	case strings.HasPrefix(lower, "rx-v"):
		return "Yamaha RX-V" + upper[4:]
	case strings.HasPrefix(lower, "rx-a"):
		return "Yamaha Aventage RX-A" + upper[4:]
	case strings.HasPrefix(lower, "tx-nr") || strings.HasPrefix(lower, "tx-rz"):
		return "Onkyo " + upper
	case strings.HasPrefix(lower, "vsx-"):
		return "Pioneer " + upper
	}
	if hasDigitAt(lower, 2) && (strings.HasPrefix(lower, "sl") || strings.HasPrefix(lower, "sn") || strings.HasPrefix(lower, "sp")) {
		return "LG Soundbar " + upper
	}
	if strings.HasPrefix(lower, "sc9") {
		return "LG Soundbar " + upper
	}
	if hasDigitAt(lower, 2) && (strings.HasPrefix(lower, "sr") || strings.HasPrefix(lower, "nr")) {
		return "Marantz " + upper
	}

	isSamsung := strings.HasPrefix(upper, "QN") || strings.HasPrefix(upper, "UN") ||
		strings.Contains(vendorLower, "samsung")
	isLG := strings.HasPrefix(upper, "OLED") || strings.Contains(upper, "NANO") ||
		strings.Contains(upper, "QNED") || strings.Contains(vendorLower, "lg")
	isSony := strings.HasPrefix(upper, "XR") || strings.HasPrefix(upper, "KD") ||
		strings.Contains(vendorLower, "sony")

	if isSamsung {
		series := lower
		if strings.HasPrefix(upper, "QN") || strings.HasPrefix(upper, "UN") {
			series = strings.TrimLeft(lower[2:], "0123456789")
		}
		for _, s := range samsungTVSeries {
			if strings.HasPrefix(series, s.pattern) {
				return "Samsung " + s.name
			}
		}
	}

	if isLG {
		for _, s := range lgTVSeries {
			if strings.Contains(lower, s.pattern) {
				return "LG " + s.name
			}
		}
	}

	if isSony {
		series := strings.TrimPrefix(strings.TrimPrefix(lower, "xr"), "kd")
		series = strings.TrimLeft(series, "0123456789-")
		for _, s := range sonyTVSeries {
			if strings.HasPrefix(series, s.pattern) {
				return "Sony " + s.name
			}
		}
	}

	if isRokuTVModel(upper) {
		return "Roku TV"
	}

	return ""
}

// isRokuTVModel matches Roku OS platform identifiers like 7105X or 6500X
// used by TCL and Hisense sets.
func isRokuTVModel(model string) bool {
	if len(model) != 5 || model[4] != 'X' {
		return false
	}
	for _, c := range model[:4] {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// isSoundbarModel reports whether a model number belongs to a soundbar or AV
// receiver.
func isSoundbarModel(modelName string) bool {
	lower := strings.ToLower(modelName)
	for _, prefix := range soundbarModelPrefixes {
		if !strings.HasPrefix(lower, prefix) {
			continue
		}
		// Bare two-letter prefixes need a digit next to avoid matching
		// words like "snake" or "spare".
		if len(prefix) == 2 && !hasDigitAt(lower, 2) {
			continue
		}
		return true
	}
	return false
}

// isTVModel reports whether a model number belongs to a television.
func isTVModel(modelName string) bool {
	if isSoundbarModel(modelName) {
		return false
	}
	normalized := NormalizeModelName(modelName, "")
	if normalized == "" {
		return false
	}
	return !strings.Contains(normalized, "Soundbar") && !strings.Contains(normalized, "Speaker")
}

// ModelFromHostname derives a friendly model from hostname conventions:
// Roku-Ultra-XXXX, PS5-..., Xbox-Series-X, iPhone-14-Pro.
func ModelFromHostname(hostname string) string {
	lower := strings.ToLower(hostname)

	switch {
	case strings.HasPrefix(lower, "roku-") || strings.HasPrefix(lower, "roku_"):
		parts := strings.FieldsFunc(hostname, func(r rune) bool { return r == '-' || r == '_' })
		if len(parts) >= 2 && !isHexToken(parts[1]) {
			return parts[1]
		}
	case strings.HasPrefix(lower, "ps4"):
		return "PlayStation 4"
	case strings.HasPrefix(lower, "ps5"):
		return "PlayStation 5"
	case strings.HasPrefix(lower, "xbox"):
		parts := strings.FieldsFunc(hostname, func(r rune) bool { return r == '-' || r == '_' })
		var modelParts []string
		for _, p := range parts[1:] {
			if isHexToken(p) {
				break
			}
			modelParts = append(modelParts, p)
		}
		if len(modelParts) > 0 {
			return "Xbox " + strings.Join(modelParts, " ")
		}
		return "Xbox"
	case strings.Contains(lower, "macbook"):
		if strings.Contains(lower, "pro") {
			return "MacBook Pro"
		}
		if strings.Contains(lower, "air") {
			return "MacBook Air"
		}
		return "MacBook"
	case strings.Contains(lower, "iphone"):
		return "iPhone"
	case strings.Contains(lower, "ipad"):
		return "iPad"
	}

	return ""
}

// ModelFromMAC names devices from single-product vendor OUIs.
func ModelFromMAC(mac string) string {
	return vendorModels[VendorForMAC(mac)]
}

func hasDigitAt(s string, i int) bool {
	return len(s) > i && s[i] >= '0' && s[i] <= '9'
}

func isHexToken(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if !isHexRune(c) {
			return false
		}
	}
	return true
}

func isHexRune(c rune) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}
