package output

import (
	"encoding/base64"
	"encoding/hex"
	"net/netip"
	"strconv"
	"strings"
	"unicode/utf8"
)

var observationTypes = [...]string{
	"Unknown",
	"Informational",
	"SystemCharacteristics",
	"ApplicationCharacteristics",
	"MalwareArtifacts",
	"NetworkAttack",
	"UserBehavior",
	"Compliance",
	"CustomData",
}

// dataTypes is indexed by DataItem.DataType.
var dataTypes = [...]string{
	"UnknownData",
	"MD5",
	"SHA1",
	"SHA256",
	"HashAS1",
	"HashAS2",
	"CVE",
	"Version",
	"Model",
	"ASLibVersion",
	"File",
	"X509Cert",
	"X509CertSubject",
	"X509CertIssuer",
	"Username",
	"Process",
	"Command",
	"ApplicationTarget", // "Application" is taken by the report field
	"String",
	"Number",
	"IPv4",
	"IPv6",
	"Port",
	"Hostname",
	"MAC",
	"ConfigTimestamp",
	"ASDefVersion",
	"HPKP",
	"VRID",
	"Env",
	"Symbol",
	"PropertyName",
	"Library",
	"SSID",
	"BSSID",
}

// ObservationType names an observation type; unknown values map to "Unknown".
func ObservationType(t int32) string {
	if t < 0 || int(t) >= len(observationTypes) {
		t = 0
	}
	return observationTypes[t]
}

// DataType names a data item type; unknown values map to "UnknownData".
func DataType(t int32) string {
	if t < 0 || int(t) >= len(dataTypes) {
		t = 0
	}
	return dataTypes[t]
}

// dataKey is the record key for a data type: its name with the first letter
// lowercased.
func dataKey(t int32) string {
	n := DataType(t)
	return strings.ToLower(n[:1]) + n[1:]
}

// uniqueKey returns key, or key+sep+N for the smallest N >= 2 not in seen,
// and records the result.
func uniqueKey(seen map[string]bool, key, sep string) string {
	k := key
	for i := 2; seen[k]; i++ {
		k = key + sep + strconv.Itoa(i)
	}
	seen[k] = true
	return k
}

// hexID renders an identifier as lowercase hex with trailing zero bytes
// trimmed. Empty or all-zero ids render as "00".
func hexID(b []byte) string {
	end := len(b)
	for end > 0 && b[end-1] == 0 {
		end--
	}
	if end == 0 {
		return "00"
	}
	return hex.EncodeToString(b[:end])
}

// renderData formats a data item value by type. Text types go through text,
// which applies the transform's own escaping.
func renderData(t int32, data []byte, text func([]byte) string) string {
	switch {
	case t == 9 || t == 19 || t == 22 || t == 25 || t == 26 || t == 28:
		return strconv.FormatUint(littleEndian(data), 10)
	case t == 11:
		return base64.StdEncoding.EncodeToString(data)
	case t >= 6 && t <= 18, t == 23, t >= 29 && t <= 33:
		return text(data)
	case t == 20:
		return ipv4(data)
	case t == 24 || t == 34:
		return mac(data)
	}
	return "0x" + hex.EncodeToString(data)
}

func littleEndian(b []byte) uint64 {
	var v uint64
	for i := len(b) - 1; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v
}

func ipv4(b []byte) string {
	if len(b) != 4 {
		return "0.0.0.0"
	}
	return netip.AddrFrom4([4]byte(b)).String()
}

// mac renders six bytes as colon separated hex without zero padding.
func mac(b []byte) string {
	if len(b) != 6 {
		return "00:00:00:00:00:00"
	}
	parts := make([]string, len(b))
	for i, c := range b {
		parts[i] = strconv.FormatUint(uint64(c), 16)
	}
	return strings.Join(parts, ":")
}

// plainText returns valid UTF-8 as is and anything else as 0x-prefixed hex.
func plainText(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	return "0x" + hex.EncodeToString(b)
}

// kvpEscape escapes a value for a quoted key=value field. Quote, equals and
// backslash get a backslash; bytes outside 32..127 become \xHH.
func kvpEscape(b []byte) string {
	var sb strings.Builder
	sb.Grow(len(b))
	for _, c := range b {
		switch {
		case c == '"' || c == '=' || c == '\\':
			sb.WriteByte('\\')
			sb.WriteByte(c)
		case c < 32 || c > 127:
			sb.WriteString(`\x`)
			sb.WriteString(hex.EncodeToString([]byte{c}))
		default:
			sb.WriteByte(c)
		}
	}
	return sb.String()
}
