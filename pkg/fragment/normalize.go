package fragment

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json/jsontext"
	"encoding/json/v2"
	"strings"
)

// volatileKeys are JSON object keys stripped before hashing so that
// semantically identical content deduplicates even when re-submitted with
// fresh metadata. Matches the transient fields the event log stamps onto
// payloads: timestamps and per-request counters.
var volatileKeys = map[string]struct{}{
	"timestamp":   {},
	"created_at":  {},
	"updated_at":  {},
	"request_id":  {},
	"trace_id":    {},
	"duration_ms": {},
	"seq":         {},
	"uptime_ms":   {},
}

// Normalize returns the canonical byte form of raw content. JSON payloads
// have volatile keys stripped recursively and are canonicalized according
// to RFC 8785, so key order and whitespace never affect the hash.
// As of Go 1.25.x this requires "GOEXPERIMENT=jsonv2" for the json v2 and
// jsontext packages. Non-JSON payloads get line-ending and trailing
// whitespace normalization only.
func Normalize(raw []byte) []byte {
	trimmed := bytes.TrimSpace(raw)

	if looksLikeJSON(trimmed) {
		if canonical, ok := canonicalizeJSON(trimmed); ok {
			return canonical
		}
	}

	return normalizeText(raw)
}

// HashContent computes the content-addressed identifier: SHA-256 over the
// normalized bytes followed by their length as an 8-byte big-endian word,
// hex-encoded. Two fragments with identical normalized content always map
// to the same hash.
func HashContent(normalized []byte) string {
	h := sha256.New()
	h.Write(normalized)

	var n [8]byte
	binary.BigEndian.PutUint64(n[:], uint64(len(normalized)))
	h.Write(n[:])

	return hex.EncodeToString(h.Sum(nil))
}

// looksLikeJSON is a cheap structural sniff before paying for a full parse.
func looksLikeJSON(b []byte) bool {
	if len(b) == 0 {
		return false
	}
	return b[0] == '{' || b[0] == '['
}

// canonicalizeJSON strips volatile keys and canonicalizes. Returns ok=false
// when the payload is not valid JSON after all.
func canonicalizeJSON(b []byte) ([]byte, bool) {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return nil, false
	}

	v = stripVolatile(v)

	data, err := json.Marshal(v)
	if err != nil {
		return nil, false
	}

	j := jsontext.Value(data)
	if err := j.Canonicalize(); err != nil {
		return nil, false
	}

	return []byte(j), true
}

// stripVolatile removes volatile keys from maps at every depth.
func stripVolatile(v any) any {
	switch val := v.(type) {
	case map[string]any:
		for k, child := range val {
			if _, volatile := volatileKeys[k]; volatile {
				delete(val, k)
				continue
			}
			val[k] = stripVolatile(child)
		}
		return val
	case []any:
		for i, child := range val {
			val[i] = stripVolatile(child)
		}
		return val
	default:
		return v
	}
}

// normalizeText converts CRLF to LF and strips trailing whitespace from
// every line and from the end of the payload.
func normalizeText(raw []byte) []byte {
	s := strings.ReplaceAll(string(raw), "\r\n", "\n")

	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}

	return []byte(strings.TrimRight(strings.Join(lines, "\n"), "\n"))
}
