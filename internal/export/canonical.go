package export

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Canonical serialization rules shared by every artifact: lexicographically
// sorted object keys, floats at fixed 6-decimal precision, timestamps in
// RFC3339 UTC, newline-terminated output. Identical state always yields
// identical bytes, which is what makes the checksums meaningful.

const floatPrecision = 6

// FormatFloat renders a float the canonical way: fixed 6 decimals, with
// negative zero normalized so -0.000000 never appears.
func FormatFloat(v float64) string {
	if v == 0 {
		v = 0
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "0.000000"
	}
	return strconv.FormatFloat(v, 'f', floatPrecision, 64)
}

// FormatTime renders a timestamp the canonical way.
func FormatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// RoundFloat clamps a value to canonical precision so that structured (JSON,
// YAML) and tabular (CSV) renderings of the same number agree.
func RoundFloat(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return math.Round(v*1e6) / 1e6
}

// EncodeJSON renders v as canonical JSON. Maps are emitted with sorted keys;
// floats use fixed precision; time.Time values become RFC3339 UTC strings.
func EncodeJSON(v any) ([]byte, error) {
	var b strings.Builder
	if err := encodeJSONValue(&b, v); err != nil {
		return nil, err
	}
	b.WriteByte('\n')
	return []byte(b.String()), nil
}

func encodeJSONValue(b *strings.Builder, v any) error {
	switch typed := v.(type) {
	case nil:
		b.WriteString("null")
	case bool:
		if typed {
			b.WriteString("true")
		} else {
			b.WriteString("false")
		}
	case string:
		return encodeJSONString(b, typed)
	case int:
		b.WriteString(strconv.Itoa(typed))
	case int64:
		b.WriteString(strconv.FormatInt(typed, 10))
	case float64:
		b.WriteString(FormatFloat(typed))
	case float32:
		b.WriteString(FormatFloat(float64(typed)))
	case time.Time:
		return encodeJSONString(b, FormatTime(typed))
	case json.RawMessage:
		return encodeRawJSON(b, typed)
	case map[string]any:
		keys := make([]string, 0, len(typed))
		for k := range typed {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				b.WriteByte(',')
			}
			if err := encodeJSONString(b, k); err != nil {
				return err
			}
			b.WriteByte(':')
			if err := encodeJSONValue(b, typed[k]); err != nil {
				return err
			}
		}
		b.WriteByte('}')
	case []any:
		b.WriteByte('[')
		for i, item := range typed {
			if i > 0 {
				b.WriteByte(',')
			}
			if err := encodeJSONValue(b, item); err != nil {
				return err
			}
		}
		b.WriteByte(']')
	default:
		return fmt.Errorf("canonical encoder: unsupported type %T", v)
	}
	return nil
}

func encodeJSONString(b *strings.Builder, s string) error {
	encoded, err := json.Marshal(s)
	if err != nil {
		return err
	}
	b.Write(encoded)
	return nil
}

// encodeRawJSON re-canonicalizes an embedded JSON document (jsonb columns).
func encodeRawJSON(b *strings.Builder, raw json.RawMessage) error {
	if len(raw) == 0 {
		b.WriteString("null")
		return nil
	}
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return err
	}
	return encodeJSONValue(b, decoded)
}

// Checksum is the content hash stored on Export records: hex sha256 over the
// canonical bytes.
func Checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// RunChecksum derives a single run-level checksum from per-artifact checksums,
// independent of render order.
func RunChecksum(artifacts []Artifact) string {
	lines := make([]string, 0, len(artifacts))
	for _, a := range artifacts {
		lines = append(lines, a.Name+":"+a.Checksum)
	}
	sort.Strings(lines)
	return Checksum([]byte(strings.Join(lines, "\n") + "\n"))
}
