// Package canon implements RFC 8785 JSON Canonicalization Scheme
// (JCS), the signing-input format for every Verifiable Credential and
// StatusList2021Credential trustcore issues or verifies.
//
// Canonicalization operates on the decoded shape produced by
// encoding/json with UseNumber enabled (map[string]any, []any,
// json.Number, string, bool, nil) rather than on Go structs directly —
// the same decode-then-sort idiom the reference corpus's hand-rolled
// canonicalizers (certenIO's commitment.CanonicalizeJSON, virtengine's
// canonicalJSON) use, generalized here to match RFC 8785 exactly
// (sorted object keys by UTF-16 code unit, ECMA-262 number formatting,
// array order preserved).
package canon

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"unicode/utf16"
)

// Marshal canonicalizes v (any JSON-marshalable Go value) by
// round-tripping it through encoding/json with UseNumber, then
// rendering the result per RFC 8785. This is the entry point most
// callers want: Marshal(credentialWithoutProof).
func Marshal(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canon: marshal: %w", err)
	}
	decoded, err := decode(raw)
	if err != nil {
		return nil, err
	}
	return Canonicalize(decoded)
}

// decode parses raw JSON preserving number literals as json.Number so
// Canonicalize can reformat them per ECMA-262 instead of losing
// precision to Go's default float64 round-trip.
func decode(raw []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("canon: decode: %w", err)
	}
	return v, nil
}

// Canonicalize serializes the decoded JSON value v (map[string]any,
// []any, json.Number, string, bool, or nil) as canonical JSON per
// RFC 8785. Object keys are sorted lexicographically by UTF-16 code
// unit at every level; array order is preserved exactly as given.
func Canonicalize(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := write(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func write(buf *bytes.Buffer, v any) error {
	switch val := v.(type) {
	case nil:
		buf.WriteString("null")
		return nil
	case bool:
		if val {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
		return nil
	case json.Number:
		f, err := val.Float64()
		if err != nil {
			return fmt.Errorf("canon: %q is not a valid number: %w", val.String(), err)
		}
		s, err := formatNumber(f)
		if err != nil {
			return err
		}
		buf.WriteString(s)
		return nil
	case float64:
		s, err := formatNumber(val)
		if err != nil {
			return err
		}
		buf.WriteString(s)
		return nil
	case string:
		return writeString(buf, val)
	case []any:
		buf.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := write(buf, item); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		return nil
	case map[string]any:
		return writeObject(buf, val)
	default:
		return fmt.Errorf("canon: unsupported type %T", v)
	}
}

func writeObject(buf *bytes.Buffer, m map[string]any) error {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sortByUTF16(keys)

	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeString(buf, k); err != nil {
			return err
		}
		buf.WriteByte(':')
		if err := write(buf, m[k]); err != nil {
			return err
		}
	}
	buf.WriteByte('}')
	return nil
}

// sortByUTF16 orders keys lexicographically by UTF-16 code unit, per
// RFC 8785 §3.2.3. This differs from a plain Go string sort (which
// compares UTF-8 bytes / Unicode code points) for strings containing
// characters outside the Basic Multilingual Plane, since those encode
// as surrogate pairs whose leading unit (0xD800-0xDBFF) sorts below
// BMP characters in 0xE000-0xFFFF despite having a higher code point.
func sortByUTF16(keys []string) {
	sort.Slice(keys, func(i, j int) bool {
		a := utf16.Encode([]rune(keys[i]))
		b := utf16.Encode([]rune(keys[j]))
		for k := 0; k < len(a) && k < len(b); k++ {
			if a[k] != b[k] {
				return a[k] < b[k]
			}
		}
		return len(a) < len(b)
	})
}

// writeString escapes s per RFC 8785 §3.2.2.2, which quotes a
// string exactly as ECMA-262's JSON.stringify does: '"', '\\', and
// control characters below 0x20 are escaped, everything else —
// including '<', '>', '&', U+2028 and U+2029 — is emitted
// literally. encoding/json's default Marshal HTML-escapes '<', '>',
// '&' and always escapes U+2028/U+2029 unconditionally, regardless
// of SetEscapeHTML, so this disables HTML escaping via an Encoder
// and then undoes the unconditional line-separator escaping by hand.
func writeString(buf *bytes.Buffer, s string) error {
	var tmp bytes.Buffer
	enc := json.NewEncoder(&tmp)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return fmt.Errorf("canon: cannot encode string: %w", err)
	}
	encoded := bytes.TrimSuffix(tmp.Bytes(), []byte("\n"))
	encoded = bytes.ReplaceAll(encoded, []byte(`\u2028`), []byte("\u2028"))
	encoded = bytes.ReplaceAll(encoded, []byte(`\u2029`), []byte("\u2029"))
	buf.Write(encoded)
	return nil
}
