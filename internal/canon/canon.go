// Package canon implements the single stable JSON serializer every hash in
// the system routes through. Two values that differ only in input key
// order, Go field order, or intermediate numeric representation MUST
// produce byte-identical canonical output — every hash-linked chain,
// manifest, and consequence record in this module depends on it.
package canon

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
)

// Marshal produces the canonical JSON encoding of v: object keys sorted
// recursively at every level, arrays left in their original order, numbers
// and strings encoded the way encoding/json already encodes them. v may be
// a struct, map, slice, or any json.Marshal-able value; it is first
// round-tripped through encoding/json so struct tags are honored and the
// result is reduced to plain JSON primitives before sorting.
func Marshal(v interface{}) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canon: marshal input: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var norm interface{}
	if err := dec.Decode(&norm); err != nil {
		return nil, fmt.Errorf("canon: normalize input: %w", err)
	}

	var buf bytes.Buffer
	if err := writeCanonical(&buf, norm); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ToMap round-trips v through encoding/json (with UseNumber, so numeric
// fidelity is preserved) and returns it as a plain map[string]interface{}
// suitable for an evidence.Input's Data field. v must marshal to a JSON
// object.
func ToMap(v interface{}) (map[string]interface{}, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canon: marshal input: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var m map[string]interface{}
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("canon: decode as object: %w", err)
	}
	return m, nil
}

// MustMarshal panics on error. Reserved for call sites where v is a
// well-typed internal struct and a marshal error indicates a programming
// bug, not bad input.
func MustMarshal(v interface{}) []byte {
	b, err := Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

// Hash returns the lowercase hex SHA-256 digest of v's canonical encoding.
func Hash(v interface{}) (string, error) {
	b, err := Marshal(v)
	if err != nil {
		return "", err
	}
	return HashBytes(b), nil
}

// HashBytes returns the lowercase hex SHA-256 digest of raw bytes, e.g. the
// canonical encoding already produced by Marshal, or an NDJSON file body.
func HashBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func writeCanonical(buf *bytes.Buffer, v interface{}) error {
	switch t := v.(type) {
	case nil:
		buf.WriteString("null")
		return nil
	case bool:
		if t {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
		return nil
	case json.Number:
		buf.WriteString(string(t))
		return nil
	case string:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Errorf("canon: encode string: %w", err)
		}
		buf.Write(b)
		return nil
	case []interface{}:
		buf.WriteByte('[')
		for i, elem := range t {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonical(buf, elem); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		return nil
	case map[string]interface{}:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return fmt.Errorf("canon: encode key %q: %w", k, err)
			}
			buf.Write(kb)
			buf.WriteByte(':')
			if err := writeCanonical(buf, t[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
		return nil
	default:
		return fmt.Errorf("canon: unsupported normalized type %T", v)
	}
}
