package tracking

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/JakeFAU/dealwatch/internal/watch"
)

// encode renders sources as a single JSON object keyed by URL, preserving slice order.
func encode(sources []watch.TrackedSource) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, src := range sources {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := marshalRaw(src.URL)
		if err != nil {
			return nil, fmt.Errorf("marshal key %q: %w", src.URL, err)
		}
		value, err := marshalRaw(src)
		if err != nil {
			return nil, fmt.Errorf("marshal source %q: %w", src.URL, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')

	var out bytes.Buffer
	if err := json.Indent(&out, buf.Bytes(), "", "  "); err != nil {
		return nil, fmt.Errorf("indent tracking json: %w", err)
	}
	out.WriteByte('\n')
	return out.Bytes(), nil
}

// marshalRaw marshals v without HTML escaping so URLs with query strings stay readable.
func marshalRaw(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// decode parses the persisted object in document order. A repeated key overwrites the
// earlier value but keeps its position.
func decode(data []byte) ([]watch.TrackedSource, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("read opening token: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("expected JSON object, got %v", tok)
	}

	var out []watch.TrackedSource
	index := make(map[string]int)
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("read key: %w", err)
		}
		url, ok := keyTok.(string)
		if !ok {
			return nil, fmt.Errorf("expected string key, got %v", keyTok)
		}
		var src watch.TrackedSource
		if err := dec.Decode(&src); err != nil {
			return nil, fmt.Errorf("decode source %q: %w", url, err)
		}
		src.URL = url
		if pos, dup := index[url]; dup {
			out[pos] = src
			continue
		}
		index[url] = len(out)
		out = append(out, src)
	}
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("read closing token: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("unexpected trailing data after tracking object")
	}
	return out, nil
}
