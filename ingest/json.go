package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ============================================================================
// JSON — Nested geography → segment type → segment → {year: value, child}
// ============================================================================
// Key order matters (it is the display order), so objects are walked token
// by token instead of decoding into maps.
//
//   {"Global": {"By Route": {"Parenteral": {"2025": 100,
//                                           "Intravenous": {"2025": 60}}}}}
//
// The whole document may also be wrapped as {"value": {...}, "volume": {...}}.
// ============================================================================

type member struct {
	key    string
	number *float64
	object []member
}

// ParseJSON reads one nested JSON dataset.
func ParseJSON(r io.Reader) (*Dataset, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("failed to read JSON: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("dataset JSON must be an object, got %v", tok)
	}
	doc, err := readObject(dec)
	if err != nil {
		return nil, fmt.Errorf("failed to read JSON: %w", err)
	}

	value, volume := newSheet(), newSheet()
	if isEnvelope(doc) {
		for _, m := range doc {
			target := value
			if strings.EqualFold(m.key, "volume") {
				target = volume
			}
			fillFromJSON(target, m.object)
		}
	} else {
		fillFromJSON(value, doc)
	}

	if value.empty() && volume.empty() {
		return nil, errors.New("dataset JSON holds no segment data")
	}
	return newDataset(value, volume), nil
}

// readObject consumes members up to the closing brace. The opening brace
// has already been read.
func readObject(dec *json.Decoder) ([]member, error) {
	var out []member
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("expected object key, got %v", tok)
		}

		m := member{key: key}
		tok, err = dec.Token()
		if err != nil {
			return nil, err
		}
		switch v := tok.(type) {
		case json.Delim:
			switch v {
			case '{':
				if m.object, err = readObject(dec); err != nil {
					return nil, err
				}
				if m.object == nil {
					m.object = []member{}
				}
			case '[':
				if err := skipArray(dec); err != nil {
					return nil, err
				}
				continue
			}
		case json.Number:
			f, err := v.Float64()
			if err != nil {
				return nil, fmt.Errorf("%s: %w", key, err)
			}
			m.number = &f
		case string:
			if f, ok := parseNumber(v); ok {
				m.number = &f
			}
		}
		out = append(out, m)
	}
	// closing '}'
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return out, nil
}

func skipArray(dec *json.Decoder) error {
	depth := 1
	for depth > 0 {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		if d, ok := tok.(json.Delim); ok {
			switch d {
			case '[', '{':
				depth++
			case ']', '}':
				depth--
			}
		}
	}
	return nil
}

func isEnvelope(doc []member) bool {
	if len(doc) == 0 {
		return false
	}
	for _, m := range doc {
		k := strings.ToLower(m.key)
		if (k != "value" && k != "volume") || m.object == nil {
			return false
		}
	}
	return true
}

func fillFromJSON(s *sheet, doc []member) {
	for _, geo := range doc {
		for _, segmentType := range geo.object {
			for _, seg := range segmentType.object {
				if seg.object == nil {
					continue
				}
				fillNode(s, geo.key, segmentType.key, []string{seg.key}, seg.object)
			}
		}
	}
}

// fillNode stores year members as figures and recurses into object members.
func fillNode(s *sheet, geo, segmentType string, chain []string, members []member) {
	n := s.node(geo, segmentType, chain)
	for _, m := range members {
		if m.number != nil {
			if y, ok := parseYear(m.key); ok {
				n.set(y, *m.number)
			}
			continue
		}
		if m.object != nil {
			fillNode(s, geo, segmentType, append(chain[:len(chain):len(chain)], m.key), m.object)
		}
	}
}
