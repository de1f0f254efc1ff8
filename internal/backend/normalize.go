package backend

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/cylinder-vision/cargo-counting/dashboard-server/internal/geometry"
	"github.com/cylinder-vision/cargo-counting/dashboard-server/internal/zones"
)

// rawZone is one entry of a get_zones payload, in payload encounter order.
type rawZone struct {
	Name string
	P1   []int `json:"p1"`
	P2   []int `json:"p2"`
}

func (r rawZone) valid() bool {
	return len(r.P1) == 2 && len(r.P2) == 2
}

// decodeZonePayload reads a get_zones object while preserving key order.
// A plain map decode would randomize order and make the legacy fallback fill
// non-deterministic, so the object is walked token by token.
func decodeZonePayload(r io.Reader) ([]rawZone, error) {
	dec := json.NewDecoder(r)

	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("zones payload: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("zones payload: expected object, got %v", tok)
	}

	var out []rawZone
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("zones payload: %w", err)
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, fmt.Errorf("zones payload: non-string key %v", keyTok)
		}

		var entry rawZone
		if err := dec.Decode(&entry); err != nil {
			return nil, fmt.Errorf("zones payload: zone %q: %w", key, err)
		}
		entry.Name = key
		out = append(out, entry)
	}
	return out, nil
}

// normalizeZones folds an arbitrary remote payload into the fixed zone-name
// slots. Two phases:
//
//  1. exact match: a remote key equal to a fixed name with two 2-element
//     coordinate arrays decodes straight into that slot;
//  2. fallback fill: remaining remote keys that did not match any fixed name
//     are consumed in payload encounter order to fill the slots still
//     unassigned, in fixed-name order. This is a compatibility shim for data
//     written before the fixed-name scheme.
//
// Entries with a wrong array shape are treated as absent rather than raising
// an error; the slot they would have filled stays undefined (or is filled by
// the fallback pool). Slots left over become undefined.
func normalizeZones(raws []rawZone) zones.Set {
	set := zones.NewSet()
	consumed := make([]bool, len(raws))

	// Phase 1: exact-name matches.
	for i, raw := range raws {
		if !zones.IsFixedName(raw.Name) {
			continue
		}
		consumed[i] = true
		if raw.valid() && set[raw.Name] == nil {
			set[raw.Name] = rawToZone(raw)
		}
	}

	// Phase 2: fill remaining slots from unmatched keys in encounter order.
	next := 0
	for _, name := range zones.Names {
		if set[name] != nil {
			continue
		}
		for ; next < len(raws); next++ {
			if consumed[next] || !raws[next].valid() {
				continue
			}
			set[name] = rawToZone(raws[next])
			consumed[next] = true
			break
		}
	}

	return set
}

func rawToZone(raw rawZone) *zones.Zone {
	return &zones.Zone{
		P1: geometry.Point{X: raw.P1[0], Y: raw.P1[1]},
		P2: geometry.Point{X: raw.P2[0], Y: raw.P2[1]},
	}
}

// encodeZones serializes the defined zones only. An unconfigured zone is
// represented by absence, never by null, and a fully empty set encodes as {}.
func encodeZones(set zones.Set) ([]byte, error) {
	payload := make(map[string]map[string][2]int, len(set))
	for _, name := range zones.Names {
		z := set[name]
		if z == nil {
			continue
		}
		payload[name] = map[string][2]int{
			"p1": {z.P1.X, z.P1.Y},
			"p2": {z.P2.X, z.P2.Y},
		}
	}
	return json.Marshal(payload)
}
