package backend

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cylinder-vision/cargo-counting/dashboard-server/internal/geometry"
	"github.com/cylinder-vision/cargo-counting/dashboard-server/internal/zones"
)

func normalizeJSON(t *testing.T, payload string) zones.Set {
	t.Helper()
	raws, err := decodeZonePayload(strings.NewReader(payload))
	require.NoError(t, err)
	return normalizeZones(raws)
}

func TestNormalizeExactMatch(t *testing.T) {
	set := normalizeJSON(t, `{"A":{"p1":[1,2],"p2":[3,4]},"C":{"p1":[5,6],"p2":[7,8]}}`)

	require.NotNil(t, set["A"])
	assert.Equal(t, geometry.Point{X: 1, Y: 2}, set["A"].P1)
	assert.Equal(t, geometry.Point{X: 3, Y: 4}, set["A"].P2)
	assert.Nil(t, set["B"])
	require.NotNil(t, set["C"])
	assert.Equal(t, geometry.Point{X: 5, Y: 6}, set["C"].P1)
}

func TestNormalizeFallbackFill(t *testing.T) {
	// Legacy payload with no fixed-name keys: the first unmatched key fills
	// the first open slot.
	set := normalizeJSON(t, `{"zone1":{"p1":[1,1],"p2":[2,2]}}`)

	require.NotNil(t, set["A"])
	assert.Equal(t, geometry.Point{X: 1, Y: 1}, set["A"].P1)
	assert.Equal(t, geometry.Point{X: 2, Y: 2}, set["A"].P2)
	assert.Nil(t, set["B"])
	assert.Nil(t, set["C"])
}

func TestNormalizeFallbackPreservesEncounterOrder(t *testing.T) {
	set := normalizeJSON(t, `{
		"gate_front":{"p1":[1,1],"p2":[2,2]},
		"B":{"p1":[9,9],"p2":[8,8]},
		"gate_rear":{"p1":[3,3],"p2":[4,4]}
	}`)

	// B matched exactly; the two legacy keys fill A then C in payload order.
	require.NotNil(t, set["A"])
	assert.Equal(t, geometry.Point{X: 1, Y: 1}, set["A"].P1)
	require.NotNil(t, set["B"])
	assert.Equal(t, geometry.Point{X: 9, Y: 9}, set["B"].P1)
	require.NotNil(t, set["C"])
	assert.Equal(t, geometry.Point{X: 3, Y: 3}, set["C"].P1)
}

func TestNormalizeMalformedShapeBecomesUndefined(t *testing.T) {
	// Wrong array shapes never throw; the slot stays undefined and the rest
	// of the set loads normally.
	set := normalizeJSON(t, `{
		"A":{"p1":[1],"p2":[2,2]},
		"B":{"p1":[10,10],"p2":[20,20]}
	}`)

	assert.Nil(t, set["A"])
	require.NotNil(t, set["B"])
	assert.Equal(t, geometry.Point{X: 10, Y: 10}, set["B"].P1)
	assert.Nil(t, set["C"])
}

func TestNormalizeMalformedLegacyKeySkipped(t *testing.T) {
	set := normalizeJSON(t, `{
		"broken":{"p1":[],"p2":[1]},
		"ok":{"p1":[5,5],"p2":[6,6]}
	}`)

	require.NotNil(t, set["A"])
	assert.Equal(t, geometry.Point{X: 5, Y: 5}, set["A"].P1)
	assert.Nil(t, set["B"])
}

func TestNormalizeFixedSlotInvariant(t *testing.T) {
	payloads := []string{
		`{}`,
		`{"A":{"p1":[0,0],"p2":[1,1]}}`,
		`{"x":{"p1":[0,0],"p2":[1,1]},"y":{"p1":[2,2],"p2":[3,3]},"z":{"p1":[4,4],"p2":[5,5]},"w":{"p1":[6,6],"p2":[7,7]}}`,
	}
	for _, payload := range payloads {
		set := normalizeJSON(t, payload)
		assert.Len(t, set, len(zones.Names), "payload %s", payload)
		for _, name := range zones.Names {
			_, ok := set[name]
			assert.True(t, ok, "missing slot %s for payload %s", name, payload)
		}
	}
}

func TestNormalizeExtraKeysDropped(t *testing.T) {
	// Four legacy zones but only three slots: the surplus key is discarded.
	set := normalizeJSON(t, `{
		"q":{"p1":[0,0],"p2":[1,1]},
		"r":{"p1":[2,2],"p2":[3,3]},
		"s":{"p1":[4,4],"p2":[5,5]},
		"t":{"p1":[6,6],"p2":[7,7]}
	}`)

	assert.Equal(t, 3, set.DefinedCount())
	assert.Equal(t, geometry.Point{X: 4, Y: 4}, set["C"].P1)
}

func TestEncodeZonesDefinedOnly(t *testing.T) {
	set := zones.NewSet()
	set["B"] = &zones.Zone{P1: geometry.Point{X: 12, Y: 34}, P2: geometry.Point{X: 56, Y: 78}}

	data, err := encodeZones(set)
	require.NoError(t, err)
	assert.JSONEq(t, `{"B":{"p1":[12,34],"p2":[56,78]}}`, string(data))
}

func TestEncodeZonesEmptySet(t *testing.T) {
	data, err := encodeZones(zones.NewSet())
	require.NoError(t, err)
	assert.Equal(t, `{}`, string(data))
}

func TestNormalizationRoundTripIdempotent(t *testing.T) {
	original := `{"A":{"p1":[10,10],"p2":[500,500]},"C":{"p1":[7,8],"p2":[9,10]}}`

	first := normalizeJSON(t, original)
	encoded, err := encodeZones(first)
	require.NoError(t, err)
	second := normalizeJSON(t, string(encoded))

	assert.True(t, first.Equal(second), "load-save-load drifted: %v vs %v", first, second)
}

func TestDecodeZonePayloadRejectsNonObject(t *testing.T) {
	_, err := decodeZonePayload(strings.NewReader(`[1,2,3]`))
	require.Error(t, err)
}
