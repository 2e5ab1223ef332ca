package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAddressRoundTrip(t *testing.T) {
	const s = "0x00000000000000000000000000000000000000ab"
	addr, err := ParseAddress(s)
	require.NoError(t, err)
	assert.Equal(t, s, addr.String())
}

func TestParseAddressRejectsWrongLength(t *testing.T) {
	_, err := ParseAddress("0xabcd")
	assert.ErrorContains(t, err, "expected 20 bytes")
}

func TestParsePoiHashRejectsWrongLength(t *testing.T) {
	_, err := ParsePoiHash("0x00000000000000000000000000000000000000ab")
	assert.ErrorContains(t, err, "expected 32 bytes")
}

// The wire form of every hash-like value is 0x-prefixed hex, including
// through JSON: requests and reports persisted as jsonb must stay
// greppable by the hashes operators know.
func TestJSONWireFormIsHex(t *testing.T) {
	var h PoiHash
	h[0] = 0xAA

	out, err := json.Marshal(BlockPointer{Number: 7, Hash: BlockHash{0x01, 0x02}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"number":7,"hash":"0x0102"}`, string(out))

	out, err = json.Marshal(h)
	require.NoError(t, err)
	assert.Equal(t, `"0xaa00000000000000000000000000000000000000000000000000000000000000"`, string(out))

	var back PoiHash
	require.NoError(t, json.Unmarshal(out, &back))
	assert.Equal(t, h, back)
}
