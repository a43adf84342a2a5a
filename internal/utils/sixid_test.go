package utils

import (
	"encoding/json"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

func TestSixID_StringRoundTrip(t *testing.T) {
	for i := 0; i < 50; i++ {
		id := NewSixID()
		s := id.String()
		require.Len(t, s, 10)
		parsed, err := ParseSixID(s)
		require.NoError(t, err)
		assert.Equal(t, id, parsed)
	}
}

func TestSixID_ParseLenient(t *testing.T) {
	id := SixID{0x10, 0x20, 0x30, 0x40, 0x50, 0x60}
	s := id.String()

	parsed, err := ParseSixID(s[:5] + "-" + s[5:])
	require.NoError(t, err)
	assert.Equal(t, id, parsed)

	_, err = ParseSixID("short")
	assert.Error(t, err)
	_, err = ParseSixID("UUUUUUUUUU")
	assert.Error(t, err, "U is not part of the Crockford alphabet")
}

func TestSixID_BSONDocument(t *testing.T) {
	type holder struct {
		ID    SixID  `bson:"_id"`
		Owner *SixID `bson:"owner,omitempty"`
	}
	owner := NewSixID()
	in := holder{ID: NewSixID(), Owner: &owner}

	raw, err := bson.Marshal(in)
	require.NoError(t, err)

	var out holder
	require.NoError(t, bson.Unmarshal(raw, &out))
	assert.Equal(t, in.ID, out.ID)
	require.NotNil(t, out.Owner)
	assert.Equal(t, owner, *out.Owner)

	subtype, data := bson.Raw(raw).Lookup("_id").Binary()
	assert.Equal(t, byte(0x80), subtype)
	assert.Len(t, data, 6)
}

func TestSixID_JSON(t *testing.T) {
	id := NewSixID()
	b, err := json.Marshal(map[string]SixID{"id": id})
	require.NoError(t, err)
	assert.Contains(t, string(b), id.String())

	var out map[string]SixID
	require.NoError(t, json.Unmarshal(b, &out))
	assert.Equal(t, id, out["id"])
}

func TestSixID_IsZeroAndSort(t *testing.T) {
	assert.True(t, SixID{}.IsZero())
	assert.False(t, NewSixID().IsZero())

	a := MustParseSixID("0000000001")
	b := MustParseSixID("0000000002")
	sorted := SortSixIDs([]SixID{b, a})
	assert.Equal(t, []SixID{a, b}, sorted)
}

func TestRandomCode(t *testing.T) {
	re := regexp.MustCompile(`^[A-Z0-9]{9}$`)
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		code, err := RandomCode(9)
		require.NoError(t, err)
		assert.Regexp(t, re, code)
		seen[code] = true
	}
	assert.Len(t, seen, 100)
}
