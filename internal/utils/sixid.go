package utils

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// SixIDHookFunc defines the signature for the NewSixID test hook.
// It returns a SixID and a boolean indicating whether to override the default generation.
type SixIDHookFunc func() (id SixID, override bool)

// NewSixIDHook is a package-level variable that tests can set to override NewSixID behavior.
var NewSixIDHook SixIDHookFunc

// sixIDSubtype is the BSON binary subtype used to store SixIDs.
const sixIDSubtype byte = 0x80

// SixID is a 6-byte ID stored as BSON BinData with custom subtype 0x80.
// Conversations, messages, disputes, users and bookings are all addressed by SixID.
type SixID [6]byte

// NewSixID creates a new random SixID.
func NewSixID() SixID {
	if NewSixIDHook != nil {
		if id, override := NewSixIDHook(); override {
			return id
		}
	}

	var id SixID
	if _, err := rand.Read(id[:]); err != nil {
		// crypto/rand does not fail on supported platforms; a zero ID will be
		// rejected by the unique _id index and retried by db.Try.
		return SixID{}
	}
	return id
}

// IsZero reports whether the ID is unset. The BSON encoder uses it for omitempty.
func (u SixID) IsZero() bool {
	return u == SixID{}
}

// ParseSixID parses the Crockford Base32 string form of a SixID.
func ParseSixID(s string) (SixID, error) {
	return ParseCrockfordSixID(s)
}

// MustParseSixID is ParseSixID for constants in tests and fixtures.
func MustParseSixID(s string) SixID {
	id, err := ParseSixID(s)
	if err != nil {
		panic(fmt.Sprintf("invalid SixID %q: %v", s, err))
	}
	return id
}

// Crockford Base32 encoding alphabet (uppercase)
const crockfordAlphabet = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

var crockfordDecodeMap map[byte]byte

func init() {
	crockfordDecodeMap = make(map[byte]byte, 40)
	for i := range crockfordAlphabet {
		crockfordDecodeMap[crockfordAlphabet[i]] = byte(i)
	}
	lower := strings.ToLower(crockfordAlphabet)
	for i := 10; i < len(lower); i++ {
		crockfordDecodeMap[lower[i]] = byte(i)
	}

	// Commonly confused characters
	crockfordDecodeMap['O'] = crockfordDecodeMap['0']
	crockfordDecodeMap['o'] = crockfordDecodeMap['0']
	crockfordDecodeMap['I'] = crockfordDecodeMap['1']
	crockfordDecodeMap['i'] = crockfordDecodeMap['1']
	crockfordDecodeMap['L'] = crockfordDecodeMap['1']
	crockfordDecodeMap['l'] = crockfordDecodeMap['1']
}

// String returns the 10-character Crockford Base32 representation.
func (u SixID) String() string {
	result := make([]byte, 0, 10)
	var bits uint
	var offset uint

	for i := 0; i < len(u); i++ {
		bits |= uint(u[i]) << offset
		offset += 8
		for offset >= 5 {
			result = append(result, crockfordAlphabet[bits&0x1F])
			bits >>= 5
			offset -= 5
		}
	}
	if offset > 0 {
		result = append(result, crockfordAlphabet[bits&0x1F])
	}
	return string(result)
}

// ParseCrockfordSixID converts a Crockford Base32 string back to a SixID.
// Hyphens and spaces are ignored.
func ParseCrockfordSixID(s string) (SixID, error) {
	s = strings.NewReplacer("-", "", " ", "").Replace(s)
	if len(s) != 10 {
		return SixID{}, errors.New("invalid SixID: string length must be 10")
	}

	var id SixID
	var bits uint64
	var offset uint
	byteIndex := 0

	for i := 0; i < len(s); i++ {
		val, ok := crockfordDecodeMap[s[i]]
		if !ok {
			return SixID{}, fmt.Errorf("invalid character %q in SixID", s[i])
		}
		bits |= uint64(val) << offset
		offset += 5
		for offset >= 8 && byteIndex < len(id) {
			id[byteIndex] = byte(bits & 0xFF)
			byteIndex++
			bits >>= 8
			offset -= 8
		}
	}

	if byteIndex != len(id) {
		return SixID{}, errors.New("invalid SixID: could not decode 6 bytes")
	}
	return id, nil
}

// MarshalBSONValue stores the ID as binary subtype 0x80.
func (u SixID) MarshalBSONValue() (bsontype.Type, []byte, error) {
	return bson.MarshalValue(primitive.Binary{Subtype: sixIDSubtype, Data: u[:]})
}

// UnmarshalBSONValue accepts binary subtype 0x80 (or legacy subtype 0) of length 6.
func (u *SixID) UnmarshalBSONValue(t bsontype.Type, data []byte) error {
	if t == bsontype.Null || t == bsontype.Undefined {
		*u = SixID{}
		return nil
	}
	if t != bsontype.Binary {
		return fmt.Errorf("invalid BSON type for SixID: %s", t)
	}
	subtype, bin, ok := bson.RawValue{Type: t, Value: data}.BinaryOK()
	if !ok {
		return errors.New("malformed BSON binary for SixID")
	}
	if (subtype != sixIDSubtype && subtype != 0x00) || len(bin) != len(u) {
		return errors.New("invalid BSON binary data for SixID: incorrect subtype or length")
	}
	copy(u[:], bin)
	return nil
}

// MarshalJSON marshals the SixID as its Crockford Base32 string.
func (u SixID) MarshalJSON() ([]byte, error) {
	return json.Marshal(u.String())
}

// UnmarshalJSON unmarshals a SixID from its Crockford Base32 string.
func (u *SixID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseSixID(s)
	if err != nil {
		return err
	}
	*u = parsed
	return nil
}

// SortSixIDs returns a sorted copy of ids ordered by their string form.
func SortSixIDs(ids []SixID) []SixID {
	out := make([]SixID, len(ids))
	copy(out, ids)
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}
