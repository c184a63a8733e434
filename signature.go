package busmsg

import (
	"fmt"

	"github.com/creachadair/mds/mapset"
)

// Type codes, as they appear in a DBus signature string.
const (
	TypeByte       = 'y'
	TypeBoolean    = 'b'
	TypeInt16      = 'n'
	TypeUint16     = 'q'
	TypeInt32      = 'i'
	TypeUint32     = 'u'
	TypeInt64      = 'x'
	TypeUint64     = 't'
	TypeDouble     = 'd'
	TypeUnixFD     = 'h'
	TypeString     = 's'
	TypeObjectPath = 'o'
	TypeSignature  = 'g'
	TypeArray      = 'a'
	TypeVariant    = 'v'
	TypeStruct     = '('
	typeStructEnd  = ')'
	TypeDictEntry  = '{'
	typeDictEnd    = '}'
)

// Container is the kind of an open container frame. The zero value
// denotes the message's root (not itself a container).
type Container byte

const (
	ContainerNone      Container = 0
	ContainerArray     Container = TypeArray
	ContainerVariant   Container = TypeVariant
	ContainerStruct    Container = TypeStruct
	ContainerDictEntry Container = TypeDictEntry
)

func (c Container) String() string {
	switch c {
	case ContainerArray:
		return "array"
	case ContainerVariant:
		return "variant"
	case ContainerStruct:
		return "struct"
	case ContainerDictEntry:
		return "dict_entry"
	default:
		return "root"
	}
}

// basicTypeInfo describes the wire alignment and fixed size of a
// basic type. Size is 0 for the string-like types, whose size varies
// per value.
type basicTypeInfo struct {
	align int
	size  int
}

var basicTypes = map[byte]basicTypeInfo{
	TypeByte:       {1, 1},
	TypeBoolean:    {4, 4},
	TypeInt16:      {2, 2},
	TypeUint16:     {2, 2},
	TypeInt32:      {4, 4},
	TypeUint32:     {4, 4},
	TypeInt64:      {8, 8},
	TypeUint64:     {8, 8},
	TypeDouble:     {8, 8},
	TypeUnixFD:     {4, 4},
	TypeString:     {4, 0},
	TypeObjectPath: {4, 0},
	TypeSignature:  {1, 0},
}

// dictEntryKeyCodes is the set of basic type codes legal as a
// DICT_ENTRY key. Every basic type may be a map key in the wire
// format (the restriction to "hashable" key kinds is a host-language
// concern, not a wire-format one).
var dictEntryKeyCodes = mapset.New(
	byte(TypeByte), byte(TypeBoolean), byte(TypeInt16), byte(TypeUint16),
	byte(TypeInt32), byte(TypeUint32), byte(TypeInt64), byte(TypeUint64),
	byte(TypeDouble), byte(TypeUnixFD), byte(TypeString), byte(TypeObjectPath),
	byte(TypeSignature),
)

// isBasicCode reports whether c is a basic (non-container) type code.
func isBasicCode(c byte) bool {
	_, ok := basicTypes[c]
	return ok
}

// alignmentFor returns the wire alignment of the value that begins
// with signature sig, which must start with a single complete type.
func alignmentFor(sig string) int {
	switch c := sig[0]; c {
	case TypeArray:
		return 4
	case TypeVariant:
		return 1
	case TypeStruct, TypeDictEntry:
		return 8
	default:
		return basicTypes[c].align
	}
}

// elementLength returns the length, in signature characters, of the
// single complete type at the front of sig, or an error if sig does
// not begin with a well-formed complete type. inArray is true when
// parsing the contents of an array (the only place DICT_ENTRY is
// legal).
func elementLength(sig string, inArray bool) (int, error) {
	if sig == "" {
		return 0, fmt.Errorf("empty type signature")
	}
	c := sig[0]
	if _, ok := basicTypes[c]; ok {
		return 1, nil
	}
	switch c {
	case TypeVariant:
		return 1, nil
	case TypeArray:
		n, err := elementLength(sig[1:], true)
		if err != nil {
			return 0, fmt.Errorf("in array element type: %w", err)
		}
		return 1 + n, nil
	case TypeStruct:
		rest := sig[1:]
		total := 1
		if rest == "" {
			return 0, fmt.Errorf("unterminated struct signature %q", sig)
		}
		for {
			if rest == "" {
				return 0, fmt.Errorf("unterminated struct signature %q", sig)
			}
			if rest[0] == typeStructEnd {
				return total + 1, nil
			}
			n, err := elementLength(rest, false)
			if err != nil {
				return 0, fmt.Errorf("in struct field type: %w", err)
			}
			total += n
			rest = rest[n:]
		}
	case TypeDictEntry:
		if !inArray {
			return 0, fmt.Errorf("dict entry type found outside array")
		}
		rest := sig[1:]
		if rest == "" {
			return 0, fmt.Errorf("unterminated dict entry signature %q", sig)
		}
		if !dictEntryKeyCodes.Has(rest[0]) {
			return 0, fmt.Errorf("invalid dict entry key type %q, must be a basic type", rest[0])
		}
		kn, err := elementLength(rest, false)
		if err != nil {
			return 0, err
		}
		rest = rest[kn:]
		vn, err := elementLength(rest, false)
		if err != nil {
			return 0, fmt.Errorf("in dict entry value type: %w", err)
		}
		rest = rest[vn:]
		if rest == "" || rest[0] != typeDictEnd {
			return 0, fmt.Errorf("dict entry must contain exactly one key and one value type")
		}
		return 1 + kn + vn + 1, nil
	default:
		return 0, fmt.Errorf("unknown type code %q", c)
	}
}

// isSingleCompleteType reports whether sig is exactly one complete
// type, with nothing left over. Used to validate the contents of
// ARRAY and VARIANT, which must each hold exactly one complete type.
// A DICT_ENTRY is accepted here, since it is legal as an ARRAY's
// element type; callers validating a VARIANT's contents separately
// reject a bare DICT_ENTRY, since only "a{...}" is legal, not "v" of
// "{...}".
func isSingleCompleteType(sig string) bool {
	n, err := elementLength(sig, true)
	return err == nil && n == len(sig)
}

// validateSignature reports whether sig is a well-formed sequence of
// zero or more complete types, as required of a STRUCT's contents or
// a message's root body signature.
func validateSignature(sig string) error {
	rest := sig
	for rest != "" {
		n, err := elementLength(rest, false)
		if err != nil {
			return fmt.Errorf("invalid signature %q: %w", sig, err)
		}
		rest = rest[n:]
	}
	return nil
}

// ParseSignature validates sig as a DBus type signature string and
// returns it unchanged. It is provided for callers that want an
// explicit validation step before using a signature with
// [Message.OpenContainer] or [Message.EnterContainer].
func ParseSignature(sig string) (string, error) {
	if err := validateSignature(sig); err != nil {
		return "", err
	}
	return sig, nil
}
