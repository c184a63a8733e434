package busmsg

import "strings"

// The validators in this file implement the signature- and
// name-grammar predicates that spec.md treats as black boxes supplied
// by the surrounding system (object_path_is_valid, name validators).
// Their exact rules come straight from the DBus specification's
// grammar for object paths and names.

// ObjectPathIsValid reports whether p is a syntactically valid DBus
// object path: starts with '/', every element is non-empty and made
// of [A-Za-z0-9_], elements are separated by single '/'s, and the
// path is not (except for the root) terminated by '/'.
func ObjectPathIsValid(p string) bool {
	if p == "" || p[0] != '/' {
		return false
	}
	if p == "/" {
		return true
	}
	if strings.HasSuffix(p, "/") {
		return false
	}
	for _, elem := range strings.Split(p[1:], "/") {
		if elem == "" {
			return false
		}
		for i := 0; i < len(elem); i++ {
			if !isNameChar(elem[i]) {
				return false
			}
		}
	}
	return true
}

// InterfaceNameIsValid reports whether n is a syntactically valid
// DBus interface name: at least two dot-separated elements, each
// starting with a letter or underscore and continuing with
// [A-Za-z0-9_], total length at most 255.
func InterfaceNameIsValid(n string) bool {
	return dottedNameIsValid(n, 2)
}

// BusNameIsValid reports whether n is a syntactically valid DBus bus
// name: either a unique name (starting with ':', in which case
// elements may start with a digit) or the same grammar as an
// interface name.
func BusNameIsValid(n string) bool {
	if strings.HasPrefix(n, ":") {
		return dottedNameElementsValid(n[1:], 1, true)
	}
	return dottedNameIsValid(n, 2)
}

// MemberNameIsValid reports whether n is a syntactically valid DBus
// member (method, signal, or error name's final component): 1-255
// characters, [A-Za-z0-9_], not starting with a digit.
func MemberNameIsValid(n string) bool {
	return len(n) <= 255 && isNameElementValid(n, false)
}

// ErrorNameIsValid reports whether n is a syntactically valid DBus
// error name, which uses the same grammar as an interface name.
func ErrorNameIsValid(n string) bool {
	return dottedNameIsValid(n, 2)
}

func dottedNameIsValid(n string, minElements int) bool {
	return dottedNameElementsValid(n, minElements, false)
}

func dottedNameElementsValid(n string, minElements int, allowLeadingDigit bool) bool {
	if n == "" || len(n) > 255 {
		return false
	}
	elems := strings.Split(n, ".")
	if len(elems) < minElements {
		return false
	}
	for _, e := range elems {
		if !isNameElementValid(e, allowLeadingDigit) {
			return false
		}
	}
	return true
}

func isNameElementValid(e string, allowLeadingDigit bool) bool {
	if e == "" {
		return false
	}
	if !allowLeadingDigit && e[0] >= '0' && e[0] <= '9' {
		return false
	}
	for i := 0; i < len(e); i++ {
		if !isNameChar(e[i]) {
			return false
		}
	}
	return true
}

func isNameChar(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '_':
		return true
	default:
		return false
	}
}

// utf8NoNUL reports whether s is valid UTF-8 containing no embedded
// NUL byte, the requirement DBus places on STRING and OBJECT_PATH
// contents (spec.md §3 invariant 6). Object path and interface/member
// grammar are ASCII subsets of this, so this check alone is
// sufficient for plain strings.
func utf8NoNUL(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] == 0 {
			return false
		}
	}
	return stringIsUTF8(s)
}
