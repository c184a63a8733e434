package busmsg

import "unicode/utf8"

// stringIsUTF8 is the UTF-8 validity predicate spec.md §1 treats as an
// external collaborator. The standard library's validator is the
// correct tool here: none of the example repos roll their own UTF-8
// checker, and utf8.ValidString is the idiomatic choice for exactly
// this check.
func stringIsUTF8(s string) bool {
	return utf8.ValidString(s)
}
