package deb

import (
	"cmp"
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// Token is one run of a tokenized version segment. Tokens alternate between
// non-digit runs (Numeric false) and digit runs (Numeric true), starting with
// a non-digit run that may be empty.
type Token struct {
	Text    string
	Numeric bool
}

// Value returns the comparable form of the token. For digit runs leading
// zeros are dropped and an empty run reads as "0".
func (t Token) Value() string {
	if !t.Numeric {
		return t.Text
	}
	v := strings.TrimLeft(t.Text, "0")
	if v == "" {
		return "0"
	}
	return v
}

// Version is a decomposed Debian version string.
//
// Reference: https://www.debian.org/doc/debian-policy/ch-controlfields.html#version
type Version struct {
	Epoch    uint64
	Upstream string
	Revision string
}

// String renders v in the [epoch:]upstream[-revision] form. The default
// epoch and revision are omitted unless the upstream part needs them to
// parse back unambiguously.
func (v Version) String() string {
	var b strings.Builder
	if v.Epoch > 0 || strings.Contains(v.Upstream, ":") {
		b.WriteString(strconv.FormatUint(v.Epoch, 10))
		b.WriteByte(':')
	}
	b.WriteString(v.Upstream)
	if v.Revision != "0" || strings.Contains(v.Upstream, "-") {
		b.WriteByte('-')
		b.WriteString(v.Revision)
	}
	return b.String()
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isAlpha(c byte) bool { return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') }

// Tokenize splits s into alternating non-digit and digit runs. The result
// always has an even length and concatenating the token texts gives s back.
func Tokenize(s string) []Token {
	var tokens []Token
	for len(s) > 0 {
		i := 0
		for i < len(s) && !isDigit(s[i]) {
			i++
		}
		tokens = append(tokens, Token{Text: s[:i]})
		s = s[i:]

		j := 0
		for j < len(s) && isDigit(s[j]) {
			j++
		}
		tokens = append(tokens, Token{Text: s[:j], Numeric: true})
		s = s[j:]
	}
	return tokens
}

// CompareStrings compares two non-digit runs the way dpkg does: '~' sorts
// before everything including the end of the string, letters sort before
// non-letters, and the rest compares by byte value. It returns -1, 0 or 1.
func CompareStrings(a, b string) int {
	if a == b {
		return 0
	}
	n := min(len(a), len(b))
	for i := 0; i < n; i++ {
		x, y := a[i], b[i]
		if x == y {
			continue
		}
		switch {
		case x == '~':
			return -1
		case y == '~':
			return 1
		case isAlpha(x) && !isAlpha(y):
			return -1
		case !isAlpha(x) && isAlpha(y):
			return 1
		case x < y:
			return -1
		default:
			return 1
		}
	}
	// One string is a prefix of the other.
	if len(a) > len(b) {
		if a[n] == '~' {
			return -1
		}
		return 1
	}
	if b[n] == '~' {
		return 1
	}
	return -1
}

// compareDigits compares two digit runs by numeric value.
func compareDigits(x, y Token) int {
	a, b := x.Value(), y.Value()
	if c := cmp.Compare(len(a), len(b)); c != 0 {
		return c
	}
	return strings.Compare(a, b)
}

// tokenAt returns the token at index i, or the default for that position
// when the list is shorter.
func tokenAt(tokens []Token, i int) Token {
	if i < len(tokens) {
		return tokens[i]
	}
	return Token{Numeric: i%2 == 1}
}

func compareTokens(a, b []Token) (int, error) {
	n := max(len(a), len(b))
	for i := 0; i < n; i++ {
		x, y := tokenAt(a, i), tokenAt(b, i)
		if x.Numeric != y.Numeric {
			return 0, fmt.Errorf("%w at index %d", ErrTokenMismatch, i)
		}
		var c int
		if x.Numeric {
			c = compareDigits(x, y)
		} else {
			c = CompareStrings(x.Text, y.Text)
		}
		if c != 0 {
			return c, nil
		}
	}
	return 0, nil
}

// CompareRevisions compares two upstream or revision segments. Digit runs
// compare numerically and non-digit runs with CompareStrings. The shorter
// side behaves as if padded with empty runs and zeros, so "" equals "0" and
// "1.0~" sorts before "1.0", as dpkg does. A longer token list therefore does
// not win by length alone.
func CompareRevisions(a, b string) (int, error) {
	c, err := compareTokens(Tokenize(a), Tokenize(b))
	if err != nil {
		return 0, fmt.Errorf("comparing %q and %q: %w", a, b, err)
	}
	return c, nil
}

// SplitEpoch splits the epoch off a full version string. Without a colon the
// epoch is 0.
func SplitEpoch(v string) (uint64, string, error) {
	idx := strings.Index(v, ":")
	if idx == -1 {
		return 0, v, nil
	}
	epoch, err := strconv.ParseUint(v[:idx], 10, 64)
	if err != nil {
		return 0, "", &VersionSyntaxError{Version: v, Err: err}
	}
	return epoch, v[idx+1:], nil
}

// SplitRevision splits the Debian revision, the text after the last hyphen,
// off an epoch-less version. Without a hyphen the revision is "0".
func SplitRevision(v string) (upstream, revision string) {
	idx := strings.LastIndex(v, "-")
	if idx == -1 {
		return v, "0"
	}
	return v[:idx], v[idx+1:]
}

// ParseVersion decomposes a full version string.
func ParseVersion(v string) (Version, error) {
	epoch, rest, err := SplitEpoch(v)
	if err != nil {
		return Version{}, err
	}
	upstream, revision := SplitRevision(rest)
	return Version{Epoch: epoch, Upstream: upstream, Revision: revision}, nil
}

// CompareVersions compares two full version strings and returns -1, 0 or 1.
// Versions that differ only by an implied epoch or revision compare equal.
func CompareVersions(a, b string) (int, error) {
	if a == b {
		return 0, nil
	}
	va, err := ParseVersion(a)
	if err != nil {
		return 0, err
	}
	vb, err := ParseVersion(b)
	if err != nil {
		return 0, err
	}
	if c := cmp.Compare(va.Epoch, vb.Epoch); c != 0 {
		return c, nil
	}
	if c, err := CompareRevisions(va.Upstream, vb.Upstream); c != 0 || err != nil {
		return c, err
	}
	return CompareRevisions(va.Revision, vb.Revision)
}

// MustCompareVersions is like CompareVersions but panics on a malformed
// version. It fits slices.SortFunc for inputs that are known to be valid.
func MustCompareVersions(a, b string) int {
	c, err := CompareVersions(a, b)
	if err != nil {
		panic(err)
	}
	return c
}

// SortVersions sorts versions in place, oldest first. It leaves the slice
// untouched and returns the first error if any version is malformed.
func SortVersions(versions []string) error {
	for _, v := range versions {
		if _, err := ParseVersion(v); err != nil {
			return err
		}
	}
	slices.SortStableFunc(versions, MustCompareVersions)
	return nil
}

// ByVersion implements sort.Interface over version strings. Malformed
// versions sort after all valid ones.
type ByVersion []string

func (s ByVersion) Len() int      { return len(s) }
func (s ByVersion) Swap(i, j int) { s[i], s[j] = s[j], s[i] }
func (s ByVersion) Less(i, j int) bool {
	c, err := CompareVersions(s[i], s[j])
	if err != nil {
		_, errI := ParseVersion(s[i])
		return errI == nil
	}
	return c < 0
}

// BumpVersion returns a version that sorts right after v by bumping its
// Debian revision.
//
//  1. Without a revision, "-1" is appended.
//  2. A purely numeric revision is incremented ("1.0-1" -> "1.0-2").
//  3. Otherwise the last alphanumeric character of the revision is bumped
//     through 0-9 then a-z ("1.0-1a" -> "1.0-1b", "1.0-1.9" -> "1.0-1.a");
//     a trailing 'z' gets a '1' appended ("1.0-1z" -> "1.0-1z1").
func BumpVersion(v string) string {
	idx := strings.LastIndex(v, "-")
	if idx == -1 {
		return v + "-1"
	}
	prefix := v[:idx+1]
	rev := v[idx+1:]
	if rev == "" {
		return prefix + "1"
	}

	if i, err := strconv.ParseUint(rev, 10, 64); err == nil {
		return prefix + strconv.FormatUint(i+1, 10)
	}

	b := []byte(rev)
	for i := len(b) - 1; i >= 0; i-- {
		switch c := b[i]; {
		case c >= '0' && c < '9', c >= 'a' && c < 'z':
			b[i]++
			return prefix + string(b)
		case c == '9':
			b[i] = 'a'
			return prefix + string(b)
		case c == 'z':
			return prefix + string(b[:i+1]) + "1" + string(b[i+1:])
		}
	}
	return v + "1"
}
