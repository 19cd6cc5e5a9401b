package deb

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrInvalidInput is returned when a constructor is given a path that does
	// not exist or is not a regular file.
	ErrInvalidInput = errors.New("invalid input")

	// ErrMissingControlMember is returned when the package container has no
	// control.tar.* member.
	ErrMissingControlMember = errors.New("missing control member")

	// ErrMissingControlFile is returned when the control member holds no
	// entry named "control".
	ErrMissingControlFile = errors.New("missing control file")

	// ErrMissingRequiredHeader is wrapped by MissingHeaderError.
	ErrMissingRequiredHeader = errors.New("missing required header")

	// ErrHeaderNotFound is returned by header lookups when the header is absent.
	// A header that is present but empty is not an error.
	ErrHeaderNotFound = errors.New("header not found")

	// ErrBadSignature is returned when a document carries an OpenPGP envelope
	// that cannot be decoded or verified.
	ErrBadSignature = errors.New("bad signature")

	// ErrTokenMismatch means two token lists disagree on the token kind at the
	// same index. Tokenize never produces such lists.
	ErrTokenMismatch = errors.New("token kind mismatch")
)

// VersionSyntaxError reports a version string whose epoch is not an integer.
type VersionSyntaxError struct {
	Version string
	Err     error
}

func (e *VersionSyntaxError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid version %q: bad epoch: %v", e.Version, e.Err)
	}
	return fmt.Sprintf("invalid version %q: bad epoch", e.Version)
}

func (e *VersionSyntaxError) Unwrap() error { return e.Err }

// MissingHeaderError reports a required control header absent from a package.
type MissingHeaderError struct {
	Path   string
	Header string
}

func (e *MissingHeaderError) Error() string {
	return fmt.Sprintf("%s: missing required header %q", e.Path, e.Header)
}

func (e *MissingHeaderError) Unwrap() error { return ErrMissingRequiredHeader }

// MissingFileError lists the files declared by a source description that are
// absent from disk.
type MissingFileError struct {
	Paths []string
}

func (e *MissingFileError) Error() string {
	return fmt.Sprintf("missing files: %s", strings.Join(e.Paths, ", "))
}

// BadChecksumsError carries the digests actually computed for every file whose
// declared digest did not match.
type BadChecksumsError struct {
	Corrections ChecksumTable
}

func (e *BadChecksumsError) Error() string {
	var parts []string
	for _, algo := range e.Corrections.Algorithms() {
		paths := make([]string, 0, len(e.Corrections[algo]))
		for p := range e.Corrections[algo] {
			paths = append(paths, p)
		}
		sort.Strings(paths)
		for _, p := range paths {
			parts = append(parts, fmt.Sprintf("%s %s", algo, p))
		}
	}
	return fmt.Sprintf("bad checksums: %s", strings.Join(parts, ", "))
}

// HeaderSyntaxError reports a line that cannot belong to an RFC822 header block.
type HeaderSyntaxError struct {
	Line    int
	Content string
}

func (e *HeaderSyntaxError) Error() string {
	return fmt.Sprintf("line %d: malformed header line %q", e.Line, e.Content)
}

// MalformedFileListError reports a file list entry that is not a
// "<digest> <size> <filename>" triple.
type MalformedFileListError struct {
	Header string
	Entry  string
}

func (e *MalformedFileListError) Error() string {
	return fmt.Sprintf("header %s: malformed entry %q", e.Header, e.Entry)
}

// UnsupportedDigestError reports a digest algorithm with no implementation.
type UnsupportedDigestError struct {
	Algorithm string
}

func (e *UnsupportedDigestError) Error() string {
	return fmt.Sprintf("unsupported digest algorithm %q", e.Algorithm)
}
