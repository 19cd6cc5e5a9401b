package deb

import (
	"archive/tar"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"github.com/blakesmith/ar"
	"github.com/go-logr/logr"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
)

// Package inspects a binary package (.deb) on disk.
//
// Everything is read lazily on first access and cached for the lifetime of
// the Package. A Package must not be shared between goroutines without
// external synchronization.
type Package struct {
	path    string
	log     logr.Logger
	lenient bool

	control []byte
	headers *Headers
	version *Version
	info    *FileInfo
}

// FileInfo describes the package file itself.
type FileInfo struct {
	Size   int64
	MD5    string
	SHA1   string
	SHA256 string
}

// decompressors maps the control member names to their decompressor.
var decompressors = map[PackageFile]func(io.Reader) (io.ReadCloser, error){
	PkgControlTar: func(r io.Reader) (io.ReadCloser, error) {
		return io.NopCloser(r), nil
	},
	PkgControlTarGz: func(r io.Reader) (io.ReadCloser, error) {
		return gzip.NewReader(r)
	},
	PkgControlTarXz: func(r io.Reader) (io.ReadCloser, error) {
		xr, err := xz.NewReader(r)
		if err != nil {
			return nil, err
		}
		return io.NopCloser(xr), nil
	},
	PkgControlTarZst: func(r io.Reader) (io.ReadCloser, error) {
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, err
		}
		return zr.IOReadCloser(), nil
	},
}

// Open returns a Package for the .deb file at path. It fails with
// ErrInvalidInput if path is not a regular file. The logger is taken from ctx.
func Open(ctx context.Context, path string, opts ...Option) (*Package, error) {
	if err := checkRegular(path); err != nil {
		return nil, err
	}
	o := newOptions(opts)
	log := logr.FromContextOrDiscard(ctx)
	if o.log != nil {
		log = *o.log
	}
	return &Package{
		path:    path,
		log:     log.WithValues("deb", path),
		lenient: o.lenient,
	}, nil
}

func checkRegular(path string) error {
	fi, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	if !fi.Mode().IsRegular() {
		return fmt.Errorf("%w: %s is not a regular file", ErrInvalidInput, path)
	}
	return nil
}

// Path returns the path the Package was opened with.
func (p *Package) Path() string { return p.path }

// Control returns the raw content of the control file.
func (p *Package) Control() ([]byte, error) {
	if p.control != nil {
		return p.control, nil
	}
	f, err := os.Open(p.path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	control, err := ExtractControl(f, p.log)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", p.path, err)
	}
	p.control = control
	return control, nil
}

// Headers returns the parsed control headers. It fails with a
// MissingHeaderError when a required field is absent, unless the Package
// was opened with WithLenientHeaders.
func (p *Package) Headers() (*Headers, error) {
	if p.headers != nil {
		return p.headers, nil
	}
	control, err := p.Control()
	if err != nil {
		return nil, err
	}
	h, err := ParseHeaders(control)
	if err != nil {
		return nil, fmt.Errorf("%s: parsing control file: %w", p.path, err)
	}
	p.log.V(1).Info("parsed control headers", "count", h.Len())

	for _, field := range RequiredFields {
		if h.Has(string(field)) {
			continue
		}
		if !p.lenient {
			return nil, &MissingHeaderError{Path: p.path, Header: string(field)}
		}
		p.log.Info("required header missing", "header", field)
	}
	p.headers = h
	return h, nil
}

// Header returns the value of a control field. The error wraps
// ErrHeaderNotFound when the field is absent.
func (p *Package) Header(name string) (string, error) {
	h, err := p.Headers()
	if err != nil {
		return "", err
	}
	return h.Lookup(name)
}

// Version returns the decomposed Version field.
func (p *Package) Version() (Version, error) {
	if p.version != nil {
		return *p.version, nil
	}
	raw, err := p.Header(string(FieldVersion))
	if err != nil {
		return Version{}, err
	}
	v, err := ParseVersion(raw)
	if err != nil {
		return Version{}, fmt.Errorf("%s: %w", p.path, err)
	}
	p.version = &v
	return v, nil
}

// Epoch returns the epoch of the Version field, 0 when omitted.
func (p *Package) Epoch() (uint64, error) {
	v, err := p.Version()
	return v.Epoch, err
}

// Upstream returns the upstream part of the Version field.
func (p *Package) Upstream() (string, error) {
	v, err := p.Version()
	return v.Upstream, err
}

// Revision returns the Debian revision of the Version field, "0" when omitted.
func (p *Package) Revision() (string, error) {
	v, err := p.Version()
	return v.Revision, err
}

// CompareVersionWith compares the package version with other, see
// CompareVersions.
func (p *Package) CompareVersionWith(other string) (int, error) {
	raw, err := p.Header(string(FieldVersion))
	if err != nil {
		return 0, err
	}
	return CompareVersions(raw, other)
}

// FileInfo returns the size and digests of the package file, computed in a
// single pass.
func (p *Package) FileInfo() (FileInfo, error) {
	if p.info != nil {
		return *p.info, nil
	}
	n, sums, err := DigestFile(p.path, MD5, SHA1, SHA256)
	if err != nil {
		return FileInfo{}, err
	}
	p.info = &FileInfo{Size: n, MD5: sums[MD5], SHA1: sums[SHA1], SHA256: sums[SHA256]}
	return *p.info, nil
}

// WriteReport writes a human readable summary of the package: file identity
// followed by its control headers.
func (p *Package) WriteReport(w io.Writer) error {
	info, err := p.FileInfo()
	if err != nil {
		return err
	}
	h, err := p.Headers()
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Filename: %s\n", p.path)
	fmt.Fprintf(w, "Size:     %d\n", info.Size)
	fmt.Fprintf(w, "MD5:      %s\n", info.MD5)
	fmt.Fprintf(w, "SHA1:     %s\n", info.SHA1)
	fmt.Fprintf(w, "SHA256:   %s\n", info.SHA256)
	fmt.Fprintln(w, "Headers:")
	for _, k := range h.Keys() {
		v, _ := h.Get(k)
		fmt.Fprintf(w, "  %s: %s\n", k, strings.ReplaceAll(v, "\n", "\n  "))
	}
	return nil
}

// String returns the report written by WriteReport, or the error that
// prevented it.
func (p *Package) String() string {
	var b strings.Builder
	if err := p.WriteReport(&b); err != nil {
		return fmt.Sprintf("%s: %v", p.path, err)
	}
	return b.String()
}

// ExtractControl reads a .deb archive from r and returns the content of the
// control file found in its control member.
//
// The archive is read as a stream. It fails with ErrMissingControlMember when
// no control.tar* member exists and with ErrMissingControlFile when that
// member has no "control" entry.
func ExtractControl(r io.Reader, log logr.Logger) ([]byte, error) {
	magic := make([]byte, len(ar.GLOBAL_HEADER))
	if _, err := io.ReadFull(r, magic); err != nil {
		return nil, fmt.Errorf("reading container: %w", err)
	}
	if string(magic) != ar.GLOBAL_HEADER {
		return nil, fmt.Errorf("reading container: not an ar archive")
	}
	arR := ar.NewReader(io.MultiReader(bytes.NewReader(magic), r))

	for {
		hdr, err := arR.Next()
		if errors.Is(err, io.EOF) {
			return nil, ErrMissingControlMember
		}
		if err != nil {
			return nil, fmt.Errorf("reading container: %w", err)
		}
		name := strings.TrimSuffix(hdr.Name, "/")
		open, ok := decompressors[PackageFile(name)]
		if !ok {
			log.V(2).Info("skipping member", "member", name, "size", hdr.Size)
			continue
		}
		log.V(1).Info("found control member", "member", name, "size", hdr.Size)

		// Control members are small, keep the whole member in memory.
		data, err := io.ReadAll(arR)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", name, err)
		}
		return controlFromTar(name, data, open, log)
	}
}

func controlFromTar(member string, data []byte, open func(io.Reader) (io.ReadCloser, error), log logr.Logger) ([]byte, error) {
	zr, err := open(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decompressing %s: %w", member, err)
	}
	defer zr.Close()

	tr := tar.NewReader(zr)
	for {
		th, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil, ErrMissingControlFile
		}
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", member, err)
		}
		if th.Typeflag == tar.TypeDir || path.Base(th.Name) != string(FileControl) {
			continue
		}
		log.V(1).Info("found control file", "entry", th.Name)
		control, err := io.ReadAll(tr)
		if err != nil {
			return nil, fmt.Errorf("reading %s from %s: %w", th.Name, member, err)
		}
		return control, nil
	}
}
