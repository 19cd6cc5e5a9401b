// Package apt builds APT index files for a local pool of .deb packages.
//
// Packages are inspected with the deb package; nothing is downloaded or
// rebuilt. The resulting index can be written as 'Packages', 'Packages.gz'
// and a 'Release' file listing their digests.
package apt

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/etnz/debinspect/deb"
	"github.com/go-logr/logr"
	"github.com/klauspost/compress/gzip"
)

// ArchiveInfo holds metadata about the repository itself.
// These fields are written to the 'Release' file.
type ArchiveInfo struct {
	Origin        string
	Label         string
	Suite         string
	Codename      string
	Architectures string
	Components    string
	Description   string
}

// Package is one entry of a 'Packages' index.
type Package struct {
	Name         string
	Version      string
	Architecture string
	// Control is the normalized control stanza of the package, without the
	// index-only fields below.
	Control string

	// Filename is the path of the .deb relative to the repository root.
	Filename string
	Size     int64
	MD5      string
	SHA1     string
	SHA256   string
}

// id is the uniqueness key of a package in an index.
func (p *Package) id() string {
	return fmt.Sprintf("%s|%s|%s", p.Name, p.Version, p.Architecture)
}

// Stanza returns the index stanza of the package, terminated by a blank line.
func (p *Package) Stanza() string {
	var b strings.Builder
	b.WriteString(strings.TrimRight(p.Control, "\n"))
	b.WriteString("\n")
	fmt.Fprintf(&b, "%s: %s\n", deb.FieldIndexFilename, p.Filename)
	fmt.Fprintf(&b, "%s: %d\n", deb.FieldIndexSize, p.Size)
	fmt.Fprintf(&b, "%s: %s\n", deb.FieldIndexMD5sum, p.MD5)
	fmt.Fprintf(&b, "%s: %s\n", deb.FieldIndexSHA1, p.SHA1)
	fmt.Fprintf(&b, "%s: %s\n\n", deb.FieldIndexSHA256, p.SHA256)
	return b.String()
}

// FromDeb builds an index entry for an inspected package. filename is the
// path recorded in the index.
func FromDeb(pkg *deb.Package, filename string) (*Package, error) {
	h, err := pkg.Headers()
	if err != nil {
		return nil, err
	}
	info, err := pkg.FileInfo()
	if err != nil {
		return nil, err
	}
	p := &Package{
		Control:  h.String(),
		Filename: filepath.ToSlash(filename),
		Size:     info.Size,
		MD5:      info.MD5,
		SHA1:     info.SHA1,
		SHA256:   info.SHA256,
	}
	if p.Name, err = h.Lookup(string(deb.FieldPackage)); err != nil {
		return nil, fmt.Errorf("%s: %w", pkg.Path(), err)
	}
	if p.Version, err = h.Lookup(string(deb.FieldVersion)); err != nil {
		return nil, fmt.Errorf("%s: %w", pkg.Path(), err)
	}
	if p.Architecture, err = h.Lookup(string(deb.FieldArchitecture)); err != nil {
		return nil, fmt.Errorf("%s: %w", pkg.Path(), err)
	}
	return p, nil
}

// PackageIndex is an in-memory database of packages.
// It serves as the staging area for generating the 'Packages' file.
// It enforces uniqueness based on "Name|Version|Architecture".
type PackageIndex struct {
	packages map[string]*Package
}

// NewPackageIndex returns an empty index.
func NewPackageIndex() *PackageIndex {
	return &PackageIndex{packages: make(map[string]*Package)}
}

// Add inserts a package into the index.
// It returns an error if the package has no name, an invalid version, or if a
// package with the same Name, Version, and Architecture already exists.
func (idx *PackageIndex) Add(p *Package) error {
	if p.Name == "" || p.Architecture == "" {
		return fmt.Errorf("package %q: missing name or architecture", p.Filename)
	}
	if _, err := deb.ParseVersion(p.Version); err != nil {
		return fmt.Errorf("package %s: %w", p.Name, err)
	}
	id := p.id()
	if _, exists := idx.packages[id]; exists {
		return fmt.Errorf("duplicate package: %s", id)
	}
	idx.packages[id] = p
	return nil
}

// Append merges another index into this one.
func (idx *PackageIndex) Append(other *PackageIndex) error {
	for _, p := range other.Packages() {
		if err := idx.Add(p); err != nil {
			return err
		}
	}
	return nil
}

// Len returns the number of packages in the index.
func (idx *PackageIndex) Len() int { return len(idx.packages) }

// Packages returns the packages ordered by name, version and architecture.
func (idx *PackageIndex) Packages() []*Package {
	pkgs := make([]*Package, 0, len(idx.packages))
	for _, p := range idx.packages {
		pkgs = append(pkgs, p)
	}
	slices.SortFunc(pkgs, func(a, b *Package) int {
		if c := strings.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		// Versions are validated by Add.
		if c := deb.MustCompareVersions(a.Version, b.Version); c != 0 {
			return c
		}
		if c := strings.Compare(a.Architecture, b.Architecture); c != 0 {
			return c
		}
		return strings.Compare(a.Version, b.Version)
	})
	return pkgs
}

// Latest returns the newest version of a package for an architecture.
func (idx *PackageIndex) Latest(name, arch string) (*Package, bool) {
	var latest *Package
	for _, p := range idx.packages {
		if p.Name != name || p.Architecture != arch {
			continue
		}
		if latest == nil || deb.MustCompareVersions(p.Version, latest.Version) > 0 {
			latest = p
		}
	}
	return latest, latest != nil
}

// Scan walks root for .deb files, inspects each one and returns the index of
// those that could be read. Failures are logged and returned joined; the
// index is valid even when the error is not nil.
func Scan(ctx context.Context, root string, opts ...deb.Option) (*PackageIndex, error) {
	log := logr.FromContextOrDiscard(ctx)
	idx := NewPackageIndex()
	var errs []error

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".deb") {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if err := addDeb(ctx, idx, path, rel, opts); err != nil {
			log.Error(err, "skipping package", "path", path)
			errs = append(errs, err)
			return nil
		}
		log.V(1).Info("indexed package", "path", rel)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", root, err)
	}
	return idx, errors.Join(errs...)
}

func addDeb(ctx context.Context, idx *PackageIndex, path, rel string, opts []deb.Option) error {
	pkg, err := deb.Open(ctx, path, opts...)
	if err != nil {
		return err
	}
	p, err := FromDeb(pkg, rel)
	if err != nil {
		return err
	}
	return idx.Add(p)
}

// WritePackages writes the 'Packages' index.
func (idx *PackageIndex) WritePackages(w io.Writer) error {
	bw := bufio.NewWriter(w)
	for _, p := range idx.Packages() {
		if _, err := bw.WriteString(p.Stanza()); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// ReadPackages parses a 'Packages' index, as written by WritePackages.
func ReadPackages(r io.Reader) (*PackageIndex, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	idx := NewPackageIndex()
	for _, stanza := range strings.Split(string(data), "\n\n") {
		if strings.TrimSpace(stanza) == "" {
			continue
		}
		p, err := parseStanza(stanza)
		if err != nil {
			return nil, err
		}
		if err := idx.Add(p); err != nil {
			return nil, err
		}
	}
	return idx, nil
}

// indexOnly are the fields added to a control stanza by the index.
var indexOnly = []deb.ControlField{
	deb.FieldIndexFilename, deb.FieldIndexSize, deb.FieldIndexMD5sum, deb.FieldIndexSHA1, deb.FieldIndexSHA256,
}

func parseStanza(stanza string) (*Package, error) {
	h, err := deb.ParseHeaders([]byte(stanza))
	if err != nil {
		return nil, err
	}
	get := func(f deb.ControlField) string {
		v, _ := h.Get(string(f))
		return v
	}
	p := &Package{
		Name:         get(deb.FieldPackage),
		Version:      get(deb.FieldVersion),
		Architecture: get(deb.FieldArchitecture),
		Filename:     get(deb.FieldIndexFilename),
		MD5:          get(deb.FieldIndexMD5sum),
		SHA1:         get(deb.FieldIndexSHA1),
		SHA256:       get(deb.FieldIndexSHA256),
	}
	if s := get(deb.FieldIndexSize); s != "" {
		if p.Size, err = strconv.ParseInt(s, 10, 64); err != nil {
			return nil, fmt.Errorf("package %s: bad size %q: %w", p.Name, s, err)
		}
	}

	control := deb.NewHeaders()
	for _, k := range h.Keys() {
		if slices.ContainsFunc(indexOnly, func(f deb.ControlField) bool { return strings.EqualFold(k, string(f)) }) {
			continue
		}
		v, _ := h.Get(k)
		control.Set(k, v)
	}
	p.Control = control.String()
	return p, nil
}

// Indices holds the generated index files.
type Indices struct {
	Packages   []byte
	PackagesGz []byte
	Release    []byte
	// InRelease and PublicKey are only set by Sign.
	InRelease []byte
	PublicKey []byte
}

// ComputeIndices generates the repository metadata files in memory.
// 1. Packages: The text index of all packages.
// 2. Packages.gz: Compressed index.
// 3. Release: Metadata about the repository and digests of the indices.
func (idx *PackageIndex) ComputeIndices(info ArchiveInfo, now time.Time) (*Indices, error) {
	var pkgBuf bytes.Buffer
	if err := idx.WritePackages(&pkgBuf); err != nil {
		return nil, err
	}

	var gzBuf bytes.Buffer
	gw := gzip.NewWriter(&gzBuf)
	if _, err := gw.Write(pkgBuf.Bytes()); err != nil {
		return nil, err
	}
	if err := gw.Close(); err != nil {
		return nil, err
	}

	out := &Indices{Packages: pkgBuf.Bytes(), PackagesGz: gzBuf.Bytes()}
	release, err := generateRelease(info, now, map[string][]byte{
		"Packages":    out.Packages,
		"Packages.gz": out.PackagesGz,
	})
	if err != nil {
		return nil, err
	}
	out.Release = release
	return out, nil
}

func generateRelease(info ArchiveInfo, now time.Time, files map[string][]byte) ([]byte, error) {
	var b bytes.Buffer
	writeField := func(key, value string) {
		if value != "" {
			fmt.Fprintf(&b, "%s: %s\n", key, value)
		}
	}
	writeField("Origin", info.Origin)
	writeField("Label", info.Label)
	writeField("Suite", info.Suite)
	writeField("Codename", info.Codename)
	writeField("Date", now.UTC().Format(time.RFC1123Z))
	writeField("Architectures", info.Architectures)
	writeField("Components", info.Components)
	writeField("Description", info.Description)

	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	slices.Sort(names)

	sums := make(map[string]map[string]string, len(files))
	for _, name := range names {
		_, s, err := deb.Digests(bytes.NewReader(files[name]), deb.MD5, deb.SHA1, deb.SHA256)
		if err != nil {
			return nil, err
		}
		sums[name] = s
	}
	for _, section := range []struct{ field, algo string }{
		{"MD5Sum", deb.MD5}, {"SHA1", deb.SHA1}, {"SHA256", deb.SHA256},
	} {
		fmt.Fprintf(&b, "%s:\n", section.field)
		for _, name := range names {
			fmt.Fprintf(&b, " %s %d %s\n", sums[name][section.algo], len(files[name]), name)
		}
	}
	return b.Bytes(), nil
}

// SaveTo writes the generated index files (Packages, Packages.gz, Release)
// to a local directory.
func (idx *PackageIndex) SaveTo(outputDir string, info ArchiveInfo) error {
	return idx.SaveSignedTo(outputDir, info, "")
}

// SaveSignedTo is SaveTo that also writes 'InRelease' and 'Release.key' when
// key, an ASCII-armored private key, is not empty.
func (idx *PackageIndex) SaveSignedTo(outputDir string, info ArchiveInfo, key string) error {
	indices, err := idx.ComputeIndices(info, time.Now())
	if err != nil {
		return err
	}
	if key != "" {
		if err := indices.Sign(key); err != nil {
			return err
		}
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return err
	}
	for _, f := range []struct {
		name string
		data []byte
	}{
		{"Packages", indices.Packages},
		{"Packages.gz", indices.PackagesGz},
		{"Release", indices.Release},
		{"InRelease", indices.InRelease},
		{"Release.key", indices.PublicKey},
	} {
		if f.data == nil {
			continue
		}
		if err := os.WriteFile(filepath.Join(outputDir, f.name), f.data, 0644); err != nil {
			return fmt.Errorf("writing %s: %w", f.name, err)
		}
	}
	return nil
}
