package deb

import (
	"bytes"
	"cmp"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/clearsign"
	"github.com/ProtonMail/go-crypto/openpgp/packet"
	"github.com/go-logr/logr"
)

// Dsc inspects and validates a Debian source description (.dsc).
//
// The document may be clearsigned. Files it lists are resolved relative to
// the directory holding the document. As with Package, everything is
// computed on first access and cached; a Dsc is not safe for concurrent use.
type Dsc struct {
	path    string
	dir     string
	log     logr.Logger
	keyring openpgp.KeyRing

	headers     *Headers
	signature   *clearsign.Block
	signer      *openpgp.Entity
	files       []FileRecord
	synthetic   map[string]bool // file list headers given a self record
	checksums   ChecksumTable
	corrections ChecksumTable
}

// FileRecord is one file listed by a source description.
type FileRecord struct {
	Path   string // absolute
	Size   int64  // as declared
	Exists bool
}

// ChecksumTable maps a digest algorithm to the hex digest of each file path.
type ChecksumTable map[string]map[string]string

// Algorithms returns the algorithms present in t, sorted.
func (t ChecksumTable) Algorithms() []string {
	algos := make([]string, 0, len(t))
	for algo := range t {
		algos = append(algos, algo)
	}
	sort.Strings(algos)
	return algos
}

func (t ChecksumTable) set(algo, path, digest string) {
	if t[algo] == nil {
		t[algo] = make(map[string]string)
	}
	t[algo][path] = digest
}

// fileEntry is one "<digest> <size> <name>" line of a file list header.
type fileEntry struct {
	Digest string
	Size   int64
	Name   string
}

// OpenDsc returns a Dsc for the document at path. It fails with
// ErrInvalidInput if path is not a regular file. The logger is taken from ctx.
func OpenDsc(ctx context.Context, path string, opts ...Option) (*Dsc, error) {
	if err := checkRegular(path); err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	o := newOptions(opts)
	log := logr.FromContextOrDiscard(ctx)
	if o.log != nil {
		log = *o.log
	}
	return &Dsc{
		path:    abs,
		dir:     filepath.Dir(abs),
		log:     log.WithValues("dsc", path),
		keyring: o.keyring,
	}, nil
}

// Path returns the absolute path of the document.
func (d *Dsc) Path() string { return d.path }

// checksumAlgorithm returns the digest algorithm of a file list header:
// the text after the first hyphen of Checksums-* headers, md5 for Files.
func checksumAlgorithm(header string) (string, bool) {
	h := strings.ToLower(header)
	if h == strings.ToLower(string(FieldFiles)) {
		return MD5, true
	}
	if !strings.HasPrefix(h, strings.ToLower(string(FieldChecksumsPrefix))) {
		return "", false
	}
	_, algo, _ := strings.Cut(h, "-")
	return algo, algo != ""
}

func parseFileList(header, value string) ([]fileEntry, error) {
	var entries []fileEntry
	for _, line := range strings.Split(value, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 3 {
			return nil, &MalformedFileListError{Header: header, Entry: line}
		}
		size, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil || size < 0 {
			return nil, &MalformedFileListError{Header: header, Entry: line}
		}
		if fields[2] != filepath.Base(fields[2]) {
			return nil, &MalformedFileListError{Header: header, Entry: line}
		}
		entries = append(entries, fileEntry{Digest: fields[0], Size: size, Name: fields[2]})
	}
	return entries, nil
}

// Headers returns the document headers. Every file list header that does not
// mention the document itself has a line for it appended, so the headers
// describe the complete source package.
func (d *Dsc) Headers() (*Headers, error) {
	if d.headers != nil {
		return d.headers, nil
	}
	data, err := os.ReadFile(d.path)
	if err != nil {
		return nil, err
	}
	text, err := d.unwrap(data)
	if err != nil {
		return nil, err
	}
	h, err := ParseHeaders(text)
	if err != nil {
		return nil, fmt.Errorf("%s: parsing headers: %w", d.path, err)
	}
	if err := d.internalize(h, data); err != nil {
		return nil, fmt.Errorf("%s: %w", d.path, err)
	}
	d.headers = h
	return h, nil
}

// Header returns the value of a header. The error wraps ErrHeaderNotFound
// when the header is absent.
func (d *Dsc) Header(name string) (string, error) {
	h, err := d.Headers()
	if err != nil {
		return "", err
	}
	return h.Lookup(name)
}

// MessageString returns the headers as text, including the appended self
// records.
func (d *Dsc) MessageString() (string, error) {
	h, err := d.Headers()
	if err != nil {
		return "", err
	}
	return h.String(), nil
}

// Signature returns the OpenPGP envelope of the document, or nil when the
// document is not signed.
func (d *Dsc) Signature() (*clearsign.Block, error) {
	if _, err := d.Headers(); err != nil {
		return nil, err
	}
	return d.signature, nil
}

// Signer returns the key that signed the document. It is nil unless the Dsc
// was opened WithKeyring and the document is signed.
func (d *Dsc) Signer() (*openpgp.Entity, error) {
	if _, err := d.Headers(); err != nil {
		return nil, err
	}
	return d.signer, nil
}

func isSigned(data []byte) bool {
	return bytes.HasPrefix(data, []byte(pgpSignedMessage)) ||
		bytes.Contains(data, []byte("\n"+pgpSignedMessage))
}

// unwrap returns the text of the document, stripped of its OpenPGP
// envelope if it has one.
func (d *Dsc) unwrap(data []byte) ([]byte, error) {
	if !isSigned(data) {
		d.log.V(1).Info("document is not signed")
		return data, nil
	}
	block, _ := clearsign.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("%s: %w: malformed clearsigned message", d.path, ErrBadSignature)
	}
	sig, err := io.ReadAll(block.ArmoredSignature.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", d.path, ErrBadSignature, err)
	}
	p, err := packet.Read(bytes.NewReader(sig))
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", d.path, ErrBadSignature, err)
	}
	if _, ok := p.(*packet.Signature); !ok {
		return nil, fmt.Errorf("%s: %w: unexpected packet %T", d.path, ErrBadSignature, p)
	}

	if d.keyring != nil {
		_, signer, err := openpgp.VerifyDetachedSignature(d.keyring, bytes.NewReader(block.Bytes), bytes.NewReader(sig), nil)
		if err != nil {
			return nil, fmt.Errorf("%s: %w: %w", d.path, ErrBadSignature, err)
		}
		d.signer = signer
		d.log.V(1).Info("signature verified", "key", fmt.Sprintf("%X", signer.PrimaryKey.KeyId))
	}
	d.signature = block
	return block.Plaintext, nil
}

// internalize appends a record for the document itself to every file list
// header lacking one. data is the raw document.
func (d *Dsc) internalize(h *Headers, data []byte) error {
	base := filepath.Base(d.path)
	var keys, algos []string
	for _, key := range h.Keys() {
		algo, ok := checksumAlgorithm(key)
		if !ok {
			continue
		}
		value, _ := h.Get(key)
		entries, err := parseFileList(key, value)
		if err != nil {
			return err
		}
		if slices.ContainsFunc(entries, func(e fileEntry) bool { return e.Name == base }) {
			continue
		}
		if _, err := NewHash(algo); err != nil {
			d.log.Error(err, "cannot add self record", "header", key)
			continue
		}
		keys = append(keys, key)
		algos = append(algos, algo)
	}
	if len(keys) == 0 {
		return nil
	}

	size, sums, err := Digests(bytes.NewReader(data), algos...)
	if err != nil {
		return err
	}
	d.synthetic = make(map[string]bool, len(keys))
	for i, key := range keys {
		d.synthetic[key] = true
		value, _ := h.Get(key)
		h.Set(key, fmt.Sprintf("%s\n %s %d %s", value, sums[algos[i]], size, base))
	}
	d.log.V(1).Info("appended self record", "headers", keys)
	return nil
}

// Files returns the files listed by the document in declaration order. The
// document itself keeps its declared position and size when a file list
// names it, otherwise it comes last with its size on disk.
func (d *Dsc) Files() ([]FileRecord, error) {
	if d.files != nil {
		return d.files, nil
	}
	h, err := d.Headers()
	if err != nil {
		return nil, err
	}

	files := []FileRecord{}
	seen := make(map[string]bool)
	add := func(path string, size int64) {
		if seen[path] {
			return
		}
		seen[path] = true
		files = append(files, FileRecord{Path: path, Size: size, Exists: checkRegular(path) == nil})
	}
	for _, key := range h.Keys() {
		if _, ok := checksumAlgorithm(key); !ok {
			continue
		}
		value, _ := h.Get(key)
		entries, err := parseFileList(key, value)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", d.path, err)
		}
		for _, e := range entries {
			if e.Name == filepath.Base(d.path) && d.synthetic[key] {
				continue
			}
			add(filepath.Join(d.dir, e.Name), e.Size)
		}
	}
	if !seen[d.path] {
		fi, err := os.Stat(d.path)
		if err != nil {
			return nil, err
		}
		add(d.path, fi.Size())
	}

	d.files = files
	return files, nil
}

// SourceFiles returns the absolute paths of the listed files.
func (d *Dsc) SourceFiles() ([]string, error) {
	files, err := d.Files()
	if err != nil {
		return nil, err
	}
	paths := make([]string, len(files))
	for i, f := range files {
		paths[i] = f.Path
	}
	return paths, nil
}

// MissingFiles returns the listed files absent from disk.
func (d *Dsc) MissingFiles() ([]string, error) {
	files, err := d.Files()
	if err != nil {
		return nil, err
	}
	var missing []string
	for _, f := range files {
		if !f.Exists {
			missing = append(missing, f.Path)
		}
	}
	return missing, nil
}

// AllFilesPresent reports whether every listed file exists.
func (d *Dsc) AllFilesPresent() (bool, error) {
	missing, err := d.MissingFiles()
	if err != nil {
		return false, err
	}
	return len(missing) == 0, nil
}

// Sizes returns the declared size of each listed file.
func (d *Dsc) Sizes() (map[string]int64, error) {
	files, err := d.Files()
	if err != nil {
		return nil, err
	}
	sizes := make(map[string]int64, len(files))
	for _, f := range files {
		sizes[f.Path] = f.Size
	}
	return sizes, nil
}

// Checksums returns the declared digests. Digests from a Checksums-Md5
// header take precedence over the Files header.
func (d *Dsc) Checksums() (ChecksumTable, error) {
	if d.checksums != nil {
		return d.checksums, nil
	}
	h, err := d.Headers()
	if err != nil {
		return nil, err
	}

	keys := h.Keys()
	slices.SortStableFunc(keys, func(a, b string) int {
		return cmp.Compare(fileListRank(a), fileListRank(b))
	})
	table := ChecksumTable{}
	for _, key := range keys {
		algo, ok := checksumAlgorithm(key)
		if !ok {
			continue
		}
		value, _ := h.Get(key)
		entries, err := parseFileList(key, value)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", d.path, err)
		}
		for _, e := range entries {
			table.set(algo, filepath.Join(d.dir, e.Name), strings.ToLower(e.Digest))
		}
	}
	d.checksums = table
	return table, nil
}

// fileListRank orders the legacy Files header before Checksums-* headers.
func fileListRank(header string) int {
	if strings.EqualFold(header, string(FieldFiles)) {
		return 0
	}
	return 1
}

// CorrectedChecksums recomputes the digest of every listed file and returns
// those that differ from the declared ones. An empty table means every
// digest matched. Each file is read once for all its algorithms.
func (d *Dsc) CorrectedChecksums() (ChecksumTable, error) {
	if d.corrections != nil {
		return d.corrections, nil
	}
	table, err := d.Checksums()
	if err != nil {
		return nil, err
	}

	byPath := make(map[string][]string)
	for algo, files := range table {
		for path := range files {
			byPath[path] = append(byPath[path], algo)
		}
	}
	paths := make([]string, 0, len(byPath))
	for path := range byPath {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	corrections := ChecksumTable{}
	for _, path := range paths {
		_, sums, err := DigestFile(path, byPath[path]...)
		if err != nil {
			return nil, err
		}
		for _, algo := range byPath[path] {
			if sums[algo] != table[algo][path] {
				d.log.V(1).Info("checksum mismatch", "file", path, "algorithm", algo)
				corrections.set(algo, path, sums[algo])
			}
		}
	}
	d.corrections = corrections
	return corrections, nil
}

// AllChecksumsCorrect reports whether every declared digest matches.
func (d *Dsc) AllChecksumsCorrect() (bool, error) {
	corrections, err := d.CorrectedChecksums()
	if err != nil {
		return false, err
	}
	return len(corrections) == 0, nil
}

// Validate checks that every listed file exists and matches its declared
// digests. It returns a *MissingFileError or a *BadChecksumsError, in that
// order of precedence.
func (d *Dsc) Validate() error {
	missing, err := d.MissingFiles()
	if err != nil {
		return err
	}
	if len(missing) > 0 {
		return &MissingFileError{Paths: missing}
	}
	corrections, err := d.CorrectedChecksums()
	if err != nil {
		return err
	}
	if len(corrections) > 0 {
		return &BadChecksumsError{Corrections: corrections}
	}
	return nil
}
