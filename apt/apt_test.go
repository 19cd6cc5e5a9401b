package apt

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/go-logr/logr/testr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Helper to create a mock .deb file with minimal valid structure
func createMockDeb(t *testing.T, dir, name, controlContent string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0755))
	f, err := os.Create(filepath.Join(dir, name))
	require.NoError(t, err)
	defer f.Close()

	// AR Header
	f.WriteString("!<arch>\n")

	writeEntry := func(name string, data []byte) {
		// Header: name(16) timestamp(12) owner(6) group(6) mode(8) size(10) end(2)
		header := fmt.Sprintf("%-16s%-12s%-6s%-6s%-8s%-10d`\n", name, "0", "0", "0", "100644", len(data))
		f.WriteString(header)
		f.Write(data)
		if len(data)%2 != 0 {
			f.WriteString("\n")
		}
	}

	writeEntry("debian-binary", []byte("2.0\n"))

	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gw)
	hdr := &tar.Header{
		Name: "./control",
		Mode: 0644,
		Size: int64(len(controlContent)),
	}
	require.NoError(t, tw.WriteHeader(hdr))
	_, err = tw.Write([]byte(controlContent))
	require.NoError(t, err)
	tw.Close()
	gw.Close()
	writeEntry("control.tar.gz", buf.Bytes())

	writeEntry("data.tar.gz", []byte("dummy data"))

	return f.Name()
}

func testContext(t *testing.T) context.Context {
	return logr.NewContext(context.Background(), testr.New(t))
}

func control(name, version, arch string) string {
	return fmt.Sprintf("Package: %s\nVersion: %s\nArchitecture: %s\nDescription: test package\n", name, version, arch)
}

// singleIndex returns an index holding one package p1 1.0 for all.
func singleIndex(t *testing.T) *PackageIndex {
	t.Helper()
	idx := NewPackageIndex()
	require.NoError(t, idx.Add(&Package{Name: "p1", Version: "1.0", Architecture: "all", Control: control("p1", "1.0", "all")}))
	return idx
}

func TestPackageIndex_Add(t *testing.T) {
	idx := NewPackageIndex()
	p := &Package{
		Name:         "test-pkg",
		Version:      "1.0.0",
		Architecture: "amd64",
		Control:      control("test-pkg", "1.0.0", "amd64"),
	}

	require.NoError(t, idx.Add(p))
	assert.Equal(t, 1, idx.Len())

	assert.Error(t, idx.Add(p), "duplicate")
	assert.Error(t, idx.Add(&Package{Name: "bad", Version: "x:1", Architecture: "all"}), "invalid version")
	assert.Error(t, idx.Add(&Package{Version: "1.0", Architecture: "all"}), "missing name")
}

func TestPackageIndex_Append(t *testing.T) {
	idx1 := NewPackageIndex()
	require.NoError(t, idx1.Add(&Package{Name: "p1", Version: "1.0", Architecture: "all"}))

	idx2 := NewPackageIndex()
	require.NoError(t, idx2.Add(&Package{Name: "p2", Version: "1.0", Architecture: "all"}))

	require.NoError(t, idx1.Append(idx2))
	assert.Equal(t, 2, idx1.Len())

	idx3 := NewPackageIndex()
	require.NoError(t, idx3.Add(&Package{Name: "p1", Version: "1.0", Architecture: "all"}))
	assert.Error(t, idx1.Append(idx3))
}

func TestPackageIndex_OrderAndLatest(t *testing.T) {
	idx := NewPackageIndex()
	for _, p := range []*Package{
		{Name: "b", Version: "1.0", Architecture: "all"},
		{Name: "a", Version: "1.10", Architecture: "amd64"},
		{Name: "a", Version: "1.9", Architecture: "amd64"},
		{Name: "a", Version: "1:0.1", Architecture: "arm64"},
		{Name: "a", Version: "1.10~rc1", Architecture: "amd64"},
	} {
		require.NoError(t, idx.Add(p))
	}

	var got []string
	for _, p := range idx.Packages() {
		got = append(got, p.id())
	}
	assert.Equal(t, []string{"a|1.9|amd64", "a|1.10~rc1|amd64", "a|1.10|amd64", "a|1:0.1|arm64", "b|1.0|all"}, got)

	latest, ok := idx.Latest("a", "amd64")
	require.True(t, ok)
	assert.Equal(t, "1.10", latest.Version)

	_, ok = idx.Latest("c", "amd64")
	assert.False(t, ok)
}

func TestScan(t *testing.T) {
	root := t.TempDir()
	createMockDeb(t, filepath.Join(root, "pool", "main"), "hello_1.0_amd64.deb", control("hello", "1.0", "amd64"))
	createMockDeb(t, filepath.Join(root, "pool", "main"), "hello_1.1_amd64.deb", control("hello", "1.1", "amd64"))
	createMockDeb(t, filepath.Join(root, "pool", "contrib"), "broken_1.0_all.deb", "Package: broken\nVersion: 1.0\n")
	require.NoError(t, os.WriteFile(filepath.Join(root, "README"), []byte("not a package"), 0644))

	idx, err := Scan(testContext(t), root)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Architecture")
	require.Equal(t, 2, idx.Len())

	latest, ok := idx.Latest("hello", "amd64")
	require.True(t, ok)
	assert.Equal(t, "pool/main/hello_1.1_amd64.deb", latest.Filename)

	data, err := os.ReadFile(filepath.Join(root, "pool", "main", "hello_1.1_amd64.deb"))
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("%x", sha256.Sum256(data)), latest.SHA256)
	assert.EqualValues(t, len(data), latest.Size)
}

func TestScanMissingRoot(t *testing.T) {
	_, err := Scan(testContext(t), filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}

func TestWriteReadPackages(t *testing.T) {
	idx := NewPackageIndex()
	require.NoError(t, idx.Add(&Package{
		Name: "hello", Version: "2.10-3", Architecture: "amd64",
		Control:  "Package: hello\nVersion: 2.10-3\nArchitecture: amd64\nDescription: greeting\n multi-line\n",
		Filename: "pool/hello.deb", Size: 42, MD5: "m", SHA1: "s1", SHA256: "s256",
	}))

	var buf bytes.Buffer
	require.NoError(t, idx.WritePackages(&buf))
	assert.Equal(t, "Package: hello\nVersion: 2.10-3\nArchitecture: amd64\nDescription: greeting\n multi-line\n"+
		"Filename: pool/hello.deb\nSize: 42\nMD5sum: m\nSHA1: s1\nSHA256: s256\n\n", buf.String())

	back, err := ReadPackages(&buf)
	require.NoError(t, err)
	p, ok := back.Latest("hello", "amd64")
	require.True(t, ok)
	assert.EqualValues(t, 42, p.Size)
	assert.Equal(t, "pool/hello.deb", p.Filename)
	assert.Equal(t, "s256", p.SHA256)
	assert.NotContains(t, p.Control, "Filename")
}

func TestComputeIndices(t *testing.T) {
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	indices, err := singleIndex(t).ComputeIndices(ArchiveInfo{Origin: "test", Suite: "stable"}, now)
	require.NoError(t, err)

	gr, err := gzip.NewReader(bytes.NewReader(indices.PackagesGz))
	require.NoError(t, err)
	unzipped, err := io.ReadAll(gr)
	require.NoError(t, err)
	assert.Equal(t, indices.Packages, unzipped)

	release := string(indices.Release)
	for _, want := range []string{
		"Origin: test\n",
		"Suite: stable\n",
		"Date: Tue, 02 Jan 2024 03:04:05 +0000\n",
		fmt.Sprintf(" %x %d Packages\n", sha256.Sum256(indices.Packages), len(indices.Packages)),
		"MD5Sum:\n",
	} {
		assert.Contains(t, release, want)
	}
	assert.NotContains(t, release, "Label:", "empty fields are omitted")
}

func TestSaveTo(t *testing.T) {
	out := filepath.Join(t.TempDir(), "dists")
	require.NoError(t, singleIndex(t).SaveTo(out, ArchiveInfo{}))
	for _, name := range []string{"Packages", "Packages.gz", "Release"} {
		assert.FileExists(t, filepath.Join(out, name))
	}
	assert.NoFileExists(t, filepath.Join(out, "InRelease"))
}
