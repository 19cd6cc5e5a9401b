package deb

import (
	"bytes"
	"context"
	"os"
	"testing"

	"github.com/go-logr/logr"
	"github.com/go-logr/logr/testr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testContext(t *testing.T) context.Context {
	return logr.NewContext(context.Background(), testr.NewWithOptions(t, testr.Options{Verbosity: 2}))
}

func TestOpenInvalidInput(t *testing.T) {
	dir := t.TempDir()

	_, err := Open(testContext(t), dir+"/missing.deb")
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = Open(testContext(t), dir)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestPackageHeaders(t *testing.T) {
	path := writeFile(t, t.TempDir(), "hello_2.10-3_amd64.deb", createMockDebBytes(t, sampleControl))

	pkg, err := Open(testContext(t), path)
	require.NoError(t, err)
	assert.Equal(t, path, pkg.Path())

	h, err := pkg.Headers()
	require.NoError(t, err)
	assert.Equal(t, 10, h.Len())

	name, err := pkg.Header("PACKAGE")
	require.NoError(t, err)
	assert.Equal(t, "hello", name)

	_, err = pkg.Header("Essential")
	assert.ErrorIs(t, err, ErrHeaderNotFound)

	v, err := pkg.Version()
	require.NoError(t, err)
	assert.Equal(t, Version{Epoch: 0, Upstream: "2.10", Revision: "3"}, v)

	epoch, err := pkg.Epoch()
	require.NoError(t, err)
	assert.Zero(t, epoch)
	upstream, err := pkg.Upstream()
	require.NoError(t, err)
	assert.Equal(t, "2.10", upstream)
	revision, err := pkg.Revision()
	require.NoError(t, err)
	assert.Equal(t, "3", revision)

	c, err := pkg.CompareVersionWith("2.10-2")
	require.NoError(t, err)
	assert.Equal(t, 1, c)
	c, err = pkg.CompareVersionWith("1:1.0")
	require.NoError(t, err)
	assert.Equal(t, -1, c)
}

func TestPackageIsMemoized(t *testing.T) {
	path := writeFile(t, t.TempDir(), "x.deb", createMockDebBytes(t, "Package: x\nVersion: 1.0\nArchitecture: all\n"))
	pkg, err := Open(testContext(t), path)
	require.NoError(t, err)

	h1, err := pkg.Headers()
	require.NoError(t, err)
	info1, err := pkg.FileInfo()
	require.NoError(t, err)

	require.NoError(t, os.Remove(path))

	h2, err := pkg.Headers()
	require.NoError(t, err)
	assert.Same(t, h1, h2)
	info2, err := pkg.FileInfo()
	require.NoError(t, err)
	assert.Equal(t, info1, info2)
}

func TestPackageFileInfo(t *testing.T) {
	data := createMockDebBytes(t, sampleControl)
	path := writeFile(t, t.TempDir(), "hello.deb", data)
	pkg, err := Open(testContext(t), path)
	require.NoError(t, err)

	info, err := pkg.FileInfo()
	require.NoError(t, err)

	n, sums, err := Digests(bytes.NewReader(data), MD5, SHA1, SHA256)
	require.NoError(t, err)
	assert.Equal(t, FileInfo{Size: n, MD5: sums[MD5], SHA1: sums[SHA1], SHA256: sums[SHA256]}, info)
	assert.EqualValues(t, len(data), info.Size)
}

func TestPackageControlCompressions(t *testing.T) {
	control := "Package: x\nVersion: 1:1.0-1\nArchitecture: arm64\n"
	for _, member := range []PackageFile{PkgControlTar, PkgControlTarGz, PkgControlTarXz, PkgControlTarZst} {
		t.Run(string(member), func(t *testing.T) {
			tarball := writeTar(t, tarEntry{name: "./control", body: control})
			deb := writeArchive(t,
				arMember{string(PkgDebianBinary), []byte("2.0\n")},
				arMember{string(member), compressAs(t, member, tarball)},
			)
			path := writeFile(t, t.TempDir(), "x.deb", deb)

			pkg, err := Open(testContext(t), path)
			require.NoError(t, err)
			v, err := pkg.Version()
			require.NoError(t, err)
			assert.Equal(t, Version{Epoch: 1, Upstream: "1.0", Revision: "1"}, v)
		})
	}
}

func TestExtractControlMemberWithSlash(t *testing.T) {
	tarball := compressAs(t, PkgControlTarGz, writeTar(t, tarEntry{name: "DEBIAN/control", body: "Package: x\n"}))
	deb := writeArchive(t,
		arMember{"debian-binary/", []byte("2.0\n")},
		arMember{"control.tar.gz/", tarball},
	)
	control, err := ExtractControl(bytes.NewReader(deb), testr.New(t))
	require.NoError(t, err)
	assert.Equal(t, "Package: x\n", string(control))
}

func TestExtractControlErrors(t *testing.T) {
	tests := []struct {
		name string
		data func(t *testing.T) []byte
		want error
	}{
		{
			name: "missing control member",
			data: func(t *testing.T) []byte {
				return writeArchive(t, arMember{string(PkgDebianBinary), []byte("2.0\n")})
			},
			want: ErrMissingControlMember,
		},
		{
			name: "missing control file",
			data: func(t *testing.T) []byte {
				tarball := writeTar(t, tarEntry{name: "./md5sums", body: ""}, tarEntry{name: "./control", dir: true})
				return writeArchive(t, arMember{string(PkgControlTarGz), compressAs(t, PkgControlTarGz, tarball)})
			},
			want: ErrMissingControlFile,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ExtractControl(bytes.NewReader(tt.data(t)), testr.New(t))
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestExtractControlNotAnArchive(t *testing.T) {
	_, err := ExtractControl(bytes.NewReader([]byte("PK\x03\x04 this is a zip")), testr.New(t))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrMissingControlMember)

	_, err = ExtractControl(bytes.NewReader(nil), testr.New(t))
	require.Error(t, err)
}

func TestExtractControlCorruptMember(t *testing.T) {
	deb := writeArchive(t, arMember{string(PkgControlTarGz), []byte("not gzip at all")})
	_, err := ExtractControl(bytes.NewReader(deb), testr.New(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decompressing control.tar.gz")
}

func TestPackageMissingRequiredHeader(t *testing.T) {
	path := writeFile(t, t.TempDir(), "x.deb", createMockDebBytes(t, "Package: x\nVersion: 1.0\n"))

	pkg, err := Open(testContext(t), path)
	require.NoError(t, err)
	_, err = pkg.Headers()
	var missing *MissingHeaderError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "Architecture", missing.Header)
	assert.ErrorIs(t, err, ErrMissingRequiredHeader)

	lenient, err := Open(context.Background(), path, WithLenientHeaders(), WithLogger(testr.New(t)))
	require.NoError(t, err)
	h, err := lenient.Headers()
	require.NoError(t, err)
	assert.False(t, h.Has("architecture"))
	_, err = lenient.Header("Architecture")
	assert.ErrorIs(t, err, ErrHeaderNotFound)
}

func TestPackageWriteReport(t *testing.T) {
	path := writeFile(t, t.TempDir(), "hello.deb", createMockDebBytes(t, sampleControl))
	pkg, err := Open(testContext(t), path)
	require.NoError(t, err)
	info, err := pkg.FileInfo()
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, pkg.WriteReport(&buf))
	out := buf.String()
	assert.Contains(t, out, "Filename: "+path+"\n")
	assert.Contains(t, out, "SHA256:   "+info.SHA256+"\n")
	assert.Contains(t, out, "  Package: hello\n")
	assert.Contains(t, out, "  Description: example package based on GNU hello\n   The GNU hello")
	assert.Equal(t, out, pkg.String())
}
