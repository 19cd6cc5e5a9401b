package deb

import (
	"archive/tar"
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/blakesmith/ar"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/require"
	"github.com/ulikunitz/xz"
)

type arMember struct {
	name string
	body []byte
}

type tarEntry struct {
	name string
	body string
	dir  bool
}

// addBufferToAr writes a named byte slice as a file entry to the ar archive.
func addBufferToAr(w *ar.Writer, name string, body []byte) error {
	header := &ar.Header{
		Name:    name,
		Size:    int64(len(body)),
		Mode:    0644,
		ModTime: time.Now(),
	}
	if err := w.WriteHeader(header); err != nil {
		return err
	}
	_, err := w.Write(body)
	return err
}

func writeArchive(t *testing.T, members ...arMember) []byte {
	t.Helper()
	var buf bytes.Buffer
	arW := ar.NewWriter(&buf)
	require.NoError(t, arW.WriteGlobalHeader())
	for _, m := range members {
		require.NoError(t, addBufferToAr(arW, m.name, m.body))
	}
	return buf.Bytes()
}

func writeTar(t *testing.T, entries ...tarEntry) []byte {
	t.Helper()
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for _, e := range entries {
		hdr := &tar.Header{Name: e.name, Mode: 0644, Size: int64(len(e.body)), Typeflag: tar.TypeReg}
		if e.dir {
			hdr = &tar.Header{Name: e.name, Mode: 0755, Typeflag: tar.TypeDir}
		}
		require.NoError(t, tw.WriteHeader(hdr))
		if !e.dir {
			_, err := tw.Write([]byte(e.body))
			require.NoError(t, err)
		}
	}
	require.NoError(t, tw.Close())
	return buf.Bytes()
}

// compressAs compresses data for the control member name.
func compressAs(t *testing.T, member PackageFile, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	switch member {
	case PkgControlTarGz:
		w := gzip.NewWriter(&buf)
		_, err := w.Write(data)
		require.NoError(t, err)
		require.NoError(t, w.Close())
	case PkgControlTarXz:
		w, err := xz.NewWriter(&buf)
		require.NoError(t, err)
		_, err = w.Write(data)
		require.NoError(t, err)
		require.NoError(t, w.Close())
	case PkgControlTarZst:
		w, err := zstd.NewWriter(&buf)
		require.NoError(t, err)
		_, err = w.Write(data)
		require.NoError(t, err)
		require.NoError(t, w.Close())
	default:
		buf.Write(data)
	}
	return buf.Bytes()
}

// createMockDebBytes returns a minimal .deb whose control member is
// control.tar.gz holding ./control.
func createMockDebBytes(t *testing.T, controlContent string) []byte {
	t.Helper()
	control := compressAs(t, PkgControlTarGz, writeTar(t,
		tarEntry{name: "./", dir: true},
		tarEntry{name: "./control", body: controlContent},
		tarEntry{name: "./md5sums", body: "d41d8cd98f00b204e9800998ecf8427e  usr/share/doc/x\n"},
	))
	data := compressAs(t, PkgControlTarGz, writeTar(t, tarEntry{name: "./usr/share/doc/x"}))
	return writeArchive(t,
		arMember{string(PkgDebianBinary), []byte("2.0\n")},
		arMember{string(PkgControlTarGz), control},
		arMember{"data.tar.gz", data},
	)
}

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}
