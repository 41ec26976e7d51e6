// Package bundle packs exported task files into a compressed archive with a
// hash manifest, so a batch of exports can be handed off and verified as a
// unit.
//
// A bundle is a tar stream (XZ by default, gzip optional) containing
// manifest.json followed by one file per export. The manifest records each
// entry's size and both SHA-256 and BLAKE3 hashes; Read verifies every entry
// against them.
package bundle

import (
	"archive/tar"
	"compress/gzip"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ulikunitz/xz"
	"github.com/zeebo/blake3"

	"github.com/hanlabel/kdpii/core/errors"
	"github.com/hanlabel/kdpii/core/span"
)

// CompressionType specifies the compression algorithm for bundle archives.
type CompressionType string

const (
	// CompressionXZ uses XZ/LZMA2 compression (default, best ratio).
	CompressionXZ CompressionType = "xz"
	// CompressionGzip uses gzip compression (stdlib, faster).
	CompressionGzip CompressionType = "gzip"
)

// Options configures bundle writing.
type Options struct {
	// Compression specifies the compression algorithm. Defaults to XZ.
	Compression CompressionType
}

// DefaultOptions returns the default writing options (XZ compression).
func DefaultOptions() *Options {
	return &Options{Compression: CompressionXZ}
}

// Entry is one exported file recorded in the manifest.
type Entry struct {
	// Name is the file name inside the archive.
	Name string `json:"name"`

	// Format is the export format of the file (json, csv, conll, labelstudio).
	Format string `json:"format,omitempty"`

	// DocumentID is the annotated document the export came from.
	DocumentID string `json:"document_id,omitempty"`

	// SizeBytes is the uncompressed file size.
	SizeBytes int64 `json:"size_bytes"`

	// SHA256 and BLAKE3 are hex digests of the file content.
	SHA256 string `json:"sha256"`
	BLAKE3 string `json:"blake3"`
}

// Manifest is the bundle index, stored first in the archive.
type Manifest struct {
	// Version is the manifest schema version.
	Version string `json:"version"`

	// Entries lists every file in the bundle, in archive order.
	Entries []Entry `json:"entries"`
}

// manifestVersion is the current manifest schema version.
const manifestVersion = "1"

// File is one file to pack: a name plus its content.
type File struct {
	Name       string
	Format     string
	DocumentID string
	Data       []byte
}

// hashes computes both digests of data.
func hashes(data []byte) (sha, b3 string) {
	sha = span.HashBytes(data)
	sum := blake3.Sum256(data)
	return sha, hex.EncodeToString(sum[:])
}

// Write packs files into a bundle archive at path.
func Write(path string, files []File, opts *Options) error {
	if opts == nil {
		opts = DefaultOptions()
	}

	manifest := &Manifest{Version: manifestVersion}
	for _, f := range files {
		sha, b3 := hashes(f.Data)
		manifest.Entries = append(manifest.Entries, Entry{
			Name:       f.Name,
			Format:     f.Format,
			DocumentID: f.DocumentID,
			SizeBytes:  int64(len(f.Data)),
			SHA256:     sha,
			BLAKE3:     b3,
		})
	}

	out, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "bundle: create archive")
	}
	defer out.Close()

	var compressWriter io.WriteCloser
	switch opts.Compression {
	case CompressionGzip:
		compressWriter, err = gzip.NewWriterLevel(out, gzip.BestCompression)
		if err != nil {
			return errors.Wrap(err, "bundle: create gzip writer")
		}
	case CompressionXZ:
		fallthrough
	default:
		compressWriter, err = xz.NewWriter(out)
		if err != nil {
			return errors.Wrap(err, "bundle: create xz writer")
		}
	}

	tw := tar.NewWriter(compressWriter)

	manifestData, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return errors.Wrap(err, "bundle: serialize manifest")
	}
	if err := writeToTar(tw, "manifest.json", manifestData); err != nil {
		return errors.Wrap(err, "bundle: write manifest")
	}
	for _, f := range files {
		if err := writeToTar(tw, f.Name, f.Data); err != nil {
			return errors.Wrapf(err, "bundle: write %s", f.Name)
		}
	}

	if err := tw.Close(); err != nil {
		return errors.Wrap(err, "bundle: close tar")
	}
	if err := compressWriter.Close(); err != nil {
		return errors.Wrap(err, "bundle: close compressor")
	}
	return nil
}

// DetectCompression detects the compression type of a bundle archive by its
// magic bytes.
func DetectCompression(path string) (CompressionType, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", errors.Wrap(err, "bundle: open archive")
	}
	defer f.Close()

	magic := make([]byte, 6)
	n, err := f.Read(magic)
	if err != nil {
		return "", errors.Wrap(err, "bundle: read magic bytes")
	}
	if n >= 2 && magic[0] == 0x1f && magic[1] == 0x8b {
		return CompressionGzip, nil
	}
	if n >= 6 && magic[0] == 0xfd && magic[1] == 0x37 && magic[2] == 0x7a &&
		magic[3] == 0x58 && magic[4] == 0x5a && magic[5] == 0x00 {
		return CompressionXZ, nil
	}
	return "", errors.NewFormat("bundle", 0, "unknown magic bytes")
}

// Read unpacks a bundle archive, verifying every entry against the manifest
// hashes. Compression is auto-detected. Entries with path-traversal names
// are rejected.
func Read(path string) (*Manifest, []File, error) {
	compression, err := DetectCompression(path)
	if err != nil {
		return nil, nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, nil, errors.Wrap(err, "bundle: open archive")
	}
	defer f.Close()

	var decompressReader io.Reader
	switch compression {
	case CompressionGzip:
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, nil, errors.Wrap(err, "bundle: create gzip reader")
		}
		defer gz.Close()
		decompressReader = gz
	case CompressionXZ:
		xr, err := xz.NewReader(f)
		if err != nil {
			return nil, nil, errors.Wrap(err, "bundle: create xz reader")
		}
		decompressReader = xr
	}

	tr := tar.NewReader(decompressReader)
	var manifest *Manifest
	var files []File
	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, errors.Wrap(err, "bundle: read tar header")
		}
		clean := filepath.Clean(header.Name)
		if strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
			return nil, nil, errors.NewFormat("bundle", 0,
				fmt.Sprintf("unsafe entry name %q", header.Name))
		}
		if header.Typeflag != tar.TypeReg {
			continue
		}
		data, err := io.ReadAll(tr)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "bundle: read %s", header.Name)
		}
		if header.Name == "manifest.json" {
			manifest = &Manifest{}
			if err := json.Unmarshal(data, manifest); err != nil {
				return nil, nil, errors.NewFormat("bundle", 0, "malformed manifest.json")
			}
			continue
		}
		files = append(files, File{Name: header.Name, Data: data})
	}
	if manifest == nil {
		return nil, nil, errors.NewFormat("bundle", 0, "archive does not contain manifest.json")
	}

	byName := make(map[string]*Entry, len(manifest.Entries))
	for i := range manifest.Entries {
		byName[manifest.Entries[i].Name] = &manifest.Entries[i]
	}
	for i := range files {
		entry, ok := byName[files[i].Name]
		if !ok {
			return nil, nil, errors.NewFormat("bundle", 0,
				fmt.Sprintf("entry %q not listed in manifest", files[i].Name))
		}
		sha, b3 := hashes(files[i].Data)
		if sha != entry.SHA256 || b3 != entry.BLAKE3 {
			return nil, nil, errors.NewFormat("bundle", 0,
				fmt.Sprintf("entry %q fails hash verification", files[i].Name))
		}
		files[i].Format = entry.Format
		files[i].DocumentID = entry.DocumentID
	}
	if len(files) != len(manifest.Entries) {
		return nil, nil, errors.NewFormat("bundle", 0,
			fmt.Sprintf("archive has %d entries, manifest lists %d", len(files), len(manifest.Entries)))
	}
	return manifest, files, nil
}

// writeToTar writes one file to the tar archive.
func writeToTar(tw *tar.Writer, name string, data []byte) error {
	header := &tar.Header{
		Name: name,
		Mode: 0644,
		Size: int64(len(data)),
	}
	if err := tw.WriteHeader(header); err != nil {
		return err
	}
	_, err := tw.Write(data)
	return err
}

// VerifyData checks data against an entry's recorded hashes.
func (e *Entry) VerifyData(data []byte) bool {
	sha, b3 := hashes(data)
	return sha == e.SHA256 && b3 == e.BLAKE3 && int64(len(data)) == e.SizeBytes
}
