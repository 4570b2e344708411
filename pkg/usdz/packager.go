// Package usdz reads and writes usdz archives: plain zip files whose
// entries are stored uncompressed with payloads aligned to 64-byte
// boundaries, as the format requires.
package usdz

import (
	"archive/zip"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
)

// alignment is the byte boundary each entry's payload must start on.
const alignment = 64

// localHeaderLen is the fixed part of a zip local file header.
const localHeaderLen = 30

// paddingExtraID tags the extra field used purely for alignment padding.
const paddingExtraID = 0x1986

// PackagingError reports a failure while assembling an archive.
type PackagingError struct {
	Path string
	Err  error
}

func (e *PackagingError) Error() string {
	return fmt.Sprintf("packaging failed for %s: %v", e.Path, e.Err)
}

func (e *PackagingError) Unwrap() error { return e.Err }

// Pack bundles the given files, in order, into a usdz archive at
// outPath. Order matters: layers must precede the files they reference
// so the archive resolves correctly. Entries are named by their base
// name. A missing input aborts before anything is written.
func Pack(outPath string, files ...string) error {
	if len(files) == 0 {
		return &PackagingError{Path: outPath, Err: fmt.Errorf("no input files")}
	}
	contents := make([][]byte, len(files))
	for i, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			return &PackagingError{Path: file, Err: err}
		}
		contents[i] = data
	}

	out, err := os.Create(outPath)
	if err != nil {
		return &PackagingError{Path: outPath, Err: err}
	}
	defer out.Close()

	zw := zip.NewWriter(out)
	offset := int64(0)
	for i, file := range files {
		name := filepath.Base(file)
		data := contents[i]

		extra := alignmentPadding(offset, len(name))
		header := &zip.FileHeader{
			Name:               name,
			Method:             zip.Store,
			CRC32:              crc32.ChecksumIEEE(data),
			CompressedSize64:   uint64(len(data)),
			UncompressedSize64: uint64(len(data)),
			Extra:              extra,
		}

		// CreateRaw keeps sizes in the local header itself, so entry
		// offsets stay a pure function of names and padding.
		w, err := zw.CreateRaw(header)
		if err != nil {
			zw.Close()
			return &PackagingError{Path: file, Err: err}
		}
		if _, err := w.Write(data); err != nil {
			zw.Close()
			return &PackagingError{Path: file, Err: err}
		}
		offset += localHeaderLen + int64(len(name)) + int64(len(extra)) + int64(len(data))
	}

	if err := zw.Close(); err != nil {
		return &PackagingError{Path: outPath, Err: err}
	}
	if err := out.Close(); err != nil {
		return &PackagingError{Path: outPath, Err: err}
	}
	return nil
}

// alignmentPadding builds an extra field that pushes the entry payload
// onto the next alignment boundary. An empty slice means the payload is
// already aligned. The extra field needs 4 bytes for its own id and
// size, so paddings shorter than that grow by one full boundary.
func alignmentPadding(offset int64, nameLen int) []byte {
	payloadStart := offset + localHeaderLen + int64(nameLen)
	pad := int((alignment - payloadStart%alignment) % alignment)
	if pad == 0 {
		return nil
	}
	if pad < 4 {
		pad += alignment
	}
	extra := make([]byte, pad)
	binary.LittleEndian.PutUint16(extra[0:2], paddingExtraID)
	binary.LittleEndian.PutUint16(extra[2:4], uint16(pad-4))
	return extra
}
