// Package identity implements C1: producing a stable ContentFingerprint
// for a plugin directory, per spec.md §4.1. The byte framing below is
// the normative contract, not an implementation detail — an equivalent
// implementation in any language must produce byte-identical hashes.
package identity

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	trusterrors "github.com/vellum-dev/vellum/pkg/errors"
	"github.com/vellum-dev/vellum/pkg/logging"
)

const component = "identity"

// ContentFingerprint is a 64-character lowercase hex SHA-256 digest
// uniquely identifying a plugin's current bytes.
type ContentFingerprint string

// hexDigits is the lowercase hex alphabet Valid checks every character
// against (spec.md §3).
const hexDigits = "0123456789abcdef"

// Valid reports whether f is exactly 64 lowercase hex characters.
func (f ContentFingerprint) Valid() bool {
	if len(f) != 64 {
		return false
	}
	for _, r := range string(f) {
		if strings.IndexRune(hexDigits, r) < 0 {
			return false
		}
	}
	return true
}

// Manifest names the files under a plugin root that contribute to its
// fingerprint: the manifest itself plus every resource it declares.
// Collaborator concern (manifest parsing) stops at this list; identity
// only consumes it.
type Manifest struct {
	// RelativePaths are plugin-root-relative paths, forward-slash
	// separated, that the manifest declares as contributing to
	// behavior (the manifest file itself, skills, executable entry
	// points, declared resources).
	RelativePaths []string
}

// Fingerprinter computes ContentFingerprints for plugin roots.
type Fingerprinter struct {
	logger logging.Logger
}

// New constructs a Fingerprinter.
func New(logger logging.Logger) *Fingerprinter {
	return &Fingerprinter{logger: logger.WithComponent(component)}
}

// Fingerprint computes the ContentFingerprint of rootPath given the
// set of contributing files named by manifest, per the algorithm in
// spec.md §4.1: sort paths byte-lexicographically, then for each file
// in order feed (UTF-8 path, 0x00, 8-byte big-endian length, 0x00, raw
// bytes) into a single SHA-256 stream.
//
// Fails with IO_ERROR if the root or any declared file is unreadable.
// Honors ctx cancellation at each file-read suspension point, returning
// CANCELLED rather than a partial result.
func (f *Fingerprinter) Fingerprint(ctx context.Context, rootPath string, manifest Manifest) (ContentFingerprint, error) {
	if _, err := os.Stat(rootPath); err != nil {
		return "", trusterrors.IOError(component, "fingerprint", "plugin root unreadable", err).
			WithContext(map[string]interface{}{"root_path": rootPath})
	}

	paths := make([]string, len(manifest.RelativePaths))
	copy(paths, manifest.RelativePaths)
	for i, p := range paths {
		paths[i] = filepath.ToSlash(p)
	}
	sort.Strings(paths)

	h := sha256.New()

	for _, relPath := range paths {
		select {
		case <-ctx.Done():
			return "", trusterrors.Cancelled(component, "fingerprint")
		default:
		}

		fullPath := filepath.Join(rootPath, filepath.FromSlash(relPath))
		data, err := os.ReadFile(fullPath)
		if err != nil {
			return "", trusterrors.IOError(component, "fingerprint",
				"failed to read declared file "+relPath, err).WithContext(map[string]interface{}{
				"root_path": rootPath,
				"rel_path":  relPath,
			})
		}

		if _, err := io.WriteString(h, relPath); err != nil {
			return "", trusterrors.IOError(component, "fingerprint", "hash write failed", err)
		}
		if _, err := h.Write([]byte{0x00}); err != nil {
			return "", trusterrors.IOError(component, "fingerprint", "hash write failed", err)
		}

		var lenBuf [8]byte
		binary.BigEndian.PutUint64(lenBuf[:], uint64(len(data)))
		if _, err := h.Write(lenBuf[:]); err != nil {
			return "", trusterrors.IOError(component, "fingerprint", "hash write failed", err)
		}
		if _, err := h.Write([]byte{0x00}); err != nil {
			return "", trusterrors.IOError(component, "fingerprint", "hash write failed", err)
		}
		if _, err := h.Write(data); err != nil {
			return "", trusterrors.IOError(component, "fingerprint", "hash write failed", err)
		}
	}

	digest := hex.EncodeToString(h.Sum(nil))
	f.logger.Debug("fingerprint_computed",
		"root_path", rootPath,
		"file_count", len(paths),
		"fingerprint", digest)

	return ContentFingerprint(digest), nil
}
