// Package syncer is the incremental sync engine: it diffs the current
// schema against persisted checksums, embeds and upserts what changed,
// and pushes record batches through the restriction-aware fetch loop.
package syncer

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"

	"golang.org/x/text/unicode/norm"
)

// checksumVersion tags the persisted file format. A file carrying any
// other version is treated as absent, forcing a full resync.
const checksumVersion = 1

// ChecksumFile is the persisted sync state: one content hash per field
// coordinate, plus the schema file hash for the fast no-change check.
type ChecksumFile struct {
	Version    int               `json:"version"`
	SchemaHash string            `json:"schema_hash"`
	Fields     map[string]string `json:"fields"`
}

// HashText returns the content hash of a field's semantic description.
// The text is NFC-normalized first so byte-level Unicode differences
// never churn checksums.
func HashText(text string) string {
	sum := sha256.Sum256([]byte(norm.NFC.String(text)))
	return hex.EncodeToString(sum[:])
}

// LoadChecksums reads the persisted checksum file. A missing, unreadable
// or version-mismatched file is not an error: it returns nil, which the
// diff step treats as "first run, everything is added".
func LoadChecksums(path string) *ChecksumFile {
	raw, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			log.Printf("checksum file %s unreadable, forcing full resync: %v", path, err)
		}
		return nil
	}
	var cf ChecksumFile
	if err := json.Unmarshal(raw, &cf); err != nil {
		log.Printf("checksum file %s corrupt, forcing full resync: %v", path, err)
		return nil
	}
	if cf.Version != checksumVersion {
		log.Printf("checksum file %s has version %d, forcing full resync", path, cf.Version)
		return nil
	}
	if cf.Fields == nil {
		cf.Fields = map[string]string{}
	}
	return &cf
}

// SaveChecksums commits the new checksum set atomically, via a temp file
// and rename in the same directory.
func SaveChecksums(path string, cf *ChecksumFile) error {
	cf.Version = checksumVersion
	raw, err := json.MarshalIndent(cf, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling checksums: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".checksums-*")
	if err != nil {
		return fmt.Errorf("creating temp checksum file: %w", err)
	}
	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("writing checksums: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("closing temp checksum file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("committing checksums: %w", err)
	}
	return nil
}
