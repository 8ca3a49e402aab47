package schema

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/mbartocci/odoovec/internal/wire"
)

// FileSource loads the registry from a flat text file of schema-of-schema
// rows, one per line. Malformed rows are logged and skipped; the registry
// tolerates partial corruption of its source file.
type FileSource struct {
	Path  string
	Proto *wire.Protocol
}

// NewFileSource creates a file-backed schema source.
func NewFileSource(proto *wire.Protocol, path string) *FileSource {
	return &FileSource{Path: path, Proto: proto}
}

// Load reads and parses every row of the schema file.
func (s *FileSource) Load(ctx context.Context) ([]FieldDescriptor, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("opening schema file: %w", err)
	}
	defer func() { _ = f.Close() }()

	var (
		fields  []FieldDescriptor
		lineNo  int
		dropped int
	)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		d, err := ParseRow(s.Proto, line)
		if err != nil {
			dropped++
			log.Printf("schema: dropping line %d of %s: %v", lineNo, s.Path, err)
			continue
		}
		fields = append(fields, d)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading schema file: %w", err)
	}
	if dropped > 0 {
		log.Printf("schema: loaded %d fields from %s (%d malformed rows dropped)", len(fields), s.Path, dropped)
	}
	return fields, nil
}

// Hash returns the hex sha256 of the schema file's raw bytes, used by the
// sync engine for its "nothing changed" short-circuit. A missing file
// hashes to the empty string.
func (s *FileSource) Hash() (string, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("hashing schema file: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// WriteFile persists a descriptor set as a schema file, one row per line.
// Used to snapshot a registry built from live metadata.
func WriteFile(proto *wire.Protocol, path string, fields []FieldDescriptor) error {
	var b strings.Builder
	for _, d := range fields {
		b.WriteString(FormatRow(proto, d))
		b.WriteByte('\n')
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("writing schema file: %w", err)
	}
	return nil
}
