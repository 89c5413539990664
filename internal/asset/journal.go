package asset

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/fxamacker/cbor/v2"
)

// journalEncMode encodes documents deterministically so identical documents
// produce identical bytes.
var journalEncMode = mustEncMode()

func mustEncMode() cbor.EncMode {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("asset: cbor encode options: %v", err))
	}
	return em
}

// Journal appends documents to a file as a CBOR sequence (RFC 8742).
//
// Thread Safety:
//   - Consume is safe for concurrent use.
type Journal struct {
	mu   sync.Mutex
	f    *os.File
	enc  *cbor.Encoder
	path string
}

// OpenJournal opens (creating if needed) the journal at path for appending.
func OpenJournal(path string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), dirPermissions); err != nil {
		return nil, fmt.Errorf("creating journal directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, filePermissions)
	if err != nil {
		return nil, fmt.Errorf("opening journal: %w", err)
	}
	return &Journal{f: f, enc: journalEncMode.NewEncoder(f), path: path}, nil
}

// Consume appends docs to the journal.
func (j *Journal) Consume(ctx context.Context, docs []Document) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	for _, d := range docs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := j.enc.Encode(d); err != nil {
			return fmt.Errorf("%w: journal %s: %w", ErrStorageWrite, j.path, err)
		}
	}
	return nil
}

// Path returns the journal file path.
func (j *Journal) Path() string { return j.path }

// Close syncs and closes the journal file.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.f == nil {
		return nil
	}
	syncErr := j.f.Sync()
	closeErr := j.f.Close()
	j.f = nil
	return errors.Join(syncErr, closeErr)
}

// ReplayJournal reads every document from a journal file, oldest first.
func ReplayJournal(path string) ([]Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening journal: %w", err)
	}
	defer f.Close()

	dec := cbor.NewDecoder(f)
	var docs []Document
	for {
		var d Document
		err := dec.Decode(&d)
		if errors.Is(err, io.EOF) {
			return docs, nil
		}
		if err != nil {
			return docs, fmt.Errorf("%w: journal entry %d: %w", ErrUnsupportedFormat, len(docs), err)
		}
		docs = append(docs, d)
	}
}
