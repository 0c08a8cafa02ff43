package core

import (
	"context"
	"io"
)

// StoredFile describes bytes persisted by a FileStorage.
type StoredFile struct {
	URL  string
	Size int64
}

// FileStorage keeps uploaded bytes outside of the database.
type FileStorage interface {
	// Save stores r under a fresh name keeping the extension of filename.
	Save(ctx context.Context, filename string, r io.Reader) (StoredFile, error)
	// Delete removes the file previously saved under url. Unknown urls are ignored.
	Delete(ctx context.Context, url string) error
}
