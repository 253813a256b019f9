package models

import "time"

// FileInput is one uploaded document before encryption.
type FileInput struct {
	Name        string
	ContentType string
	Data        []byte
}

// FileHandle identifies a stored file.
type FileHandle struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	DocumentType string `json:"document_type"`
}

// FileRecord is the persisted metadata of an encrypted file. The ciphertext
// itself lives in the blob store under StorageKey.
type FileRecord struct {
	ID           string
	OwnerID      string
	OrgID        string
	DocumentType string
	FileName     string
	ContentType  string
	// Size is the plaintext length in bytes.
	Size       int64
	Algorithm  string
	Nonce      []byte
	KeyVersion int
	StorageKey string
	CreatedAt  time.Time
}

// DecryptedFile is one entry of a listing. Err is set instead of Data when
// this file alone could not be produced.
type DecryptedFile struct {
	ID           string
	Name         string
	ContentType  string
	DocumentType string
	Size         int64
	CreatedAt    time.Time
	Data         []byte
	Err          error
}
