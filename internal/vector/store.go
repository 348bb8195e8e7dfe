package vector

import (
	"context"
	"fmt"
	"strconv"
)

// Record is one embedded chunk. Upserting a record with an existing ID
// replaces it entirely.
type Record struct {
	ID         string
	DocumentID string
	ChunkIndex int
	Embedding  []float32
	Metadata   map[string]any
	Text       string
}

type Match struct {
	ID         string         `json:"id"`
	DocumentID string         `json:"document_id"`
	Text       string         `json:"text"`
	Score      float64        `json:"score"`
	Metadata   map[string]any `json:"metadata"`
}

// UserID returns the owner recorded in the match metadata.
func (m Match) UserID() string {
	switch v := m.Metadata["user_id"].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

type Store interface {
	Upsert(ctx context.Context, records []Record) error
	// DenseSearch returns up to topK records ordered by descending similarity.
	DenseSearch(ctx context.Context, embedding []float32, topK int) ([]Match, error)
	// Prune deletes records of the document with ChunkIndex >= keep.
	Prune(ctx context.Context, documentID string, keep int) error
}

func DocumentID(userID string, entryID uint64) string {
	return userID + "_journal_" + strconv.FormatUint(entryID, 10)
}

func RecordID(userID string, entryID uint64, chunkIndex int) string {
	return DocumentID(userID, entryID) + "_chunk_" + strconv.Itoa(chunkIndex)
}
