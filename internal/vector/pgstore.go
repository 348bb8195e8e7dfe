package vector

import (
	"context"
	"time"

	"github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Chunk is the pgvector row behind PGStore.
type Chunk struct {
	ID         string            `gorm:"primaryKey;type:text"`
	DocumentID string            `gorm:"type:text;not null;index"`
	ChunkIndex int               `gorm:"not null;default:0"`
	Embedding  pgvector.Vector   `gorm:"type:vector(768)"` // text-embedding-004 at 768 dimensions
	Metadata   datatypes.JSONMap `gorm:"type:jsonb;not null;default:'{}'::jsonb"`
	Text       string            `gorm:"type:text"`
	CreatedAt  time.Time         `gorm:"autoCreateTime"`
	UpdatedAt  time.Time         `gorm:"autoUpdateTime"`
}

func (Chunk) TableName() string { return "vector_chunks" }

type PGStore struct {
	DB *gorm.DB
}

func NewPGStore(db *gorm.DB) *PGStore {
	return &PGStore{DB: db}
}

func (s *PGStore) Upsert(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	rows := make([]Chunk, 0, len(records))
	for _, r := range records {
		rows = append(rows, Chunk{
			ID:         r.ID,
			DocumentID: r.DocumentID,
			ChunkIndex: r.ChunkIndex,
			Embedding:  pgvector.NewVector(r.Embedding),
			Metadata:   datatypes.JSONMap(r.Metadata),
			Text:       r.Text,
		})
	}
	return s.DB.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"document_id", "chunk_index", "embedding", "metadata", "text", "updated_at"}),
		}).
		Create(&rows).Error
}

type chunkHit struct {
	ID         string
	DocumentID string
	Text       string
	Metadata   datatypes.JSONMap
	Distance   float64
}

func (s *PGStore) DenseSearch(ctx context.Context, embedding []float32, topK int) ([]Match, error) {
	if topK <= 0 {
		return nil, nil
	}
	var hits []chunkHit
	err := s.DB.WithContext(ctx).
		Model(&Chunk{}).
		Select("id, document_id, text, metadata, embedding <=> ? AS distance", pgvector.NewVector(embedding)).
		Order("distance").
		Limit(topK).
		Scan(&hits).Error
	if err != nil {
		return nil, err
	}

	out := make([]Match, 0, len(hits))
	for _, h := range hits {
		out = append(out, Match{
			ID:         h.ID,
			DocumentID: h.DocumentID,
			Text:       h.Text,
			Score:      1 - h.Distance,
			Metadata:   map[string]any(h.Metadata),
		})
	}
	return out, nil
}

func (s *PGStore) Prune(ctx context.Context, documentID string, keep int) error {
	return s.DB.WithContext(ctx).
		Where("document_id = ? AND chunk_index >= ?", documentID, keep).
		Delete(&Chunk{}).Error
}

// Migrate creates the extension, table and ANN index.
func (s *PGStore) Migrate(ctx context.Context) error {
	db := s.DB.WithContext(ctx)
	if err := db.Exec(`create extension if not exists vector;`).Error; err != nil {
		return err
	}
	if err := db.AutoMigrate(&Chunk{}); err != nil {
		return err
	}
	return db.Exec(`create index if not exists idx_vector_chunks_embedding on vector_chunks using hnsw (embedding vector_cosine_ops);`).Error
}
