package storage

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"strings"

	"github.com/dshills/codescope/internal/embedder"
)

// ScoreHashes returns the cosine similarity between query and each stored
// vector among hashes. Hashes without a stored vector of matching dimension
// are absent from the result.
func (s *Store) ScoreHashes(ctx context.Context, provider, model string, query []float32, hashes []string) (map[string]float64, error) {
	if s.db == nil {
		return nil, ErrClosed
	}
	if len(query) == 0 {
		return map[string]float64{}, nil
	}
	// Use SQL-side scoring when sqlite-vec is available
	if VectorExtensionAvailable {
		return s.scoreHashesOptimized(ctx, provider, model, query, hashes)
	}
	return s.scoreHashesFallback(ctx, provider, model, query, hashes)
}

// scoreHashesOptimized computes similarity inside SQLite with sqlite-vec.
// vec_distance_cosine returns a distance, converted to 1 - distance.
func (s *Store) scoreHashesOptimized(ctx context.Context, provider, model string, query []float32, hashes []string) (map[string]float64, error) {
	blob := serializeVector(query)
	out := make(map[string]float64, len(hashes))
	for batch := range batches(hashes, maxHashesPerQuery) {
		var sb strings.Builder
		sb.WriteString(`
			SELECT hash, 1.0 - vec_distance_cosine(vector, ?)
			FROM embeddings
			WHERE provider = ? AND model = ? AND dimension = ? AND hash IN (`)
		sb.WriteString(placeholders(len(batch)))
		sb.WriteString(`)`)

		args := make([]any, 0, len(batch)+4)
		args = append(args, blob, provider, model, len(query))
		for _, h := range batch {
			args = append(args, h)
		}

		rows, err := s.db.QueryContext(ctx, sb.String(), args...)
		if err != nil {
			return nil, fmt.Errorf("failed to execute vector scoring: %w", err)
		}
		for rows.Next() {
			var hash string
			var score float64
			if err := rows.Scan(&hash, &score); err != nil {
				_ = rows.Close()
				return nil, fmt.Errorf("failed to scan result: %w", err)
			}
			out[hash] = score
		}
		err = rows.Err()
		_ = rows.Close()
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// scoreHashesFallback loads the candidate vectors and scores them in Go
func (s *Store) scoreHashesFallback(ctx context.Context, provider, model string, query []float32, hashes []string) (map[string]float64, error) {
	vectors, err := s.GetEmbeddings(ctx, provider, model, hashes)
	if err != nil {
		return nil, err
	}
	out := make(map[string]float64, len(vectors))
	for hash, v := range vectors {
		if len(v) != len(query) {
			continue
		}
		out[hash] = embedder.CosineSimilarity(query, v)
	}
	return out, nil
}

// serializeVector converts a float32 slice to a byte blob (little-endian)
func serializeVector(vector []float32) []byte {
	blob := make([]byte, len(vector)*4)
	for i, v := range vector {
		binary.LittleEndian.PutUint32(blob[i*4:], math.Float32bits(v))
	}
	return blob
}

// deserializeVector converts a byte blob back to a float32 slice
func deserializeVector(blob []byte) []float32 {
	vector := make([]float32, len(blob)/4)
	for i := range vector {
		bits := binary.LittleEndian.Uint32(blob[i*4:])
		vector[i] = math.Float32frombits(bits)
	}
	return vector
}
