package store

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/vmihailenco/msgpack/v5"

	"hybridrag/internal/domain"
	"hybridrag/internal/logger"
)

const (
	VectorsFile  = "vectors.msgpack"
	MetadataFile = "meta.jsonl"

	blobVersion = 1

	// DefaultOverfetch widens the candidate pool before access filtering.
	DefaultOverfetch = 4
)

// FileVectorStore holds unit-norm vectors and their chunk metadata in memory,
// index-aligned, and persists both halves to one directory on every append.
// Search is exact inner product over every stored vector.
type FileVectorStore struct {
	dir       string
	overfetch int
	manifest  *Manifest

	mu        sync.RWMutex
	dimension int
	vectors   [][]float32
	metas     []domain.ChunkRecord
}

// vectorBlob is the msgpack layout of vectors.msgpack. Data is row-major,
// Count rows of Dimension floats.
type vectorBlob struct {
	Version   int       `msgpack:"v"`
	Dimension int       `msgpack:"dim"`
	Count     int       `msgpack:"n"`
	Data      []float32 `msgpack:"data"`
}

// Option configures a FileVectorStore.
type Option func(*FileVectorStore)

// WithOverfetch sets the candidate pool multiplier applied before access filtering.
func WithOverfetch(n int) Option {
	return func(s *FileVectorStore) {
		if n > 0 {
			s.overfetch = n
		}
	}
}

// OpenFileVectorStore opens (or creates) the store in dir, restoring any
// persisted state. The directory's manifest lock is held until Close.
func OpenFileVectorStore(dir string, opts ...Option) (*FileVectorStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, domain.Persistence("store.open", err)
	}

	s := &FileVectorStore{
		dir:       dir,
		overfetch: DefaultOverfetch,
	}
	for _, opt := range opts {
		opt(s)
	}

	manifest, err := OpenManifest(filepath.Join(dir, ManifestFile))
	if err != nil {
		return nil, domain.Persistence("store.open", err)
	}
	s.manifest = manifest

	if err := s.load(); err != nil {
		manifest.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the directory lock.
func (s *FileVectorStore) Close() error {
	if s.manifest == nil {
		return nil
	}
	return s.manifest.Close()
}

// Manifest returns the store's manifest.
func (s *FileVectorStore) Manifest() *Manifest {
	return s.manifest
}

// Reload discards the in-memory state and reads both files again.
func (s *FileVectorStore) Reload() error {
	return s.load()
}

func (s *FileVectorStore) load() error {
	vectors, dim, err := readVectorBlob(filepath.Join(s.dir, VectorsFile))
	if err != nil {
		return domain.Persistence("store.load", err)
	}
	metas, err := readMetadata(filepath.Join(s.dir, MetadataFile))
	if err != nil {
		return domain.Persistence("store.load", err)
	}

	// Both halves are append-only, so after a crash between the two renames
	// the shorter one is a prefix of the longer one.
	if len(vectors) != len(metas) {
		n := min(len(vectors), len(metas))
		vectors = vectors[:n]
		metas = metas[:n]
	}
	if len(vectors) == 0 && len(metas) == 0 {
		dim = 0
	}

	s.mu.Lock()
	s.vectors = vectors
	s.metas = metas
	s.dimension = dim
	s.mu.Unlock()
	return nil
}

// Add appends vectors and their metadata and flushes both files. On any
// failure the in-memory and on-disk state are left as they were.
func (s *FileVectorStore) Add(vectors [][]float32, metas []domain.ChunkRecord) error {
	if len(vectors) != len(metas) {
		return domain.Validation("store.add",
			fmt.Errorf("%w: %d vectors, %d records", domain.ErrCountMismatch, len(vectors), len(metas)))
	}
	if len(vectors) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dim := s.dimension
	if dim == 0 {
		dim = len(vectors[0])
	}
	if dim == 0 {
		return domain.Validation("store.add", fmt.Errorf("%w: empty vector", domain.ErrInvalidVector))
	}

	normalized := make([][]float32, len(vectors))
	for i, v := range vectors {
		if len(v) != dim {
			return domain.Validation("store.add",
				fmt.Errorf("%w: expected %d, got %d at position %d", domain.ErrDimensionMismatch, dim, len(v), i))
		}
		nv, ok := Normalize(v)
		if !ok {
			return domain.Validation("store.add",
				fmt.Errorf("%w at position %d", domain.ErrInvalidVector, i))
		}
		normalized[i] = nv
	}

	records := make([]domain.ChunkRecord, len(metas))
	for i, m := range metas {
		records[i] = m.Normalize()
	}

	nextVectors := append(s.vectors[:len(s.vectors):len(s.vectors)], normalized...)
	nextMetas := append(s.metas[:len(s.metas):len(s.metas)], records...)

	if err := s.save(nextVectors, nextMetas, dim); err != nil {
		return domain.Persistence("store.add", err)
	}

	s.vectors = nextVectors
	s.metas = nextMetas
	s.dimension = dim
	return nil
}

// Search returns up to topK records visible under roles, ranked by inner
// product with the normalized query. Ties go to the lower index.
func (s *FileVectorStore) Search(query []float32, topK int, roles []string) ([]domain.ScoredRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.vectors) == 0 || topK <= 0 {
		return nil, nil
	}
	if len(query) != s.dimension {
		return nil, domain.Validation("store.search",
			fmt.Errorf("%w: expected %d, got %d", domain.ErrDimensionMismatch, s.dimension, len(query)))
	}
	q, ok := Normalize(query)
	if !ok {
		return nil, domain.Validation("store.search", domain.ErrInvalidVector)
	}

	type scored struct {
		index int
		score float64
	}
	scores := make([]scored, len(s.vectors))
	for i, v := range s.vectors {
		scores[i] = scored{index: i, score: dot(q, v)}
	}
	sort.SliceStable(scores, func(i, j int) bool {
		return scores[i].score > scores[j].score
	})

	pool := topK * s.overfetch
	if pool > len(scores) {
		pool = len(scores)
	}

	filter := domain.NewAccessFilter(roles)
	results := make([]domain.ScoredRecord, 0, topK)
	for _, sc := range scores[:pool] {
		meta := s.metas[sc.index]
		if !filter.Allows(meta.Roles) {
			continue
		}
		results = append(results, domain.ScoredRecord{
			Index:  sc.index,
			Record: meta,
			Score:  sc.score,
		})
		if len(results) >= topK {
			break
		}
	}

	return results, nil
}

// Len returns the number of stored records.
func (s *FileVectorStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.metas)
}

// Dimension returns the established vector width, or 0 for an empty store.
func (s *FileVectorStore) Dimension() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dimension
}

// Records returns the metadata of every record in index order.
func (s *FileVectorStore) Records() []domain.ChunkRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.ChunkRecord, len(s.metas))
	copy(out, s.metas)
	return out
}

// Record returns the metadata at index i.
func (s *FileVectorStore) Record(i int) (domain.ChunkRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i < 0 || i >= len(s.metas) {
		return domain.ChunkRecord{}, false
	}
	return s.metas[i], true
}

// Texts returns the text of every record in index order.
func (s *FileVectorStore) Texts() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.metas))
	for i, m := range s.metas {
		out[i] = m.Text
	}
	return out
}

// save writes both halves via temp file + rename, vectors first.
func (s *FileVectorStore) save(vectors [][]float32, metas []domain.ChunkRecord, dim int) error {
	blob := vectorBlob{
		Version:   blobVersion,
		Dimension: dim,
		Count:     len(vectors),
		Data:      make([]float32, 0, len(vectors)*dim),
	}
	for _, v := range vectors {
		blob.Data = append(blob.Data, v...)
	}

	err := writeAtomic(s.dir, VectorsFile, func(f *os.File) error {
		return msgpack.NewEncoder(f).Encode(&blob)
	})
	if err != nil {
		return fmt.Errorf("failed to write vectors: %w", err)
	}

	err = writeAtomic(s.dir, MetadataFile, func(f *os.File) error {
		w := bufio.NewWriter(f)
		enc := json.NewEncoder(w)
		enc.SetEscapeHTML(false)
		for _, m := range metas {
			if err := enc.Encode(m); err != nil {
				return err
			}
		}
		return w.Flush()
	})
	if err != nil {
		return fmt.Errorf("failed to write metadata: %w", err)
	}

	// Both halves are durable at this point. The manifest counts are
	// informational, so a failure here must not reject the write.
	if s.manifest != nil {
		if err := s.manifest.SetCounts(len(metas), dim); err != nil {
			logger.Warn(context.Background(), "manifest counts not updated",
				"dir", s.dir, "records", len(metas), "error", err)
		}
	}
	return nil
}

func writeAtomic(dir, name string, write func(*os.File) error) error {
	tmp, err := os.CreateTemp(dir, "."+name+".*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op after a successful rename

	if err := write(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, filepath.Join(dir, name))
}

func readVectorBlob(path string) ([][]float32, int, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, 0, nil
		}
		return nil, 0, err
	}
	defer f.Close()

	var blob vectorBlob
	if err := msgpack.NewDecoder(bufio.NewReader(f)).Decode(&blob); err != nil {
		return nil, 0, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	if blob.Version != blobVersion {
		return nil, 0, fmt.Errorf("unsupported vector blob version %d", blob.Version)
	}
	if blob.Count*blob.Dimension != len(blob.Data) {
		return nil, 0, fmt.Errorf("corrupt vector blob: %d x %d != %d floats", blob.Count, blob.Dimension, len(blob.Data))
	}

	vectors := make([][]float32, blob.Count)
	for i := range vectors {
		vectors[i] = blob.Data[i*blob.Dimension : (i+1)*blob.Dimension : (i+1)*blob.Dimension]
	}
	return vectors, blob.Dimension, nil
}

func readMetadata(path string) ([]domain.ChunkRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var metas []domain.ChunkRecord
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var m domain.ChunkRecord
		dec := json.NewDecoder(bytes.NewReader(scanner.Bytes()))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&m); err != nil {
			return nil, fmt.Errorf("failed to parse %s line %d: %w", path, line, err)
		}
		metas = append(metas, m.Normalize())
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return metas, nil
}

// Normalize returns a unit-length copy of v. It reports false for zero or
// non-finite vectors. A vector that is already unit length comes back unchanged.
func Normalize(v []float32) ([]float32, bool) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 || math.IsNaN(sum) || math.IsInf(sum, 0) {
		return nil, false
	}
	out := make([]float32, len(v))
	norm := math.Sqrt(sum)
	if math.Abs(norm-1) < 1e-6 {
		copy(out, v)
		return out, true
	}
	inv := 1 / norm
	for i, x := range v {
		out[i] = float32(float64(x) * inv)
	}
	return out, true
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
