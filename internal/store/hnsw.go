package store

import (
	"bufio"
	"encoding/gob"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/coder/hnsw"

	"github.com/ragstore/ragstore/internal/errors"
)

// VectorConfig configures the HNSW graph.
type VectorConfig struct {
	// Dimensions is the embedding vector length. Required.
	Dimensions int

	// Metric is "cos" (cosine) or "l2" (euclidean). Default: "cos".
	Metric string

	// M is the max connections per layer. Default: 16.
	M int

	// EfSearch is the query-time search width. Default: 20.
	EfSearch int
}

// VectorResult is one raw nearest-neighbor hit before filtering.
type VectorResult struct {
	ID       string
	Distance float32
	Score    float32
}

// VectorIndex is an in-memory HNSW graph with string chunk IDs mapped onto
// the graph's uint64 keys. Deletion is lazy: the node stays in the graph but
// loses its ID mapping, so it can never surface in results. The coder/hnsw
// graph misbehaves when its last node is deleted, so nodes are never removed.
type VectorIndex struct {
	mu     sync.RWMutex
	graph  *hnsw.Graph[uint64]
	config VectorConfig

	// saveMu serializes Save calls: all savers share one temp file path, so
	// concurrent saves would race on the rename.
	saveMu sync.Mutex

	idMap   map[string]uint64
	keyMap  map[uint64]string
	nextKey uint64

	closed bool
}

// vectorSidecar is the gob-encoded ID mapping persisted next to the graph.
type vectorSidecar struct {
	IDMap   map[string]uint64
	NextKey uint64
	Config  VectorConfig
}

// NewVectorIndex creates an empty HNSW index.
func NewVectorIndex(cfg VectorConfig) (*VectorIndex, error) {
	if cfg.Dimensions <= 0 {
		return nil, errors.ConfigError(
			fmt.Sprintf("vector dimensions must be positive, got %d", cfg.Dimensions), nil)
	}
	if cfg.Metric == "" {
		cfg.Metric = "cos"
	}
	if cfg.M == 0 {
		cfg.M = 16
	}
	if cfg.EfSearch == 0 {
		cfg.EfSearch = 20
	}

	graph := hnsw.NewGraph[uint64]()
	switch cfg.Metric {
	case "l2":
		graph.Distance = hnsw.EuclideanDistance
	default:
		graph.Distance = hnsw.CosineDistance
	}
	graph.M = cfg.M
	graph.EfSearch = cfg.EfSearch
	graph.Ml = 0.25

	return &VectorIndex{
		graph:  graph,
		config: cfg,
		idMap:  make(map[string]uint64),
		keyMap: make(map[uint64]string),
	}, nil
}

// Add inserts vectors under their chunk IDs. An existing ID is replaced.
func (v *VectorIndex) Add(ids []string, vectors [][]float32) error {
	if len(ids) == 0 {
		return nil
	}
	if len(ids) != len(vectors) {
		return errors.InternalError(
			fmt.Sprintf("ids and vectors length mismatch: %d vs %d", len(ids), len(vectors)), nil)
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return errors.New(errors.ErrCodeStoreClosed, "vector index is closed", nil)
	}

	for _, vec := range vectors {
		if len(vec) != v.config.Dimensions {
			return dimensionMismatch(v.config.Dimensions, len(vec))
		}
	}

	for i, id := range ids {
		if existingKey, exists := v.idMap[id]; exists {
			delete(v.keyMap, existingKey)
			delete(v.idMap, id)
		}

		key := v.nextKey
		v.nextKey++

		vec := make([]float32, len(vectors[i]))
		copy(vec, vectors[i])
		if v.config.Metric == "cos" {
			normalizeInPlace(vec)
		}

		v.graph.Add(hnsw.MakeNode(key, vec))
		v.idMap[id] = key
		v.keyMap[key] = id
	}

	return nil
}

// Search returns up to k nearest neighbors, nearest first. Lazy-deleted
// nodes are dropped, so fewer than k results may come back even when the
// graph holds k live vectors; callers widen k as needed.
func (v *VectorIndex) Search(query []float32, k int) ([]*VectorResult, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	if v.closed {
		return nil, errors.New(errors.ErrCodeStoreClosed, "vector index is closed", nil)
	}
	if len(query) != v.config.Dimensions {
		return nil, dimensionMismatch(v.config.Dimensions, len(query))
	}
	if v.graph.Len() == 0 {
		return nil, nil
	}

	normalized := make([]float32, len(query))
	copy(normalized, query)
	if v.config.Metric == "cos" {
		normalizeInPlace(normalized)
	}

	nodes := v.graph.Search(normalized, k)

	results := make([]*VectorResult, 0, len(nodes))
	for _, node := range nodes {
		id, live := v.keyMap[node.Key]
		if !live {
			continue
		}
		distance := v.graph.Distance(normalized, node.Value)
		results = append(results, &VectorResult{
			ID:       id,
			Distance: distance,
			Score:    DistanceToScore(distance, v.config.Metric),
		})
	}
	return results, nil
}

// Delete drops IDs from the index. Unknown IDs are ignored.
func (v *VectorIndex) Delete(ids []string) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return
	}
	for _, id := range ids {
		if key, exists := v.idMap[id]; exists {
			delete(v.keyMap, key)
			delete(v.idMap, id)
		}
	}
}

// Contains reports whether id is live in the index.
func (v *VectorIndex) Contains(id string) bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	_, exists := v.idMap[id]
	return exists && !v.closed
}

// Count returns the number of live vectors. Lazy-deleted orphans are not
// counted.
func (v *VectorIndex) Count() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.closed {
		return 0
	}
	return len(v.idMap)
}

// graphLen returns the total node count including lazy-deleted orphans.
// Asking the graph for more neighbors than this cannot surface anything new.
func (v *VectorIndex) graphLen() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.closed {
		return 0
	}
	return v.graph.Len()
}

// Dimensions returns the configured vector length.
func (v *VectorIndex) Dimensions() int {
	return v.config.Dimensions
}

// Save writes the graph and its ID-mapping sidecar atomically, via temp file
// and rename. Safe to call from concurrent writers.
func (v *VectorIndex) Save(path string) error {
	v.saveMu.Lock()
	defer v.saveMu.Unlock()

	v.mu.RLock()
	defer v.mu.RUnlock()

	if v.closed {
		return errors.New(errors.ErrCodeStoreClosed, "vector index is closed", nil)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.StoreError("create vector index directory", err)
	}

	tmpPath := path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return errors.StoreError("create vector index file", err)
	}
	if err := v.graph.Export(file); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return errors.StoreError("export vector graph", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmpPath)
		return errors.StoreError("close vector index file", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return errors.StoreError("replace vector index file", err)
	}

	if err := v.saveSidecar(path + ".meta"); err != nil {
		return errors.StoreError("save vector index sidecar", err)
	}
	return nil
}

func (v *VectorIndex) saveSidecar(path string) error {
	tmpPath := path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create temp sidecar: %w", err)
	}

	sidecar := vectorSidecar{
		IDMap:   v.idMap,
		NextKey: v.nextKey,
		Config:  v.config,
	}
	if err := gob.NewEncoder(file).Encode(sidecar); err != nil {
		if closeErr := file.Close(); closeErr != nil {
			slog.Warn("failed to close temp sidecar during cleanup",
				slog.String("error", closeErr.Error()))
		}
		os.Remove(tmpPath)
		return fmt.Errorf("encode sidecar: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close sidecar: %w", err)
	}
	return os.Rename(tmpPath, path)
}

// Load restores the graph and ID mappings from disk.
func (v *VectorIndex) Load(path string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return errors.New(errors.ErrCodeStoreClosed, "vector index is closed", nil)
	}

	if err := v.loadSidecar(path + ".meta"); err != nil {
		return errors.New(errors.ErrCodeStoreCorrupt, "load vector index sidecar", err)
	}

	file, err := os.Open(path)
	if err != nil {
		return errors.StoreError("open vector index file", err)
	}
	defer file.Close()

	// coder/hnsw Import requires an io.ByteReader.
	if err := v.graph.Import(bufio.NewReader(file)); err != nil {
		return errors.New(errors.ErrCodeStoreCorrupt, "import vector graph", err)
	}
	return nil
}

func (v *VectorIndex) loadSidecar(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open sidecar: %w", err)
	}
	defer func() {
		if err := file.Close(); err != nil {
			slog.Warn("failed to close sidecar file", slog.String("error", err.Error()))
		}
	}()

	var sidecar vectorSidecar
	if err := gob.NewDecoder(file).Decode(&sidecar); err != nil {
		return fmt.Errorf("decode sidecar: %w", err)
	}

	v.idMap = sidecar.IDMap
	v.nextKey = sidecar.NextKey
	v.config = sidecar.Config
	v.keyMap = make(map[uint64]string, len(v.idMap))
	for id, key := range v.idMap {
		v.keyMap[key] = id
	}
	return nil
}

// Close releases the graph. Further calls fail with a closed-store error.
func (v *VectorIndex) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return nil
	}
	v.closed = true
	v.graph = nil
	return nil
}

// ReadVectorIndexDimensions reads the dimension count from a saved index's
// sidecar. Returns 0 when no sidecar exists.
func ReadVectorIndexDimensions(vectorPath string) (int, error) {
	file, err := os.Open(vectorPath + ".meta")
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, errors.StoreError("open vector index sidecar", err)
	}
	defer func() {
		if err := file.Close(); err != nil {
			slog.Warn("failed to close sidecar file", slog.String("error", err.Error()))
		}
	}()

	var sidecar vectorSidecar
	if err := gob.NewDecoder(file).Decode(&sidecar); err != nil {
		return 0, errors.New(errors.ErrCodeStoreCorrupt, "decode vector index sidecar", err)
	}
	return sidecar.Config.Dimensions, nil
}

func dimensionMismatch(expected, got int) error {
	return errors.New(errors.ErrCodeDimensionMismatch,
		fmt.Sprintf("vector dimension mismatch: index has %d, got %d", expected, got), nil).
		WithSuggestion("the embedding model changed; run 'ragstore clear' and re-index")
}

// normalizeInPlace scales a vector to unit length. Zero vectors are left as 0.
func normalizeInPlace(v []float32) {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= inv
	}
}

// DistanceToScore converts a raw distance into a similarity score in [0, 1],
// higher is more similar. Cosine distance spans 0 to 2; L2 spans 0 to
// infinity.
func DistanceToScore(distance float32, metric string) float32 {
	switch metric {
	case "l2":
		return 1.0 / (1.0 + distance)
	default:
		return 1.0 - distance/2.0
	}
}
