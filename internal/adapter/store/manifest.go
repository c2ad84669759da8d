package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.etcd.io/bbolt"

	"hybridrag/internal/domain"
)

const ManifestFile = "manifest.db"

// CurrentSchemaVersion is the current on-disk layout version.
// Increment this when making breaking changes to the storage format.
const CurrentSchemaVersion = 1

var (
	bucketInfo    = []byte("info")
	bucketSources = []byte("sources")

	keySchemaVersion = []byte("schema_version")
	keyModel         = []byte("embedding_model")
	keyDimension     = []byte("dimension")
	keyCount         = []byte("record_count")
	keyUpdatedAt     = []byte("updated_at")
)

// ErrLocked is returned when another process holds the store directory.
var ErrLocked = errors.New("index directory is in use by another process")

// Manifest records which embedding model built the index and which source
// files have been ingested. Its bbolt file lock also gives one process
// exclusive ownership of the store directory.
type Manifest struct {
	db *bbolt.DB
}

// ManifestInfo is a snapshot of the manifest's info bucket.
type ManifestInfo struct {
	SchemaVersion int
	Model         string
	Dimension     int
	Count         int
	UpdatedAt     time.Time
}

// SourceInfo tracks one ingested source file.
type SourceInfo struct {
	Path    string    `json:"path"`
	ModTime time.Time `json:"mod_time"`
	Chunks  int       `json:"chunks"`
}

func OpenManifest(path string) (*Manifest, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		if errors.Is(err, bbolt.ErrTimeout) {
			return nil, ErrLocked
		}
		return nil, fmt.Errorf("failed to open manifest: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, b := range [][]byte{bucketInfo, bucketSources} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", b, err)
			}
		}
		info := tx.Bucket(bucketInfo)
		if info.Get(keySchemaVersion) == nil {
			return putInt(info, keySchemaVersion, CurrentSchemaVersion)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	m := &Manifest{db: db}
	info, err := m.Info()
	if err != nil {
		db.Close()
		return nil, err
	}
	if info.SchemaVersion > CurrentSchemaVersion {
		db.Close()
		return nil, fmt.Errorf("index created by newer version (v%d > v%d)", info.SchemaVersion, CurrentSchemaVersion)
	}
	return m, nil
}

func (m *Manifest) Close() error {
	return m.db.Close()
}

// Info reads the current manifest state.
func (m *Manifest) Info() (ManifestInfo, error) {
	var info ManifestInfo
	err := m.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketInfo)
		info.SchemaVersion = getInt(b, keySchemaVersion)
		info.Model = string(b.Get(keyModel))
		info.Dimension = getInt(b, keyDimension)
		info.Count = getInt(b, keyCount)
		if ts := b.Get(keyUpdatedAt); ts != nil {
			if err := info.UpdatedAt.UnmarshalText(ts); err != nil {
				return err
			}
		}
		return nil
	})
	return info, err
}

// Bind records model as the embedding model for this index. It fails with a
// validation error when the index already holds records built by a
// different model. The dimension is recorded by SetCounts from the stored
// vectors themselves.
func (m *Manifest) Bind(model string, populated bool) error {
	return m.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketInfo)
		prev := string(b.Get(keyModel))
		if populated && prev != "" && prev != model {
			return domain.Validation("manifest.bind",
				fmt.Errorf("%w: index built with %q, configured %q", domain.ErrModelMismatch, prev, model))
		}
		return b.Put(keyModel, []byte(model))
	})
}

// SetCounts records the record count and dimension after a successful flush.
func (m *Manifest) SetCounts(count, dimension int) error {
	return m.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketInfo)
		if err := putInt(b, keyCount, count); err != nil {
			return err
		}
		if err := putInt(b, keyDimension, dimension); err != nil {
			return err
		}
		ts, err := time.Now().UTC().MarshalText()
		if err != nil {
			return err
		}
		return b.Put(keyUpdatedAt, ts)
	})
}

// PutSource records that path has been ingested.
func (m *Manifest) PutSource(src SourceInfo) error {
	data, err := json.Marshal(src)
	if err != nil {
		return err
	}
	return m.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketSources).Put([]byte(src.Path), data)
	})
}

// GetSource returns the ingest record for path, if any.
func (m *Manifest) GetSource(path string) (SourceInfo, bool, error) {
	var (
		src   SourceInfo
		found bool
	)
	err := m.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketSources).Get([]byte(path))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &src)
	})
	return src, found, err
}

// ListSources returns every ingested source in key order.
func (m *Manifest) ListSources() ([]SourceInfo, error) {
	var sources []SourceInfo
	err := m.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketSources).ForEach(func(k, v []byte) error {
			var src SourceInfo
			if err := json.Unmarshal(v, &src); err != nil {
				return err
			}
			sources = append(sources, src)
			return nil
		})
	})
	return sources, err
}

func putInt(b *bbolt.Bucket, key []byte, v int) error {
	return b.Put(key, []byte(strconv.Itoa(v)))
}

func getInt(b *bbolt.Bucket, key []byte) int {
	data := b.Get(key)
	if data == nil {
		return 0
	}
	v, err := strconv.Atoi(string(data))
	if err != nil {
		return 0
	}
	return v
}
