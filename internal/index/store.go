package index

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"go.etcd.io/bbolt"
)

// ErrIntegrity is returned when the persisted vector artifact and metadata
// table do not form a matched pair. A mismatched pair is refused, never
// silently tolerated.
var ErrIntegrity = errors.New("index integrity violation")

var (
	bucketVectors  = []byte("vectors")
	bucketManifest = []byte("manifest")
	keyManifest    = []byte("manifest")
)

// manifest pins the vector artifact to one specific metadata file. The pair
// is valid only when the stored count and metadata checksum both match.
type manifest struct {
	Dimension      int       `json:"dimension"`
	Count          int       `json:"count"`
	MetadataSHA256 string    `json:"metadata_sha256"`
	CreatedAt      time.Time `json:"created_at"`
}

// Writer appends embedding vectors to a bbolt artifact in insertion order.
// The artifact is not loadable until Finalize writes the manifest.
type Writer struct {
	db        *bbolt.DB
	dimension int
	count     int
}

// NewWriter creates the vector artifact at path. An existing file at that
// path is truncated.
func NewWriter(path string, dimension int) (*Writer, error) {
	if dimension < 1 {
		return nil, fmt.Errorf("dimension must be positive, got %d", dimension)
	}
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening vector artifact: %w", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		// Truncate any previous content so positions start at zero.
		for _, name := range [][]byte{bucketVectors, bucketManifest} {
			if tx.Bucket(name) != nil {
				if err := tx.DeleteBucket(name); err != nil {
					return err
				}
			}
			if _, err := tx.CreateBucket(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing vector artifact: %w", err)
	}
	return &Writer{db: db, dimension: dimension}, nil
}

// Append persists a chunk of vectors in a single transaction. Positions
// continue from the previous chunk, fixing the row alignment with the
// metadata table.
func (w *Writer) Append(vectors [][]float32) error {
	if len(vectors) == 0 {
		return nil
	}
	err := w.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketVectors)
		for i, vec := range vectors {
			if len(vec) != w.dimension {
				return fmt.Errorf("vector %d has dimension %d, expected %d", w.count+i, len(vec), w.dimension)
			}
			key := positionKey(uint32(w.count + i))
			if err := b.Put(key, encodeVector(vec)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("appending vectors: %w", err)
	}
	w.count += len(vectors)
	return nil
}

// Count returns the number of vectors appended so far.
func (w *Writer) Count() int {
	return w.count
}

// Finalize writes the manifest binding this artifact to the metadata file
// with the given checksum, then closes the artifact.
func (w *Writer) Finalize(metadataSHA256 string) error {
	m := manifest{
		Dimension:      w.dimension,
		Count:          w.count,
		MetadataSHA256: metadataSHA256,
		CreatedAt:      time.Now().UTC(),
	}
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshaling manifest: %w", err)
	}
	err = w.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketManifest).Put(keyManifest, data)
	})
	if err != nil {
		return fmt.Errorf("writing manifest: %w", err)
	}
	return w.db.Close()
}

// Close releases the artifact without finalizing. The artifact stays
// unloadable because it has no manifest.
func (w *Writer) Close() error {
	return w.db.Close()
}

// Load reads the persisted pair and verifies its integrity: the manifest
// must exist, the metadata checksum must match the metadata file on disk,
// and the vector count must equal the metadata row count.
func Load(indexPath, metadataPath string) (*Index, error) {
	records, metaSum, err := ReadMetadata(metadataPath)
	if err != nil {
		return nil, fmt.Errorf("reading metadata table: %w", err)
	}

	db, err := bbolt.Open(indexPath, 0o600, &bbolt.Options{ReadOnly: true, Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening vector artifact: %w", err)
	}
	defer db.Close()

	var m manifest
	var vectors [][]float32
	err = db.View(func(tx *bbolt.Tx) error {
		mb := tx.Bucket(bucketManifest)
		if mb == nil {
			return fmt.Errorf("%w: artifact has no manifest (incomplete build)", ErrIntegrity)
		}
		data := mb.Get(keyManifest)
		if data == nil {
			return fmt.Errorf("%w: artifact has no manifest (incomplete build)", ErrIntegrity)
		}
		if err := json.Unmarshal(data, &m); err != nil {
			return fmt.Errorf("%w: unreadable manifest: %v", ErrIntegrity, err)
		}
		if m.MetadataSHA256 != metaSum {
			return fmt.Errorf("%w: metadata checksum mismatch (stale or mismatched pair)", ErrIntegrity)
		}
		if m.Count != len(records) {
			return fmt.Errorf("%w: manifest count %d does not match %d metadata rows", ErrIntegrity, m.Count, len(records))
		}

		vb := tx.Bucket(bucketVectors)
		if vb == nil {
			return fmt.Errorf("%w: artifact has no vectors bucket", ErrIntegrity)
		}
		vectors = make([][]float32, 0, m.Count)
		c := vb.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			vec, err := decodeVector(v)
			if err != nil {
				return fmt.Errorf("%w: vector at position %d: %v", ErrIntegrity, len(vectors), err)
			}
			if len(vec) != m.Dimension {
				return fmt.Errorf("%w: vector at position %d has dimension %d, expected %d",
					ErrIntegrity, len(vectors), len(vec), m.Dimension)
			}
			vectors = append(vectors, vec)
		}
		if len(vectors) != m.Count {
			return fmt.Errorf("%w: artifact holds %d vectors, manifest says %d", ErrIntegrity, len(vectors), m.Count)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return New(m.Dimension, vectors, records)
}

// positionKey encodes an insertion position as a big-endian key so bbolt's
// byte ordering matches numeric ordering.
func positionKey(pos uint32) []byte {
	key := make([]byte, 4)
	binary.BigEndian.PutUint32(key, pos)
	return key
}

func encodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, f := range vec {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(data []byte) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("vector payload is %d bytes, not a multiple of 4", len(data))
	}
	vec := make([]float32, len(data)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[4*i:]))
	}
	return vec, nil
}
