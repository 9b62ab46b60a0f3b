package mock

import (
	"encoding/binary"
	"math"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/steambridge/steambridge/pkg/errors"
	"github.com/steambridge/steambridge/pkg/utils"
)

var (
	bucketAchievements = []byte("achievements")
	bucketStats        = []byte("stats")
)

// Store persists the mock backend's state across sessions in a bbolt file,
// standing in for the per-user stats storage the real client keeps.
type Store struct {
	db *bolt.DB
}

// OpenStore opens (or creates) the state file and its buckets.
func OpenStore(path string) (*Store, error) {
	if err := utils.EnsureDir(filepath.Dir(path)); err != nil {
		return nil, errors.NewError(errors.ErrCodeStateStore, "cannot create state directory").
			WithComponent("mock").
			WithContext("path", path).
			WithCause(err)
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, errors.NewError(errors.ErrCodeStateStore, "cannot open state file").
			WithComponent("mock").
			WithContext("path", path).
			WithCause(err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketAchievements); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(bucketStats)
		return err
	})
	if err != nil {
		db.Close()
		return nil, errors.NewError(errors.ErrCodeStateStore, "cannot create state buckets").
			WithComponent("mock").
			WithCause(err)
	}
	return &Store{db: db}, nil
}

// Close releases the state file.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// SaveUnlocks replaces the persisted unlock table with the given one.
// Values are unix unlock timestamps.
func (s *Store) SaveUnlocks(unlocks map[string]uint32) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(bucketAchievements); err != nil {
			return err
		}
		b, err := tx.CreateBucket(bucketAchievements)
		if err != nil {
			return err
		}
		for name, ts := range unlocks {
			var buf [4]byte
			binary.LittleEndian.PutUint32(buf[:], ts)
			if err := b.Put([]byte(name), buf[:]); err != nil {
				return err
			}
		}
		return nil
	})
}

// LoadUnlocks reads the persisted unlock table.
func (s *Store) LoadUnlocks() (map[string]uint32, error) {
	unlocks := make(map[string]uint32)
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketAchievements)
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			if len(v) == 4 {
				unlocks[string(k)] = binary.LittleEndian.Uint32(v)
			}
			return nil
		})
	})
	if err != nil {
		return nil, errors.NewError(errors.ErrCodeStateStore, "cannot read unlock table").
			WithComponent("mock").
			WithCause(err)
	}
	return unlocks, nil
}

// SaveStats replaces the persisted stat table. Both int and float stats are
// stored as 8-byte little-endian payloads with a one-byte kind prefix.
func (s *Store) SaveStats(ints map[string]int32, floats map[string]float32) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(bucketStats); err != nil {
			return err
		}
		b, err := tx.CreateBucket(bucketStats)
		if err != nil {
			return err
		}
		for name, v := range ints {
			var buf [9]byte
			buf[0] = 'i'
			binary.LittleEndian.PutUint64(buf[1:], uint64(int64(v)))
			if err := b.Put([]byte(name), buf[:]); err != nil {
				return err
			}
		}
		for name, v := range floats {
			var buf [9]byte
			buf[0] = 'f'
			binary.LittleEndian.PutUint64(buf[1:], math.Float64bits(float64(v)))
			if err := b.Put([]byte(name), buf[:]); err != nil {
				return err
			}
		}
		return nil
	})
}

// LoadStats reads the persisted stat table back into kind-separated maps.
func (s *Store) LoadStats() (map[string]int32, map[string]float32, error) {
	ints := make(map[string]int32)
	floats := make(map[string]float32)
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketStats)
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			if len(v) != 9 {
				return nil
			}
			raw := binary.LittleEndian.Uint64(v[1:])
			switch v[0] {
			case 'i':
				ints[string(k)] = int32(int64(raw))
			case 'f':
				floats[string(k)] = float32(math.Float64frombits(raw))
			}
			return nil
		})
	})
	if err != nil {
		return nil, nil, errors.NewError(errors.ErrCodeStateStore, "cannot read stat table").
			WithComponent("mock").
			WithCause(err)
	}
	return ints, floats, nil
}
