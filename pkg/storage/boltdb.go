package storage

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/mcserverd/mcserverd/pkg/errs"
	"github.com/mcserverd/mcserverd/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketInstances = []byte("instances")
	bucketSchedules = []byte("schedules")
)

// BoltStore implements Store using an embedded BoltDB file, one bucket per
// entity type with JSON-marshaled values keyed by ID.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (creating if absent) the registry database under
// dataDir.
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "instances.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketInstances, bucketSchedules} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// Instance operations

func (s *BoltStore) CreateInstance(inst *types.Instance) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketInstances)
		data, err := json.Marshal(inst)
		if err != nil {
			return err
		}
		return b.Put([]byte(inst.ID), data)
	})
}

func (s *BoltStore) GetInstance(id string) (*types.Instance, error) {
	var inst types.Instance
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketInstances)
		data := b.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("instance not found: %s", id)
		}
		return json.Unmarshal(data, &inst)
	})
	if err != nil {
		return nil, err
	}
	return &inst, nil
}

func (s *BoltStore) GetInstanceByName(name string) (*types.Instance, error) {
	var found *types.Instance
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketInstances)
		return b.ForEach(func(k, v []byte) error {
			var inst types.Instance
			if err := json.Unmarshal(v, &inst); err != nil {
				return err
			}
			if inst.Name == name {
				found = &inst
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, fmt.Errorf("instance %s: %w", name, errs.ErrNotFound)
	}
	return found, nil
}

// ListInstances returns every instance, ordered by bbolt's natural key
// (instance UUID) enumeration.
func (s *BoltStore) ListInstances() ([]*types.Instance, error) {
	var instances []*types.Instance
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketInstances)
		return b.ForEach(func(k, v []byte) error {
			var inst types.Instance
			if err := json.Unmarshal(v, &inst); err != nil {
				return err
			}
			instances = append(instances, &inst)
			return nil
		})
	})
	return instances, err
}

func (s *BoltStore) UpdateInstance(inst *types.Instance) error {
	return s.CreateInstance(inst) // upsert
}

func (s *BoltStore) DeleteInstance(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketInstances)
		return b.Delete([]byte(id))
	})
}

// Scheduled task operations

func (s *BoltStore) CreateSchedule(task *types.ScheduledTask) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSchedules)
		data, err := json.Marshal(task)
		if err != nil {
			return err
		}
		return b.Put([]byte(task.ID), data)
	})
}

func (s *BoltStore) GetSchedule(id string) (*types.ScheduledTask, error) {
	var task types.ScheduledTask
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSchedules)
		data := b.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("schedule not found: %s", id)
		}
		return json.Unmarshal(data, &task)
	})
	if err != nil {
		return nil, err
	}
	return &task, nil
}

func (s *BoltStore) ListSchedules() ([]*types.ScheduledTask, error) {
	var tasks []*types.ScheduledTask
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSchedules)
		return b.ForEach(func(k, v []byte) error {
			var task types.ScheduledTask
			if err := json.Unmarshal(v, &task); err != nil {
				return err
			}
			tasks = append(tasks, &task)
			return nil
		})
	})
	return tasks, err
}

func (s *BoltStore) ListSchedulesByInstance(instanceID string) ([]*types.ScheduledTask, error) {
	all, err := s.ListSchedules()
	if err != nil {
		return nil, err
	}
	var filtered []*types.ScheduledTask
	for _, t := range all {
		if t.InstanceID == instanceID {
			filtered = append(filtered, t)
		}
	}
	return filtered, nil
}

func (s *BoltStore) UpdateSchedule(task *types.ScheduledTask) error {
	return s.CreateSchedule(task)
}

func (s *BoltStore) DeleteSchedule(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSchedules)
		return b.Delete([]byte(id))
	})
}
