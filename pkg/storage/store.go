package storage

import (
	"github.com/mcserverd/mcserverd/pkg/types"
)

// Store defines the persistence interface backing the instance registry.
// The only concrete implementation is BoltStore, but the interface keeps
// pkg/registry decoupled from bbolt so an alternative embedded KV store (or
// SQLite) could stand in without touching callers.
type Store interface {
	// Instances
	CreateInstance(inst *types.Instance) error
	GetInstance(id string) (*types.Instance, error)
	GetInstanceByName(name string) (*types.Instance, error)
	ListInstances() ([]*types.Instance, error)
	UpdateInstance(inst *types.Instance) error
	DeleteInstance(id string) error

	// Scheduled tasks
	CreateSchedule(task *types.ScheduledTask) error
	GetSchedule(id string) (*types.ScheduledTask, error)
	ListSchedules() ([]*types.ScheduledTask, error)
	ListSchedulesByInstance(instanceID string) ([]*types.ScheduledTask, error)
	UpdateSchedule(task *types.ScheduledTask) error
	DeleteSchedule(id string) error

	Close() error
}
