package metrics

import (
	"time"

	"github.com/mcserverd/mcserverd/pkg/types"
)

// InstanceLister is satisfied by the instance registry; kept as a narrow
// interface so this package never imports pkg/registry or pkg/orchestrator.
type InstanceLister interface {
	List() ([]*types.Instance, error)
}

// StatusSampler is satisfied by the orchestrator/supervisor layer.
type StatusSampler interface {
	Status(instanceID string) types.ServerStatus
	Usage(instanceID string) (*types.ResourceUsage, bool)
	OnlinePlayerCount(instanceID string) int
}

// Collector periodically polls the registry and supervisors and writes the
// results into the package's gauges.
type Collector struct {
	registry InstanceLister
	sampler  StatusSampler
	stopCh   chan struct{}
}

// NewCollector creates a new metrics collector.
func NewCollector(registry InstanceLister, sampler StatusSampler) *Collector {
	return &Collector{
		registry: registry,
		sampler:  sampler,
		stopCh:   make(chan struct{}),
	}
}

// Start begins collecting metrics on a 15s interval.
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		c.collect()
		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	instances, err := c.registry.List()
	if err != nil {
		return
	}

	statusCounts := make(map[types.ServerStatus]int)
	for _, inst := range instances {
		status := c.sampler.Status(inst.ID)
		statusCounts[status]++

		OnlinePlayersTotal.WithLabelValues(inst.ID).Set(float64(c.sampler.OnlinePlayerCount(inst.ID)))

		if usage, ok := c.sampler.Usage(inst.ID); ok {
			InstanceCPUPercent.WithLabelValues(inst.ID).Set(usage.CPUPercent)
			InstanceMemoryBytes.WithLabelValues(inst.ID).Set(float64(usage.MemoryRSS))
		}
	}

	for _, status := range []types.ServerStatus{
		types.StatusStopped, types.StatusInstalling, types.StatusStarting,
		types.StatusRunning, types.StatusStopping, types.StatusCrashed,
	} {
		InstancesTotal.WithLabelValues(string(status)).Set(float64(statusCounts[status]))
	}
}
