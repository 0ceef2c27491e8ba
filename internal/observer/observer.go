package observer

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/kubilitics/kubilitics-metrics/internal/config"
)

// Package observer adapts a live cluster into the snapshot shapes the
// collector converts into metric points. Everything here is best effort:
// fields the source cannot report stay at their zero value.

// ContainerCounts tallies containers by state.
type ContainerCounts struct {
	Total   int `json:"total"`
	Running int `json:"running"`
	Stopped int `json:"stopped"`
	Paused  int `json:"paused"`
}

// SystemSnapshot holds whole-cluster counters.
type SystemSnapshot struct {
	Containers  ContainerCounts `json:"containers"`
	CPUCores    float64         `json:"cpu_cores"`
	MemoryBytes float64         `json:"memory_bytes"`
	// Nodes and Managers are zero when the source has no cluster membership view.
	Nodes    int `json:"nodes"`
	Managers int `json:"managers"`
}

// ServiceDescriptor describes one replicated workload.
type ServiceDescriptor struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Desired int    `json:"desired"`
	Running int    `json:"running"`
	Total   int    `json:"total"`
}

// Healthy reports whether every scheduled task is running.
func (s ServiceDescriptor) Healthy() bool {
	return s.Total > 0 && s.Running == s.Total
}

// NodeDescriptor describes one cluster node.
type NodeDescriptor struct {
	ID          string  `json:"id"`
	Hostname    string  `json:"hostname"`
	Role        string  `json:"role"`
	CPUCores    float64 `json:"cpu_cores"`
	MemoryBytes float64 `json:"memory_bytes"`
	// Usage percentages are nil when no live usage source is available.
	CPUUsagePercent    *float64 `json:"cpu_usage_percent,omitempty"`
	MemoryUsagePercent *float64 `json:"memory_usage_percent,omitempty"`
	Available          bool     `json:"available"`
	Ready              bool     `json:"ready"`
}

// Node roles.
const (
	RoleManager = "manager"
	RoleWorker  = "worker"
)

// Observer reports the current cluster state.
type Observer interface {
	System(ctx context.Context) (SystemSnapshot, error)
	Services(ctx context.Context) ([]ServiceDescriptor, error)
	Nodes(ctx context.Context) ([]NodeDescriptor, error)
}

// New builds the configured observer.
func New(cfg config.ObserverConfig, logger *zap.Logger) (Observer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch cfg.Type {
	case config.ObserverHTTP:
		return NewHTTPObserver(cfg.BaseURL, cfg.Timeout(), logger), nil
	case config.ObserverKubernetes:
		return NewKubeObserverFromConfig(cfg.Kubeconfig, cfg.Context, logger)
	default:
		return nil, fmt.Errorf("unknown observer type %q", cfg.Type)
	}
}
