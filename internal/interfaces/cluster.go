package interfaces

import "context"

// AutoscalerStatus describes one horizontal-pod-autoscaler target
type AutoscalerStatus struct {
	Name      string
	Namespace string
	// TargetName is the scaled workload (deployment) name
	TargetName string
	// MetricsUnknown is true when the autoscaler reports an unknown metric
	// value, the signal that its Prometheus source has wedged.
	MetricsUnknown bool
}

// PodMemory is one pod's observed memory usage in bytes
type PodMemory struct {
	PodName    string
	UsageBytes int64
}

// Cluster is the adapter to the container orchestrator used by the
// maintenance loops. It is nil-safe to leave unconfigured outside k8s.
type Cluster interface {
	// ListAutoscalers returns autoscaler statuses in the namespace
	ListAutoscalers(ctx context.Context, namespace string) ([]AutoscalerStatus, error)

	// DeletePodsWithPrefix deletes pods whose name carries the prefix,
	// returning how many were deleted. The pods' supervisor recreates them.
	DeletePodsWithPrefix(ctx context.Context, namespace, prefix string) (int, error)

	// PodMemoryUsage returns current memory usage for pods of the workload
	PodMemoryUsage(ctx context.Context, namespace, workloadName string) ([]PodMemory, error)

	// WorkloadMemoryLimit returns the container memory limit string for the
	// workload's pod template, e.g. "512Mi".
	WorkloadMemoryLimit(ctx context.Context, namespace, workloadName string) (string, error)
}
