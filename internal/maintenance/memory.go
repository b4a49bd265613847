// -----------------------------------------------------------------------
// Memory-usage snapshotter - periodic service memory summaries
// -----------------------------------------------------------------------

package maintenance

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// serviceMemorySnapshot is the per-service entry of a memory summary
type serviceMemorySnapshot struct {
	Service      string  `json:"service"`
	PodCount     int     `json:"podCount"`
	AverageBytes int64   `json:"averageBytes"`
	MaxBytes     int64   `json:"maxBytes"`
	LimitBytes   int64   `json:"limitBytes,omitempty"`
	MaxPercent   float64 `json:"maxPercentOfLimit,omitempty"`
}

// memorySummary is the JSON document written to the object store
type memorySummary struct {
	Environment     string                  `json:"environment"`
	CollectedAt     time.Time               `json:"collectedAt"`
	LookBackMinutes int                     `json:"lookBackMinutes"`
	Services        []serviceMemorySnapshot `json:"services"`
}

// CollectMemoryUsage enumerates backend services through the autoscaler
// listing, samples per-pod memory usage, relates it to the workload memory
// limit and writes a JSON summary to the object store under
// <bucket>/<env>/<UTC yyyy-mm-dd-hhmm>.json.
func (r *Runner) CollectMemoryUsage(ctx context.Context) error {
	if r.cluster == nil || !r.config.Kubernetes.Enabled {
		return nil
	}
	k := r.config.Kubernetes

	autoscalers, err := r.cluster.ListAutoscalers(ctx, k.ServicesNamespace)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	summary := memorySummary{
		Environment:     r.config.Environment,
		CollectedAt:     now,
		LookBackMinutes: r.config.Maintenance.MemoryUsageCollectorLookBackMinutes,
	}

	for _, hpa := range autoscalers {
		pods, err := r.cluster.PodMemoryUsage(ctx, k.ServicesNamespace, hpa.TargetName)
		if err != nil {
			r.logger.Error().Err(err).Str("service", hpa.TargetName).Msg("Failed to read pod memory usage")
			continue
		}
		if len(pods) == 0 {
			continue
		}

		snapshot := serviceMemorySnapshot{Service: hpa.TargetName, PodCount: len(pods)}
		var total int64
		for _, pod := range pods {
			total += pod.UsageBytes
			if pod.UsageBytes > snapshot.MaxBytes {
				snapshot.MaxBytes = pod.UsageBytes
			}
		}
		snapshot.AverageBytes = total / int64(len(pods))

		limitStr, err := r.cluster.WorkloadMemoryLimit(ctx, k.ServicesNamespace, hpa.TargetName)
		if err != nil {
			r.logger.Error().Err(err).Str("service", hpa.TargetName).Msg("Failed to read workload memory limit")
		} else if limitStr != "" {
			limit, err := ParseMemoryLimit(limitStr)
			if err != nil {
				r.logger.Warn().Str("service", hpa.TargetName).Str("limit", limitStr).Msg("Unparseable memory limit")
			} else if limit > 0 {
				snapshot.LimitBytes = limit
				snapshot.MaxPercent = float64(snapshot.MaxBytes) / float64(limit) * 100
			}
		}

		summary.Services = append(summary.Services, snapshot)
	}

	key := fmt.Sprintf("%s/%s/%s.json",
		r.config.Maintenance.MemoryUsageBucket,
		r.config.Environment,
		now.Format("2006-01-02-1504"))
	url, err := r.catalogs.WriteJSON(ctx, key, &summary)
	if err != nil {
		return err
	}

	r.logger.Info().
		Str("url", url).
		Int("services", len(summary.Services)).
		Msg("Wrote memory usage summary")
	return nil
}

// ParseMemoryLimit converts a container memory limit string to bytes.
// Accepted forms are a plain byte count or an integer with a Ki, Mi or Gi
// suffix.
func ParseMemoryLimit(limit string) (int64, error) {
	limit = strings.TrimSpace(limit)
	if limit == "" {
		return 0, fmt.Errorf("empty memory limit")
	}

	multiplier := int64(1)
	switch {
	case strings.HasSuffix(limit, "Ki"):
		multiplier = 1 << 10
		limit = strings.TrimSuffix(limit, "Ki")
	case strings.HasSuffix(limit, "Mi"):
		multiplier = 1 << 20
		limit = strings.TrimSuffix(limit, "Mi")
	case strings.HasSuffix(limit, "Gi"):
		multiplier = 1 << 30
		limit = strings.TrimSuffix(limit, "Gi")
	}

	n, err := strconv.ParseInt(limit, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid memory limit %q: %w", limit, err)
	}
	return n * multiplier, nil
}
