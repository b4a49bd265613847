// -----------------------------------------------------------------------
// Prometheus watchdog - restarts a wedged metrics server
// -----------------------------------------------------------------------

package maintenance

import "context"

// RestartWedgedPrometheus checks the autoscalers of the services namespace;
// when any reports an unknown metric value its Prometheus source has
// stopped answering, so the Prometheus pod is deleted and its supervisor
// recreates it.
func (r *Runner) RestartWedgedPrometheus(ctx context.Context) error {
	if r.cluster == nil || !r.config.Kubernetes.Enabled {
		return nil
	}
	k := r.config.Kubernetes

	autoscalers, err := r.cluster.ListAutoscalers(ctx, k.ServicesNamespace)
	if err != nil {
		return err
	}

	wedged := ""
	for _, hpa := range autoscalers {
		if hpa.MetricsUnknown {
			wedged = hpa.Name
			break
		}
	}
	if wedged == "" {
		return nil
	}

	r.logger.Warn().
		Str("autoscaler", wedged).
		Str("namespace", k.MonitoringNamespace).
		Msg("Autoscaler reports unknown metrics, restarting Prometheus")

	deleted, err := r.cluster.DeletePodsWithPrefix(ctx, k.MonitoringNamespace, k.PrometheusPodPrefix)
	if err != nil {
		return err
	}
	r.logger.Info().Int("pods", deleted).Msg("Prometheus restart triggered")
	return nil
}
