// -----------------------------------------------------------------------
// Kubernetes cluster adapter - HPA listing, pod deletion, pod memory usage
// -----------------------------------------------------------------------

package kube

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/time/rate"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	metricsclient "k8s.io/metrics/pkg/client/clientset/versioned"

	"github.com/ternarybob/arbor"

	"github.com/harmony-svc/orchestrator/internal/common"
	"github.com/harmony-svc/orchestrator/internal/interfaces"
)

// Cluster implements interfaces.Cluster over client-go. API calls share a
// client-side rate limit so the maintenance loops cannot flood the API
// server when many services are enumerated.
type Cluster struct {
	clients kubernetes.Interface
	metrics metricsclient.Interface
	limiter *rate.Limiter
	logger  arbor.ILogger
}

// NewCluster builds a cluster adapter from the kubernetes configuration.
// An empty kubeconfig path selects in-cluster credentials.
func NewCluster(config *common.Config, logger arbor.ILogger) (*Cluster, error) {
	var restConfig *rest.Config
	var err error
	if config.Kubernetes.Kubeconfig != "" {
		restConfig, err = clientcmd.BuildConfigFromFlags("", config.Kubernetes.Kubeconfig)
	} else {
		restConfig, err = rest.InClusterConfig()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load kubernetes config: %w", err)
	}

	clients, err := kubernetes.NewForConfig(restConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create kubernetes client: %w", err)
	}
	mc, err := metricsclient.NewForConfig(restConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics client: %w", err)
	}

	rps := config.Kubernetes.APIRequestsPerSec
	if rps <= 0 {
		rps = 5
	}

	return &Cluster{
		clients: clients,
		metrics: mc,
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		logger:  logger,
	}, nil
}

func (c *Cluster) ListAutoscalers(ctx context.Context, namespace string) ([]interfaces.AutoscalerStatus, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	list, err := c.clients.AutoscalingV2().HorizontalPodAutoscalers(namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to list autoscalers in %s: %w", namespace, err)
	}

	statuses := make([]interfaces.AutoscalerStatus, 0, len(list.Items))
	for i := range list.Items {
		hpa := &list.Items[i]
		status := interfaces.AutoscalerStatus{
			Name:       hpa.Name,
			Namespace:  hpa.Namespace,
			TargetName: hpa.Spec.ScaleTargetRef.Name,
		}
		// ScalingActive=False means the autoscaler cannot read its metric,
		// the signature of a wedged Prometheus.
		for _, cond := range hpa.Status.Conditions {
			if cond.Type == "ScalingActive" && cond.Status == corev1.ConditionFalse {
				status.MetricsUnknown = true
				break
			}
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}

func (c *Cluster) DeletePodsWithPrefix(ctx context.Context, namespace, prefix string) (int, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, err
	}
	pods, err := c.clients.CoreV1().Pods(namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return 0, fmt.Errorf("failed to list pods in %s: %w", namespace, err)
	}

	deleted := 0
	for i := range pods.Items {
		pod := &pods.Items[i]
		if !strings.HasPrefix(pod.Name, prefix) {
			continue
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return deleted, err
		}
		if err := c.clients.CoreV1().Pods(namespace).Delete(ctx, pod.Name, metav1.DeleteOptions{}); err != nil {
			return deleted, fmt.Errorf("failed to delete pod %s: %w", pod.Name, err)
		}
		c.logger.Warn().
			Str("pod", pod.Name).
			Str("namespace", namespace).
			Msg("Deleted pod")
		deleted++
	}
	return deleted, nil
}

func (c *Cluster) PodMemoryUsage(ctx context.Context, namespace, workloadName string) ([]interfaces.PodMemory, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	podMetrics, err := c.metrics.MetricsV1beta1().PodMetricses(namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to list pod metrics in %s: %w", namespace, err)
	}

	var usage []interfaces.PodMemory
	for i := range podMetrics.Items {
		pm := &podMetrics.Items[i]
		if !strings.HasPrefix(pm.Name, workloadName) {
			continue
		}
		var total int64
		for _, container := range pm.Containers {
			mem := container.Usage[corev1.ResourceMemory]
			total += mem.Value()
		}
		usage = append(usage, interfaces.PodMemory{PodName: pm.Name, UsageBytes: total})
	}
	return usage, nil
}

func (c *Cluster) WorkloadMemoryLimit(ctx context.Context, namespace, workloadName string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}
	deploy, err := c.clients.AppsV1().Deployments(namespace).Get(ctx, workloadName, metav1.GetOptions{})
	if err != nil {
		return "", fmt.Errorf("failed to get deployment %s: %w", workloadName, err)
	}

	for _, container := range deploy.Spec.Template.Spec.Containers {
		if limit, ok := container.Resources.Limits[corev1.ResourceMemory]; ok {
			return limit.String(), nil
		}
	}
	return "", nil
}

var _ interfaces.Cluster = (*Cluster)(nil)
