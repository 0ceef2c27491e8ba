package observer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	metricsclient "k8s.io/metrics/pkg/client/clientset/versioned"

	"go.uber.org/zap"
)

const (
	labelControlPlane = "node-role.kubernetes.io/control-plane"
	labelMaster       = "node-role.kubernetes.io/master"
	labelHostname     = "kubernetes.io/hostname"
)

// KubeObserver maps a Kubernetes cluster onto the observer snapshots:
// Deployments and StatefulSets are services, control-plane nodes are managers,
// and metrics-server (when installed) supplies live node usage.
type KubeObserver struct {
	clientset kubernetes.Interface
	metrics   metricsclient.Interface
	logger    *zap.Logger
}

// NewKubeObserver wraps existing clients. mc may be nil.
func NewKubeObserver(cs kubernetes.Interface, mc metricsclient.Interface, logger *zap.Logger) *KubeObserver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KubeObserver{clientset: cs, metrics: mc, logger: logger.Named("observer.kube")}
}

// NewKubeObserverFromConfig builds clients from a kubeconfig path, falling
// back to in-cluster config and then ~/.kube/config when the path is empty.
func NewKubeObserverFromConfig(kubeconfigPath, kubeContext string, logger *zap.Logger) (*KubeObserver, error) {
	cfg, err := restConfig(kubeconfigPath, kubeContext)
	if err != nil {
		return nil, fmt.Errorf("failed to build config: %w", err)
	}
	cs, err := kubernetes.NewForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create clientset: %w", err)
	}
	mc, err := metricsclient.NewForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics client: %w", err)
	}
	return NewKubeObserver(cs, mc, logger), nil
}

func restConfig(kubeconfigPath, kubeContext string) (*rest.Config, error) {
	if kubeconfigPath == "" {
		if cfg, err := rest.InClusterConfig(); err == nil {
			return cfg, nil
		}
		if home, _ := os.UserHomeDir(); home != "" {
			kubeconfigPath = filepath.Join(home, ".kube", "config")
		}
	}
	return clientcmd.NewNonInteractiveDeferredLoadingClientConfig(
		&clientcmd.ClientConfigLoadingRules{ExplicitPath: kubeconfigPath},
		&clientcmd.ConfigOverrides{CurrentContext: kubeContext},
	).ClientConfig()
}

// System counts containers by state across all namespaces and sums node
// capacity. Waiting containers are reported as paused.
func (o *KubeObserver) System(ctx context.Context) (SystemSnapshot, error) {
	var snap SystemSnapshot

	pods, err := o.clientset.CoreV1().Pods(metav1.NamespaceAll).List(ctx, metav1.ListOptions{})
	if err != nil {
		return snap, fmt.Errorf("list pods: %w", err)
	}
	for _, pod := range pods.Items {
		if len(pod.Status.ContainerStatuses) == 0 {
			snap.Containers.Total += len(pod.Spec.Containers)
			snap.Containers.Paused += len(pod.Spec.Containers)
			continue
		}
		for _, cs := range pod.Status.ContainerStatuses {
			snap.Containers.Total++
			switch {
			case cs.State.Running != nil:
				snap.Containers.Running++
			case cs.State.Terminated != nil:
				snap.Containers.Stopped++
			default:
				snap.Containers.Paused++
			}
		}
	}

	nodes, err := o.clientset.CoreV1().Nodes().List(ctx, metav1.ListOptions{})
	if err != nil {
		return snap, fmt.Errorf("list nodes: %w", err)
	}
	snap.Nodes = len(nodes.Items)
	for i := range nodes.Items {
		n := &nodes.Items[i]
		snap.CPUCores += quantity(n.Status.Capacity, corev1.ResourceCPU)
		snap.MemoryBytes += quantity(n.Status.Capacity, corev1.ResourceMemory)
		if nodeRole(n) == RoleManager {
			snap.Managers++
		}
	}
	return snap, nil
}

// Services lists Deployments and StatefulSets. Running is the ready replica
// count, Total the replicas the controller currently has.
func (o *KubeObserver) Services(ctx context.Context) ([]ServiceDescriptor, error) {
	deps, err := o.clientset.AppsV1().Deployments(metav1.NamespaceAll).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("list deployments: %w", err)
	}
	out := make([]ServiceDescriptor, 0, len(deps.Items))
	for _, d := range deps.Items {
		out = append(out, ServiceDescriptor{
			ID:      objectID(d.ObjectMeta),
			Name:    d.Namespace + "/" + d.Name,
			Desired: desiredReplicas(d.Spec.Replicas),
			Running: int(d.Status.ReadyReplicas),
			Total:   int(d.Status.Replicas),
		})
	}

	sets, err := o.clientset.AppsV1().StatefulSets(metav1.NamespaceAll).List(ctx, metav1.ListOptions{})
	if err != nil {
		o.logger.Warn("list statefulsets failed, reporting deployments only", zap.Error(err))
		return out, nil
	}
	for _, s := range sets.Items {
		out = append(out, ServiceDescriptor{
			ID:      objectID(s.ObjectMeta),
			Name:    s.Namespace + "/" + s.Name,
			Desired: desiredReplicas(s.Spec.Replicas),
			Running: int(s.Status.ReadyReplicas),
			Total:   int(s.Status.Replicas),
		})
	}
	return out, nil
}

// Nodes lists nodes with capacity, readiness and schedulability. Live usage
// is attached when metrics-server answers.
func (o *KubeObserver) Nodes(ctx context.Context) ([]NodeDescriptor, error) {
	nodes, err := o.clientset.CoreV1().Nodes().List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("list nodes: %w", err)
	}
	usage := o.nodeUsage(ctx)

	out := make([]NodeDescriptor, 0, len(nodes.Items))
	for i := range nodes.Items {
		n := &nodes.Items[i]
		hostname := n.Labels[labelHostname]
		if hostname == "" {
			hostname = n.Name
		}
		desc := NodeDescriptor{
			ID:          objectID(n.ObjectMeta),
			Hostname:    hostname,
			Role:        nodeRole(n),
			CPUCores:    quantity(n.Status.Capacity, corev1.ResourceCPU),
			MemoryBytes: quantity(n.Status.Capacity, corev1.ResourceMemory),
			Available:   !n.Spec.Unschedulable,
			Ready:       nodeReady(n),
		}
		if u, ok := usage[n.Name]; ok {
			desc.CPUUsagePercent = usagePercent(quantity(u, corev1.ResourceCPU), quantity(n.Status.Allocatable, corev1.ResourceCPU))
			desc.MemoryUsagePercent = usagePercent(quantity(u, corev1.ResourceMemory), quantity(n.Status.Allocatable, corev1.ResourceMemory))
		}
		out = append(out, desc)
	}
	return out, nil
}

func (o *KubeObserver) nodeUsage(ctx context.Context) map[string]corev1.ResourceList {
	if o.metrics == nil {
		return nil
	}
	list, err := o.metrics.MetricsV1beta1().NodeMetricses().List(ctx, metav1.ListOptions{})
	if err != nil {
		o.logger.Debug("node metrics unavailable", zap.Error(err))
		return nil
	}
	out := make(map[string]corev1.ResourceList, len(list.Items))
	for _, m := range list.Items {
		out[m.Name] = m.Usage
	}
	return out
}

func quantity(list corev1.ResourceList, name corev1.ResourceName) float64 {
	q, ok := list[name]
	if !ok {
		return 0
	}
	return q.AsApproximateFloat64()
}

func usagePercent(used, allocatable float64) *float64 {
	if allocatable <= 0 {
		return nil
	}
	pct := used / allocatable * 100
	return &pct
}

func nodeRole(n *corev1.Node) string {
	if _, ok := n.Labels[labelControlPlane]; ok {
		return RoleManager
	}
	if _, ok := n.Labels[labelMaster]; ok {
		return RoleManager
	}
	return RoleWorker
}

func nodeReady(n *corev1.Node) bool {
	for _, c := range n.Status.Conditions {
		if c.Type == corev1.NodeReady {
			return c.Status == corev1.ConditionTrue
		}
	}
	return false
}

func objectID(meta metav1.ObjectMeta) string {
	if meta.UID != "" {
		return string(meta.UID)
	}
	if meta.Namespace == "" {
		return meta.Name
	}
	return meta.Namespace + "/" + meta.Name
}

func desiredReplicas(r *int32) int {
	if r == nil {
		return 1
	}
	return int(*r)
}
