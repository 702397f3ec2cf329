package manifest

import (
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
)

// GKE policy CRDs have no published Go types, so they are built unstructured.
const (
	gkeNetworkingAPIVersion = "networking.gke.io/v1"
	healthCheckPolicyKind   = "HealthCheckPolicy"
	backendPolicyKind       = "GCPBackendPolicy"
)

func (b *Builder) policyObject(m *Manifest, kind string, defaults map[string]any) *unstructured.Unstructured {
	meta := b.objectMeta(m)

	labels := map[string]any{}
	for k, v := range meta.Labels {
		labels[k] = v
	}
	annotations := map[string]any{}
	for k, v := range meta.Annotations {
		annotations[k] = v
	}

	return &unstructured.Unstructured{Object: map[string]any{
		"apiVersion": gkeNetworkingAPIVersion,
		"kind":       kind,
		"metadata": map[string]any{
			"name":        m.Name,
			"namespace":   m.Namespace,
			"labels":      labels,
			"annotations": annotations,
		},
		"spec": map[string]any{
			"default": defaults,
			"targetRef": map[string]any{
				"group": "",
				"kind":  "Service",
				"name":  m.Name,
			},
		},
	}}
}

// healthCheckPolicy points the load balancer health check at the
// simulation's dedicated health port.
func (b *Builder) healthCheckPolicy(m *Manifest) *unstructured.Unstructured {
	return b.policyObject(m, healthCheckPolicyKind, map[string]any{
		"checkIntervalSec":   int64(15),
		"timeoutSec":         int64(15),
		"healthyThreshold":   int64(1),
		"unhealthyThreshold": int64(2),
		"logConfig": map[string]any{
			"enabled": false,
		},
		"config": map[string]any{
			"type": "HTTP",
			"httpHealthCheck": map[string]any{
				"port":        int64(HealthContainerPort),
				"requestPath": b.cfg.HealthCheckPath,
			},
		},
	})
}

// backendPolicy raises the backend timeout so long-lived websocket sessions
// are not cut by the load balancer default.
func (b *Builder) backendPolicy(m *Manifest) *unstructured.Unstructured {
	timeout := b.cfg.BackendTimeoutSec
	if timeout <= 0 {
		timeout = 3600
	}
	return b.policyObject(m, backendPolicyKind, map[string]any{
		"timeoutSec": timeout,
	})
}
