// Package manifest builds the Kubernetes and Gateway API resources that make
// up one user's simulation. Building is pure: nothing here talks to a cluster.
package manifest

import (
	"fmt"

	"github.com/bcnelson/simulation-deployer/internal/domain"
	"github.com/bcnelson/simulation-deployer/internal/validation"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/util/intstr"
	"k8s.io/utils/ptr"
	gatewayv1 "sigs.k8s.io/gateway-api/apis/v1"
)

// Port names shared by the container, the Service and the route backends.
const (
	SimulationPortName = "simulation"
	CommandPortName    = "command"
	HealthPortName     = "health-check"
)

// Container ports are fixed by the simulation image contract.
const (
	SimulationContainerPort int32 = 9002
	CommandContainerPort    int32 = 8002
	HealthContainerPort     int32 = 7002
)

// Service ports exposed inside the cluster.
const (
	SimulationServicePort int32 = 92
	CommandServicePort    int32 = 82
	HealthServicePort     int32 = 72
)

// WebSocketAppProtocol marks Service ports that carry websocket traffic.
const WebSocketAppProtocol = "kubernetes.io/ws"

// Annotation and label keys stamped on every object.
const (
	AnnotationUserID   = "simulation.steameducation.io/user-id"
	AnnotationModuleID = "simulation.steameducation.io/module-id"
	LabelApp           = "app"
	LabelManagedBy     = "app.kubernetes.io/managed-by"
	LabelName          = "app.kubernetes.io/name"
	managedBy          = "simulation-deployer"
	containerName      = "simulation"
)

// Resolver resolves a module ID to a container image reference.
type Resolver interface {
	Resolve(moduleID string) string
}

// Config holds the cluster-wide settings the builder needs.
type Config struct {
	Namespace        string
	GatewayName      string
	GatewayNamespace string

	// PoliciesEnabled adds GKE HealthCheckPolicy and GCPBackendPolicy objects.
	PoliciesEnabled   bool
	HealthCheckPath   string
	BackendTimeoutSec int64

	CPURequest    string
	MemoryRequest string
}

// Builder assembles simulation manifests.
type Builder struct {
	cfg    Config
	images Resolver
}

// NewBuilder creates a Builder. Resource quantities are parsed up front so a
// bad configuration fails at startup rather than on the first request.
func NewBuilder(cfg Config, images Resolver) (*Builder, error) {
	if cfg.HealthCheckPath == "" {
		cfg.HealthCheckPath = "/health"
	}
	for _, q := range []string{cfg.CPURequest, cfg.MemoryRequest} {
		if q == "" {
			continue
		}
		if _, err := resource.ParseQuantity(q); err != nil {
			return nil, fmt.Errorf("invalid resource quantity %q: %w", q, err)
		}
	}
	return &Builder{cfg: cfg, images: images}, nil
}

// Build produces the resource set for userID running moduleID.
// An unmapped module is rejected with domain.ErrUnknownModule.
func (b *Builder) Build(userID, moduleID string) (*Manifest, error) {
	if errs := validation.ValidateDeploy(userID, moduleID); errs.HasErrors() {
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidInput, errs.Error())
	}

	image := b.images.Resolve(moduleID)
	if image == "" {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownModule, moduleID)
	}

	name := ResourceName(userID)
	m := &Manifest{
		UserID:    userID,
		ModuleID:  moduleID,
		StackName: StackName(userID),
		Name:      name,
		Namespace: b.cfg.Namespace,
		Image:     image,
	}

	m.Deployment = b.deployment(m)
	m.Service = b.service(m)
	m.Route = b.route(m)
	if b.cfg.PoliciesEnabled {
		m.Policies = []*unstructured.Unstructured{
			b.healthCheckPolicy(m),
			b.backendPolicy(m),
		}
	}

	return m, nil
}

func (b *Builder) objectMeta(m *Manifest) metav1.ObjectMeta {
	return metav1.ObjectMeta{
		Name:      m.Name,
		Namespace: m.Namespace,
		Labels: map[string]string{
			LabelApp:       m.Name,
			LabelName:      "simulation",
			LabelManagedBy: managedBy,
		},
		Annotations: map[string]string{
			AnnotationUserID:   m.UserID,
			AnnotationModuleID: m.ModuleID,
		},
	}
}

func (b *Builder) deployment(m *Manifest) *appsv1.Deployment {
	selector := map[string]string{LabelApp: m.Name}

	container := corev1.Container{
		Name:  containerName,
		Image: m.Image,
		Ports: []corev1.ContainerPort{
			{Name: SimulationPortName, ContainerPort: SimulationContainerPort, Protocol: corev1.ProtocolTCP},
			{Name: CommandPortName, ContainerPort: CommandContainerPort, Protocol: corev1.ProtocolTCP},
			{Name: HealthPortName, ContainerPort: HealthContainerPort, Protocol: corev1.ProtocolTCP},
		},
		ReadinessProbe: &corev1.Probe{
			ProbeHandler: corev1.ProbeHandler{
				HTTPGet: &corev1.HTTPGetAction{
					Path: b.cfg.HealthCheckPath,
					Port: intstr.FromString(HealthPortName),
				},
			},
			PeriodSeconds: 10,
		},
	}
	if requests := b.requests(); len(requests) > 0 {
		container.Resources = corev1.ResourceRequirements{Requests: requests}
	}

	podMeta := b.objectMeta(m)
	podMeta.Name = ""
	podMeta.Namespace = ""

	return &appsv1.Deployment{
		TypeMeta:   metav1.TypeMeta{APIVersion: "apps/v1", Kind: "Deployment"},
		ObjectMeta: b.objectMeta(m),
		Spec: appsv1.DeploymentSpec{
			Replicas: ptr.To[int32](1),
			Selector: &metav1.LabelSelector{MatchLabels: selector},
			Template: corev1.PodTemplateSpec{
				ObjectMeta: podMeta,
				Spec: corev1.PodSpec{
					Containers: []corev1.Container{container},
				},
			},
		},
	}
}

func (b *Builder) requests() corev1.ResourceList {
	list := corev1.ResourceList{}
	if b.cfg.CPURequest != "" {
		list[corev1.ResourceCPU] = resource.MustParse(b.cfg.CPURequest)
	}
	if b.cfg.MemoryRequest != "" {
		list[corev1.ResourceMemory] = resource.MustParse(b.cfg.MemoryRequest)
	}
	return list
}

func (b *Builder) service(m *Manifest) *corev1.Service {
	return &corev1.Service{
		TypeMeta:   metav1.TypeMeta{APIVersion: "v1", Kind: "Service"},
		ObjectMeta: b.objectMeta(m),
		Spec: corev1.ServiceSpec{
			Type:     corev1.ServiceTypeClusterIP,
			Selector: map[string]string{LabelApp: m.Name},
			Ports: []corev1.ServicePort{
				{
					Name:        SimulationPortName,
					Protocol:    corev1.ProtocolTCP,
					Port:        SimulationServicePort,
					TargetPort:  intstr.FromInt32(SimulationContainerPort),
					AppProtocol: ptr.To(WebSocketAppProtocol),
				},
				{
					Name:        CommandPortName,
					Protocol:    corev1.ProtocolTCP,
					Port:        CommandServicePort,
					TargetPort:  intstr.FromInt32(CommandContainerPort),
					AppProtocol: ptr.To(WebSocketAppProtocol),
				},
				{
					Name:       HealthPortName,
					Protocol:   corev1.ProtocolTCP,
					Port:       HealthServicePort,
					TargetPort: intstr.FromInt32(HealthContainerPort),
				},
			},
		},
	}
}

func (b *Builder) route(m *Manifest) *gatewayv1.HTTPRoute {
	parent := gatewayv1.ParentReference{Name: gatewayv1.ObjectName(b.cfg.GatewayName)}
	if b.cfg.GatewayNamespace != "" {
		parent.Namespace = ptr.To(gatewayv1.Namespace(b.cfg.GatewayNamespace))
	}

	return &gatewayv1.HTTPRoute{
		TypeMeta:   metav1.TypeMeta{APIVersion: gatewayv1.GroupVersion.String(), Kind: "HTTPRoute"},
		ObjectMeta: b.objectMeta(m),
		Spec: gatewayv1.HTTPRouteSpec{
			CommonRouteSpec: gatewayv1.CommonRouteSpec{
				ParentRefs: []gatewayv1.ParentReference{parent},
			},
			Rules: []gatewayv1.HTTPRouteRule{
				rewriteRule(RoutePrefix(m.UserID, m.ModuleID, SimulationPortName), m.Name, SimulationServicePort),
				rewriteRule(RoutePrefix(m.UserID, m.ModuleID, CommandPortName), m.Name, CommandServicePort),
			},
		},
	}
}

// rewriteRule forwards requests under prefix to service:port with the prefix
// replaced by "/".
func rewriteRule(prefix, service string, port int32) gatewayv1.HTTPRouteRule {
	return gatewayv1.HTTPRouteRule{
		Matches: []gatewayv1.HTTPRouteMatch{{
			Path: &gatewayv1.HTTPPathMatch{
				Type:  ptr.To(gatewayv1.PathMatchPathPrefix),
				Value: ptr.To(prefix),
			},
		}},
		Filters: []gatewayv1.HTTPRouteFilter{{
			Type: gatewayv1.HTTPRouteFilterURLRewrite,
			URLRewrite: &gatewayv1.HTTPURLRewriteFilter{
				Path: &gatewayv1.HTTPPathModifier{
					Type:               gatewayv1.PrefixMatchHTTPPathModifier,
					ReplacePrefixMatch: ptr.To("/"),
				},
			},
		}},
		BackendRefs: []gatewayv1.HTTPBackendRef{{
			BackendRef: gatewayv1.BackendRef{
				BackendObjectReference: gatewayv1.BackendObjectReference{
					Name: gatewayv1.ObjectName(service),
					Port: ptr.To(gatewayv1.PortNumber(port)),
				},
			},
		}},
	}
}
