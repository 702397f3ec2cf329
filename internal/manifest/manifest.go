package manifest

import (
	"bytes"
	"fmt"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	gatewayv1 "sigs.k8s.io/gateway-api/apis/v1"
	"sigs.k8s.io/yaml"
)

// Manifest is the declarative resource set for one user's simulation.
// It is built fresh for every deploy and never persisted here.
type Manifest struct {
	UserID    string
	ModuleID  string
	StackName string
	Name      string
	Namespace string
	Image     string

	Deployment *appsv1.Deployment
	Service    *corev1.Service
	Route      *gatewayv1.HTTPRoute
	Policies   []*unstructured.Unstructured
}

// Objects returns every resource in apply order.
func (m *Manifest) Objects() []runtime.Object {
	objs := []runtime.Object{m.Deployment, m.Service, m.Route}
	for _, p := range m.Policies {
		objs = append(objs, p)
	}
	return objs
}

// Unstructured converts every resource to its unstructured form with
// server-populated fields (status, creationTimestamp) removed.
func (m *Manifest) Unstructured() ([]map[string]any, error) {
	objs := m.Objects()
	out := make([]map[string]any, 0, len(objs))
	for _, obj := range objs {
		var content map[string]any
		if u, ok := obj.(*unstructured.Unstructured); ok {
			content = u.DeepCopy().Object
		} else {
			c, err := runtime.DefaultUnstructuredConverter.ToUnstructured(obj)
			if err != nil {
				return nil, fmt.Errorf("converting %T: %w", obj, err)
			}
			content = c
		}
		delete(content, "status")
		unstructured.RemoveNestedField(content, "metadata", "creationTimestamp")
		unstructured.RemoveNestedField(content, "spec", "template", "metadata", "creationTimestamp")
		out = append(out, content)
	}
	return out, nil
}

// YAML renders the manifest as a multi-document YAML stream.
func (m *Manifest) YAML() ([]byte, error) {
	objs, err := m.Unstructured()
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	for i, obj := range objs {
		data, err := yaml.Marshal(obj)
		if err != nil {
			return nil, fmt.Errorf("marshaling %v: %w", obj["kind"], err)
		}
		if i > 0 {
			buf.WriteString("---\n")
		}
		buf.Write(data)
	}
	return buf.Bytes(), nil
}
