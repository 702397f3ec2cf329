// Package kubeconfig builds kubeconfig documents for GKE clusters that
// authenticate through the gke-gcloud-auth-plugin exec credential.
package kubeconfig

import (
	"encoding/base64"
	"fmt"

	"k8s.io/client-go/tools/clientcmd"
	clientcmdapi "k8s.io/client-go/tools/clientcmd/api"
)

const (
	execAPIVersion = "client.authentication.k8s.io/v1beta1"
	execCommand    = "gke-gcloud-auth-plugin"
	execHint       = "Install gke-gcloud-auth-plugin for use with kubectl by following " +
		"https://cloud.google.com/blog/products/containers-kubernetes/kubectl-auth-changes-in-gke"
)

// ClusterInfo is what a cluster lookup returns about a GKE cluster.
type ClusterInfo struct {
	Project  string
	Location string
	Name     string
	Endpoint string
	// CACertificate is the base64 encoded cluster CA, as GKE reports it.
	CACertificate string
}

// ContextName returns the gcloud-style context name <project>_<location>_<name>.
func (c ClusterInfo) ContextName() string {
	return fmt.Sprintf("%s_%s_%s", c.Project, c.Location, c.Name)
}

// Config builds the kubeconfig object for the cluster.
func Config(info ClusterInfo) (*clientcmdapi.Config, error) {
	if info.Endpoint == "" {
		return nil, fmt.Errorf("cluster %s has no endpoint", info.Name)
	}
	ca, err := base64.StdEncoding.DecodeString(info.CACertificate)
	if err != nil {
		return nil, fmt.Errorf("decoding cluster CA certificate: %w", err)
	}

	name := info.ContextName()

	cfg := clientcmdapi.NewConfig()
	cfg.Clusters[name] = &clientcmdapi.Cluster{
		Server:                   "https://" + info.Endpoint,
		CertificateAuthorityData: ca,
	}
	cfg.AuthInfos[name] = &clientcmdapi.AuthInfo{
		Exec: &clientcmdapi.ExecConfig{
			APIVersion:         execAPIVersion,
			Command:            execCommand,
			InstallHint:        execHint,
			ProvideClusterInfo: true,
			InteractiveMode:    clientcmdapi.IfAvailableExecInteractiveMode,
		},
	}
	cfg.Contexts[name] = &clientcmdapi.Context{
		Cluster:  name,
		AuthInfo: name,
	}
	cfg.CurrentContext = name

	return cfg, nil
}

// Build returns the serialized kubeconfig for the cluster.
func Build(info ClusterInfo) ([]byte, error) {
	cfg, err := Config(info)
	if err != nil {
		return nil, err
	}
	data, err := clientcmd.Write(*cfg)
	if err != nil {
		return nil, fmt.Errorf("serializing kubeconfig: %w", err)
	}
	return data, nil
}
