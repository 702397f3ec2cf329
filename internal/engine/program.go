package engine

import (
	"fmt"

	"github.com/pulumi/pulumi-gcp/sdk/v8/go/gcp/container"
	"github.com/pulumi/pulumi-kubernetes/sdk/v4/go/kubernetes"
	yamlv2 "github.com/pulumi/pulumi-kubernetes/sdk/v4/go/kubernetes/yaml/v2"
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"

	"github.com/bcnelson/simulation-deployer/internal/kubeconfig"
	"github.com/bcnelson/simulation-deployer/internal/manifest"
)

// program returns the inline Pulumi program that applies m to the cluster.
func (p *Pulumi) program(m *manifest.Manifest, doc []byte) pulumi.RunFunc {
	return func(ctx *pulumi.Context) error {
		exports, err := p.apply(ctx, m, doc)
		if err != nil {
			return err
		}
		for key, value := range exports {
			ctx.Export(key, value)
		}
		return nil
	}
}

// apply registers the GKE provider and the manifest's ConfigGroup, returning
// the stack outputs to export.
func (p *Pulumi) apply(ctx *pulumi.Context, m *manifest.Manifest, doc []byte) (pulumi.StringMap, error) {
	args := &container.LookupClusterArgs{
		Name:     p.cfg.ClusterName,
		Location: pulumi.StringRef(p.cfg.ClusterLocation),
	}
	if p.cfg.ClusterProject != "" {
		args.Project = pulumi.StringRef(p.cfg.ClusterProject)
	}

	cluster, err := container.LookupCluster(ctx, args)
	if err != nil {
		return nil, fmt.Errorf("looking up cluster %s: %w", p.cfg.ClusterName, err)
	}
	if len(cluster.MasterAuths) == 0 {
		return nil, fmt.Errorf("cluster %s has no master auth", p.cfg.ClusterName)
	}

	kc, err := kubeconfig.Build(kubeconfig.ClusterInfo{
		Project:       p.cfg.ClusterProject,
		Location:      p.cfg.ClusterLocation,
		Name:          p.cfg.ClusterName,
		Endpoint:      cluster.Endpoint,
		CACertificate: cluster.MasterAuths[0].ClusterCaCertificate,
	})
	if err != nil {
		return nil, fmt.Errorf("building kubeconfig: %w", err)
	}

	provider, err := kubernetes.NewProvider(ctx, "gke", &kubernetes.ProviderArgs{
		Kubeconfig: pulumi.String(string(kc)),
	})
	if err != nil {
		return nil, fmt.Errorf("creating kubernetes provider: %w", err)
	}

	_, err = yamlv2.NewConfigGroup(ctx, m.Name, &yamlv2.ConfigGroupArgs{
		Yaml: pulumi.StringPtr(string(doc)),
	}, pulumi.Provider(provider))
	if err != nil {
		return nil, fmt.Errorf("applying manifest: %w", err)
	}

	exports := pulumi.StringMap{}
	for key, value := range Outputs(m) {
		exports[key] = pulumi.String(fmt.Sprint(value))
	}
	return exports, nil
}
