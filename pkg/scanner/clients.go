package scanner

import (
	"fmt"
	"os"
	"path/filepath"

	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	"k8s.io/client-go/util/homedir"
	metricsv "k8s.io/metrics/pkg/client/clientset/versioned"
)

// Clients bundles the API clients an assessment needs
type Clients struct {
	Kube    kubernetes.Interface
	Metrics metricsv.Interface
}

// BuildClients connects using kubeconfig, then $KUBECONFIG, then
// ~/.kube/config, then the in-cluster service account.
func BuildClients(kubeconfig string) (*Clients, error) {
	config, err := restConfig(kubeconfig)
	if err != nil {
		return nil, err
	}

	clientset, err := kubernetes.NewForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create clientset: %w", err)
	}

	metricsClient, err := metricsv.NewForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics client: %w", err)
	}

	return &Clients{Kube: clientset, Metrics: metricsClient}, nil
}

func restConfig(kubeconfig string) (*rest.Config, error) {
	if kubeconfig == "" {
		if list := filepath.SplitList(os.Getenv("KUBECONFIG")); len(list) > 0 {
			kubeconfig = list[0]
		}
	}
	if kubeconfig == "" {
		if home := homedir.HomeDir(); home != "" {
			path := filepath.Join(home, ".kube", "config")
			if _, err := os.Stat(path); err == nil {
				kubeconfig = path
			}
		}
	}

	if kubeconfig == "" {
		config, err := rest.InClusterConfig()
		if err != nil {
			return nil, fmt.Errorf("no kubeconfig found and not running in a cluster: %w", err)
		}
		return config, nil
	}

	config, err := clientcmd.BuildConfigFromFlags("", kubeconfig)
	if err != nil {
		return nil, fmt.Errorf("failed to build config from %s: %w", kubeconfig, err)
	}
	return config, nil
}
