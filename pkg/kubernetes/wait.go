package kubernetes

import (
	"context"
	"fmt"
	"time"

	"github.com/avast/retry-go"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	k8s "k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/clientcmd"
)

// WaitNodeReady polls the apiserver through the given kubeconfig until the
// node reports Ready. This replaces the runbooks' "SSH back in later and run
// kubectl get nodes" step.
func WaitNodeReady(ctx context.Context, kubeconfig, nodeName string, timeout time.Duration) error {
	config, err := clientcmd.BuildConfigFromFlags("", kubeconfig)
	if err != nil {
		return fmt.Errorf("loading %s: %w", kubeconfig, err)
	}
	client, err := k8s.NewForConfig(config)
	if err != nil {
		return err
	}

	interval := 5 * time.Second
	attempts := uint(timeout / interval)
	if attempts == 0 {
		attempts = 1
	}

	return retry.Do(
		func() error {
			if err := ctx.Err(); err != nil {
				return retry.Unrecoverable(err)
			}
			node, err := client.CoreV1().Nodes().Get(ctx, nodeName, metav1.GetOptions{})
			if err != nil {
				return err
			}
			for _, cond := range node.Status.Conditions {
				if cond.Type == corev1.NodeReady && cond.Status == corev1.ConditionTrue {
					return nil
				}
			}
			return fmt.Errorf("node %s not ready yet", nodeName)
		},
		retry.Attempts(attempts),
		retry.Delay(interval),
		retry.DelayType(retry.FixedDelay),
	)
}
