// Package cluster registers the session server in Consul, exposes its
// aggregated health, and lets clients discover healthy instances.
package cluster

import (
	"fmt"
	"strings"

	consul "github.com/hashicorp/consul/api"
	"go.uber.org/zap"
)

// NewConsulClient tries each comma separated agent address in turn and
// returns a client for the first one that reports a cluster leader.
func NewConsulClient(addrs string, log *zap.Logger) (*consul.Client, error) {
	if log == nil {
		log = zap.NewNop()
	}
	for _, node := range strings.Split(addrs, ",") {
		node = strings.TrimSpace(node)
		if node == "" {
			continue
		}
		cfg := consul.DefaultConfig()
		cfg.Address = node

		client, err := consul.NewClient(cfg)
		if err != nil {
			log.Warn("consul client failed", zap.String("addr", node), zap.Error(err))
			continue
		}
		if _, err := client.Status().Leader(); err != nil {
			log.Warn("consul agent unhealthy", zap.String("addr", node), zap.Error(err))
			continue
		}
		log.Info("connected to consul", zap.String("addr", node))
		return client, nil
	}
	return nil, fmt.Errorf("no consul agent available in %q", addrs)
}
