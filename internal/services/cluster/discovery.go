package cluster

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	consul "github.com/hashicorp/consul/api"
	"go.uber.org/zap"
)

// DiscoverAny returns host:port of a random healthy instance of service.
func DiscoverAny(client *consul.Client, service string) (string, error) {
	entries, _, err := client.Health().Service(service, "", true, nil)
	if err != nil {
		return "", fmt.Errorf("lookup %s: %w", service, err)
	}
	return pickAddress(entries, rand.IntN)
}

func pickAddress(entries []*consul.ServiceEntry, intn func(int) int) (string, error) {
	if len(entries) == 0 {
		return "", fmt.Errorf("no healthy instance")
	}
	return entryAddress(entries[intn(len(entries))]), nil
}

func entryAddress(e *consul.ServiceEntry) string {
	addr := e.Service.Address
	if addr == "" && e.Node != nil {
		addr = e.Node.Address
	}
	return fmt.Sprintf("%s:%d", addr, e.Service.Port)
}

// WatchService calls update with the healthy addresses of service every
// time the set changes, using Consul blocking queries. It returns when ctx
// is done.
func WatchService(ctx context.Context, client *consul.Client, service string, log *zap.Logger, update func([]string)) {
	if log == nil {
		log = zap.NewNop()
	}
	var waitIndex uint64
	for ctx.Err() == nil {
		opts := (&consul.QueryOptions{WaitIndex: waitIndex, WaitTime: 2 * time.Minute}).WithContext(ctx)
		entries, meta, err := client.Health().Service(service, "", true, opts)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warn("service watch failed", zap.String("service", service), zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(5 * time.Second):
			}
			continue
		}
		// An index going backwards means the agent restarted.
		if meta.LastIndex < waitIndex {
			waitIndex = 0
		} else {
			waitIndex = meta.LastIndex
		}

		addrs := make([]string, 0, len(entries))
		for _, e := range entries {
			addrs = append(addrs, entryAddress(e))
		}
		update(addrs)
	}
}
