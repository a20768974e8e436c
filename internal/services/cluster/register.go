package cluster

import (
	"fmt"
	"os"

	consul "github.com/hashicorp/consul/api"
	"go.uber.org/zap"
)

// Registration describes this instance to Consul.
type Registration struct {
	Name string
	Port int
	// HealthURL is polled by the agent. Defaults to
	// http://<hostname>:<Port>/health.
	HealthURL string
	Tags      []string
}

// Register adds the instance to the agent's catalog with an HTTP check and
// returns its service id for Deregister.
func Register(client *consul.Client, reg Registration, log *zap.Logger) (string, error) {
	if log == nil {
		log = zap.NewNop()
	}
	hostname := os.Getenv("HOSTNAME")
	if hostname == "" {
		hostname, _ = os.Hostname()
	}
	serviceID := fmt.Sprintf("%s-%s", reg.Name, hostname)

	healthURL := reg.HealthURL
	if healthURL == "" {
		healthURL = fmt.Sprintf("http://%s:%d/health", hostname, reg.Port)
	}

	registration := &consul.AgentServiceRegistration{
		ID:   serviceID,
		Name: reg.Name,
		Port: reg.Port,
		Tags: reg.Tags,
		Check: &consul.AgentServiceCheck{
			HTTP:                           healthURL,
			Timeout:                        "5s",
			Interval:                       "10s",
			DeregisterCriticalServiceAfter: "1m",
		},
	}
	if err := client.Agent().ServiceRegister(registration); err != nil {
		return "", fmt.Errorf("register %s: %w", serviceID, err)
	}
	log.Info("registered in consul", zap.String("service", reg.Name), zap.String("id", serviceID))
	return serviceID, nil
}

// Deregister removes the instance from the agent's catalog.
func Deregister(client *consul.Client, serviceID string) error {
	if err := client.Agent().ServiceDeregister(serviceID); err != nil {
		return fmt.Errorf("deregister %s: %w", serviceID, err)
	}
	return nil
}
