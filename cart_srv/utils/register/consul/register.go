package consul

import (
	"fmt"

	"github.com/hashicorp/consul/api"
)

type Registry struct {
	Host string
	Port int
}

type RegistryClient interface {
	Register(address string, port, grpcPort int, name string, tags []string, id string) error
	DeRegister(serviceId string) error
}

func NewRegistryClient(host string, port int) RegistryClient {
	return &Registry{
		Host: host,
		Port: port,
	}
}

func (r *Registry) client() (*api.Client, error) {
	cfg := api.DefaultConfig()
	cfg.Address = fmt.Sprintf("%s:%d", r.Host, r.Port)
	return api.NewClient(cfg)
}

//注册http服务，http的/health和grpc的健康检查都要通过
func (r *Registry) Register(address string, port, grpcPort int, name string, tags []string, id string) error {
	client, err := r.client()
	if err != nil {
		return err
	}
	checks := api.AgentServiceChecks{
		{
			HTTP:                           fmt.Sprintf("http://%s:%d/health", address, port),
			Timeout:                        "5s",
			Interval:                       "5s",
			DeregisterCriticalServiceAfter: "15s",
		},
	}
	if grpcPort > 0 {
		checks = append(checks, &api.AgentServiceCheck{
			GRPC:                           fmt.Sprintf("%s:%d", address, grpcPort),
			Timeout:                        "5s",
			Interval:                       "5s",
			DeregisterCriticalServiceAfter: "15s",
		})
	}
	registration := &api.AgentServiceRegistration{
		ID:      id,
		Name:    name,
		Tags:    tags,
		Port:    port,
		Address: address,
		Checks:  checks,
	}
	return client.Agent().ServiceRegister(registration)
}

func (r *Registry) DeRegister(serviceId string) error {
	client, err := r.client()
	if err != nil {
		return err
	}
	return client.Agent().ServiceDeregister(serviceId)
}
