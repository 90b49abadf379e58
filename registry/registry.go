// Package registry is service discovery for liquidnet servers. Servers
// register the address they accept connections on; clients discover and
// watch the instance list of a service.
package registry

import "context"

type ServiceInstance struct {
	Addr    string `json:"addr"`
	Weight  int    `json:"weight"` // weight for load balancing
	Version string `json:"version,omitempty"`
}

type Registry interface {
	// Register announces instance under serviceName for ttl seconds, renewed
	// until Deregister or Close.
	Register(ctx context.Context, serviceName string, instance ServiceInstance, ttl int64) error
	Deregister(ctx context.Context, serviceName string, addr string) error
	Discover(ctx context.Context, serviceName string) ([]ServiceInstance, error)
	// Watch emits the full instance list after every change until ctx is
	// done, then closes the channel.
	Watch(ctx context.Context, serviceName string) <-chan []ServiceInstance
	Close() error
}
