package config

import (
	"os"
	"sync"
)

// defaultDockerHostGateway is the name Docker Desktop (and --add-host=host-gateway) gives the host.
const defaultDockerHostGateway = "host.docker.internal"

var (
	isDockerOnce   sync.Once
	isDockerResult bool
)

// IsRunningInDocker returns true if the process runs inside a container.
// Detection relies on /.dockerenv; the result is cached after the first call.
func IsRunningInDocker() bool {
	isDockerOnce.Do(func() {
		_, err := os.Stat("/.dockerenv")
		isDockerResult = err == nil
	})
	return isDockerResult
}

// DockerHostGateway returns the hostname that reaches the container host.
// DOCKER_HOST_GATEWAY overrides the default for Linux setups without host.docker.internal.
func DockerHostGateway() string {
	if gw := os.Getenv("DOCKER_HOST_GATEWAY"); gw != "" {
		return gw
	}
	return defaultDockerHostGateway
}

// ResolveHostForDocker rewrites loopback hosts to the container host gateway
// when running in a container, so the engine can reach an ERP or metric
// database published on the host. Other hosts are returned unchanged.
func ResolveHostForDocker(host string) string {
	if !IsRunningInDocker() {
		return host
	}

	if host == "localhost" || host == "127.0.0.1" {
		return DockerHostGateway()
	}

	return host
}
