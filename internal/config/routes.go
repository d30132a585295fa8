package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// RouteSpec is one entry of the gateway route table as configured.
// Backend names a key of the backend map, not a URL.
type RouteSpec struct {
	Name         string `yaml:"name"`
	Path         string `yaml:"path"`
	RequiresAuth bool   `yaml:"requires_auth"`
	Backend      string `yaml:"backend"`
}

// RoutesFile is the on-disk layout of a route table file.
type RoutesFile struct {
	Backends map[string]string `yaml:"backends"`
	Routes   []RouteSpec       `yaml:"routes"`
}

// DefaultRoutes is the built-in route table.
func DefaultRoutes() []RouteSpec {
	return []RouteSpec{
		{Name: "signup_route", Path: "/api/auth/signup", RequiresAuth: false, Backend: BackendAuth},
		{Name: "login_route", Path: "/api/auth/login", RequiresAuth: false, Backend: BackendAuth},
		{Name: "users_route", Path: "/api/auth/users", RequiresAuth: true, Backend: BackendAuth},
		{Name: "auth_event_route", Path: "/api/auth/events/**", RequiresAuth: true, Backend: BackendAuth},
		{Name: "task_route", Path: "/api/tasks/**", RequiresAuth: true, Backend: BackendTask},
		{Name: "project_route", Path: "/api/projects/**", RequiresAuth: true, Backend: BackendProject},
		{Name: "message_route", Path: "/api/messages/**", RequiresAuth: true, Backend: BackendMessage},
	}
}

// LoadRoutes returns the route table and backend map for the gateway. With an
// empty path the defaults are used. Backends listed in the file override the
// ones from the environment.
func LoadRoutes(path string, envBackends map[string]string) ([]RouteSpec, map[string]string, error) {
	backends := make(map[string]string, len(envBackends))
	for k, v := range envBackends {
		backends[k] = v
	}
	if path == "" {
		return DefaultRoutes(), backends, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read route file: %w", err)
	}

	var file RoutesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, nil, fmt.Errorf("failed to parse route file %s: %w", path, err)
	}
	if len(file.Routes) == 0 {
		return nil, nil, fmt.Errorf("route file %s defines no routes", path)
	}
	for k, v := range file.Backends {
		backends[k] = v
	}
	return file.Routes, backends, nil
}
