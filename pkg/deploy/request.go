package deploy

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/docker/go-connections/nat"
	"github.com/go-errors/errors"
	"github.com/samber/lo"

	"github.com/kswings/kswingsd/pkg/assets"
)

// DefaultPrimaryPort is announced to the workload when the request
// carries no port bindings at all.
const DefaultPrimaryPort = 8080

// Scripts groups the provisioning assets of a create request.
type Scripts struct {
	Install []assets.InstallScript `json:"install,omitempty"`
}

// CreateRequest is the panel's deployment request. Memory and Disk are
// in MiB; Disk 0 disables quota enforcement. Variables arrives either
// as a JSON object or as a JSON string containing one (older panels
// double-encode it).
type CreateRequest struct {
	Image        string          `json:"image"`
	ID           string          `json:"Id"`
	Cmd          []string        `json:"cmd,omitempty"`
	Env          []string        `json:"env,omitempty"`
	ExposedPorts nat.PortSet     `json:"ExposedPorts,omitempty"`
	PortBindings nat.PortMap     `json:"PortBindings,omitempty"`
	Scripts      Scripts         `json:"scripts,omitempty"`
	Memory       int64           `json:"Memory"`
	CPU          int64           `json:"Cpu"`
	Disk         int64           `json:"Disk"`
	Variables    json.RawMessage `json:"variables,omitempty"`
}

// EditRequest mutates resource limits on an existing instance. Zero
// fields are left unchanged.
type EditRequest struct {
	Memory int64 `json:"Memory,omitempty"`
	CPU    int64 `json:"Cpu,omitempty"`
	Disk   int64 `json:"Disk,omitempty"`
}

// RequestError is a caller mistake, answered with a 400 and no side
// effects.
type RequestError struct {
	Message string
}

func (e *RequestError) Error() string {
	return e.Message
}

// IsBadRequest tells us whether an error was the caller's fault.
func IsBadRequest(err error) bool {
	var re *RequestError
	return errors.As(err, &re)
}

// validate rejects a request before any side effect happens.
func (r *CreateRequest) validate() error {
	if r.Image == "" {
		return &RequestError{Message: "image not specified"}
	}
	if r.ID == "" {
		return &RequestError{Message: "instance id not specified"}
	}
	for port, bindings := range r.PortBindings {
		for _, binding := range bindings {
			n, err := nat.ParsePort(binding.HostPort)
			if err != nil || n < 1 {
				return &RequestError{Message: fmt.Sprintf("invalid host port %q for %s", binding.HostPort, port)}
			}
		}
	}
	return nil
}

// parseVariables normalizes the variables field to a string map.
func (r *CreateRequest) parseVariables() (map[string]string, error) {
	if len(r.Variables) == 0 {
		return map[string]string{}, nil
	}

	raw := r.Variables
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		if asString == "" {
			return map[string]string{}, nil
		}
		raw = []byte(asString)
	}

	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, &RequestError{Message: "variables must be a JSON object"}
	}

	vars := make(map[string]string, len(obj))
	for key, value := range obj {
		vars[key] = fmt.Sprint(value)
	}
	return vars, nil
}

// primaryPort picks the host port of the first binding, falling back
// to the default when no bindings exist. Decoding loses the JSON
// object order of PortBindings, so "first" means the lexicographically
// smallest port key; the pick is stable across requests rather than
// declaration-ordered.
func (r *CreateRequest) primaryPort() int {
	ports := lo.Keys(r.PortBindings)
	sort.Slice(ports, func(i, j int) bool { return ports[i] < ports[j] })

	for _, port := range ports {
		for _, binding := range r.PortBindings[port] {
			if n, err := nat.ParsePort(binding.HostPort); err == nil && n >= 1 {
				return n
			}
		}
	}
	return DefaultPrimaryPort
}

// buildEnv assembles the container environment: caller env first, then
// variables as KEY=VALUE in sorted order, then the derived PRIMARY_PORT.
func (r *CreateRequest) buildEnv(vars map[string]string, primaryPort int) []string {
	env := make([]string, 0, len(r.Env)+len(vars)+1)
	env = append(env, r.Env...)

	keys := lo.Keys(vars)
	sort.Strings(keys)
	for _, key := range keys {
		env = append(env, key+"="+vars[key])
	}

	return append(env, "PRIMARY_PORT="+strconv.Itoa(primaryPort))
}

// exposedPorts merges explicitly exposed ports with every bound port,
// so a binding alone is enough to open its container port.
func (r *CreateRequest) exposedPorts() nat.PortSet {
	if len(r.ExposedPorts) == 0 && len(r.PortBindings) == 0 {
		return nil
	}
	ports := nat.PortSet{}
	for port := range r.ExposedPorts {
		ports[port] = struct{}{}
	}
	for port := range r.PortBindings {
		ports[port] = struct{}{}
	}
	return ports
}
