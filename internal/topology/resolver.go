package topology

import (
	"fmt"
	"sort"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	dErrors "legitify/pkg/domain-errors"
)

var validate = validator.New()

// Resolver serves immutable topologies built once at startup.
// It is safe for concurrent use without locking.
type Resolver struct {
	orgs map[string]Topology
}

// NewResolver validates every topology and indexes it by normalized organization name.
func NewResolver(orgs map[string]Topology) (*Resolver, error) {
	indexed := make(map[string]Topology, len(orgs))
	for name, topo := range orgs {
		key := NormalizeOrganization(name)
		if key == "" {
			return nil, fmt.Errorf("topology: empty organization name")
		}
		if _, dup := indexed[key]; dup {
			return nil, fmt.Errorf("topology: organization %q configured twice", key)
		}
		if err := validate.Struct(topo); err != nil {
			return nil, fmt.Errorf("topology: organization %q: %w", key, err)
		}
		topo = topo.clone()
		topo.Organization = key
		indexed[key] = topo
	}
	return &Resolver{orgs: indexed}, nil
}

// Load reads a topology file. The file holds one entry per organization under
// the "organizations" key; YAML, JSON and TOML are accepted by extension.
func Load(path string) (*Resolver, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("topology: read %s: %w", path, err)
	}

	var file struct {
		Organizations map[string]Topology `mapstructure:"organizations"`
	}
	if err := v.Unmarshal(&file); err != nil {
		return nil, fmt.Errorf("topology: decode %s: %w", path, err)
	}
	if len(file.Organizations) == 0 {
		return nil, fmt.Errorf("topology: %s defines no organizations", path)
	}
	return NewResolver(file.Organizations)
}

// Resolve returns the topology of org, or CodeUnknownOrganization.
func (r *Resolver) Resolve(org string) (Topology, error) {
	topo, ok := r.orgs[NormalizeOrganization(org)]
	if !ok {
		return Topology{}, dErrors.New(dErrors.CodeUnknownOrganization,
			fmt.Sprintf("organization %q is not configured", org))
	}
	return topo.clone(), nil
}

// Organizations lists the configured organization names in sorted order.
func (r *Resolver) Organizations() []string {
	names := make([]string, 0, len(r.orgs))
	for name := range r.orgs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
