package selection

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/tvoe/vidgrab/internal/domain"
)

// Registry maps platforms to the policy in effect for them.
type Registry struct {
	policies map[domain.Platform]ResolutionPolicy
}

// DefaultRegistry returns a registry holding the built-in policies.
func DefaultRegistry() *Registry {
	r := &Registry{policies: make(map[domain.Platform]ResolutionPolicy)}
	for _, p := range domain.AllPlatforms() {
		policy, _ := PolicyFor(p)
		r.policies[p] = policy
	}
	return r
}

// policyOverride holds the fields a policy file may replace.
type policyOverride struct {
	Landscape        *[]int        `yaml:"landscape"`
	Portrait         *[]int        `yaml:"portrait"`
	Orientation      *bool         `yaml:"orientation"`
	Audio            *AudioPairing `yaml:"audio"`
	Size             *SizeMode     `yaml:"size"`
	DefaultFrameRate *float64      `yaml:"defaultFrameRate"`
}

// LoadRegistry builds a registry from the built-in policies and the
// overrides in the YAML file at path. An empty path yields the defaults.
func LoadRegistry(path string) (*Registry, error) {
	r := DefaultRegistry()
	if path == "" {
		return r, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}
	if err := r.apply(data); err != nil {
		return nil, fmt.Errorf("policy file %s: %w", path, err)
	}
	return r, nil
}

func (r *Registry) apply(data []byte) error {
	var overrides map[string]policyOverride
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return fmt.Errorf("failed to parse: %w", err)
	}

	seen := make(map[domain.Platform]string, len(overrides))
	for name := range overrides {
		platform, ok := domain.ParsePlatform(name)
		if !ok {
			return fmt.Errorf("%q: %w", name, domain.ErrUnsupportedPlatform)
		}
		if prev, dup := seen[platform]; dup {
			return fmt.Errorf("%q and %q both configure %s", prev, name, platform)
		}
		seen[platform] = name
	}

	for name, o := range overrides {
		platform, _ := domain.ParsePlatform(name)
		policy := r.policies[platform]
		if o.Landscape != nil {
			policy.Landscape = *o.Landscape
		}
		if o.Portrait != nil {
			policy.Portrait = *o.Portrait
		}
		if o.Orientation != nil {
			policy.Orientation = *o.Orientation
		}
		if o.Audio != nil {
			policy.Audio = *o.Audio
		}
		if o.Size != nil {
			policy.Size = *o.Size
		}
		if o.DefaultFrameRate != nil {
			policy.DefaultFrameRate = *o.DefaultFrameRate
		}
		if err := policy.Validate(); err != nil {
			return err
		}
		r.policies[platform] = policy
	}
	return nil
}

// Lookup returns the policy for a platform.
func (r *Registry) Lookup(p domain.Platform) (ResolutionPolicy, error) {
	policy, ok := r.policies[p]
	if !ok {
		return ResolutionPolicy{}, fmt.Errorf("%q: %w", p, domain.ErrUnsupportedPlatform)
	}
	return policy.clone(), nil
}

// All returns every policy in platform order.
func (r *Registry) All() []ResolutionPolicy {
	out := make([]ResolutionPolicy, 0, len(r.policies))
	for _, p := range domain.AllPlatforms() {
		if policy, ok := r.policies[p]; ok {
			out = append(out, policy.clone())
		}
	}
	return out
}
