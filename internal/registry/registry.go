// Package registry holds the extraction prompts, one per fragment. The
// built-in prompts cover every fragment the pipeline extracts; a YAML file
// can override any of them without a rebuild.
package registry

import (
	"fmt"
	"os"
	"sort"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Prompt is the extraction instruction set for one fragment.
type Prompt struct {
	Schema       string `yaml:"schema"`
	System       string `yaml:"system"`
	Instructions string `yaml:"instructions"`
}

// Registry maps fragment names to prompts.
type Registry struct {
	prompts map[string]Prompt
}

const systemBase = "You extract structured data from corporate sustainability reports. " +
	"Only report what the text actually states. Reply with JSON only, no prose. " +
	"Use an explicit null for a value the report says should no longer apply; " +
	"omit fields the report does not mention."

var defaults = map[string]Prompt{
	"emissions": {
		Schema: "emissions",
		System: systemBase,
		Instructions: "Extract greenhouse gas emissions per reporting period: scope1, scope2 " +
			"(market-based as mb, location-based as lb, unspecified as unknown), scope3 per GHG " +
			"Protocol category plus any stated total, biogenic emissions, any stated total, and " +
			"any combined scope1And2 figure. Include units. Keep category sums and stated totals " +
			"separate even when they disagree.",
	},
	"economy": {
		Schema: "economy",
		System: systemBase,
		Instructions: "Extract turnover (value plus ISO 4217 currency) and employee count " +
			"(value plus unit, e.g. FTE) per reporting period.",
	},
	"goals": {
		Schema: "goals",
		System: systemBase,
		Instructions: "Extract stated climate goals as a list: description, target year, " +
			"reduction target in percent if given, and base year.",
	},
	"initiatives": {
		Schema: "initiatives",
		System: systemBase,
		Instructions: "Extract concrete climate initiatives as a list: title, description, " +
			"year, and affected scope where stated.",
	},
	"equality": {
		Schema: "equality",
		System: systemBase,
		Instructions: "Extract disclosed equality and inclusion work as a list: area, " +
			"description, and year where stated.",
	},
	"industry": {
		Schema: "industry",
		System: systemBase,
		Instructions: "Determine the company's industry classification: a code from the " +
			"GICS-style taxonomy and its label.",
	},
}

// Default returns a registry with the built-in prompts.
func Default() *Registry {
	prompts := make(map[string]Prompt, len(defaults))
	for k, v := range defaults {
		prompts[k] = v
	}
	return &Registry{prompts: prompts}
}

// Load returns the built-in registry with overrides from the YAML file at
// path applied on top. A missing file is not an error; the defaults serve.
func Load(path string) (*Registry, error) {
	r := Default()
	if path == "" {
		return r, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return r, nil
		}
		return nil, eris.Wrapf(err, "registry: read %s", path)
	}

	var file struct {
		Prompts map[string]Prompt `yaml:"prompts"`
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, eris.Wrapf(err, "registry: parse %s", path)
	}

	for name, p := range file.Prompts {
		base, ok := r.prompts[name]
		if !ok {
			base = Prompt{Schema: name}
		}
		if p.Schema != "" {
			base.Schema = p.Schema
		}
		if p.System != "" {
			base.System = p.System
		}
		if p.Instructions != "" {
			base.Instructions = p.Instructions
		}
		r.prompts[name] = base
	}
	return r, nil
}

// Get returns the prompt for a fragment name.
func (r *Registry) Get(name string) (Prompt, error) {
	p, ok := r.prompts[name]
	if !ok {
		return Prompt{}, eris.New(fmt.Sprintf("registry: unknown fragment %q", name))
	}
	return p, nil
}

// Names lists the registered fragment names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.prompts))
	for n := range r.prompts {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
