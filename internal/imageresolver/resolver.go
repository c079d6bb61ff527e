// Package imageresolver implements C3: a pure, deterministic function from
// (flavor, addons, resource tier) to an image reference, exposed ports,
// resource limits, FQDN plan, and validation warnings. No I/O.
package imageresolver

import (
	"fmt"
	"sort"

	"github.com/jordanhubbard/codeopen-orchestrator/pkg/models"
)

// Flavor is a coarse variant of the assistant image.
type Flavor struct {
	ID          string
	Description string
}

// Addon is an optional feature embedded into the image.
type Addon struct {
	ID                string
	RequiresGPU       bool
	SortOrder         int
	ExtraPort         int // 0 means no extra port
	CompatibleFlavors map[string]bool
}

// Tier is a resource_tiers row.
type Tier struct {
	ID            string
	CPUMillicores int
	MemoryMB      int
	GPU           bool
}

// Catalog is the static configuration input to Resolve: the set of known
// flavors, addons, and tiers, plus the image/FQDN composition settings.
type Catalog struct {
	Flavors map[string]Flavor
	Addons  map[string]Addon
	Tiers   map[string]Tier

	DefaultFlavorID string
	DefaultTierID   string

	Registry       string
	Owner          string
	Version        string
	BaseAssistantPort int
	GatewayPort       int

	WildcardDomain string // empty disables FQDN generation
}

// ValidationResult is C3's validate_config surface, used at the API edge
// without performing resolution.
type ValidationResult struct {
	Valid    bool
	Errors   []string
	Warnings []string
}

// Resolve composes an ImageResolution from the requested flavor/addons/tier.
// It never returns an error: unresolvable inputs fall back to documented
// defaults with warnings. The caller (C6) treats a non-empty Warnings slice
// as informational, not as a failure signal. The saga does not call
// ValidateConfig; that check is exposed separately through the
// image-config validation endpoint.
func (c Catalog) Resolve(slug, flavorID string, addonIDs []string, tierID string) models.ImageResolution {
	var warnings []string

	flavor, ok := c.Flavors[flavorID]
	if !ok {
		flavor = c.Flavors[c.DefaultFlavorID]
		if flavorID != "" {
			warnings = append(warnings, fmt.Sprintf("unknown flavor %q, falling back to default %q", flavorID, c.DefaultFlavorID))
		}
	}

	var compatible []Addon
	var dropped []string
	for _, id := range addonIDs {
		addon, ok := c.Addons[id]
		if !ok {
			warnings = append(warnings, fmt.Sprintf("unknown addon %q, ignored", id))
			continue
		}
		if !addon.CompatibleFlavors[flavor.ID] {
			dropped = append(dropped, id)
			continue
		}
		compatible = append(compatible, addon)
	}
	if len(dropped) > 0 {
		warnings = append(warnings, fmt.Sprintf("addons incompatible with flavor %q, dropped: %v", flavor.ID, dropped))
	}

	sort.Slice(compatible, func(i, j int) bool { return compatible[i].SortOrder < compatible[j].SortOrder })

	var primaryAddon *Addon
	if len(compatible) > 0 {
		primaryAddon = &compatible[0]
		if len(compatible) > 1 {
			var droppedNames []string
			for _, a := range compatible[1:] {
				droppedNames = append(droppedNames, a.ID)
			}
			warnings = append(warnings, fmt.Sprintf("multiple compatible addons supplied, only %q participates in the image tag; dropped: %v", primaryAddon.ID, droppedNames))
		}
	}

	imageRef := fmt.Sprintf("%s/%s/codeopen-%s", c.Registry, c.Owner, flavor.ID)
	if primaryAddon != nil {
		imageRef += "-" + primaryAddon.ID
	}
	imageRef += ":" + c.Version

	portSet := map[int]bool{c.BaseAssistantPort: true, c.GatewayPort: true}
	for _, a := range compatible {
		if a.ExtraPort != 0 {
			portSet[a.ExtraPort] = true
		}
	}
	ports := make([]int, 0, len(portSet))
	for p := range portSet {
		ports = append(ports, p)
	}
	sort.Ints(ports)

	tier, ok := c.Tiers[tierID]
	if !ok {
		tier = c.Tiers[c.DefaultTierID]
		if tierID != "" {
			warnings = append(warnings, fmt.Sprintf("unknown resource tier %q, falling back to default %q", tierID, c.DefaultTierID))
		}
	}

	requiresGPU := tier.GPU
	for _, a := range compatible {
		if a.RequiresGPU {
			requiresGPU = true
		}
	}

	domainsConfig := ""
	if c.WildcardDomain != "" {
		domainsConfig = fmt.Sprintf("opencode-%s.%s:%d", slug, c.WildcardDomain, c.BaseAssistantPort)
		for _, a := range compatible {
			if a.ExtraPort == 0 {
				continue
			}
			prefix := addonDomainPrefix(a.ID)
			domainsConfig += fmt.Sprintf(",%s-%s.%s:%d", prefix, slug, c.WildcardDomain, a.ExtraPort)
		}
	}

	return models.ImageResolution{
		ImageRef:     imageRef,
		ExposedPorts: ports,
		ResourceLimits: models.ResourceLimits{
			TierID: tier.ID, CPUMillicores: tier.CPUMillicores, MemoryMB: tier.MemoryMB, GPU: tier.GPU,
		},
		DomainsConfig: domainsConfig,
		RequiresGPU:   requiresGPU,
		Warnings:      warnings,
	}
}

// addonDomainPrefix derives the FQDN label prefix for a given addon id
// (e.g. "code" -> "code-{slug}.{domain}", "vnc" -> "vnc-{slug}.{domain}").
// Addon ids are already short, lowercase identifiers in the catalog, so the
// id doubles as its own domain prefix.
func addonDomainPrefix(addonID string) string { return addonID }

// ValidateConfig checks (flavorID, addonIDs, tierID) without performing
// resolution, for use at the API input-validation edge.
func (c Catalog) ValidateConfig(flavorID string, addonIDs []string, tierID string) ValidationResult {
	var errs, warnings []string

	if flavorID != "" {
		if _, ok := c.Flavors[flavorID]; !ok {
			warnings = append(warnings, fmt.Sprintf("unknown flavor %q will fall back to default", flavorID))
		}
	}
	for _, id := range addonIDs {
		if _, ok := c.Addons[id]; !ok {
			warnings = append(warnings, fmt.Sprintf("unknown addon %q will be ignored", id))
		}
	}
	if tierID != "" {
		if _, ok := c.Tiers[tierID]; !ok {
			warnings = append(warnings, fmt.Sprintf("unknown resource tier %q will fall back to default", tierID))
		}
	}
	if c.DefaultFlavorID == "" || c.DefaultTierID == "" {
		errs = append(errs, "catalog missing default flavor or default tier")
	}

	return ValidationResult{Valid: len(errs) == 0, Errors: errs, Warnings: warnings}
}
