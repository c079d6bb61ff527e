package store

import (
	"database/sql"
	"strings"

	"github.com/jordanhubbard/codeopen-orchestrator/internal/database"
	"github.com/jordanhubbard/codeopen-orchestrator/internal/imageresolver"
)

// LoadCatalog reads the resource_tiers, container_flavors, and
// container_addons tables into a Catalog. image carries the
// registry/owner/version/port/domain settings, which live in config
// rather than the database since they describe this deployment, not
// admin-editable resolution inputs.
func LoadCatalog(db *database.Database, image CatalogSettings) (imageresolver.Catalog, error) {
	catalog := imageresolver.Catalog{
		Flavors: map[string]imageresolver.Flavor{},
		Addons:  map[string]imageresolver.Addon{},
		Tiers:   map[string]imageresolver.Tier{},

		DefaultFlavorID: image.DefaultFlavorID,
		DefaultTierID:   image.DefaultTierID,

		Registry:          image.Registry,
		Owner:             image.Owner,
		Version:           image.Version,
		BaseAssistantPort: image.BaseAssistantPort,
		GatewayPort:       image.GatewayPort,
		WildcardDomain:    image.WildcardDomain,
	}

	rows, err := db.DB().Query(`SELECT id, cpu_millicores, memory_mb, gpu FROM resource_tiers`)
	if err != nil {
		return catalog, err
	}
	for rows.Next() {
		var t imageresolver.Tier
		if err := rows.Scan(&t.ID, &t.CPUMillicores, &t.MemoryMB, &t.GPU); err != nil {
			rows.Close()
			return catalog, err
		}
		catalog.Tiers[t.ID] = t
	}
	rows.Close()

	rows, err = db.DB().Query(`SELECT id, description FROM container_flavors`)
	if err != nil {
		return catalog, err
	}
	for rows.Next() {
		var f imageresolver.Flavor
		var desc sql.NullString
		if err := rows.Scan(&f.ID, &desc); err != nil {
			rows.Close()
			return catalog, err
		}
		f.Description = desc.String
		catalog.Flavors[f.ID] = f
	}
	rows.Close()

	rows, err = db.DB().Query(`SELECT id, requires_gpu, sort_order, extra_port, compatible_flavors FROM container_addons`)
	if err != nil {
		return catalog, err
	}
	for rows.Next() {
		var a imageresolver.Addon
		var extraPort sql.NullInt64
		var compatCSV string
		if err := rows.Scan(&a.ID, &a.RequiresGPU, &a.SortOrder, &extraPort, &compatCSV); err != nil {
			rows.Close()
			return catalog, err
		}
		a.ExtraPort = int(extraPort.Int64)
		a.CompatibleFlavors = map[string]bool{}
		for _, flavorID := range strings.Split(compatCSV, ",") {
			flavorID = strings.TrimSpace(flavorID)
			if flavorID != "" {
				a.CompatibleFlavors[flavorID] = true
			}
		}
		catalog.Addons[a.ID] = a
	}
	rows.Close()

	return catalog, nil
}

// CatalogSettings carries the deployment-level composition inputs that
// config owns rather than the database.
type CatalogSettings struct {
	DefaultFlavorID   string
	DefaultTierID     string
	Registry          string
	Owner             string
	Version           string
	BaseAssistantPort int
	GatewayPort       int
	WildcardDomain    string
}

// SeedDefaultCatalog inserts the standard flavor/addon/tier set if the
// catalog tables are empty, so a fresh deployment has a usable default
// without requiring a manual seed step.
func SeedDefaultCatalog(db *database.Database) error {
	var count int
	if err := db.DB().QueryRow(`SELECT COUNT(*) FROM container_flavors`).Scan(&count); err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	stmts := []string{
		`INSERT INTO container_flavors (id, description) VALUES ('standard', 'General-purpose assistant image')`,
		`INSERT INTO container_flavors (id, description) VALUES ('gpu', 'GPU-enabled assistant image')`,

		`INSERT INTO container_addons (id, description, requires_gpu, sort_order, extra_port, compatible_flavors) VALUES
			('code', 'Embedded code editor', false, 10, 4098, 'standard,gpu')`,
		`INSERT INTO container_addons (id, description, requires_gpu, sort_order, extra_port, compatible_flavors) VALUES
			('vnc', 'Remote desktop session', false, 20, 4099, 'standard,gpu')`,

		`INSERT INTO resource_tiers (id, cpu_millicores, memory_mb, gpu) VALUES ('small', 500, 1024, false)`,
		`INSERT INTO resource_tiers (id, cpu_millicores, memory_mb, gpu) VALUES ('medium', 2000, 4096, false)`,
		`INSERT INTO resource_tiers (id, cpu_millicores, memory_mb, gpu) VALUES ('large', 4000, 16384, true)`,
	}
	for _, stmt := range stmts {
		if _, err := db.DB().Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}
