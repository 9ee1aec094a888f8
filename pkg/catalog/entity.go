package catalog

import (
	"encoding/json"
	"fmt"
)

// Entity is a placeable game entity. The concrete type is selected by the
// "type" discriminator when the catalog is decoded. Planning never looks
// inside an entity; the variants exist so the dump round-trips without loss.
type Entity interface {
	// Base returns the attributes shared by every entity type.
	Base() *EntityBase
}

// Entity type discriminators.
const (
	EntityBoiler            = "boiler"
	EntityFurnace           = "furnace"
	EntityAssemblingMachine = "assembling-machine"
	EntityBeacon            = "beacon"
	EntityRocketSilo        = "rocket-silo"
)

// EntityBase holds the attributes common to all entities.
type EntityBase struct {
	Name                string       `json:"name"`
	Type                string       `json:"type"`
	Order               string       `json:"order,omitempty"`
	Group               string       `json:"group,omitempty"`
	Subgroup            string       `json:"subgroup,omitempty"`
	ModuleInventorySize int          `json:"module_inventory_size,omitempty"`
	Width               int          `json:"width"`
	Height              int          `json:"height"`
	Flags               List[string] `json:"flags,omitempty"`
	TranslatedName      string       `json:"translated_name,omitempty"`
}

// Base implements Entity.
func (b *EntityBase) Base() *EntityBase { return b }

// EffectReceiver describes which module effects apply to a crafting entity.
type EffectReceiver struct {
	BaseEffect         map[string]float64 `json:"base_effect,omitempty"`
	UsesModuleEffects  bool               `json:"uses_module_effects"`
	UsesBeaconEffects  bool               `json:"uses_beacon_effects"`
	UsesSurfaceEffects bool               `json:"uses_surface_effects"`
}

// Crafter holds the attributes shared by entities that run recipes.
type Crafter struct {
	CraftingSpeed      map[string]float64 `json:"crafting_speed,omitempty"`
	CraftingCategories List[string]       `json:"crafting_categories,omitempty"`
	AllowedEffects     List[string]       `json:"allowed_effects,omitempty"`
	EffectReceiver     *EffectReceiver    `json:"effect_receiver,omitempty"`
	EnergyConsumption  float64            `json:"energy_consumption,omitempty"`
	Drain              float64            `json:"drain,omitempty"`
	EnergySource       string             `json:"energy_source,omitempty"`
}

// Boiler is a boiler entity.
type Boiler struct {
	EntityBase
}

// Furnace is a furnace entity.
type Furnace struct {
	EntityBase
	Crafter
	FuelCategories List[string] `json:"fuel_categories,omitempty"`
}

// AssemblingMachine is an assembling machine entity.
type AssemblingMachine struct {
	EntityBase
	Crafter
	FuelCategories List[string] `json:"fuel_categories,omitempty"`
	FixedRecipe    string       `json:"fixed_recipe,omitempty"`
}

// Beacon is a beacon entity.
type Beacon struct {
	EntityBase
	AllowedEffects                              List[string]   `json:"allowed_effects,omitempty"`
	DistributionEffectivity                     float64        `json:"distribution_effectivity,omitempty"`
	DistributionEffectivityBonusPerQualityLevel float64        `json:"distribution_effectivity_bonus_per_quality_level,omitempty"`
	SupplyAreaDistance                          map[string]int `json:"supply_area_distance,omitempty"`
	EnergyConsumption                           float64        `json:"energy_consumption,omitempty"`
	Drain                                       float64        `json:"drain,omitempty"`
	EnergySource                                string         `json:"energy_source,omitempty"`
}

// RocketSilo is a rocket silo entity.
type RocketSilo struct {
	EntityBase
	Crafter
	RocketPartsRequired int    `json:"rocket_parts_required,omitempty"`
	FixedRecipe         string `json:"fixed_recipe,omitempty"`
}

// CraftingSpeed returns the normal-quality crafting speed of an entity that
// runs recipes, or 0 for entities that do not craft.
func CraftingSpeed(e Entity) float64 {
	var c *Crafter
	switch v := e.(type) {
	case *Furnace:
		c = &v.Crafter
	case *AssemblingMachine:
		c = &v.Crafter
	case *RocketSilo:
		c = &v.Crafter
	default:
		return 0
	}
	return c.CraftingSpeed["normal"]
}

// decodeEntity selects the concrete entity type from the "type" field.
func decodeEntity(data []byte) (Entity, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, err
	}

	var e Entity
	switch head.Type {
	case EntityBoiler:
		e = &Boiler{}
	case EntityFurnace:
		e = &Furnace{}
	case EntityAssemblingMachine:
		e = &AssemblingMachine{}
	case EntityBeacon:
		e = &Beacon{}
	case EntityRocketSilo:
		e = &RocketSilo{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEntity, head.Type)
	}
	if err := json.Unmarshal(data, e); err != nil {
		return nil, err
	}
	return e, nil
}
