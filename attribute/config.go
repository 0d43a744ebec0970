package attribute

import (
	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

// AttributeConfig describes one attribute in external configuration. Default
// payloads arrive as untyped maps or numbers and are decoded according to
// Type.
type AttributeConfig struct {
	Name                   string      `json:"name" mapstructure:"name"`
	Type                   string      `json:"type" mapstructure:"type"`
	LODThresholdMultiplier float64     `json:"lod_threshold_multiplier" mapstructure:"lod_threshold_multiplier"`
	PlacementGranularity   float64     `json:"placement_granularity" mapstructure:"placement_granularity"`
	Default                interface{} `json:"default" mapstructure:"default"`
}

// RegistryConfig is the startup configuration for the attribute registry.
type RegistryConfig struct {
	Attributes []AttributeConfig `json:"attributes" mapstructure:"attributes"`
}

// Attribute payload kinds understood by the config loader.
const (
	TypeFloat    = "float"
	TypeColor    = "color"
	TypeMaterial = "material"
	TypeSpanners = "spanners"
)

// NewRegistryFromConfig builds and freezes a registry from external
// configuration, collecting all per-attribute errors before failing.
func NewRegistryFromConfig(cfg *RegistryConfig) (*Registry, error) {
	registry := NewRegistry()
	var errs error
	for _, ac := range cfg.Attributes {
		attr, err := ac.toAttribute()
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		errs = multierr.Append(errs, registry.Register(attr))
	}
	if errs != nil {
		return nil, errs
	}
	registry.Freeze()
	return registry, nil
}

func (ac AttributeConfig) toAttribute() (*Attribute, error) {
	cfg := Config{
		LODThresholdMultiplier: ac.LODThresholdMultiplier,
		PlacementGranularity:   ac.PlacementGranularity,
	}
	if cfg.LODThresholdMultiplier == 0 {
		cfg.LODThresholdMultiplier = 1
	}
	switch ac.Type {
	case TypeFloat:
		if ac.Default != nil {
			var f float64
			if err := decodeDefault(ac.Default, &f); err != nil {
				return nil, errors.Wrapf(err, "attribute %q", ac.Name)
			}
			cfg.Default = f
		}
		return NewFloatAttribute(ac.Name, cfg)
	case TypeColor, TypeMaterial:
		if ac.Default != nil {
			var c Color
			if err := decodeDefault(ac.Default, &c); err != nil {
				return nil, errors.Wrapf(err, "attribute %q", ac.Name)
			}
			cfg.Default = c
		}
		return NewColorAttribute(ac.Name, cfg)
	case TypeSpanners:
		return New(ac.Name, cfg)
	default:
		return nil, errors.Errorf("attribute %q: unknown type %q", ac.Name, ac.Type)
	}
}

func decodeDefault(raw, out interface{}) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	if err := decoder.Decode(raw); err != nil {
		return errors.Wrap(err, "cannot decode default payload")
	}
	return nil
}
