// Package main is the metavoxeltool command: it loads an attribute registry
// from configuration, replays an edit log against an empty metavoxel data
// set, and reports the result. The JSON edit log stands in for the network
// transport that delivers edit commands in a live deployment.
package main

import (
	"encoding/json"
	"log"
	"os"

	"github.com/edaniels/golog"
	"github.com/go-viper/mapstructure/v2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"go.openvoxel.dev/engine/attribute"
	"go.openvoxel.dev/engine/metavoxel"
	"go.openvoxel.dev/engine/spatial"
)

func main() {
	var logger golog.Logger

	app := &cli.App{
		Name:  "metavoxeltool",
		Usage: "replay metavoxel edit logs",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "config",
				Aliases:  []string{"c"},
				Usage:    "load attribute registry from `FILE`",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "edits",
				Aliases:  []string{"e"},
				Usage:    "replay edit log from `FILE`",
				Required: true,
			},
			&cli.Float64Flag{
				Name:  "size",
				Usage: "initial bounds edge length (power of two)",
				Value: 1,
			},
			&cli.BoolFlag{
				Name:    "debug",
				Aliases: []string{"vvv"},
				Usage:   "enable debug logging",
			},
		},
		Before: func(c *cli.Context) error {
			if c.Bool("debug") {
				logger = golog.NewDebugLogger("metavoxeltool")
			} else {
				logger = golog.NewLogger("metavoxeltool")
			}
			return nil
		},
		Action: func(c *cli.Context) error {
			registry, err := loadRegistry(c.String("config"))
			if err != nil {
				return err
			}
			data, err := metavoxel.NewMetavoxelData(c.Float64("size"), logger)
			if err != nil {
				return err
			}
			edits, objects, err := loadEdits(c.String("edits"), registry)
			if err != nil {
				return err
			}
			if err := metavoxel.ApplyEdits(data, objects, edits...); err != nil {
				return err
			}
			logger.Infow("edit log applied", "edits", len(edits), "result", data.String(), "bounds", data.Bounds().String())
			return nil
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func loadRegistry(path string) (*attribute.Registry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "cannot read registry config")
	}
	var cfg attribute.RegistryConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, errors.Wrap(err, "cannot parse registry config")
	}
	return attribute.NewRegistryFromConfig(&cfg)
}

// editLog is the on-disk edit stream. Every entry names its variant and
// carries the variant's parameters inline.
type editLog struct {
	Edits []editEntry `json:"edits"`
}

type editEntry struct {
	Type      string                 `json:"type"`
	Attribute string                 `json:"attribute"`
	Params    map[string]interface{} `json:"params"`
}

type vectorParam struct {
	X float64 `mapstructure:"x"`
	Y float64 `mapstructure:"y"`
	Z float64 `mapstructure:"z"`
}

func (v vectorParam) vector() r3.Vector {
	return r3.Vector{X: v.X, Y: v.Y, Z: v.Z}
}

type boxSetParams struct {
	Min         vectorParam `mapstructure:"min"`
	Max         vectorParam `mapstructure:"max"`
	Granularity float64     `mapstructure:"granularity"`
	Value       interface{} `mapstructure:"value"`
}

type globalSetParams struct {
	Value interface{} `mapstructure:"value"`
}

type sphereParams struct {
	ID          int             `mapstructure:"id"`
	Center      vectorParam     `mapstructure:"center"`
	Radius      float64         `mapstructure:"radius"`
	Granularity float64         `mapstructure:"granularity"`
	Color       attribute.Color `mapstructure:"color"`
	ColorAttr   string          `mapstructure:"color_attribute"`
}

type removeParams struct {
	ID int `mapstructure:"id"`
}

type paintHeightParams struct {
	Position vectorParam `mapstructure:"position"`
	Radius   float64     `mapstructure:"radius"`
	Height   float64     `mapstructure:"height"`
}

func loadEdits(path string, registry *attribute.Registry) ([]metavoxel.Edit, *metavoxel.SharedObjectMap, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, errors.Wrap(err, "cannot read edit log")
	}
	var logFile editLog
	if err := json.Unmarshal(raw, &logFile); err != nil {
		return nil, nil, errors.Wrap(err, "cannot parse edit log")
	}

	objects := metavoxel.NewSharedObjectMap()
	edits := make([]metavoxel.Edit, 0, len(logFile.Edits))
	for i, entry := range logFile.Edits {
		edit, err := decodeEdit(entry, registry, objects)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "edit %d (%s)", i, entry.Type)
		}
		edits = append(edits, edit)
	}
	return edits, objects, nil
}

func decodeEdit(entry editEntry, registry *attribute.Registry, objects *metavoxel.SharedObjectMap) (metavoxel.Edit, error) {
	attr, ok := registry.Get(entry.Attribute)
	if !ok {
		return nil, errors.Errorf("unknown attribute %q", entry.Attribute)
	}
	switch entry.Type {
	case "box_set":
		var p boxSetParams
		if err := decodeParams(entry.Params, &p); err != nil {
			return nil, err
		}
		region, err := spatial.NewBox(p.Min.vector(), p.Max.vector())
		if err != nil {
			return nil, err
		}
		return metavoxel.BoxSetEdit{
			Region:      region,
			Granularity: p.Granularity,
			Value:       attribute.NewOwnedValue(attr, p.Value),
		}, nil
	case "global_set":
		var p globalSetParams
		if err := decodeParams(entry.Params, &p); err != nil {
			return nil, err
		}
		return metavoxel.GlobalSetEdit{Value: attribute.NewOwnedValue(attr, p.Value)}, nil
	case "insert_sphere":
		var p sphereParams
		if err := decodeParams(entry.Params, &p); err != nil {
			return nil, err
		}
		colorAttr, ok := registry.Get(p.ColorAttr)
		if !ok {
			return nil, errors.Errorf("unknown color attribute %q", p.ColorAttr)
		}
		sphere := metavoxel.NewSphere(p.ID, p.Center.vector(), p.Radius, p.Granularity,
			attribute.NewOwnedValue(colorAttr, p.Color))
		objects.Add(p.ID, sphere)
		return metavoxel.InsertSpannerEdit{Attribute: attr, Spanner: sphere}, nil
	case "remove_spanner":
		var p removeParams
		if err := decodeParams(entry.Params, &p); err != nil {
			return nil, err
		}
		return metavoxel.RemoveSpannerEdit{Attribute: attr, ID: p.ID}, nil
	case "clear_spanners":
		return metavoxel.ClearSpannersEdit{Attribute: attr}, nil
	case "paint_height":
		var p paintHeightParams
		if err := decodeParams(entry.Params, &p); err != nil {
			return nil, err
		}
		return metavoxel.PaintHeightfieldHeightEdit{
			Attribute: attr,
			Position:  p.Position.vector(),
			Radius:    p.Radius,
			Height:    p.Height,
		}, nil
	default:
		return nil, errors.Errorf("unknown edit type %q", entry.Type)
	}
}

func decodeParams(raw map[string]interface{}, out interface{}) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(raw)
}
