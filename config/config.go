package config

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/notargets/QuadForest/element"
)

// Options configures forests and the triangulator
type Options struct {
	Forest      ForestOptions      `toml:"forest"`
	Triangulate TriangulateOptions `toml:"triangulate"`
	Log         LogOptions         `toml:"log"`
}

type ForestOptions struct {
	MeshOrder     int    `toml:"mesh_order"`
	InterpType    string `toml:"interp_type"` // "uniform" or "gauss-lobatto"
	BalanceCorner bool   `toml:"balance_corner"`
	Ranks         int    `toml:"ranks"`
	RandomSeed    int64  `toml:"random_seed"`
}

type TriangulateOptions struct {
	FrontalQualityFactor float64 `toml:"frontal_quality_factor"`
	PrintLevel           int     `toml:"print_level"`
	PrintIter            int     `toml:"print_iter"`
	MeshType             string  `toml:"mesh_type"` // "triangle" or "quad"
}

type LogOptions struct {
	Level string `toml:"level"`
}

// Default returns the options used when nothing is configured
func Default() Options {
	return Options{
		Forest: ForestOptions{
			MeshOrder:  2,
			InterpType: element.Uniform.String(),
			Ranks:      1,
			RandomSeed: 1,
		},
		Triangulate: TriangulateOptions{
			FrontalQualityFactor: 1.5,
			PrintIter:            1000,
			MeshType:             "triangle",
		},
		Log: LogOptions{Level: "info"},
	}
}

// Load reads a TOML file over the defaults
func Load(path string) (Options, error) {
	f, err := os.Open(path)
	if err != nil {
		return Options{}, fmt.Errorf("opening config: %w", err)
	}
	defer f.Close()
	opts, err := DecodeReader(f)
	if err != nil {
		return Options{}, fmt.Errorf("%s: %w", path, err)
	}
	return opts, nil
}

// Decode parses TOML text over the defaults
func Decode(text string) (Options, error) {
	return DecodeReader(strings.NewReader(text))
}

func DecodeReader(r io.Reader) (Options, error) {
	opts := Default()
	md, err := toml.DecodeReader(r, &opts)
	if err != nil {
		return Options{}, fmt.Errorf("decoding config: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return Options{}, fmt.Errorf("unknown config keys: %v", undecoded)
	}
	if err := opts.Validate(); err != nil {
		return Options{}, err
	}
	return opts, nil
}

// Validate checks value ranges
func (o Options) Validate() error {
	if o.Forest.MeshOrder < 2 || o.Forest.MeshOrder > element.MaxOrder {
		return fmt.Errorf("forest.mesh_order %d out of range [2,%d]", o.Forest.MeshOrder, element.MaxOrder)
	}
	if _, err := o.Forest.Knots(); err != nil {
		return err
	}
	if o.Forest.Ranks < 1 {
		return fmt.Errorf("forest.ranks must be positive, got %d", o.Forest.Ranks)
	}
	if o.Triangulate.FrontalQualityFactor <= 0 {
		return fmt.Errorf("triangulate.frontal_quality_factor must be positive, got %g",
			o.Triangulate.FrontalQualityFactor)
	}
	if o.Triangulate.PrintIter < 1 {
		return fmt.Errorf("triangulate.print_iter must be positive, got %d", o.Triangulate.PrintIter)
	}
	switch o.Triangulate.MeshType {
	case "triangle", "quad":
	default:
		return fmt.Errorf("triangulate.mesh_type %q is not triangle or quad", o.Triangulate.MeshType)
	}
	return nil
}

// Knots maps interp_type to the element knot placement
func (f ForestOptions) Knots() (element.KnotType, error) {
	switch f.InterpType {
	case element.Uniform.String():
		return element.Uniform, nil
	case element.GaussLobatto.String():
		return element.GaussLobatto, nil
	}
	return 0, fmt.Errorf("forest.interp_type %q is not uniform or gauss-lobatto", f.InterpType)
}
