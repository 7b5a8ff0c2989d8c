package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"pftmaps/internal/logging"
	"pftmaps/pkg/config"
	"pftmaps/pkg/pipeline"
)

const description = `Compute include and exclude maps, and the seeding interface mask from partial
volume estimation (PVE) maps output by CIVET. Maps should have values in [0,1],
gm+wm+csf=1 in all voxels of the brain, gm+wm+csf=0 elsewhere.

The sub-cortical map is split between white and gray matter with
--sc_include_val. Background voxels (no tissue at all) get include=1.

References: Girard, G., Whittingstall K., Deriche, R., and Descoteaux, M.
(2014). Towards quantitative connectivity analysis: reducing tractography
biases. Neuroimage.`

func main() {
	logger := logging.Init("pftmaps")

	if err := runCLI(newApp(logger), os.Args); err != nil {
		logger.Fatal().Err(err).Msg("pftmaps failed")
	}
}

func newApp(logger zerolog.Logger) *cli.App {
	return &cli.App{
		Name:        "pftmaps",
		Usage:       "derive PFT include/exclude/interface maps from CIVET PVE maps",
		UsageText:   "pftmaps WM GM CSF SC [options]\n\n   WM   white matter PVE map (nifti), CIVET classify/*pve_exactwm*\n   GM   grey matter PVE map (nifti), CIVET classify/*pve_exactgm*\n   CSF  cerebrospinal fluid PVE map (nifti), CIVET classify/*pve_exactcsf*\n   SC   sub-cortical gray matter PVE map (nifti), CIVET classify/*pve_exactsc*",
		Description: description,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "include", Usage: "output include map (nifti)", Required: true},
			&cli.StringFlag{Name: "exclude", Usage: "output exclude map (nifti)", Required: true},
			&cli.StringFlag{Name: "interface", Usage: "output interface mask (nifti)", Required: true},
			&cli.Float64Flag{
				Name:  "threshold",
				Value: config.DefaultConfig().Masks.Threshold,
				Usage: "minimum gm and wm PVE values in a voxel to be in the interface",
			},
			&cli.Float64Flag{
				Name:  "sc_include_val",
				Value: config.DefaultConfig().Masks.SCIncludeVal,
				Usage: "sub-cortical include value: 0 is like white matter, 1 is like gray matter",
			},
			&cli.BoolFlag{Name: "overwrite", Aliases: []string{"f"}, Usage: "force overwriting of the output files"},
			&cli.StringFlag{Name: "config", Usage: "YAML file with default parameters"},
			&cli.StringFlag{Name: "qc-dir", Usage: "directory for quality-control slices and histograms"},
			&cli.BoolFlag{Name: "qc-all-slices", Usage: "also write every axial slice of each map under --qc-dir"},
			&cli.StringFlag{Name: "save-config", Usage: "write the effective configuration to this YAML file"},
		},
		Action: func(c *cli.Context) error {
			return run(c, logger)
		},
	}
}

// runCLI runs app with options allowed before, between or after the input maps.
func runCLI(app *cli.App, args []string) error {
	return app.Run(flagsFirst(app.Flags, args))
}

// flagsFirst moves every option and its value ahead of the positional
// arguments, keeping their relative order. Everything after "--" stays
// positional.
func flagsFirst(flags []cli.Flag, args []string) []string {
	if len(args) == 0 {
		return args
	}

	takesValue := make(map[string]bool)
	for _, f := range flags {
		_, isBool := f.(*cli.BoolFlag)
		for _, name := range f.Names() {
			takesValue[name] = !isBool
		}
	}

	var opts, positional []string
	rest := args[1:]
	for i := 0; i < len(rest); i++ {
		arg := rest[i]
		if arg == "--" {
			positional = append(positional, rest[i+1:]...)
			break
		}
		if len(arg) < 2 || arg[0] != '-' {
			positional = append(positional, arg)
			continue
		}

		opts = append(opts, arg)
		name := strings.TrimLeft(arg, "-")
		if strings.Contains(name, "=") {
			continue
		}
		if takesValue[name] && i+1 < len(rest) {
			i++
			opts = append(opts, rest[i])
		}
	}

	out := make([]string, 0, len(args)+1)
	out = append(out, args[0])
	out = append(out, opts...)
	if len(positional) > 0 {
		out = append(out, "--")
		out = append(out, positional...)
	}
	return out
}

// loadConfig reads --config when given and applies explicit flags on top.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if path := c.String("config"); path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("config file: %w", err)
		}
		loaded, err := config.LoadConfig(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if c.IsSet("threshold") {
		cfg.Masks.Threshold = c.Float64("threshold")
	}
	if c.IsSet("sc_include_val") {
		cfg.Masks.SCIncludeVal = c.Float64("sc_include_val")
	}
	if c.IsSet("overwrite") {
		cfg.Output.Overwrite = c.Bool("overwrite")
	}
	if c.IsSet("qc-dir") {
		cfg.Output.QCDir = c.String("qc-dir")
	}
	if c.IsSet("qc-all-slices") {
		cfg.Output.QCAllSlices = c.Bool("qc-all-slices")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func run(c *cli.Context, logger zerolog.Logger) error {
	if c.NArg() != 4 {
		return fmt.Errorf("expected 4 input maps (wm gm csf sc), got %d arguments", c.NArg())
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	if path := c.String("save-config"); path != "" {
		if err := config.SaveConfig(cfg, path); err != nil {
			return err
		}
		logger.Info().Str("path", path).Msg("saved configuration")
	}

	args := c.Args()
	params := &pipeline.Params{
		WM:             args.Get(0),
		GM:             args.Get(1),
		CSF:            args.Get(2),
		SC:             args.Get(3),
		Include:        c.String("include"),
		Exclude:        c.String("exclude"),
		Interface:      c.String("interface"),
		Masks:          cfg.MaskParams(),
		Overwrite:      cfg.Output.Overwrite,
		RangeTolerance: cfg.Masks.RangeTolerance,
		QCDir:          cfg.Output.QCDir,
		QCAllSlices:    cfg.Output.QCAllSlices,
	}

	return pipeline.NewRunner(params, logger).Process()
}
