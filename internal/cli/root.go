// Package cli implements the granite command-line interface: small headless
// demo scenes that exercise the solver end to end and log what it does.
//
// The main commands are:
//   - drop: spheres falling onto the ground plane
//   - stack: a tower of boxes holding its shape
//
// All commands support --verbose (-v) for debug-level logging and --config
// for a TOML solver configuration file.
package cli

import (
	"context"
	"fmt"
	"os"

	charmlog "github.com/charmbracelet/log"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/spf13/cobra"
)

var version = "dev"

// SetVersion sets the version string displayed by --version, typically
// injected via ldflags at build time.
func SetVersion(v string) {
	version = v
}

// Execute runs the granite CLI.
func Execute() error {
	var (
		verbose    bool
		configPath string
	)

	root := &cobra.Command{
		Use:          "granite",
		Short:        "Granite simulates rigid bodies with an AVBD constraint solver",
		Long:         `Granite is a rigid-body constraint solver. The CLI runs headless demo scenes (falling spheres, box towers) and reports solver diagnostics per step.`,
		Version:      version,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := charmlog.InfoLevel
			if verbose {
				level = charmlog.DebugLevel
			}
			ctx := withLogger(cmd.Context(), newLogger(os.Stderr, level))
			cmd.SetContext(ctx)
		},
	}

	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a TOML solver configuration file")

	root.AddCommand(newDropCmd(&configPath))
	root.AddCommand(newStackCmd(&configPath))

	return root.ExecuteContext(context.Background())
}

func newDropCmd(configPath *string) *cobra.Command {
	var (
		bodies  int
		steps   int
		workers int
	)

	cmd := &cobra.Command{
		Use:   "drop",
		Short: "Drop spheres onto the ground plane",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := loggerFromContext(cmd.Context())

			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if workers > 0 {
				cfg.Workers = workers
			}

			s := newScene(cfg)
			for i := 0; i < bodies; i++ {
				// Staggered heights and a slight lateral offset so the spheres
				// collide with each other on the way down.
				x := 0.2 * float64(i%5)
				y := 2.0 + 1.5*float64(i)
				s.addSphere(mgl64.Vec3{x, y, 0}, 0.5, 1.0)
			}

			logger.Info("drop scene", "spheres", bodies, "steps", steps, "workers", cfg.Workers)
			return s.run(logger, steps)
		},
	}

	cmd.Flags().IntVar(&bodies, "bodies", 10, "number of spheres to drop")
	cmd.Flags().IntVar(&steps, "steps", 600, "number of fixed steps to simulate")
	cmd.Flags().IntVar(&workers, "workers", 0, "solver worker count (0 uses the config value)")

	return cmd
}

func newStackCmd(configPath *string) *cobra.Command {
	var (
		height  int
		steps   int
		workers int
	)

	cmd := &cobra.Command{
		Use:   "stack",
		Short: "Build a tower of boxes and let it settle",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := loggerFromContext(cmd.Context())

			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if workers > 0 {
				cfg.Workers = workers
			}
			if height < 1 {
				return fmt.Errorf("stack height must be at least 1, got %d", height)
			}

			half := 0.5
			s := newScene(cfg)
			for i := 0; i < height; i++ {
				y := half + float64(i)*2*half + float64(i+1)*cfg.ContactSlop
				s.addBox(mgl64.Vec3{0, y, 0}, half, 1.0)
			}

			logger.Info("stack scene", "boxes", height, "steps", steps, "workers", cfg.Workers)
			return s.run(logger, steps)
		},
	}

	cmd.Flags().IntVar(&height, "height", 5, "number of boxes in the tower")
	cmd.Flags().IntVar(&steps, "steps", 600, "number of fixed steps to simulate")
	cmd.Flags().IntVar(&workers, "workers", 0, "solver worker count (0 uses the config value)")

	return cmd
}
