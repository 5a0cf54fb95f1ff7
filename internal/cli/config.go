package cli

import (
	"fmt"

	"github.com/BurntSushi/toml"
	"github.com/akmonengine/granite"
	"github.com/go-gl/mathgl/mgl64"
)

// fileConfig is the TOML shape of a solver configuration file:
//
//	[solver]
//	dt = 0.016666
//	iterations = 20
//	gravity = [0.0, -9.81, 0.0]
type fileConfig struct {
	Solver struct {
		Dt                 float64    `toml:"dt"`
		Iterations         int        `toml:"iterations"`
		Beta               float64    `toml:"beta"`
		Alpha              float64    `toml:"alpha"`
		Gamma              float64    `toml:"gamma"`
		KStart             float64    `toml:"k_start"`
		Gravity            [3]float64 `toml:"gravity"`
		MaxLinearVelocity  float64    `toml:"max_linear_velocity"`
		MaxAngularVelocity float64    `toml:"max_angular_velocity"`
		ContactSlop        float64    `toml:"contact_slop"`
		Workers            int        `toml:"workers"`
	} `toml:"solver"`
}

// loadConfig returns the solver defaults overridden by the keys present in the
// TOML file at path. An empty path returns the defaults untouched.
func loadConfig(path string) (granite.Config, error) {
	cfg := granite.DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	// Seed the file shape with the defaults so absent keys keep their values.
	var file fileConfig
	file.Solver.Dt = cfg.Dt
	file.Solver.Iterations = cfg.Iterations
	file.Solver.Beta = cfg.Beta
	file.Solver.Alpha = cfg.Alpha
	file.Solver.Gamma = cfg.Gamma
	file.Solver.KStart = cfg.KStart
	file.Solver.Gravity = [3]float64(cfg.Gravity)
	file.Solver.MaxLinearVelocity = cfg.MaxLinearVelocity
	file.Solver.MaxAngularVelocity = cfg.MaxAngularVelocity
	file.Solver.ContactSlop = cfg.ContactSlop
	file.Solver.Workers = cfg.Workers

	if _, err := toml.DecodeFile(path, &file); err != nil {
		return granite.Config{}, fmt.Errorf("load config %s: %w", path, err)
	}

	cfg.Dt = file.Solver.Dt
	cfg.Iterations = file.Solver.Iterations
	cfg.Beta = file.Solver.Beta
	cfg.Alpha = file.Solver.Alpha
	cfg.Gamma = file.Solver.Gamma
	cfg.KStart = file.Solver.KStart
	cfg.Gravity = mgl64.Vec3(file.Solver.Gravity)
	cfg.MaxLinearVelocity = file.Solver.MaxLinearVelocity
	cfg.MaxAngularVelocity = file.Solver.MaxAngularVelocity
	cfg.ContactSlop = file.Solver.ContactSlop
	cfg.Workers = file.Solver.Workers

	return cfg, nil
}
