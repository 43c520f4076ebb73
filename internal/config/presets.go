package config

import (
	"sort"

	"github.com/samber/lo"
)

func arm(name string, base Vec3, yaw float64, q ...float64) RobotConfig {
	return RobotConfig{
		Name:       name,
		Axes:       []Vec3{{0, 0, 1}, {0, 1, 0}, {0, 1, 0}},
		LinkLength: DefaultLinkLength,
		LinkMass:   DefaultLinkMass,
		Base:       base,
		BaseYaw:    yaw,
		Q:          q,
	}
}

func run(name string, duration float64, robots []RobotConfig, tasks ...TaskConfig) *Config {
	return &Config{
		Name:           name,
		Integrator:     DefaultIntegrator,
		Dt:             DefaultDt,
		Duration:       duration,
		Regularization: DefaultRegularization,
		Robots:         robots,
		Tasks:          tasks,
	}
}

var tip = Vec3{0, 0, DefaultLinkLength}

// pyramid returns the four edges of a friction cone of coefficient mu
// around z.
func pyramid(mu float64) []Vec3 {
	return []Vec3{{mu, 0, 1}, {-mu, 0, 1}, {0, mu, 1}, {0, -mu, 1}}
}

var presets = map[string]func() *Config{
	"reach": DefaultConfig,
	"posture": func() *Config {
		return run("posture", 4, []RobotConfig{arm("arm", Vec3{}, 0, 0.8, -0.6, 1.1)},
			TaskConfig{
				Name: "posture", Type: TypePosture, Stiffness: 16, Weight: 1,
				JointGains: []JointGainConfig{{Joint: 3, Stiffness: 4}},
			})
	},
	"horizon": func() *Config {
		return run("horizon", 1.5, []RobotConfig{arm("arm", Vec3{}, 0, 0, 0.3, 0.3)},
			TaskConfig{
				Name: "reach", Type: TypePosition, Law: LawTargetObjective, Body: "link3", Point: tip,
				Target: Vec3{0.3, 0.2, 1.2}, Horizon: 1, Weight: 1,
			},
			TaskConfig{Name: "posture", Type: TypePosture, Stiffness: 1, Weight: 0.01})
	},
	"multi_com": func() *Config {
		return run("multi_com", 3,
			[]RobotConfig{arm("left", Vec3{0, 0.4, 0}, 0, 0, 0.2, 0.2), arm("right", Vec3{0, -0.4, 0}, 0, 0, -0.2, 0.4)},
			TaskConfig{
				Name: "com", Type: TypeMultiCoM, Robots: []int{0, 1}, Target: Vec3{0.15, 0, 0.8},
				Stiffness: DefaultStiffness, Weight: 1,
			},
			TaskConfig{Name: "left_posture", Type: TypePosture, Robot: 0, Stiffness: 1, Weight: 0.05},
			TaskConfig{Name: "right_posture", Type: TypePosture, Robot: 1, Stiffness: 1, Weight: 0.05})
	},
	"handshake": func() *Config {
		cfg := run("handshake", 4,
			[]RobotConfig{arm("left", Vec3{0, 0, 0}, 0, 0, 0.5, 0.6), arm("right", Vec3{1.2, 0, 0}, 3.141592653589793, 0, 0.4, 0.7)},
			TaskConfig{
				Name: "grasp", Type: TypeRelativeTransform, Robots: []int{0, 1}, Body: "link3", Body2: "link3",
				Point: tip, Point2: tip, Target: Vec3{0, 0, 0}, TargetRot: Vec3{0, 0, 0},
				Stiffness: DefaultStiffness, Weight: 1, DimWeight: []float64{0.1, 0.1, 0.1, 1, 1, 1},
			},
			TaskConfig{Name: "left_posture", Type: TypePosture, Robot: 0, Stiffness: 1, Weight: 0.05},
			TaskConfig{Name: "right_posture", Type: TypePosture, Robot: 1, Stiffness: 1, Weight: 0.05})
		cfg.Contacts = []ContactConfig{{
			Robot1: 0, Robot2: 1, Body1: "link3", Body2: "link3",
			Points:     []Vec3{{0, 0, 0}},
			Generators: [][]Vec3{pyramid(0.5)},
		}}
		cfg.Tasks = append(cfg.Tasks,
			TaskConfig{Name: "squeeze", Type: TypeContact, Contact: 0, Target: Vec3{0, 0, 0.2}, Stiffness: 25, Weight: 0.1},
			TaskConfig{Name: "twist", Type: TypeGripperTorque, Contact: 0, Origin: Vec3{0, 0, -0.05}, Axis: Vec3{1, 0, 0}, Weight: 0.1})
		return cfg
	},
	"stop": func() *Config {
		r := arm("arm", Vec3{}, 0, 0, 0.4, 0.4)
		r.Alpha = []float64{1.5, -0.8, 0.6}
		return run("stop", 2, []RobotConfig{r},
			TaskConfig{
				Name: "stop", Type: TypeLinVelocity, Body: "link3", Point: tip,
				Stiffness: 50, Weight: 1,
			},
			TaskConfig{Name: "posture", Type: TypePosture, Stiffness: 0, Weight: 0.1})
	},
}

// GetPreset returns a fresh copy of a named scenario, or nil.
func GetPreset(name string) *Config {
	build, ok := presets[name]
	if !ok {
		return nil
	}
	return build()
}

// ListPresets returns the preset names in order.
func ListPresets() []string {
	names := lo.Keys(presets)
	sort.Strings(names)
	return names
}
