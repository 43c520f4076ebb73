package config

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"
)

const (
	DefaultDt             = 0.005
	DefaultDuration       = 3.0
	DefaultRegularization = 1e-6
	DefaultIntegrator     = "semi_implicit"
	DefaultLaw            = LawSetPoint
	DefaultStiffness      = 25.0
	DefaultWeight         = 1.0
	DefaultLinkLength     = 0.5
	DefaultLinkMass       = 1.0
)

// Task types.
const (
	TypePosition          = "position"
	TypeOrientation       = "orientation"
	TypeTransform         = "transform"
	TypeLinVelocity       = "lin_velocity"
	TypeCoM               = "com"
	TypeMomentum          = "momentum"
	TypeMultiCoM          = "multi_com"
	TypeRelativeTransform = "relative_transform"
	TypePosture           = "posture"
	TypeContact           = "contact"
	TypeGripperTorque     = "gripper_torque"
)

// Control laws.
const (
	LawSetPoint        = "set_point"
	LawTracking        = "tracking"
	LawTrajectory      = "trajectory"
	LawPID             = "pid"
	LawTargetObjective = "target_objective"
	LawNone            = "none"
	LawManual          = "manual"
)

var (
	TaskTypes = []string{
		TypePosition, TypeOrientation, TypeTransform, TypeLinVelocity, TypeCoM, TypeMomentum,
		TypeMultiCoM, TypeRelativeTransform, TypePosture, TypeContact, TypeGripperTorque,
	}
	Laws        = []string{LawSetPoint, LawTracking, LawTrajectory, LawPID, LawTargetObjective, LawNone, LawManual}
	Integrators = []string{"euler", "semi_implicit", "taylor"}
)

// Vec3 is an (x, y, z) triple.
type Vec3 [3]float64

type Config struct {
	Name              string          `yaml:"name"`
	Integrator        string          `yaml:"integrator"`
	Dt                float64         `yaml:"dt"`
	Duration          float64         `yaml:"duration"`
	Regularization    float64         `yaml:"regularization"`
	Parallel          bool            `yaml:"parallel"`
	Workers           int             `yaml:"workers,omitempty"`
	LogLevel          string          `yaml:"log_level,omitempty"`
	SettlingThreshold float64         `yaml:"settling_threshold,omitempty"`
	Robots            []RobotConfig   `yaml:"robots"`
	Contacts          []ContactConfig `yaml:"contacts,omitempty"`
	Tasks             []TaskConfig    `yaml:"tasks"`
}

// RobotConfig describes a serial arm and its initial state.
type RobotConfig struct {
	Name       string    `yaml:"name"`
	Axes       []Vec3    `yaml:"axes"`
	LinkLength float64   `yaml:"link_length"`
	LinkMass   float64   `yaml:"link_mass"`
	FreeBase   bool      `yaml:"free_base,omitempty"`
	Base       Vec3      `yaml:"base"`
	BaseYaw    float64   `yaml:"base_yaw,omitempty"`
	Q          []float64 `yaml:"q,omitempty"`
	Alpha      []float64 `yaml:"alpha,omitempty"`
}

type ContactConfig struct {
	Robot1     int      `yaml:"robot1"`
	Robot2     int      `yaml:"robot2"`
	Body1      string   `yaml:"body1"`
	Body2      string   `yaml:"body2"`
	Points     []Vec3   `yaml:"points"`
	Generators [][]Vec3 `yaml:"generators"`
}

type JointGainConfig struct {
	Joint     int     `yaml:"joint"`
	Stiffness float64 `yaml:"stiffness"`
	Damping   float64 `yaml:"damping,omitempty"`
}

// TaskConfig describes one task. Which fields matter depends on Type and
// Law.
type TaskConfig struct {
	Name   string `yaml:"name"`
	Type   string `yaml:"type"`
	Law    string `yaml:"law,omitempty"`
	Robot  int    `yaml:"robot"`
	Robots []int  `yaml:"robots,omitempty"`
	Body   string `yaml:"body,omitempty"`
	Body2  string `yaml:"body2,omitempty"`
	Point  Vec3   `yaml:"point,omitempty"`
	Point2 Vec3   `yaml:"point2,omitempty"`
	Target Vec3   `yaml:"target,omitempty"`
	// TargetRot is a rotation vector (axis times angle).
	TargetRot Vec3 `yaml:"target_rot,omitempty"`

	Stiffness float64   `yaml:"stiffness,omitempty"`
	Kp        float64   `yaml:"kp,omitempty"`
	Kv        float64   `yaml:"kv,omitempty"`
	P         float64   `yaml:"p,omitempty"`
	I         float64   `yaml:"i,omitempty"`
	D         float64   `yaml:"d,omitempty"`
	Weight    float64   `yaml:"weight"`
	DimWeight []float64 `yaml:"dim_weight,omitempty"`

	ActiveJoints   []int `yaml:"active_joints,omitempty"`
	InactiveJoints []int `yaml:"inactive_joints,omitempty"`

	Horizon float64   `yaml:"horizon,omitempty"`
	ObjDot  []float64 `yaml:"obj_dot,omitempty"`

	Posture    []float64         `yaml:"posture,omitempty"`
	JointGains []JointGainConfig `yaml:"joint_gains,omitempty"`

	Contact int  `yaml:"contact,omitempty"`
	Origin  Vec3 `yaml:"origin,omitempty"`
	Axis    Vec3 `yaml:"axis,omitempty"`
}

// LawOrDefault returns the configured law, set_point when empty.
func (t TaskConfig) LawOrDefault() string {
	if t.Law == "" {
		return DefaultLaw
	}
	return t.Law
}

func DefaultConfig() *Config {
	return &Config{
		Name:           "default",
		Integrator:     DefaultIntegrator,
		Dt:             DefaultDt,
		Duration:       DefaultDuration,
		Regularization: DefaultRegularization,
		Robots: []RobotConfig{{
			Name:       "arm",
			Axes:       []Vec3{{0, 0, 1}, {0, 1, 0}, {0, 1, 0}},
			LinkLength: DefaultLinkLength,
			LinkMass:   DefaultLinkMass,
			Q:          []float64{0, 0.3, 0.3},
		}},
		Tasks: []TaskConfig{{
			Name:      "reach",
			Type:      TypePosition,
			Body:      "link3",
			Point:     Vec3{0, 0, DefaultLinkLength},
			Target:    Vec3{0.3, 0.2, 1.2},
			Stiffness: DefaultStiffness,
			Weight:    DefaultWeight,
		}},
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults and validates the result. Robots
// and tasks given in the document replace the default ones.
func Parse(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	cfg.Robots, cfg.Tasks = nil, nil
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrap(err, "parse config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Validate reports every problem in the configuration at once.
func (c *Config) Validate() error {
	var err error
	if c.Dt <= 0 {
		err = multierr.Append(err, fmt.Errorf("dt must be positive, got %g", c.Dt))
	}
	if c.Duration <= 0 {
		err = multierr.Append(err, fmt.Errorf("duration must be positive, got %g", c.Duration))
	}
	if c.Regularization < 0 {
		err = multierr.Append(err, fmt.Errorf("regularization must be non-negative, got %g", c.Regularization))
	}
	if !lo.Contains(Integrators, c.Integrator) {
		err = multierr.Append(err, fmt.Errorf("unknown integrator %q", c.Integrator))
	}
	if len(c.Robots) == 0 {
		err = multierr.Append(err, errors.New("no robots"))
	}
	for i, r := range c.Robots {
		err = multierr.Append(err, r.validate(i))
	}
	for i, ct := range c.Contacts {
		err = multierr.Append(err, c.validateContact(i, ct))
	}

	seen := map[string]bool{}
	for i, t := range c.Tasks {
		if t.Name == "" {
			err = multierr.Append(err, fmt.Errorf("task %d: missing name", i))
		} else if seen[t.Name] {
			err = multierr.Append(err, fmt.Errorf("task %d: duplicate name %q", i, t.Name))
		}
		seen[t.Name] = true
		err = multierr.Append(err, c.validateTask(i, t))
	}
	return err
}

func (r RobotConfig) validate(i int) error {
	var err error
	if r.Name == "" {
		err = multierr.Append(err, fmt.Errorf("robot %d: missing name", i))
	}
	if r.LinkLength <= 0 {
		err = multierr.Append(err, fmt.Errorf("robot %d: link length must be positive", i))
	}
	if r.LinkMass < 0 {
		err = multierr.Append(err, fmt.Errorf("robot %d: link mass must be non-negative", i))
	}
	if len(r.Axes) == 0 && !r.FreeBase {
		err = multierr.Append(err, fmt.Errorf("robot %d: no joints", i))
	}
	for k, a := range r.Axes {
		if a == (Vec3{}) {
			err = multierr.Append(err, fmt.Errorf("robot %d: axis %d is zero", i, k))
		}
	}
	return err
}

func (c *Config) robotIndex(i int) bool { return i >= 0 && i < len(c.Robots) }

func (c *Config) validateContact(i int, ct ContactConfig) error {
	var err error
	if !c.robotIndex(ct.Robot1) || !c.robotIndex(ct.Robot2) {
		err = multierr.Append(err, fmt.Errorf("contact %d: robot index out of range", i))
	}
	if len(ct.Points) == 0 || len(ct.Points) != len(ct.Generators) {
		err = multierr.Append(err, fmt.Errorf("contact %d: %d points for %d generator sets", i, len(ct.Points), len(ct.Generators)))
	}
	return err
}

func (c *Config) validateTask(i int, t TaskConfig) error {
	var err error
	if !lo.Contains(TaskTypes, t.Type) {
		err = multierr.Append(err, fmt.Errorf("task %d: unknown type %q", i, t.Type))
	}
	if !lo.Contains(Laws, t.LawOrDefault()) {
		err = multierr.Append(err, fmt.Errorf("task %d: unknown law %q", i, t.Law))
	}
	if t.Weight < 0 {
		err = multierr.Append(err, fmt.Errorf("task %d: weight must be non-negative", i))
	}
	for _, w := range t.DimWeight {
		if w < 0 {
			err = multierr.Append(err, fmt.Errorf("task %d: dimension weights must be non-negative", i))
			break
		}
	}

	switch t.Type {
	case TypeMultiCoM:
		if len(t.Robots) < 1 {
			err = multierr.Append(err, fmt.Errorf("task %d: multi_com needs robots", i))
		}
		for _, r := range t.Robots {
			if !c.robotIndex(r) {
				err = multierr.Append(err, fmt.Errorf("task %d: robot %d out of range", i, r))
			}
		}
	case TypeRelativeTransform:
		if len(t.Robots) != 2 || !c.robotIndex(t.Robots[0]) || !c.robotIndex(t.Robots[1]) {
			err = multierr.Append(err, fmt.Errorf("task %d: relative_transform needs two valid robots", i))
		}
	case TypeContact, TypeGripperTorque:
		if t.Contact < 0 || t.Contact >= len(c.Contacts) {
			err = multierr.Append(err, fmt.Errorf("task %d: contact %d out of range", i, t.Contact))
		}
	default:
		if !c.robotIndex(t.Robot) {
			err = multierr.Append(err, fmt.Errorf("task %d: robot %d out of range", i, t.Robot))
		}
	}

	if t.LawOrDefault() == LawTargetObjective && t.Horizon <= 0 {
		err = multierr.Append(err, fmt.Errorf("task %d: target_objective needs a positive horizon", i))
	}
	if len(t.ActiveJoints) > 0 && len(t.InactiveJoints) > 0 {
		err = multierr.Append(err, fmt.Errorf("task %d: active and inactive joints are exclusive", i))
	}
	return err
}
