package task

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/qptasks/internal/qp"
	"github.com/san-kum/qptasks/internal/rbd"
)

// JointStiffness overrides the stiffness of one joint. Damping follows as
// 2√k.
type JointStiffness struct {
	JointID   int
	Stiffness float64
}

// JointGains overrides the stiffness and damping of one joint.
type JointGains struct {
	JointID   int
	Stiffness float64
	Damping   float64
}

// PostureTask pulls every joint of a robot toward a reference
// configuration with a per-joint spring-damper. A free-floating root joint
// is left out.
type PostureTask struct {
	name   string
	robot  int
	mb     *rbd.MultiBody
	weight float64

	posture   []float64
	stiffness []float64
	damping   []float64

	begin     int
	layoutGen uint64
	sized     bool
	updated   bool

	err    []float64
	active []bool
	c0     []float64
	q      *mat.SymDense
	c      *mat.VecDense
}

// NewPostureTask returns a posture task for robot. A nil posture selects
// the neutral configuration of every joint.
func NewPostureTask(mbs []*rbd.MultiBody, robot int, posture []float64, stiffness, weight float64, opts ...Option) (*PostureTask, error) {
	if err := checkRobot(mbs, robot); err != nil {
		return nil, err
	}
	if err := checkWeight(weight); err != nil {
		return nil, err
	}
	o := buildOptions(opts)
	if o.name == "" {
		o.name = "posture"
	}
	mb := mbs[robot]
	t := &PostureTask{
		name:      o.name,
		robot:     robot,
		mb:        mb,
		weight:    weight,
		posture:   make([]float64, mb.NrParams()),
		stiffness: make([]float64, mb.NrJoints()),
		damping:   make([]float64, mb.NrJoints()),
		err:       make([]float64, mb.NrDof()),
		active:    make([]bool, mb.NrDof()),
		c0:        make([]float64, mb.NrDof()),
	}
	for i := 0; i < mb.NrJoints(); i++ {
		p := mb.JointPosInParam(i)
		mb.Joint(i).ZeroParams(t.posture[p : p+mb.Joint(i).Params()])
	}
	if posture != nil {
		if err := t.SetPosture(posture); err != nil {
			return nil, err
		}
	}
	if err := t.SetStiffness(stiffness); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *PostureTask) Name() string    { return t.name }
func (t *PostureTask) Robot() int      { return t.robot }
func (t *PostureTask) Weight() float64 { return t.weight }

func (t *PostureTask) SetWeight(w float64) error {
	if err := checkWeight(w); err != nil {
		return wrap(t.name, "set weight", err)
	}
	t.weight = w
	if t.updated {
		t.rescale()
	}
	return nil
}

// Posture returns a copy of the reference configuration.
func (t *PostureTask) Posture() []float64 {
	return append([]float64(nil), t.posture...)
}

// SetPosture replaces the reference configuration. Quaternion parameters
// are renormalized.
func (t *PostureTask) SetPosture(q []float64) error {
	if len(q) != t.mb.NrParams() {
		return wrap(t.name, "set posture", errors.Wrapf(qp.ErrInvalidArgument,
			"posture has %d parameters, robot %q has %d", len(q), t.mb.Name(), t.mb.NrParams()))
	}
	if !finite(q) {
		return wrap(t.name, "set posture", errors.Wrap(qp.ErrInvalidArgument, "posture is not finite"))
	}
	copy(t.posture, q)
	for i := 0; i < t.mb.NrJoints(); i++ {
		if ty := t.mb.Joint(i).Type; ty == rbd.Spherical || ty == rbd.Free {
			p := t.mb.JointPosInParam(i)
			rbd.SetQuatParam(t.posture[p:], rbd.QuatParam(t.posture[p:]))
		}
	}
	return nil
}

// SetStiffness sets every joint to stiffness k and damping 2√k.
func (t *PostureTask) SetStiffness(k float64) error {
	return t.SetGains(k, 2*math.Sqrt(math.Max(k, 0)))
}

// SetGains sets every joint to stiffness k and damping d.
func (t *PostureTask) SetGains(k, d float64) error {
	if err := checkGains(k, d); err != nil {
		return wrap(t.name, "set gains", err)
	}
	for i := range t.stiffness {
		t.stiffness[i] = k
		t.damping[i] = d
	}
	return nil
}

// SetJointsStiffness overrides the stiffness of the listed joints. Nothing
// changes if any entry is rejected.
func (t *PostureTask) SetJointsStiffness(js []JointStiffness) error {
	gains := make([]JointGains, len(js))
	for i, j := range js {
		gains[i] = JointGains{JointID: j.JointID, Stiffness: j.Stiffness, Damping: 2 * math.Sqrt(math.Max(j.Stiffness, 0))}
	}
	return t.setJointsGains("set joints stiffness", gains)
}

// SetJointsGains overrides the stiffness and damping of the listed joints.
// Nothing changes if any entry is rejected.
func (t *PostureTask) SetJointsGains(js []JointGains) error {
	return t.setJointsGains("set joints gains", js)
}

func (t *PostureTask) setJointsGains(op string, js []JointGains) error {
	idx := make([]int, len(js))
	for n, j := range js {
		i, err := t.mb.JointIndexByID(j.JointID)
		if err != nil {
			return wrap(t.name, op, err)
		}
		if err := checkGains(j.Stiffness, j.Damping); err != nil {
			return wrap(t.name, op, err)
		}
		idx[n] = i
	}
	for n, j := range js {
		t.stiffness[idx[n]] = j.Stiffness
		t.damping[idx[n]] = j.Damping
	}
	return nil
}

// JointGains returns the stiffness and damping of the joint with the given
// id.
func (t *PostureTask) JointGains(id int) (JointGains, error) {
	i, err := t.mb.JointIndexByID(id)
	if err != nil {
		return JointGains{}, err
	}
	return JointGains{JointID: id, Stiffness: t.stiffness[i], Damping: t.damping[i]}, nil
}

func (t *PostureTask) UpdateNrVars(mbs []*rbd.MultiBody, l *qp.Layout) error {
	if l == nil {
		return wrap(t.name, "update nr vars", errors.Wrap(qp.ErrInvalidArgument, "nil layout"))
	}
	if t.sized && t.layoutGen == l.Generation() {
		return nil
	}
	b, err := l.Robot(t.robot)
	if err != nil {
		return wrap(t.name, "update nr vars", err)
	}
	if b.Len != t.mb.NrDof() {
		return wrap(t.name, "update nr vars", errors.Wrapf(qp.ErrInvalidArgument,
			"layout gives robot %d %d columns, robot has %d dof", t.robot, b.Len, t.mb.NrDof()))
	}
	if t.q == nil {
		t.q = mat.NewSymDense(b.Len, nil)
		t.c = mat.NewVecDense(b.Len, nil)
	}
	t.begin = b.Begin
	t.layoutGen = l.Generation()
	t.sized = true
	t.updated = false
	return nil
}

func (t *PostureTask) Update(mbs []*rbd.MultiBody, cfgs []*rbd.Config, l *qp.Layout) error {
	if !t.sized || l == nil || l.Generation() != t.layoutGen {
		return wrap(t.name, "update", qp.ErrStaleLayout)
	}
	if t.robot >= len(cfgs) || cfgs[t.robot] == nil {
		return wrap(t.name, "update", errors.Wrapf(qp.ErrInvalidArgument, "no configuration for robot %d", t.robot))
	}
	cfg := cfgs[t.robot]
	if err := cfg.Check(t.mb); err != nil {
		return wrap(t.name, "update", err)
	}

	for i := range t.err {
		t.err[i] = 0
		t.c0[i] = 0
		t.active[i] = false
	}
	for i := 0; i < t.mb.NrJoints(); i++ {
		j := t.mb.Joint(i)
		if j.Dof() == 0 || (j.Type == rbd.Free && t.mb.Parent(i) < 0) {
			continue
		}
		pd, pp := t.mb.JointPosInDof(i), t.mb.JointPosInParam(i)
		cur, ref := cfg.JointQ(t.mb, i), t.posture[pp:pp+j.Params()]
		e := t.err[pd : pd+j.Dof()]
		switch j.Type {
		case rbd.Revolute, rbd.Prismatic:
			e[0] = ref[0] - cur[0]
		case rbd.Spherical, rbd.Free:
			r := rbd.RotationError(rbd.QuatParam(cur), rbd.QuatParam(ref))
			e[0], e[1], e[2] = r.X, r.Y, r.Z
			if j.Type == rbd.Free {
				d := r3.Vector{X: ref[4] - cur[4], Y: ref[5] - cur[5], Z: ref[6] - cur[6]}
				e[3], e[4], e[5] = d.X, d.Y, d.Z
			}
		}
		alpha := cfg.JointAlpha(t.mb, i)
		for k := range e {
			t.active[pd+k] = true
			t.c0[pd+k] = -(t.stiffness[i]*e[k] - t.damping[i]*alpha[k])
		}
	}
	if !finite(t.c0) {
		return wrap(t.name, "update", errors.Wrap(qp.ErrNumericalDegeneracy, "non-finite posture target"))
	}
	t.updated = true
	t.rescale()
	return nil
}

func (t *PostureTask) rescale() {
	w2 := t.weight * t.weight
	t.q.Zero()
	for i, on := range t.active {
		if on {
			t.q.SetSym(i, i, w2)
		}
		t.c.SetVec(i, w2*t.c0[i])
	}
}

func (t *PostureTask) Begin() int       { return t.begin }
func (t *PostureTask) Q() *mat.SymDense { return t.q }
func (t *PostureTask) C() *mat.VecDense { return t.c }

// Eval returns the per-dof posture error of the last Update.
func (t *PostureTask) Eval() []float64 { return t.err }

func (t *PostureTask) ErrorNorm() float64 {
	if !t.updated {
		return 0
	}
	return mat.Norm(mat.NewVecDense(len(t.err), t.err), 2)
}

func checkGains(k, d float64) error {
	if k < 0 || d < 0 || math.IsNaN(k) || math.IsNaN(d) || math.IsInf(k, 0) || math.IsInf(d, 0) {
		return errors.Wrapf(qp.ErrInvalidArgument, "gains must be finite and non-negative, got k=%g d=%g", k, d)
	}
	return nil
}
