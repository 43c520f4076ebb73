// Package measure provides task measurements: the error, rate, normal
// acceleration and Jacobian of a quantity computed from the robots'
// kinematic state.
//
// A [Measurement] belongs to one robot; its Jacobian spans that robot's
// dof. A [MultiMeasurement] couples several robots and hands out one
// Jacobian block per participating robot.
//
// Error is always desired minus current. Accessors return the values of
// the most recent Update and must not be modified by callers.
//
// # Usage
//
//	m, err := measure.NewPosition(mbs, 0, "link3", target, r3.Vector{})
//	if err != nil {
//		return err
//	}
//	if err := m.Update(mbs, cfgs); err != nil {
//		return err
//	}
//	fmt.Println(mat.Norm(m.Eval(), 2))
package measure
