// Package qp holds the pieces shared by every task and by the solver side of
// the control cycle: the decision-vector [Layout], the [Objective]
// accumulator and the error taxonomy.
//
// The decision vector stacks, in order, the joint accelerations of every
// robot followed by the contact force variables of every contact:
//
//	x = [alphaD_0 | alphaD_1 | ... | lambda_c0 | lambda_c1 | ...]
//
// A [Layout] is an immutable value describing that stacking. Every new
// layout carries a fresh generation number; tasks remember the generation
// they were sized against and refuse to update against another one.
//
// # Example
//
//	l, err := qp.NewLayout([]int{mb.NrDof()}, nil)
//	if err != nil {
//		return err
//	}
//	obj := qp.NewObjective(l.NrVars())
//	for _, t := range tasks {
//		if err := obj.Add(t); err != nil {
//			return err
//		}
//	}
//	x, err := obj.Solve(1e-8)
package qp
