// Package task turns task-space objectives into quadratic cost blocks over
// the QP decision vector.
//
// Each control cycle the caller runs, for every task:
//
//	UpdateNrVars(mbs, layout)  // when the layout changed, cheap otherwise
//	Update(mbs, cfgs, layout)  // recompute Q and C from the current state
//
// and then sums Q and C into the solver's objective at Begin. Tasks never
// solve anything and never mutate the robots or their configurations.
//
// Most tasks share one [Kernel]: a measurement, a control law producing a
// desired task acceleration a, a per-row weight W and a task weight τ. The
// kernel contributes
//
//	Q = τ²·JᵀWJ
//	C = τ²·JᵀW(J̇α − a)
//
// which is ½‖W^½(J·alphaD + J̇α − a)‖² scaled by τ², up to a constant.
//
// [PostureTask], [ContactTask] and [GripperTorqueTask] build their blocks
// directly.
package task
