// Package control provides the control laws that turn a task measurement
// into a desired task-space acceleration.
//
// Every law implements [Law] and is plugged into a task's cost kernel:
//
//   - [SetPoint]: critically damped spring, k·e − 2√k·speed
//   - [Tracking]: externally supplied errors with a feed-forward term
//   - [Trajectory]: reference velocity and acceleration tracking
//   - [PID]: proportional-integral-derivative with caller-maintained terms
//   - [Horizon]: reach the target after a fixed number of steps
//   - [None] and [Manual]: zero or commanded acceleration
//
// # Usage
//
//	law, err := control.NewSetPoint(100)
//	if err != nil {
//		return err
//	}
//	t, err := task.New(mbs, 0, m, law, 1.0)
//
// Laws implement [Configurable] for live tuning.
package control
