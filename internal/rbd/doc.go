// Package rbd is a small rigid-body kinematics library: tree-structured
// multibodies, forward kinematics, point and center-of-mass Jacobians,
// momentum, and the normal acceleration J̇q̇ of each of those quantities.
//
// Spatial quantities are expressed in the world frame. Six-row Jacobians
// stack the angular part above the linear part.
//
// Joint velocity parametrization:
//
//   - Revolute, Prismatic: one scalar.
//   - Spherical: angular velocity in the joint frame (3 values, 4 params as
//     a unit quaternion w, x, y, z).
//   - Free: angular then linear velocity in the joint frame (6 values,
//     7 params: quaternion followed by translation).
//
// Bodies are point masses located at their center of mass.
package rbd
