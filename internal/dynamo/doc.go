// Package dynamo provides the core primitives shared by mechanical states,
// force fields and the matrix assembler.
//
// The package defines the coordinate types and the interfaces a force field
// consumes from its host:
//
//   - [Coord], [Deriv]: per-DOF position and force/velocity values
//   - [Template]: the DOF kind (point or rigid frame)
//   - [State]: read access to a mechanical state's buffers
//   - [MechanicalParams]: integration factors and current time
//   - [MatrixAccessor]: per-state view into the global system matrix
//   - [ForceField]: lifecycle and per-step evaluation hooks
//
// # Example
//
//	ms := mstate.New("body", dynamo.Rigid3d, 4)
//	ff := forcefield.New(ms, reg)
//	ff.BwdInit()
//	ff.AddForce(mp, f, ms.Positions(), ms.Velocities())
//
// # Thread Safety
//
// Nothing in this package synchronizes. The host evaluates every force field
// from a single goroutine per step.
package dynamo
