// Package dynamo provides the numeric primitives shared by the reference
// engine: phase-space [State] vectors, the [System] and [Integrator]
// interfaces, and simulation errors.
//
// A State for N atoms holds 3N Cartesian positions followed by 3N
// velocities, so integrators can split it in half without knowing anything
// about atoms.
//
// # Example
//
//	sys := forcefield.NewSystem(field, masses, cell)
//	integ := integrators.NewVelocityVerlet()
//	x = integ.Step(sys, x, t, dt)
//
// # Thread Safety
//
// Integrators that cache forces between steps are NOT thread-safe. Use one
// integrator per goroutine; [ForEach] is the helper the engine uses to fan
// replicas out.
package dynamo
