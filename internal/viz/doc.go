// Package viz renders scenes in the terminal.
//
// [Inspector] is a Bubble Tea model over a built scene: pick a DOF, nudge it
// away from rest and watch the spring force and stiffness respond.
//
// # Key Bindings
//
//	j/k, up/down  - Select DOF
//	tab           - Next state
//	x/y/z         - Nudge axis
//	r             - Toggle translate/rotate
//	h/l, -/+      - Nudge along axis
//	[ ]           - Halve/double step
//	0             - Reset selected DOF
//	R             - Reset all
//	t             - Cycle themes
//	q             - Quit
package viz
