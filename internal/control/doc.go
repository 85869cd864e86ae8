// Package control provides the schedule-based control policies the
// controller federate publishes each time step.
//
// A [Policy] maps simulated time in seconds to one [Setpoints] vector whose
// entries follow the actuator table order:
//
//   - [LiquidLoad]: liquid cooling load in W (negative is heat removal)
//   - [SupplyApproach]: cooling supply approach temperature in C
//   - [CPULoad]: IT (CPU) load schedule fraction
//   - [FlowFraction]: liquid load flow-rate fraction
//
// Policies:
//
//   - [LiquidCooling]: 24/7 day-part schedule for the liquid cooling load
//   - [SupplyApproachRamp]: approach temperature rising linearly with time
//   - [ITLoadRamp]: IT load fraction falling linearly over the run period
//   - [Fixed]: constant setpoints
//
// # Usage
//
//	reg := control.NewRegistry()
//	p, _ := reg.Get(control.OptionLiquidCooling, control.Params{TotalSeconds: total})
//	sp := p.Compute(granted)
package control
