// Package armctl drives a hobby servo arm from a terminal.
//
// It turns jog, preset and emergency-stop requests into a steady stream of
// bounded pulse-width commands for a PWM driver, easing every joint so the
// arm never jerks, compensating the gravity-loaded elbow, and backing off
// when commands arrive fast enough to risk a power brownout.
//
// # Installation
//
//	go install github.com/gwillem/armctl/cmd/armctl@latest
//
// # Usage
//
// First, write a configuration for your driver and wiring:
//
//	armctl setup
//
// Then drive the arm:
//
//	armctl run
//
// # Packages
//
// The module is organized into the following packages:
//
//   - cmd/armctl: CLI with setup, ports and run commands
//   - pkg/robot: Joint configuration, registry and config file
//   - pkg/motion: Joint state and trajectory planning
//   - pkg/load: Command-cadence power stability heuristic
//   - pkg/pwm: Pulse-width drivers (pigpiod, Maestro, Feetech, rpio, simulator)
//   - pkg/control: Motion scheduler and emergency stop
package armctl
