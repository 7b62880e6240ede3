// Package ui renders the styled output of the pigeon-cfg device commands.
//
// The components are printed once and never read keys, unlike the
// interactive wizard in internal/wizard/tui:
//
//   - Header: command banner with the target device and parameters
//   - Progress: bar and step list
//   - Result: success, failure or warning box
//   - Confirm: typed confirmation for destructive commands
//
// Runner ties them together for multi-step commands:
//
//	runner := ui.NewRunner(ui.RunnerConfig{
//	    Title:   "Apply settings",
//	    Command: "pigeon-cfg settings apply",
//	    Params:  []ui.Field{{Key: "Device", Value: addr}},
//	    Steps:   []string{"Apply settings", "Verify"},
//	})
//	err := runner.Run(ctx, func(ctx context.Context, onStep ui.StepCallback) ([]ui.Field, error) {
//	    onStep(1, ui.StepRunning, "")
//	    // ...
//	    onStep(1, ui.StepComplete, "HTTP 202")
//	    return nil, nil
//	})
//
// Zap logging is silent unless PIGEON_LOG_LEVEL or --log-level is set, so
// log lines do not interleave with these components.
package ui
