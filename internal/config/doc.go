// Package config defines the runtime configuration shared by the weft
// commands.
//
// Configuration is flat: scheduler sizing, log output, and trace capture.
// Defaults come from struct tags (creasty/defaults) and Validate rejects
// anything the scheduler or the logger would choke on later.
//
// # Fields
//
//	┌───────────┬──────────────────┬──────────────────────────────────────┐
//	│ Field     │ Default          │ Description                          │
//	├───────────┼──────────────────┼──────────────────────────────────────┤
//	│ Workers   │ 4                │ Scheduler worker pool size           │
//	│ Policy    │ "new-work-first" │ Dispatch order for the worker loop   │
//	│ LogLevel  │ "info"           │ Logging verbosity                    │
//	│ LogFormat │ "console"        │ "console" or "json"                  │
//	│ TraceFile │ ""               │ Chrome trace output path, "" = off   │
//	└───────────┴──────────────────┴──────────────────────────────────────┘
//
// Policies:
//   - new-work-first: workers drain queued work before resuming fibers
//   - ready-fibers-first: readied fibers jump ahead of queued work
//
// # Usage Example
//
//	cfg := config.New()
//	cfg.Workers = 8
//	if err := cfg.Validate(); err != nil {
//	    return err
//	}
//	s := sched.New(cfg.SchedOptions()...)
package config
