/*
Package main provides end-to-end tests for the weft scheduler.

# Package Structure

	test/e2e/
	├── main.go   Entry point: flags, config, zap bootstrap, Ginkgo runner
	├── tests.go  Ginkgo test specs (pipelines, scopes, policies, traces)
	└── doc.go    This file

The specs drive the public API the way the commands do: they stand up
schedulers from internal/config, push fan-out/fan-in pipelines through them
from many attached goroutines, and verify checksums, scope teardown, trace
balance, and goroutine hygiene after Close.

# Running

	go run ./test/e2e
	go run ./test/e2e -workers 8 -units 256
	go run ./test/e2e -policy ready-fibers-first -trace-dir /tmp/weft

Flags:

	-workers    scheduler worker pool size (default 4)
	-policy     dispatch policy (default "new-work-first")
	-units      work units per pipeline spec (default 64)
	-spin       busy-count units per work unit (default 20000)
	-trace-dir  directory for captured traces (default: temp dir)
*/
package main
