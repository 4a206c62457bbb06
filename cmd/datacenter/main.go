// Package main implements the knot datacenter daemon: an in-memory store of
// knots inside crystals, served over the line-based TCP command protocol,
// with a background AI monitor and a Prometheus metrics endpoint.
//
// Architecture:
//
//	┌──────────────────────────────────────────────┐
//	│                 datacenter                   │
//	├──────────────────────────────────────────────┤
//	│  TCP :5555     STATUS LIST INFO AI_*         │
//	│  HTTP :9090    /metrics /health              │
//	├──────────────────────────────────────────────┤
//	│  Datacenter    crystals, knots, cubits       │
//	│  Orchestrator  correction + learning         │
//	│  Monitor       periodic AI sweep             │
//	└──────────────────────────────────────────────┘
//
// Configuration comes from knotdc.yaml and KNOTDC_* environment variables
// (see internal/config). With demo enabled the daemon starts with three
// crystals and five stored payloads.
//
// Example usage:
//
//	# Write a config file, then serve
//	datacenter config init
//	datacenter serve --port 6000
//
//	# Query it
//	knotctl --addr localhost:6000 list
package main

import (
	"log"
)

// logFatal is a variable to allow mocking log.Fatal in tests.
var logFatal = log.Fatalf

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := NewRootCmd().Execute(); err != nil {
		logFatal("datacenter: %v", err)
	}
}
