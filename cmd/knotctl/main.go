// Package main implements knotctl, the command-line client of the knot
// datacenter. Each invocation opens one TCP connection, sends one command
// and prints the response.
//
// Commands:
//
//	knotctl status              STATUS
//	knotctl list                LIST
//	knotctl info <crystal>      INFO <crystal>
//	knotctl ai status           AI_STATUS
//	knotctl ai report           AI_REPORT
//	knotctl ai optimize         AI_OPTIMIZE
//	knotctl send <words...>     any raw command
//
// The server address comes from --addr, then KNOTDC_ADDR, then
// localhost:5555. --json prints the server's response unformatted.
package main

import (
	"log"
	"os"
)

// logFatal is a variable to allow mocking log.Fatal in tests.
var logFatal = log.Fatalf

func main() {
	if err := NewRootCmd().Execute(); err != nil {
		logFatal("knotctl: %v", err)
	}
}

// getenv returns the environment variable k, or def when unset or empty.
func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
