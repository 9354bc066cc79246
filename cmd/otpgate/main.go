// Command otpgate runs the demo sign-in shell over the goOTP engine.
//
//	otpgate serve --addr :8080
//	otpgate serve --config otpgate.yaml --redis-addr localhost:6379
//	otpgate config --config otpgate.yaml
//
// Without --redis-addr, serve starts an embedded miniredis.
package main

import (
	"fmt"
	"os"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	cmd := NewRootCmd()
	cmd.Version = fmt.Sprintf("%s (commit: %s)", version, commit)

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
