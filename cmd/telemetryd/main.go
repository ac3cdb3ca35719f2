// Command telemetryd runs the sensor telemetry platform: the TCP ingestion
// server, the HTTP control plane, a simulated firmware loop for local
// testing, and the operator CLI for registering/deregistering sensors.
// Follows cmd/flowersec-tunnel/main.go's single-binary shape, restructured
// into a cobra command tree the way kgiusti-go-fdo-server/cmd splits each
// server role into its own subcommand file bound through viper.
package main

import "os"

func main() {
	os.Exit(run())
}

func run() int {
	if err := rootCmd.Execute(); err != nil {
		return 1
	}
	return 0
}
