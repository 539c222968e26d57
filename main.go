// Package main is the entry point for the sc2ds CLI, which turns stored
// StarCraft II replay telemetry into machine-learning datasets.
package main

import "github.com/dvarkless/sc2-replay-converter/cmd"

func main() {
	cmd.Execute()
}
