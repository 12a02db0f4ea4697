// hookwarden enforces protection levels on AI agent hook events.
// Agent runtimes post message and tool-call events; hookwarden scores them,
// blocks what the level forbids and lets operators open escape hatches.
package main

import "github.com/ppiankov/hookwarden/internal/cli"

func main() {
	cli.Execute()
}
