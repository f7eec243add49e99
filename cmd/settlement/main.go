// Command settlement is the entry point for the settlement engine:
// the HTTP API server, the one-shot sweep, and the consistency audit.
package main

import "github.com/mesu/settlement-engine/cli"

func main() {
	cli.Execute()
}
