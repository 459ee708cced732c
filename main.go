// The main package for the steercrawl executable.
package main

import (
	"github.com/agentx-ai/steercrawl/cmd"
)

func main() {
	cmd.Execute()
}
