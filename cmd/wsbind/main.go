// Wsbind resolves bundle dependencies across the projects of a workspace.
package main

import "github.com/albertocavalcante/wsbind/cmd/wsbind/internal/cli"

func main() {
	cli.Execute()
}
