// The main package for the postercache executable.
package main

import "github.com/JakeFAU/poster-cache/cmd"

func main() {
	cmd.Execute()
}
