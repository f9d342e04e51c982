// Command subharvest discovers and classifies proxy subscription URLs.
package main

import (
	"github.com/JakeFAU/subharvest/cmd"
)

func main() {
	cmd.Execute()
}
