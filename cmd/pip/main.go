package main

import (
	"go.brendoncarroll.net/star"

	"pipdataplane.org/pip/pipcmd"
)

func main() {
	star.Main(pipcmd.Root())
}
