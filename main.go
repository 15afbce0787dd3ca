package main

import (
	"github.com/luma/samplecast/cmd"
)

func main() {
	cmd.Execute()
}
