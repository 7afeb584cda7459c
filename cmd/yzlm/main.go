package main

import (
	"github.com/mchmarny/yzlm/pkg/cli"
)

func main() {
	cli.Execute()
}
