package main

import (
	"fmgo/cli"
)

func main() {
	cli.Start()
}
