package main

import (
	"github.com/sbl8/histonet/cli"
)

func main() {
	cli.Execute(cli.NewEvelyzeApp())
}
