package main

import (
	"os"

	"github.com/shinyvision/i18nlens/internal/cli"
	_ "github.com/tliron/commonlog/simple"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
