package main

import (
	"os"

	"github.com/jessevdk/go-flags"
)

type Options struct {
	Run   RunCommand   `command:"run" description:"Drive the arm from the keyboard"`
	Setup SetupCommand `command:"setup" description:"Choose a driver and write the configuration file"`
	Ports PortsCommand `command:"ports" description:"List serial ports and optionally scan them for servos"`
}

var opts Options
var parser = flags.NewParser(&opts, flags.Default)

func main() {
	parser.LongDescription = "armctl - keyboard control for hobby servo arms"

	_, err := parser.Parse()
	if err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				os.Exit(0)
			}
		}
		os.Exit(1)
	}
}
