// Command digipot drives an MCP4551 digital potentiometer on a Linux I2C
// bus.
//
//	digipot -bus /dev/i2c-1 -addr 0x2e set 0x40
//	digipot -config pot.yaml -i
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"

	"github.com/ftrias/MCP4551/drivers/mcp4551"
	"github.com/ftrias/MCP4551/drivers/twowire"
)

func main() {
	configFile := flag.String("config", "", "YAML config file")
	busName := flag.String("bus", "", "I2C bus name or number (default: first bus found)")
	addrFlag := flag.String("addr", "", "7-bit device address, overrides config")
	total := flag.Uint("total", 0, "Total resistance R_AB in ohms, overrides config")
	interactiveMode := flag.Bool("i", false, "Start an interactive shell")
	applyPowerOn := flag.Bool("init", false, "Write the configured power-on TCON and wiper first")
	initLogParam()
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] <command> [args]\n\ncommands:\n", os.Args[0])
		(&shell{out: flag.CommandLine.Output()}).help(nil)
		fmt.Fprintln(flag.CommandLine.Output(), "\nflags:")
		flag.PrintDefaults()
	}
	flag.Parse()

	log := getLogger(logrus.InfoLevel)

	cfg, err := loadConfig(*configFile)
	if err != nil {
		log.WithError(err).Fatal("Failed to load config")
	}
	if *busName != "" {
		cfg.Bus = *busName
	}
	if *addrFlag != "" {
		a, err := strconv.ParseUint(*addrFlag, 0, 7)
		if err != nil {
			log.WithField("addr", *addrFlag).Fatal("Invalid address")
		}
		cfg.Addr = uint16(a)
	}
	if *total != 0 {
		cfg.TotalOhm = uint32(*total)
	}
	addr, err := cfg.address()
	if err != nil {
		log.WithError(err).Fatal("Invalid pin config")
	}

	// "pins" needs no hardware.
	if flag.NArg() > 0 && flag.Arg(0) == "pins" {
		s := &shell{cfg: cfg, out: os.Stdout, log: log}
		if err := s.exec(flag.Args()); err != nil {
			log.WithError(err).Fatal("Command failed")
		}
		return
	}
	if flag.NArg() == 0 && !*interactiveMode {
		flag.Usage()
		os.Exit(2)
	}

	if _, err := host.Init(); err != nil {
		log.WithError(err).Fatal("Failed to initialise host drivers")
	}
	bus, err := i2creg.Open(cfg.Bus)
	if err != nil {
		log.WithError(err).WithField("bus", cfg.Bus).Fatal("Failed to open I2C bus")
	}
	defer bus.Close()

	wire := twowire.NewLocked(twowire.New(bus))
	dev := mcp4551.New(wire, mcp4551.Config{Address: addr, PowerOn: cfg.powerOn()})
	log.WithFields(logrus.Fields{"bus": bus.String(), "addr": fmt.Sprintf("0x%02x", addr)}).Debug("Opened device")

	if *applyPowerOn {
		if err := dev.Configure(); err != nil {
			log.WithError(err).Fatal("Failed to apply power-on state")
		}
	}

	s := &shell{dev: dev, cfg: cfg, out: os.Stdout, log: log}
	if *interactiveMode {
		err = s.interactive()
	} else {
		err = s.exec(flag.Args())
	}
	if err != nil {
		bus.Close()
		log.WithError(err).Fatal("Command failed")
	}
}
