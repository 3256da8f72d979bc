package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/google/shlex"
	"github.com/sirupsen/logrus"

	"github.com/ftrias/MCP4551/drivers/mcp4551"
	"github.com/ftrias/MCP4551/x/mathx"
	"github.com/ftrias/MCP4551/x/ramp"
)

var errUsage = errors.New("usage")

// shell runs one command line against a device.
type shell struct {
	dev *mcp4551.Device
	cfg Config
	out io.Writer
	log *logrus.Entry

	tick ramp.Tick // nil sleeps
}

type command struct {
	usage string
	run   func(s *shell, args []string) error
}

var commands map[string]command

func init() {
	commands = map[string]command{
		"ping": {"ping", (*shell).ping},
		"get":  {"get", (*shell).get},
		"set":  {"set <value>", (*shell).set},
		"nv":   {"nv [value]", (*shell).nv},
		"inc":  {"inc [n]", (*shell).inc},
		"dec":  {"dec [n]", (*shell).dec},
		"ohm":  {"ohm <target> [total] [bits]", (*shell).ohm},
		"ramp": {"ramp <to> <ms> [steps]", (*shell).ramp},
		"tcon": {"tcon [value]", (*shell).tcon},
		"flag": {"flag <a|b|w|r0|gc> <on|off>", (*shell).flag},
		"reg":  {"reg <addr> [value]", (*shell).reg},
		"pins": {"pins <a0> <a1> <a2>", (*shell).pins},
		"help": {"help", (*shell).help},
	}
}

// runLine splits line like a POSIX shell and executes it.
func (s *shell) runLine(line string) error {
	args, err := shlex.Split(line)
	if err != nil {
		return fmt.Errorf("parse %q: %w", line, err)
	}
	if len(args) == 0 {
		return nil
	}
	return s.exec(args)
}

func (s *shell) exec(args []string) error {
	name := strings.ToLower(args[0])
	c, ok := commands[name]
	if !ok {
		return fmt.Errorf("unknown command %q (try help)", name)
	}
	s.log.WithField("args", args[1:]).Debugf("exec %s", name)
	err := c.run(s, args[1:])
	if errors.Is(err, errUsage) {
		return fmt.Errorf("usage: %s", c.usage)
	}
	return err
}

func (s *shell) ping(args []string) error {
	if err := s.dev.TestConnection(); err != nil {
		return fmt.Errorf("no ack at 0x%02x: %w", s.dev.Address(), err)
	}
	fmt.Fprintf(s.out, "ack 0x%02x\n", s.dev.Address())
	return nil
}

func (s *shell) get(args []string) error {
	v, err := s.dev.Wiper()
	if err != nil {
		return err
	}
	s.printWiper("wiper", v)
	return nil
}

func (s *shell) printWiper(label string, v uint16) {
	if s.cfg.TotalOhm == 0 {
		fmt.Fprintf(s.out, "%s 0x%03x (%d)\n", label, v, v)
		return
	}
	bits := s.bits()
	code := mathx.Clamp(uint64(v), 0, uint64(1)<<bits)
	ohm := mathx.UnscaleFloor(code, uint64(s.cfg.TotalOhm), bits)
	fmt.Fprintf(s.out, "%s 0x%03x (%d) ~%d ohm\n", label, v, v, ohm)
}

func (s *shell) set(args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	v, err := parse9(args[0])
	if err != nil {
		return err
	}
	return s.dev.SetWiper(v)
}

func (s *shell) nv(args []string) error {
	switch len(args) {
	case 0:
		v, err := s.dev.NVWiper()
		if err != nil {
			return err
		}
		s.printWiper("nv", v)
		return nil
	case 1:
		v, err := parse9(args[0])
		if err != nil {
			return err
		}
		return s.dev.SetNVWiper(v)
	}
	return errUsage
}

func (s *shell) inc(args []string) error { return s.step(args, s.dev.Increment) }
func (s *shell) dec(args []string) error { return s.step(args, s.dev.Decrement) }

func (s *shell) step(args []string, fn func() error) error {
	n := uint64(1)
	if len(args) > 1 {
		return errUsage
	}
	if len(args) == 1 {
		var err error
		if n, err = strconv.ParseUint(args[0], 0, 16); err != nil {
			return fmt.Errorf("bad step count %q", args[0])
		}
	}
	for i := uint64(0); i < n; i++ {
		if err := fn(); err != nil {
			return err
		}
	}
	return nil
}

func (s *shell) ohm(args []string) error {
	if len(args) < 1 || len(args) > 3 {
		return errUsage
	}
	target, err := strconv.ParseUint(args[0], 0, 32)
	if err != nil {
		return fmt.Errorf("bad target %q", args[0])
	}
	total := uint64(s.cfg.TotalOhm)
	if len(args) > 1 {
		if total, err = strconv.ParseUint(args[1], 0, 32); err != nil {
			return fmt.Errorf("bad total %q", args[1])
		}
	}
	bits := uint64(s.bits())
	if len(args) > 2 {
		if bits, err = strconv.ParseUint(args[2], 0, 8); err != nil || bits > 15 {
			return fmt.Errorf("bad bits %q (0..15)", args[2])
		}
	}
	code, err := mcp4551.WiperCode(uint32(target), uint32(total), uint8(bits))
	if err != nil {
		return err
	}
	if err := s.dev.SetWiper(code); err != nil {
		return err
	}
	fmt.Fprintf(s.out, "wiper 0x%03x (%d)\n", code, code)
	return nil
}

func (s *shell) ramp(args []string) error {
	if len(args) < 2 || len(args) > 3 {
		return errUsage
	}
	to, err := parse9(args[0])
	if err != nil {
		return err
	}
	ms, err := strconv.ParseUint(args[1], 0, 32)
	if err != nil {
		return fmt.Errorf("bad duration %q", args[1])
	}
	steps := uint64(16)
	if len(args) == 3 {
		if steps, err = strconv.ParseUint(args[2], 0, 16); err != nil {
			return fmt.Errorf("bad step count %q", args[2])
		}
	}
	cur, err := s.dev.Wiper()
	if err != nil {
		return err
	}
	tick := s.tick
	if tick == nil {
		tick = func(d time.Duration) bool { time.Sleep(d); return true }
	}
	top := uint16(1) << s.bits()
	s.log.WithFields(logrus.Fields{"from": cur, "to": to, "ms": ms}).Debug("ramp")
	return ramp.Linear(cur, to, top, time.Duration(ms)*time.Millisecond, uint16(steps), tick, s.dev.SetWiper)
}

func (s *shell) tcon(args []string) error {
	switch len(args) {
	case 0:
		v, err := s.dev.TCON()
		if err != nil {
			return err
		}
		fmt.Fprintf(s.out, "tcon 0x%03x %s\n", uint16(v), describeTCON(v))
		return nil
	case 1:
		v, err := parse9(args[0])
		if err != nil {
			return err
		}
		return s.dev.SetTCON(mcp4551.TCONBits(v))
	}
	return errUsage
}

func describeTCON(v mcp4551.TCONBits) string {
	onOff := func(b mcp4551.TCONBits) string {
		if v.Has(b) {
			return "on"
		}
		return "off"
	}
	return fmt.Sprintf("a=%s w=%s b=%s r0hw=%s gc=%s",
		onOff(mcp4551.TCONA), onOff(mcp4551.TCONW), onOff(mcp4551.TCONB),
		onOff(mcp4551.TCONR0HW), onOff(mcp4551.TCONGeneralCall))
}

func (s *shell) flag(args []string) error {
	if len(args) != 2 {
		return errUsage
	}
	f, ok := mcp4551.ParseTCONFlag(args[0])
	if !ok {
		return fmt.Errorf("unknown flag %q", args[0])
	}
	var on bool
	switch strings.ToLower(args[1]) {
	case "on", "1", "true":
		on = true
	case "off", "0", "false":
	default:
		return errUsage
	}
	return s.dev.SetFlag(f, on)
}

func (s *shell) reg(args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return errUsage
	}
	a, err := strconv.ParseUint(args[0], 0, 8)
	if err != nil {
		return fmt.Errorf("bad register %q", args[0])
	}
	r := mcp4551.Register(a)
	if len(args) == 1 {
		v, err := s.dev.GetRegister(r)
		if err != nil {
			return err
		}
		fmt.Fprintf(s.out, "reg 0x%02x = 0x%03x\n", a, v)
		return nil
	}
	v, err := parse9(args[1])
	if err != nil {
		return err
	}
	return s.dev.SetRegister(r, v)
}

func (s *shell) pins(args []string) error {
	if len(args) != 3 {
		return errUsage
	}
	var p [3]mcp4551.AddressPin
	for i, a := range args {
		v, ok := mcp4551.ParsePin(a)
		if !ok {
			return fmt.Errorf("bad pin level %q (want gnd or vcc)", a)
		}
		p[i] = v
	}
	fmt.Fprintf(s.out, "address 0x%02x\n", mcp4551.AddressFromPins(p[0], p[1], p[2]))
	return nil
}

func (s *shell) help(args []string) error {
	names := []string{"ping", "get", "set", "nv", "inc", "dec", "ohm", "ramp", "tcon", "flag", "reg", "pins"}
	for _, n := range names {
		fmt.Fprintf(s.out, "  %s\n", commands[n].usage)
	}
	return nil
}

func (s *shell) bits() uint8 {
	if s.cfg.Bits == 0 {
		return 8
	}
	return s.cfg.Bits
}

// parse9 accepts decimal, 0x or 0b values that fit a 9-bit register.
func parse9(s string) (uint16, error) {
	v, err := strconv.ParseUint(s, 0, 16)
	if err != nil || v > 0x1FF {
		return 0, fmt.Errorf("bad value %q (0..0x1ff)", s)
	}
	return uint16(v), nil
}
