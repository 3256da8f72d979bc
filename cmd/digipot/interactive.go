package main

import (
	"fmt"
	"strings"

	"github.com/chzyer/readline"
)

// interactive reads command lines until EOF or "quit".
func (s *shell) interactive() error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          fmt.Sprintf("mcp4551@0x%02x> ", s.dev.Address()),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("failed to create readline: %w", err)
	}
	defer rl.Close()

	s.out = rl.Stdout()
	s.log.Logger.SetOutput(rl.Stderr())
	s.help(nil)

	for {
		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			return nil
		}
		input := strings.TrimSpace(line)
		switch input {
		case "":
			continue
		case "quit", "exit", "q":
			return nil
		}
		if err := s.runLine(input); err != nil {
			fmt.Fprintf(rl.Stdout(), "error: %v\n", err)
		}
	}
}
