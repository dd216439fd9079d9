// Command vinst-repl is an interactive shell for talking to virtual
// instruments.
//
// Raw command lines are sent to the currently open instrument: lines ending
// in "?" are queries and print the returned value, everything else is a
// write. Shell commands manage the connection.
//
// Usage:
//
//	vinst-repl [address]
//
// Shell commands:
//
//	open <addr>   Connect to an instrument endpoint
//	idn           Shorthand for *IDN?
//	close         Close the current connection
//	help          Show available commands
//	quit          Exit
//
// Example session:
//
//	vinst> open 127.0.0.1:5025
//	vinst> *IDN?
//	PFJ Systems Inc., Virtual Voltage Source VVS1, S/N V5437
//	vinst> VOLT 12.5
//	OK
//	vinst> VOLT?
//	12.5
package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/chzyer/readline"

	"github.com/vinst-lab/vinst-go/pkg/visa"
)

const help = `Commands:
  open <addr>   Connect to an instrument endpoint
  idn           Query the instrument identification (*IDN?)
  close         Close the current connection
  help          Show this help
  quit          Exit

Any other input is sent to the open instrument: a trailing "?" makes it a
query, otherwise it is a write.`

type shell struct {
	rl     *readline.Instance
	client *visa.Client
}

func main() {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "vinst> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "quit",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create readline: %v\n", err)
		os.Exit(1)
	}

	sh := &shell{rl: rl}
	defer sh.close()
	defer rl.Close()

	if len(os.Args) > 1 {
		sh.open(os.Args[1])
	}

	for {
		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				continue
			}
			return
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}
		if !sh.handle(input) {
			return
		}
	}
}

// handle processes one input line. It returns false to exit the shell.
func (s *shell) handle(input string) bool {
	cmd, rest, _ := strings.Cut(input, " ")
	switch strings.ToLower(cmd) {
	case "quit", "exit":
		return false
	case "help":
		fmt.Fprintln(s.rl.Stdout(), help)
	case "open":
		if rest == "" {
			fmt.Fprintln(s.rl.Stderr(), "Usage: open <addr>")
			break
		}
		s.open(strings.TrimSpace(rest))
	case "close":
		s.close()
	case "idn":
		s.send("*IDN?")
	default:
		s.send(input)
	}
	return true
}

// open connects to an endpoint, replacing any current connection.
func (s *shell) open(addr string) {
	s.close()

	client, err := visa.Dial(addr)
	if err != nil {
		fmt.Fprintf(s.rl.Stderr(), "Failed to connect: %v\n", err)
		return
	}
	s.client = client
	fmt.Fprintf(s.rl.Stdout(), "Connected to %s\n", client.RemoteAddr())
}

func (s *shell) close() {
	if s.client == nil {
		return
	}
	if err := s.client.Close(); err != nil {
		fmt.Fprintf(s.rl.Stderr(), "Error closing connection: %v\n", err)
	}
	s.client = nil
}

// send plays one raw command against the open instrument.
func (s *shell) send(cmd string) {
	if s.client == nil {
		fmt.Fprintln(s.rl.Stderr(), "Not connected; use: open <addr>")
		return
	}

	if strings.HasSuffix(cmd, "?") {
		value, err := s.client.Query(cmd)
		if err != nil {
			fmt.Fprintf(s.rl.Stderr(), "%v\n", err)
			return
		}
		fmt.Fprintln(s.rl.Stdout(), value)
		return
	}

	if err := s.client.Write(cmd); err != nil {
		fmt.Fprintf(s.rl.Stderr(), "%v\n", err)
		return
	}
	fmt.Fprintln(s.rl.Stdout(), "OK")
}
