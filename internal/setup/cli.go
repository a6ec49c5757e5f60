package setup

import (
	"flag"
	"fmt"
	"io"
	"os"
)

const usage = `ECG guardrail MCP server setup

Usage:
  mcp-server setup <command> [options]

Commands:
  register   Add the server to the desktop MCP client config
  status     Show the registered entry

Options (register):
  -config    client config file (default: OS-specific location)
  -binary    server binary (default: this executable)
  -data-dir  ledger directory passed as ECG_DATA_DIR
  -refs      reference pack directory passed as ECG_REF_BASE_PATH
`

// CLI runs setup subcommands.
type CLI struct {
	out io.Writer
}

// NewCLI creates a setup CLI writing to out.
func NewCLI(out io.Writer) *CLI {
	return &CLI{out: out}
}

// Run executes the setup command based on the provided arguments.
func (c *CLI) Run(args []string) error {
	if len(args) == 0 {
		fmt.Fprint(c.out, usage)
		return nil
	}

	switch args[0] {
	case "register":
		return c.register(args[1:])
	case "status":
		return c.status(args[1:])
	case "help", "--help", "-h":
		fmt.Fprint(c.out, usage)
		return nil
	default:
		fmt.Fprint(c.out, usage)
		return fmt.Errorf("unknown command: %s", args[0])
	}
}

func (c *CLI) register(args []string) error {
	fs := flag.NewFlagSet("register", flag.ContinueOnError)
	fs.SetOutput(c.out)

	var opts Options
	fs.StringVar(&opts.ConfigPath, "config", "", "client config file")
	fs.StringVar(&opts.BinaryPath, "binary", "", "server binary")
	fs.StringVar(&opts.DataDir, "data-dir", "", "ledger directory")
	fs.StringVar(&opts.RefBasePath, "refs", "", "reference pack directory")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if opts.BinaryPath == "" {
		execPath, err := os.Executable()
		if err != nil {
			return fmt.Errorf("failed to resolve executable: %w", err)
		}
		opts.BinaryPath = execPath
	}

	path, err := Register(opts)
	if err != nil {
		return fmt.Errorf("failed to register server: %w", err)
	}

	fmt.Fprintf(c.out, "Registered %q in %s\n", ServerKey, path)
	fmt.Fprintf(c.out, "Command: %s\n", opts.BinaryPath)
	fmt.Fprintln(c.out, "Restart the client to load the new configuration.")
	return nil
}

func (c *CLI) status(args []string) error {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	fs.SetOutput(c.out)
	configPath := fs.String("config", "", "client config file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	status, err := GetStatus(*configPath)
	if err != nil {
		return err
	}

	fmt.Fprintf(c.out, "Config path: %s\n", status.ConfigPath)
	if !status.Registered {
		fmt.Fprintln(c.out, "Status: not registered")
		return nil
	}

	fmt.Fprintln(c.out, "Status: registered")
	fmt.Fprintf(c.out, "Binary: %s\n", status.Entry.Command)
	if !status.BinaryExists {
		fmt.Fprintln(c.out, "Warning: binary not found")
	}
	if dir, ok := status.Entry.Env["ECG_DATA_DIR"]; ok {
		fmt.Fprintf(c.out, "Data directory: %s\n", dir)
	}
	return nil
}
