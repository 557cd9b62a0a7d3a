package storectl

import (
	"flag"
	"os"

	"github.com/dmitrijs2005/storefront/internal/flagx"
)

const (
	CommandMigrate    = "migrate"
	CommandCreateUser = "create-user"
)

// Options are the storectl-specific flags. Server settings (-d, -c, ...)
// are read by config.LoadConfig from the same command line.
type Options struct {
	Command string
	Email   string
}

// ParseFlags reads -command and -email from os.Args.
func ParseFlags() (Options, error) {
	var o Options

	args := flagx.FilterArgs(os.Args[1:], []string{"-command", "-email"})

	fs := flag.NewFlagSet("storectl", flag.ContinueOnError)
	fs.StringVar(&o.Command, "command", "", "migrate or create-user")
	fs.StringVar(&o.Email, "email", "", "email of the user to create")

	if err := fs.Parse(args); err != nil {
		return Options{}, err
	}

	return o, nil
}
