package inkbase

// Command is a parsed subcommand with its options.
type Command interface {
	Name() string
}

// RunCommand starts the HTTP server.
type RunCommand struct{}

func (c *RunCommand) Name() string { return "run" }

// MigrateCommand prepares the store schema and exits.
type MigrateCommand struct{}

func (c *MigrateCommand) Name() string { return "migrate" }
