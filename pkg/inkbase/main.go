package inkbase

import (
	"context"
	"fmt"
)

// Main is the entry point behind cmd/inkbase. It parses arguments,
// assembles the application, and executes the requested command. It
// is a plain function so tests can run the whole binary in-process.
func Main(ctx context.Context, args []string) error {
	cmd, config, err := Parse(args)
	if err != nil {
		return fmt.Errorf("failed to parse configuration: %w", err)
	}

	app, err := New(ctx, config)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}
	defer app.Close()

	switch c := cmd.(type) {
	case *MigrateCommand:
		return app.Migrate(ctx, c)
	case *RunCommand:
		return app.Run(ctx, c)
	default:
		return fmt.Errorf("unknown command type: %T", cmd)
	}
}
