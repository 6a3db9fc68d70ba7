package cli

import (
	"context"
	"fmt"

	"github.com/m-mizutani/goerr/v2"
	"github.com/quest-labs/relo/pkg/model"
	"github.com/quest-labs/relo/pkg/usecase/voice"
	"github.com/urfave/cli/v3"
)

func pendingCommand() *cli.Command {
	return &cli.Command{
		Name:  "pending",
		Usage: "Manage the fact confirmation queue",
		Commands: []*cli.Command{
			pendingListCommand(),
			pendingResolveCommand("accept", "Apply a pending fact mutation", true),
			pendingResolveCommand("reject", "Discard a pending fact mutation", false),
		},
	}
}

func pendingListCommand() *cli.Command {
	var (
		cfg    config
		userID string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "user",
			Aliases:     []string{"u"},
			Usage:       "User ID to list confirmations for",
			Required:    true,
			Destination: &userID,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)

	return &cli.Command{
		Name:  "list",
		Usage: "List pending fact confirmations for a user",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.setupLogging(ctx)

			repo, err := cfg.newRepository(ctx)
			if err != nil {
				return err
			}
			defer repo.Close()

			pending, err := repo.ListPendingConfirmations(ctx, model.UserID(userID))
			if err != nil {
				return goerr.Wrap(err, "failed to list pending confirmations")
			}

			if len(pending) == 0 {
				fmt.Fprintln(c.Root().Writer, "No pending confirmations")
				return nil
			}

			for _, p := range pending {
				fmt.Fprintf(c.Root().Writer, "%s  %s: %q -> %q (confidence %.2f)\n",
					p.ID, p.Type, p.OldValue, p.NewValue, p.Confidence)
				fmt.Fprintf(c.Root().Writer, "    said: %s\n", p.UserText)
			}
			return nil
		},
	}
}

func pendingResolveCommand(name, usage string, accept bool) *cli.Command {
	var (
		cfg config
		id  string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "id",
			Usage:       "Confirmation ID to resolve",
			Required:    true,
			Destination: &id,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)

	return &cli.Command{
		Name:  name,
		Usage: usage,
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.setupLogging(ctx)

			repo, err := cfg.newRepository(ctx)
			if err != nil {
				return err
			}
			defer repo.Close()

			uc := voice.New(voice.NewInput{Repo: repo})

			resolved, err := uc.Resolve(ctx, model.ConfirmationID(id), accept)
			if err != nil {
				return err
			}

			fmt.Fprintf(c.Root().Writer, "%s %s: %q -> %q\n",
				resolved.Status, resolved.Type, resolved.OldValue, resolved.NewValue)
			return nil
		},
	}
}
