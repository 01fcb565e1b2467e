package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/mapster/mapster/backend/go-services/pkg/client"
	"golang.org/x/term"
)

const usage = `usage: mapster <command> [flags]

commands:
  signup   -email EMAIL [-password PASSWORD]
  login    -email EMAIL [-password PASSWORD]
  logout
  whoami
  docs list
  docs create TITLE
  docs delete ID
  docs export ID
`

var errUsage = errors.New("invalid usage")

type app struct {
	client       *client.Client
	out          io.Writer
	readPassword func(io.Writer) (string, error)
}

func terminalPassword(w io.Writer) (string, error) {
	fmt.Fprint(w, "Password: ")
	pw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(w)
	if err != nil {
		return "", err
	}
	return string(pw), nil
}

func (a *app) run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		fmt.Fprint(a.out, usage)
		return errUsage
	}
	switch args[0] {
	case "signup":
		return a.credentials(ctx, "signup", args[1:], a.client.Signup)
	case "login":
		return a.credentials(ctx, "login", args[1:], a.client.Login)
	case "logout":
		if err := a.client.Logout(ctx); err != nil {
			return err
		}
		fmt.Fprintln(a.out, "logged out")
		return nil
	case "whoami":
		u, err := a.client.Whoami(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "%s (%s)\n", u.Email, u.ID)
		return nil
	case "docs":
		return a.docs(ctx, args[1:])
	case "help", "-h", "--help":
		fmt.Fprint(a.out, usage)
		return nil
	}
	fmt.Fprint(a.out, usage)
	return fmt.Errorf("%w: unknown command %q", errUsage, args[0])
}

type authFunc func(ctx context.Context, email, password string) (*client.User, error)

func (a *app) credentials(ctx context.Context, name string, args []string, do authFunc) error {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.out)
	email := fs.String("email", "", "account email")
	password := fs.String("password", "", "account password (prompted when empty)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *email == "" {
		return fmt.Errorf("%w: -email is required", errUsage)
	}
	if *password == "" {
		pw, err := a.readPassword(a.out)
		if err != nil {
			return err
		}
		*password = pw
	}
	u, err := do(ctx, *email, *password)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "logged in as %s\n", u.Email)
	return nil
}

func (a *app) docs(ctx context.Context, args []string) error {
	if len(args) == 0 {
		args = []string{"list"}
	}
	switch args[0] {
	case "list":
		docs, err := a.client.ListDocuments(ctx)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tTITLE\tUPDATED")
		for _, d := range docs {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", d.ID, d.Title, d.UpdatedAt.Format("2006-01-02 15:04"))
		}
		return tw.Flush()
	case "create":
		if len(args) < 2 {
			return fmt.Errorf("%w: docs create TITLE", errUsage)
		}
		d, err := a.client.CreateDocument(ctx, strings.Join(args[1:], " "))
		if err != nil {
			return err
		}
		fmt.Fprintln(a.out, d.ID)
		return nil
	case "delete":
		if len(args) != 2 {
			return fmt.Errorf("%w: docs delete ID", errUsage)
		}
		return a.client.DeleteDocument(ctx, args[1])
	case "export":
		if len(args) != 2 {
			return fmt.Errorf("%w: docs export ID", errUsage)
		}
		e, err := a.client.ExportDocument(ctx, args[1])
		if err != nil {
			return err
		}
		fmt.Fprintln(a.out, e.URL)
		return nil
	}
	return fmt.Errorf("%w: unknown docs command %q", errUsage, args[0])
}
