package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/gofrs/uuid/v5"
	"github.com/spf13/cobra"

	"github.com/and161185/goph-auth/internal/migrate"
	"github.com/and161185/goph-auth/internal/model"
	"github.com/and161185/goph-auth/internal/service"
	"github.com/and161185/goph-auth/internal/svcctx"
)

// app carries the side effects of every command so tests can swap them.
type app struct {
	in      io.Reader
	out     io.Writer
	open    func(ctx context.Context) (*svcctx.ServiceContext, error)
	migrate func(ctx context.Context, dir migrate.Direction) error

	reader *bufio.Reader
}

// withServices opens the stores for the duration of fn.
func (a *app) withServices(ctx context.Context, fn func(sc *svcctx.ServiceContext) error) error {
	sc, err := a.open(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = sc.Close() }()
	return fn(sc)
}

// readPassword prompts on w and reads one line from the app input.
func (a *app) readPassword(w io.Writer, prompt string) (string, error) {
	if a.reader == nil {
		a.reader = bufio.NewReader(a.in)
	}
	fmt.Fprint(w, prompt)
	line, err := a.reader.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	pw := strings.TrimRight(line, "\r\n")
	if pw == "" {
		return "", errors.New("password must not be empty")
	}
	return pw, nil
}

func (a *app) printJSON(v any) {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "authctl",
		Short:         "Administration tool for goph-auth",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(a.out)

	root.AddCommand(
		&cobra.Command{
			Use:   "version",
			Short: "Print build information",
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintf(a.out, "authctl %s (%s)\n", version, buildDate)
			},
		},
		newMigrateCmd(a),
		newNewCmd(a),
		newGrantCmd(a),
		newPasswdCmd(a),
		newTokensCmd(a),
	)
	return root
}

func newMigrateCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{Use: "migrate", Short: "Apply or inspect schema migrations"}
	for _, dir := range []migrate.Direction{migrate.Up, migrate.Down, migrate.Status} {
		cmd.AddCommand(&cobra.Command{
			Use:   string(dir),
			Short: "Run goose " + string(dir),
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return a.migrate(cmd.Context(), dir)
			},
		})
	}
	return cmd
}

func newNewCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{Use: "new", Short: "Create accounts, applications and clients"}
	cmd.AddCommand(newAccountCmd(a, "admin", model.RoleAdmin), newAccountCmd(a, "user", model.RoleUser))

	var appIn service.NewApplication
	appCmd := &cobra.Command{
		Use:   "application <owner-login>",
		Short: "Register the application owned by a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withServices(cmd.Context(), func(sc *svcctx.ServiceContext) error {
				in := appIn
				in.OwnerLogin = args[0]
				created, err := service.NewClientService(sc).CreateApplication(cmd.Context(), in)
				if err != nil {
					return err
				}
				a.printJSON(map[string]string{"id": created.ID.String(), "name": created.Name})
				return nil
			})
		},
	}
	appCmd.Flags().StringVar(&appIn.Name, "name", "", "application name")
	appCmd.Flags().StringVar(&appIn.Description, "description", "", "short description")
	appCmd.Flags().StringVar(&appIn.URL, "url", "", "home page")
	_ = appCmd.MarkFlagRequired("name")

	var (
		clientName  string
		redirectURI string
		grants      []string
	)
	clientCmd := &cobra.Command{
		Use:   "client <application-id>",
		Short: "Issue client credentials for an application",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appID, err := uuid.FromString(args[0])
			if err != nil {
				return fmt.Errorf("application id: %w", err)
			}
			in := service.NewClient{AppID: appID, Name: clientName, RedirectURI: redirectURI}
			for _, g := range grants {
				in.GrantTypes = append(in.GrantTypes, model.GrantType(g))
			}
			return a.withServices(cmd.Context(), func(sc *svcctx.ServiceContext) error {
				c, secret, err := service.NewClientService(sc).CreateClient(cmd.Context(), in)
				if err != nil {
					return err
				}
				a.printJSON(map[string]string{"client_id": c.ID.String(), "client_secret": secret})
				return nil
			})
		},
	}
	clientCmd.Flags().StringVar(&clientName, "name", "", "client name")
	clientCmd.Flags().StringVar(&redirectURI, "redirect-uri", "", "redirect uri")
	clientCmd.Flags().StringSliceVar(&grants, "grant", nil, "allowed grant type, repeatable (default refresh_token)")

	cmd.AddCommand(appCmd, clientCmd)
	return cmd
}

// newAccountCmd creates a user holding role; the password is read from stdin.
func newAccountCmd(a *app, use string, role model.Role) *cobra.Command {
	var username string
	cmd := &cobra.Command{
		Use:   use + " <email>",
		Short: "Create a user with the " + string(role) + " role",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pw, err := a.readPassword(cmd.ErrOrStderr(), "Password: ")
			if err != nil {
				return err
			}
			return a.withServices(cmd.Context(), func(sc *svcctx.ServiceContext) error {
				u, err := service.NewUserService(sc).Create(cmd.Context(), service.NewUser{
					Email:    args[0],
					Username: username,
					Password: pw,
					Role:     role,
				})
				if err != nil {
					return err
				}
				a.printJSON(map[string]string{"username": u.Username, "email": u.Email, "role": string(role)})
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "username (generated when empty)")
	return cmd
}

func newGrantCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{Use: "grant", Short: "Manage role grants"}
	run := func(add bool) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			role := model.Role(args[1])
			return a.withServices(cmd.Context(), func(sc *svcctx.ServiceContext) error {
				roles := service.NewRoleService(sc)
				if add {
					return roles.Grant(cmd.Context(), args[0], role)
				}
				return roles.Revoke(cmd.Context(), args[0], role)
			})
		}
	}
	cmd.AddCommand(
		&cobra.Command{Use: "add <login> <role>", Short: "Grant a role", Args: cobra.ExactArgs(2), RunE: run(true)},
		&cobra.Command{Use: "rm <login> <role>", Short: "Revoke a role", Args: cobra.ExactArgs(2), RunE: run(false)},
	)
	return cmd
}

func newPasswdCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "passwd <login>",
		Short: "Set a user's password",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pw, err := a.readPassword(cmd.ErrOrStderr(), "New password: ")
			if err != nil {
				return err
			}
			return a.withServices(cmd.Context(), func(sc *svcctx.ServiceContext) error {
				if err := service.NewUserService(sc).SetPassword(cmd.Context(), args[0], pw); err != nil {
					return err
				}
				fmt.Fprintln(a.out, "ok")
				return nil
			})
		},
	}
}

func newTokensCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{Use: "tokens", Short: "Token maintenance"}
	cmd.AddCommand(&cobra.Command{
		Use:   "purge",
		Short: "Delete expired tokens",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withServices(cmd.Context(), func(sc *svcctx.ServiceContext) error {
				n, err := service.NewClientService(sc).PurgeExpiredTokens(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(a.out, "purged %d\n", n)
				return nil
			})
		},
	})
	return cmd
}
