package main

import (
	"fmt"
	"io"
	"os"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/trezcool/congress/core/diploma"
	"github.com/trezcool/congress/core/user"
	"github.com/trezcool/congress/storage/database"
)

var (
	readPasswordFunc = term.ReadPassword // mockable
	migrateFunc      = database.Migrate  // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	db         *sqlx.DB
	usrSvc     *user.Service
	diplomaSvc *diploma.Service
	out        io.Writer
}

func (cli *commandLine) run(args []string) error {
	root := &cobra.Command{
		Use:           "admin",
		Short:         "Congress administration",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_ = cmd.Help()
			return errHelp
		},
	}
	root.SetOut(cli.out)
	root.SetErr(cli.out)
	root.AddCommand(
		cli.migrateCmd(),
		cli.addUserCmd(),
		cli.resetPasswordCmd(),
		cli.diplomasCmd(),
	)
	root.SetArgs(args)
	return root.Execute()
}

func (cli *commandLine) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate <command> [args...]",
		Short: "Run a goose command against the embedded migrations",
		Long: `Commands: up, up-by-one, up-to VERSION, down, down-to VERSION, redo, reset, status, version, fix.
The engine of the configured database selects the migrations directory.`,
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				_ = cmd.Help()
				return errHelp
			}
			return migrateFunc(cli.db, args[0], args[1:]...)
		},
	}
}

func (cli *commandLine) addUserCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "adduser",
		Short: "Create or update a user; the password is prompted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			name, _ := cmd.Flags().GetString("name")
			uname, _ := cmd.Flags().GetString("username")
			email, _ := cmd.Flags().GetString("email")
			isAdmin, _ := cmd.Flags().GetBool("admin")
			if uname == "" || email == "" {
				_ = cmd.Help()
				return errHelp
			}

			pwd, err := cli.promptPassword()
			if err != nil {
				return err
			}
			if pwd == "" {
				_ = cmd.Help()
				return errHelp
			}

			usr, err := cli.usrSvc.AddUser(cmd.Context(), name, uname, email, pwd, isAdmin)
			if err != nil {
				return err
			}
			fmt.Fprintf(cli.out, "user %s (%s) saved\n", usr.Username, usr.ID)
			return nil
		},
	}
	cmd.Flags().String("name", "", "full name (defaults to the username)")
	cmd.Flags().String("username", "", "username")
	cmd.Flags().String("email", "", "email address")
	cmd.Flags().Bool("admin", false, "grant every role")
	return cmd
}

func (cli *commandLine) resetPasswordCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resetpassword",
		Short: "Reset a user's password; the password is prompted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			uname, _ := cmd.Flags().GetString("username")
			if uname == "" {
				_ = cmd.Help()
				return errHelp
			}

			pwd, err := cli.promptPassword()
			if err != nil {
				return err
			}
			if pwd == "" {
				_ = cmd.Help()
				return errHelp
			}
			return cli.usrSvc.SetPassword(cmd.Context(), uname, pwd)
		},
	}
	cmd.Flags().String("username", "", "the user's username or email")
	return cmd
}

func (cli *commandLine) diplomasCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "diplomas",
		Short: "Manage diplomas",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "generate",
		Short: "Issue the diplomas of finished activities & published results",
		Long:  "Safe to run repeatedly (ie: from cron): a diploma is never issued twice.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			report, err := cli.diplomaSvc.Generate(cmd.Context())
			if err != nil {
				return err
			}
			for _, d := range report.Issued {
				fmt.Fprintf(cli.out, "%s\t%s\t%s\n", d.VerificationCode, d.Kind, d.UserName)
			}
			fmt.Fprintf(cli.out, "issued: %d, skipped: %d, failed: %d\n", len(report.Issued), report.Skipped, report.Failed)
			if report.Failed > 0 {
				return errors.Errorf("%d diploma(s) could not be issued", report.Failed)
			}
			return nil
		},
	})
	return cmd
}

func (cli *commandLine) promptPassword() (string, error) {
	fmt.Fprint(cli.out, "Enter password:")
	pwd, err := readPasswordFunc(int(os.Stdin.Fd()))
	fmt.Fprintln(cli.out)
	if err != nil {
		return "", errors.Wrap(err, "reading password")
	}
	return string(pwd), nil
}
