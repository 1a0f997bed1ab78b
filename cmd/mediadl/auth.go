package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"golang.org/x/term"
	"mediadl/pkg/auth"
	"mediadl/pkg/ui"
)

var deleteAll bool

// authCmd represents the auth command
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage site session credentials",
	Long: `Manage the session cookies used for pages that need a login, such as
favorites.

Sessions are stored in the system keyring when one is available, otherwise in
an encrypted file. MEDIADL_<SITE>_SESSION environment variables are read as a
last resort.`,
}

var authSetCmd = &cobra.Command{
	Use:   "set <site>",
	Short: "Store a session cookie for a site",
	Example: `  mediadl auth set coomer
  echo "$COOKIE" | mediadl auth set coomer`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr, err := auth.NewManager("")
		if err != nil {
			return err
		}

		site := args[0]
		fmt.Fprintf(os.Stderr, "Session cookie for %s: ", site)
		value, err := readSecret(os.Stdin)
		if err != nil {
			return fmt.Errorf("failed to read session: %w", err)
		}

		if err := mgr.Store(&auth.Session{Site: site, Value: value}); err != nil {
			return err
		}
		ui.PrintSuccess(fmt.Sprintf("Session stored for %s", site))
		return nil
	},
}

var authListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored sessions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr, err := auth.NewManager("")
		if err != nil {
			return err
		}
		sessions, err := mgr.List()
		if err != nil {
			return err
		}

		rows := make([]table.Row, 0, len(sessions))
		for _, s := range sessions {
			masked := auth.SanitizeSession(s)
			modified := "-"
			if !s.LastModified.IsZero() {
				modified = s.LastModified.Format(time.DateTime)
			}
			rows = append(rows, table.Row{masked.Site, masked.Value, modified})
		}
		ui.RenderTable(os.Stdout, table.Row{"Site", "Session", "Modified"}, rows)
		return nil
	},
}

var authDeleteCmd = &cobra.Command{
	Use:   "delete [site]",
	Short: "Remove a stored session",
	Args: func(cmd *cobra.Command, args []string) error {
		if deleteAll {
			return cobra.NoArgs(cmd, args)
		}
		return cobra.ExactArgs(1)(cmd, args)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr, err := auth.NewManager("")
		if err != nil {
			return err
		}

		if deleteAll {
			if err := mgr.DeleteAll(); err != nil {
				return err
			}
			ui.PrintSuccess("All sessions removed")
			return nil
		}

		if err := mgr.Delete(args[0]); err != nil {
			return err
		}
		ui.PrintSuccess(fmt.Sprintf("Session removed for %s", args[0]))
		return nil
	},
}

var authGuideCmd = &cobra.Command{
	Use:   "guide <site>",
	Short: "Explain how to copy a session cookie from the browser",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		auth.WriteSessionGuide(cmd.OutOrStdout(), args[0])
	},
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(authSetCmd)
	authCmd.AddCommand(authListCmd)
	authCmd.AddCommand(authDeleteCmd)
	authCmd.AddCommand(authGuideCmd)

	authDeleteCmd.Flags().BoolVar(&deleteAll, "all", false, "remove every stored session")
}

// readSecret reads one line without echo when r is a terminal
func readSecret(r *os.File) (string, error) {
	if term.IsTerminal(int(r.Fd())) {
		secret, err := term.ReadPassword(int(r.Fd()))
		fmt.Fprintln(os.Stderr)
		if err == nil {
			return strings.TrimSpace(string(secret)), nil
		}
	}
	return readLine(r)
}

func readLine(r io.Reader) (string, error) {
	input, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && (err != io.EOF || input == "") {
		return "", err
	}
	return strings.TrimSpace(input), nil
}
