package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/neekly/neekly/internal/client/clienterrors"
	"github.com/neekly/neekly/internal/client/session"
)

// newLoginCmd creates and returns a new login command
func newLoginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in to the neekly server",
		Long: `Sign in to the neekly server. The access token and user info are stored in the
session file and the refresh cookie in the cookie file, so later commands stay
signed in and renew the token on their own.

The password is taken from --password, then NEEKLY_PASSWORD (also read from
.env), and is otherwise read from standard input.

Example:
  neekly login --email jane@example.com
  NEEKLY_PASSWORD=s3cret neekly login --email jane@example.com`,
		RunE: func(cmd *cobra.Command, args []string) error {
			email, _ := cmd.Flags().GetString("email")
			password, _ := cmd.Flags().GetString("password")
			in := bufio.NewReader(cmd.InOrStdin())

			var err error
			if email == "" {
				if email, err = prompt(cmd.ErrOrStderr(), in, "Email: "); err != nil {
					return err
				}
			}
			if password == "" {
				password = os.Getenv(EnvPassword)
			}
			if password == "" {
				if password, err = prompt(cmd.ErrOrStderr(), in, "Password: "); err != nil {
					return err
				}
			}

			c, err := mustClient()
			if err != nil {
				return err
			}
			return runLogin(commandContext(cmd), c, cmd.OutOrStdout(), email, password)
		},
	}

	cmd.Flags().String("email", "", "Email address of the account")
	cmd.Flags().String("password", "", "Password for authentication")
	return cmd
}

// runLogin signs in and reports the new session
func runLogin(ctx context.Context, c *Client, w io.Writer, email, password string) error {
	if email == "" || password == "" {
		return errors.New("email and password are required")
	}
	ctx, cancel := c.withRequestTimeout(ctx)
	defer cancel()
	s, err := c.Auth.Login(ctx, email, password)
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	expiry, hasExpiry := session.DecodeExpiry(s.AccessToken)
	if jsonOutput {
		kv := map[string]any{
			"status":   "success",
			"message":  "Login successful",
			"email":    s.Identity.Email,
			"userName": s.Identity.UserName,
		}
		if hasExpiry {
			kv["expires_at"] = expiry.Format(time.RFC3339)
		}
		return writeJSON(w, kv)
	}

	okLabel.Fprintln(w, "✓ Login successful")
	fmt.Fprintf(w, "Signed in as %s\n", displayName(s.Identity))
	if hasExpiry {
		fmt.Fprintf(w, "Token expires at: %s\n", expiry.Local().Format(time.RFC3339))
	}
	return nil
}

// newLogoutCmd creates and returns a new logout command
func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and forget the stored session",
		Long: `Sign out of the neekly server. The local session is removed even when the
server cannot be reached.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := mustClient()
			if err != nil {
				return err
			}
			return runLogout(commandContext(cmd), c, cmd.OutOrStdout())
		},
	}
}

func runLogout(ctx context.Context, c *Client, w io.Writer) error {
	ctx, cancel := c.withRequestTimeout(ctx)
	defer cancel()
	c.Auth.Logout(ctx)
	if err := c.Jar.Clear(); err != nil {
		return err
	}
	if jsonOutput {
		return writeJSON(w, map[string]int{"result": 1})
	}
	okLabel.Fprintln(w, "✓ Signed out")
	return nil
}

// newRegisterCmd creates and returns a new register command
func newRegisterCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create a neekly account",
		Long: `Create a neekly account. Sign in afterwards with "neekly login".

Example:
  neekly register --email jane@example.com --name Jane`,
		RunE: func(cmd *cobra.Command, args []string) error {
			email, _ := cmd.Flags().GetString("email")
			name, _ := cmd.Flags().GetString("name")
			password, _ := cmd.Flags().GetString("password")
			if password == "" {
				password = os.Getenv(EnvPassword)
			}
			if password == "" {
				var err error
				password, err = prompt(cmd.ErrOrStderr(), bufio.NewReader(cmd.InOrStdin()), "Password: ")
				if err != nil {
					return err
				}
			}

			c, err := mustClient()
			if err != nil {
				return err
			}
			return runRegister(commandContext(cmd), c, cmd.OutOrStdout(), email, password, name)
		},
	}

	cmd.Flags().String("email", "", "Email address of the new account")
	cmd.Flags().String("name", "", "Display name")
	cmd.Flags().String("password", "", "Password of the new account")
	cmd.MarkFlagRequired("email")
	return cmd
}

func runRegister(ctx context.Context, c *Client, w io.Writer, email, password, name string) error {
	if password == "" {
		return errors.New("password is required")
	}
	ctx, cancel := c.withRequestTimeout(ctx)
	defer cancel()
	if _, err := c.AuthAPI.Register(ctx, email, password, name); err != nil {
		return err
	}
	if jsonOutput {
		return writeJSON(w, map[string]any{"result": 1, "email": email})
	}
	okLabel.Fprintf(w, "✓ Account created for %s\n", email)
	fmt.Fprintln(w, `Sign in with "neekly login"`)
	return nil
}

// newWhoamiCmd creates and returns a new whoami command
func newWhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := mustClient()
			if err != nil {
				return err
			}
			return runWhoami(c, cmd.OutOrStdout())
		},
	}
}

func runWhoami(c *Client, w io.Writer) error {
	id, ok := c.Auth.CurrentUser()
	if !ok {
		return clienterrors.ErrNotLoggedIn
	}
	if jsonOutput {
		return writeJSON(w, id)
	}
	fmt.Fprintln(w, displayName(id))
	return nil
}

func displayName(id session.Identity) string {
	if id.UserName == "" {
		return id.Email
	}
	return fmt.Sprintf("%s <%s>", id.UserName, id.Email)
}

// prompt writes label to w and reads one line from in.
func prompt(w io.Writer, in *bufio.Reader, label string) (string, error) {
	fmt.Fprint(w, label)
	line, err := in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("unable to read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}

func init() {
	rootCmd.AddCommand(newLoginCmd())
	rootCmd.AddCommand(newLogoutCmd())
	rootCmd.AddCommand(newRegisterCmd())
	rootCmd.AddCommand(newWhoamiCmd())
}
