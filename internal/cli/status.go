package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/neekly/neekly/internal/client/session"
)

// StatusResponse is the JSON form of the status command output
type StatusResponse struct {
	ServerURL   string     `json:"serverURL"`
	Reachable   bool       `json:"reachable"`
	ServerError string     `json:"serverError,omitempty"`
	SignedIn    bool       `json:"signedIn"`
	Email       string     `json:"email,omitempty"`
	UserName    string     `json:"userName,omitempty"`
	ExpiresAt   *time.Time `json:"expiresAt,omitempty"`
	Expired     bool       `json:"expired"`
	NeedsRenew  bool       `json:"needsRefresh"`
	HasCookie   bool       `json:"hasRefreshCookie"`
}

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check the server and the stored session",
	Long: `Check whether the server is reachable and report the stored session: who is
signed in, when the access token expires and whether a refresh cookie is held.
No token refresh is attempted.

Examples:
  # Get status
  neekly status

  # Get status in JSON format
  neekly status -j`,
	RunE: getStatus,
}

// getStatus handles retrieving server and session status
func getStatus(cmd *cobra.Command, args []string) error {
	cfg, err := ReadConfig(configFile)
	if err != nil {
		if jsonOutput {
			kv := map[string]string{
				"version_cli": getCLIVersion(),
				"error":       "Config file cannot be loaded: " + err.Error(),
			}
			printJSON(kv)
		} else {
			fmt.Printf("neekly CLI %s\n", getCLIVersion())
			fmt.Println("Error: Config file cannot be loaded: " + err.Error())
		}
		return ErrAlreadyHandled
	}

	c, err := NewClient(cfg)
	if err != nil {
		return err
	}
	return runStatus(commandContext(cmd), c, cmd.OutOrStdout())
}

func collectStatus(ctx context.Context, c *Client) StatusResponse {
	st := StatusResponse{
		ServerURL:  c.Config.GetServerURL(),
		SignedIn:   c.Store.IsPresent(),
		Expired:    c.Store.IsExpired(),
		NeedsRenew: c.Store.NeedsRefresh(),
		HasCookie:  c.Jar.Len() > 0,
	}

	ctx, cancel := c.withRequestTimeout(ctx)
	defer cancel()
	if err := c.AuthAPI.Health(ctx); err != nil {
		st.ServerError = err.Error()
	} else {
		st.Reachable = true
	}

	if id, ok := c.Store.Identity(); ok {
		st.Email = id.Email
		st.UserName = id.UserName
	}
	if exp, ok := c.Store.Expiry(); ok {
		st.ExpiresAt = &exp
	}
	return st
}

func runStatus(ctx context.Context, c *Client, w io.Writer) error {
	st := collectStatus(ctx, c)

	if jsonOutput {
		return writeJSON(w, map[string]any{
			"result":      1,
			"version_cli": getCLIVersion(),
			"value":       st,
		})
	}

	fmt.Fprintf(w, "neekly CLI %s\n", getCLIVersion())
	printStatusPretty(w, st)
	return nil
}

// printStatusPretty prints the status information in a human-readable format
func printStatusPretty(w io.Writer, st StatusResponse) {
	fmt.Fprintf(w, "Server: %s\n", st.ServerURL)
	if st.Reachable {
		okLabel.Fprintln(w, "  reachable")
	} else {
		errorLabel.Fprintf(w, "  unreachable: %s\n", st.ServerError)
	}

	fmt.Fprintln(w)
	if !st.SignedIn {
		fmt.Fprintln(w, `Not signed in. Use "neekly login" to sign in.`)
		return
	}
	fmt.Fprintf(w, "Signed in as: %s\n", displayName(session.Identity{Email: st.Email, UserName: st.UserName}))
	if st.ExpiresAt != nil {
		fmt.Fprintf(w, "Token expires: %s\n", st.ExpiresAt.Local().Format("2006-01-02 15:04:05 MST"))
	}
	switch {
	case st.Expired && st.HasCookie:
		warnLabel.Fprintln(w, "Token expired, it will be renewed on the next request")
	case st.Expired:
		errorLabel.Fprintln(w, "Token expired and no refresh cookie is held, sign in again")
	case st.NeedsRenew:
		warnLabel.Fprintln(w, "Token expires soon, it will be renewed on the next request")
	}
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
