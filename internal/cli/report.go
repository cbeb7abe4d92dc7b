package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"sigs.k8s.io/yaml"

	"github.com/neekly/neekly/internal/planner"
)

var titleCase = cases.Title(language.English)

var (
	// Report command flags
	reportStart string
	reportEnd   string
	reportType  string
	reportRaw   bool
)

// reportCmd represents the report command
var reportCmd = &cobra.Command{
	Use:   "report [command]",
	Short: "Request and read weekly reports",
	Long: `Request and read weekly reports.

Available Commands:
  list    List reports
  show    Show a report
  create  Request a report for a date range
  chat    Ask the weekly schedule assistant`,
}

var reportListCmd = &cobra.Command{
	Use:   "list",
	Short: "List reports",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := mustClient()
		if err != nil {
			return err
		}
		return runReportList(commandContext(cmd), c, cmd.OutOrStdout())
	},
}

var reportShowCmd = &cobra.Command{
	Use:   "show REPORT_UID",
	Short: "Show a report",
	Long: `Show a report and its content. With --raw the server's response is printed as YAML.

Example:
  neekly report show 1792141200000`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := mustClient()
		if err != nil {
			return err
		}
		return runReportShow(commandContext(cmd), c, cmd.OutOrStdout(), args[0], reportRaw)
	},
}

var reportCreateCmd = &cobra.Command{
	Use:   "create [flags]",
	Short: "Request a report for a date range",
	Long: `Request a weekly report. Without dates the current week, Monday to Sunday,
is used. The type is "summary" or "record".

Examples:
  neekly report create
  neekly report create --start 2026-10-12 --end 2026-10-18 --type record`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := reportRequest(reportStart, reportEnd, reportType, time.Now())
		if err != nil {
			return err
		}
		c, err := mustClient()
		if err != nil {
			return err
		}
		return runReportCreate(commandContext(cmd), c, cmd.OutOrStdout(), req)
	},
}

var reportChatCmd = &cobra.Command{
	Use:   "chat [MESSAGE]",
	Short: "Ask the weekly schedule assistant",
	Long: `Ask the weekly schedule assistant a question. The message is read from standard
input when not given as an argument. Answers can take several minutes.

Example:
  neekly report chat "What took most of my time this week?"`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var message string
		if len(args) == 1 {
			message = args[0]
		} else {
			data, err := io.ReadAll(cmd.InOrStdin())
			if err != nil {
				return err
			}
			message = string(data)
		}
		message = strings.TrimSpace(message)
		if message == "" {
			return errors.New("no message given")
		}
		c, err := mustClient()
		if err != nil {
			return err
		}
		return runReportChat(commandContext(cmd), c, cmd.OutOrStdout(), message)
	},
}

func runReportList(ctx context.Context, c *Client, w io.Writer) error {
	reports, err := c.Planner.ListReports(ctx)
	if err != nil {
		return err
	}
	if jsonOutput {
		return writeJSON(w, reports)
	}
	if len(reports) == 0 {
		fmt.Fprintln(w, "No reports")
		return nil
	}
	fmt.Fprintf(w, "%-20s  %-10s  %-8s  %-8s  %s\n", "ID", "DATE", "TYPE", "STATUS", "TITLE")
	for _, r := range reports {
		fmt.Fprintf(w, "%-20s  %-10s  %-8s  %s  %s\n", r.ID, r.Date, titleCase.String(string(r.Type)), statusLabel(r.Status), r.Title)
	}
	return nil
}

func runReportShow(ctx context.Context, c *Client, w io.Writer, uid string, raw bool) error {
	r, err := c.Planner.GetReport(ctx, uid)
	if err != nil {
		return err
	}
	if jsonOutput {
		return writeJSON(w, r)
	}
	if raw {
		data, err := jsoniter.Marshal(r.Raw)
		if err != nil {
			return fmt.Errorf("failed to encode report: %w", err)
		}
		out, err := yaml.JSONToYAML(data)
		if err != nil {
			return fmt.Errorf("failed to convert report to YAML: %w", err)
		}
		_, err = w.Write(out)
		return err
	}

	fmt.Fprintf(w, "%s\n", r.Title)
	fmt.Fprintf(w, "ID: %s  Date: %s  Type: %s  Status: %s\n", r.ID, r.Date, titleCase.String(string(r.Type)), statusLabel(r.Status))
	if r.Content != "" {
		fmt.Fprintln(w)
		fmt.Fprintln(w, r.Content)
	}
	return nil
}

func runReportCreate(ctx context.Context, c *Client, w io.Writer, req planner.ReportRequest) error {
	r, err := c.Planner.CreateReport(ctx, req)
	if err != nil {
		return err
	}
	if jsonOutput {
		return writeJSON(w, r)
	}
	okLabel.Fprintf(w, "[OK] ")
	fmt.Fprintf(w, "Requested: %s (%s)\n", r.Title, r.ID)
	return nil
}

func runReportChat(ctx context.Context, c *Client, w io.Writer, message string) error {
	reply, err := c.Planner.Chat(ctx, message)
	if err != nil {
		return err
	}
	if jsonOutput {
		return writeJSON(w, map[string]string{"reply": reply})
	}
	fmt.Fprintln(w, reply)
	return nil
}

// reportRequest fills in the current week for missing dates.
func reportRequest(start, end, typ string, now time.Time) (planner.ReportRequest, error) {
	weekStart, weekEnd := weekOf(now)
	if start == "" {
		start = weekStart.Format(dateLayout)
	}
	if end == "" {
		end = weekEnd.Format(dateLayout)
	}
	if start > end {
		return planner.ReportRequest{}, errors.New("--end is before --start")
	}
	return planner.ReportRequest{
		StartDate: start,
		EndDate:   end,
		Type:      planner.ReportType(strings.ToLower(typ)),
	}, nil
}

// weekOf returns the Monday and Sunday of the week containing t.
func weekOf(t time.Time) (time.Time, time.Time) {
	offset := (int(t.Weekday()) + 6) % 7
	monday := time.Date(t.Year(), t.Month(), t.Day()-offset, 0, 0, 0, 0, t.Location())
	return monday, monday.AddDate(0, 0, 6)
}

func statusLabel(s planner.ReportStatus) string {
	text := fmt.Sprintf("%-8s", titleCase.String(string(s)))
	switch s {
	case planner.StatusComplete:
		return okLabel.Sprint(text)
	case planner.StatusError:
		return errorLabel.Sprint(text)
	default:
		return warnLabel.Sprint(text)
	}
}

func init() {
	reportShowCmd.Flags().BoolVar(&reportRaw, "raw", false, "Print the server response as YAML")

	reportCreateCmd.Flags().StringVar(&reportStart, "start", "", "First day (YYYY-MM-DD), default this Monday")
	reportCreateCmd.Flags().StringVar(&reportEnd, "end", "", "Last day (YYYY-MM-DD), default this Sunday")
	reportCreateCmd.Flags().StringVar(&reportType, "type", string(planner.ReportSummary), "Report type: summary or record")

	reportCmd.AddCommand(reportListCmd)
	reportCmd.AddCommand(reportShowCmd)
	reportCmd.AddCommand(reportCreateCmd)
	reportCmd.AddCommand(reportChatCmd)
	rootCmd.AddCommand(reportCmd)
}
