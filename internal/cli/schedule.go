package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/neekly/neekly/internal/planner"
)

const dateLayout = "2006-01-02"

// displayTimeLayout is how schedule times are shown in the terminal
const displayTimeLayout = "2006-01-02 15:04"

var (
	// Schedule command flags
	scheduleFile    string
	scheduleFrom    string
	scheduleTo      string
	scheduleTitle   string
	scheduleContent string
	scheduleStart   string
	scheduleEnd     string
	notesText       string
)

// scheduleCmd represents the schedule command
var scheduleCmd = &cobra.Command{
	Use:   "schedule [command]",
	Short: "View and edit your schedule",
	Long: `View and edit your schedule.

Available Commands:
  list      List schedule entries
  add       Add entries from flags or a YAML file
  update    Replace an entry
  delete    Delete an entry
  generate  Turn free-text notes into entries`,
}

var scheduleListCmd = &cobra.Command{
	Use:   "list",
	Short: "List schedule entries",
	Long: `List schedule entries, ordered by start time.

Examples:
  # Everything on the calendar
  neekly schedule list

  # One week
  neekly schedule list --from 2026-10-12 --to 2026-10-18`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		from, to, err := parseRange(scheduleFrom, scheduleTo)
		if err != nil {
			return err
		}
		c, err := mustClient()
		if err != nil {
			return err
		}
		return runScheduleList(commandContext(cmd), c, cmd.OutOrStdout(), from, to)
	},
}

var scheduleAddCmd = &cobra.Command{
	Use:   "add [flags]",
	Short: "Add schedule entries",
	Long: `Add schedule entries, either one from flags or several from a YAML file.
Each YAML document holds one entry:

  title: Design review
  content: Quarterly roadmap
  startTime: 2026-10-14T14:00:00+09:00
  endTime: 2026-10-14T15:30:00+09:00

Values may reference environment variables as {{ .ENV.NAME }}.

Examples:
  neekly schedule add --title "Design review" --start "2026-10-14 14:00" --end "2026-10-14 15:30"
  neekly schedule add -f week.yaml`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		inputs, err := scheduleInputs("")
		if err != nil {
			return err
		}
		c, err := mustClient()
		if err != nil {
			return err
		}
		return runScheduleAdd(commandContext(cmd), c, cmd.OutOrStdout(), inputs)
	},
}

var scheduleUpdateCmd = &cobra.Command{
	Use:   "update SCHEDULE_UID [flags]",
	Short: "Replace a schedule entry",
	Long: `Replace a schedule entry with the values from flags or a single-document
YAML file. All of title, start and end are required.

Example:
  neekly schedule update 6f1c... --title "Design review" --start "2026-10-14 15:00" --end "2026-10-14 16:00"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		inputs, err := scheduleInputs(args[0])
		if err != nil {
			return err
		}
		if len(inputs) != 1 {
			return errors.New("update takes exactly one schedule")
		}
		c, err := mustClient()
		if err != nil {
			return err
		}
		return runScheduleUpdate(commandContext(cmd), c, cmd.OutOrStdout(), inputs[0])
	},
}

var scheduleDeleteCmd = &cobra.Command{
	Use:   "delete SCHEDULE_UID",
	Short: "Delete a schedule entry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := mustClient()
		if err != nil {
			return err
		}
		return runScheduleDelete(commandContext(cmd), c, cmd.OutOrStdout(), args[0])
	},
}

var scheduleGenerateCmd = &cobra.Command{
	Use:   "generate [flags]",
	Short: "Turn free-text notes into schedule entries",
	Long: `Send free-text notes to the server, which extracts schedule entries from them.
Notes come from --text, a text file given with -f, or standard input.

Examples:
  neekly schedule generate --text "2026-10-14 14:00 design review with the platform team"
  neekly schedule generate -f notes.txt`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		text := notesText
		var err error
		switch {
		case text != "":
		case scheduleFile != "":
			text, err = readNotesFile(scheduleFile)
		default:
			var data []byte
			data, err = io.ReadAll(cmd.InOrStdin())
			text = strings.TrimSpace(string(data))
		}
		if err != nil {
			return err
		}
		if text == "" {
			return errors.New("no notes given")
		}
		c, err := mustClient()
		if err != nil {
			return err
		}
		return runScheduleGenerate(commandContext(cmd), c, cmd.OutOrStdout(), text)
	},
}

func runScheduleList(ctx context.Context, c *Client, w io.Writer, from, to time.Time) error {
	schedules, err := c.Planner.ListSchedules(ctx)
	if err != nil {
		return err
	}
	schedules = filterSchedules(schedules, from, to)
	if jsonOutput {
		return writeJSON(w, schedules)
	}
	printSchedules(w, schedules)
	return nil
}

func runScheduleAdd(ctx context.Context, c *Client, w io.Writer, inputs []planner.ScheduleInput) error {
	var results []map[string]any
	for _, in := range inputs {
		if _, err := c.Planner.AddSchedule(ctx, in); err != nil {
			if jsonOutput {
				results = append(results, map[string]any{"title": in.Title, "created": false, "error": err.Error()})
				writeJSON(w, results)
				return ErrAlreadyHandled
			}
			return fmt.Errorf("%s: %w", in.Title, err)
		}
		results = append(results, map[string]any{"title": in.Title, "created": true})
		if !jsonOutput {
			okLabel.Fprintf(w, "[OK] ")
			fmt.Fprintf(w, "Added: %s (%s)\n", in.Title, in.Start.Local().Format(displayTimeLayout))
		}
	}
	if jsonOutput {
		return writeJSON(w, results)
	}
	return nil
}

func runScheduleUpdate(ctx context.Context, c *Client, w io.Writer, in planner.ScheduleInput) error {
	if _, err := c.Planner.UpdateSchedule(ctx, in); err != nil {
		return err
	}
	if jsonOutput {
		return writeJSON(w, map[string]any{"result": 1, "scheduleUid": in.UID})
	}
	okLabel.Fprintf(w, "[OK] ")
	fmt.Fprintf(w, "Updated: %s\n", in.UID)
	return nil
}

func runScheduleDelete(ctx context.Context, c *Client, w io.Writer, uid string) error {
	if err := c.Planner.DeleteSchedule(ctx, uid); err != nil {
		return err
	}
	if jsonOutput {
		return writeJSON(w, map[string]any{"result": 1, "scheduleUid": uid})
	}
	okLabel.Fprintf(w, "[OK] ")
	fmt.Fprintf(w, "Deleted: %s\n", uid)
	return nil
}

func runScheduleGenerate(ctx context.Context, c *Client, w io.Writer, text string) error {
	schedules, err := c.Planner.GenerateSchedules(ctx, text)
	if err != nil {
		return err
	}
	if jsonOutput {
		if schedules == nil {
			schedules = []planner.Schedule{}
		}
		return writeJSON(w, schedules)
	}
	okLabel.Fprintln(w, "✓ Notes sent")
	if len(schedules) > 0 {
		printSchedules(w, schedules)
	}
	return nil
}

// scheduleInputs builds the schedules to send from -f or the field flags.
// A non-empty uid is applied to every input.
func scheduleInputs(uid string) ([]planner.ScheduleInput, error) {
	var inputs []planner.ScheduleInput
	if scheduleFile != "" {
		var err error
		inputs, err = LoadSchedulesFromMultiYAMLFile(scheduleFile)
		if err != nil {
			return nil, err
		}
	} else {
		in, err := scheduleFromFlags(scheduleTitle, scheduleContent, scheduleStart, scheduleEnd)
		if err != nil {
			return nil, err
		}
		inputs = []planner.ScheduleInput{in}
	}
	if uid != "" {
		for i := range inputs {
			inputs[i].UID = uid
		}
	}
	return inputs, nil
}

func scheduleFromFlags(title, content, start, end string) (planner.ScheduleInput, error) {
	if title == "" || start == "" {
		return planner.ScheduleInput{}, errors.New("--title and --start are required, or use -f")
	}
	s, err := parseLocalTime(start)
	if err != nil {
		return planner.ScheduleInput{}, fmt.Errorf("invalid --start: %w", err)
	}
	e := s.Add(planner.DefaultDuration)
	if end != "" {
		if e, err = parseLocalTime(end); err != nil {
			return planner.ScheduleInput{}, fmt.Errorf("invalid --end: %w", err)
		}
	}
	return planner.ScheduleInput{Title: title, Content: content, Start: s, End: e}, nil
}

// parseLocalTime accepts RFC 3339 or a local "YYYY-MM-DD HH:MM".
func parseLocalTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.ParseInLocation(displayTimeLayout, s, time.Local)
}

// parseRange parses optional inclusive dates. The returned end is the start
// of the day after to.
func parseRange(from, to string) (time.Time, time.Time, error) {
	var start, end time.Time
	var err error
	if from != "" {
		if start, err = time.ParseInLocation(dateLayout, from, time.Local); err != nil {
			return start, end, fmt.Errorf("invalid --from: %w", err)
		}
	}
	if to != "" {
		if end, err = time.ParseInLocation(dateLayout, to, time.Local); err != nil {
			return start, end, fmt.Errorf("invalid --to: %w", err)
		}
		end = end.AddDate(0, 0, 1)
	}
	if !start.IsZero() && !end.IsZero() && !end.After(start) {
		return start, end, errors.New("--to is before --from")
	}
	return start, end, nil
}

// filterSchedules keeps entries overlapping [from, to) and sorts them by start.
// Zero bounds are open.
func filterSchedules(schedules []planner.Schedule, from, to time.Time) []planner.Schedule {
	out := make([]planner.Schedule, 0, len(schedules))
	for _, s := range schedules {
		if !from.IsZero() && !s.End.After(from) {
			continue
		}
		if !to.IsZero() && !s.Start.Before(to) {
			continue
		}
		out = append(out, s)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out
}

func printSchedules(w io.Writer, schedules []planner.Schedule) {
	if len(schedules) == 0 {
		fmt.Fprintln(w, "No schedules")
		return
	}
	fmt.Fprintf(w, "%-16s  %-16s  %-36s  %s\n", "START", "END", "UID", "TITLE")
	for _, s := range schedules {
		start, end := s.Start.Local().Format(displayTimeLayout), s.End.Local().Format(displayTimeLayout)
		if s.IsAllDay {
			start, end = s.Start.Local().Format(dateLayout), "all day"
		}
		title := s.Title
		if s.MainCategory != "" {
			title = fmt.Sprintf("%s [%s]", title, titleCase.String(s.MainCategory))
		}
		fmt.Fprintf(w, "%-16s  %-16s  %-36s  %s\n", start, end, s.UID, title)
	}
}

func init() {
	scheduleListCmd.Flags().StringVar(&scheduleFrom, "from", "", "First day to show (YYYY-MM-DD)")
	scheduleListCmd.Flags().StringVar(&scheduleTo, "to", "", "Last day to show (YYYY-MM-DD)")

	for _, cmd := range []*cobra.Command{scheduleAddCmd, scheduleUpdateCmd} {
		cmd.Flags().StringVarP(&scheduleFile, "filename", "f", "", "YAML file with schedule documents")
		cmd.Flags().StringVar(&scheduleTitle, "title", "", "Title")
		cmd.Flags().StringVar(&scheduleContent, "content", "", "Description")
		cmd.Flags().StringVar(&scheduleStart, "start", "", `Start time ("YYYY-MM-DD HH:MM" or RFC 3339)`)
		cmd.Flags().StringVar(&scheduleEnd, "end", "", "End time, default one hour after start")
	}

	scheduleGenerateCmd.Flags().StringVarP(&scheduleFile, "filename", "f", "", "Text file with notes")
	scheduleGenerateCmd.Flags().StringVar(&notesText, "text", "", "Notes")

	scheduleCmd.AddCommand(scheduleListCmd)
	scheduleCmd.AddCommand(scheduleAddCmd)
	scheduleCmd.AddCommand(scheduleUpdateCmd)
	scheduleCmd.AddCommand(scheduleDeleteCmd)
	scheduleCmd.AddCommand(scheduleGenerateCmd)
	rootCmd.AddCommand(scheduleCmd)
}
