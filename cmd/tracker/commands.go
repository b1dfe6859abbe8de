package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"maps"
	"slices"
	"text/tabwriter"
	"time"

	"github.com/rossigee/jobtracker/internal/tracker"
	pkgerrors "github.com/rossigee/jobtracker/pkg/errors"
	"github.com/rossigee/jobtracker/pkg/types"
)

const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

const timeLayout = "2006-01-02 15:04:05"

type usageError struct {
	msg string
}

func (e *usageError) Error() string { return e.msg }

type command struct {
	name    string
	summary string
	run     func(ctx context.Context, c *cli, args []string) error
}

var commands = []command{
	{"add", "record a new application (-company, -role, -link)", runAdd},
	{"show", "show one application and its latest status (-id)", runShow},
	{"list", "list applications oldest first (-company, -limit, -offset)", runList},
	{"status", "append a status change (-id, -status)", runStatus},
	{"outreach", "record an outreach attempt (-id, -channel, -type)", runOutreach},
	{"history", "show status and outreach history (-id)", runHistory},
	{"delete", "delete an application that has no history (-id)", runDelete},
}

type cli struct {
	svc    *tracker.Service
	out    io.Writer
	errOut io.Writer
}

func printUsage(w io.Writer) {
	_, _ = fmt.Fprintln(w, "Usage: tracker <command> [flags]")
	_, _ = fmt.Fprintln(w)
	_, _ = fmt.Fprintln(w, "Commands:")
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, cmd := range commands {
		_, _ = fmt.Fprintf(tw, "  %s\t%s\n", cmd.name, cmd.summary)
	}
	_ = tw.Flush()
}

// execute runs one command and maps its outcome to an exit code
func (c *cli) execute(ctx context.Context, args []string) int {
	idx := slices.IndexFunc(commands, func(cmd command) bool { return cmd.name == args[0] })
	if idx < 0 {
		_, _ = fmt.Fprintf(c.errOut, "unknown command %q\n\n", args[0])
		printUsage(c.errOut)
		return exitUsage
	}

	err := commands[idx].run(ctx, c, args[1:])
	var usageErr *usageError
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, flag.ErrHelp):
		return exitOK
	case errors.As(err, &usageErr):
		_, _ = fmt.Fprintf(c.errOut, "%s: %s\n", args[0], usageErr.msg)
		return exitUsage
	}

	c.printError(err)
	return exitFailure
}

func (c *cli) printError(err error) {
	_, _ = fmt.Fprintf(c.errOut, "error: %v\n", err)
	if typed := pkgerrors.As(err); typed != nil {
		details := typed.Details()
		for _, field := range slices.Sorted(maps.Keys(details)) {
			_, _ = fmt.Fprintf(c.errOut, "  %s: %s\n", field, details[field])
		}
	}
}

func (c *cli) flagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(c.errOut)
	return fs
}

// parse parses args and fails when a required flag was not given
func parse(fs *flag.FlagSet, args []string, required ...string) error {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return err
		}
		return &usageError{msg: err.Error()}
	}
	if fs.NArg() > 0 {
		return &usageError{msg: fmt.Sprintf("unexpected argument %q", fs.Arg(0))}
	}
	seen := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { seen[f.Name] = true })
	for _, name := range required {
		if !seen[name] {
			return &usageError{msg: fmt.Sprintf("-%s is required", name)}
		}
	}
	return nil
}

func runAdd(ctx context.Context, c *cli, args []string) error {
	fs := c.flagSet("add")
	company := fs.String("company", "", "company name")
	role := fs.String("role", "", "role title")
	link := fs.String("link", "", "job posting URL")
	if err := parse(fs, args); err != nil {
		return err
	}

	app, err := c.svc.CreateApplication(ctx, types.CreateApplicationRequest{
		Company:         *company,
		Role:            *role,
		ApplicationLink: *link,
	})
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(c.out, "created application %d\n", app.ID)
	return err
}

func runShow(ctx context.Context, c *cli, args []string) error {
	fs := c.flagSet("show")
	id := fs.Int64("id", 0, "application id")
	if err := parse(fs, args, "id"); err != nil {
		return err
	}

	app, err := c.svc.GetApplication(ctx, *id)
	if err != nil {
		return err
	}
	latest, ok, err := c.svc.LatestStatus(ctx, *id)
	if err != nil {
		return err
	}

	status := "-"
	if ok {
		status = fmt.Sprintf("%s (%s)", latest.Status, formatTime(latest.Timestamp))
	}

	tw := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(tw, "ID:\t%d\n", app.ID)
	_, _ = fmt.Fprintf(tw, "Company:\t%s\n", app.Company)
	_, _ = fmt.Fprintf(tw, "Role:\t%s\n", app.Role)
	_, _ = fmt.Fprintf(tw, "Link:\t%s\n", orDash(app.Link()))
	_, _ = fmt.Fprintf(tw, "Created:\t%s\n", formatTime(app.CreatedAt))
	_, _ = fmt.Fprintf(tw, "Status:\t%s\n", status)
	return tw.Flush()
}

func runList(ctx context.Context, c *cli, args []string) error {
	fs := c.flagSet("list")
	company := fs.String("company", "", "only applications at this company (case-insensitive)")
	limit := fs.Int("limit", 0, "maximum rows to return (default 100)")
	offset := fs.Int("offset", 0, "rows to skip")
	if err := parse(fs, args); err != nil {
		return err
	}
	if *limit < 0 || *offset < 0 {
		return &usageError{msg: "-limit and -offset must not be negative"}
	}

	apps, err := c.svc.ListApplications(ctx, types.ListApplicationsFilter{
		Company: *company,
		Limit:   *limit,
		Offset:  *offset,
	})
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tCOMPANY\tROLE\tCREATED\tLINK")
	for _, app := range apps {
		_, _ = fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n",
			app.ID, app.Company, app.Role, formatTime(app.CreatedAt), orDash(app.Link()))
	}
	return tw.Flush()
}

func runStatus(ctx context.Context, c *cli, args []string) error {
	fs := c.flagSet("status")
	id := fs.Int64("id", 0, "application id")
	status := fs.String("status", "", "new status label")
	if err := parse(fs, args, "id"); err != nil {
		return err
	}

	entry, err := c.svc.AppendStatus(ctx, types.AppendStatusRequest{ApplicationID: *id, Status: *status})
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(c.out, "application %d is now %q\n", entry.ApplicationID, entry.Status)
	return err
}

func runOutreach(ctx context.Context, c *cli, args []string) error {
	fs := c.flagSet("outreach")
	id := fs.Int64("id", 0, "application id")
	channel := fs.String("channel", "", "how the contact was made, e.g. email or linkedin")
	outreachType := fs.String("type", string(types.OutreachInitial), "initial or follow_up")
	if err := parse(fs, args, "id"); err != nil {
		return err
	}

	event, err := c.svc.RecordOutreach(ctx, types.RecordOutreachRequest{
		ApplicationID: *id,
		Channel:       *channel,
		OutreachType:  types.OutreachType(*outreachType),
	})
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(c.out, "recorded %s outreach via %s for application %d\n",
		event.OutreachType, event.Channel, event.ApplicationID)
	return err
}

func runHistory(ctx context.Context, c *cli, args []string) error {
	fs := c.flagSet("history")
	id := fs.Int64("id", 0, "application id")
	if err := parse(fs, args, "id"); err != nil {
		return err
	}

	statuses, err := c.svc.GetStatusHistory(ctx, *id)
	if err != nil {
		return err
	}
	events, err := c.svc.GetOutreachHistory(ctx, *id)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "Status history:")
	_, _ = fmt.Fprintln(tw, "WHEN\tSTATUS")
	for _, entry := range statuses {
		_, _ = fmt.Fprintf(tw, "%s\t%s\n", formatTime(entry.Timestamp), entry.Status)
	}
	_, _ = fmt.Fprintln(tw)
	_, _ = fmt.Fprintln(tw, "Outreach:")
	_, _ = fmt.Fprintln(tw, "WHEN\tTYPE\tCHANNEL")
	for _, event := range events {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\n", formatTime(event.Timestamp), event.OutreachType, event.Channel)
	}
	return tw.Flush()
}

func runDelete(ctx context.Context, c *cli, args []string) error {
	fs := c.flagSet("delete")
	id := fs.Int64("id", 0, "application id")
	if err := parse(fs, args, "id"); err != nil {
		return err
	}

	if err := c.svc.DeleteApplication(ctx, *id); err != nil {
		return err
	}
	_, err := fmt.Fprintf(c.out, "deleted application %d\n", *id)
	return err
}

func formatTime(t time.Time) string {
	return t.Local().Format(timeLayout)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
