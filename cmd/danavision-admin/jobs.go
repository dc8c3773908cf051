package main

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/danavision/discovery-go/internal/data"
	"github.com/danavision/discovery-go/internal/domain/model"
	"github.com/danavision/discovery-go/internal/util"
)

type jobInspectOptions struct {
	JobID   string
	RawJSON bool
}

type clearJobHistoryOptions struct {
	Owner string
	Yes   bool
}

func runJobInspect(cmdCtx *commandContext, args []string) error {
	opts, err := parseJobInspectFlags(args)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, time.Minute)
	defer cancel()

	db, redisClient, err := connectInfraWithOptions(&connectInfraOptions{
		Logger:    cmdCtx.Logger,
		Config:    &cmdCtx.Config,
		WantDB:    true,
		WantRedis: false,
	})
	if err != nil {
		return err
	}
	defer func() {
		if cerr := closeInfra(db, redisClient); cerr != nil {
			cmdCtx.Logger.Warn("close infra failed", "error", cerr)
		}
	}()

	repo := data.NewJobRepo(db, data.RepoConfig{Logger: cmdCtx.Logger})
	job, err := repo.GetByID(ctx, opts.JobID)
	if err != nil {
		if errors.Is(err, data.ErrJobNotFound) {
			if writeErr := writef(os.Stdout, "No job found with id %s\n", opts.JobID); writeErr != nil {
				return fmt.Errorf("print missing job notice: %w", writeErr)
			}
			return nil
		}
		return fmt.Errorf("load job %s: %w", opts.JobID, err)
	}

	if opts.RawJSON {
		return printRawJob(job)
	}
	return printJobDetails(&printJobDetailsRequest{Job: job})
}

func runClearJobHistory(cmdCtx *commandContext, args []string) error {
	opts, err := parseClearJobHistoryFlags(args)
	if err != nil {
		return err
	}

	if confirmErr := confirmAction(jobHistoryConfirmOptions{opts}, "clear job history"); confirmErr != nil {
		return confirmErr
	}

	return withDatabase(cmdCtx, time.Minute, func(ctx context.Context, db *sql.DB) error {
		repo := data.NewJobRepo(db, data.RepoConfig{Logger: cmdCtx.Logger})
		deleted, clearErr := repo.ClearHistory(ctx, opts.Owner)
		if clearErr != nil {
			return fmt.Errorf("clear job history: %w", clearErr)
		}
		if writeErr := writef(
			os.Stdout,
			"Deleted %d terminal jobs for owner %q (active jobs are untouched)\n",
			deleted,
			opts.Owner,
		); writeErr != nil {
			return fmt.Errorf("print clear history summary: %w", writeErr)
		}
		return nil
	})
}

func printRawJob(job *model.Job) error {
	encoded, err := json.MarshalIndent(job, "", "  ")
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}
	if writeErr := writef(os.Stdout, "%s\n", encoded); writeErr != nil {
		return fmt.Errorf("print raw job: %w", writeErr)
	}
	return nil
}

type printJobDetailsRequest struct {
	Job *model.Job
}

func printJobDetails(req *printJobDetailsRequest) error {
	if req == nil || req.Job == nil {
		return errors.New("job is required")
	}
	if err := printJobFields(req.Job); err != nil {
		return err
	}
	if err := printJobFailureBanner(req.Job); err != nil {
		return err
	}
	return printJobPayloads(req.Job)
}

func printJobFields(job *model.Job) error {
	if err := writef(os.Stdout, "\nJob Details\n"); err != nil {
		return fmt.Errorf("write job header: %w", err)
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	rows := []struct {
		label string
		value string
	}{
		{"ID", job.ID},
		{"Owner", job.OwnerID},
		{"Type", string(job.Type)},
		{"Status", string(job.Status)},
		{"Priority", fmt.Sprintf("%d", job.Priority)},
		{"Progress", fmt.Sprintf("%d%%", job.Progress)},
		{"Cancel Requested", fmt.Sprintf("%t", job.CancelRequested)},
		{"List ID", orDash(job.ListID)},
		{"Item ID", orDash(job.ItemID)},
		{"Lease Expires", formatOptionalTimestamp(job.LeaseExpiresAt)},
		{"Started", formatOptionalTimestamp(job.StartedAt)},
		{"Completed", formatOptionalTimestamp(job.CompletedAt)},
		{"Processing Time", formatProcessingTime(job)},
		{"Created", formatTimestamp(job.CreatedAt)},
		{"Updated", formatTimestamp(job.UpdatedAt)},
	}
	for _, row := range rows {
		if err := writef(tw, "%s\t%s\n", row.label, row.value); err != nil {
			return fmt.Errorf("write job field %s: %w", row.label, err)
		}
	}
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("flush job fields table: %w", err)
	}
	return nil
}

func printJobFailureBanner(job *model.Job) error {
	if job.Status != model.JobStatusFailed {
		return nil
	}
	message := "(no error message recorded)"
	if job.ErrorMessage != nil && strings.TrimSpace(*job.ErrorMessage) != "" {
		message = *job.ErrorMessage
	}
	if err := writef(os.Stdout, "\nStatus: failed\nError: %s\n", message); err != nil {
		return fmt.Errorf("write job failure status: %w", err)
	}
	if err := writeln(os.Stdout, "The job failed; output may be absent or partial."); err != nil {
		return fmt.Errorf("write job failure warning: %w", err)
	}
	return nil
}

func printJobPayloads(job *model.Job) error {
	if err := writef(os.Stdout, "\nInput:\n%s\n", indentJSON(job.Input)); err != nil {
		return fmt.Errorf("write job input: %w", err)
	}
	if len(job.Output) == 0 {
		if err := writef(os.Stdout, "\nOutput: (none)\n"); err != nil {
			return fmt.Errorf("write empty job output: %w", err)
		}
		return nil
	}
	if err := writef(os.Stdout, "\nOutput:\n%s\n", indentJSON(job.Output)); err != nil {
		return fmt.Errorf("write job output: %w", err)
	}
	return nil
}

// formatProcessingTime reports how long a worker held the job, from reservation
// to the terminal transition. Jobs that never started, or are still running,
// render as "-".
func formatProcessingTime(job *model.Job) string {
	if job.StartedAt == nil || job.CompletedAt == nil {
		return "-"
	}
	return util.FormatProcessingDuration(job.CompletedAt.Sub(*job.StartedAt))
}

func formatOptionalTimestamp(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return formatTimestamp(*t)
}

func orDash(s *string) string {
	if s == nil || *s == "" {
		return "-"
	}
	return *s
}

// --- flag parsing ---

func parseJobInspectFlags(args []string) (jobInspectOptions, error) {
	fs := flag.NewFlagSet("job-inspect", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var opts jobInspectOptions
	fs.StringVar(&opts.JobID, "job-id", "", "Job ID to inspect (required)")
	fs.BoolVar(&opts.RawJSON, "json", false, "Print the job as indented JSON instead of a summary")

	if err := fs.Parse(args); err != nil {
		return jobInspectOptions{}, err
	}

	opts.JobID = strings.TrimSpace(opts.JobID)
	if opts.JobID == "" {
		return jobInspectOptions{}, errors.New("--job-id is required")
	}

	return opts, nil
}

func parseClearJobHistoryFlags(args []string) (clearJobHistoryOptions, error) {
	fs := flag.NewFlagSet("clear-job-history", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var opts clearJobHistoryOptions
	fs.StringVar(&opts.Owner, "owner", "", "Owner whose terminal jobs are deleted (required)")
	fs.BoolVar(&opts.Yes, "yes", false, "Skip confirmation prompt")

	if err := fs.Parse(args); err != nil {
		return clearJobHistoryOptions{}, err
	}

	opts.Owner = strings.TrimSpace(opts.Owner)
	if opts.Owner == "" {
		return clearJobHistoryOptions{}, errors.New("--owner is required")
	}

	return opts, nil
}

type jobHistoryConfirmOptions struct {
	opts clearJobHistoryOptions
}

func (j jobHistoryConfirmOptions) IsDryRun() bool { return false }
func (j jobHistoryConfirmOptions) IsYes() bool    { return j.opts.Yes }
func (j jobHistoryConfirmOptions) GetWarning() string {
	return "WARNING: this permanently deletes completed, failed, and cancelled jobs."
}

func (j jobHistoryConfirmOptions) GetTarget() string {
	return fmt.Sprintf("owner %q", j.opts.Owner)
}

// --- shared io helpers ---

func indentJSON(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "{}"
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return string(raw)
	}
	return buf.String()
}

func writef(w io.Writer, format string, args ...any) error {
	_, err := fmt.Fprintf(w, format, args...)
	return err
}

func write(w io.Writer, args ...any) error {
	_, err := fmt.Fprint(w, args...)
	return err
}

func writeln(w io.Writer, args ...any) error {
	if len(args) == 0 {
		_, err := fmt.Fprintln(w)
		return err
	}
	_, err := fmt.Fprintln(w, args...)
	return err
}
