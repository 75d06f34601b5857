package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// watchInterval — период поллинга статуса в watch.
const watchInterval = 2 * time.Second

// Терминальные статусы job (дублируются из domain, CLI — отдельный клиент).
func isTerminalStatus(status string) bool {
	return status == "COMPLETED" || status == "FAILED"
}

// NewJobCmd создаёт группу команд для управления jobs.
func NewJobCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "job",
		Short: "Manage generation jobs",
	}

	cmd.AddCommand(
		newJobSubmitCmd(clientFn, outputFn),
		newJobListCmd(clientFn, outputFn),
		newJobShowCmd(clientFn, outputFn),
		newJobStatusCmd(clientFn, outputFn),
		newJobWatchCmd(clientFn, outputFn),
	)

	return cmd
}

func newJobSubmitCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var pipeline string
	var inputs []string
	var inputFile string
	var watch bool

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit a new generation job",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			req := CreateJobRequest{Pipeline: pipeline}

			if inputFile != "" {
				data, err := os.ReadFile(inputFile)
				if err != nil {
					return fmt.Errorf("read input file: %w", err)
				}
				if err := json.Unmarshal(data, &req.Input); err != nil {
					return fmt.Errorf("parse input file: %w", err)
				}
			}

			if len(inputs) > 0 {
				if req.Input == nil {
					req.Input = make(map[string]any)
				}
				for _, kv := range inputs {
					parts := strings.SplitN(kv, "=", 2)
					if len(parts) != 2 {
						return fmt.Errorf("invalid input format %q, expected KEY=VALUE", kv)
					}
					req.Input[parts[0]] = parts[1]
				}
			}

			job, err := client.SubmitJob(req)
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Job submitted: %s", job.ID))

			if watch {
				return watchJob(client, out, job.ID)
			}

			out.Print(
				[]string{"ID", "PIPELINE", "STATUS", "CREATED"},
				[][]string{{job.ID, job.Pipeline, job.Status, job.CreatedAt}},
				job,
			)
			return nil
		},
	}

	cmd.Flags().StringVar(&pipeline, "pipeline", "template", "Pipeline name (template, scenes)")
	cmd.Flags().StringSliceVar(&inputs, "input", nil, "Input values as KEY=VALUE (repeatable)")
	cmd.Flags().StringVar(&inputFile, "input-file", "", "JSON file with job input")
	cmd.Flags().BoolVar(&watch, "watch", false, "Watch job progress until it finishes")

	return cmd
}

func newJobListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var status string
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			jobs, err := client.ListJobs(ListJobsOpts{
				Status: status,
				Limit:  limit,
			})
			if err != nil {
				return err
			}

			headers := []string{"ID", "PIPELINE", "STATUS", "OUTPUT", "CREATED"}
			rows := make([][]string, len(jobs))
			for i, j := range jobs {
				rows[i] = []string{j.ID, j.Pipeline, j.Status, j.OutputURL, j.CreatedAt}
			}

			out.Print(headers, rows, jobs)
			return nil
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "Filter by status (PENDING, PROCESSING, COMPLETED, FAILED)")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of results")

	return cmd
}

func newJobShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show job details with stages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			job, err := client.GetJob(args[0])
			if err != nil {
				return err
			}

			headers := []string{"STAGE", "TYPE", "STATUS", "PROGRESS", "ATTEMPT", "ERROR"}
			rows := make([][]string, len(job.Stages))
			for i, s := range job.Stages {
				rows[i] = []string{
					s.Name, s.Type, s.Status,
					strconv.Itoa(s.Progress) + "%",
					strconv.Itoa(s.Attempt),
					s.ErrorMessage,
				}
			}

			out.Success(fmt.Sprintf("Job %s [%s] %s", job.ID, job.Pipeline, job.Status))
			if job.OutputURL != "" {
				out.Success("Output: " + job.OutputURL)
			}
			if job.ErrorMessage != "" {
				out.Success(fmt.Sprintf("Error: %s (%s)", job.ErrorMessage, job.ErrorKind))
			}
			out.Print(headers, rows, job)
			return nil
		},
	}
}

func newJobStatusCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "status ID",
		Short: "Show lightweight job status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			status, err := client.GetJobStatus(args[0])
			if err != nil {
				return err
			}

			out.Print(
				[]string{"JOB_ID", "STATUS", "PROGRESS", "STAGE"},
				[][]string{{status.JobID, status.Status, strconv.Itoa(status.Progress) + "%", status.Stage}},
				status,
			)
			return nil
		},
	}
}

func newJobWatchCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "watch ID",
		Short: "Watch job progress until it finishes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return watchJob(clientFn(), outputFn(), args[0])
		},
	}
}

// watchJob поллит статус job и печатает изменения до терминального статуса.
func watchJob(client *Client, out *Output, jobID string) error {
	var lastLine string

	for {
		status, err := client.GetJobStatus(jobID)
		if err != nil {
			return err
		}

		line := fmt.Sprintf("%s %3d%%", status.Status, status.Progress)
		if status.Stage != "" {
			line += " [" + status.Stage + "]"
		}
		if line != lastLine {
			out.Progress(line)
			lastLine = line
		}

		if isTerminalStatus(status.Status) {
			if status.Status == "FAILED" {
				return fmt.Errorf("job failed: %s (%s)", status.ErrorMessage, status.ErrorKind)
			}
			if status.OutputURL != "" {
				out.Success("Output: " + status.OutputURL)
			}
			return nil
		}

		time.Sleep(watchInterval)
	}
}
