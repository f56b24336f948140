package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/kiranshivaraju/automlpro/pkg/models"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var statusCmd = &cobra.Command{
	Use:   "status [job_id]",
	Short: "Show the status of a job",
	Long:  `Show a job's current state (pending, running, completed, failed), its progress, the latest worker log lines and any error or result summary.`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		token, ok := requireToken(cmd)
		if !ok {
			return
		}
		logLines, _ := cmd.Flags().GetInt("logs")

		client := NewPortalClient(viper.GetString("url"), token)
		job, err := client.GetJob(args[0])
		if err != nil {
			printAPIError(cmd, "Status", err)
			return
		}

		printJob(cmd, job, logLines)
	},
}

func printJob(cmd *cobra.Command, job *models.Job, logLines int) {
	cmd.Printf("%s %sJob Details%s\n", statusIcon(string(job.Status)), colorBold, colorReset)
	cmd.Println("──────────────────────────────")

	cmd.Printf("%sID:%s          %s\n", colorDim, colorReset, job.ID)
	cmd.Printf("%sStatus:%s      %s\n", colorDim, colorReset, colorizeStatus(string(job.Status)))
	cmd.Printf("%sProgress:%s    %s %d%%\n", colorDim, colorReset, progressBar(job.Progress), job.Progress)
	cmd.Printf("%sPrompt:%s      %s\n", colorDim, colorReset, job.Prompt)
	cmd.Printf("%sCreated:%s     %s\n", colorDim, colorReset, formatTimeWithRelative(job.CreatedAt))
	cmd.Printf("%sUpdated:%s     %s\n", colorDim, colorReset, formatTimeWithRelative(job.UpdatedAt))

	if job.ErrorMessage != nil {
		cmd.Printf("%sError:%s       %s%s%s\n", colorDim, colorReset, colorRed, *job.ErrorMessage, colorReset)
	}
	if job.ResultSummary != nil {
		cmd.Printf("%sResult:%s      %s\n", colorDim, colorReset, *job.ResultSummary)
	}

	if logLines > 0 && len(job.Logs) > 0 {
		logs := job.Logs
		if len(logs) > logLines {
			logs = logs[len(logs)-logLines:]
		}
		cmd.Printf("\n%sLogs:%s\n", colorDim, colorReset)
		for _, line := range logs {
			cmd.Printf("  %s\n", line)
		}
	}
}

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorBold   = "\033[1m"
	colorDim    = "\033[2m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
)

func statusIcon(status string) string {
	switch models.JobStatus(status) {
	case models.JobStatusCompleted:
		return colorGreen + "✓" + colorReset
	case models.JobStatusFailed:
		return colorRed + "✗" + colorReset
	case models.JobStatusRunning:
		return colorYellow + "⏳" + colorReset
	case models.JobStatusPending:
		return colorCyan + "◯" + colorReset
	default:
		return "•"
	}
}

func colorizeStatus(status string) string {
	icon := statusIcon(status)
	switch models.JobStatus(status) {
	case models.JobStatusCompleted:
		return icon + " " + colorGreen + status + colorReset
	case models.JobStatusFailed:
		return icon + " " + colorRed + status + colorReset
	case models.JobStatusRunning:
		return icon + " " + colorYellow + status + colorReset
	case models.JobStatusPending:
		return icon + " " + colorCyan + status + colorReset
	default:
		return status
	}
}

func progressBar(pct int) string {
	const width = 20
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	filled := pct * width / 100
	return "[" + strings.Repeat("█", filled) + strings.Repeat("░", width-filled) + "]"
}

func formatTimeWithRelative(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return fmt.Sprintf("%s %s(%s ago)%s", t.Format("Mon, 02 Jan 2006 15:04:05 MST"), colorDim, relativeTime(t), colorReset)
}

func relativeTime(t time.Time) string {
	duration := time.Since(t)

	if duration < time.Minute {
		return fmt.Sprintf("%ds", int(duration.Seconds()))
	} else if duration < time.Hour {
		return fmt.Sprintf("%dm", int(duration.Minutes()))
	} else if duration < 24*time.Hour {
		return fmt.Sprintf("%dh", int(duration.Hours()))
	}
	days := int(duration.Hours() / 24)
	if days == 1 {
		return "1 day"
	}
	return fmt.Sprintf("%d days", days)
}

func init() {
	statusCmd.Flags().Int("logs", 5, "Number of trailing log lines to show (0 hides logs)")

	rootCmd.AddCommand(statusCmd)
}
