package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const promptColumnWidth = 48

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "List your training jobs",
	Long: `List your jobs, newest first, with a count per status.

Example:
  automlctl jobs
  automlctl jobs --status failed
  automlctl jobs --search churn --limit 5`,
	Run: func(cmd *cobra.Command, args []string) {
		token, ok := requireToken(cmd)
		if !ok {
			return
		}

		flags := cmd.Flags()
		status, _ := flags.GetString("status")
		search, _ := flags.GetString("search")
		limit, _ := flags.GetInt("limit")

		client := NewPortalClient(viper.GetString("url"), token)
		list, err := client.ListJobs(status, search, limit)
		if err != nil {
			printAPIError(cmd, "List jobs", err)
			return
		}

		if len(list.Jobs) == 0 {
			cmd.Println("No jobs found")
		} else {
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tSTATUS\tPROGRESS\tCREATED\tPROMPT")
			for _, j := range list.Jobs {
				fmt.Fprintf(tw, "%s\t%s\t%d%%\t%s ago\t%s\n",
					j.ID, j.Status, j.Progress, relativeTime(j.CreatedAt), truncate(j.Prompt, promptColumnWidth))
			}
			tw.Flush()
		}

		s := list.Stats
		cmd.Printf("\n%d shown of %d matching · %d total: %d pending, %d running, %d completed, %d failed\n",
			len(list.Jobs), list.Total, s.Total, s.Pending, s.Running, s.Completed, s.Failed)
	},
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func init() {
	flags := jobsCmd.Flags()
	flags.StringP("status", "s", "", "Only show jobs in this status (pending, running, completed, failed)")
	flags.StringP("search", "q", "", "Only show jobs whose prompt contains this text")
	flags.Int("limit", 0, "Maximum number of jobs to show (server default when 0)")

	rootCmd.AddCommand(jobsCmd)
}
