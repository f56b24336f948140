package cmd

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var submitCmd = &cobra.Command{
	Use:   "submit [prompt]",
	Short: "Submit a training request",
	Long: `Queue a new training job described in plain language.

Example:
  automlctl submit "Classify support tickets by urgency using the ticket text"`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		token, ok := requireToken(cmd)
		if !ok {
			return
		}

		prompt := strings.TrimSpace(strings.Join(args, " "))
		if prompt == "" {
			cmd.Println("Error: prompt must not be empty")
			return
		}

		client := NewPortalClient(viper.GetString("url"), token)
		job, err := client.CreateJob(prompt)
		if err != nil {
			printAPIError(cmd, "Submit", err)
			return
		}

		cmd.Printf("✓ Job submitted!\nJob ID: %s\nStatus: %s\n", job.ID, colorizeStatus(string(job.Status)))
	},
}

func init() {
	rootCmd.AddCommand(submitCmd)
}
