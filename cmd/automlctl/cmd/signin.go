package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var signinCmd = &cobra.Command{
	Use:   "signin",
	Short: "Sign in and print an access token",
	Long: `Exchange an email and password for an access token.

Example:
  automlctl signin --email you@example.com --password 'correct-horse'`,
	Run: func(cmd *cobra.Command, args []string) {
		flags := cmd.Flags()
		email, _ := flags.GetString("email")
		password, _ := flags.GetString("password")

		if email == "" {
			cmd.Println("Error: --email is required")
			return
		}
		if password == "" {
			cmd.Println("Error: --password is required")
			return
		}

		client := NewPortalClient(viper.GetString("url"), "")
		sess, err := client.SignIn(email, password)
		if err != nil {
			printAPIError(cmd, "Sign in", err)
			return
		}

		cmd.Printf("✓ Signed in as %s (%s plan)\n", sess.User.Email, sess.User.PlanType)
		cmd.Printf("Token expires %s\n\n", sess.ExpiresAt.Local().Format("Mon, 02 Jan 2006 15:04 MST"))
		cmd.Printf("export AUTOMLCTL_TOKEN=%s\n", sess.Token)
	},
}

func init() {
	flags := signinCmd.Flags()
	flags.StringP("email", "e", "", "Account email (required)")
	flags.StringP("password", "p", "", "Account password (required)")

	rootCmd.AddCommand(signinCmd)
}
