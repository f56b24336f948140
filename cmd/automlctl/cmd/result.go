package cmd

import (
	"encoding/json"
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/kiranshivaraju/automlpro/pkg/models"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var resultCmd = &cobra.Command{
	Use:   "result [job_id]",
	Short: "Show the trained model summary of a completed job",
	Long: `Show the model type, quality metrics, feature importance and sample
predictions the worker recorded for a completed job.

Example:
  automlctl result 3f1c9a2e-...
  automlctl result 3f1c9a2e-... --json`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		token, ok := requireToken(cmd)
		if !ok {
			return
		}
		asJSON, _ := cmd.Flags().GetBool("json")

		client := NewPortalClient(viper.GetString("url"), token)
		res, err := client.GetJobResult(args[0])
		if err != nil {
			if apiErr, ok := err.(*APIError); ok && apiErr.Code == "RESULT_NOT_READY" {
				cmd.Println("No result yet. The job has not completed; check 'automlctl status " + args[0] + "'")
				return
			}
			printAPIError(cmd, "Result", err)
			return
		}

		if asJSON {
			out, _ := json.MarshalIndent(res, "", "  ")
			cmd.Println(string(out))
			return
		}
		printResult(cmd, res)
	},
}

func printResult(cmd *cobra.Command, r *models.JobResult) {
	cmd.Printf("%s %sModel Summary%s\n", statusIcon(string(models.JobStatusCompleted)), colorBold, colorReset)
	cmd.Println("──────────────────────────────")

	cmd.Printf("%sModel:%s       %s\n", colorDim, colorReset, r.ModelType)
	cmd.Printf("%sAccuracy:%s    %.1f%%\n", colorDim, colorReset, r.Accuracy*100)
	cmd.Printf("%sLoss:%s        %.4f\n", colorDim, colorReset, r.Loss)
	cmd.Printf("%sPrecision:%s   %.3f\n", colorDim, colorReset, r.Metrics.Precision)
	cmd.Printf("%sRecall:%s      %.3f\n", colorDim, colorReset, r.Metrics.Recall)
	cmd.Printf("%sF1 score:%s    %.3f\n", colorDim, colorReset, r.Metrics.F1Score)
	cmd.Printf("%sTraining:%s    %.1fs on %d rows\n", colorDim, colorReset, r.TrainingTime, r.DatasetSize)
	if r.ModelSize != "" {
		cmd.Printf("%sSize:%s        %s\n", colorDim, colorReset, r.ModelSize)
	}
	if r.DownloadURL != nil {
		cmd.Printf("%sDownload:%s    %s\n", colorDim, colorReset, *r.DownloadURL)
	}
	if r.APIEndpoint != nil {
		cmd.Printf("%sEndpoint:%s    %s\n", colorDim, colorReset, *r.APIEndpoint)
	}

	if len(r.FeatureImportance) > 0 {
		features := append([]models.FeatureImportance(nil), r.FeatureImportance...)
		sort.SliceStable(features, func(i, j int) bool { return features[i].Importance > features[j].Importance })

		cmd.Printf("\n%sFeature importance:%s\n", colorDim, colorReset)
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		for _, f := range features {
			fmt.Fprintf(tw, "  %s\t%.3f\n", f.Feature, f.Importance)
		}
		tw.Flush()
	}

	if len(r.PredictionsSample) > 0 {
		cmd.Printf("\n%sSample predictions:%s\n", colorDim, colorReset)
		for _, p := range r.PredictionsSample {
			in, _ := json.Marshal(p.Input)
			cmd.Printf("  %s → %v (%.0f%%)\n", in, p.Predicted, p.Confidence*100)
		}
	}
}

func init() {
	resultCmd.Flags().Bool("json", false, "Print the raw result as JSON")

	rootCmd.AddCommand(resultCmd)
}
