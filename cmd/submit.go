package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/klimatdata/disclosure-pipeline/internal/jobs"
	"github.com/klimatdata/disclosure-pipeline/internal/model"
)

var (
	submitName       string
	submitWikidataID string
	submitReportURL  string
	submitReportFile string
	submitYears      []string
)

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit a sustainability report for extraction",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if submitName == "" {
			return eris.New("--name is required")
		}
		if submitReportFile == "" {
			return eris.New("--report-file is required")
		}
		text, err := os.ReadFile(submitReportFile)
		if err != nil {
			return eris.Wrapf(err, "read report %s", submitReportFile)
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		broker, client, err := initBroker()
		if err != nil {
			return err
		}
		defer broker.Close()

		company := model.Company{Name: submitName, WikidataID: submitWikidataID}
		run, err := st.CreateRun(ctx, company, submitReportURL)
		if err != nil {
			return err
		}

		periods := make([]model.ReportingPeriod, 0, len(submitYears))
		for _, y := range submitYears {
			periods = append(periods, model.ReportingPeriod{Year: y})
		}

		jobID, err := client.Enqueue(ctx, jobs.JobResolveCompany, jobs.SubmissionPayload{
			RunID:      run.ID,
			Company:    company,
			ReportURL:  submitReportURL,
			ReportText: string(text),
			Periods:    periods,
		})
		if err != nil {
			return eris.Wrap(err, "enqueue submission")
		}

		zap.L().Info("submission enqueued",
			zap.String("run_id", run.ID),
			zap.String("job_id", jobID),
			zap.String("company", submitName),
		)
		fmt.Printf("run %s queued (job %s)\n", run.ID, jobID)
		return nil
	},
}

func init() {
	submitCmd.Flags().StringVar(&submitName, "name", "", "company name as printed on the report")
	submitCmd.Flags().StringVar(&submitWikidataID, "wikidata-id", "", "pre-resolved Wikidata QID (skips entity search)")
	submitCmd.Flags().StringVar(&submitReportURL, "report-url", "", "canonical URL of the report")
	submitCmd.Flags().StringVar(&submitReportFile, "report-file", "", "path to the extracted report text")
	submitCmd.Flags().StringSliceVar(&submitYears, "year", nil, "reporting year, repeatable")
	rootCmd.AddCommand(submitCmd)
}
