package jobs

import (
	"encoding/json"

	"github.com/klimatdata/disclosure-pipeline/internal/diff"
	"github.com/klimatdata/disclosure-pipeline/internal/model"
)

// Job kinds. Each kind has its own queue and handler.
const (
	JobResolveCompany = "resolve_company"
	JobSaveFragment   = "save_fragment"

	JobExtractEmissions   = "extract_emissions"
	JobExtractEconomy     = "extract_economy"
	JobExtractGoals       = "extract_goals"
	JobExtractInitiatives = "extract_initiatives"
	JobExtractEquality    = "extract_equality"
	JobExtractIndustry    = "extract_industry"
)

// SubmissionPayload is the state of one report submission. It is created
// by submit, enriched by resolution, and carried verbatim on every
// downstream job so no stage depends on sibling jobs having run.
type SubmissionPayload struct {
	RunID      string                  `json:"runId,omitempty"`
	Company    model.Company           `json:"company"`
	ReportURL  string                  `json:"reportUrl"`
	ReportText string                  `json:"reportText"`
	Periods    []model.ReportingPeriod `json:"periods,omitempty"`

	// Snapshot is the portal state fetched once at resolution time, the
	// baseline every extraction diffs against. Nil when the portal has
	// never seen the company.
	Snapshot *model.CompanySnapshot `json:"snapshot,omitempty"`
}

// SavePayload is the input to a save_fragment job: exactly one proposed
// fragment value, the diff that justifies writing it, and the attribution
// envelope. The report text does not ride along; the save stage never
// talks to the model.
type SavePayload struct {
	Company  model.Company   `json:"company"`
	Fragment string          `json:"fragment"`
	Year     string          `json:"year,omitempty"`
	Value    json.RawMessage `json:"value"`
	Diff     diff.Result     `json:"diff"`
	Metadata model.Metadata  `json:"metadata"`
}
