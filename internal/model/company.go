package model

// Company identifies the subject of a pipeline run. WikidataID is empty
// until the resolution stage fills it in.
type Company struct {
	Name       string `json:"name"`
	WikidataID string `json:"wikidataId,omitempty"`
}

// ReportingPeriod is one fiscal year covered by a submitted report.
type ReportingPeriod struct {
	Year      string `json:"year"`
	StartDate string `json:"startDate,omitempty"`
	EndDate   string `json:"endDate,omitempty"`
}

// CompanySnapshot is the stored state of a company in the disclosure
// portal, fetched once per submission and carried on job payloads so that
// stages never depend on sibling jobs having written fresher state.
type CompanySnapshot struct {
	Name        string                `json:"name"`
	WikidataID  string                `json:"wikidataId"`
	Periods     map[string]PeriodData `json:"periods,omitempty"`
	Goals       []Goal                `json:"goals,omitempty"`
	Initiatives []Initiative          `json:"initiatives,omitempty"`
	Equalities  []Equality            `json:"equalities,omitempty"`
	Industry    *Industry             `json:"industry,omitempty"`
}

// PeriodData groups the per-year fragments.
type PeriodData struct {
	Emissions *Emissions `json:"emissions,omitempty"`
	Economy   *Economy   `json:"economy,omitempty"`
}

// Period returns the stored data for a year, or an empty PeriodData when
// the company has nothing recorded for it.
func (s *CompanySnapshot) Period(year string) PeriodData {
	if s == nil || s.Periods == nil {
		return PeriodData{}
	}
	return s.Periods[year]
}
