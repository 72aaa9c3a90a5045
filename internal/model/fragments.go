package model

// Emissions is the greenhouse-gas fragment for one reporting period. Every
// sub-fragment is tri-state: absent means the report said nothing, explicit
// null means a previously recorded value should be removed.
type Emissions struct {
	Scope1      Nullable[EmissionsEntry] `json:"scope1,omitzero"`
	Scope2      Nullable[Scope2Entry]    `json:"scope2,omitzero"`
	Scope3      Nullable[Scope3Entry]    `json:"scope3,omitzero"`
	Biogenic    Nullable[EmissionsEntry] `json:"biogenic,omitzero"`
	StatedTotal Nullable[EmissionsEntry] `json:"statedTotal,omitzero"`
	Scope1And2  Nullable[EmissionsEntry] `json:"scope1And2,omitzero"`
}

// EmissionsEntry is a single reported emissions figure.
type EmissionsEntry struct {
	Total float64 `json:"total"`
	Unit  string  `json:"unit,omitempty"`
}

// Scope2Entry distinguishes market-based, location-based and unspecified
// scope 2 figures; a report may state any subset.
type Scope2Entry struct {
	MB      *float64 `json:"mb,omitempty"`
	LB      *float64 `json:"lb,omitempty"`
	Unknown *float64 `json:"unknown,omitempty"`
	Unit    string   `json:"unit,omitempty"`
}

// Scope3Entry holds per-category scope 3 figures plus the total the report
// itself states, which may disagree with the category sum.
type Scope3Entry struct {
	Categories  []Scope3Category `json:"categories,omitempty"`
	StatedTotal *EmissionsEntry  `json:"statedTotal,omitempty"`
}

// Scope3Category is one GHG Protocol scope 3 category figure.
type Scope3Category struct {
	Category int     `json:"category"`
	Total    float64 `json:"total"`
	Unit     string  `json:"unit,omitempty"`
}

// Economy is the financial fragment for one reporting period.
type Economy struct {
	Turnover  Nullable[Turnover]  `json:"turnover,omitzero"`
	Employees Nullable[Employees] `json:"employees,omitzero"`
}

// Turnover is reported revenue in a stated currency.
type Turnover struct {
	Value    float64 `json:"value"`
	Currency string  `json:"currency,omitempty"`
}

// Employees is the reported headcount.
type Employees struct {
	Value float64 `json:"value"`
	Unit  string  `json:"unit,omitempty"`
}

// Goal is a stated climate goal.
type Goal struct {
	Description string   `json:"description"`
	Year        string   `json:"year,omitempty"`
	Target      *float64 `json:"target,omitempty"`
	BaseYear    string   `json:"baseYear,omitempty"`
}

// Initiative is a concrete climate initiative described in a report.
type Initiative struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Year        string `json:"year,omitempty"`
	Scope       string `json:"scope,omitempty"`
}

// Equality describes equality and inclusion work disclosed in a report.
type Equality struct {
	Area        string `json:"area"`
	Description string `json:"description,omitempty"`
	Year        string `json:"year,omitempty"`
}

// Industry is the company's industry classification.
type Industry struct {
	Code  string `json:"code"`
	Label string `json:"label,omitempty"`
}
