package importer

// Options are the caller-supplied switches of one import run.
type Options struct {
	Upsert                    bool   `json:"upsert"`
	TargetTenantID            string `json:"targetTenantId"`
	AutoCreateMissingEntities bool   `json:"autoCreateMissingEntities"`
	AutoCompleteDates         bool   `json:"autoCompleteDates"`
	AutoCompleteDefaults      bool   `json:"autoCompleteDefaults"`
	DryRun                    bool   `json:"dryRun"`
}

// Row is one spreadsheet row. Number is the row number shown to the user.
type Row struct {
	Number int               `json:"number"`
	Values map[string]string `json:"values"`
}
