// Package requirements holds the fixed document checklist an applicant
// organization has to satisfy.
package requirements

type Requirement string

const (
	MerchantApplication     Requirement = "MERCHANT_APPLICATION"
	ArticlesOfIncorporation Requirement = "ARTICLES_OF_INCORPORATION"
	EINLetter               Requirement = "EIN_LETTER"
	BankLetterOrVoidedCheck Requirement = "BANK_LETTER_OR_VOIDED_CHECK"
	ProcessingStatements    Requirement = "PROCESSING_STATEMENTS"
	BankStatements          Requirement = "BANK_STATEMENTS"
	FulfilmentAgreement     Requirement = "FULFILMENT_AGREEMENT"
	GovernmentIDFront       Requirement = "GOVERNMENT_ID_FRONT"
	GovernmentIDBack        Requirement = "GOVERNMENT_ID_BACK"
	Other                   Requirement = "OTHER"
)

type InputType string

const (
	InputFile   InputType = "file"
	InputText   InputType = "text"
	InputNumber InputType = "number"
	InputDate   InputType = "date"
)

type Config struct {
	Requirement          Requirement `json:"requirement"`
	Label                string      `json:"label"`
	Description          string      `json:"description"`
	Type                 InputType   `json:"type"`
	ExpectedFileCount    int         `json:"expectedFileCount"`
	RequiredFileCount    int         `json:"requiredFileCount"`
	WarningMessage       string      `json:"warningMessage,omitempty"`
	UserConfirmationText string      `json:"userConfirmationText,omitempty"`
}

const (
	notApplicable = "This does not apply to me"
	expectedThree = "Expected at least 3 files"
)

var checklist = []Config{
	{
		Requirement:       MerchantApplication,
		Label:             "Merchant Application",
		Description:       "Download the application, fill out the form, sign it, then upload the signed application here",
		Type:              InputFile,
		RequiredFileCount: 1,
		ExpectedFileCount: 1,
	},
	{
		Requirement:          ArticlesOfIncorporation,
		Label:                "Articles of Incorporation",
		Type:                 InputFile,
		WarningMessage:       "Articles of Incorporation are required for LLCs and Corporations",
		UserConfirmationText: notApplicable,
		ExpectedFileCount:    1,
	},
	{
		Requirement:          EINLetter,
		Label:                "EIN Letter",
		Type:                 InputFile,
		WarningMessage:       "EIN Letter is required if you use an EIN number",
		UserConfirmationText: notApplicable,
		ExpectedFileCount:    1,
	},
	{
		Requirement:       BankLetterOrVoidedCheck,
		Label:             "Bank Letter or Voided Check",
		Type:              InputFile,
		RequiredFileCount: 1,
		ExpectedFileCount: 1,
	},
	{
		Requirement:          ProcessingStatements,
		Label:                "Processing Statements",
		Description:          "3 months of processing statements",
		Type:                 InputFile,
		WarningMessage:       expectedThree,
		UserConfirmationText: "I have uploaded the required files",
		ExpectedFileCount:    3,
	},
	{
		Requirement:          BankStatements,
		Label:                "Bank Statements",
		Description:          "3 months of bank statements",
		Type:                 InputFile,
		WarningMessage:       expectedThree,
		UserConfirmationText: "I have uploaded the required files",
		RequiredFileCount:    1,
		ExpectedFileCount:    3,
	},
	{
		Requirement:          FulfilmentAgreement,
		Label:                "Fulfillment Agreement",
		Description:          "The fulfillment agreement is a contract between the merchant and the fulfillment company. It is a legal document that outlines the terms and conditions of the fulfillment agreement.",
		Type:                 InputFile,
		WarningMessage:       "Fulfillment agreement is required in most cases",
		UserConfirmationText: notApplicable,
		ExpectedFileCount:    1,
	},
	{
		Requirement:       GovernmentIDFront,
		Label:             "Government issued ID",
		Description:       "Front of the government issued ID.",
		Type:              InputFile,
		RequiredFileCount: 1,
		ExpectedFileCount: 1,
	},
	{
		Requirement:       GovernmentIDBack,
		Label:             "Government issued ID",
		Description:       "Back of the government issued ID.",
		Type:              InputFile,
		ExpectedFileCount: 1,
	},
	{
		Requirement: Other,
		Label:       "Other",
		Description: "Any other required documents.",
		Type:        InputFile,
	},
}

var index = func() map[Requirement]Config {
	m := make(map[Requirement]Config, len(checklist))
	for _, c := range checklist {
		m[c.Requirement] = c
	}
	return m
}()

// All returns the checklist in display order.
func All() []Config {
	out := make([]Config, len(checklist))
	copy(out, checklist)
	return out
}

func Lookup(r Requirement) (Config, bool) {
	c, ok := index[r]
	return c, ok
}

func Valid(value string) bool {
	_, ok := index[Requirement(value)]
	return ok
}

// Required reports whether at least one file must be uploaded.
func (c Config) Required() bool {
	return c.RequiredFileCount > 0
}

// Optional reports whether files are expected without being mandatory.
func (c Config) Optional() bool {
	return c.RequiredFileCount == 0 && c.ExpectedFileCount > 0
}

type Status struct {
	Config
	Uploaded  int    `json:"uploaded"`
	Satisfied bool   `json:"satisfied"`
	Complete  bool   `json:"complete"`
	Warning   string `json:"warning,omitempty"`
}

type Report struct {
	Items []Status `json:"items"`
	Ready bool     `json:"ready"`
}

// Progress computes checklist progress from per-category upload counts.
// Unknown categories in counts are ignored.
func Progress(counts map[string]int) Report {
	report := Report{Ready: true}
	for _, c := range checklist {
		uploaded := counts[string(c.Requirement)]
		status := Status{
			Config:    c,
			Uploaded:  uploaded,
			Satisfied: uploaded >= c.RequiredFileCount,
			Complete:  uploaded >= c.ExpectedFileCount,
		}
		if !status.Complete {
			status.Warning = c.WarningMessage
		}
		if !status.Satisfied {
			report.Ready = false
		}
		report.Items = append(report.Items, status)
	}
	return report
}
