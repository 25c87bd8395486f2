package etl

// StageSummary counts the outcomes of one fan-out stage, one pipeline run, or
// a running total across chunks.
type StageSummary struct {
	Count           int `json:"count"`
	ClientErrors    int `json:"clientErrors"`
	ParserErrors    int `json:"parserErrors"`
	UnhandledErrors int `json:"unhandledErrors"`
}

// Attempted is the number of work items the summary accounts for.
func (s StageSummary) Attempted() int {
	return s.Count + s.ClientErrors + s.ParserErrors + s.UnhandledErrors
}

// Failures is the number of work items that did not succeed.
func (s StageSummary) Failures() int {
	return s.ClientErrors + s.ParserErrors + s.UnhandledErrors
}

// IsZero reports whether the summary is the identity element.
func (s StageSummary) IsZero() bool {
	return s == StageSummary{}
}

// Combine adds two summaries field by field. It is associative and commutative
// with StageSummary{} as identity, so chunk order never changes a total.
func Combine(a, b StageSummary) StageSummary {
	return StageSummary{
		Count:           a.Count + b.Count,
		ClientErrors:    a.ClientErrors + b.ClientErrors,
		ParserErrors:    a.ParserErrors + b.ParserErrors,
		UnhandledErrors: a.UnhandledErrors + b.UnhandledErrors,
	}
}

// Fold combines any number of summaries.
func Fold(summaries ...StageSummary) StageSummary {
	var total StageSummary
	for _, s := range summaries {
		total = Combine(total, s)
	}
	return total
}

