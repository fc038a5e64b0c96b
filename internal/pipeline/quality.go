package pipeline

// QualityConfig holds the field weights behind the 0-100 quality score.
// The split is a tuning constant carried over from production observations.
type QualityConfig struct {
	Title            int
	DescriptionFull  int // description at or above DescriptionRichLen
	DescriptionShort int // non-empty but thin description
	Requirements     int
	Location         int
	Experience       int
	Salary           int
	Technologies     int
	HighConfidence   int

	DescriptionRichLen   int
	HighConfidenceMin    float64
	LowConfidenceMax     float64
	LowConfidencePenalty int
}

// DefaultQualityConfig returns the production weights. They sum to 100 for
// a fully populated, high-confidence extraction.
func DefaultQualityConfig() QualityConfig {
	return QualityConfig{
		Title:            15,
		DescriptionFull:  20,
		DescriptionShort: 10,
		Requirements:     10,
		Location:         10,
		Experience:       10,
		Salary:           10,
		Technologies:     15,
		HighConfidence:   10,

		DescriptionRichLen:   200,
		HighConfidenceMin:    0.8,
		LowConfidenceMax:     0.4,
		LowConfidencePenalty: 15,
	}
}

// Score rates an extraction 0-100 by field presence and richness, with a
// penalty for low extractor confidence.
func (q QualityConfig) Score(data *Extraction) int {
	if data == nil {
		return 0
	}

	score := 0
	if data.Title != "" {
		score += q.Title
	}
	switch {
	case len(data.Description) >= q.DescriptionRichLen:
		score += q.DescriptionFull
	case data.Description != "":
		score += q.DescriptionShort
	}
	if len(data.Requirements) > 0 {
		score += q.Requirements
	}
	if data.Location != "" {
		score += q.Location
	}
	if data.ExperienceLevel != "" {
		score += q.Experience
	}
	if data.SalaryMin > 0 || data.SalaryMax > 0 {
		score += q.Salary
	}
	if len(data.Technologies) > 0 {
		score += q.Technologies
	}
	if data.Confidence >= q.HighConfidenceMin {
		score += q.HighConfidence
	}
	if data.Confidence < q.LowConfidenceMax {
		score -= q.LowConfidencePenalty
	}

	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
