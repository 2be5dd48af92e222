package scoring

import "adpilot/internal/config"

// gradeFor maps an overall score to its letter grade. Boundaries come from
// configuration; a score earns the grade of the highest boundary it meets,
// anything below GradeD is an F.
func gradeFor(cfg config.ScoringConfig, score float64) string {
	switch {
	case score >= cfg.GradeA:
		return "A"
	case score >= cfg.GradeB:
		return "B"
	case score >= cfg.GradeC:
		return "C"
	case score >= cfg.GradeD:
		return "D"
	default:
		return "F"
	}
}
