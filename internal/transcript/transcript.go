// Package transcript parses the raw course list returned by the academic
// affairs API and computes GPA and credit aggregates.
package transcript

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	apperrors "github.com/gradewatch/gradewatch/internal/errors"
)

const withdrawnGrade = "弃修"

// Pass/fail courses graded outside the 4-point scale. Their credit counts, but
// they are excluded from the grade-point weighting.
var excludedTitles = map[string]struct{}{
	"英语水平测试": {},
	"形式与政策II": {},
}

// Course is one row of the transcript.
type Course struct {
	Year         string
	SpringSummer bool
	Name         string
	Grade        string
	Credit       float64
	GradePoint   float64
}

// Transcript holds the aggregates derived from a course list. It is a value
// object: computed per query, never persisted.
type Transcript struct {
	GPA            float64
	Credit         float64
	GPAThisTerm    float64
	CreditThisTerm float64
	CourseCount    int
}

// Parse deserializes the raw course list and computes the aggregates. The
// current term is taken from the first entry, so an empty list is an error.
func Parse(raw string) (*Transcript, error) {
	var rows []map[string]any
	if err := json.Unmarshal([]byte(raw), &rows); err != nil {
		return nil, apperrors.NewParseError("malformed course list", err)
	}

	if len(rows) == 0 {
		return nil, apperrors.NewParseError("empty course list", nil)
	}

	courses := make([]Course, 0, len(rows))
	for _, row := range rows {
		credit, err := fieldFloat(row, "xf")
		if err != nil {
			return nil, apperrors.NewParseError("bad credit value", err)
		}

		gradePoint, err := fieldFloat(row, "jd")
		if err != nil {
			return nil, apperrors.NewParseError("bad grade point value", err)
		}

		courses = append(courses, Course{
			Year:         fieldString(row, "xn"),
			SpringSummer: isSpringSummer(fieldString(row, "xq")),
			Name:         fieldString(row, "kcmc"),
			Grade:        fieldString(row, "cj"),
			Credit:       credit,
			GradePoint:   gradePoint,
		})
	}

	return compute(courses), nil
}

func compute(courses []Course) *Transcript {
	var (
		weighted         float64
		weightedThisTerm float64
		excluded         float64
		excludedThisTerm float64
	)

	t := &Transcript{CourseCount: len(courses)}

	thisYear := courses[0].Year
	thisSeme := courses[0].SpringSummer

	for _, course := range courses {
		if course.Grade == withdrawnGrade {
			continue
		}

		currentTerm := course.Year == thisYear && course.SpringSummer == thisSeme

		t.Credit += course.Credit
		if currentTerm {
			t.CreditThisTerm += course.Credit
		}

		if _, skip := excludedTitles[course.Name]; skip {
			excluded++
			if currentTerm {
				excludedThisTerm++
			}
			continue
		}

		weighted += course.GradePoint * course.Credit
		if currentTerm {
			weightedThisTerm += course.GradePoint * course.Credit
		}
	}

	if denom := t.Credit - excluded; denom > 0 {
		t.GPA = weighted / denom
	}
	if denom := t.CreditThisTerm - excludedThisTerm; denom > 0 {
		t.GPAThisTerm = weightedThisTerm / denom
	}

	return t
}

// String renders the aggregates the way they are sent to the chat.
func (t *Transcript) String() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("均绩: %.3f\n", t.GPA))
	sb.WriteString(fmt.Sprintf("学期均绩: %.3f\n", t.GPAThisTerm))
	sb.WriteString(fmt.Sprintf("学分: %s\n", formatCredit(t.Credit)))
	sb.WriteString(fmt.Sprintf("学期学分: %s\n", formatCredit(t.CreditThisTerm)))
	return sb.String()
}

func isSpringSummer(term string) bool {
	return term == "春夏" || term == "春" || term == "夏"
}

func formatCredit(credit float64) string {
	return strconv.FormatFloat(credit, 'f', -1, 64)
}

func fieldString(row map[string]any, key string) string {
	switch v := row[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", v)
	}
}

// fieldFloat tolerates both JSON numbers and numeric strings, which the API
// mixes freely.
func fieldFloat(row map[string]any, key string) (float64, error) {
	switch v := row[key].(type) {
	case float64:
		return v, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, fmt.Errorf("field %q: %w", key, err)
		}
		return f, nil
	case nil:
		return 0, fmt.Errorf("field %q is missing", key)
	default:
		return 0, fmt.Errorf("field %q has unexpected type %T", key, v)
	}
}
