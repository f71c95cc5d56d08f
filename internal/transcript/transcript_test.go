package transcript

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_SimpleTwoCourses(t *testing.T) {
	raw := `[
		{"xn":"2023-2024","xq":"春夏","kcmc":"高等数学","cj":"95","xf":3,"jd":4.0},
		{"xn":"2023-2024","xq":"春夏","kcmc":"线性代数","cj":"88","xf":4,"jd":3.0}
	]`

	result, err := Parse(raw)
	require.NoError(t, err)

	assert.Equal(t, 2, result.CourseCount)
	assert.InDelta(t, 7.0, result.Credit, 1e-9)
	assert.InDelta(t, (3*4.0+4*3.0)/7, result.GPA, 1e-9)
	assert.InDelta(t, result.GPA, result.GPAThisTerm, 1e-9)
	assert.InDelta(t, result.Credit, result.CreditThisTerm, 1e-9)
}

func TestParse_WithdrawnCoursesContributeNothingButAreCounted(t *testing.T) {
	raw := `[
		{"xn":"2023-2024","xq":"秋冬","kcmc":"普通物理","cj":"90","xf":4,"jd":4.0},
		{"xn":"2023-2024","xq":"秋冬","kcmc":"程序设计","cj":"弃修","xf":2,"jd":0}
	]`

	result, err := Parse(raw)
	require.NoError(t, err)

	assert.Equal(t, 2, result.CourseCount)
	assert.InDelta(t, 4.0, result.Credit, 1e-9)
	assert.InDelta(t, 4.0, result.GPA, 1e-9)
}

func TestParse_ExcludedTitlesKeepCreditButNotWeight(t *testing.T) {
	raw := `[
		{"xn":"2023-2024","xq":"春夏","kcmc":"高等数学","cj":"95","xf":3,"jd":4.0},
		{"xn":"2023-2024","xq":"春夏","kcmc":"英语水平测试","cj":"合格","xf":1,"jd":0},
		{"xn":"2023-2024","xq":"春夏","kcmc":"形式与政策II","cj":"合格","xf":1,"jd":0}
	]`

	result, err := Parse(raw)
	require.NoError(t, err)

	// Credit includes the pass/fail courses; the weighting denominator
	// subtracts one per excluded course.
	assert.InDelta(t, 5.0, result.Credit, 1e-9)
	assert.InDelta(t, (3*4.0)/(5-2), result.GPA, 1e-9)
}

func TestParse_GPAZeroWhenDenominatorNonPositive(t *testing.T) {
	raw := `[
		{"xn":"2023-2024","xq":"春夏","kcmc":"英语水平测试","cj":"合格","xf":1,"jd":0}
	]`

	result, err := Parse(raw)
	require.NoError(t, err)

	// credit(1) - excluded(1) == 0.
	assert.Zero(t, result.GPA)
	assert.Zero(t, result.GPAThisTerm)
}

func TestParse_TermScopedToFirstEntry(t *testing.T) {
	raw := `[
		{"xn":"2023-2024","xq":"秋冬","kcmc":"编译原理","cj":"92","xf":4,"jd":4.2},
		{"xn":"2023-2024","xq":"春夏","kcmc":"操作系统","cj":"85","xf":4,"jd":3.3},
		{"xn":"2022-2023","xq":"秋冬","kcmc":"数据结构","cj":"90","xf":3,"jd":3.9}
	]`

	result, err := Parse(raw)
	require.NoError(t, err)

	assert.InDelta(t, 11.0, result.Credit, 1e-9)
	assert.InDelta(t, 4.0, result.CreditThisTerm, 1e-9)
	assert.InDelta(t, 4.2, result.GPAThisTerm, 1e-9)
}

func TestParse_NumericStringsAccepted(t *testing.T) {
	raw := `[
		{"xn":"2023-2024","xq":"春","kcmc":"大学物理","cj":"90","xf":"3.5","jd":"3.9"}
	]`

	result, err := Parse(raw)
	require.NoError(t, err)
	assert.InDelta(t, 3.5, result.Credit, 1e-9)
	assert.InDelta(t, 3.9, result.GPA, 1e-9)
}

func TestParse_Failures(t *testing.T) {
	testCases := []struct {
		name string
		raw  string
	}{
		{name: "malformed json", raw: `{"not":"a list"`},
		{name: "empty list", raw: `[]`},
		{name: "object instead of list", raw: `{"xn":"2023-2024"}`},
		{name: "non-numeric credit", raw: `[{"xn":"a","xq":"春","kcmc":"x","cj":"90","xf":"many","jd":4}]`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse(tc.raw)
			assert.Error(t, err)
		})
	}
}

func TestTranscript_String(t *testing.T) {
	tr := &Transcript{
		GPA:            3.428571,
		GPAThisTerm:    4.2,
		Credit:         7.5,
		CreditThisTerm: 4,
		CourseCount:    3,
	}

	assert.Equal(t, "均绩: 3.429\n学期均绩: 4.200\n学分: 7.5\n学期学分: 4\n", tr.String())
}
