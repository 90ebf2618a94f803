package filter

import (
	"strings"

	"github.com/amishk599/applyhook/internal/model"
)

var _ model.VacancyFilter = (*TitleFilter)(nil)

// TitleFilter matches vacancies whose title contains any of the include
// keywords and none of the exclude keywords. Matching is case-insensitive.
// An empty include list is treated as "match all".
type TitleFilter struct {
	include []string
	exclude []string
}

// NewTitleFilter returns a filter over lower-cased copies of the keywords.
func NewTitleFilter(include, exclude []string) *TitleFilter {
	return &TitleFilter{
		include: lowerAll(include),
		exclude: lowerAll(exclude),
	}
}

// Match reports whether the vacancy should be polled.
func (f *TitleFilter) Match(v model.Vacancy) bool {
	titleLower := strings.ToLower(v.Title)

	for _, kw := range f.exclude {
		if strings.Contains(titleLower, kw) {
			return false
		}
	}

	if len(f.include) == 0 {
		return true
	}
	for _, kw := range f.include {
		if strings.Contains(titleLower, kw) {
			return true
		}
	}
	return false
}

func lowerAll(keywords []string) []string {
	out := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		kw = strings.TrimSpace(kw)
		if kw != "" {
			out = append(out, strings.ToLower(kw))
		}
	}
	return out
}
