package selectcmd

import (
	"bytes"
	"regexp"
)

// rowFilter is the row-level predicate select's -s/--regex-search
// flag installs. Grounded on
// entreya-csvquery/src/go/internal/query.Condition.EvaluateFast: a
// leaf evaluator over the row's already-split cells, simplified from
// the teacher's full AND/OR/comparison tree (select's filter is one
// pattern across all selected cells, not an arbitrary boolean
// expression over named columns — spec.md §4.5 names only "regex and
// substring row filter").
type rowFilter struct {
	re        *regexp.Regexp
	substring []byte
}

// newSubstringFilter matches when any selected cell contains needle.
func newSubstringFilter(needle string) *rowFilter {
	return &rowFilter{substring: []byte(needle)}
}

// newRegexFilter matches when any selected cell matches pattern.
func newRegexFilter(pattern string) (*rowFilter, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	return &rowFilter{re: re}, nil
}

// matches reports whether any of cells satisfies the filter.
func (f *rowFilter) matches(cells [][]byte) bool {
	if f == nil {
		return true
	}
	for _, c := range cells {
		if f.re != nil {
			if f.re.Match(c) {
				return true
			}
			continue
		}
		if bytes.Contains(c, f.substring) {
			return true
		}
	}
	return false
}
