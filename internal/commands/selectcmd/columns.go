package selectcmd

import (
	"fmt"
	"strconv"
	"strings"
)

// resolveColumns expands the column specs trailing `select -- col ...`
// into 0-based column indices, per spec.md §4.5: each spec is a
// header name, a 1-based index, or a 1-based inclusive range (`5-9`
// or the open form `5-` meaning "5 through the last column").
func resolveColumns(specs []string, header []string) ([]int, error) {
	nameIdx := make(map[string]int, len(header))
	for i, h := range header {
		nameIdx[strings.ToLower(strings.TrimSpace(h))] = i
	}

	var out []int
	for _, spec := range specs {
		idxs, err := resolveOneSpec(spec, header, nameIdx)
		if err != nil {
			return nil, err
		}
		out = append(out, idxs...)
	}
	return out, nil
}

func resolveOneSpec(spec string, header []string, nameIdx map[string]int) ([]int, error) {
	if dash := strings.IndexByte(spec, '-'); dash > 0 {
		loStr, hiStr := spec[:dash], spec[dash+1:]
		lo, errLo := strconv.Atoi(loStr)
		if errLo == nil {
			if hiStr == "" {
				if lo < 1 {
					return nil, fmt.Errorf("selectcmd: invalid column range %q", spec)
				}
				out := make([]int, 0, len(header)-lo+1)
				for i := lo - 1; i < len(header); i++ {
					out = append(out, i)
				}
				return out, nil
			}
			hi, errHi := strconv.Atoi(hiStr)
			if errHi == nil {
				if lo < 1 || hi < lo {
					return nil, fmt.Errorf("selectcmd: invalid column range %q", spec)
				}
				out := make([]int, 0, hi-lo+1)
				for i := lo - 1; i < hi && i < len(header); i++ {
					out = append(out, i)
				}
				return out, nil
			}
		}
	}

	if n, err := strconv.Atoi(spec); err == nil {
		if n < 1 || n > len(header) {
			return nil, fmt.Errorf("selectcmd: column index %d out of range (1-%d)", n, len(header))
		}
		return []int{n - 1}, nil
	}

	idx, ok := nameIdx[strings.ToLower(strings.TrimSpace(spec))]
	if !ok {
		return nil, fmt.Errorf("selectcmd: unknown column %q", spec)
	}
	return []int{idx}, nil
}

// excludeColumns removes any index present in exclude, preserving the
// relative order of what remains.
func excludeColumns(selected []int, exclude []int) []int {
	if len(exclude) == 0 {
		return selected
	}
	excl := make(map[int]bool, len(exclude))
	for _, i := range exclude {
		excl[i] = true
	}
	out := make([]int, 0, len(selected))
	for _, i := range selected {
		if !excl[i] {
			out = append(out, i)
		}
	}
	return out
}
