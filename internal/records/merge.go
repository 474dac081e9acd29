package records

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/emeight/alumni-outreach/internal/models"
)

// MergeDir combines every *.json record file under dir into a single record
// map written atomically to out. Files merge in lexical order, so later
// files win on duplicate UIDs. Files that fail to decode are skipped and
// reported in the second return value.
func MergeDir(dir, out string) (total int, skipped []string, err error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return 0, nil, err
	}
	if len(paths) == 0 {
		return 0, nil, fmt.Errorf("no .json files found in %s", dir)
	}
	sort.Strings(paths)

	combined := make(map[string]models.CandidateRecord)
	for _, p := range paths {
		b, err := os.ReadFile(p)
		if err != nil {
			skipped = append(skipped, p)
			continue
		}
		var m map[string]models.CandidateRecord
		if err := json.Unmarshal(b, &m); err != nil {
			skipped = append(skipped, p)
			continue
		}
		for k, v := range m {
			combined[k] = v
		}
	}

	if err := writeJSONAtomic(out, combined); err != nil {
		return 0, skipped, err
	}
	return len(combined), skipped, nil
}
