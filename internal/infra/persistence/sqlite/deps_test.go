package sqlite

import (
	"strings"
	"testing"

	"pedigreecore/testutil"
)

func TestDriverDependsOnRecordModelAndMemoryOnly(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", func(path string) bool {
		if !strings.HasPrefix(path, "pedigreecore/") {
			return false
		}
		return path != "pedigreecore/pkg/domain" && path != "pedigreecore/internal/infra/persistence/memory"
	}, "sqlite wraps the memory store over the record model")
}
