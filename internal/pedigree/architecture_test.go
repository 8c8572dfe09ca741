package pedigree

import (
	"testing"

	"pedigreecore/testutil"
)

func TestEngineIsStorageIndependent(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", testutil.DomainImportForbidden, "the engine reads records through Fetcher only")
	testutil.AssertNoTransitiveDependency(t, ".", func(path string) bool {
		return testutil.DomainImportForbidden(path) || testutil.InfraImportForbidden(path) || testutil.DriverImportForbidden(path)
	}, "the engine must not reach storage or driver packages")
}
