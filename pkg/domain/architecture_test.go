package domain_test

import (
	"testing"

	"designcore/testutil"
)

// The entity graph is consumed by codecs and mutated by requests; it must
// never depend on either.
func TestDomainDoesNotImportCodecOrMutationLayers(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", testutil.Any(
		testutil.CodecImportForbidden,
		testutil.MutationImportForbidden,
		testutil.InternalImportForbidden,
	), "domain must stay independent of codecs, requests and internal packages")
}

func TestDomainHasNoTransitiveCodecDependency(t *testing.T) {
	if testing.Short() {
		t.Skip("package loading is slow")
	}
	testutil.AssertNoTransitiveDependency(t, "designcore/pkg/domain", testutil.Any(
		testutil.CodecImportForbidden,
		testutil.MutationImportForbidden,
	), "domain must stay independent of codecs and requests")
}
