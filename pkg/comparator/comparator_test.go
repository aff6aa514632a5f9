package comparator

import (
	"testing"

	"github.com/kanoniv/kanoniv/pkg/record"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/require"
)

func TestCompare_MissingAlwaysDisagrees(t *testing.T) {
	require.Equal(t, float64(0), Compare("exact", record.Missing, "x"))
	require.Equal(t, float64(0), Compare("exact", "x", record.Missing))
}

func TestExact_CaseFolded(t *testing.T) {
	require.Equal(t, float64(1), Exact("ACME", "acme"))
	require.Equal(t, float64(0), Exact("ACME", "beta"))
}

func TestJaroWinkler_IdenticalIsOne(t *testing.T) {
	require.Equal(t, float64(1), JaroWinkler("Smith", "smith"))
}

func TestJaroWinkler_TypoIsHighButNotOne(t *testing.T) {
	s := JaroWinkler("Catherine", "Cathrine")
	require.True(t, s > 0.8 && s < 1.0, "got %v", s)
}

func TestName_NicknameResolution(t *testing.T) {
	require.Equal(t, float64(1), Name("Bob", "Robert"))
	require.Equal(t, float64(1), Name("liz", "Elizabeth"))
}

func TestCompany_SuffixStripped(t *testing.T) {
	require.Equal(t, float64(1), Company("Acme Inc", "Acme Incorporated"))
	require.Equal(t, float64(1), Company("Acme, LLC.", "acme llc"))
}

func TestEmail_PlusTagAndAliasDomain(t *testing.T) {
	require.Equal(t, float64(1), Email("ann+newsletter@gmail.com", "ann@googlemail.com"))
	require.Equal(t, float64(0), Email("ann@gmail.com", "bob@gmail.com"))
}

func TestEmail_GmailDotTrick(t *testing.T) {
	require.Equal(t, float64(1), Email("JOHN.Q+promo@GoogleMail.com", "johnq@gmail.com"))
	require.Equal(t, float64(1), Email("j.o.h.n.q@gmail.com", "johnq@gmail.com"))
}

func TestEmail_LiveOutlookAlias(t *testing.T) {
	require.Equal(t, float64(1), Email("ann@live.com", "ann@outlook.com"))
}

func TestEmail_Malformed(t *testing.T) {
	require.Equal(t, float64(0), Email("not-an-email", "also-not"))
}

func TestPhone_CountryCodeNormalized(t *testing.T) {
	require.Equal(t, float64(1), Phone("+1 (555) 123-4567", "555.123.4567"))
	require.Equal(t, float64(0), Phone("5551234567", "5559999999"))
}

func TestJaroWinkler_SymmetricAndBounded(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)

	properties.Property("JaroWinkler is symmetric and bounded in [0, 1]", prop.ForAll(
		func(a, b string) bool {
			ab := JaroWinkler(a, b)
			ba := JaroWinkler(b, a)
			return ab == ba && ab >= 0 && ab <= 1
		},
		gen.AlphaString(),
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}
