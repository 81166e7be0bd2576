package acquirer

import (
	"regexp"
	"strings"

	"pix-gateway/internal/model"

	"github.com/google/uuid"
)

const referenceLength = 32

var (
	referencePrefixes = map[model.Acquirer]string{
		model.AcquirerSpedPay: "spd",
		model.AcquirerInter:   "inter",
		model.AcquirerAtivus:  "atv",
	}

	referencePattern = regexp.MustCompile(`^(spd|inter|atv)[0-9a-f]+$`)
)

// NewReference returns a random local transaction identifier namespaced by
// the acquirer prefix followed by lowercase hex. It is always 32 characters,
// which also satisfies the txid rules of the OAuth2 acquirer.
func NewReference(a model.Acquirer) string {
	prefix := referencePrefixes[a]
	random := strings.ReplaceAll(uuid.NewString(), "-", "")
	return prefix + random[:referenceLength-len(prefix)]
}

// IsLocalReference reports whether id was produced by NewReference and for
// which acquirer.
func IsLocalReference(id string) (model.Acquirer, bool) {
	if len(id) != referenceLength {
		return "", false
	}
	match := referencePattern.FindStringSubmatch(id)
	if match == nil {
		return "", false
	}
	for a, prefix := range referencePrefixes {
		if prefix == match[1] {
			return a, true
		}
	}
	return "", false
}
