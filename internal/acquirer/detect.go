package acquirer

import (
	"regexp"

	"pix-gateway/internal/model"
)

var (
	uuidPattern   = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)
	opaquePattern = regexp.MustCompile(`^[A-Za-z0-9]{20,}$`)
)

// Detect classifies an identifier by shape alone. ok is false when the shape
// is ambiguous; a canonical UUID may belong to either spedpay or inter.
func Detect(id string) (model.Acquirer, bool) {
	if a, ok := IsLocalReference(id); ok {
		return a, true
	}
	if uuidPattern.MatchString(id) {
		return "", false
	}
	if opaquePattern.MatchString(id) {
		return model.AcquirerAtivus, true
	}
	return "", false
}
