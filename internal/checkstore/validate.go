package checkstore

import "github.com/go-playground/validator/v10"

// statusValidator enforces the closed CheckStatus enum at the one place
// values cross a trust boundary: profiles deserialized from disk. In-process
// writers go through IsValidStatus instead, which is cheaper and doesn't
// need a validator.Var call on every UpdateCheck.
var statusValidator = validator.New()

// isValidStatusTag reports the same thing IsValidStatus does, routed through
// validator's "oneof" tag so the closed set has a single source of truth
// with the rest of the module's enum validation (internal/config uses the
// same package for its struct tags).
func isValidStatusTag(status CheckStatus) bool {
	err := statusValidator.Var(string(status), "oneof=to_check passed failed deferred")
	return err == nil
}
