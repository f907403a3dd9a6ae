package flows

import (
	"errors"

	"github.com/MrEthical07/sessioncap/jwt"
)

// ValidateFailureKind classifies access-token validation failures.
type ValidateFailureKind int

const (
	ValidateFailureNone ValidateFailureKind = iota
	ValidateFailureInvalidToken
	ValidateFailureExpiredToken
	ValidateFailureWrongClass
)

// ValidateResult returns either the verified claims or a classified failure.
type ValidateResult struct {
	Failure ValidateFailureKind
	Err     error
	Claims  *jwt.Claims
}

// ValidateDeps captures access validation dependencies. Validation is
// stateless: only the signature, expiry and class are checked.
type ValidateDeps struct {
	Decode func(string) (*jwt.Claims, error)
}

// RunValidate verifies an access token.
func RunValidate(tokenStr string, deps ValidateDeps) ValidateResult {
	claims, err := deps.Decode(tokenStr)
	if err != nil {
		if errors.Is(err, jwt.ErrExpiredToken) {
			return ValidateResult{Failure: ValidateFailureExpiredToken, Err: err}
		}
		return ValidateResult{Failure: ValidateFailureInvalidToken, Err: err}
	}
	if claims.Class != jwt.ClassAccess {
		return ValidateResult{Failure: ValidateFailureWrongClass, Claims: claims}
	}
	return ValidateResult{Claims: claims}
}
