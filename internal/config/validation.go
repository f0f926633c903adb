package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/smbcore/smbd/internal/serrors"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks every validate struct tag across Config and returns an
// InvalidConfiguration error describing every violation found, not just
// the first.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		verrs, ok := err.(validator.ValidationErrors)
		if !ok {
			return serrors.New(serrors.ErrInvalidConfiguration, err.Error())
		}

		msgs := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			msgs = append(msgs, fmt.Sprintf("%s: failed %q", fe.Namespace(), fe.Tag()))
		}
		return serrors.New(serrors.ErrInvalidConfiguration, strings.Join(msgs, "; "))
	}

	return nil
}
