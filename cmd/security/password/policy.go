package password

import "unicode/utf8"

// Validate checks the input bounds. It does not mutate input.
func (c Config) Validate(password string) error {
	if password == "" {
		return ErrPasswordEmpty
	}
	if c.MaxLength > 0 && utf8.RuneCountInString(password) > c.MaxLength {
		return ErrPasswordTooLong
	}
	return nil
}
