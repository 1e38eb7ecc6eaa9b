package model

import (
	"errors"
	"strings"
)

var ErrInvalidPhone = errors.New("invalid phone number")

// M-Pesaが受け付ける 2547XXXXXXXX / 2541XXXXXXXX 形式にそろえる
func NormalizeMSISDN(raw string) (string, error) {
	s := strings.NewReplacer(" ", "", "-", "", "(", "", ")", "").Replace(strings.TrimSpace(raw))
	s = strings.TrimPrefix(s, "+")

	switch {
	case strings.HasPrefix(s, "254"):
	case strings.HasPrefix(s, "0") && len(s) == 10:
		s = "254" + s[1:]
	case (strings.HasPrefix(s, "7") || strings.HasPrefix(s, "1")) && len(s) == 9:
		s = "254" + s
	default:
		return "", ErrInvalidPhone
	}

	if len(s) != 12 || (s[3] != '7' && s[3] != '1') {
		return "", ErrInvalidPhone
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return "", ErrInvalidPhone
		}
	}
	return s, nil
}
