// Package validation checks rendered messages against channel compliance
// rules. The rule set is small, static, and data-driven: it blocks obviously
// non-compliant copy before it is logged as sendable.
package validation

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Status is the overall result of a compliance check.
type Status string

// Compliance statuses.
const (
	StatusPass Status = "PASS"
	StatusFail Status = "FAIL"
)

// Result holds the status and every reason collected. Rules are evaluated
// independently; findings are never short-circuited.
type Result struct {
	Status  Status
	Reasons []string
}

// channelMaxLen maps channel name to the maximum rendered message length in
// characters. Channel names are matched case-insensitively.
var channelMaxLen = map[string]int{
	"SMS":   140,
	"PUSH":  180,
	"KAKAO": 900,
	"EMAIL": 2000,
}

// bannedPhrases must not appear verbatim in rendered text. Absolute-efficacy
// and zero-side-effect claims are not permitted on any channel.
var bannedPhrases = []string{
	"complete cure",
	"100% effective",
	"no side effects",
}

// MaxLength returns the character limit for a channel, if one is configured.
func MaxLength(channel string) (int, bool) {
	limit, ok := channelMaxLen[strings.ToUpper(channel)]
	return limit, ok
}

// Validate checks a rendered message against the channel's length limit and
// the banned-phrase deny list. The result is FAIL iff at least one reason
// was collected.
func Validate(text, channel string) Result {
	var reasons []string
	t := strings.TrimSpace(text)

	if limit, ok := MaxLength(channel); ok {
		if n := utf8.RuneCountInString(t); n > limit {
			reasons = append(reasons,
				fmt.Sprintf("message length %d exceeds %s limit of %d", n, strings.ToUpper(channel), limit))
		}
	}

	for _, phrase := range bannedPhrases {
		if strings.Contains(t, phrase) {
			reasons = append(reasons, fmt.Sprintf("contains banned phrase: %q", phrase))
		}
	}

	if len(reasons) > 0 {
		return Result{Status: StatusFail, Reasons: reasons}
	}
	return Result{Status: StatusPass}
}
