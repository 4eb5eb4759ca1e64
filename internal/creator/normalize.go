// Package creator normalizes creator identities and ranks creators by the
// resources they created.
package creator

import (
	"strings"

	"github.com/grafana/regexp"

	"github.com/yairfalse/birthmark/pkg/resource"
)

var (
	arnPrefix  = regexp.MustCompile(`^arn:aws[a-z-]*:(iam|sts)::\d*:`)
	typePrefix = regexp.MustCompile(`^(user|role|assumed-role)/`)
	afterSlash = regexp.MustCompile(`/.*$`)
	domainPart = regexp.MustCompile(`^.*?\\`)
	emailPart  = regexp.MustCompile(`@.*$`)
)

// Normalize reduces a raw actor identity to a short creator name. The
// rules run in sequence on the output of the previous one:
//
//	arn:aws:sts::123456789012:assumed-role/Admin/alice@example.com -> Admin
//	arn:aws:iam::123456789012:user/alice                           -> alice
//	CORP\alice                                                     -> alice
//	alice@example.com                                              -> alice
//
// An empty identity becomes resource.UnknownCreator.
func Normalize(raw string) string {
	name := strings.TrimSpace(raw)
	if name == "" {
		return resource.UnknownCreator
	}

	name = arnPrefix.ReplaceAllString(name, "")
	name = typePrefix.ReplaceAllString(name, "")
	name = afterSlash.ReplaceAllString(name, "")
	name = domainPart.ReplaceAllString(name, "")
	name = emailPart.ReplaceAllString(name, "")

	if name == "" {
		return resource.UnknownCreator
	}
	return name
}

// Truncate shortens s to max runes, ending in "..." when cut.
func Truncate(s string, max int) string {
	r := []rune(s)
	if max <= 3 || len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}
