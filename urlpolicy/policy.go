package urlpolicy

import (
	"fmt"
	"path"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/mwantia/s3fs/data"
)

// DefaultPresignTimeout applies to presigned rules without an explicit timeout.
const DefaultPresignTimeout = 60 * time.Second

type presignRule struct {
	pattern *regexp.Regexp
	timeout time.Duration
}

// Policy decides how the external URL of a key is built.
// Patterns are unanchored regular expressions matched against the key
// relative to the mount root; the first matching rule of a kind wins.
type Policy struct {
	presigned []presignRule
	saveas    []*regexp.Regexp
	torrents  []*regexp.Regexp
}

// Decision is the outcome of matching one key against a Policy.
type Decision struct {
	Presign bool
	Timeout time.Duration

	// SaveAs forces a download; Disposition holds the response header value
	SaveAs      bool
	Disposition string

	Torrent bool
}

// Signed reports whether the URL must carry a signature.
func (d Decision) Signed() bool {
	return d.Presign || d.SaveAs
}

// ParsePolicy compiles the configured rules. Presigned entries have the
// form "timeout|pattern" with the timeout in seconds, or just "pattern".
func ParsePolicy(presigned, saveas, torrents []string) (*Policy, error) {
	p := &Policy{}

	for _, entry := range presigned {
		rule, err := parsePresignRule(entry)
		if err != nil {
			return nil, err
		}
		p.presigned = append(p.presigned, rule)
	}

	var err error
	if p.saveas, err = compileAll("saveas", saveas); err != nil {
		return nil, err
	}
	if p.torrents, err = compileAll("torrents", torrents); err != nil {
		return nil, err
	}

	return p, nil
}

func parsePresignRule(entry string) (presignRule, error) {
	rule := presignRule{timeout: DefaultPresignTimeout}

	pattern := entry
	if timeout, rest, found := strings.Cut(entry, "|"); found {
		seconds, err := strconv.Atoi(strings.TrimSpace(timeout))
		if err != nil || seconds <= 0 {
			return rule, fmt.Errorf("%w: invalid presigned timeout in %q", data.ErrConfig, entry)
		}
		rule.timeout = time.Duration(seconds) * time.Second
		pattern = rest
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		return rule, fmt.Errorf("%w: invalid presigned pattern %q: %v", data.ErrConfig, pattern, err)
	}
	rule.pattern = re
	return rule, nil
}

func compileAll(kind string, patterns []string) ([]*regexp.Regexp, error) {
	result := make([]*regexp.Regexp, 0, len(patterns))
	for _, pattern := range patterns {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid %s pattern %q: %v", data.ErrConfig, kind, pattern, err)
		}
		result = append(result, re)
	}
	return result, nil
}

// Match evaluates every rule kind for key. Torrents are only offered for
// public URLs, so a presigned or forced-download match suppresses them.
func (p *Policy) Match(key string) Decision {
	var d Decision

	for _, rule := range p.presigned {
		if rule.pattern.MatchString(key) {
			d.Presign = true
			d.Timeout = rule.timeout
			break
		}
	}

	for _, re := range p.saveas {
		if re.MatchString(key) {
			d.SaveAs = true
			d.Disposition = `attachment; filename="` + path.Base(key) + `"`
			break
		}
	}

	if d.Signed() {
		return d
	}

	for _, re := range p.torrents {
		if re.MatchString(key) {
			d.Torrent = true
			break
		}
	}

	return d
}
