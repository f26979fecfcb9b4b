package traffic

import (
	"strconv"
)

type (
	// Target one entry of a serving service's status.traffic
	Target struct {
		RevisionName      string `json:"revisionName"`
		ConfigurationName string `json:"configurationName,omitempty"`
		LatestRevision    *bool  `json:"latestRevision,omitempty"`
		Tag               string `json:"tag,omitempty"`
		Percent           *int64 `json:"percent,omitempty"`
		URL               string `json:"url,omitempty"`
	}
	// Summary traffic routed to a single revision
	Summary struct {
		Percent int64    `json:"percent"`
		Label   string   `json:"label,omitempty"`
		URLs    []string `json:"urls"`
	}
)

// ForRevision sums the percentages of all targets routed to revision and
// collects their urls in order. Label is "<percent>%" for non-zero traffic.
func ForRevision(targets []Target, revision string) Summary {
	s := Summary{URLs: []string{}}
	for _, target := range targets {
		if target.RevisionName != revision {
			continue
		}
		if target.Percent != nil {
			s.Percent += *target.Percent
		}
		if target.URL != "" {
			s.URLs = append(s.URLs, target.URL)
		}
	}
	if s.Percent != 0 {
		s.Label = strconv.FormatInt(s.Percent, 10) + "%"
	}
	return s
}

// ByRevision calls ForRevision for every revision
func ByRevision(targets []Target, revisions []string) map[string]Summary {
	ret := make(map[string]Summary, len(revisions))
	for _, revision := range revisions {
		ret[revision] = ForRevision(targets, revision)
	}
	return ret
}
