package requests

import (
	"github.com/foomo/restoreserver/pkg/traffic"
)

// Latest - latest restore per snapshot in a namespace
type Latest struct {
	// namespace to look into
	Namespace string `json:"namespace"`
	// snapshots you are interested in, all of them if empty
	SnapshotNames []string `json:"snapshotNames"`
}

// Restores - all restores of a namespace in upstream order
type Restores struct {
	Namespace string `json:"namespace"`
}

// Namespaces - list known namespaces
type Namespaces struct{}

// Index - the whole index in all namespaces
type Index struct{}

// Update - request an update
type Update struct{}

// Repo - the raw restore collection
type Repo struct{}

// Traffic - summarize service traffic for revisions
type Traffic struct {
	// status.traffic of the service
	Traffic []traffic.Target `json:"traffic"`
	// revisions to summarize
	Revisions []string `json:"revisions"`
}
