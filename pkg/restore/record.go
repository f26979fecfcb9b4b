package restore

import (
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DefaultNamespace is used for records without a namespace
const DefaultNamespace = "default"

type (
	// Record a virtual machine restore as listed by the cluster
	Record struct {
		APIVersion string   `json:"apiVersion,omitempty"`
		Kind       string   `json:"kind,omitempty"`
		Metadata   Metadata `json:"metadata"`
		Spec       Spec     `json:"spec"`
		Status     Status   `json:"status"`
	}
	Metadata struct {
		Name              string            `json:"name"`
		Namespace         string            `json:"namespace,omitempty"`
		UID               string            `json:"uid,omitempty"`
		CreationTimestamp string            `json:"creationTimestamp,omitempty"`
		Labels            map[string]string `json:"labels,omitempty"`
	}
	Spec struct {
		Target                     Target `json:"target"`
		VirtualMachineSnapshotName string `json:"virtualMachineSnapshotName"`
	}
	Target struct {
		APIGroup string `json:"apiGroup,omitempty"`
		Kind     string `json:"kind,omitempty"`
		Name     string `json:"name"`
	}
	Status struct {
		Complete    *bool       `json:"complete,omitempty"`
		RestoreTime Timestamp   `json:"restoreTime"`
		Conditions  []Condition `json:"conditions,omitempty"`
	}
	Condition struct {
		Type               string `json:"type"`
		Status             string `json:"status"`
		Reason             string `json:"reason,omitempty"`
		Message            string `json:"message,omitempty"`
		LastTransitionTime string `json:"lastTransitionTime,omitempty"`
	}
)

// SnapshotName is the grouping key of a record
func SnapshotName(r *Record) string {
	return r.Spec.VirtualMachineSnapshotName
}

// RestoreTime is the point in time a record was restored at
func RestoreTime(r *Record) Timestamp {
	return r.Status.RestoreTime
}

// NamespaceName returns the namespace of the record, falling back to DefaultNamespace.
func (r *Record) NamespaceName() string {
	if r.Metadata.Namespace == "" {
		return DefaultNamespace
	}
	return r.Metadata.Namespace
}

// ID namespace/name
func (r *Record) ID() string {
	return r.NamespaceName() + "/" + r.Metadata.Name
}
