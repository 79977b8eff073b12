package models

// ResourceKind names a ledgered environment resource.
type ResourceKind string

const (
	ResourceCPU              ResourceKind = "cpu"
	ResourceMemory           ResourceKind = "memory"
	ResourceDiskIO           ResourceKind = "disk-io"
	ResourceNetworkBandwidth ResourceKind = "network-bandwidth"
	ResourceFileHandles      ResourceKind = "file-handles"
	ResourceThreads          ResourceKind = "threads"
)

// AllResourceKinds lists every ledgered resource in registration order.
var AllResourceKinds = []ResourceKind{
	ResourceCPU,
	ResourceMemory,
	ResourceDiskIO,
	ResourceNetworkBandwidth,
	ResourceFileHandles,
	ResourceThreads,
}

// ConstraintKind classifies an environment constraint.
type ConstraintKind string

const (
	ConstraintSecurity    ConstraintKind = "security"
	ConstraintPerformance ConstraintKind = "performance"
	ConstraintResource    ConstraintKind = "resource"
	ConstraintNetwork     ConstraintKind = "network"
	ConstraintScheduling  ConstraintKind = "scheduling"
)

// Violation describes one failed constraint check. Checks always return the
// full violation list, never just the first hit.
type Violation struct {
	Constraint string         `json:"constraint"`
	Kind       ConstraintKind `json:"kind"`
	Detail     string         `json:"detail"`
}

// VisibilityLevel controls how much environment state an agent observes.
type VisibilityLevel string

const (
	// VisibilityFull exposes everything
	VisibilityFull VisibilityLevel = "FULL"
	// VisibilityNamespace exposes only the agent's namespace
	VisibilityNamespace VisibilityLevel = "NAMESPACE"
	// VisibilityProcess exposes only the agent's own processes and allocations
	VisibilityProcess VisibilityLevel = "PROCESS"
	// VisibilityNetwork exposes network state only
	VisibilityNetwork VisibilityLevel = "NETWORK"
	// VisibilityNone exposes nothing
	VisibilityNone VisibilityLevel = "NONE"
)
