package domains

import "time"

// NodeStatus is the lifecycle state of a machine
type NodeStatus string

const (
	NodeStatusNew                 NodeStatus = "new"
	NodeStatusCommissioning       NodeStatus = "commissioning"
	NodeStatusFailedCommissioning NodeStatus = "failed_commissioning"
	NodeStatusMissing             NodeStatus = "missing"
	NodeStatusReady               NodeStatus = "ready"
	NodeStatusReserved            NodeStatus = "reserved"
	NodeStatusAllocated           NodeStatus = "allocated"
	NodeStatusDeploying           NodeStatus = "deploying"
	NodeStatusDeployed            NodeStatus = "deployed"
	NodeStatusRetired             NodeStatus = "retired"
	NodeStatusBroken              NodeStatus = "broken"
	NodeStatusFailedDeployment    NodeStatus = "failed_deployment"
	NodeStatusReleasing           NodeStatus = "releasing"
	NodeStatusFailedReleasing     NodeStatus = "failed_releasing"
	NodeStatusDiskErasing         NodeStatus = "disk_erasing"
	NodeStatusFailedDiskErasing   NodeStatus = "failed_disk_erasing"
	NodeStatusTesting             NodeStatus = "testing"
	NodeStatusFailedTesting       NodeStatus = "failed_testing"
	NodeStatusRescueMode          NodeStatus = "rescue_mode"
)

// AllNodeStatuses lists every lifecycle state
var AllNodeStatuses = []NodeStatus{
	NodeStatusNew, NodeStatusCommissioning, NodeStatusFailedCommissioning,
	NodeStatusMissing, NodeStatusReady, NodeStatusReserved, NodeStatusAllocated,
	NodeStatusDeploying, NodeStatusDeployed, NodeStatusRetired, NodeStatusBroken,
	NodeStatusFailedDeployment, NodeStatusReleasing, NodeStatusFailedReleasing,
	NodeStatusDiskErasing, NodeStatusFailedDiskErasing, NodeStatusTesting,
	NodeStatusFailedTesting, NodeStatusRescueMode,
}

// AcceptsFiles reports whether script output may be stored while in this state
func (s NodeStatus) AcceptsFiles() bool {
	switch s {
	case NodeStatusCommissioning, NodeStatusTesting, NodeStatusDeploying:
		return true
	}
	return false
}

// ResultType returns the script set purpose that is active in this state.
// The second return value is false when no script set runs in the state.
func (s NodeStatus) ResultType() (ResultType, bool) {
	switch s {
	case NodeStatusCommissioning:
		return ResultTypeCommissioning, true
	case NodeStatusTesting:
		return ResultTypeTesting, true
	case NodeStatusDeploying:
		return ResultTypeInstallation, true
	}
	return "", false
}

// TagVirtual is the reserved tag maintained from the virtuality probe
const TagVirtual = "virtual"

// Node represents a machine under provisioning control
type Node struct {
	ID                            int64      `db:"id"`
	NodeID                        string     `db:"node_id"`
	Hostname                      string     `db:"hostname"`
	Status                        NodeStatus `db:"status"`
	Owner                         *string    `db:"owner"`
	ErrorDescription              string     `db:"error_description"`
	Tags                          []string   `db:"tags"`
	CurrentCommissioningScriptSet *int64     `db:"current_commissioning_script_set_id"`
	CurrentTestingScriptSet       *int64     `db:"current_testing_script_set_id"`
	CurrentInstallationScriptSet  *int64     `db:"current_installation_script_set_id"`
	LastSeenAt                    time.Time  `db:"last_seen_at"`
}

// CurrentScriptSetID returns the active script set id for a purpose
func (n *Node) CurrentScriptSetID(rt ResultType) *int64 {
	switch rt {
	case ResultTypeCommissioning:
		return n.CurrentCommissioningScriptSet
	case ResultTypeTesting:
		return n.CurrentTestingScriptSet
	case ResultTypeInstallation:
		return n.CurrentInstallationScriptSet
	}
	return nil
}

// SetCurrentScriptSetID points the node at a new active script set
func (n *Node) SetCurrentScriptSetID(rt ResultType, id int64) {
	switch rt {
	case ResultTypeCommissioning:
		n.CurrentCommissioningScriptSet = &id
	case ResultTypeTesting:
		n.CurrentTestingScriptSet = &id
	case ResultTypeInstallation:
		n.CurrentInstallationScriptSet = &id
	}
}

// HasTag reports whether the node carries the tag
func (n *Node) HasTag(tag string) bool {
	for _, t := range n.Tags {
		if t == tag {
			return true
		}
	}
	return false
}
