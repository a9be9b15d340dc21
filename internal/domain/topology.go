package domain

// Topology is chosen once per lobby membership and never renegotiated.
type Topology int

const (
	TopologyMesh Topology = iota
	TopologyStarHost
	TopologyStarClient
)

func (t Topology) String() string {
	switch t {
	case TopologyMesh:
		return "mesh"
	case TopologyStarHost:
		return "star-host"
	case TopologyStarClient:
		return "star-client"
	default:
		return "unknown"
	}
}

// TopologyFor picks the topology for a local id given the lobby mode.
func TopologyFor(local PeerID, mesh bool) Topology {
	switch {
	case mesh:
		return TopologyMesh
	case local == AuthorityID:
		return TopologyStarHost
	default:
		return TopologyStarClient
	}
}
