package network

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"
	libp2p "github.com/libp2p/go-libp2p"
	libp2phost "github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	ma "github.com/multiformats/go-multiaddr"

	"github.com/clusterscope/clusterscope/internal/processor"
	"github.com/clusterscope/clusterscope/internal/wire"
)

const (
	childrenProtocol   = "/clusterscope/children/1.0.0"
	membershipProtocol = "/clusterscope/membership/1.0.0"
)

// ChildrenProvider answers a remote children() request for a worker this
// node hosts. It is never asked about a worker it doesn't own.
type ChildrenProvider func(wid processor.WorkerId) ([]processor.Processor, error)

// MembershipListener is invoked whenever a peer announces (or
// re-announces) its own worker identity and children snapshot; callers
// wire this straight to processor.Registry.WorkerJoined.
type MembershipListener func(wid processor.WorkerId, node uuid.UUID, children []processor.Processor)

// Node is one worker's libp2p endpoint: it answers children() queries
// about itself, issues them against other workers on behalf of
// internal/processor.Registry, and both sends and receives membership
// announcements.
type Node struct {
	host libp2phost.Host

	mu    sync.RWMutex
	peers map[processor.WorkerId]peer.AddrInfo

	self     processor.WorkerId
	selfNode uuid.UUID
	provider ChildrenProvider
	listener MembershipListener
}

// NewNode starts a libp2p host bound to this worker's persistent
// identity and installs the children()/membership stream handlers.
func NewNode(self processor.WorkerId, selfNode uuid.UUID, provider ChildrenProvider, listener MembershipListener) (*Node, error) {
	priv, err := loadOrGenerateKey()
	if err != nil {
		return nil, fmt.Errorf("network: loading node identity: %w", err)
	}

	h, err := libp2p.New(libp2p.Identity(priv))
	if err != nil {
		return nil, fmt.Errorf("network: starting libp2p host: %w", err)
	}

	n := &Node{
		host:     h,
		peers:    make(map[processor.WorkerId]peer.AddrInfo),
		self:     self,
		selfNode: selfNode,
		provider: provider,
		listener: listener,
	}

	h.SetStreamHandler(childrenProtocol, n.handleChildrenRequest)
	h.SetStreamHandler(membershipProtocol, n.handleMembershipAnnounce)
	return n, nil
}

// Addr returns this node's dialable multiaddr, to hand to peers out of
// band (e.g. via the YAML topology file) so they can RegisterPeer it.
func (n *Node) Addr() string {
	addrs := n.host.Addrs()
	if len(addrs) == 0 {
		return ""
	}
	return fmt.Sprintf("%s/p2p/%s", addrs[0].String(), n.host.ID().String())
}

// RegisterPeer records the dialable multiaddr for a remote worker, so
// Query and Announce know where to send it.
func (n *Node) RegisterPeer(wid processor.WorkerId, multiaddr string) error {
	maddr, err := ma.NewMultiaddr(multiaddr)
	if err != nil {
		return fmt.Errorf("network: invalid multiaddr for worker %d: %w", wid, err)
	}
	info, err := peer.AddrInfoFromP2pAddr(maddr)
	if err != nil {
		return fmt.Errorf("network: invalid peer address for worker %d: %w", wid, err)
	}
	n.mu.Lock()
	n.peers[wid] = *info
	n.mu.Unlock()
	return nil
}

// Query implements processor.RemoteChildrenFunc: it asks the worker
// identified by wid for its currently attached processors over a fresh
// libp2p stream.
func (n *Node) Query(ctx context.Context, wid processor.WorkerId) ([]processor.Processor, error) {
	n.mu.RLock()
	info, ok := n.peers[wid]
	n.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("network: no known address for worker %d", wid)
	}

	if err := n.host.Connect(ctx, info); err != nil {
		return nil, fmt.Errorf("network: connecting to worker %d: %w", wid, err)
	}
	stream, err := n.host.NewStream(ctx, info.ID, childrenProtocol)
	if err != nil {
		return nil, fmt.Errorf("network: opening children() stream to worker %d: %w", wid, err)
	}
	defer stream.Close()

	req := make([]byte, 8)
	binary.LittleEndian.PutUint64(req, uint64(wid))
	if _, err := stream.Write(req); err != nil {
		return nil, fmt.Errorf("network: writing children() request to worker %d: %w", wid, err)
	}
	// Half-close so handleChildrenRequest's io.ReadAll sees EOF and
	// writes its response; the read side stays open for that response.
	if err := stream.CloseWrite(); err != nil {
		return nil, fmt.Errorf("network: closing children() request stream to worker %d: %w", wid, err)
	}

	resp, err := io.ReadAll(stream)
	if err != nil {
		return nil, fmt.Errorf("network: reading children() response from worker %d: %w", wid, err)
	}
	return wire.DecodeChildren(resp)
}

// Announce sends this worker's current children snapshot to a peer,
// feeding the peer's MembershipListener (spec §6 worker_joined path).
func (n *Node) Announce(ctx context.Context, target peer.AddrInfo, children []processor.Processor) error {
	if err := n.host.Connect(ctx, target); err != nil {
		return fmt.Errorf("network: connecting to announce target: %w", err)
	}
	stream, err := n.host.NewStream(ctx, target.ID, membershipProtocol)
	if err != nil {
		return fmt.Errorf("network: opening membership stream: %w", err)
	}
	defer stream.Close()

	payload, err := n.encodeAnnouncement(children)
	if err != nil {
		return err
	}
	_, err = stream.Write(payload)
	return err
}

func (n *Node) encodeAnnouncement(children []processor.Processor) ([]byte, error) {
	body, err := wire.EncodeChildren(children)
	if err != nil {
		return nil, err
	}
	header := make([]byte, 24)
	binary.LittleEndian.PutUint64(header[:8], uint64(n.self))
	nodeBytes, _ := n.selfNode.MarshalBinary()
	copy(header[8:24], nodeBytes)
	return append(header, body...), nil
}

func (n *Node) handleChildrenRequest(s network.Stream) {
	defer s.Close()

	data, err := io.ReadAll(s)
	if err != nil || len(data) < 8 {
		return
	}
	wid := processor.WorkerId(binary.LittleEndian.Uint64(data))
	if wid != n.self || n.provider == nil {
		return
	}

	procs, err := n.provider(wid)
	if err != nil {
		return
	}
	resp, err := wire.EncodeChildren(procs)
	if err != nil {
		return
	}
	s.Write(resp)
}

func (n *Node) handleMembershipAnnounce(s network.Stream) {
	defer s.Close()

	data, err := io.ReadAll(s)
	if err != nil || len(data) < 24 {
		return
	}
	wid := processor.WorkerId(binary.LittleEndian.Uint64(data[:8]))
	nodeID, err := uuid.FromBytes(data[8:24])
	if err != nil {
		return
	}
	children, err := wire.DecodeChildren(data[24:])
	if err != nil {
		return
	}
	if n.listener != nil {
		n.listener(wid, nodeID, children)
	}
}

// Close shuts down the libp2p host.
func (n *Node) Close() error {
	return n.host.Close()
}
