package gen

import (
	"FlowForge/internal/config"
	"FlowForge/internal/model"
	"log"
	"math/rand"
)

// Traffic model constants, following the emulated client/server exchange:
// one side of each conversation carries the bulk transfer, the other the
// acknowledgement stream.
const (
	minLightBytes = 2_000_000
	maxLightBytes = 4_000_000
	minHeavyBytes = 4_000_000
	maxHeavyBytes = 20_000_000

	// Percent chance the server side carries the heavy direction.
	serverHeavyWeight = 85

	// Reverse flows export after the forward flow, shifted by the server
	// turnaround plus scheduling jitter.
	serverLatencyMs = 15
	maxJitterMs     = 6

	bytesPerPacket = 1200

	// Flow start precedes export by up to this much (NetFlow "first").
	maxFlowAgeMs = 60000

	ephemeralPortLow  = 49152
	ephemeralPortHigh = 65535
)

var serverPorts = []uint16{443, 80, 22}

// Protocol mix: TCP bulk transfers dominate, with a minor UDP share and a
// trickle of ICMP.
const (
	tcpWeight = 90
	udpWeight = 8
)

var (
	serverRangeStart = ipUint32(10, 10, 10, 10)
	serverRangeEnd   = ipUint32(10, 10, 10, 100)
)

// Generator synthesizes bidirectional flow records. All randomness flows
// through a single seeded source, so a fixed seed reproduces the exact
// record sequence. Not safe for concurrent use; the pacer loop is the sole
// caller.
type Generator struct {
	rng     *rand.Rand
	routes  []Route
	servers []uint32

	// Reverse-direction flows scheduled for a future millisecond.
	future map[int64][]*model.FlowRecord
	lastMs int64
}

// NewGenerator builds a generator with its route and server tables. The
// route table comes from an ip2asn TSV when configured, otherwise it is
// synthesized from the same seed.
func NewGenerator(cfg config.TrafficConfig, seed int64) (*Generator, error) {
	rng := rand.New(rand.NewSource(seed))

	var routes []Route
	var err error
	if cfg.IP2ASNPath != "" {
		routes, err = loadIP2ASNRoutes(rng, cfg.IP2ASNPath, cfg.NumRoutes)
		if err != nil {
			return nil, err
		}
	} else {
		routes = synthRoutes(rng, cfg.NumRoutes)
	}
	log.Printf("Route table ready with %d client ASNs", len(routes))

	servers := make([]uint32, 0, serverRangeEnd-serverRangeStart+1)
	for ip := serverRangeStart; ip <= serverRangeEnd; ip++ {
		servers = append(servers, ip)
	}

	return &Generator{
		rng:     rng,
		routes:  routes,
		servers: servers,
		future:  make(map[int64][]*model.FlowRecord),
		lastMs:  -1,
	}, nil
}

// Emit produces the flows due in the window (lastMs, nowMs]: buffered
// reverse flows first, then fresh conversation pairs until at least want
// records came out. The return may exceed want by the buffered surplus; the
// pacer's drift correction absorbs the difference. Records are emitted in
// non-decreasing timestamp order.
func (g *Generator) Emit(nowMs int64, want int) []*model.FlowRecord {
	out := make([]*model.FlowRecord, 0, want)
	for ms := g.lastMs + 1; ms <= nowMs; ms++ {
		if due, ok := g.future[ms]; ok {
			out = append(out, due...)
			delete(g.future, ms)
		}
	}
	g.lastMs = nowMs

	for len(out) < want {
		fwd, rev := g.pair(nowMs)
		out = append(out, fwd)
		g.future[rev.Timestamp] = append(g.future[rev.Timestamp], rev)
	}
	return out
}

// Pending reports how many reverse flows are still buffered. Flows whose
// slot never arrives before the run ends are dropped with the buffer.
func (g *Generator) Pending() int {
	n := 0
	for _, due := range g.future {
		n += len(due)
	}
	return n
}

// pair generates one conversation: the client->server flow exporting now
// and the server->client flow exporting after the server turnaround.
func (g *Generator) pair(nowMs int64) (*model.FlowRecord, *model.FlowRecord) {
	route := g.routes[g.rng.Intn(len(g.routes))]
	client := route.RangeStart + uint32(g.rng.Int63n(int64(route.RangeEnd-route.RangeStart)+1))
	server := g.servers[g.rng.Intn(len(g.servers))]

	proto := g.protocol()
	var clientPort, serverPort uint16
	var clientBytes, serverBytes uint32
	if proto == model.ProtoICMP {
		clientBytes = uint32(g.rng.Intn(20)+1) * 64
		serverBytes = clientBytes
	} else {
		clientPort = uint16(g.rng.Intn(ephemeralPortHigh-ephemeralPortLow+1) + ephemeralPortLow)
		serverPort = serverPorts[g.rng.Intn(len(serverPorts))]

		heavy := uint32(g.rng.Intn(maxHeavyBytes-minHeavyBytes+1) + minHeavyBytes)
		light := uint32(g.rng.Intn(maxLightBytes-minLightBytes+1) + minLightBytes)
		if g.rng.Intn(100) >= serverHeavyWeight {
			clientBytes, serverBytes = heavy, light
		} else {
			clientBytes, serverBytes = light, heavy
		}
	}

	clientFirst := maxInt64(0, nowMs-int64(g.rng.Intn(maxFlowAgeMs)+1))
	serverFirst := maxInt64(0, nowMs-int64(g.rng.Intn(maxFlowAgeMs)+1))
	revMs := nowMs + serverLatencyMs + int64(g.rng.Intn(maxJitterMs))

	fwd := &model.FlowRecord{
		Timestamp: nowMs,
		SrcAddr:   client,
		DstAddr:   server,
		NextHop:   internalNextHop,
		Input:     route.IfIndex,
		Output:    internalIfIndex,
		Packets:   packetCount(clientBytes),
		Octets:    clientBytes,
		First:     clientFirst,
		Last:      nowMs,
		SrcPort:   clientPort,
		DstPort:   serverPort,
		Protocol:  proto,
		SrcAS:     route.ASN,
		DstAS:     internalASN,
		SrcMask:   route.SubnetBits,
		DstMask:   internalMask,
	}
	rev := &model.FlowRecord{
		Timestamp: revMs,
		SrcAddr:   server,
		DstAddr:   client,
		NextHop:   route.NextHop,
		Input:     internalIfIndex,
		Output:    route.IfIndex,
		Packets:   packetCount(serverBytes),
		Octets:    serverBytes,
		First:     serverFirst,
		Last:      nowMs,
		SrcPort:   serverPort,
		DstPort:   clientPort,
		Protocol:  proto,
		SrcAS:     internalASN,
		DstAS:     route.ASN,
		SrcMask:   internalMask,
		DstMask:   route.SubnetBits,
	}
	return fwd, rev
}

func (g *Generator) protocol() uint8 {
	p := g.rng.Intn(100)
	switch {
	case p < tcpWeight:
		return model.ProtoTCP
	case p < tcpWeight+udpWeight:
		return model.ProtoUDP
	default:
		return model.ProtoICMP
	}
}

func packetCount(bytes uint32) uint32 {
	pkts := bytes / bytesPerPacket
	if pkts == 0 {
		pkts = 1
	}
	return pkts
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
