package gen

import (
	"encoding/csv"
	"fmt"
	"log"
	"math/rand"
	"os"
	"strconv"
	"strings"
)

// Route is one client ASN with its address range and egress interface.
type Route struct {
	ASN        uint16
	SubnetBits uint8
	RangeStart uint32
	RangeEnd   uint32
	NextHop    uint32
	IfIndex    uint16
}

// Interface is a peering interface on the emulated exporter.
type Interface struct {
	IfIndex uint16
	NextHop uint32
}

// The emulated exporter's topology: five peering interfaces facing the
// client ASNs and one internal interface facing the server pool.
var peeringInterfaces = []Interface{
	{IfIndex: 10, NextHop: ipUint32(10, 0, 10, 2)},
	{IfIndex: 11, NextHop: ipUint32(10, 0, 20, 2)},
	{IfIndex: 12, NextHop: ipUint32(10, 0, 30, 2)},
	{IfIndex: 13, NextHop: ipUint32(10, 0, 40, 2)},
	{IfIndex: 14, NextHop: ipUint32(10, 0, 0, 2)},
}

const (
	internalASN     uint16 = 65000
	internalMask    uint8  = 24
	internalIfIndex uint16 = 100
)

var internalNextHop = ipUint32(10, 1, 1, 2)

func ipUint32(a, b, c, d byte) uint32 {
	return uint32(a)<<24 | uint32(b)<<16 | uint32(c)<<8 | uint32(d)
}

// synthRoutes builds a deterministic random route table of n client ASNs.
// ASNs stay below 64000 so they read as public, and address ranges avoid
// the 10/8 space used by the exporter's own interfaces.
func synthRoutes(rng *rand.Rand, n int) []Route {
	routes := make([]Route, 0, n)
	seen := make(map[uint16]bool, n)
	for len(routes) < n {
		asn := uint16(rng.Intn(63999) + 1)
		if seen[asn] {
			continue
		}
		octet := byte(rng.Intn(213) + 11)
		if octet == 127 || octet == 10 {
			continue
		}
		bits := uint8(rng.Intn(9) + 16) // /16 .. /24
		size := uint32(1) << (32 - bits)
		network := (uint32(octet)<<24 | uint32(rng.Uint32())&0x00ffffff) &^ (size - 1)
		seen[asn] = true
		iface := peeringInterfaces[rng.Intn(len(peeringInterfaces))]
		routes = append(routes, Route{
			ASN:        asn,
			SubnetBits: bits,
			RangeStart: network + 2,
			RangeEnd:   network + size - 2,
			NextHop:    iface.NextHop,
			IfIndex:    iface.IfIndex,
		})
	}
	return routes
}

// loadIP2ASNRoutes reads an ip2asn v4 TSV file (range_start, range_end,
// as_number, country, description), filters out unusable entries and selects
// n routes at random. A cleaned copy is cached next to the source file so
// repeated runs skip the filtering pass.
func loadIP2ASNRoutes(rng *rand.Rand, path string, n int) ([]Route, error) {
	cleanPath := path + ".clean"
	rows, err := readTSV(cleanPath)
	if err == nil {
		log.Printf("Loaded %d cleaned routes from %s", len(rows), cleanPath)
	} else {
		rows, err = readTSV(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read ip2asn file: %w", err)
		}
		rows = cleanIP2ASN(rows)
		log.Printf("Cleaned ip2asn data down to %d routes", len(rows))
		if err := writeTSV(cleanPath, rows); err != nil {
			log.Printf("Warning: could not cache cleaned route list: %v", err)
		}
	}

	if len(rows) < n {
		return nil, fmt.Errorf("ip2asn file has %d usable routes, need %d", len(rows), n)
	}

	routes := make([]Route, 0, n)
	for len(routes) < n {
		i := rng.Intn(len(rows))
		row := rows[i]
		rows[i] = rows[len(rows)-1]
		rows = rows[:len(rows)-1]

		start, _ := strconv.ParseUint(row[0], 10, 32)
		end, _ := strconv.ParseUint(row[1], 10, 32)
		asn, _ := strconv.ParseUint(row[2], 10, 16)
		iface := peeringInterfaces[rng.Intn(len(peeringInterfaces))]
		routes = append(routes, Route{
			ASN:        uint16(asn),
			SubnetBits: subnetBits(uint32(end - start)),
			RangeStart: uint32(start) + 2,
			RangeEnd:   uint32(end) - 1,
			NextHop:    iface.NextHop,
			IfIndex:    iface.IfIndex,
		})
	}
	return routes, nil
}

// cleanIP2ASN drops entries that cannot appear as plausible client routes:
// unrouted and reserved ranges, DNIC blocks, private or zero ASNs, and
// ranges too small to draw addresses from.
func cleanIP2ASN(rows [][]string) [][]string {
	kept := rows[:0]
	for _, row := range rows {
		if len(row) < 5 {
			continue
		}
		desc := row[4]
		if desc == "Not routed" || desc == "-Reserved AS-" || strings.HasPrefix(desc, "DNIC-") {
			continue
		}
		asn, err := strconv.ParseUint(row[2], 10, 64)
		if err != nil || asn == 0 || asn > 65535 {
			continue
		}
		start, err1 := strconv.ParseUint(row[0], 10, 32)
		end, err2 := strconv.ParseUint(row[1], 10, 32)
		if err1 != nil || err2 != nil || end < start+254 {
			continue
		}
		kept = append(kept, row)
	}
	return kept
}

// subnetBits approximates the prefix length covering a range of the given
// size, clamped to the /8../24 window NetFlow v5 masks are drawn from.
func subnetBits(size uint32) uint8 {
	bits := uint8(32)
	for s := size; s > 0; s >>= 1 {
		bits--
	}
	if bits < 8 {
		return 8
	}
	if bits > 24 {
		return 24
	}
	return bits
}

func readTSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.Comma = '\t'
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	return r.ReadAll()
}

func writeTSV(path string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	w.Comma = '\t'
	if err := w.WriteAll(rows); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}
