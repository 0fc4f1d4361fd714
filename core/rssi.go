package core

import "github.com/signalsfoundry/mlo-primary/model"

// PowerLookup returns the regulatory maximum transmit power, in dBm, of a
// pdev operating at the given centre frequency.
type PowerLookup interface {
	RegulatoryPower(psoc model.PSOCID, pdev uint8, freqMHz uint32) int
}

// PowerLookupFunc adapts a plain function to PowerLookup.
type PowerLookupFunc func(psoc model.PSOCID, pdev uint8, freqMHz uint32) int

func (f PowerLookupFunc) RegulatoryPower(psoc model.PSOCID, pdev uint8, freqMHz uint32) int {
	return f(psoc, pdev, freqMHz)
}

// linkFreq returns the centre frequency of a link, or 1 when it has no
// active channel. The sentinel pushes the frequency ratio outside every
// path-loss bucket.
func linkFreq(l LinkCandidate) uint32 {
	if !l.Channel.Active() {
		return 1
	}
	return l.Channel.FreqMHz
}

// tenPathLossDelta approximates 10*log10 of the frequency ratio from the
// ratio scaled by ten.
func tenPathLossDelta(ratio10 uint32) int {
	switch {
	case ratio10 >= 20 && ratio10 < 30:
		return 4
	case ratio10 >= 11 && ratio10 < 20:
		return 1
	case ratio10 >= 8 && ratio10 < 11:
		return 0
	case ratio10 >= 4 && ratio10 < 8:
		return -1
	case ratio10 >= 1 && ratio10 < 4:
		return -4
	default:
		return 0
	}
}

// DerivedRSSI estimates the RSSI a peer measured at rssi on the assoc link
// would show on cand. A higher regulatory power on cand raises the
// estimate; a higher relative frequency lowers it.
func DerivedRSSI(power PowerLookup, assoc, cand LinkCandidate, rssi int) int {
	assocFreq := linkFreq(assoc)
	freq := linkFreq(cand)

	diffTxPow := 0
	if power != nil {
		diffTxPow = power.RegulatoryPower(cand.PSOC, cand.Pdev, freq) -
			power.RegulatoryPower(assoc.PSOC, assoc.Pdev, assocFreq)
	}
	ratio10 := uint32(uint64(freq) * 10 / uint64(assocFreq))
	ten := diffTxPow*10 - tenPathLossDelta(ratio10) + rssi*10
	return ten / 10
}

// AverageLinkRSSI averages the derived RSSI over every link; the assoc link
// contributes the measured rssi as is. If assocLinkID is not among links the
// measured value is returned unchanged.
func AverageLinkRSSI(power PowerLookup, links []LinkCandidate, assocLinkID uint8, rssi int) int {
	assoc, ok := findCandidate(links, assocLinkID)
	if !ok || len(links) == 0 {
		return rssi
	}
	total := 0
	for _, l := range links {
		if l.LinkID == assoc.LinkID {
			total += rssi
			continue
		}
		total += DerivedRSSI(power, assoc, l, rssi)
	}
	return total / len(links)
}
