package respond

import (
	"strconv"
	"strings"
)

type mediaRange struct {
	typ     string
	subtype string
	q       float64
}

var (
	jsonTypes = []string{"application/problem+json", "application/json"}
	cborTypes = []string{"application/problem+cbor", "application/cbor"}
)

// parseAccept splits an Accept header into media ranges. Types and subtypes
// are lowercased; a missing subtype becomes "*"; an invalid or out-of-range
// q parameter counts as 1.0 and the last q parameter wins.
func parseAccept(header string) []mediaRange {
	var ranges []mediaRange
	for part := range strings.SplitSeq(header, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		params := strings.Split(part, ";")
		mr := mediaRange{q: 1.0}

		mt := strings.ToLower(strings.TrimSpace(params[0]))
		if typ, sub, ok := strings.Cut(mt, "/"); ok {
			mr.typ, mr.subtype = strings.TrimSpace(typ), strings.TrimSpace(sub)
		} else {
			mr.typ, mr.subtype = mt, "*"
		}

		for _, p := range params[1:] {
			key, value, ok := strings.Cut(strings.TrimSpace(p), "=")
			if !ok || strings.ToLower(strings.TrimSpace(key)) != "q" {
				continue
			}
			q, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
			if err != nil || q < 0 || q > 1 {
				q = 1.0
			}
			mr.q = q
		}
		ranges = append(ranges, mr)
	}
	return ranges
}

// specificity ranks how precisely r names mediaType; -1 means no match.
//
//	*/*                        0
//	application/*              1
//	application/*+cbor         2
//	application/cbor           3
//	application/problem+cbor   4
func specificity(r mediaRange, mediaType string) int {
	typ, sub, _ := strings.Cut(mediaType, "/")
	switch {
	case r.typ == "*" && r.subtype == "*":
		return 0
	case r.typ != typ:
		return -1
	case r.subtype == "*":
		return 1
	case strings.HasPrefix(r.subtype, "*+"):
		suffix := r.subtype[2:]
		if sub == suffix || strings.HasSuffix(sub, "+"+suffix) {
			return 2
		}
		return -1
	case r.subtype == sub:
		if strings.Contains(sub, "+") {
			return 4
		}
		return 3
	default:
		return -1
	}
}

// score returns the best acceptable (q, specificity) pair for a format. For
// each concrete type the most specific matching range decides its q value.
func score(ranges []mediaRange, types []string) (float64, int, bool) {
	bestQ, bestRank, found := 0.0, -1, false
	for _, t := range types {
		rank, q := -1, 0.0
		for _, r := range ranges {
			if s := specificity(r, t); s > rank {
				rank, q = s, r.q
			}
		}
		if rank < 0 || q <= 0 {
			continue
		}
		if !found || q > bestQ || (q == bestQ && rank > bestRank) {
			bestQ, bestRank, found = q, rank, true
		}
	}
	return bestQ, bestRank, found
}

// selectFormat reports whether the problem should be rendered as CBOR.
// q-value ranks first, specificity breaks ties, and JSON wins remaining ties.
func selectFormat(accept string) bool {
	ranges := parseAccept(accept)
	if len(ranges) == 0 {
		return false
	}
	cq, crank, cok := score(ranges, cborTypes)
	if !cok {
		return false
	}
	jq, jrank, jok := score(ranges, jsonTypes)
	if !jok {
		return true
	}
	if cq != jq {
		return cq > jq
	}
	return crank > jrank
}
