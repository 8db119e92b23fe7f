/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package throttling

import (
	"fmt"
	"sort"
	"strings"

	"github.com/acronis/go-admission/throttle"
)

const milliOpsPerOp = 1000

// buildSummary describes the per-replica rate every throttle grants to every operation, e.g.:
//
//	Resolved throttles (after splitting capacity 2 ways) -
//	  ContractCall: min{6.00 tps (A), 5.00 tps (B)}
//	  CryptoTransfer: min{5000.00 tps (A)}
func buildSummary(replicas int, reqsByOp map[string][]throttle.Requirement) string {
	ops := make([]string, 0, len(reqsByOp))
	for op := range reqsByOp {
		ops = append(ops, op)
	}
	sort.Strings(ops)

	lines := make([]string, 0, len(ops)+1)
	lines = append(lines, fmt.Sprintf("Resolved throttles (after splitting capacity %d ways) - ", replicas))
	for _, op := range ops {
		reqs := reqsByOp[op]
		rates := make([]string, 0, len(reqs))
		for _, req := range reqs {
			rates = append(rates, fmt.Sprintf("%.2f tps (%s)", opsPerSecGranted(req), req.Throttle.Name()))
		}
		lines = append(lines, fmt.Sprintf("  %s: min{%s}", op, strings.Join(rates, ", ")))
	}
	return strings.Join(lines, "\n")
}

func opsPerSecGranted(req throttle.Requirement) float64 {
	return float64(req.Throttle.Mtps()) / float64(req.OpsRequired) / milliOpsPerOp
}
