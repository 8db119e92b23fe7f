/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package main

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/acronis/go-admission/expiry"
)

// expiryOpPrefix marks records of expiry work, e.g. "expiry:accounts_get_for_modify+accounts_remove".
const expiryOpPrefix = "expiry:"

const maxExpiryWorkCount = 1 << 20

type decisionCounts struct {
	Admitted  int
	Throttled int
}

// replayResult maps operations to their decision counts.
type replayResult map[string]*decisionCounts

func (r replayResult) add(op string, admitted bool) {
	counts, ok := r[op]
	if !ok {
		counts = &decisionCounts{}
		r[op] = counts
	}
	if admitted {
		counts.Admitted++
	} else {
		counts.Throttled++
	}
}

func (r replayResult) write(w io.Writer) error {
	ops := make([]string, 0, len(r))
	for op := range r {
		ops = append(ops, op)
	}
	sort.Strings(ops)
	for _, op := range ops {
		if _, err := fmt.Fprintf(w, "%s admitted=%d throttled=%d\n", op, r[op].Admitted, r[op].Throttled); err != nil {
			return err
		}
	}
	return nil
}

// replay feeds the engine with records "<unix nanos>,<operation>[,<count>]" in their order.
func replay(e *engine, reader io.Reader) (replayResult, error) {
	csvReader := csv.NewReader(reader)
	csvReader.Comment = '#'
	csvReader.FieldsPerRecord = -1
	csvReader.TrimLeadingSpace = true

	result := make(replayResult)
	for recNum := 1; ; recNum++ {
		record, err := csvReader.Read()
		if errors.Is(err, io.EOF) {
			return result, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read record #%d: %w", recNum, err)
		}
		if err = replayRecord(e, record, result); err != nil {
			return nil, fmt.Errorf("record #%d: %w", recNum, err)
		}
	}
}

func replayRecord(e *engine, record []string, result replayResult) error {
	if len(record) != 2 && len(record) != 3 {
		return fmt.Errorf("expected 2 or 3 fields, got %d", len(record))
	}
	nanos, err := strconv.ParseInt(strings.TrimSpace(record[0]), 10, 64)
	if err != nil {
		return fmt.Errorf("parse consensus time: %w", err)
	}
	consensusNow := time.Unix(0, nanos).UTC()
	op := strings.TrimSpace(record[1])
	var n uint64 = 1
	if len(record) == 3 {
		if n, err = strconv.ParseUint(strings.TrimSpace(record[2]), 10, 64); err != nil {
			return fmt.Errorf("parse count: %w", err)
		}
	}

	if kindsList, ok := strings.CutPrefix(op, expiryOpPrefix); ok {
		if n > maxExpiryWorkCount {
			return fmt.Errorf("count of expiry work %d exceeds %d", n, maxExpiryWorkCount)
		}
		var kinds []expiry.AccessKind
		for _, kind := range strings.Split(kindsList, "+") {
			for i := uint64(0); i < n; i++ {
				kinds = append(kinds, expiry.AccessKind(strings.TrimSpace(kind)))
			}
		}
		result.add(op, e.expiry.Allow(kinds, consensusNow))
		return nil
	}
	result.add(op, !e.throttling.ShouldThrottleN(op, n, consensusNow))
	return nil
}
