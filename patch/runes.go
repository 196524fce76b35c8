// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package patch

import "github.com/AleutianAI/loom/address"

// Strings are diffed at rune granularity so that a keystroke in an editor
// becomes a one rune operation rather than a whole string replacement.
// The alignment is a longest common subsequence over runes; runs of
// adjacent deletions and insertions coalesce into single operations.

type editKind int

const (
	editMatch editKind = iota
	editDelete
	editInsert
)

type edit struct {
	kind editKind
	r    rune
}

func (d *differ) diffString(addr address.Address, old, new string) {
	if old == new {
		return
	}

	script := runeScript([]rune(old), []rune(new))

	// pos is the index in the evolving string where the next operation
	// applies, given the operations already emitted.
	pos := 0
	for i := 0; i < len(script); {
		if script[i].kind == editMatch {
			pos++
			i++
			continue
		}

		// Coalesce the run of non-matches starting here.
		deletes := 0
		var inserts []rune
		for ; i < len(script) && script[i].kind != editMatch; i++ {
			if script[i].kind == editDelete {
				deletes++
			} else {
				inserts = append(inserts, script[i].r)
			}
		}

		at := addr.Append(address.IndexSlot(pos))
		switch {
		case deletes > 0 && len(inserts) > 0:
			d.ops = append(d.ops, Replace{Address: at, Items: deletes, Value: string(inserts), Length: len(inserts)})
		case deletes > 0:
			d.ops = append(d.ops, Remove{Address: at, Items: deletes})
		default:
			d.ops = append(d.ops, Add{Address: at, Value: string(inserts), Length: len(inserts)})
		}
		pos += len(inserts)
	}
}

// runeScript returns the edit script aligning a to b under a longest
// common subsequence. Quadratic in the string lengths, which is fine for
// document-sized text.
func runeScript(a, b []rune) []edit {
	// lcs[i][j] is the LCS length of a[i:] and b[j:].
	lcs := make([][]int, len(a)+1)
	for i := range lcs {
		lcs[i] = make([]int, len(b)+1)
	}
	for i := len(a) - 1; i >= 0; i-- {
		for j := len(b) - 1; j >= 0; j-- {
			if a[i] == b[j] {
				lcs[i][j] = lcs[i+1][j+1] + 1
			} else if lcs[i+1][j] >= lcs[i][j+1] {
				lcs[i][j] = lcs[i+1][j]
			} else {
				lcs[i][j] = lcs[i][j+1]
			}
		}
	}

	var script []edit
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] == b[j]:
			script = append(script, edit{editMatch, a[i]})
			i++
			j++
		case lcs[i+1][j] >= lcs[i][j+1]:
			script = append(script, edit{editDelete, a[i]})
			i++
		default:
			script = append(script, edit{editInsert, b[j]})
			j++
		}
	}
	for ; i < len(a); i++ {
		script = append(script, edit{editDelete, a[i]})
	}
	for ; j < len(b); j++ {
		script = append(script, edit{editInsert, b[j]})
	}
	return script
}
