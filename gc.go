package lisp

// The collector runs in two stages. Stage one is a mark-sweep over the pair
// pool: the roots are the global environment and every stack cell, and the
// sweep rebuilds the free list from whatever stayed unmarked. Stage two
// compacts the atom/string heap: every live reference into the heap is first
// relinked into a per-entry list threaded through the cells themselves, then
// entries are slid down and their referrers updated in one bottom-up walk.
//
// Pair index 0 is a sentinel. The sweep never links it into the free list,
// so fp == 0 always means the list is empty and an ordinal of 0 terminates
// the chain.

func (it *Interp) pairMarked(i uint32) bool {
	return it.used[i>>6]&(1<<(i>>1&31)) != 0
}

func (it *Interp) markPair(i uint32) {
	it.used[i>>6] |= 1 << (i >> 1 & 31)
}

// gc collects both stages and returns the number of free pool cells, raising
// out-of-memory when nothing came back. Breaks are never delivered in here:
// the break flag is only polled at evaluator iteration boundaries.
func (it *Interp) gc() uint32 {
	for i := range it.used {
		it.used[i] = 0
	}
	if isPair(it.env) {
		it.mark(ordOf(it.env))
	}
	for i := it.sp; i < it.n; i++ {
		if isPair(it.cell[i]) {
			it.mark(ordOf(it.cell[i]))
		}
	}
	free := it.sweep()
	it.compact()
	T().Debugf("gc: %d pool cells free, heap at %d of %d bytes", free, it.hp-it.h, (it.sp-1)<<3-it.h)
	if free == 0 {
		raise(ErrCodeOutOfMemory, "out of memory")
	}
	return free
}

// GC forces a collection and returns the number of free pool cells.
func (it *Interp) GC() uint32 { return it.gc() }

func (it *Interp) mark(i uint32) {
	if it.recMark {
		it.markRec(i)
	} else {
		it.markPR(i)
	}
}

// markRec marks the pairs reachable from pair i: recursion on the car,
// iteration on the cdr, so plain lists cost no native stack.
func (it *Interp) markRec(i uint32) {
	for !it.pairMarked(i) {
		it.markPair(i)
		if isPair(it.cell[i]) {
			it.markRec(ordOf(it.cell[i]))
		}
		if !isPair(it.cell[i+1]) {
			break
		}
		i = ordOf(it.cell[i+1])
	}
}

// markPR is the pointer-reversal variant: it descends by reversing the
// car/cdr reference it came through and ascends by restoring it, keeping the
// entire traversal state inside the cells. The parity of the cell index says
// whether the reversed reference sits in a car (even) or a cdr (odd), which
// is enough to know where to resume after ascending. Native stack use is
// O(1), so marking cannot fail under stack pressure.
func (it *Interp) markPR(i uint32) {
	j := it.n // cell above; n means we are at the root
	if it.pairMarked(i) {
		return
	}
	for j < it.n || i&1 == 0 {
		for { // descend, car before cdr, reversing as we go
			it.markPair(i)
			k, down := it.downFrom(i)
			if !down {
				i++
				if k, down = it.downFrom(i); !down {
					break
				}
			}
			it.cell[i] = box(tag(it.cell[i]), j)
			j = i
			i = k
		}
		for j < it.n { // ascend, restoring the reversed references
			k := i
			i = j
			j = ordOf(it.cell[i])
			it.cell[i] = box(tag(it.cell[i]), k&^1)
			if i&1 == 0 {
				break // back in a car cell: its cdr is still unvisited
			}
		}
	}
}

// downFrom reports whether cell i holds an unmarked pair to descend into.
func (it *Interp) downFrom(i uint32) (uint32, bool) {
	if !isPair(it.cell[i]) {
		return 0, false
	}
	k := ordOf(it.cell[i])
	return k, !it.pairMarked(k)
}

// sweep rebuilds the free list from the unmarked pairs and returns the
// number of cells freed. Pair 0 stays out of the list.
func (it *Interp) sweep() uint32 {
	it.fp = 0
	var freed uint32
	for i := it.p/2 - 1; i >= 1; i-- {
		if it.used[i>>5]&(1<<(i&31)) == 0 {
			it.cell[2*i] = box(tagNil, it.fp)
			it.fp = 2 * i
			freed += 2
		}
	}
	return freed
}

// link prepends cell i to the relink list of the heap entry it references:
// the entry's back-reference field holds the newest referrer and each
// referrer's ordinal holds the next one down the list.
func (it *Interp) link(i uint32) {
	o := ordOf(it.cell[i])
	k := getRef(it.heap, o-refW)
	putRef(it.heap, o-refW, i)
	it.cell[i] = box(tag(it.cell[i]), k)
}

// compact removes dead atoms/strings and slides the live ones down,
// updating every referring cell. Entry bytes are preserved verbatim, so
// atoms stay interned across collections.
func (it *Interp) compact() {
	for i := it.h; i < it.hp; i += it.strlenAt(i+refW) + refW + 1 {
		putRef(it.heap, i, it.n)
	}
	for i := uint32(0); i < it.p; i++ {
		if it.pairMarked(i) && isAtomStr(it.cell[i]) {
			it.link(i)
		}
	}
	for i := it.sp; i < it.n; i++ {
		if isAtomStr(it.cell[i]) {
			it.link(i)
		}
	}
	end := it.hp
	it.hp = it.h
	for i := it.h; i < end; {
		k := getRef(it.heap, i)
		n := it.strlenAt(i+refW) + refW + 1
		if k < it.n { // live: relink referrers to the new offset, then move
			for k < it.n {
				l := ordOf(it.cell[k])
				it.cell[k] = box(tag(it.cell[k]), it.hp+refW)
				k = l
			}
			if it.hp < i {
				copy(it.heap[it.hp:it.hp+n], it.heap[i:i+n])
			}
			it.hp += n
		}
		i += n
	}
}
