package index

import (
	"context"
	"math"
	"math/rand/v2"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/akidb/akidb/internal/akierr"
	"github.com/akidb/akidb/internal/model"
)

// bruteForceThreshold is the live-count below which Search scans linearly
// instead of walking the graph (spec.md §4.3: "below a small count
// threshold, fall back to a brute-force scan").
const bruteForceThreshold = 64

// node is one point in the graph. Nodes are never mutated in place after
// being published in a snapshot — HNSW republishes a new node value (and a
// new snapshot) on every change, so concurrent readers holding an older
// snapshot never observe a torn write.
type node struct {
	id        model.DocumentId
	vector    model.Vector
	payload   model.Payload
	level     int
	deleted   bool
	neighbors [][]model.DocumentId // len == level+1, neighbors[l] are this node's links at layer l
}

func (n *node) clone() *node {
	cp := *n
	cp.neighbors = make([][]model.DocumentId, len(n.neighbors))
	for i, lvl := range n.neighbors {
		cp.neighbors[i] = append([]model.DocumentId(nil), lvl...)
	}
	return &cp
}

// graphSnapshot is an immutable view of the graph. Readers load it once via
// an atomic pointer and never see a mutation mid-traversal (spec.md §4.3:
// "search is lock-free over a read-owned snapshot of the graph").
type graphSnapshot struct {
	nodes      map[model.DocumentId]*node
	entryPoint model.DocumentId
	hasEntry   bool
	maxLevel   int
	liveCount  int
}

// HNSW is the default in-process ANN index (spec.md §4.3).
type HNSW struct {
	dim      int
	distance model.DistanceMetric
	params   model.HNSWParams
	distFn   func(a, b model.Vector) float32
	less     func(a, b scored) bool

	writeMu sync.Mutex // single-writer lock discipline (spec.md §4.3)
	snap    atomic.Pointer[graphSnapshot]
}

// New builds an empty HNSW index for a collection with the given dimension,
// distance metric, and construction parameters.
func New(dim int, distance model.DistanceMetric, params model.HNSWParams) *HNSW {
	h := &HNSW{
		dim:      dim,
		distance: distance,
		params:   params,
		distFn:   distanceFunc(distance),
		less:     lessFor(distance),
	}
	h.snap.Store(&graphSnapshot{nodes: map[model.DocumentId]*node{}})
	return h
}

func (h *HNSW) Len() int { return h.snap.Load().liveCount }

// randomLevel draws a geometric level per the standard HNSW construction
// (spec.md §4.3 defaults: M=32).
func (h *HNSW) randomLevel() int {
	mL := 1.0 / math.Log(float64(h.params.M))
	level := int(math.Floor(-math.Log(rand.Float64()) * mL))
	const maxLevel = 32 // generous ceiling; never meaningfully reached in practice
	if level > maxLevel {
		level = maxLevel
	}
	return level
}

func (h *HNSW) maxConnAt(level int) int {
	if level == 0 {
		return h.params.M * 2
	}
	return h.params.M
}

// Insert adds or replaces id's vector/payload (spec.md §4.3). Re-inserting
// an existing id is treated as a fresh insertion at a fresh random level;
// the previous node's old neighbor links are dropped.
func (h *HNSW) Insert(id model.DocumentId, vector model.Vector, payload model.Payload) error {
	if len(vector) != h.dim {
		return akierr.New(akierr.KindInvalidInput, "index.insert", "vector dimension mismatch")
	}

	h.writeMu.Lock()
	defer h.writeMu.Unlock()

	cur := h.snap.Load()
	nodes := cloneNodeMap(cur.nodes)

	oldNode, existed := nodes[id]
	wasLive := existed && !oldNode.deleted
	level := h.randomLevel()
	n := &node{id: id, vector: vector, payload: payload, level: level, neighbors: make([][]model.DocumentId, level+1)}

	if !cur.hasEntry {
		nodes[id] = n
		h.publish(nodes, id, level, cur.liveCount+1)
		return nil
	}

	entry := cur.entryPoint
	for lc := cur.maxLevel; lc > level; lc-- {
		entry = h.greedyDescend(cur, entry, vector, lc)
	}

	top := cur.maxLevel
	if level < top {
		top = level
	}
	for lc := top; lc >= 0; lc-- {
		candidates := h.searchLayer(cur, entry, vector, efOrDefault(h.params.EfConstruction), lc, nil)
		neighbors := h.selectNeighbors(candidates, h.maxConnAt(lc))
		n.neighbors[lc] = neighbors

		for _, nb := range neighbors {
			nbNode := nodes[nb].clone()
			nbNode.neighbors[lc] = append(nbNode.neighbors[lc], id)
			if len(nbNode.neighbors[lc]) > h.maxConnAt(lc) {
				nbNode.neighbors[lc] = h.pruneNeighbors(nodes, nbNode, lc)
			}
			nodes[nb] = nbNode
		}
		if len(candidates) > 0 {
			entry = candidates[0].id
		}
	}
	nodes[id] = n

	newMaxLevel := cur.maxLevel
	newEntry := cur.entryPoint
	if level > cur.maxLevel {
		newMaxLevel = level
		newEntry = id
	}
	liveDelta := 1
	if wasLive {
		liveDelta = 0
	}
	h.publish(nodes, newEntry, newMaxLevel, cur.liveCount+liveDelta)
	return nil
}

func (h *HNSW) publish(nodes map[model.DocumentId]*node, entry model.DocumentId, maxLevel, liveCount int) {
	h.snap.Store(&graphSnapshot{
		nodes:      nodes,
		entryPoint: entry,
		hasEntry:   true,
		maxLevel:   maxLevel,
		liveCount:  liveCount,
	})
}

func cloneNodeMap(src map[model.DocumentId]*node) map[model.DocumentId]*node {
	out := make(map[model.DocumentId]*node, len(src)+1)
	for k, v := range src {
		out[k] = v
	}
	return out
}

// pruneNeighbors re-selects nbNode's layer-lc neighbor set after it grew
// past the connectivity cap, keeping the closest maxConnAt(lc) links.
func (h *HNSW) pruneNeighbors(nodes map[model.DocumentId]*node, nbNode *node, lc int) []model.DocumentId {
	cands := make([]scored, 0, len(nbNode.neighbors[lc]))
	for _, other := range nbNode.neighbors[lc] {
		if on, ok := nodes[other]; ok {
			cands = append(cands, scored{id: other, distance: h.distFn(nbNode.vector, on.vector)})
		}
	}
	sort.Slice(cands, func(i, j int) bool { return h.less(cands[i], cands[j]) })
	limit := h.maxConnAt(lc)
	if len(cands) > limit {
		cands = cands[:limit]
	}
	out := make([]model.DocumentId, len(cands))
	for i, c := range cands {
		out[i] = c.id
	}
	return out
}

// selectNeighbors keeps the closest up-to-limit candidates, tie-broken by id.
func (h *HNSW) selectNeighbors(candidates []scored, limit int) []model.DocumentId {
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	out := make([]model.DocumentId, len(candidates))
	for i, c := range candidates {
		out[i] = c.id
	}
	return out
}

// greedyDescend walks from entry to the single closest node at layer lc,
// used to find a good entry point for the layer below (spec.md §4.3).
func (h *HNSW) greedyDescend(snap *graphSnapshot, entry model.DocumentId, query model.Vector, lc int) model.DocumentId {
	best := entry
	bestDist := h.distFn(query, snap.nodes[entry].vector)
	improved := true
	for improved {
		improved = false
		n := snap.nodes[best]
		if lc >= len(n.neighbors) {
			continue
		}
		for _, cand := range n.neighbors[lc] {
			cn, ok := snap.nodes[cand]
			if !ok {
				continue
			}
			d := h.distFn(query, cn.vector)
			if h.less(scored{id: cand, distance: d}, scored{id: best, distance: bestDist}) {
				bestDist = d
				best = cand
				improved = true
			}
		}
	}
	return best
}

// searchLayer runs a best-first beam search at layer lc starting from
// entry, returning up to ef candidates ordered best-first. When accept is
// non-nil, only candidates accept(id) == true are kept in the result set
// (used by filter-aware oversampling); graph traversal itself still visits
// every node regardless of accept so connectivity is never broken.
func (h *HNSW) searchLayer(snap *graphSnapshot, entry model.DocumentId, query model.Vector, ef, lc int, accept func(model.DocumentId) bool) []scored {
	visited := map[model.DocumentId]bool{entry: true}
	entryNode, ok := snap.nodes[entry]
	if !ok {
		return nil
	}
	entryDist := h.distFn(query, entryNode.vector)

	candidateHeap := []scored{{id: entry, distance: entryDist}}
	var results []scored
	if !entryNode.deleted && (accept == nil || accept(entry)) {
		results = append(results, scored{id: entry, distance: entryDist})
	}

	for len(candidateHeap) > 0 {
		sort.Slice(candidateHeap, func(i, j int) bool { return h.less(candidateHeap[i], candidateHeap[j]) })
		cur := candidateHeap[0]
		candidateHeap = candidateHeap[1:]

		if len(results) >= ef {
			sort.Slice(results, func(i, j int) bool { return h.less(results[i], results[j]) })
			if !h.less(cur, results[ef-1]) {
				break
			}
		}

		curNode := snap.nodes[cur.id]
		if lc >= len(curNode.neighbors) {
			continue
		}
		for _, nb := range curNode.neighbors[lc] {
			if visited[nb] {
				continue
			}
			visited[nb] = true
			nbNode, ok := snap.nodes[nb]
			if !ok {
				continue
			}
			d := h.distFn(query, nbNode.vector)
			cand := scored{id: nb, distance: d}
			candidateHeap = append(candidateHeap, cand)
			if !nbNode.deleted && (accept == nil || accept(nb)) {
				results = append(results, cand)
			}
		}
	}

	sort.Slice(results, func(i, j int) bool { return h.less(results[i], results[j]) })
	if len(results) > ef {
		results = results[:ef]
	}
	return results
}

func efOrDefault(ef int) int {
	if ef <= 0 {
		return model.DefaultHNSWParams().EfConstruction
	}
	return ef
}

// SoftDelete tombstones id. The node stays in the graph (still traversable
// for connectivity) but is excluded from search results until compaction
// physically removes it.
func (h *HNSW) SoftDelete(id model.DocumentId) error {
	h.writeMu.Lock()
	defer h.writeMu.Unlock()

	cur := h.snap.Load()
	n, ok := cur.nodes[id]
	if !ok || n.deleted {
		return nil
	}
	nodes := cloneNodeMap(cur.nodes)
	cp := n.clone()
	cp.deleted = true
	nodes[id] = cp
	h.publish(nodes, cur.entryPoint, cur.maxLevel, cur.liveCount-1)
	return nil
}

// List returns up to limit live documents ordered by id, skipping the first
// offset matches, for pagination (spec.md §4.6 "P7"). Ordering by raw id
// bytes keeps results deterministic across calls despite the graph's
// internal map iteration having no defined order.
func (h *HNSW) List(_ context.Context, offset, limit int) ([]model.Document, error) {
	snap := h.snap.Load()
	ids := make([]model.DocumentId, 0, len(snap.nodes))
	for id, n := range snap.nodes {
		if n.deleted {
			continue
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return tieBreak(ids[i], ids[j]) })

	if offset >= len(ids) {
		return nil, nil
	}
	end := offset + limit
	if end > len(ids) {
		end = len(ids)
	}
	out := make([]model.Document, 0, end-offset)
	for _, id := range ids[offset:end] {
		n := snap.nodes[id]
		out = append(out, model.Document{ID: n.id, Vector: n.vector, Payload: n.payload})
	}
	return out, nil
}

// Remove permanently erases id's graph representation. id must already be
// tombstoned (SoftDelete'd) — removing a still-live node would sever other
// nodes' connectivity without the copy-on-write rebuild CompactTombstones
// performs. Missing neighbor ids are already tolerated everywhere graph
// traversal reads a neighbor (greedyDescend, searchLayer), so deleting the
// map entry outright is safe.
func (h *HNSW) Remove(id model.DocumentId) error {
	h.writeMu.Lock()
	defer h.writeMu.Unlock()

	cur := h.snap.Load()
	n, ok := cur.nodes[id]
	if !ok {
		return nil
	}
	if !n.deleted {
		return akierr.New(akierr.KindInvalidInput, "index.remove", "cannot remove a live node; soft delete it first")
	}

	nodes := cloneNodeMap(cur.nodes)
	delete(nodes, id)

	entry := cur.entryPoint
	hasEntry := cur.hasEntry
	if cur.entryPoint == id {
		hasEntry = false
		for otherID := range nodes {
			entry = otherID
			hasEntry = true
			break
		}
	}
	h.snap.Store(&graphSnapshot{nodes: nodes, entryPoint: entry, hasEntry: hasEntry, maxLevel: cur.maxLevel, liveCount: cur.liveCount})
	return nil
}

// CompactTombstones rebuilds the graph from scratch using only its live
// nodes, publishing the result as one atomic snapshot swap (spec.md §9's
// copy-on-write decision for compaction, see DESIGN.md) — concurrent
// readers holding the old snapshot finish their traversal undisturbed.
// Returns the number of tombstoned nodes reclaimed.
func (h *HNSW) CompactTombstones() int {
	h.writeMu.Lock()
	defer h.writeMu.Unlock()

	cur := h.snap.Load()
	live := make([]*node, 0, cur.liveCount)
	removed := 0
	for _, n := range cur.nodes {
		if n.deleted {
			removed++
			continue
		}
		live = append(live, n)
	}
	if removed == 0 {
		return 0
	}

	fresh := New(h.dim, h.distance, h.params)
	for _, n := range live {
		_ = fresh.Insert(n.id, n.vector, n.payload)
	}
	freshSnap := fresh.snap.Load()
	h.snap.Store(freshSnap)
	return removed
}

// Search returns up to topK live documents ranked by distance (spec.md
// §4.3). It never divides by a count it has not first checked is positive
// (I10) and never returns a NaN-distance result while a non-NaN one exists
// (I9).
func (h *HNSW) Search(ctx context.Context, query model.Vector, topK int, filter model.Filter) ([]model.SearchHit, error) {
	if len(query) != h.dim {
		return nil, akierr.New(akierr.KindInvalidInput, "index.search", "query vector dimension mismatch")
	}
	if topK <= 0 {
		return nil, akierr.New(akierr.KindInvalidInput, "index.search", "top_k must be positive")
	}

	snap := h.snap.Load()
	if !snap.hasEntry || snap.liveCount == 0 { // I10: no ratio computed on an empty index
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, akierr.Wrap(akierr.KindDeadline, "index.search", "context done before search started", err)
	}

	accept := func(id model.DocumentId) bool {
		if filter == nil {
			return true
		}
		n := snap.nodes[id]
		return filter.Match(n.payload)
	}

	var candidates []scored
	if snap.liveCount < bruteForceThreshold {
		candidates = h.bruteForce(snap, query, accept)
	} else {
		oversampleK := h.oversampleK(snap, topK, filter)
		entry := h.greedyDescend(snap, snap.entryPoint, query, snap.maxLevel)
		for lc := snap.maxLevel; lc > 0; lc-- {
			entry = h.greedyDescend(snap, entry, query, lc)
		}
		results := h.searchLayer(snap, entry, query, oversampleK, 0, accept)
		candidates = results
	}

	return h.finalize(candidates, topK), nil
}

// oversampleK implements the filter-aware oversampling formula (spec.md
// §4.3): oversample_k = ceil((top_k / max(selectivity, eps)) * 1.5),
// clamped to [top_k, min(1000, count)].
func (h *HNSW) oversampleK(snap *graphSnapshot, topK int, filter model.Filter) int {
	if filter == nil {
		return topK
	}
	const eps = 1e-12
	const sampleSize = 256

	sampled, matched := 0, 0
	for _, n := range snap.nodes {
		if n.deleted {
			continue
		}
		sampled++
		if filter.Match(n.payload) {
			matched++
		}
		if sampled >= sampleSize {
			break
		}
	}
	selectivity := eps
	if sampled > 0 {
		selectivity = float64(matched) / float64(sampled)
		if selectivity < eps {
			selectivity = eps
		}
	}

	raw := math.Ceil((float64(topK) / selectivity) * 1.5)
	k := int(raw)
	if k < topK {
		k = topK
	}
	upper := snap.liveCount
	if upper > 1000 {
		upper = 1000
	}
	if k > upper {
		k = upper
	}
	return k
}

func (h *HNSW) bruteForce(snap *graphSnapshot, query model.Vector, accept func(model.DocumentId) bool) []scored {
	out := make([]scored, 0, len(snap.nodes))
	for id, n := range snap.nodes {
		if n.deleted || !accept(id) {
			continue
		}
		out = append(out, scored{id: id, distance: h.distFn(query, n.vector)})
	}
	return out
}

// finalize sorts candidates, drops NaN-distance entries while any non-NaN
// survivor remains (I9), and trims to topK.
func (h *HNSW) finalize(candidates []scored, topK int) []model.SearchHit {
	sort.Slice(candidates, func(i, j int) bool { return h.less(candidates[i], candidates[j]) })

	hasNonNaN := false
	for _, c := range candidates {
		if !math.IsNaN(float64(c.distance)) {
			hasNonNaN = true
			break
		}
	}

	out := make([]model.SearchHit, 0, topK)
	for _, c := range candidates {
		if len(out) >= topK {
			break
		}
		if hasNonNaN && math.IsNaN(float64(c.distance)) {
			continue
		}
		out = append(out, model.SearchHit{ID: c.id, Distance: c.distance})
	}
	return out
}
