package extract

import (
	"context"
	"math"
	"sort"

	"github.com/webpilot-ai/webpilot/runtime/browser"
	"github.com/webpilot-ai/webpilot/runtime/model"
)

// Detector runs the zero-hardcoded-selector product extraction pipeline
// against a live page (spec.md §4.4).
type Detector struct {
	// Validator optionally confirms the top statistical candidates using
	// an LLM (spec.md §4.4 step 6). Nil disables the semantic pass.
	Validator SemanticValidator
	// TopK bounds how many candidates are sent to Validator. Defaults to
	// 5 when zero.
	TopK int
}

// NewDetector returns a Detector with no semantic validation. Attach one
// via WithValidator to enable step 6.
func NewDetector() *Detector { return &Detector{} }

// WithValidator returns a copy of d that validates its top candidates
// using client, wrapped as a SemanticValidator.
func (d Detector) WithValidator(client model.Client) *Detector {
	if client != nil {
		d.Validator = &llmValidator{client: client}
	}
	return &d
}

type candidate struct {
	signature        signature
	members          []rawNode
	count            int
	depth            int
	hasPrice         float64 // fraction of members with HasPriceSub
	hasLink          float64
	hasImage         float64
	statScore        float64
	llmConfidence    float64 // -1 when not evaluated
	combinedScore    float64
}

type signature struct {
	tag        string
	classCount int
	hasPrice   bool
	hasLink    bool
	hasImage   bool
}

// Detect runs the full pipeline against page and returns extracted,
// filtered products.
func (d *Detector) Detect(ctx context.Context, page browser.Page, filter Filter) (Result, error) {
	nodes, err := walkSignals(ctx, page)
	if err != nil {
		return Result{}, err
	}

	meta := map[string]any{"total_elements": len(nodes)}

	// Step 1: quick page check.
	priceCount, productHrefCount := 0, 0
	for _, n := range nodes {
		if n.hasPriceSelf() {
			priceCount++
		}
		if n.hasProductHref() {
			productHrefCount++
		}
	}
	floor := signalFloor(len(nodes))
	meta["price_signal_count"] = priceCount
	meta["product_href_count"] = productHrefCount
	meta["signal_floor"] = floor
	if priceCount < floor && productHrefCount < floor {
		return Result{Reason: ReasonPageTypeMismatch, Metadata: meta}, nil
	}

	// Step 2: signal collection — ancestors (1-4 levels up) of every
	// element that itself carries a price/link/image signal.
	byIdx := make(map[int]rawNode, len(nodes))
	for _, n := range nodes {
		byIdx[n.Idx] = n
	}
	ancestorSet := map[int]bool{}
	for _, n := range nodes {
		if !n.hasPriceSelf() && !n.IsAnchor && !n.IsImg {
			continue
		}
		p := n.ParentIdx
		for level := 0; level < 4 && p >= 0; level++ {
			ancestorSet[p] = true
			anc, ok := byIdx[p]
			if !ok {
				break
			}
			p = anc.ParentIdx
		}
	}
	ancestors := make([]rawNode, 0, len(ancestorSet))
	for idx := range ancestorSet {
		ancestors = append(ancestors, byIdx[idx])
	}
	if len(ancestors) == 0 {
		return Result{Reason: ReasonNoViableContainer, Metadata: meta}, nil
	}

	// Step 3: statistical depth analysis.
	optimalDepth, depthStats := optimalDepthOf(ancestors)
	meta["optimal_depth"] = optimalDepth
	meta["depth_stats"] = depthStats

	// Step 4: candidate generation at optimalDepth +/- 1.
	cands := generateCandidates(ancestors, optimalDepth)
	if len(cands) == 0 {
		return Result{Reason: ReasonNoViableContainer, Metadata: meta}, nil
	}

	// Step 5: statistical ranking.
	pageClassMean := meanClassCount(nodes)
	rankCandidates(cands, optimalDepth, pageClassMean)

	sort.Slice(cands, func(i, j int) bool { return cands[i].statScore > cands[j].statScore })

	// Step 6: optional LLM semantic validation of the top K.
	topK := d.TopK
	if topK <= 0 {
		topK = 5
	}
	if topK > len(cands) {
		topK = len(cands)
	}
	for i := range cands[:topK] {
		cands[i].combinedScore = cands[i].statScore
		cands[i].llmConfidence = -1
		if d.Validator == nil {
			continue
		}
		sample := sampleText(cands[i].members)
		valid, conf, err := d.Validator.Validate(ctx, sample)
		if err != nil {
			continue
		}
		cands[i].llmConfidence = conf
		if !valid {
			cands[i].combinedScore = cands[i].statScore * 0.3
			continue
		}
		cands[i].combinedScore = 0.5*cands[i].statScore + 0.5*conf
	}
	sort.Slice(cands[:topK], func(i, j int) bool { return cands[i].combinedScore > cands[j].combinedScore })

	winner := cands[0]
	meta["winning_signature"] = map[string]any{
		"tag": winner.signature.tag, "class_count": winner.signature.classCount,
		"has_price": winner.signature.hasPrice, "has_link": winner.signature.hasLink, "has_image": winner.signature.hasImage,
	}
	meta["winner_count"] = winner.count
	meta["winner_score"] = winner.combinedScore

	// Step 7+8: locate fields in the winning container, extract across
	// all containers, parse, and filter.
	products, fieldCompleteness, err := d.extractFrom(ctx, page, winner, filter)
	if err != nil {
		return Result{}, err
	}
	meta["field_completeness"] = fieldCompleteness

	reason := ReasonOK
	if fieldCompleteness < 0.5 {
		reason = ReasonPartialFields
	}
	return Result{Products: products, Reason: reason, Metadata: meta}, nil
}

// signalFloor is a data-derived minimum signal count below which a page is
// classified as a non-listing (spec.md §4.4 step 1 "a statistically-derived
// floor"): at least 3, or 0.5% of the page's elements, whichever is larger.
func signalFloor(totalElements int) int {
	floor := totalElements / 200
	if floor < 3 {
		floor = 3
	}
	return floor
}

type depthStat struct {
	Depth           int
	ElementCount    int
	PriceDensity    float64
	CoLocationScore float64
	TextLenVariance float64
}

// optimalDepthOf implements step 3: build depth -> count/signal
// distributions and pick the depth scoring highest on a weighted sum of
// price density, feature co-location, and inverse text-length variance.
func optimalDepthOf(ancestors []rawNode) (int, []depthStat) {
	byDepth := map[int][]rawNode{}
	for _, n := range ancestors {
		byDepth[n.Depth] = append(byDepth[n.Depth], n)
	}

	depths := make([]int, 0, len(byDepth))
	for d := range byDepth {
		depths = append(depths, d)
	}
	sort.Ints(depths)

	stats := make([]depthStat, 0, len(depths))
	for _, d := range depths {
		group := byDepth[d]
		n := float64(len(group))
		priceN, coLoc := 0.0, 0.0
		lens := make([]float64, 0, len(group))
		for _, el := range group {
			if el.HasPriceSub {
				priceN++
			}
			if el.HasPriceSub && el.HasLinkSub && el.HasImageSub {
				coLoc++
			}
			lens = append(lens, float64(el.InnerTextLen))
		}
		stats = append(stats, depthStat{
			Depth:           d,
			ElementCount:    len(group),
			PriceDensity:    priceN / n,
			CoLocationScore: coLoc / n,
			TextLenVariance: variance(lens),
		})
	}

	if len(stats) == 0 {
		return 0, stats
	}

	maxVar := 0.0
	for _, s := range stats {
		if s.TextLenVariance > maxVar {
			maxVar = s.TextLenVariance
		}
	}

	bestDepth, bestScore := stats[0].Depth, -1.0
	for _, s := range stats {
		invVar := 1.0
		if maxVar > 0 {
			invVar = 1 - s.TextLenVariance/maxVar
		}
		score := 0.4*s.PriceDensity + 0.4*s.CoLocationScore + 0.2*invVar
		if score > bestScore {
			bestScore = score
			bestDepth = s.Depth
		}
	}
	return bestDepth, stats
}

// generateCandidates implements step 4: group ancestors at
// optimalDepth +/- 1 by structural signature, keeping clusters at or above
// the 75th percentile of non-trivial (size > 1) cluster sizes.
func generateCandidates(ancestors []rawNode, optimalDepth int) []*candidate {
	inBand := make([]rawNode, 0, len(ancestors))
	for _, n := range ancestors {
		if n.Depth >= optimalDepth-1 && n.Depth <= optimalDepth+1 {
			inBand = append(inBand, n)
		}
	}

	groups := map[signature][]rawNode{}
	for _, n := range inBand {
		sig := signature{
			tag: n.Tag, classCount: n.ClassCount,
			hasPrice: n.HasPriceSub, hasLink: n.HasLinkSub, hasImage: n.HasImageSub,
		}
		groups[sig] = append(groups[sig], n)
	}

	var sizes []float64
	for _, members := range groups {
		if len(members) > 1 {
			sizes = append(sizes, float64(len(members)))
		}
	}
	floorSize := percentile(sizes, 0.75)
	if floorSize < 2 {
		floorSize = 2
	}

	sigs := make([]signature, 0, len(groups))
	for sig := range groups {
		sigs = append(sigs, sig)
	}
	sort.Slice(sigs, func(i, j int) bool {
		a, b := sigs[i], sigs[j]
		if a.tag != b.tag {
			return a.tag < b.tag
		}
		if a.classCount != b.classCount {
			return a.classCount < b.classCount
		}
		if a.hasPrice != b.hasPrice {
			return b.hasPrice
		}
		if a.hasLink != b.hasLink {
			return b.hasLink
		}
		return b.hasImage
	})

	var cands []*candidate
	for _, sig := range sigs {
		members := groups[sig]
		if float64(len(members)) < floorSize {
			continue
		}
		depth := members[0].Depth
		cands = append(cands, &candidate{
			signature: sig, members: members, count: len(members), depth: depth,
		})
	}
	return cands
}

func meanClassCount(nodes []rawNode) float64 {
	if len(nodes) == 0 {
		return 0
	}
	sum := 0
	for _, n := range nodes {
		sum += n.ClassCount
	}
	return float64(sum) / float64(len(nodes))
}

// rankCandidates implements step 5's weighted statistical score.
func rankCandidates(cands []*candidate, optimalDepth int, pageClassMean float64) {
	maxCount := 0
	for _, c := range cands {
		if c.count > maxCount {
			maxCount = c.count
		}
	}
	maxDepthDist := 1
	for _, c := range cands {
		if dist := abs(c.depth - optimalDepth); dist > maxDepthDist {
			maxDepthDist = dist
		}
	}

	for _, c := range cands {
		priceN, linkN, imgN := 0, 0, 0
		classSum := 0
		for _, m := range c.members {
			if m.HasPriceSub {
				priceN++
			}
			if m.HasLinkSub {
				linkN++
			}
			if m.HasImageSub {
				imgN++
			}
			classSum += m.ClassCount
		}
		n := float64(len(c.members))
		c.hasPrice = float64(priceN) / n
		c.hasLink = float64(linkN) / n
		c.hasImage = float64(imgN) / n

		countNorm := 0.0
		if maxCount > 0 {
			countNorm = float64(c.count) / float64(maxCount)
		}
		completeness := (c.hasPrice + c.hasLink + c.hasImage) / 3
		depthAlign := 1 - float64(abs(c.depth-optimalDepth))/float64(maxDepthDist)
		classFreq := 1.0
		if pageClassMean > 0 {
			avgClass := classSum / len(c.members)
			classFreq = float64(avgClass) / pageClassMean
			if classFreq > 1 {
				classFreq = 1 / classFreq
			}
		}
		c.statScore = 0.35*countNorm + 0.3*completeness + 0.2*depthAlign + 0.15*classFreq
	}
}

func sampleText(members []rawNode) string {
	n := len(members)
	if n > 2 {
		n = 2
	}
	out := ""
	for i := 0; i < n; i++ {
		if out != "" {
			out += " | "
		}
		out += members[i].OwnText
	}
	return out
}

func variance(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	mean := 0.0
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))
	sum := 0.0
	for _, x := range xs {
		d := x - mean
		sum += d * d
	}
	return sum / float64(len(xs))
}

// percentile returns the p-th percentile (0..1) of xs using nearest-rank.
func percentile(xs []float64, p float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)
	idx := int(math.Ceil(p*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
