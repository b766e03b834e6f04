package boosting

import (
	"math"
	"sort"
)

// node is one split or leaf in a regression tree fit to the loss gradient.
type node struct {
	feature   int
	threshold float64
	left      *node
	right     *node
	leaf      bool
	value     float64
}

// treeGrower builds one tree per boosting round from gradient/hessian pairs.
type treeGrower struct {
	rows       [][]float64
	grad       []float64
	hess       []float64
	maxDepth   int
	minLeaf    float64
	lambda     float64
	features   []int
	sampleRows []int
}

func (g *treeGrower) grow() *node {
	return g.build(g.sampleRows, 0)
}

func (g *treeGrower) build(indices []int, depth int) *node {
	gradSum, hessSum := g.sums(indices)
	leaf := &node{leaf: true, value: leafValue(gradSum, hessSum, g.lambda)}
	if depth >= g.maxDepth || len(indices) < 2 {
		return leaf
	}

	best := g.bestSplit(indices, gradSum, hessSum)
	if best.gain <= 0 {
		return leaf
	}

	left := make([]int, 0, len(indices))
	right := make([]int, 0, len(indices))
	for _, idx := range indices {
		if g.rows[idx][best.feature] <= best.threshold {
			left = append(left, idx)
		} else {
			right = append(right, idx)
		}
	}
	if len(left) == 0 || len(right) == 0 {
		return leaf
	}

	return &node{
		feature:   best.feature,
		threshold: best.threshold,
		left:      g.build(left, depth+1),
		right:     g.build(right, depth+1),
	}
}

type split struct {
	feature   int
	threshold float64
	gain      float64
}

// bestSplit scans every candidate feature with sorted prefix sums. Features
// are visited in ascending index order and only a strictly larger gain
// replaces the incumbent, so ties resolve the same way on every run.
func (g *treeGrower) bestSplit(indices []int, gradSum, hessSum float64) split {
	best := split{feature: -1, gain: 0}
	parentScore := scoreOf(gradSum, hessSum, g.lambda)

	order := make([]int, len(indices))
	for _, feat := range g.features {
		copy(order, indices)
		sort.Slice(order, func(a, b int) bool {
			return g.rows[order[a]][feat] < g.rows[order[b]][feat]
		})

		gradLeft, hessLeft := 0.0, 0.0
		for i := 0; i < len(order)-1; i++ {
			idx := order[i]
			gradLeft += g.grad[idx]
			hessLeft += g.hess[idx]

			value := g.rows[idx][feat]
			next := g.rows[order[i+1]][feat]
			if value == next {
				continue
			}
			hessRight := hessSum - hessLeft
			if hessLeft < g.minLeaf || hessRight < g.minLeaf {
				continue
			}

			gradRight := gradSum - gradLeft
			gain := scoreOf(gradLeft, hessLeft, g.lambda) +
				scoreOf(gradRight, hessRight, g.lambda) - parentScore
			if gain > best.gain {
				best = split{feature: feat, threshold: value + (next-value)/2, gain: gain}
			}
		}
	}
	return best
}

func (g *treeGrower) sums(indices []int) (gradSum, hessSum float64) {
	for _, idx := range indices {
		gradSum += g.grad[idx]
		hessSum += g.hess[idx]
	}
	return gradSum, hessSum
}

// scoreOf is the structure score G^2/(H+lambda); gain is the score won by
// splitting a node into two children.
func scoreOf(gradSum, hessSum, lambda float64) float64 {
	return gradSum * gradSum / (hessSum + lambda)
}

func leafValue(gradSum, hessSum, lambda float64) float64 {
	return -gradSum / (hessSum + lambda)
}

// predict walks the tree for one row. A feature index past the row's end
// falls to the left child so malformed rows degrade instead of panicking.
func (n *node) predict(row []float64) float64 {
	cur := n
	for !cur.leaf {
		if cur.feature >= len(row) || row[cur.feature] <= cur.threshold {
			cur = cur.left
		} else {
			cur = cur.right
		}
	}
	return cur.value
}

func sigmoid(raw float64) float64 {
	return 1 / (1 + math.Exp(-raw))
}
