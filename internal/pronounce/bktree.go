package pronounce

// BKTree is a Burkhard-Keller tree over a dictionary's words. It answers
// [Matcher.Nearest] queries without visiting subtrees the triangle
// inequality rules out.
//
// The tree is immutable after [NewBKTree] returns and is safe for
// concurrent use.
type BKTree struct {
	root *bkNode
	size int
}

type bkNode struct {
	word     string
	children map[int]*bkNode
}

// Ensure BKTree implements Matcher at compile time.
var _ Matcher = (*BKTree)(nil)

// NewBKTree indexes every word of dict.
func NewBKTree(dict Dictionary) *BKTree {
	t := &BKTree{}
	for _, w := range dict.Words() {
		t.insert(w)
	}
	return t
}

// Len returns the number of indexed words.
func (t *BKTree) Len() int {
	return t.size
}

func (t *BKTree) insert(word string) {
	if t.root == nil {
		t.root = &bkNode{word: word}
		t.size++
		return
	}
	n := t.root
	for {
		d := Distance(word, n.word)
		if d == 0 {
			return
		}
		child, ok := n.children[d]
		if !ok {
			if n.children == nil {
				n.children = make(map[int]*bkNode)
			}
			n.children[d] = &bkNode{word: word}
			t.size++
			return
		}
		n = child
	}
}

// Nearest implements [Matcher].
func (t *BKTree) Nearest(word string, maxDist int) (Match, bool) {
	if t.root == nil || maxDist < 0 {
		return Match{}, false
	}

	var best Match
	found := false
	radius := maxDist

	stack := []*bkNode{t.root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		d := Distance(word, n.word)
		if d <= radius {
			c := Match{Word: n.word, Distance: d}
			if !found || Better(word, c, best) {
				best = c
				found = true
			}
			// Ties still need visiting for the tie-break, so the radius
			// shrinks to the best distance, not below it.
			radius = best.Distance
		}
		for cd, child := range n.children {
			if cd >= d-radius && cd <= d+radius {
				stack = append(stack, child)
			}
		}
	}
	return best, found
}
