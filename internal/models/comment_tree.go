package models

// CommentPath addresses a comment inside a forest by the index taken at each level,
// starting from the top-level sequence. It stays valid for as long as the forest is
// only appended to.
type CommentPath []int

// Depth is the number of ancestors of the addressed comment.
func (p CommentPath) Depth() int {
	return len(p) - 1
}

type treeFrame struct {
	node *Comment
	path CommentPath
}

// Walk visits every comment of the forest in pre-order: each sibling in sequence order,
// a node before its replies, a node's whole subtree before its next sibling. It uses an
// explicit stack so arbitrarily deep threads cannot exhaust the goroutine stack.
// Returning false from visit stops the walk.
func Walk(forest []Comment, visit func(c *Comment, path CommentPath) bool) {
	if len(forest) == 0 {
		return
	}

	stack := make([]treeFrame, 0, len(forest))
	for i := len(forest) - 1; i >= 0; i-- {
		stack = append(stack, treeFrame{node: &forest[i], path: CommentPath{i}})
	}

	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if !visit(top.node, top.path) {
			return
		}

		replies := top.node.Replies
		for i := len(replies) - 1; i >= 0; i-- {
			child := make(CommentPath, len(top.path)+1)
			copy(child, top.path)
			child[len(top.path)] = i
			stack = append(stack, treeFrame{node: &replies[i], path: child})
		}
	}
}

// FindComment returns the path of the first comment with the given id in pre-order,
// or false when no comment matches. It never mutates the forest.
func FindComment(forest []Comment, id string) (CommentPath, bool) {
	var found CommentPath
	Walk(forest, func(c *Comment, path CommentPath) bool {
		if c.ID == id {
			found = path
			return false
		}
		return true
	})
	return found, found != nil
}

// CommentAt resolves a path to the comment it addresses, or nil when the path does
// not fit the forest.
func CommentAt(forest []Comment, path CommentPath) *Comment {
	if len(path) == 0 {
		return nil
	}
	level := forest
	var node *Comment
	for _, idx := range path {
		if idx < 0 || idx >= len(level) {
			return nil
		}
		node = &level[idx]
		level = node.Replies
	}
	return node
}
