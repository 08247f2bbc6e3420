package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// WBSNode is one element of the work breakdown structure. In tree form Children is populated;
// in flattened form Children is nil and ChildIDs lists the direct children in order.
type WBSNode struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Level        int       `json:"level"`
	ParentID     string    `json:"parent_id,omitempty"`
	DurationDays int       `json:"duration_days,omitempty"`
	Predecessors []string  `json:"predecessors,omitempty"`
	ReqIDs       []string  `json:"req_ids,omitempty"`
	ChildIDs     []string  `json:"child_ids,omitempty"`
	Children     []WBSNode `json:"children,omitempty"`
}

// IsLeaf reports whether the node has no children in either form.
func (n WBSNode) IsLeaf() bool {
	return len(n.Children) == 0 && len(n.ChildIDs) == 0
}

// WBS is a project's work breakdown structure. Nodes holds the level-1 roots.
type WBS struct {
	ProjectID   string      `json:"project_id"`
	Methodology Methodology `json:"methodology,omitempty"`
	Nodes       []WBSNode   `json:"nodes"`
}

// Clone deep-copies the tree.
func (w WBS) Clone() WBS {
	out := w
	out.Nodes = cloneNodes(w.Nodes)
	return out
}

func cloneNodes(in []WBSNode) []WBSNode {
	if in == nil {
		return nil
	}
	out := make([]WBSNode, len(in))
	for i, n := range in {
		n.Predecessors = append([]string(nil), n.Predecessors...)
		n.ReqIDs = append([]string(nil), n.ReqIDs...)
		n.ChildIDs = append([]string(nil), n.ChildIDs...)
		n.Children = cloneNodes(n.Children)
		out[i] = n
	}
	return out
}

// Renumber assigns dotted-path ids ("1", "1.2", "1.2.3"), levels, and parent refs from tree position.
// Predecessor references are remapped to the new ids; references that no longer resolve are dropped.
func (w *WBS) Renumber() {
	remap := map[string]string{}
	var walk func(nodes []WBSNode, prefix string, level int, parent string)
	walk = func(nodes []WBSNode, prefix string, level int, parent string) {
		for i := range nodes {
			id := strconv.Itoa(i + 1)
			if prefix != "" {
				id = prefix + "." + id
			}
			if old := strings.TrimSpace(nodes[i].ID); old != "" {
				remap[old] = id
			}
			nodes[i].ID = id
			nodes[i].Level = level
			nodes[i].ParentID = parent
			nodes[i].ChildIDs = nil
			walk(nodes[i].Children, id, level+1, id)
		}
	}
	walk(w.Nodes, "", 1, "")

	var fix func(nodes []WBSNode)
	fix = func(nodes []WBSNode) {
		for i := range nodes {
			preds := make([]string, 0, len(nodes[i].Predecessors))
			for _, p := range nodes[i].Predecessors {
				if mapped, ok := remap[strings.TrimSpace(p)]; ok && mapped != nodes[i].ID {
					preds = append(preds, mapped)
				}
			}
			nodes[i].Predecessors = dedupeStable(preds)
			fix(nodes[i].Children)
		}
	}
	fix(w.Nodes)
}

// Flatten walks the tree depth-first and returns nodes without Children but with ChildIDs.
func (w WBS) Flatten() []WBSNode {
	out := []WBSNode{}
	var walk func(nodes []WBSNode, parent string, level int)
	walk = func(nodes []WBSNode, parent string, level int) {
		for _, n := range nodes {
			flat := n
			flat.Children = nil
			flat.ParentID = parent
			if flat.Level == 0 {
				flat.Level = level
			}
			flat.Predecessors = append([]string(nil), n.Predecessors...)
			flat.ReqIDs = append([]string(nil), n.ReqIDs...)
			flat.ChildIDs = nil
			for _, c := range n.Children {
				flat.ChildIDs = append(flat.ChildIDs, c.ID)
			}
			out = append(out, flat)
			walk(n.Children, n.ID, level+1)
		}
	}
	walk(w.Nodes, "", 1)
	return out
}

// Validate checks tree invariants: unique non-empty ids, level = parent level + 1 starting at 1,
// durations not negative, and predecessors referring to existing ids other than self.
func (w WBS) Validate() error {
	ids := map[string]struct{}{}
	var collect func(nodes []WBSNode, level int, parent string) error
	collect = func(nodes []WBSNode, level int, parent string) error {
		for _, n := range nodes {
			id := strings.TrimSpace(n.ID)
			if id == "" {
				return fmt.Errorf("%w: node %q has empty id", ErrInvalidWBS, n.Name)
			}
			if _, dup := ids[id]; dup {
				return fmt.Errorf("%w: duplicate id %s", ErrInvalidWBS, id)
			}
			ids[id] = struct{}{}
			if n.Level != level {
				return fmt.Errorf("%w: node %s level %d, want %d", ErrInvalidWBS, id, n.Level, level)
			}
			if n.ParentID != parent {
				return fmt.Errorf("%w: node %s parent %q, want %q", ErrInvalidWBS, id, n.ParentID, parent)
			}
			if strings.TrimSpace(n.Name) == "" {
				return fmt.Errorf("%w: node %s: %w", ErrInvalidWBS, id, ErrInvalidName)
			}
			if n.DurationDays < 0 {
				return fmt.Errorf("%w: node %s: %w", ErrInvalidWBS, id, ErrInvalidDuration)
			}
			if err := collect(n.Children, level+1, id); err != nil {
				return err
			}
		}
		return nil
	}
	if err := collect(w.Nodes, 1, ""); err != nil {
		return err
	}
	for _, n := range w.Flatten() {
		for _, p := range n.Predecessors {
			if p == n.ID {
				return fmt.Errorf("%w: node %s lists itself as predecessor", ErrInvalidWBS, n.ID)
			}
			if _, ok := ids[p]; !ok {
				return fmt.Errorf("%w: node %s predecessor %s does not exist", ErrInvalidWBS, n.ID, p)
			}
		}
	}
	return nil
}

// Leaves returns flattened leaf nodes in depth-first order.
func (w WBS) Leaves() []WBSNode {
	out := []WBSNode{}
	for _, n := range w.Flatten() {
		if n.IsLeaf() {
			out = append(out, n)
		}
	}
	return out
}

// CountNodes returns the total node count.
func (w WBS) CountNodes() int {
	return len(w.Flatten())
}

func dedupeStable(in []string) []string {
	out := make([]string, 0, len(in))
	seen := map[string]struct{}{}
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
