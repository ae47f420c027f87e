// Package cftree implements the BIRCH clustering-feature tree.
//
// A clustering feature (CF) summarizes a set of vectors by its count, its
// component-wise linear sum and its sum of squared norms. CFs are additive:
// the CF of a union of disjoint sets is the component-wise sum of their CFs.
// The tree keeps one CF per node covering the node's whole subtree, so a
// dataset of any size is summarized by a bounded number of leaf entries.
//
// Vectors are inserted one at a time. A vector is absorbed into the closest
// leaf entry when the merged entry's radius stays within the current
// threshold, and starts a new entry otherwise. Overflowing nodes split along
// their most distant pair of entries, and when the total number of leaf
// entries exceeds the configured capacity the threshold grows and the tree
// is rebuilt from its own leaf CFs. Memory therefore stays O(capacity)
// regardless of input size.
//
// The tree is single-owner during its build phase and must not be mutated
// concurrently. After the last insert, FindLeaf and Leaves are read-only and
// safe for concurrent use.
package cftree
