// Package queue provides the node orderings behind domain.PriorityQueue.
//
// Every strategy keeps two heaps over the same items: one ordered by the
// strategy priority (largest first, ties broken by insertion order) and one
// ordered by bound so that Bound stays O(1) regardless of the ordering.
package queue
