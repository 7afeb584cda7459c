// Package score implements the iterative-refinement reputation model for a
// bipartite rating graph. Object reputation is the reliability-weighted
// average of the ratings an object received; user reputation is an inverse
// power of the user's mean squared divergence from that consensus. [Engine]
// alternates the two estimates until the object reputation vector moves by
// no more than the convergence threshold (squared L2 distance) between
// iterations.
package score
