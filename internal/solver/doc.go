// Package solver invokes the external heuristic tour engine over its
// file-based protocol. The engine is called as
//
//	<engine> [args...] -o <tourPath> -N <dimension> <instancePath>
//
// and must exit zero after writing the tour file.
package solver
