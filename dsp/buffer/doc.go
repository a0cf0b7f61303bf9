// Package buffer provides a reusable multichannel sample block and pool for
// allocation-friendly measurement loops. All analysis functions accept raw
// [][]float64 channel slices; Block is an optional convenience that helps
// sweep and harness code manage allocation and reuse in hot paths.
package buffer
