// Package book reconstructs sorted order-book ladders from the unordered
// depth entries the venue returns. Reconstruction is a pure function with no
// network or cache dependencies.
package book
