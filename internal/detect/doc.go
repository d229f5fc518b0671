// Package detect decides whether a freshly polled value differs meaningfully
// from the previously distributed one. It is the filter that turns a
// poll-only upstream into an effectively push-like downstream feed: unchanged
// cycles produce no broadcast.
package detect
