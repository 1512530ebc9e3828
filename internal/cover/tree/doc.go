// Package tree implements the cover tree backing the index/cover package.
// Distance kernels come from github.com/viant/vec/search.
package tree
