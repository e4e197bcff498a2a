//go:build race

package opt

// IsTSO_ under race detector, disable TSO optimizations and use conservative
// atomic loads/stores
const IsTSO_ = false
