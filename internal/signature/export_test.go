package signature

// SetCompareHook installs an observer over the constant-time comparison so
// tests can assert which byte slices reach it.
func (v *Validator) SetCompareHook(fn func(expected, got []byte)) {
	v.compareHook = fn
}
