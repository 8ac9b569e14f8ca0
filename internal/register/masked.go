package register

// ComputeWrite returns the byte to write when requested is applied to old
// through mask.
//
// Bits set in mask come from requested, all other bits keep their value from
// old. When known is false the base is Unknown: FullMask still succeeds (old is
// irrelevant), any narrower mask returns ErrStaleBaseUnavailable so the caller
// resolves the base from the device instead of assuming zero.
func ComputeWrite(old Value, known bool, requested Value, mask Mask) (Value, error) {
	if mask == FullMask {
		return requested, nil
	}
	if !known {
		return 0, ErrStaleBaseUnavailable
	}
	return Value((uint8(old) &^ uint8(mask)) | (uint8(requested) & uint8(mask))), nil
}

// NeedsBase reports whether a write through mask depends on the current value.
func NeedsBase(mask Mask) bool {
	return mask != FullMask
}
