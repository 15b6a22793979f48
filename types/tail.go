// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package types

// TailView is a consistent snapshot of a loglet's local tail: the first
// offset not yet durably stored, and whether the loglet is sealed.
type TailView struct {
	Offset Offset
	Sealed bool
}

// OpenTailView is the tail of a brand new loglet: nothing stored, nothing
// sealed.
func OpenTailView() TailView {
	return TailView{Offset: OldestOffset, Sealed: false}
}
