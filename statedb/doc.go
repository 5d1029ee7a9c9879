package statedb

var (
	_ View = (*Base)(nil)
	_ View = (*Frag)(nil)
	_ View = (*Sort)(nil)
)
