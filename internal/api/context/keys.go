package context

type Key string

const (
	Claims   Key = "claims"
	Decision Key = "decision"
	Params   Key = "params"
)
