package types

// ResizeRequest is the per-frame work item handed to the dispatcher.
type ResizeRequest struct {
	Frame  *Frame
	Target Resolution
}

func (r ResizeRequest) Passthrough() bool {
	return r.Target.IsZero()
}
