package queue

import "github.com/google/uuid"

// A unit of asynchronous work admitted to a SerialQueue.
//
// Requests are compared by pointer. The owner supplies the start action and
// reports the end of the work with SerialQueue.Complete.
type Request struct {
	ID   uuid.UUID
	Name string

	start func()
}

// Creates a new request that runs start when it becomes active.
func NewRequest(name string, start func()) *Request {
	if start == nil {
		start = func() {}
	}
	return &Request{
		ID:    uuid.New(),
		Name:  name,
		start: start,
	}
}

func (r *Request) String() string {
	if r.Name == "" {
		return r.ID.String()
	}
	return r.Name + "/" + r.ID.String()
}
