package main

// Counter is the sample entity held by the update route.
type Counter struct {
	Count int `json:"count"`
}

func (Counter) Kind() string { return "counter" }

func (c *Counter) Increment() {
	c.Count++
}

// partition every counter lives in.
const partition = "entity"
