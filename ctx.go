package foroutines

// Ctx is the capability handed to a running Block: it is the current
// fiber's suspension point, reached only from inside that fiber's own
// goroutine. Components that suspend (Delay, Channel, Select, Flow
// collection, Job.Join, Deferred.Await, AsyncIO waits)
// all take a *Ctx rather than relying on an ambient/global "current
// fiber" — suspension is exposed via an explicit context argument
// rather than package-level state.
type Ctx struct {
	job       *Job
	scheduler *Scheduler
	suspend   SuspendFunc
}

// Job returns the Job running this Ctx's fiber.
func (c *Ctx) Job() *Job { return c.job }

// Scheduler returns the runtime driving this Ctx's fiber.
func (c *Ctx) Scheduler() *Scheduler { return c.scheduler }

// Suspend yields v out of the current fiber and blocks until the
// fiber is resumed or thrown into. Higher-level suspension points
// (Delay, Channel.Send/Receive, ...) are built on this.
func (c *Ctx) Suspend(v any) (any, error) {
	return c.suspend(v)
}
