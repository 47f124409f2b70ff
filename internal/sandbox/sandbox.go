// Package sandbox restricts what the process may do once its needs are known.
//
// Restriction happens in two stages: before the display connection is made
// the process still needs network and socket access, afterwards it only
// reads input, talks over the already open connection and runs the layout
// tool.
package sandbox

const (
	// PromisesConnect is the OpenBSD promise set held while connecting.
	PromisesConnect = "stdio rpath dns unix inet proc exec"
	// PromisesRun is the OpenBSD promise set held for the rest of the run.
	PromisesRun = "stdio rpath proc exec"
	// PromisesServe is held by the SSH listener once it is up and the
	// display is connected.
	PromisesServe = "stdio rpath inet proc exec"
)

// BeforeConnect applies the restrictions for the connection stage.
func BeforeConnect() error {
	return restrict(PromisesConnect)
}

// AfterConnect narrows the restrictions once the display is connected.
func AfterConnect() error {
	return restrict(PromisesRun)
}

// Serving applies the restrictions for the SSH listener.
func Serving() error {
	return restrict(PromisesServe)
}
