// Package session drives a single heart rate sensor from discovery to a live,
// bounded measurement history.
//
// A Session moves through Uninitialized → Binding → Subscribed | Failed and
// ends in Disposed. Notifications arrive on transport goroutines; they are
// copied into a lock-free inbox and applied to the history by one dispatcher
// goroutine. Observers receive Change values from Events() and read the
// current state through the accessor methods.
//
//	s, err := session.New(transport, session.WithLogger(logger))
//	devices, err := s.Discover(ctx)
//	err = s.Bind(ctx, devices[0])
//	s.FetchBodyLocation(ctx)
//	for change := range s.Events() {
//	    ...
//	}
//	s.Dispose()
package session
