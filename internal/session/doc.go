// Package session drives one client connection to the workcell server.
//
// A Session moves through Connect, Initialize and RegisterAndSubscribe. It
// mirrors scenes, projects, packages and object types as entity collections,
// tracks the server asserted navigation state from inbound events, and applies
// the locking policy to mutating calls. When the connection closes, from
// either side, the session becomes Closed: pending calls fail with a connection
// error, collections are disposed and every further operation returns a state
// error.
//
// Event handlers run on the receive goroutine unless an invoker is installed
// with WithInvoker. They must not issue blocking calls on the same session.
//
// Example:
//
//	s, err := session.Dial(ctx, cfg, session.WithLogger(logger))
//	if err != nil { log.Fatal(err) }
//	defer s.Close()
//
//	if err := s.Initialize(); err != nil { log.Fatal(err) }
//	if err := s.RegisterAndSubscribe("John"); err != nil { log.Fatal(err) }
//
//	s.NavigationChanged.Subscribe(func(n session.Navigation) { fmt.Println(n) })
//	_ = s.RenameScene(id, "weld cell") // WriteLock first under AutoLock
package session
