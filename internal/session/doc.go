// Package session is the client side of a historian connection.
//
// A Session owns one correlate.Registry, one browse.Browser and one
// reltime.Resolver, and binds itself to a transport as the sink for every
// callback frame. Each operation resolves its time bounds, registers a
// request, issues the initiating call and activates the request with the
// call's synchronous reply. Results then reach the caller's handler through
// the registry.
//
// Usage:
//
//	srv := simserver.New(st)
//	go srv.Run(ctx)
//	s := session.New(srv)
//	defer s.Close(ctx)
//
//	req, err := s.ReadRaw(ctx, items, session.Span{
//	    Start: reltime.MustParse("DAY-1D"),
//	    End:   reltime.Now(),
//	}, 0, nil, handle)
package session
