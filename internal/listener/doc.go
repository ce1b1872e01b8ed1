// Package listener accepts persistent device connections and hands every
// length-prefixed frame to a FrameSink.
//
// A malformed frame body is the sink's problem and never closes the
// connection. A desynchronised stream (zero or oversized length prefix),
// a read timeout or a transport error closes that connection only.
//
//	srv := listener.New(cfg.Listener, processor)
//	if err := srv.Start(ctx); err != nil {
//	    return err
//	}
//	defer srv.Close()
package listener
